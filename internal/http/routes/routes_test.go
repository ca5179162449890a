package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/campusmap/routegate/internal/config"
	"github.com/campusmap/routegate/internal/routing"
)

type fakeUpstream struct {
	calls    int
	profiles []string
}

func (f *fakeUpstream) FetchRoute(_ context.Context, coords [][]float64, profile string) (*routing.RouteResult, error) {
	f.calls++
	f.profiles = append(f.profiles, profile)
	return &routing.RouteResult{
		Route: []routing.Point{
			{Lat: coords[0][1], Lng: coords[0][0]},
			{Lat: coords[1][1], Lng: coords[1][0]},
		},
		DistanceM: 432,
		DurationS: 150,
		Steps: []routing.Step{
			{Order: 0, Text: "Head north", DistanceM: 432, DurationS: 150},
		},
		StepsCount: 1,
	}, nil
}

type fakeLocations struct {
	byID map[int64]*routing.Location
}

func (f *fakeLocations) Location(_ context.Context, id int64) (*routing.Location, error) {
	return f.byID[id], nil
}

func campusLocations() *fakeLocations {
	return &fakeLocations{byID: map[int64]*routing.Location{
		1: {ID: 1, Name: "Biblioteca", Lat: 29.0712, Lng: -110.9543},
		2: {ID: 2, Name: "Rectoría", Lat: 29.0721, Lng: -110.9551},
	}}
}

func newTestServer(t *testing.T, upstream routing.Upstream, debug bool) *Server {
	t.Helper()
	cfg := &config.Config{
		Debug: debug,
		ORS: config.ORSConfig{
			AllowedProfiles: []string{"foot-walking", "driving-car"},
		},
		Cache: config.CacheConfig{TTLSeconds: 300, MaxTTLSeconds: 600},
	}
	resolver := routing.NewResolver(upstream, campusLocations(), nil, cfg.Cache, cfg.ORS.AllowedProfiles, zerolog.Nop())
	return New(ServerOptions{
		Resolver: resolver,
		Cfg:      cfg,
		Log:      zerolog.Nop(),
	})
}

func doRequest(t *testing.T, s *Server, method, target string, body any, header http.Header) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if raw, ok := body.([]byte); ok {
		reader = bytes.NewReader(raw)
	} else if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec, decoded
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &fakeUpstream{}, false)
	rec, body := doRequest(t, s, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", body["status"])
}

func TestRouteByCoordinates(t *testing.T) {
	upstream := &fakeUpstream{}
	s := newTestServer(t, upstream, false)

	rec, body := doRequest(t, s, http.MethodPost, "/api/routes/coordinates", map[string]any{
		"origin":      []float64{-110.9543, 29.0712},
		"destination": []float64{-110.9551, 29.0721},
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, 1, upstream.calls)
	require.Equal(t, []string{"foot-walking"}, upstream.profiles, "blank profile selects the first allowed")

	require.Equal(t, float64(432), body["distance_m"])
	require.Equal(t, float64(150), body["duration_s"])
	require.Equal(t, float64(1), body["steps_count"])
	require.Equal(t, "foot-walking", body["profile"])

	origin := body["origin"].(map[string]any)
	require.Equal(t, 29.0712, origin["lat"])
	require.Equal(t, -110.9543, origin["lng"])
}

func TestRouteByCoordinatesMalformedBody(t *testing.T) {
	s := newTestServer(t, &fakeUpstream{}, false)
	rec, body := doRequest(t, s, http.MethodPost, "/api/routes/coordinates", []byte("{not json"), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_payload", body["code"])
}

func TestRouteByCoordinatesInvalidCoordinates(t *testing.T) {
	upstream := &fakeUpstream{}
	s := newTestServer(t, upstream, false)

	rec, body := doRequest(t, s, http.MethodPost, "/api/routes/coordinates", map[string]any{
		"origin":      []float64{-200, 29.0712},
		"destination": []float64{-110.9551, 29.0721},
	}, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_payload", body["code"])
	require.Zero(t, upstream.calls)
}

func TestRouteByCoordinatesInvalidProfile(t *testing.T) {
	s := newTestServer(t, &fakeUpstream{}, false)

	rec, body := doRequest(t, s, http.MethodPost, "/api/routes/coordinates", map[string]any{
		"origin":      []float64{-110.9543, 29.0712},
		"destination": []float64{-110.9551, 29.0721},
		"profile":     "rocket",
	}, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_profile", body["code"])
	require.Contains(t, body, "allowed", "error detail lists the allow-list")
}

func TestRouteByLocations(t *testing.T) {
	s := newTestServer(t, &fakeUpstream{}, false)

	rec, body := doRequest(t, s, http.MethodGet, "/api/routes/ors/1/2?profile=driving-car", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "driving-car", body["profile"])

	origin := body["origin"].(map[string]any)
	require.Equal(t, float64(1), origin["id"])
	require.Equal(t, "Biblioteca", origin["name"])

	dest := body["destination"].(map[string]any)
	require.Equal(t, "Rectoría", dest["name"])
}

func TestRouteByLocationsBadIDs(t *testing.T) {
	s := newTestServer(t, &fakeUpstream{}, false)
	rec, body := doRequest(t, s, http.MethodGet, "/api/routes/ors/abc/2", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_payload", body["code"])
}

func TestRouteByLocationsUnknownID(t *testing.T) {
	s := newTestServer(t, &fakeUpstream{}, false)
	rec, body := doRequest(t, s, http.MethodGet, "/api/routes/ors/1/99", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "location_not_found", body["code"])
}

func TestGraphRouteWithoutRepository(t *testing.T) {
	s := newTestServer(t, &fakeUpstream{}, false)
	rec, body := doRequest(t, s, http.MethodGet, "/api/routes/graph/1/2", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "location_not_found", body["code"])
}

func TestGraphRouteBadIDs(t *testing.T) {
	s := newTestServer(t, &fakeUpstream{}, false)
	rec, body := doRequest(t, s, http.MethodGet, "/api/routes/graph/x/y", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_payload", body["code"])
}

func TestPrewarmWithoutQueue(t *testing.T) {
	s := newTestServer(t, &fakeUpstream{}, false)
	rec, body := doRequest(t, s, http.MethodPost, "/api/routes/prewarm", map[string]any{
		"origin":      []float64{-110.9543, 29.0712},
		"destination": []float64{-110.9551, 29.0721},
	}, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "prewarm_unavailable", body["code"])
}

func TestAllowedProfilesHeaderRequiresDebug(t *testing.T) {
	header := http.Header{"X-Allowed-Profiles": []string{"driving-car"}}
	payload := map[string]any{
		"origin":      []float64{-110.9543, 29.0712},
		"destination": []float64{-110.9551, 29.0721},
		"profile":     "foot-walking",
	}

	// Debug on: the header narrows the allow-list and rejects the profile.
	debug := newTestServer(t, &fakeUpstream{}, true)
	rec, body := doRequest(t, debug, http.MethodPost, "/api/routes/coordinates", payload, header)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_profile", body["code"])

	// Debug off: the header is ignored.
	prod := newTestServer(t, &fakeUpstream{}, false)
	rec, _ = doRequest(t, prod, http.MethodPost, "/api/routes/coordinates", payload, header)
	require.Equal(t, http.StatusOK, rec.Code)
}
