// Package routes wires the HTTP surface: route resolution endpoints, the
// graph fallback route and the prewarm queue producer.
package routes

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/campusmap/routegate/internal/apperr"
	"github.com/campusmap/routegate/internal/config"
	"github.com/campusmap/routegate/internal/graph"
	"github.com/campusmap/routegate/internal/jobs"
	"github.com/campusmap/routegate/internal/routing"
	"github.com/campusmap/routegate/internal/store"
)

// walkingSpeedMPS converts graph fallback distances into rough durations.
const walkingSpeedMPS = 1.4

type Server struct {
	Router   *chi.Mux
	Resolver *routing.Resolver
	Repo     *store.Repository
	Queue    *asynq.Client // nil disables the prewarm endpoint
	Cfg      *config.Config
	Log      zerolog.Logger
}

type ServerOptions struct {
	Resolver *routing.Resolver
	Repo     *store.Repository
	Queue    *asynq.Client
	Cfg      *config.Config
	Log      zerolog.Logger
}

func New(opts ServerOptions) *Server {
	s := &Server{
		Resolver: opts.Resolver,
		Repo:     opts.Repo,
		Queue:    opts.Queue,
		Cfg:      opts.Cfg,
		Log:      opts.Log,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(hlog.NewHandler(opts.Log))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/routes", func(r chi.Router) {
		r.Post("/coordinates", s.handleRouteByCoordinates)
		r.Get("/ors/{fromID}/{toID}", s.handleRouteByLocations)
		r.Get("/graph/{fromID}/{toID}", s.handleGraphRoute)
		r.Post("/prewarm", s.handlePrewarm)
	})

	s.Router = r
	return s
}

// coordinatesRequest is the payload for coordinate-based resolution and
// prewarming.
type coordinatesRequest struct {
	Origin      []float64 `json:"origin"`
	Destination []float64 `json:"destination"`
	Profile     string    `json:"profile"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRouteByCoordinates(w http.ResponseWriter, r *http.Request) {
	var req coordinatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperr.New(apperr.CodeInvalidPayload, http.StatusBadRequest,
			"request body must be JSON with origin and destination").Wrap(err))
		return
	}

	result, err := s.Resolver.ResolveByCoordinates(r.Context(),
		[][]float64{req.Origin, req.Destination}, s.resolveOptions(r, req.Profile))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRouteByLocations(w http.ResponseWriter, r *http.Request) {
	fromID, err1 := strconv.ParseInt(chi.URLParam(r, "fromID"), 10, 64)
	toID, err2 := strconv.ParseInt(chi.URLParam(r, "toID"), 10, 64)
	if err1 != nil || err2 != nil {
		s.writeError(w, r, apperr.New(apperr.CodeInvalidPayload, http.StatusBadRequest,
			"location ids must be integers"))
		return
	}

	result, err := s.Resolver.ResolveByLocations(r.Context(), fromID, toID,
		s.resolveOptions(r, r.URL.Query().Get("profile")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGraphRoute serves the internal Dijkstra fallback over the location
// graph, with Haversine distance totals.
func (s *Server) handleGraphRoute(w http.ResponseWriter, r *http.Request) {
	fromID, err1 := strconv.ParseInt(chi.URLParam(r, "fromID"), 10, 64)
	toID, err2 := strconv.ParseInt(chi.URLParam(r, "toID"), 10, 64)
	if err1 != nil || err2 != nil {
		s.writeError(w, r, apperr.New(apperr.CodeInvalidPayload, http.StatusBadRequest,
			"location ids must be integers"))
		return
	}
	if s.Repo == nil {
		s.writeError(w, r, apperr.New(apperr.CodeLocationNotFound, http.StatusNotFound,
			"location data is not available"))
		return
	}

	ctx := r.Context()
	locations, err := s.Repo.ListLocations(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	connections, err := s.Repo.ListConnections(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ids := make([]int64, 0, len(locations))
	for id := range locations {
		ids = append(ids, id)
	}
	path := graph.New(ids, connections).ShortestPath(fromID, toID)
	if len(path) == 0 {
		s.writeError(w, r, apperr.New(apperr.CodeRouteNotFound, http.StatusNotFound,
			"no graph route between the given locations"))
		return
	}

	type pathPoint struct {
		ID   int64   `json:"id"`
		Name string  `json:"name"`
		Lat  float64 `json:"lat"`
		Lng  float64 `json:"lng"`
	}
	points := make([]pathPoint, 0, len(path))
	totalM := 0.0
	for i, id := range path {
		loc := locations[id]
		points = append(points, pathPoint{ID: loc.ID, Name: loc.Name, Lat: loc.Lat, Lng: loc.Lng})
		if i > 0 {
			prev := locations[path[i-1]]
			totalM += graph.HaversineMeters(prev.Lat, prev.Lng, loc.Lat, loc.Lng)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"route":      points,
		"distance_m": int(totalM),
		"duration_s": int(totalM / walkingSpeedMPS),
	})
}

// handlePrewarm enqueues a background resolution so the cache is warm before
// real traffic asks for the route.
func (s *Server) handlePrewarm(w http.ResponseWriter, r *http.Request) {
	if s.Queue == nil {
		s.writeError(w, r, apperr.New("prewarm_unavailable", http.StatusServiceUnavailable,
			"prewarm queue is not configured"))
		return
	}

	var req coordinatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperr.New(apperr.CodeInvalidPayload, http.StatusBadRequest,
			"request body must be JSON with origin and destination").Wrap(err))
		return
	}
	coords, err := routing.ValidateCoordinates([][]float64{req.Origin, req.Destination})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	payload, err := json.Marshal(jobs.PrewarmRoutePayload{
		Coordinates: coords,
		Profile:     req.Profile,
		RequestID:   requestID(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	task := asynq.NewTask(jobs.TaskPrewarmRoute, payload)
	info, err := s.Queue.EnqueueContext(r.Context(), task, asynq.Queue("prewarm"))
	if err != nil {
		s.writeError(w, r, apperr.New("prewarm_enqueue_failed", http.StatusServiceUnavailable,
			"could not enqueue prewarm task").Wrap(err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": info.ID})
}

// resolveOptions builds the per-call resolver options from request headers.
func (s *Server) resolveOptions(r *http.Request, profile string) routing.Options {
	return routing.Options{
		Profile:         profile,
		TTLOverride:     s.cacheTTLOverride(r),
		RequestID:       requestID(r),
		AllowedProfiles: s.allowedProfilesOverride(r),
	}
}

// allowedProfilesOverride narrows the profile allow-list from the
// X-Allowed-Profiles header. Debug-only escape hatch for testing profiles.
func (s *Server) allowedProfilesOverride(r *http.Request) []string {
	if !s.Cfg.Debug {
		return nil
	}
	raw := r.Header.Get("X-Allowed-Profiles")
	if raw == "" {
		return nil
	}
	return routing.NormalizeAllowedProfiles(strings.Split(raw, ","))
}

// cacheTTLOverride honors X-Cache-TTL only when enabled in configuration.
// Unparsable values are ignored with a warning, not an error.
func (s *Server) cacheTTLOverride(r *http.Request) *int {
	if !s.Cfg.Cache.AllowHeaderOverride {
		return nil
	}
	raw := r.Header.Get("X-Cache-TTL")
	if raw == "" {
		return nil
	}
	ttl, err := strconv.Atoi(raw)
	if err != nil {
		hlog.FromRequest(r).Warn().Str("value", raw).Msg("invalid X-Cache-TTL header ignored")
		return nil
	}
	return &ttl
}

// requestID prefers the caller's correlation id over the middleware's.
func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return chimw.GetReqID(r.Context())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders the classified error taxonomy as JSON, never leaking
// internal causes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperr.From(err)
	if appErr.Status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Str("code", appErr.Code).Msg("request failed")
	} else {
		hlog.FromRequest(r).Warn().Str("code", appErr.Code).Msg(appErr.Message)
	}

	body := map[string]any{
		"code":    appErr.Code,
		"message": appErr.Message,
	}
	for k, v := range appErr.Detail {
		body[k] = v
	}
	writeJSON(w, appErr.Status, body)
}
