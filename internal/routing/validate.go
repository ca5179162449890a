package routing

import (
	"math"
	"net/http"
	"strings"

	"github.com/campusmap/routegate/internal/apperr"
)

// DefaultProfile is used when the configured allow-list is empty.
const DefaultProfile = "foot-walking"

func invalidPayload(format string, args ...any) *apperr.Error {
	return apperr.New(apperr.CodeInvalidPayload, http.StatusBadRequest, format, args...).
		WithDetail("field", "coordinates")
}

// ValidateCoordinates checks a sequence of [lon, lat] pairs and returns the
// sanitized pairs. At least two pairs are required; each must carry two
// finite values with lon in [-180, 180] and lat in [-90, 90].
func ValidateCoordinates(coords [][]float64) ([][]float64, error) {
	if len(coords) < 2 {
		return nil, invalidPayload("at least two [lon, lat] points are required")
	}

	sanitized := make([][]float64, 0, len(coords))
	for i, pair := range coords {
		if len(pair) < 2 {
			return nil, invalidPayload("coordinate #%d is invalid; expected [lon, lat]", i+1)
		}
		lon, lat := pair[0], pair[1]
		if math.IsNaN(lon) || math.IsInf(lon, 0) || math.IsNaN(lat) || math.IsInf(lat, 0) {
			return nil, invalidPayload("coordinate #%d contains non-numeric values", i+1)
		}
		if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
			return nil, invalidPayload("coordinate #%d is out of lon/lat range", i+1)
		}
		sanitized = append(sanitized, []float64{lon, lat})
	}
	return sanitized, nil
}

// NormalizeAllowedProfiles lower-cases and trims an allow-list, dropping
// blanks. An empty result falls back to the default profile.
func NormalizeAllowedProfiles(profiles []string) []string {
	normalized := make([]string, 0, len(profiles))
	for _, p := range profiles {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			normalized = append(normalized, p)
		}
	}
	if len(normalized) == 0 {
		normalized = []string{DefaultProfile}
	}
	return normalized
}

// NormalizeProfile resolves a requested profile against the allow-list.
// Blank input defaults to the first allowed profile; anything outside the
// list fails with the allow-list attached.
func NormalizeProfile(profile string, allowed []string) (string, error) {
	normalizedAllowed := NormalizeAllowedProfiles(allowed)
	candidate := strings.ToLower(strings.TrimSpace(profile))
	if candidate == "" {
		return normalizedAllowed[0], nil
	}
	for _, p := range normalizedAllowed {
		if candidate == p {
			return candidate, nil
		}
	}
	return "", apperr.New(apperr.CodeInvalidProfile, http.StatusBadRequest,
		"routing profile %q is not allowed", candidate).
		WithDetail("allowed", normalizedAllowed).
		WithDetail("received", candidate)
}
