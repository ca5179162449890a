package routing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// keyVariantCoords tags cache keys derived from raw coordinate pairs so a
// future variant (e.g. multi-waypoint) can never collide with them.
const keyVariantCoords = "coords"

func formatCoordPair(lng, lat float64) string {
	return fmt.Sprintf("%.6f,%.6f", lng, lat)
}

// CacheKey derives the deterministic cache key for a resolution: a sha256
// digest over (variant, profile, origin, destination) with endpoints
// formatted to six decimals. Identical inputs always collide; distinct
// profiles or endpoints collide only with sha256 probability.
func CacheKey(profile string, coords [][]float64) string {
	origin := coords[0]
	dest := coords[len(coords)-1]
	raw := fmt.Sprintf("%s|%s|%s|%s",
		keyVariantCoords,
		profile,
		formatCoordPair(origin[0], origin[1]),
		formatCoordPair(dest[0], dest[1]),
	)
	digest := sha256.Sum256([]byte(raw))
	return "route:" + hex.EncodeToString(digest[:])
}
