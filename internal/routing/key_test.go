package routing

import (
	"strings"
	"testing"
)

func TestCacheKeyDeterministic(t *testing.T) {
	coords := [][]float64{{-110.954321, 29.071234}, {-110.961111, 29.082222}}

	k1 := CacheKey("foot-walking", coords)
	k2 := CacheKey("foot-walking", coords)
	if k1 != k2 {
		t.Errorf("same input produced different keys: %q vs %q", k1, k2)
	}
	if !strings.HasPrefix(k1, "route:") {
		t.Errorf("key %q missing route: prefix", k1)
	}
}

func TestCacheKeyDiscriminates(t *testing.T) {
	coords := [][]float64{{-110.954321, 29.071234}, {-110.961111, 29.082222}}

	base := CacheKey("foot-walking", coords)
	if CacheKey("driving-car", coords) == base {
		t.Error("different profiles must not collide")
	}

	swapped := [][]float64{coords[1], coords[0]}
	if CacheKey("foot-walking", swapped) == base {
		t.Error("swapped endpoints must not collide")
	}

	moved := [][]float64{{-110.954321, 29.071234}, {-110.961111, 29.083}}
	if CacheKey("foot-walking", moved) == base {
		t.Error("different destination must not collide")
	}
}

func TestCacheKeyUsesEndpointsOnly(t *testing.T) {
	direct := [][]float64{{-110.95, 29.07}, {-110.96, 29.08}}
	viaMidpoint := [][]float64{{-110.95, 29.07}, {-110.955, 29.075}, {-110.96, 29.08}}

	// Keys derive from (first, last); intermediate points are not part of
	// the identity.
	if CacheKey("foot-walking", direct) != CacheKey("foot-walking", viaMidpoint) {
		t.Error("intermediate waypoints should not change the key")
	}
}

func TestCacheKeySixDecimalPrecision(t *testing.T) {
	a := [][]float64{{-110.9500001, 29.07}, {-110.96, 29.08}}
	b := [][]float64{{-110.9500004, 29.07}, {-110.96, 29.08}}

	// Both round to -110.950000 at six decimals.
	if CacheKey("foot-walking", a) != CacheKey("foot-walking", b) {
		t.Error("coordinates equal at six decimals should share a key")
	}
}
