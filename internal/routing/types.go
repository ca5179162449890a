// Package routing holds the canonical route shapes and the resolution
// orchestrator that fronts the upstream provider with a cache.
package routing

// Point is a geographic position in the caller-facing lat/lng order.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Step is a single turn-by-turn instruction along a route.
type Step struct {
	Order     int    `json:"order"`
	Text      string `json:"text"`
	DistanceM int    `json:"distance_m"`
	DurationS int    `json:"duration_s"`
	Location  *Point `json:"location,omitempty"`
}

// Endpoint labels one end of a route. ID and Name are only set when the
// route was resolved from known locations.
type Endpoint struct {
	ID   int64   `json:"id,omitempty"`
	Name string  `json:"name,omitempty"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// RouteResult is the canonical, cache-stored, caller-facing route shape.
type RouteResult struct {
	Route            []Point  `json:"route"`
	DistanceM        int      `json:"distance_m"`
	DurationS        int      `json:"duration_s"`
	Steps            []Step   `json:"steps"`
	StepsCount       int      `json:"steps_count"`
	CurrentStepIndex int      `json:"current_step_index"`
	Origin           Endpoint `json:"origin"`
	Destination      Endpoint `json:"destination"`
	Profile          string   `json:"profile"`
}

// Clone returns a deep copy. Cached results are always handed out as
// copies so a caller mutating its result cannot corrupt the cache.
func (r *RouteResult) Clone() *RouteResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Route = make([]Point, len(r.Route))
	copy(out.Route, r.Route)
	out.Steps = make([]Step, len(r.Steps))
	for i, s := range r.Steps {
		out.Steps[i] = s
		if s.Location != nil {
			loc := *s.Location
			out.Steps[i].Location = &loc
		}
	}
	return &out
}

// Location is a named map location supplied by the location-lookup
// collaborator.
type Location struct {
	ID   int64
	Name string
	Lat  float64
	Lng  float64
}
