// Package jobs defines the background task names and payloads shared by the
// API (producer) and the worker (consumer).
package jobs

// TaskPrewarmRoute resolves a route ahead of demand so the first real
// caller hits a warm cache.
const TaskPrewarmRoute = "route:prewarm"

// PrewarmRoutePayload is the task payload for TaskPrewarmRoute.
type PrewarmRoutePayload struct {
	// Coordinates are [lon, lat] pairs; first is origin, last destination.
	Coordinates [][]float64 `json:"coordinates"`
	Profile     string      `json:"profile,omitempty"`
	RequestID   string      `json:"request_id,omitempty"`
}
