package ors

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strings"

	"github.com/twpayne/go-polyline"

	"github.com/campusmap/routegate/internal/apperr"
	"github.com/campusmap/routegate/internal/routing"
)

const (
	// maxStepTextLength bounds a single instruction's text.
	maxStepTextLength = 240
	// maxRouteSteps caps the instruction list; overflow is dropped, not an
	// error.
	maxRouteSteps = 200
)

type directionsResponse struct {
	Routes []directionsRoute `json:"routes"`
}

type directionsRoute struct {
	// Geometry is either an encoded polyline string or a GeoJSON object;
	// kept raw and decoded by shape.
	Geometry json.RawMessage    `json:"geometry"`
	Summary  *directionsSummary `json:"summary"`
	Segments []struct {
		Steps []directionsStep `json:"steps"`
	} `json:"segments"`
}

type directionsSummary struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
}

// directionsStep keeps loosely-typed fields: the provider is not strict
// about them and a malformed step must degrade, not fail the route.
type directionsStep struct {
	Instruction any       `json:"instruction"`
	Name        any       `json:"name"`
	Distance    any       `json:"distance"`
	Duration    any       `json:"duration"`
	WayPoints   []float64 `json:"way_points"`
	Coordinate  []float64 `json:"coordinate"`
}

type geoJSONGeometry struct {
	Coordinates [][]float64 `json:"coordinates"`
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// normalize turns the first route candidate into the canonical shape.
func (c *Client) normalize(resp *directionsResponse) (*routing.RouteResult, error) {
	if len(resp.Routes) == 0 {
		return nil, apperr.New(apperr.CodeRouteNotFound, http.StatusNotFound,
			"no route could be computed between the given locations")
	}
	route := resp.Routes[0]

	points, err := c.decodeGeometry(route.Geometry)
	if err != nil {
		return nil, err
	}

	if route.Summary == nil {
		return nil, apperr.New(apperr.CodeMissingSummary, http.StatusInternalServerError,
			"route summary missing from upstream response")
	}

	var steps []routing.Step
	if len(route.Segments) > 0 {
		steps = c.parseSteps(route.Segments[0].Steps, points)
	} else {
		c.log.Debug().Msg("upstream response has no segments/steps")
	}

	result := &routing.RouteResult{
		Route:            points,
		DistanceM:        int(route.Summary.Distance),
		DurationS:        int(route.Summary.Duration),
		Steps:            steps,
		StepsCount:       len(steps),
		CurrentStepIndex: 0,
	}
	c.log.Info().
		Int("points", len(points)).
		Int("distance_m", result.DistanceM).
		Int("duration_s", result.DurationS).
		Msg("upstream route normalized")
	return result, nil
}

// decodeGeometry accepts the two shapes ORS produces: a compact encoded
// polyline string, or a GeoJSON object with [lon, lat] coordinate pairs.
func (c *Client) decodeGeometry(raw json.RawMessage) ([]routing.Point, error) {
	if len(raw) == 0 {
		return nil, apperr.New(apperr.CodeUnsupportedGeometry, http.StatusInternalServerError,
			"route geometry missing from upstream response")
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		coords, _, err := polyline.DecodeCoords([]byte(encoded))
		if err != nil {
			return nil, apperr.New(apperr.CodeUnsupportedGeometry, http.StatusInternalServerError,
				"failed to decode route geometry").Wrap(err)
		}
		points := make([]routing.Point, 0, len(coords))
		for _, pair := range coords {
			points = append(points, routing.Point{Lat: pair[0], Lng: pair[1]})
		}
		return points, nil
	}

	var geo geoJSONGeometry
	if err := json.Unmarshal(raw, &geo); err == nil && geo.Coordinates != nil {
		points := make([]routing.Point, 0, len(geo.Coordinates))
		for _, pair := range geo.Coordinates {
			if len(pair) >= 2 {
				points = append(points, routing.Point{Lat: pair[1], Lng: pair[0]})
			}
		}
		return points, nil
	}

	return nil, apperr.New(apperr.CodeUnsupportedGeometry, http.StatusInternalServerError,
		"unsupported route geometry format")
}

// parseSteps builds the bounded instruction list.
func (c *Client) parseSteps(raw []directionsStep, points []routing.Point) []routing.Step {
	steps := make([]routing.Step, 0, len(raw))
	for idx, step := range raw {
		parsed := routing.Step{
			Order:     idx,
			Text:      normalizeStepText(step.Instruction, step.Name, idx+1),
			DistanceM: coerceNonNegative(step.Distance),
			DurationS: coerceNonNegative(step.Duration),
			Location:  stepLocation(step, points),
		}
		steps = append(steps, parsed)
		if len(steps) >= maxRouteSteps {
			c.log.Info().Int("max", maxRouteSteps).Msg("route instructions truncated")
			break
		}
	}
	return steps
}

// normalizeStepText combines the instruction with the step's named entity,
// collapses whitespace and truncates to the step-text bound.
func normalizeStepText(instruction, name any, stepNumber int) string {
	text := strings.TrimSpace(asString(instruction))
	entity := strings.TrimSpace(asString(name))

	if text == "" {
		text = fmt.Sprintf("Step %d", stepNumber)
	}
	if entity != "" && !strings.Contains(strings.ToLower(text), strings.ToLower(entity)) {
		text = text + " on " + entity
	}

	text = strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	if len(text) > maxStepTextLength {
		text = strings.TrimRight(text[:maxStepTextLength-3], " ") + "..."
	}
	return text
}

// stepLocation resolves a step's point: first waypoint index into the
// decoded geometry when in range, else an embedded coordinate, else none.
func stepLocation(step directionsStep, points []routing.Point) *routing.Point {
	if len(step.WayPoints) > 0 {
		idx := int(step.WayPoints[0])
		if idx >= 0 && idx < len(points) {
			p := points[idx]
			return &p
		}
	}
	if len(step.Coordinate) >= 2 {
		return &routing.Point{Lat: step.Coordinate[1], Lng: step.Coordinate[0]}
	}
	return nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// coerceNonNegative rounds a loosely-typed numeric to a non-negative int,
// defaulting to zero for anything non-numeric.
func coerceNonNegative(v any) int {
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	n := int(math.Round(f))
	if n < 0 {
		return 0
	}
	return n
}
