package segments

import (
	"math"
	"strings"

	"github.com/paulmach/orb"
)

// MapFields is the map data pulled from a raw segment payload.
type MapFields struct {
	Polyline       *string
	StartLatitude  *float64
	StartLongitude *float64
}

// Point returns the start point in orb's (lng, lat) order.
func (m MapFields) Point() (orb.Point, bool) {
	if m.StartLatitude == nil || m.StartLongitude == nil {
		return orb.Point{}, false
	}
	return orb.Point{*m.StartLongitude, *m.StartLatitude}, true
}

type polylineStrategy func(raw map[string]any) (string, bool)

// Strava has returned the polyline in all three places over time.
var polylineStrategies = []polylineStrategy{
	stringAt("polyline"),
	stringAt("map", "polyline"),
	stringAt("map", "summary_polyline"),
}

type coordinateStrategy func(raw map[string]any) (lat, lng any, ok bool)

var coordinateStrategies = []coordinateStrategy{
	separateCoordinates,
	latlngArray,
}

// ExtractMapFields resolves the polyline and start coordinates. For each
// field the first matching strategy wins; out-of-range or non-numeric
// coordinates become absent independently of each other.
func ExtractMapFields(raw map[string]any) MapFields {
	var out MapFields
	if raw == nil {
		return out
	}

	for _, strategy := range polylineStrategies {
		if v, ok := strategy(raw); ok {
			out.Polyline = &v
			break
		}
	}

	for _, strategy := range coordinateStrategies {
		lat, lng, ok := strategy(raw)
		if !ok {
			continue
		}
		out.StartLatitude = inRange(lat, 90)
		out.StartLongitude = inRange(lng, 180)
		break
	}
	return out
}

func stringAt(path ...string) polylineStrategy {
	return func(raw map[string]any) (string, bool) {
		cur := raw
		for _, key := range path[:len(path)-1] {
			next, ok := cur[key].(map[string]any)
			if !ok {
				return "", false
			}
			cur = next
		}
		s, ok := cur[path[len(path)-1]].(string)
		if !ok || strings.TrimSpace(s) == "" {
			return "", false
		}
		return s, true
	}
}

func separateCoordinates(raw map[string]any) (any, any, bool) {
	lat, latOK := raw["start_latitude"]
	lng, lngOK := raw["start_longitude"]
	if !latOK || !lngOK || lat == nil || lng == nil {
		return nil, nil, false
	}
	return lat, lng, true
}

func latlngArray(raw map[string]any) (any, any, bool) {
	pair, ok := raw["start_latlng"].([]any)
	if !ok || len(pair) < 2 {
		return nil, nil, false
	}
	return pair[0], pair[1], true
}

func inRange(v any, limit float64) *float64 {
	f, ok := toFloat(v)
	if !ok || f < -limit || f > limit {
		return nil
	}
	return &f
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
