package segments

import (
	"fmt"
	"math"
	"time"
)

const (
	metersPerMile = 1609.34
	feetPerMeter  = 3.28084
	dateLayout    = "01/02/2006"
)

// GAPModel approximates grade adjusted pace as pace / (1 + k*grade).
// Strava's own model is proprietary; the coefficients are tunable.
// DownhillK only applies to callers that pass a signed gain. The fetcher
// derives gain from elevation high minus low and clamps it at zero, so
// snapshots always take the uphill or flat path.
type GAPModel struct {
	UphillK   float64
	DownhillK float64
}

// DefaultGAPModel uses k=0.04 uphill and k=0.02 downhill.
var DefaultGAPModel = GAPModel{UphillK: 0.04, DownhillK: 0.02}

// Adjust returns the grade adjusted pace in seconds per mile.
func (m GAPModel) Adjust(paceSecPerMile, gainMeters, distanceMeters float64) float64 {
	if gainMeters == 0 || distanceMeters <= 0 {
		return paceSecPerMile
	}
	grade := gainMeters / distanceMeters
	k := m.DownhillK
	if grade > 0 {
		k = m.UphillK
	}
	return paceSecPerMile / (1 + k*grade)
}

// FormatMSS renders seconds as M:SS, truncating fractions.
func FormatMSS(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// paceSecondsPerMile returns elapsed seconds per mile, or false without distance.
func paceSecondsPerMile(elapsedSeconds int, distanceMeters float64) (float64, bool) {
	if distanceMeters <= 0 || elapsedSeconds <= 0 {
		return 0, false
	}
	return float64(elapsedSeconds) / (distanceMeters / metersPerMile), true
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func parseStartDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func formatDate(s string) *string {
	t, ok := parseStartDate(s)
	if !ok {
		return nil
	}
	d := t.Format(dateLayout)
	return &d
}
