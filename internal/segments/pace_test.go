package segments

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatMSS(t *testing.T) {
	testCases := map[float64]string{
		0:      "0:00",
		59.9:   "0:59",
		60:     "1:00",
		1510:   "25:10",
		3725.4: "62:05",
		-4:     "0:00",
	}
	for in, want := range testCases {
		assert.Equal(t, want, FormatMSS(in), "input %v", in)
	}
}

func TestGAPFlatEqualsPace(t *testing.T) {
	assert.Equal(t, 480.0, DefaultGAPModel.Adjust(480, 0, 1609.34))
}

func TestGAPUphill(t *testing.T) {
	for _, tc := range []struct{ pace, gain, dist float64 }{
		{600, 100, 4310},
		{420, 12.5, 800},
		{900, 300, 2000},
	} {
		grade := tc.gain / tc.dist
		assert.InDelta(t, tc.pace/(1+0.04*grade), DefaultGAPModel.Adjust(tc.pace, tc.gain, tc.dist), 1e-9)
	}
}

func TestGAPCustomCoefficients(t *testing.T) {
	m := GAPModel{UphillK: 0.1, DownhillK: 0.02}
	assert.InDelta(t, 500/(1+0.1*0.5), m.Adjust(500, 50, 100), 1e-9)
}

func TestGAPSignedGainUsesDownhill(t *testing.T) {
	m := GAPModel{UphillK: 0.04, DownhillK: 0.02}
	assert.InDelta(t, 480/(1+0.02*-0.05), m.Adjust(480, -50, 1000), 1e-9)
}

func TestPaceSecondsPerMile(t *testing.T) {
	p, ok := paceSecondsPerMile(600, metersPerMile*2)
	assert.True(t, ok)
	assert.InDelta(t, 300, p, 1e-9)

	_, ok = paceSecondsPerMile(600, 0)
	assert.False(t, ok)
	_, ok = paceSecondsPerMile(0, 100)
	assert.False(t, ok)
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "05/01/2023", *formatDate("2023-05-01T10:00:00Z"))
	assert.Equal(t, "12/31/2022", *formatDate("2022-12-31T23:30:00-08:00"))
	assert.Nil(t, formatDate("yesterday"))
	assert.Nil(t, formatDate(""))
}

func TestRound(t *testing.T) {
	assert.Equal(t, 2.68, round(4310/metersPerMile, 2))
	assert.Equal(t, 328.1, round(100*feetPerMeter, 1))
}
