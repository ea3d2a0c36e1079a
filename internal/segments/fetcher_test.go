package segments

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitea.jw6.us/james/segtrack/internal/failure"
	"gitea.jw6.us/james/segtrack/internal/strava"
)

func hillDetail() *strava.SegmentDetail {
	return &strava.SegmentDetail{
		ID:            12345,
		Name:          "Hill Climb",
		Distance:      floatPtr(4310),
		ElevationHigh: floatPtr(150),
		ElevationLow:  floatPtr(50),
		Raw: map[string]any{
			"map":          map[string]any{"polyline": "_p~iF~ps|U"},
			"start_latlng": []any{37.77, -122.41},
		},
	}
}

func effort(elapsed int, date string, activity int64) strava.Effort {
	e := strava.Effort{ElapsedTime: elapsed, StartDate: date}
	if activity != 0 {
		e.Activity = &struct {
			ID int64 `json:"id"`
		}{ID: activity}
	}
	return e
}

func TestFetchUnitConversion(t *testing.T) {
	f := NewFetcher(&fakeProvider{segment: hillDetail()}, DefaultGAPModel)

	snap, err := f.Fetch(context.Background(), 12345, "tok")
	require.NoError(t, err)

	assert.Equal(t, int64(12345), snap.SegmentID)
	assert.Equal(t, "Hill Climb", snap.SegmentName)
	assert.InDelta(t, 2.68, *snap.Distance, 1e-9)
	assert.InDelta(t, 328.1, *snap.ElevationGain, 1e-9)
	assert.Equal(t, "https://www.strava.com/segments/12345", *snap.StravaURL)
	assert.Equal(t, "_p~iF~ps|U", *snap.Polyline)
	assert.Equal(t, 37.77, *snap.StartLatitude)
	assert.Equal(t, -122.41, *snap.StartLongitude)
	assert.Equal(t, SourceProvider, snap.Source)
	assert.Nil(t, snap.PersonalAttempts)
	assert.Nil(t, snap.PersonalBestTime)
}

func TestFetchAbsentNumericFields(t *testing.T) {
	detail := &strava.SegmentDetail{Name: "Flat", Distance: floatPtr(0), ElevationHigh: floatPtr(20), ElevationLow: floatPtr(30)}
	f := NewFetcher(&fakeProvider{segment: detail}, DefaultGAPModel)

	snap, err := f.Fetch(context.Background(), 1, "tok")
	require.NoError(t, err)
	assert.Nil(t, snap.Distance)
	assert.Nil(t, snap.ElevationGain)
}

func TestFetchDetailFailurePropagates(t *testing.T) {
	for _, err := range []error{failure.ErrNotFound, failure.ErrAuthExpired, failure.ErrRateLimited, failure.Provider(500, "x")} {
		f := NewFetcher(&fakeProvider{segmentErr: err}, DefaultGAPModel)
		_, got := f.Fetch(context.Background(), 1, "tok")
		assert.ErrorIs(t, got, err)
	}
}

func TestFetchLeaderboardGoneStillSucceeds(t *testing.T) {
	f := NewFetcher(&fakeProvider{
		segment:        hillDetail(),
		leaderboardErr: failure.Provider(410, "gone"),
		efforts:        []strava.Effort{effort(1510, "2024-01-02T08:00:00Z", 9)},
	}, DefaultGAPModel)

	snap, err := f.Fetch(context.Background(), 12345, "tok")
	require.NoError(t, err)
	assert.Nil(t, snap.CrownHolder)
	assert.Nil(t, snap.CrownTime)
	assert.Nil(t, snap.CrownDate)
	assert.Nil(t, snap.CrownPace)
	assert.Equal(t, "25:10", *snap.PersonalBestTime)
}

func TestFetchCrownFields(t *testing.T) {
	f := NewFetcher(&fakeProvider{
		segment: hillDetail(),
		entries: []strava.LeaderboardEntry{{AthleteName: "Kim", ElapsedTime: 600, StartDate: "2023-05-01T10:00:00Z"}},
	}, DefaultGAPModel)

	snap, err := f.Fetch(context.Background(), 12345, "tok")
	require.NoError(t, err)
	assert.Equal(t, "Kim", *snap.CrownHolder)
	assert.Equal(t, "10:00", *snap.CrownTime)
	assert.Equal(t, "05/01/2023", *snap.CrownDate)
	// 600s over 2.678 mi.
	assert.Equal(t, "3:44", *snap.CrownPace)
}

func TestFetchCrownNeedsNameAndTime(t *testing.T) {
	f := NewFetcher(&fakeProvider{
		segment: hillDetail(),
		entries: []strava.LeaderboardEntry{{AthleteName: "", ElapsedTime: 600}},
	}, DefaultGAPModel)

	snap, err := f.Fetch(context.Background(), 12345, "tok")
	require.NoError(t, err)
	assert.Nil(t, snap.CrownHolder)
}

func TestFetchPersonalEfforts(t *testing.T) {
	f := NewFetcher(&fakeProvider{
		segment: hillDetail(),
		efforts: []strava.Effort{
			effort(1600, "2024-03-05T08:00:00Z", 1),
			effort(1510, "2024-01-02T08:00:00Z", 2),
			effort(0, "not-a-date", 3),
			effort(1700, "2023-12-01T08:00:00Z", 4),
		},
	}, DefaultGAPModel)

	snap, err := f.Fetch(context.Background(), 12345, "tok")
	require.NoError(t, err)
	assert.Equal(t, 4, *snap.PersonalAttempts)
	assert.Equal(t, "25:10", *snap.PersonalBestTime)
	assert.Equal(t, int64(2), *snap.PersonalBestActivityID)
	assert.Equal(t, "03/05/2024", *snap.LastAttemptDate)

	pace, _ := paceSecondsPerMile(1510, 4310)
	assert.Equal(t, FormatMSS(pace), *snap.PersonalBestPace)
	assert.Equal(t, FormatMSS(pace/(1+0.04*(100.0/4310))), *snap.PersonalBestGAP)
}

func TestFetchGAPFlatSegmentEqualsPace(t *testing.T) {
	detail := hillDetail()
	detail.ElevationHigh = floatPtr(50)
	f := NewFetcher(&fakeProvider{segment: detail, efforts: []strava.Effort{effort(1510, "2024-01-02T08:00:00Z", 0)}}, DefaultGAPModel)

	snap, err := f.Fetch(context.Background(), 12345, "tok")
	require.NoError(t, err)
	assert.Nil(t, snap.ElevationGain)
	require.NotNil(t, snap.PersonalBestGAP)
	assert.Equal(t, *snap.PersonalBestPace, *snap.PersonalBestGAP)
	assert.Nil(t, snap.PersonalBestActivityID)
}

func TestFetchGAPUnknownElevation(t *testing.T) {
	detail := hillDetail()
	detail.ElevationLow = nil
	f := NewFetcher(&fakeProvider{segment: detail, efforts: []strava.Effort{effort(1510, "", 0)}}, DefaultGAPModel)

	snap, err := f.Fetch(context.Background(), 12345, "tok")
	require.NoError(t, err)
	assert.NotNil(t, snap.PersonalBestPace)
	assert.Nil(t, snap.PersonalBestGAP)
	assert.Nil(t, snap.LastAttemptDate)
}

func TestFetchEffortsFailurePolicy(t *testing.T) {
	testCases := []struct {
		name      string
		err       error
		propagate bool
	}{
		{"auth expired surfaces", failure.ErrAuthExpired, true},
		{"rate limited surfaces", failure.ErrRateLimited, true},
		{"provider error degrades", failure.Provider(500, "boom"), false},
		{"timeout degrades", failure.ErrTimeout, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := NewFetcher(&fakeProvider{segment: hillDetail(), effortsErr: tc.err}, DefaultGAPModel)
			snap, err := f.Fetch(context.Background(), 12345, "tok")
			if tc.propagate {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Nil(t, snap.PersonalAttempts)
			assert.Nil(t, snap.PersonalBestTime)
		})
	}
}
