package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestSegmentApplyOnlyOverwritesSuppliedFields(t *testing.T) {
	seg := Segment{
		Name:             "Hill Climb",
		Distance:         ptr(2.5),
		PersonalBestTime: ptr("26:00"),
		Dibs:             ptr("sam"),
	}

	changed := seg.Apply(SegmentPatch{
		PersonalBestTime: ptr("25:10"),
		PersonalAttempts: ptr(12),
	})

	require.True(t, changed)
	assert.Equal(t, "Hill Climb", seg.Name)
	assert.Equal(t, 2.5, *seg.Distance)
	assert.Equal(t, "25:10", *seg.PersonalBestTime)
	assert.Equal(t, 12, seg.PersonalAttempts)
	assert.Equal(t, "sam", *seg.Dibs)
}

func TestSegmentApplyIsIdempotent(t *testing.T) {
	seg := Segment{Name: "Loop"}
	patch := SegmentPatch{
		Name:           ptr("Loop Trail"),
		Polyline:       ptr("abc"),
		StartLatitude:  ptr(37.1),
		StartLongitude: ptr(-122.2),
		Completed:      ptr(true),
	}

	assert.True(t, seg.Apply(patch))
	snapshot := seg
	assert.False(t, seg.Apply(patch))
	assert.Equal(t, snapshot, seg)
}

func TestSegmentApplyCopiesValues(t *testing.T) {
	name := "source"
	seg := Segment{}
	seg.Apply(SegmentPatch{CrownHolder: &name})
	name = "mutated"
	assert.Equal(t, "source", *seg.CrownHolder)
}

func TestSegmentPatchEmpty(t *testing.T) {
	assert.True(t, SegmentPatch{}.Empty())
	assert.False(t, SegmentPatch{Dibs: ptr("")}.Empty())
}

func TestMissingMapData(t *testing.T) {
	assert.True(t, (&Segment{Polyline: ptr("x"), StartLatitude: ptr(1.0)}).MissingMapData())
	assert.False(t, (&Segment{Polyline: ptr("x"), StartLatitude: ptr(0.0), StartLongitude: ptr(0.0)}).MissingMapData())
}

func TestExtractSegmentID(t *testing.T) {
	testCases := []struct {
		url    string
		id     int64
		wantOK bool
	}{
		{"https://www.strava.com/segments/12345", 12345, true},
		{"https://www.strava.com/segments/987?filter=overall", 987, true},
		{"strava.com/activities/55", 0, false},
		{"", 0, false},
	}
	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			id, ok := ExtractSegmentID(tc.url)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.id, id)
		})
	}
}

func TestCredentialConnected(t *testing.T) {
	var nilCred *Credential
	assert.False(t, nilCred.Connected())
	assert.False(t, (&Credential{AccessToken: ptr("")}).Connected())
	assert.True(t, (&Credential{AccessToken: ptr("tok")}).Connected())
}
