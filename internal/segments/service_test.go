package segments

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitea.jw6.us/james/segtrack/internal/failure"
	"gitea.jw6.us/james/segtrack/internal/store"
)

func freshSnapshot() *Snapshot {
	return &Snapshot{
		SegmentID:        12345,
		SegmentName:      "Hill Climb",
		Distance:         floatPtr(2.68),
		ElevationGain:    floatPtr(328.1),
		StravaURL:        strPtr("https://www.strava.com/segments/12345"),
		Polyline:         strPtr("new-line"),
		StartLatitude:    floatPtr(37.77),
		StartLongitude:   floatPtr(-122.41),
		PersonalBestTime: strPtr("24:55"),
		PersonalBestPace: strPtr("9:18"),
		PersonalAttempts: intPtr(5),
		PersonalBestGAP:  strPtr("9:10"),
		Source:           SourceProvider,
	}
}

func TestTimesMergesIntoStoredRow(t *testing.T) {
	row := cachedRow()
	row.Dibs = strPtr("sam")
	repo := newMemSegments(row)
	fetcher := &stubFetcher{snaps: map[int64]*Snapshot{12345: freshSnapshot()}}
	svc := NewService(staticToken{token: "tok"}, fetcher, repo)

	snap, err := svc.Times(context.Background(), 12345)
	require.NoError(t, err)
	assert.Equal(t, "9:10", *snap.PersonalBestGAP)

	stored, err := repo.GetByStravaID(context.Background(), 12345)
	require.NoError(t, err)
	assert.Equal(t, "24:55", *stored.PersonalBestTime)
	assert.Equal(t, 5, stored.PersonalAttempts)
	assert.Equal(t, "new-line", *stored.Polyline)
	// Fields the snapshot lacks keep their stored value.
	assert.Equal(t, "Kim", *stored.CrownHolder)
	assert.Equal(t, "03/05/2024", *stored.LastAttemptDate)
	assert.Equal(t, "sam", *stored.Dibs)
}

func TestMergeIsIdempotent(t *testing.T) {
	repo := newMemSegments(cachedRow())
	fetcher := &stubFetcher{snaps: map[int64]*Snapshot{12345: freshSnapshot()}}
	svc := NewService(staticToken{token: "tok"}, fetcher, repo)

	_, err := svc.Metadata(context.Background(), 12345)
	require.NoError(t, err)
	first, _ := repo.GetByStravaID(context.Background(), 12345)
	require.Equal(t, 1, repo.patches)

	_, err = svc.Metadata(context.Background(), 12345)
	require.NoError(t, err)
	second, _ := repo.GetByStravaID(context.Background(), 12345)

	assert.Equal(t, 1, repo.patches, "second identical merge must not write")
	assert.Equal(t, first, second)
}

func TestTimesServesCacheWithoutWriting(t *testing.T) {
	repo := newMemSegments(cachedRow())
	fetcher := &stubFetcher{errs: map[int64]error{12345: failure.ErrRateLimited}}
	svc := NewService(staticToken{token: "tok"}, fetcher, repo)

	snap, err := svc.Times(context.Background(), 12345)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, snap.Source)
	assert.Equal(t, 0, repo.patches)
}

func TestTimesWithoutStoredRow(t *testing.T) {
	repo := newMemSegments()
	svc := NewService(staticToken{token: "tok"}, &stubFetcher{snaps: map[int64]*Snapshot{12345: freshSnapshot()}}, repo)

	snap, err := svc.Times(context.Background(), 12345)
	require.NoError(t, err)
	assert.Equal(t, "Hill Climb", snap.SegmentName)
	assert.Empty(t, repo.rows)
}

func TestTimesTokenFailure(t *testing.T) {
	fetcher := &stubFetcher{}
	svc := NewService(staticToken{err: failure.ErrNotConnected}, fetcher, newMemSegments())

	_, err := svc.Times(context.Background(), 12345)
	assert.ErrorIs(t, err, failure.ErrNotConnected)
	assert.Equal(t, 0, fetcher.calls)
}

func TestLoad(t *testing.T) {
	repo := newMemSegments(store.Segment{Name: "existing", StravaSegmentID: int64Ptr(1)})
	fetcher := &stubFetcher{
		snaps: map[int64]*Snapshot{2: {SegmentID: 2, SegmentName: "two", PersonalAttempts: intPtr(3)}},
		errs:  map[int64]error{3: failure.ErrNotFound},
	}
	svc := NewService(staticToken{token: "tok"}, fetcher, repo)

	sum, err := svc.Load(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, LoadSummary{Loaded: 1, Skipped: 1, Failed: 1}, sum)

	two, err := repo.GetByStravaID(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "two", two.Name)
	assert.Equal(t, 3, two.PersonalAttempts)
}

func TestLoadStopsOnAuthExpired(t *testing.T) {
	fetcher := &stubFetcher{errs: map[int64]error{1: failure.ErrAuthExpired, 2: failure.ErrAuthExpired}}
	svc := NewService(staticToken{token: "tok"}, fetcher, newMemSegments())

	_, err := svc.Load(context.Background(), []int64{1, 2})
	assert.ErrorIs(t, err, failure.ErrAuthExpired)
	assert.Equal(t, 1, fetcher.calls)
}

func TestBackfillMapData(t *testing.T) {
	complete := cachedRow()
	complete.StravaSegmentID = int64Ptr(9)
	missing := store.Segment{Name: "needs map", StravaSegmentID: int64Ptr(12345)}
	manual := store.Segment{Name: "manual"}
	repo := newMemSegments(complete, missing, manual)

	snap := freshSnapshot()
	snap.PersonalBestTime = strPtr("1:00")
	svc := NewService(staticToken{token: "tok"}, &stubFetcher{snaps: map[int64]*Snapshot{12345: snap}}, repo)

	sum, err := svc.BackfillMapData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BackfillSummary{Updated: 1}, sum)

	got, _ := repo.GetByStravaID(context.Background(), 12345)
	assert.Equal(t, "new-line", *got.Polyline)
	assert.Equal(t, 37.77, *got.StartLatitude)
	assert.Nil(t, got.PersonalBestTime, "backfill only writes map fields")
}

func TestBackfillNothingMissingSkipsToken(t *testing.T) {
	svc := NewService(staticToken{err: failure.ErrNotConnected}, &stubFetcher{}, newMemSegments())
	sum, err := svc.BackfillMapData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BackfillSummary{}, sum)
}
