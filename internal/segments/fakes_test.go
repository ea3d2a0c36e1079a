package segments

import (
	"context"
	"sort"
	"sync"

	"gitea.jw6.us/james/segtrack/internal/store"
	"gitea.jw6.us/james/segtrack/internal/strava"
)

type fakeProvider struct {
	segment        *strava.SegmentDetail
	segmentErr     error
	entries        []strava.LeaderboardEntry
	leaderboardErr error
	efforts        []strava.Effort
	effortsErr     error
}

func (f *fakeProvider) Segment(ctx context.Context, token string, id int64) (*strava.SegmentDetail, error) {
	if f.segmentErr != nil {
		return nil, f.segmentErr
	}
	return f.segment, nil
}

func (f *fakeProvider) Leaderboard(ctx context.Context, token string, id int64) ([]strava.LeaderboardEntry, error) {
	return f.entries, f.leaderboardErr
}

func (f *fakeProvider) Efforts(ctx context.Context, token string, id int64) ([]strava.Effort, error) {
	return f.efforts, f.effortsErr
}

type stubFetcher struct {
	snaps map[int64]*Snapshot
	errs  map[int64]error
	calls int
}

func (s *stubFetcher) Fetch(ctx context.Context, id int64, token string) (*Snapshot, error) {
	s.calls++
	if err := s.errs[id]; err != nil {
		return nil, err
	}
	snap := *s.snaps[id]
	return &snap, nil
}

type staticToken struct {
	token string
	err   error
}

func (s staticToken) AccessToken(ctx context.Context) (string, error) { return s.token, s.err }

// memSegments is an in-memory SegmentRepository.
type memSegments struct {
	mu      sync.Mutex
	rows    map[int64]store.Segment
	nextID  int64
	patches int
}

func newMemSegments(rows ...store.Segment) *memSegments {
	m := &memSegments{rows: map[int64]store.Segment{}}
	for _, r := range rows {
		m.nextID++
		r.ID = m.nextID
		m.rows[r.ID] = r
	}
	return m
}

func (m *memSegments) Create(ctx context.Context, s store.Segment) (*store.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if s.StravaSegmentID != nil && r.StravaSegmentID != nil && *r.StravaSegmentID == *s.StravaSegmentID {
			return nil, store.ErrDuplicate
		}
	}
	m.nextID++
	s.ID = m.nextID
	m.rows[s.ID] = s
	return &s, nil
}

func (m *memSegments) GetByID(ctx context.Context, id int64) (*store.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (m *memSegments) GetByStravaID(ctx context.Context, stravaID int64) (*store.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.StravaSegmentID != nil && *r.StravaSegmentID == stravaID {
			return &r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memSegments) List(ctx context.Context, f store.ListFilter) ([]store.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Segment
	for _, r := range m.rows {
		if f.Completed == nil || r.Completed == *f.Completed {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memSegments) Patch(ctx context.Context, id int64, p store.SegmentPatch) (*store.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	m.patches++
	r.Apply(p)
	m.rows[id] = r
	return &r, nil
}

func (m *memSegments) ToggleCompleted(ctx context.Context, id int64) (*store.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	r.Completed = !r.Completed
	m.rows[id] = r
	return &r, nil
}

func (m *memSegments) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memSegments) ListMissingMap(ctx context.Context) ([]store.Segment, error) {
	all, _ := m.List(ctx, store.ListFilter{})
	var out []store.Segment
	for _, r := range all {
		if r.StravaSegmentID != nil && r.MissingMapData() {
			out = append(out, r)
		}
	}
	return out, nil
}

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }
