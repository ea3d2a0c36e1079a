package segments

import (
	"context"
	"errors"

	"gitea.jw6.us/james/segtrack/internal/failure"
	"gitea.jw6.us/james/segtrack/internal/logging"
	"gitea.jw6.us/james/segtrack/internal/metrics"
	"gitea.jw6.us/james/segtrack/internal/store"
)

// SnapshotFetcher produces a Snapshot for a Strava segment id.
type SnapshotFetcher interface {
	Fetch(ctx context.Context, id int64, token string) (*Snapshot, error)
}

// SegmentLookup reads a stored segment by Strava id.
type SegmentLookup interface {
	GetByStravaID(ctx context.Context, stravaID int64) (*store.Segment, error)
}

// Fallback serves the stored row when Strava rate-limits a fetch.
// Every other failure, AuthExpired included, is returned unchanged.
type Fallback struct {
	next SnapshotFetcher
	rows SegmentLookup
}

func NewFallback(next SnapshotFetcher, rows SegmentLookup) *Fallback {
	return &Fallback{next: next, rows: rows}
}

func (f *Fallback) Fetch(ctx context.Context, id int64, token string) (*Snapshot, error) {
	snap, err := f.next.Fetch(ctx, id, token)
	if err == nil || !errors.Is(err, failure.ErrRateLimited) {
		return snap, err
	}

	log := logging.Ctx(ctx)
	row, lerr := f.rows.GetByStravaID(ctx, id)
	if lerr != nil {
		if !errors.Is(lerr, store.ErrNotFound) {
			log.Warn().Err(lerr).Int64("segment_id", id).Msg("fallback lookup failed")
		}
		metrics.Fallback("miss")
		return nil, err
	}

	metrics.Fallback("served")
	log.Info().Int64("segment_id", id).Msg("rate limited, serving stored segment")
	return SnapshotFromSegment(id, row), nil
}

// SnapshotFromSegment builds a cache-sourced Snapshot. GAP and the best
// effort's activity id are not stored, so they are always absent.
func SnapshotFromSegment(id int64, s *store.Segment) *Snapshot {
	snap := &Snapshot{
		SegmentID:        id,
		SegmentName:      s.Name,
		Distance:         s.Distance,
		ElevationGain:    s.ElevationGain,
		StravaURL:        s.StravaURL,
		Polyline:         s.Polyline,
		StartLatitude:    s.StartLatitude,
		StartLongitude:   s.StartLongitude,
		CrownHolder:      s.CrownHolder,
		CrownTime:        s.CrownTime,
		CrownDate:        s.CrownDate,
		CrownPace:        s.CrownPace,
		PersonalBestTime: s.PersonalBestTime,
		PersonalBestPace: s.PersonalBestPace,
		LastAttemptDate:  s.LastAttemptDate,
		Source:           SourceCache,
	}
	if s.PersonalAttempts > 0 {
		n := s.PersonalAttempts
		snap.PersonalAttempts = &n
	}
	return snap
}
