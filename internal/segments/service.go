package segments

import (
	"context"
	"errors"
	"fmt"

	"gitea.jw6.us/james/segtrack/internal/failure"
	"gitea.jw6.us/james/segtrack/internal/logging"
	"gitea.jw6.us/james/segtrack/internal/store"
)

// TokenSource yields a valid Strava access token for the tenant in ctx.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Service ties tokens, fetching, and stored segments together.
type Service struct {
	tokens   TokenSource
	fetcher  SnapshotFetcher
	fallback *Fallback
	segments store.SegmentRepository
}

func NewService(tokens TokenSource, fetcher SnapshotFetcher, segments store.SegmentRepository) *Service {
	return &Service{
		tokens:   tokens,
		fetcher:  fetcher,
		fallback: NewFallback(fetcher, segments),
		segments: segments,
	}
}

type patchScope int

const (
	scopeTimes patchScope = iota
	scopeMetadata
	scopeMap
)

// Times returns personal and crown times, merging fresh values into the stored row.
func (s *Service) Times(ctx context.Context, id int64) (*Snapshot, error) {
	return s.fetchAndMerge(ctx, id, scopeTimes)
}

// Metadata returns descriptive segment data, merging fresh values into the stored row.
func (s *Service) Metadata(ctx context.Context, id int64) (*Snapshot, error) {
	return s.fetchAndMerge(ctx, id, scopeMetadata)
}

func (s *Service) fetchAndMerge(ctx context.Context, id int64, scope patchScope) (*Snapshot, error) {
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.fallback.Fetch(ctx, id, token)
	if err != nil {
		return nil, err
	}
	if snap.Source == SourceProvider {
		if _, err := s.merge(ctx, snap, scope); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Int64("segment_id", id).Msg("merge fetched segment")
		}
	}
	return snap, nil
}

// merge writes non-null snapshot fields into the row for the snapshot's id.
// It reports whether a write happened.
func (s *Service) merge(ctx context.Context, snap *Snapshot, scope patchScope) (bool, error) {
	row, err := s.segments.GetByStravaID(ctx, snap.SegmentID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.mergeInto(ctx, row, snap, scope)
}

func (s *Service) mergeInto(ctx context.Context, row *store.Segment, snap *Snapshot, scope patchScope) (bool, error) {
	patch := patchFor(snap, scope)
	if !row.Apply(patch) {
		return false, nil
	}
	if _, err := s.segments.Patch(ctx, row.ID, patch); err != nil {
		return false, err
	}
	return true, nil
}

func patchFor(snap *Snapshot, scope patchScope) store.SegmentPatch {
	p := store.SegmentPatch{
		Polyline:       snap.Polyline,
		StartLatitude:  snap.StartLatitude,
		StartLongitude: snap.StartLongitude,
	}
	if scope == scopeMap {
		return p
	}

	p.CrownHolder = snap.CrownHolder
	p.CrownTime = snap.CrownTime
	p.CrownDate = snap.CrownDate
	p.CrownPace = snap.CrownPace

	switch scope {
	case scopeTimes:
		p.PersonalBestTime = snap.PersonalBestTime
		p.PersonalBestPace = snap.PersonalBestPace
		p.PersonalAttempts = snap.PersonalAttempts
		p.LastAttemptDate = snap.LastAttemptDate
	case scopeMetadata:
		if snap.SegmentName != "" {
			p.Name = &snap.SegmentName
		}
		p.Distance = snap.Distance
		p.ElevationGain = snap.ElevationGain
		p.StravaURL = snap.StravaURL
	}
	return p
}

// LoadSummary counts the outcome of a bulk load.
type LoadSummary struct {
	Loaded  int `json:"loaded"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Load adds every id not already stored. Per-id fetch failures are counted;
// a lost or expired connection stops the run.
func (s *Service) Load(ctx context.Context, ids []int64) (LoadSummary, error) {
	var sum LoadSummary
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return sum, err
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		log := logging.Ctx(ctx).With().Int64("segment_id", id).Logger()

		if _, err := s.segments.GetByStravaID(ctx, id); err == nil {
			sum.Skipped++
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return sum, fmt.Errorf("check segment %d: %w", id, err)
		}

		snap, err := s.fetcher.Fetch(ctx, id, token)
		if err != nil {
			if errors.Is(err, failure.ErrAuthExpired) {
				return sum, err
			}
			log.Warn().Err(err).Msg("load segment failed")
			sum.Failed++
			continue
		}

		if _, err := s.segments.Create(ctx, segmentFromSnapshot(snap)); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				sum.Skipped++
				continue
			}
			log.Warn().Err(err).Msg("store segment failed")
			sum.Failed++
			continue
		}
		log.Info().Str("name", snap.SegmentName).Msg("loaded segment")
		sum.Loaded++
	}
	return sum, nil
}

func segmentFromSnapshot(snap *Snapshot) store.Segment {
	id := snap.SegmentID
	seg := store.Segment{
		StravaSegmentID:  &id,
		StravaURL:        snap.StravaURL,
		Name:             snap.SegmentName,
		Distance:         snap.Distance,
		ElevationGain:    snap.ElevationGain,
		Polyline:         snap.Polyline,
		StartLatitude:    snap.StartLatitude,
		StartLongitude:   snap.StartLongitude,
		CrownHolder:      snap.CrownHolder,
		CrownDate:        snap.CrownDate,
		CrownTime:        snap.CrownTime,
		CrownPace:        snap.CrownPace,
		PersonalBestTime: snap.PersonalBestTime,
		PersonalBestPace: snap.PersonalBestPace,
		LastAttemptDate:  snap.LastAttemptDate,
	}
	if snap.PersonalAttempts != nil {
		seg.PersonalAttempts = *snap.PersonalAttempts
	}
	return seg
}

// BackfillSummary counts the outcome of a map data backfill.
type BackfillSummary struct {
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// BackfillMapData fetches map data for stored segments missing a polyline or
// start coordinates.
func (s *Service) BackfillMapData(ctx context.Context) (BackfillSummary, error) {
	var sum BackfillSummary
	rows, err := s.segments.ListMissingMap(ctx)
	if err != nil {
		return sum, err
	}
	if len(rows) == 0 {
		return sum, nil
	}
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return sum, err
	}

	for i := range rows {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		row := &rows[i]
		log := logging.Ctx(ctx).With().Int64("segment_id", *row.StravaSegmentID).Logger()

		snap, err := s.fetcher.Fetch(ctx, *row.StravaSegmentID, token)
		if err != nil {
			if errors.Is(err, failure.ErrAuthExpired) {
				return sum, err
			}
			log.Warn().Err(err).Msg("backfill fetch failed")
			sum.Failed++
			continue
		}

		wrote, err := s.mergeInto(ctx, row, snap, scopeMap)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("backfill write failed")
			sum.Failed++
		case wrote:
			sum.Updated++
		default:
			sum.Unchanged++
		}
	}
	return sum, nil
}
