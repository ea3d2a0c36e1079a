package segments

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"gitea.jw6.us/james/segtrack/internal/failure"
	"gitea.jw6.us/james/segtrack/internal/logging"
	"gitea.jw6.us/james/segtrack/internal/strava"
)

// Snapshot sources.
const (
	SourceProvider = "provider"
	SourceCache    = "cache"
)

// Snapshot is the normalized segment state returned to callers.
type Snapshot struct {
	SegmentID              int64    `json:"segment_id"`
	SegmentName            string   `json:"segment_name"`
	Distance               *float64 `json:"distance"`
	ElevationGain          *float64 `json:"elevation_gain"`
	StravaURL              *string  `json:"strava_url"`
	Polyline               *string  `json:"polyline"`
	StartLatitude          *float64 `json:"start_latitude"`
	StartLongitude         *float64 `json:"start_longitude"`
	CrownHolder            *string  `json:"crown_holder"`
	CrownTime              *string  `json:"crown_time"`
	CrownDate              *string  `json:"crown_date"`
	CrownPace              *string  `json:"crown_pace"`
	PersonalBestTime       *string  `json:"personal_best_time"`
	PersonalBestPace       *string  `json:"personal_best_pace"`
	PersonalBestGAP        *string  `json:"personal_best_grade_adjusted_pace"`
	PersonalAttempts       *int     `json:"personal_attempts"`
	LastAttemptDate        *string  `json:"last_attempt_date"`
	PersonalBestActivityID *int64   `json:"personal_best_activity_id"`
	Source                 string   `json:"source"`
}

// Provider is the subset of the Strava client the fetcher calls.
type Provider interface {
	Segment(ctx context.Context, token string, id int64) (*strava.SegmentDetail, error)
	Leaderboard(ctx context.Context, token string, id int64) ([]strava.LeaderboardEntry, error)
	Efforts(ctx context.Context, token string, id int64) ([]strava.Effort, error)
}

// Fetcher assembles a Snapshot from the segment, leaderboard, and efforts endpoints.
type Fetcher struct {
	provider Provider
	gap      GAPModel
}

func NewFetcher(p Provider, gap GAPModel) *Fetcher {
	return &Fetcher{provider: p, gap: gap}
}

// Fetch requires the segment detail call to succeed. The leaderboard is
// best-effort. Efforts failures degrade the personal fields, except
// AuthExpired and RateLimited which are returned.
func (f *Fetcher) Fetch(ctx context.Context, id int64, token string) (*Snapshot, error) {
	detail, err := f.provider.Segment(ctx, token, id)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		SegmentID:   id,
		SegmentName: detail.Name,
		StravaURL:   strPtr(fmt.Sprintf("https://www.strava.com/segments/%d", id)),
		Source:      SourceProvider,
	}

	var distanceM float64
	if detail.Distance != nil && *detail.Distance > 0 {
		distanceM = *detail.Distance
		snap.Distance = floatPtr(round(distanceM/metersPerMile, 2))
	}
	gainM, gainKnown := elevationGain(detail)
	if gainKnown && gainM > 0 {
		snap.ElevationGain = floatPtr(round(gainM*feetPerMeter, 1))
	}

	m := ExtractMapFields(detail.Raw)
	snap.Polyline, snap.StartLatitude, snap.StartLongitude = m.Polyline, m.StartLatitude, m.StartLongitude

	log := logging.Ctx(ctx).With().Int64("segment_id", id).Logger()

	var (
		entries []strava.LeaderboardEntry
		efforts []strava.Effort
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e, err := f.provider.Leaderboard(gctx, token, id)
		if err != nil {
			log.Debug().Err(err).Msg("leaderboard unavailable")
			return nil
		}
		entries = e
		return nil
	})
	g.Go(func() error {
		e, err := f.provider.Efforts(gctx, token, id)
		if err != nil {
			if errors.Is(err, failure.ErrAuthExpired) || errors.Is(err, failure.ErrRateLimited) {
				return err
			}
			log.Warn().Err(err).Msg("efforts unavailable")
			return nil
		}
		efforts = e
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	applyCrown(snap, entries, distanceM)
	f.applyEfforts(snap, efforts, distanceM, gainM, gainKnown)
	return snap, nil
}

// elevationGain is unknown when either bound is missing.
func elevationGain(d *strava.SegmentDetail) (float64, bool) {
	if d.ElevationHigh == nil || d.ElevationLow == nil {
		return 0, false
	}
	return math.Max(*d.ElevationHigh-*d.ElevationLow, 0), true
}

func applyCrown(snap *Snapshot, entries []strava.LeaderboardEntry, distanceM float64) {
	if len(entries) == 0 {
		return
	}
	top := entries[0]
	if top.AthleteName == "" || top.ElapsedTime <= 0 {
		return
	}
	snap.CrownHolder = strPtr(top.AthleteName)
	snap.CrownTime = strPtr(FormatMSS(float64(top.ElapsedTime)))
	if pace, ok := paceSecondsPerMile(top.ElapsedTime, distanceM); ok {
		snap.CrownPace = strPtr(FormatMSS(pace))
	}
	snap.CrownDate = formatDate(top.StartDate)
}

func (f *Fetcher) applyEfforts(snap *Snapshot, efforts []strava.Effort, distanceM, gainM float64, gainKnown bool) {
	if len(efforts) == 0 {
		return
	}
	attempts := len(efforts)
	snap.PersonalAttempts = &attempts

	var best *strava.Effort
	for i := range efforts {
		e := &efforts[i]
		if e.ElapsedTime > 0 && (best == nil || e.ElapsedTime < best.ElapsedTime) {
			best = e
		}
	}
	if best != nil {
		snap.PersonalBestTime = strPtr(FormatMSS(float64(best.ElapsedTime)))
		if id, ok := best.ActivityID(); ok {
			snap.PersonalBestActivityID = &id
		}
		if pace, ok := paceSecondsPerMile(best.ElapsedTime, distanceM); ok {
			snap.PersonalBestPace = strPtr(FormatMSS(pace))
			if gainKnown {
				snap.PersonalBestGAP = strPtr(FormatMSS(f.gap.Adjust(pace, gainM, distanceM)))
			}
		}
	}

	var latest string
	var latestAt int64
	for _, e := range efforts {
		t, ok := parseStartDate(e.StartDate)
		if !ok {
			continue
		}
		if latest == "" || t.Unix() > latestAt {
			latest, latestAt = e.StartDate, t.Unix()
		}
	}
	snap.LastAttemptDate = formatDate(latest)
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }
