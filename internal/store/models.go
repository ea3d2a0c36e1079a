package store

import (
	"regexp"
	"strconv"
	"time"
)

// Credential holds the Strava OAuth tokens for one tenant.
type Credential struct {
	Tenant       string
	AthleteID    *int64
	AccessToken  *string
	RefreshToken *string
	ExpiresAt    *time.Time
	UpdatedAt    time.Time
}

// Connected reports whether the credential carries a usable access token.
func (c *Credential) Connected() bool {
	return c != nil && c.AccessToken != nil && *c.AccessToken != ""
}

// Segment is one tracked Strava segment.
type Segment struct {
	ID               int64      `json:"id"`
	StravaSegmentID  *int64     `json:"strava_segment_id"`
	StravaURL        *string    `json:"strava_url"`
	Name             string     `json:"segment_name"`
	Distance         *float64   `json:"distance"`
	ElevationGain    *float64   `json:"elevation_gain"`
	ElevationLoss    *float64   `json:"elevation_loss"`
	Polyline         *string    `json:"polyline"`
	StartLatitude    *float64   `json:"start_latitude"`
	StartLongitude   *float64   `json:"start_longitude"`
	CrownHolder      *string    `json:"crown_holder"`
	CrownDate        *string    `json:"crown_date"`
	CrownTime        *string    `json:"crown_time"`
	CrownPace        *string    `json:"crown_pace"`
	PersonalBestTime *string    `json:"personal_best_time"`
	PersonalBestPace *string    `json:"personal_best_pace"`
	PersonalAttempts int        `json:"personal_attempts"`
	OverallAttempts  int        `json:"overall_attempts"`
	LastAttemptDate  *string    `json:"last_attempt_date"`
	Dibs             *string    `json:"dibs"`
	Completed        bool       `json:"completed"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// MissingMapData reports whether the polyline or a start coordinate is absent.
func (s *Segment) MissingMapData() bool {
	return s.Polyline == nil || s.StartLatitude == nil || s.StartLongitude == nil
}

// SegmentPatch lists the fields of a partial update. Nil fields are left alone.
type SegmentPatch struct {
	Name             *string
	StravaURL        *string
	Distance         *float64
	ElevationGain    *float64
	ElevationLoss    *float64
	Polyline         *string
	StartLatitude    *float64
	StartLongitude   *float64
	CrownHolder      *string
	CrownDate        *string
	CrownTime        *string
	CrownPace        *string
	PersonalBestTime *string
	PersonalBestPace *string
	PersonalAttempts *int
	OverallAttempts  *int
	LastAttemptDate  *string
	Dibs             *string
	Completed        *bool
}

// Apply copies the non-nil patch fields onto s and reports whether any value changed.
func (s *Segment) Apply(p SegmentPatch) bool {
	changed := false
	if p.Name != nil && *p.Name != s.Name {
		s.Name = *p.Name
		changed = true
	}
	if p.PersonalAttempts != nil && *p.PersonalAttempts != s.PersonalAttempts {
		s.PersonalAttempts = *p.PersonalAttempts
		changed = true
	}
	if p.OverallAttempts != nil && *p.OverallAttempts != s.OverallAttempts {
		s.OverallAttempts = *p.OverallAttempts
		changed = true
	}
	if p.Completed != nil && *p.Completed != s.Completed {
		s.Completed = *p.Completed
		changed = true
	}

	changed = setPtr(&s.StravaURL, p.StravaURL) || changed
	changed = setPtr(&s.Distance, p.Distance) || changed
	changed = setPtr(&s.ElevationGain, p.ElevationGain) || changed
	changed = setPtr(&s.ElevationLoss, p.ElevationLoss) || changed
	changed = setPtr(&s.Polyline, p.Polyline) || changed
	changed = setPtr(&s.StartLatitude, p.StartLatitude) || changed
	changed = setPtr(&s.StartLongitude, p.StartLongitude) || changed
	changed = setPtr(&s.CrownHolder, p.CrownHolder) || changed
	changed = setPtr(&s.CrownDate, p.CrownDate) || changed
	changed = setPtr(&s.CrownTime, p.CrownTime) || changed
	changed = setPtr(&s.CrownPace, p.CrownPace) || changed
	changed = setPtr(&s.PersonalBestTime, p.PersonalBestTime) || changed
	changed = setPtr(&s.PersonalBestPace, p.PersonalBestPace) || changed
	changed = setPtr(&s.LastAttemptDate, p.LastAttemptDate) || changed
	changed = setPtr(&s.Dibs, p.Dibs) || changed
	return changed
}

// Empty reports whether the patch carries no fields.
func (p SegmentPatch) Empty() bool {
	return p == SegmentPatch{}
}

func setPtr[T comparable](dst **T, src *T) bool {
	if src == nil {
		return false
	}
	if *dst != nil && **dst == *src {
		return false
	}
	v := *src
	*dst = &v
	return true
}

// ListFilter narrows List results.
type ListFilter struct {
	Skip      int
	Limit     int
	Completed *bool
}

var segmentIDPattern = regexp.MustCompile(`/segments/(\d+)`)

// ExtractSegmentID pulls the numeric id out of a Strava segment URL.
func ExtractSegmentID(url string) (int64, bool) {
	m := segmentIDPattern.FindStringSubmatch(url)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
