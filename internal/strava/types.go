package strava

import "strings"

// SegmentDetail is the subset of GET /segments/{id} the fetcher reads.
// Raw keeps the full decoded payload for map data extraction.
type SegmentDetail struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	Distance      *float64 `json:"distance"`
	ElevationHigh *float64 `json:"elevation_high"`
	ElevationLow  *float64 `json:"elevation_low"`

	Raw map[string]any `json:"-"`
}

// LeaderboardEntry is one row of the segment leaderboard.
type LeaderboardEntry struct {
	AthleteName string `json:"athlete_name"`
	ElapsedTime int    `json:"elapsed_time"`
	StartDate   string `json:"start_date"`
}

type leaderboard struct {
	Entries []LeaderboardEntry `json:"entries"`
}

// Effort is one of the authenticated athlete's attempts on a segment.
type Effort struct {
	ElapsedTime int    `json:"elapsed_time"`
	StartDate   string `json:"start_date"`
	Activity    *struct {
		ID int64 `json:"id"`
	} `json:"activity"`
}

// ActivityID returns the id of the activity the effort belongs to.
func (e Effort) ActivityID() (int64, bool) {
	if e.Activity == nil || e.Activity.ID == 0 {
		return 0, false
	}
	return e.Activity.ID, true
}

// Athlete is the authenticated athlete profile.
type Athlete struct {
	ID        int64  `json:"id"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
}

// FullName joins first and last name.
func (a Athlete) FullName() string {
	return strings.TrimSpace(a.Firstname + " " + a.Lastname)
}
