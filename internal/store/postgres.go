package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// credentialRepo implements CredentialRepository.
type credentialRepo struct {
	db     querier
	cipher *TokenCipher
}

func (r *credentialRepo) Get(ctx context.Context, tenant string) (*Credential, error) {
	defer observeDB(ctx, "credentials.get")()

	const q = `SELECT tenant, athlete_id, access_token, refresh_token, expires_at, updated_at
FROM credentials WHERE tenant=$1`
	var c Credential
	err := r.db.QueryRow(ctx, q, tenant).Scan(&c.Tenant, &c.AthleteID, &c.AccessToken, &c.RefreshToken, &c.ExpiresAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}

	if c.AccessToken, err = r.cipher.Open(c.AccessToken); err != nil {
		return nil, err
	}
	if c.RefreshToken, err = r.cipher.Open(c.RefreshToken); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *credentialRepo) Save(ctx context.Context, c Credential) error {
	defer observeDB(ctx, "credentials.save")()

	access, err := r.cipher.Seal(c.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := r.cipher.Seal(c.RefreshToken)
	if err != nil {
		return err
	}

	const q = `INSERT INTO credentials (tenant, athlete_id, access_token, refresh_token, expires_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (tenant) DO UPDATE SET
    athlete_id = COALESCE(EXCLUDED.athlete_id, credentials.athlete_id),
    access_token = EXCLUDED.access_token,
    refresh_token = EXCLUDED.refresh_token,
    expires_at = EXCLUDED.expires_at,
    updated_at = NOW()`
	if _, err := r.db.Exec(ctx, q, c.Tenant, c.AthleteID, access, refresh, c.ExpiresAt); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (r *credentialRepo) Clear(ctx context.Context, tenant string) error {
	defer observeDB(ctx, "credentials.clear")()

	const q = `UPDATE credentials
SET access_token=NULL, refresh_token=NULL, expires_at=NULL, updated_at=NOW()
WHERE tenant=$1`
	if _, err := r.db.Exec(ctx, q, tenant); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

// segmentRepo implements SegmentRepository.
type segmentRepo struct {
	db querier
}

const segmentColumns = `id, strava_segment_id, strava_url, segment_name, distance, elevation_gain, elevation_loss,
    polyline, start_latitude, start_longitude, crown_holder, crown_date, crown_time, crown_pace,
    personal_best_time, personal_best_pace, personal_attempts, overall_attempts, last_attempt_date,
    dibs, completed, created_at, updated_at`

func scanSegment(row pgx.Row) (*Segment, error) {
	var s Segment
	err := row.Scan(
		&s.ID, &s.StravaSegmentID, &s.StravaURL, &s.Name, &s.Distance, &s.ElevationGain, &s.ElevationLoss,
		&s.Polyline, &s.StartLatitude, &s.StartLongitude, &s.CrownHolder, &s.CrownDate, &s.CrownTime, &s.CrownPace,
		&s.PersonalBestTime, &s.PersonalBestPace, &s.PersonalAttempts, &s.OverallAttempts, &s.LastAttemptDate,
		&s.Dibs, &s.Completed, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *segmentRepo) Create(ctx context.Context, s Segment) (*Segment, error) {
	defer observeDB(ctx, "segments.create")()

	if s.StravaSegmentID == nil && s.StravaURL != nil {
		if id, ok := ExtractSegmentID(*s.StravaURL); ok {
			s.StravaSegmentID = &id
		}
	}

	if s.StravaSegmentID != nil {
		if exists, err := r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM segments WHERE strava_segment_id=$1)`, *s.StravaSegmentID); err != nil {
			return nil, err
		} else if exists {
			return nil, ErrDuplicate
		}
	}
	if s.StravaURL != nil && *s.StravaURL != "" {
		if exists, err := r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM segments WHERE strava_url=$1)`, *s.StravaURL); err != nil {
			return nil, err
		} else if exists {
			return nil, ErrDuplicate
		}
	}

	q := `INSERT INTO segments (strava_segment_id, strava_url, segment_name, distance, elevation_gain, elevation_loss,
    polyline, start_latitude, start_longitude, crown_holder, crown_date, crown_time, crown_pace,
    personal_best_time, personal_best_pace, personal_attempts, overall_attempts, last_attempt_date, dibs, completed)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
RETURNING ` + segmentColumns
	created, err := scanSegment(r.db.QueryRow(ctx, q,
		s.StravaSegmentID, s.StravaURL, s.Name, s.Distance, s.ElevationGain, s.ElevationLoss,
		s.Polyline, s.StartLatitude, s.StartLongitude, s.CrownHolder, s.CrownDate, s.CrownTime, s.CrownPace,
		s.PersonalBestTime, s.PersonalBestPace, s.PersonalAttempts, s.OverallAttempts, s.LastAttemptDate, s.Dibs, s.Completed,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("create segment: %w", err)
	}
	return created, nil
}

func (r *segmentRepo) exists(ctx context.Context, q string, arg any) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, q, arg).Scan(&exists); err != nil {
		return false, fmt.Errorf("check duplicate segment: %w", err)
	}
	return exists, nil
}

func (r *segmentRepo) GetByID(ctx context.Context, id int64) (*Segment, error) {
	defer observeDB(ctx, "segments.get_by_id")()
	return r.getOne(ctx, `SELECT `+segmentColumns+` FROM segments WHERE id=$1`, id)
}

func (r *segmentRepo) GetByStravaID(ctx context.Context, stravaID int64) (*Segment, error) {
	defer observeDB(ctx, "segments.get_by_strava_id")()
	return r.getOne(ctx, `SELECT `+segmentColumns+` FROM segments WHERE strava_segment_id=$1`, stravaID)
}

func (r *segmentRepo) getOne(ctx context.Context, q string, arg any) (*Segment, error) {
	s, err := scanSegment(r.db.QueryRow(ctx, q, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}
	return s, nil
}

func (r *segmentRepo) List(ctx context.Context, f ListFilter) ([]Segment, error) {
	defer observeDB(ctx, "segments.list")()

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	skip := f.Skip
	if skip < 0 {
		skip = 0
	}

	q := `SELECT ` + segmentColumns + ` FROM segments
WHERE ($3::boolean IS NULL OR completed = $3)
ORDER BY id
OFFSET $1 LIMIT $2`
	return r.query(ctx, q, skip, limit, f.Completed)
}

func (r *segmentRepo) ListMissingMap(ctx context.Context) ([]Segment, error) {
	defer observeDB(ctx, "segments.list_missing_map")()

	q := `SELECT ` + segmentColumns + ` FROM segments
WHERE strava_segment_id IS NOT NULL
  AND (polyline IS NULL OR start_latitude IS NULL OR start_longitude IS NULL)
ORDER BY id`
	return r.query(ctx, q)
}

func (r *segmentRepo) query(ctx context.Context, q string, args ...any) ([]Segment, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var result []Segment
	for rows.Next() {
		s, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	return result, nil
}

func (r *segmentRepo) Patch(ctx context.Context, id int64, p SegmentPatch) (*Segment, error) {
	defer observeDB(ctx, "segments.patch")()

	var stravaID *int64
	if p.StravaURL != nil {
		if v, ok := ExtractSegmentID(*p.StravaURL); ok {
			stravaID = &v
		}
	}

	q := `UPDATE segments SET
    segment_name = COALESCE($2, segment_name),
    strava_url = COALESCE($3, strava_url),
    strava_segment_id = COALESCE(strava_segment_id, $4),
    distance = COALESCE($5, distance),
    elevation_gain = COALESCE($6, elevation_gain),
    elevation_loss = COALESCE($7, elevation_loss),
    polyline = COALESCE($8, polyline),
    start_latitude = COALESCE($9, start_latitude),
    start_longitude = COALESCE($10, start_longitude),
    crown_holder = COALESCE($11, crown_holder),
    crown_date = COALESCE($12, crown_date),
    crown_time = COALESCE($13, crown_time),
    crown_pace = COALESCE($14, crown_pace),
    personal_best_time = COALESCE($15, personal_best_time),
    personal_best_pace = COALESCE($16, personal_best_pace),
    personal_attempts = COALESCE($17, personal_attempts),
    overall_attempts = COALESCE($18, overall_attempts),
    last_attempt_date = COALESCE($19, last_attempt_date),
    dibs = COALESCE($20, dibs),
    completed = COALESCE($21, completed),
    updated_at = $22
WHERE id=$1
RETURNING ` + segmentColumns
	s, err := scanSegment(r.db.QueryRow(ctx, q, id,
		p.Name, p.StravaURL, stravaID, p.Distance, p.ElevationGain, p.ElevationLoss,
		p.Polyline, p.StartLatitude, p.StartLongitude, p.CrownHolder, p.CrownDate, p.CrownTime, p.CrownPace,
		p.PersonalBestTime, p.PersonalBestPace, p.PersonalAttempts, p.OverallAttempts, p.LastAttemptDate,
		p.Dibs, p.Completed, time.Now().UTC(),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("patch segment: %w", err)
	}
	return s, nil
}

func (r *segmentRepo) ToggleCompleted(ctx context.Context, id int64) (*Segment, error) {
	defer observeDB(ctx, "segments.toggle_completed")()

	q := `UPDATE segments SET completed = NOT completed, updated_at = NOW() WHERE id=$1 RETURNING ` + segmentColumns
	s, err := scanSegment(r.db.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("toggle segment: %w", err)
	}
	return s, nil
}

func (r *segmentRepo) Delete(ctx context.Context, id int64) error {
	defer observeDB(ctx, "segments.delete")()

	tag, err := r.db.Exec(ctx, `DELETE FROM segments WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete segment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
