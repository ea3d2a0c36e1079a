package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	httperrors "gitea.jw6.us/james/segtrack/internal/http/errors"
	"gitea.jw6.us/james/segtrack/internal/logging"
	"gitea.jw6.us/james/segtrack/internal/store"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// itemRequest is the body of item create and update calls. Absent fields
// are left untouched on update.
type itemRequest struct {
	SegmentName      *string  `json:"segment_name" validate:"omitempty,max=255"`
	StravaURL        *string  `json:"strava_url" validate:"omitempty,url,max=2048"`
	Distance         *float64 `json:"distance" validate:"omitempty,gte=0"`
	ElevationGain    *float64 `json:"elevation_gain" validate:"omitempty,gte=0"`
	ElevationLoss    *float64 `json:"elevation_loss" validate:"omitempty,gte=0"`
	Polyline         *string  `json:"polyline"`
	StartLatitude    *float64 `json:"start_latitude" validate:"omitempty,latitude"`
	StartLongitude   *float64 `json:"start_longitude" validate:"omitempty,longitude"`
	CrownHolder      *string  `json:"crown_holder" validate:"omitempty,max=255"`
	CrownDate        *string  `json:"crown_date" validate:"omitempty,max=32"`
	CrownTime        *string  `json:"crown_time" validate:"omitempty,max=32"`
	CrownPace        *string  `json:"crown_pace" validate:"omitempty,max=32"`
	PersonalBestTime *string  `json:"personal_best_time" validate:"omitempty,max=32"`
	PersonalBestPace *string  `json:"personal_best_pace" validate:"omitempty,max=32"`
	PersonalAttempts *int     `json:"personal_attempts" validate:"omitempty,gte=0"`
	OverallAttempts  *int     `json:"overall_attempts" validate:"omitempty,gte=0"`
	LastAttemptDate  *string  `json:"last_attempt_date" validate:"omitempty,max=32"`
	Dibs             *string  `json:"dibs" validate:"omitempty,max=255"`
	Completed        *bool    `json:"completed"`
}

func (req *itemRequest) patch() store.SegmentPatch {
	return store.SegmentPatch{
		Name:             req.SegmentName,
		StravaURL:        req.StravaURL,
		Distance:         req.Distance,
		ElevationGain:    req.ElevationGain,
		ElevationLoss:    req.ElevationLoss,
		Polyline:         req.Polyline,
		StartLatitude:    req.StartLatitude,
		StartLongitude:   req.StartLongitude,
		CrownHolder:      req.CrownHolder,
		CrownDate:        req.CrownDate,
		CrownTime:        req.CrownTime,
		CrownPace:        req.CrownPace,
		PersonalBestTime: req.PersonalBestTime,
		PersonalBestPace: req.PersonalBestPace,
		PersonalAttempts: req.PersonalAttempts,
		OverallAttempts:  req.OverallAttempts,
		LastAttemptDate:  req.LastAttemptDate,
		Dibs:             req.Dibs,
		Completed:        req.Completed,
	}
}

func (req *itemRequest) segment() store.Segment {
	var seg store.Segment
	seg.Apply(req.patch())
	return seg
}

type itemHandler struct {
	items store.SegmentRepository
}

func (h *itemHandler) create(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeBody(w, r, &req); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	if req.SegmentName == nil || strings.TrimSpace(*req.SegmentName) == "" {
		httperrors.BadRequest(w, r, "segment_name is required", nil)
		return
	}

	created, err := h.items.Create(r.Context(), req.segment())
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().Int64("item_id", created.ID).Msg("item created")
	writeJSON(w, http.StatusCreated, created)
}

func (h *itemHandler) list(w http.ResponseWriter, r *http.Request) {
	skip, err := intQuery(r, "skip", 0)
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit", defaultListLimit)
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	completed, err := boolQuery(r, "completed")
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}

	rows, err := h.items.List(r.Context(), store.ListFilter{Skip: skip, Limit: limit, Completed: completed})
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	if rows == nil {
		rows = []store.Segment{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *itemHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	row, err := h.items.GetByID(r.Context(), id)
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (h *itemHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	var req itemRequest
	if err := decodeBody(w, r, &req); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	if req.SegmentName != nil && strings.TrimSpace(*req.SegmentName) == "" {
		httperrors.BadRequest(w, r, "segment_name must not be blank", nil)
		return
	}

	p := req.patch()
	var row *store.Segment
	if p.Empty() {
		row, err = h.items.GetByID(r.Context(), id)
	} else {
		row, err = h.items.Patch(r.Context(), id, p)
	}
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (h *itemHandler) toggleComplete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	row, err := h.items.ToggleCompleted(r.Context(), id)
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (h *itemHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	if err := h.items.Delete(r.Context(), id); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "item deleted"})
}

// mapGeoJSON exports the start point of every located item, optionally
// narrowed by the completed filter.
func (h *itemHandler) mapGeoJSON(w http.ResponseWriter, r *http.Request) {
	completed, err := boolQuery(r, "completed")
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}

	fc := geojson.NewFeatureCollection()
	for skip := 0; ; skip += maxListLimit {
		rows, err := h.items.List(r.Context(), store.ListFilter{Skip: skip, Limit: maxListLimit, Completed: completed})
		if err != nil {
			httperrors.WriteError(w, r, err)
			return
		}
		for i := range rows {
			if f := featureOf(&rows[i]); f != nil {
				fc.Append(f)
			}
		}
		if len(rows) < maxListLimit {
			break
		}
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		httperrors.WriteError(w, r, fmt.Errorf("encode geojson: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func featureOf(s *store.Segment) *geojson.Feature {
	if s.StartLatitude == nil || s.StartLongitude == nil {
		return nil
	}
	f := geojson.NewFeature(orb.Point{*s.StartLongitude, *s.StartLatitude})
	f.ID = s.ID
	f.Properties["segment_name"] = s.Name
	f.Properties["completed"] = s.Completed
	if s.StravaSegmentID != nil {
		f.Properties["strava_segment_id"] = *s.StravaSegmentID
	}
	if s.Polyline != nil {
		f.Properties["polyline"] = *s.Polyline
	}
	if s.Dibs != nil {
		f.Properties["dibs"] = *s.Dibs
	}
	return f
}
