package httpserver

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	httperrors "gitea.jw6.us/james/segtrack/internal/http/errors"
	"gitea.jw6.us/james/segtrack/internal/segments"
	"gitea.jw6.us/james/segtrack/internal/strava"
)

// SegmentService fetches live segment snapshots.
type SegmentService interface {
	Times(ctx context.Context, id int64) (*segments.Snapshot, error)
	Metadata(ctx context.Context, id int64) (*segments.Snapshot, error)
}

type segmentHandler struct {
	svc SegmentService
}

func (h *segmentHandler) times(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.svc.Times)
}

func (h *segmentHandler) metadata(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.svc.Metadata)
}

func (h *segmentHandler) serve(w http.ResponseWriter, r *http.Request, fetch func(context.Context, int64) (*segments.Snapshot, error)) {
	id, err := strava.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	snap, err := fetch(r.Context(), id)
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
