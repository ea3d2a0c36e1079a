package httpserver

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"gitea.jw6.us/james/segtrack/internal/auth"
	httperrors "gitea.jw6.us/james/segtrack/internal/http/errors"
	"gitea.jw6.us/james/segtrack/internal/logging"
)

// AuthService is the OAuth surface the handlers need.
type AuthService interface {
	AuthorizeURL() string
	Exchange(ctx context.Context, code, state string) error
	Status(ctx context.Context) (auth.Status, error)
	Athlete(ctx context.Context) (*auth.AthleteInfo, error)
	Disconnect(ctx context.Context) error
}

type authHandler struct {
	svc         AuthService
	frontendURL string
}

func (h *authHandler) authorize(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"authorization_url": h.svc.AuthorizeURL()})
}

// callback finishes the consent flow and sends the browser back to the frontend.
func (h *authHandler) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if denied := q.Get("error"); denied != "" {
		logging.Ctx(r.Context()).Info().Str("reason", denied).Msg("strava authorization declined")
		http.Redirect(w, r, h.frontendRedirect("strava_error", denied), http.StatusFound)
		return
	}
	if err := h.svc.Exchange(r.Context(), q.Get("code"), q.Get("state")); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	http.Redirect(w, r, h.frontendRedirect("strava_connected", "true"), http.StatusFound)
}

func (h *authHandler) frontendRedirect(key, value string) string {
	base := strings.TrimRight(h.frontendURL, "/")
	return base + "?" + url.Values{key: {value}}.Encode()
}

func (h *authHandler) status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *authHandler) athlete(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.Athlete(r.Context())
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *authHandler) disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Disconnect(r.Context()); err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "disconnected from strava"})
}
