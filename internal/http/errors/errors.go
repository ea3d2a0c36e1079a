// Package errors renders classified failures as JSON error responses.
package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/goccy/go-json"

	"gitea.jw6.us/james/segtrack/internal/failure"
	"gitea.jw6.us/james/segtrack/internal/logging"
	"gitea.jw6.us/james/segtrack/internal/store"
)

// Body is the JSON shape of every error response.
type Body struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// StatusOf maps err onto the HTTP status the API responds with.
func StatusOf(err error) int {
	switch {
	case stderrors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, store.ErrDuplicate):
		return http.StatusConflict
	}
	switch failure.KindOf(err) {
	case failure.KindNotConnected, failure.KindAuthExpired:
		return http.StatusUnauthorized
	case failure.KindNotFound:
		return http.StatusNotFound
	case failure.KindRateLimited:
		return http.StatusTooManyRequests
	case failure.KindTimeout:
		return http.StatusGatewayTimeout
	case failure.KindProvider:
		return http.StatusBadGateway
	case failure.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError logs err with the request id and writes the mapped response.
// Unclassified errors never leak their message to the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	body := Body{Error: codeOf(err), Detail: err.Error()}

	log := logging.Ctx(r.Context())
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		body.Detail = "internal server error"
	} else {
		log.Warn().Err(err).Int("status", status).Str("path", r.URL.Path).Msg("request rejected")
	}

	Write(w, status, body)
}

// BadRequest writes a 400 validation response with a client-facing message.
func BadRequest(w http.ResponseWriter, r *http.Request, msg string, err error) {
	WriteError(w, r, failure.Validation(msg, err))
}

// Write encodes body as JSON with the given status.
func Write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func codeOf(err error) string {
	switch {
	case stderrors.Is(err, store.ErrNotFound):
		return "not_found"
	case stderrors.Is(err, store.ErrDuplicate):
		return "duplicate"
	}
	if kind := failure.KindOf(err); kind != failure.KindUnknown {
		return kind.String()
	}
	return "internal_error"
}
