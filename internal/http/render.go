package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"gitea.jw6.us/james/segtrack/internal/failure"
	httperrors "gitea.jw6.us/james/segtrack/internal/http/errors"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	httperrors.Write(w, status, v)
}

// decodeBody reads a JSON request body into dst and validates it.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return failure.Validation("request body is required", nil)
		}
		return failure.Validation("invalid json body", err)
	}
	if err := validate.Struct(dst); err != nil {
		return validationFailure(err)
	}
	return nil
}

func validationFailure(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return failure.Validation("invalid request", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return failure.New(failure.KindValidation, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "url":
		return fe.Field() + " must be a valid url"
	case "latitude":
		return fe.Field() + " must be between -90 and 90"
	case "longitude":
		return fe.Field() + " must be between -180 and 180"
	case "gte", "gt", "lte", "lt", "min", "max":
		return fmt.Sprintf("%s fails %s=%s", fe.Field(), fe.Tag(), fe.Param())
	default:
		return fe.Field() + " is invalid"
	}
}

func idParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, failure.Validation(fmt.Sprintf("invalid id %q", raw), nil)
	}
	return id, nil
}

func intQuery(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, failure.Validation(fmt.Sprintf("%s must be a non-negative integer", key), nil)
	}
	return v, nil
}

func boolQuery(r *http.Request, key string) (*bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, failure.Validation(fmt.Sprintf("%s must be a boolean", key), nil)
	}
	return &v, nil
}
