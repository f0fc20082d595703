package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/liftx/internal/apperrors"
	"github.com/PortNumber53/liftx/internal/auth"
	"github.com/PortNumber53/liftx/internal/models"
)

// maxJSONBody caps decoded request bodies.
const maxJSONBody = 1 << 20

// writeJSON encodes v as JSON with the provided status code and a JSON content-type.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as {code, kind, message}. Errors that are not
// AppErrors become a 500 and their detail is only logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperrors.As(err)
	if !ok {
		e = apperrors.Internal("Internal server error", err)
	}
	logger := zerolog.Ctx(r.Context())
	if logger.GetLevel() == zerolog.Disabled {
		logger = &log.Logger
	}
	if e.StatusCode >= http.StatusInternalServerError {
		ev := logger.Error().Str("code", e.Code).Str("path", r.URL.Path)
		if e.Internal != nil {
			ev = ev.AnErr("cause", e.Internal)
		}
		ev.Msg(e.Message)
	}
	writeJSON(w, e.StatusCode, e)
}

// requireMethod returns false and writes StatusMethodNotAllowed if r.Method != method.
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// decodeJSON decodes a bounded JSON body, mapping syntax problems to a validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tErr *json.UnmarshalTypeError
		if errors.As(err, &tErr) && tErr.Field != "" {
			return apperrors.Validation(tErr.Field + " has the wrong type")
		}
		return apperrors.Validation("Invalid JSON body")
	}
	return nil
}

// currentUser returns the authenticated user. Routes behind auth.Middleware always have one.
func currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	u, ok := auth.UserFrom(r.Context())
	if !ok {
		writeError(w, r, apperrors.Unauthorized("Authentication required"))
		return nil, false
	}
	return u, true
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, key string) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperrors.Validation(key + " must be an integer")
	}
	return n, nil
}
