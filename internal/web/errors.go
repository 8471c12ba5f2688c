package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/spendlog/spendlog/internal/importer"
	"github.com/spendlog/spendlog/internal/logging"
	"github.com/spendlog/spendlog/internal/store"
)

type contextKey string

const userIDKey contextKey = "userID"

// requireUser resolves the caller's identity from the X-User-ID header.
// Authentication itself lives in a fronting gateway; this service trusts
// the header and only insists it is present.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if uid == "" {
			writeError(w, r, http.StatusUnauthorized, "missing X-User-ID header")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userID returns the caller id set by requireUser.
func userID(r *http.Request) string {
	uid, _ := r.Context().Value(userIDKey).(string)
	return uid
}

// ErrorResponse is the JSON body for all error statuses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v with the given status. Encoding failures after the
// header is written can only be logged.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error body with the given status and logs it
// with the request id for correlation.
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	logging.FromContext(r.Context()).Warn("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", msg,
	)
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// respondError maps a service error to an HTTP status. Row-level import
// errors never reach here; only session lookups, lifecycle conflicts and
// fatal pipeline failures do.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, importer.ErrSessionNotFound), errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, importer.ErrRunActive), errors.Is(err, importer.ErrWrongState):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, importer.ErrInvalidOptions):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case importer.IsFatal(err):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to send.
		return
	default:
		logError(r, err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

// logError records an error that produced no client-visible failure, such
// as a write error midway through a streamed download.
func logError(r *http.Request, err error) {
	logging.FromContext(r.Context()).Error("request failed",
		"path", r.URL.Path,
		"method", r.Method,
		"error", err,
	)
}
