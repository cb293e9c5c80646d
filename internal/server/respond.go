package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	remember "github.com/eugener/remember/internal"
	"github.com/eugener/remember/internal/memo"
)

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func errorResponse(msg string) apiError {
	var e apiError
	e.Error.Message = msg
	return e
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, remember.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, remember.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, memo.ErrTypeMismatch):
		return http.StatusConflict
	case errors.Is(err, remember.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server-side failures and returns a sanitized message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path),
		)
	}
	writeJSON(w, status, errorResponse(http.StatusText(status)))
}

// jsonCT is a pre-allocated header value slice. Direct map assignment
// avoids the []string{v} alloc that Header.Set creates on every call.
var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
