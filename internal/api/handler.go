// Package api provides the REST mirror of the DRAFT governance tools.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/draft-protocol/draftd/internal/engine"
	"github.com/draft-protocol/draftd/internal/tools"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

// Handler provides the governance endpoints over a tools.Service.
type Handler struct {
	svc    *tools.Service
	conns  *Conns
	logger *slog.Logger

	// originPatterns are the cross-origin hosts the tool socket accepts.
	// Nil restricts it to same-origin requests.
	originPatterns []string
}

// NewHandler creates a new Handler. conns may be nil.
func NewHandler(svc *tools.Service, conns *Conns, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if conns == nil {
		conns = NewConns()
	}
	return &Handler{svc: svc, conns: conns, logger: logger}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// StatusFor maps an engine or catalog error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, tools.ErrUnknownTool):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrClosed):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInvalidInput), errors.Is(err, tools.ErrInvalidArguments):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", r.URL.Path, "error", err)
		Error(w, status, "internal error")
		return
	}
	JSON(w, status, tools.ErrorPayload(err))
}

// decode reads a capped JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) (int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return 0, nil
	default:
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return http.StatusRequestEntityTooLarge, errors.New("request body too large")
		}
		return http.StatusBadRequest, errors.New("invalid JSON")
	}
}
