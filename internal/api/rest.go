package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

type sessionRequest struct {
	SessionID    string `json:"session_id"`
	Message      string `json:"message"`
	TierOverride string `json:"tier_override"`
	Context      string `json:"context"`
	FieldKey     string `json:"field_key"`
	Value        string `json:"value"`
}

// RegisterRoutes registers the REST mirror and the websocket tool endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/classify", h.Classify)
	r.Post("/session", h.CreateSession)
	r.Post("/map", h.Map)
	r.Post("/confirm", h.Confirm)
	r.Post("/gate", h.Gate)
	r.Post("/elicit", h.Elicit)
	r.Post("/assumptions", h.Assumptions)
	r.Get("/status", h.Status)
	r.Get("/sessions/{id}/audit", h.Audit)
	r.Get("/ws/tools", h.ToolSocket)
}

func (h *Handler) read(w http.ResponseWriter, r *http.Request) (*sessionRequest, bool) {
	var req sessionRequest
	if status, err := decode(w, r, &req); err != nil {
		Error(w, status, err.Error())
		return nil, false
	}
	return &req, true
}

// Classify returns the tier for a message without creating a session.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	req, ok := h.read(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "message required")
		return
	}
	JSON(w, http.StatusOK, h.svc.Classify(r.Context(), req.Message))
}

// CreateSession starts a session, superseding the active one.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	req, ok := h.read(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "message required")
		return
	}
	res, err := h.svc.Intake(r.Context(), req.Message, req.TierOverride)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("Session created", "session_id", res.SessionID, "tier", res.Tier)
	JSON(w, http.StatusOK, res)
}

// Map maps the DRAFT dimensions for a session.
func (h *Handler) Map(w http.ResponseWriter, r *http.Request) {
	req, ok := h.read(w, r)
	if !ok {
		return
	}
	if req.SessionID == "" || req.Context == "" {
		Error(w, http.StatusBadRequest, "session_id and context required")
		return
	}
	res, err := h.svc.Map(r.Context(), req.SessionID, req.Context)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// Confirm records a human-confirmed field value.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	req, ok := h.read(w, r)
	if !ok {
		return
	}
	if req.SessionID == "" || req.FieldKey == "" || req.Value == "" {
		Error(w, http.StatusBadRequest, "session_id, field_key, and value required")
		return
	}
	res, err := h.svc.Confirm(r.Context(), req.SessionID, req.FieldKey, req.Value)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// Gate evaluates the confirmation gate.
func (h *Handler) Gate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Gate(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// Elicit returns questions for unresolved fields.
func (h *Handler) Elicit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Elicit(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// Assumptions regenerates the session's assumptions.
func (h *Handler) Assumptions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Assumptions(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	req, ok := h.read(w, r)
	if !ok {
		return "", false
	}
	if req.SessionID == "" {
		Error(w, http.StatusBadRequest, "session_id required")
		return "", false
	}
	return req.SessionID, true
}

// activeStatus is the /status shape.
type activeStatus struct {
	Active    bool       `json:"active"`
	Message   string     `json:"message,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	Tier      string     `json:"tier,omitempty"`
	Intent    string     `json:"intent,omitempty"`
	Gate      string     `json:"gate,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Status reports the active session, if any.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.Engine().ActiveSessionID(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if id == "" {
		JSON(w, http.StatusOK, activeStatus{Message: "No active session"})
		return
	}
	st, err := h.svc.Status(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, activeStatus{
		Active:    true,
		SessionID: st.SessionID,
		Tier:      string(st.Tier),
		Intent:    st.Intent,
		Gate:      st.Gate,
		CreatedAt: &st.CreatedAt,
	})
}

// Audit lists a session's audit trail in write order.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entries, err := h.svc.Audit(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"session_id": id, "entries": entries})
}
