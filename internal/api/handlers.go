package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/studyhall/tutormsg/internal/engine"
	"github.com/studyhall/tutormsg/internal/message"
)

// MessageJSON represents a message in state responses.
type MessageJSON struct {
	ID         string `json:"id"`
	Direction  string `json:"direction"`
	Kind       string `json:"kind"`
	Body       string `json:"body"`
	SentAt     string `json:"sent_at"`
	Read       bool   `json:"read"`
	Pending    bool   `json:"pending,omitempty"`
	SenderName string `json:"sender_name,omitempty"`
}

// SelectionJSON represents the selection state.
type SelectionJSON struct {
	SelectedKey   string `json:"selected_key,omitempty"`
	OpenedAt      string `json:"opened_at,omitempty"`
	NewSinceOpen  int    `json:"new_since_open"`
	BannerVisible bool   `json:"banner_visible"`
}

// StateResponse is the full widget state: conversations, unread counts,
// selection, and the current draft.
type StateResponse struct {
	Conversations map[string][]MessageJSON `json:"conversations"`
	Unread        map[string]int           `json:"unread"`
	TotalUnread   int                      `json:"total_unread"`
	Selection     SelectionJSON            `json:"selection"`
	Input         string                   `json:"input"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`

	// RestoredInput carries the draft text restored after a failed send.
	RestoredInput string `json:"restored_input,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

func toMessageJSON(m message.Message) MessageJSON {
	out := MessageJSON{
		ID:         m.ID,
		Direction:  string(m.Direction),
		Kind:       string(m.Kind),
		Body:       m.Body,
		Read:       m.Read,
		Pending:    m.Pending,
		SenderName: m.SenderName,
	}
	if !m.SentAt.IsZero() {
		out.SentAt = m.SentAt.UTC().Format(time.RFC3339)
	}
	return out
}

// handleState returns the reconciled widget state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	vm := s.widget.ViewModel()
	sel := s.widget.Selection()

	resp := StateResponse{
		Conversations: make(map[string][]MessageJSON, len(vm.Conversations)),
		Unread:        vm.Unread,
		TotalUnread:   vm.TotalUnread,
		Input:         s.widget.Input(),
		Selection: SelectionJSON{
			SelectedKey:   sel.SelectedKey,
			NewSinceOpen:  sel.NewSinceOpen,
			BannerVisible: sel.BannerVisible,
		},
	}
	if !sel.OpenedAt.IsZero() {
		resp.Selection.OpenedAt = sel.OpenedAt.UTC().Format(time.RFC3339)
	}
	for key, msgs := range vm.Conversations {
		out := make([]MessageJSON, len(msgs))
		for i, m := range msgs {
			out[i] = toMessageJSON(m)
		}
		resp.Conversations[key] = out
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleSelect opens a conversation.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.widget.SelectConversation(key); err != nil {
		if errors.Is(err, engine.ErrUnknownConversation) {
			writeError(w, http.StatusNotFound, "unknown_conversation", err.Error())
			return
		}
		writeError(w, http.StatusConflict, "select_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"selected": key})
}

// SendRequest is the send request body.
type SendRequest struct {
	Body string `json:"body"`
}

// handleSend submits a message through the optimistic send pipeline.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}

	err := s.widget.SendText(r.Context(), req.Body)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
	case errors.Is(err, engine.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	case errors.Is(err, engine.ErrNoSelection), errors.Is(err, engine.ErrNotEligible):
		writeError(w, http.StatusConflict, "not_sendable", err.Error())
	default:
		s.logger.Error("send failed", "error", err)
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:         "send_failed",
			Message:       err.Error(),
			RestoredInput: s.widget.Input(),
		})
	}
}

// handleDismissBanner hides the new-message banner.
func (s *Server) handleDismissBanner(w http.ResponseWriter, r *http.Request) {
	s.widget.DismissBanner()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ScrollRequest reports the widget's scroll position.
type ScrollRequest struct {
	FromBottom int `json:"from_bottom"`
}

// handleScroll records the scroll position; reaching the bottom
// dismisses the banner implicitly.
func (s *Server) handleScroll(w http.ResponseWriter, r *http.Request) {
	var req ScrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	s.widget.OnScroll(req.FromBottom)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
