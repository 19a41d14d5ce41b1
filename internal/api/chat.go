package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/nyka2002/stanbot/internal/domain"
	"github.com/nyka2002/stanbot/internal/logger"
	"github.com/nyka2002/stanbot/internal/search"
)

// chatRequest is the POST /chat payload. ConversationHistory lets a client
// resume a conversation this process has never seen.
type chatRequest struct {
	Query               string        `json:"query"`
	SessionID           string        `json:"session_id,omitempty"`
	ConversationHistory []domain.Turn `json:"conversation_history,omitempty"`
}

// msgRateLimited is the user-facing 429 text.
const msgRateLimited = "Trenutno primamo previše upita, pokušajte ponovno za minutu."

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "EMPTY_QUERY", "query must not be empty")
		return
	}

	resp, err := s.chat.HandleTurn(r.Context(), req.SessionID, req.Query, req.ConversationHistory)
	if err != nil {
		var exErr *search.ExtractionError
		if errors.As(err, &exErr) && exErr.Code == search.ExtractRateLimited {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", msgRateLimited)
			return
		}
		logger.Error("chat turn failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
