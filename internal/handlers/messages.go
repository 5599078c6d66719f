package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/connecthub/backend/internal/models"
)

// MessageStore is the slice of the messaging service the HTTP API needs.
type MessageStore interface {
	MessagesBetween(ctx context.Context, a, b string) ([]*models.ChatMessage, error)
}

type MessageHandler struct {
	store MessageStore
}

func NewMessageHandler(store MessageStore) *MessageHandler {
	return &MessageHandler{store: store}
}

// History handles GET /api/messages/{userA}/{userB}: the chat history
// between two participants, oldest first.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userA, userB := vars["userA"], vars["userB"]
	if userA == "" || userB == "" {
		writeError(w, http.StatusBadRequest, "both participants are required")
		return
	}

	msgs, err := h.store.MessagesBetween(r.Context(), userA, userB)
	if err != nil {
		log.Printf("[HTTP] message history %s/%s: %v", userA, userB, err)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if msgs == nil {
		msgs = []*models.ChatMessage{}
	}

	writeJSON(w, http.StatusOK, msgs)
}
