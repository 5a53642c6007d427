package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sand/whitetriangle/backend/internal/support"
	"github.com/sand/whitetriangle/backend/internal/support/entities"
)

type SupportService interface {
	Ask(ctx context.Context, conversationID, userMessage, supportContext string) (entities.Message, error)
	History(ctx context.Context, conversationID string) ([]entities.Message, error)
}

type askSupportRequest struct {
	Message        string `json:"message"`
	Page           string `json:"page"`
	ConversationID string `json:"conversationId"`
}

type askSupportResponse struct {
	ConversationID string           `json:"conversationId"`
	Reply          entities.Message `json:"reply"`
}

type supportHistoryResponse struct {
	ConversationID string             `json:"conversationId"`
	Messages       []entities.Message `json:"messages"`
}

const (
	userConversationPrefix  = "user:"
	guestConversationPrefix = "guest:"
)

// conversationFor returns the transcript key and the id handed back to the
// client. Signed-in users are keyed by account. Guests get a server-issued
// UUID, stored under its own namespace, so a guest can never address a user
// transcript.
func conversationFor(r *http.Request, requested string) (key, publicID string) {
	if user := UserFromContext(r.Context()); user != nil {
		key = userConversationPrefix + user.ID
		return key, key
	}

	id, err := uuid.Parse(strings.TrimSpace(requested))
	if err != nil {
		id = uuid.New()
	}
	return guestConversationPrefix + id.String(), id.String()
}

func (h *HTTPHandler) AskSupport(w http.ResponseWriter, r *http.Request) {
	var req askSupportRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	user := UserFromContext(r.Context())
	key, conversationID := conversationFor(r, req.ConversationID)
	supportContext := support.BuildContext(req.Page, user, h.orderService.FeeRate())

	reply, err := h.supportService.Ask(r.Context(), key, req.Message, supportContext)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, askSupportResponse{ConversationID: conversationID, Reply: reply})
}

func (h *HTTPHandler) SupportHistory(w http.ResponseWriter, r *http.Request) {
	key, conversationID := conversationFor(r, r.URL.Query().Get("conversationId"))

	messages, err := h.supportService.History(r.Context(), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, supportHistoryResponse{ConversationID: conversationID, Messages: messages})
}
