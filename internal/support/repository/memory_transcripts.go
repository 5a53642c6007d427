package repository

import (
	"context"
	"sync"

	"github.com/sand/whitetriangle/backend/internal/support/entities"
)

// MemoryTranscripts keeps support conversations for the lifetime of the process.
type MemoryTranscripts struct {
	mu            sync.RWMutex
	conversations map[string][]entities.Message
}

func NewMemoryTranscripts() *MemoryTranscripts {
	return &MemoryTranscripts{conversations: make(map[string][]entities.Message)}
}

func (r *MemoryTranscripts) Append(_ context.Context, conversationID string, messages ...entities.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conversations[conversationID] = append(r.conversations[conversationID], messages...)
	return nil
}

func (r *MemoryTranscripts) Messages(_ context.Context, conversationID string) ([]entities.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]entities.Message(nil), r.conversations[conversationID]...), nil
}
