// Package tracking stages messages in memory during one inbound-event
// handling cycle and commits them to the store in a single batched flush.
package tracking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"teamassist/internal/models"
	"teamassist/internal/platform"
	"teamassist/internal/storage"
)

const (
	defaultUserName      = "Unknown User"
	defaultAssistantName = "Assistant"
)

type Tracker struct {
	store  *storage.Store
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string][]models.Message
	// personal remembers the chat-type signal from the source event for the
	// conversation's current cycle.
	personal map[string]bool
}

func NewTracker(store *storage.Store, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		store:    store,
		logger:   logger,
		pending:  make(map[string][]models.Message),
		personal: make(map[string]bool),
	}
}

// Add appends a message to the conversation's staging buffer. A supplied
// source event is remembered as the authoritative chat-type signal for the
// current cycle.
func (t *Tracker) Add(conversationID string, role models.Role, content string, evt *platform.InboundEvent, name string) {
	if name == "" {
		if role == models.RoleAssistant {
			name = defaultAssistantName
		} else {
			name = defaultUserName
		}
	}
	msg := models.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Name:           name,
		Timestamp:      storage.Timestamp(time.Now()),
	}
	if evt != nil && role == models.RoleUser {
		msg.ActivityID = evt.ActivityID
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[conversationID] = append(t.pending[conversationID], msg)
	if evt != nil {
		t.personal[conversationID] = evt.IsPersonal()
	}
}

// Pending returns the number of staged messages for a conversation.
func (t *Tracker) Pending(conversationID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending[conversationID])
}

// Flush commits the staged messages to the store and empties the buffer.
// In personal conversations every turn is persisted; in group conversations
// only user turns are, so assistant replies that are already visible to all
// members are not duplicated into history. Returns the persisted and
// filtered-out counts for diagnostics.
func (t *Tracker) Flush(ctx context.Context, conversationID string) (saved, filtered int, err error) {
	t.mu.Lock()
	msgs := t.pending[conversationID]
	delete(t.pending, conversationID)
	isPersonal := t.personal[conversationID]
	t.mu.Unlock()

	for _, m := range msgs {
		if !isPersonal && m.Role == models.RoleAssistant {
			filtered++
			continue
		}
		if _, insErr := t.store.InsertMessage(ctx, m); insErr != nil {
			err = fmt.Errorf("flush conversation %s: %w", conversationID, insErr)
			t.logger.Error("tracked message flush failed",
				zap.String("conversation_id", conversationID), zap.Error(insErr))
			continue
		}
		saved++
	}
	if filtered > 0 {
		t.logger.Debug("filtered assistant turns for group history",
			zap.String("conversation_id", conversationID),
			zap.Int("filtered", filtered), zap.Int("total", len(msgs)))
	}
	return saved, filtered, err
}

// ClearConversation drops durable history, the staging buffer, and the
// remembered chat-type signal together.
func (t *Tracker) ClearConversation(ctx context.Context, conversationID string) (int64, error) {
	t.mu.Lock()
	delete(t.pending, conversationID)
	delete(t.personal, conversationID)
	t.mu.Unlock()
	return t.store.ClearConversation(ctx, conversationID)
}
