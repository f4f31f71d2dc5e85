package debugcmd

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamassist/internal/models"
	"teamassist/internal/platform"
	"teamassist/internal/storage"
	"teamassist/internal/tracking"
)

func newTestHandler(t *testing.T) (*Handler, *storage.Store, *tracking.Tracker) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(db, "sqlite3"))
	store, err := storage.New(db, nil)
	require.NoError(t, err)
	tracker := tracking.NewTracker(store, nil)
	return New(store, tracker, nil), store, tracker
}

func commandEvent(text string) platform.InboundEvent {
	return platform.InboundEvent{
		ConversationID:   "conv-1",
		ConversationType: platform.ConversationPersonal,
		SenderID:         "u-alice",
		SenderName:       "Alice",
		Text:             text,
	}
}

func TestIsCommand(t *testing.T) {
	assert.True(t, IsCommand("!help"))
	assert.True(t, IsCommand("  !db  "))
	assert.False(t, IsCommand("hello!"))
	assert.False(t, IsCommand("what is !db?"))
}

func TestNonCommandPassesThrough(t *testing.T) {
	h, _, _ := newTestHandler(t)
	_, handled := h.Handle(context.Background(), commandEvent("summarize yesterday"))
	assert.False(t, handled)
}

func TestUnknownCommandSuggestsHelp(t *testing.T) {
	h, _, _ := newTestHandler(t)
	out, handled := h.Handle(context.Background(), commandEvent("!bogus"))
	assert.True(t, handled)
	assert.Contains(t, out, "!help")
}

func TestHelpListsAllCommands(t *testing.T) {
	h, _, _ := newTestHandler(t)
	out, handled := h.Handle(context.Background(), commandEvent("!help"))
	require.True(t, handled)
	for _, cmd := range []string{"!db", "!clear", "!items", "!clear-items", "!my-items", "!feedback", "!clear-feedback"} {
		assert.Contains(t, out, cmd)
	}
}

func TestDBReportShowsConversations(t *testing.T) {
	h, store, _ := newTestHandler(t)
	ctx := context.Background()
	for _, conv := range []string{"conv-1", "conv-1", "conv-2"} {
		_, err := store.InsertMessage(ctx, models.Message{
			ConversationID: conv, Role: models.RoleUser, Name: "Alice", Content: "hi",
		})
		require.NoError(t, err)
	}

	out, handled := h.Handle(ctx, commandEvent("!db"))
	require.True(t, handled)
	assert.Contains(t, out, "2 conversation(s)")
	assert.Contains(t, out, "conv-1: 2 message(s) (this chat)")
	assert.Contains(t, out, "conv-2: 1 message(s)")
}

func TestClearDropsDurableAndStagedMessages(t *testing.T) {
	h, store, tracker := newTestHandler(t)
	ctx := context.Background()
	_, err := store.InsertMessage(ctx, models.Message{
		ConversationID: "conv-1", Role: models.RoleUser, Name: "Alice", Content: "persisted",
	})
	require.NoError(t, err)
	evt := commandEvent("staged")
	tracker.Add("conv-1", models.RoleUser, "staged", &evt, "Alice")

	out, handled := h.Handle(ctx, commandEvent("!clear"))
	require.True(t, handled)
	assert.Contains(t, out, "Deleted 1 message(s)")
	assert.Equal(t, 0, store.MessageCount(ctx, "conv-1"))
	assert.Equal(t, 0, tracker.Pending("conv-1"))
}

func TestItemsCommands(t *testing.T) {
	h, store, _ := newTestHandler(t)
	ctx := context.Background()
	_, err := store.CreateActionItem(ctx, models.ActionItem{
		ConversationID: "conv-1", Title: "review PR", AssignedTo: "Alice", AssignedToID: "u-alice",
	})
	require.NoError(t, err)
	_, err = store.CreateActionItem(ctx, models.ActionItem{
		ConversationID: "conv-2", Title: "write docs", AssignedTo: "Alice", AssignedToID: "u-alice",
	})
	require.NoError(t, err)

	out, _ := h.Handle(ctx, commandEvent("!items"))
	assert.Contains(t, out, "1 action item(s)")
	assert.Contains(t, out, "review PR")
	assert.NotContains(t, out, "write docs")

	// Assignee view spans conversations.
	out, _ = h.Handle(ctx, commandEvent("!my-items"))
	assert.Contains(t, out, "2 action item(s)")
	assert.Contains(t, out, "write docs")

	out, _ = h.Handle(ctx, commandEvent("!clear-items"))
	assert.Contains(t, out, "Deleted 1 action item(s) from this conversation")

	out, _ = h.Handle(ctx, commandEvent("!clear-items all"))
	assert.Contains(t, out, "Deleted 1 action item(s) across all conversations")

	out, _ = h.Handle(ctx, commandEvent("!my-items"))
	assert.Contains(t, out, "No action items")
}

func TestFeedbackCommands(t *testing.T) {
	h, store, _ := newTestHandler(t)
	ctx := context.Background()
	require.NoError(t, store.InitializeFeedbackRecord(ctx, "act-1", "summarizer"))
	require.True(t, store.UpdateFeedback(ctx, "act-1", models.ReactionLike, "great recap"))

	out, _ := h.Handle(ctx, commandEvent("!feedback"))
	assert.Contains(t, out, "1 record(s)")
	assert.Contains(t, out, "1 like(s)")
	assert.Contains(t, out, "summarizer")
	assert.Contains(t, out, "great recap")

	out, _ = h.Handle(ctx, commandEvent("!clear-feedback"))
	assert.Contains(t, out, "Deleted 1 feedback record(s)")

	out, _ = h.Handle(ctx, commandEvent("!feedback"))
	assert.Contains(t, out, "No feedback")
}
