package storage

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"teamassist/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(db, "sqlite3"))
	store, err := New(db, zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestTimestampIsLexicallyOrdered(t *testing.T) {
	base := time.Date(2025, 3, 9, 23, 59, 59, 900*int(time.Millisecond), time.UTC)
	earlier := Timestamp(base)
	later := Timestamp(base.Add(200 * time.Millisecond))
	assert.Less(t, earlier, later)

	parsed, err := ParseTimestamp(earlier)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(base))
}

func TestMessagesByTimeRangeInclusiveBounds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := store.InsertMessage(ctx, models.Message{
			ConversationID: "conv-1",
			Role:           models.RoleUser,
			Content:        "msg",
			Name:           "Alice",
			Timestamp:      Timestamp(base.Add(time.Duration(i) * time.Hour)),
		})
		require.NoError(t, err)
	}

	got := store.MessagesByTimeRange(ctx, "conv-1",
		Timestamp(base.Add(1*time.Hour)), Timestamp(base.Add(3*time.Hour)))
	require.Len(t, got, 3)
	assert.Equal(t, Timestamp(base.Add(1*time.Hour)), got[0].Timestamp)
	assert.Equal(t, Timestamp(base.Add(3*time.Hour)), got[2].Timestamp)

	// open-ended bounds return everything, ascending
	all := store.MessagesByTimeRange(ctx, "conv-1", "", "")
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Timestamp, all[i].Timestamp)
	}
}

func TestRecentMessagesChronologicalOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 4; i++ {
		_, err := store.InsertMessage(ctx, models.Message{
			ConversationID: "conv-2",
			Role:           models.RoleUser,
			Content:        string(rune('a' + i)),
			Name:           "Bob",
			Timestamp:      Timestamp(now.Add(time.Duration(i) * time.Minute)),
		})
		require.NoError(t, err)
	}

	got := store.RecentMessages(ctx, "conv-2", 2)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].Content)
	assert.Equal(t, "d", got[1].Content)
}

func TestClearConversationLeavesOtherRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.InsertMessage(ctx, models.Message{ConversationID: "conv-a", Role: models.RoleUser, Content: "x"})
	require.NoError(t, err)
	_, err = store.InsertMessage(ctx, models.Message{ConversationID: "conv-b", Role: models.RoleUser, Content: "y"})
	require.NoError(t, err)
	_, err = store.CreateActionItem(ctx, models.ActionItem{ConversationID: "conv-a", Title: "keep me"})
	require.NoError(t, err)

	n, err := store.ClearConversation(ctx, "conv-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, store.MessagesByTimeRange(ctx, "conv-a", "", ""))
	assert.Len(t, store.MessagesByTimeRange(ctx, "conv-b", "", ""), 1)
	assert.Len(t, store.ActionItemsByConversation(ctx, "conv-a"), 1)
}

func TestActionItemStatusUpdateIsTotalOverExistence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item, err := store.CreateActionItem(ctx, models.ActionItem{
		ConversationID: "conv-3",
		Title:          "ship release notes",
		AssignedTo:     "Carol",
		AssignedToID:   "u-carol",
		AssignedBy:     "Alice",
		AssignedByID:   "u-alice",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, item.Status)
	assert.Equal(t, models.PriorityMedium, item.Priority)
	createdAt := item.UpdatedAt

	time.Sleep(5 * time.Millisecond)
	assert.True(t, store.UpdateActionItemStatus(ctx, item.ID, models.StatusCompleted, "Dave"))

	got := store.ActionItemByID(ctx, item.ID)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.GreaterOrEqual(t, got.UpdatedAt, createdAt)
	// the updater is recorded separately; the assigner stays as created
	assert.Equal(t, "Dave", got.UpdatedBy)
	assert.Equal(t, "Alice", got.AssignedBy)
	assert.Equal(t, "u-alice", got.AssignedByID)

	// nonexistent id: false, and no row appears
	assert.False(t, store.UpdateActionItemStatus(ctx, 99999, models.StatusCancelled, ""))
	assert.Nil(t, store.ActionItemByID(ctx, 99999))

	// unknown status is rejected without touching the row
	assert.False(t, store.UpdateActionItemStatus(ctx, item.ID, "done-ish", ""))
}

func TestActionItemPersonalViewAcrossConversations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateActionItem(ctx, models.ActionItem{ConversationID: "c1", Title: "one", AssignedToID: "u-1", AssignedTo: "Eve"})
	require.NoError(t, err)
	_, err = store.CreateActionItem(ctx, models.ActionItem{ConversationID: "c2", Title: "two", AssignedToID: "u-1", AssignedTo: "Eve"})
	require.NoError(t, err)
	_, err = store.CreateActionItem(ctx, models.ActionItem{ConversationID: "c2", Title: "other", AssignedToID: "u-2", AssignedTo: "Mallory"})
	require.NoError(t, err)

	assert.Len(t, store.ActionItemsByUserID(ctx, "u-1"), 2)
	assert.Len(t, store.ActionItemsForUser(ctx, "Eve"), 2)
	assert.Len(t, store.ActionItemsByConversation(ctx, "c2"), 2)

	assert.Equal(t, int64(2), store.ClearActionItems(ctx, "c2"))
	assert.Equal(t, int64(1), store.ClearAllActionItems(ctx))
}

func TestFeedbackInitializationIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InitializeFeedbackRecord(ctx, "act-1", "summarizer"))
	require.NoError(t, store.InitializeFeedbackRecord(ctx, "act-1", "search"))

	records := store.AllFeedback(ctx)
	require.Len(t, records, 1)
	// second call is a no-op relative to existence and content
	assert.Equal(t, "summarizer", records[0].DelegatedCapability)
	assert.Zero(t, records[0].Likes)
}

func TestUpdateFeedbackRequiresExistingRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assert.False(t, store.UpdateFeedback(ctx, "missing", models.ReactionLike, ""))

	require.NoError(t, store.InitializeFeedbackRecord(ctx, "act-2", ""))
	assert.True(t, store.UpdateFeedback(ctx, "act-2", models.ReactionLike, "helpful"))
	assert.True(t, store.UpdateFeedback(ctx, "act-2", models.ReactionDislike, ""))
	assert.True(t, store.UpdateFeedback(ctx, "act-2", models.ReactionLike, "still good"))

	fb := store.FeedbackByMessageID(ctx, "act-2")
	require.NotNil(t, fb)
	assert.Equal(t, 2, fb.Likes)
	assert.Equal(t, 1, fb.Dislikes)
	assert.Equal(t, []string{"helpful", "still good"}, fb.Comments)

	summary := store.SummarizeFeedback(ctx)
	assert.Equal(t, 1, summary.Records)
	assert.Equal(t, 2, summary.Likes)
	assert.InDelta(t, 2.0/3.0, summary.LikeRatio, 1e-9)
}

func TestConcurrentFeedbackReactionsAllLand(t *testing.T) {
	store := newTestStore(t)
	// a single pooled connection makes goroutines interleave between store
	// calls, which is where a read-modify-write would drop reactions
	store.db.SetMaxOpenConns(1)
	ctx := context.Background()

	require.NoError(t, store.InitializeFeedbackRecord(ctx, "act-race", "summarizer"))

	const perReaction = 25
	var wg sync.WaitGroup
	for i := 0; i < perReaction; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.True(t, store.UpdateFeedback(ctx, "act-race", models.ReactionLike, ""))
		}()
		go func() {
			defer wg.Done()
			assert.True(t, store.UpdateFeedback(ctx, "act-race", models.ReactionDislike, ""))
		}()
	}
	wg.Wait()

	fb := store.FeedbackByMessageID(ctx, "act-race")
	require.NotNil(t, fb)
	assert.Equal(t, perReaction, fb.Likes)
	assert.Equal(t, perReaction, fb.Dislikes)
}

func TestConcurrentFirstFeedbackInitialization(t *testing.T) {
	store := newTestStore(t)
	store.db.SetMaxOpenConns(1)
	ctx := context.Background()

	errs := make([]error, 10)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.InitializeFeedbackRecord(ctx, "act-first", "search")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	records := store.AllFeedback(ctx)
	require.Len(t, records, 1)
	assert.Equal(t, "search", records[0].DelegatedCapability)
}

func TestStoreDelegatedCapabilityLastWriteWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// lazily creates the record when none exists
	require.NoError(t, store.StoreDelegatedCapability(ctx, "act-3", "action_items"))
	fb := store.FeedbackByMessageID(ctx, "act-3")
	require.NotNil(t, fb)
	assert.Equal(t, "action_items", fb.DelegatedCapability)

	require.NoError(t, store.StoreDelegatedCapability(ctx, "act-3", ""))
	fb = store.FeedbackByMessageID(ctx, "act-3")
	require.NotNil(t, fb)
	assert.Empty(t, fb.DelegatedCapability)
}
