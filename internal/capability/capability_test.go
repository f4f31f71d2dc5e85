package capability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamassist/internal/models"
	"teamassist/internal/storage"
	"teamassist/internal/timerange"
)

func windowFor(start, end time.Time, desc string) *timerange.Window {
	return &timerange.Window{Start: start, End: end, Description: desc}
}

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(db, "sqlite3"))
	store, err := storage.New(db, nil)
	require.NoError(t, err)
	return &Config{
		ConversationID: "conv-1",
		Timezone:       "UTC",
		Store:          store,
		Output:         &Output{},
	}
}

func insertAt(t *testing.T, cfg *Config, role models.Role, name, content string, ts time.Time, activityID string) int64 {
	t.Helper()
	id, err := cfg.Store.InsertMessage(context.Background(), models.Message{
		ConversationID: cfg.ConversationID,
		Role:           role,
		Name:           name,
		Content:        content,
		Timestamp:      storage.Timestamp(ts),
		ActivityID:     activityID,
	})
	require.NoError(t, err)
	return id
}

type scriptedRunner struct {
	reply    string
	sawCalls *[][]*schema.Message
}

func (r scriptedRunner) Generate(_ context.Context, messages []*schema.Message) (*schema.Message, error) {
	if r.sawCalls != nil {
		*r.sawCalls = append(*r.sawCalls, messages)
	}
	return &schema.Message{Role: schema.Assistant, Content: r.reply}, nil
}

func stubRunner(t *testing.T, r PromptRunner) {
	t.Helper()
	orig := NewRunner
	NewRunner = func(_ context.Context, _ model.ToolCallingChatModel, _ []tool.BaseTool) (PromptRunner, error) {
		return r, nil
	}
	t.Cleanup(func() { NewRunner = orig })
}

func TestProcessRequestInjectsResolvedWindow(t *testing.T) {
	cfg := newTestConfig(t)
	start := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 9, 23, 59, 59, 999000000, time.UTC)
	cfg.Window = windowFor(start, end, "yesterday")

	var calls [][]*schema.Message
	stubRunner(t, scriptedRunner{reply: "Here is the summary.", sawCalls: &calls})

	res := Summarizer{}.ProcessRequest(context.Background(), "summarize yesterday", cfg)
	assert.Empty(t, res.Err)
	assert.Equal(t, "Here is the summary.", res.Response)

	require.Len(t, calls, 1)
	var windowInstruction string
	for _, m := range calls[0] {
		if m.Role == schema.System && strings.Contains(m.Content, "already been resolved") {
			windowInstruction = m.Content
		}
	}
	require.NotEmpty(t, windowInstruction)
	assert.Contains(t, windowInstruction, "2025-06-09T00:00:00.000Z")
	assert.Contains(t, windowInstruction, "2025-06-09T23:59:59.999Z")
	assert.Contains(t, windowInstruction, "yesterday")
}

func TestProcessRequestMissingStoreFailsFast(t *testing.T) {
	res := Summarizer{}.ProcessRequest(context.Background(), "hi", &Config{ConversationID: "c"})
	assert.Contains(t, res.Err, "storage")

	_, err := Summarizer{}.CreatePrompt(context.Background(), &Config{ConversationID: "c"})
	assert.Error(t, err)
}

func TestSummarizerMessagesInRangePrefersWindow(t *testing.T) {
	cfg := newTestConfig(t)
	day := time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC)
	insertAt(t, cfg, models.RoleUser, "Alice", "inside the window", day, "")
	insertAt(t, cfg, models.RoleUser, "Bob", "outside the window", day.Add(48*time.Hour), "")

	cfg.Window = windowFor(
		time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 9, 23, 59, 59, 999000000, time.UTC),
		"yesterday")

	st := &summarizerTools{cfg: cfg}
	out, err := st.messagesInRange(context.Background(), &messagesInRangeParams{})
	require.NoError(t, err)

	var views []messageView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "inside the window", views[0].Content)
	assert.Equal(t, "Alice", views[0].Sender)
}

func TestSummarizerRangeRejectsGarbageBound(t *testing.T) {
	cfg := newTestConfig(t)
	st := &summarizerTools{cfg: cfg}
	out, err := st.messagesInRange(context.Background(), &messagesInRangeParams{Start: "not-a-time"})
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "error", payload["status"])
	assert.Contains(t, payload["message"], "not-a-time")
}

func TestConversationStats(t *testing.T) {
	cfg := newTestConfig(t)
	base := time.Date(2025, 6, 9, 9, 0, 0, 0, time.UTC)
	insertAt(t, cfg, models.RoleUser, "Alice", "first", base, "")
	insertAt(t, cfg, models.RoleUser, "Bob", "second", base.Add(time.Minute), "")
	insertAt(t, cfg, models.RoleAssistant, "", "reply", base.Add(2*time.Minute), "")

	st := &summarizerTools{cfg: cfg}
	out, err := st.conversationStats(context.Background(), nil)
	require.NoError(t, err)

	var stats struct {
		Total        int            `json:"total_messages"`
		ByRole       map[string]int `json:"by_role"`
		Participants []string       `json:"participants"`
		Oldest       string         `json:"oldest"`
		Newest       string         `json:"newest"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByRole["user"])
	assert.Equal(t, 1, stats.ByRole["assistant"])
	assert.ElementsMatch(t, []string{"Alice", "Bob"}, stats.Participants)
	assert.Equal(t, storage.Timestamp(base), stats.Oldest)
	assert.Equal(t, storage.Timestamp(base.Add(2*time.Minute)), stats.Newest)
}

func TestCreateActionItemResolvesAssignee(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.UserName = "Alice Jones"
	cfg.UserID = "u-alice"
	cfg.Participants = []models.Participant{
		{Name: "Alice Jones", ID: "u-alice"},
		{Name: "Rob Smith", ID: "u-rob"},
	}

	at := &actionItemTools{cfg: cfg}
	out, err := at.createActionItem(context.Background(), &createActionItemParams{
		Title:    "Review the PR",
		Assignee: "rob smith",
		Priority: "High",
	})
	require.NoError(t, err)

	var created models.ActionItem
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "Rob Smith", created.AssignedTo)
	assert.Equal(t, "u-rob", created.AssignedToID)
	assert.Equal(t, "Alice Jones", created.AssignedBy)
	assert.Equal(t, models.PriorityHigh, created.Priority)
	assert.Equal(t, models.StatusPending, created.Status)
}

func TestCreateActionItemUnresolvedAssigneeKeepsName(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Participants = []models.Participant{{Name: "Rob Smith", ID: "u-rob"}}

	at := &actionItemTools{cfg: cfg}
	out, err := at.createActionItem(context.Background(), &createActionItemParams{
		Title:    "Ping the vendor",
		Assignee: "Dana",
	})
	require.NoError(t, err)

	var created models.ActionItem
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "Dana", created.AssignedTo)
	assert.Empty(t, created.AssignedToID)
}

func TestCreateActionItemDueDates(t *testing.T) {
	cfg := newTestConfig(t)
	at := &actionItemTools{cfg: cfg}

	out, err := at.createActionItem(context.Background(), &createActionItemParams{
		Title:   "Send the report",
		DueDate: "tomorrow",
	})
	require.NoError(t, err)
	var created models.ActionItem
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	due, parseErr := storage.ParseTimestamp(created.DueDate)
	require.NoError(t, parseErr, "resolved due date should be in canonical form")
	assert.True(t, due.After(time.Now()))

	// An expression the resolver does not understand stays literal.
	out, err = at.createActionItem(context.Background(), &createActionItemParams{
		Title:   "Follow up",
		DueDate: "whenever convenient",
	})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "whenever convenient", created.DueDate)
}

func TestListActionItemsPersonalScope(t *testing.T) {
	cfg := newTestConfig(t)
	ctx := context.Background()
	for _, item := range []models.ActionItem{
		{ConversationID: "conv-1", Title: "one", AssignedTo: "Alice", AssignedToID: "u-alice"},
		{ConversationID: "conv-2", Title: "two", AssignedTo: "Alice", AssignedToID: "u-alice"},
		{ConversationID: "conv-1", Title: "three", AssignedTo: "Bob", AssignedToID: "u-bob"},
	} {
		_, err := cfg.Store.CreateActionItem(ctx, item)
		require.NoError(t, err)
	}

	// Group scope: conversation's items only, regardless of assignee.
	at := &actionItemTools{cfg: cfg}
	out, err := at.listActionItems(ctx, &listActionItemsParams{})
	require.NoError(t, err)
	var items []models.ActionItem
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	assert.Len(t, items, 2)

	// Personal scope: the user's items across every conversation.
	cfg.Personal = true
	cfg.UserName = "Alice"
	cfg.UserID = "u-alice"
	out, err = at.listActionItems(ctx, &listActionItemsParams{})
	require.NoError(t, err)
	items = nil
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 2)
	for _, it := range items {
		assert.Equal(t, "Alice", it.AssignedTo)
	}

	// Status filter applies on top of the scope.
	out, err = at.listActionItems(ctx, &listActionItemsParams{Status: "completed"})
	require.NoError(t, err)
	items = nil
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	assert.Empty(t, items)
}

func TestUpdateItemStatusTool(t *testing.T) {
	cfg := newTestConfig(t)
	ctx := context.Background()
	created, err := cfg.Store.CreateActionItem(ctx, models.ActionItem{
		ConversationID: "conv-1", Title: "flip me",
	})
	require.NoError(t, err)

	at := &actionItemTools{cfg: cfg}
	out, err := at.updateItemStatus(ctx, &updateItemStatusParams{ID: created.ID, Status: "completed"})
	require.NoError(t, err)
	assert.Contains(t, out, `"status":"ok"`)

	out, err = at.updateItemStatus(ctx, &updateItemStatusParams{ID: 9999, Status: "completed"})
	require.NoError(t, err)
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "error", payload["status"])

	out, err = at.updateItemStatus(ctx, &updateItemStatusParams{ID: created.ID, Status: "done-ish"})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "error", payload["status"])
}

func TestListChatMembersWithoutRoster(t *testing.T) {
	cfg := newTestConfig(t)
	at := &actionItemTools{cfg: cfg}

	out, err := at.listChatMembers(context.Background(), nil)
	require.NoError(t, err)
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "error", payload["status"])

	cfg.Personal = true
	cfg.UserName = "Alice"
	cfg.UserID = "u-alice"
	out, err = at.listChatMembers(context.Background(), nil)
	require.NoError(t, err)
	var members []models.Participant
	require.NoError(t, json.Unmarshal([]byte(out), &members))
	require.Len(t, members, 1)
	assert.Equal(t, "Alice", members[0].Name)
}

func TestSearchKeywordAndParticipantMatching(t *testing.T) {
	cfg := newTestConfig(t)
	base := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	insertAt(t, cfg, models.RoleUser, "Rob Smith", "The deploy is scheduled for Friday", base, "act-1")
	insertAt(t, cfg, models.RoleUser, "Alice Jones", "Deploy checklist is ready", base.Add(time.Minute), "act-2")
	insertAt(t, cfg, models.RoleUser, "Alice Jones", "Lunch anyone?", base.Add(2*time.Minute), "act-3")

	st := &searchTools{cfg: cfg, now: func() time.Time { return base.Add(3 * time.Hour) }}
	out, err := st.searchMessages(context.Background(), &searchMessagesParams{
		Keywords:     []string{"deploy", "rollout"},
		Participants: []string{"rob"},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Found 1 matching message(s)")
	assert.Contains(t, out, "scheduled for Friday")
	assert.NotContains(t, out, "Lunch")
}

func TestSearchBucketsAndCards(t *testing.T) {
	cfg := newTestConfig(t)
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	insertAt(t, cfg, models.RoleUser, "Alice", "topic today", now.Add(-2*time.Hour), "act-today")
	insertAt(t, cfg, models.RoleUser, "Bob", "topic yesterday", now.Add(-30*time.Hour), "act-yday")
	insertAt(t, cfg, models.RoleUser, "Cara", "topic this week", now.Add(-4*24*time.Hour), "")
	insertAt(t, cfg, models.RoleUser, "Dan", "topic last month", now.Add(-40*24*time.Hour), "act-old")

	st := &searchTools{cfg: cfg, now: func() time.Time { return now }}
	out, err := st.searchMessages(context.Background(), &searchMessagesParams{Keywords: []string{"topic"}})
	require.NoError(t, err)

	for _, label := range []string{"Today:", "Yesterday:", "This week:", "Older:"} {
		assert.Contains(t, out, label)
	}
	// Newest-first: Today's section must appear before Older's.
	assert.Less(t, strings.Index(out, "Today:"), strings.Index(out, "Older:"))

	require.Len(t, cfg.Output.Cards, 4)
	assert.Equal(t, "Alice", cfg.Output.Cards[0].Author)
	assert.Equal(t, "https://teams.example.com/l/message/conv-1/act-today", cfg.Output.Cards[0].DeepLink)
	// No activity id recorded for Cara's message, so no deep link.
	assert.Empty(t, cfg.Output.Cards[2].DeepLink)
}

func TestSearchCapsCardsAtFive(t *testing.T) {
	cfg := newTestConfig(t)
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		insertAt(t, cfg, models.RoleUser, "Alice", fmt.Sprintf("status update %d", i),
			now.Add(-time.Duration(i)*time.Minute), fmt.Sprintf("act-%d", i))
	}

	st := &searchTools{cfg: cfg, now: func() time.Time { return now }}
	out, err := st.searchMessages(context.Background(), &searchMessagesParams{Keywords: []string{"status"}})
	require.NoError(t, err)
	assert.Contains(t, out, "Found 8 matching message(s)")
	assert.Len(t, cfg.Output.Cards, maxQuotedCards)
}

func TestSearchNoMatches(t *testing.T) {
	cfg := newTestConfig(t)
	st := &searchTools{cfg: cfg, now: time.Now}
	out, err := st.searchMessages(context.Background(), &searchMessagesParams{Keywords: []string{"nothing"}})
	require.NoError(t, err)
	assert.Equal(t, "No messages matched the search.", out)
	assert.Empty(t, cfg.Output.Cards)
}

func TestToolInfosExposeContracts(t *testing.T) {
	assert.Len(t, Summarizer{}.ToolInfos(), 4)
	assert.Len(t, ActionItems{}.ToolInfos(), 5)
	assert.Len(t, Search{}.ToolInfos(), 1)
	for _, info := range (ActionItems{}).ToolInfos() {
		assert.NotEmpty(t, info.Name)
		assert.NotEmpty(t, info.Desc)
	}
}
