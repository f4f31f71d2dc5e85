// Package debugcmd implements the operator text-command surface. Commands are
// recognized by a leading "!" and handled entirely locally; they never reach
// the language model and are never persisted as conversation turns.
package debugcmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"teamassist/internal/models"
	"teamassist/internal/platform"
	"teamassist/internal/storage"
	"teamassist/internal/tracking"
)

const helpText = `Available commands:
!help - show this help
!db - show stored conversations and recent messages here
!clear - delete this conversation's stored messages
!items - list this conversation's action items
!clear-items [all] - delete this conversation's action items (or every item)
!my-items - list action items assigned to you
!feedback - show collected feedback
!clear-feedback - delete all feedback records`

// Handler executes operator commands against the store and tracker.
type Handler struct {
	store   *storage.Store
	tracker *tracking.Tracker
	logger  *zap.Logger
}

func New(store *storage.Store, tracker *tracking.Tracker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, tracker: tracker, logger: logger}
}

// IsCommand reports whether the text should be intercepted before normal
// processing.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "!")
}

// Handle runs the command and returns its report. The second return value is
// false when the text is not a recognized command, in which case normal
// processing should proceed.
func (h *Handler) Handle(ctx context.Context, evt platform.InboundEvent) (string, bool) {
	text := strings.TrimSpace(evt.Text)
	if !strings.HasPrefix(text, "!") {
		return "", false
	}
	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	h.logger.Info("operator command", zap.String("command", cmd),
		zap.String("conversation_id", evt.ConversationID), zap.String("sender_id", evt.SenderID))

	switch cmd {
	case "!help":
		return helpText, true
	case "!db":
		return h.reportDB(ctx, evt.ConversationID), true
	case "!clear":
		return h.clearConversation(ctx, evt.ConversationID), true
	case "!items":
		return h.reportItems(ctx, evt.ConversationID), true
	case "!clear-items":
		return h.clearItems(ctx, evt.ConversationID, args), true
	case "!my-items":
		return h.reportMyItems(ctx, evt), true
	case "!feedback":
		return h.reportFeedback(ctx), true
	case "!clear-feedback":
		n := h.store.ClearFeedback(ctx)
		return fmt.Sprintf("Deleted %d feedback record(s).", n), true
	default:
		return fmt.Sprintf("Unknown command %s. Try !help.", cmd), true
	}
}

func (h *Handler) reportDB(ctx context.Context, conversationID string) string {
	convs := h.store.Conversations(ctx)
	if len(convs) == 0 {
		return "The database holds no messages."
	}
	ids := make([]string, 0, len(convs))
	for id := range convs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	fmt.Fprintf(&b, "Database: %d conversation(s)\n", len(ids))
	for _, id := range ids {
		marker := ""
		if id == conversationID {
			marker = " (this chat)"
		}
		fmt.Fprintf(&b, "- %s: %d message(s)%s\n", id, convs[id], marker)
	}

	recent := h.store.RecentMessages(ctx, conversationID, 5)
	if len(recent) > 0 {
		b.WriteString("\nMost recent here:\n")
		for _, m := range recent {
			link := "no link"
			if m.ActivityID != "" {
				link = "linkable"
			}
			fmt.Fprintf(&b, "- [%s] %s (%s): %s\n", m.Timestamp, senderLabel(m), link, truncate(m.Content, 80))
		}
	}
	if h.tracker != nil {
		if n := h.tracker.Pending(conversationID); n > 0 {
			fmt.Fprintf(&b, "\n%d message(s) staged, not yet persisted.\n", n)
		}
	}
	return b.String()
}

func (h *Handler) clearConversation(ctx context.Context, conversationID string) string {
	var n int64
	var err error
	if h.tracker != nil {
		n, err = h.tracker.ClearConversation(ctx, conversationID)
	} else {
		n, err = h.store.ClearConversation(ctx, conversationID)
	}
	if err != nil {
		h.logger.Error("clear conversation failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return "Clearing the conversation failed; see the server log."
	}
	return fmt.Sprintf("Deleted %d message(s) from this conversation.", n)
}

func (h *Handler) reportItems(ctx context.Context, conversationID string) string {
	items := h.store.ActionItemsByConversation(ctx, conversationID)
	if len(items) == 0 {
		return "No action items in this conversation."
	}
	return formatItems(items)
}

func (h *Handler) clearItems(ctx context.Context, conversationID string, args []string) string {
	if len(args) > 0 && strings.EqualFold(args[0], "all") {
		n := h.store.ClearAllActionItems(ctx)
		return fmt.Sprintf("Deleted %d action item(s) across all conversations.", n)
	}
	n := h.store.ClearActionItems(ctx, conversationID)
	return fmt.Sprintf("Deleted %d action item(s) from this conversation.", n)
}

func (h *Handler) reportMyItems(ctx context.Context, evt platform.InboundEvent) string {
	key := evt.SenderID
	if key == "" {
		key = evt.SenderName
	}
	items := h.store.ActionItemsForUser(ctx, key)
	if len(items) == 0 {
		return "No action items are assigned to you."
	}
	return formatItems(items)
}

func (h *Handler) reportFeedback(ctx context.Context) string {
	summary := h.store.SummarizeFeedback(ctx)
	if summary.Records == 0 {
		return "No feedback collected yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Feedback: %d record(s), %d like(s), %d dislike(s) (%.0f%% positive)\n",
		summary.Records, summary.Likes, summary.Dislikes, summary.LikeRatio*100)
	for _, f := range h.store.AllFeedback(ctx) {
		fmt.Fprintf(&b, "- %s [%s]: +%d/-%d", f.MessageID, capabilityLabel(f), f.Likes, f.Dislikes)
		if len(f.Comments) > 0 {
			fmt.Fprintf(&b, " %q", f.Comments)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatItems(items []models.ActionItem) string {
	byStatus := map[models.ItemStatus][]models.ActionItem{}
	for _, it := range items {
		byStatus[it.Status] = append(byStatus[it.Status], it)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d action item(s):\n", len(items))
	for _, status := range []models.ItemStatus{
		models.StatusPending, models.StatusInProgress, models.StatusCompleted, models.StatusCancelled,
	} {
		group := byStatus[status]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", strings.ReplaceAll(string(status), "_", " "))
		for _, it := range group {
			fmt.Fprintf(&b, "- #%d %s", it.ID, it.Title)
			if it.AssignedTo != "" {
				fmt.Fprintf(&b, " (assignee: %s)", it.AssignedTo)
			}
			if it.DueDate != "" {
				fmt.Fprintf(&b, " due %s", it.DueDate)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func senderLabel(m models.Message) string {
	if m.Name != "" {
		return m.Name
	}
	return string(m.Role)
}

func capabilityLabel(f models.Feedback) string {
	if f.DelegatedCapability == "" {
		return "direct"
	}
	return f.DelegatedCapability
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
