package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"teamassist/internal/models"
	"teamassist/internal/storage"
)

const summarizerSystemPrompt = `You are a conversation summarizer for a team chat assistant.
Use the provided tools to read the conversation history, then produce a concise summary.
Organize the summary by topic, call out decisions and open questions, and attribute key points to the people who raised them.
If the requested range contains no messages, say so plainly instead of inventing content.`

const defaultRecentLimit = 50

// Summarizer condenses conversation history over a recent slice or an
// explicit time range.
type Summarizer struct{}

func (Summarizer) Name() string { return "summarizer" }

func (s Summarizer) CreatePrompt(ctx context.Context, cfg *Config) (PromptRunner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return NewRunner(ctx, cfg.Model, s.tools(cfg))
}

func (s Summarizer) ProcessRequest(ctx context.Context, userText string, cfg *Config) Result {
	return run(ctx, cfg, summarizerSystemPrompt, s.tools(cfg), userText)
}

func (s Summarizer) ToolInfos() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		recentMessagesInfo(), messagesInRangeInfo(), formatRecentInfo(), conversationStatsInfo(),
	}
}

func (s Summarizer) tools(cfg *Config) []tool.BaseTool {
	st := &summarizerTools{cfg: cfg}
	return []tool.BaseTool{
		utils.NewTool(recentMessagesInfo(), st.recentMessages),
		utils.NewTool(messagesInRangeInfo(), st.messagesInRange),
		utils.NewTool(formatRecentInfo(), st.formatRecent),
		utils.NewTool(conversationStatsInfo(), st.conversationStats),
	}
}

type summarizerTools struct {
	cfg *Config
}

func recentMessagesInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: "get_recent_messages",
		Desc: "Fetch the most recent messages of this conversation in chronological order.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"limit": {
				Desc:     "Maximum number of messages to return, default 50.",
				Type:     schema.Integer,
				Required: false,
			},
		}),
	}
}

type recentMessagesParams struct {
	Limit int `json:"limit"`
}

func (t *summarizerTools) recentMessages(ctx context.Context, params *recentMessagesParams) (string, error) {
	limit := defaultRecentLimit
	if params != nil && params.Limit > 0 {
		limit = params.Limit
	}
	msgs := t.cfg.Store.RecentMessages(ctx, t.cfg.ConversationID, limit)
	return toolJSON(t.cfg.log(), "get_recent_messages", messagePayload(msgs))
}

func messagesInRangeInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: "get_messages_in_range",
		Desc: "Fetch conversation messages between two timestamps (inclusive). " +
			"Prefer the pre-resolved time range from the instructions when one is given.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"start": {
				Desc:     "Range start, ISO-8601 UTC. Empty means unbounded.",
				Type:     schema.String,
				Required: false,
			},
			"end": {
				Desc:     "Range end, ISO-8601 UTC. Empty means unbounded.",
				Type:     schema.String,
				Required: false,
			},
		}),
	}
}

type messagesInRangeParams struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (t *summarizerTools) messagesInRange(ctx context.Context, params *messagesInRangeParams) (string, error) {
	if params == nil {
		return toolError(t.cfg.log(), "get_messages_in_range", errors.New("missing range parameters"))
	}
	start, end := params.Start, params.End
	if t.cfg.Window != nil && start == "" && end == "" {
		start = storage.Timestamp(t.cfg.Window.Start)
		end = storage.Timestamp(t.cfg.Window.End)
	}
	var err error
	if start, err = normalizeBound(start); err != nil {
		return toolError(t.cfg.log(), "get_messages_in_range", err)
	}
	if end, err = normalizeBound(end); err != nil {
		return toolError(t.cfg.log(), "get_messages_in_range", err)
	}
	msgs := t.cfg.Store.MessagesByTimeRange(ctx, t.cfg.ConversationID, start, end)
	return toolJSON(t.cfg.log(), "get_messages_in_range", messagePayload(msgs))
}

func formatRecentInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: "format_recent_messages",
		Desc: "Render the most recent messages as a readable transcript, one line per message.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"limit": {
				Desc:     "Maximum number of messages to render, default 50.",
				Type:     schema.Integer,
				Required: false,
			},
		}),
	}
}

func (t *summarizerTools) formatRecent(ctx context.Context, params *recentMessagesParams) (string, error) {
	limit := defaultRecentLimit
	if params != nil && params.Limit > 0 {
		limit = params.Limit
	}
	msgs := t.cfg.Store.RecentMessages(ctx, t.cfg.ConversationID, limit)
	if len(msgs) == 0 {
		return "No messages found in this conversation.", nil
	}
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp, displayName(m), m.Content)
	}
	return b.String(), nil
}

func conversationStatsInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name:        "get_conversation_stats",
		Desc:        "Report message counts, participants and the time span covered by this conversation.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
	}
}

type conversationStatsParams struct{}

func (t *summarizerTools) conversationStats(ctx context.Context, _ *conversationStatsParams) (string, error) {
	msgs := t.cfg.Store.MessagesByTimeRange(ctx, t.cfg.ConversationID, "", "")
	stats := struct {
		Total        int            `json:"total_messages"`
		ByRole       map[string]int `json:"by_role"`
		BySender     map[string]int `json:"by_sender"`
		Oldest       string         `json:"oldest,omitempty"`
		Newest       string         `json:"newest,omitempty"`
		Participants []string       `json:"participants"`
	}{
		Total:        len(msgs),
		ByRole:       map[string]int{},
		BySender:     map[string]int{},
		Participants: []string{},
	}
	for _, m := range msgs {
		stats.ByRole[string(m.Role)]++
		name := displayName(m)
		if stats.BySender[name] == 0 && m.Role == models.RoleUser {
			stats.Participants = append(stats.Participants, name)
		}
		stats.BySender[name]++
	}
	if len(msgs) > 0 {
		stats.Oldest = msgs[0].Timestamp
		stats.Newest = msgs[len(msgs)-1].Timestamp
	}
	return toolJSON(t.cfg.log(), "get_conversation_stats", stats)
}

type messageView struct {
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func messagePayload(msgs []models.Message) []messageView {
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView{
			ID:        m.ID,
			Sender:    displayName(m),
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	return out
}

func displayName(m models.Message) string {
	if m.Name != "" {
		return m.Name
	}
	if m.Role == models.RoleAssistant {
		return "Assistant"
	}
	return "Unknown User"
}
