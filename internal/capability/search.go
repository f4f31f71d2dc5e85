package capability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"teamassist/internal/models"
	"teamassist/internal/storage"
)

const searchSystemPrompt = `You are a conversation search assistant for a team chat.
Use the search tool to find messages matching the user's keywords and participants, then present the results grouped by how recent they are.
Report the sender, time and content of each hit. If nothing matched, say so and suggest loosening the search.`

const (
	defaultSearchLimit = 20
	maxQuotedCards     = 5

	// deepLinkBase is the chat platform's message permalink prefix.
	deepLinkBase = "https://teams.example.com/l/message"
)

// Search finds past messages by keyword, participant and time range, and
// surfaces the top hits as quotable cards.
type Search struct{}

func (Search) Name() string { return "search" }

func (s Search) CreatePrompt(ctx context.Context, cfg *Config) (PromptRunner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return NewRunner(ctx, cfg.Model, s.tools(cfg))
}

func (s Search) ProcessRequest(ctx context.Context, userText string, cfg *Config) Result {
	return run(ctx, cfg, searchSystemPrompt, s.tools(cfg), userText)
}

func (s Search) ToolInfos() []*schema.ToolInfo {
	return []*schema.ToolInfo{searchMessagesInfo()}
}

func (s Search) tools(cfg *Config) []tool.BaseTool {
	st := &searchTools{cfg: cfg, now: time.Now}
	return []tool.BaseTool{utils.NewTool(searchMessagesInfo(), st.searchMessages)}
}

type searchTools struct {
	cfg *Config
	now func() time.Time
}

func searchMessagesInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: "search_messages",
		Desc: "Search this conversation's history. Keywords are OR-combined; participant filters match sender names in either direction ('Rob' finds 'Rob Smith').",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"keywords": {
				Desc:     "Words or phrases to look for in message content; a message matches if it contains any of them.",
				Type:     schema.Array,
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
				Required: false,
			},
			"participants": {
				Desc:     "Restrict to messages sent by these people, optional.",
				Type:     schema.Array,
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
				Required: false,
			},
			"start": {
				Desc:     "Range start, ISO-8601 UTC. Empty means use the pre-resolved range when one was given, otherwise unbounded.",
				Type:     schema.String,
				Required: false,
			},
			"end": {
				Desc:     "Range end, ISO-8601 UTC.",
				Type:     schema.String,
				Required: false,
			},
			"max_results": {
				Desc:     "Maximum number of hits to return, default 20.",
				Type:     schema.Integer,
				Required: false,
			},
		}),
	}
}

type searchMessagesParams struct {
	Keywords     []string `json:"keywords"`
	Participants []string `json:"participants"`
	Start        string   `json:"start"`
	End          string   `json:"end"`
	MaxResults   int      `json:"max_results"`
}

func (t *searchTools) searchMessages(ctx context.Context, params *searchMessagesParams) (string, error) {
	if params == nil {
		return toolError(t.cfg.log(), "search_messages", errors.New("missing search parameters"))
	}
	start, end := params.Start, params.End
	if t.cfg.Window != nil && start == "" && end == "" {
		start = storage.Timestamp(t.cfg.Window.Start)
		end = storage.Timestamp(t.cfg.Window.End)
	}
	var err error
	if start, err = normalizeBound(start); err != nil {
		return toolError(t.cfg.log(), "search_messages", err)
	}
	if end, err = normalizeBound(end); err != nil {
		return toolError(t.cfg.log(), "search_messages", err)
	}

	msgs := t.cfg.Store.MessagesByTimeRange(ctx, t.cfg.ConversationID, start, end)
	hits := filterHits(msgs, params.Keywords, params.Participants)

	// Newest first, then cap.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Timestamp > hits[j].Timestamp })
	limit := params.MaxResults
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}

	t.collectCards(hits)
	return t.render(hits), nil
}

func filterHits(msgs []models.Message, keywords, participants []string) []models.Message {
	var hits []models.Message
	for _, m := range msgs {
		if !matchKeywords(m.Content, keywords) {
			continue
		}
		if !matchParticipant(displayName(m), participants) {
			continue
		}
		hits = append(hits, m)
	}
	return hits
}

// matchKeywords is an OR over case-insensitive substring matches. No keywords
// means every message matches.
func matchKeywords(content string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(content)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// matchParticipant matches in both directions so a partial filter like "rob"
// finds "Rob Smith" and a full filter "Rob Smith" still matches a stored
// short name.
func matchParticipant(sender string, participants []string) bool {
	if len(participants) == 0 {
		return true
	}
	senderLower := strings.ToLower(sender)
	for _, p := range participants {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if strings.Contains(senderLower, p) || strings.Contains(p, senderLower) {
			return true
		}
	}
	return false
}

// collectCards turns the top hits into quotable cards with a deep link back
// to the original message when its platform activity id is known.
func (t *searchTools) collectCards(hits []models.Message) {
	if t.cfg.Output == nil {
		return
	}
	for i, m := range hits {
		if i >= maxQuotedCards {
			break
		}
		card := models.QuotedCard{
			Author:    displayName(m),
			Text:      m.Content,
			Timestamp: m.Timestamp,
		}
		if m.ActivityID != "" {
			card.DeepLink = fmt.Sprintf("%s/%s/%s", deepLinkBase, t.cfg.ConversationID, m.ActivityID)
		}
		t.cfg.Output.Cards = append(t.cfg.Output.Cards, card)
	}
}

func (t *searchTools) render(hits []models.Message) string {
	if len(hits) == 0 {
		return "No messages matched the search."
	}
	now := t.now().UTC()
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d matching message(s):\n", len(hits))
	current := ""
	for _, m := range hits {
		bucket := ageBucket(now, m.Timestamp)
		if bucket != current {
			fmt.Fprintf(&b, "\n%s:\n", bucket)
			current = bucket
		}
		fmt.Fprintf(&b, "- [%s] %s: %s\n", m.Timestamp, displayName(m), m.Content)
	}
	return b.String()
}

// ageBucket labels a hit by how far in the past it is relative to now.
func ageBucket(now time.Time, timestamp string) string {
	ts, err := storage.ParseTimestamp(timestamp)
	if err != nil {
		return "Older"
	}
	age := now.Sub(ts)
	switch {
	case age < 24*time.Hour:
		return "Today"
	case age < 48*time.Hour:
		return "Yesterday"
	case age < 7*24*time.Hour:
		return "This week"
	case age < 30*24*time.Hour:
		return "This month"
	default:
		return "Older"
	}
}
