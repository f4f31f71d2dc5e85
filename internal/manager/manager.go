// Package manager routes inbound chat events: operator commands are handled
// locally, everything else goes through one LLM tool-selection pass that
// either answers directly or delegates to exactly one capability.
package manager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"teamassist/internal/capability"
	"teamassist/internal/debugcmd"
	"teamassist/internal/metrics"
	"teamassist/internal/models"
	"teamassist/internal/platform"
	"teamassist/internal/storage"
	"teamassist/internal/timerange"
	"teamassist/internal/tracking"
)

const managerSystemPrompt = `You are a team chat assistant. You have specialized helpers available as tools:
- delegate_to_summarizer: for requests to summarize or recap conversation history.
- delegate_to_action_items: for extracting, creating, listing or updating action items and tasks.
- delegate_to_search: for finding specific past messages.
Delegate at most one helper per request, passing the user's request through faithfully.
If the request mentions a time period ("yesterday", "last week", "this morning"), pass that phrase as the time_range argument.
For greetings, small talk, or questions about your abilities, answer directly without delegating.`

const fallbackReply = "Sorry, I ran into a problem handling that. " +
	"I can summarize conversations, track action items, and search past messages - try one of those."

// Result is the outcome of processing one inbound event.
type Result struct {
	Response string
	// DelegatedCapability names the capability that handled the request, or
	// is empty for direct answers and fallbacks.
	DelegatedCapability string
	Citations           []models.Citation
	Cards               []models.QuotedCard
}

// newRunner builds the manager's tool-selection agent; tests substitute a
// scripted implementation.
var newRunner = capability.NewRunner

// Manager owns the capability registry and the per-event processing cycle.
type Manager struct {
	store     *storage.Store
	tracker   *tracking.Tracker
	model     model.ToolCallingChatModel
	roster    platform.Roster
	debug     *debugcmd.Handler
	logger    *zap.Logger
	caps      []capability.Capability
	webSearch tool.BaseTool
	now       func() time.Time
}

// New wires a manager with the standard capability set. roster may be nil
// when no membership source is available; webSearch may be nil when no
// search provider is configured.
func New(store *storage.Store, tracker *tracking.Tracker, chatModel model.ToolCallingChatModel,
	roster platform.Roster, webSearch tool.BaseTool, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		tracker: tracker,
		model:   chatModel,
		roster:  roster,
		debug:   debugcmd.New(store, tracker, logger),
		logger:  logger,
		caps: []capability.Capability{
			capability.Summarizer{},
			capability.ActionItems{},
			capability.Search{},
		},
		webSearch: webSearch,
		now:       time.Now,
	}
}

// HandleEvent runs the full cycle for one inbound event: operator command
// interception, user-turn tracking, processing, assistant-turn tracking, and
// a flush that runs on every exit path.
func (m *Manager) HandleEvent(ctx context.Context, evt platform.InboundEvent) Result {
	if debugcmd.IsCommand(evt.Text) {
		report, ok := m.debug.Handle(ctx, evt)
		if ok {
			return Result{Response: report}
		}
	}

	m.tracker.Add(evt.ConversationID, models.RoleUser, evt.Text, &evt, evt.SenderName)
	defer func() {
		saved, filtered, err := m.tracker.Flush(ctx, evt.ConversationID)
		if err != nil {
			m.logger.Error("flush failed", zap.String("conversation_id", evt.ConversationID), zap.Error(err))
			return
		}
		metrics.MessagesPersisted.Add(float64(saved))
		metrics.MessagesFiltered.Add(float64(filtered))
	}()

	res := m.Process(ctx, evt)
	m.tracker.Add(evt.ConversationID, models.RoleAssistant, res.Response, &evt, "")
	return res
}

// Process runs one tool-selection pass for the event. Failures of any kind,
// including panics out of the model stack, degrade to the canned fallback.
func (m *Manager) Process(ctx context.Context, evt platform.InboundEvent) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic while processing event",
				zap.String("conversation_id", evt.ConversationID), zap.Any("panic", r))
			metrics.FallbackReplies.Inc()
			res = Result{Response: fallbackReply}
		}
	}()

	cfg, contextNote := m.buildConfig(ctx, evt)
	var delegated string
	tools := m.delegationTools(&delegated, cfg, evt)
	if m.webSearch != nil {
		tools = append(tools, m.webSearch)
	}

	runner, err := newRunner(ctx, m.model, tools)
	if err != nil {
		m.logger.Error("manager agent init failed", zap.Error(err))
		metrics.FallbackReplies.Inc()
		return Result{Response: fallbackReply}
	}

	messages := []*schema.Message{
		{Role: schema.System, Content: managerSystemPrompt},
		{Role: schema.System, Content: contextNote},
		{Role: schema.User, Content: evt.Text},
	}
	resp, err := runner.Generate(ctx, messages)
	if err != nil {
		m.logger.Error("manager generate failed",
			zap.String("conversation_id", evt.ConversationID), zap.Error(err))
		metrics.FallbackReplies.Inc()
		return Result{Response: fallbackReply, DelegatedCapability: delegated}
	}

	response := strings.TrimSpace(resp.Content)
	if response == "" {
		metrics.FallbackReplies.Inc()
		response = fallbackReply
	}
	return Result{
		Response:            response,
		DelegatedCapability: delegated,
		Citations:           cfg.Output.Citations,
		Cards:               cfg.Output.Cards,
	}
}

// buildConfig assembles the per-request capability configuration and the
// chat-context note for the prompt. Three modes: personal chat, group chat
// with a member roster, group chat without one.
func (m *Manager) buildConfig(ctx context.Context, evt platform.InboundEvent) (*capability.Config, string) {
	cfg := &capability.Config{
		ConversationID: evt.ConversationID,
		Timezone:       evt.Timezone,
		Store:          m.store,
		Model:          m.model,
		Personal:       evt.IsPersonal(),
		UserID:         evt.SenderID,
		UserName:       evt.SenderName,
		Output:         &capability.Output{},
		Logger:         m.logger,
	}

	if cfg.Personal {
		cfg.Participants = []models.Participant{{Name: evt.SenderName, ID: evt.SenderID}}
		return cfg, fmt.Sprintf("This is a personal chat with %s.", evt.SenderName)
	}

	cfg.Participants = m.groupParticipants(ctx, evt)
	if len(cfg.Participants) == 0 {
		return cfg, "This is a group chat. The member list is unavailable; do not guess at membership."
	}
	names := make([]string, 0, len(cfg.Participants))
	for _, p := range cfg.Participants {
		names = append(names, p.Name)
	}
	return cfg, fmt.Sprintf("This is a group chat with members: %s.", strings.Join(names, ", "))
}

// groupParticipants merges the event's member list with the roster source,
// deduplicating by stable id (falling back to name when a member has none).
func (m *Manager) groupParticipants(ctx context.Context, evt platform.InboundEvent) []models.Participant {
	merged := append([]models.Participant(nil), evt.Participants...)
	if m.roster != nil {
		fromRoster, err := m.roster.ListParticipants(ctx, evt.ConversationID)
		if err != nil {
			m.logger.Warn("roster lookup failed",
				zap.String("conversation_id", evt.ConversationID), zap.Error(err))
		} else {
			merged = append(merged, fromRoster...)
		}
	}

	seen := make(map[string]bool, len(merged))
	out := merged[:0:0]
	for _, p := range merged {
		if p.Name == "" && p.ID == "" {
			continue
		}
		key := p.ID
		if key == "" {
			key = "name:" + strings.ToLower(p.Name)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

// delegationTools builds one hand-off tool per capability. Each tool resolves
// any time-range phrase before invoking the capability so the manager and the
// capability always agree on the window.
func (m *Manager) delegationTools(delegated *string, cfg *capability.Config, evt platform.InboundEvent) []tool.BaseTool {
	tools := make([]tool.BaseTool, 0, len(m.caps))
	for _, c := range m.caps {
		c := c
		info := &schema.ToolInfo{
			Name: "delegate_to_" + c.Name(),
			Desc: delegationDesc(c.Name()),
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"request": {
					Desc:     "The user's request, passed through faithfully.",
					Type:     schema.String,
					Required: true,
				},
				"time_range": {
					Desc:     "The time period phrase from the request, verbatim (e.g. 'yesterday', 'last week'), if any.",
					Type:     schema.String,
					Required: false,
				},
			}),
		}
		run := func(ctx context.Context, params *delegationParams) (string, error) {
			if params == nil || strings.TrimSpace(params.Request) == "" {
				return `{"status":"error","message":"request is required"}`, nil
			}
			*delegated = c.Name()
			metrics.Delegations.WithLabelValues(c.Name()).Inc()

			if tr := strings.TrimSpace(params.TimeRange); tr != "" {
				w := timerange.Resolve(tr, evt.Timezone, m.now())
				cfg.Window = &w
			}

			res := c.ProcessRequest(ctx, params.Request, cfg)
			if res.Err != "" {
				m.logger.Error("capability failed", zap.String("capability", c.Name()),
					zap.String("conversation_id", evt.ConversationID), zap.String("error", res.Err))
				return `{"status":"error","message":"the helper could not complete the request"}`, nil
			}
			return res.Response, nil
		}
		tools = append(tools, utils.NewTool(info, run))
	}
	return tools
}

type delegationParams struct {
	Request   string `json:"request"`
	TimeRange string `json:"time_range"`
}

func delegationDesc(name string) string {
	switch name {
	case "summarizer":
		return "Hand the request to the conversation summarizer."
	case "action_items":
		return "Hand the request to the action item tracker (extract, create, list or update tasks)."
	case "search":
		return "Hand the request to the message search helper."
	default:
		return "Hand the request to the " + name + " helper."
	}
}
