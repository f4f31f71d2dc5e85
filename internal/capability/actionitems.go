package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"teamassist/internal/models"
	"teamassist/internal/storage"
	"teamassist/internal/timerange"
)

const actionItemsSystemPrompt = `You are an action-item assistant for a team chat.
You extract commitments and tasks from conversation history, create tracked action items, and report on existing ones.
When analyzing a conversation, only create items for clear commitments ("I'll send the report", "Bob will review the PR"), never for vague intentions.
Always confirm created items back to the user with title, assignee and due date.
When listing items, present them grouped by status.`

// ActionItems extracts, records and reports on tracked tasks.
type ActionItems struct{}

func (ActionItems) Name() string { return "action_items" }

func (a ActionItems) CreatePrompt(ctx context.Context, cfg *Config) (PromptRunner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return NewRunner(ctx, cfg.Model, a.tools(cfg))
}

func (a ActionItems) ProcessRequest(ctx context.Context, userText string, cfg *Config) Result {
	return run(ctx, cfg, actionItemsSystemPrompt, a.tools(cfg), userText)
}

func (a ActionItems) ToolInfos() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		analyzeConversationInfo(), createActionItemInfo(), listActionItemsInfo(),
		updateItemStatusInfo(), listChatMembersInfo(),
	}
}

func (a ActionItems) tools(cfg *Config) []tool.BaseTool {
	at := &actionItemTools{cfg: cfg}
	return []tool.BaseTool{
		utils.NewTool(analyzeConversationInfo(), at.analyzeConversation),
		utils.NewTool(createActionItemInfo(), at.createActionItem),
		utils.NewTool(listActionItemsInfo(), at.listActionItems),
		utils.NewTool(updateItemStatusInfo(), at.updateItemStatus),
		utils.NewTool(listChatMembersInfo(), at.listChatMembers),
	}
}

type actionItemTools struct {
	cfg *Config
}

func analyzeConversationInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: "analyze_conversation",
		Desc: "Fetch the conversation messages in the relevant time range together with the already-tracked action items, " +
			"so that new commitments can be identified without duplicating existing items.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"start": {
				Desc:     "Range start, ISO-8601 UTC. Empty means use the pre-resolved range from the instructions.",
				Type:     schema.String,
				Required: false,
			},
			"end": {
				Desc:     "Range end, ISO-8601 UTC. Empty means use the pre-resolved range from the instructions.",
				Type:     schema.String,
				Required: false,
			},
		}),
	}
}

type analyzeConversationParams struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (t *actionItemTools) analyzeConversation(ctx context.Context, params *analyzeConversationParams) (string, error) {
	var start, end string
	if params != nil {
		start, end = params.Start, params.End
	}
	if t.cfg.Window != nil && start == "" && end == "" {
		start = storage.Timestamp(t.cfg.Window.Start)
		end = storage.Timestamp(t.cfg.Window.End)
	}
	var err error
	if start, err = normalizeBound(start); err != nil {
		return toolError(t.cfg.log(), "analyze_conversation", err)
	}
	if end, err = normalizeBound(end); err != nil {
		return toolError(t.cfg.log(), "analyze_conversation", err)
	}
	msgs := t.cfg.Store.MessagesByTimeRange(ctx, t.cfg.ConversationID, start, end)
	existing := t.cfg.Store.ActionItemsByConversation(ctx, t.cfg.ConversationID)
	payload := struct {
		Messages      []messageView       `json:"messages"`
		ExistingItems []models.ActionItem `json:"existing_items"`
	}{
		Messages:      messagePayload(msgs),
		ExistingItems: existing,
	}
	return toolJSON(t.cfg.log(), "analyze_conversation", payload)
}

func createActionItemInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: "create_action_item",
		Desc: "Record a new action item for this conversation. Pass the assignee display name as it appears in the chat; it is matched against the roster.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"title": {
				Desc:     "Short imperative title of the task.",
				Type:     schema.String,
				Required: true,
			},
			"description": {
				Desc:     "Longer context for the task, optional.",
				Type:     schema.String,
				Required: false,
			},
			"assignee": {
				Desc:     "Display name of the person responsible.",
				Type:     schema.String,
				Required: false,
			},
			"priority": {
				Desc:     "One of: low, medium, high, urgent. Default medium.",
				Type:     schema.String,
				Required: false,
			},
			"due_date": {
				Desc:     "Due date as the user phrased it, e.g. 'tomorrow', 'end of week', '6/15'.",
				Type:     schema.String,
				Required: false,
			},
			"source_message_ids": {
				Desc:     "IDs of the messages the task was extracted from.",
				Type:     schema.Array,
				ElemInfo: &schema.ParameterInfo{Type: schema.Integer},
				Required: false,
			},
		}),
	}
}

type createActionItemParams struct {
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	Assignee         string  `json:"assignee"`
	Priority         string  `json:"priority"`
	DueDate          string  `json:"due_date"`
	SourceMessageIDs []int64 `json:"source_message_ids"`
}

func (t *actionItemTools) createActionItem(ctx context.Context, params *createActionItemParams) (string, error) {
	if params == nil || strings.TrimSpace(params.Title) == "" {
		return toolError(t.cfg.log(), "create_action_item", errors.New("title is required"))
	}
	item := models.ActionItem{
		ConversationID:   t.cfg.ConversationID,
		Title:            strings.TrimSpace(params.Title),
		Description:      params.Description,
		Priority:         models.ItemPriority(strings.ToLower(strings.TrimSpace(params.Priority))),
		AssignedBy:       t.cfg.UserName,
		AssignedByID:     t.cfg.UserID,
		SourceMessageIDs: params.SourceMessageIDs,
	}
	item.AssignedTo, item.AssignedToID = t.resolveAssignee(params.Assignee)
	item.DueDate = t.resolveDueDate(params.DueDate)

	created, err := t.cfg.Store.CreateActionItem(ctx, item)
	if err != nil {
		return toolError(t.cfg.log(), "create_action_item", err)
	}
	return toolJSON(t.cfg.log(), "create_action_item", created)
}

// resolveAssignee matches a free-text name against the roster, exact first,
// then case-insensitive. An unresolved name is kept as-is without an ID.
func (t *actionItemTools) resolveAssignee(name string) (string, string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}
	for _, p := range t.cfg.Participants {
		if p.Name == name {
			return p.Name, p.ID
		}
	}
	for _, p := range t.cfg.Participants {
		if strings.EqualFold(p.Name, name) {
			return p.Name, p.ID
		}
	}
	if t.cfg.Personal && strings.EqualFold(name, t.cfg.UserName) {
		return t.cfg.UserName, t.cfg.UserID
	}
	return name, ""
}

func (t *actionItemTools) resolveDueDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if due, ok := timerange.ResolveDueDate(raw, t.cfg.Timezone, time.Now()); ok {
		return storage.Timestamp(due)
	}
	return raw
}

func listActionItemsInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: "list_action_items",
		Desc: "List tracked action items. In a group chat this covers the whole conversation; in a personal chat only the user's own items are visible.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"assignee": {
				Desc:     "Filter by assignee display name, optional.",
				Type:     schema.String,
				Required: false,
			},
			"status": {
				Desc:     "Filter by status (pending, in_progress, completed, cancelled), optional.",
				Type:     schema.String,
				Required: false,
			},
		}),
	}
}

type listActionItemsParams struct {
	Assignee string `json:"assignee"`
	Status   string `json:"status"`
}

func (t *actionItemTools) listActionItems(ctx context.Context, params *listActionItemsParams) (string, error) {
	var items []models.ActionItem
	if t.cfg.Personal {
		// A personal chat only ever exposes the requesting user's items,
		// regardless of which conversation they were created in.
		key := t.cfg.UserID
		if key == "" {
			key = t.cfg.UserName
		}
		items = t.cfg.Store.ActionItemsForUser(ctx, key)
	} else {
		items = t.cfg.Store.ActionItemsByConversation(ctx, t.cfg.ConversationID)
	}
	if params != nil {
		items = filterItems(items, params.Assignee, params.Status)
	}
	return toolJSON(t.cfg.log(), "list_action_items", items)
}

func filterItems(items []models.ActionItem, assignee, status string) []models.ActionItem {
	out := items[:0:0]
	for _, it := range items {
		if assignee != "" && !strings.EqualFold(it.AssignedTo, assignee) {
			continue
		}
		if status != "" && !strings.EqualFold(string(it.Status), status) {
			continue
		}
		out = append(out, it)
	}
	return out
}

func updateItemStatusInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: "update_action_item_status",
		Desc: "Change the status of an existing action item by its numeric ID.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"id": {
				Desc:     "Numeric ID of the action item.",
				Type:     schema.Integer,
				Required: true,
			},
			"status": {
				Desc:     "New status: pending, in_progress, completed or cancelled.",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
}

type updateItemStatusParams struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

func (t *actionItemTools) updateItemStatus(ctx context.Context, params *updateItemStatusParams) (string, error) {
	if params == nil || params.ID <= 0 {
		return toolError(t.cfg.log(), "update_action_item_status", errors.New("id is required"))
	}
	status := models.ItemStatus(strings.ToLower(strings.TrimSpace(params.Status)))
	if !models.ValidStatus(status) {
		return toolError(t.cfg.log(), "update_action_item_status",
			fmt.Errorf("unknown status %q", params.Status))
	}
	if !t.cfg.Store.UpdateActionItemStatus(ctx, params.ID, status, t.cfg.UserName) {
		return toolError(t.cfg.log(), "update_action_item_status",
			fmt.Errorf("no action item with id %d", params.ID))
	}
	return toolJSON(t.cfg.log(), "update_action_item_status",
		map[string]any{"status": "ok", "id": params.ID, "new_status": status})
}

func listChatMembersInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name:        "list_chat_members",
		Desc:        "List the members of this chat, for resolving assignee names.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
	}
}

type listChatMembersParams struct{}

func (t *actionItemTools) listChatMembers(ctx context.Context, _ *listChatMembersParams) (string, error) {
	if len(t.cfg.Participants) == 0 {
		if t.cfg.Personal && t.cfg.UserName != "" {
			return toolJSON(t.cfg.log(), "list_chat_members",
				[]models.Participant{{Name: t.cfg.UserName, ID: t.cfg.UserID}})
		}
		return toolError(t.cfg.log(), "list_chat_members", errors.New("member list is not available for this chat"))
	}
	return toolJSON(t.cfg.log(), "list_chat_members", t.cfg.Participants)
}
