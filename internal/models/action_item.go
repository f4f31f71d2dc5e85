package models

// ActionItem is a task extracted or created from conversation content. An item
// belongs to exactly one conversation but is also queryable by assignee id
// across conversations.

type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusInProgress ItemStatus = "in_progress"
	StatusCompleted  ItemStatus = "completed"
	StatusCancelled  ItemStatus = "cancelled"
)

// ValidStatus reports whether s is one of the known item statuses.
func ValidStatus(s ItemStatus) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type ItemPriority string

const (
	PriorityLow    ItemPriority = "low"
	PriorityMedium ItemPriority = "medium"
	PriorityHigh   ItemPriority = "high"
	PriorityUrgent ItemPriority = "urgent"
)

// ValidPriority reports whether p is one of the known item priorities.
func ValidPriority(p ItemPriority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type ActionItem struct {
	ID             int64        `json:"id"`
	ConversationID string       `json:"conversation_id"`
	Title          string       `json:"title"`
	Description    string       `json:"description,omitempty"`
	AssignedTo     string       `json:"assigned_to,omitempty"`
	AssignedToID   string       `json:"assigned_to_id,omitempty"`
	AssignedBy     string       `json:"assigned_by,omitempty"`
	AssignedByID   string       `json:"assigned_by_id,omitempty"`
	Status         ItemStatus   `json:"status"`
	Priority       ItemPriority `json:"priority"`
	DueDate        string       `json:"due_date,omitempty"`
	CreatedAt      string       `json:"created_at"`
	UpdatedAt      string       `json:"updated_at"`
	UpdatedBy      string       `json:"updated_by,omitempty"`
	// SourceMessageIDs references the stored messages the item was extracted
	// from, when known.
	SourceMessageIDs []int64 `json:"source_message_ids,omitempty"`
}
