package models

// Message captures one exchanged utterance stored in a conversation's history.

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Message struct {
	ID             int64  `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           Role   `json:"role"`
	Content        string `json:"content"`
	Name           string `json:"name"`
	Timestamp      string `json:"timestamp"`
	ActivityID     string `json:"activity_id,omitempty"`
}
