package models

// Feedback is the reaction ledger entry keyed by a sent message's external
// activity id. At most one record exists per message id; reactions accumulate
// additively.

const (
	ReactionLike    = "like"
	ReactionDislike = "dislike"
)

type Feedback struct {
	ID        int64    `json:"id"`
	MessageID string   `json:"message_id"`
	Likes     int      `json:"likes"`
	Dislikes  int      `json:"dislikes"`
	Comments  []string `json:"comments,omitempty"`
	// DelegatedCapability names the capability that produced the message.
	// Empty for direct answers.
	DelegatedCapability string `json:"delegated_capability,omitempty"`
	CreatedAt           string `json:"created_at"`
	UpdatedAt           string `json:"updated_at"`
}
