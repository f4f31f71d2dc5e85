package models

// Participant is one member of a group conversation as reported by the chat
// host roster lookup.
type Participant struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}
