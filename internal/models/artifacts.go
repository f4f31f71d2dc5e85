package models

// Citation is a source reference attached to a capability response.
type Citation struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
	Quote string `json:"quote,omitempty"`
}

// QuotedCard is a rendered search match carrying a deep link back to the
// original message. Cards travel on a side channel next to the textual
// response so the caller can render them as attachments.
type QuotedCard struct {
	Author    string `json:"author"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	DeepLink  string `json:"deep_link,omitempty"`
}
