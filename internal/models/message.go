package models

import "time"

// Message body content types as reported by the mail provider.
const (
	BodyTypeText = "text"
	BodyTypeHTML = "html"
)

// Message is an inbox message reduced to the fields the reconciler needs.
// The provider remains the source of truth; messages are never persisted.
type Message struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Sender     string    `json:"sender"`
	Body       string    `json:"body"`
	BodyType   string    `json:"body_type"`
	ReceivedAt time.Time `json:"received_at"`
	Categories []string  `json:"categories"`
}

// HasCategory reports whether the message already carries the given category.
func (m *Message) HasCategory(name string) bool {
	for _, c := range m.Categories {
		if c == name {
			return true
		}
	}
	return false
}
