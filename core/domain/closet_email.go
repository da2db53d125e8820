package domain

import "time"

// RawEmail is a provider message as fetched. Immutable once fetched.
type RawEmail struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	ReceivedAt time.Time `json:"received_at"`
	BodyHTML   string    `json:"-"`
	BodyText   string    `json:"-"`
	Snippet    string    `json:"snippet,omitempty"`
	IsRead     bool      `json:"is_read"`
}

// NormalizedContent is the body after forwarded-wrapper unwrapping.
// Either field may be empty; both empty means the email had no body.
type NormalizedContent struct {
	HTML string
	Text string
}

// IsEmpty reports whether there is no content at all.
func (n NormalizedContent) IsEmpty() bool {
	return n.HTML == "" && n.Text == ""
}
