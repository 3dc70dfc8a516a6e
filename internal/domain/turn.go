package domain

import "net/url"

// Speaker identifies who authored a conversation turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Citation is a grounding source attached to an assistant turn. It is
// read-only once attached.
type Citation struct {
	URI   string `json:"uri"`
	Title string `json:"title,omitempty"`
}

// Label returns the display title for the citation, falling back to the
// host component of the URI when no title was provided.
func (c Citation) Label() string {
	if c.Title != "" {
		return c.Title
	}
	u, err := url.Parse(c.URI)
	if err != nil || u.Host == "" {
		return c.URI
	}
	return u.Host
}

// Turn is one message in a conversation. A pending turn is an assistant
// placeholder whose text and citations are filled in exactly once, when the
// answer call completes or fails.
type Turn struct {
	ID        string     `json:"id"`
	Speaker   Speaker    `json:"speaker"`
	Text      string     `json:"text"`
	CreatedAt int64      `json:"createdAt"` // unix milliseconds
	Pending   bool       `json:"pending,omitempty"`
	Citations []Citation `json:"citations,omitempty"`
}
