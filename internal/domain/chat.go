package domain

// ChatMessage is the provider-agnostic history entry sent to the answer
// model. Pending turns are never converted to chat messages.
type ChatMessage struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}
