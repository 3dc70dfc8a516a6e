package domain

// Crystal is a structured knowledge record distilled from an assistant
// turn. Immutable after creation except for deletion.
type Crystal struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"` // 2-3 sentence synthesis
	Keywords  []string `json:"keywords"`
	Category  string   `json:"category"`
	SourceURL string   `json:"sourceUrl,omitempty"`
	CreatedAt int64    `json:"createdAt"` // unix milliseconds
}

// Extraction is the validated payload returned by the knowledge
// extraction call. All fields are required.
type Extraction struct {
	Title    string   `json:"title"`
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
	Category string   `json:"category"`
}
