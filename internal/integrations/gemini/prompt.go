package gemini

import (
	"encoding/json"
	"fmt"
	"strings"
)

// answerSystemInstruction personalises the research persona with the
// user's label. The label steers tone only; it is never an access
// control input.
func answerSystemInstruction(userLabel string) string {
	return strings.Join([]string{
		"You are Crystallize AI, an intelligent research assistant.",
		fmt.Sprintf("You are talking to %q. Be friendly, professional, and address them by name occasionally.", userLabel),
		"",
		"Your goal is to provide comprehensive, fact-based answers using Google Search.",
		"Always cite your sources implicitly by using the search tool.",
		"",
		"If the user refers to previous topics, use the conversation context to answer accurately.",
	}, "\n")
}

func extractionPrompt(sourceText, contextLabel string) string {
	return strings.Join([]string{
		"Analyze the following text and \"crystallize\" it into a structured knowledge entry.",
		"Extract the core insight, a title, relevant keywords, and a broad category.",
		"",
		"Text to analyze:",
		sourceText,
		"",
		"Context/Query:",
		contextLabel,
	}, "\n")
}

func extractionResponseSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "OBJECT",
		"properties": {
			"title": {"type": "STRING", "description": "A concise title for this knowledge nugget"},
			"summary": {"type": "STRING", "description": "The crystallized insight (2-3 sentences)"},
			"keywords": {
				"type": "ARRAY",
				"items": {"type": "STRING"},
				"description": "5-7 important keywords/tags"
			},
			"category": {"type": "STRING", "description": "General domain (e.g., Technology, Health, History)"}
		},
		"required": ["title", "summary", "keywords", "category"]
	}`)
}
