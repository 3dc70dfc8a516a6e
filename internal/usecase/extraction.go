package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"crystallize-agent/internal/domain"
)

// extractionPayload mirrors the extraction schema with pointer fields so
// an absent field is distinguishable from an empty one. The remote
// payload is untrusted input regardless of the schema the request asked
// for: every required field is checked before a Crystal is constructed,
// and no partial record is ever created from a malformed payload.
type extractionPayload struct {
	Title    *string   `json:"title"`
	Summary  *string   `json:"summary"`
	Keywords *[]string `json:"keywords"`
	Category *string   `json:"category"`
}

func parseExtraction(raw string) (domain.Extraction, error) {
	var payload extractionPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		return domain.Extraction{}, fmt.Errorf("decode extraction payload: %w", err)
	}

	if payload.Title == nil || strings.TrimSpace(*payload.Title) == "" {
		return domain.Extraction{}, errors.New("extraction payload missing title")
	}
	if payload.Summary == nil || strings.TrimSpace(*payload.Summary) == "" {
		return domain.Extraction{}, errors.New("extraction payload missing summary")
	}
	if payload.Keywords == nil {
		return domain.Extraction{}, errors.New("extraction payload missing keywords")
	}
	if payload.Category == nil || strings.TrimSpace(*payload.Category) == "" {
		return domain.Extraction{}, errors.New("extraction payload missing category")
	}

	return domain.Extraction{
		Title:    *payload.Title,
		Summary:  *payload.Summary,
		Keywords: *payload.Keywords,
		Category: *payload.Category,
	}, nil
}
