package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"crystallize-agent/internal/domain"
)

// content is a single entry in the generateContent conversation payload.
type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// generateRequest is the minimal request shape for the generateContent
// endpoint. Tools carries the Google Search grounding tool for answer
// queries; GenerationConfig carries the JSON response schema for
// extraction queries.
type generateRequest struct {
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Contents          []content         `json:"contents"`
	Tools             []tool            `json:"tools,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type tool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
}

type generationConfig struct {
	ResponseMIMEType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

// generateResponse is the minimal response shape returned by the
// generateContent endpoint.
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		GroundingMetadata *struct {
			GroundingChunks []struct {
				Web *struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
}

// tokenPayload is the expected JSON shape stored in SSM for the API key.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("gemini: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused Gemini client for search-grounded answers and
// schema-constrained knowledge extraction.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string

	keyOnce sync.Once
	apiKey  string
	keyErr  error
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a new Client backed by the given paramstore Getter for
// API key retrieval. The key is fetched from SSM on the first call and
// reused for the lifetime of the process.
func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("gemini: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("gemini: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     "https://generativelanguage.googleapis.com",
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveAPIKey fetches the API key from SSM on the first call and returns
// the cached result on every subsequent call within the same process.
func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyOnce.Do(func() {
		c.apiKey, c.keyErr = fetchAPIKeyFromParamStore(ctx, c.getter, c.tokenParameterName())
	})
	return c.apiKey, c.keyErr
}

func (c *Client) tokenParameterName() string {
	return c.paramPrefix + "/gemini-api-key"
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func generateURL(baseURL, model string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = "https://generativelanguage.googleapis.com"
	}
	return base + "/v1beta/models/" + model + ":generateContent"
}

// AnswerQuery runs a search-grounded query against the model, replaying
// the prior conversation and personalising the system instruction with
// the user's label. It returns the answer text and the grounding
// citations in response order.
func (c *Client) AnswerQuery(ctx context.Context, model, query string, history []domain.ChatMessage, userLabel string) (string, []domain.Citation, error) {
	if model == "" {
		return "", nil, errors.New("gemini: model must not be empty")
	}

	contents := make([]content, 0, len(history)+1)
	for _, m := range history {
		contents = append(contents, content{
			Role:  providerRole(m.Speaker),
			Parts: []part{{Text: m.Text}},
		})
	}
	contents = append(contents, content{Role: "user", Parts: []part{{Text: query}}})

	req := generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: answerSystemInstruction(userLabel)}}},
		Contents:          contents,
		Tools:             []tool{{GoogleSearch: &struct{}{}}},
	}

	payload, err := c.generate(ctx, model, req)
	if err != nil {
		return "", nil, err
	}
	return candidateText(payload), candidateCitations(payload), nil
}

// ExtractKnowledge asks the model to distill sourceText into a structured
// knowledge entry, constrained to the extraction JSON schema. It returns
// the raw JSON payload; callers validate it before constructing a record.
func (c *Client) ExtractKnowledge(ctx context.Context, model, sourceText, contextLabel string) (string, error) {
	if model == "" {
		return "", errors.New("gemini: model must not be empty")
	}

	req := generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: extractionPrompt(sourceText, contextLabel)}},
		}},
		GenerationConfig: &generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   extractionResponseSchema(),
		},
	}

	payload, err := c.generate(ctx, model, req)
	if err != nil {
		return "", err
	}
	text := candidateText(payload)
	if strings.TrimSpace(text) == "" {
		return "", errors.New("gemini: no payload returned from extraction")
	}
	return text, nil
}

func (c *Client) generate(ctx context.Context, model string, greq generateRequest) (*generateResponse, error) {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(greq)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := generateURL(c.baseURL, model)

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return nil, fmt.Errorf("gemini: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return nil, fmt.Errorf("gemini: request failed: %w", err)
	}

	var payload generateResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return nil, fmt.Errorf("gemini: decode response: %w", decErr)
	}
	if len(payload.Candidates) == 0 {
		return nil, errors.New("gemini: no candidates in response")
	}
	return &payload, nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func providerRole(speaker domain.Speaker) string {
	if speaker == domain.SpeakerAssistant {
		return "model"
	}
	return "user"
}

func candidateText(payload *generateResponse) string {
	var b strings.Builder
	for _, p := range payload.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func candidateCitations(payload *generateResponse) []domain.Citation {
	meta := payload.Candidates[0].GroundingMetadata
	if meta == nil {
		return nil
	}
	citations := make([]domain.Citation, 0, len(meta.GroundingChunks))
	for _, chunk := range meta.GroundingChunks {
		if chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		citations = append(citations, domain.Citation{URI: chunk.Web.URI, Title: chunk.Web.Title})
	}
	if len(citations) == 0 {
		return nil
	}
	return citations
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("gemini: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("gemini: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("gemini: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("gemini: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", fmt.Errorf("gemini: API token is empty")
	}
	return tp.Token, nil
}
