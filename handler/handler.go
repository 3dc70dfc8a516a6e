package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"crystallize-agent/internal/domain"
	"crystallize-agent/internal/usecase"
)

// Assistant is the slice of the usecase service consumed by the handler.
// *usecase.Service satisfies it.
type Assistant interface {
	Submit(ctx context.Context, identity, question string) (domain.Turn, error)
	Crystallize(ctx context.Context, identity, turnID string) (usecase.CrystallizeResult, error)
	Turns(ctx context.Context, identity string) ([]domain.Turn, error)
	SearchCrystals(ctx context.Context, identity, term string) ([]domain.Crystal, error)
	DeleteCrystal(ctx context.Context, identity, id string) error
	Reset(ctx context.Context, identity string) error
	GetSettings(ctx context.Context) (usecase.Settings, error)
	PutSettings(ctx context.Context, settings usecase.Settings) error
}

type Response struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

type askRequest struct {
	Identity string `json:"identity"`
	Question string `json:"question"`
}

type askResponse struct {
	Turn domain.Turn `json:"turn"`
}

type crystallizeRequest struct {
	Identity string `json:"identity"`
	TurnID   string `json:"turnId"`
}

type crystallizeResponse struct {
	Crystal domain.Crystal `json:"crystal"`
	View    string         `json:"view"`
}

type identityRequest struct {
	Identity string `json:"identity"`
}

type turnsResponse struct {
	Turns []domain.Turn `json:"turns"`
}

type crystalsResponse struct {
	Crystals []domain.Crystal `json:"crystals"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Handler routes the API Gateway surface onto the assistant service.
type Handler struct {
	assistant Assistant
}

func NewHandler(a Assistant) (*Handler, error) {
	if a == nil {
		return nil, errors.New("handler: assistant must not be nil")
	}
	return &Handler{assistant: a}, nil
}

func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (Response, error) {
	correlationID := correlationIDFrom(event.Headers)

	status, body := h.route(ctx, event)
	return Response{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":     "application/json",
			"X-Correlation-Id": correlationID,
		},
		Body: body,
	}, nil
}

func (h *Handler) route(ctx context.Context, event events.APIGatewayProxyRequest) (int, string) {
	path := strings.TrimRight(event.Path, "/")
	method := event.HTTPMethod

	switch {
	case method == http.MethodPost && path == "/ask":
		return h.handleAsk(ctx, event.Body)
	case method == http.MethodGet && path == "/conversation":
		return h.handleConversation(ctx, event.QueryStringParameters)
	case method == http.MethodPost && path == "/crystallize":
		return h.handleCrystallize(ctx, event.Body)
	case method == http.MethodGet && path == "/crystals":
		return h.handleCrystals(ctx, event.QueryStringParameters)
	case method == http.MethodDelete && strings.HasPrefix(path, "/crystals/"):
		return h.handleDeleteCrystal(ctx, strings.TrimPrefix(path, "/crystals/"), event.QueryStringParameters)
	case method == http.MethodPost && path == "/reset":
		return h.handleReset(ctx, event.Body)
	case method == http.MethodGet && path == "/settings":
		return h.handleGetSettings(ctx)
	case method == http.MethodPut && path == "/settings":
		return h.handlePutSettings(ctx, event.Body)
	}
	return http.StatusNotFound, encode(errorResponse{Error: "NOT_FOUND", Reason: "unknown_route"})
}

func (h *Handler) handleAsk(ctx context.Context, body string) (int, string) {
	var req askRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return http.StatusBadRequest, encode(errorResponse{Error: string(usecase.ErrorValidation), Reason: "invalid_body"})
	}
	turn, err := h.assistant.Submit(ctx, req.Identity, req.Question)
	if err != nil {
		return errorStatus(err)
	}
	return http.StatusOK, encode(askResponse{Turn: turn})
}

func (h *Handler) handleConversation(ctx context.Context, query map[string]string) (int, string) {
	turns, err := h.assistant.Turns(ctx, query["identity"])
	if err != nil {
		return errorStatus(err)
	}
	return http.StatusOK, encode(turnsResponse{Turns: turns})
}

func (h *Handler) handleCrystallize(ctx context.Context, body string) (int, string) {
	var req crystallizeRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return http.StatusBadRequest, encode(errorResponse{Error: string(usecase.ErrorValidation), Reason: "invalid_body"})
	}
	result, err := h.assistant.Crystallize(ctx, req.Identity, req.TurnID)
	if err != nil {
		return errorStatus(err)
	}
	return http.StatusOK, encode(crystallizeResponse{Crystal: result.Crystal, View: result.View})
}

func (h *Handler) handleCrystals(ctx context.Context, query map[string]string) (int, string) {
	crystals, err := h.assistant.SearchCrystals(ctx, query["identity"], query["q"])
	if err != nil {
		return errorStatus(err)
	}
	return http.StatusOK, encode(crystalsResponse{Crystals: crystals})
}

func (h *Handler) handleDeleteCrystal(ctx context.Context, id string, query map[string]string) (int, string) {
	if err := h.assistant.DeleteCrystal(ctx, query["identity"], id); err != nil {
		return errorStatus(err)
	}
	return http.StatusNoContent, ""
}

func (h *Handler) handleReset(ctx context.Context, body string) (int, string) {
	var req identityRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return http.StatusBadRequest, encode(errorResponse{Error: string(usecase.ErrorValidation), Reason: "invalid_body"})
	}
	if err := h.assistant.Reset(ctx, req.Identity); err != nil {
		return errorStatus(err)
	}
	return http.StatusNoContent, ""
}

func (h *Handler) handleGetSettings(ctx context.Context) (int, string) {
	settings, err := h.assistant.GetSettings(ctx)
	if err != nil {
		return errorStatus(err)
	}
	return http.StatusOK, encode(settings)
}

func (h *Handler) handlePutSettings(ctx context.Context, body string) (int, string) {
	var settings usecase.Settings
	if err := json.Unmarshal([]byte(body), &settings); err != nil {
		return http.StatusBadRequest, encode(errorResponse{Error: string(usecase.ErrorValidation), Reason: "invalid_body"})
	}
	if err := h.assistant.PutSettings(ctx, settings); err != nil {
		return errorStatus(err)
	}
	return http.StatusNoContent, ""
}

// errorStatus maps the usecase error taxonomy onto HTTP statuses. A
// duplicate in-flight request maps to 409 so clients can tell it apart
// from bad input.
func errorStatus(err error) (int, string) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, encode(errorResponse{Error: string(usecase.ErrorInternal)})
	}

	status := http.StatusInternalServerError
	switch ucErr.Code {
	case usecase.ErrorValidation:
		status = http.StatusBadRequest
		if ucErr.Reason == "request_in_flight" || ucErr.Reason == "crystallize_in_flight" {
			status = http.StatusConflict
		}
	case usecase.ErrorNotFound:
		status = http.StatusNotFound
	case usecase.ErrorService, usecase.ErrorExtraction:
		status = http.StatusBadGateway
	}
	return status, encode(errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason})
}

func encode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{"error":"INTERNAL_ERROR"}`
	}
	return string(b)
}

func correlationIDFrom(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "x-correlation-id") && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
