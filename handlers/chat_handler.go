package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/sheetwise/modelmux/middleware"
	"github.com/sheetwise/modelmux/models"
	"github.com/sheetwise/modelmux/services/providers"
	"github.com/sheetwise/modelmux/services/routing"
	"github.com/sheetwise/modelmux/utils"
	"go.uber.org/zap"
)

// ChatMessage is one message in a chat completion request
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

// ChatCompletionRequest represents a routed chat completion request. The
// endpoint is called service-to-service, so the tenant comes in the body
// rather than from a user token.
type ChatCompletionRequest struct {
	OrgID         uuid.UUID     `json:"org_id" validate:"required"`
	UserID        *uuid.UUID    `json:"user_id,omitempty"`
	TaskType      string        `json:"task_type,omitempty"`
	Complexity    string        `json:"complexity,omitempty" validate:"omitempty,oneof=simple complex"`
	PinnedModelID string        `json:"pinned_model_id,omitempty"`
	Messages      []ChatMessage `json:"messages" validate:"required,min=1,dive"`
}

// ChatRouter routes chat completions across providers
type ChatRouter interface {
	Chat(ctx context.Context, req *routing.ChatRequest) (*routing.ChatResponse, error)
}

// ChatHandler handles routed chat completion requests
type ChatHandler struct {
	router ChatRouter
	logger *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(router ChatRouter, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		router: router,
		logger: logger,
	}
}

// HandleChatCompletion handles POST /v1/chat
func (h *ChatHandler) HandleChatCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	messages := make([]providers.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = providers.Message{Role: m.Role, Content: m.Content}
	}

	h.logger.Debug("routing chat completion",
		zap.String("request_id", requestID),
		zap.String("org_id", req.OrgID.String()),
		zap.String("task_type", req.TaskType))

	resp, err := h.router.Chat(ctx, &routing.ChatRequest{
		OrgID:         req.OrgID,
		UserID:        req.UserID,
		TaskType:      req.TaskType,
		Complexity:    models.Complexity(req.Complexity),
		PinnedModelID: req.PinnedModelID,
		Messages:      messages,
	})
	if err != nil {
		// The client hung up; nothing useful to write
		if ctx.Err() != nil {
			h.logger.Info("chat request canceled by client",
				zap.String("request_id", requestID),
				zap.String("org_id", req.OrgID.String()))
			return
		}
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("chat completion routed",
		zap.String("request_id", requestID),
		zap.String("org_id", req.OrgID.String()),
		zap.String("provider", string(resp.Provider)),
		zap.String("model", resp.Model),
		zap.Int("attempts", resp.Attempts),
		zap.Int("latency_ms", resp.LatencyMs))

	_ = utils.WriteOK(w, resp)
}
