package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sheetwise/modelmux/internal/secrets"
	"github.com/sheetwise/modelmux/middleware"
	"github.com/sheetwise/modelmux/models"
	"github.com/sheetwise/modelmux/repositories"
	"github.com/sheetwise/modelmux/services"
	"github.com/sheetwise/modelmux/utils"
	"go.uber.org/zap"
)

// CreateModelConfigRequest represents a request to register a model
type CreateModelConfigRequest struct {
	Provider     models.Provider     `json:"provider" validate:"required,oneof=openai anthropic"`
	ModelName    string              `json:"model_name" validate:"required"`
	DisplayName  string              `json:"display_name" validate:"required"`
	APIKey       string              `json:"api_key" validate:"required"`
	Endpoint     string              `json:"endpoint,omitempty"`
	MaxTokens    int                 `json:"max_tokens" validate:"gt=0"`
	Temperature  float64             `json:"temperature" validate:"gte=0,lte=2"`
	CostPerToken float64             `json:"cost_per_token" validate:"gte=0"`
	TaskTypes    []string            `json:"task_types,omitempty"`
	Complexity   []models.Complexity `json:"complexity,omitempty" validate:"dive,oneof=simple complex"`
	Priority     int                 `json:"priority" validate:"gte=0"`
}

// UpdateModelConfigRequest represents a partial update to a model config
type UpdateModelConfigRequest struct {
	DisplayName  *string              `json:"display_name,omitempty"`
	APIKey       *string              `json:"api_key,omitempty"`
	Endpoint     *string              `json:"endpoint,omitempty"`
	MaxTokens    *int                 `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	Temperature  *float64             `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	CostPerToken *float64             `json:"cost_per_token,omitempty" validate:"omitempty,gte=0"`
	TaskTypes    *[]string            `json:"task_types,omitempty"`
	Complexity   *[]models.Complexity `json:"complexity,omitempty" validate:"omitempty,dive,oneof=simple complex"`
	Priority     *int                 `json:"priority,omitempty" validate:"omitempty,gte=0"`
}

// ModelConfigResponse represents a model config in API responses. The
// provider credential is never echoed back.
type ModelConfigResponse struct {
	ID           uuid.UUID           `json:"id"`
	OrgID        uuid.UUID           `json:"org_id"`
	Provider     models.Provider     `json:"provider"`
	ModelName    string              `json:"model_name"`
	DisplayName  string              `json:"display_name"`
	Endpoint     string              `json:"endpoint,omitempty"`
	MaxTokens    int                 `json:"max_tokens"`
	Temperature  float64             `json:"temperature"`
	CostPerToken float64             `json:"cost_per_token"`
	TaskTypes    []string            `json:"task_types,omitempty"`
	Complexity   []models.Complexity `json:"complexity,omitempty"`
	Priority     int                 `json:"priority"`
	IsDefault    bool                `json:"is_default"`
	IsActive     bool                `json:"is_active"`
	CreatedAt    string              `json:"created_at"`
	UpdatedAt    string              `json:"updated_at"`
}

// ModelRegistry is the registry surface the handler needs to invalidate
// cached snapshots after catalog mutations.
type ModelRegistry interface {
	Reinitialize(ctx context.Context, orgID uuid.UUID) error
}

// ModelConfigHandler handles model catalog HTTP requests
type ModelConfigHandler struct {
	configs  repositories.ModelConfigRepository
	usage    repositories.UsageLogRepository
	registry ModelRegistry
	cipher   *secrets.Cipher
	logger   *zap.Logger
}

// NewModelConfigHandler creates a new ModelConfigHandler
func NewModelConfigHandler(configs repositories.ModelConfigRepository, usage repositories.UsageLogRepository, registry ModelRegistry, cipher *secrets.Cipher, logger *zap.Logger) *ModelConfigHandler {
	return &ModelConfigHandler{
		configs:  configs,
		usage:    usage,
		registry: registry,
		cipher:   cipher,
		logger:   logger,
	}
}

// HandleListModelConfigs handles GET /api/v1/model-configs
func (h *ModelConfigHandler) HandleListModelConfigs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	orgID := middleware.GetOrgIDFromContext(ctx)
	if orgID == uuid.Nil {
		h.logger.Error("missing org ID in context")
		_ = utils.WriteUnauthorized(w, "Missing organization information")
		return
	}

	configs, err := h.configs.GetByOrgID(ctx, orgID)
	if err != nil {
		h.logger.Error("failed to list model configs",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to retrieve model configs")
		return
	}

	responses := make([]ModelConfigResponse, len(configs))
	for i, cfg := range configs {
		responses[i] = modelConfigToResponse(cfg)
	}

	_ = utils.WriteOK(w, responses)
}

// HandleCreateModelConfig handles POST /api/v1/model-configs
func (h *ModelConfigHandler) HandleCreateModelConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	orgID := middleware.GetOrgIDFromContext(ctx)
	if orgID == uuid.Nil {
		h.logger.Error("missing org ID in context")
		_ = utils.WriteUnauthorized(w, "Missing organization information")
		return
	}

	var req CreateModelConfigRequest
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

	encKey, err := h.cipher.Encrypt(req.APIKey)
	if err != nil {
		h.logger.Error("failed to encrypt API key",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to store credentials")
		return
	}

	cfg := models.NewModelConfig(orgID, req.Provider, req.ModelName, req.DisplayName)
	cfg.APIKeyEnc = encKey
	cfg.Endpoint = req.Endpoint
	cfg.MaxTokens = req.MaxTokens
	cfg.Temperature = req.Temperature
	cfg.CostPerToken = req.CostPerToken
	cfg.TaskTypes = req.TaskTypes
	cfg.Complexity = req.Complexity
	cfg.Priority = req.Priority

	if err := h.configs.Create(ctx, cfg); err != nil {
		h.logger.Error("failed to create model config",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to create model config")
		return
	}

	h.reinitializeRegistry(ctx, orgID, requestID)

	h.logger.Info("model config created",
		zap.String("request_id", requestID),
		zap.String("model_config_id", cfg.ID.String()),
		zap.String("provider", string(cfg.Provider)),
		zap.String("model", cfg.ModelName))

	_ = utils.WriteCreated(w, modelConfigToResponse(cfg))
}

// HandleGetModelConfig handles GET /api/v1/model-configs/{id}
func (h *ModelConfigHandler) HandleGetModelConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.ownedConfig(w, r)
	if !ok {
		return
	}

	_ = utils.WriteOK(w, modelConfigToResponse(cfg))
}

// HandleUpdateModelConfig handles PATCH /api/v1/model-configs/{id}
func (h *ModelConfigHandler) HandleUpdateModelConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	cfg, ok := h.ownedConfig(w, r)
	if !ok {
		return
	}

	var req UpdateModelConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if req.DisplayName != nil {
		cfg.DisplayName = *req.DisplayName
	}
	if req.APIKey != nil {
		encKey, err := h.cipher.Encrypt(*req.APIKey)
		if err != nil {
			h.logger.Error("failed to encrypt API key",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteInternalServerError(w, "Failed to store credentials")
			return
		}
		cfg.APIKeyEnc = encKey
	}
	if req.Endpoint != nil {
		cfg.Endpoint = *req.Endpoint
	}
	if req.MaxTokens != nil {
		cfg.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		cfg.Temperature = *req.Temperature
	}
	if req.CostPerToken != nil {
		cfg.CostPerToken = *req.CostPerToken
	}
	if req.TaskTypes != nil {
		cfg.TaskTypes = *req.TaskTypes
	}
	if req.Complexity != nil {
		cfg.Complexity = *req.Complexity
	}
	if req.Priority != nil {
		cfg.Priority = *req.Priority
	}

	if err := h.configs.Update(ctx, cfg); err != nil {
		h.logger.Error("failed to update model config",
			zap.String("request_id", requestID),
			zap.String("model_config_id", cfg.ID.String()),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to update model config")
		return
	}

	h.reinitializeRegistry(ctx, cfg.OrgID, requestID)

	h.logger.Info("model config updated",
		zap.String("request_id", requestID),
		zap.String("model_config_id", cfg.ID.String()))

	_ = utils.WriteOK(w, modelConfigToResponse(cfg))
}

// HandleSetDefault handles POST /api/v1/model-configs/{id}/default
func (h *ModelConfigHandler) HandleSetDefault(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	cfg, ok := h.ownedConfig(w, r)
	if !ok {
		return
	}

	if err := h.configs.SetDefault(ctx, cfg.OrgID, cfg.ID); err != nil {
		h.logger.Error("failed to set default model config",
			zap.String("request_id", requestID),
			zap.String("model_config_id", cfg.ID.String()),
			zap.Error(err))
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeInternal, "failed to set default model", err), h.logger)
		return
	}

	h.reinitializeRegistry(ctx, cfg.OrgID, requestID)

	h.logger.Info("default model config changed",
		zap.String("request_id", requestID),
		zap.String("model_config_id", cfg.ID.String()))

	cfg.IsDefault = true
	_ = utils.WriteOK(w, modelConfigToResponse(cfg))
}

// HandleActivate handles POST /api/v1/model-configs/{id}/activate
func (h *ModelConfigHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// HandleDeactivate handles POST /api/v1/model-configs/{id}/deactivate
func (h *ModelConfigHandler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *ModelConfigHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	cfg, ok := h.ownedConfig(w, r)
	if !ok {
		return
	}

	if err := h.configs.SetActive(ctx, cfg.ID, active); err != nil {
		h.logger.Error("failed to toggle model config",
			zap.String("request_id", requestID),
			zap.String("model_config_id", cfg.ID.String()),
			zap.Bool("active", active),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to update model config")
		return
	}

	h.reinitializeRegistry(ctx, cfg.OrgID, requestID)

	h.logger.Info("model config toggled",
		zap.String("request_id", requestID),
		zap.String("model_config_id", cfg.ID.String()),
		zap.Bool("active", active))

	cfg.IsActive = active
	if !active {
		cfg.IsDefault = false
	}
	_ = utils.WriteOK(w, modelConfigToResponse(cfg))
}

// HandleDeleteModelConfig handles DELETE /api/v1/model-configs/{id}
// Configs with usage history cannot be deleted, only deactivated; the
// usage log keeps referencing them.
func (h *ModelConfigHandler) HandleDeleteModelConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	cfg, ok := h.ownedConfig(w, r)
	if !ok {
		return
	}

	hasUsage, err := h.usage.HasEntries(ctx, cfg.ID)
	if err != nil {
		h.logger.Error("failed to check usage history",
			zap.String("request_id", requestID),
			zap.String("model_config_id", cfg.ID.String()),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to delete model config")
		return
	}
	if hasUsage {
		HandleServiceError(w, services.ErrConfigInUse, h.logger)
		return
	}

	if err := h.configs.Delete(ctx, cfg.ID); err != nil {
		h.logger.Error("failed to delete model config",
			zap.String("request_id", requestID),
			zap.String("model_config_id", cfg.ID.String()),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to delete model config")
		return
	}

	h.reinitializeRegistry(ctx, cfg.OrgID, requestID)

	h.logger.Info("model config deleted",
		zap.String("request_id", requestID),
		zap.String("model_config_id", cfg.ID.String()))

	utils.WriteNoContent(w)
}

// ownedConfig parses the path ID, loads the config and verifies tenant
// ownership. Writes the error response itself when anything fails.
func (h *ModelConfigHandler) ownedConfig(w http.ResponseWriter, r *http.Request) (*models.ModelConfig, bool) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	orgID := middleware.GetOrgIDFromContext(ctx)
	if orgID == uuid.Nil {
		h.logger.Error("missing org ID in context")
		_ = utils.WriteUnauthorized(w, "Missing organization information")
		return nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid model config ID format", nil)
		return nil, false
	}

	cfg, err := h.configs.GetByID(ctx, id)
	if err != nil {
		h.logger.Warn("model config not found",
			zap.String("request_id", requestID),
			zap.String("model_config_id", id.String()),
			zap.Error(err))
		_ = utils.WriteNotFound(w, "Model config not found")
		return nil, false
	}

	if cfg.OrgID != orgID {
		h.logger.Warn("model config ownership mismatch",
			zap.String("request_id", requestID),
			zap.String("model_config_id", id.String()),
			zap.String("expected_org_id", orgID.String()),
			zap.String("actual_org_id", cfg.OrgID.String()))
		_ = utils.WriteForbidden(w, "Access denied to this model config")
		return nil, false
	}

	return cfg, true
}

// reinitializeRegistry refreshes the org's registry snapshot after a
// catalog mutation. Failures are logged only; the snapshot TTL catches up.
func (h *ModelConfigHandler) reinitializeRegistry(ctx context.Context, orgID uuid.UUID, requestID string) {
	if err := h.registry.Reinitialize(ctx, orgID); err != nil {
		h.logger.Warn("registry refresh failed after catalog change",
			zap.String("request_id", requestID),
			zap.String("org_id", orgID.String()),
			zap.Error(err))
	}
}

// modelConfigToResponse converts a ModelConfig model to a ModelConfigResponse
func modelConfigToResponse(cfg *models.ModelConfig) ModelConfigResponse {
	return ModelConfigResponse{
		ID:           cfg.ID,
		OrgID:        cfg.OrgID,
		Provider:     cfg.Provider,
		ModelName:    cfg.ModelName,
		DisplayName:  cfg.DisplayName,
		Endpoint:     cfg.Endpoint,
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
		CostPerToken: cfg.CostPerToken,
		TaskTypes:    cfg.TaskTypes,
		Complexity:   cfg.Complexity,
		Priority:     cfg.Priority,
		IsDefault:    cfg.IsDefault,
		IsActive:     cfg.IsActive,
		CreatedAt:    cfg.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:    cfg.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
