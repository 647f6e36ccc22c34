package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sheetwise/modelmux/middleware"
	"github.com/sheetwise/modelmux/models"
	"github.com/sheetwise/modelmux/services/routing"
	"github.com/sheetwise/modelmux/utils"
	"go.uber.org/zap"
)

// healthCheckTimeout bounds one provider health probe
const healthCheckTimeout = 10 * time.Second

// RoutingPlanRequest asks which models a chat request would try, in order
type RoutingPlanRequest struct {
	TaskType      string `json:"task_type,omitempty"`
	Complexity    string `json:"complexity,omitempty" validate:"omitempty,oneof=simple complex"`
	PinnedModelID string `json:"pinned_model_id,omitempty"`
}

// PlanCandidate is one entry in the routing plan response
type PlanCandidate struct {
	ModelConfigID uuid.UUID       `json:"model_config_id"`
	Provider      models.Provider `json:"provider"`
	Model         string          `json:"model_name"`
	DisplayName   string          `json:"display_name"`
	Priority      int             `json:"priority"`
	IsDefault     bool            `json:"is_default"`
}

// RoutingPlanResponse describes the candidate order for a request shape
type RoutingPlanResponse struct {
	Candidates []PlanCandidate    `json:"candidates"`
	MaxRetries int                `json:"max_retries"`
	TimeoutMs  int                `json:"timeout_ms"`
	Rules      models.PolicyRules `json:"rules"`
}

// ModelHealthResponse reports one provider health probe
type ModelHealthResponse struct {
	ModelConfigID uuid.UUID       `json:"model_config_id"`
	Provider      models.Provider `json:"provider"`
	Model         string          `json:"model_name"`
	Status        string          `json:"status"`
	Error         string          `json:"error,omitempty"`
	LatencyMs     int             `json:"latency_ms"`
}

// RoutingDiagnostics is the routing surface the diagnostics handler needs
type RoutingDiagnostics interface {
	Plan(ctx context.Context, req *routing.ChatRequest) ([]*models.ModelConfig, models.PolicyRules, error)
	CheckModel(ctx context.Context, cfg *models.ModelConfig) error
}

// ConfigLookup loads a tenant's model config by ID
type ConfigLookup interface {
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.ModelConfig, error)
}

// DiagnosticsHandler exposes routing introspection for admins
type DiagnosticsHandler struct {
	router  RoutingDiagnostics
	configs ConfigLookup
	logger  *zap.Logger
}

// NewDiagnosticsHandler creates a new DiagnosticsHandler
func NewDiagnosticsHandler(router RoutingDiagnostics, configs ConfigLookup, logger *zap.Logger) *DiagnosticsHandler {
	return &DiagnosticsHandler{
		router:  router,
		configs: configs,
		logger:  logger,
	}
}

// HandleRoutingPlan handles POST /api/v1/diagnostics/routing-plan
// Returns the ordered candidate list a chat request would explore, without
// calling any provider.
func (h *DiagnosticsHandler) HandleRoutingPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	orgID := middleware.GetOrgIDFromContext(ctx)
	if orgID == uuid.Nil {
		h.logger.Error("missing org ID in context")
		_ = utils.WriteUnauthorized(w, "Missing organization information")
		return
	}

	var req RoutingPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	candidates, rules, err := h.router.Plan(ctx, &routing.ChatRequest{
		OrgID:         orgID,
		TaskType:      req.TaskType,
		Complexity:    models.Complexity(req.Complexity),
		PinnedModelID: req.PinnedModelID,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	planCandidates := make([]PlanCandidate, len(candidates))
	for i, cfg := range candidates {
		planCandidates[i] = PlanCandidate{
			ModelConfigID: cfg.ID,
			Provider:      cfg.Provider,
			Model:         cfg.ModelName,
			DisplayName:   cfg.DisplayName,
			Priority:      cfg.Priority,
			IsDefault:     cfg.IsDefault,
		}
	}

	h.logger.Debug("routing plan computed",
		zap.String("request_id", requestID),
		zap.String("org_id", orgID.String()),
		zap.String("task_type", req.TaskType),
		zap.Int("candidates", len(planCandidates)))

	_ = utils.WriteOK(w, RoutingPlanResponse{
		Candidates: planCandidates,
		MaxRetries: rules.EffectiveMaxRetries(),
		TimeoutMs:  rules.EffectiveTimeoutMs(),
		Rules:      rules,
	})
}

// HandleModelHealth handles POST /api/v1/model-configs/{id}/health
// Probes the provider behind one model config.
func (h *DiagnosticsHandler) HandleModelHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	orgID := middleware.GetOrgIDFromContext(ctx)
	if orgID == uuid.Nil {
		h.logger.Error("missing org ID in context")
		_ = utils.WriteUnauthorized(w, "Missing organization information")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid model config ID format", nil)
		return
	}

	cfg, err := h.configs.GetByID(ctx, orgID, id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if cfg == nil {
		_ = utils.WriteNotFound(w, "Model config not found")
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	start := time.Now()
	probeErr := h.router.CheckModel(probeCtx, cfg)
	latency := time.Since(start)

	resp := ModelHealthResponse{
		ModelConfigID: cfg.ID,
		Provider:      cfg.Provider,
		Model:         cfg.ModelName,
		Status:        "healthy",
		LatencyMs:     int(latency.Milliseconds()),
	}
	if probeErr != nil {
		h.logger.Warn("model health probe failed",
			zap.String("request_id", requestID),
			zap.String("model_config_id", cfg.ID.String()),
			zap.Error(probeErr))
		resp.Status = "unhealthy"
		resp.Error = probeErr.Error()
	}

	_ = utils.WriteOK(w, resp)
}
