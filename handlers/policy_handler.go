package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sheetwise/modelmux/middleware"
	"github.com/sheetwise/modelmux/models"
	"github.com/sheetwise/modelmux/repositories"
	"github.com/sheetwise/modelmux/utils"
	"go.uber.org/zap"
)

// CreateRoutingPolicyRequest represents a request to create a routing policy
type CreateRoutingPolicyRequest struct {
	Name          string               `json:"name" validate:"required"`
	SelectionMode models.SelectionMode `json:"selection_mode,omitempty" validate:"omitempty,oneof=manual automatic"`
	Rules         models.PolicyRules   `json:"rules"`
	Activate      bool                 `json:"activate,omitempty"`
}

// RoutingPolicyResponse represents a routing policy in API responses
type RoutingPolicyResponse struct {
	ID            uuid.UUID            `json:"id"`
	OrgID         uuid.UUID            `json:"org_id"`
	Name          string               `json:"name"`
	SelectionMode models.SelectionMode `json:"selection_mode"`
	Rules         json.RawMessage      `json:"rules"`
	IsActive      bool                 `json:"is_active"`
	CreatedAt     string               `json:"created_at"`
	UpdatedAt     string               `json:"updated_at"`
}

// RoutingPolicyHandler handles routing policy HTTP requests
type RoutingPolicyHandler struct {
	policies repositories.RoutingPolicyRepository
	logger   *zap.Logger
}

// NewRoutingPolicyHandler creates a new RoutingPolicyHandler
func NewRoutingPolicyHandler(policies repositories.RoutingPolicyRepository, logger *zap.Logger) *RoutingPolicyHandler {
	return &RoutingPolicyHandler{
		policies: policies,
		logger:   logger,
	}
}

// HandleListPolicies handles GET /api/v1/routing-policies
func (h *RoutingPolicyHandler) HandleListPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	orgID := middleware.GetOrgIDFromContext(ctx)
	if orgID == uuid.Nil {
		h.logger.Error("missing org ID in context")
		_ = utils.WriteUnauthorized(w, "Missing organization information")
		return
	}

	policies, err := h.policies.GetByOrgID(ctx, orgID)
	if err != nil {
		h.logger.Error("failed to list routing policies",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to retrieve routing policies")
		return
	}

	responses := make([]RoutingPolicyResponse, len(policies))
	for i, p := range policies {
		responses[i] = policyToResponse(p)
	}

	_ = utils.WriteOK(w, responses)
}

// HandleCreatePolicy handles POST /api/v1/routing-policies
// New policies are created inactive unless activate is set; activating one
// supersedes the previously active policy.
func (h *RoutingPolicyHandler) HandleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	orgID := middleware.GetOrgIDFromContext(ctx)
	if orgID == uuid.Nil {
		h.logger.Error("missing org ID in context")
		_ = utils.WriteUnauthorized(w, "Missing organization information")
		return
	}

	var req CreateRoutingPolicyRequest
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

	if err := validateRules(req.Rules); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	policy, err := models.NewRoutingPolicy(orgID, req.Name, req.Rules)
	if err != nil {
		h.logger.Error("failed to encode policy rules",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to create routing policy")
		return
	}
	if req.SelectionMode != "" {
		policy.SelectionMode = req.SelectionMode
	}

	if err := h.policies.Create(ctx, policy); err != nil {
		h.logger.Error("failed to create routing policy",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to create routing policy")
		return
	}

	if req.Activate {
		if err := h.policies.Activate(ctx, orgID, policy.ID); err != nil {
			h.logger.Error("failed to activate routing policy",
				zap.String("request_id", requestID),
				zap.String("policy_id", policy.ID.String()),
				zap.Error(err))
			_ = utils.WriteInternalServerError(w, "Policy created but activation failed")
			return
		}
		policy.IsActive = true
	}

	h.logger.Info("routing policy created",
		zap.String("request_id", requestID),
		zap.String("policy_id", policy.ID.String()),
		zap.Bool("active", policy.IsActive))

	_ = utils.WriteCreated(w, policyToResponse(policy))
}

// HandleGetPolicy handles GET /api/v1/routing-policies/{id}
func (h *RoutingPolicyHandler) HandleGetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, ok := h.ownedPolicy(w, r)
	if !ok {
		return
	}

	_ = utils.WriteOK(w, policyToResponse(policy))
}

// HandleGetActivePolicy handles GET /api/v1/routing-policies/active
func (h *RoutingPolicyHandler) HandleGetActivePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	orgID := middleware.GetOrgIDFromContext(ctx)
	if orgID == uuid.Nil {
		h.logger.Error("missing org ID in context")
		_ = utils.WriteUnauthorized(w, "Missing organization information")
		return
	}

	policy, err := h.policies.GetActive(ctx, orgID)
	if err != nil {
		h.logger.Error("failed to fetch active routing policy",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to retrieve routing policy")
		return
	}
	if policy == nil {
		_ = utils.WriteNotFound(w, "No active routing policy")
		return
	}

	_ = utils.WriteOK(w, policyToResponse(policy))
}

// HandleActivatePolicy handles POST /api/v1/routing-policies/{id}/activate
func (h *RoutingPolicyHandler) HandleActivatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	policy, ok := h.ownedPolicy(w, r)
	if !ok {
		return
	}

	if err := h.policies.Activate(ctx, policy.OrgID, policy.ID); err != nil {
		h.logger.Error("failed to activate routing policy",
			zap.String("request_id", requestID),
			zap.String("policy_id", policy.ID.String()),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to activate routing policy")
		return
	}

	h.logger.Info("routing policy activated",
		zap.String("request_id", requestID),
		zap.String("policy_id", policy.ID.String()))

	policy.IsActive = true
	_ = utils.WriteOK(w, policyToResponse(policy))
}

// ownedPolicy parses the path ID, loads the policy and verifies tenant
// ownership. Writes the error response itself when anything fails.
func (h *RoutingPolicyHandler) ownedPolicy(w http.ResponseWriter, r *http.Request) (*models.RoutingPolicy, bool) {
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
		_ = utils.WriteBadRequest(w, "Invalid policy ID format", nil)
		return nil, false
	}

	policy, err := h.policies.GetByID(ctx, id)
	if err != nil {
		h.logger.Warn("routing policy not found",
			zap.String("request_id", requestID),
			zap.String("policy_id", id.String()),
			zap.Error(err))
		_ = utils.WriteNotFound(w, "Routing policy not found")
		return nil, false
	}

	if policy.OrgID != orgID {
		h.logger.Warn("routing policy ownership mismatch",
			zap.String("request_id", requestID),
			zap.String("policy_id", id.String()),
			zap.String("expected_org_id", orgID.String()),
			zap.String("actual_org_id", policy.OrgID.String()))
		_ = utils.WriteForbidden(w, "Access denied to this routing policy")
		return nil, false
	}

	return policy, true
}

// validateRules rejects rule sets the selection engine cannot honor
func validateRules(rules models.PolicyRules) error {
	if rules.FallbackStrategy != "" &&
		rules.FallbackStrategy != models.FallbackSameProvider &&
		rules.FallbackStrategy != models.FallbackAnyProvider {
		return &utils.ValidationError{
			Message: "Validation failed",
			Fields: map[string]string{
				"fallback_strategy": "fallback_strategy must be one of: same-provider any-provider",
			},
		}
	}
	if rules.MaxRetries < 0 {
		return &utils.ValidationError{
			Message: "Validation failed",
			Fields:  map[string]string{"max_retries": "max_retries must be greater than or equal to 0"},
		}
	}
	if rules.TimeoutMs < 0 {
		return &utils.ValidationError{
			Message: "Validation failed",
			Fields:  map[string]string{"timeout_ms": "timeout_ms must be greater than or equal to 0"},
		}
	}
	if rules.MaxCostPerRequest < 0 {
		return &utils.ValidationError{
			Message: "Validation failed",
			Fields:  map[string]string{"max_cost_per_request": "max_cost_per_request must be greater than or equal to 0"},
		}
	}
	return nil
}

// policyToResponse converts a RoutingPolicy model to a RoutingPolicyResponse
func policyToResponse(p *models.RoutingPolicy) RoutingPolicyResponse {
	return RoutingPolicyResponse{
		ID:            p.ID,
		OrgID:         p.OrgID,
		Name:          p.Name,
		SelectionMode: p.SelectionMode,
		Rules:         p.Rules,
		IsActive:      p.IsActive,
		CreatedAt:     p.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:     p.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
