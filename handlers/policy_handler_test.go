package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/sheetwise/modelmux/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPolicyHandler() (*RoutingPolicyHandler, *MockRoutingPolicyRepository) {
	policies := new(MockRoutingPolicyRepository)
	return NewRoutingPolicyHandler(policies, zap.NewNop()), policies
}

func TestHandleCreatePolicy(t *testing.T) {
	orgID := uuid.New()

	t.Run("creates inactive policy", func(t *testing.T) {
		h, policies := newPolicyHandler()

		policies.On("Create", mock.Anything, mock.MatchedBy(func(p *models.RoutingPolicy) bool {
			return p.OrgID == orgID && p.Name == "tiered" && !p.IsActive
		})).Return(nil)

		body, _ := json.Marshal(CreateRoutingPolicyRequest{
			Name: "tiered",
			Rules: models.PolicyRules{
				PreferredProviders: []string{"openai"},
				FallbackChain:      []string{"anthropic"},
				FallbackStrategy:   models.FallbackAnyProvider,
				MaxRetries:         2,
			},
		})

		w := httptest.NewRecorder()
		h.HandleCreatePolicy(w, requestWithOrg(http.MethodPost, "/api/v1/routing-policies", body, orgID, ""))

		assert.Equal(t, http.StatusCreated, w.Code)
		policies.AssertExpectations(t)
		policies.AssertNotCalled(t, "Activate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("activate flag supersedes the previous policy", func(t *testing.T) {
		h, policies := newPolicyHandler()

		policies.On("Create", mock.Anything, mock.Anything).Return(nil)
		policies.On("Activate", mock.Anything, orgID, mock.Anything).Return(nil)

		body, _ := json.Marshal(CreateRoutingPolicyRequest{
			Name:     "new-default",
			Activate: true,
		})

		w := httptest.NewRecorder()
		h.HandleCreatePolicy(w, requestWithOrg(http.MethodPost, "/api/v1/routing-policies", body, orgID, ""))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), `"is_active":true`)
		policies.AssertExpectations(t)
	})

	t.Run("unknown fallback strategy returns 400", func(t *testing.T) {
		h, policies := newPolicyHandler()

		body, _ := json.Marshal(map[string]interface{}{
			"name": "broken",
			"rules": map[string]interface{}{
				"fallback_strategy": "round-robin",
			},
		})

		w := httptest.NewRecorder()
		h.HandleCreatePolicy(w, requestWithOrg(http.MethodPost, "/api/v1/routing-policies", body, orgID, ""))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		policies.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("negative max_retries returns 400", func(t *testing.T) {
		h, policies := newPolicyHandler()

		body, _ := json.Marshal(map[string]interface{}{
			"name": "broken",
			"rules": map[string]interface{}{
				"max_retries": -1,
			},
		})

		w := httptest.NewRecorder()
		h.HandleCreatePolicy(w, requestWithOrg(http.MethodPost, "/api/v1/routing-policies", body, orgID, ""))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		policies.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("missing name returns 400", func(t *testing.T) {
		h, _ := newPolicyHandler()

		body, _ := json.Marshal(map[string]interface{}{})

		w := httptest.NewRecorder()
		h.HandleCreatePolicy(w, requestWithOrg(http.MethodPost, "/api/v1/routing-policies", body, orgID, ""))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleListPolicies(t *testing.T) {
	orgID := uuid.New()
	h, policies := newPolicyHandler()

	policy, err := models.NewRoutingPolicy(orgID, "default", models.DefaultPolicyRules())
	require.NoError(t, err)
	policies.On("GetByOrgID", mock.Anything, orgID).Return([]*models.RoutingPolicy{policy}, nil)

	w := httptest.NewRecorder()
	h.HandleListPolicies(w, requestWithOrg(http.MethodGet, "/api/v1/routing-policies", nil, orgID, ""))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "default")
	policies.AssertExpectations(t)
}

func TestHandleGetActivePolicy(t *testing.T) {
	orgID := uuid.New()

	t.Run("returns active policy", func(t *testing.T) {
		h, policies := newPolicyHandler()

		policy, err := models.NewRoutingPolicy(orgID, "live", models.DefaultPolicyRules())
		require.NoError(t, err)
		policy.IsActive = true
		policies.On("GetActive", mock.Anything, orgID).Return(policy, nil)

		w := httptest.NewRecorder()
		h.HandleGetActivePolicy(w, requestWithOrg(http.MethodGet, "/api/v1/routing-policies/active", nil, orgID, ""))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "live")
	})

	t.Run("no active policy returns 404", func(t *testing.T) {
		h, policies := newPolicyHandler()

		policies.On("GetActive", mock.Anything, orgID).Return(nil, nil)

		w := httptest.NewRecorder()
		h.HandleGetActivePolicy(w, requestWithOrg(http.MethodGet, "/api/v1/routing-policies/active", nil, orgID, ""))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandleActivatePolicy(t *testing.T) {
	orgID := uuid.New()

	t.Run("activates owned policy", func(t *testing.T) {
		h, policies := newPolicyHandler()

		policy, err := models.NewRoutingPolicy(orgID, "canary", models.DefaultPolicyRules())
		require.NoError(t, err)
		policies.On("GetByID", mock.Anything, policy.ID).Return(policy, nil)
		policies.On("Activate", mock.Anything, orgID, policy.ID).Return(nil)

		w := httptest.NewRecorder()
		h.HandleActivatePolicy(w, requestWithOrg(http.MethodPost, "/api/v1/routing-policies/"+policy.ID.String()+"/activate", nil, orgID, policy.ID.String()))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"is_active":true`)
		policies.AssertExpectations(t)
	})

	t.Run("other org's policy returns 403", func(t *testing.T) {
		h, policies := newPolicyHandler()

		policy, err := models.NewRoutingPolicy(uuid.New(), "foreign", models.DefaultPolicyRules())
		require.NoError(t, err)
		policies.On("GetByID", mock.Anything, policy.ID).Return(policy, nil)

		w := httptest.NewRecorder()
		h.HandleActivatePolicy(w, requestWithOrg(http.MethodPost, "/api/v1/routing-policies/"+policy.ID.String()+"/activate", nil, orgID, policy.ID.String()))

		assert.Equal(t, http.StatusForbidden, w.Code)
		policies.AssertNotCalled(t, "Activate", mock.Anything, mock.Anything, mock.Anything)
	})
}
