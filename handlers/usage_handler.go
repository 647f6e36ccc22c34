package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sheetwise/modelmux/middleware"
	"github.com/sheetwise/modelmux/models"
	"github.com/sheetwise/modelmux/repositories"
	"github.com/sheetwise/modelmux/utils"
	"go.uber.org/zap"
)

const (
	defaultUsageLimit = 50
	maxUsageLimit     = 500

	// defaultMetricsWindow is used when no date range is given
	defaultMetricsWindow = 30 * 24 * time.Hour
)

// UsageHandler handles usage log HTTP requests
type UsageHandler struct {
	usage  repositories.UsageLogRepository
	logger *zap.Logger
}

// NewUsageHandler creates a new UsageHandler
func NewUsageHandler(usage repositories.UsageLogRepository, logger *zap.Logger) *UsageHandler {
	return &UsageHandler{
		usage:  usage,
		logger: logger,
	}
}

// HandleListUsage handles GET /api/v1/usage
// Supports limit/offset pagination, an optional start/end window and an
// optional model_config_id filter.
func (h *UsageHandler) HandleListUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	orgID := middleware.GetOrgIDFromContext(ctx)
	if orgID == uuid.Nil {
		h.logger.Error("missing org ID in context")
		_ = utils.WriteUnauthorized(w, "Missing organization information")
		return
	}

	limit, offset, ok := parsePagination(w, r)
	if !ok {
		return
	}

	start, end, hasRange, ok := parseDateRange(w, r)
	if !ok {
		return
	}

	var modelConfigID *uuid.UUID
	if idStr := r.URL.Query().Get("model_config_id"); idStr != "" {
		parsed, err := uuid.Parse(idStr)
		if err != nil {
			_ = utils.WriteBadRequest(w, "Invalid model_config_id format", nil)
			return
		}
		modelConfigID = &parsed
	}

	var entries []*models.UsageLogEntry
	switch {
	case modelConfigID != nil:
		raw, err := h.usage.GetByModelConfigID(ctx, *modelConfigID, limit, offset)
		if err != nil {
			h.writeListError(w, requestID, err)
			return
		}
		entries = filterOrg(raw, orgID)
	case hasRange:
		raw, err := h.usage.GetByDateRange(ctx, orgID, start, end, limit, offset)
		if err != nil {
			h.writeListError(w, requestID, err)
			return
		}
		entries = raw
	default:
		raw, err := h.usage.GetByOrgID(ctx, orgID, limit, offset)
		if err != nil {
			h.writeListError(w, requestID, err)
			return
		}
		entries = raw
	}

	h.logger.Debug("listed usage entries",
		zap.String("request_id", requestID),
		zap.String("org_id", orgID.String()),
		zap.Int("count", len(entries)))

	_ = utils.WriteOK(w, map[string]interface{}{
		"entries": entries,
		"limit":   limit,
		"offset":  offset,
	})
}

// HandleUsageMetrics handles GET /api/v1/usage/metrics
func (h *UsageHandler) HandleUsageMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	orgID := middleware.GetOrgIDFromContext(ctx)
	if orgID == uuid.Nil {
		h.logger.Error("missing org ID in context")
		_ = utils.WriteUnauthorized(w, "Missing organization information")
		return
	}

	start, end, hasRange, ok := parseDateRange(w, r)
	if !ok {
		return
	}
	if !hasRange {
		end = time.Now()
		start = end.Add(-defaultMetricsWindow)
	}

	metrics, err := h.usage.GetMetrics(ctx, orgID, start, end)
	if err != nil {
		h.logger.Error("failed to aggregate usage metrics",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to retrieve usage metrics")
		return
	}

	_ = utils.WriteOK(w, map[string]interface{}{
		"start":   start.UTC().Format(time.RFC3339),
		"end":     end.UTC().Format(time.RFC3339),
		"metrics": metrics,
	})
}

func (h *UsageHandler) writeListError(w http.ResponseWriter, requestID string, err error) {
	h.logger.Error("failed to list usage entries",
		zap.String("request_id", requestID),
		zap.Error(err))
	_ = utils.WriteInternalServerError(w, "Failed to retrieve usage entries")
}

// parsePagination reads limit/offset query params with bounds applied
func parsePagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit = defaultUsageLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			_ = utils.WriteBadRequest(w, "Invalid limit parameter", nil)
			return 0, 0, false
		}
		if parsed > maxUsageLimit {
			parsed = maxUsageLimit
		}
		limit = parsed
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		parsed, err := strconv.Atoi(offsetStr)
		if err != nil || parsed < 0 {
			_ = utils.WriteBadRequest(w, "Invalid offset parameter", nil)
			return 0, 0, false
		}
		offset = parsed
	}

	return limit, offset, true
}

// parseDateRange reads optional RFC3339 start/end query params
func parseDateRange(w http.ResponseWriter, r *http.Request) (start, end time.Time, hasRange, ok bool) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")
	if startStr == "" && endStr == "" {
		return time.Time{}, time.Time{}, false, true
	}

	var err error
	if startStr != "" {
		start, err = time.Parse(time.RFC3339, startStr)
		if err != nil {
			_ = utils.WriteBadRequest(w, "Invalid start parameter, expected RFC3339", nil)
			return time.Time{}, time.Time{}, false, false
		}
	}
	end = time.Now()
	if endStr != "" {
		end, err = time.Parse(time.RFC3339, endStr)
		if err != nil {
			_ = utils.WriteBadRequest(w, "Invalid end parameter, expected RFC3339", nil)
			return time.Time{}, time.Time{}, false, false
		}
	}
	if !start.IsZero() && end.Before(start) {
		_ = utils.WriteBadRequest(w, "end must be after start", nil)
		return time.Time{}, time.Time{}, false, false
	}

	return start, end, true, true
}

// filterOrg drops entries belonging to other tenants. The model config
// filter queries by config ID, so the org scope is enforced here.
func filterOrg(entries []*models.UsageLogEntry, orgID uuid.UUID) []*models.UsageLogEntry {
	filtered := entries[:0]
	for _, e := range entries {
		if e.OrgID == orgID {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
