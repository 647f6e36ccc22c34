package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/sheetwise/modelmux/utils"
	"go.uber.org/zap"
)

// apiKeyHeader is the header carrying the service API key
const apiKeyHeader = "X-API-Key"

// APIKeyMiddleware authenticates service-to-service callers with a shared
// API key. Used by the chat endpoint; admin routes use JWT instead.
type APIKeyMiddleware struct {
	apiKey string
	logger *zap.Logger
}

// NewAPIKeyMiddleware creates a new APIKeyMiddleware
func NewAPIKeyMiddleware(apiKey string, logger *zap.Logger) *APIKeyMiddleware {
	return &APIKeyMiddleware{
		apiKey: apiKey,
		logger: logger,
	}
}

// Require is a middleware that requires a valid API key
func (m *APIKeyMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := GetRequestIDFromContext(r.Context())

		if m.apiKey == "" {
			m.logger.Error("API key authentication not configured",
				zap.String("request_id", requestID))
			_ = utils.WriteInternalServerError(w, "")
			return
		}

		provided := r.Header.Get(apiKeyHeader)
		if provided == "" {
			m.logger.Warn("missing API key",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Missing API key")
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(m.apiKey)) != 1 {
			m.logger.Warn("invalid API key",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}
