package routing

import (
	"fmt"

	"github.com/sheetwise/modelmux/config"
	"github.com/sheetwise/modelmux/internal/secrets"
	"github.com/sheetwise/modelmux/models"
	"github.com/sheetwise/modelmux/services"
	"github.com/sheetwise/modelmux/services/providers"
	"github.com/sheetwise/modelmux/services/providers/anthropic"
	"github.com/sheetwise/modelmux/services/providers/openai"
)

// NewAdapterFactory returns the production adapter factory. The provider
// set is closed: an unknown provider value is a validation error, not a
// lookup miss.
func NewAdapterFactory(cipher *secrets.Cipher, cfg config.ProvidersConfig) AdapterFactory {
	return func(mc *models.ModelConfig) (providers.Adapter, error) {
		apiKey, err := cipher.Decrypt(mc.APIKeyEnc)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt API key for model config %s: %w", mc.ID, err)
		}

		switch mc.Provider {
		case models.ProviderOpenAI:
			baseURL := cfg.OpenAI.BaseURL
			if mc.Endpoint != "" {
				baseURL = mc.Endpoint
			}
			return openai.New(openai.Config{
				APIKey:  apiKey,
				BaseURL: baseURL,
				Timeout: cfg.OpenAI.Timeout,
			}), nil

		case models.ProviderAnthropic:
			baseURL := cfg.Anthropic.BaseURL
			if mc.Endpoint != "" {
				baseURL = mc.Endpoint
			}
			return anthropic.New(anthropic.Config{
				APIKey:     apiKey,
				BaseURL:    baseURL,
				APIVersion: cfg.Anthropic.APIVersion,
				Timeout:    cfg.Anthropic.Timeout,
			}), nil

		default:
			return nil, services.NewDomainError(services.ErrorTypeValidation, "invalid provider specified", nil).
				WithDetail("provider", string(mc.Provider))
		}
	}
}
