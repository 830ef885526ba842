package config

import (
	"context"
	"fmt"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/model/anthropic"
	"github.com/hupe1980/agentrelay/model/bedrock"
	"github.com/hupe1980/agentrelay/model/gemini"
	"github.com/hupe1980/agentrelay/model/openai"
)

// Supported backend providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderGemini    = "gemini"
	ProviderMock      = "mock"
)

// Providers lists every accepted provider value.
var Providers = []string{ProviderOpenAI, ProviderAnthropic, ProviderBedrock, ProviderGemini, ProviderMock}

// NewBackend constructs the configured adapter and applies the optional
// retry and rate limit middleware. The API key is read from the variable
// named by APIKeyEnv here and nowhere else.
func NewBackend(ctx context.Context, cfg BackendConfig) (model.Model, error) {
	apiKey := ""

	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("backend %s: environment variable %s is not set", cfg.Provider, cfg.APIKeyEnv)
		}
	}

	var (
		m   model.Model
		err error
	)

	switch cfg.Provider {
	case ProviderOpenAI:
		var clientOpts []option.RequestOption
		if apiKey != "" {
			clientOpts = append(clientOpts, option.WithAPIKey(apiKey))
		}

		if cfg.BaseURL != "" {
			clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
		}

		m = openai.NewModel(clientOpts, func(o *openai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}

			if cfg.Temperature != nil {
				o.Temperature = *cfg.Temperature
			}

			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(cfg.MaxTokens)
			}
		})
	case ProviderAnthropic:
		m = anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = apiKey
			o.BaseURL = cfg.BaseURL

			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}

			if cfg.Temperature != nil {
				o.Temperature = *cfg.Temperature
			}

			if cfg.MaxTokens > 0 {
				o.MaxTokens = int64(cfg.MaxTokens)
			}
		})
	case ProviderBedrock:
		m, err = bedrock.NewModel(ctx, func(o *bedrock.Options) {
			o.Region = cfg.Region

			if cfg.Model != "" {
				o.ModelID = cfg.Model
			}

			if cfg.Temperature != nil {
				o.Temperature = *cfg.Temperature
			}

			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
		})
	case ProviderGemini:
		m, err = gemini.NewModel(ctx, func(o *gemini.Options) {
			o.APIKey = apiKey

			if cfg.Model != "" {
				o.Model = cfg.Model
			}

			if cfg.Temperature != nil {
				o.Temperature = float32(*cfg.Temperature)
			}
		})
	case ProviderMock:
		m = model.NewMockModel(cfg.Model, ProviderMock)
	default:
		return nil, fmt.Errorf("unknown backend provider %q", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", cfg.Provider, err)
	}

	if rl := cfg.RateLimit; rl != nil && rl.RequestsPerSecond > 0 {
		burst := rl.Burst
		if burst < 1 {
			burst = 1
		}

		m = model.WithRateLimit(m, rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), burst))
	}

	if rc := cfg.Retry; rc != nil {
		m = model.WithRetry(m, rc.policy())
	}

	return m, nil
}

func (rc *RetryConfig) policy() model.RetryPolicy {
	p := model.DefaultRetryPolicy()

	if rc.MaxTries > 0 {
		p.MaxTries = rc.MaxTries
	}

	if rc.InitialInterval > 0 {
		p.InitialInterval = rc.InitialInterval
	}

	if rc.MaxInterval > 0 {
		p.MaxInterval = rc.MaxInterval
	}

	if rc.MaxElapsedTime > 0 {
		p.MaxElapsedTime = rc.MaxElapsedTime
	}

	return p
}
