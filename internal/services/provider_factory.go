package services

import (
	"fmt"

	"go.uber.org/zap"

	"virtufit-backend/internal/config"
	"virtufit-backend/internal/meshy"
	"virtufit-backend/internal/relay"
	"virtufit-backend/internal/retry"
	"virtufit-backend/internal/tripo"
)

// NewProvider builds the adapter selected by GENERATION_PROVIDER.
func NewProvider(cfg *config.Config, logger *zap.Logger) (relay.Provider, error) {
	switch cfg.GenerationProvider {
	case config.ProviderTripo:
		return tripo.NewClient(tripo.Config{
			APIKey:            cfg.TripoAPIKey,
			BaseURL:           cfg.TripoAPIBaseURL,
			ModelVersion:      cfg.TripoModelVersion,
			InlineUploadLimit: cfg.InlineUploadLimit,
			Timeout:           cfg.ProviderTimeout,
			RateLimit:         cfg.ProviderRateLimit,
			RateBurst:         cfg.ProviderRateBurst,
			STSRegion:         cfg.TripoSTSRegion,
			STSEndpoint:       cfg.TripoSTSEndpoint,
		}, logger), nil
	case config.ProviderMeshy:
		return meshy.NewClient(meshy.Config{
			APIKey:    cfg.MeshyAPIKey,
			BaseURL:   cfg.MeshyAPIBaseURL,
			AIModel:   cfg.MeshyAIModel,
			Timeout:   cfg.ProviderTimeout,
			RateLimit: cfg.ProviderRateLimit,
			RateBurst: cfg.ProviderRateBurst,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.GenerationProvider)
	}
}

// NewRelay wraps provider with the configured limits and retry policy.
func NewRelay(cfg *config.Config, provider relay.Provider, observer relay.Observer, logger *zap.Logger) *relay.Relay {
	policy := retry.DefaultPolicy()
	if cfg.RetryMaxAttempts > 0 {
		policy.MaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryInitialDelay > 0 {
		policy.InitialDelay = cfg.RetryInitialDelay
	}
	if cfg.RetryMaxDelay > 0 {
		policy.MaxDelay = cfg.RetryMaxDelay
	}

	return relay.New(provider, relay.Options{
		MaxImageBytes:   cfg.MaxUploadBytes,
		MaxUnrecognized: cfg.MaxUnrecognized,
		Retry:           policy,
		Observer:        observer,
		Logger:          logger,
	})
}
