package provider

import (
	"fmt"
	"log/slog"

	"docchat/internal/domain"
)

// Spec describes one provider entry from the configuration.
type Spec struct {
	Name    string
	APIBase string
	APIKey  string
	Model   string
}

// New builds a single provider from its spec.
func New(spec Spec, logger *slog.Logger) (domain.Provider, error) {
	switch spec.Name {
	case "ollama":
		return NewOllama(OllamaConfig{
			APIBase: spec.APIBase,
			Model:   spec.Model,
			Logger:  logger,
		}), nil
	case "openai":
		return NewOpenAI(OpenAIConfig{
			APIBase: spec.APIBase,
			APIKey:  spec.APIKey,
			Model:   spec.Model,
			Logger:  logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", spec.Name)
	}
}

// NewChain builds a provider from an ordered list of specs. One spec yields
// the provider itself; several yield a failover chain in list order.
func NewChain(specs []Spec, logger *slog.Logger) (domain.Provider, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	providers := make([]domain.Provider, 0, len(specs))
	for _, spec := range specs {
		p, err := New(spec, logger)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if len(providers) == 1 {
		return providers[0], nil
	}
	return NewFailover(providers, logger), nil
}
