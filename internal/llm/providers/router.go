// Package providers implements the invocation variants behind the model
// table: self-hosted OpenAI-compatible servers, hosted OpenAI-compatible
// providers, and raw HTTP endpoints. Each variant is resolved once when the
// configuration is loaded and served by an adapter with the same Build/Parse
// contract.
package providers

import (
	"fmt"

	"github.com/ring2236/ESA-DGR/internal/llm/configuration"
	"github.com/ring2236/ESA-DGR/internal/llm/transport"
)

// Target is a configured model resolved to its invocation variant.
type Target struct {
	ID        string
	Kind      transport.Kind
	Model     string // model name sent on the wire
	BaseURL   string
	APIKey    string
	Reasoning bool
}

// Temperature returns the sampling temperature used for this variant.
// Local and external models run deterministically; raw endpoints keep their
// reference sampling settings.
func (t Target) Temperature() float64 {
	if t.Kind == transport.KindRaw {
		return configuration.RawTemperature
	}
	return configuration.DeterministicTemperature
}

// Resolve maps every configured model id to its variant.
// Entries of the models table are local and addressed by their own id.
// External entries whose base URL matches a raw host are raw; the rest are external.
func Resolve(cfg *configuration.Config) (map[string]Target, error) {
	targets := make(map[string]Target, len(cfg.Models)+len(cfg.External))

	for id, baseURL := range cfg.Models {
		targets[id] = Target{
			ID:      id,
			Kind:    transport.KindLocal,
			Model:   id,
			BaseURL: baseURL,
			APIKey:  localAPIKey,
		}
	}

	for id, m := range cfg.External {
		if _, dup := targets[id]; dup {
			return nil, fmt.Errorf("%w: model %q defined as both local and external",
				configuration.ErrInvalidModelTable, id)
		}
		kind := transport.KindExternal
		if cfg.IsRawHost(m.BaseURL) {
			kind = transport.KindRaw
		}
		targets[id] = Target{
			ID:        id,
			Kind:      kind,
			Model:     m.ModelName,
			BaseURL:   m.BaseURL,
			APIKey:    m.APIKey,
			Reasoning: cfg.IsReasoningModel(m),
		}
	}

	return targets, nil
}

// NewRouter creates a router with one adapter per variant.
func NewRouter() transport.Router {
	return &router{
		adapters: map[transport.Kind]transport.ProviderAdapter{
			transport.KindLocal:    NewLocalAdapter(),
			transport.KindExternal: NewExternalAdapter(),
			transport.KindRaw:      NewRawAdapter(),
		},
	}
}

type router struct {
	adapters map[transport.Kind]transport.ProviderAdapter
}

// Pick selects the adapter for a variant.
func (r *router) Pick(kind transport.Kind) (transport.ProviderAdapter, error) {
	adapter, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
	return adapter, nil
}
