// Package extract defines the extraction-oracle boundary and reconciles the
// oracle's untrusted output with the authoritative structured source fields.
package extract

import (
	"context"
	"fmt"

	"github.com/kslau/tendergraph/schema"
)

// Oracle is the opaque entity/relation extraction model. Implementations
// receive the card text and return raw, possibly noisy guesses; all trust
// decisions happen in the Reconciler.
type Oracle interface {
	Extract(ctx context.Context, cardText string) (*RawResult, error)
}

// OracleConfig configures an oracle provider endpoint.
type OracleConfig struct {
	Provider  string  `json:"provider" yaml:"provider"` // gliner, static
	Model     string  `json:"model" yaml:"model"`
	BaseURL   string  `json:"base_url" yaml:"base_url"`
	APIKey    string  `json:"api_key" yaml:"api_key"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// NewOracle creates an extraction oracle from configuration.
func NewOracle(cfg OracleConfig, sch *schema.Schema) (Oracle, error) {
	switch cfg.Provider {
	case "gliner", "":
		return NewGLiNER(cfg, sch), nil
	case "static":
		return NewStatic(nil), nil
	default:
		return nil, fmt.Errorf("unknown oracle provider: %s", cfg.Provider)
	}
}

// StaticOracle returns predetermined results. It backs tests and offline dry
// runs where no extraction service is reachable.
type StaticOracle struct {
	fn func(cardText string) *RawResult
}

// NewStatic creates a static oracle. A nil fn yields empty extractions.
func NewStatic(fn func(cardText string) *RawResult) *StaticOracle {
	return &StaticOracle{fn: fn}
}

func (o *StaticOracle) Extract(_ context.Context, cardText string) (*RawResult, error) {
	if o.fn == nil {
		return &RawResult{}, nil
	}
	return o.fn(cardText), nil
}
