package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kslau/tendergraph/schema"
)

// glinerOracle talks to a GLiNER-style extraction service over HTTP. The
// service receives the card text plus the schema's entity and relation label
// descriptions and returns raw mentions and pairs.
type glinerOracle struct {
	cfg    OracleConfig
	sch    *schema.Schema
	client *http.Client
}

// NewGLiNER creates an oracle backed by a GLiNER-style HTTP extraction
// service.
func NewGLiNER(cfg OracleConfig, sch *schema.Schema) Oracle {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	return &glinerOracle{
		cfg: cfg,
		sch: sch,
		// Generous timeout: the service may load model weights on the first
		// request.
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

type glinerRequest struct {
	Model     string            `json:"model,omitempty"`
	Text      string            `json:"text"`
	Entities  map[string]string `json:"entities"`
	Relations map[string]string `json:"relations"`
	Threshold float64           `json:"threshold,omitempty"`
}

func (o *glinerOracle) Extract(ctx context.Context, cardText string) (*RawResult, error) {
	body := glinerRequest{
		Model:     o.cfg.Model,
		Text:      cardText,
		Entities:  o.sch.EntityDescriptions(),
		Relations: o.sch.RelationDescriptions(),
		Threshold: o.cfg.Threshold,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := o.cfg.BaseURL + "/extract"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading extraction response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction service error %d: %s", resp.StatusCode, string(respBody))
	}

	var result RawResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decoding extraction response: %w", err)
	}
	return &result, nil
}
