package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPPredictor forwards a batch to an upstream model server speaking the
// {"instances": [...]} -> {"predictions": [...]} protocol.
type HTTPPredictor struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPPredictor creates a predictor posting to url. apiKey is sent as a
// bearer token when non-empty.
func NewHTTPPredictor(url, apiKey string, timeout time.Duration) *HTTPPredictor {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &HTTPPredictor{
		url:        strings.TrimRight(url, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type predictRequest struct {
	Instances []json.RawMessage `json:"instances"`
}

type predictResponse struct {
	Predictions []json.RawMessage `json:"predictions"`
}

// Predict sends items upstream and returns one prediction per item, in order.
// A length mismatch is returned as-is; the aggregator reports it as a
// contract violation.
func (p *HTTPPredictor) Predict(ctx context.Context, items []json.RawMessage) ([]json.RawMessage, error) {
	bodyBytes, err := json.Marshal(predictRequest{Instances: items})
	if err != nil {
		return nil, fmt.Errorf("marshal error: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("request creation error: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		bodyData, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyData)))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("JSON parse error: %w", err)
	}
	if out.Predictions == nil {
		return nil, fmt.Errorf("response has no predictions field")
	}
	return out.Predictions, nil
}
