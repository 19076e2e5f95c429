package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jengahub/be-gl-governance/internal/logger"
)

// AdvisoryClient fetches opaque recommendations from the external advisory
// service, e.g. suggested approvers or spending insights for a pending
// request. The engine never interprets the suggestions; they are passed
// through to callers verbatim.
type AdvisoryClient struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

// Suggestion is one opaque advisory item.
type Suggestion struct {
	Title string          `json:"title"`
	Body  string          `json:"body"`
	Score float64         `json:"score,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type suggestionsRequest struct {
	TenantID string                 `json:"tenant_id"`
	Module   string                 `json:"module"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

type suggestionsResponse struct {
	Suggestions []*Suggestion `json:"suggestions"`
}

// NewAdvisoryClient creates an advisory client. baseURL may be empty, in
// which case GetSuggestions always returns an empty list.
func NewAdvisoryClient(baseURL string, log *logger.Logger) *AdvisoryClient {
	return &AdvisoryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// GetSuggestions fetches advisory suggestions for a tenant and module.
// Failures are non-fatal and yield an empty list.
func (c *AdvisoryClient) GetSuggestions(ctx context.Context, tenantID, module string, extra map[string]interface{}) ([]*Suggestion, error) {
	if c.baseURL == "" {
		return nil, nil
	}

	body, err := json.Marshal(&suggestionsRequest{TenantID: tenantID, Module: module, Context: extra})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal advisory request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/suggestions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build advisory request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("tenant_id", tenantID).Msg("advisory: service unreachable")
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn().Int("status", resp.StatusCode).Str("tenant_id", tenantID).Msg("advisory: service returned error")
		return nil, nil
	}

	var out suggestionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, nil
	}
	return out.Suggestions, nil
}
