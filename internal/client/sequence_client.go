package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jengahub/be-gl-governance/internal/logger"
	"github.com/jengahub/be-gl-governance/internal/service"
)

// SequenceClient obtains document reference numbers from the external
// sequence service. Numbering is a collaborator, not a gatekeeper: when the
// service is unreachable or unconfigured the client falls back to a local
// per-tenant counter so postings are never blocked on it.
type SequenceClient struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger

	mu       sync.Mutex
	counters map[string]int64
}

type nextReferenceRequest struct {
	TenantID string `json:"tenant_id"`
	Kind     string `json:"kind"`
}

type nextReferenceResponse struct {
	Reference string `json:"reference"`
}

// NewSequenceClient creates a sequence client. baseURL may be empty, in
// which case only the local fallback is used.
func NewSequenceClient(baseURL string, log *logger.Logger) *SequenceClient {
	return &SequenceClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 5 * time.Second},
		log:      log,
		counters: make(map[string]int64),
	}
}

// NextReference returns the next reference number for a tenant and document
// kind.
func (c *SequenceClient) NextReference(ctx context.Context, tenantID, kind string) (string, error) {
	if c.baseURL == "" {
		return c.localReference(tenantID, kind), nil
	}

	body, err := json.Marshal(&nextReferenceRequest{TenantID: tenantID, Kind: kind})
	if err != nil {
		return c.localReference(tenantID, kind), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/sequences/next", bytes.NewReader(body))
	if err != nil {
		return c.localReference(tenantID, kind), nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("tenant_id", tenantID).Msg("sequence: service unreachable, using local fallback")
		return c.localReference(tenantID, kind), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn().Int("status", resp.StatusCode).Str("tenant_id", tenantID).
			Msg("sequence: service returned error, using local fallback")
		return c.localReference(tenantID, kind), nil
	}

	var out nextReferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Reference == "" {
		return c.localReference(tenantID, kind), nil
	}
	return out.Reference, nil
}

func (c *SequenceClient) localReference(tenantID, kind string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := tenantID + ":" + kind
	c.counters[key]++
	return fmt.Sprintf("%s-%s-%06d", strings.ToUpper(kind), time.Now().UTC().Format("200601"), c.counters[key])
}

var _ service.ReferenceSource = (*SequenceClient)(nil)
