package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"recmirror/internal/config"
	"recmirror/internal/domain"
	"recmirror/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Client fetches record structures from the upstream catalog API. All calls
// go through a shared rate limiter so a bulk sync cannot hammer the catalog.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

func NewClient(cfg config.SourceConfig, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		logger:  logger,
	}
}

type structureResponse struct {
	Structure  json.RawMessage `json:"structure"`
	Dependents []string        `json:"dependents"`
}

// FetchStructure retrieves the schema document of one record plus the refs
// of records that point back at it.
func (c *Client) FetchStructure(ctx context.Context, group *models.Group, sourceRef string) (*domain.RecordStructure, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/groups/%s/records/%s/structure",
		c.baseURL, url.PathEscape(group.SourceRef), url.PathEscape(sourceRef))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch structure: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned %d for %s: %s", resp.StatusCode, sourceRef, truncateBody(body))
	}

	var parsed structureResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode structure: %w", err)
	}
	if len(parsed.Structure) == 0 {
		return nil, fmt.Errorf("catalog returned empty structure for %s", sourceRef)
	}

	c.logger.Debug().
		Str("group", group.SourceRef).
		Str("record", sourceRef).
		Int("dependents", len(parsed.Dependents)).
		Dur("elapsed", time.Since(start)).
		Msg("fetched record structure")

	return &domain.RecordStructure{
		Structure:  parsed.Structure,
		Dependents: parsed.Dependents,
	}, nil
}

func truncateBody(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
