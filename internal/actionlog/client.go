package actionlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/fieldpulse/repboard/internal/config"
	"go.uber.org/zap"
)

// httpClient talks to the platform's action-log endpoint. Every attempt is
// bounded by the configured request timeout.
type httpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *zap.Logger
}

// NewHTTPClient builds the platform client from configuration.
func NewHTTPClient(cfg config.Config, log *zap.Logger) Client {
	return &httpClient{
		baseURL: cfg.Platform.BaseURL,
		apiKey:  cfg.Platform.APIKey,
		client:  &http.Client{Timeout: cfg.Platform.RequestTimeout},
		log:     log.Named("actionlog.client"),
	}
}

func (c *httpClient) Submit(ctx context.Context, key string, sub Submission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode action log: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/action-logs", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build action log request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", key)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("submit action log: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("action log rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("action_id", sub.ActionID),
			zap.String("representative_id", sub.RepresentativeID),
		)
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}
