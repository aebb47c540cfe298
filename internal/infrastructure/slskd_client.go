package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yourusername/trackfetch-go/internal/domain"
	"github.com/yourusername/trackfetch-go/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const apiPrefix = "/api/v0"

// cleanupTimeout bounds the DELETE issued after a caller's context is done
const cleanupTimeout = 5 * time.Second

// SlskdClient reaches the Soulseek network through an slskd daemon. It
// implements domain.Searcher and domain.Transferer.
type SlskdClient struct {
	baseURL      string
	apiKey       string
	downloadsDir string
	pollInterval time.Duration
	discovery    domain.DiscoveryConfig
	httpClient   *http.Client
	limiter      *rate.Limiter
	logger       *zap.Logger
	eventLogger  *logger.MultiLogger // For structured events only (LogQueueEvent, LogAppError)
}

// NewSlskdClient creates a new slskd client
func NewSlskdClient(config *domain.SlskdConfig, discovery domain.DiscoveryConfig, zapLogger *zap.Logger, eventLogger *logger.MultiLogger) *SlskdClient {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	pollInterval := config.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	return &SlskdClient{
		baseURL:      strings.TrimRight(config.URL, "/"),
		apiKey:       config.APIKey,
		downloadsDir: config.DownloadsDir,
		pollInterval: pollInterval,
		discovery:    discovery,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
		limiter:     rate.NewLimiter(limit, 5),
		logger:      zapLogger,
		eventLogger: eventLogger,
	}
}

// APIError is a non-2xx answer from slskd
type APIError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slskd %s %s: status %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Body)
}

// Ping checks that slskd is reachable and the API key is accepted
func (c *SlskdClient) Ping(ctx context.Context) error {
	return c.get(ctx, "/application", nil)
}

func (c *SlskdClient) doRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Response, error) {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("slskd request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{
			Method:     method,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(bodyBytes)),
		}
	}

	return resp, nil
}

func (c *SlskdClient) do(ctx context.Context, method, endpoint string, body, result interface{}) error {
	resp, err := c.doRequest(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode slskd response: %w", err)
	}
	return nil
}

func (c *SlskdClient) get(ctx context.Context, endpoint string, result interface{}) error {
	return c.do(ctx, http.MethodGet, endpoint, nil, result)
}

func (c *SlskdClient) post(ctx context.Context, endpoint string, body, result interface{}) error {
	return c.do(ctx, http.MethodPost, endpoint, body, result)
}

func (c *SlskdClient) delete(ctx context.Context, endpoint string) error {
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// cleanup runs a best-effort DELETE after the caller's context is gone
func (c *SlskdClient) cleanup(endpoint string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := c.delete(ctx, endpoint); err != nil {
		c.logger.Debug("slskd cleanup failed", zap.String("endpoint", endpoint), zap.Error(err))
	}
}
