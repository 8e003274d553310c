package youcom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mohammad-safakhou/studyflow/config"
	"github.com/mohammad-safakhou/studyflow/internal/video"
)

// Client is a typed client for the hosted search/agent API. All calls go
// through a shared retry/backoff policy: up to maxRetries attempts, 429
// honouring Retry-After, 5xx and transport failures on an exponential
// schedule, other 4xx surfaced immediately.
type Client struct {
	apiKey     string
	searchBase string
	agentBase  string
	maxRetries int

	searchTimeout time.Duration
	agentTimeout  time.Duration
	streamTimeout time.Duration

	httpClient *http.Client
	sleep      Sleeper
	logger     *log.Logger
}

// NewClient creates a gateway client from config
func NewClient(cfg config.YouComConfig) *Client {
	c := &Client{
		apiKey:        cfg.APIKey,
		searchBase:    cfg.SearchBaseURL,
		agentBase:     cfg.AgentBaseURL,
		maxRetries:    cfg.MaxRetries,
		searchTimeout: cfg.SearchTimeout,
		agentTimeout:  cfg.AgentTimeout,
		streamTimeout: cfg.StreamTimeout,
		httpClient:    &http.Client{},
		sleep:         timerSleeper{},
		logger:        log.New(log.Writer(), "[GATEWAY] ", log.LstdFlags),
	}
	if c.searchBase == "" {
		c.searchBase = "https://ydc-index.io/v1"
	}
	if c.agentBase == "" {
		c.agentBase = "https://api.you.com/v1"
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	if c.searchTimeout <= 0 {
		c.searchTimeout = 30 * time.Second
	}
	if c.agentTimeout <= 0 {
		c.agentTimeout = 60 * time.Second
	}
	if c.streamTimeout <= 0 {
		c.streamTimeout = 120 * time.Second
	}
	return c
}

// SetSleeper replaces the retry delay implementation, for tests
func (c *Client) SetSleeper(s Sleeper) { c.sleep = s }

// Search runs a keyword search. Every web result passes through video
// detection; a result whose URL matches no known provider keeps Video nil.
func (c *Client) Search(ctx context.Context, query string, opts *SearchOptions) (SearchResponse, error) {
	params := url.Values{}
	params.Set("query", query)
	if opts != nil && opts.Count > 0 {
		params.Set("count", strconv.Itoa(opts.Count))
	}
	if opts != nil && opts.Country != "" {
		params.Set("country", opts.Country)
	}

	endpoint := "search"
	target := c.searchBase + "/search?" + params.Encode()
	body, err := c.doJSON(ctx, endpoint, c.searchTimeout, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-API-Key", c.apiKey)
		return req, nil
	})
	if err != nil {
		return SearchResponse{}, err
	}

	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return SearchResponse{}, fmt.Errorf("search: decoding response: %w", err)
	}
	for i := range resp.Results.Web {
		resp.Results.Web[i].Video = video.Detect(resp.Results.Web[i].URL)
	}
	return resp, nil
}

// RunAgent performs one blocking agent run
func (c *Client) RunAgent(ctx context.Context, input, agent string, tools []AgentTool) (AgentRunResponse, error) {
	reqBody := AgentRunRequest{Agent: agent, Input: input, Stream: false, Tools: tools}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return AgentRunResponse{}, fmt.Errorf("agent: marshalling request: %w", err)
	}

	endpoint := "agent"
	target := c.agentBase + "/agents/runs"
	body, err := c.doJSON(ctx, endpoint, c.agentTimeout, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return AgentRunResponse{}, err
	}

	var resp AgentRunResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return AgentRunResponse{}, fmt.Errorf("agent: decoding response: %w", err)
	}
	return resp, nil
}

// GetContents fetches crawled page contents for the given URLs
func (c *Client) GetContents(ctx context.Context, urls []string, formats []string) ([]ContentResponse, error) {
	if len(formats) == 0 {
		formats = []string{"markdown", "metadata"}
	}
	payload, err := json.Marshal(map[string]interface{}{"urls": urls, "formats": formats})
	if err != nil {
		return nil, fmt.Errorf("contents: marshalling request: %w", err)
	}

	endpoint := "contents"
	target := c.searchBase + "/contents"
	body, err := c.doJSON(ctx, endpoint, c.searchTimeout, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-API-Key", c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var resp []ContentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("contents: decoding response: %w", err)
	}
	return resp, nil
}

// doJSON runs the retry loop and reads the full success body
func (c *Client) doJSON(ctx context.Context, endpoint string, timeout time.Duration, build func(context.Context) (*http.Request, error)) ([]byte, error) {
	resp, cancel, err := c.doWithRetry(ctx, endpoint, timeout, build)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: reading response body: %w", endpoint, err)
	}
	return body, nil
}

// doWithRetry issues one request per attempt until success or the attempt
// budget is exhausted. On success the caller owns the response body and must
// call cancel after finishing with it; the returned cancel releases the
// per-attempt timeout context.
func (c *Client) doWithRetry(ctx context.Context, endpoint string, timeout time.Duration, build func(context.Context) (*http.Request, error)) (*http.Response, context.CancelFunc, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)

		req, err := build(attemptCtx)
		if err != nil {
			cancel()
			return nil, nil, fmt.Errorf("%s: building request: %w", endpoint, err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			cancel()
			if ctx.Err() != nil {
				// caller gave up; don't reinterpret as timeout
				return nil, nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				lastErr = &TimeoutError{Endpoint: endpoint, Timeout: timeout}
			} else {
				lastErr = err
			}
			if attempt < c.maxRetries-1 {
				c.logger.Printf("%s attempt %d failed: %v", endpoint, attempt+1, lastErr)
				if err := c.sleep.Sleep(ctx, ComputeRetryDelay(attempt)); err != nil {
					return nil, nil, err
				}
				continue
			}
			return nil, nil, lastErr
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			delay := retryAfterDelay(resp.Header.Get("Retry-After"))
			resp.Body.Close()
			cancel()
			if attempt < c.maxRetries-1 {
				c.logger.Printf("%s rate limited, backing off %s", endpoint, delay)
				if err := c.sleep.Sleep(ctx, delay); err != nil {
					return nil, nil, err
				}
				continue
			}
			return nil, nil, &RateLimitError{Endpoint: endpoint, RetryAfter: delay}
		}

		if resp.StatusCode >= 500 && attempt < c.maxRetries-1 {
			resp.Body.Close()
			cancel()
			lastErr = &APIError{Endpoint: endpoint, Status: resp.StatusCode, Message: resp.Status}
			c.logger.Printf("%s attempt %d failed: %v", endpoint, attempt+1, lastErr)
			if err := c.sleep.Sleep(ctx, ComputeRetryDelay(attempt)); err != nil {
				return nil, nil, err
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			cancel()
			return nil, nil, &APIError{Endpoint: endpoint, Status: resp.StatusCode, Message: resp.Status}
		}

		return resp, cancel, nil
	}

	return nil, nil, lastErr
}

// retryAfterDelay parses a Retry-After header in seconds, falling back to
// the 60s default when absent or malformed.
func retryAfterDelay(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return defaultRetryAfter
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}
