package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	errs "tweetharvest/pkg/errors"
	"tweetharvest/pkg/logger"
	"tweetharvest/pkg/ratelimit"
)

// Client performs authenticated calls against the REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	logger     logger.Logger
}

// NewClient wraps an already authenticated http.Client.
func NewClient(httpClient *http.Client, baseURL string, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  "tweetharvest/1.0",
		logger:     log,
	}
}

// SetUserAgent overrides the User-Agent header sent with every call.
func (c *Client) SetUserAgent(ua string) {
	if ua != "" {
		c.userAgent = ua
	}
}

// Lookup fetches up to MaxLookupIDs posts by identifier. Identifiers the API
// does not return are simply absent from the result.
func (c *Client) Lookup(ctx context.Context, ids []uint64, tweetMode string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxLookupIDs {
		return nil, fmt.Errorf("lookup accepts at most %d ids, got %d", MaxLookupIDs, len(ids))
	}

	body, err := c.get(ctx, LookupURL(c.baseURL, ids, tweetMode), LookupResource)
	if err != nil {
		return nil, err
	}

	records, err := decodeRecords(body)
	if err != nil {
		return nil, c.parseError(LookupPath, body, err)
	}
	return records, nil
}

// Search fetches one page of search results.
func (c *Client) Search(ctx context.Context, p SearchParams) (*SearchPage, error) {
	body, err := c.get(ctx, SearchURL(c.baseURL, p), SearchResource)
	if err != nil {
		return nil, err
	}

	page, err := decodeSearchPage(body)
	if err != nil {
		return nil, c.parseError(SearchPath, body, err)
	}
	return page, nil
}

// RateLimit queries the current window for one endpoint.
func (c *Client) RateLimit(ctx context.Context, res Resource) (*ratelimit.Status, error) {
	body, err := c.get(ctx, RateLimitStatusURL(c.baseURL, res.Name), Resource{})
	if err != nil {
		return nil, err
	}

	var resp rateLimitStatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, c.parseError(RateLimitStatusPath, body, err)
	}

	entry, ok := resp.Resources[res.Name][res.Endpoint]
	if !ok {
		return nil, errs.New(errs.ErrorTypeParsing, http.StatusOK,
			fmt.Sprintf("rate limit status has no entry for %s", res.Endpoint))
	}

	return &ratelimit.Status{
		Resource:  res.Name,
		Endpoint:  res.Endpoint,
		Remaining: entry.Remaining,
		Limit:     entry.Limit,
		ResetAt:   time.Unix(entry.Reset, 0),
	}, nil
}

// get performs a GET and returns the body of a 200 response.
func (c *Client) get(ctx context.Context, url string, res Resource) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, 0, "failed to create request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"method": req.Method,
			"url":    req.URL.Path,
			"error":  err.Error(),
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, 0, "network error", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	logger.LogRequest(c.logger, req.Method, req.URL.Path, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, resp.StatusCode, "failed to read response body", err)
	}

	if err := c.checkResponseStatus(resp.StatusCode, body, res); err != nil {
		return nil, err
	}
	return body, nil
}

// checkResponseStatus maps a non-200 response to a typed error.
func (c *Client) checkResponseStatus(status int, body []byte, res Resource) error {
	if status == http.StatusOK {
		return nil
	}

	msg, code := apiErrorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case status == http.StatusTooManyRequests || code == codeRateLimitExceeded:
		endpoint := res.Endpoint
		if endpoint == "" {
			endpoint = RateLimitStatusPath
		}
		return errs.NewRateLimitError(endpoint)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errs.New(errs.ErrorTypeAuth, status, msg)
	case status == http.StatusNotFound:
		return errs.New(errs.ErrorTypeNotFound, status, msg)
	case status >= 500:
		return errs.New(errs.ErrorTypeServerError, status, msg)
	default:
		return errs.New(errs.ErrorTypeUnknown, status, fmt.Sprintf("unexpected status code %d: %s", status, msg))
	}
}

func (c *Client) parseError(path string, body []byte, err error) error {
	preview := string(body)
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
		"path":         path,
		"error":        err.Error(),
		"body_preview": preview,
	})
	return errs.Wrap(errs.ErrorTypeParsing, http.StatusOK, "failed to parse JSON", err)
}

// apiErrorMessage extracts the first message and code from an error envelope.
func apiErrorMessage(body []byte) (string, int) {
	var env apiErrors
	if err := json.Unmarshal(body, &env); err != nil || len(env.Errors) == 0 {
		return "", 0
	}
	return env.Errors[0].Message, env.Errors[0].Code
}
