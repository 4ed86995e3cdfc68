package nyt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the public API host.
const DefaultBaseURL = "https://api.nytimes.com"

// Client talks to the archive and top stories endpoints.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at another host, e.g. a test server.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient replaces the default http.Client (60s timeout).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithClientLogger sets a custom logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client authenticated with apiKey.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 60 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "nyt-client")
	return c, nil
}

// ArchivePath is the endpoint path of one month, without host or credential.
func ArchivePath(year, month int) string {
	return fmt.Sprintf("/svc/archive/v1/%d/%d.json", year, month)
}

const homepagePath = "/svc/topstories/v2/home.json"

// FetchArchive downloads the raw archive document for one month.
func (c *Client) FetchArchive(ctx context.Context, year, month int) ([]byte, error) {
	c.logger.Debug("fetching archive", "year", year, "month", month)
	return c.get(ctx, ArchivePath(year, month))
}

// FetchHomepage downloads the current homepage snapshot, in homepage order.
func (c *Client) FetchHomepage(ctx context.Context) ([]ContemporaryArticle, error) {
	body, err := c.get(ctx, homepagePath)
	if err != nil {
		return nil, err
	}
	var doc HomepageDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode homepage: %w", err)
	}
	c.logger.Debug("fetched homepage", "results", len(doc.Results))
	return doc.Results, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	u := c.baseURL + path + "?api-key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w %s from %s", ErrUnexpectedStatus, resp.Status, path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return body, nil
}
