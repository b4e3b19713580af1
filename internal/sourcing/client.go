// Package sourcing implements the product-sourcing workflow: search, review
// session persistence, AI name and cover optimization, and bulk upload.
package sourcing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"leviosa/internal/logging"
)

const (
	searchPath        = "/api/domeggook/search"
	uploadPath        = "/api/domeggook/products/upload-to-naver"
	optimizeNamePath  = "/api/optimize-name"
	optimizeCoverPath = "/api/optimize-cover"
)

// TokenSource supplies the bearer for the usage-gated feature routes.
type TokenSource interface {
	AccessToken() (string, bool)
}

// Refresher recovers from a rejected bearer. A nil error means the
// credentials were rotated and the call may be retried once.
type Refresher interface {
	RecoverUnauthorized(ctx context.Context, failedToken string) error
}

// Client talks to the sourcing backend and the feature routes.
type Client struct {
	baseURL     string
	featuresURL string
	httpClient  *http.Client
	tokens      TokenSource
	refresher   Refresher
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokens attaches bearer credentials to feature route calls.
func WithTokens(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithRefresher lets feature calls refresh the bearer once on 401.
func WithRefresher(r Refresher) Option {
	return func(c *Client) { c.refresher = r }
}

// NewClient returns a client for the sourcing backend at baseURL and the
// feature routes at featuresURL.
func NewClient(baseURL, featuresURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		featuresURL: strings.TrimRight(featuresURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) post(ctx context.Context, url string, body any, auth bool) (*http.Response, string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	used := ""
	if auth && c.tokens != nil {
		if tok, ok := c.tokens.AccessToken(); ok {
			used = tok
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	return resp, used, nil
}

// postFeature sends an authenticated feature call and, when the bearer is
// rejected, refreshes it and retries exactly once.
func (c *Client) postFeature(ctx context.Context, url string, body any) (*http.Response, error) {
	resp, used, err := c.post(ctx, url, body, true)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || c.refresher == nil || used == "" {
		return resp, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if err := c.refresher.RecoverUnauthorized(ctx, used); err != nil {
		return nil, err
	}
	logging.SourcingDebug("retrying %s after credential refresh", url)
	resp, _, err = c.post(ctx, url, body, true)
	return resp, err
}

// errorFromJSON reads {"error": "..."} from a failed response. An unreadable
// body yields parseFallback; a readable body without an error yields opFallback.
func errorFromJSON(resp *http.Response, parseFallback, opFallback string) *APIError {
	var payload struct {
		Error string `json:"error"`
	}
	msg := opFallback
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		msg = parseFallback
	} else if payload.Error != "" {
		msg = payload.Error
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

func decodeBody(resp *http.Response, out any) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Search runs a product search.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	timer := logging.StartTimer(logging.CategorySourcing, "search")
	defer timer.Stop()

	resp, _, err := c.post(ctx, c.baseURL+searchPath, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := "Request failed"
		if b, err := io.ReadAll(resp.Body); err == nil {
			text = string(b)
		}
		return nil, &APIError{Status: resp.StatusCode, Message: text}
	}

	var out SearchResponse
	if err := decodeBody(resp, &out); err != nil {
		return nil, err
	}
	logging.SourcingDebug("search %q returned %d products", req.Keyword, len(out.Results()))
	return &out, nil
}

// Upload sends products to the marketplace.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (*UploadResponse, error) {
	resp, _, err := c.post(ctx, c.baseURL+uploadPath, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errorFromJSON(resp, "Upload failed", "Upload to Naver failed")
	}

	var out UploadResponse
	if err := decodeBody(resp, &out); err != nil {
		return nil, err
	}
	ok, failed := out.Counts()
	logging.Sourcing("upload finished: %d succeeded, %d failed", ok, failed)
	return &out, nil
}

// OptimizeName asks the name-optimization route for an SEO product name.
func (c *Client) OptimizeName(ctx context.Context, name, category string) (string, error) {
	body := map[string]string{"name": name}
	if category != "" {
		body["category"] = category
	}
	resp, err := c.postFeature(ctx, c.featuresURL+optimizeNamePath, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errorFromJSON(resp, "Request failed", "Name optimization failed")
	}

	var out struct {
		OptimizedName string `json:"optimizedName"`
	}
	if err := decodeBody(resp, &out); err != nil {
		return "", err
	}
	return out.OptimizedName, nil
}

// OptimizeCover asks the cover route for a generated cover and returns it as a data URL.
func (c *Client) OptimizeCover(ctx context.Context, imageURL, name string) (string, error) {
	body := map[string]string{"imageUrl": imageURL}
	if name != "" {
		body["name"] = name
	}
	resp, err := c.postFeature(ctx, c.featuresURL+optimizeCoverPath, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errorFromJSON(resp, "Request failed", "Cover optimization failed")
	}

	var out struct {
		Image    string `json:"image"`
		MimeType string `json:"mimeType"`
	}
	if err := decodeBody(resp, &out); err != nil {
		return "", err
	}
	return "data:" + out.MimeType + ";base64," + out.Image, nil
}
