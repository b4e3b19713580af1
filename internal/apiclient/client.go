// Package apiclient is the authenticated HTTP client for the CS backend. It
// attaches the stored bearer, refreshes it once on 401 with concurrent
// refreshes coalesced, and turns error bodies into typed errors.
package apiclient

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
	"golang.org/x/sync/singleflight"

	"leviosa/internal/credentials"
	"leviosa/internal/logging"
)

// RefreshPath is the CS endpoint that exchanges a refresh token.
const RefreshPath = "/api/v1/auth/refresh"

// TokenStore is the credential storage the client reads and rotates.
type TokenStore interface {
	AccessToken() (string, bool)
	RefreshToken() (string, bool)
	SetTokens(credentials.TokenPair)
	ClearTokens()
}

// RequestOptions configures a single request.
type RequestOptions struct {
	Method string // default GET
	// Body is JSON-encoded unless it is an io.Reader, which is sent as-is.
	Body   any
	Header http.Header
	// SkipAuth sends the request without credentials and disables refresh.
	SkipAuth bool
	// NoRetry disables the refresh-and-retry path for this request.
	NoRetry bool
}

// Response describes a successful call.
type Response struct {
	Status    int
	Header    http.Header
	NoContent bool
}

// Client is the authenticated CS API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenStore
	loginPath  string
	onReauth   func(loginPath string)

	refreshGroup singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLoginPath sets where re-authentication should send the user.
func WithLoginPath(path string) Option {
	return func(c *Client) { c.loginPath = path }
}

// WithReauthHandler is called after credentials are cleared on an
// unrecoverable 401.
func WithReauthHandler(fn func(loginPath string)) Option {
	return func(c *Client) { c.onReauth = fn }
}

// New returns a client for the API at baseURL.
func New(baseURL string, tokens TokenStore, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		loginPath:  "/login",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type encodedBody struct {
	data        []byte
	contentType string
}

func encodeBody(body any) (*encodedBody, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case io.Reader:
		// Buffered so the retry after refresh can resend it.
		data, err := io.ReadAll(b)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		return &encodedBody{data: data}, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		return &encodedBody{data: data, contentType: "application/json"}, nil
	}
}

// Do sends a request to path and decodes a JSON response into out (which may be nil).
func (c *Client) Do(ctx context.Context, path string, opts RequestOptions, out any) (*Response, error) {
	body, err := encodeBody(opts.Body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, path, opts, body, out)
}

func (c *Client) do(ctx context.Context, path string, opts RequestOptions, body *encodedBody, out any) (*Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body.data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil && body.contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", body.contentType)
	}

	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	log := logging.WithRequestID(logging.CategoryAPI, requestID).WithField("path", path)

	usedToken := ""
	if !opts.SkipAuth && c.tokens != nil {
		if tok, ok := c.tokens.AccessToken(); ok {
			usedToken = tok
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	log.Debug("%s %s", method, path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, ctx.Err())
		}
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if !opts.SkipAuth && resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		if !opts.NoRetry {
			refreshed, err := c.refresh(ctx, usedToken)
			if err != nil {
				return nil, err
			}
			if refreshed {
				log.Debug("retrying after credential refresh")
				retry := opts
				retry.NoRetry = true
				return c.do(ctx, path, retry, body, out)
			}
		}
		return nil, c.reauth()
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, ctx.Err())
		}
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := buildAPIError(resp.StatusCode, data)
		log.Warn("request failed: %d %s", apiErr.Status, apiErr.Message)
		return nil, apiErr
	}

	result := &Response{Status: resp.StatusCode, Header: resp.Header}
	if resp.StatusCode == http.StatusNoContent {
		result.NoContent = true
		return result, nil
	}

	// A bare null carries no payload and counts as unparseable.
	if !json.Valid(data) || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, &APIError{Status: resp.StatusCode, Message: "Response parsing failed"}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: "Response parsing failed"}
		}
	}
	return result, nil
}

// RecoverUnauthorized handles a 401 seen by another client that sends this
// client's bearer. It shares the in-flight refresh with Do. A nil error means
// the pair was rotated and the request may be retried once; otherwise the
// credentials are cleared and a *ReauthRequiredError is returned.
func (c *Client) RecoverUnauthorized(ctx context.Context, failedToken string) error {
	refreshed, err := c.refresh(ctx, failedToken)
	if err != nil {
		return err
	}
	if refreshed {
		return nil
	}
	return c.reauth()
}

func (c *Client) reauth() error {
	if c.tokens != nil {
		c.tokens.ClearTokens()
	}
	logging.AuthWarn("credentials rejected, re-authentication required")
	if c.onReauth != nil {
		c.onReauth(c.loginPath)
	}
	return newReauthError(c.loginPath)
}

// refresh rotates the credential pair after a 401 on failedToken. Concurrent
// callers share one in-flight refresh. A caller whose token was already
// rotated by someone else retries without refreshing again.
func (c *Client) refresh(ctx context.Context, failedToken string) (bool, error) {
	if c.tokens == nil {
		return false, nil
	}
	if cur, ok := c.tokens.AccessToken(); ok && cur != failedToken {
		return true, nil
	}

	ch := c.refreshGroup.DoChan("refresh", func() (any, error) {
		if cur, ok := c.tokens.AccessToken(); ok && cur != failedToken {
			return true, nil
		}
		// Detached so one caller's cancellation does not fail the others.
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout())
		defer cancel()
		return c.exchangeRefreshToken(flightCtx), nil
	})

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		ok, _ := res.Val.(bool)
		return ok, nil
	}
}

func (c *Client) refreshTimeout() time.Duration {
	if c.httpClient.Timeout > 0 {
		return c.httpClient.Timeout
	}
	return 30 * time.Second
}

func (c *Client) exchangeRefreshToken(ctx context.Context) bool {
	refreshToken, ok := c.tokens.RefreshToken()
	if !ok {
		return false
	}

	payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+RefreshPath, bytes.NewReader(payload))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.AuthWarn("token refresh failed: %v", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logging.AuthWarn("token refresh rejected: %d", resp.StatusCode)
		return false
	}

	var envelope struct {
		Data *credentials.TokenPair `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Data == nil || envelope.Data.AccessToken == "" {
		logging.AuthWarn("token refresh returned no credentials")
		return false
	}

	c.tokens.SetTokens(*envelope.Data)
	logging.Auth("access token refreshed")
	return true
}
