// Package authapi is the HTTP client for the external ERP Auth API.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-erp-portal/internal/errors"
	"github.com/jrsteele09/go-erp-portal/internal/metrics"
	"github.com/jrsteele09/go-erp-portal/users"
)

// Auth API endpoints, relative to the base URL.
const (
	EndpointLogin    = "/auth/login"
	EndpointRegister = "/auth/register"
	EndpointRefresh  = "/auth/refresh"
	EndpointMe       = "/auth/me"
	EndpointLogout   = "/auth/logout"
)

const maxErrorBody = 4 << 10

// Client calls the Auth API over HTTP/JSON.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: d}
	}
}

// WithMetrics records call latency.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a client for the Auth API at baseURL.
func New(baseURL string, options ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Login exchanges credentials for a token pair and profile.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, EndpointLogin, "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account. It never authenticates the caller.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	return c.do(ctx, http.MethodPost, EndpointRegister, "", req, nil)
}

// Refresh trades a refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, EndpointRefresh, "", refreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Me returns the profile bound to accessToken.
func (c *Client) Me(ctx context.Context, accessToken string) (*users.UserProfile, error) {
	var profile users.UserProfile
	if err := c.do(ctx, http.MethodGet, EndpointMe, accessToken, nil, &profile); err != nil {
		return nil, err
	}
	if profile.ID == "" && profile.Username == "" {
		return nil, errors.Wrapf(errors.ErrIncompleteResponse, "[Client Me] empty profile")
	}
	profile = profile.Normalized()
	return &profile, nil
}

// Logout tells the backend to end the session bound to accessToken.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, EndpointLogout, accessToken, nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "[Client %s] marshal request", endpoint)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return errors.Wrapf(err, "[Client %s] build request", endpoint)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	status := "transport_error"
	defer func() {
		c.metrics.AuthAPICall(endpoint, status, float64(time.Since(start).Microseconds())/1000)
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(fmt.Errorf("%w: %v", errors.ErrBackendUnavailable, err), "[Client %s]", endpoint)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(endpoint, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(fmt.Errorf("%w: %v", errors.ErrIncompleteResponse, err), "[Client %s] decode response", endpoint)
	}
	return nil
}

func decodeError(endpoint string, resp *http.Response) error {
	apiErr := &APIError{Endpoint: endpoint, Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body errorBody
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Message = body.Message
		if apiErr.Message == "" {
			apiErr.Message = body.Error
		}
	} else if text := strings.TrimSpace(string(raw)); text != "" && len(text) < 200 {
		apiErr.Message = text
	}
	return apiErr
}
