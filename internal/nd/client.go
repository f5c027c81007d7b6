package nd

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sajagana/pcvgate/pkg/models"
)

// Sentinel errors for Insights client failures.
var (
	ErrUnreachable  = errors.New("insights service unreachable")
	ErrTimeout      = errors.New("insights request timeout")
	ErrUnauthorized = errors.New("insights authentication failed")
	ErrNotFound     = errors.New("pre-change validation not found")
	ErrServiceError = errors.New("insights service error")
	ErrNoEpoch      = errors.New("no finished epoch for fabric")
)

// Client is the interface for talking to Nexus Dashboard Insights.
type Client interface {
	ListPCVs(ctx context.Context, group string) ([]*models.PCVJob, error)
	GetPCV(ctx context.Context, group, site, name string) (*models.PCVJob, error)
	SubmitFileChanges(ctx context.Context, group, site string, payload *models.SubmissionPayload, filePath string) (*models.PCVJob, error)
	SubmitManualChanges(ctx context.Context, group, site string, payload *models.SubmissionPayload) (*models.PCVJob, error)
	DeletePCVs(ctx context.Context, group string, jobIDs []string) error
	GetLastEpoch(ctx context.Context, group, site string) (*models.Epoch, error)
	Ping(ctx context.Context) error
}

// Options configures an HTTPClient.
type Options struct {
	BaseURL     string
	Username    string
	Password    string
	LoginDomain string
	APIPrefix   string
	Timeout     time.Duration
	Insecure    bool
}

// HTTPClient implements Client against the Nexus Dashboard HTTP API.
// A session token is acquired lazily via /login and refreshed once on 401.
type HTTPClient struct {
	baseURL     string
	prefix      string
	username    string
	password    string
	loginDomain string
	client      *http.Client

	mu    sync.Mutex
	token string
}

// NewHTTPClient creates a new Insights HTTP client.
func NewHTTPClient(opts Options) *HTTPClient {
	transport := http.DefaultTransport
	if opts.Insecure {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &HTTPClient{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		prefix:      strings.Trim(opts.APIPrefix, "/"),
		username:    opts.Username,
		password:    opts.Password,
		loginDomain: opts.LoginDomain,
		client:      &http.Client{Timeout: opts.Timeout, Transport: transport},
	}
}

// Ping verifies connectivity and credentials by forcing a fresh login.
func (c *HTTPClient) Ping(ctx context.Context) error {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	_, err := c.sessionToken(ctx)
	return err
}

// sessionToken returns the cached session token, logging in if necessary.
func (c *HTTPClient) sessionToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}

	body, err := json.Marshal(map[string]string{
		"userName":   c.username,
		"userPasswd": c.password,
		"domain":     c.loginDomain,
	})
	if err != nil {
		return "", fmt.Errorf("encoding login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("%w: login rejected (status %d)", ErrUnauthorized, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: login status %d", ErrServiceError, resp.StatusCode)
	}

	var loginResp struct {
		Token string `json:"jwttoken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", fmt.Errorf("decoding login response: %w", err)
	}
	if loginResp.Token == "" {
		return "", fmt.Errorf("%w: login response missing token", ErrUnauthorized)
	}

	c.token = loginResp.Token
	return c.token, nil
}

func (c *HTTPClient) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// envelope is the Insights API response wrapper.
type envelope struct {
	Success  *bool `json:"success,omitempty"`
	Messages []struct {
		Message  string `json:"message"`
		Severity string `json:"severity"`
	} `json:"messages,omitempty"`
	Value struct {
		Data json.RawMessage `json:"data"`
	} `json:"value"`
}

// firstMessage returns the first service-reported message, if any.
func (e *envelope) firstMessage() string {
	if len(e.Messages) > 0 {
		return e.Messages[0].Message
	}
	return ""
}

// do issues one authenticated request against the telemetry API and decodes
// the response envelope. A single re-login is attempted on 401.
func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte, contentType string) (*envelope, error) {
	env, status, err := c.doOnce(ctx, method, path, body, contentType)
	if err == nil && status == http.StatusUnauthorized {
		c.invalidateToken()
		env, status, err = c.doOnce(ctx, method, path, body, contentType)
	}
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, status)
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	case status < 200 || status >= 300:
		if msg := env.firstMessage(); msg != "" {
			return nil, fmt.Errorf("%w: %s (status %d)", ErrServiceError, msg, status)
		}
		return nil, fmt.Errorf("%w: status %d", ErrServiceError, status)
	}

	if env.Success != nil && !*env.Success {
		if msg := env.firstMessage(); msg != "" {
			return nil, fmt.Errorf("%w: %s", ErrServiceError, msg)
		}
		return nil, fmt.Errorf("%w: request not successful", ErrServiceError)
	}

	return env, nil
}

func (c *HTTPClient) doOnce(ctx context.Context, method, path string, body []byte, contentType string) (*envelope, int, error) {
	token, err := c.sessionToken(ctx)
	if err != nil {
		return nil, 0, err
	}

	u := fmt.Sprintf("%s/%s/%s", c.baseURL, c.prefix, path)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.AddCookie(&http.Cookie{Name: "AuthCookie", Value: token})

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, classifyError(err)
	}
	defer resp.Body.Close()

	env := &envelope{}
	// Error statuses may carry a message envelope; decode best-effort.
	if err := json.NewDecoder(resp.Body).Decode(env); err != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil, 0, fmt.Errorf("decoding insights response: %w", err)
	}

	return env, resp.StatusCode, nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
