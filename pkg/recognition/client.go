package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-facegate/internal/httpc"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 1 << 20

// Config holds client configuration.
type Config struct {
	Timeout    time.Duration
	CSRFCookie string
	CSRFHeader string
	HTTPClient *http.Client
	Tokens     TokenProvider
	Logger     *slog.Logger
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithTimeout sets the transport timeout. The controller has no timeout of
// its own; this is the failure signal for hung requests.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithHTTPClient replaces the session HTTP client. Its Jar, if any, is
// used for the default cookie token provider.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Config) { c.HTTPClient = h }
}

// WithTokenProvider sets where the anti-forgery token comes from.
func WithTokenProvider(p TokenProvider) Option {
	return func(c *Config) { c.Tokens = p }
}

// WithCSRF sets the anti-forgery cookie and header names.
func WithCSRF(cookie, header string) Option {
	return func(c *Config) {
		if cookie != "" {
			c.CSRFCookie = cookie
		}
		if header != "" {
			c.CSRFHeader = header
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the client defaults.
func DefaultConfig() *Config {
	return &Config{
		Timeout:    httpc.DefaultTimeout,
		CSRFCookie: DefaultCSRFCookie,
		CSRFHeader: DefaultCSRFHeader,
		Logger:     slog.Default(),
	}
}

// Client submits frames to the recognition backend.
type Client struct {
	base   *url.URL
	http   *http.Client
	tokens TokenProvider
	header string
	logger *slog.Logger
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("recognition: parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("recognition: base URL must be http or https, got %q", baseURL)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc, _ = httpc.NewSessionClient(cfg.Timeout)
	}

	tokens := cfg.Tokens
	if tokens == nil {
		tokens = &CookieToken{Jar: hc.Jar, URL: base, Name: cfg.CSRFCookie}
	}

	return &Client{
		base:   base,
		http:   hc,
		tokens: tokens,
		header: cfg.CSRFHeader,
		logger: cfg.Logger.With("component", "recognition.client"),
	}, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) resolve(endpoint string) (*url.URL, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("recognition: parse endpoint %q: %w", endpoint, err)
	}
	return c.base.ResolveReference(ref), nil
}

// Prime loads a backend page so the session picks up the anti-forgery
// cookie before the first submission.
func (c *Client) Prime(ctx context.Context, path string) error {
	u, err := c.resolve(path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Endpoint: path, Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode >= 400 {
		return &StatusError{StatusCode: resp.StatusCode, Endpoint: path}
	}
	return nil
}

// Submit posts a frame to endpoint and decodes the backend's decision.
//
// Errors: *StatusError for non-2xx statuses or undecodable bodies,
// *NetworkError when no response arrived. A decoded success=false body is
// not an error; the caller inspects Response.Outcome.
func (c *Client) Submit(ctx context.Context, endpoint string, r Request) (*Response, error) {
	if r.Image == "" {
		return nil, ErrEmptyImage
	}

	u, err := c.resolve(endpoint)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("recognition: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("recognition: build request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Referer", u.String())

	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.logger.Warn("submitting without anti-forgery token", "endpoint", endpoint, "error", err)
	} else {
		req.Header.Set(c.header, token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &NetworkError{Endpoint: endpoint, Err: err}
	}

	c.logger.Debug("submission settled",
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"request_id", requestID,
		"latency_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := c.statusError(endpoint, resp.StatusCode, data)
		if se.IsForbidden() {
			c.logger.Warn("backend refused the anti-forgery token", "endpoint", endpoint)
		}
		return nil, se
	}

	out, err := decodeResponse(data)
	if err != nil {
		return nil, &StatusError{StatusCode: resp.StatusCode, Endpoint: endpoint, Err: err}
	}
	return out, nil
}

// statusError builds a StatusError, keeping the server message if the body
// is a JSON envelope.
func (c *Client) statusError(endpoint string, code int, body []byte) *StatusError {
	e := &StatusError{StatusCode: code, Endpoint: endpoint}

	var env struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		e.Message = env.Message
		if e.Message == "" {
			e.Message = env.Error
		}
	}
	return e
}

// IsTransport reports whether err came from a non-success response.
func IsTransport(err error) (*StatusError, bool) {
	var se *StatusError
	ok := errors.As(err, &se)
	return se, ok
}

// IsNetwork reports whether err means no response was received.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
