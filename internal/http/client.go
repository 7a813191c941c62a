// Package http provides the HTTP transport shared by all broker
// clients. It wraps hashicorp/go-retryablehttp with NGSIv2 header
// handling, bearer-token injection, and error envelope decoding.
package http

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SystemsPurge/FiLiP/internal/constants"
	"github.com/SystemsPurge/FiLiP/pkg/ngsi"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

const defaultUserAgent = "filip-go-client"

// TokenManager provides authentication tokens for broker requests.
type TokenManager interface {
	GetToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) error
	SetToken(token string, expiresAt time.Time)
}

// Request represents one broker request.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    any
	Headers map[string]string
	// Idempotent marks a request as safe to retry even when its method
	// is not idempotent by HTTP semantics. GET, HEAD, PUT and DELETE are
	// always treated as idempotent; POST only when this flag is set.
	Idempotent bool
}

// Response represents one broker response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// idempotencyKey carries the retry eligibility of the in-flight
// request through to the retry policy.
type idempotencyKey struct{}

// Client is an HTTP client for NGSIv2 context brokers and the services
// around them.
type Client struct {
	baseURL      string
	tokenManager TokenManager
	httpClient   *retryablehttp.Client
	logger       ngsi.Logger
	debug        bool
	userAgent    string
	service      string
	servicePath  string
	interceptors *ngsi.InterceptorChain
}

// Option configures the client.
type Option func(*Client)

// WithLogger sets the logger used for debug output.
func WithLogger(logger ngsi.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug enables request and response logging.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithRetryConfig tunes the retry behavior. maxRetries counts the
// retries after the initial attempt.
func WithRetryConfig(maxRetries int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.httpClient.RetryMax = maxRetries
		c.httpClient.RetryWaitMin = waitMin
		c.httpClient.RetryWaitMax = waitMax
	}
}

// WithTimeout sets the per-request timeout of the underlying HTTP
// client. Contexts passed to Do still take precedence.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.HTTPClient.Timeout = timeout
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithTenant sets the Fiware-Service and Fiware-ServicePath headers
// sent with every request. Validation happens at the client layer; the
// transport sends whatever it is given.
func WithTenant(service, servicePath string) Option {
	return func(c *Client) {
		c.service = service
		c.servicePath = servicePath
	}
}

// WithTLSSkipVerify disables TLS certificate verification. The
// configuration layer only allows this in development mode.
func WithTLSSkipVerify() Option {
	return func(c *Client) {
		c.httpClient.HTTPClient.Transport = &http.Transport{
			//nolint:gosec // development-mode opt-in
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
}

// WithInterceptors attaches an interceptor chain that runs around
// every request.
func WithInterceptors(chain *ngsi.InterceptorChain) Option {
	return func(c *Client) {
		c.interceptors = chain
	}
}

// OptionsFromConfig assembles the transport options a Config describes.
// The broker, IoT Agent, and QuantumLeap clients all build their
// transports through this.
func OptionsFromConfig(config *ngsi.Config) []Option {
	var opts []Option

	if config.Logger != nil {
		opts = append(opts, WithLogger(config.Logger))
	}

	if config.Debug {
		opts = append(opts, WithDebug(true))
	}

	if config.UserAgent != "" {
		opts = append(opts, WithUserAgent(config.UserAgent))
	}

	if config.Service != "" || config.ServicePath != "" {
		opts = append(opts, WithTenant(config.Service, config.ServicePath))
	}

	if config.HTTPTimeout > 0 {
		opts = append(opts, WithTimeout(config.HTTPTimeout))
	}

	if config.SkipTLSVerify {
		opts = append(opts, WithTLSSkipVerify())
	}

	if config.RetryMax > 0 {
		retryWaitMin := constants.DefaultRetryWaitMin
		retryWaitMax := constants.DefaultRetryWaitMax

		if config.RetryWaitMin > 0 {
			retryWaitMin = config.RetryWaitMin
		}

		if config.RetryWaitMax > 0 {
			retryWaitMax = config.RetryWaitMax
		}

		opts = append(opts, WithRetryConfig(config.RetryMax, retryWaitMin, retryWaitMax))
	}

	return opts
}

// NormalizeBaseURL trims the trailing slash and defaults a bare
// host:port to http, the convention FIWARE deployments follow inside
// compose networks.
func NormalizeBaseURL(raw string) string {
	baseURL := strings.TrimSuffix(raw, "/")

	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	return baseURL
}

// NewClient creates a new HTTP client for the given broker base URL.
// tokenManager may be nil for brokers without authentication.
func NewClient(baseURL string, tokenManager TokenManager, opts ...Option) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = constants.DefaultRetryMax
	retryClient.RetryWaitMin = constants.DefaultRetryWaitMin
	retryClient.RetryWaitMax = constants.DefaultRetryWaitMax
	retryClient.Logger = nil
	retryClient.CheckRetry = checkRetry
	retryClient.Backoff = retryBackoff
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.HTTPClient.Timeout = constants.DefaultHTTPTimeout

	client := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		tokenManager: tokenManager,
		httpClient:   retryClient,
		userAgent:    defaultUserAgent,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// checkRetry gates retries on request idempotency before delegating to
// the default policy, which retries connection errors, 429 and 5xx.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if idempotent, ok := ctx.Value(idempotencyKey{}).(bool); ok && !idempotent {
		return false, nil
	}

	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// retryBackoff adds jitter on top of the default exponential backoff
// so concurrent retries spread out.
func retryBackoff(waitMin, waitMax time.Duration, attemptNum int, resp *http.Response) time.Duration {
	wait := retryablehttp.DefaultBackoff(waitMin, waitMax, attemptNum, resp)

	jitterRange := wait / constants.BackoffJitterDivisor
	if jitterRange <= 0 {
		return wait
	}

	return wait + time.Duration(rand.Int63n(int64(jitterRange)))
}

func isIdempotent(req *Request) bool {
	if req.Idempotent {
		return true
	}

	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

// Do executes a request against the broker. On broker error statuses it
// returns both the response and the decoded error so callers can still
// inspect headers and body.
//
//nolint:funlen,cyclop // request construction is inherently sequential
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	fullURL := c.baseURL + req.Path
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}

	rawBody, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	headers := c.buildHeaders(req, rawBody != nil)

	if c.tokenManager != nil {
		token, tokenErr := c.tokenManager.GetToken(ctx)
		if tokenErr != nil {
			return nil, fmt.Errorf("failed to get authentication token: %w", tokenErr)
		}

		if token != "" {
			headers.Set("Authorization", "Bearer "+token)
		}
	}

	var chainReq *ngsi.Request
	if c.interceptors != nil {
		chainReq = &ngsi.Request{
			Method:  req.Method,
			Path:    req.Path,
			Headers: headers,
			Body:    rawBody,
		}

		err = c.interceptors.ExecuteRequestInterceptors(ctx, chainReq)
		if err != nil {
			return nil, err
		}

		headers = chainReq.Headers
		rawBody = chainReq.Body
	}

	if c.debug && c.logger != nil {
		c.logger.Debug("HTTP Request", map[string]any{
			"method": req.Method,
			"url":    fullURL,
			"body":   string(rawBody),
		})
	}

	ctx = context.WithValue(ctx, idempotencyKey{}, isIdempotent(req))

	var bodyArg any
	if rawBody != nil {
		bodyArg = rawBody
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, fullURL, bodyArg)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header = headers

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(req.Method, fullURL, err)
	}

	defer func() {
		_ = httpResp.Body.Close()
	}()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       respBody,
	}

	if c.debug && c.logger != nil {
		c.logger.Debug("HTTP Response", map[string]any{
			"method":      req.Method,
			"url":         fullURL,
			"status_code": resp.StatusCode,
			"body":        string(respBody),
		})
	}

	var respErr error
	if resp.StatusCode >= http.StatusBadRequest {
		respErr = errorFromResponse(req.Method, fullURL, resp)
	}

	if c.interceptors != nil {
		chainResp := &ngsi.Response{
			StatusCode: resp.StatusCode,
			Headers:    resp.Headers,
			Body:       resp.Body,
			Error:      respErr,
		}

		err = c.interceptors.ExecuteResponseInterceptors(ctx, chainReq, chainResp)
		if err != nil {
			return resp, err
		}
	}

	return resp, respErr
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put performs a PUT request.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

// Patch performs a PATCH request.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
}

// TokenManager returns the token manager used by this client, if any.
func (c *Client) TokenManager() TokenManager {
	return c.tokenManager
}

func (c *Client) buildHeaders(req *Request, hasBody bool) http.Header {
	headers := make(http.Header)
	headers.Set("Accept", "application/json")
	headers.Set("User-Agent", c.userAgent)

	if hasBody {
		headers.Set("Content-Type", "application/json")
	}

	if c.service != "" {
		headers.Set(constants.HeaderService, c.service)
	}

	if c.servicePath != "" {
		headers.Set(constants.HeaderServicePath, c.servicePath)
	}

	headers.Set(constants.HeaderCorrelator, uuid.NewString())

	for key, value := range req.Headers {
		headers.Set(key, value)
	}

	return headers
}

func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}

	switch value := body.(type) {
	case []byte:
		return value, nil
	case json.RawMessage:
		return value, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}

		return data, nil
	}
}

// errorFromResponse decodes the NGSIv2 error envelope from an error
// status. Bodies without a parseable envelope fall back to a transport
// error carrying the status code.
func errorFromResponse(method, fullURL string, resp *Response) error {
	brokerErr, err := ngsi.ParseBrokerError(resp.StatusCode, resp.Body)
	if err == nil {
		return brokerErr
	}

	return &ngsi.TransportError{
		Op:         method,
		URL:        fullURL,
		StatusCode: resp.StatusCode,
	}
}

func transportError(method, fullURL string, err error) error {
	var urlErr *url.Error

	timeout := false
	if errors.As(err, &urlErr) {
		timeout = urlErr.Timeout()
	}

	return &ngsi.TransportError{
		Op:      method,
		URL:     fullURL,
		Timeout: timeout,
		Err:     err,
	}
}
