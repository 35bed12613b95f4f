package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/fivetwenty-io/docdb-client/internal/auth"
	"github.com/fivetwenty-io/docdb-client/internal/constants"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// Client is the transport every resource client shares. It signs requests,
// sets the protocol headers, retries transient failures and maps failed
// responses to docdb errors. It is safe for concurrent use.
type Client struct {
	baseURL         string
	httpClient      *retryablehttp.Client
	authorizer      auth.Authorizer
	logger          Logger
	debug           bool
	userAgent       string
	consistency     string
	timeout         time.Duration
	retryOnThrottle bool
	interceptors    *docdb.InterceptorChain
	closed          atomic.Bool
}

// Request represents an HTTP request.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    interface{}
	Headers map[string]string
	// BaseURL overrides the client's endpoint, for example to route a read to a preferred region.
	BaseURL string
}

// Response represents an HTTP response.
type Response struct {
	StatusCode    int
	Headers       http.Header
	Body          []byte
	RequestCharge float64
	ActivityID    string
	SessionToken  string
	Latency       time.Duration
}

// Option configures the client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
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

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithRetryConfig sets the transport retry budget. A negative retryMax disables retries.
func WithRetryConfig(retryMax int, retryWaitMin, retryWaitMax time.Duration) Option {
	return func(c *Client) {
		if retryMax < 0 {
			retryMax = 0
		}

		c.httpClient.RetryMax = retryMax
		c.httpClient.RetryWaitMin = retryWaitMin
		c.httpClient.RetryWaitMax = retryWaitMax
	}
}

// WithTimeout bounds each round trip.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithConsistencyLevel sends x-ms-consistency-level on every request.
func WithConsistencyLevel(level string) Option {
	return func(c *Client) {
		c.consistency = level
	}
}

// WithRetryOnThrottle makes the transport retry 429 responses after the
// service's retry-after hint instead of returning them.
func WithRetryOnThrottle(retry bool) Option {
	return func(c *Client) {
		c.retryOnThrottle = retry
	}
}

// WithInterceptors runs chain around every round trip.
func WithInterceptors(chain *docdb.InterceptorChain) Option {
	return func(c *Client) {
		c.interceptors = chain
	}
}

// NewClient creates a new HTTP client.
func NewClient(baseURL string, authorizer auth.Authorizer, opts ...Option) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = constants.DefaultRetryMax
	retryClient.RetryWaitMin = constants.DefaultRetryWaitMin
	retryClient.RetryWaitMax = constants.DefaultRetryWaitMax
	retryClient.Logger = nil
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Backoff = retryAfterBackoff

	client := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: retryClient,
		authorizer: authorizer,
		userAgent:  constants.SDKName + "/" + constants.SDKVersion,
		timeout:    constants.DefaultHTTPTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	retryClient.CheckRetry = client.checkRetry
	retryClient.HTTPClient.Timeout = client.timeout

	if client.logger != nil {
		retryClient.Logger = &leveledLogger{logger: client.logger}
	}

	return client
}

// BaseURL returns the default endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close releases idle connections. Requests after Close fail with docdb.ErrClientClosed.
func (c *Client) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.httpClient.HTTPClient.CloseIdleConnections()
	}
}

// Do executes an HTTP request. On a failed response both the response and the
// mapped docdb error are returned.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if c.closed.Load() {
		return nil, docdb.ErrClientClosed
	}

	resourceType, resourceLink := auth.ParseResourcePath(req.Path)

	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	intercepted := &docdb.Request{
		Method:       req.Method,
		Path:         req.Path,
		ResourceType: resourceType,
		ResourceLink: resourceLink,
		Headers:      make(http.Header),
		Body:         body,
		Metadata:     make(map[string]interface{}),
	}

	for key, value := range req.Headers {
		intercepted.Headers.Set(key, value)
	}

	if c.interceptors != nil {
		err = c.interceptors.ExecuteRequestInterceptors(ctx, intercepted)
		if err != nil {
			return nil, err
		}
	}

	if isCreate(req.Method, intercepted.Headers) {
		ctx = context.WithValue(ctx, noRetryKey{}, true)
	}

	httpReq, err := c.buildRequest(ctx, req, intercepted)
	if err != nil {
		return nil, err
	}

	if c.debug && c.logger != nil {
		c.logger.Debug("HTTP Request", map[string]interface{}{
			"method":        req.Method,
			"url":           httpReq.URL.String(),
			"resource_type": resourceType,
			"activity_id":   httpReq.Header.Get(constants.HeaderActivityID),
		})
	}

	start := time.Now()

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if httpResp != nil {
			_ = httpResp.Body.Close()
		}

		err = c.transportError(req, resourceLink, err)
		c.afterResponse(ctx, intercepted, &docdb.Response{Latency: time.Since(start), Error: err})

		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		err = c.transportError(req, resourceLink, err)
		c.afterResponse(ctx, intercepted, &docdb.Response{StatusCode: httpResp.StatusCode, Latency: time.Since(start), Error: err})

		return nil, err
	}

	resp := &Response{
		StatusCode:   httpResp.StatusCode,
		Headers:      httpResp.Header,
		Body:         respBody,
		ActivityID:   httpResp.Header.Get(constants.HeaderActivityID),
		SessionToken: httpResp.Header.Get(constants.HeaderSessionToken),
		Latency:      time.Since(start),
	}
	resp.RequestCharge, _ = strconv.ParseFloat(httpResp.Header.Get(constants.HeaderRequestCharge), 64)

	if c.debug && c.logger != nil {
		c.logger.Debug("HTTP Response", map[string]interface{}{
			"status":         resp.StatusCode,
			"request_charge": resp.RequestCharge,
			"activity_id":    resp.ActivityID,
			"duration_ms":    resp.Latency.Milliseconds(),
		})
	}

	var respErr error
	if resp.StatusCode >= http.StatusBadRequest {
		respErr = docdb.ErrorFromResponse(resp.StatusCode, resp.Headers, resp.Body, resourceLink)
		c.invalidateRejected(req.Method, intercepted, resp.StatusCode)
	}

	c.afterResponse(ctx, intercepted, &docdb.Response{
		StatusCode:    resp.StatusCode,
		Headers:       resp.Headers,
		Body:          resp.Body,
		RequestCharge: resp.RequestCharge,
		Latency:       resp.Latency,
		Error:         respErr,
	})

	if respErr != nil {
		return resp, respErr
	}

	return resp, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, &Request{
		Method:  http.MethodGet,
		Path:    path,
		Headers: headers,
	})
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, path string, body interface{}, headers map[string]string) (*Response, error) {
	return c.Do(ctx, &Request{
		Method:  http.MethodPost,
		Path:    path,
		Body:    body,
		Headers: headers,
	})
}

// Put performs a PUT request.
func (c *Client) Put(ctx context.Context, path string, body interface{}, headers map[string]string) (*Response, error) {
	return c.Do(ctx, &Request{
		Method:  http.MethodPut,
		Path:    path,
		Body:    body,
		Headers: headers,
	})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, &Request{
		Method:  http.MethodDelete,
		Path:    path,
		Headers: headers,
	})
}

func (c *Client) buildRequest(ctx context.Context, req *Request, intercepted *docdb.Request) (*retryablehttp.Request, error) {
	baseURL := c.baseURL
	if req.BaseURL != "" {
		baseURL = strings.TrimSuffix(req.BaseURL, "/")
	}

	fullURL := baseURL + "/" + strings.TrimPrefix(req.Path, "/")
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}

	var rawBody interface{}
	if intercepted.Body != nil {
		rawBody = intercepted.Body
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, fullURL, rawBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	date := auth.FormatDate(time.Now())

	httpReq.Header.Set(constants.HeaderAccept, constants.ContentTypeJSON)
	httpReq.Header.Set(constants.HeaderUserAgent, c.userAgent)
	httpReq.Header.Set(constants.HeaderVersion, constants.APIVersion)
	httpReq.Header.Set(constants.HeaderDate, date)
	httpReq.Header.Set(constants.HeaderActivityID, uuid.NewString())

	if intercepted.Body != nil {
		httpReq.Header.Set(constants.HeaderContentType, constants.ContentTypeJSON)
	}

	if c.consistency != "" {
		httpReq.Header.Set(constants.HeaderConsistencyLevel, c.consistency)
	}

	for key, values := range intercepted.Headers {
		for _, value := range values {
			httpReq.Header.Set(key, value)
		}
	}

	if c.authorizer != nil {
		authorization, err := c.authorizer.Authorize(ctx, auth.RequestInfo{
			Verb:         req.Method,
			ResourceType: intercepted.ResourceType,
			ResourceLink: intercepted.ResourceLink,
			Date:         date,
		})
		if err != nil {
			return nil, &docdb.AuthenticationError{Reason: err.Error()}
		}

		httpReq.Header.Set(constants.HeaderAuthorization, authorization)
	}

	return httpReq, nil
}

// invalidateRejected drops a cached credential the service refused, so the
// next request for the resource mints a fresh one.
func (c *Client) invalidateRejected(method string, req *docdb.Request, status int) {
	if status != http.StatusUnauthorized && status != http.StatusForbidden {
		return
	}

	invalidator, ok := c.authorizer.(auth.Invalidator)
	if !ok {
		return
	}

	invalidator.Invalidate(auth.RequestInfo{
		Verb:         method,
		ResourceType: req.ResourceType,
		ResourceLink: req.ResourceLink,
	})
}

func (c *Client) afterResponse(ctx context.Context, req *docdb.Request, resp *docdb.Response) {
	if c.interceptors == nil {
		return
	}

	err := c.interceptors.ExecuteResponseInterceptors(ctx, req, resp)
	if err != nil && c.logger != nil {
		c.logger.Warn("response interceptor failed", map[string]interface{}{"error": err.Error()})
	}
}

// transportError maps a failed round trip. Deadlines become retryable
// timeouts; caller cancellation is passed through.
func (c *Client) transportError(req *Request, resourceLink string, err error) error {
	op := req.Method + " " + resourceLink

	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("executing request %s: %w", op, err)
	}

	if isTimeout(err) {
		return &docdb.TimeoutError{Op: op, Err: err}
	}

	return fmt.Errorf("executing request %s: %w", op, err)
}

func isTimeout(err error) bool {
	var netErr net.Error

	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
}

// noRetryKey marks a request context whose request must reach the service at most once.
type noRetryKey struct{}

// isCreate reports whether a request creates a resource. A retried create
// can collide with its own first attempt, so creates are never resent after
// an ambiguous failure. Queries and upserts are POSTs too but are safe to resend.
func isCreate(method string, headers http.Header) bool {
	if method != http.MethodPost {
		return false
	}

	return !strings.EqualFold(headers.Get(constants.HeaderIsQuery), constants.HeaderTrue) &&
		!strings.EqualFold(headers.Get(constants.HeaderIsUpsert), constants.HeaderTrue)
}

// checkRetry retries connection errors and 5xx responses. Timeouts and 408
// are surfaced so the caller decides, 429 is retried only when enabled, and
// creates are retried only on 429.
func (c *Client) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if err != nil && isTimeout(err) {
		return false, nil
	}

	if err == nil && resp != nil {
		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return c.retryOnThrottle, nil
		case http.StatusRequestTimeout:
			return false, nil
		}
	}

	if noRetry, _ := ctx.Value(noRetryKey{}).(bool); noRetry {
		return false, nil
	}

	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// retryAfterBackoff honours x-ms-retry-after-ms on throttled responses.
func retryAfterBackoff(minWait, maxWait time.Duration, attemptNum int, resp *http.Response) time.Duration {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		ms, err := strconv.ParseInt(resp.Header.Get(constants.HeaderRetryAfterMS), 10, 64)
		if err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}

	return retryablehttp.DefaultBackoff(minWait, maxWait, attemptNum, resp)
}

func encodeBody(body interface{}) ([]byte, error) {
	switch typed := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return typed, nil
	case json.RawMessage:
		return typed, nil
	default:
		buffer := &bytes.Buffer{}
		encoder := json.NewEncoder(buffer)
		encoder.SetEscapeHTML(false)

		err := encoder.Encode(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}

		return bytes.TrimRight(buffer.Bytes(), "\n"), nil
	}
}

// leveledLogger adapts Logger to retryablehttp's leveled logger.
type leveledLogger struct {
	logger Logger
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, fieldsFromPairs(keysAndValues))
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, fieldsFromPairs(keysAndValues))
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, fieldsFromPairs(keysAndValues))
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, fieldsFromPairs(keysAndValues))
}

func fieldsFromPairs(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}

	return fields
}
