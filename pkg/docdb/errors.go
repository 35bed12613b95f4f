package docdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
)

// Sentinel errors. Every typed error below reports true from errors.Is for its sentinel.
var (
	ErrConfiguration        = errors.New("configuration error")
	ErrAuthentication       = errors.New("authentication error")
	ErrNotFound             = errors.New("resource not found")
	ErrConflict             = errors.New("resource already exists")
	ErrThroughputExceeded   = errors.New("request rate is large")
	ErrTimeout              = errors.New("request timed out")
	ErrSchemaConflict       = errors.New("container schema conflict")
	ErrInvalidQuery         = errors.New("invalid query")
	ErrPartitionKeyMismatch = errors.New("partition key mismatch")
	ErrServiceUnavailable   = errors.New("service unavailable")
)

// Static errors for err113 compliance.
var (
	ErrConfigRequired      = errors.New("config is required")
	ErrClientClosed        = errors.New("client is closed")
	ErrFetchInProgress     = errors.New("a page fetch is already in progress for this query")
	ErrQueryExhausted      = errors.New("query has no more pages")
	ErrNoMoreItems         = errors.New("no more items")
	ErrCircuitBreakerOpen  = errors.New("circuit breaker is open")
	ErrContainerRequired   = errors.New("container handle is required")
	ErrDatabaseRequired    = errors.New("database handle is required")
	ErrItemIDRequired      = errors.New("item id is required")
	ErrItemNotObject       = errors.New("item must serialize to a JSON object")
	ErrOfferNotFound       = errors.New("no throughput offer found for container")
	ErrInvalidPartitionKey = errors.New("invalid partition key path")
)

// APIError carries the details of a failed service response.
type APIError struct {
	StatusCode    int     `json:"-"                 yaml:"status_code"`
	SubStatusCode int     `json:"-"                 yaml:"sub_status_code,omitempty"`
	Code          string  `json:"code"              yaml:"code"`
	Message       string  `json:"message"           yaml:"message"`
	ActivityID    string  `json:"-"                 yaml:"activity_id,omitempty"`
	RequestCharge float64 `json:"-"                 yaml:"request_charge"`
	ResourceLink  string  `json:"-"                 yaml:"resource_link,omitempty"`
	RetryAfterMS  int64   `json:"retryAfterMs,omitempty" yaml:"retry_after_ms,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.SubStatusCode != 0 {
		return fmt.Sprintf("%s: %s (status: %d, substatus: %d)", e.Code, e.Message, e.StatusCode, e.SubStatusCode)
	}

	return fmt.Sprintf("%s: %s (status: %d)", e.Code, e.Message, e.StatusCode)
}

// Retryable reports whether the failed request may be retried unchanged.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= http.StatusInternalServerError
}

// Is maps 5xx responses to ErrServiceUnavailable.
func (e *APIError) Is(target error) bool {
	return target == ErrServiceUnavailable && e.StatusCode >= http.StatusInternalServerError
}

// ConfigurationError reports a malformed endpoint or option. It is never retried.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}

	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// AuthenticationError reports a rejected or unusable credential.
type AuthenticationError struct {
	Reason   string
	Response *APIError
}

func (e *AuthenticationError) Error() string {
	if e.Response != nil {
		return "authentication failed: " + e.Response.Error()
	}

	return "authentication failed: " + e.Reason
}

func (e *AuthenticationError) Is(target error) bool { return target == ErrAuthentication }

// NotFoundError reports an absent database, container or item.
type NotFoundError struct {
	ResourceLink string
	Response     *APIError
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resource %q not found", e.ResourceLink)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError reports a create against an id that already exists.
type ConflictError struct {
	ResourceLink string
	Response     *APIError
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("resource %q already exists", e.ResourceLink)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// ThroughputExceededError reports a rate-limited request.
// RetryAfter is the service-suggested wait before trying again.
type ThroughputExceededError struct {
	RetryAfter time.Duration
	Response   *APIError
}

func (e *ThroughputExceededError) Error() string {
	return fmt.Sprintf("request rate is large, retry after %s", e.RetryAfter)
}

func (e *ThroughputExceededError) Is(target error) bool { return target == ErrThroughputExceeded }

// Retryable always returns true.
func (e *ThroughputExceededError) Retryable() bool { return true }

// TimeoutError reports a request that did not complete in time.
type TimeoutError struct {
	Op       string
	Err      error
	Response *APIError
}

func (e *TimeoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
	}

	return e.Op + " timed out"
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Retryable always returns true.
func (e *TimeoutError) Retryable() bool { return true }

// SchemaConflictError reports an existing container whose partition key path
// differs from the requested one.
type SchemaConflictError struct {
	ContainerLink string
	ExistingPath  string
	RequestedPath string
}

func (e *SchemaConflictError) Error() string {
	return fmt.Sprintf("container %q exists with partition key path %q, requested %q",
		e.ContainerLink, e.ExistingPath, e.RequestedPath)
}

func (e *SchemaConflictError) Is(target error) bool { return target == ErrSchemaConflict }

// InvalidQueryError reports query text the service could not compile.
type InvalidQueryError struct {
	Query    string
	Response *APIError
}

func (e *InvalidQueryError) Error() string {
	if e.Response != nil {
		return fmt.Sprintf("invalid query %q: %s", e.Query, e.Response.Message)
	}

	return fmt.Sprintf("invalid query %q", e.Query)
}

func (e *InvalidQueryError) Is(target error) bool { return target == ErrInvalidQuery }

// PartitionKeyMismatchError is raised before any network call when the item's
// partition key field disagrees with the supplied partition key.
type PartitionKeyMismatchError struct {
	Path     string
	Item     PartitionKey
	Supplied PartitionKey
	Missing  bool
}

func (e *PartitionKeyMismatchError) Error() string {
	if e.Missing {
		return fmt.Sprintf("item has no value at partition key path %q", e.Path)
	}

	return fmt.Sprintf("item partition key %s at %q does not match supplied partition key %s",
		e.Item, e.Path, e.Supplied)
}

func (e *PartitionKeyMismatchError) Is(target error) bool { return target == ErrPartitionKeyMismatch }

// ErrorFromResponse converts a failed service response into the typed error for its status.
func ErrorFromResponse(statusCode int, header http.Header, body []byte, resourceLink string) error {
	apiErr := &APIError{StatusCode: statusCode, ResourceLink: resourceLink}

	if len(body) > 0 {
		_ = json.Unmarshal(body, apiErr)
	}

	if apiErr.Code == "" {
		apiErr.Code = http.StatusText(statusCode)
	}

	if header != nil {
		apiErr.ActivityID = header.Get(constants.HeaderActivityID)
		apiErr.SubStatusCode, _ = strconv.Atoi(header.Get(constants.HeaderSubStatus))
		apiErr.RequestCharge, _ = strconv.ParseFloat(header.Get(constants.HeaderRequestCharge), 64)

		if ms, err := strconv.ParseInt(header.Get(constants.HeaderRetryAfterMS), 10, 64); err == nil {
			apiErr.RetryAfterMS = ms
		}
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthenticationError{Response: apiErr}
	case http.StatusNotFound:
		return &NotFoundError{ResourceLink: resourceLink, Response: apiErr}
	case http.StatusConflict:
		return &ConflictError{ResourceLink: resourceLink, Response: apiErr}
	case http.StatusRequestTimeout:
		return &TimeoutError{Op: resourceLink, Response: apiErr}
	case http.StatusTooManyRequests:
		return &ThroughputExceededError{
			RetryAfter: time.Duration(apiErr.RetryAfterMS) * time.Millisecond,
			Response:   apiErr,
		}
	default:
		return apiErr
	}
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if the error is a conflict error.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsThroughputExceeded checks if the error is a rate-limit error.
func IsThroughputExceeded(err error) bool {
	return errors.Is(err, ErrThroughputExceeded)
}

// IsTimeout checks if the error is a timeout error.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsRetryable reports whether a caller may retry the operation that produced err.
// Cancellation by the caller is never retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var retryable interface{ Retryable() bool }
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}

	return false
}

// RetryAfter returns the service-suggested backoff carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	throttled := &ThroughputExceededError{}
	if errors.As(err, &throttled) {
		return throttled.RetryAfter, true
	}

	return 0, false
}

// RequestChargeOf returns the request charge reported on a failed response.
func RequestChargeOf(err error) float64 {
	apiErr := &APIError{}
	if errors.As(err, &apiErr) {
		return apiErr.RequestCharge
	}

	var carrier interface{ response() *APIError }
	if errors.As(err, &carrier) && carrier.response() != nil {
		return carrier.response().RequestCharge
	}

	return 0
}

func (e *AuthenticationError) response() *APIError     { return e.Response }
func (e *NotFoundError) response() *APIError           { return e.Response }
func (e *ConflictError) response() *APIError           { return e.Response }
func (e *ThroughputExceededError) response() *APIError { return e.Response }
func (e *TimeoutError) response() *APIError            { return e.Response }
func (e *InvalidQueryError) response() *APIError       { return e.Response }
