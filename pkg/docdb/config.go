package docdb

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
)

// ConsistencyLevel is the read consistency requested from the service.
type ConsistencyLevel string

const (
	ConsistencyStrong           ConsistencyLevel = "Strong"
	ConsistencyBoundedStaleness ConsistencyLevel = "BoundedStaleness"
	ConsistencySession          ConsistencyLevel = "Session"
	ConsistencyEventual         ConsistencyLevel = "Eventual"
	ConsistencyConsistentPrefix ConsistencyLevel = "ConsistentPrefix"
)

// DefaultConsistencyLevel is used when Config.ConsistencyLevel is empty.
const DefaultConsistencyLevel = ConsistencySession

// ConsistencyLevels lists every level, strongest first.
func ConsistencyLevels() []ConsistencyLevel {
	return []ConsistencyLevel{
		ConsistencyStrong,
		ConsistencyBoundedStaleness,
		ConsistencySession,
		ConsistencyConsistentPrefix,
		ConsistencyEventual,
	}
}

// ParseConsistencyLevel matches a level name case-insensitively.
func ParseConsistencyLevel(name string) (ConsistencyLevel, error) {
	for _, level := range ConsistencyLevels() {
		if strings.EqualFold(string(level), name) {
			return level, nil
		}
	}

	return "", &ConfigurationError{Field: "ConsistencyLevel", Reason: fmt.Sprintf("unknown consistency level %q", name)}
}

// TokenRequest describes the request a resource token is needed for.
type TokenRequest struct {
	Verb         string
	ResourceType string
	ResourceLink string
}

// ResourceToken is a pre-authorized token minted outside the client.
// A zero ExpiresAt never expires.
type ResourceToken struct {
	Token     string
	ExpiresAt time.Time
}

// TokenProvider mints resource tokens on demand, for example from an auth service.
type TokenProvider func(ctx context.Context, req TokenRequest) (*ResourceToken, error)

// Config represents client configuration for building a docdb.Client.
//
// # Credentials
//
// Exactly one of Key, ResourceToken or TokenProvider must be set:
//  1. Key: the account master key (base64). Every request is signed with HMAC-SHA256.
//  2. ResourceToken: a static pre-authorized token sent as-is.
//  3. TokenProvider: called per resource; tokens are cached until shortly before expiry.
//
// # Timeouts and retries
//
// RequestTimeout bounds each round trip and surfaces as a retryable TimeoutError.
// Transport failures and 5xx responses are retried RetryMax times (0 selects the
// default, a negative value disables retries). Rate-limited responses are returned
// to the caller as ThroughputExceededError unless RetryOnThrottle is set.
//
// The client is immutable after construction.
type Config struct {
	// Endpoint: account URL (e.g., "https://myaccount.documents.example.com").
	// docdbclient.New trims a trailing slash and adds "https://" when no scheme is present.
	Endpoint string `validate:"required"`

	// Key: account master key.
	Key string
	// ResourceToken: static resource token.
	ResourceToken string
	// TokenProvider: on-demand resource tokens.
	TokenProvider TokenProvider

	// ConsistencyLevel: defaults to Session.
	ConsistencyLevel ConsistencyLevel `validate:"omitempty,oneof=Strong BoundedStaleness Session Eventual ConsistentPrefix"`
	// PreferredRegions: ordered region names for reads. Empty uses the account ordering.
	PreferredRegions []string `validate:"dive,required"`
	// UserAgentSuffix: appended to the User-Agent header.
	UserAgentSuffix string `validate:"max=128"`

	// RequestTimeout: per round trip. Zero selects the default.
	RequestTimeout time.Duration `validate:"gte=0"`
	// RetryMax: transport retries for 5xx and connection errors.
	RetryMax int
	// RetryWaitMin: minimum backoff between retries.
	RetryWaitMin time.Duration `validate:"gte=0"`
	// RetryWaitMax: maximum backoff between retries.
	RetryWaitMax time.Duration `validate:"gte=0"`
	// RetryOnThrottle: retry 429 responses inside the transport, honouring x-ms-retry-after-ms.
	RetryOnThrottle bool

	// Debug: enables HTTP request/response logging when a Logger is provided.
	Debug bool
	// Logger: optional structured logger.
	Logger Logger
	// Interceptors: optional request/response hooks run around every round trip.
	Interceptors *InterceptorChain
	// Cache: container properties cache. Nil selects an in-memory cache.
	Cache *CacheConfig

	// DeduplicateProvisioning: collapse concurrent identical create-if-not-exists calls
	// into one in-flight request per process.
	DeduplicateProvisioning bool
}

var configValidator = validator.New()

// Validate checks the configuration without touching the network.
// It returns a *ConfigurationError or, for an undecodable key, an *AuthenticationError.
func (c *Config) Validate() error {
	err := configValidator.Struct(c)
	if err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			first := validationErrors[0]

			return &ConfigurationError{
				Field:  first.Field(),
				Reason: fmt.Sprintf("failed on the '%s' rule", first.Tag()),
				Err:    err,
			}
		}

		return &ConfigurationError{Reason: err.Error(), Err: err}
	}

	err = validateEndpoint(c.Endpoint)
	if err != nil {
		return err
	}

	return c.validateCredentials()
}

// EffectiveConsistencyLevel returns the configured level or the default.
func (c *Config) EffectiveConsistencyLevel() ConsistencyLevel {
	if c.ConsistencyLevel == "" {
		return DefaultConsistencyLevel
	}

	return c.ConsistencyLevel
}

// EffectiveRequestTimeout returns the configured timeout or the default.
func (c *Config) EffectiveRequestTimeout() time.Duration {
	if c.RequestTimeout == 0 {
		return constants.DefaultHTTPTimeout
	}

	return c.RequestTimeout
}

func validateEndpoint(endpoint string) error {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return &ConfigurationError{Field: "Endpoint", Reason: "malformed URL", Err: err}
	}

	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return &ConfigurationError{Field: "Endpoint", Reason: fmt.Sprintf("unsupported scheme %q", parsed.Scheme)}
	}

	if parsed.Host == "" {
		return &ConfigurationError{Field: "Endpoint", Reason: "missing host"}
	}

	return nil
}

func (c *Config) validateCredentials() error {
	count := 0

	if c.Key != "" {
		count++
	}

	if c.ResourceToken != "" {
		count++
	}

	if c.TokenProvider != nil {
		count++
	}

	switch {
	case count == 0:
		return &ConfigurationError{Field: "Key", Reason: "one of Key, ResourceToken or TokenProvider is required"}
	case count > 1:
		return &ConfigurationError{Field: "Key", Reason: "only one of Key, ResourceToken or TokenProvider may be set"}
	}

	if c.Key != "" {
		_, err := base64.StdEncoding.DecodeString(c.Key)
		if err != nil {
			return &AuthenticationError{Reason: "master key is not valid base64"}
		}
	}

	return nil
}
