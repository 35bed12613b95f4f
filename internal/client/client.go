package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/fivetwenty-io/docdb-client/internal/auth"
	"github.com/fivetwenty-io/docdb-client/internal/constants"
	"github.com/fivetwenty-io/docdb-client/internal/http"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

// Static errors for err113 compliance.
var (
	ErrEndpointRequired = errors.New("endpoint is required")
)

// Client implements the docdb.Client interface.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     docdb.Logger
	locations  *locationCache
	sessions   *sessionTokens
	cache      docdb.Cache

	databases  *DatabasesClient
	containers *ContainersClient
	throughput *ThroughputClient
	items      *ItemsClient
	queries    *QueryClient

	closeOnce sync.Once
}

// createAuthorizer picks the authorizer for the configured credential.
func createAuthorizer(config *docdb.Config) (auth.Authorizer, error) {
	switch {
	case config.Key != "":
		authorizer, err := auth.NewMasterKeyAuthorizer(config.Key)
		if err != nil {
			return nil, &docdb.AuthenticationError{Reason: err.Error()}
		}

		return authorizer, nil

	case config.ResourceToken != "":
		authorizer, err := auth.NewResourceTokenAuthorizer(config.ResourceToken)
		if err != nil {
			return nil, &docdb.AuthenticationError{Reason: err.Error()}
		}

		return authorizer, nil

	case config.TokenProvider != nil:
		provider := config.TokenProvider

		return auth.NewProviderAuthorizer(func(ctx context.Context, verb, resourceType, resourceLink string) (*auth.Token, error) {
			token, err := provider(ctx, docdb.TokenRequest{
				Verb:         verb,
				ResourceType: resourceType,
				ResourceLink: resourceLink,
			})
			if err != nil {
				return nil, err
			}

			return &auth.Token{AccessToken: token.Token, ExpiresAt: token.ExpiresAt}, nil
		}), nil

	default:
		return nil, &docdb.ConfigurationError{Field: "Key", Reason: "no credential configured"}
	}
}

// userAgent returns the SDK user agent with the configured suffix.
func userAgent(suffix string) string {
	agent := constants.SDKName + "/" + constants.SDKVersion
	if suffix = strings.TrimSpace(suffix); suffix != "" {
		agent += " " + suffix
	}

	return agent
}

// createHTTPClientOptions builds HTTP client options from config.
func createHTTPClientOptions(config *docdb.Config) []http.Option {
	httpOpts := []http.Option{
		http.WithUserAgent(userAgent(config.UserAgentSuffix)),
		http.WithTimeout(config.EffectiveRequestTimeout()),
		http.WithConsistencyLevel(string(config.EffectiveConsistencyLevel())),
		http.WithRetryOnThrottle(config.RetryOnThrottle),
	}

	if config.Logger != nil {
		httpOpts = append(httpOpts, http.WithLogger(config.Logger))
	}

	if config.Debug {
		httpOpts = append(httpOpts, http.WithDebug(true))
	}

	if config.Interceptors != nil {
		httpOpts = append(httpOpts, http.WithInterceptors(config.Interceptors))
	}

	if config.RetryMax != 0 || config.RetryWaitMin > 0 || config.RetryWaitMax > 0 {
		retryMax := config.RetryMax
		if retryMax == 0 {
			retryMax = constants.DefaultRetryMax
		}

		retryWaitMin := constants.DefaultRetryWaitMin
		retryWaitMax := constants.ExtendedRetryWaitMax

		if config.RetryWaitMin > 0 {
			retryWaitMin = config.RetryWaitMin
		}

		if config.RetryWaitMax > 0 {
			retryWaitMax = config.RetryWaitMax
		}

		httpOpts = append(httpOpts, http.WithRetryConfig(retryMax, retryWaitMin, retryWaitMax))
	}

	return httpOpts
}

// New creates a client. It validates the configuration and makes no network call.
func New(_ context.Context, config *docdb.Config) (*Client, error) {
	if config == nil || config.Endpoint == "" {
		return nil, &docdb.ConfigurationError{Field: "Endpoint", Reason: "required", Err: ErrEndpointRequired}
	}

	err := config.Validate()
	if err != nil {
		return nil, err
	}

	// The client keeps its own copy; later changes to the caller's config do not reach it.
	owned := *config
	owned.PreferredRegions = slices.Clone(config.PreferredRegions)
	config = &owned

	authorizer, err := createAuthorizer(config)
	if err != nil {
		return nil, err
	}

	cache, err := docdb.NewCacheFromConfig(config.Cache)
	if err != nil {
		return nil, &docdb.ConfigurationError{Field: "Cache", Reason: err.Error(), Err: err}
	}

	httpClient := http.NewClient(config.Endpoint, authorizer, createHTTPClientOptions(config)...)

	var logger docdb.Logger = docdb.NopLogger{}
	if config.Logger != nil {
		logger = config.Logger
	}

	client := &Client{
		httpClient: httpClient,
		baseURL:    config.Endpoint,
		logger:     logger,
		locations:  newLocationCache(httpClient, config.PreferredRegions, logger),
		sessions:   newSessionTokens(config.EffectiveConsistencyLevel() == docdb.ConsistencySession),
		cache:      cache,
	}

	var group *singleflight.Group
	if config.DeduplicateProvisioning {
		group = &singleflight.Group{}
	}

	ttl := constants.DefaultCacheTTL
	if config.Cache != nil && config.Cache.Options != nil && config.Cache.Options.TTL > 0 {
		ttl = config.Cache.Options.TTL
	}

	provisioning := &provisioner{group: group}
	client.throughput = NewThroughputClient(httpClient)
	client.databases = NewDatabasesClient(httpClient, provisioning, logger)
	client.containers = NewContainersClient(httpClient, docdb.NewContainerCache(cache, ttl), provisioning, client.throughput, logger)
	client.items = NewItemsClient(httpClient, client.locations, client.sessions)
	client.queries = NewQueryClient(httpClient, client.locations, client.sessions)

	return client, nil
}

// Databases implements docdb.Client.Databases.
func (c *Client) Databases() docdb.DatabasesClient {
	return c.databases
}

// Containers implements docdb.Client.Containers.
func (c *Client) Containers() docdb.ContainersClient {
	return c.containers
}

// Throughput implements docdb.Client.Throughput.
func (c *Client) Throughput() docdb.ThroughputClient {
	return c.throughput
}

// Items implements docdb.Client.Items.
func (c *Client) Items() docdb.ItemsClient {
	return c.items
}

// Queries implements docdb.Client.Queries.
func (c *Client) Queries() docdb.QueryClient {
	return c.queries
}

// Account implements docdb.Client.Account.
func (c *Client) Account(ctx context.Context) (*docdb.DatabaseAccount, error) {
	return c.locations.Account(ctx)
}

// Close implements docdb.Client.Close.
func (c *Client) Close() error {
	var err error

	c.closeOnce.Do(func() {
		c.httpClient.Close()

		switch closer := c.cache.(type) {
		case interface{ Close() error }:
			err = closer.Close()
		case interface{ Close() }:
			closer.Close()
		}

		if err != nil {
			err = fmt.Errorf("closing cache: %w", err)
		}
	})

	return err
}

// provisioner optionally collapses concurrent identical provisioning calls.
// The shared call runs detached from any one caller's cancellation; each
// caller stops waiting when its own ctx is done.
type provisioner struct {
	group *singleflight.Group
}

func (p *provisioner) do(
	ctx context.Context,
	key string,
	fn func(ctx context.Context) (interface{}, error),
) (interface{}, error) {
	if p == nil || p.group == nil {
		return fn(ctx)
	}

	shared := context.WithoutCancel(ctx)

	results := p.group.DoChan(key, func() (interface{}, error) {
		return fn(shared)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("provisioning %s: %w", key, ctx.Err())
	case result := <-results:
		return result.Val, result.Err
	}
}

// validateID rejects ids the service cannot address.
func validateID(kind, id string) error {
	if id == "" {
		return &docdb.ConfigurationError{Field: kind, Reason: "id is required"}
	}

	if strings.ContainsAny(id, `/\?#`) {
		return &docdb.ConfigurationError{Field: kind, Reason: fmt.Sprintf("id %q contains a reserved character", id)}
	}

	return nil
}
