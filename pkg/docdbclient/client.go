package docdbclient

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fivetwenty-io/docdb-client/internal/client"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

// New creates a new client. The configuration is copied and its endpoint normalized;
// no request is sent until the first operation.
func New(ctx context.Context, config *docdb.Config) (docdb.Client, error) {
	if config == nil {
		return nil, &docdb.ConfigurationError{Field: "Config", Err: docdb.ErrConfigRequired}
	}

	normalized := *config
	normalized.Endpoint = NormalizeEndpoint(config.Endpoint)

	c, err := client.New(ctx, &normalized)
	if err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}

	return c, nil
}

// NormalizeEndpoint trims surrounding whitespace and a trailing slash, and adds
// "https://" when no scheme is present. An empty endpoint stays empty.
func NormalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSuffix(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return ""
	}

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}

	return endpoint
}

// NewWithKey creates a new client signed with the account master key.
func NewWithKey(ctx context.Context, endpoint, key string) (docdb.Client, error) {
	return New(ctx, &docdb.Config{
		Endpoint: endpoint,
		Key:      key,
	})
}

// NewWithResourceToken creates a new client authorized by a static resource token.
func NewWithResourceToken(ctx context.Context, endpoint, token string) (docdb.Client, error) {
	return New(ctx, &docdb.Config{
		Endpoint:      endpoint,
		ResourceToken: token,
	})
}

var (
	sharedMutex  sync.Mutex
	sharedClient docdb.Client
)

// Shared returns the process-wide client, creating it from config on first use.
// Later calls return the same client and ignore config until CloseShared.
func Shared(ctx context.Context, config *docdb.Config) (docdb.Client, error) {
	sharedMutex.Lock()
	defer sharedMutex.Unlock()

	if sharedClient != nil {
		return sharedClient, nil
	}

	c, err := New(ctx, config)
	if err != nil {
		return nil, err
	}

	sharedClient = c

	return sharedClient, nil
}

// CloseShared closes the process-wide client, if any. The next Shared call
// creates a fresh one.
func CloseShared() error {
	sharedMutex.Lock()
	defer sharedMutex.Unlock()

	if sharedClient == nil {
		return nil
	}

	err := sharedClient.Close()
	sharedClient = nil

	return err
}
