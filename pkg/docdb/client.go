package docdb

import (
	"context"
)

// Client is a connection to one database account. It is safe for concurrent
// use and should be created once per process and closed once at shutdown.
type Client interface {
	Databases() DatabasesClient
	Containers() ContainersClient
	Throughput() ThroughputClient
	Items() ItemsClient
	Queries() QueryClient

	// Account reads the database account on first use and caches it.
	Account(ctx context.Context) (*DatabaseAccount, error)

	// Close releases idle connections. Calls after the first return nil;
	// operations after Close fail with ErrClientClosed.
	Close() error
}

// DatabasesClient provisions databases.
type DatabasesClient interface {
	// CreateIfNotExists returns the existing database or creates it. Concurrent
	// callers with the same id all succeed.
	CreateIfNotExists(ctx context.Context, id string) (*DatabaseHandle, error)
	Create(ctx context.Context, id string) (*DatabaseHandle, error)
	Get(ctx context.Context, id string) (*DatabaseHandle, error)
	Delete(ctx context.Context, id string) error
}

// ContainersClient provisions containers.
type ContainersClient interface {
	// CreateIfNotExists returns the existing container or creates it with the
	// given partition key path and throughput. An existing container with a
	// different partition key path fails with *SchemaConflictError.
	CreateIfNotExists(ctx context.Context, db *DatabaseHandle, id, partitionKeyPath string, throughput int) (*ContainerHandle, error)
	Get(ctx context.Context, db *DatabaseHandle, id string) (*ContainerHandle, error)
	Delete(ctx context.Context, db *DatabaseHandle, id string) error
}

// ThroughputClient reads and replaces provisioned throughput.
type ThroughputClient interface {
	Read(ctx context.Context, container *ContainerHandle) (*ThroughputResponse, error)

	// Replace sets the container's throughput. There is no atomic increment: a
	// Read followed by Replace(old+n) races with other scalers, and the last
	// writer wins.
	Replace(ctx context.Context, container *ContainerHandle, throughput int) (*ThroughputResponse, error)

	// PollUntilApplied waits until a pending replace has been applied.
	PollUntilApplied(ctx context.Context, container *ContainerHandle) (*ThroughputResponse, error)
}

// ItemsClient reads and writes single items.
//
// Writes take an optional partition key hint. When it is nil the key is taken
// from the item's partition key field; when both are present they must match.
// Mismatches fail with *PartitionKeyMismatchError before any request is sent.
type ItemsClient interface {
	Create(ctx context.Context, container *ContainerHandle, item interface{}, partitionKey *PartitionKey) (*RequestOutcome, error)
	Upsert(ctx context.Context, container *ContainerHandle, item interface{}, partitionKey *PartitionKey) (*RequestOutcome, error)
	Replace(ctx context.Context, container *ContainerHandle, id string, item interface{}, partitionKey *PartitionKey, opts *ItemOptions) (*RequestOutcome, error)

	// Read is a point lookup routed by partition key.
	Read(ctx context.Context, container *ContainerHandle, id string, partitionKey PartitionKey) (*RequestOutcome, error)
	Delete(ctx context.Context, container *ContainerHandle, id string, partitionKey PartitionKey, opts *ItemOptions) (*RequestOutcome, error)
}

// QueryClient runs queries.
type QueryClient interface {
	// Execute returns a lazy iterator. Nothing is sent until the first NextPage.
	Execute(container *ContainerHandle, query *QuerySpec, opts *QueryOptions) *QueryIterator
}
