package constants

import "errors"

// CLI configuration errors.
var (
	ErrNoEndpointConfigured = errors.New("no endpoint configured, use 'docdb login' or set DOCDB_ENDPOINT")
	ErrNoKeyConfigured      = errors.New("no key configured, use 'docdb login' or set DOCDB_KEY")
	ErrUnknownConfigKey     = errors.New("unknown configuration key")
	ErrUnknownOutputFormat  = errors.New("unknown output format")
)

// Argument errors.
var (
	ErrPartitionKeyRequired = errors.New("--partition-key flag is required")
	ErrItemFileRequired     = errors.New("--file flag is required")
	ErrInvalidThroughput    = errors.New("throughput must be a positive integer")
)
