package constants

import "time"

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration directories.
	ConfigDirPerm = 0750

	// ConfigFilePerm is the permission for configuration files.
	ConfigFilePerm = 0600
)

// HTTP and network timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for a single service round trip.
	DefaultHTTPTimeout = 30 * time.Second

	// ShortHTTPTimeout is used for account discovery.
	ShortHTTPTimeout = 10 * time.Second
)

// Retry and concurrency limits.
const (
	// DefaultRetryMax is the default maximum number of transport retries.
	DefaultRetryMax = 5

	// LowRetryMax is used for operations that should retry fewer times.
	LowRetryMax = 3

	// DefaultRetryWaitMin is the minimum wait time between retries.
	DefaultRetryWaitMin = 1 * time.Second

	// DefaultRetryWaitMax is the maximum wait time between retries.
	DefaultRetryWaitMax = 10 * time.Second

	// ExtendedRetryWaitMax is used for operations that need longer waits.
	ExtendedRetryWaitMax = 30 * time.Second

	// DefaultThrottleRetries bounds RetryThrottled when no policy is given.
	DefaultThrottleRetries = 9

	// DefaultConcurrencyLimit limits concurrent batch operations.
	DefaultConcurrencyLimit = 5
)

// Service protocol.
const (
	// APIVersion is sent as x-ms-version on every request.
	APIVersion = "2018-12-31"

	// SDKName prefixes the User-Agent header.
	SDKName = "docdb-go"

	// SDKVersion is the library version reported in the User-Agent header.
	SDKVersion = "1.0.0"

	// AuthTypeMaster marks a master-key signature.
	AuthTypeMaster = "master"

	// AuthTypeResource marks a resource token.
	AuthTypeResource = "resource"

	// AuthTokenVersion is the signature scheme version.
	AuthTokenVersion = "1.0"

	// PartitionKeyKindHash is the only partitioning kind the client creates.
	PartitionKeyKindHash = "Hash"

	// OfferVersionV2 is the offer schema carrying explicit throughput.
	OfferVersionV2 = "V2"
)

// Resource types used in request signing and routing.
const (
	ResourceTypeDatabase  = "dbs"
	ResourceTypeContainer = "colls"
	ResourceTypeDocument  = "docs"
	ResourceTypeOffer     = "offers"
)

// Throughput limits enforced by the service.
const (
	// MinThroughput is the smallest manual throughput a container may have.
	MinThroughput = 400

	// MaxThroughput is the largest manual throughput accepted without a support ticket.
	MaxThroughput = 1000000

	// ThroughputStep is the granularity of manual throughput.
	ThroughputStep = 100
)

// Time intervals and delays.
const (
	// DefaultPollInterval is used for offer replacement polling.
	DefaultPollInterval = 2 * time.Second

	// QuickPollInterval is used for fast polling in tests.
	QuickPollInterval = 10 * time.Millisecond

	// DefaultPollTimeout bounds offer replacement polling.
	DefaultPollTimeout = 5 * time.Minute
)

// Query and paging.
const (
	// DefaultMaxItemCount lets the service choose the page size.
	DefaultMaxItemCount = -1

	// ServiceMaxItemCount is the page size the emulator uses when the client leaves it to the service.
	ServiceMaxItemCount = 100

	// DefaultPageSize is the page size used by the CLI and demo.
	DefaultPageSize = 10

	// MaxPages prevents runaway iteration in All.
	MaxPages = 10000
)

// Cache limits.
const (
	// DefaultCacheSize is the default cache size limit.
	DefaultCacheSize = 1000

	// DefaultCacheTTL is the default container properties time-to-live.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultLocalCacheTTL caps how long a tiered cache serves an entry from memory.
	DefaultLocalCacheTTL = 30 * time.Second

	// MaxCacheValueSize is the maximum size for cached values (1MB).
	MaxCacheValueSize = 1024 * 1024
)

// Circuit breaker defaults.
const (
	// CircuitBreakerThreshold is the failure threshold for circuit breaker.
	CircuitBreakerThreshold = 5

	// CircuitBreakerSuccessThreshold is the success threshold for circuit breaker.
	CircuitBreakerSuccessThreshold = 2

	// CircuitBreakerTimeout is the timeout for circuit breaker.
	CircuitBreakerTimeout = 30 * time.Second
)

// State and status constants.
const (
	StatusClosed   = "closed"
	StatusOpen     = "open"
	StatusHalfOpen = "half-open"
)

// Token handling.
const (
	// TokenExpirationBuffer is how early a resource token is considered expired.
	TokenExpirationBuffer = 30 * time.Second
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"

	// JSONIndentSize is the number of spaces for JSON indentation.
	JSONIndentSize = 2
)

// Emulator.
const (
	// EmulatorMasterKey is the well-known key of the local emulator.
	EmulatorMasterKey = "C2y6yDjf5/R+ob0N8A7Cgv30VRDJIWEHLM+4QDU5DE2nQ9nDuVTqobD4b8mGGyPMbIZnqyMsEcaGQy67XIw/Jw=="

	// EmulatorPartitionCount is the number of physical partitions per container.
	EmulatorPartitionCount = 4

	// EmulatorRegion is the region name the emulator reports.
	EmulatorRegion = "West US"
)
