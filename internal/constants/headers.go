package constants

// Request and response headers of the service protocol.
const (
	HeaderAuthorization        = "Authorization"
	HeaderDate                 = "x-ms-date"
	HeaderVersion              = "x-ms-version"
	HeaderConsistencyLevel     = "x-ms-consistency-level"
	HeaderSessionToken         = "x-ms-session-token"
	HeaderActivityID           = "x-ms-activity-id"
	HeaderRequestCharge        = "x-ms-request-charge"
	HeaderRetryAfterMS         = "x-ms-retry-after-ms"
	HeaderSubStatus            = "x-ms-substatus"
	HeaderContinuation         = "x-ms-continuation"
	HeaderMaxItemCount         = "x-ms-max-item-count"
	HeaderItemCount            = "x-ms-item-count"
	HeaderPartitionKey         = "x-ms-documentdb-partitionkey"
	HeaderIsUpsert             = "x-ms-documentdb-is-upsert"
	HeaderIsQuery              = "x-ms-documentdb-isquery"
	HeaderEnableCrossPartition = "x-ms-documentdb-query-enablecrosspartition"
	HeaderPopulateQueryMetrics = "x-ms-documentdb-populatequerymetrics"
	HeaderQueryMetrics         = "x-ms-documentdb-query-metrics"
	HeaderOfferThroughput      = "x-ms-offer-throughput"
	HeaderOfferReplacePending  = "x-ms-offer-replace-pending"
	HeaderIfMatch              = "If-Match"
	HeaderETag                 = "ETag"
	HeaderUserAgent            = "User-Agent"
	HeaderContentType          = "Content-Type"
	HeaderAccept               = "Accept"
)

// Content types.
const (
	ContentTypeJSON      = "application/json"
	ContentTypeQueryJSON = "application/query+json"
)

// HeaderTrue is the literal the service uses for boolean headers.
const HeaderTrue = "True"
