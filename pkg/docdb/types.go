package docdb

import (
	"encoding/json"
	"fmt"
	"time"
)

// SystemProperties are the service-maintained fields present on every resource.
type SystemProperties struct {
	RID  string `json:"_rid,omitempty"  yaml:"rid,omitempty"`
	Self string `json:"_self,omitempty" yaml:"self,omitempty"`
	ETag string `json:"_etag,omitempty" yaml:"etag,omitempty"`
	TS   int64  `json:"_ts,omitempty"   yaml:"ts,omitempty"`
}

// DatabaseHandle identifies a database. It is returned by provisioning calls.
type DatabaseHandle struct {
	SystemProperties

	ID string `json:"id" yaml:"id"`
}

// Link returns the resource link "dbs/{id}".
func (d *DatabaseHandle) Link() string {
	return "dbs/" + d.ID
}

// PartitionKeyDefinition describes how a container partitions its items.
type PartitionKeyDefinition struct {
	Paths   []string `json:"paths"             yaml:"paths"`
	Kind    string   `json:"kind"              yaml:"kind"`
	Version int      `json:"version,omitempty" yaml:"version,omitempty"`
}

// ContainerProperties is the wire form of a container.
type ContainerProperties struct {
	SystemProperties

	ID           string                 `json:"id"           yaml:"id"`
	PartitionKey PartitionKeyDefinition `json:"partitionKey" yaml:"partition_key"`
}

// PartitionKeyPath returns the first partition key path, or "" for unpartitioned containers.
func (p *ContainerProperties) PartitionKeyPath() string {
	if len(p.PartitionKey.Paths) == 0 {
		return ""
	}

	return p.PartitionKey.Paths[0]
}

// ContainerHandle identifies a container within exactly one database.
// The partition key path is immutable once the container exists.
type ContainerHandle struct {
	DatabaseID            string `json:"databaseId"                      yaml:"database_id"`
	ID                    string `json:"id"                              yaml:"id"`
	PartitionKeyPath      string `json:"partitionKeyPath"                yaml:"partition_key_path"`
	ProvisionedThroughput int    `json:"provisionedThroughput,omitempty" yaml:"provisioned_throughput,omitempty"`
	RID                   string `json:"rid,omitempty"                   yaml:"rid,omitempty"`
}

// Link returns the resource link "dbs/{db}/colls/{id}".
func (c *ContainerHandle) Link() string {
	return fmt.Sprintf("dbs/%s/colls/%s", c.DatabaseID, c.ID)
}

// NewContainerHandle builds a handle from container properties.
func NewContainerHandle(databaseID string, props *ContainerProperties) *ContainerHandle {
	return &ContainerHandle{
		DatabaseID:       databaseID,
		ID:               props.ID,
		PartitionKeyPath: props.PartitionKeyPath(),
		RID:              props.RID,
	}
}

// OfferContent holds the provisioned throughput of an offer.
type OfferContent struct {
	OfferThroughput int `json:"offerThroughput" yaml:"offer_throughput"`
}

// Offer is the throughput resource attached to a container.
type Offer struct {
	SystemProperties

	ID              string       `json:"id"              yaml:"id"`
	OfferVersion    string       `json:"offerVersion"    yaml:"offer_version"`
	OfferType       string       `json:"offerType"       yaml:"offer_type"`
	Resource        string       `json:"resource"        yaml:"resource"`
	OfferResourceID string       `json:"offerResourceId" yaml:"offer_resource_id"`
	Content         OfferContent `json:"content"         yaml:"content"`
}

// ThroughputResponse is the outcome of a throughput read or replace.
type ThroughputResponse struct {
	Offer          *Offer        `json:"offer"          yaml:"offer"`
	Throughput     int           `json:"throughput"     yaml:"throughput"`
	ReplacePending bool          `json:"replacePending" yaml:"replace_pending"`
	RequestCharge  float64       `json:"requestCharge"  yaml:"request_charge"`
	Latency        time.Duration `json:"latency"        yaml:"latency"`
}

// AccountRegion is a region the database account is replicated to.
type AccountRegion struct {
	Name     string `json:"name"                    yaml:"name"`
	Endpoint string `json:"databaseAccountEndpoint" yaml:"endpoint"`
}

// ConsistencyPolicy is the account's default consistency.
type ConsistencyPolicy struct {
	DefaultConsistencyLevel ConsistencyLevel `json:"defaultConsistencyLevel" yaml:"default_consistency_level"`
}

// DatabaseAccount is the response of the account endpoint.
type DatabaseAccount struct {
	ID                  string            `json:"id"                           yaml:"id"`
	WritableLocations   []AccountRegion   `json:"writableLocations"            yaml:"writable_locations"`
	ReadableLocations   []AccountRegion   `json:"readableLocations"            yaml:"readable_locations"`
	ConsistencyPolicy   ConsistencyPolicy `json:"userConsistencyPolicy"        yaml:"consistency_policy"`
	EnableMultipleWrite bool              `json:"enableMultipleWriteLocations" yaml:"enable_multiple_write_locations"`
}

// RequestOutcome is returned by every item-level operation. RequestCharge and
// Latency are always populated on success.
type RequestOutcome struct {
	Payload       json.RawMessage `json:"payload,omitempty" yaml:"-"`
	StatusCode    int             `json:"statusCode"        yaml:"status_code"`
	RequestCharge float64         `json:"requestCharge"     yaml:"request_charge"`
	Latency       time.Duration   `json:"latency"           yaml:"latency"`
	ActivityID    string          `json:"activityId"        yaml:"activity_id"`
	SessionToken  string          `json:"sessionToken"      yaml:"session_token,omitempty"`
	ETag          string          `json:"etag"              yaml:"etag,omitempty"`
}

// Decode unmarshals the payload into v.
func (o *RequestOutcome) Decode(v interface{}) error {
	if len(o.Payload) == 0 {
		return ErrNoMoreItems
	}

	err := json.Unmarshal(o.Payload, v)
	if err != nil {
		return fmt.Errorf("parsing item: %w", err)
	}

	return nil
}

// DecodeItem unmarshals an outcome payload into a T.
func DecodeItem[T any](outcome *RequestOutcome) (T, error) {
	var item T

	err := outcome.Decode(&item)

	return item, err
}

// ItemOptions tune a single item write.
type ItemOptions struct {
	// IfMatchETag makes replace and delete conditional on the item's current ETag.
	IfMatchETag string
}
