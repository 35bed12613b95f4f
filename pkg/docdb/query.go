package docdb

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
)

// QueryParameter binds a named parameter such as "@lastName".
type QueryParameter struct {
	Name  string      `json:"name"  yaml:"name"`
	Value interface{} `json:"value" yaml:"value"`
}

// QuerySpec is the body of a query request.
type QuerySpec struct {
	Query      string           `json:"query"                yaml:"query"`
	Parameters []QueryParameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// NewQuery creates a query spec from query text.
func NewQuery(text string) *QuerySpec {
	return &QuerySpec{Query: text}
}

// WithParameter adds a named parameter.
func (q *QuerySpec) WithParameter(name string, value interface{}) *QuerySpec {
	q.Parameters = append(q.Parameters, QueryParameter{Name: name, Value: value})

	return q
}

// QueryOptions control query execution.
type QueryOptions struct {
	// MaxItemCount is a page size hint. Zero or negative lets the service choose.
	MaxItemCount int
	// CrossPartitionEnabled must be true when the query cannot be routed to one partition.
	CrossPartitionEnabled bool
	// PopulateMetrics asks the service for per-page execution metrics.
	PopulateMetrics bool
	// PartitionKey routes the query to a single logical partition.
	PartitionKey *PartitionKey
	// ContinuationToken resumes a query after the last page a previous iterator delivered.
	ContinuationToken string
}

// NewQueryOptions creates query options with service-chosen page size.
func NewQueryOptions() *QueryOptions {
	return &QueryOptions{MaxItemCount: constants.DefaultMaxItemCount}
}

// WithMaxItemCount sets the page size hint.
func (o *QueryOptions) WithMaxItemCount(n int) *QueryOptions {
	o.MaxItemCount = n

	return o
}

// WithCrossPartition enables fan-out across partitions.
func (o *QueryOptions) WithCrossPartition(enabled bool) *QueryOptions {
	o.CrossPartitionEnabled = enabled

	return o
}

// WithMetrics enables query metrics.
func (o *QueryOptions) WithMetrics(enabled bool) *QueryOptions {
	o.PopulateMetrics = enabled

	return o
}

// WithPartitionKey routes the query to one logical partition.
func (o *QueryOptions) WithPartitionKey(pk PartitionKey) *QueryOptions {
	o.PartitionKey = &pk

	return o
}

// WithContinuation resumes from a stored continuation token.
func (o *QueryOptions) WithContinuation(token string) *QueryOptions {
	o.ContinuationToken = token

	return o
}

// QueryMetrics are the per-page execution metrics reported by the service.
type QueryMetrics struct {
	RetrievedDocumentCount int           `json:"retrievedDocumentCount" yaml:"retrieved_document_count"`
	OutputDocumentCount    int           `json:"outputDocumentCount"    yaml:"output_document_count"`
	TotalExecutionTime     time.Duration `json:"totalExecutionTime"     yaml:"total_execution_time"`
	IndexHitRatio          float64       `json:"indexHitRatio"          yaml:"index_hit_ratio"`
}

// ParseQueryMetrics parses the semicolon-separated metrics header.
// Unknown keys are ignored.
func ParseQueryMetrics(header string) (*QueryMetrics, error) {
	if header == "" {
		return nil, nil //nolint:nilnil // absent header means no metrics
	}

	metrics := &QueryMetrics{}

	for _, pair := range strings.Split(header, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}

		var err error

		switch key {
		case "retrievedDocumentCount":
			metrics.RetrievedDocumentCount, err = strconv.Atoi(value)
		case "outputDocumentCount":
			metrics.OutputDocumentCount, err = strconv.Atoi(value)
		case "totalExecutionTimeInMs":
			var ms float64

			ms, err = strconv.ParseFloat(value, 64)
			metrics.TotalExecutionTime = time.Duration(ms * float64(time.Millisecond))
		case "indexHitRatio":
			metrics.IndexHitRatio, err = strconv.ParseFloat(value, 64)
		}

		if err != nil {
			return nil, fmt.Errorf("parsing query metric %q: %w", key, err)
		}
	}

	return metrics, nil
}

// QueryPage is one page of query results.
// ContinuationToken is empty when the query is exhausted.
type QueryPage struct {
	Results           []json.RawMessage `json:"results"           yaml:"-"`
	RequestCharge     float64           `json:"requestCharge"     yaml:"request_charge"`
	ContinuationToken string            `json:"continuationToken" yaml:"continuation_token"`
	Metrics           *QueryMetrics     `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	ActivityID        string            `json:"activityId"        yaml:"activity_id"`
	Latency           time.Duration     `json:"latency"           yaml:"latency"`
}

// Count returns the number of results on the page.
func (p *QueryPage) Count() int {
	return len(p.Results)
}

// IDs returns the "id" field of every result that has one.
func (p *QueryPage) IDs() []string {
	ids := make([]string, 0, len(p.Results))

	for _, raw := range p.Results {
		var doc struct {
			ID string `json:"id"`
		}

		if json.Unmarshal(raw, &doc) == nil && doc.ID != "" {
			ids = append(ids, doc.ID)
		}
	}

	return ids
}

// DecodePage unmarshals every result on a page into a T.
func DecodePage[T any](page *QueryPage) ([]T, error) {
	items := make([]T, 0, len(page.Results))

	for i, raw := range page.Results {
		var item T

		err := json.Unmarshal(raw, &item)
		if err != nil {
			return nil, fmt.Errorf("parsing result %d: %w", i, err)
		}

		items = append(items, item)
	}

	return items, nil
}
