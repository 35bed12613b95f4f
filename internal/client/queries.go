package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	nethttp "net/http"
	"strconv"
	"strings"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
	"github.com/fivetwenty-io/docdb-client/internal/http"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

// QueryClient implements docdb.QueryClient.
type QueryClient struct {
	httpClient *http.Client
	locations  *locationCache
	sessions   *sessionTokens
}

// NewQueryClient creates a new query client.
func NewQueryClient(httpClient *http.Client, locations *locationCache, sessions *sessionTokens) *QueryClient {
	return &QueryClient{
		httpClient: httpClient,
		locations:  locations,
		sessions:   sessions,
	}
}

// Execute implements docdb.QueryClient.Execute. Options are copied, so later
// changes to opts do not affect the returned iterator.
func (c *QueryClient) Execute(container *docdb.ContainerHandle, query *docdb.QuerySpec, opts *docdb.QueryOptions) *docdb.QueryIterator {
	if opts == nil {
		opts = docdb.NewQueryOptions()
	}

	options := *opts

	fetcher := &queryFetcher{
		client:    c,
		container: container,
		query:     query,
		options:   options,
	}

	return docdb.NewQueryIterator(fetcher, options.ContinuationToken)
}

type queryFetcher struct {
	client    *QueryClient
	container *docdb.ContainerHandle
	query     *docdb.QuerySpec
	options   docdb.QueryOptions
}

type queryResponse struct {
	RID       string            `json:"_rid"`
	Documents []json.RawMessage `json:"Documents"`
	Count     int               `json:"_count"`
}

// FetchPage implements docdb.PageFetcher.
func (f *queryFetcher) FetchPage(ctx context.Context, continuation string) (*docdb.QueryPage, error) {
	if f.container == nil {
		return nil, docdb.ErrContainerRequired
	}

	if f.query == nil || strings.TrimSpace(f.query.Query) == "" {
		return nil, &docdb.InvalidQueryError{}
	}

	headers := map[string]string{
		constants.HeaderIsQuery:     constants.HeaderTrue,
		constants.HeaderContentType: constants.ContentTypeQueryJSON,
	}

	if f.options.MaxItemCount > 0 {
		headers[constants.HeaderMaxItemCount] = strconv.Itoa(f.options.MaxItemCount)
	}

	if continuation != "" {
		headers[constants.HeaderContinuation] = continuation
	}

	if f.options.CrossPartitionEnabled {
		headers[constants.HeaderEnableCrossPartition] = constants.HeaderTrue
	}

	if f.options.PopulateMetrics {
		headers[constants.HeaderPopulateQueryMetrics] = constants.HeaderTrue
	}

	if f.options.PartitionKey != nil {
		headers[constants.HeaderPartitionKey] = f.options.PartitionKey.Header()
	}

	link := f.container.Link()
	if token := f.client.sessions.get(link); token != "" {
		headers[constants.HeaderSessionToken] = token
	}

	resp, err := f.client.httpClient.Do(ctx, &http.Request{
		Method:  nethttp.MethodPost,
		Path:    "/" + link + "/docs",
		Body:    f.query,
		Headers: headers,
		BaseURL: f.client.locations.readEndpoint(ctx),
	})
	if err != nil {
		// A rejected continuation is not a malformed query.
		apiErr := &docdb.APIError{}
		if continuation == "" && errors.As(err, &apiErr) && apiErr.StatusCode == nethttp.StatusBadRequest {
			return nil, &docdb.InvalidQueryError{Query: f.query.Query, Response: apiErr}
		}

		return nil, fmt.Errorf("querying items: %w", err)
	}

	f.client.sessions.set(link, resp.SessionToken)

	var body queryResponse

	err = json.Unmarshal(resp.Body, &body)
	if err != nil {
		return nil, fmt.Errorf("parsing query response: %w", err)
	}

	metrics, err := docdb.ParseQueryMetrics(resp.Headers.Get(constants.HeaderQueryMetrics))
	if err != nil {
		return nil, err
	}

	return &docdb.QueryPage{
		Results:           body.Documents,
		RequestCharge:     resp.RequestCharge,
		ContinuationToken: resp.Headers.Get(constants.HeaderContinuation),
		Metrics:           metrics,
		ActivityID:        resp.ActivityID,
		Latency:           resp.Latency,
	}, nil
}
