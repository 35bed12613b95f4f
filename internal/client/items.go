package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
	"github.com/fivetwenty-io/docdb-client/internal/http"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

// ItemsClient implements docdb.ItemsClient.
type ItemsClient struct {
	httpClient *http.Client
	locations  *locationCache
	sessions   *sessionTokens
}

// NewItemsClient creates a new items client.
func NewItemsClient(httpClient *http.Client, locations *locationCache, sessions *sessionTokens) *ItemsClient {
	return &ItemsClient{
		httpClient: httpClient,
		locations:  locations,
		sessions:   sessions,
	}
}

// document is an item prepared for sending.
type document struct {
	id   string
	body []byte
	key  docdb.PartitionKey
}

// prepare serializes item and resolves its partition key. Nothing is sent
// when the item is not a JSON object, lacks an id or disagrees with the
// supplied partition key.
func prepare(container *docdb.ContainerHandle, item interface{}, supplied *docdb.PartitionKey, id string) (*document, error) {
	if container == nil {
		return nil, docdb.ErrContainerRequired
	}

	body, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encoding item: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var fields map[string]interface{}

	err = decoder.Decode(&fields)
	if err != nil || fields == nil {
		return nil, docdb.ErrItemNotObject
	}

	itemID, _ := fields["id"].(string)

	switch {
	case id != "" && itemID == "":
		fields["id"] = id
		itemID = id

		body, err = json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("encoding item: %w", err)
		}
	case id != "" && itemID != id:
		return nil, &docdb.ConfigurationError{Field: "id", Reason: fmt.Sprintf("item id %q does not match %q", itemID, id)}
	case itemID == "":
		return nil, docdb.ErrItemIDRequired
	}

	doc := &document{id: itemID, body: body}

	if container.PartitionKeyPath == "" {
		return doc, nil
	}

	doc.key, err = docdb.ResolvePartitionKey(normalizeNumbers(fields), container.PartitionKeyPath, supplied)
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// normalizeNumbers turns json.Number values into float64 so partition key
// comparison matches values decoded without UseNumber.
func normalizeNumbers(fields map[string]interface{}) map[string]interface{} {
	for key, value := range fields {
		switch typed := value.(type) {
		case json.Number:
			if f, err := typed.Float64(); err == nil {
				fields[key] = f
			}
		case map[string]interface{}:
			fields[key] = normalizeNumbers(typed)
		}
	}

	return fields
}

func docsPath(container *docdb.ContainerHandle) string {
	return "/" + container.Link() + "/docs"
}

func (c *ItemsClient) headers(container *docdb.ContainerHandle, key docdb.PartitionKey, read bool) map[string]string {
	headers := map[string]string{}

	if container.PartitionKeyPath != "" {
		headers[constants.HeaderPartitionKey] = key.Header()
	}

	if read {
		if token := c.sessions.get(container.Link()); token != "" {
			headers[constants.HeaderSessionToken] = token
		}
	}

	return headers
}

func (c *ItemsClient) write(ctx context.Context, container *docdb.ContainerHandle, req *http.Request) (*docdb.RequestOutcome, error) {
	req.BaseURL = c.locations.writeEndpoint(ctx)

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	c.sessions.set(container.Link(), resp.SessionToken)

	return outcome(resp), nil
}

// Create implements docdb.ItemsClient.Create.
func (c *ItemsClient) Create(ctx context.Context, container *docdb.ContainerHandle, item interface{}, partitionKey *docdb.PartitionKey) (*docdb.RequestOutcome, error) {
	doc, err := prepare(container, item, partitionKey, "")
	if err != nil {
		return nil, err
	}

	result, err := c.write(ctx, container, &http.Request{
		Method:  nethttp.MethodPost,
		Path:    docsPath(container),
		Body:    doc.body,
		Headers: c.headers(container, doc.key, false),
	})
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	return result, nil
}

// Upsert implements docdb.ItemsClient.Upsert.
func (c *ItemsClient) Upsert(ctx context.Context, container *docdb.ContainerHandle, item interface{}, partitionKey *docdb.PartitionKey) (*docdb.RequestOutcome, error) {
	doc, err := prepare(container, item, partitionKey, "")
	if err != nil {
		return nil, err
	}

	headers := c.headers(container, doc.key, false)
	headers[constants.HeaderIsUpsert] = constants.HeaderTrue

	result, err := c.write(ctx, container, &http.Request{
		Method:  nethttp.MethodPost,
		Path:    docsPath(container),
		Body:    doc.body,
		Headers: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("upserting item: %w", err)
	}

	return result, nil
}

// Replace implements docdb.ItemsClient.Replace.
func (c *ItemsClient) Replace(
	ctx context.Context,
	container *docdb.ContainerHandle,
	id string,
	item interface{},
	partitionKey *docdb.PartitionKey,
	opts *docdb.ItemOptions,
) (*docdb.RequestOutcome, error) {
	err := validateID("item", id)
	if err != nil {
		return nil, err
	}

	doc, err := prepare(container, item, partitionKey, id)
	if err != nil {
		return nil, err
	}

	headers := c.headers(container, doc.key, false)
	if opts != nil && opts.IfMatchETag != "" {
		headers[constants.HeaderIfMatch] = opts.IfMatchETag
	}

	result, err := c.write(ctx, container, &http.Request{
		Method:  nethttp.MethodPut,
		Path:    docsPath(container) + "/" + id,
		Body:    doc.body,
		Headers: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("replacing item: %w", err)
	}

	return result, nil
}

// Read implements docdb.ItemsClient.Read.
func (c *ItemsClient) Read(ctx context.Context, container *docdb.ContainerHandle, id string, partitionKey docdb.PartitionKey) (*docdb.RequestOutcome, error) {
	if container == nil {
		return nil, docdb.ErrContainerRequired
	}

	err := validateID("item", id)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(ctx, &http.Request{
		Method:  nethttp.MethodGet,
		Path:    docsPath(container) + "/" + id,
		Headers: c.headers(container, partitionKey, true),
		BaseURL: c.locations.readEndpoint(ctx),
	})
	if err != nil {
		return nil, fmt.Errorf("reading item: %w", err)
	}

	c.sessions.set(container.Link(), resp.SessionToken)

	return outcome(resp), nil
}

// Delete implements docdb.ItemsClient.Delete.
func (c *ItemsClient) Delete(
	ctx context.Context,
	container *docdb.ContainerHandle,
	id string,
	partitionKey docdb.PartitionKey,
	opts *docdb.ItemOptions,
) (*docdb.RequestOutcome, error) {
	if container == nil {
		return nil, docdb.ErrContainerRequired
	}

	err := validateID("item", id)
	if err != nil {
		return nil, err
	}

	headers := c.headers(container, partitionKey, false)
	if opts != nil && opts.IfMatchETag != "" {
		headers[constants.HeaderIfMatch] = opts.IfMatchETag
	}

	result, err := c.write(ctx, container, &http.Request{
		Method:  nethttp.MethodDelete,
		Path:    docsPath(container) + "/" + id,
		Headers: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deleting item: %w", err)
	}

	return result, nil
}

func outcome(resp *http.Response) *docdb.RequestOutcome {
	result := &docdb.RequestOutcome{
		StatusCode:    resp.StatusCode,
		RequestCharge: resp.RequestCharge,
		Latency:       resp.Latency,
		ActivityID:    resp.ActivityID,
		SessionToken:  resp.SessionToken,
		ETag:          resp.Headers.Get(constants.HeaderETag),
	}

	if len(resp.Body) > 0 {
		result.Payload = json.RawMessage(resp.Body)
	}

	return result
}
