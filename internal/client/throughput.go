package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
	"github.com/fivetwenty-io/docdb-client/internal/http"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

// ThroughputClient implements docdb.ThroughputClient.
type ThroughputClient struct {
	httpClient   *http.Client
	pollInterval time.Duration
	pollTimeout  time.Duration

	mutex  sync.Mutex
	offers map[string]string
}

// NewThroughputClient creates a new throughput client.
func NewThroughputClient(httpClient *http.Client) *ThroughputClient {
	return &ThroughputClient{
		httpClient:   httpClient,
		pollInterval: constants.DefaultPollInterval,
		pollTimeout:  constants.DefaultPollTimeout,
		offers:       make(map[string]string),
	}
}

type offerList struct {
	Offers []docdb.Offer `json:"Offers"`
}

// offerID finds the offer attached to the container, walking every page of
// the offer feed, and remembers the answer.
func (c *ThroughputClient) offerID(ctx context.Context, container *docdb.ContainerHandle) (string, error) {
	link := container.Link()

	c.mutex.Lock()
	id, ok := c.offers[link]
	c.mutex.Unlock()

	if ok {
		return id, nil
	}

	rid := container.RID
	if rid == "" {
		resp, err := c.httpClient.Get(ctx, "/"+link, nil)
		if err != nil {
			return "", fmt.Errorf("getting container: %w", err)
		}

		props, err := parseContainer(resp.Body)
		if err != nil {
			return "", err
		}

		rid = props.RID
	}

	continuation := ""

	for {
		headers := map[string]string{}
		if continuation != "" {
			headers[constants.HeaderContinuation] = continuation
		}

		resp, err := c.httpClient.Get(ctx, "/offers", headers)
		if err != nil {
			return "", fmt.Errorf("listing offers: %w", err)
		}

		var list offerList

		err = json.Unmarshal(resp.Body, &list)
		if err != nil {
			return "", fmt.Errorf("parsing offers: %w", err)
		}

		for _, offer := range list.Offers {
			if offer.OfferResourceID == rid {
				c.mutex.Lock()
				c.offers[link] = offer.ID
				c.mutex.Unlock()

				return offer.ID, nil
			}
		}

		continuation = resp.Headers.Get(constants.HeaderContinuation)
		if continuation == "" {
			break
		}
	}

	return "", fmt.Errorf("%w: %s", docdb.ErrOfferNotFound, link)
}

func (c *ThroughputClient) forget(link string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.offers, link)
}

// Read implements docdb.ThroughputClient.Read.
func (c *ThroughputClient) Read(ctx context.Context, container *docdb.ContainerHandle) (*docdb.ThroughputResponse, error) {
	if container == nil {
		return nil, docdb.ErrContainerRequired
	}

	id, err := c.offerID(ctx, container)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Get(ctx, "/offers/"+id, nil)
	if err != nil {
		if docdb.IsNotFound(err) {
			c.forget(container.Link())
		}

		return nil, fmt.Errorf("reading throughput: %w", err)
	}

	return parseThroughput(resp)
}

// Replace implements docdb.ThroughputClient.Replace.
func (c *ThroughputClient) Replace(ctx context.Context, container *docdb.ContainerHandle, throughput int) (*docdb.ThroughputResponse, error) {
	if container == nil {
		return nil, docdb.ErrContainerRequired
	}

	if throughput <= 0 {
		return nil, &docdb.ConfigurationError{Field: "throughput", Reason: "must be a positive integer"}
	}

	current, err := c.Read(ctx, container)
	if err != nil {
		return nil, err
	}

	offer := *current.Offer
	offer.Content.OfferThroughput = throughput

	resp, err := c.httpClient.Put(ctx, "/offers/"+offer.ID, &offer, nil)
	if err != nil {
		return nil, fmt.Errorf("replacing throughput: %w", err)
	}

	replaced, err := parseThroughput(resp)
	if err != nil {
		return nil, err
	}

	replaced.RequestCharge += current.RequestCharge

	return replaced, nil
}

// PollUntilApplied implements docdb.ThroughputClient.PollUntilApplied.
func (c *ThroughputClient) PollUntilApplied(ctx context.Context, container *docdb.ContainerHandle) (*docdb.ThroughputResponse, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	current, err := c.Read(pollCtx, container)
	if err != nil {
		return nil, err
	}

	for current.ReplacePending {
		select {
		case <-pollCtx.Done():
			return current, fmt.Errorf("timeout waiting for throughput replace: %w", pollCtx.Err())
		case <-ticker.C:
			next, err := c.Read(pollCtx, container)
			if err != nil {
				if pollCtx.Err() != nil && ctx.Err() == nil {
					return current, fmt.Errorf("timeout waiting for throughput replace: %w", pollCtx.Err())
				}

				return nil, err
			}

			current = next
		}
	}

	return current, nil
}

func parseThroughput(resp *http.Response) (*docdb.ThroughputResponse, error) {
	var offer docdb.Offer

	err := json.Unmarshal(resp.Body, &offer)
	if err != nil {
		return nil, fmt.Errorf("parsing offer: %w", err)
	}

	return &docdb.ThroughputResponse{
		Offer:          &offer,
		Throughput:     offer.Content.OfferThroughput,
		ReplacePending: strings.EqualFold(resp.Headers.Get(constants.HeaderOfferReplacePending), "true"),
		RequestCharge:  resp.RequestCharge,
		Latency:        resp.Latency,
	}, nil
}
