package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
	"github.com/fivetwenty-io/docdb-client/internal/http"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

// ContainersClient implements docdb.ContainersClient.
type ContainersClient struct {
	httpClient   *http.Client
	cache        *docdb.ContainerCache
	provisioning *provisioner
	throughput   *ThroughputClient
	logger       docdb.Logger
}

// NewContainersClient creates a new containers client.
func NewContainersClient(
	httpClient *http.Client,
	cache *docdb.ContainerCache,
	provisioning *provisioner,
	throughput *ThroughputClient,
	logger docdb.Logger,
) *ContainersClient {
	if logger == nil {
		logger = docdb.NopLogger{}
	}

	if cache == nil {
		cache = docdb.NewContainerCache(docdb.NewMemoryCache(constants.DefaultCacheSize), constants.DefaultCacheTTL)
	}

	return &ContainersClient{
		httpClient:   httpClient,
		cache:        cache,
		provisioning: provisioning,
		throughput:   throughput,
		logger:       logger,
	}
}

func containerPath(databaseID, id string) string {
	return fmt.Sprintf("/dbs/%s/colls/%s", databaseID, id)
}

// create sends the container create request.
func (c *ContainersClient) create(ctx context.Context, db *docdb.DatabaseHandle, id, pkPath string, throughput int) (*docdb.ContainerHandle, error) {
	props := &docdb.ContainerProperties{
		ID: id,
		PartitionKey: docdb.PartitionKeyDefinition{
			Paths: []string{pkPath},
			Kind:  constants.PartitionKeyKindHash,
		},
	}

	headers := map[string]string{}
	if throughput > 0 {
		headers[constants.HeaderOfferThroughput] = strconv.Itoa(throughput)
	}

	resp, err := c.httpClient.Post(ctx, "/dbs/"+db.ID+"/colls", props, headers)
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}

	created, err := parseContainer(resp.Body)
	if err != nil {
		return nil, err
	}

	handle := docdb.NewContainerHandle(db.ID, created)
	handle.ProvisionedThroughput = throughput

	c.remember(ctx, handle.Link(), created)

	return handle, nil
}

// Get implements docdb.ContainersClient.Get. Properties are served from the
// cache when present.
func (c *ContainersClient) Get(ctx context.Context, db *docdb.DatabaseHandle, id string) (*docdb.ContainerHandle, error) {
	if db == nil {
		return nil, docdb.ErrDatabaseRequired
	}

	err := validateID("container", id)
	if err != nil {
		return nil, err
	}

	props, err := c.properties(ctx, db.ID, id)
	if err != nil {
		return nil, err
	}

	return docdb.NewContainerHandle(db.ID, props), nil
}

func (c *ContainersClient) properties(ctx context.Context, databaseID, id string) (*docdb.ContainerProperties, error) {
	link := "dbs/" + databaseID + "/colls/" + id

	if props, ok := c.cache.Get(ctx, link); ok {
		return props, nil
	}

	resp, err := c.httpClient.Get(ctx, containerPath(databaseID, id), nil)
	if err != nil {
		return nil, fmt.Errorf("getting container: %w", err)
	}

	props, err := parseContainer(resp.Body)
	if err != nil {
		return nil, err
	}

	c.remember(ctx, link, props)

	return props, nil
}

// Delete implements docdb.ContainersClient.Delete.
func (c *ContainersClient) Delete(ctx context.Context, db *docdb.DatabaseHandle, id string) error {
	if db == nil {
		return docdb.ErrDatabaseRequired
	}

	err := validateID("container", id)
	if err != nil {
		return err
	}

	link := "dbs/" + db.ID + "/colls/" + id
	_ = c.cache.Invalidate(ctx, link)

	if c.throughput != nil {
		c.throughput.forget(link)
	}

	_, err = c.httpClient.Delete(ctx, containerPath(db.ID, id), nil)
	if err != nil {
		return fmt.Errorf("deleting container: %w", err)
	}

	return nil
}

// CreateIfNotExists implements docdb.ContainersClient.CreateIfNotExists.
func (c *ContainersClient) CreateIfNotExists(
	ctx context.Context,
	db *docdb.DatabaseHandle,
	id, pkPath string,
	throughput int,
) (*docdb.ContainerHandle, error) {
	if db == nil {
		return nil, docdb.ErrDatabaseRequired
	}

	err := validateID("container", id)
	if err != nil {
		return nil, err
	}

	_, err = docdb.SplitPartitionKeyPath(pkPath)
	if err != nil {
		return nil, &docdb.ConfigurationError{Field: "partitionKeyPath", Reason: err.Error(), Err: err}
	}

	if throughput < 0 {
		return nil, &docdb.ConfigurationError{Field: "throughput", Reason: "must not be negative"}
	}

	link := "dbs/" + db.ID + "/colls/" + id

	value, err := c.provisioning.do(ctx, link, func(ctx context.Context) (interface{}, error) {
		handle, err := c.create(ctx, db, id, pkPath, throughput)
		if err == nil {
			c.logger.Info("container created", map[string]interface{}{
				"container":          link,
				"partition_key_path": pkPath,
				"throughput":         throughput,
			})

			return handle, nil
		}

		if !docdb.IsConflict(err) {
			return nil, err
		}

		return c.existing(ctx, db, id, pkPath)
	})
	if err != nil {
		return nil, err
	}

	handle, _ := value.(*docdb.ContainerHandle)

	return handle, nil
}

// existing reads back a container that already exists and checks its schema.
// The cache is bypassed so a stale entry cannot hide a conflicting definition.
func (c *ContainersClient) existing(ctx context.Context, db *docdb.DatabaseHandle, id, pkPath string) (*docdb.ContainerHandle, error) {
	link := "dbs/" + db.ID + "/colls/" + id
	_ = c.cache.Invalidate(ctx, link)

	props, err := c.properties(ctx, db.ID, id)
	if err != nil {
		return nil, err
	}

	if props.PartitionKeyPath() != pkPath {
		return nil, &docdb.SchemaConflictError{
			ContainerLink: link,
			ExistingPath:  props.PartitionKeyPath(),
			RequestedPath: pkPath,
		}
	}

	c.logger.Info("container already exists", map[string]interface{}{"container": link})

	handle := docdb.NewContainerHandle(db.ID, props)

	if c.throughput != nil {
		current, err := c.throughput.Read(ctx, handle)
		if err == nil {
			handle.ProvisionedThroughput = current.Throughput
		} else {
			c.logger.Debug("throughput unavailable for existing container", map[string]interface{}{
				"container": link,
				"error":     err.Error(),
			})
		}
	}

	return handle, nil
}

func (c *ContainersClient) remember(ctx context.Context, link string, props *docdb.ContainerProperties) {
	err := c.cache.Put(ctx, link, props)
	if err != nil {
		c.logger.Warn("caching container properties failed", map[string]interface{}{
			"container": link,
			"error":     err.Error(),
		})
	}
}

func parseContainer(body []byte) (*docdb.ContainerProperties, error) {
	var props docdb.ContainerProperties

	err := json.Unmarshal(body, &props)
	if err != nil {
		return nil, fmt.Errorf("parsing container: %w", err)
	}

	return &props, nil
}
