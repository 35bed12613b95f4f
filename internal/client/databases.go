package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fivetwenty-io/docdb-client/internal/http"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

// DatabasesClient implements docdb.DatabasesClient.
type DatabasesClient struct {
	httpClient   *http.Client
	provisioning *provisioner
	logger       docdb.Logger
}

// NewDatabasesClient creates a new databases client.
func NewDatabasesClient(httpClient *http.Client, provisioning *provisioner, logger docdb.Logger) *DatabasesClient {
	if logger == nil {
		logger = docdb.NopLogger{}
	}

	return &DatabasesClient{
		httpClient:   httpClient,
		provisioning: provisioning,
		logger:       logger,
	}
}

// Create implements docdb.DatabasesClient.Create.
func (c *DatabasesClient) Create(ctx context.Context, id string) (*docdb.DatabaseHandle, error) {
	err := validateID("database", id)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Post(ctx, "/dbs", map[string]string{"id": id}, nil)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	return parseDatabase(resp.Body)
}

// Get implements docdb.DatabasesClient.Get.
func (c *DatabasesClient) Get(ctx context.Context, id string) (*docdb.DatabaseHandle, error) {
	err := validateID("database", id)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Get(ctx, "/dbs/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("getting database: %w", err)
	}

	return parseDatabase(resp.Body)
}

// Delete implements docdb.DatabasesClient.Delete.
func (c *DatabasesClient) Delete(ctx context.Context, id string) error {
	err := validateID("database", id)
	if err != nil {
		return err
	}

	_, err = c.httpClient.Delete(ctx, "/dbs/"+id, nil)
	if err != nil {
		return fmt.Errorf("deleting database: %w", err)
	}

	return nil
}

// CreateIfNotExists implements docdb.DatabasesClient.CreateIfNotExists.
// The create is attempted first; a conflict means another caller won and the
// existing database is read back.
func (c *DatabasesClient) CreateIfNotExists(ctx context.Context, id string) (*docdb.DatabaseHandle, error) {
	value, err := c.provisioning.do(ctx, "dbs/"+id, func(ctx context.Context) (interface{}, error) {
		db, err := c.Create(ctx, id)
		if err == nil {
			c.logger.Info("database created", map[string]interface{}{"database": id})

			return db, nil
		}

		if !docdb.IsConflict(err) {
			return nil, err
		}

		c.logger.Info("database already exists", map[string]interface{}{"database": id})

		return c.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	db, _ := value.(*docdb.DatabaseHandle)

	return db, nil
}

func parseDatabase(body []byte) (*docdb.DatabaseHandle, error) {
	var db docdb.DatabaseHandle

	err := json.Unmarshal(body, &db)
	if err != nil {
		return nil, fmt.Errorf("parsing database: %w", err)
	}

	return &db, nil
}
