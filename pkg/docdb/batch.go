package docdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
)

// Static errors for err113 compliance.
var (
	ErrUnsupportedOperationType = errors.New("unsupported operation type")
	ErrTransactionFailed        = errors.New("transaction failed")
)

// BatchOperationType is the kind of item operation in a batch.
type BatchOperationType string

const (
	BatchCreate BatchOperationType = "create"
	BatchUpsert BatchOperationType = "upsert"
	BatchRead   BatchOperationType = "read"
	BatchDelete BatchOperationType = "delete"
)

// BatchOperation represents a single operation in a batch.
type BatchOperation struct {
	ID        string
	Type      BatchOperationType
	Container *ContainerHandle
	// Item is the document for create and upsert.
	Item interface{}
	// ItemID addresses read and delete.
	ItemID string
	// PartitionKey is required for read and delete and optional for writes.
	PartitionKey *PartitionKey
	Callback     func(result *BatchResult)
}

// BatchResult represents the result of a batch operation.
type BatchResult struct {
	ID            string
	Success       bool
	Outcome       *RequestOutcome
	RequestCharge float64
	Error         error
	Duration      time.Duration
}

// BatchExecutor runs item operations with bounded concurrency.
type BatchExecutor struct {
	items       ItemsClient
	concurrency int
	timeout     time.Duration
}

// NewBatchExecutor creates a new batch executor.
func NewBatchExecutor(items ItemsClient, concurrency int) *BatchExecutor {
	if concurrency <= 0 {
		concurrency = constants.DefaultConcurrencyLimit
	}

	return &BatchExecutor{
		items:       items,
		concurrency: concurrency,
		timeout:     constants.DefaultHTTPTimeout,
	}
}

// SetTimeout sets the per-operation timeout.
func (b *BatchExecutor) SetTimeout(timeout time.Duration) {
	b.timeout = timeout
}

// Execute runs a batch of operations. Results are in operation order; a failed
// operation does not stop the others.
func (b *BatchExecutor) Execute(ctx context.Context, operations []BatchOperation) ([]BatchResult, error) {
	results := make([]BatchResult, len(operations))

	var group errgroup.Group

	group.SetLimit(b.concurrency)

	for index, operation := range operations {
		if operation.ID == "" {
			operation.ID = uuid.NewString()
		}

		group.Go(func() error {
			opCtx, cancel := context.WithTimeout(ctx, b.timeout)
			defer cancel()

			start := time.Now()
			result := b.executeOperation(opCtx, operation)
			result.Duration = time.Since(start)
			results[index] = *result

			if operation.Callback != nil {
				operation.Callback(result)
			}

			return nil
		})
	}

	_ = group.Wait()

	return results, ctx.Err()
}

func (b *BatchExecutor) executeOperation(ctx context.Context, operation BatchOperation) *BatchResult {
	result := &BatchResult{ID: operation.ID}

	var (
		outcome *RequestOutcome
		err     error
	)

	switch operation.Type {
	case BatchCreate:
		outcome, err = b.items.Create(ctx, operation.Container, operation.Item, operation.PartitionKey)
	case BatchUpsert:
		outcome, err = b.items.Upsert(ctx, operation.Container, operation.Item, operation.PartitionKey)
	case BatchRead:
		if operation.PartitionKey == nil {
			err = ErrInvalidPartitionKey
		} else {
			outcome, err = b.items.Read(ctx, operation.Container, operation.ItemID, *operation.PartitionKey)
		}
	case BatchDelete:
		if operation.PartitionKey == nil {
			err = ErrInvalidPartitionKey
		} else {
			outcome, err = b.items.Delete(ctx, operation.Container, operation.ItemID, *operation.PartitionKey, nil)
		}
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedOperationType, operation.Type)
	}

	result.Success = err == nil
	result.Outcome = outcome
	result.Error = err

	if outcome != nil {
		result.RequestCharge = outcome.RequestCharge
	} else {
		result.RequestCharge = RequestChargeOf(err)
	}

	return result
}

// TotalRequestCharge sums the charge of every result, failed ones included.
func TotalRequestCharge(results []BatchResult) float64 {
	total := 0.0
	for _, result := range results {
		total += result.RequestCharge
	}

	return total
}

// BatchBuilder helps build batch operations.
type BatchBuilder struct {
	container  *ContainerHandle
	operations []BatchOperation
}

// NewBatchBuilder creates a builder whose operations target container.
func NewBatchBuilder(container *ContainerHandle) *BatchBuilder {
	return &BatchBuilder{
		container:  container,
		operations: make([]BatchOperation, 0),
	}
}

// AddCreate adds an item creation operation.
func (b *BatchBuilder) AddCreate(id string, item interface{}, partitionKey *PartitionKey) *BatchBuilder {
	return b.AddOperation(BatchOperation{ID: id, Type: BatchCreate, Item: item, PartitionKey: partitionKey})
}

// AddUpsert adds an item upsert operation.
func (b *BatchBuilder) AddUpsert(id string, item interface{}, partitionKey *PartitionKey) *BatchBuilder {
	return b.AddOperation(BatchOperation{ID: id, Type: BatchUpsert, Item: item, PartitionKey: partitionKey})
}

// AddRead adds a point read operation.
func (b *BatchBuilder) AddRead(id, itemID string, partitionKey PartitionKey) *BatchBuilder {
	return b.AddOperation(BatchOperation{ID: id, Type: BatchRead, ItemID: itemID, PartitionKey: &partitionKey})
}

// AddDelete adds an item deletion operation.
func (b *BatchBuilder) AddDelete(id, itemID string, partitionKey PartitionKey) *BatchBuilder {
	return b.AddOperation(BatchOperation{ID: id, Type: BatchDelete, ItemID: itemID, PartitionKey: &partitionKey})
}

// AddOperation adds a custom operation. A nil container defaults to the builder's.
func (b *BatchBuilder) AddOperation(operation BatchOperation) *BatchBuilder {
	if operation.Container == nil {
		operation.Container = b.container
	}

	b.operations = append(b.operations, operation)

	return b
}

// Build returns the built operations.
func (b *BatchBuilder) Build() []BatchOperation {
	return b.operations
}

// BatchTransaction runs a batch and, on failure, deletes the items its
// successful creates wrote. Reads, upserts and deletes are not undone.
type BatchTransaction struct {
	mutex      sync.Mutex
	operations []BatchOperation
	results    []BatchResult
	executor   *BatchExecutor
	rollback   bool
}

// NewBatchTransaction creates a new batch transaction.
func NewBatchTransaction(executor *BatchExecutor) *BatchTransaction {
	return &BatchTransaction{
		executor:   executor,
		operations: make([]BatchOperation, 0),
		rollback:   true,
	}
}

// Add adds an operation to the transaction.
func (t *BatchTransaction) Add(operation BatchOperation) *BatchTransaction {
	t.operations = append(t.operations, operation)

	return t
}

// SetRollback sets whether to rollback on failure.
func (t *BatchTransaction) SetRollback(rollback bool) *BatchTransaction {
	t.rollback = rollback

	return t
}

// Execute executes the transaction.
func (t *BatchTransaction) Execute(ctx context.Context) ([]BatchResult, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	results, err := t.executor.Execute(ctx, t.operations)
	t.results = results

	var failedOps []string

	for _, result := range results {
		if !result.Success {
			failedOps = append(failedOps, result.ID)
		}
	}

	if len(failedOps) > 0 && t.rollback {
		t.performRollback(ctx)

		return results, fmt.Errorf("%w, %d operations failed: %v", ErrTransactionFailed, len(failedOps), failedOps)
	}

	return results, err
}

func (t *BatchTransaction) performRollback(ctx context.Context) {
	var rollbackOps []BatchOperation

	for i, result := range t.results {
		original := t.operations[i]
		if !result.Success || original.Type != BatchCreate || result.Outcome == nil {
			continue
		}

		var document map[string]interface{}
		if result.Outcome.Decode(&document) != nil {
			continue
		}

		id, _ := document["id"].(string)

		partitionKey, ok := ExtractPartitionKey(document, original.Container.PartitionKeyPath)
		if id == "" || !ok {
			continue
		}

		rollbackOps = append(rollbackOps, BatchOperation{
			ID:           "rollback_" + result.ID,
			Type:         BatchDelete,
			Container:    original.Container,
			ItemID:       id,
			PartitionKey: &partitionKey,
		})
	}

	if len(rollbackOps) > 0 {
		_, _ = t.executor.Execute(ctx, rollbackOps)
	}
}
