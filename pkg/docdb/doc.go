// Package docdb provides types, interfaces, and helpers for working with a
// partitioned document database service over its REST API.
//
// # Overview
//
// The docdb package defines the domain types (DatabaseHandle, ContainerHandle,
// PartitionKey, RequestOutcome, QueryPage) and the interfaces for the
// operation groups (DatabasesClient, ContainersClient, ThroughputClient,
// ItemsClient, QueryClient). A concrete implementation is provided by the
// docdbclient package, which wires configuration, signing and transport.
//
// Items
//
// Every item lives in one logical partition, named by the value found at the
// container's partition key path. Writes derive the key from the item; an
// explicit key may be passed as a hint and must agree with the item:
//
//	pk := docdb.NewPartitionKey("Andersen")
//	outcome, err := cli.Items().Create(ctx, container, family, &pk)
//	if err != nil { /* handle error */ }
//	log.Printf("charge %.2f RU in %s", outcome.RequestCharge, outcome.Latency)
//
// Point reads always need the partition key:
//
//	outcome, err = cli.Items().Read(ctx, container, family.ID, pk)
//	got, err := docdb.DecodeItem[Family](outcome)
//
// # Queries and pagination
//
// Execute returns a lazy QueryIterator; nothing is sent until NextPage.
// Each page carries its own request charge and continuation token, so an
// interrupted scan can be resumed from the last delivered page:
//
//	opts := docdb.NewQueryOptions().WithCrossPartition(true).WithMaxItemCount(10)
//	it := cli.Queries().Execute(container, docdb.NewQuery("SELECT * FROM c"), opts)
//	for it.HasMore() {
//	  page, err := it.NextPage(ctx)
//	  if err != nil { break }
//	  _ = page.IDs()
//	}
//	resume := it.ContinuationToken()
//
// ItemIterator decodes results one at a time:
//
//	families, err := docdb.NewItemIterator[Family](it).All(ctx)
//
// # Errors
//
// Failed responses become typed errors (NotFoundError, ConflictError,
// ThroughputExceededError, TimeoutError and so on) that match their sentinel
// with errors.Is. IsRetryable and RetryAfter tell callers when and how long
// to back off; RetryThrottled wraps an operation with that policy.
//
// # Interceptors and caching
//
// The package includes request/response interceptors (logging, metrics,
// rate limiting, circuit breaking, static headers) and a pluggable Cache for
// container properties with memory, NATS KV and Redis backends. StatsdSink
// exports collected metrics to a DogStatsD agent.
//
// # Bulk work
//
// BatchExecutor runs many item operations with bounded concurrency and
// reports the charge of each; ChargeTracker totals charges across calls.
package docdb
