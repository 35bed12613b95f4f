// Package docdbclient provides the primary entry point for constructing a
// document database client that implements the docdb.Client interface.
//
// It layers endpoint normalization, request signing, HTTP transport and the
// container cache on top of the interfaces and types defined in the docdb
// package. Most applications import docdbclient to build a client once per
// process, then use the returned docdb.Client for every operation.
//
// Quick start
//
//	import (
//	  "context"
//	  "log"
//	  "os"
//
//	  "github.com/fivetwenty-io/docdb-client/pkg/docdb"
//	  "github.com/fivetwenty-io/docdb-client/pkg/docdbclient"
//	)
//
//	func example() {
//	  ctx := context.Background()
//
//	  cli, err := docdbclient.New(ctx, &docdb.Config{
//	    Endpoint:         "myaccount.documents.example.com", // https:// is added
//	    Key:              os.Getenv("DOCDB_KEY"),
//	    ConsistencyLevel: docdb.ConsistencyEventual,
//	    PreferredRegions: []string{"West US"},
//	  })
//	  if err != nil { log.Fatal(err) }
//	  defer cli.Close()
//
//	  db, err := cli.Databases().CreateIfNotExists(ctx, "db")
//	  if err != nil { log.Fatal(err) }
//
//	  items, err := cli.Containers().CreateIfNotExists(ctx, db, "items", "/lastName", 400)
//	  if err != nil { log.Fatal(err) }
//
//	  it := cli.Queries().Execute(items, docdb.NewQuery("SELECT * FROM c"),
//	    docdb.NewQueryOptions().WithCrossPartition(true))
//	  for it.HasMore() {
//	    page, err := it.NextPage(ctx)
//	    if err != nil { log.Fatal(err) }
//	    log.Println(page.IDs())
//	  }
//	}
//
// # Shared client
//
// Shared returns one client per process and CloseShared releases it. Use them
// when several packages need the same connection without passing it around.
//
// # Helpers
//
// NewWithKey and NewWithResourceToken wrap New with the matching credential.
package docdbclient
