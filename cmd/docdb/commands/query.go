package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

// ErrInvalidParameter is returned for a --param without "=".
var ErrInvalidParameter = errors.New("invalid parameter, expected @name=value")

// queryResult is the printable form of one or more query pages.
type queryResult struct {
	Documents         []interface{}       `json:"documents"                    yaml:"documents"`
	Count             int                 `json:"count"                        yaml:"count"`
	Pages             int                 `json:"pages"                        yaml:"pages"`
	RequestCharge     float64             `json:"request_charge"               yaml:"request_charge"`
	ContinuationToken string              `json:"continuation_token,omitempty" yaml:"continuation_token,omitempty"`
	Metrics           *docdb.QueryMetrics `json:"metrics,omitempty"            yaml:"metrics,omitempty"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	var (
		params       []string
		maxItemCount int
		partitionKey string
		continuation string
		all          bool
		metrics      bool
	)

	cmd := &cobra.Command{
		Use:   "query DATABASE CONTAINER SQL",
		Short: "Run a query",
		Long: `Run a SQL query against a container and print one page of results.

Without --partition-key the query fans out across partitions. When more
results remain, the continuation token is printed; pass it back with
--continuation to fetch the next page. --all drains every page.`,
		Example: `  docdb query db items "SELECT * FROM c WHERE c.lastName = @name" --param @name=Andersen
  docdb query db items "SELECT c.id FROM c" --max-items 10 --all`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := docdb.NewQuery(args[2])

			for _, param := range params {
				name, value, ok := strings.Cut(param, "=")
				if !ok || name == "" {
					return fmt.Errorf("%w: %s", ErrInvalidParameter, param)
				}

				if !strings.HasPrefix(name, "@") {
					name = "@" + name
				}

				query.WithParameter(name, parseValue(value))
			}

			options := docdb.NewQueryOptions().
				WithMaxItemCount(maxItemCount).
				WithMetrics(metrics).
				WithContinuation(continuation)

			if partitionKey != "" {
				options.WithPartitionKey(parsePartitionKey(partitionKey))
			} else {
				options.WithCrossPartition(true)
			}

			client, release, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			container, err := lookupContainer(cmd, client, args[0], args[1])
			if err != nil {
				return err
			}

			it := client.Queries().Execute(container, query, options)
			defer it.Close()

			result := &queryResult{Documents: []interface{}{}}

			for it.HasMore() {
				page, err := it.NextPage(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to query items: %w", err)
				}

				documents, err := decodeDocuments(page.Results)
				if err != nil {
					return err
				}

				result.Documents = append(result.Documents, documents...)
				result.Pages++
				result.RequestCharge += page.RequestCharge
				result.Metrics = page.Metrics

				if !all {
					break
				}
			}

			result.Count = len(result.Documents)
			result.ContinuationToken = it.ContinuationToken()

			return renderQuery(cmd, result)
		},
	}

	cmd.Flags().StringArrayVar(&params, "param", nil, "query parameter as @name=value (repeatable)")
	cmd.Flags().IntVar(&maxItemCount, "max-items", constants.DefaultPageSize, "maximum items per page")
	cmd.Flags().StringVar(&partitionKey, "partition-key", "", "limit the query to one partition key value")
	cmd.Flags().StringVar(&continuation, "continuation", "", "resume from a continuation token")
	cmd.Flags().BoolVar(&all, "all", false, "fetch every page")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "request query execution metrics")

	return cmd
}

func renderQuery(cmd *cobra.Command, result *queryResult) error {
	out := cmd.OutOrStdout()

	err := render(out, result, func(t *tablewriter.Table) error {
		t.Header("#", "ID", "Document")

		for i, document := range result.Documents {
			data, err := json.Marshal(document)
			if err != nil {
				return fmt.Errorf("failed to format result %d: %w", i, err)
			}

			id := ""
			if fields, ok := document.(map[string]interface{}); ok {
				id, _ = fields["id"].(string)
			}

			err = t.Append([]string{strconv.Itoa(i + 1), id, string(data)})
			if err != nil {
				return fmt.Errorf("failed to append table row: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	if outputFormat() != constants.FormatTable {
		return nil
	}

	_, _ = fmt.Fprintf(out, "%d item(s), %d page(s), %s\n", result.Count, result.Pages, formatCharge(result.RequestCharge))

	if result.ContinuationToken != "" {
		_, _ = fmt.Fprintf(out, "More results available, continue with --continuation '%s'\n", result.ContinuationToken)
	}

	return nil
}
