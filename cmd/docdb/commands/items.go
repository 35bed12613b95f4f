package commands

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

// itemResult is the printable form of a single item operation.
type itemResult struct {
	ID            string      `json:"id"                 yaml:"id"`
	StatusCode    int         `json:"status_code"        yaml:"status_code"`
	RequestCharge float64     `json:"request_charge"     yaml:"request_charge"`
	Latency       string      `json:"latency"            yaml:"latency"`
	ActivityID    string      `json:"activity_id"        yaml:"activity_id"`
	ETag          string      `json:"etag,omitempty"     yaml:"etag,omitempty"`
	Document      interface{} `json:"document,omitempty" yaml:"document,omitempty"`
}

// NewItemsCommand creates the items command group.
func NewItemsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "items",
		Aliases: []string{"item", "docs"},
		Short:   "Manage items",
		Long:    "Create, read, replace and delete single items",
	}

	cmd.AddCommand(newItemsCreateCommand())
	cmd.AddCommand(newItemsReplaceCommand())
	cmd.AddCommand(newItemsGetCommand())
	cmd.AddCommand(newItemsDeleteCommand())

	return cmd
}

func newItemsCreateCommand() *cobra.Command {
	var (
		file         string
		partitionKey string
		upsert       bool
	)

	cmd := &cobra.Command{
		Use:   "create DATABASE CONTAINER",
		Short: "Create an item",
		Long: `Create an item from a JSON or YAML file, or stdin with --file -.

The partition key is read from the item. When --partition-key is given it
must match the item's value.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return constants.ErrItemFileRequired
			}

			document, err := readDocument(file, cmd.InOrStdin())
			if err != nil {
				return err
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

			hint := partitionKeyHint(partitionKey)

			var outcome *docdb.RequestOutcome

			if upsert {
				outcome, err = client.Items().Upsert(cmd.Context(), container, document, hint)
			} else {
				outcome, err = client.Items().Create(cmd.Context(), container, document, hint)
			}

			if err != nil {
				return fmt.Errorf("failed to write item: %w", err)
			}

			id, _ := document["id"].(string)

			return renderOutcome(cmd, id, outcome, false)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "item file (JSON or YAML, - for stdin)")
	cmd.Flags().StringVar(&partitionKey, "partition-key", "", "expected partition key value")
	cmd.Flags().BoolVar(&upsert, "upsert", false, "replace the item when it already exists")

	return cmd
}

func newItemsReplaceCommand() *cobra.Command {
	var (
		file         string
		partitionKey string
		ifMatch      string
	)

	cmd := &cobra.Command{
		Use:   "replace DATABASE CONTAINER ID",
		Short: "Replace an item",
		Long:  "Replace an existing item, optionally only when its ETag matches --if-match",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return constants.ErrItemFileRequired
			}

			document, err := readDocument(file, cmd.InOrStdin())
			if err != nil {
				return err
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

			outcome, err := client.Items().Replace(cmd.Context(), container, args[2], document,
				partitionKeyHint(partitionKey), &docdb.ItemOptions{IfMatchETag: ifMatch})
			if err != nil {
				return fmt.Errorf("failed to replace item: %w", err)
			}

			return renderOutcome(cmd, args[2], outcome, false)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "item file (JSON or YAML, - for stdin)")
	cmd.Flags().StringVar(&partitionKey, "partition-key", "", "expected partition key value")
	cmd.Flags().StringVar(&ifMatch, "if-match", "", "only replace when the item's ETag matches")

	return cmd
}

func newItemsGetCommand() *cobra.Command {
	var partitionKey string

	cmd := &cobra.Command{
		Use:   "get DATABASE CONTAINER ID",
		Short: "Read an item",
		Long:  "Read an item by id and partition key",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("partition-key") {
				return constants.ErrPartitionKeyRequired
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

			outcome, err := client.Items().Read(cmd.Context(), container, args[2], parsePartitionKey(partitionKey))
			if err != nil {
				return fmt.Errorf("failed to read item: %w", err)
			}

			return renderOutcome(cmd, args[2], outcome, true)
		},
	}

	cmd.Flags().StringVar(&partitionKey, "partition-key", "", "partition key value (JSON literal or plain string)")

	return cmd
}

func newItemsDeleteCommand() *cobra.Command {
	var (
		partitionKey string
		ifMatch      string
	)

	cmd := &cobra.Command{
		Use:   "delete DATABASE CONTAINER ID",
		Short: "Delete an item",
		Long:  "Delete an item by id and partition key",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("partition-key") {
				return constants.ErrPartitionKeyRequired
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

			outcome, err := client.Items().Delete(cmd.Context(), container, args[2],
				parsePartitionKey(partitionKey), &docdb.ItemOptions{IfMatchETag: ifMatch})
			if err != nil {
				return fmt.Errorf("failed to delete item: %w", err)
			}

			return renderOutcome(cmd, args[2], outcome, false)
		},
	}

	cmd.Flags().StringVar(&partitionKey, "partition-key", "", "partition key value (JSON literal or plain string)")
	cmd.Flags().StringVar(&ifMatch, "if-match", "", "only delete when the item's ETag matches")

	return cmd
}

func partitionKeyHint(text string) *docdb.PartitionKey {
	if text == "" {
		return nil
	}

	pk := parsePartitionKey(text)

	return &pk
}

func renderOutcome(cmd *cobra.Command, id string, outcome *docdb.RequestOutcome, withDocument bool) error {
	result := itemResult{
		ID:            id,
		StatusCode:    outcome.StatusCode,
		RequestCharge: outcome.RequestCharge,
		Latency:       outcome.Latency.String(),
		ActivityID:    outcome.ActivityID,
		ETag:          outcome.ETag,
	}

	rows := [][]string{
		{"ID", id},
		{"Status", strconv.Itoa(outcome.StatusCode)},
		{"Request Charge", formatCharge(outcome.RequestCharge)},
		{"Latency", result.Latency},
		{"Activity ID", outcome.ActivityID},
		{"ETag", outcome.ETag},
	}

	if withDocument && len(outcome.Payload) > 0 {
		err := json.Unmarshal(outcome.Payload, &result.Document)
		if err != nil {
			return fmt.Errorf("failed to parse item: %w", err)
		}

		rows = append(rows, []string{"Document", string(outcome.Payload)})
	}

	return render(cmd.OutOrStdout(), result, propertyTable(rows))
}
