package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

// NewThroughputCommand creates the throughput command group.
func NewThroughputCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "throughput",
		Aliases: []string{"ru", "offer"},
		Short:   "Manage provisioned throughput",
		Long:    "Read and replace a container's provisioned throughput",
	}

	cmd.AddCommand(newThroughputGetCommand())
	cmd.AddCommand(newThroughputSetCommand())

	return cmd
}

func newThroughputGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get DATABASE CONTAINER",
		Short: "Get provisioned throughput",
		Long:  "Display the container's current throughput and whether a replace is pending",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, release, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			container, err := lookupContainer(cmd, client, args[0], args[1])
			if err != nil {
				return err
			}

			current, err := client.Throughput().Read(cmd.Context(), container)
			if err != nil {
				return fmt.Errorf("failed to read throughput: %w", err)
			}

			return renderThroughput(cmd, current)
		},
	}
}

func newThroughputSetCommand() *cobra.Command {
	var (
		wait      bool
		increment bool
	)

	cmd := &cobra.Command{
		Use:   "set DATABASE CONTAINER RU",
		Short: "Replace provisioned throughput",
		Long: `Replace the container's throughput with RU request units per second.

With --increment, RU is added to the current value. The read and the replace
are separate requests, so concurrent scalers race and the last writer wins.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.Atoi(args[2])
			if err != nil || value <= 0 {
				return constants.ErrInvalidThroughput
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

			if increment {
				current, err := client.Throughput().Read(cmd.Context(), container)
				if err != nil {
					return fmt.Errorf("failed to read throughput: %w", err)
				}

				value += current.Throughput
			}

			replaced, err := client.Throughput().Replace(cmd.Context(), container, value)
			if err != nil {
				return fmt.Errorf("failed to replace throughput: %w", err)
			}

			if wait && replaced.ReplacePending {
				replaced, err = client.Throughput().PollUntilApplied(cmd.Context(), container)
				if err != nil {
					return fmt.Errorf("failed waiting for throughput: %w", err)
				}
			}

			return renderThroughput(cmd, replaced)
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "wait until a pending replace has been applied")
	cmd.Flags().BoolVar(&increment, "increment", false, "add RU to the current throughput")

	return cmd
}

func renderThroughput(cmd *cobra.Command, response *docdb.ThroughputResponse) error {
	offerID := ""
	if response.Offer != nil {
		offerID = response.Offer.ID
	}

	return render(cmd.OutOrStdout(), response, propertyTable([][]string{
		{"Throughput", strconv.Itoa(response.Throughput)},
		{"Replace Pending", strconv.FormatBool(response.ReplacePending)},
		{"Offer", offerID},
		{"Request Charge", formatCharge(response.RequestCharge)},
		{"Latency", response.Latency.String()},
	}))
}
