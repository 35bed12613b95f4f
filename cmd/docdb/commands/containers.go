package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

// NewContainersCommand creates the containers command group.
func NewContainersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "containers",
		Aliases: []string{"container", "colls"},
		Short:   "Manage containers",
		Long:    "Create, inspect and delete containers within a database",
	}

	cmd.AddCommand(newContainersCreateCommand())
	cmd.AddCommand(newContainersGetCommand())
	cmd.AddCommand(newContainersDeleteCommand())

	return cmd
}

func newContainersCreateCommand() *cobra.Command {
	var (
		partitionKeyPath string
		throughput       int
	)

	cmd := &cobra.Command{
		Use:   "create DATABASE CONTAINER",
		Short: "Create a container",
		Long: `Create a container, or return the existing one.

An existing container with a different partition key path is an error; the
path cannot be changed once the container exists.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, release, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			database := &docdb.DatabaseHandle{ID: args[0]}

			container, err := client.Containers().CreateIfNotExists(cmd.Context(), database, args[1], partitionKeyPath, throughput)
			if err != nil {
				return fmt.Errorf("failed to create container: %w", err)
			}

			return renderContainer(cmd, container)
		},
	}

	cmd.Flags().StringVar(&partitionKeyPath, "partition-key-path", "/id", "partition key path")
	cmd.Flags().IntVar(&throughput, "throughput", constants.MinThroughput, "provisioned throughput in RU/s")

	return cmd
}

func newContainersGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get DATABASE CONTAINER",
		Short: "Get a container",
		Long:  "Display a container's partition key path and resource id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, release, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			container, err := client.Containers().Get(cmd.Context(), &docdb.DatabaseHandle{ID: args[0]}, args[1])
			if err != nil {
				return fmt.Errorf("failed to get container: %w", err)
			}

			return renderContainer(cmd, container)
		},
	}
}

func newContainersDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete DATABASE CONTAINER",
		Short: "Delete a container",
		Long:  "Delete a container and every item in it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, release, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			err = client.Containers().Delete(cmd.Context(), &docdb.DatabaseHandle{ID: args[0]}, args[1])
			if err != nil {
				return fmt.Errorf("failed to delete container: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted container %s/%s\n", args[0], args[1])

			return nil
		},
	}
}

func renderContainer(cmd *cobra.Command, container *docdb.ContainerHandle) error {
	throughput := ""
	if container.ProvisionedThroughput > 0 {
		throughput = strconv.Itoa(container.ProvisionedThroughput)
	}

	return render(cmd.OutOrStdout(), container, propertyTable([][]string{
		{"ID", container.ID},
		{"Database", container.DatabaseID},
		{"Link", container.Link()},
		{"Partition Key Path", container.PartitionKeyPath},
		{"Throughput", throughput},
		{"RID", container.RID},
	}))
}

// lookupContainer resolves DATABASE and CONTAINER arguments to a handle.
func lookupContainer(cmd *cobra.Command, client docdb.Client, databaseID, containerID string) (*docdb.ContainerHandle, error) {
	container, err := client.Containers().Get(cmd.Context(), &docdb.DatabaseHandle{ID: databaseID}, containerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get container: %w", err)
	}

	return container, nil
}
