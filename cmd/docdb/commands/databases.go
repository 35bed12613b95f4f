package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

// NewDatabasesCommand creates the databases command group.
func NewDatabasesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "databases",
		Aliases: []string{"database", "db", "dbs"},
		Short:   "Manage databases",
		Long:    "Create, inspect and delete databases",
	}

	cmd.AddCommand(newDatabasesCreateCommand())
	cmd.AddCommand(newDatabasesGetCommand())
	cmd.AddCommand(newDatabasesDeleteCommand())

	return cmd
}

func newDatabasesCreateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "create DATABASE",
		Short: "Create a database",
		Long:  "Create a database, or return the existing one unless --strict is set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, release, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			var database *docdb.DatabaseHandle

			if strict {
				database, err = client.Databases().Create(cmd.Context(), args[0])
			} else {
				database, err = client.Databases().CreateIfNotExists(cmd.Context(), args[0])
			}

			if err != nil {
				return fmt.Errorf("failed to create database: %w", err)
			}

			return renderDatabase(cmd, database)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "fail when the database already exists")

	return cmd
}

func newDatabasesGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get DATABASE",
		Short: "Get a database",
		Long:  "Display a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, release, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			database, err := client.Databases().Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get database: %w", err)
			}

			return renderDatabase(cmd, database)
		},
	}
}

func newDatabasesDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete DATABASE",
		Short: "Delete a database",
		Long:  "Delete a database and every container in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, release, err := newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			err = client.Databases().Delete(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to delete database: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted database %s\n", args[0])

			return nil
		},
	}
}

func renderDatabase(cmd *cobra.Command, database *docdb.DatabaseHandle) error {
	return render(cmd.OutOrStdout(), database, propertyTable([][]string{
		{"ID", database.ID},
		{"Link", database.Link()},
		{"RID", database.RID},
		{"ETag", database.ETag},
	}))
}
