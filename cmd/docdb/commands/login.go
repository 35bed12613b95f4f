package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
	"github.com/fivetwenty-io/docdb-client/pkg/docdbclient"
)

// NewLoginCommand creates the login command.
func NewLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Save account credentials",
		Long: `Verify an account endpoint and master key, then save them to the config file.

Values come from --endpoint and --key, DOCDB_ENDPOINT and DOCDB_KEY, or a
prompt. The key prompt does not echo on a terminal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			endpoint := viper.GetString("endpoint")
			key := viper.GetString("key")
			in := cmd.InOrStdin()
			reader := bufio.NewReader(in)
			out := cmd.OutOrStdout()

			if endpoint == "" {
				_, _ = fmt.Fprint(out, "Endpoint: ")

				line, err := reader.ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read endpoint: %w", err)
				}

				endpoint = strings.TrimSpace(line)
			}

			if endpoint == "" {
				return constants.ErrNoEndpointConfigured
			}

			if key == "" {
				_, _ = fmt.Fprint(out, "Key: ")

				secret, err := readSecret(in, reader)
				if err != nil {
					return fmt.Errorf("failed to read key: %w", err)
				}

				_, _ = fmt.Fprintln(out)

				key = secret
			}

			if key == "" {
				return constants.ErrNoKeyConfigured
			}

			account, err := verifyAccount(cmd.Context(), endpoint, key)
			if err != nil {
				return err
			}

			config, err := loadConfig()
			if err != nil {
				return err
			}

			config.Endpoint = docdbclient.NormalizeEndpoint(endpoint)
			config.Key = key

			err = saveConfig(config)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(out, "Logged in to %s (account %s)\n", config.Endpoint, account.ID)

			for _, region := range account.ReadableLocations {
				_, _ = fmt.Fprintf(out, "  read region: %s\n", region.Name)
			}

			return nil
		},
	}
}

// readSecret reads without echo when in is a terminal, or a line from reader otherwise.
func readSecret(in io.Reader, reader *bufio.Reader) (string, error) {
	if file, ok := in.(*os.File); ok && term.IsTerminal(int(file.Fd())) { //nolint:gosec // file descriptors fit in int
		secret, err := term.ReadPassword(int(file.Fd())) //nolint:gosec // file descriptors fit in int
		if err != nil {
			return "", err
		}

		return strings.TrimSpace(string(secret)), nil
	}

	line, err := reader.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}

	return strings.TrimSpace(line), nil
}

func verifyAccount(ctx context.Context, endpoint, key string) (*docdb.DatabaseAccount, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := docdbclient.NewWithKey(ctx, endpoint, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	defer func() { _ = client.Close() }()

	account, err := client.Account(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to account: %w", err)
	}

	return account, nil
}
