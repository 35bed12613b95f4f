package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/docdb-client/internal/emulator"
)

// findSubcommand finds a subcommand by name within a cobra command.
func findSubcommand(cmd *cobra.Command, name string) *cobra.Command {
	for _, c := range cmd.Commands() {
		if c.Name() == name {
			return c
		}
	}

	return nil
}

// setupViper resets the global configuration and points the config file at
// a temporary directory. Tests using it must not run in parallel.
func setupViper(t *testing.T, output string) string {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)

	configFile := filepath.Join(t.TempDir(), "config.yml")
	viper.Set("config", configFile)
	viper.Set("output", output)

	return configFile
}

// startEmulator starts an emulator and points the configuration at it.
func startEmulator(t *testing.T, output string) *emulator.Emulator {
	t.Helper()

	setupViper(t, output)

	emu := emulator.New(emulator.Options{}).Start()
	t.Cleanup(emu.Close)

	viper.Set("endpoint", emu.URL())
	viper.Set("key", emu.Key())

	return emu
}

// newTestRoot builds a fresh command tree so flag values do not leak
// between invocations.
func newTestRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "docdb",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(NewVersionCommand("1.2.3", "abc123", "2024-01-01"))
	root.AddCommand(NewLoginCommand())
	root.AddCommand(NewConfigCommand())
	root.AddCommand(NewQuickstartCommand())
	root.AddCommand(NewDatabasesCommand())
	root.AddCommand(NewContainersCommand())
	root.AddCommand(NewThroughputCommand())
	root.AddCommand(NewItemsCommand())
	root.AddCommand(NewQueryCommand())

	return root
}

// run executes args and returns what the command wrote to stdout.
func run(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()

	root := newTestRoot()

	var stdout, stderr bytes.Buffer

	root.SetOut(&stdout)
	root.SetErr(&stderr)

	if stdin != nil {
		root.SetIn(stdin)
	}

	root.SetArgs(args)

	err := root.Execute()

	return stdout.String(), err
}

// runJSON executes args and decodes the JSON output into v.
func runJSON(t *testing.T, v interface{}, args ...string) {
	t.Helper()

	out, err := run(t, nil, args...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}
