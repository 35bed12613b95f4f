package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fivetwenty-io/docdb-client/cmd/docdb/commands"
	"github.com/fivetwenty-io/docdb-client/internal/quickstart"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "docdb",
	Short: "Document database operator CLI",
	Long: `A command-line interface for a partitioned document database account.

Provision databases and containers, scale throughput, read and write items,
run paged queries, or try everything against an in-process emulator with
'docdb quickstart --offline'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.docdb/config.yml)")
	rootCmd.PersistentFlags().StringP("endpoint", "e", "", "account endpoint URL")
	rootCmd.PersistentFlags().StringP("key", "k", "", "account master key")
	rootCmd.PersistentFlags().String("region", "", "preferred read region")
	rootCmd.PersistentFlags().String("consistency", "", "consistency level (Strong, BoundedStaleness, Session, ConsistentPrefix, Eventual)")
	rootCmd.PersistentFlags().String("output", "table", "output format (table, json, yaml)")
	rootCmd.PersistentFlags().String("statsd", "", "DogStatsD address for request metrics (e.g. 127.0.0.1:8125)")
	rootCmd.PersistentFlags().String("cache", "", "container cache backend (memory, nats, redis, tiered, none)")
	rootCmd.PersistentFlags().String("cache-url", "", "NATS URL or Redis address for the container cache")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	for _, name := range []string{"config", "endpoint", "key", "region", "consistency", "output", "statsd", "cache", "cache-url", "verbose"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}

	rootCmd.AddCommand(commands.NewVersionCommand(version, commit, date))
	rootCmd.AddCommand(commands.NewLoginCommand())
	rootCmd.AddCommand(commands.NewConfigCommand())
	rootCmd.AddCommand(commands.NewQuickstartCommand())
	rootCmd.AddCommand(commands.NewDatabasesCommand())
	rootCmd.AddCommand(commands.NewContainersCommand())
	rootCmd.AddCommand(commands.NewThroughputCommand())
	rootCmd.AddCommand(commands.NewItemsCommand())
	rootCmd.AddCommand(commands.NewQueryCommand())
}

func initConfig() {
	cfgFile := viper.GetString("config")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		viper.AddConfigPath(filepath.Join(home, ".docdb"))
		viper.SetConfigType("yml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("DOCDB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// Loads .env into the environment before the config file is read.
	_, err := quickstart.LoadSettings(viper.GetViper())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading configuration: %v\n", err)

		return
	}

	if viper.GetBool("verbose") && viper.ConfigFileUsed() != "" {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
