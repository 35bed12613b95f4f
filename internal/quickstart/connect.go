package quickstart

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
	"github.com/fivetwenty-io/docdb-client/internal/emulator"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
	"github.com/fivetwenty-io/docdb-client/pkg/docdbclient"
)

// UserAgentSuffix tags requests sent by the walkthrough.
const UserAgentSuffix = "DocDBGoQuickstart"

// Settings are the account settings the walkthrough connects with.
type Settings struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Key      string `mapstructure:"key"      yaml:"key"`
	Region   string `mapstructure:"region"   yaml:"region"`
	Offline  bool   `mapstructure:"offline"  yaml:"offline"`
}

// NewViper returns a viper instance reading DOCDB_* variables and, when present,
// ~/.docdb/config.yml.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("DOCDB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("region", constants.EmulatorRegion)

	home, err := os.UserHomeDir()
	if err == nil {
		v.AddConfigPath(filepath.Join(home, ".docdb"))
		v.SetConfigType("yml")
		v.SetConfigName("config")
	}

	return v
}

// LoadSettings loads envFiles (".env" when none are given) into the process
// environment, then reads settings from v. Missing files are not an error.
func LoadSettings(v *viper.Viper, envFiles ...string) (Settings, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}

	for _, file := range envFiles {
		err := godotenv.Load(file)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, fmt.Errorf("loading %s: %w", file, err)
		}
	}

	var notFound viper.ConfigFileNotFoundError

	err := v.ReadInConfig()
	if err != nil && !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("reading config: %w", err)
	}

	return Settings{
		Endpoint: v.GetString("endpoint"),
		Key:      v.GetString("key"),
		Region:   v.GetString("region"),
		Offline:  v.GetBool("offline"),
	}, nil
}

// Connect builds the walkthrough client: Eventual consistency, the settings'
// preferred region and the quickstart user agent. With no endpoint, or in
// offline mode, it starts an in-process emulator. The returned release
// function closes the client and the emulator.
func Connect(ctx context.Context, settings Settings, logger zerolog.Logger) (docdb.Client, func(), error) {
	var emu *emulator.Emulator

	if settings.Offline || settings.Endpoint == "" {
		emu = emulator.New(emulator.Options{Region: settings.Region}).Start()
		settings.Endpoint = emu.URL()
		settings.Key = emu.Key()

		logger.Info().Str("endpoint", settings.Endpoint).Msg("using in-process emulator")
	}

	config := &docdb.Config{
		Endpoint:         settings.Endpoint,
		Key:              settings.Key,
		ConsistencyLevel: docdb.ConsistencyEventual,
		UserAgentSuffix:  UserAgentSuffix,
		Logger:           docdb.NewZerologLogger(logger),
	}

	if settings.Region != "" {
		config.PreferredRegions = []string{settings.Region}
	}

	client, err := docdbclient.New(ctx, config)
	if err != nil {
		if emu != nil {
			emu.Close()
		}

		return nil, nil, err
	}

	release := func() {
		err := client.Close()
		if err != nil {
			logger.Warn().Err(err).Msg("closing client")
		}

		if emu != nil {
			emu.Close()
		}
	}

	return client, release, nil
}
