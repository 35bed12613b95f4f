package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
	"github.com/fivetwenty-io/docdb-client/internal/logging"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
	"github.com/fivetwenty-io/docdb-client/pkg/docdbclient"
)

const (
	// Masked replaces secrets in output.
	Masked = "***"

	// UserAgentSuffix tags requests sent by the CLI.
	UserAgentSuffix = "docdb-cli"

	defaultJSONIndent = 2
	statsdNamespace   = "docdb.cli"
	cacheBucket       = "docdb-cli"
)

var (
	ErrUnknownCacheBackend = errors.New("unknown cache backend")
	ErrCacheURLRequired    = errors.New("--cache-url is required for this cache backend")
)

// outputFormat returns the selected output format, defaulting to a table.
func outputFormat() string {
	format := strings.ToLower(viper.GetString("output"))
	if format == "" {
		return constants.FormatTable
	}

	return format
}

// render writes value as json or yaml, or calls table to fill a table.
func render(w io.Writer, value interface{}, table func(t *tablewriter.Table) error) error {
	switch format := outputFormat(); format {
	case constants.FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", strings.Repeat(" ", defaultJSONIndent))

		return encoder.Encode(value)
	case constants.FormatYAML:
		encoder := yaml.NewEncoder(w)

		err := encoder.Encode(value)
		if err != nil {
			return err
		}

		return encoder.Close()
	case constants.FormatTable:
		t := tablewriter.NewWriter(w)

		err := table(t)
		if err != nil {
			return err
		}

		err = t.Render()
		if err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}

		return nil
	default:
		return fmt.Errorf("%w: %s", constants.ErrUnknownOutputFormat, format)
	}
}

// propertyTable renders rows as a two column Property/Value table.
func propertyTable(rows [][]string) func(t *tablewriter.Table) error {
	return func(t *tablewriter.Table) error {
		t.Header("Property", "Value")

		for _, row := range rows {
			err := t.Append(row)
			if err != nil {
				return fmt.Errorf("failed to append table row: %w", err)
			}
		}

		return nil
	}
}

// newClient builds a client from flags, DOCDB_* variables and the config
// file. The release function closes the client and any metrics sink.
func newClient(ctx context.Context) (docdb.Client, func(), error) {
	config, closers, err := clientConfig()
	if err != nil {
		return nil, nil, err
	}

	client, err := docdbclient.New(ctx, config)
	if err != nil {
		closeAll(closers)

		return nil, nil, err
	}

	release := func() {
		_ = client.Close()

		closeAll(closers)
	}

	return client, release, nil
}

func clientConfig() (*docdb.Config, []io.Closer, error) {
	endpoint := viper.GetString("endpoint")
	if endpoint == "" {
		return nil, nil, constants.ErrNoEndpointConfigured
	}

	key := viper.GetString("key")
	if key == "" {
		return nil, nil, constants.ErrNoKeyConfigured
	}

	config := &docdb.Config{
		Endpoint:        endpoint,
		Key:             key,
		UserAgentSuffix: UserAgentSuffix,
	}

	if level := viper.GetString("consistency"); level != "" {
		consistency, err := docdb.ParseConsistencyLevel(level)
		if err != nil {
			return nil, nil, err
		}

		config.ConsistencyLevel = consistency
	}

	if region := viper.GetString("region"); region != "" {
		config.PreferredRegions = []string{region}
	}

	if viper.GetBool("verbose") {
		logger := logging.Configure(logging.Options{Level: "debug", Output: os.Stderr})
		config.Logger = docdb.NewZerologLogger(logger)
		config.Debug = true
	}

	cache, err := cacheConfig()
	if err != nil {
		return nil, nil, err
	}

	config.Cache = cache

	var closers []io.Closer

	if addr := viper.GetString("statsd"); addr != "" {
		sink, err := docdb.NewStatsdSink(addr, statsdNamespace)
		if err != nil {
			return nil, nil, err
		}

		collector := docdb.NewMetricsCollector(sink)
		config.Interceptors = docdb.NewInterceptorChain().
			AddResponseInterceptor(docdb.MetricsResponseInterceptor(collector))
		closers = append(closers, sink)
	}

	return config, closers, nil
}

// cacheConfig maps --cache and --cache-url onto a container cache backend.
// A tiered cache picks NATS for nats:// URLs and Redis otherwise.
func cacheConfig() (*docdb.CacheConfig, error) {
	backend := docdb.CacheType(strings.ToLower(viper.GetString("cache")))
	url := viper.GetString("cache-url")

	switch backend {
	case "", docdb.CacheTypeMemory:
		return nil, nil
	case docdb.CacheTypeNone:
		return &docdb.CacheConfig{Type: docdb.CacheTypeNone}, nil
	case docdb.CacheTypeNATS, docdb.CacheTypeRedis, docdb.CacheTypeTiered:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCacheBackend, backend)
	}

	if url == "" {
		return nil, ErrCacheURLRequired
	}

	config := &docdb.CacheConfig{Type: backend}

	if backend == docdb.CacheTypeNATS || (backend == docdb.CacheTypeTiered && strings.HasPrefix(url, "nats://")) {
		config.NATS = &docdb.NATSKVConfig{URL: url, Bucket: cacheBucket}
	} else {
		config.Redis = &docdb.RedisConfig{Addr: url, KeyPrefix: cacheBucket + ":"}
	}

	return config, nil
}

func closeAll(closers []io.Closer) {
	for _, closer := range closers {
		_ = closer.Close()
	}
}

// parseValue reads a JSON literal (number, bool, null or quoted string) and
// falls back to the raw text as a string.
func parseValue(text string) interface{} {
	var value interface{}

	err := json.Unmarshal([]byte(text), &value)
	if err != nil {
		return text
	}

	switch value.(type) {
	case map[string]interface{}, []interface{}:
		return text
	default:
		return value
	}
}

// parsePartitionKey turns a --partition-key value into a key.
func parsePartitionKey(text string) docdb.PartitionKey {
	value := parseValue(text)
	if value == nil {
		return docdb.NullPartitionKey()
	}

	return docdb.NewPartitionKey(value)
}

// readDocument loads a JSON or YAML document from path, or from stdin when
// path is "-".
func readDocument(path string, stdin io.Reader) (map[string]interface{}, error) {
	var (
		data []byte
		err  error
	)

	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(filepath.Clean(path))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	document := map[string]interface{}{}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		err = yaml.Unmarshal(data, &document)
	default:
		err = json.Unmarshal(data, &document)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return document, nil
}

// decodeDocuments turns raw results into values that encode as JSON and YAML alike.
func decodeDocuments(results []json.RawMessage) ([]interface{}, error) {
	documents := make([]interface{}, 0, len(results))

	for i, raw := range results {
		var document interface{}

		err := json.Unmarshal(raw, &document)
		if err != nil {
			return nil, fmt.Errorf("failed to parse result %d: %w", i, err)
		}

		documents = append(documents, document)
	}

	return documents, nil
}

func formatCharge(charge float64) string {
	return fmt.Sprintf("%.2f RU", charge)
}
