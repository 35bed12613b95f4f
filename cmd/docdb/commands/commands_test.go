package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
	"github.com/fivetwenty-io/docdb-client/pkg/docdbclient"
)

func TestNewRootCommands(t *testing.T) {
	t.Parallel()

	root := newTestRoot()

	for name, subcommands := range map[string][]string{
		"databases":  {"create", "get", "delete"},
		"containers": {"create", "get", "delete"},
		"throughput": {"get", "set"},
		"items":      {"create", "replace", "get", "delete"},
		"config":     {"show", "set", "unset"},
	} {
		cmd := findSubcommand(root, name)
		require.NotNil(t, cmd, name)
		assert.Len(t, cmd.Commands(), len(subcommands), name)

		for _, sub := range subcommands {
			assert.NotNil(t, findSubcommand(cmd, sub), "%s %s", name, sub)
		}
	}

	for _, name := range []string{"version", "login", "quickstart", "query"} {
		assert.NotNil(t, findSubcommand(root, name), name)
	}
}

//nolint:paralleltest // uses global viper
func TestVersionCommand(t *testing.T) {
	setupViper(t, constants.FormatJSON)

	var info map[string]string

	runJSON(t, &info, "version")
	assert.Equal(t, "1.2.3", info["version"])
	assert.Equal(t, "abc123", info["commit"])
	assert.NotEmpty(t, info["go_version"])

	viper.Set("output", constants.FormatTable)

	out, err := run(t, nil, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "1.2.3")

	viper.Set("output", "xml")

	_, err = run(t, nil, "version")
	require.ErrorIs(t, err, constants.ErrUnknownOutputFormat)
}

//nolint:paralleltest // uses global viper
func TestDatabasesCommand(t *testing.T) {
	startEmulator(t, constants.FormatJSON)

	var database docdb.DatabaseHandle

	runJSON(t, &database, "databases", "create", "db")
	assert.Equal(t, "db", database.ID)
	assert.NotEmpty(t, database.RID)

	runJSON(t, &database, "databases", "create", "db")
	assert.Equal(t, "db", database.ID)

	_, err := run(t, nil, "databases", "create", "db", "--strict")
	require.ErrorIs(t, err, docdb.ErrConflict)

	runJSON(t, &database, "databases", "get", "db")
	assert.Equal(t, "db", database.ID)

	out, err := run(t, nil, "databases", "delete", "db")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted database db")

	_, err = run(t, nil, "databases", "get", "db")
	require.ErrorIs(t, err, docdb.ErrNotFound)
}

//nolint:paralleltest // uses global viper
func TestContainersAndThroughputCommands(t *testing.T) {
	startEmulator(t, constants.FormatJSON)

	_, err := run(t, nil, "databases", "create", "db")
	require.NoError(t, err)

	var container docdb.ContainerHandle

	runJSON(t, &container, "containers", "create", "db", "items", "--partition-key-path", "/lastName")
	assert.Equal(t, "items", container.ID)
	assert.Equal(t, "/lastName", container.PartitionKeyPath)
	assert.Equal(t, constants.MinThroughput, container.ProvisionedThroughput)

	_, err = run(t, nil, "containers", "create", "db", "items", "--partition-key-path", "/district")
	require.ErrorIs(t, err, docdb.ErrSchemaConflict)

	runJSON(t, &container, "containers", "get", "db", "items")
	assert.Equal(t, "/lastName", container.PartitionKeyPath)

	var throughput docdb.ThroughputResponse

	runJSON(t, &throughput, "throughput", "get", "db", "items")
	assert.Equal(t, 400, throughput.Throughput)

	runJSON(t, &throughput, "throughput", "set", "db", "items", "100", "--increment", "--wait")
	assert.Equal(t, 500, throughput.Throughput)
	assert.False(t, throughput.ReplacePending)

	runJSON(t, &throughput, "throughput", "set", "db", "items", "800")
	assert.Equal(t, 800, throughput.Throughput)

	for _, value := range []string{"abc", "0", "-100"} {
		_, err = run(t, nil, "throughput", "set", "db", "items", value)
		require.ErrorIs(t, err, constants.ErrInvalidThroughput, value)
	}

	out, err := run(t, nil, "containers", "delete", "db", "items")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted container db/items")

	_, err = run(t, nil, "containers", "get", "db", "items")
	require.ErrorIs(t, err, docdb.ErrNotFound)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

//nolint:paralleltest // uses global viper
func TestItemsCommand(t *testing.T) {
	startEmulator(t, constants.FormatJSON)

	_, err := run(t, nil, "databases", "create", "db")
	require.NoError(t, err)
	_, err = run(t, nil, "containers", "create", "db", "items", "--partition-key-path", "/lastName")
	require.NoError(t, err)

	jsonFile := writeFile(t, "andersen.json", `{"id": "andersen-1", "lastName": "Andersen", "district": "WA5"}`)

	var result itemResult

	runJSON(t, &result, "items", "create", "db", "items", "--file", jsonFile)
	assert.Equal(t, "andersen-1", result.ID)
	assert.Equal(t, 201, result.StatusCode)
	assert.Positive(t, result.RequestCharge)
	assert.NotEmpty(t, result.ETag)

	_, err = run(t, nil, "items", "create", "db", "items", "--file", jsonFile)
	require.ErrorIs(t, err, docdb.ErrConflict)

	_, err = run(t, nil, "items", "create", "db", "items", "--file", jsonFile, "--partition-key", "Smith")
	require.ErrorIs(t, err, docdb.ErrPartitionKeyMismatch)

	runJSON(t, &result, "items", "create", "db", "items", "--file", jsonFile, "--upsert")
	assert.Equal(t, 200, result.StatusCode)

	yamlFile := writeFile(t, "smith.yaml", "id: smith-1\nlastName: Smith\nchildren:\n  - firstName: Jesse\n")

	runJSON(t, &result, "items", "create", "db", "items", "--file", yamlFile, "--partition-key", "Smith")
	assert.Equal(t, "smith-1", result.ID)

	out, err := run(t, strings.NewReader(`{"id": "johnson-1", "lastName": "Johnson"}`),
		"items", "create", "db", "items", "--file", "-")
	require.NoError(t, err)
	assert.Contains(t, out, `"johnson-1"`)

	runJSON(t, &result, "items", "get", "db", "items", "andersen-1", "--partition-key", "Andersen")
	assert.Equal(t, 200, result.StatusCode)

	document, ok := result.Document.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "WA5", document["district"])

	etag := result.ETag

	replaceFile := writeFile(t, "replace.json", `{"lastName": "Andersen", "district": "WA6"}`)

	_, err = run(t, nil, "items", "replace", "db", "items", "andersen-1", "--file", replaceFile, "--if-match", `"stale"`)
	require.Error(t, err)

	runJSON(t, &result, "items", "replace", "db", "items", "andersen-1", "--file", replaceFile, "--if-match", etag)
	assert.Equal(t, 200, result.StatusCode)

	_, err = run(t, nil, "items", "get", "db", "items", "andersen-1")
	require.ErrorIs(t, err, constants.ErrPartitionKeyRequired)

	_, err = run(t, nil, "items", "create", "db", "items")
	require.ErrorIs(t, err, constants.ErrItemFileRequired)

	runJSON(t, &result, "items", "delete", "db", "items", "andersen-1", "--partition-key", "Andersen")
	assert.Equal(t, 204, result.StatusCode)

	_, err = run(t, nil, "items", "get", "db", "items", "andersen-1", "--partition-key", "Andersen")
	require.ErrorIs(t, err, docdb.ErrNotFound)
}

func seedFamilies(t *testing.T, endpoint, key string, n int) {
	t.Helper()

	ctx := context.Background()

	client, err := docdbclient.NewWithKey(ctx, endpoint, key)
	require.NoError(t, err)

	defer func() { _ = client.Close() }()

	database, err := client.Databases().CreateIfNotExists(ctx, "db")
	require.NoError(t, err)

	container, err := client.Containers().CreateIfNotExists(ctx, database, "items", "/lastName", constants.MinThroughput)
	require.NoError(t, err)

	names := []string{"Andersen", "Wakefield", "Johnson", "Smith"}

	for i := range n {
		item := map[string]interface{}{
			"id":       names[i%len(names)] + "-" + strings.Repeat("x", i+1),
			"lastName": names[i%len(names)],
			"rank":     i,
		}

		_, err := client.Items().Create(ctx, container, item, nil)
		require.NoError(t, err)
	}
}

//nolint:paralleltest // uses global viper
func TestQueryCommand(t *testing.T) {
	emu := startEmulator(t, constants.FormatJSON)
	seedFamilies(t, emu.URL(), emu.Key(), 12)

	var first queryResult

	runJSON(t, &first, "query", "db", "items", "SELECT * FROM c", "--max-items", "5")
	assert.Equal(t, 5, first.Count)
	assert.Equal(t, 1, first.Pages)
	assert.Positive(t, first.RequestCharge)
	require.NotEmpty(t, first.ContinuationToken)

	var rest queryResult

	runJSON(t, &rest, "query", "db", "items", "SELECT * FROM c", "--max-items", "5",
		"--continuation", first.ContinuationToken, "--all")
	assert.Equal(t, 7, rest.Count)
	assert.Empty(t, rest.ContinuationToken)

	var all queryResult

	runJSON(t, &all, "query", "db", "items", "SELECT * FROM c", "--all", "--max-items", "4")
	assert.Equal(t, 12, all.Count)
	assert.GreaterOrEqual(t, all.Pages, 3)

	var smiths queryResult

	runJSON(t, &smiths, "query", "db", "items", "SELECT * FROM c WHERE c.lastName = @name",
		"--param", "@name=Smith", "--all", "--metrics")
	assert.Equal(t, 3, smiths.Count)
	require.NotNil(t, smiths.Metrics)

	var ranked queryResult

	runJSON(t, &ranked, "query", "db", "items", "SELECT c.id FROM c WHERE c.rank < @rank",
		"--param", "rank=2", "--partition-key", "Andersen", "--all")
	assert.Equal(t, 1, ranked.Count)

	_, err := run(t, nil, "query", "db", "items", "SELECT * FROM c", "--param", "noequals")
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = run(t, nil, "query", "db", "items", "SELEC * FROM c")
	require.ErrorIs(t, err, docdb.ErrInvalidQuery)

	viper.Set("output", constants.FormatTable)

	out, err := run(t, nil, "query", "db", "items", "SELECT * FROM c", "--max-items", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "5 item(s), 1 page(s)")
	assert.Contains(t, out, "--continuation")
}

//nolint:paralleltest // uses global viper
func TestQuickstartCommand(t *testing.T) {
	setupViper(t, constants.FormatJSON)

	var summary quickstartSummary

	runJSON(t, &summary, "quickstart", "--offline", "--log-level", "error")
	assert.Equal(t, "db", summary.Database)
	assert.Equal(t, "items", summary.Container)
	assert.Equal(t, 500, summary.Throughput)
	assert.Equal(t, 4, summary.Created)
	assert.Len(t, summary.QueryIDs, 3)
	assert.Positive(t, summary.RequestCharge)
}

//nolint:paralleltest // uses global viper
func TestConfigCommand(t *testing.T) {
	configFile := setupViper(t, constants.FormatJSON)

	_, err := run(t, nil, "config", "set", "endpoint", "https://myaccount.example.com")
	require.NoError(t, err)
	_, err = run(t, nil, "config", "set", "key", "c2VjcmV0")
	require.NoError(t, err)
	_, err = run(t, nil, "config", "set", "consistency", "eventual")
	require.NoError(t, err)

	_, err = run(t, nil, "config", "set", "colour", "blue")
	require.ErrorIs(t, err, constants.ErrUnknownConfigKey)

	_, err = run(t, nil, "config", "set", "output", "xml")
	require.ErrorIs(t, err, constants.ErrUnknownOutputFormat)

	_, err = run(t, nil, "config", "set", "consistency", "sometimes")
	require.ErrorIs(t, err, docdb.ErrConfiguration)

	info, err := os.Stat(configFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(constants.ConfigFilePerm), info.Mode().Perm())

	data, err := os.ReadFile(configFile)
	require.NoError(t, err)

	var saved Config

	require.NoError(t, yaml.Unmarshal(data, &saved))
	assert.Equal(t, "https://myaccount.example.com", saved.Endpoint)
	assert.Equal(t, "c2VjcmV0", saved.Key)
	assert.Equal(t, "Eventual", saved.Consistency)

	var shown Config

	runJSON(t, &shown, "config", "show")
	assert.Equal(t, Masked, shown.Key)
	assert.Equal(t, "https://myaccount.example.com", shown.Endpoint)

	_, err = run(t, nil, "config", "unset", "key")
	require.NoError(t, err)

	runJSON(t, &shown, "config", "show")
	assert.Empty(t, shown.Key)
}

//nolint:paralleltest // uses global viper
func TestLoginCommand(t *testing.T) {
	emu := startEmulator(t, constants.FormatTable)
	viper.Set("endpoint", "")
	viper.Set("key", "")

	out, err := run(t, strings.NewReader(emu.URL()+"\n"+emu.Key()+"\n"), "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in to "+emu.URL())
	assert.Contains(t, out, constants.EmulatorRegion)

	config, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, emu.URL(), config.Endpoint)
	assert.Equal(t, emu.Key(), config.Key)

	_, err = run(t, strings.NewReader(emu.URL()+"\nd3Jvbmc=\n"), "login")
	require.ErrorIs(t, err, docdb.ErrAuthentication)

	_, err = run(t, strings.NewReader("\n"), "login")
	require.ErrorIs(t, err, constants.ErrNoEndpointConfigured)
}

//nolint:paralleltest // uses global viper
func TestClientRequiresCredentials(t *testing.T) {
	setupViper(t, constants.FormatJSON)

	_, err := run(t, nil, "databases", "get", "db")
	require.ErrorIs(t, err, constants.ErrNoEndpointConfigured)

	viper.Set("endpoint", "https://myaccount.example.com")

	_, err = run(t, nil, "databases", "get", "db")
	require.ErrorIs(t, err, constants.ErrNoKeyConfigured)
}

//nolint:paralleltest // uses global viper
func TestCacheConfig(t *testing.T) {
	setupViper(t, constants.FormatJSON)

	config, err := cacheConfig()
	require.NoError(t, err)
	assert.Nil(t, config)

	viper.Set("cache", "none")

	config, err = cacheConfig()
	require.NoError(t, err)
	assert.Equal(t, docdb.CacheTypeNone, config.Type)

	viper.Set("cache", "redis")

	_, err = cacheConfig()
	require.ErrorIs(t, err, ErrCacheURLRequired)

	viper.Set("cache-url", "localhost:6379")

	config, err = cacheConfig()
	require.NoError(t, err)
	assert.Equal(t, docdb.CacheTypeRedis, config.Type)
	require.NotNil(t, config.Redis)
	assert.Equal(t, "localhost:6379", config.Redis.Addr)

	viper.Set("cache", "nats")
	viper.Set("cache-url", "nats://localhost:4222")

	config, err = cacheConfig()
	require.NoError(t, err)
	require.NotNil(t, config.NATS)
	assert.Equal(t, cacheBucket, config.NATS.Bucket)

	viper.Set("cache", "tiered")

	config, err = cacheConfig()
	require.NoError(t, err)
	assert.Equal(t, docdb.CacheTypeTiered, config.Type)
	require.NotNil(t, config.NATS)
	assert.Nil(t, config.Redis)

	viper.Set("cache-url", "localhost:6379")

	config, err = cacheConfig()
	require.NoError(t, err)
	assert.Nil(t, config.NATS)
	require.NotNil(t, config.Redis)
	assert.Equal(t, "localhost:6379", config.Redis.Addr)

	viper.Set("cache", "memcached")

	_, err = cacheConfig()
	require.ErrorIs(t, err, ErrUnknownCacheBackend)
}

func TestParseValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  interface{}
	}{
		{"Andersen", "Andersen"},
		{`"42"`, "42"},
		{"42", float64(42)},
		{"true", true},
		{"null", nil},
		{`{"a":1}`, `{"a":1}`},
		{"[1,2]", "[1,2]"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseValue(tt.input), tt.input)
	}

	assert.True(t, parsePartitionKey("null").Equal(docdb.NullPartitionKey()))
	assert.Equal(t, `["Smith"]`, parsePartitionKey("Smith").Header())
	assert.Equal(t, `[7]`, parsePartitionKey("7").Header())
}
