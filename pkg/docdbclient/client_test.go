package docdbclient_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/docdb-client/internal/emulator"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
	"github.com/fivetwenty-io/docdb-client/pkg/docdbclient"
)

func TestNormalizeEndpoint(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":                               "",
		"myaccount.example.com":          "https://myaccount.example.com",
		"https://myaccount.example.com/": "https://myaccount.example.com",
		" http://localhost:8081/ ":       "http://localhost:8081",
	}

	for in, want := range tests {
		assert.Equal(t, want, docdbclient.NormalizeEndpoint(in), in)
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("nil config", func(t *testing.T) {
		t.Parallel()

		_, err := docdbclient.New(context.Background(), nil)
		require.ErrorIs(t, err, docdb.ErrConfiguration)
		require.ErrorIs(t, err, docdb.ErrConfigRequired)
	})

	t.Run("does not mutate config", func(t *testing.T) {
		t.Parallel()

		config := &docdb.Config{Endpoint: "example.com/", Key: emulator.New(emulator.Options{}).Key()}

		client, err := docdbclient.New(context.Background(), config)
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close() })

		assert.Equal(t, "example.com/", config.Endpoint)
	})
}

func TestNewWithKey(t *testing.T) {
	t.Parallel()

	emu := emulator.New(emulator.Options{}).Start()
	t.Cleanup(emu.Close)

	client, err := docdbclient.NewWithKey(context.Background(), emu.URL()+"/", emu.Key())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	db, err := client.Databases().CreateIfNotExists(context.Background(), "db")
	require.NoError(t, err)
	assert.Equal(t, "db", db.ID)
}

func TestNewWithResourceToken(t *testing.T) {
	t.Parallel()

	const token = "type=resource&ver=1.0&sig=abc"

	emu := emulator.New(emulator.Options{ResourceTokens: []string{token}}).Start()
	t.Cleanup(emu.Close)

	client, err := docdbclient.NewWithResourceToken(context.Background(), emu.URL(), token)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.Account(context.Background())
	require.NoError(t, err)
}

//nolint:paralleltest // Shared is process-wide state
func TestShared(t *testing.T) {
	emu := emulator.New(emulator.Options{}).Start()
	t.Cleanup(emu.Close)

	config := &docdb.Config{Endpoint: emu.URL(), Key: emu.Key()}

	first, err := docdbclient.Shared(context.Background(), config)
	require.NoError(t, err)

	second, err := docdbclient.Shared(context.Background(), nil)
	require.NoError(t, err)
	assert.Same(t, first, second)

	require.NoError(t, docdbclient.CloseShared())
	require.NoError(t, docdbclient.CloseShared())

	_, err = first.Databases().Create(context.Background(), "after-close")
	require.ErrorIs(t, err, docdb.ErrClientClosed)

	third, err := docdbclient.Shared(context.Background(), config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = docdbclient.CloseShared() })
	assert.NotSame(t, first, third)
}
