package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
	"github.com/fivetwenty-io/docdb-client/internal/http"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

// locationCache reads the database account once and resolves the endpoint
// reads and writes are sent to.
type locationCache struct {
	httpClient *http.Client
	preferred  []string
	logger     docdb.Logger

	mutex   sync.Mutex
	account *docdb.DatabaseAccount
}

func newLocationCache(httpClient *http.Client, preferred []string, logger docdb.Logger) *locationCache {
	return &locationCache{
		httpClient: httpClient,
		preferred:  preferred,
		logger:     logger,
	}
}

// Account returns the cached account, reading it on first use.
func (l *locationCache) Account(ctx context.Context) (*docdb.DatabaseAccount, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.account != nil {
		return l.account, nil
	}

	readCtx, cancel := context.WithTimeout(ctx, constants.ShortHTTPTimeout)
	defer cancel()

	resp, err := l.httpClient.Get(readCtx, "/", nil)
	if err != nil {
		return nil, fmt.Errorf("reading database account: %w", err)
	}

	var account docdb.DatabaseAccount

	err = json.Unmarshal(resp.Body, &account)
	if err != nil {
		return nil, fmt.Errorf("parsing database account: %w", err)
	}

	l.account = &account

	return l.account, nil
}

// readEndpoint returns the endpoint of the first preferred region the account
// can read from. An empty result means the client's own endpoint.
func (l *locationCache) readEndpoint(ctx context.Context) string {
	if len(l.preferred) == 0 {
		return ""
	}

	account, err := l.Account(ctx)
	if err != nil {
		l.logger.Warn("account discovery failed, using default endpoint", map[string]interface{}{"error": err.Error()})

		return ""
	}

	for _, region := range l.preferred {
		for _, location := range account.ReadableLocations {
			if strings.EqualFold(location.Name, region) {
				return location.Endpoint
			}
		}
	}

	return ""
}

// writeEndpoint returns the account's first writable region. Preferred
// regions only apply when the account accepts writes in several regions.
func (l *locationCache) writeEndpoint(ctx context.Context) string {
	if len(l.preferred) == 0 {
		return ""
	}

	account, err := l.Account(ctx)
	if err != nil {
		return ""
	}

	if account.EnableMultipleWrite {
		for _, region := range l.preferred {
			for _, location := range account.WritableLocations {
				if strings.EqualFold(location.Name, region) {
					return location.Endpoint
				}
			}
		}
	}

	if len(account.WritableLocations) > 0 {
		return account.WritableLocations[0].Endpoint
	}

	return ""
}
