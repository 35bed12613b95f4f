// Package emulator is an in-process fake of the document database REST
// surface. It serves the account, database, container, offer, document and
// query resources from memory, verifies master-key signatures, reports
// synthetic request charges and can inject faults. Tests and the offline demo
// run against it.
package emulator

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/fivetwenty-io/docdb-client/internal/auth"
	"github.com/fivetwenty-io/docdb-client/internal/constants"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

// Options configure an emulator.
type Options struct {
	// MasterKey verifies request signatures. Empty selects the well-known emulator key.
	MasterKey string
	// ResourceTokens are accepted verbatim in place of a master signature.
	ResourceTokens []string
	// Partitions is the number of physical partitions per container.
	Partitions int
	// MaxItemCount is the page size used when the client leaves it to the service.
	MaxItemCount int
	// PendingReplaceReads is how many offer reads report a replace as pending.
	PendingReplaceReads int
	// Region is the name reported for the single account region.
	Region string
	// Logger receives one entry per request.
	Logger docdb.Logger
}

// Emulator is a fake account. Its zero value is not usable; call New.
type Emulator struct {
	options    Options
	authorizer *auth.MasterKeyAuthorizer
	tokens     map[string]bool
	store      *store
	router     *mux.Router
	logger     docdb.Logger

	mutex    sync.Mutex
	faults   []*Fault
	requests []RecordedRequest
	server   *httptest.Server
}

// RecordedRequest is a request the emulator received.
type RecordedRequest struct {
	Method       string
	Path         string
	Headers      http.Header
	ResourceType string
	ResourceLink string
	Time         time.Time
}

// New creates an emulator. It panics if opts.MasterKey is not base64.
func New(opts Options) *Emulator {
	if opts.MasterKey == "" {
		opts.MasterKey = constants.EmulatorMasterKey
	}

	if opts.MaxItemCount <= 0 {
		opts.MaxItemCount = constants.ServiceMaxItemCount
	}

	if opts.Region == "" {
		opts.Region = constants.EmulatorRegion
	}

	authorizer, err := auth.NewMasterKeyAuthorizer(opts.MasterKey)
	if err != nil {
		panic(err)
	}

	var logger docdb.Logger = docdb.NopLogger{}
	if opts.Logger != nil {
		logger = opts.Logger
	}

	e := &Emulator{
		options:    opts,
		authorizer: authorizer,
		tokens:     make(map[string]bool, len(opts.ResourceTokens)),
		store:      newStore(opts.Partitions),
		logger:     logger,
	}

	for _, token := range opts.ResourceTokens {
		e.tokens[token] = true
	}

	e.router = e.routes()

	return e
}

// Start serves the emulator on a loopback port.
func (e *Emulator) Start() *Emulator {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.server == nil {
		e.server = httptest.NewServer(e)
	}

	return e
}

// URL returns the endpoint of a started emulator.
func (e *Emulator) URL() string {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.server == nil {
		return ""
	}

	return e.server.URL
}

// Key returns the master key requests must be signed with.
func (e *Emulator) Key() string {
	return e.options.MasterKey
}

// Close stops a started emulator.
func (e *Emulator) Close() {
	e.mutex.Lock()
	server := e.server
	e.server = nil
	e.mutex.Unlock()

	if server != nil {
		server.Close()
	}
}

// ServeHTTP implements http.Handler.
func (e *Emulator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resourceType, resourceLink := auth.ParseResourcePath(r.URL.Path)

	e.record(r, resourceType, resourceLink)

	if e.fault(w, r) {
		return
	}

	if !e.authorized(r, resourceType, resourceLink) {
		writeError(w, http.StatusUnauthorized, "Unauthorized",
			"The input authorization token can't serve the request.", 0)

		return
	}

	e.router.ServeHTTP(w, r)
}

func (e *Emulator) authorized(r *http.Request, resourceType, resourceLink string) bool {
	header := r.Header.Get(constants.HeaderAuthorization)
	if header == "" {
		return false
	}

	info := auth.RequestInfo{
		Verb:         r.Method,
		ResourceType: resourceType,
		ResourceLink: resourceLink,
		Date:         r.Header.Get(constants.HeaderDate),
	}

	if e.authorizer.Verify(header, info) {
		return true
	}

	if len(e.tokens) == 0 {
		return false
	}

	decoded := header
	if authType, _, err := auth.ParseAuthorization(header); err == nil && authType == constants.AuthTypeMaster {
		return false
	}

	if unescaped, err := url.QueryUnescape(header); err == nil {
		decoded = unescaped
	}

	return e.tokens[decoded]
}

func (e *Emulator) record(r *http.Request, resourceType, resourceLink string) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.requests = append(e.requests, RecordedRequest{
		Method:       r.Method,
		Path:         r.URL.Path,
		Headers:      r.Header.Clone(),
		ResourceType: resourceType,
		ResourceLink: resourceLink,
		Time:         time.Now(),
	})

	e.logger.Debug("emulator request", map[string]interface{}{
		"method":        r.Method,
		"path":          r.URL.Path,
		"resource_type": resourceType,
	})
}

// Requests returns every request received so far.
func (e *Emulator) Requests() []RecordedRequest {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	out := make([]RecordedRequest, len(e.requests))
	copy(out, e.requests)

	return out
}

// CountRequests counts received requests with the method whose path starts with prefix.
func (e *Emulator) CountRequests(method, prefix string) int {
	count := 0

	for _, req := range e.Requests() {
		if (method == "" || req.Method == method) && strings.HasPrefix(req.Path, prefix) {
			count++
		}
	}

	return count
}

func (e *Emulator) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/", e.handleAccount).Methods(http.MethodGet)

	router.HandleFunc("/dbs", e.handleCreateDatabase).Methods(http.MethodPost)
	router.HandleFunc("/dbs", e.handleListDatabases).Methods(http.MethodGet)
	router.HandleFunc("/dbs/{db}", e.handleGetDatabase).Methods(http.MethodGet)
	router.HandleFunc("/dbs/{db}", e.handleDeleteDatabase).Methods(http.MethodDelete)

	router.HandleFunc("/dbs/{db}/colls", e.handleCreateCollection).Methods(http.MethodPost)
	router.HandleFunc("/dbs/{db}/colls", e.handleListCollections).Methods(http.MethodGet)
	router.HandleFunc("/dbs/{db}/colls/{coll}", e.handleGetCollection).Methods(http.MethodGet)
	router.HandleFunc("/dbs/{db}/colls/{coll}", e.handleDeleteCollection).Methods(http.MethodDelete)

	router.HandleFunc("/dbs/{db}/colls/{coll}/docs", e.handlePostDocs).Methods(http.MethodPost)
	router.HandleFunc("/dbs/{db}/colls/{coll}/docs/{id}", e.handleReadDoc).Methods(http.MethodGet)
	router.HandleFunc("/dbs/{db}/colls/{coll}/docs/{id}", e.handleReplaceDoc).Methods(http.MethodPut)
	router.HandleFunc("/dbs/{db}/colls/{coll}/docs/{id}", e.handleDeleteDoc).Methods(http.MethodDelete)

	router.HandleFunc("/offers", e.handleListOffers).Methods(http.MethodGet)
	router.HandleFunc("/offers/{id}", e.handleReadOffer).Methods(http.MethodGet)
	router.HandleFunc("/offers/{id}", e.handleReplaceOffer).Methods(http.MethodPut)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NotFound", "Resource Not Found", 0)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "Method not allowed", 0)
	})

	return router
}
