package emulator

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

// Synthetic request charges.
const (
	chargeMetadataRead  = 1.0
	chargeMetadataWrite = 4.95
	chargePointRead     = 1.0
	chargeWriteBase     = 5.71
	chargeWritePerKB    = 1.9
	chargeDelete        = 5.52
	chargeQueryBase     = 2.79
	chargeQueryPerDoc   = 0.05
)

// Static errors for err113 compliance.
var (
	errPartitionKeyRequired = errors.New("partition key value must be supplied for this operation")
	errPartitionKeyMissing  = errors.New("partition key is missing from the document")
	errThroughputOutOfRange = errors.New("invalid offer throughput")
	errPartitionKeyMismatch = errors.New("PartitionKey extracted from document doesn't match the one specified in the header")
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, charge float64, body interface{}) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.Header().Set(constants.HeaderRequestCharge, formatCharge(charge))
	w.WriteHeader(status)

	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string, charge float64) {
	writeJSON(w, status, charge, errorBody{Code: code, Message: message})
}

func formatCharge(charge float64) string {
	return strconv.FormatFloat(math.Round(charge*100)/100, 'f', 2, 64)
}

func formatMillis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

func isQueryRequest(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get(constants.HeaderIsQuery), "true") ||
		strings.HasPrefix(r.Header.Get(constants.HeaderContentType), constants.ContentTypeQueryJSON)
}

// storeError maps a store failure to a response.
func storeError(w http.ResponseWriter, err error, charge float64) {
	switch {
	case errors.Is(err, errMissing):
		writeError(w, http.StatusNotFound, "NotFound", "Entity with the specified id does not exist in the system.", charge)
	case errors.Is(err, errExists):
		writeError(w, http.StatusConflict, "Conflict", "Entity with the specified id already exists in the system.", charge)
	case errors.Is(err, errPrecondition):
		writeError(w, http.StatusPreconditionFailed, "PreconditionFailed", "Operation cannot be performed because one of the specified precondition is not met.", charge)
	case errors.Is(err, errBadContinuation):
		writeError(w, http.StatusBadRequest, "BadRequest", "Invalid continuation token.", charge)
	default:
		writeError(w, http.StatusInternalServerError, "InternalServerError", err.Error(), charge)
	}
}

func (e *Emulator) sessionToken(w http.ResponseWriter) {
	e.store.mutex.RLock()
	lsn := e.store.seq
	e.store.mutex.RUnlock()

	w.Header().Set(constants.HeaderSessionToken, fmt.Sprintf("0:-1#%d", lsn))
}

func (e *Emulator) handleAccount(w http.ResponseWriter, r *http.Request) {
	endpoint := "http://" + r.Host + "/"
	regions := []docdb.AccountRegion{{Name: e.options.Region, Endpoint: endpoint}}

	writeJSON(w, http.StatusOK, 0, docdb.DatabaseAccount{
		ID:                "localhost",
		WritableLocations: regions,
		ReadableLocations: regions,
		ConsistencyPolicy: docdb.ConsistencyPolicy{DefaultConsistencyLevel: docdb.ConsistencySession},
	})
}

func (e *Emulator) handleCreateDatabase(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}

	if json.NewDecoder(r.Body).Decode(&body) != nil || body.ID == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "The input content is invalid because the required property, id, is missing.", 0)

		return
	}

	db, err := e.store.createDatabase(body.ID)
	if err != nil {
		storeError(w, err, chargeMetadataWrite)

		return
	}

	writeJSON(w, http.StatusCreated, chargeMetadataWrite, db)
}

func (e *Emulator) handleListDatabases(w http.ResponseWriter, _ *http.Request) {
	databases := e.store.listDatabases()

	writeJSON(w, http.StatusOK, chargeMetadataRead, map[string]interface{}{
		"Databases": databases,
		"_count":    len(databases),
	})
}

func (e *Emulator) handleGetDatabase(w http.ResponseWriter, r *http.Request) {
	db, err := e.store.getDatabase(mux.Vars(r)["db"])
	if err != nil {
		storeError(w, err, chargeMetadataRead)

		return
	}

	writeJSON(w, http.StatusOK, chargeMetadataRead, db)
}

func (e *Emulator) handleDeleteDatabase(w http.ResponseWriter, r *http.Request) {
	err := e.store.deleteDatabase(mux.Vars(r)["db"])
	if err != nil {
		storeError(w, err, chargeMetadataWrite)

		return
	}

	writeJSON(w, http.StatusNoContent, chargeMetadataWrite, nil)
}

// validThroughput checks manual throughput against the service limits.
func validThroughput(throughput int) error {
	if throughput < constants.MinThroughput || throughput > constants.MaxThroughput {
		return fmt.Errorf("%w: %d must be between %d and %d",
			errThroughputOutOfRange, throughput, constants.MinThroughput, constants.MaxThroughput)
	}

	if throughput%constants.ThroughputStep != 0 {
		return fmt.Errorf("%w: %d must be a multiple of %d", errThroughputOutOfRange, throughput, constants.ThroughputStep)
	}

	return nil
}

func (e *Emulator) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var props docdb.ContainerProperties

	if json.NewDecoder(r.Body).Decode(&props) != nil || props.ID == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "The input content is invalid because the required property, id, is missing.", 0)

		return
	}

	for _, path := range props.PartitionKey.Paths {
		_, err := docdb.SplitPartitionKeyPath(path)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BadRequest", err.Error(), 0)

			return
		}
	}

	throughput := constants.MinThroughput

	if header := r.Header.Get(constants.HeaderOfferThroughput); header != "" {
		parsed, err := strconv.Atoi(header)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BadRequest", "invalid offer throughput", 0)

			return
		}

		throughput = parsed
	}

	err := validThroughput(throughput)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error(), 0)

		return
	}

	created, err := e.store.createCollection(mux.Vars(r)["db"], props, throughput)
	if err != nil {
		storeError(w, err, chargeMetadataWrite)

		return
	}

	writeJSON(w, http.StatusCreated, chargeMetadataWrite, created)
}

func (e *Emulator) handleListCollections(w http.ResponseWriter, r *http.Request) {
	collections, err := e.store.listCollections(mux.Vars(r)["db"])
	if err != nil {
		storeError(w, err, chargeMetadataRead)

		return
	}

	writeJSON(w, http.StatusOK, chargeMetadataRead, map[string]interface{}{
		"DocumentCollections": collections,
		"_count":              len(collections),
	})
}

func (e *Emulator) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	props, err := e.store.getCollection(vars["db"], vars["coll"])
	if err != nil {
		storeError(w, err, chargeMetadataRead)

		return
	}

	writeJSON(w, http.StatusOK, chargeMetadataRead, props)
}

func (e *Emulator) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	err := e.store.deleteCollection(vars["db"], vars["coll"])
	if err != nil {
		storeError(w, err, chargeMetadataWrite)

		return
	}

	writeJSON(w, http.StatusNoContent, chargeMetadataWrite, nil)
}

// requestKey resolves the partition key of a document request in header form.
// body is nil for reads and deletes.
func (e *Emulator) requestKey(r *http.Request, props *docdb.ContainerProperties, body map[string]interface{}) (string, error) {
	path := props.PartitionKeyPath()
	if path == "" {
		return "", nil
	}

	header := r.Header.Get(constants.HeaderPartitionKey)

	var supplied *docdb.PartitionKey

	if header != "" {
		key, err := docdb.ParsePartitionKeyHeader(header)
		if err != nil {
			return "", err
		}

		supplied = &key
	}

	if body == nil {
		if supplied == nil {
			return "", errPartitionKeyRequired
		}

		return supplied.Header(), nil
	}

	key, found := docdb.ExtractPartitionKey(body, path)

	switch {
	case supplied == nil && !found:
		return "", errPartitionKeyMissing
	case supplied == nil:
		return key.Header(), nil
	case !found && supplied.Value() == nil:
		return supplied.Header(), nil
	case !found || !key.Equal(*supplied):
		return "", errPartitionKeyMismatch
	}

	return key.Header(), nil
}

func (e *Emulator) handlePostDocs(w http.ResponseWriter, r *http.Request) {
	if isQueryRequest(r) {
		e.handleQuery(w, r)

		return
	}

	mode := writeCreate
	if strings.EqualFold(r.Header.Get(constants.HeaderIsUpsert), "true") {
		mode = writeUpsert
	}

	e.writeDoc(w, r, mode, "")
}

func (e *Emulator) handleReplaceDoc(w http.ResponseWriter, r *http.Request) {
	e.writeDoc(w, r, writeReplace, mux.Vars(r)["id"])
}

func (e *Emulator) writeDoc(w http.ResponseWriter, r *http.Request, mode writeMode, pathID string) {
	vars := mux.Vars(r)

	props, err := e.store.getCollection(vars["db"], vars["coll"])
	if err != nil {
		storeError(w, err, 0)

		return
	}

	var body map[string]interface{}

	err = json.NewDecoder(r.Body).Decode(&body)
	if err != nil || body == nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "The document body must be a JSON object.", 0)

		return
	}

	id, _ := body["id"].(string)
	if id == "" || (pathID != "" && id != pathID) {
		writeError(w, http.StatusBadRequest, "BadRequest", "The input content is invalid because the required property, id, is missing or does not match.", 0)

		return
	}

	key, err := e.requestKey(r, props, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error(), 0)

		return
	}

	size, _ := json.Marshal(body)
	charge := chargeWriteBase + float64(len(size))/1024*chargeWritePerKB

	stored, created, err := e.store.writeDoc(vars["db"], vars["coll"], key, body, mode, r.Header.Get(constants.HeaderIfMatch))
	if err != nil {
		storeError(w, err, charge)

		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}

	etag, _ := stored["_etag"].(string)
	w.Header().Set(constants.HeaderETag, etag)
	e.sessionToken(w)
	writeJSON(w, status, charge, stored)
}

func (e *Emulator) handleReadDoc(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	props, err := e.store.getCollection(vars["db"], vars["coll"])
	if err != nil {
		storeError(w, err, 0)

		return
	}

	key, err := e.requestKey(r, props, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error(), 0)

		return
	}

	doc, err := e.store.readDoc(vars["db"], vars["coll"], key, vars["id"])
	if err != nil {
		storeError(w, err, chargePointRead)

		return
	}

	etag, _ := doc["_etag"].(string)
	w.Header().Set(constants.HeaderETag, etag)
	e.sessionToken(w)
	writeJSON(w, http.StatusOK, chargePointRead, doc)
}

func (e *Emulator) handleDeleteDoc(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	props, err := e.store.getCollection(vars["db"], vars["coll"])
	if err != nil {
		storeError(w, err, 0)

		return
	}

	key, err := e.requestKey(r, props, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error(), 0)

		return
	}

	err = e.store.deleteDoc(vars["db"], vars["coll"], key, vars["id"], r.Header.Get(constants.HeaderIfMatch))
	if err != nil {
		storeError(w, err, chargeDelete)

		return
	}

	e.sessionToken(w)
	writeJSON(w, http.StatusNoContent, chargeDelete, nil)
}

func (e *Emulator) handleQuery(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	props, err := e.store.getCollection(vars["db"], vars["coll"])
	if err != nil {
		storeError(w, err, 0)

		return
	}

	var spec docdb.QuerySpec

	err = json.NewDecoder(r.Body).Decode(&spec)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "The query body is not valid JSON.", 0)

		return
	}

	q, err := parseQuery(&spec)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error(), 0)

		return
	}

	key := ""

	if header := r.Header.Get(constants.HeaderPartitionKey); header != "" && props.PartitionKeyPath() != "" {
		parsed, err := docdb.ParsePartitionKeyHeader(header)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BadRequest", err.Error(), 0)

			return
		}

		key = parsed.Header()
	}

	crossPartition := strings.EqualFold(r.Header.Get(constants.HeaderEnableCrossPartition), "true")
	if key == "" && props.PartitionKeyPath() != "" && !crossPartition {
		writeError(w, http.StatusBadRequest, "BadRequest",
			"Cross partition query is required but disabled. Set "+constants.HeaderEnableCrossPartition+" to true.", 0)

		return
	}

	limit := e.options.MaxItemCount
	if header := r.Header.Get(constants.HeaderMaxItemCount); header != "" {
		parsed, err := strconv.Atoi(header)
		if err == nil && parsed > 0 {
			limit = parsed
		}
	}

	start := time.Now()

	page, err := e.store.queryDocs(vars["db"], vars["coll"], q, key, limit, r.Header.Get(constants.HeaderContinuation))
	if err != nil {
		storeError(w, err, chargeQueryBase)

		return
	}

	if page.next != "" {
		w.Header().Set(constants.HeaderContinuation, page.next)
	}

	w.Header().Set(constants.HeaderItemCount, strconv.Itoa(len(page.documents)))

	if strings.EqualFold(r.Header.Get(constants.HeaderPopulateQueryMetrics), "true") {
		w.Header().Set(constants.HeaderQueryMetrics, fmt.Sprintf(
			"retrievedDocumentCount=%d;outputDocumentCount=%d;totalExecutionTimeInMs=%.2f;indexHitRatio=1.00",
			page.retrieved, len(page.documents), float64(time.Since(start).Microseconds())/1000))
	}

	e.sessionToken(w)

	documents := page.documents
	if documents == nil {
		documents = []map[string]interface{}{}
	}

	writeJSON(w, http.StatusOK, chargeQueryBase+chargeQueryPerDoc*float64(page.retrieved), map[string]interface{}{
		"_rid":      props.RID,
		"Documents": documents,
		"_count":    len(documents),
	})
}

// handleListOffers pages offers by position; the continuation is the index
// of the next offer.
func (e *Emulator) handleListOffers(w http.ResponseWriter, r *http.Request) {
	offers := e.store.listOffers()

	limit := e.options.MaxItemCount
	if header := r.Header.Get(constants.HeaderMaxItemCount); header != "" {
		parsed, err := strconv.Atoi(header)
		if err == nil && parsed > 0 {
			limit = parsed
		}
	}

	start := 0

	if token := r.Header.Get(constants.HeaderContinuation); token != "" {
		parsed, err := strconv.Atoi(token)
		if err != nil || parsed < 0 || parsed > len(offers) {
			writeError(w, http.StatusBadRequest, "BadRequest", "Invalid continuation token", chargeMetadataRead)

			return
		}

		start = parsed
	}

	end := min(start+limit, len(offers))
	page := offers[start:end]

	if end < len(offers) {
		w.Header().Set(constants.HeaderContinuation, strconv.Itoa(end))
	}

	writeJSON(w, http.StatusOK, chargeMetadataRead, map[string]interface{}{
		"Offers": page,
		"_count": len(page),
	})
}

func (e *Emulator) handleReadOffer(w http.ResponseWriter, r *http.Request) {
	offer, pending, err := e.store.readOffer(mux.Vars(r)["id"])
	if err != nil {
		storeError(w, err, chargeMetadataRead)

		return
	}

	if pending {
		w.Header().Set(constants.HeaderOfferReplacePending, "true")
	}

	writeJSON(w, http.StatusOK, chargeMetadataRead, offer)
}

func (e *Emulator) handleReplaceOffer(w http.ResponseWriter, r *http.Request) {
	var offer docdb.Offer

	err := json.NewDecoder(r.Body).Decode(&offer)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "The offer body is not valid JSON.", 0)

		return
	}

	err = validThroughput(offer.Content.OfferThroughput)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error(), 0)

		return
	}

	replaced, err := e.store.replaceOffer(mux.Vars(r)["id"], offer.Content.OfferThroughput, e.options.PendingReplaceReads)
	if err != nil {
		storeError(w, err, chargeMetadataWrite)

		return
	}

	if e.options.PendingReplaceReads > 0 {
		w.Header().Set(constants.HeaderOfferReplacePending, "true")
	}

	writeJSON(w, http.StatusOK, chargeMetadataWrite, replaced)
}
