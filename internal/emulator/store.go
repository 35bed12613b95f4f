package emulator

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

// Static errors for err113 compliance.
var (
	errMissing         = errors.New("not found")
	errExists          = errors.New("already exists")
	errPrecondition    = errors.New("precondition failed")
	errBadContinuation = errors.New("malformed continuation token")
)

// store holds every resource of one emulated account.
type store struct {
	mutex      sync.RWMutex
	partitions int
	databases  map[string]*database
	offers     map[string]*offerState
	seq        int64
}

type database struct {
	props       docdb.DatabaseHandle
	collections map[string]*collection
}

type collection struct {
	props  docdb.ContainerProperties
	offer  *offerState
	ranges []*partitionRange
}

type offerState struct {
	offer          docdb.Offer
	pendingReads   int
	collectionLink string
}

// partitionRange holds the documents hashed to one physical partition in
// insertion order.
type partitionRange struct {
	docs  []*storedDoc
	byKey map[string]*storedDoc
}

type storedDoc struct {
	id   string
	key  string
	seq  int64
	body map[string]interface{}
}

func newStore(partitions int) *store {
	if partitions <= 0 {
		partitions = constants.EmulatorPartitionCount
	}

	return &store{
		partitions: partitions,
		databases:  make(map[string]*database),
		offers:     make(map[string]*offerState),
	}
}

func newRID() string {
	id := uuid.New()

	return base64.RawURLEncoding.EncodeToString(id[:8])
}

func systemProperties(link string) docdb.SystemProperties {
	return docdb.SystemProperties{
		RID:  newRID(),
		Self: link + "/",
		ETag: `"` + uuid.NewString() + `"`,
		TS:   time.Now().Unix(),
	}
}

func (s *store) createDatabase(id string) (*docdb.DatabaseHandle, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.databases[id]; ok {
		return nil, errExists
	}

	db := &database{
		props:       docdb.DatabaseHandle{SystemProperties: systemProperties("dbs/" + id), ID: id},
		collections: make(map[string]*collection),
	}
	s.databases[id] = db

	props := db.props

	return &props, nil
}

func (s *store) getDatabase(id string) (*docdb.DatabaseHandle, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	db, ok := s.databases[id]
	if !ok {
		return nil, errMissing
	}

	props := db.props

	return &props, nil
}

func (s *store) listDatabases() []docdb.DatabaseHandle {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]docdb.DatabaseHandle, 0, len(s.databases))
	for _, db := range s.databases {
		out = append(out, db.props)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

func (s *store) deleteDatabase(id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	db, ok := s.databases[id]
	if !ok {
		return errMissing
	}

	for _, coll := range db.collections {
		delete(s.offers, coll.offer.offer.ID)
	}

	delete(s.databases, id)

	return nil
}

func (s *store) createCollection(dbID string, props docdb.ContainerProperties, throughput int) (*docdb.ContainerProperties, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	db, ok := s.databases[dbID]
	if !ok {
		return nil, errMissing
	}

	if _, ok := db.collections[props.ID]; ok {
		return nil, errExists
	}

	link := "dbs/" + dbID + "/colls/" + props.ID
	props.SystemProperties = systemProperties(link)

	coll := &collection{props: props, ranges: make([]*partitionRange, s.partitions)}
	for i := range coll.ranges {
		coll.ranges[i] = &partitionRange{byKey: make(map[string]*storedDoc)}
	}

	offerID := strings.ToLower(newRID())
	coll.offer = &offerState{
		collectionLink: link,
		offer: docdb.Offer{
			SystemProperties: systemProperties("offers/" + offerID),
			ID:               offerID,
			OfferVersion:     constants.OfferVersionV2,
			OfferType:        "Invalid",
			Resource:         props.Self,
			OfferResourceID:  props.RID,
			Content:          docdb.OfferContent{OfferThroughput: throughput},
		},
	}

	db.collections[props.ID] = coll
	s.offers[offerID] = coll.offer

	created := coll.props

	return &created, nil
}

func (s *store) collection(dbID, id string) (*collection, error) {
	db, ok := s.databases[dbID]
	if !ok {
		return nil, errMissing
	}

	coll, ok := db.collections[id]
	if !ok {
		return nil, errMissing
	}

	return coll, nil
}

func (s *store) getCollection(dbID, id string) (*docdb.ContainerProperties, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	coll, err := s.collection(dbID, id)
	if err != nil {
		return nil, err
	}

	props := coll.props

	return &props, nil
}

func (s *store) listCollections(dbID string) ([]docdb.ContainerProperties, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	db, ok := s.databases[dbID]
	if !ok {
		return nil, errMissing
	}

	out := make([]docdb.ContainerProperties, 0, len(db.collections))
	for _, coll := range db.collections {
		out = append(out, coll.props)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (s *store) deleteCollection(dbID, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	coll, err := s.collection(dbID, id)
	if err != nil {
		return err
	}

	delete(s.offers, coll.offer.offer.ID)
	delete(s.databases[dbID].collections, id)

	return nil
}

func (s *store) listOffers() []docdb.Offer {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]docdb.Offer, 0, len(s.offers))
	for _, state := range s.offers {
		out = append(out, state.offer)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// readOffer returns the offer and whether a replace is still being applied.
func (s *store) readOffer(id string) (*docdb.Offer, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	state, ok := s.offers[id]
	if !ok {
		return nil, false, errMissing
	}

	pending := state.pendingReads > 0
	if pending {
		state.pendingReads--
	}

	offer := state.offer

	return &offer, pending, nil
}

func (s *store) replaceOffer(id string, throughput, pendingReads int) (*docdb.Offer, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	state, ok := s.offers[id]
	if !ok {
		return nil, errMissing
	}

	state.offer.Content.OfferThroughput = throughput
	state.offer.ETag = `"` + uuid.NewString() + `"`
	state.offer.TS = time.Now().Unix()
	state.pendingReads = pendingReads

	offer := state.offer

	return &offer, nil
}

func (s *store) rangeFor(coll *collection, key string) *partitionRange {
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(key))

	return coll.ranges[int(hash.Sum32())%len(coll.ranges)]
}

func docKey(key, id string) string {
	return key + "\x00" + id
}

// writeDoc creates, upserts or replaces a document. key is the partition key
// header form of the document's partition key.
func (s *store) writeDoc(dbID, collID, key string, body map[string]interface{}, mode writeMode, ifMatch string) (map[string]interface{}, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	coll, err := s.collection(dbID, collID)
	if err != nil {
		return nil, false, err
	}

	id, _ := body["id"].(string)
	partition := s.rangeFor(coll, key)
	existing, found := partition.byKey[docKey(key, id)]

	switch mode {
	case writeCreate:
		if found {
			return nil, false, errExists
		}
	case writeReplace:
		if !found {
			return nil, false, errMissing
		}
	}

	if found && ifMatch != "" && existing.body["_etag"] != ifMatch {
		return nil, false, errPrecondition
	}

	link := coll.props.Self + "docs/" + id
	system := systemProperties(strings.TrimSuffix(link, "/"))

	if found {
		system.RID = existing.body["_rid"].(string)
	}

	body["_rid"] = system.RID
	body["_self"] = system.Self
	body["_etag"] = system.ETag
	body["_ts"] = float64(system.TS)

	s.seq++

	if found {
		existing.body = body
	} else {
		doc := &storedDoc{id: id, key: key, seq: s.seq, body: body}
		partition.docs = append(partition.docs, doc)
		partition.byKey[docKey(key, id)] = doc
	}

	return body, !found, nil
}

type writeMode int

const (
	writeCreate writeMode = iota
	writeUpsert
	writeReplace
)

func (s *store) readDoc(dbID, collID, key, id string) (map[string]interface{}, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	coll, err := s.collection(dbID, collID)
	if err != nil {
		return nil, err
	}

	doc, ok := s.rangeFor(coll, key).byKey[docKey(key, id)]
	if !ok {
		return nil, errMissing
	}

	return doc.body, nil
}

func (s *store) deleteDoc(dbID, collID, key, id, ifMatch string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	coll, err := s.collection(dbID, collID)
	if err != nil {
		return err
	}

	partition := s.rangeFor(coll, key)

	doc, ok := partition.byKey[docKey(key, id)]
	if !ok {
		return errMissing
	}

	if ifMatch != "" && doc.body["_etag"] != ifMatch {
		return errPrecondition
	}

	delete(partition.byKey, docKey(key, id))

	for i, candidate := range partition.docs {
		if candidate == doc {
			partition.docs = append(partition.docs[:i], partition.docs[i+1:]...)

			break
		}
	}

	return nil
}

// continuation is the position after the last document a page delivered.
type continuation struct {
	Range   int   `json:"range"`
	LastSeq int64 `json:"lastSeq"`
}

func (c continuation) encode() string {
	data, _ := json.Marshal(c)

	return base64.StdEncoding.EncodeToString(data)
}

func decodeContinuation(token string) (continuation, error) {
	if token == "" {
		return continuation{}, nil
	}

	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return continuation{}, fmt.Errorf("%w: %w", errBadContinuation, err)
	}

	var position continuation

	err = json.Unmarshal(data, &position)
	if err != nil {
		return continuation{}, fmt.Errorf("%w: %w", errBadContinuation, err)
	}

	return position, nil
}

// queryPage is the result of one page of a query.
type queryPage struct {
	documents []map[string]interface{}
	retrieved int
	next      string
}

// queryDocs scans the ranges in order, starting after the continuation
// position, and returns at most limit matching documents. key restricts the
// scan to one logical partition when it is non-empty.
func (s *store) queryDocs(dbID, collID string, q *query, key string, limit int, token string) (*queryPage, error) {
	position, err := decodeContinuation(token)
	if err != nil {
		return nil, err
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	coll, err := s.collection(dbID, collID)
	if err != nil {
		return nil, err
	}

	if position.Range < 0 || position.Range >= len(coll.ranges) {
		return nil, errBadContinuation
	}

	page := &queryPage{}

	var last continuation

	for r := position.Range; r < len(coll.ranges); r++ {
		for _, doc := range coll.ranges[r].docs {
			if r == position.Range && doc.seq <= position.LastSeq {
				continue
			}

			if key != "" && doc.key != key {
				continue
			}

			page.retrieved++

			if !q.matches(doc.body) {
				continue
			}

			if len(page.documents) == limit {
				page.next = last.encode()

				return page, nil
			}

			page.documents = append(page.documents, q.project(doc.body))
			last = continuation{Range: r, LastSeq: doc.seq}
		}
	}

	return page, nil
}
