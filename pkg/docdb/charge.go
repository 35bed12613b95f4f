package docdb

import (
	"sync"
)

// ChargeTracker is a caller-side running total of request charges. The client
// itself never accumulates charges. It is safe for concurrent use.
type ChargeTracker struct {
	mutex       sync.Mutex
	total       float64
	count       int
	byOperation map[string]float64
}

// NewChargeTracker creates an empty tracker.
func NewChargeTracker() *ChargeTracker {
	return &ChargeTracker{byOperation: make(map[string]float64)}
}

// Add records charge against operation.
func (t *ChargeTracker) Add(operation string, charge float64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.total += charge
	t.count++
	t.byOperation[operation] += charge
}

// AddOutcome records the charge of an item operation. A nil outcome is ignored.
func (t *ChargeTracker) AddOutcome(operation string, outcome *RequestOutcome) {
	if outcome == nil {
		return
	}

	t.Add(operation, outcome.RequestCharge)
}

// AddPage records the charge of a query page. A nil page is ignored.
func (t *ChargeTracker) AddPage(operation string, page *QueryPage) {
	if page == nil {
		return
	}

	t.Add(operation, page.RequestCharge)
}

// Total returns the accumulated charge.
func (t *ChargeTracker) Total() float64 {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.total
}

// Count returns the number of recorded operations.
func (t *ChargeTracker) Count() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.count
}

// ByOperation returns a copy of the per-operation totals.
func (t *ChargeTracker) ByOperation() map[string]float64 {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	totals := make(map[string]float64, len(t.byOperation))
	for operation, charge := range t.byOperation {
		totals[operation] = charge
	}

	return totals
}

// Reset clears the tracker.
func (t *ChargeTracker) Reset() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.total = 0
	t.count = 0
	t.byOperation = make(map[string]float64)
}
