package docdb_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

func TestChargeTracker(t *testing.T) {
	t.Parallel()

	tracker := docdb.NewChargeTracker()

	tracker.Add("create", 5.71)
	tracker.AddOutcome("read", &docdb.RequestOutcome{RequestCharge: 1})
	tracker.AddOutcome("read", nil)
	tracker.AddPage("query", &docdb.QueryPage{RequestCharge: 2.9})
	tracker.AddPage("query", nil)

	assert.InDelta(t, 9.61, tracker.Total(), 1e-9)
	assert.Equal(t, 3, tracker.Count())

	byOperation := tracker.ByOperation()
	assert.InDelta(t, 1, byOperation["read"], 1e-9)

	byOperation["read"] = 100
	assert.InDelta(t, 1, tracker.ByOperation()["read"], 1e-9)

	tracker.Reset()
	assert.Zero(t, tracker.Total())
	assert.Zero(t, tracker.Count())
	assert.Empty(t, tracker.ByOperation())
}

func TestChargeTracker_Concurrent(t *testing.T) {
	t.Parallel()

	tracker := docdb.NewChargeTracker()

	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			tracker.Add("create", 0.5)
		}()
	}

	wg.Wait()

	assert.Equal(t, 50, tracker.Count())
	assert.InDelta(t, 25, tracker.Total(), 1e-9)
}
