package emulator

import (
	"net/http"
	"strings"
	"time"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
)

// Fault makes matching requests fail or stall.
type Fault struct {
	// Method matches the request method. Empty matches any method.
	Method string
	// PathPrefix matches the request path. Empty matches any path.
	PathPrefix string
	// Query restricts the fault to query requests when true.
	Query bool
	// Skip lets the first Skip matching requests through.
	Skip int
	// Times bounds how often the fault fires. Zero fires forever.
	Times int
	// Status is the response status. Zero only applies Delay.
	Status int
	// RetryAfter is reported in x-ms-retry-after-ms.
	RetryAfter time.Duration
	// Delay stalls the request before it is answered.
	Delay time.Duration

	seen  int
	fired int
}

// InjectFault registers f and returns it.
func (e *Emulator) InjectFault(f *Fault) *Fault {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.faults = append(e.faults, f)

	return f
}

// FaultFired reports how many times f has fired.
func (e *Emulator) FaultFired(f *Fault) int {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return f.fired
}

// ClearFaults removes every registered fault.
func (e *Emulator) ClearFaults() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.faults = nil
}

func (f *Fault) matches(r *http.Request) bool {
	if f.Method != "" && !strings.EqualFold(f.Method, r.Method) {
		return false
	}

	if f.PathPrefix != "" && !strings.HasPrefix(r.URL.Path, f.PathPrefix) {
		return false
	}

	if f.Query && !isQueryRequest(r) {
		return false
	}

	return true
}

// fault applies the first active fault that matches r. It reports whether a
// response was written.
func (e *Emulator) fault(w http.ResponseWriter, r *http.Request) bool {
	e.mutex.Lock()

	var active *Fault

	for _, f := range e.faults {
		if !f.matches(r) {
			continue
		}

		f.seen++
		if f.seen <= f.Skip {
			continue
		}

		if f.Times > 0 && f.fired >= f.Times {
			continue
		}

		f.fired++
		active = f

		break
	}

	e.mutex.Unlock()

	if active == nil {
		return false
	}

	if active.Delay > 0 {
		timer := time.NewTimer(active.Delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-r.Context().Done():
			return true
		}
	}

	if active.Status == 0 {
		return false
	}

	if active.RetryAfter > 0 {
		w.Header().Set(constants.HeaderRetryAfterMS, formatMillis(active.RetryAfter))
	}

	writeError(w, active.Status, http.StatusText(active.Status), "injected fault", 0)

	return true
}
