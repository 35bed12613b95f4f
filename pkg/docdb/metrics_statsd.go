package docdb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// StatsdSink forwards request metrics to a DogStatsD agent.
type StatsdSink struct {
	client statsd.ClientInterface
	tags   []string
}

// NewStatsdSink connects to the agent at addr. Every metric is prefixed with
// namespace and carries tags.
func NewStatsdSink(addr, namespace string, tags ...string) (*StatsdSink, error) {
	if namespace != "" && !strings.HasSuffix(namespace, ".") {
		namespace += "."
	}

	client, err := statsd.New(addr, statsd.WithNamespace(namespace))
	if err != nil {
		return nil, fmt.Errorf("creating statsd client: %w", err)
	}

	return NewStatsdSinkWithClient(client, tags...), nil
}

// NewStatsdSinkWithClient wraps an existing client.
func NewStatsdSinkWithClient(client statsd.ClientInterface, tags ...string) *StatsdSink {
	return &StatsdSink{client: client, tags: tags}
}

// Record implements MetricsSink.
func (s *StatsdSink) Record(endpoint string, resp *Response, metrics Metrics) {
	tags := append([]string{
		"endpoint:" + endpoint,
		"status:" + strconv.Itoa(resp.StatusCode),
	}, s.tags...)

	_ = s.client.Incr("requests", tags, 1)
	_ = s.client.Histogram("request_charge", resp.RequestCharge, tags, 1)
	_ = s.client.Timing("latency", resp.Latency, tags, 1)
	_ = s.client.Gauge("request_charge.total", metrics.TotalRequestCharge, tags, 1)

	if resp.Error != nil || resp.StatusCode >= 400 {
		_ = s.client.Incr("errors", tags, 1)
	}

	if resp.StatusCode == 429 {
		_ = s.client.Incr("throttled", tags, 1)
	}
}

// Close flushes and closes the client.
func (s *StatsdSink) Close() error {
	return s.client.Close()
}
