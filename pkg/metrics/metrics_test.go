package metrics

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/resilience"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric type")
	return 0
}

func TestNewRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SearchQueriesTotal.WithLabelValues("song", "ok").Inc()
	m.DocsIndexedTotal.WithLabelValues("artist").Add(3)

	assert.Equal(t, 1.0, value(t, m.SearchQueriesTotal.WithLabelValues("song", "ok")))
	assert.Equal(t, 3.0, value(t, m.DocsIndexedTotal.WithLabelValues("artist")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	assert.NotPanics(t, func() { New(prometheus.NewRegistry()) })
}

func TestBreakerStateHook(t *testing.T) {
	m := New(prometheus.NewRegistry())
	hook := m.BreakerStateHook()

	hook("redis", resilience.StateClosed, resilience.StateOpen)
	assert.Equal(t, 1.0, value(t, m.CircuitBreakerState.WithLabelValues("redis")))

	hook("redis", resilience.StateOpen, resilience.StateHalfOpen)
	assert.Equal(t, 2.0, value(t, m.CircuitBreakerState.WithLabelValues("redis")))
}
