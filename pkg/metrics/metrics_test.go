package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAnswer("batch", "hit", 0.1)
	m.ObserveCache(true)
	m.ObserveStreamAbandoned()
	m.ObserveIngest("indexed", 1, 3)
	m.WorkerBusy(1)
}

func TestObserveAnswer(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveAnswer("stream", "miss", 0.2)
	m.ObserveAnswer("stream", "miss", 0.3)
	m.ObserveAnswer("batch", "error", 0)

	if got := testutil.ToFloat64(m.AnswersTotal.WithLabelValues("stream", "miss")); got != 2 {
		t.Errorf("stream/miss = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.AnswersTotal.WithLabelValues("batch", "error")); got != 1 {
		t.Errorf("batch/error = %v, want 1", got)
	}
}

func TestObserveIngestCountsChunksOnlyWhenIndexed(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveIngest("indexed", 12, 5)
	m.ObserveIngest("skipped", 0, 99)

	if got := testutil.ToFloat64(m.ChunksIndexed); got != 5 {
		t.Errorf("ChunksIndexed = %v, want 5", got)
	}
}
