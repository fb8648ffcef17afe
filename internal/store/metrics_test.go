package store

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	kctesting "github.com/sttts/kcwatch/internal/testing"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	switch {
	case m.Gauge != nil:
		return m.GetGauge().GetValue()
	case m.Counter != nil:
		return m.GetCounter().GetValue()
	}
	t.Fatalf("unexpected metric %v", &m)
	return 0
}

func TestStoreMetrics(t *testing.T) {
	src := newFakeSource()
	s := New(src)
	defer s.Close()
	q, id := normalize(t, "default")

	active := value(t, activeWatches)
	starts := value(t, watchStarts)
	synced := value(t, appliedEvents.WithLabelValues(string(Synced)))

	s.Start(id, q, podModel)
	s.Start(id, q, podModel)
	if got := value(t, activeWatches) - active; got != 1 {
		t.Fatalf("expected one active watch, got %v", got)
	}
	if got := value(t, watchStarts) - starts; got != 1 {
		t.Fatalf("expected one start, got %v", got)
	}

	kctesting.Eventually(t, time.Second, 5*time.Millisecond, func() bool { return src.sink("default") != nil })
	src.sink("default")(Event{Type: Synced})
	src.sink("default")(Event{Type: Synced})
	if got := value(t, appliedEvents.WithLabelValues(string(Synced))) - synced; got != 1 {
		t.Fatalf("expected only the first sync to count, got %v", got)
	}

	s.Stop(id)
	s.Stop(id)
	if got := value(t, activeWatches) - active; got != 0 {
		t.Fatalf("expected no active watch after the last stop, got %v", got)
	}
}
