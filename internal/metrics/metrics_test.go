package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric type")
	return 0
}

func TestHelpersBeforeInit(t *testing.T) {
	// Must not panic while collectors are nil.
	if snapshotTotal != nil {
		t.Skip("collectors already registered by another test")
	}
	ObserveSnapshot(ResultSuccess, time.Millisecond)
	ObserveTick("", time.Millisecond)
	IncUnits("press-1")
	SetMachineStatus("press-1", "running", []string{"running", "stoppage"})
	IncEventPublished("mqtt", "", "")
	ObserveExport("", "")
}

func TestCollectors(t *testing.T) {
	Init(nil, nil)
	Init(nil, nil) // second call is a no-op

	before := value(t, snapshotTotal.WithLabelValues(ResultRejected))
	ObserveSnapshot(ResultRejected, time.Millisecond)
	if got := value(t, snapshotTotal.WithLabelValues(ResultRejected)); got != before+1 {
		t.Errorf("snapshots rejected: got %v, want %v", got, before+1)
	}

	SetMachineStatus("press-9", "stoppage", []string{"running", "stoppage"})
	if got := value(t, machineStatus.WithLabelValues("press-9", "stoppage")); got != 1 {
		t.Errorf("stoppage gauge: got %v, want 1", got)
	}
	if got := value(t, machineStatus.WithLabelValues("press-9", "running")); got != 0 {
		t.Errorf("running gauge: got %v, want 0", got)
	}

	IncUnits("press-9")
	IncUnits("press-9")
	if got := value(t, unitsProduced.WithLabelValues("press-9")); got != 2 {
		t.Errorf("units: got %v, want 2", got)
	}

	if _, err := prometheus.DefaultGatherer.Gather(); err != nil {
		t.Errorf("gather: %v", err)
	}
}
