package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestCollector_SettersUpdateGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SetRoutesActive(3)
	c.SetPartitionsMissing(2)
	c.SetConnectionPoolSize(7)
	c.IncDispatchErrors()
	c.IncDispatchErrors()

	if got := gaugeValue(t, c.RoutesActive); got != 3 {
		t.Errorf("RoutesActive = %v; want 3", got)
	}
	if got := gaugeValue(t, c.PartitionsMissing); got != 2 {
		t.Errorf("PartitionsMissing = %v; want 2", got)
	}
	if got := gaugeValue(t, c.ConnectionPoolSize); got != 7 {
		t.Errorf("ConnectionPoolSize = %v; want 7", got)
	}

	var m dto.Metric
	if err := c.DispatchErrors.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Errorf("DispatchErrors = %v; want 2", got)
	}
}
