package mapping

import (
	"context"
	"testing"
	"time"

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

func TestNewContext_RegistersLocalRoute(t *testing.T) {
	c := NewContext(Config{
		NodeID:          1,
		NodeName:        "node-a",
		Host:            "0.0.0.0",
		Port:            9090,
		TotalPartitions: 4,
	}, nil)
	defer c.Close()

	route, ok := c.Routes.GetRoute(1)
	if !ok {
		t.Fatal("expected the local node's own route to be registered")
	}
	if route.Host != "127.0.0.1" {
		t.Errorf("Host = %q; want 127.0.0.1 (wildcard rewrite for the local route)", route.Host)
	}
}

func TestContext_StartMonitor_StopsOnContextCancel(t *testing.T) {
	c := NewContext(Config{NodeID: 1, NodeName: "node-a", Host: "127.0.0.1", Port: 9090, TotalPartitions: 1}, nil)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c.StartMonitor(ctx)
	cancel()

	// The monitor goroutine should observe cancellation promptly; this
	// is a liveness smoke test, not a precise timing assertion.
	time.Sleep(10 * time.Millisecond)
}

func TestContext_LogClusterHealth_RefreshesMetrics(t *testing.T) {
	c := NewContext(Config{NodeID: 1, NodeName: "node-a", Host: "127.0.0.1", Port: 9090, TotalPartitions: 2}, nil)
	defer c.Close()

	c.Partitions.SetState(0, 1, StateActiveOwner)
	c.logClusterHealth()

	if got := gaugeValue(t, c.Metrics.RoutesActive); got != 1 {
		t.Errorf("RoutesActive = %v; want 1", got)
	}
	if got := gaugeValue(t, c.Metrics.PartitionsMissing); got != 1 {
		t.Errorf("PartitionsMissing = %v; want 1 (partition 1 has no active slot yet)", got)
	}
}

func TestContext_Close_IsIdempotent(t *testing.T) {
	c := NewContext(Config{NodeID: 1, NodeName: "node-a", Host: "127.0.0.1", Port: 9090, TotalPartitions: 1}, nil)
	c.Close()
	c.Close()
}
