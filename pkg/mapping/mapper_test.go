package mapping

import (
	"context"
	"testing"
	"time"

	"github.com/ackris/clustercore/pkg/common"
	"github.com/ackris/clustercore/pkg/metrics"
	"github.com/ackris/clustercore/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

// scriptedConn returns a fixed response from Do and records whether it
// was closed.
type scriptedConn struct {
	resp   transport.Response
	err    error
	delay  time.Duration
	closed bool
}

func (c *scriptedConn) Do(ctx context.Context, req transport.Request) (transport.Response, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return transport.Response{}, ctx.Err()
		}
	}
	return c.resp, c.err
}

func (c *scriptedConn) Close() error {
	c.closed = true
	return nil
}

func newTestMapper(t *testing.T, localID common.NodeID, dial DialFunc) (*Mapper, *RouteRegistry) {
	t.Helper()
	pool := NewConnectionPool(nil)
	registry := NewRouteRegistry(localID, pool, nil)
	mapper := NewMapper(registry, pool, localID, dial, nil)
	return mapper, registry
}

func TestMapper_GetSlotNumber_MonotonicFromOne(t *testing.T) {
	mapper, _ := newTestMapper(t, 1, func(string) transport.Conn { return &scriptedConn{} })

	first := mapper.GetSlotNumber()
	second := mapper.GetSlotNumber()
	if first != 1 || second != 2 {
		t.Errorf("got %d, %d; want 1, 2", first, second)
	}
}

func TestMapper_DispatchSync_UnknownRouteReturnsFalse(t *testing.T) {
	mapper, _ := newTestMapper(t, 1, func(string) transport.Conn { return &scriptedConn{} })

	_, ok := mapper.dispatchSync(context.Background(), 42, transport.Request{})
	if ok {
		t.Error("expected dispatchSync to report false for an unregistered route")
	}
}

func TestMapper_DispatchSync_ReturnsResponse(t *testing.T) {
	conn := &scriptedConn{resp: transport.Response{Status: 200, Body: []byte("ok")}}
	mapper, registry := newTestMapper(t, 1, func(string) transport.Conn { return conn })
	registry.AddRoute("peer", 2, "10.0.0.2", 9090)

	resp, ok := mapper.dispatchSync(context.Background(), 2, transport.Request{Method: "GET", Path: "/x"})
	if !ok {
		t.Fatal("expected dispatchSync to succeed")
	}
	if resp.Status != 200 || string(resp.Body) != "ok" {
		t.Errorf("got %+v", resp)
	}
}

func TestMapper_DispatchSync_CancelledContextTimesOut(t *testing.T) {
	conn := &scriptedConn{resp: transport.Response{Status: 200}, delay: time.Second}
	mapper, registry := newTestMapper(t, 1, func(string) transport.Conn { return conn })
	registry.AddRoute("peer", 2, "10.0.0.2", 9090)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, ok := mapper.dispatchSync(ctx, 2, transport.Request{})
	if ok {
		t.Error("expected dispatchSync to time out before the delayed response arrives")
	}
}

func TestMapper_DispatchCluster_EmptyRouteSetReturnsImmediately(t *testing.T) {
	mapper, _ := newTestMapper(t, 1, func(string) transport.Conn { return &scriptedConn{} })

	got := mapper.dispatchCluster(context.Background(), transport.Request{}, true)
	if got.RouteError {
		t.Error("expected RouteError=false for an empty route set")
	}
	if len(got.ByRoute) != 0 {
		t.Errorf("expected no responses, got %d", len(got.ByRoute))
	}
}

func TestMapper_DispatchCluster_GathersAllResponses(t *testing.T) {
	mapper, registry := newTestMapper(t, 1, func(string) transport.Conn {
		return &scriptedConn{resp: transport.Response{Status: 200}}
	})
	registry.AddRoute("self", 1, "10.0.0.1", 9090)
	registry.AddRoute("peer-a", 2, "10.0.0.2", 9090)
	registry.AddRoute("peer-b", 3, "10.0.0.3", 9090)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got := mapper.dispatchCluster(ctx, transport.Request{}, true)
	if got.RouteError {
		t.Error("expected RouteError=false when every route answers")
	}
	if len(got.ByRoute) != 3 {
		t.Errorf("got %d responses; want 3", len(got.ByRoute))
	}
}

func TestMapper_DispatchCluster_SkipsLocalWhenNotInternal(t *testing.T) {
	mapper, registry := newTestMapper(t, 1, func(string) transport.Conn {
		return &scriptedConn{resp: transport.Response{Status: 200}}
	})
	registry.AddRoute("self", 1, "10.0.0.1", 9090)
	registry.AddRoute("peer-a", 2, "10.0.0.2", 9090)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got := mapper.dispatchCluster(ctx, transport.Request{}, false)
	if _, ok := got.ByRoute[1]; ok {
		t.Error("expected local route to be skipped when internalDispatch=false")
	}
	if _, ok := got.ByRoute[2]; !ok {
		t.Error("expected peer route response to be present")
	}
}

func TestMapper_DispatchCluster_TransportErrorSetsRouteError(t *testing.T) {
	mapper, registry := newTestMapper(t, 1, func(string) transport.Conn {
		return &scriptedConn{resp: transport.Response{Error: true}}
	})
	registry.AddRoute("peer-a", 2, "10.0.0.2", 9090)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got := mapper.dispatchCluster(ctx, transport.Request{}, true)
	if !got.RouteError {
		t.Error("expected RouteError=true when a transport error is reported")
	}
}

func TestMapper_DispatchCluster_TransportErrorIncrementsMetric(t *testing.T) {
	mapper, registry := newTestMapper(t, 1, func(string) transport.Conn {
		return &scriptedConn{resp: transport.Response{Error: true}}
	})
	mapper.Metrics = metrics.NewCollector(prometheus.NewRegistry())
	registry.AddRoute("peer-a", 2, "10.0.0.2", 9090)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	mapper.dispatchCluster(ctx, transport.Request{}, true)
	if got := counterValue(t, mapper.Metrics.DispatchErrors); got != 1 {
		t.Errorf("DispatchErrors = %v; want 1", got)
	}
}

func TestMapper_DispatchSync_TransportErrorIncrementsMetric(t *testing.T) {
	conn := &scriptedConn{err: context.DeadlineExceeded}
	mapper, registry := newTestMapper(t, 1, func(string) transport.Conn { return conn })
	mapper.Metrics = metrics.NewCollector(prometheus.NewRegistry())
	registry.AddRoute("peer-a", 2, "10.0.0.2", 9090)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, ok := mapper.dispatchSync(ctx, 2, transport.Request{}); ok {
		t.Fatal("expected dispatchSync to report failure on a transport error")
	}
	if got := counterValue(t, mapper.Metrics.DispatchErrors); got != 1 {
		t.Errorf("DispatchErrors = %v; want 1", got)
	}
}
