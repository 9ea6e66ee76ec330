package mapping

import (
	"context"
	"testing"
	"time"

	"github.com/ackris/clustercore/pkg/transport"
)

// fakeConn is a no-op transport.Conn shared by mapping package tests.
type fakeConn struct {
	closed bool
}

func (c *fakeConn) Do(ctx context.Context, req transport.Request) (transport.Response, error) {
	return transport.Response{Status: 200}, nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func TestConnectionPool_ReleaseThenAcquire_LIFO(t *testing.T) {
	p := NewConnectionPool(nil)
	first := &fakeConn{}
	second := &fakeConn{}

	p.Release(1, first)
	p.Release(1, second)

	got, ok := p.Acquire(1)
	if !ok {
		t.Fatal("expected a pooled connection")
	}
	if got != second {
		t.Error("expected Acquire to return the most-recently-released connection (LIFO)")
	}

	got, ok = p.Acquire(1)
	if !ok {
		t.Fatal("expected a second pooled connection")
	}
	if got != first {
		t.Error("expected Acquire to return the earlier connection next")
	}

	if _, ok := p.Acquire(1); ok {
		t.Error("expected pool for route 1 to be empty")
	}
}

func TestConnectionPool_Acquire_DiscardsStaleEntries(t *testing.T) {
	p := NewConnectionPool(nil)
	stale := &fakeConn{}

	p.mu.Lock()
	p.byRoute[1] = []poolEntry{{lastUsed: time.Now().Add(-connMaxAge - time.Second), handle: stale}}
	p.mu.Unlock()

	if _, ok := p.Acquire(1); ok {
		t.Error("expected stale entry to be discarded, not returned")
	}
	if !stale.closed {
		t.Error("expected stale connection to be closed on discard")
	}
}

func TestConnectionPool_Release_Route0NeverCached(t *testing.T) {
	p := NewConnectionPool(nil)
	conn := &fakeConn{}

	p.Release(0, conn)

	if !conn.closed {
		t.Error("expected route 0 connection to be closed rather than cached")
	}
	if p.Size(0) != 0 {
		t.Errorf("expected route 0 pool to remain empty, got size %d", p.Size(0))
	}
}

func TestConnectionPool_Drop_ClosesAndErasesPool(t *testing.T) {
	p := NewConnectionPool(nil)
	a := &fakeConn{}
	b := &fakeConn{}
	p.Release(1, a)
	p.Release(1, b)

	p.Drop(1)

	if !a.closed || !b.closed {
		t.Error("expected all pooled connections to be closed on Drop")
	}
	if p.Size(1) != 0 {
		t.Errorf("expected pool size 0 after Drop, got %d", p.Size(1))
	}
}
