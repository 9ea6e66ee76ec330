// Copyright 2024 Atomstate Technologies Private Limited
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mapping

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ackris/clustercore/pkg/common"
	"github.com/ackris/clustercore/pkg/metrics"
	"github.com/ackris/clustercore/pkg/transport"
	"go.uber.org/zap"
)

// syncPollInterval is how often dispatchSync re-checks its future
// while waiting, so the caller's context cancellation is observed
// promptly rather than only at the end of a long timeout (spec.md §5:
// "250 ms ... to remain cancellable").
const syncPollInterval = 250 * time.Millisecond

// clusterPollInterval is dispatchCluster's polling granularity for
// detecting route loss mid-wait (spec.md §4.4, §5: "50 ms polling
// timeout").
const clusterPollInterval = 50 * time.Millisecond

// DialFunc opens a new Conn to a route's endpoint. It is a field
// rather than a hardcoded transport.NewHTTPConn call so tests can
// substitute fakes without a real listener.
type DialFunc func(endpoint string) transport.Conn

// Mapper is the RPC dispatch layer (component C4): it picks a
// connection for a route via ConnectionPool, sends an HTTP-shaped
// request, and supports synchronous and cluster-wide scatter/gather
// dispatch on top of that single primitive.
type Mapper struct {
	registry *RouteRegistry
	pool     *ConnectionPool
	localID  common.NodeID
	dial     DialFunc
	logger   *zap.Logger

	// Metrics is set by the owning Context after construction; left nil
	// it simply means dispatch errors aren't counted (e.g. in tests that
	// build a Mapper directly).
	Metrics *metrics.Collector

	slotNumber atomic.Int64
}

// NewMapper constructs a Mapper. If dial is nil, transport.NewHTTPConn
// with a 5s timeout is used.
func NewMapper(registry *RouteRegistry, pool *ConnectionPool, localID common.NodeID, dial DialFunc, logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dial == nil {
		dial = func(endpoint string) transport.Conn {
			return transport.NewHTTPConn(endpoint, 5*time.Second)
		}
	}
	m := &Mapper{
		registry: registry,
		pool:     pool,
		localID:  localID,
		dial:     dial,
		logger:   logger,
	}
	m.slotNumber.Store(1)
	return m
}

// GetSlotNumber returns a monotonically increasing tag applications
// use to correlate related dispatches (spec.md §4.4).
func (m *Mapper) GetSlotNumber() int64 {
	return m.slotNumber.Add(1) - 1
}

// incDispatchError bumps clustercore_dispatch_errors_total if a
// Collector has been wired in.
func (m *Mapper) incDispatchError() {
	if m.Metrics != nil {
		m.Metrics.IncDispatchErrors()
	}
}

// dispatchAsync picks a connection for routeID (acquiring from the
// pool or dialing fresh on a miss), issues req, and invokes done with
// the result. done is responsible for nothing else; dispatchAsync
// itself returns the connection to the pool once done has run.
// Reports false if routeID has no registered route.
func (m *Mapper) dispatchAsync(ctx context.Context, routeID common.NodeID, req transport.Request, done func(transport.Response, error)) bool {
	route, ok := m.registry.GetRoute(routeID)
	if !ok {
		return false
	}

	conn, ok := m.pool.Acquire(routeID)
	if !ok {
		conn = m.dial(route.Endpoint())
	}

	go func() {
		resp, err := conn.Do(ctx, req)
		done(resp, err)
		m.pool.Release(routeID, conn)
	}()
	return true
}

// dispatchSync blocks until routeID's response arrives (or ctx is
// done), polling every syncPollInterval so the wait remains
// cancellable. ok is false if routeID is unknown or ctx expired first
// (spec.md §7: UnknownRoute -> "sync returns a null block").
func (m *Mapper) dispatchSync(ctx context.Context, routeID common.NodeID, req transport.Request) (transport.Response, bool) {
	future := newDispatchFuture[syncResult]()

	started := m.dispatchAsync(ctx, routeID, req, func(resp transport.Response, err error) {
		future.Complete(syncResult{resp: resp, err: err})
	})
	if !started {
		return transport.Response{}, false
	}

	result, ok := future.wait(ctx, syncPollInterval)
	if !ok || result.err != nil {
		if ok && result.err != nil {
			m.incDispatchError()
		}
		return transport.Response{}, false
	}
	return result.resp, true
}

type syncResult struct {
	resp transport.Response
	err  error
}

// ClusterResponses is the result of a dispatchCluster call: every
// response received before the wait ended, keyed by the route that
// produced it, plus a routeError flag set when a transport error
// occurred or a route disappeared mid-wait.
type ClusterResponses struct {
	ByRoute    map[common.NodeID]transport.Response
	RouteError bool
}

// dispatchCluster scatters req to every currently registered route
// (skipping the local node when internalDispatch is false), then
// gathers responses until either all expected routes have answered or
// one of them disappears from the registry, polling every
// clusterPollInterval (spec.md §4.4). An empty route set returns
// immediately with no responses and RouteError=false (spec.md §8).
func (m *Mapper) dispatchCluster(ctx context.Context, req transport.Request, internalDispatch bool) ClusterResponses {
	targets := m.registry.GetActiveRoutes()

	expected := make(map[common.NodeID]struct{}, len(targets))
	for _, id := range targets {
		if !internalDispatch && id == m.localID {
			continue
		}
		expected[id] = struct{}{}
	}

	if len(expected) == 0 {
		return ClusterResponses{ByRoute: map[common.NodeID]transport.Response{}}
	}

	var mu sync.Mutex
	responses := make(map[common.NodeID]transport.Response, len(expected))
	transportErr := false

	for id := range expected {
		id := id
		ok := m.dispatchAsync(ctx, id, req, func(resp transport.Response, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err != nil || resp.Error {
				transportErr = true
			}
			responses[id] = resp
		})
		if !ok {
			mu.Lock()
			transportErr = true
			mu.Unlock()
		}
	}

	ticker := time.NewTicker(clusterPollInterval)
	defer ticker.Stop()

gather:
	for {
		mu.Lock()
		done := len(responses) >= len(expected)
		mu.Unlock()
		if done {
			break
		}

		select {
		case <-ctx.Done():
			mu.Lock()
			transportErr = true
			mu.Unlock()
			break gather
		case <-ticker.C:
			for id := range expected {
				if !m.registry.HasRoute(id) {
					mu.Lock()
					transportErr = true
					mu.Unlock()
					break gather
				}
			}
		}
	}

	mu.Lock()
	defer mu.Unlock()
	out := make(map[common.NodeID]transport.Response, len(responses))
	for id, resp := range responses {
		out[id] = resp
	}
	if transportErr {
		m.incDispatchError()
	}
	return ClusterResponses{ByRoute: out, RouteError: transportErr}
}
