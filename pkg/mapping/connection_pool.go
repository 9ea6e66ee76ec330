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
	"sync"
	"time"

	"github.com/ackris/clustercore/pkg/common"
	"github.com/ackris/clustercore/pkg/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// connMaxAge is how long a pooled connection may sit idle before
// acquire discards it (spec.md §3, §4.2: "120 s since last use").
const connMaxAge = 120 * time.Second

// localRouteID is the well-known id of ad-hoc, never-cached
// connections (spec.md §4.2: "Route 0 is special").
const localRouteID common.NodeID = 0

// poolEntry is one pooled handle together with the time it was last
// released back to the pool.
type poolEntry struct {
	lastUsed time.Time
	handle   transport.Conn
	tag      uuid.UUID
}

// ConnectionPool is the per-route pool of reusable RPC connection
// handles described in spec.md §4.2 (component C2). Staleness is
// checked lazily, only on Acquire, so the pool may transiently hold
// more than its steady-state count of connections.
type ConnectionPool struct {
	mu      sync.Mutex
	byRoute map[common.NodeID][]poolEntry
	logger  *zap.Logger
}

// NewConnectionPool constructs an empty pool.
func NewConnectionPool(logger *zap.Logger) *ConnectionPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectionPool{
		byRoute: make(map[common.NodeID][]poolEntry),
		logger:  logger,
	}
}

// Acquire discards entries older than connMaxAge for routeID, then
// pops and returns the most-recently-used surviving handle (LIFO), or
// ok=false if none remain.
func (p *ConnectionPool) Acquire(routeID common.NodeID) (transport.Conn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries, ok := p.byRoute[routeID]
	if !ok {
		return nil, false
	}

	cutoff := time.Now().Add(-connMaxAge)
	fresh := entries[:0]
	for _, e := range entries {
		if e.lastUsed.After(cutoff) {
			fresh = append(fresh, e)
		} else {
			_ = e.handle.Close()
		}
	}

	if len(fresh) == 0 {
		p.byRoute[routeID] = nil
		return nil, false
	}

	last := fresh[len(fresh)-1]
	p.byRoute[routeID] = fresh[:len(fresh)-1]
	p.logger.Debug("connection acquired from pool",
		zap.Int64("route_id", int64(routeID)), zap.String("conn_tag", last.tag.String()))
	return last.handle, true
}

// Release returns handle to routeID's pool, stamped with the current
// time. Route 0 connections are ad-hoc and are closed instead of
// cached (spec.md §4.2).
func (p *ConnectionPool) Release(routeID common.NodeID, handle transport.Conn) {
	if routeID == localRouteID {
		_ = handle.Close()
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.byRoute[routeID] = append(p.byRoute[routeID], poolEntry{
		lastUsed: time.Now(),
		handle:   handle,
		tag:      uuid.New(),
	})
}

// Drop erases routeID's pool entirely, closing every pooled handle.
// Called when a route is removed from the registry.
func (p *ConnectionPool) Drop(routeID common.NodeID) {
	p.mu.Lock()
	entries := p.byRoute[routeID]
	delete(p.byRoute, routeID)
	p.mu.Unlock()

	for _, e := range entries {
		_ = e.handle.Close()
	}
}

// Size returns the number of pooled (not checked-out) handles for
// routeID, without evicting stale ones. Exposed for the
// clustercore_connection_pool_size metric (SPEC_FULL.md §3).
func (p *ConnectionPool) Size(routeID common.NodeID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byRoute[routeID])
}
