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
	"math"
	"sort"
	"sync"

	"github.com/ackris/clustercore/pkg/common"
	"go.uber.org/zap"
)

// startupRouteName is returned by RouteName for an id the registry
// has never seen. It matches the original implementation's behavior
// (spec.md §9, open question) rather than returning an error, since
// some callers treat "startup" as a legitimate placeholder name for a
// route learned about before its real name arrived.
const startupRouteName = "startup"

// RouteRegistry is the name<->id<->endpoint dictionary of peer nodes
// (spec.md §4.1, component C1). Route upsert is idempotent on id;
// removal erases the route, its name mapping, and any pooled
// connections cached for it.
type RouteRegistry struct {
	mu     sync.RWMutex
	routes map[common.NodeID]common.Route
	names  map[common.NodeID]string

	localID common.NodeID
	pool    *ConnectionPool
	logger  *zap.Logger
}

// NewRouteRegistry constructs an empty registry for the given local
// node id. pool may be nil if the registry is used without a
// connection pool (e.g. in tests); a non-nil pool has its entries
// dropped whenever a route is removed (spec.md §4.1).
func NewRouteRegistry(localID common.NodeID, pool *ConnectionPool, logger *zap.Logger) *RouteRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RouteRegistry{
		routes:  make(map[common.NodeID]common.Route),
		names:   make(map[common.NodeID]string),
		localID: localID,
		pool:    pool,
		logger:  logger,
	}
}

// AddRoute upserts a route by id: if id is new, it is inserted; if id
// already exists, its name and endpoint (host and port) are updated in
// place and any pooled connections for it are left untouched (spec.md
// §4.1). The local node's own id gets the 0.0.0.0 -> 127.0.0.1 host
// rewrite, on both insert and update.
func (r *RouteRegistry) AddRoute(name string, id common.NodeID, host string, port int32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.names[id] = name

	if _, ok := r.routes[id]; ok {
		r.routes[id] = common.NewRoute(name, id, host, port, id == r.localID)
		return
	}

	r.routes[id] = common.NewRoute(name, id, host, port, id == r.localID)
	r.logger.Debug("route added", zap.String("name", name), zap.Int64("node_id", int64(id)))
}

// RemoveRoute erases the route, its name mapping, and drops any
// cached connections for id.
func (r *RouteRegistry) RemoveRoute(id common.NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.routes[id]; !ok {
		return
	}
	delete(r.routes, id)
	delete(r.names, id)

	if r.pool != nil {
		r.pool.Drop(id)
	}
	r.logger.Info("route removed", zap.Int64("node_id", int64(id)))
}

// GetRoute returns a snapshot copy of the route for id, or false if
// none is registered.
func (r *RouteRegistry) GetRoute(id common.NodeID) (common.Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.routes[id]
	return route, ok
}

// HasRoute reports whether id is currently registered, without
// copying the route out.
func (r *RouteRegistry) HasRoute(id common.NodeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.routes[id]
	return ok
}

// RouteName returns the name registered for id, or the literal
// "startup" if id has never been registered (spec.md §9).
func (r *RouteRegistry) RouteName(id common.NodeID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.names[id]; ok {
		return name
	}
	return startupRouteName
}

// LookupRouteName is the explicit-miss counterpart to RouteName added
// by this implementation (spec.md §9 open question, resolved by
// offering both): it reports ok=false instead of "startup" when id is
// unknown.
func (r *RouteRegistry) LookupRouteName(id common.NodeID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[id]
	return name, ok
}

// RouteID looks up the id registered for a route name, or -1 if no
// route has that name.
func (r *RouteRegistry) RouteID(name string) common.NodeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, n := range r.names {
		if n == name {
			return id
		}
	}
	return -1
}

// ListRoutes returns a snapshot of every registered route, in no
// particular order.
func (r *RouteRegistry) ListRoutes() []common.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]common.Route, 0, len(r.routes))
	for _, route := range r.routes {
		out = append(out, route)
	}
	return out
}

// CountRoutes returns the total number of registered routes,
// including the local route.
func (r *RouteRegistry) CountRoutes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

// CountActiveRoutes returns the number of routes currently present in
// the registry. In this design every registered route is considered
// active (liveness is tracked by reconciliation removing dead
// routes), so this equals CountRoutes; it is kept as its own method
// because spec.md §4.7 names it as a distinct observability metric.
func (r *RouteRegistry) CountActiveRoutes() int {
	return r.CountRoutes()
}

// CountFailedRoutes returns the number of routes the registry is
// tracking that are not currently resolvable -- always 0 in this
// design, since an unresolvable route is removed rather than marked
// failed. Kept for parity with spec.md §4.7.
func (r *RouteRegistry) CountFailedRoutes() int {
	return 0
}

// GetActiveRoutes returns every registered route id, sorted
// descending.
func (r *RouteRegistry) GetActiveRoutes() []common.NodeID {
	r.mu.RLock()
	ids := make([]common.NodeID, 0, len(r.routes))
	for id := range r.routes {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return ids
}

// GetSentinelID returns the minimum NodeID among all registered
// routes -- the live node designated as the single-leader elector for
// maintenance tasks (spec.md §3, GLOSSARY "Sentinel"). It returns
// math.MaxInt64 if no routes are registered.
func (r *RouteRegistry) GetSentinelID() common.NodeID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lowest := common.NodeID(math.MaxInt64)
	for id := range r.routes {
		if id < lowest {
			lowest = id
		}
	}
	return lowest
}
