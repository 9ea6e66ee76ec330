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
	"time"

	"github.com/ackris/clustercore/pkg/common"
	"github.com/ackris/clustercore/pkg/internals"
	"github.com/ackris/clustercore/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// monitorInterval is how often Context's background monitor goroutine
// re-evaluates cluster predicates (spec.md §5: "one dedicated
// background thread for periodic cluster monitoring").
const monitorInterval = 5 * time.Second

// Config is the process-wide configuration that used to live in the
// original implementation's globals::running singleton. Every
// collaborator that needs it now receives it through Context's
// constructor instead of reading a global.
type Config struct {
	NodeID          common.NodeID
	NodeName        string
	Host            string
	Port            int32
	TotalPartitions int
	TestMode        bool
}

// Context is the explicit, constructor-injected replacement for the
// original implementation's globals::running and globals::mapper
// singletons (spec.md §9): it owns one RouteRegistry, ConnectionPool,
// PartitionMap, and Mapper for the process's lifetime, with an
// unambiguous init/teardown lifecycle via Close.
type Context struct {
	Config Config
	Logger *zap.Logger

	Routes     *RouteRegistry
	Pool       *ConnectionPool
	Partitions *PartitionMap
	Mapper     *Mapper
	Metrics    *metrics.Collector

	closer *internals.IdempotentCloser
	cancel context.CancelFunc
}

// NewContext wires a RouteRegistry, ConnectionPool, PartitionMap,
// Mapper, and metrics.Collector for cfg and registers the local node's
// own route under cfg.NodeID. Each Context gets its own Prometheus
// registry so that multiple Contexts (as in tests) don't collide
// registering the same metric names against the global default one.
func NewContext(cfg Config, logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}

	pool := NewConnectionPool(logger)
	routes := NewRouteRegistry(cfg.NodeID, pool, logger)
	routes.AddRoute(cfg.NodeName, cfg.NodeID, cfg.Host, cfg.Port)
	partitions := NewPartitionMap(cfg.NodeID, logger)
	collector := metrics.NewCollector(prometheus.NewRegistry())
	mapper := NewMapper(routes, pool, cfg.NodeID, nil, logger)
	mapper.Metrics = collector

	return &Context{
		Config:     cfg,
		Logger:     logger,
		Routes:     routes,
		Pool:       pool,
		Partitions: partitions,
		Mapper:     mapper,
		Metrics:    collector,
		closer:     internals.NewIdempotentCloser(),
	}
}

// StartMonitor launches the background goroutine that periodically
// samples cluster completeness -- the Go-idiomatic replacement for the
// original implementation's detached monitoring thread (spec.md §5).
// It returns immediately; the goroutine exits when ctx is done or
// Close is called.
func (c *Context) StartMonitor(ctx context.Context) {
	monitorCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go func() {
		ticker := time.NewTicker(monitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				c.logClusterHealth()
			}
		}
	}()
}

// logClusterHealth samples the cluster predicates, logs a summary, and
// refreshes Metrics so a scrape between monitor ticks sees a current
// value rather than a stale one from process start.
func (c *Context) logClusterHealth() {
	active := c.Routes.CountActiveRoutes()
	missing := c.Partitions.GetMissingPartitions(c.Config.TotalPartitions, map[ReplicaState]struct{}{
		StateActiveOwner:       {},
		StateActiveClone:       {},
		StateActivePlaceholder: {},
	}, 1)

	poolSize := 0
	for _, route := range c.Routes.ListRoutes() {
		poolSize += c.Pool.Size(route.ID)
	}

	c.Metrics.SetRoutesActive(active)
	c.Metrics.SetPartitionsMissing(len(missing))
	c.Metrics.SetConnectionPoolSize(poolSize)

	c.Logger.Debug("cluster health sample",
		zap.Int("active_routes", active), zap.Int("partitions_needing_attention", len(missing)))
}

// Close stops the monitor goroutine, if running, and closes the
// connection pool's cached handles. Safe to call more than once.
func (c *Context) Close() {
	c.closer.Close(func() {
		if c.cancel != nil {
			c.cancel()
		}
		for _, route := range c.Routes.ListRoutes() {
			c.Pool.Drop(route.ID)
		}
	}, nil)
}
