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

// Package metrics exposes the observability surface of the cluster
// predicates in spec.md §4.7 (component C7) as Prometheus
// instruments. The predicates themselves are pure functions over
// mapping.PartitionMap and mapping.RouteRegistry; this package only
// samples them onto gauges/counters for scraping.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector owns the process's cluster-routing metrics. Unlike most
// Prometheus collectors it is pull-driven: the Set* methods must be
// called (typically from the monitor loop) to refresh the gauges before a
// scrape, since PartitionMap/RouteRegistry are not instrumented
// in-line on every mutation.
type Collector struct {
	RoutesActive       prometheus.Gauge
	PartitionsMissing  prometheus.Gauge
	ConnectionPoolSize prometheus.Gauge
	DispatchErrors     prometheus.Counter
}

// NewCollector builds and registers the cluster-routing metrics
// against reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		RoutesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clustercore_routes_active",
			Help: "Number of routes currently registered in the RouteRegistry.",
		}),
		PartitionsMissing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clustercore_partitions_missing",
			Help: "Number of partitions whose active replica count does not match the target replication factor.",
		}),
		ConnectionPoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clustercore_connection_pool_size",
			Help: "Total number of pooled, checked-in RPC connections across all routes.",
		}),
		DispatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clustercore_dispatch_errors_total",
			Help: "Count of dispatchCluster/dispatchSync calls that ended with a routeError or transport error.",
		}),
	}
	reg.MustRegister(c.RoutesActive, c.PartitionsMissing, c.ConnectionPoolSize, c.DispatchErrors)
	return c
}

// SetRoutesActive updates the active-route gauge.
func (c *Collector) SetRoutesActive(n int) {
	c.RoutesActive.Set(float64(n))
}

// SetPartitionsMissing updates the missing-partitions gauge.
func (c *Collector) SetPartitionsMissing(n int) {
	c.PartitionsMissing.Set(float64(n))
}

// SetConnectionPoolSize updates the pooled-connection gauge.
func (c *Collector) SetConnectionPoolSize(n int) {
	c.ConnectionPoolSize.Set(float64(n))
}

// IncDispatchErrors increments the dispatch-error counter by one.
func (c *Collector) IncDispatchErrors() {
	c.DispatchErrors.Inc()
}
