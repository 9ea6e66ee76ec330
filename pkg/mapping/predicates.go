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
	"sort"

	"github.com/ackris/clustercore/pkg/common"
)

// RoutePartitionCount is one route's load figure, as returned by
// GetPartitionCountsByRoute.
type RoutePartitionCount struct {
	RouteID common.NodeID
	Count   int
}

// GetPartitionCountsByRoute reports, for every currently active route,
// how many partitions that route holds a slot in with a state in
// states -- the per-node load signal consumed by the external
// rebalancer (spec.md §4.7, component C7). Results are sorted
// descending by count, mirroring the original implementation's
// Mapper::getPartitionCountsByRoute (internoderouter.cpp).
func GetPartitionCountsByRoute(registry *RouteRegistry, parts *PartitionMap, states map[ReplicaState]struct{}) []RoutePartitionCount {
	routes := registry.GetActiveRoutes()
	out := make([]RoutePartitionCount, 0, len(routes))

	for _, routeID := range routes {
		count := 0
		for _, p := range parts.GetPartitionsByNodeId(routeID) {
			if s, ok := parts.GetState(p, routeID); ok {
				if _, want := states[s]; want {
					count++
				}
			}
		}
		out = append(out, RoutePartitionCount{RouteID: routeID, Count: count})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}
