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
	"fmt"
	"sort"
	"strconv"

	"github.com/ackris/clustercore/pkg/common"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// TopologyRoute is one entry of a topology document's "/routes" array
// (spec.md §4.5, §6).
type TopologyRoute struct {
	Name string `json:"name"`
	ID   int64  `json:"id"`
	Host string `json:"host"`
	Port int32  `json:"port"`
}

// TopologyNode is one entry of a cluster-subtree partition's "nodes"
// array.
type TopologyNode struct {
	NodeID int64  `json:"node_id"`
	State  string `json:"state"`
}

// TopologyDocument is the authoritative cluster state MappingReconciler
// diffs against the live RouteRegistry and PartitionMap (spec.md
// §4.5, §6).
type TopologyDocument struct {
	Routes  []TopologyRoute           `json:"routes"`
	Cluster map[string][]TopologyNode `json:"cluster"`
}

// ReconcileCallbacks are the four integration points the reconciler
// invokes; all are opaque to the core and must be non-blocking or
// short-lived since they run on the caller's goroutine (spec.md §6,
// §4.5).
type ReconcileCallbacks struct {
	AddRoute        func(name string, id common.NodeID, host string, port int32)
	DeleteRoute     func(id common.NodeID)
	AddPartition    func(p PartitionID)
	DeletePartition func(p PartitionID)
}

// MappingReconciler applies an authoritative TopologyDocument to a
// RouteRegistry and PartitionMap, diffing against the current state
// and invoking ReconcileCallbacks for every add/drop it discovers
// (component C5, spec.md §4.5).
type MappingReconciler struct {
	registry *RouteRegistry
	parts    *PartitionMap
	localID  common.NodeID
	logger   *zap.Logger
}

// NewMappingReconciler constructs a reconciler bound to registry and
// parts. localID identifies which partition slots belong to this
// process, for the purgeIncomplete-style scan in step 3.
func NewMappingReconciler(registry *RouteRegistry, parts *PartitionMap, localID common.NodeID, logger *zap.Logger) *MappingReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MappingReconciler{registry: registry, parts: parts, localID: localID, logger: logger}
}

// visitedKey identifies one (partition, node, state) triple seen while
// parsing the cluster subtree.
type visitedKey struct {
	p PartitionID
	n common.NodeID
	s ReplicaState
}

// Reconcile runs the four-step algorithm of spec.md §4.5: diff routes,
// diff cluster assignments, purge unvisited slots under each
// partition's slot lock, then invoke AddPartition callbacks outside it.
// Malformed route or cluster entries are skipped with a warning rather
// than aborting the whole reconciliation (spec.md §7:
// BadTopologyDocument); every warning is aggregated via multierr and
// returned as the error, so a nil error means no entry was skipped.
func (r *MappingReconciler) Reconcile(doc TopologyDocument, cb ReconcileCallbacks) error {
	var warnings error

	provided := make(map[common.NodeID]struct{}, len(doc.Routes))
	for _, rt := range doc.Routes {
		if rt.Name == "" || rt.Host == "" || rt.Port == 0 {
			warnings = multierr.Append(warnings, fmt.Errorf("%w: route entry missing a required field: %+v", common.ErrBadTopologyDocument, rt))
			continue
		}
		id := common.NodeID(rt.ID)
		provided[id] = struct{}{}
		if !r.registry.HasRoute(id) {
			if cb.AddRoute != nil {
				cb.AddRoute(rt.Name, id, rt.Host, rt.Port)
			}
		}
	}

	for _, existing := range r.registry.ListRoutes() {
		if _, ok := provided[existing.ID]; !ok {
			if cb.DeleteRoute != nil {
				cb.DeleteRoute(existing.ID)
			}
		}
	}

	newPartitions := make(map[PartitionID]struct{})
	visited := make(map[visitedKey]struct{})

	partitionIDs := make([]string, 0, len(doc.Cluster))
	for key := range doc.Cluster {
		partitionIDs = append(partitionIDs, key)
	}
	sort.Strings(partitionIDs)

	for _, key := range partitionIDs {
		pRaw, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			warnings = multierr.Append(warnings, fmt.Errorf("%w: cluster entry key %q is not an integer", common.ErrBadTopologyDocument, key))
			continue
		}
		p := PartitionID(pRaw)

		for _, node := range doc.Cluster[key] {
			state, ok := ParseReplicaState(node.State)
			if !ok {
				warnings = multierr.Append(warnings, fmt.Errorf("%w: partition %d node %d has unrecognized state %q", common.ErrBadTopologyDocument, p, node.NodeID, node.State))
				continue
			}
			n := common.NodeID(node.NodeID)

			if n == r.localID {
				if _, already := r.parts.IsMapped(p, n); !already {
					newPartitions[p] = struct{}{}
				}
			}

			r.parts.SetState(p, n, state)
			visited[visitedKey{p: p, n: n, s: state}] = struct{}{}
		}
	}

	r.purgeUnvisited(visited, cb.DeletePartition)

	ids := make([]PartitionID, 0, len(newPartitions))
	for p := range newPartitions {
		ids = append(ids, p)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, p := range ids {
		if cb.AddPartition != nil {
			cb.AddPartition(p)
		}
	}

	if warnings != nil {
		for _, w := range multierr.Errors(warnings) {
			r.logger.Warn("topology entry skipped", zap.Error(w))
		}
	}
	return warnings
}

// purgeUnvisited scans every slot of every known partition, under that
// partition's own lock, and clears any non-free slot whose
// (partition, node, state) triple was not touched by this reconcile
// pass. A local-node slot being cleared this way triggers
// onDeletePartition (spec.md §4.5 step 3).
func (r *MappingReconciler) purgeUnvisited(visited map[visitedKey]struct{}, onDeletePartition func(PartitionID)) {
	snapshot := r.parts.snapshotEntries()

	partitionIDs := make([]PartitionID, 0, len(snapshot))
	for p := range snapshot {
		partitionIDs = append(partitionIDs, p)
	}
	sort.Slice(partitionIDs, func(i, j int) bool { return partitionIDs[i] < partitionIDs[j] })

	for _, p := range partitionIDs {
		e := snapshot[p]
		e.mu.Lock()
		for i := range e.slots {
			slot := e.slots[i]
			if slot.State == StateFree {
				continue
			}
			if _, ok := visited[visitedKey{p: p, n: slot.NodeID, s: slot.State}]; ok {
				continue
			}
			if slot.NodeID == r.localID && onDeletePartition != nil {
				onDeletePartition(p)
			}
			e.slots[i] = PartitionSlot{}
		}
		e.mu.Unlock()
	}
}
