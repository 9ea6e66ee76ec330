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
	"sync"

	"github.com/ackris/clustercore/pkg/common"
	"go.uber.org/zap"
)

// MAPDEPTH is the fixed number of replica slots every partition owns.
const MAPDEPTH = 6

// PartitionID identifies a partition in [0, totalPartitions).
type PartitionID int64

// PartitionSlot is one (nodeId, state) replica assignment. A free slot
// always has NodeID 0 (invariant I3, spec.md §3).
type PartitionSlot struct {
	NodeID common.NodeID
	State  ReplicaState
}

// slotArray is the fixed-length, individually locked array of replica
// slots for one partition (spec.md §5 lock #3).
type slotArray struct {
	mu    sync.Mutex
	slots [MAPDEPTH]PartitionSlot
}

// PartitionMap is the partition -> replica-slot-table mapping
// (component C3). The container lock guards the partition -> *slotArray
// map itself; each partition's slots are guarded by their own lock, so
// operations on distinct partitions can proceed concurrently once
// entries exist (spec.md §3, §5).
type PartitionMap struct {
	mu         sync.Mutex
	partitions map[PartitionID]*slotArray
	localID    common.NodeID
	logger     *zap.Logger
}

// NewPartitionMap constructs an empty map. localID is used by
// PurgeIncomplete to report which purged partitions belonged to this
// node. logger receives warnings for the silent-failure paths of
// SetOwner and SwapState; a nil logger defaults to a no-op one.
func NewPartitionMap(localID common.NodeID, logger *zap.Logger) *PartitionMap {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PartitionMap{
		partitions: make(map[PartitionID]*slotArray),
		localID:    localID,
		logger:     logger,
	}
}

// entry returns the slot array for p, creating one (all slots free) if
// create is true and none exists yet.
func (m *PartitionMap) entry(p PartitionID, create bool) *slotArray {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.partitions[p]
	if !ok {
		if !create {
			return nil
		}
		e = &slotArray{}
		m.partitions[p] = e
	}
	return e
}

// SetOwner marks n as active_owner of p, demoting any other
// active_owner slot in the same partition to active_clone. If n is not
// yet mapped into p, it is inserted into the first free slot; if no
// free slot exists, the operation fails silently (spec.md §4.3 --
// SlotCapacityExceeded is not surfaced as an error here, matching the
// original's silent-failure contract for this op).
func (m *PartitionMap) SetOwner(p PartitionID, n common.NodeID) {
	e := m.entry(p, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	freeIdx := -1
	targetIdx := -1
	for i, s := range e.slots {
		if s.NodeID == n {
			targetIdx = i
		}
		if freeIdx == -1 && s.State == StateFree {
			freeIdx = i
		}
	}

	if targetIdx == -1 {
		if freeIdx == -1 {
			// No free slot and n not already present: bail before any
			// demotion below, matching the original changeOwner, which
			// leaves the existing owner in place rather than demoting it
			// for a node that never ends up mapped.
			common.ClusterError{Message: "setOwner: no free slot", Cause: common.ErrSlotCapacityExceeded}.Log(m.logger)
			return
		}
		targetIdx = freeIdx
		e.slots[targetIdx].NodeID = n
	}

	for i := range e.slots {
		if i == targetIdx {
			continue
		}
		if e.slots[i].State == StateActiveOwner {
			e.slots[i].State = StateActiveClone
		}
	}
	e.slots[targetIdx].State = StateActiveOwner
}

// SetState upserts (n, s) into p: if n already has a slot, its state is
// overwritten; otherwise n is inserted into the first free slot. A
// fresh, all-free entry is created for p if none existed. Fails
// silently if no free slot is available and n is not already mapped.
func (m *PartitionMap) SetState(p PartitionID, n common.NodeID, s ReplicaState) {
	e := m.entry(p, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.slots {
		if e.slots[i].NodeID == n {
			e.slots[i].State = s
			return
		}
	}
	for i := range e.slots {
		if e.slots[i].State == StateFree {
			e.slots[i] = PartitionSlot{NodeID: n, State: s}
			return
		}
	}
}

// RemoveMap clears the slot matching both nodeId=n and state=s exactly;
// it is a no-op if no such slot exists.
func (m *PartitionMap) RemoveMap(p PartitionID, n common.NodeID, s ReplicaState) {
	e := m.entry(p, false)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.slots {
		if e.slots[i].NodeID == n && e.slots[i].State == s {
			e.slots[i] = PartitionSlot{}
			return
		}
	}
}

// SwapState atomically demotes oldN to active_clone and promotes newN
// to active_owner within p. Returns false if p has no entry; it does
// not create slots for either node if they are not already mapped.
func (m *PartitionMap) SwapState(p PartitionID, oldN, newN common.NodeID) bool {
	e := m.entry(p, false)
	if e == nil {
		common.ClusterError{Message: "swapState: partition has no entry", Cause: common.ErrPartitionNotMapped}.Log(m.logger)
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.slots {
		if e.slots[i].NodeID == oldN {
			e.slots[i].State = StateActiveClone
		}
		if e.slots[i].NodeID == newN {
			e.slots[i].State = StateActiveOwner
		}
	}
	return true
}

// IsMapped reports whether n has a slot in p, returning a copy of it.
func (m *PartitionMap) IsMapped(p PartitionID, n common.NodeID) (PartitionSlot, bool) {
	e := m.entry(p, false)
	if e == nil {
		return PartitionSlot{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, s := range e.slots {
		if s.NodeID == n {
			return s, true
		}
	}
	return PartitionSlot{}, false
}

// IsOwner reports whether n is the active_owner of p.
func (m *PartitionMap) IsOwner(p PartitionID, n common.NodeID) bool {
	slot, ok := m.IsMapped(p, n)
	return ok && slot.State == StateActiveOwner
}

// GetState returns n's state in p, or (StateFree, false) if n has no
// slot in p.
func (m *PartitionMap) GetState(p PartitionID, n common.NodeID) (ReplicaState, bool) {
	slot, ok := m.IsMapped(p, n)
	if !ok {
		return StateFree, false
	}
	return slot.State, true
}

// GetPartitionsByNodeId returns every partition where n has a slot at
// or above StateRoutable.
func (m *PartitionMap) GetPartitionsByNodeId(n common.NodeID) []PartitionID {
	return m.GetPartitionsByNodeIdAndStates(n, func(s ReplicaState) bool { return s >= StateRoutable })
}

// GetPartitionsByNodeIdAndStates is the refinement of
// GetPartitionsByNodeId that accepts a predicate over ReplicaState
// instead of the fixed ">= routable" threshold.
func (m *PartitionMap) GetPartitionsByNodeIdAndStates(n common.NodeID, accept func(ReplicaState) bool) []PartitionID {
	snapshot := m.snapshotEntries()

	var out []PartitionID
	for p, e := range snapshot {
		e.mu.Lock()
		for _, s := range e.slots {
			if s.NodeID == n && accept(s.State) {
				out = append(out, p)
				break
			}
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GetNodeIdsByState returns every distinct nodeId holding a slot in
// state s, across all partitions.
func (m *PartitionMap) GetNodeIdsByState(s ReplicaState) []common.NodeID {
	snapshot := m.snapshotEntries()

	seen := make(map[common.NodeID]struct{})
	for _, e := range snapshot {
		e.mu.Lock()
		for _, slot := range e.slots {
			if slot.State == s && slot.NodeID != 0 {
				seen[slot.NodeID] = struct{}{}
			}
		}
		e.mu.Unlock()
	}

	out := make([]common.NodeID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GetNodesByPartitionId returns the nodeIds holding a slot at or above
// StateRoutable in p.
func (m *PartitionMap) GetNodesByPartitionId(p PartitionID) []common.NodeID {
	e := m.entry(p, false)
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []common.NodeID
	for _, s := range e.slots {
		if s.State >= StateRoutable {
			out = append(out, s.NodeID)
		}
	}
	return out
}

// countActive returns how many slots of p are in one of states.
func (m *PartitionMap) countActive(p PartitionID, states map[ReplicaState]struct{}) int {
	e := m.entry(p, false)
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	count := 0
	for _, s := range e.slots {
		if _, ok := states[s.State]; ok {
			count++
		}
	}
	return count
}

// IsClusterComplete reports whether every partition in [0,total) has at
// least replication slots whose state is in states.
func (m *PartitionMap) IsClusterComplete(total int, states map[ReplicaState]struct{}, replication int) bool {
	for p := PartitionID(0); p < PartitionID(total); p++ {
		if m.countActive(p, states) < replication {
			return false
		}
	}
	return true
}

// GetMissingPartitions returns partitions in [0,total) whose matching
// slot count is strictly less than OR strictly greater than
// replication. Both directions are treated as "needs attention"; this
// matches the original implementation's inequality test rather than a
// strict less-than check (spec.md §4.3, §9 open question).
func (m *PartitionMap) GetMissingPartitions(total int, states map[ReplicaState]struct{}, replication int) []PartitionID {
	if total <= 0 {
		return nil
	}
	var out []PartitionID
	for p := PartitionID(0); p < PartitionID(total); p++ {
		if m.countActive(p, states) != replication {
			out = append(out, p)
		}
	}
	return out
}

// PurgeIncomplete resets every slot not in active_owner/active_clone to
// free, across all partitions, and returns the ids of partitions where
// the local node lost a slot as a result.
func (m *PartitionMap) PurgeIncomplete() []PartitionID {
	snapshot := m.snapshotEntries()

	var lost []PartitionID
	for p, e := range snapshot {
		e.mu.Lock()
		localLost := false
		for i := range e.slots {
			s := e.slots[i].State
			if s == StateActiveOwner || s == StateActiveClone {
				continue
			}
			if e.slots[i].NodeID == m.localID && e.slots[i].State != StateFree {
				localLost = true
			}
			e.slots[i] = PartitionSlot{}
		}
		e.mu.Unlock()
		if localLost {
			lost = append(lost, p)
		}
	}
	sort.Slice(lost, func(i, j int) bool { return lost[i] < lost[j] })
	return lost
}

// PurgeNodeById clears every slot, in every partition, whose nodeId is
// n.
func (m *PartitionMap) PurgeNodeById(n common.NodeID) {
	snapshot := m.snapshotEntries()
	for _, e := range snapshot {
		e.mu.Lock()
		for i := range e.slots {
			if e.slots[i].NodeID == n {
				e.slots[i] = PartitionSlot{}
			}
		}
		e.mu.Unlock()
	}
}

// PurgeByState clears every slot, in every partition, whose state is s.
func (m *PartitionMap) PurgeByState(s ReplicaState) {
	snapshot := m.snapshotEntries()
	for _, e := range snapshot {
		e.mu.Lock()
		for i := range e.slots {
			if e.slots[i].State == s {
				e.slots[i] = PartitionSlot{}
			}
		}
		e.mu.Unlock()
	}
}

// Clear resets every slot of every known partition to free.
func (m *PartitionMap) Clear() {
	snapshot := m.snapshotEntries()
	for _, e := range snapshot {
		e.mu.Lock()
		e.slots = [MAPDEPTH]PartitionSlot{}
		e.mu.Unlock()
	}
}

// Snapshot copies every known partition's slot array for read-only use
// by callers that need a consistent, point-in-time view -- chiefly
// persistence (component C6), which serializes only the active-state
// slots of this snapshot.
func (m *PartitionMap) Snapshot() map[PartitionID][MAPDEPTH]PartitionSlot {
	entries := m.snapshotEntries()
	out := make(map[PartitionID][MAPDEPTH]PartitionSlot, len(entries))
	for p, e := range entries {
		e.mu.Lock()
		out[p] = e.slots
		e.mu.Unlock()
	}
	return out
}

// snapshotEntries copies the partition->slotArray map under the
// container lock, so callers can iterate without holding it (avoiding
// lock-order inversion with each entry's own slot lock).
func (m *PartitionMap) snapshotEntries() map[PartitionID]*slotArray {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[PartitionID]*slotArray, len(m.partitions))
	for p, e := range m.partitions {
		out[p] = e
	}
	return out
}
