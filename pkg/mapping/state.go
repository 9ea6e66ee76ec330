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

// ReplicaState is the closed set of states a partition replica slot
// can be in. It is a tagged enum, not an interface with virtual
// dispatch, per spec.md §9 -- the state set is small, fixed, and
// ordered (states >= Routable receive traffic).
type ReplicaState int

const (
	// StateFree marks an empty slot; nodeId must be 0 (spec.md I3).
	StateFree ReplicaState = iota

	// StateFailed is reserved; no transition in this design targets
	// it, but it is kept in the enum to match spec.md §3 exactly.
	StateFailed

	// StateRoutable is not itself assigned to a slot; it is the
	// threshold constant against which slot states are compared
	// ("any state >= StateRoutable receives traffic").
	StateRoutable

	// StateActiveOwner marks the authoritative holder of a partition.
	// At most one per partition (spec.md I1).
	StateActiveOwner

	// StateActiveClone marks an up-to-date replica that serves reads
	// but not writes.
	StateActiveClone

	// StateActivePlaceholder marks a replica being built; it serves
	// neither reads nor writes.
	StateActivePlaceholder
)

// String renders the state the way it appears in persisted documents
// and topology documents (spec.md §6): "active_build" for the
// placeholder state, not "active_placeholder".
func (s ReplicaState) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateFailed:
		return "failed"
	case StateRoutable:
		return "routable"
	case StateActiveOwner:
		return "active_owner"
	case StateActiveClone:
		return "active_clone"
	case StateActivePlaceholder:
		return "active_build"
	default:
		return "unknown"
	}
}

// ParseReplicaState maps the wire literal used in topology and
// persisted documents back to a ReplicaState. An unrecognized literal
// is not an error at this layer (spec.md §6: "an unknown state
// literal causes that slot to be ignored, not an error") -- callers
// get ok=false and decide what "ignored" means for them.
func ParseReplicaState(literal string) (ReplicaState, bool) {
	switch literal {
	case "active_owner":
		return StateActiveOwner, true
	case "active_clone":
		return StateActiveClone, true
	case "active_build":
		return StateActivePlaceholder, true
	default:
		return StateFree, false
	}
}

// IsActive reports whether the state is one of the three persisted,
// "active" states (owner, clone, or placeholder/build).
func (s ReplicaState) IsActive() bool {
	return s == StateActiveOwner || s == StateActiveClone || s == StateActivePlaceholder
}
