package mapping

import "testing"

func TestGetPartitionCountsByRoute_SortedDescending(t *testing.T) {
	registry := NewRouteRegistry(1, nil, nil)
	registry.AddRoute("node-a", 1, "10.0.0.1", 9090)
	registry.AddRoute("node-b", 2, "10.0.0.2", 9090)
	registry.AddRoute("node-c", 3, "10.0.0.3", 9090)

	parts := NewPartitionMap(1, nil)
	parts.SetState(0, 1, StateActiveOwner)
	parts.SetState(1, 1, StateActiveOwner)
	parts.SetState(2, 1, StateActiveOwner)
	parts.SetState(0, 2, StateActiveClone)
	// node 3 has no slots at all.

	counts := GetPartitionCountsByRoute(registry, parts, activeStates)
	if len(counts) != 3 {
		t.Fatalf("got %d entries; want 3", len(counts))
	}
	if counts[0].RouteID != 1 || counts[0].Count != 3 {
		t.Errorf("counts[0] = %+v; want {RouteID:1 Count:3}", counts[0])
	}
	if counts[1].RouteID != 2 || counts[1].Count != 1 {
		t.Errorf("counts[1] = %+v; want {RouteID:2 Count:1}", counts[1])
	}
	if counts[2].RouteID != 3 || counts[2].Count != 0 {
		t.Errorf("counts[2] = %+v; want {RouteID:3 Count:0}", counts[2])
	}
}

func TestGetPartitionCountsByRoute_StateFilterExcludesOtherStates(t *testing.T) {
	registry := NewRouteRegistry(1, nil, nil)
	registry.AddRoute("node-a", 1, "10.0.0.1", 9090)

	parts := NewPartitionMap(1, nil)
	parts.SetState(0, 1, StateActivePlaceholder)

	onlyOwner := map[ReplicaState]struct{}{StateActiveOwner: {}}
	counts := GetPartitionCountsByRoute(registry, parts, onlyOwner)
	if len(counts) != 1 || counts[0].Count != 0 {
		t.Errorf("got %+v; want a single zero-count entry (placeholder doesn't match active_owner filter)", counts)
	}
}

func TestGetPartitionCountsByRoute_NoRoutesIsEmpty(t *testing.T) {
	registry := NewRouteRegistry(1, nil, nil)
	parts := NewPartitionMap(1, nil)

	if got := GetPartitionCountsByRoute(registry, parts, activeStates); len(got) != 0 {
		t.Errorf("got %v; want empty", got)
	}
}
