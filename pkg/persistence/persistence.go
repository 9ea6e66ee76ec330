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

// Package persistence round-trips the PartitionMap and RouteRegistry
// to a durable JSON document form (spec.md §4.6, component C6). Both
// documents are written whole; there is no partial-update path.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/ackris/clustercore/pkg/common"
	"github.com/ackris/clustercore/pkg/mapping"
	"go.uber.org/zap"
)

// persistedNode is one entry of a persisted partition's "nodes" array.
type persistedNode struct {
	NodeID int64  `json:"node_id"`
	State  string `json:"state"`
}

// persistedRoute is one entry of the persisted routes document.
type persistedRoute struct {
	Name string `json:"name"`
	ID   int64  `json:"id"`
	Host string `json:"host"`
	Port int32  `json:"port"`
}

// Store owns the filesystem paths for the two persisted documents and
// the test-mode suppression switch (spec.md §4.6: "in test mode,
// persistence is suppressed").
type Store struct {
	PartitionsPath string
	RoutesPath     string
	TestMode       bool
	Logger         *zap.Logger
}

// NewStore constructs a Store rooted at dir, using the conventional
// file names "partitions.json" and "routes.json".
func NewStore(dir string, testMode bool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		PartitionsPath: filepath.Join(dir, "partitions.json"),
		RoutesPath:     filepath.Join(dir, "routes.json"),
		TestMode:       testMode,
		Logger:         logger,
	}
}

// SaveRoutes writes every registered route to RoutesPath. A no-op in
// test mode.
func (s *Store) SaveRoutes(registry *mapping.RouteRegistry) error {
	if s.TestMode {
		return nil
	}

	routes := registry.ListRoutes()
	sort.Slice(routes, func(i, j int) bool { return routes[i].ID < routes[j].ID })

	out := make([]persistedRoute, 0, len(routes))
	for _, r := range routes {
		out = append(out, persistedRoute{Name: r.Name, ID: int64(r.ID), Host: r.Host, Port: r.Port})
	}

	return writeJSONAtomic(s.RoutesPath, out)
}

// LoadRoutes reads RoutesPath, if present, and upserts each entry into
// registry. A missing file is not an error -- it means no routes have
// ever been persisted yet.
func (s *Store) LoadRoutes(registry *mapping.RouteRegistry) error {
	var routes []persistedRoute
	found, err := readJSON(s.RoutesPath, &routes)
	if err != nil {
		return fmt.Errorf("load routes document: %w", err)
	}
	if !found {
		return nil
	}

	for _, r := range routes {
		registry.AddRoute(r.Name, common.NodeID(r.ID), r.Host, r.Port)
	}
	s.Logger.Info("routes loaded from disk", zap.Int("count", len(routes)))
	return nil
}

// SavePartitions writes the active-state projection of every known
// partition to PartitionsPath. Free and failed slots are never
// emitted, matching spec.md §4.6. A no-op in test mode.
func (s *Store) SavePartitions(parts *mapping.PartitionMap) error {
	if s.TestMode {
		return nil
	}

	snapshot := parts.Snapshot()
	doc := make(map[string][]persistedNode, len(snapshot))

	for p, slots := range snapshot {
		var nodes []persistedNode
		for _, slot := range slots {
			if !slot.State.IsActive() {
				continue
			}
			nodes = append(nodes, persistedNode{NodeID: int64(slot.NodeID), State: slot.State.String()})
		}
		doc[strconv.FormatInt(int64(p), 10)] = nodes
	}

	return writeJSONAtomic(s.PartitionsPath, doc)
}

// LoadPartitions reads PartitionsPath, if present, and applies each
// (partition, node, state) triple via PartitionMap.SetState. An
// unrecognized state literal is skipped, not an error (spec.md §6).
func (s *Store) LoadPartitions(parts *mapping.PartitionMap) error {
	var doc map[string][]persistedNode
	found, err := readJSON(s.PartitionsPath, &doc)
	if err != nil {
		return fmt.Errorf("load partitions document: %w", err)
	}
	if !found {
		return nil
	}

	loaded := 0
	for key, nodes := range doc {
		pRaw, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			s.Logger.Warn("skipping unparsable partition key", zap.String("key", key))
			continue
		}
		p := mapping.PartitionID(pRaw)

		for _, n := range nodes {
			state, ok := mapping.ParseReplicaState(n.State)
			if !ok {
				s.Logger.Warn("skipping unrecognized persisted state",
					zap.Int64("partition", pRaw), zap.Int64("node_id", n.NodeID), zap.String("state", n.State))
				continue
			}
			parts.SetState(p, common.NodeID(n.NodeID), state)
			loaded++
		}
	}
	s.Logger.Info("partitions loaded from disk", zap.Int("slots", loaded))
	return nil
}

// Load reads routes before partitions, per spec.md §4.6's prescribed
// startup order.
func (s *Store) Load(registry *mapping.RouteRegistry, parts *mapping.PartitionMap) error {
	if err := s.LoadRoutes(registry); err != nil {
		return err
	}
	return s.LoadPartitions(parts)
}

// writeJSONAtomic serializes v and writes it to path via a temp file
// in the same directory followed by a rename, so readers never observe
// a partially written document.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file into %s: %w", path, err)
	}
	return nil
}

// readJSON unmarshals path into v, reporting found=false (and a nil
// error) when the file does not exist yet.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}
