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

package common

import (
	"fmt"
	"hash/fnv"
)

// NodeID is the stable 64-bit identifier of a cluster member. It is
// derived from the node's configured name by a deterministic hash, so
// any process that knows a peer's name can compute its id without a
// round trip through the cluster.
type NodeID int64

// NewNodeID derives the NodeID for a node name using FNV-1a.
//
// Example:
//
//	id := common.NewNodeID("node-a")
func NewNodeID(name string) NodeID {
	h := fnv.New64a()
	h.Write([]byte(name))
	return NodeID(h.Sum64())
}

// String implements fmt.Stringer.
func (id NodeID) String() string {
	return fmt.Sprintf("%d", int64(id))
}

const (
	wildcardHost = "0.0.0.0"
	loopbackHost = "127.0.0.1"
)

// Route is an addressable peer node: its id, the name it was
// registered under, and the host/port applications dial to reach it.
// Uniquely keyed by ID.
type Route struct {
	ID   NodeID
	Name string
	Host string
	Port int32
}

// NoRoute is a placeholder for a route that should be considered
// non-existent.
var NoRoute = Route{ID: 0, Host: "", Port: -1}

// NewRoute builds a Route, rewriting host 0.0.0.0 to 127.0.0.1 when
// isLocal is true, so the local node's own route is always dialable
// even when it was configured to listen on the wildcard address.
// isLocal should be true only when id is the id of the node
// constructing the route.
//
// Example:
//
//	r := common.NewRoute("node-a", common.NewNodeID("node-a"), "0.0.0.0", 9090, true)
//	fmt.Println(r.Host) // 127.0.0.1
func NewRoute(name string, id NodeID, host string, port int32, isLocal bool) Route {
	if isLocal && host == wildcardHost {
		host = loopbackHost
	}
	return Route{ID: id, Name: name, Host: host, Port: port}
}

// IsEmpty reports whether the route has no usable endpoint.
func (r Route) IsEmpty() bool {
	return r.Host == "" || r.Port <= 0
}

// Endpoint formats the route's dial address as "host:port".
func (r Route) Endpoint() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// String provides a human-readable representation of the route.
//
// Example:
//
//	r := common.Route{ID: 7, Name: "node-a", Host: "10.0.0.2", Port: 9090}
//	fmt.Println(r) // 10.0.0.2:9090 (id: 7, name: node-a)
func (r Route) String() string {
	return fmt.Sprintf("%s (id: %s, name: %s)", r.Endpoint(), r.ID, r.Name)
}

// Equal reports whether two routes describe the same endpoint under
// the same identity.
func (r Route) Equal(other Route) bool {
	return r.ID == other.ID && r.Name == other.Name && r.Host == other.Host && r.Port == other.Port
}
