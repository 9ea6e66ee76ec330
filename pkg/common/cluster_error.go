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
	"errors"

	"go.uber.org/zap"
)

// Sentinel errors for the taxonomy in spec.md §7. Callers compare
// against these with errors.Is; ClusterError.Unwrap exposes them
// through an optional cause chain.
var (
	// ErrUnknownRoute is returned when an operation targets a routeId
	// that is not present in the RouteRegistry.
	ErrUnknownRoute = errors.New("unknown route")

	// ErrRouteLost is returned when a route that was present at the
	// start of a cluster dispatch disappeared before all responses
	// arrived.
	ErrRouteLost = errors.New("route lost mid-dispatch")

	// ErrSlotCapacityExceeded is returned when a partition's replica
	// slots are all occupied and a new mapping cannot be added.
	ErrSlotCapacityExceeded = errors.New("partition slot capacity exceeded")

	// ErrPartitionNotMapped is returned when an operation requires an
	// existing partition entry that has not been created yet.
	ErrPartitionNotMapped = errors.New("partition not mapped")

	// ErrBadTopologyDocument is returned when a topology document
	// entry is missing required fields.
	ErrBadTopologyDocument = errors.New("malformed topology document entry")
)

// ClusterError pairs a human-readable message with an optional
// underlying cause, the way AtomStateError did for the Kafka client
// this package was adapted from.
type ClusterError struct {
	Message string
	Cause   error
}

// Error implements the error interface, including the cause when
// present.
func (e ClusterError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any, so that errors.Is and
// errors.As see through a ClusterError to a sentinel beneath it.
func (e ClusterError) Unwrap() error {
	return e.Cause
}

// Log writes the error to the given logger at Warn level, with the
// cause (if any) attached as a structured field.
func (e ClusterError) Log(logger *zap.Logger) {
	if e.Cause != nil {
		logger.Warn(e.Message, zap.Error(e.Cause))
	} else {
		logger.Warn(e.Message)
	}
}

// NewClusterError wraps cause with a message.
//
// Example:
//
//	err := common.NewClusterError("failed to dispatch to route", common.ErrUnknownRoute)
func NewClusterError(message string, cause error) error {
	return ClusterError{Message: message, Cause: cause}
}
