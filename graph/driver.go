// Copyright 2025 Poiesic Systems
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


// Package graph defines the knowledge-graph database abstraction.
//
// The pipeline only needs parameterized query execution with atomic
// MERGE-by-key semantics; the concrete driver is supplied by the caller.
// The mock subpackage provides a recording driver for tests.
package graph

import "context"

// Row is one result row, keyed by the query's return aliases.
type Row map[string]any

// Driver executes queries against a property-graph database.
// Implementations must be thread-safe for concurrent use and must apply
// MERGE clauses atomically with respect to the merge key.
type Driver interface {
	// ExecuteQuery runs a parameterized query and returns its result rows.
	ExecuteQuery(ctx context.Context, query string, params map[string]any) ([]Row, error)

	// EnsureIndex creates an index on the given label and property if one
	// does not already exist.
	EnsureIndex(ctx context.Context, label, property string) error

	// Close releases the underlying connection.
	Close() error
}
