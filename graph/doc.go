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


// Package graph defines the persistence boundary for extracted entities and
// relationships.
//
// Store implementations merge records by natural key: (name, type) for
// entities and (source, target, type) for relationships. Writing the same
// record twice leaves one stored record carrying the latest field values.
//
// Store errors are classified as transient (worth retrying) or permanent.
// Sink wraps a Store with validation, normalization, run stamping and a
// bounded retry policy for transient errors.
//
// Implementations:
//   - badger: embedded store on BadgerDB
//   - neo4j: Neo4j store using MERGE queries
package graph
