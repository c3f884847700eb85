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


// Package badger implements graph.Store on BadgerDB.
//
// Entities are stored under their BLAKE2b natural key, relationships under
// the key of their (source, target, type) tuple. Values are mus-encoded.
// Each relationship also writes an adjacency entry under its source entity so
// outgoing edges can be listed with a prefix scan.
//
// The package also keeps run summaries (RunRepository) and can hold the
// pipeline checkpoint next to the graph (CheckpointStore).
package badger
