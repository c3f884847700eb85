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


// Package pipeline drives reconstructed documents through the stage chain
// and into the graph, checkpointing each document once it is persisted.
//
// Each document moves Pending → Extracting → Enriching → Persisting →
// Committed, or to Failed from any step. Documents already in the
// checkpoint are skipped. Enrichment and relationship failures degrade to
// the unenriched entities and an empty relationship list; per-item
// persistence failures are logged and the document still commits. Only a
// failed checkpoint write ends the run with an error.
//
// With more than one worker, documents run on an ants pool. The checkpoint
// Tracker guarantees a document id is never processed by two workers at
// once, and Stop is honored between documents so in-flight work always
// reaches a terminal state.
package pipeline
