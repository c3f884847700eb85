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


// Package stage defines the enrichment capabilities a document passes
// through: entity extraction, entity enrichment and relation extraction.
//
// The pipeline executor depends only on these interfaces. Concrete
// implementations live in subpackages:
//   - ner: rule-based threat-intelligence entity extractor
//   - mitre: MITRE ATT&CK snapshot enricher
//   - llm: LLM-backed relation extractor
//   - mock: test doubles
package stage
