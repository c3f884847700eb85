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


// Package llm extracts relationships between entities with a chat model
// served over an OpenAI-compatible API.
//
// The model is asked for a JSON array of relation objects. Responses are
// unwrapped from markdown fences, the first JSON array is cut out of any
// surrounding prose and common key-quoting mistakes are repaired before
// decoding. Calls are rate limited and retried a bounded number of times.
package llm
