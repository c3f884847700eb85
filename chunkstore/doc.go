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


// Package chunkstore reads chunk archives and reassembles their chunks into
// documents.
//
// An archive is a JSON array of chunk records, optionally gzip-compressed.
// Records are streamed one at a time; a record whose document id or position
// cannot be coerced to an integer is reported as an ErrInvalidChunk and the
// stream continues. Only whole-archive failures (missing file, undecodable
// gzip or JSON structure) are reported as ErrArchiveUnreadable and end the
// stream.
//
// The Reconstructor groups chunks by document id, validates text length,
// sorts each group by position and joins the texts with single spaces.
// Per-document buffers are held in memory until the archive is exhausted, so
// callers must size archives to fit.
package chunkstore
