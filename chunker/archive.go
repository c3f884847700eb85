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


package chunker

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/threatgraph/core"
)

// archiveChunk is the on-disk form of a chunk.
type archiveChunk struct {
	DocumentID int64  `json:"documentId"`
	Position   int    `json:"position"`
	Text       string `json:"text"`
	Source     string `json:"source"`
	Category   string `json:"category"`
	Indicator  string `json:"indicator,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// WriteArchive writes chunks as a JSON array, gzip-compressed when path
// ends in .gz. The file is replaced atomically.
func WriteArchive(path string, chunks []core.Chunk) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	buffered := bufio.NewWriter(tmp)
	var w io.Writer = buffered
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(buffered)
		w = gz
	}

	if err := encodeChunks(w, chunks); err != nil {
		return err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return err
		}
	}
	if err := buffered.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	success = true
	return nil
}

// encodeChunks streams one element at a time so large archives are not
// held twice in memory.
func encodeChunks(w io.Writer, chunks []core.Chunk) error {
	if _, err := io.WriteString(w, "[\n"); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, c := range chunks {
		if i > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		if err := enc.Encode(archiveChunk(c)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "]\n")
	return err
}
