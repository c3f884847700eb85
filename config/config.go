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


package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration.
type Config struct {
	Archive     ArchiveConfig     `yaml:"archive"`
	Checkpoint  CheckpointConfig  `yaml:"checkpoint"`
	Graph       GraphConfig       `yaml:"graph"`
	Reconstruct ReconstructConfig `yaml:"reconstruct"`
	Retry       RetryConfig       `yaml:"retry"`
	NER         NERConfig         `yaml:"ner"`
	Mitre       MitreConfig       `yaml:"mitre"`
	LLM         LLMConfig         `yaml:"llm"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
}

// ArchiveConfig locates the chunk archive.
type ArchiveConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// CheckpointConfig selects where committed document ids are kept. The
// "graph" store keeps them in the badger graph database itself.
type CheckpointConfig struct {
	Store string `yaml:"store" validate:"oneof=file graph"`
	Path  string `yaml:"path" validate:"required_if=Store file"`
	Name  string `yaml:"name" validate:"required_if=Store graph"`
}

// GraphConfig selects and configures the graph store.
type GraphConfig struct {
	Backend  string `yaml:"backend" validate:"oneof=badger neo4j"`
	Path     string `yaml:"path" validate:"required_if=Backend badger InMemory false"`
	InMemory bool   `yaml:"in_memory"`
	URI      string `yaml:"uri" validate:"required_if=Backend neo4j,omitempty,uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// ReconstructConfig bounds chunk text length and picks the duplicate policy.
type ReconstructConfig struct {
	MinTextLength   int    `yaml:"min_text_length" validate:"gte=1"`
	MaxTextLength   int    `yaml:"max_text_length" validate:"gtefield=MinTextLength"`
	DuplicatePolicy string `yaml:"duplicate_policy" validate:"oneof=keep_all keep_first"`
}

// RetryConfig bounds persistence retries.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" validate:"gte=1,lte=20"`
	BaseDelay   time.Duration `yaml:"base_delay" validate:"gte=0"`
	MaxDelay    time.Duration `yaml:"max_delay" validate:"gtefield=BaseDelay"`
}

// NERConfig tunes the entity extractor. TaggerURL adds a token-classification
// endpoint whose entities are merged with the pattern rules.
type NERConfig struct {
	MinConfidence float64 `yaml:"min_confidence" validate:"gte=0,lte=1"`
	TaggerURL     string  `yaml:"tagger_url" validate:"omitempty,url"`
	TaggerToken   string  `yaml:"tagger_token"`
}

// MitreConfig configures ATT&CK enrichment. Enrichment is disabled when
// neither a snapshot nor a remote URL is set.
type MitreConfig struct {
	SnapshotPath  string        `yaml:"snapshot_path"`
	RemoteURL     string        `yaml:"remote_url" validate:"omitempty,url"`
	CacheTTL      time.Duration `yaml:"cache_ttl" validate:"gt=0"`
	CacheCapacity int64         `yaml:"cache_capacity" validate:"gte=1"`
}

// Enabled reports whether any catalog source is configured.
func (m MitreConfig) Enabled() bool {
	return m.SnapshotPath != "" || m.RemoteURL != ""
}

// LLMConfig configures relationship extraction. It is disabled when Host is empty.
type LLMConfig struct {
	Host              string  `yaml:"host" validate:"omitempty,url"`
	Model             string  `yaml:"model" validate:"required_with=Host"`
	Token             string  `yaml:"token"`
	Temperature       float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxParseAttempts  int     `yaml:"max_parse_attempts" validate:"gte=1"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
}

// Enabled reports whether an LLM endpoint is configured.
func (l LLMConfig) Enabled() bool {
	return l.Host != ""
}

// PipelineConfig tunes the executor.
type PipelineConfig struct {
	Workers        int    `yaml:"workers" validate:"gte=1,lte=256"`
	DryRun         bool   `yaml:"dry_run"`
	ReportInterval int    `yaml:"report_interval" validate:"gte=0"`
	MetricsAddr    string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Archive:    ArchiveConfig{Path: "chunks.json.gz"},
		Checkpoint: CheckpointConfig{Store: "file", Path: "checkpoint.json", Name: "default"},
		Graph: GraphConfig{
			Backend: "badger",
			Path:    "threatgraph.db",
		},
		Reconstruct: ReconstructConfig{
			MinTextLength:   10,
			MaxTextLength:   2048,
			DuplicatePolicy: "keep_all",
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    2 * time.Second,
		},
		NER: NERConfig{MinConfidence: 0.7},
		Mitre: MitreConfig{
			CacheTTL:      time.Hour,
			CacheCapacity: 1000,
		},
		LLM: LLMConfig{
			Token:            "none",
			Temperature:      0.3,
			MaxParseAttempts: 2,
		},
		Pipeline: PipelineConfig{
			Workers:        1,
			ReportInterval: 100,
		},
	}
}

// Option overrides a configuration value after loading.
type Option func(*Config)

// WithArchive sets the chunk archive path.
func WithArchive(path string) Option {
	return func(c *Config) {
		c.Archive.Path = path
	}
}

// WithCheckpoint sets the checkpoint file path.
func WithCheckpoint(path string) Option {
	return func(c *Config) {
		c.Checkpoint.Path = path
	}
}

// WithGraphPath sets the badger directory.
func WithGraphPath(path string) Option {
	return func(c *Config) {
		c.Graph.Path = path
	}
}

// WithWorkers sets the executor worker count.
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Pipeline.Workers = n
	}
}

// WithDryRun toggles dry-run mode.
func WithDryRun(dryRun bool) Option {
	return func(c *Config) {
		c.Pipeline.DryRun = dryRun
	}
}

// WithMetricsAddr sets the Prometheus listen address.
func WithMetricsAddr(addr string) Option {
	return func(c *Config) {
		c.Pipeline.MetricsAddr = addr
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), the environment and opts, then validates it.
func Load(path string, opts ...Option) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReadConfig, err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays YAML onto c. Unknown keys are rejected.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", ErrReadConfig, err)
	}
	return nil
}

// ApplyEnv overlays values from environment variables.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"THREATGRAPH_ARCHIVE":          &c.Archive.Path,
		"THREATGRAPH_CHECKPOINT":       &c.Checkpoint.Path,
		"THREATGRAPH_CHECKPOINT_STORE": &c.Checkpoint.Store,
		"THREATGRAPH_GRAPH_BACKEND":    &c.Graph.Backend,
		"THREATGRAPH_GRAPH_PATH":       &c.Graph.Path,
		"THREATGRAPH_MITRE_SNAPSHOT":   &c.Mitre.SnapshotPath,
		"THREATGRAPH_MITRE_URL":        &c.Mitre.RemoteURL,
		"THREATGRAPH_NER_URL":          &c.NER.TaggerURL,
		"NER_API_TOKEN":                &c.NER.TaggerToken,
		"THREATGRAPH_LLM_HOST":         &c.LLM.Host,
		"THREATGRAPH_LLM_MODEL":        &c.LLM.Model,
		"THREATGRAPH_METRICS_ADDR":     &c.Pipeline.MetricsAddr,
		"NEO4J_URI":                    &c.Graph.URI,
		"NEO4J_USER":                   &c.Graph.User,
		"NEO4J_PASSWORD":               &c.Graph.Password,
		"NEO4J_DATABASE":               &c.Graph.Database,
		"LLM_API_KEY":                  &c.LLM.Token,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("THREATGRAPH_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: THREATGRAPH_WORKERS: %w", ErrInvalidConfig, err)
		}
		c.Pipeline.Workers = n
	}
	if v, ok := os.LookupEnv("THREATGRAPH_DRY_RUN"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: THREATGRAPH_DRY_RUN: %w", ErrInvalidConfig, err)
		}
		c.Pipeline.DryRun = b
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]error, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Errorf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(msgs...))
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Checkpoint.Store == "graph" && c.Graph.Backend != "badger" {
		return fmt.Errorf("%w: checkpoint store %q requires the badger graph backend", ErrInvalidConfig, c.Checkpoint.Store)
	}
	return nil
}
