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


package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors exports executor activity as Prometheus metrics.
// They are registered on the Registerer passed to NewCollectors rather
// than the global default registry.
type Collectors struct {
	documents          *prometheus.CounterVec
	entitiesFound      prometheus.Counter
	relationshipsFound prometheus.Counter
	entities           prometheus.Counter
	relationships      prometheus.Counter
	persistErrors      prometheus.Counter
	stageDuration      *prometheus.HistogramVec
}

// NewCollectors creates and registers the executor metrics on reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		documents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threatgraph",
			Name:      "documents_total",
			Help:      "Documents handled by the executor, by outcome.",
		}, []string{"outcome"}),
		entitiesFound: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "threatgraph",
			Name:      "entities_extracted_total",
			Help:      "Entities produced by extraction and enrichment.",
		}),
		relationshipsFound: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "threatgraph",
			Name:      "relationships_extracted_total",
			Help:      "Relationships produced by relation extraction.",
		}),
		entities: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "threatgraph",
			Name:      "entities_persisted_total",
			Help:      "Entities written to the graph store.",
		}),
		relationships: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "threatgraph",
			Name:      "relationships_persisted_total",
			Help:      "Relationships written to the graph store.",
		}),
		persistErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "threatgraph",
			Name:      "persistence_errors_total",
			Help:      "Entities and relationships that could not be written.",
		}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "threatgraph",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage per document.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage"}),
	}
}

func (c *Collectors) observeOutcome(o Outcome) {
	if c == nil {
		return
	}
	c.documents.WithLabelValues(o.String()).Inc()
}

func (c *Collectors) observeProduced(entities, relationships int) {
	if c == nil {
		return
	}
	c.entitiesFound.Add(float64(entities))
	c.relationshipsFound.Add(float64(relationships))
}

func (c *Collectors) observePersisted(entities, relationships, failed int) {
	if c == nil {
		return
	}
	c.entities.Add(float64(entities))
	c.relationships.Add(float64(relationships))
	c.persistErrors.Add(float64(failed))
}

func (c *Collectors) observeStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
