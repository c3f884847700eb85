package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/poiesic/threatgraph/core"
	"github.com/poiesic/threatgraph/stage"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

const defaultConfidence = 0.7

// RelationExtractor implements stage.RelationExtractor using an
// OpenAI-compatible chat API.
type RelationExtractor struct {
	client      llms.Model
	limiter     *rate.Limiter
	temperature float64
	maxTokens   int
	maxAttempts int
	logger      *slog.Logger
}

var _ stage.RelationExtractor = (*RelationExtractor)(nil)

// relation matches the objects the model is asked to return.
type relation struct {
	SourceName       string   `json:"source_name"`
	SourceType       string   `json:"source_type"`
	TargetName       string   `json:"target_name"`
	TargetType       string   `json:"target_type"`
	RelationshipType string   `json:"relationship_type"`
	Confidence       *float64 `json:"confidence"`
	Description      string   `json:"description"`
}

// New creates a RelationExtractor backed by an OpenAI-compatible client.
func New(config *Config, logger *slog.Logger) (*RelationExtractor, error) {
	config.Normalize()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.Host),
		openai.WithToken(config.Token),
		openai.WithModel(config.Model),
	)
	if err != nil {
		return nil, err
	}

	return NewWithModel(client, config, logger), nil
}

// NewWithModel creates a RelationExtractor around an existing model.
func NewWithModel(model llms.Model, config *Config, logger *slog.Logger) *RelationExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	config.Normalize()

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	return &RelationExtractor{
		client:      model,
		limiter:     rate.NewLimiter(limit, 1),
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		maxAttempts: config.MaxAttempts,
		logger:      logger.With("component", "llm-relations"),
	}
}

// ExtractRelationships asks the model for relationships between entities.
// Empty text or an empty entity list yields an empty result without a call.
// If no attempt produces a parseable response the result is empty and the
// error is an *stage.ExtractionError.
func (x *RelationExtractor) ExtractRelationships(ctx context.Context, text string, entities []core.Entity) ([]core.Relationship, error) {
	if strings.TrimSpace(text) == "" || len(entities) == 0 {
		return []core.Relationship{}, nil
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, buildPrompt(text, entities)),
	}

	var lastErr error
	for attempt := 1; attempt <= x.maxAttempts; attempt++ {
		if err := x.limiter.Wait(ctx); err != nil {
			return []core.Relationship{}, stage.NewExtractionError("llm", err)
		}

		response, err := x.client.GenerateContent(ctx, content,
			llms.WithTemperature(x.temperature),
			llms.WithMaxTokens(x.maxTokens))
		if err != nil {
			if ctx.Err() != nil {
				return []core.Relationship{}, stage.NewExtractionError("llm", ctx.Err())
			}
			lastErr = err
			x.logger.Warn("model call failed", "attempt", attempt, "err", err)
			continue
		}

		if len(response.Choices) < 1 {
			lastErr = ErrNoRelations
			x.logger.Debug("no choices returned from model", "attempt", attempt)
			continue
		}

		rels, err := parseRelations(response.Choices[0].Content)
		if err != nil {
			lastErr = err
			x.logger.Warn("error parsing relation response", "attempt", attempt, "err", err)
			continue
		}

		x.logger.Debug("extracted relationships", "entities", len(entities), "relationships", len(rels))
		return rels, nil
	}

	return []core.Relationship{}, stage.NewExtractionError("llm",
		fmt.Errorf("%w after %d attempts: %w", ErrNoRelations, x.maxAttempts, lastErr))
}

// parseRelations decodes a model response into relationships.
// Incomplete objects are skipped. A missing confidence defaults to 0.7 and
// out-of-range values are clamped.
func parseRelations(response string) ([]core.Relationship, error) {
	body, ok := cutArray(stripFences(response))
	if !ok {
		return nil, fmt.Errorf("%w: no JSON array found", ErrNoRelations)
	}

	var raw []relation
	if err := json.Unmarshal([]byte(repairJSON(body)), &raw); err != nil {
		return nil, err
	}

	rels := make([]core.Relationship, 0, len(raw))
	for _, r := range raw {
		if r.SourceName == "" || r.SourceType == "" || r.TargetName == "" ||
			r.TargetType == "" || r.RelationshipType == "" {
			continue
		}
		confidence := defaultConfidence
		if r.Confidence != nil {
			confidence = math.Min(1, math.Max(0, *r.Confidence))
		}
		rel := core.Relationship{
			SourceName:  r.SourceName,
			SourceType:  core.EntityType(r.SourceType),
			TargetName:  r.TargetName,
			TargetType:  core.EntityType(r.TargetType),
			Type:        core.RelationshipType(r.RelationshipType),
			Description: r.Description,
			Confidence:  confidence,
		}
		rel.Normalize()
		rels = append(rels, rel)
	}
	return rels, nil
}
