package llm

import (
	"errors"
	"strings"
)

// Config holds configuration for the relation extractor.
type Config struct {
	// Host is the base URL of the OpenAI-compatible API.
	// Example: "http://localhost:11434/v1"
	Host string

	// Model is the chat model identifier.
	// Example: "llama-3.3-70b-versatile"
	Model string

	// Token is the API token. Local servers usually accept any value.
	// Default: "none"
	Token string

	// Temperature is the sampling temperature.
	// Default: 0.3
	Temperature float64

	// MaxTokens caps the response length.
	// Default: 1024
	MaxTokens int

	// MaxAttempts is the number of model calls per document before giving up.
	// Default: 2
	MaxAttempts int

	// RequestsPerSecond limits call rate. Zero means unlimited.
	RequestsPerSecond float64
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithHost sets the API base URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.Host = host
	}
}

// WithModel sets the model identifier.
func WithModel(model string) ConfigOption {
	return func(c *Config) {
		c.Model = model
	}
}

// WithToken sets the API token.
func WithToken(token string) ConfigOption {
	return func(c *Config) {
		c.Token = token
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ConfigOption {
	return func(c *Config) {
		c.Temperature = t
	}
}

// WithMaxAttempts sets the number of model calls per document.
func WithMaxAttempts(n int) ConfigOption {
	return func(c *Config) {
		c.MaxAttempts = n
	}
}

// WithRequestsPerSecond sets the call rate limit.
func WithRequestsPerSecond(rps float64) ConfigOption {
	return func(c *Config) {
		c.RequestsPerSecond = rps
	}
}

// NewConfig creates a Config with defaults and applies opts.
func NewConfig(opts ...ConfigOption) *Config {
	c := &Config{
		Token:       "none",
		Temperature: 0.3,
		MaxTokens:   1024,
		MaxAttempts: 2,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Normalize()
	return c
}

// Normalize trims string fields and fills zero values with defaults.
func (c *Config) Normalize() {
	c.Host = strings.TrimSpace(c.Host)
	c.Model = strings.TrimSpace(c.Model)
	c.Token = strings.TrimSpace(c.Token)
	if c.Token == "" {
		c.Token = "none"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 2
	}
}

// Validate checks that the configuration can build a client.
func (c *Config) Validate() error {
	if c.Host == "" {
		return ErrHostRequired
	}
	if c.Model == "" {
		return ErrModelRequired
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return ErrInvalidTemperature
	}
	if c.RequestsPerSecond < 0 {
		return ErrInvalidRate
	}
	return nil
}

var (
	// ErrHostRequired indicates the API host is missing.
	ErrHostRequired = errors.New("llm host is required")

	// ErrModelRequired indicates the model is missing.
	ErrModelRequired = errors.New("llm model is required")

	// ErrInvalidTemperature indicates a temperature outside 0..2.
	ErrInvalidTemperature = errors.New("temperature must be between 0 and 2")

	// ErrInvalidRate indicates a negative rate limit.
	ErrInvalidRate = errors.New("requests per second cannot be negative")

	// ErrNoRelations indicates no attempt produced a parseable response.
	ErrNoRelations = errors.New("no parseable relations in model response")
)
