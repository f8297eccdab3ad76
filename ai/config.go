package ai

import (
	"time"

	"github.com/versecraft/lyricmem/internal/profile"
)

// Config represents AI configuration.
type Config struct {
	Embedding EmbeddingConfig
	Labeler   LabelerConfig
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider     string
	Model        string
	APIKey       string
	BaseURL      string
	Dimensions   int
	Timeout      time.Duration
	RateLimitQPS float64
}

// LabelerConfig represents the model-backed labeler configuration.
type LabelerConfig struct {
	Model     string
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	BatchSize int
	Enabled   bool
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:     p.AIEmbeddingProvider,
			Model:        p.AIEmbeddingModel,
			APIKey:       p.AIEmbeddingAPIKey,
			BaseURL:      p.AIEmbeddingBaseURL,
			Dimensions:   p.EmbeddingDimensions,
			Timeout:      time.Duration(p.EmbeddingTimeout) * time.Second,
			RateLimitQPS: p.EmbeddingRateLimitQPS,
		},
		Labeler: LabelerConfig{
			Model:     p.AILabelerModel,
			APIKey:    p.AILabelerAPIKey,
			BaseURL:   p.AILabelerBaseURL,
			Timeout:   time.Duration(p.AILabelerTimeout) * time.Second,
			BatchSize: 8,
			Enabled:   p.IsLabelerEnabled(),
		},
	}
}
