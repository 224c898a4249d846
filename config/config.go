// Copyright 2026 The Kraken Authors
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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultIntervalMinutes is the pause between scheduled sync rounds.
	DefaultIntervalMinutes = 10

	// MinIntervalMinutes and MaxIntervalMinutes bound the sync interval.
	MinIntervalMinutes = 1
	MaxIntervalMinutes = 1440

	// DefaultDataDir holds the local database when unset.
	DefaultDataDir = "./data"

	// DefaultCollection is the vector collection name when a remote
	// index is configured.
	DefaultCollection = "kraken"

	// DefaultPoolSize is the number of channels synced concurrently.
	DefaultPoolSize = 4
)

var (
	// ErrMissingSlackToken is returned when SLACK_BOT_TOKEN is unset.
	ErrMissingSlackToken = errors.New("config: SLACK_BOT_TOKEN is required")

	// ErrMissingEmbeddingToken is returned when OPENAI_API_KEY is unset.
	ErrMissingEmbeddingToken = errors.New("config: OPENAI_API_KEY is required")

	// ErrNoChannels is returned when SLACK_CHANNELS is unset or empty.
	ErrNoChannels = errors.New("config: SLACK_CHANNELS is required")

	// ErrInvalidChannel is returned for a malformed channel ID.
	ErrInvalidChannel = errors.New("config: invalid channel ID")

	// ErrInvalidInterval is returned for a sync interval outside
	// [MinIntervalMinutes, MaxIntervalMinutes].
	ErrInvalidInterval = errors.New("config: sync interval out of range")
)

// Config is the fully resolved process configuration.
type Config struct {
	// Slack connector.
	SlackToken string
	Channels   []string

	// Scheduler.
	Interval time.Duration
	PoolSize int

	// Embedding provider.
	EmbeddingHost      string
	EmbeddingToken     string
	EmbeddingModel     string
	EmbeddingDimension int
	EmbeddingBatch     int

	// Remote vector index. Empty URL selects the local index.
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	// Local storage.
	DataDir string

	// Search defaults.
	SearchThreshold float64
	SearchLimit     int
}

// Load reads configuration from the environment and validates it.
// Warnings about legal but risky values go to logger.
func Load(logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := &Config{
		SlackToken:         os.Getenv("SLACK_BOT_TOKEN"),
		Channels:           splitChannels(os.Getenv("SLACK_CHANNELS")),
		EmbeddingHost:      os.Getenv("OPENAI_BASE_URL"),
		EmbeddingToken:     os.Getenv("OPENAI_API_KEY"),
		EmbeddingModel:     os.Getenv("EMBEDDING_MODEL"),
		QdrantURL:          os.Getenv("QDRANT_URL"),
		QdrantAPIKey:       os.Getenv("QDRANT_API_KEY"),
		QdrantCollection:   envOr("QDRANT_COLLECTION", DefaultCollection),
		DataDir:            envOr("KRAKEN_DATA_DIR", DefaultDataDir),
		SearchThreshold:    0.35,
		SearchLimit:        5,
		PoolSize:           DefaultPoolSize,
		EmbeddingDimension: 0, // provider default unless overridden
	}

	minutes := DefaultIntervalMinutes
	if raw := os.Getenv("SYNC_INTERVAL_MINUTES"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("config: SYNC_INTERVAL_MINUTES: %w", err)
		}
		minutes = parsed
	}
	if minutes < MinIntervalMinutes || minutes > MaxIntervalMinutes {
		return nil, fmt.Errorf("%w: %d minutes (allowed %d-%d)",
			ErrInvalidInterval, minutes, MinIntervalMinutes, MaxIntervalMinutes)
	}
	if minutes < 5 {
		logger.Warn("sync interval below 5 minutes risks provider rate limits",
			"intervalMinutes", minutes)
	}
	cfg.Interval = time.Duration(minutes) * time.Minute

	if err := parseIntEnv("EMBEDDING_DIMENSION", &cfg.EmbeddingDimension); err != nil {
		return nil, err
	}
	if err := parseIntEnv("EMBEDDING_BATCH_LIMIT", &cfg.EmbeddingBatch); err != nil {
		return nil, err
	}
	if err := parseIntEnv("SYNC_POOL_SIZE", &cfg.PoolSize); err != nil {
		return nil, err
	}
	if err := parseIntEnv("SEARCH_LIMIT", &cfg.SearchLimit); err != nil {
		return nil, err
	}
	if raw := os.Getenv("SEARCH_THRESHOLD"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("config: SEARCH_THRESHOLD: %w", err)
		}
		cfg.SearchThreshold = parsed
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and channel ID shapes.
func (c *Config) Validate() error {
	if c.SlackToken == "" {
		return ErrMissingSlackToken
	}
	if c.EmbeddingToken == "" {
		return ErrMissingEmbeddingToken
	}
	if len(c.Channels) == 0 {
		return ErrNoChannels
	}
	for _, channel := range c.Channels {
		if !ValidChannelID(channel) {
			return fmt.Errorf("%w: %q", ErrInvalidChannel, channel)
		}
	}
	if c.SearchThreshold < 0 || c.SearchThreshold > 1 {
		return fmt.Errorf("config: search threshold %v out of [0, 1]", c.SearchThreshold)
	}
	return nil
}

// ValidChannelID reports whether id looks like a Slack channel ID:
// a leading 'C' followed by at least eight uppercase letters or digits.
func ValidChannelID(id string) bool {
	if len(id) < 9 || id[0] != 'C' {
		return false
	}
	for _, r := range id[1:] {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func splitChannels(raw string) []string {
	var channels []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			channels = append(channels, part)
		}
	}
	return channels
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseIntEnv(key string, dst *int) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = parsed
	return nil
}
