// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the similarity-review engine configuration.
//
// Precedence, lowest to highest: embedded defaults, caller-supplied YAML,
// REVIEW_* environment variables.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Defaults
// =============================================================================

//go:embed review.defaults.yaml
var defaultsYAML []byte

// MaxYAMLFileSize bounds config files accepted by Load.
const MaxYAMLFileSize = 1 << 20

// =============================================================================
// Configuration Types
// =============================================================================

// Config holds all tunables of the review engine.
//
// Description:
//
//	Loaded once at startup and passed by value to the engine and the
//	service surface; nothing mutates it afterwards.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type Config struct {
	// Enabled gates the whole review surface. When false the service
	// answers health checks but rejects index and run requests.
	Enabled bool `yaml:"enabled"`

	// MinConfidence is the resolution confidence floor. Candidates below
	// it are discarded silently.
	MinConfidence float64 `yaml:"min_confidence" validate:"gte=0,lte=1"`

	// MaxFileBytes is the per-file size cap for parsing. Oversize files
	// are recorded as skipped, never parsed.
	MaxFileBytes int `yaml:"max_file_bytes" validate:"gt=0"`

	// SupportedLanguages restricts which parser grammars are active.
	SupportedLanguages []string `yaml:"supported_languages" validate:"min=1,dive,oneof=python javascript typescript go"`

	// WorkerCount bounds the parallel indexing workers. Zero means one
	// worker per CPU.
	WorkerCount int `yaml:"worker_count" validate:"gte=0"`

	// MaxIndexedSnapshots is the per-repository snapshot retention limit.
	MaxIndexedSnapshots int `yaml:"max_indexed_snapshots" validate:"gt=0"`

	// ReturnMisuseAdvisory toggles the low-severity return-usage checks.
	ReturnMisuseAdvisory bool `yaml:"return_misuse_advisory"`
}

var validate = validator.New()

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	return nil
}

// SupportsLanguage reports whether the given language is enabled.
func (c *Config) SupportsLanguage(lang string) bool {
	for _, l := range c.SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}

// =============================================================================
// Loading
// =============================================================================

// Default returns the embedded default configuration.
//
// Outputs:
//
//	Config - Always valid; the embedded defaults are covered by tests.
func Default() Config {
	cfg, err := Load(nil)
	if err != nil {
		// Embedded defaults failing to load is a programming error.
		panic(fmt.Sprintf("config: embedded defaults invalid: %v", err))
	}
	return cfg
}

// Load builds a Config from the embedded defaults, an optional YAML
// overlay, and REVIEW_* environment variables, then validates it.
//
// Inputs:
//
//	overlay - Optional YAML bytes layered over the defaults. May be nil.
//
// Outputs:
//
//	Config - The merged, validated configuration.
//	error - Non-nil if parsing or validation fails.
func Load(overlay []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing embedded defaults: %w", err)
	}

	if len(overlay) > 0 {
		if len(overlay) > MaxYAMLFileSize {
			return Config{}, fmt.Errorf("config: overlay exceeds maximum size (%d > %d)", len(overlay), MaxYAMLFileSize)
		}
		if err := yaml.Unmarshal(overlay, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing overlay: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads a YAML file and layers it over the defaults.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg, err := Load(data)
	if err != nil {
		return Config{}, err
	}
	slog.Info("review config loaded",
		slog.String("path", path),
		slog.Bool("enabled", cfg.Enabled),
		slog.Float64("min_confidence", cfg.MinConfidence),
		slog.Int("languages", len(cfg.SupportedLanguages)))
	return cfg, nil
}

// =============================================================================
// Environment Overrides
// =============================================================================

// Environment variable names recognized by applyEnv.
const (
	EnvEnabled              = "REVIEW_ENABLED"
	EnvMinConfidence        = "REVIEW_MIN_CONFIDENCE"
	EnvMaxFileBytes         = "REVIEW_MAX_FILE_BYTES"
	EnvSupportedLanguages   = "REVIEW_SUPPORTED_LANGUAGES"
	EnvWorkerCount          = "REVIEW_WORKER_COUNT"
	EnvMaxIndexedSnapshots  = "REVIEW_MAX_INDEXED_SNAPSHOTS"
	EnvReturnMisuseAdvisory = "REVIEW_RETURN_MISUSE_ADVISORY"
)

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvEnabled); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvEnabled, err)
		}
		cfg.Enabled = b
	}
	if v, ok := os.LookupEnv(EnvMinConfidence); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvMinConfidence, err)
		}
		cfg.MinConfidence = f
	}
	if v, ok := os.LookupEnv(EnvMaxFileBytes); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvMaxFileBytes, err)
		}
		cfg.MaxFileBytes = n
	}
	if v, ok := os.LookupEnv(EnvSupportedLanguages); ok {
		var langs []string
		for _, l := range strings.Split(v, ",") {
			if l = strings.TrimSpace(l); l != "" {
				langs = append(langs, l)
			}
		}
		cfg.SupportedLanguages = langs
	}
	if v, ok := os.LookupEnv(EnvWorkerCount); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvWorkerCount, err)
		}
		cfg.WorkerCount = n
	}
	if v, ok := os.LookupEnv(EnvMaxIndexedSnapshots); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvMaxIndexedSnapshots, err)
		}
		cfg.MaxIndexedSnapshots = n
	}
	if v, ok := os.LookupEnv(EnvReturnMisuseAdvisory); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvReturnMisuseAdvisory, err)
		}
		cfg.ReturnMisuseAdvisory = b
	}
	return nil
}
