// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// LoadOptions controls how configs are loaded
type LoadOptions struct {
	// AllowUnknownFields ignores unknown HCL fields (useful for forward compat)
	AllowUnknownFields bool

	// Env supplies environment overrides; nil means the process environment.
	Env func(string) string

	// SkipValidation returns the config even when Validate fails.
	SkipValidation bool
}

// DefaultLoadOptions returns sensible defaults for loading configs
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{}
}

// LoadFile loads a config file (HCL or JSON), applies environment overrides
// and defaults, and validates the result.
func LoadFile(path string) (*Config, error) {
	return LoadFileWithOptions(path, DefaultLoadOptions())
}

// LoadFileWithOptions loads a config file with explicit options
func LoadFileWithOptions(path string, opts LoadOptions) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg *Config
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".hcl":
		cfg, err = parseHCL(data, path, opts)
	case ".json":
		cfg, err = parseJSON(data)
	default:
		// Try HCL first
		var hclErr, jsonErr error
		cfg, hclErr = parseHCL(data, path, opts)
		if hclErr != nil {
			// Fall back to JSON
			cfg, jsonErr = parseJSON(data)
			if jsonErr != nil {
				err = fmt.Errorf("failed to parse config as HCL: %w (JSON fallback error: %v)", hclErr, jsonErr)
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return finish(cfg, opts)
}

// LoadHCL loads config from HCL bytes
func LoadHCL(data []byte, filename string, opts LoadOptions) (*Config, error) {
	cfg, err := parseHCL(data, filename, opts)
	if err != nil {
		return nil, err
	}
	return finish(cfg, opts)
}

// LoadJSON loads config from JSON bytes
func LoadJSON(data []byte, opts LoadOptions) (*Config, error) {
	cfg, err := parseJSON(data)
	if err != nil {
		return nil, err
	}
	return finish(cfg, opts)
}

// FromEnv builds a config from defaults and environment overrides only, for
// running without a config file.
func FromEnv(opts LoadOptions) (*Config, error) {
	return finish(&Config{}, opts)
}

func parseHCL(data []byte, filename string, opts LoadOptions) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL: %w", diags)
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() && !opts.AllowUnknownFields {
		for _, diag := range diags {
			if diag.Severity == hcl.DiagError {
				return nil, fmt.Errorf("failed to decode HCL: %w", diags)
			}
		}
	}
	return &config, nil
}

func parseJSON(data []byte) (*Config, error) {
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return &config, nil
}

func finish(cfg *Config, opts LoadOptions) (*Config, error) {
	if cfg.SchemaVersion != "" && cfg.SchemaVersion != CurrentSchemaVersion {
		return nil, fmt.Errorf("config version %s is not supported (want %s)", cfg.SchemaVersion, CurrentSchemaVersion)
	}

	getenv := opts.Env
	if getenv == nil {
		getenv = os.Getenv
	}
	ApplyEnv(cfg, getenv)
	cfg.ApplyDefaults()

	if !opts.SkipValidation {
		if errs := cfg.Validate(); errs.HasErrors() {
			return nil, errs
		}
	}
	return cfg, nil
}
