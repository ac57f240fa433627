package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/lamim/tunekit/pkg/models"
)

// Load reads and parses the configuration file and environment variables
func Load(configPath string) (*Config, *Secrets, error) {
	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, nil, err
	}

	// Load secrets from environment
	secrets, err := LoadSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	return cfg, secrets, nil
}

// Parse decodes TOML bytes, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	// Booleans that default to true are seeded before decoding so an
	// explicit false in the file still wins.
	cfg := Config{
		Transform: TransformConfig{
			RewriteEscapedNewlines: true,
			Reverse:                true,
		},
		Encoding: EncodingConfig{
			FailOnError: true,
		},
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Additional input security validation
	if err := cfg.ValidateInputs(); err != nil {
		return nil, fmt.Errorf("input validation failed: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	// Transform defaults
	if cfg.Transform.InputField == "" {
		cfg.Transform.InputField = "input"
	}
	if cfg.Transform.OutputField == "" {
		cfg.Transform.OutputField = "output"
	}
	// NOTE: TOML can't distinguish 0 from unset, so:
	// - Unset (0) → 200
	// - Negative → unlimited
	if cfg.Transform.ReverseCap == 0 {
		cfg.Transform.ReverseCap = DefaultReverseCap
	}
	if cfg.Transform.ReverseOutputPath == "" && cfg.Dataset.Path != "" {
		cfg.Transform.ReverseOutputPath = ReversedPath(cfg.Dataset.Path)
	}

	// Tokenizer defaults
	if cfg.Tokenizer.Backend == "" {
		cfg.Tokenizer.Backend = models.TokenizerTiktoken
	}
	if cfg.Tokenizer.Encoding == "" {
		cfg.Tokenizer.Encoding = DefaultTiktokenEncoding
	}
	if cfg.Tokenizer.EOSToken == "" {
		cfg.Tokenizer.EOSToken = DefaultEOSToken
	}

	// Encoding defaults depend on the prompt mode
	if cfg.Encoding.Mode == "" {
		cfg.Encoding.Mode = models.PromptModeConcatenated
	}
	if cfg.Encoding.InputField == "" {
		cfg.Encoding.InputField = "code"
	}
	if cfg.Encoding.TargetField == "" {
		cfg.Encoding.TargetField = "explanation"
	}
	if cfg.Encoding.PromptTemplate == "" {
		cfg.Encoding.PromptTemplate = GetDefaultPromptTemplate()
	}
	if cfg.Encoding.MaxLength == 0 {
		if cfg.Encoding.Mode == models.PromptModeDual {
			cfg.Encoding.MaxLength = DefaultDualMaxLength
		} else {
			cfg.Encoding.MaxLength = DefaultConcatenatedMaxLength
		}
	}
	if cfg.Encoding.Padding == "" {
		if cfg.Encoding.Mode == models.PromptModeDual {
			cfg.Encoding.Padding = models.PaddingMaxLength
		} else {
			cfg.Encoding.Padding = models.PaddingNone
		}
	}
	if cfg.Encoding.MaskPolicy == "" {
		cfg.Encoding.MaskPolicy = models.MaskPaddingOnly
	}
	if cfg.Encoding.LabelPadding == "" {
		cfg.Encoding.LabelPadding = models.LabelPaddingPad
	}

	// Split defaults
	if cfg.Split.Seed == 0 {
		cfg.Split.Seed = DefaultSplitSeed
	}

	// Output defaults
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "output"
	}
	if cfg.Output.Format == "" {
		cfg.Output.Format = models.OutputFormatJSONL
	}
}

// ReversedPath returns the default location of the reversed dataset for a source file
func ReversedPath(datasetPath string) string {
	ext := filepath.Ext(datasetPath)
	stem := strings.TrimSuffix(filepath.Base(datasetPath), ext)
	if ext == "" {
		ext = ".jsonl"
	}
	return filepath.Join(filepath.Dir(datasetPath), stem+"_reversed"+ext)
}
