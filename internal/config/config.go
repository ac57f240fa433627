package config

import (
	"fmt"
	"os"

	"github.com/lamim/tunekit/pkg/models"
)

// Config represents the complete application configuration
type Config struct {
	Dataset     DatasetConfig     `toml:"dataset"`
	Transform   TransformConfig   `toml:"transform"`
	Tokenizer   TokenizerConfig   `toml:"tokenizer"`
	Encoding    EncodingConfig    `toml:"encoding"`
	Split       SplitConfig       `toml:"split"`
	Output      OutputConfig      `toml:"output"`
	HuggingFace HuggingFaceConfig `toml:"huggingface"`
}

// DatasetConfig points at the source JSONL file
type DatasetConfig struct {
	Path string `toml:"path"`
}

// TransformConfig holds settings for the record transformation stage
type TransformConfig struct {
	RewriteEscapedNewlines bool   `toml:"rewrite_escaped_newlines"` // Replace literal \n sequences in string fields (default: true)
	OutputPath             string `toml:"output_path"`              // Where rewritten records go (default: overwrite dataset.path)
	BackupOriginal         bool   `toml:"backup_original"`          // Keep <path>.orig before overwriting in place
	Reverse                bool   `toml:"reverse"`                  // Derive the swapped input/output dataset (default: true)
	ReverseOutputPath      string `toml:"reverse_output_path"`      // Default: <dataset stem>_reversed.jsonl next to the source
	ReverseCap             int    `toml:"reverse_cap"`              // Max reversed records (0 = default 200, negative = unlimited)
	InputField             string `toml:"input_field"`              // Default: input
	OutputField            string `toml:"output_field"`             // Default: output
}

// TokenizerConfig selects and configures the tokenizer backend
type TokenizerConfig struct {
	Backend  models.TokenizerBackend `toml:"backend"`   // tiktoken, huggingface, vocab (default: tiktoken)
	Encoding string                  `toml:"encoding"`  // tiktoken encoding name (default: r50k_base)
	Path     string                  `toml:"path"`      // tokenizer.json or vocab JSON for file-based backends
	EOSToken string                  `toml:"eos_token"` // Default: <|endoftext|>
	PadToken string                  `toml:"pad_token"` // Empty = reuse eos_token
	UnkToken string                  `toml:"unk_token"` // vocab backend only; empty = drop unknown characters
}

// EncodingConfig holds prompt construction and sequence fitting settings
type EncodingConfig struct {
	Mode             models.PromptMode   `toml:"mode"`               // dual or concatenated (default: concatenated)
	InputField       string              `toml:"input_field"`        // Default: code
	TargetField      string              `toml:"target_field"`       // Default: explanation
	PromptTemplate   string              `toml:"prompt_template"`    // Go template for concatenated mode
	MaxLength        int                 `toml:"max_length"`         // Default: 512 concatenated, 128 dual
	Padding          models.Padding      `toml:"padding"`            // Default: none concatenated, max_length dual
	MaskPolicy       models.MaskPolicy   `toml:"mask_policy"`        // Default: padding-only
	LabelPadding     models.LabelPadding `toml:"label_padding"`      // Default: pad
	FailOnSkip       bool                `toml:"fail_on_skip"`       // Abort when a record lacks a required field
	FailOnTruncation bool                `toml:"fail_on_truncation"` // Abort when any sequence is truncated
	FailOnError      bool                `toml:"fail_on_error"`      // Abort on tokenizer errors (default: true)
	CollateBatchSize int                 `toml:"collate_batch_size"` // Write dynamically padded batches of this size (0 = off)
}

// SplitConfig controls the train/test split of encoded examples
type SplitConfig struct {
	TestRatio float64 `toml:"test_ratio"` // Fraction held out for test (0 = no split)
	Seed      uint64  `toml:"seed"`       // Shuffle seed (default: 42)
}

// OutputConfig holds where and how encoded datasets are written
type OutputConfig struct {
	Dir    string              `toml:"dir"`    // Default: output
	Format models.OutputFormat `toml:"format"` // jsonl, parquet, sqlite (default: jsonl)
}

// HuggingFaceConfig holds Hugging Face Hub settings
type HuggingFaceConfig struct {
	RepoID string `toml:"repo_id"`
}

// Secrets holds sensitive credentials loaded from environment variables
type Secrets struct {
	HuggingFaceToken string
}

const (
	// MaxSequenceLength is the largest max_length accepted
	MaxSequenceLength = 1 << 20
	// MaxCollateBatchSize bounds encoding.collate_batch_size
	MaxCollateBatchSize = 65536
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Dataset.Path == "" {
		return fmt.Errorf("dataset.path is required")
	}

	// Transform
	if c.Transform.InputField == "" || c.Transform.OutputField == "" {
		return fmt.Errorf("transform.input_field and transform.output_field must not be empty")
	}
	if c.Transform.InputField == c.Transform.OutputField {
		return fmt.Errorf("transform.input_field and transform.output_field must differ (both %q)", c.Transform.InputField)
	}
	if c.Transform.Reverse && c.Transform.ReverseOutputPath == c.Dataset.Path {
		return fmt.Errorf("transform.reverse_output_path must not be the dataset path")
	}

	// Tokenizer
	switch c.Tokenizer.Backend {
	case models.TokenizerTiktoken:
		if c.Tokenizer.Encoding == "" {
			return fmt.Errorf("tokenizer.encoding is required for backend=tiktoken")
		}
	case models.TokenizerHuggingFace, models.TokenizerVocab:
		if c.Tokenizer.Path == "" {
			return fmt.Errorf("tokenizer.path is required for backend=%s", c.Tokenizer.Backend)
		}
	default:
		return fmt.Errorf("tokenizer.backend must be one of: tiktoken, huggingface, vocab (got %s)", c.Tokenizer.Backend)
	}
	if c.Tokenizer.EOSToken == "" {
		return fmt.Errorf("tokenizer.eos_token is required")
	}

	// Encoding
	if c.Encoding.Mode != models.PromptModeDual && c.Encoding.Mode != models.PromptModeConcatenated {
		return fmt.Errorf("encoding.mode must be one of: dual, concatenated (got %s)", c.Encoding.Mode)
	}
	if c.Encoding.InputField == "" || c.Encoding.TargetField == "" {
		return fmt.Errorf("encoding.input_field and encoding.target_field must not be empty")
	}
	if c.Encoding.MaxLength < 1 {
		return fmt.Errorf("encoding.max_length must be at least 1")
	}
	if c.Encoding.MaxLength > MaxSequenceLength {
		return fmt.Errorf("encoding.max_length must not exceed %d (got %d)", MaxSequenceLength, c.Encoding.MaxLength)
	}
	if c.Encoding.Padding != models.PaddingMaxLength && c.Encoding.Padding != models.PaddingNone {
		return fmt.Errorf("encoding.padding must be one of: max_length, none (got %s)", c.Encoding.Padding)
	}
	if c.Encoding.MaskPolicy != models.MaskPaddingOnly && c.Encoding.MaskPolicy != models.MaskPadTokenValue {
		return fmt.Errorf("encoding.mask_policy must be one of: padding-only, pad-token-value (got %s)", c.Encoding.MaskPolicy)
	}
	if c.Encoding.LabelPadding != models.LabelPaddingPad && c.Encoding.LabelPadding != models.LabelPaddingIgnore {
		return fmt.Errorf("encoding.label_padding must be one of: pad, ignore (got %s)", c.Encoding.LabelPadding)
	}
	if c.Encoding.CollateBatchSize < 0 || c.Encoding.CollateBatchSize > MaxCollateBatchSize {
		return fmt.Errorf("encoding.collate_batch_size must be between 0 and %d (got %d)", MaxCollateBatchSize, c.Encoding.CollateBatchSize)
	}
	if c.Encoding.Mode == models.PromptModeDual && c.Encoding.Padding == models.PaddingNone {
		fmt.Fprintf(os.Stderr, "WARNING: encoding.padding=none in dual mode yields inputs and labels of different lengths\n")
	}
	if c.Encoding.Mode == models.PromptModeDual && c.Encoding.InputField == c.Encoding.TargetField {
		return fmt.Errorf("encoding.input_field and encoding.target_field must differ in dual mode")
	}

	// Split
	if c.Split.TestRatio < 0 || c.Split.TestRatio >= 1.0 {
		return fmt.Errorf("split.test_ratio must be in [0.0, 1.0) (got %.2f)", c.Split.TestRatio)
	}

	// Output
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	switch c.Output.Format {
	case models.OutputFormatJSONL, models.OutputFormatParquet, models.OutputFormatSQLite:
	default:
		return fmt.Errorf("output.format must be one of: jsonl, parquet, sqlite (got %s)", c.Output.Format)
	}

	return nil
}

// LoadSecrets loads sensitive credentials from environment variables
func LoadSecrets() (*Secrets, error) {
	return &Secrets{
		HuggingFaceToken: os.Getenv("HUGGING_FACE_TOKEN"),
	}, nil
}
