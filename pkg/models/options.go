package models

// PromptMode selects how a record becomes model input
type PromptMode string

const (
	// PromptModeDual tokenizes code and explanation separately; labels come from the explanation
	PromptModeDual PromptMode = "dual"
	// PromptModeConcatenated joins code and explanation into one causal-LM prompt
	PromptModeConcatenated PromptMode = "concatenated"
)

// Padding selects whether sequences are padded at encode time
type Padding string

const (
	// PaddingMaxLength pads every sequence to the configured maximum length
	PaddingMaxLength Padding = "max_length"
	// PaddingNone only truncates; padding happens during batch collation
	PaddingNone Padding = "none"
)

// MaskPolicy decides which positions get a zero attention mask
type MaskPolicy string

const (
	// MaskPaddingOnly zeroes only positions introduced by padding
	MaskPaddingOnly MaskPolicy = "padding-only"
	// MaskPadTokenValue also zeroes genuine content whose id equals the pad id
	MaskPadTokenValue MaskPolicy = "pad-token-value"
)

// LabelPadding selects what label positions hold where the target was padded
type LabelPadding string

const (
	// LabelPaddingPad keeps the pad id in labels
	LabelPaddingPad LabelPadding = "pad"
	// LabelPaddingIgnore writes IgnoreIndex into padded label positions
	LabelPaddingIgnore LabelPadding = "ignore"
)

// OutputFormat selects the encoded dataset sink
type OutputFormat string

const (
	OutputFormatJSONL   OutputFormat = "jsonl"
	OutputFormatParquet OutputFormat = "parquet"
	OutputFormatSQLite  OutputFormat = "sqlite"
)

// TokenizerBackend selects the tokenizer implementation
type TokenizerBackend string

const (
	TokenizerTiktoken    TokenizerBackend = "tiktoken"
	TokenizerHuggingFace TokenizerBackend = "huggingface"
	TokenizerVocab       TokenizerBackend = "vocab"
)
