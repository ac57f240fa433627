package config

const (
	// DefaultReverseCap is how many reversed records the transform keeps
	DefaultReverseCap = 200
	// DefaultTiktokenEncoding is the GPT-2 vocabulary
	DefaultTiktokenEncoding = "r50k_base"
	// DefaultEOSToken is GPT-2's end-of-text marker
	DefaultEOSToken = "<|endoftext|>"
	// DefaultConcatenatedMaxLength bounds single-prompt sequences
	DefaultConcatenatedMaxLength = 512
	// DefaultDualMaxLength bounds each side of a dual-mode example
	DefaultDualMaxLength = 128
	// DefaultSplitSeed seeds the train/test shuffle
	DefaultSplitSeed = 42
)

// GetDefaultPromptTemplate returns the default template for concatenated prompts.
// Available fields: {{.Code}}, {{.Explanation}}, {{.EOS}}, plus {{.Fields.<name>}} for
// any other string field of the record.
func GetDefaultPromptTemplate() string {
	return "{{.Code}}\nExplanation: {{.Explanation}} {{.EOS}}"
}
