package config

import (
	"fmt"
	"text/template"
	"unicode"
)

const (
	// MaxFieldNameLength is the maximum allowed length for record field names
	MaxFieldNameLength = 128

	// MaxTokenLength is the maximum allowed length for special token strings
	MaxTokenLength = 64

	// MaxTemplateSize is the maximum allowed size for template content
	MaxTemplateSize = 50 * 1024 // 50KB

	// MaxRepoIDLength bounds huggingface.repo_id
	MaxRepoIDLength = 96
)

// ValidateInputs performs additional security validation on user-controllable fields.
func (c *Config) ValidateInputs() error {
	paths := []struct {
		name  string
		value string
	}{
		{"dataset.path", c.Dataset.Path},
		{"transform.output_path", c.Transform.OutputPath},
		{"transform.reverse_output_path", c.Transform.ReverseOutputPath},
		{"tokenizer.path", c.Tokenizer.Path},
		{"output.dir", c.Output.Dir},
	}
	for _, p := range paths {
		if containsControlChars(p.value) || containsLineBreaks(p.value) {
			return fmt.Errorf("%s contains invalid control characters", p.name)
		}
	}

	fields := []struct {
		name  string
		value string
	}{
		{"transform.input_field", c.Transform.InputField},
		{"transform.output_field", c.Transform.OutputField},
		{"encoding.input_field", c.Encoding.InputField},
		{"encoding.target_field", c.Encoding.TargetField},
	}
	for _, f := range fields {
		if err := validateFieldName(f.name, f.value); err != nil {
			return err
		}
	}

	tokens := []struct {
		name  string
		value string
	}{
		{"tokenizer.eos_token", c.Tokenizer.EOSToken},
		{"tokenizer.pad_token", c.Tokenizer.PadToken},
		{"tokenizer.unk_token", c.Tokenizer.UnkToken},
	}
	for _, tok := range tokens {
		if len(tok.value) > MaxTokenLength {
			return fmt.Errorf("%s exceeds maximum length of %d (got %d)", tok.name, MaxTokenLength, len(tok.value))
		}
		if containsControlChars(tok.value) {
			return fmt.Errorf("%s contains invalid control characters", tok.name)
		}
	}

	if err := validateTemplate(c.Encoding.PromptTemplate); err != nil {
		return fmt.Errorf("invalid encoding.prompt_template: %w", err)
	}

	if len(c.HuggingFace.RepoID) > MaxRepoIDLength {
		return fmt.Errorf("huggingface.repo_id exceeds maximum length of %d (got %d)", MaxRepoIDLength, len(c.HuggingFace.RepoID))
	}

	return nil
}

// validateFieldName checks a record field name for length and control characters
func validateFieldName(key, name string) error {
	if len(name) > MaxFieldNameLength {
		return fmt.Errorf("%s exceeds maximum length of %d (got %d)", key, MaxFieldNameLength, len(name))
	}
	if containsControlChars(name) || containsLineBreaks(name) {
		return fmt.Errorf("%s contains invalid control characters", key)
	}
	return nil
}

// validateTemplate checks size and that the template parses
func validateTemplate(tmpl string) error {
	if len(tmpl) > MaxTemplateSize {
		return fmt.Errorf("exceeds maximum size of %d bytes (got %d)", MaxTemplateSize, len(tmpl))
	}
	if containsControlChars(tmpl) {
		return fmt.Errorf("contains invalid control characters")
	}
	if _, err := template.New("prompt").Option("missingkey=error").Parse(tmpl); err != nil {
		return fmt.Errorf("failed to parse: %w", err)
	}
	return nil
}

// containsControlChars checks if a string contains control characters
// (excluding newlines, tabs, and carriage returns which are acceptable)
func containsControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return true
		}
	}
	return false
}

func containsLineBreaks(s string) bool {
	for _, r := range s {
		if r == '\n' || r == '\r' {
			return true
		}
	}
	return false
}
