package encode

import (
	"errors"
	"fmt"

	"github.com/lamim/tunekit/internal/util"
	"github.com/lamim/tunekit/pkg/models"
)

// ErrMissingField is returned when a record lacks a required string field.
var ErrMissingField = errors.New("missing required field")

// PromptConfig controls how a record becomes model input
type PromptConfig struct {
	Mode        models.PromptMode
	InputField  string // "code" in the reference datasets
	TargetField string // "explanation" in the reference datasets
	Template    string // concatenated mode only
	EOS         string
}

// Prompt is the text to tokenize for one record.
// Target is empty in concatenated mode.
type Prompt struct {
	Input  string
	Target string
}

// BuildPrompt turns a record into prompt text.
// Empty strings are valid; a missing or non-string field returns ErrMissingField.
func BuildPrompt(rec models.Record, cfg PromptConfig) (Prompt, error) {
	input, ok := rec.String(cfg.InputField)
	if !ok {
		return Prompt{}, fmt.Errorf("%w: %s", ErrMissingField, cfg.InputField)
	}
	target, ok := rec.String(cfg.TargetField)
	if !ok {
		return Prompt{}, fmt.Errorf("%w: %s", ErrMissingField, cfg.TargetField)
	}

	switch cfg.Mode {
	case models.PromptModeDual:
		return Prompt{Input: input, Target: target}, nil
	case models.PromptModeConcatenated:
		text, err := util.RenderTemplate(cfg.Template, templateData(rec, input, target, cfg.EOS))
		if err != nil {
			return Prompt{}, fmt.Errorf("failed to render prompt: %w", err)
		}
		return Prompt{Input: text}, nil
	default:
		return Prompt{}, fmt.Errorf("unsupported prompt mode: %s", cfg.Mode)
	}
}

func templateData(rec models.Record, input, target, eos string) map[string]any {
	fields := make(map[string]string, rec.Len())
	for _, key := range rec.Keys() {
		if s, ok := rec.String(key); ok {
			fields[key] = s
		}
	}
	return map[string]any{
		"Code":        input,
		"Explanation": target,
		"EOS":         eos,
		"Fields":      fields,
	}
}
