package tokenizer

import (
	"fmt"
	"path/filepath"

	hf "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// HuggingFace wraps a tokenizer.json pipeline.
type HuggingFace struct {
	path string
	tk   *hf.Tokenizer
}

// NewHuggingFace loads a tokenizer.json file.
func NewHuggingFace(path string) (*HuggingFace, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %s: %w", path, err)
	}
	return &HuggingFace{path: path, tk: tk}, nil
}

func (h *HuggingFace) Name() string {
	return "huggingface:" + filepath.Base(h.path)
}

// Encode runs the full normalise/pre-tokenise/model pipeline without
// post-processor special tokens.
func (h *HuggingFace) Encode(text string) ([]int, error) {
	enc, err := h.tk.EncodeSingle(text, false)
	if err != nil {
		return nil, fmt.Errorf("failed to encode: %w", err)
	}
	return append([]int(nil), enc.Ids...), nil
}

func (h *HuggingFace) TokenID(token string) (int, bool) {
	return h.tk.TokenToId(token)
}
