// Package encode turns dataset records into fixed-length or truncated token sequences.
package encode

import (
	"fmt"

	"github.com/lamim/tunekit/internal/tokenizer"
	"github.com/lamim/tunekit/pkg/models"
)

// Options controls truncation and padding of one sequence
type Options struct {
	MaxLength  int
	Padding    models.Padding
	PadID      int
	MaskPolicy models.MaskPolicy
}

// Sequence is a fitted token sequence.
// IDs and Mask always have the same length.
type Sequence struct {
	IDs  []int
	Mask []int
	// Content is how many leading positions hold real tokens (the rest is padding)
	Content int
	// Length is the token count before truncation
	Length    int
	Truncated bool
	Dropped   int
}

// Fit right-truncates ids to opts.MaxLength and, with PaddingMaxLength,
// right-pads with opts.PadID to exactly MaxLength. ids is not modified.
func Fit(ids []int, opts Options) Sequence {
	seq := Sequence{Length: len(ids)}

	content := ids
	if opts.MaxLength > 0 && len(content) > opts.MaxLength {
		seq.Truncated = true
		seq.Dropped = len(content) - opts.MaxLength
		content = content[:opts.MaxLength]
	}
	seq.Content = len(content)

	size := len(content)
	if opts.Padding == models.PaddingMaxLength && opts.MaxLength > size {
		size = opts.MaxLength
	}

	seq.IDs = make([]int, size)
	seq.Mask = make([]int, size)
	copy(seq.IDs, content)
	for i := range seq.IDs {
		if i >= seq.Content {
			seq.IDs[i] = opts.PadID
			continue
		}
		if opts.MaskPolicy == models.MaskPadTokenValue && seq.IDs[i] == opts.PadID {
			continue
		}
		seq.Mask[i] = 1
	}
	return seq
}

// Encoder tokenizes text and fits it to a sequence
type Encoder struct {
	tok tokenizer.Tokenizer
}

// NewEncoder creates an encoder backed by tok
func NewEncoder(tok tokenizer.Tokenizer) *Encoder {
	return &Encoder{tok: tok}
}

// Encode tokenizes text and fits the ids with opts
func (e *Encoder) Encode(text string, opts Options) (Sequence, error) {
	ids, err := e.tok.Encode(text)
	if err != nil {
		return Sequence{}, fmt.Errorf("failed to tokenize with %s: %w", e.tok.Name(), err)
	}
	return Fit(ids, opts), nil
}
