package tokenizer

import (
	"fmt"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Tiktoken wraps a tiktoken BPE encoding.
type Tiktoken struct {
	encoding string
	bpe      *tiktoken.Tiktoken
	allowed  []string
}

// NewTiktoken loads an encoding by name. Tokens listed in specials are
// recognised inside text; other special tokens are encoded as plain text.
// The BPE ranks are fetched on first use and cached under TIKTOKEN_CACHE_DIR.
func NewTiktoken(encoding string, specials []string) (*Tiktoken, error) {
	bpe, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %s: %w", encoding, err)
	}
	return &Tiktoken{
		encoding: encoding,
		bpe:      bpe,
		allowed:  append([]string(nil), specials...),
	}, nil
}

func (t *Tiktoken) Name() string {
	return "tiktoken:" + t.encoding
}

func (t *Tiktoken) Encode(text string) ([]int, error) {
	return t.bpe.Encode(text, t.allowed, nil), nil
}

// TokenID returns the id of token when it encodes to exactly one id.
func (t *Tiktoken) TokenID(token string) (int, bool) {
	if token == "" {
		return 0, false
	}
	ids := t.bpe.Encode(token, []string{token}, nil)
	if len(ids) != 1 {
		return 0, false
	}
	return ids[0], true
}
