// Package tokenizer maps text to token ids through one of several backends.
//
// Supported backends:
//   - tiktoken: OpenAI BPE encodings (r50k_base is the GPT-2 vocabulary)
//   - huggingface: any tokenizer.json loadable by github.com/sugarme/tokenizer
//   - vocab: an offline greedy longest-match tokenizer over a JSON vocabulary
package tokenizer

import (
	"errors"
	"fmt"

	"github.com/lamim/tunekit/internal/config"
	"github.com/lamim/tunekit/pkg/models"
)

// ErrUnknownToken is returned when a special token is not in the vocabulary.
var ErrUnknownToken = errors.New("token not in vocabulary")

// Tokenizer converts text to token ids.
type Tokenizer interface {
	// Name identifies the backend and vocabulary, e.g. "tiktoken:r50k_base".
	Name() string
	// Encode returns the ids for text without adding any special tokens.
	// Special tokens spelled out in text are recognised as single ids.
	Encode(text string) ([]int, error)
	// TokenID looks up the id of a single token string.
	TokenID(token string) (int, bool)
}

// Specials holds resolved special token ids.
type Specials struct {
	EOS      string
	EOSID    int
	Pad      string
	PadID    int
	PadIsEOS bool
}

// ResolveSpecials looks up the EOS and pad ids. An empty pad token reuses EOS.
func ResolveSpecials(tok Tokenizer, eosToken, padToken string) (Specials, error) {
	eosID, ok := tok.TokenID(eosToken)
	if !ok {
		return Specials{}, fmt.Errorf("eos token %q: %w", eosToken, ErrUnknownToken)
	}

	sp := Specials{EOS: eosToken, EOSID: eosID}
	if padToken == "" || padToken == eosToken {
		sp.Pad = eosToken
		sp.PadID = eosID
		sp.PadIsEOS = true
		return sp, nil
	}

	padID, ok := tok.TokenID(padToken)
	if !ok {
		return Specials{}, fmt.Errorf("pad token %q: %w", padToken, ErrUnknownToken)
	}
	sp.Pad = padToken
	sp.PadID = padID
	return sp, nil
}

// New builds the tokenizer selected by cfg.
func New(cfg config.TokenizerConfig) (Tokenizer, error) {
	specials := []string{cfg.EOSToken}
	if cfg.PadToken != "" && cfg.PadToken != cfg.EOSToken {
		specials = append(specials, cfg.PadToken)
	}

	switch cfg.Backend {
	case models.TokenizerTiktoken:
		return NewTiktoken(cfg.Encoding, specials)
	case models.TokenizerHuggingFace:
		return NewHuggingFace(cfg.Path)
	case models.TokenizerVocab:
		if cfg.UnkToken != "" {
			specials = append(specials, cfg.UnkToken)
		}
		return LoadVocab(cfg.Path, specials, cfg.UnkToken)
	default:
		return nil, fmt.Errorf("unsupported tokenizer backend: %s", cfg.Backend)
	}
}
