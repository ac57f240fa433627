package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// Vocab is a greedy longest-match tokenizer over a fixed vocabulary.
// Special tokens are matched before regular entries. Text that matches
// nothing maps to the unk token when one is set and is dropped otherwise.
type Vocab struct {
	name     string
	ids      map[string]int
	specials []string // longest first
	maxLen   int
	unkID    int
	hasUnk   bool
}

// LoadVocab reads a {"token": id} JSON file.
func LoadVocab(path string, specials []string, unkToken string) (*Vocab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocab: %w", err)
	}

	ids := make(map[string]int)
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("failed to parse vocab %s: %w", path, err)
	}

	return NewVocab(filepath.Base(path), ids, specials, unkToken)
}

// NewVocab builds a tokenizer from an in-memory vocabulary.
func NewVocab(name string, ids map[string]int, specials []string, unkToken string) (*Vocab, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("vocab %s is empty", name)
	}

	v := &Vocab{
		name: name,
		ids:  make(map[string]int, len(ids)),
	}
	for tok, id := range ids {
		if tok == "" {
			continue
		}
		v.ids[tok] = id
		if len(tok) > v.maxLen {
			v.maxLen = len(tok)
		}
	}

	for _, s := range specials {
		if s == "" {
			continue
		}
		if _, ok := v.ids[s]; !ok {
			return nil, fmt.Errorf("special token %q: %w", s, ErrUnknownToken)
		}
		v.specials = append(v.specials, s)
	}
	sort.SliceStable(v.specials, func(i, j int) bool {
		return len(v.specials[i]) > len(v.specials[j])
	})

	if unkToken != "" {
		v.unkID, v.hasUnk = v.ids[unkToken]
		if !v.hasUnk {
			return nil, fmt.Errorf("unk token %q: %w", unkToken, ErrUnknownToken)
		}
	}
	return v, nil
}

func (v *Vocab) Name() string {
	return "vocab:" + v.name
}

func (v *Vocab) Encode(text string) ([]int, error) {
	var out []int
	for i := 0; i < len(text); {
		if id, n, ok := v.matchSpecial(text[i:]); ok {
			out = append(out, id)
			i += n
			continue
		}
		if id, n, ok := v.matchLongest(text[i:]); ok {
			out = append(out, id)
			i += n
			continue
		}

		_, size := utf8.DecodeRuneInString(text[i:])
		if v.hasUnk {
			out = append(out, v.unkID)
		}
		i += size
	}
	return out, nil
}

func (v *Vocab) TokenID(token string) (int, bool) {
	id, ok := v.ids[token]
	return id, ok
}

func (v *Vocab) matchSpecial(s string) (int, int, bool) {
	for _, sp := range v.specials {
		if strings.HasPrefix(s, sp) {
			return v.ids[sp], len(sp), true
		}
	}
	return 0, 0, false
}

func (v *Vocab) matchLongest(s string) (int, int, bool) {
	n := min(v.maxLen, len(s))
	for ; n > 0; n-- {
		// Only cut on rune boundaries
		if n < len(s) && !utf8.RuneStart(s[n]) {
			continue
		}
		if id, ok := v.ids[s[:n]]; ok {
			return id, n, true
		}
	}
	return 0, 0, false
}
