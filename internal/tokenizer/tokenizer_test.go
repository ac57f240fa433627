package tokenizer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lamim/tunekit/internal/config"
	"github.com/lamim/tunekit/pkg/models"
)

func testVocab() map[string]int {
	return map[string]int{
		"<eos>":       0,
		"<pad>":       1,
		"<unk>":       2,
		"print":       3,
		"(":           4,
		")":           5,
		"1":           6,
		"\n":          7,
		"Explanation": 8,
		":":           9,
		" ":           10,
		"prints":      11,
		"pr":          12,
		"é":           13,
	}
}

func TestVocabGreedyLongestMatch(t *testing.T) {
	v, err := NewVocab("test", testVocab(), []string{"<eos>"}, "")
	if err != nil {
		t.Fatalf("NewVocab() error = %v", err)
	}

	ids, err := v.Encode("print(1)\nExplanation: prints 1 <eos>")
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := []int{3, 4, 6, 5, 7, 8, 9, 10, 11, 10, 6, 10, 0}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestVocabUnknownCharacters(t *testing.T) {
	tests := []struct {
		name string
		unk  string
		want []int
	}{
		{"dropped without unk", "", []int{3, 6}},
		{"mapped to unk", "<unk>", []int{3, 2, 6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewVocab("test", testVocab(), nil, tt.unk)
			if err != nil {
				t.Fatal(err)
			}
			ids, err := v.Encode("print★1")
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, ids); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestVocabMultiByteRunes(t *testing.T) {
	v, err := NewVocab("test", testVocab(), nil, "")
	if err != nil {
		t.Fatal(err)
	}
	ids, _ := v.Encode("é1")
	if diff := cmp.Diff([]int{13, 6}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestNewVocabRejectsUnknownSpecial(t *testing.T) {
	_, err := NewVocab("test", testVocab(), []string{"<|endoftext|>"}, "")
	if !errors.Is(err, ErrUnknownToken) {
		t.Errorf("expected ErrUnknownToken, got %v", err)
	}
}

func TestResolveSpecials(t *testing.T) {
	v, err := NewVocab("test", testVocab(), []string{"<eos>", "<pad>"}, "")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		eos     string
		pad     string
		want    Specials
		wantErr bool
	}{
		{
			name: "pad falls back to eos",
			eos:  "<eos>",
			want: Specials{EOS: "<eos>", EOSID: 0, Pad: "<eos>", PadID: 0, PadIsEOS: true},
		},
		{
			name: "explicit pad",
			eos:  "<eos>",
			pad:  "<pad>",
			want: Specials{EOS: "<eos>", EOSID: 0, Pad: "<pad>", PadID: 1},
		},
		{name: "unknown eos", eos: "</s>", wantErr: true},
		{name: "unknown pad", eos: "<eos>", pad: "[PAD]", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveSpecials(v, tt.eos, tt.pad)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownToken) {
					t.Errorf("expected ErrUnknownToken, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveSpecials() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("specials mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewVocabBackendFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.json")
	if err := os.WriteFile(path, []byte(`{"<eos>":0,"a":1,"ab":2,"<unk>":3}`), 0o644); err != nil {
		t.Fatal(err)
	}

	tok, err := New(config.TokenizerConfig{
		Backend:  models.TokenizerVocab,
		Path:     path,
		EOSToken: "<eos>",
		UnkToken: "<unk>",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if tok.Name() != "vocab:vocab.json" {
		t.Errorf("Name() = %q", tok.Name())
	}

	ids, err := tok.Encode("abaz<eos>")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{2, 1, 3, 0}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadVocabErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`["not","a","map"]`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadVocab(filepath.Join(dir, "absent.json"), nil, ""); err == nil {
		t.Error("expected error for missing vocab")
	}
	if _, err := LoadVocab(bad, nil, ""); err == nil {
		t.Error("expected error for malformed vocab")
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	if _, err := New(config.TokenizerConfig{Backend: "sentencepiece", EOSToken: "<eos>"}); err == nil {
		t.Error("expected error for unsupported backend")
	}
}
