package encode

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lamim/tunekit/internal/dataset"
	"github.com/lamim/tunekit/internal/metrics"
	"github.com/lamim/tunekit/internal/tokenizer"
	"github.com/lamim/tunekit/pkg/models"
)

const (
	eosID = 0
	padID = 1
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// charTokenizer maps every rune of the printable ASCII range to its own id.
func charTokenizer(t *testing.T) *tokenizer.Vocab {
	t.Helper()
	ids := map[string]int{"<eos>": eosID, "<pad>": padID}
	for r := ' '; r <= '~'; r++ {
		ids[string(r)] = int(r)
	}
	ids["\n"] = 10
	tok, err := tokenizer.NewVocab("chars", ids, []string{"<eos>", "<pad>"}, "")
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func record(t *testing.T, line int, raw string) models.Record {
	t.Helper()
	rec := models.NewRecord(line)
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatal(err)
	}
	return rec
}

func concatConfig() PromptConfig {
	return PromptConfig{
		Mode:        models.PromptModeConcatenated,
		InputField:  "code",
		TargetField: "explanation",
		Template:    "{{.Code}}\nExplanation: {{.Explanation}} {{.EOS}}",
		EOS:         "<eos>",
	}
}

func TestBuildPromptConcatenated(t *testing.T) {
	rec := record(t, 1, `{"code":"print(1)","explanation":"prints 1"}`)

	got, err := BuildPrompt(rec, concatConfig())
	if err != nil {
		t.Fatalf("BuildPrompt() error = %v", err)
	}
	if want := "print(1)\nExplanation: prints 1 <eos>"; got.Input != want {
		t.Errorf("Input = %q, want %q", got.Input, want)
	}
	if got.Target != "" {
		t.Errorf("Target should be empty in concatenated mode, got %q", got.Target)
	}
}

func TestBuildPromptDual(t *testing.T) {
	rec := record(t, 1, `{"code":"x = 1","explanation":""}`)
	cfg := concatConfig()
	cfg.Mode = models.PromptModeDual

	got, err := BuildPrompt(rec, cfg)
	if err != nil {
		t.Fatalf("BuildPrompt() error = %v", err)
	}
	if diff := cmp.Diff(Prompt{Input: "x = 1", Target: ""}, got); diff != "" {
		t.Errorf("prompt mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPromptTemplateFields(t *testing.T) {
	rec := record(t, 1, `{"code":"x","explanation":"y","lang":"lua"}`)
	cfg := concatConfig()
	cfg.Template = "-- {{.Fields.lang}}\n{{.Code}}"

	got, err := BuildPrompt(rec, cfg)
	if err != nil {
		t.Fatalf("BuildPrompt() error = %v", err)
	}
	if got.Input != "-- lua\nx" {
		t.Errorf("Input = %q", got.Input)
	}
}

func TestBuildPromptMissingField(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no explanation", `{"code":"x"}`},
		{"no code", `{"explanation":"y"}`},
		{"non-string code", `{"code":42,"explanation":"y"}`},
		{"null explanation", `{"code":"x","explanation":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildPrompt(record(t, 1, tt.raw), concatConfig())
			if !errors.Is(err, ErrMissingField) {
				t.Errorf("expected ErrMissingField, got %v", err)
			}
		})
	}
}

func TestFitFixedLength(t *testing.T) {
	opts := Options{MaxLength: 8, Padding: models.PaddingMaxLength, PadID: padID, MaskPolicy: models.MaskPaddingOnly}

	for n := 0; n <= 12; n++ {
		ids := make([]int, n)
		for i := range ids {
			ids[i] = 100 + i
		}
		seq := Fit(ids, opts)

		if len(seq.IDs) != 8 || len(seq.Mask) != 8 {
			t.Fatalf("n=%d: got lengths %d/%d, want 8", n, len(seq.IDs), len(seq.Mask))
		}
		content := min(n, 8)
		for i := range seq.IDs {
			if i < content {
				if seq.Mask[i] != 1 || seq.IDs[i] != 100+i {
					t.Errorf("n=%d pos %d: id=%d mask=%d", n, i, seq.IDs[i], seq.Mask[i])
				}
			} else if seq.Mask[i] != 0 || seq.IDs[i] != padID {
				t.Errorf("n=%d pad pos %d: id=%d mask=%d", n, i, seq.IDs[i], seq.Mask[i])
			}
		}
		if seq.Truncated != (n > 8) || seq.Dropped != max(0, n-8) || seq.Length != n {
			t.Errorf("n=%d: truncated=%v dropped=%d length=%d", n, seq.Truncated, seq.Dropped, seq.Length)
		}
	}
}

func TestFitNoPadding(t *testing.T) {
	opts := Options{MaxLength: 4, Padding: models.PaddingNone, PadID: padID, MaskPolicy: models.MaskPaddingOnly}

	short := Fit([]int{5, 6}, opts)
	if diff := cmp.Diff([]int{5, 6}, short.IDs); diff != "" {
		t.Errorf("short ids mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 1}, short.Mask); diff != "" {
		t.Errorf("short mask mismatch (-want +got):\n%s", diff)
	}

	long := Fit([]int{1, 2, 3, 4, 5, 6}, opts)
	if diff := cmp.Diff([]int{1, 2, 3, 4}, long.IDs); diff != "" {
		t.Errorf("long ids mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 1, 1, 1}, long.Mask); diff != "" {
		t.Errorf("padding-only mask must keep genuine pad-valued ids (-want +got):\n%s", diff)
	}
	if !long.Truncated || long.Dropped != 2 {
		t.Errorf("truncated=%v dropped=%d", long.Truncated, long.Dropped)
	}
}

func TestFitMaskPolicy(t *testing.T) {
	ids := []int{7, padID, 9}
	base := Options{MaxLength: 5, Padding: models.PaddingMaxLength, PadID: padID}

	tests := []struct {
		policy models.MaskPolicy
		want   []int
	}{
		{models.MaskPaddingOnly, []int{1, 1, 1, 0, 0}},
		{models.MaskPadTokenValue, []int{1, 0, 1, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			opts := base
			opts.MaskPolicy = tt.policy
			seq := Fit(ids, opts)
			if diff := cmp.Diff(tt.want, seq.Mask); diff != "" {
				t.Errorf("mask mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]int{7, padID, 9, padID, padID}, seq.IDs); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFitDoesNotAliasInput(t *testing.T) {
	ids := []int{1, 2, 3}
	seq := Fit(ids, Options{MaxLength: 2, Padding: models.PaddingNone})
	seq.IDs[0] = 99
	if ids[0] != 1 {
		t.Error("Fit must copy its input")
	}
}

func TestPipelineConcatenated(t *testing.T) {
	tok := charTokenizer(t)
	ds := dataset.Dataset{
		record(t, 1, `{"code":"print(1)","explanation":"prints 1"}`),
		record(t, 2, `{"code":"x"}`),
		record(t, 4, `{"code":"print(2)","explanation":"prints 2"}`),
	}

	collector := metrics.NewCollector(quietLogger())
	p := NewPipeline(PipelineConfig{
		Prompt:      concatConfig(),
		Sequence:    Options{MaxLength: 512, Padding: models.PaddingNone, PadID: eosID, MaskPolicy: models.MaskPaddingOnly},
		FailOnError: true,
	}, tok, quietLogger(), collector)

	res, err := p.Run(context.Background(), ds)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Encoded != 2 || res.Skipped != 1 || res.Failed != 0 {
		t.Errorf("encoded=%d skipped=%d failed=%d", res.Encoded, res.Skipped, res.Failed)
	}

	wantOutcomes := []Status{StatusEncoded, StatusSkipped, StatusEncoded}
	for i, out := range res.Outcomes {
		if out.Status != wantOutcomes[i] {
			t.Errorf("outcome %d = %s, want %s", i, out.Status, wantOutcomes[i])
		}
	}
	if res.Outcomes[1].Line != 2 || !strings.Contains(res.Outcomes[1].Reason, "explanation") {
		t.Errorf("unexpected skip outcome: %+v", res.Outcomes[1])
	}

	want, _ := tok.Encode("print(1)\nExplanation: prints 1 <eos>")
	ex := res.Examples[0]
	if diff := cmp.Diff(want, ex.InputIDs); diff != "" {
		t.Errorf("input ids mismatch (-want +got):\n%s", diff)
	}
	if ex.InputIDs[len(ex.InputIDs)-1] != eosID {
		t.Error("concatenated prompt should end with eos")
	}
	if ex.Labels != nil {
		t.Error("concatenated mode should not produce labels")
	}
	if ex.SourceLine != 1 || res.Examples[1].SourceLine != 4 {
		t.Errorf("source lines = %d, %d", ex.SourceLine, res.Examples[1].SourceLine)
	}
}

func TestPipelineDualLabels(t *testing.T) {
	tok := charTokenizer(t)
	ds := dataset.Dataset{record(t, 1, `{"code":"abcdef","explanation":"xy"}`)}

	tests := []struct {
		name       string
		labelPad   models.LabelPadding
		wantLabels []int
	}{
		{"pad", models.LabelPaddingPad, []int{'x', 'y', padID, padID}},
		{"ignore", models.LabelPaddingIgnore, []int{'x', 'y', models.IgnoreIndex, models.IgnoreIndex}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := concatConfig()
			cfg.Mode = models.PromptModeDual
			p := NewPipeline(PipelineConfig{
				Prompt:       cfg,
				Sequence:     Options{MaxLength: 4, Padding: models.PaddingMaxLength, PadID: padID, MaskPolicy: models.MaskPaddingOnly},
				LabelPadding: tt.labelPad,
			}, tok, quietLogger(), nil)

			res, err := p.Run(context.Background(), ds)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			ex := res.Examples[0]
			if diff := cmp.Diff([]int{'a', 'b', 'c', 'd'}, ex.InputIDs); diff != "" {
				t.Errorf("input ids mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantLabels, ex.Labels); diff != "" {
				t.Errorf("labels mismatch (-want +got):\n%s", diff)
			}
			if res.Truncated != 1 || res.DroppedTokens != 2 || !res.Outcomes[0].Truncated {
				t.Errorf("truncation not reported: %+v", res.Outcomes[0])
			}
		})
	}
}

func TestPipelineEscalation(t *testing.T) {
	tok := charTokenizer(t)
	ds := dataset.Dataset{
		record(t, 1, `{"code":"ok","explanation":"fine"}`),
		record(t, 2, `{"code":"missing"}`),
		record(t, 3, `{"code":"this one is long","explanation":"too long"}`),
	}

	tests := []struct {
		name        string
		cfg         func(*PipelineConfig)
		wantErr     bool
		wantLine    string
		wantOutputs int
	}{
		{"defaults continue", func(*PipelineConfig) {}, false, "", 3},
		{"fail on skip", func(c *PipelineConfig) { c.FailOnSkip = true }, true, "line 2", 2},
		{"fail on truncation", func(c *PipelineConfig) { c.FailOnTruncation = true }, true, "line 3", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := PipelineConfig{
				Prompt:   concatConfig(),
				Sequence: Options{MaxLength: 24, Padding: models.PaddingNone, PadID: eosID},
			}
			tt.cfg(&cfg)

			res, err := NewPipeline(cfg, tok, quietLogger(), nil).Run(context.Background(), ds)
			if tt.wantErr {
				if !errors.Is(err, ErrEscalated) || !strings.Contains(err.Error(), tt.wantLine) {
					t.Errorf("expected escalation at %s, got %v", tt.wantLine, err)
				}
			} else if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if len(res.Outcomes) != tt.wantOutputs {
				t.Errorf("outcomes = %d, want %d", len(res.Outcomes), tt.wantOutputs)
			}
		})
	}
}

type failingTokenizer struct {
	tokenizer.Tokenizer
	failOn string
}

func (f failingTokenizer) Encode(text string) ([]int, error) {
	if strings.Contains(text, f.failOn) {
		return nil, errors.New("boom")
	}
	return f.Tokenizer.Encode(text)
}

func TestPipelineTokenizerFailure(t *testing.T) {
	tok := failingTokenizer{Tokenizer: charTokenizer(t), failOn: "bad"}
	ds := dataset.Dataset{
		record(t, 1, `{"code":"bad","explanation":"x"}`),
		record(t, 2, `{"code":"good","explanation":"x"}`),
	}
	seq := Options{MaxLength: 64, Padding: models.PaddingNone, PadID: eosID}

	res, err := NewPipeline(PipelineConfig{Prompt: concatConfig(), Sequence: seq, FailOnError: true}, tok, quietLogger(), nil).
		Run(context.Background(), ds)
	if !errors.Is(err, ErrEscalated) {
		t.Fatalf("expected escalation, got %v", err)
	}
	if res.Failed != 1 || len(res.Examples) != 0 {
		t.Errorf("failed=%d examples=%d", res.Failed, len(res.Examples))
	}

	res, err = NewPipeline(PipelineConfig{Prompt: concatConfig(), Sequence: seq}, tok, quietLogger(), nil).
		Run(context.Background(), ds)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Failed != 1 || res.Encoded != 1 || res.Outcomes[0].Status != StatusFailed {
		t.Errorf("unexpected result: failed=%d encoded=%d", res.Failed, res.Encoded)
	}
}

func TestPipelineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ds := dataset.Dataset{record(t, 1, `{"code":"a","explanation":"b"}`)}
	_, err := NewPipeline(PipelineConfig{Prompt: concatConfig(), Sequence: Options{MaxLength: 8}}, charTokenizer(t), quietLogger(), nil).
		Run(ctx, ds)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
