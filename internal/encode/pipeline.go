package encode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/lamim/tunekit/internal/dataset"
	"github.com/lamim/tunekit/internal/metrics"
	"github.com/lamim/tunekit/internal/tokenizer"
	"github.com/lamim/tunekit/internal/util"
	"github.com/lamim/tunekit/pkg/models"
)

// ErrEscalated is returned when a skip, truncation or tokenizer error aborts a run
// because the matching fail_on_* option is set.
var ErrEscalated = errors.New("encoding aborted")

// Status is the result of encoding one record
type Status string

const (
	StatusEncoded Status = "encoded"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome records what happened to one record
type Outcome struct {
	Line      int
	Status    Status
	Truncated bool
	Dropped   int
	Reason    string
}

// Result holds encoded examples in record order plus one outcome per record
type Result struct {
	Examples []models.EncodedExample
	Outcomes []Outcome

	Encoded       int
	Skipped       int
	Failed        int
	Truncated     int
	DroppedTokens int
}

// PipelineConfig holds everything the pipeline needs besides the tokenizer
type PipelineConfig struct {
	Prompt       PromptConfig
	Sequence     Options
	LabelPadding models.LabelPadding

	FailOnSkip       bool
	FailOnTruncation bool
	FailOnError      bool

	// Progress receives the progress bar; nil disables it
	Progress io.Writer
}

// Pipeline encodes a dataset record by record
type Pipeline struct {
	cfg     PipelineConfig
	enc     *Encoder
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewPipeline creates a pipeline. collector may be nil.
func NewPipeline(cfg PipelineConfig, tok tokenizer.Tokenizer, logger *slog.Logger, collector *metrics.Collector) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		enc:     NewEncoder(tok),
		logger:  logger,
		metrics: collector,
	}
}

// Run encodes ds in order. It stops early on context cancellation or when an
// outcome is escalated; the partial result is returned alongside the error.
func (p *Pipeline) Run(ctx context.Context, ds dataset.Dataset) (*Result, error) {
	start := time.Now()
	res := &Result{
		Examples: make([]models.EncodedExample, 0, len(ds)),
		Outcomes: make([]Outcome, 0, len(ds)),
	}

	bar := p.newProgressBar(len(ds))
	defer func() {
		_ = bar.Finish()
		p.record(res, time.Since(start))
	}()

	for _, rec := range ds {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		ex, out := p.encodeRecord(rec)
		res.Outcomes = append(res.Outcomes, out)
		_ = bar.Add(1)

		switch out.Status {
		case StatusEncoded:
			res.Encoded++
			res.Examples = append(res.Examples, ex)
			if out.Truncated {
				res.Truncated++
				res.DroppedTokens += out.Dropped
				p.logger.Debug("Truncated sequence", "line", out.Line, "dropped_tokens", out.Dropped)
				if p.cfg.FailOnTruncation {
					return res, fmt.Errorf("%w: line %d truncated by %d tokens", ErrEscalated, out.Line, out.Dropped)
				}
			}
		case StatusSkipped:
			res.Skipped++
			p.logger.Debug("Skipped record", "line", out.Line, "reason", out.Reason)
			if p.cfg.FailOnSkip {
				return res, fmt.Errorf("%w: line %d skipped: %s", ErrEscalated, out.Line, out.Reason)
			}
		case StatusFailed:
			res.Failed++
			p.logger.Warn("Failed to encode record", "line", out.Line, "error", out.Reason)
			if p.cfg.FailOnError {
				return res, fmt.Errorf("%w: line %d: %s", ErrEscalated, out.Line, out.Reason)
			}
		}
	}

	p.logger.Info("Encoded dataset",
		"records", len(ds),
		"encoded", res.Encoded,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"truncated", res.Truncated,
		"dropped_tokens", res.DroppedTokens,
		"duration", time.Since(start).Round(time.Millisecond))
	return res, nil
}

func (p *Pipeline) encodeRecord(rec models.Record) (models.EncodedExample, Outcome) {
	out := Outcome{Line: rec.Line}

	prompt, err := BuildPrompt(rec, p.cfg.Prompt)
	if err != nil {
		if errors.Is(err, ErrMissingField) {
			out.Status = StatusSkipped
		} else {
			out.Status = StatusFailed
		}
		out.Reason = err.Error()
		return models.EncodedExample{}, out
	}

	input, err := p.enc.Encode(prompt.Input, p.cfg.Sequence)
	if err != nil {
		out.Status = StatusFailed
		out.Reason = err.Error()
		return models.EncodedExample{}, out
	}
	p.observe(input)

	ex := models.EncodedExample{
		InputIDs:      input.IDs,
		AttentionMask: input.Mask,
		SourceLine:    rec.Line,
	}
	out.Truncated = input.Truncated
	out.Dropped = input.Dropped

	if p.cfg.Prompt.Mode == models.PromptModeDual {
		target, err := p.enc.Encode(prompt.Target, p.cfg.Sequence)
		if err != nil {
			out.Status = StatusFailed
			out.Reason = err.Error()
			return models.EncodedExample{}, out
		}
		p.observe(target)

		ex.Labels = target.IDs
		if p.cfg.LabelPadding == models.LabelPaddingIgnore {
			for i := target.Content; i < len(ex.Labels); i++ {
				ex.Labels[i] = models.IgnoreIndex
			}
		}
		out.Truncated = out.Truncated || target.Truncated
		out.Dropped += target.Dropped
	}

	if out.Truncated {
		out.Reason = fmt.Sprintf("truncated to %d tokens: %s", p.cfg.Sequence.MaxLength, util.TruncateString(prompt.Input, 40))
	}
	out.Status = StatusEncoded
	return ex, out
}

func (p *Pipeline) observe(seq Sequence) {
	if p.metrics != nil {
		p.metrics.ObserveSequence(seq.Length, seq.Dropped)
	}
}

func (p *Pipeline) record(res *Result, elapsed time.Duration) {
	if p.metrics == nil {
		return
	}
	p.metrics.AddRecords(metrics.StageEncode, metrics.StatusEncoded, res.Encoded)
	p.metrics.AddRecords(metrics.StageEncode, metrics.StatusSkipped, res.Skipped)
	p.metrics.AddRecords(metrics.StageEncode, metrics.StatusFailed, res.Failed)
	p.metrics.AddRecords(metrics.StageEncode, metrics.StatusTruncated, res.Truncated)
	p.metrics.RecordStage(metrics.StageEncode, elapsed)
}

func (p *Pipeline) newProgressBar(total int) *progressbar.ProgressBar {
	w := p.cfg.Progress
	if w == nil {
		w = io.Discard
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Encoding"),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
