package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lamim/tunekit/internal/config"
	"github.com/lamim/tunekit/internal/dataset"
	"github.com/lamim/tunekit/internal/encode"
	"github.com/lamim/tunekit/internal/manifest"
	"github.com/lamim/tunekit/internal/metrics"
	"github.com/lamim/tunekit/internal/sink"
	"github.com/lamim/tunekit/internal/tokenizer"
	"github.com/lamim/tunekit/internal/writer"
	"github.com/lamim/tunekit/pkg/models"
)

// Split names used for output files
const (
	SplitTrain = "train"
	SplitTest  = "test"
)

// Orchestrator runs the transform and tokenize flows for one session
type Orchestrator struct {
	cfg         *config.Config
	tok         tokenizer.Tokenizer
	session     *writer.SessionManager
	manifestMgr *manifest.Manager
	metrics     *metrics.Collector
	logger      *slog.Logger
	progress    io.Writer
	stats       models.RunStats
}

// New creates a new orchestrator. tok may be nil when only Transform is used.
func New(
	cfg *config.Config,
	tok tokenizer.Tokenizer,
	session *writer.SessionManager,
	manifestMgr *manifest.Manager,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		tok:         tok,
		session:     session,
		manifestMgr: manifestMgr,
		metrics:     collector,
		logger:      logger,
		progress:    os.Stderr,
	}
}

// SetProgressWriter redirects the encode progress bar; nil disables it
func (o *Orchestrator) SetProgressWriter(w io.Writer) {
	o.progress = w
}

// Stats returns the statistics of the last run
func (o *Orchestrator) Stats() models.RunStats {
	return o.stats
}

// Transform rewrites escaped newlines in the source dataset and derives the
// reversed dataset
func (o *Orchestrator) Transform(ctx context.Context) (err error) {
	o.begin()
	defer o.finish(&err)

	ds, err := o.load(ctx)
	if err != nil {
		return err
	}

	if err := o.manifestMgr.SetPhase(models.PhaseTransforming); err != nil {
		return err
	}

	if o.cfg.Transform.RewriteEscapedNewlines {
		ds, err = o.rewrite(ctx, ds)
		if err != nil {
			return err
		}
	}

	if o.cfg.Transform.Reverse {
		if err := o.reverse(ctx, ds); err != nil {
			return err
		}
	}

	o.logger.Info("Transform completed",
		"records", o.stats.RecordsLoaded,
		"malformed", o.stats.MalformedLines,
		"rewritten_fields", o.stats.RewrittenFields,
		"reversed", o.stats.ReversedRecords)
	return nil
}

// Tokenize encodes the dataset, splits it and writes the encoded splits into
// the session directory
func (o *Orchestrator) Tokenize(ctx context.Context) (err error) {
	o.begin()
	defer o.finish(&err)

	if o.tok == nil {
		return fmt.Errorf("no tokenizer configured")
	}

	ds, err := o.load(ctx)
	if err != nil {
		return err
	}

	specials, err := tokenizer.ResolveSpecials(o.tok, o.cfg.Tokenizer.EOSToken, o.cfg.Tokenizer.PadToken)
	if err != nil {
		return fmt.Errorf("failed to resolve special tokens: %w", err)
	}
	o.logger.Info("Using tokenizer",
		"name", o.tok.Name(),
		"eos_id", specials.EOSID,
		"pad_id", specials.PadID,
		"pad_is_eos", specials.PadIsEOS)

	if err := o.manifestMgr.SetPhase(models.PhaseEncoding); err != nil {
		return err
	}

	enc := o.cfg.Encoding
	pipeline := encode.NewPipeline(encode.PipelineConfig{
		Prompt: encode.PromptConfig{
			Mode:        enc.Mode,
			InputField:  enc.InputField,
			TargetField: enc.TargetField,
			Template:    enc.PromptTemplate,
			EOS:         specials.EOS,
		},
		Sequence: encode.Options{
			MaxLength:  enc.MaxLength,
			Padding:    enc.Padding,
			PadID:      specials.PadID,
			MaskPolicy: enc.MaskPolicy,
		},
		LabelPadding:     enc.LabelPadding,
		FailOnSkip:       enc.FailOnSkip,
		FailOnTruncation: enc.FailOnTruncation,
		FailOnError:      enc.FailOnError,
		Progress:         o.progress,
	}, o.tok, o.logger, o.metrics)

	res, runErr := pipeline.Run(ctx, ds)
	if res != nil {
		o.stats.Encoded = res.Encoded
		o.stats.Skipped = res.Skipped
		o.stats.Failed = res.Failed
		o.stats.Truncated = res.Truncated
		o.stats.DroppedTokens = res.DroppedTokens
	}
	if runErr != nil {
		return runErr
	}

	if err := o.manifestMgr.SetPhase(models.PhaseWriting); err != nil {
		return err
	}

	train, test := encode.Split(res.Examples, o.cfg.Split.TestRatio, o.cfg.Split.Seed)
	o.stats.TrainExamples = len(train)
	o.stats.TestExamples = len(test)

	start := time.Now()
	splits := []struct {
		name     string
		examples []models.EncodedExample
	}{
		{SplitTrain, train},
		{SplitTest, test},
	}
	for _, split := range splits {
		if split.name == SplitTest && o.cfg.Split.TestRatio == 0 {
			continue
		}
		if err := o.writeSplit(ctx, split.name, split.examples, specials.PadID); err != nil {
			return err
		}
	}
	o.recordStage(metrics.StageWrite, time.Since(start))

	o.logger.Info("Tokenize completed",
		"encoded", o.stats.Encoded,
		"skipped", o.stats.Skipped,
		"failed", o.stats.Failed,
		"truncated", o.stats.Truncated,
		"dropped_tokens", o.stats.DroppedTokens,
		"train", o.stats.TrainExamples,
		"test", o.stats.TestExamples)
	return nil
}

func (o *Orchestrator) begin() {
	o.stats = models.RunStats{StartTime: time.Now()}
}

// finish saves the manifest and metrics whether or not the run succeeded
func (o *Orchestrator) finish(errp *error) {
	o.stats.EndTime = time.Now()
	o.stats.TotalDuration = o.stats.EndTime.Sub(o.stats.StartTime)

	if o.metrics != nil {
		if err := o.metrics.WriteTextfile(o.session.GetMetricsPath()); err != nil {
			o.logger.Error("Failed to write metrics", "error", err)
		}
	}

	if *errp != nil {
		if err := o.manifestMgr.Fail(o.stats, *errp); err != nil {
			o.logger.Error("Failed to save manifest", "error", err)
		}
		return
	}
	if err := o.manifestMgr.Complete(o.stats); err != nil {
		*errp = fmt.Errorf("failed to save manifest: %w", err)
	}
}

func (o *Orchestrator) load(ctx context.Context) (dataset.Dataset, error) {
	if err := o.manifestMgr.SetPhase(models.PhaseLoading); err != nil {
		return nil, err
	}

	start := time.Now()
	path := o.cfg.Dataset.Path
	ds, issues, err := dataset.Load(path)
	if err != nil {
		return nil, err
	}
	o.recordStage(metrics.StageLoad, time.Since(start))

	for _, issue := range issues {
		o.logger.Warn("Skipping malformed record", "path", path, "line", issue.Line, "reason", issue.Reason)
	}

	o.stats.RecordsLoaded = len(ds)
	o.stats.MalformedLines = len(issues)
	o.addRecords(metrics.StageLoad, metrics.StatusLoaded, len(ds))
	o.addRecords(metrics.StageLoad, metrics.StatusMalformed, len(issues))

	o.logger.Info("Loaded dataset", "path", path, "records", len(ds), "malformed", len(issues))
	return ds, ctx.Err()
}

func (o *Orchestrator) rewrite(ctx context.Context, ds dataset.Dataset) (dataset.Dataset, error) {
	start := time.Now()
	rewritten, changed := dataset.RewriteEscapedNewlines(ds)
	o.stats.RewrittenFields = changed
	o.addRecords(metrics.StageTransform, metrics.StatusRewritten, changed)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	source := o.cfg.Dataset.Path
	target := o.cfg.Transform.OutputPath
	if target == "" {
		target = source
	}

	if sameFile(source, target) {
		if o.stats.MalformedLines > 0 {
			o.logger.Warn("Malformed lines are not carried into the rewritten file",
				"path", target, "malformed", o.stats.MalformedLines)
		}
		if o.cfg.Transform.BackupOriginal {
			backup := source + ".orig"
			if err := writer.CopyFile(source, backup); err != nil {
				return nil, fmt.Errorf("failed to back up %s: %w", source, err)
			}
			o.logger.Info("Backed up original dataset", "path", backup)
		}
	}

	if err := dataset.WriteFile(target, rewritten); err != nil {
		return nil, fmt.Errorf("failed to write rewritten dataset: %w", err)
	}
	if err := o.manifestMgr.AddOutput(target, len(rewritten)); err != nil {
		return nil, err
	}
	o.recordStage(metrics.StageTransform, time.Since(start))

	o.logger.Info("Rewrote escaped newlines", "path", target, "fields_changed", changed)
	return rewritten, nil
}

func (o *Orchestrator) reverse(ctx context.Context, ds dataset.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	fields := dataset.ReverseFields{Input: o.cfg.Transform.InputField, Output: o.cfg.Transform.OutputField}
	reversed := dataset.DeriveReversed(ds, fields, o.cfg.Transform.ReverseCap)
	o.stats.ReversedRecords = len(reversed)
	o.addRecords(metrics.StageReverse, metrics.StatusReversed, len(reversed))

	path := o.cfg.Transform.ReverseOutputPath
	if err := dataset.WriteFile(path, reversed); err != nil {
		return fmt.Errorf("failed to write reversed dataset: %w", err)
	}
	if err := o.manifestMgr.AddOutput(path, len(reversed)); err != nil {
		return err
	}
	o.recordStage(metrics.StageReverse, time.Since(start))

	o.logger.Info("Wrote reversed dataset", "path", path, "records", len(reversed), "cap", o.cfg.Transform.ReverseCap)
	return nil
}

func (o *Orchestrator) writeSplit(ctx context.Context, split string, examples []models.EncodedExample, padID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	format := o.cfg.Output.Format
	path := o.session.GetEncodedPath(split, sink.Extension(format))
	s, err := sink.New(format, path, split)
	if err != nil {
		return err
	}
	if err := sink.WriteAll(s, examples); err != nil {
		return err
	}
	if err := o.manifestMgr.AddOutput(path, s.Count()); err != nil {
		return err
	}
	o.logger.Info("Wrote encoded split", "split", split, "path", path, "examples", s.Count(), "format", format)

	size := o.cfg.Encoding.CollateBatchSize
	if size <= 0 {
		return nil
	}

	chunks := encode.Batches(examples, size)
	batches := make([]models.Batch, 0, len(chunks))
	for _, chunk := range chunks {
		batches = append(batches, encode.Collate(chunk, padID, o.cfg.Encoding.MaskPolicy))
	}
	batchPath := o.session.GetBatchesPath(split)
	if err := sink.WriteBatches(batchPath, batches); err != nil {
		return err
	}
	if err := o.manifestMgr.AddOutput(batchPath, len(batches)); err != nil {
		return err
	}
	o.logger.Info("Wrote collated batches", "split", split, "path", batchPath, "batches", len(batches))
	return nil
}

func (o *Orchestrator) addRecords(stage, status string, n int) {
	if o.metrics != nil {
		o.metrics.AddRecords(stage, status, n)
	}
}

func (o *Orchestrator) recordStage(stage string, d time.Duration) {
	if o.metrics != nil {
		o.metrics.RecordStage(stage, d)
	}
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errors.Join(errA, errB) != nil {
		return a == b
	}
	return absA == absB
}
