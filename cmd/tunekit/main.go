package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lamim/tunekit/internal/config"
	"github.com/lamim/tunekit/internal/dataset"
	"github.com/lamim/tunekit/internal/hfhub"
	"github.com/lamim/tunekit/internal/manifest"
	"github.com/lamim/tunekit/internal/metrics"
	"github.com/lamim/tunekit/internal/orchestrator"
	"github.com/lamim/tunekit/internal/tokenizer"
	"github.com/lamim/tunekit/internal/writer"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath string
	envFile    string
	outputDir  string
	uploadToHF bool
	hfRepoID   string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tunekit",
		Short: "tunekit - JSONL dataset preparation for causal-LM fine-tuning",
		Long: `tunekit cleans JSONL instruction datasets, derives reversed pairs and
tokenizes records into input_ids / attention_mask sequences for a trainer.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "tunekit.toml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to environment file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	transformCmd := &cobra.Command{
		Use:   "transform",
		Short: "Rewrite escaped newlines and derive the reversed dataset",
		Long: `Transform the source dataset:
1. Load records, warning about malformed lines
2. Replace literal \n sequences in string fields and write the file back atomically
3. Write the reversed input/output dataset (capped, default 200 records)`,
		RunE: runTransform,
	}

	tokenizeCmd := &cobra.Command{
		Use:   "tokenize",
		Short: "Tokenize the dataset into encoded train/test splits",
		Long: `Tokenize the dataset:
1. Build a prompt per record (dual or concatenated mode)
2. Encode, truncate and pad to the configured length
3. Split into train/test and write them in the configured format
4. Optional: Upload the session to Hugging Face Hub`,
		RunE: runTokenize,
	}
	tokenizeCmd.Flags().BoolVar(&uploadToHF, "upload-to-hf", false, "Upload results to Hugging Face Hub")
	tokenizeCmd.Flags().StringVar(&hfRepoID, "hf-repo-id", "", "Hugging Face repository ID (e.g., username/dataset-name)")

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect previous sessions",
	}
	runsCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "output", "Directory holding session folders")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions with their phase and record counts",
		RunE:  listRuns,
	}
	inspectCmd := &cobra.Command{
		Use:   "inspect <session-dir>",
		Short: "Show the manifest of a session",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectRun,
	}
	runsCmd.AddCommand(listCmd, inspectCmd)

	rootCmd.AddCommand(transformCmd, tokenizeCmd, runsCmd)

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, dataset.ErrMissingFile) {
			fmt.Fprintln(os.Stderr, "The source dataset does not exist; check dataset.path in", configPath)
		}
		os.Exit(1)
	}
}

// runEnv is everything a command needs once config and session are set up
type runEnv struct {
	cfg      *config.Config
	secrets  *config.Secrets
	session  *writer.SessionManager
	logger   *slog.Logger
	logFile  *os.File
	manifest *manifest.Manager
	metrics  *metrics.Collector
}

func (e *runEnv) close() {
	if e.logFile != nil {
		_ = e.logFile.Sync()
		_ = e.logFile.Close()
	}
}

func setupRun(command string) (*runEnv, error) {
	if envFile != "" {
		if err := loadEnvFile(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(os.Stderr, "Warning: failed to load env file: %v\n", err)
			}
		} else if verbose {
			fmt.Fprintf(os.Stderr, "Loaded env file: %s\n", envFile)
		}
	}

	cfg, secrets, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	sessionMgr, err := writer.NewSessionManager(writer.NewConsoleLogger(logLevel), cfg.Output.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	logger, logFile, err := writer.SetupLogger(sessionMgr, logLevel, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	env := &runEnv{
		cfg:      cfg,
		secrets:  secrets,
		session:  sessionMgr,
		logger:   logger,
		logFile:  logFile,
		manifest: manifest.NewManager(sessionMgr.GetSessionDir(), command, cfg, logger),
		metrics:  metrics.NewCollector(logger),
	}

	logger.Info("tunekit starting",
		"version", Version,
		"command", command,
		"config", configPath,
		"session_dir", sessionMgr.GetSessionDir())

	if err := sessionMgr.BackupConfig(configPath); err != nil {
		env.close()
		return nil, fmt.Errorf("failed to backup config: %w", err)
	}
	return env, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runTransform(cmd *cobra.Command, args []string) error {
	env, err := setupRun("transform")
	if err != nil {
		return err
	}
	defer env.close()

	ctx, stop := signalContext()
	defer stop()

	orch := orchestrator.New(env.cfg, nil, env.session, env.manifest, env.metrics, env.logger)
	if err := orch.Transform(ctx); err != nil {
		return interrupted(env, err, "transform")
	}

	stats := orch.Stats()
	env.logger.Info("Transform complete",
		"records", stats.RecordsLoaded,
		"malformed", stats.MalformedLines,
		"rewritten_fields", stats.RewrittenFields,
		"reversed", stats.ReversedRecords,
		"duration", stats.TotalDuration,
		"session_dir", env.session.GetSessionDir())
	return nil
}

func runTokenize(cmd *cobra.Command, args []string) error {
	env, err := setupRun("tokenize")
	if err != nil {
		return err
	}
	defer env.close()

	// Checked before encoding so a long run does not end in a config error
	repoID := hfRepoID
	if repoID == "" {
		repoID = env.cfg.HuggingFace.RepoID
	}
	if uploadToHF {
		if repoID == "" {
			return fmt.Errorf("--hf-repo-id must be specified when using --upload-to-hf")
		}
		if env.secrets.HuggingFaceToken == "" {
			return fmt.Errorf("HUGGING_FACE_TOKEN environment variable must be set for uploads")
		}
	}

	tok, err := tokenizer.New(env.cfg.Tokenizer)
	if err != nil {
		return fmt.Errorf("failed to create tokenizer: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()

	orch := orchestrator.New(env.cfg, tok, env.session, env.manifest, env.metrics, env.logger)
	if err := orch.Tokenize(ctx); err != nil {
		return interrupted(env, err, "tokenize")
	}

	stats := orch.Stats()
	env.logger.Info("Tokenize complete",
		"encoded", stats.Encoded,
		"skipped", stats.Skipped,
		"truncated", stats.Truncated,
		"dropped_tokens", stats.DroppedTokens,
		"train", stats.TrainExamples,
		"test", stats.TestExamples,
		"duration", stats.TotalDuration,
		"session_dir", env.session.GetSessionDir())

	if uploadToHF {
		uploader := hfhub.NewUploader(env.secrets.HuggingFaceToken, env.logger)
		if err := orch.Upload(ctx, uploader, repoID); err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}
	}
	return nil
}

func interrupted(env *runEnv, err error, command string) error {
	if errors.Is(err, context.Canceled) {
		env.logger.Warn("Run interrupted", "command", command, "session_dir", env.session.GetSessionDir())
		return fmt.Errorf("%s interrupted", command)
	}
	return fmt.Errorf("%s failed: %w", command, err)
}

// listRuns lists all sessions under the output directory
func listRuns(cmd *cobra.Command, args []string) error {
	summaries, err := manifest.List(outputDir)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("No session directories found.")
		return nil
	}

	fmt.Printf("%-32s %-10s %-10s %8s %8s %8s %10s\n", "SESSION", "COMMAND", "PHASE", "LOADED", "ENCODED", "SKIPPED", "TRUNCATED")
	fmt.Println(strings.Repeat("-", 92))
	for _, s := range summaries {
		if s.Manifest == nil {
			fmt.Printf("%-32s %-10s %-10s\n", s.Session, "-", "no manifest")
			continue
		}
		m := s.Manifest
		fmt.Printf("%-32s %-10s %-10s %8d %8d %8d %10d\n",
			s.Session, m.Command, m.Phase,
			m.Stats.RecordsLoaded, m.Stats.Encoded, m.Stats.Skipped, m.Stats.Truncated)
	}
	return nil
}

// inspectRun prints the manifest of one session
func inspectRun(cmd *cobra.Command, args []string) error {
	sessionName := args[0]

	sessionMgr, err := writer.OpenSession(slog.Default(), outputDir, sessionName)
	if err != nil {
		return err
	}
	m, err := manifest.Load(sessionMgr.GetSessionDir())
	if err != nil {
		return err
	}

	fmt.Printf("Run Information for: %s\n", sessionName)
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Run ID:              %s\n", m.RunID)
	fmt.Printf("Command:             %s\n", m.Command)
	fmt.Printf("Created At:          %s\n", m.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Last Saved At:       %s\n", m.LastSavedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Phase:               %s\n", m.Phase)
	if m.Error != "" {
		fmt.Printf("Error:               %s\n", m.Error)
	}
	fmt.Printf("Input:               %s\n", m.InputPath)
	fmt.Printf("Config Hash:         %s\n", m.ConfigHash)
	fmt.Println()

	fmt.Println("Statistics:")
	fmt.Printf("  Records Loaded:    %d\n", m.Stats.RecordsLoaded)
	fmt.Printf("  Malformed Lines:   %d\n", m.Stats.MalformedLines)
	fmt.Printf("  Rewritten Fields:  %d\n", m.Stats.RewrittenFields)
	fmt.Printf("  Reversed Records:  %d\n", m.Stats.ReversedRecords)
	fmt.Printf("  Encoded:           %d\n", m.Stats.Encoded)
	fmt.Printf("  Skipped:           %d\n", m.Stats.Skipped)
	fmt.Printf("  Failed:            %d\n", m.Stats.Failed)
	fmt.Printf("  Truncated:         %d (%d tokens dropped)\n", m.Stats.Truncated, m.Stats.DroppedTokens)
	fmt.Printf("  Train / Test:      %d / %d\n", m.Stats.TrainExamples, m.Stats.TestExamples)
	fmt.Printf("  Total Duration:    %s\n", m.Stats.TotalDuration)
	fmt.Println()

	if len(m.Outputs) > 0 {
		fmt.Println("Outputs:")
		for _, out := range m.Outputs {
			fmt.Printf("  %-40s %8d records %10d bytes  sha256:%s\n", out.Path, out.Records, out.Size, out.SHA256[:12])
		}
	}
	return nil
}
