package writer

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// SessionPrefix is the directory name prefix of every run's output directory.
const SessionPrefix = "session_"

// SessionManager manages the per-run output directory and the artifacts inside it
type SessionManager struct {
	outputDir  string
	sessionDir string
	logger     *slog.Logger
}

// NewSessionManager creates a timestamped session directory under outputDir
func NewSessionManager(logger *slog.Logger, outputDir string) (*SessionManager, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02T15-04-05")
	sessionDir := filepath.Join(outputDir, SessionPrefix+timestamp)

	// Two runs inside the same second would otherwise share a directory.
	if _, err := os.Stat(sessionDir); err == nil {
		return nil, fmt.Errorf("session directory already exists: %s", sessionDir)
	}
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	logger.Info("Created new session directory", "path", sessionDir)

	return &SessionManager{
		outputDir:  outputDir,
		sessionDir: sessionDir,
		logger:     logger,
	}, nil
}

// OpenSession returns a manager for an existing session after validating its name
func OpenSession(logger *slog.Logger, outputDir, sessionName string) (*SessionManager, error) {
	if err := ValidateSessionPath(outputDir, sessionName); err != nil {
		return nil, fmt.Errorf("invalid session directory: %w", err)
	}

	sessionDir := filepath.Join(outputDir, sessionName)
	if _, err := os.Stat(sessionDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("session directory not found: %s", sessionName)
	}

	return &SessionManager{
		outputDir:  outputDir,
		sessionDir: sessionDir,
		logger:     logger,
	}, nil
}

// GetSessionDir returns the session directory path
func (sm *SessionManager) GetSessionDir() string {
	return sm.sessionDir
}

// GetEncodedPath returns the path of an encoded split, e.g. encoded_train.parquet
func (sm *SessionManager) GetEncodedPath(split, ext string) string {
	return filepath.Join(sm.sessionDir, fmt.Sprintf("encoded_%s.%s", split, ext))
}

// GetBatchesPath returns the path of the collated batches for a split
func (sm *SessionManager) GetBatchesPath(split string) string {
	return filepath.Join(sm.sessionDir, fmt.Sprintf("batches_%s.jsonl", split))
}

// GetLogPath returns the full path to the session log file
func (sm *SessionManager) GetLogPath() string {
	return filepath.Join(sm.sessionDir, "session.log")
}

// GetConfigBackupPath returns the full path to the config backup
func (sm *SessionManager) GetConfigBackupPath() string {
	return filepath.Join(sm.sessionDir, "config.toml.bak")
}

// GetMetricsPath returns the path of the Prometheus textfile
func (sm *SessionManager) GetMetricsPath() string {
	return filepath.Join(sm.sessionDir, "metrics.prom")
}

// BackupConfig copies the config file to the session directory
func (sm *SessionManager) BackupConfig(configPath string) error {
	source, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	defer func() { _ = source.Close() }()

	backupPath := sm.GetConfigBackupPath()
	if err := ReplaceFile(backupPath, func(w io.Writer) error {
		_, err := io.Copy(w, source)
		return err
	}); err != nil {
		return fmt.Errorf("failed to write config backup: %w", err)
	}

	sm.logger.Info("Backed up config file", "path", backupPath)
	return nil
}
