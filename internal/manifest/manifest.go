// Package manifest records what a run did: its phase, its outputs with
// checksums and its final statistics.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"github.com/lamim/tunekit/internal/config"
	"github.com/lamim/tunekit/internal/writer"
	"github.com/lamim/tunekit/pkg/models"
)

const Filename = "manifest.json"

// Manager owns the manifest of one session
type Manager struct {
	sessionDir string
	manifest   *models.RunManifest
	mu         sync.Mutex
	logger     *slog.Logger
}

// NewManager starts a manifest for a new run
func NewManager(sessionDir, command string, cfg *config.Config, logger *slog.Logger) *Manager {
	now := time.Now()
	return &Manager{
		sessionDir: sessionDir,
		manifest: &models.RunManifest{
			RunID:      uuid.New().String(),
			Command:    command,
			CreatedAt:  now,
			Phase:      models.PhaseLoading,
			InputPath:  cfg.Dataset.Path,
			ConfigHash: ConfigHash(cfg),
		},
		logger: logger,
	}
}

// ConfigHash fingerprints the effective configuration, defaults included
func ConfigHash(cfg *config.Config) string {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return ""
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// SetPhase updates the phase and saves the manifest
func (m *Manager) SetPhase(phase models.RunPhase) error {
	m.mu.Lock()
	m.manifest.Phase = phase
	m.mu.Unlock()
	return m.Save()
}

// AddOutput records an artifact. The file is hashed as it is on disk now.
func (m *Manager) AddOutput(path string, records int) error {
	sum, size, err := fileDigest(path)
	if err != nil {
		return fmt.Errorf("failed to hash output %s: %w", path, err)
	}

	rel := path
	if r, err := filepath.Rel(m.sessionDir, path); err == nil && !strings.HasPrefix(r, "..") {
		rel = r
	}

	m.mu.Lock()
	m.manifest.Outputs = append(m.manifest.Outputs, models.OutputFile{
		Path:    rel,
		Records: records,
		SHA256:  sum,
		Size:    size,
	})
	m.mu.Unlock()
	return nil
}

// Complete marks the run finished and saves the final manifest
func (m *Manager) Complete(stats models.RunStats) error {
	m.mu.Lock()
	m.manifest.Phase = models.PhaseComplete
	m.manifest.Stats = stats
	m.mu.Unlock()
	return m.Save()
}

// Fail marks the run failed with the given error
func (m *Manager) Fail(stats models.RunStats, cause error) error {
	m.mu.Lock()
	m.manifest.Phase = models.PhaseFailed
	m.manifest.Stats = stats
	if cause != nil {
		m.manifest.Error = cause.Error()
	}
	m.mu.Unlock()
	return m.Save()
}

// Manifest returns a copy of the current manifest
func (m *Manager) Manifest() models.RunManifest {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.manifest
	cp.Outputs = append([]models.OutputFile(nil), m.manifest.Outputs...)
	return cp
}

// Path returns where the manifest is written
func (m *Manager) Path() string {
	return filepath.Join(m.sessionDir, Filename)
}

// Save writes the manifest atomically
func (m *Manager) Save() error {
	m.mu.Lock()
	m.manifest.LastSavedAt = time.Now()
	data, err := json.MarshalIndent(m.manifest, "", "  ")
	phase := m.manifest.Phase
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := writer.ReplaceFile(m.Path(), func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return fmt.Errorf("failed to save manifest: %w", err)
	}

	m.logger.Debug("Manifest saved", "path", m.Path(), "phase", phase)
	return nil
}

// Load reads the manifest of a session directory
func Load(sessionDir string) (*models.RunManifest, error) {
	data, err := os.ReadFile(filepath.Join(sessionDir, Filename))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var rm models.RunManifest
	if err := json.Unmarshal(data, &rm); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return &rm, nil
}

// Summary is one row of a session listing. Manifest is nil when the session
// has no readable manifest.
type Summary struct {
	Session  string
	Manifest *models.RunManifest
	Err      error
}

// List summarises every session under outputDir, oldest first
func List(outputDir string) ([]Summary, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	var out []Summary
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), writer.SessionPrefix) {
			continue
		}
		rm, err := Load(filepath.Join(outputDir, entry.Name()))
		out = append(out, Summary{Session: entry.Name(), Manifest: rm, Err: err})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Session < out[j].Session })
	return out, nil
}

func fileDigest(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
