package writer

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestReplaceFileWritesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lua_data.jsonl")

	err := ReplaceFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "{\"code\":\"x=1\"}\n")
		return err
	})
	if err != nil {
		t.Fatalf("ReplaceFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "{\"code\":\"x=1\"}\n" {
		t.Errorf("unexpected content: %q", data)
	}
}

func TestReplaceFileKeepsOriginalOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lua_data.jsonl")
	if err := os.WriteFile(path, []byte("original\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := ReplaceFile(path, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fill error, got %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "original\n" {
		t.Errorf("original file was modified: %q", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %d entries", len(entries))
	}
}

func TestReplaceFilePreservesMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.jsonl")
	if err := os.WriteFile(path, []byte("a\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := ReplaceFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "b\n")
		return err
	}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestAtomicFileCommitAndAbort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "encoded_train.jsonl")

	f, err := CreateAtomic(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(f, "row\n"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("target visible before commit: %v", err)
	}
	if err := f.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := f.Commit(); err == nil {
		t.Error("second commit should fail")
	}

	aborted, err := CreateAtomic(filepath.Join(dir, "encoded_test.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.WriteString(aborted, "discarded\n")
	aborted.Abort()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "encoded_train.jsonl" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("unexpected directory contents: %v", names)
	}
}

func TestSessionManagerLayout(t *testing.T) {
	outputDir := t.TempDir()
	sm, err := NewSessionManager(quietLogger(), outputDir)
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}

	name := filepath.Base(sm.GetSessionDir())
	if !strings.HasPrefix(name, SessionPrefix) {
		t.Errorf("unexpected session name %q", name)
	}
	if err := ValidateSessionPath(outputDir, name); err != nil {
		t.Errorf("generated session name does not validate: %v", err)
	}
	if got := filepath.Base(sm.GetEncodedPath("train", "parquet")); got != "encoded_train.parquet" {
		t.Errorf("encoded path = %s", got)
	}

	reopened, err := OpenSession(quietLogger(), outputDir, name)
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	if reopened.GetSessionDir() != sm.GetSessionDir() {
		t.Errorf("reopened dir %s != %s", reopened.GetSessionDir(), sm.GetSessionDir())
	}
}

func TestBackupConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "tunekit.toml")
	if err := os.WriteFile(configPath, []byte("[dataset]\npath = \"lua_data.jsonl\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	sm, err := NewSessionManager(quietLogger(), filepath.Join(dir, "output"))
	if err != nil {
		t.Fatal(err)
	}
	if err := sm.BackupConfig(configPath); err != nil {
		t.Fatalf("BackupConfig failed: %v", err)
	}

	data, err := os.ReadFile(sm.GetConfigBackupPath())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "lua_data.jsonl") {
		t.Errorf("backup content mismatch: %q", data)
	}
}

func TestSetupLoggerTeesToSessionLog(t *testing.T) {
	sm, err := NewSessionManager(quietLogger(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	var console bytes.Buffer
	logger, logFile, err := SetupLogger(sm, slog.LevelInfo, &console)
	if err != nil {
		t.Fatalf("SetupLogger failed: %v", err)
	}
	logger.Debug("Truncated prompt", "line", 4)
	logger.Info("Loaded dataset", "records", 2)
	if err := logFile.Close(); err != nil {
		t.Fatal(err)
	}

	if strings.Contains(console.String(), "Truncated prompt") {
		t.Error("debug record reached an info-level console")
	}
	if !strings.Contains(console.String(), "Loaded dataset") {
		t.Error("info record missing from console")
	}

	data, err := os.ReadFile(sm.GetLogPath())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"Truncated prompt"`) {
		t.Errorf("debug record missing from session log: %s", data)
	}
}
