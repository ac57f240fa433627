package sink

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lamim/tunekit/pkg/models"
)

func sampleExamples() []models.EncodedExample {
	return []models.EncodedExample{
		{InputIDs: []int{5, 6, 0}, AttentionMask: []int{1, 1, 1}, SourceLine: 1},
		{InputIDs: []int{7, 0, 0}, AttentionMask: []int{1, 0, 0}, Labels: []int{9, 0, 0}, SourceLine: 3},
	}
}

func TestJSONLSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "encoded_train.jsonl")

	s, err := New(models.OutputFormatJSONL, path, "train")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file should not exist before Close: %v", err)
	}
	if err := WriteAll(s, sampleExamples()); err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}
	if s.Count() != 2 {
		t.Errorf("Count() = %d, want 2", s.Count())
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	want := []string{
		`{"input_ids":[5,6,0],"attention_mask":[1,1,1]}`,
		`{"input_ids":[7,0,0],"attention_mask":[1,0,0],"labels":[9,0,0]}`,
	}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Errorf("jsonl mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "encoded_test.sqlite")

	s, err := New(models.OutputFormatSQLite, path, "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := WriteAll(s, sampleExamples()); err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}

	got, err := ReadSQLite(path, "test")
	if err != nil {
		t.Fatalf("ReadSQLite() error = %v", err)
	}
	if diff := cmp.Diff(sampleExamples(), got); diff != "" {
		t.Errorf("sqlite round trip mismatch (-want +got):\n%s", diff)
	}

	other, err := ReadSQLite(path, "train")
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Errorf("unexpected rows for other split: %d", len(other))
	}
}

func TestSQLiteMigrationsAreIdempotent(t *testing.T) {
	db, err := openDB(filepath.Join(t.TempDir(), "m.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	if err := migrate(db); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}

	var versions int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&versions); err != nil {
		t.Fatal(err)
	}
	if versions != 1 {
		t.Errorf("schema_version rows = %d, want 1", versions)
	}
}

func TestParquetSink(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "encoded_train.parquet")

	s, err := New(models.OutputFormatParquet, path, "train")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := WriteAll(s, sampleExamples()); err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	magic := []byte("PAR1")
	if !bytes.HasPrefix(data, magic) || !bytes.HasSuffix(data, magic) {
		t.Error("output is not a parquet file")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary parquet file left behind")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New("arrow", filepath.Join(t.TempDir(), "x"), "train"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestWriteBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batches_train.jsonl")
	batches := []models.Batch{
		{
			InputIDs:      [][]int{{1, 2}, {3, 0}},
			AttentionMask: [][]int{{1, 1}, {1, 0}},
			Labels:        [][]int{{1, 2}, {3, models.IgnoreIndex}},
		},
	}
	if err := WriteBatches(path, batches); err != nil {
		t.Fatalf("WriteBatches() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got models.Batch
	if err := json.Unmarshal(bytes.TrimSpace(data), &got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(batches[0], got); diff != "" {
		t.Errorf("batch mismatch (-want +got):\n%s", diff)
	}
}

func TestExtension(t *testing.T) {
	for format, want := range map[models.OutputFormat]string{
		models.OutputFormatJSONL:   "jsonl",
		models.OutputFormatParquet: "parquet",
		models.OutputFormatSQLite:  "sqlite",
	} {
		if got := Extension(format); got != want {
			t.Errorf("Extension(%s) = %q, want %q", format, got, want)
		}
	}
}
