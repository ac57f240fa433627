package dataset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/lamim/tunekit/pkg/models"
)

// ErrMissingFile is returned when the source dataset does not exist.
var ErrMissingFile = errors.New("dataset file not found")

// Dataset is an ordered list of records in load order.
type Dataset []models.Record

// IssueKind classifies a per-line loading problem.
type IssueKind string

// IssueMalformedRecord marks a line that is not a JSON object.
const IssueMalformedRecord IssueKind = "malformed_record"

// Issue describes one line that was skipped while loading.
type Issue struct {
	Kind   IssueKind
	Line   int
	Reason string
	Err    error
}

func (i Issue) Error() string {
	return fmt.Sprintf("line %d: %s", i.Line, i.Reason)
}

func (i Issue) Unwrap() error {
	return i.Err
}

const (
	scanInitialBuffer = 1024 * 1024
	scanMaxLineSize   = 16 * 1024 * 1024
)

// Load reads a JSONL file. Malformed lines are reported as issues and skipped;
// a missing file is returned as an error wrapping ErrMissingFile.
func Load(path string) (Dataset, []Issue, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s: %w", ErrMissingFile, path, err)
		}
		return nil, nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer func() { _ = file.Close() }()

	ds, issues, err := Read(file)
	if err != nil {
		return nil, nil, fmt.Errorf("failed while reading %s: %w", path, err)
	}
	return ds, issues, nil
}

// Read parses line-delimited JSON records from r.
// Line numbers are 1-based and count blank lines.
func Read(r io.Reader) (Dataset, []Issue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, scanInitialBuffer), scanMaxLineSize)

	var (
		ds      Dataset
		issues  []Issue
		lineNum int
	)

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		rec := models.NewRecord(lineNum)
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			reason := "invalid JSON"
			if errors.Is(err, models.ErrNotObject) {
				reason = "record is not a JSON object"
			}
			issues = append(issues, Issue{
				Kind:   IssueMalformedRecord,
				Line:   lineNum,
				Reason: reason,
				Err:    err,
			})
			continue
		}
		ds = append(ds, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return ds, issues, nil
}
