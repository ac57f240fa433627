package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/lamim/tunekit/internal/writer"
	"github.com/lamim/tunekit/pkg/models"
)

// ReverseFields names the two fields swapped by DeriveReversed.
type ReverseFields struct {
	Input  string
	Output string
}

// DefaultReverseFields are the field names used by the reference datasets.
var DefaultReverseFields = ReverseFields{Input: "input", Output: "output"}

const escapedNewline = `\n`

// RewriteEscapedNewlines returns a copy of ds in which every string field has
// the two-character sequence backslash-n replaced by a real newline.
// A string that legitimately contains backslash-n is rewritten too.
// The second result is the number of fields that changed.
func RewriteEscapedNewlines(ds Dataset) (Dataset, int) {
	out := make(Dataset, 0, len(ds))
	changed := 0

	for _, rec := range ds {
		next := rec.Clone()
		for _, key := range rec.Keys() {
			s, ok := rec.String(key)
			if !ok || !strings.Contains(s, escapedNewline) {
				continue
			}
			// SetString can only fail for invalid UTF-8, which String never returns
			if err := next.SetString(key, strings.ReplaceAll(s, escapedNewline, "\n")); err != nil {
				continue
			}
			changed++
		}
		out = append(out, next)
	}
	return out, changed
}

// DeriveReversed builds records with input and output swapped, in load order.
// Records lacking either field are skipped and do not count toward limit.
// A limit of zero or less keeps every eligible record.
func DeriveReversed(ds Dataset, fields ReverseFields, limit int) Dataset {
	var out Dataset
	for _, rec := range ds {
		if limit > 0 && len(out) >= limit {
			break
		}
		in, okIn := rec.Get(fields.Input)
		outVal, okOut := rec.Get(fields.Output)
		if !okIn || !okOut {
			continue
		}

		rev := models.NewRecord(rec.Line)
		rev.Set(fields.Input, append(json.RawMessage(nil), outVal...))
		rev.Set(fields.Output, append(json.RawMessage(nil), in...))
		out = append(out, rev)
	}
	return out
}

// Encode writes ds as JSONL to w, one compact object per line.
func Encode(w io.Writer, ds Dataset) error {
	for _, rec := range ds {
		line, err := rec.MarshalJSON()
		if err != nil {
			return fmt.Errorf("failed to marshal record from line %d: %w", rec.Line, err)
		}
		if _, err := w.Write(line); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return fmt.Errorf("failed to write newline: %w", err)
		}
	}
	return nil
}

// WriteFile atomically replaces path with ds encoded as JSONL.
// The previous file is left untouched if any step fails.
func WriteFile(path string, ds Dataset) error {
	if err := writer.ReplaceFile(path, func(w io.Writer) error {
		return Encode(w, ds)
	}); err != nil {
		return fmt.Errorf("failed to write dataset %s: %w", path, err)
	}
	return nil
}
