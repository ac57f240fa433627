// Package sink writes encoded examples to disk in a trainer-readable format.
package sink

import (
	"fmt"

	"github.com/lamim/tunekit/pkg/models"
)

// Sink receives encoded examples for one split.
// Nothing is visible at Path until Close succeeds.
type Sink interface {
	Write(ex models.EncodedExample) error
	Close() error
	Path() string
	Count() int
}

// Extension returns the file extension used for a format
func Extension(format models.OutputFormat) string {
	switch format {
	case models.OutputFormatSQLite:
		return "sqlite"
	default:
		return string(format)
	}
}

// New creates a sink of the given format at path. split is recorded where
// the format has room for it.
func New(format models.OutputFormat, path, split string) (Sink, error) {
	switch format {
	case models.OutputFormatJSONL:
		return NewJSONL(path)
	case models.OutputFormatParquet:
		return NewParquet(path)
	case models.OutputFormatSQLite:
		return NewSQLite(path, split)
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteAll writes every example and closes the sink. The sink is closed
// even when a write fails.
func WriteAll(s Sink, examples []models.EncodedExample) error {
	for _, ex := range examples {
		if err := s.Write(ex); err != nil {
			_ = s.Close()
			return fmt.Errorf("failed to write example from line %d: %w", ex.SourceLine, err)
		}
	}
	if err := s.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", s.Path(), err)
	}
	return nil
}
