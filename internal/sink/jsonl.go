package sink

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/lamim/tunekit/internal/writer"
	"github.com/lamim/tunekit/pkg/models"
)

// JSONL writes one {"input_ids":[...],"attention_mask":[...]} object per line
type JSONL struct {
	file  *writer.AtomicFile
	enc   *json.Encoder
	count int
	err   error
}

// NewJSONL creates a JSONL sink
func NewJSONL(path string) (*JSONL, error) {
	f, err := writer.CreateAtomic(path)
	if err != nil {
		return nil, err
	}
	return &JSONL{file: f, enc: json.NewEncoder(f)}, nil
}

func (s *JSONL) Write(ex models.EncodedExample) error {
	if s.err != nil {
		return s.err
	}
	if err := s.enc.Encode(ex); err != nil {
		s.err = fmt.Errorf("failed to encode example: %w", err)
		return s.err
	}
	s.count++
	return nil
}

// Close commits the file, or discards it if a write failed
func (s *JSONL) Close() error {
	if s.err != nil {
		s.file.Abort()
		return s.err
	}
	return s.file.Commit()
}

func (s *JSONL) Path() string { return s.file.Path() }

func (s *JSONL) Count() int { return s.count }

// WriteBatches writes collated batches as JSONL, one batch per line
func WriteBatches(path string, batches []models.Batch) error {
	return writer.ReplaceFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		for i, b := range batches {
			if err := enc.Encode(b); err != nil {
				return fmt.Errorf("failed to encode batch %d: %w", i, err)
			}
		}
		return nil
	})
}
