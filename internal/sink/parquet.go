package sink

import (
	"fmt"
	"os"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	"github.com/lamim/tunekit/pkg/models"
)

// parquetRow is the on-disk layout; HF datasets reads repeated INT32 columns as int lists
type parquetRow struct {
	InputIDs      []int32 `parquet:"name=input_ids, type=INT32, repetitiontype=REPEATED"`
	AttentionMask []int32 `parquet:"name=attention_mask, type=INT32, repetitiontype=REPEATED"`
	Labels        []int32 `parquet:"name=labels, type=INT32, repetitiontype=REPEATED"`
	SourceLine    int32   `parquet:"name=source_line, type=INT32"`
}

// Parquet writes SNAPPY-compressed parquet
type Parquet struct {
	path    string
	tmpPath string
	file    source.ParquetFile
	pw      *pqwriter.ParquetWriter
	count   int
	err     error
}

// NewParquet creates a parquet sink
func NewParquet(path string) (*Parquet, error) {
	tmpPath := path + ".tmp"
	fw, err := local.NewLocalFileWriter(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet file: %w", err)
	}

	pw, err := pqwriter.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		_ = fw.Close()
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	return &Parquet{path: path, tmpPath: tmpPath, file: fw, pw: pw}, nil
}

func (s *Parquet) Write(ex models.EncodedExample) error {
	if s.err != nil {
		return s.err
	}
	row := parquetRow{
		InputIDs:      toInt32(ex.InputIDs),
		AttentionMask: toInt32(ex.AttentionMask),
		Labels:        toInt32(ex.Labels),
		SourceLine:    int32(ex.SourceLine),
	}
	if err := s.pw.Write(row); err != nil {
		s.err = fmt.Errorf("failed to write parquet row: %w", err)
		return s.err
	}
	s.count++
	return nil
}

// Close flushes the footer and renames the file into place
func (s *Parquet) Close() error {
	if s.err == nil {
		if err := s.pw.WriteStop(); err != nil {
			s.err = fmt.Errorf("failed to flush parquet writer: %w", err)
		}
	}
	if err := s.file.Close(); err != nil && s.err == nil {
		s.err = fmt.Errorf("failed to close parquet file: %w", err)
	}
	if s.err != nil {
		_ = os.Remove(s.tmpPath)
		return s.err
	}
	if err := os.Rename(s.tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to rename parquet file: %w", err)
	}
	return nil
}

func (s *Parquet) Path() string { return s.path }

func (s *Parquet) Count() int { return s.count }

func toInt32(ids []int) []int32 {
	if ids == nil {
		return nil
	}
	out := make([]int32, len(ids))
	for i, id := range ids {
		out[i] = int32(id)
	}
	return out
}
