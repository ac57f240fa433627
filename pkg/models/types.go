package models

import "time"

// IgnoreIndex marks label positions a trainer should exclude from the loss.
const IgnoreIndex = -100

// EncodedExample is a tokenized record ready for an external trainer
type EncodedExample struct {
	InputIDs      []int `json:"input_ids"`
	AttentionMask []int `json:"attention_mask"`
	Labels        []int `json:"labels,omitempty"`
	// SourceLine is the dataset line the example came from
	SourceLine int `json:"-"`
}

// Batch is a dynamically padded group of examples
type Batch struct {
	InputIDs      [][]int `json:"input_ids"`
	AttentionMask [][]int `json:"attention_mask"`
	Labels        [][]int `json:"labels"`
}

// RunStats tracks statistics for a single run
type RunStats struct {
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	RecordsLoaded   int           `json:"records_loaded"`
	MalformedLines  int           `json:"malformed_lines"`
	RewrittenFields int           `json:"rewritten_fields"`
	ReversedRecords int           `json:"reversed_records"`
	Encoded         int           `json:"encoded"`
	Skipped         int           `json:"skipped"`
	Failed          int           `json:"failed"`
	Truncated       int           `json:"truncated"`
	DroppedTokens   int           `json:"dropped_tokens"`
	TrainExamples   int           `json:"train_examples"`
	TestExamples    int           `json:"test_examples"`
	TotalDuration   time.Duration `json:"total_duration"`
}
