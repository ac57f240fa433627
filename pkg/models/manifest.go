package models

import "time"

// RunPhase represents where a run currently is
type RunPhase string

const (
	PhaseLoading      RunPhase = "loading"
	PhaseTransforming RunPhase = "transforming"
	PhaseEncoding     RunPhase = "encoding"
	PhaseWriting      RunPhase = "writing"
	PhaseComplete     RunPhase = "complete"
	PhaseFailed       RunPhase = "failed"
)

// OutputFile describes one artifact produced by a run
type OutputFile struct {
	Path    string `json:"path"`
	Records int    `json:"records"`
	SHA256  string `json:"sha256"`
	Size    int64  `json:"size"`
}

// RunManifest is the saved description of a session
type RunManifest struct {
	// Run identification
	RunID       string    `json:"run_id"` // UUID for this run
	Command     string    `json:"command"`
	CreatedAt   time.Time `json:"created_at"`
	LastSavedAt time.Time `json:"last_saved_at"`

	Phase RunPhase `json:"phase"`
	Error string   `json:"error,omitempty"`

	InputPath string       `json:"input_path"`
	Outputs   []OutputFile `json:"outputs"`

	Stats RunStats `json:"stats"`

	// Configuration snapshot (for comparing runs)
	ConfigHash string `json:"config_hash"`
}
