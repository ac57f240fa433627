package hfhub

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LFSThreshold is the size threshold for using LFS (10MB)
const LFSThreshold = 10 * 1024 * 1024

// CommitOperation adds one file to the repository
type CommitOperation struct {
	Path     string
	Content  string       // base64, small files only
	LFSFile  *LFSFileInfo // large files only
	Encoding string
}

// LFSFileInfo contains information about an LFS file
type LFSFileInfo struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// PrepareFileOperation hashes a file and decides whether it is embedded or sent through LFS
func PrepareFileOperation(localPath, pathInRepo string, threshold int64) (*CommitOperation, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	op := &CommitOperation{Path: pathInRepo}
	if info.Size() < threshold {
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, err
		}
		op.Content = base64.StdEncoding.EncodeToString(data)
		op.Encoding = "base64"
		return op, nil
	}

	hasher := sha256.New()
	size, err := io.Copy(hasher, file)
	if err != nil {
		return nil, err
	}
	op.LFSFile = &LFSFileInfo{SHA256: hex.EncodeToString(hasher.Sum(nil)), Size: size}
	return op, nil
}

type commitLine struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type commitHeader struct {
	Summary     string `json:"summary"`
	Description string `json:"description"`
}

type commitFile struct {
	Content  string `json:"content"`
	Path     string `json:"path"`
	Encoding string `json:"encoding"`
}

type commitLFSFile struct {
	Path string `json:"path"`
	Algo string `json:"algo"`
	OID  string `json:"oid"`
	Size int64  `json:"size"`
}

// buildCommitPayload renders the NDJSON body of the commit API: a header
// line followed by one line per file
func buildCommitPayload(operations []CommitOperation, message string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	if err := enc.Encode(commitLine{Key: "header", Value: commitHeader{Summary: message}}); err != nil {
		return nil, fmt.Errorf("failed to marshal header: %w", err)
	}
	for _, op := range operations {
		line := commitLine{Key: "file", Value: commitFile{Content: op.Content, Path: op.Path, Encoding: op.Encoding}}
		if op.LFSFile != nil {
			line = commitLine{Key: "lfsFile", Value: commitLFSFile{
				Path: op.Path,
				Algo: "sha256",
				OID:  op.LFSFile.SHA256,
				Size: op.LFSFile.Size,
			}}
		}
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("failed to marshal file %s: %w", op.Path, err)
		}
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// gitAttributes keeps binary splits in LFS and JSONL as plain text so the
// Hub viewer can render it
const gitAttributes = `*.parquet filter=lfs diff=lfs merge=lfs -text
*.sqlite filter=lfs diff=lfs merge=lfs -text
*.arrow filter=lfs diff=lfs merge=lfs -text
*.gz filter=lfs diff=lfs merge=lfs -text
*.zst filter=lfs diff=lfs merge=lfs -text
`

func gitAttributesOperation() CommitOperation {
	return CommitOperation{
		Path:     ".gitattributes",
		Content:  base64.StdEncoding.EncodeToString([]byte(gitAttributes)),
		Encoding: "base64",
	}
}
