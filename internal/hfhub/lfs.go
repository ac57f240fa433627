package hfhub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
)

// LFSUploadInfo contains upload information for an LFS file
type LFSUploadInfo struct {
	OID       string
	Size      int64
	UploadURL string            // empty when the server already has the object
	Header    map[string]string // from actions.upload.header
}

// LFSBatchObject represents an object in the LFS batch request/response
type LFSBatchObject struct {
	OID     string      `json:"oid"`
	Size    int64       `json:"size"`
	Actions *LFSActions `json:"actions,omitempty"`
}

// LFSActions contains upload and verify actions
type LFSActions struct {
	Upload *LFSAction `json:"upload,omitempty"`
	Verify *LFSAction `json:"verify,omitempty"`
}

// LFSAction represents an upload or verify action
type LFSAction struct {
	Href   string            `json:"href"`
	Header map[string]string `json:"header"`
}

type lfsBatchRequest struct {
	Operation string           `json:"operation"`
	Transfers []string         `json:"transfers"`
	Objects   []LFSBatchObject `json:"objects"`
	HashAlgo  string           `json:"hash_algo"`
}

type lfsBatchResponse struct {
	Objects  []LFSBatchObject `json:"objects"`
	Transfer string           `json:"transfer,omitempty"`
}

// preuploadLFS asks the Git LFS batch endpoint where each object should go
func (u *Uploader) preuploadLFS(ctx context.Context, repoID string, objects []LFSBatchObject) (map[string]*LFSUploadInfo, error) {
	body, err := json.Marshal(lfsBatchRequest{
		Operation: "upload",
		Transfers: []string{"basic", "multipart"},
		Objects:   objects,
		HashAlgo:  "sha256",
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/datasets/%s.git/info/lfs/objects/batch", u.baseURL, repoID)
	req, err := u.newRequest(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/vnd.git-lfs+json")
	req.Header.Set("Accept", "application/vnd.git-lfs+json")

	u.logger.Debug("LFS batch request", "url", url, "file_count", len(objects))

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp)
	}

	var batch lfsBatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("failed to decode LFS batch response: %w", err)
	}

	uploads := make(map[string]*LFSUploadInfo, len(batch.Objects))
	for _, obj := range batch.Objects {
		info := &LFSUploadInfo{OID: obj.OID, Size: obj.Size}
		if obj.Actions != nil && obj.Actions.Upload != nil {
			info.UploadURL = obj.Actions.Upload.Href
			info.Header = obj.Actions.Upload.Header
		}
		uploads[obj.OID] = info
	}

	u.logger.Info("LFS batch completed", "objects", len(uploads), "transfer", batch.Transfer)
	return uploads, nil
}

// uploadLFSFile sends one object with the basic or multipart protocol
func (u *Uploader) uploadLFSFile(ctx context.Context, info *LFSUploadInfo, path string) error {
	if info.UploadURL == "" {
		u.logger.Debug("LFS file already exists on server", "oid", info.OID)
		return nil
	}
	if chunkSize, ok := info.Header["chunk_size"]; ok {
		return u.uploadMultipart(ctx, info, path, chunkSize)
	}
	return u.uploadBasic(ctx, info, path)
}

func (u *Uploader) uploadBasic(ctx context.Context, info *LFSUploadInfo, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, info.UploadURL, file)
	if err != nil {
		return err
	}
	req.ContentLength = stat.Size()
	req.Header.Set("Content-Type", "application/octet-stream")
	for key, value := range info.Header {
		if !isPartNumber(key) {
			req.Header.Set(key, value)
		}
	}

	resp, err := u.lfsClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}

	u.logger.Info("LFS file uploaded", "oid", info.OID, "size", stat.Size())
	return nil
}

type uploadedPart struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"etag"`
}

func (u *Uploader) uploadMultipart(ctx context.Context, info *LFSUploadInfo, path, chunkSizeStr string) error {
	chunkSize, err := strconv.ParseInt(chunkSizeStr, 10, 64)
	if err != nil || chunkSize <= 0 {
		return &permanentError{err: fmt.Errorf("invalid chunk_size: %s", chunkSizeStr)}
	}

	urls := partURLs(info.Header)
	if len(urls) == 0 {
		return fmt.Errorf("no part URLs found in multipart upload response")
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	numbers := make([]int, 0, len(urls))
	for n := range urls {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	parts := make([]uploadedPart, 0, len(numbers))
	for _, n := range numbers {
		offset := int64(n-1) * chunkSize
		length := min(chunkSize, stat.Size()-offset)
		if length <= 0 {
			return fmt.Errorf("part %d starts past the end of %s", n, path)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPut, urls[n], io.NewSectionReader(file, offset, length))
		if err != nil {
			return fmt.Errorf("failed to create request for part %d: %w", n, err)
		}
		req.ContentLength = length
		req.Header.Set("Content-Type", "application/octet-stream")

		resp, err := u.lfsClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to upload part %d: %w", n, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			err := statusError(resp)
			_ = resp.Body.Close()
			return fmt.Errorf("part %d: %w", n, err)
		}
		etag := resp.Header.Get("ETag")
		_ = resp.Body.Close()
		if etag == "" {
			return fmt.Errorf("no ETag returned for part %d", n)
		}
		parts = append(parts, uploadedPart{PartNumber: n, ETag: etag})
		u.logger.Debug("Uploaded part", "oid", info.OID, "part", n)
	}

	body, err := json.Marshal(struct {
		OID   string         `json:"oid"`
		Parts []uploadedPart `json:"parts"`
	}{OID: info.OID, Parts: parts})
	if err != nil {
		return fmt.Errorf("failed to marshal completion payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, info.UploadURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/vnd.git-lfs+json")
	req.Header.Set("Accept", "application/vnd.git-lfs+json")

	resp, err := u.lfsClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send completion request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("completion request: %w", statusError(resp))
	}

	u.logger.Info("LFS file uploaded (multipart)", "oid", info.OID, "size", stat.Size(), "parts", len(parts))
	return nil
}

// partURLs collects the presigned part URLs, keyed "1", "2", ... in the upload header
func partURLs(header map[string]string) map[int]string {
	out := make(map[int]string)
	for key, value := range header {
		if !isPartNumber(key) {
			continue
		}
		if n, err := strconv.Atoi(key); err == nil && n > 0 {
			out[n] = value
		}
	}
	return out
}

func isPartNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
