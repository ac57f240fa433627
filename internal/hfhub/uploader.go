package hfhub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBaseURL is the Hugging Face Hub endpoint
	DefaultBaseURL = "https://huggingface.co"
	// DefaultTimeout is the default timeout for general API operations
	DefaultTimeout = 300 * time.Second
	// LFSUploadTimeout is the timeout for actual LFS file uploads
	LFSUploadTimeout = 600 * time.Second
	// LogPreviewLength is the maximum length for log previews
	LogPreviewLength = 500
	// MaxRetries is the maximum number of retries for failed operations
	MaxRetries = 3
	// MaxConcurrentLFSUploads bounds parallel LFS transfers
	MaxConcurrentLFSUploads = 4
)

// File is one local file and the path it gets in the dataset repository
type File struct {
	LocalPath  string
	PathInRepo string
}

// Uploader pushes session artifacts to a Hugging Face dataset repository
type Uploader struct {
	token        string
	baseURL      string
	httpClient   *http.Client
	lfsClient    *http.Client
	logger       *slog.Logger
	lfsThreshold int64
	backoff      time.Duration
}

// Option customises an Uploader
type Option func(*Uploader)

// WithBaseURL points the uploader at another Hub endpoint
func WithBaseURL(baseURL string) Option {
	return func(u *Uploader) { u.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithLFSThreshold changes the size at which files go through LFS
func WithLFSThreshold(n int64) Option {
	return func(u *Uploader) { u.lfsThreshold = n }
}

// WithBackoff sets the first retry delay; later retries double it
func WithBackoff(d time.Duration) Option {
	return func(u *Uploader) { u.backoff = d }
}

// NewUploader creates a new Hugging Face Hub uploader
func NewUploader(token string, logger *slog.Logger, opts ...Option) *Uploader {
	u := &Uploader{
		token:        token,
		baseURL:      DefaultBaseURL,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		lfsClient:    &http.Client{Timeout: LFSUploadTimeout},
		logger:       logger.With("component", "hf_uploader"),
		lfsThreshold: LFSThreshold,
		backoff:      2 * time.Second,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload creates the dataset repository if needed and commits files to main
func (u *Uploader) Upload(ctx context.Context, repoID string, files []File) error {
	if len(files) == 0 {
		return fmt.Errorf("no files to upload")
	}
	if _, _, ok := strings.Cut(repoID, "/"); !ok {
		return fmt.Errorf("invalid repo_id format, expected 'username/reponame', got '%s'", repoID)
	}

	u.logger.Info("Starting upload to Hugging Face Hub", "repo_id", repoID, "files", len(files))

	if err := u.retry(ctx, "create repository", func() error { return u.createRepo(ctx, repoID) }); err != nil {
		return fmt.Errorf("failed to create repository: %w", err)
	}

	operations := []CommitOperation{gitAttributesOperation()}
	var lfsObjects []LFSBatchObject
	localPaths := make(map[string]string) // oid -> local path

	for _, f := range files {
		op, err := PrepareFileOperation(f.LocalPath, f.PathInRepo, u.lfsThreshold)
		if err != nil {
			return fmt.Errorf("failed to prepare %s: %w", f.LocalPath, err)
		}
		operations = append(operations, *op)

		if op.LFSFile != nil {
			lfsObjects = append(lfsObjects, LFSBatchObject{OID: op.LFSFile.SHA256, Size: op.LFSFile.Size})
			localPaths[op.LFSFile.SHA256] = f.LocalPath
			u.logger.Debug("File will use LFS", "file", f.PathInRepo, "size", op.LFSFile.Size)
		} else {
			u.logger.Debug("File will be embedded", "file", f.PathInRepo)
		}
	}

	if len(lfsObjects) > 0 {
		if err := u.uploadLFS(ctx, repoID, lfsObjects, localPaths); err != nil {
			return err
		}
	}

	message := fmt.Sprintf("Upload tokenized dataset (%d files)", len(files))
	if err := u.retry(ctx, "commit", func() error {
		return u.createCommit(ctx, repoID, "main", operations, message)
	}); err != nil {
		return fmt.Errorf("failed to create commit: %w", err)
	}

	u.logger.Info("Upload completed successfully",
		"repo_id", repoID,
		"url", fmt.Sprintf("%s/datasets/%s", u.baseURL, repoID))
	return nil
}

func (u *Uploader) uploadLFS(ctx context.Context, repoID string, objects []LFSBatchObject, localPaths map[string]string) error {
	u.logger.Info("Uploading LFS files", "count", len(objects))

	var uploads map[string]*LFSUploadInfo
	if err := u.retry(ctx, "LFS preupload", func() error {
		var err error
		uploads, err = u.preuploadLFS(ctx, repoID, objects)
		return err
	}); err != nil {
		return fmt.Errorf("failed to preupload LFS: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrentLFSUploads)
	for oid, info := range uploads {
		localPath, ok := localPaths[oid]
		if !ok {
			return fmt.Errorf("LFS batch returned unknown object %s", oid)
		}
		g.Go(func() error {
			if err := u.retry(gctx, "LFS upload", func() error {
				return u.uploadLFSFile(gctx, info, localPath)
			}); err != nil {
				return fmt.Errorf("failed to upload LFS file %s: %w", localPath, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// retry runs fn up to MaxRetries+1 times with exponential backoff
func (u *Uploader) retry(ctx context.Context, what string, fn func() error) error {
	var lastErr error
	backoff := u.backoff

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			u.logger.Warn("Retrying "+what, "attempt", attempt, "max_retries", MaxRetries, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		err := fn()
		if err == nil {
			if attempt > 0 {
				u.logger.Info(what+" succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) || ctx.Err() != nil {
			return err
		}
		lastErr = err
		u.logger.Warn(what+" failed", "attempt", attempt, "error", err)
	}

	return fmt.Errorf("%s failed after %d attempts: %w", what, MaxRetries+1, lastErr)
}

// permanentError marks failures that retrying cannot fix, such as 4xx
// responses other than 429
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, LogPreviewLength))
	err := fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return &permanentError{err: err}
	}
	return err
}

func (u *Uploader) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+u.token)
	return req, nil
}

func (u *Uploader) createRepo(ctx context.Context, repoID string) error {
	req, err := u.newRequest(ctx, http.MethodGet, fmt.Sprintf("%s/api/datasets/%s", u.baseURL, repoID), nil)
	if err != nil {
		return err
	}
	resp, err := u.httpClient.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		u.logger.Info("Repository already exists", "repo_id", repoID)
		return nil
	}

	_, repoName, _ := strings.Cut(repoID, "/")
	body, err := json.Marshal(map[string]any{
		"name":    repoName,
		"type":    "dataset",
		"private": false,
	})
	if err != nil {
		return err
	}

	createURL := u.baseURL + "/api/repos/create"
	req, err = u.newRequest(ctx, http.MethodPost, createURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	u.logger.Debug("Creating repository", "url", createURL, "name", repoName)

	resp, err = u.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusConflict:
		u.logger.Info("Repository created", "repo_id", repoID)
		return nil
	default:
		return statusError(resp)
	}
}

func (u *Uploader) createCommit(ctx context.Context, repoID, branch string, operations []CommitOperation, message string) error {
	payload, err := buildCommitPayload(operations, message)
	if err != nil {
		return err
	}

	preview := string(payload)
	if len(preview) > LogPreviewLength {
		preview = preview[:LogPreviewLength] + "..."
	}
	u.logger.Debug("Commit payload (NDJSON)", "preview", preview)

	url := fmt.Sprintf("%s/api/datasets/%s/commit/%s", u.baseURL, repoID, branch)
	req, err := u.newRequest(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}

	u.logger.Info("Commit created successfully", "branch", branch, "operations", len(operations))
	return nil
}
