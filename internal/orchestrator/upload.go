package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lamim/tunekit/internal/hfhub"
)

// UploadFiles lists what a tokenize session publishes: every recorded output,
// the manifest, and the config backup renamed to tunekit.toml
func (o *Orchestrator) UploadFiles() []hfhub.File {
	sessionDir := o.session.GetSessionDir()

	var files []hfhub.File
	for _, out := range o.manifestMgr.Manifest().Outputs {
		local, inRepo := out.Path, filepath.ToSlash(out.Path)
		if filepath.IsAbs(local) {
			inRepo = filepath.Base(local)
		} else {
			local = filepath.Join(sessionDir, local)
		}
		files = append(files, hfhub.File{LocalPath: local, PathInRepo: inRepo})
	}

	files = append(files, hfhub.File{LocalPath: o.manifestMgr.Path(), PathInRepo: "manifest.json"})
	if _, err := os.Stat(o.session.GetConfigBackupPath()); err == nil {
		files = append(files, hfhub.File{LocalPath: o.session.GetConfigBackupPath(), PathInRepo: "tunekit.toml"})
	}
	return files
}

// Upload pushes the session to a Hugging Face dataset repository
func (o *Orchestrator) Upload(ctx context.Context, uploader *hfhub.Uploader, repoID string) error {
	files := o.UploadFiles()
	o.logger.Info("Uploading session", "repo_id", repoID, "files", len(files))
	if err := uploader.Upload(ctx, repoID, files); err != nil {
		return fmt.Errorf("failed to upload to Hugging Face: %w", err)
	}
	return nil
}
