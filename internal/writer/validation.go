package writer

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Session name format: session_2025-10-30T14-30-00
var sessionNameRegex = regexp.MustCompile(`^session_\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}$`)

// ValidateSessionPath validates a session directory name before it is joined onto outputDir.
// It rejects:
//   - Path traversal attempts (..)
//   - Absolute paths
//   - Path separators (session name should be a simple directory name)
//   - Names not matching session_YYYY-MM-DDTHH-MM-SS
//   - Paths that resolve outside outputDir
func ValidateSessionPath(outputDir, sessionName string) error {
	if sessionName == "" {
		return fmt.Errorf("session name cannot be empty")
	}

	if strings.Contains(sessionName, "..") {
		return fmt.Errorf("invalid session name: contains '..' (path traversal attempt)")
	}

	if filepath.IsAbs(sessionName) {
		return fmt.Errorf("invalid session name: must be relative path")
	}

	if strings.ContainsAny(sessionName, "/\\") {
		return fmt.Errorf("invalid session name: must be directory name without path separators")
	}

	if !sessionNameRegex.MatchString(sessionName) {
		return fmt.Errorf("invalid session name format: expected 'session_YYYY-MM-DDTHH-MM-SS', got '%s'", sessionName)
	}

	absOutput, err := filepath.Abs(outputDir)
	if err != nil {
		return fmt.Errorf("failed to resolve output directory: %w", err)
	}

	absPath, err := filepath.Abs(filepath.Join(outputDir, sessionName))
	if err != nil {
		return fmt.Errorf("failed to resolve session path: %w", err)
	}

	// Separator suffix prevents "/data/out" matching "/data/out-other"
	if !strings.HasPrefix(absPath, absOutput+string(filepath.Separator)) {
		return fmt.Errorf("session path escapes output directory")
	}

	return nil
}
