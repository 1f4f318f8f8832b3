package security

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
)

// Validator guards file placement: manifest destinations must stay under the
// provisioning root and fetched artifacts must respect size limits.
type Validator struct {
	maxFileSize  int64
	maxTotalSize int64

	mu               sync.Mutex
	currentTotalSize int64
}

// NewValidator creates a new security validator
func NewValidator(maxFileSize, maxTotalSize int64) *Validator {
	slog.Info("security_validator_init",
		"max_file_size_mb", maxFileSize/1024/1024,
		"max_total_size_mb", maxTotalSize/1024/1024)

	return &Validator{
		maxFileSize:  maxFileSize,
		maxTotalSize: maxTotalSize,
	}
}

// ValidatePath checks that a relative destination cannot escape its root.
// Both slash styles are treated as separators.
func ValidatePath(relPath string) error {
	if relPath == "" {
		return fmt.Errorf("security: empty path")
	}

	slashed := strings.ReplaceAll(relPath, `\`, "/")

	// Reject absolute paths, including drive-qualified and UNC forms
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(relPath) || hasVolume(slashed) {
		slog.Error("security_path_validation_failed", "path", relPath, "reason", "absolute_path")
		return fmt.Errorf("security: absolute path not allowed: %s", relPath)
	}

	// Reject paths that escape the root once cleaned
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(slashed)))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		slog.Error("security_path_validation_failed", "path", relPath, "reason", "path_traversal")
		return fmt.Errorf("security: path traversal detected: %s", relPath)
	}
	if clean == "." {
		return fmt.Errorf("security: path resolves to root: %s", relPath)
	}

	return nil
}

func hasVolume(p string) bool {
	return len(p) >= 2 && p[1] == ':'
}

// ValidateFileSize checks if a file exceeds max file size
func (v *Validator) ValidateFileSize(size int64) error {
	if size < 0 {
		return fmt.Errorf("security: invalid file size %d", size)
	}
	if size > v.maxFileSize {
		slog.Error("security_file_size_exceeded",
			"file_size_mb", size/1024/1024,
			"max_file_size_mb", v.maxFileSize/1024/1024)
		return fmt.Errorf("security: file size %d exceeds max %d", size, v.maxFileSize)
	}
	return nil
}

// MaxFileSize returns the per-file limit.
func (v *Validator) MaxFileSize() int64 {
	return v.maxFileSize
}

// AddExtractedSize tracks total written size and checks against limit
func (v *Validator) AddExtractedSize(size int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.currentTotalSize += size

	if v.currentTotalSize > v.maxTotalSize {
		slog.Error("security_total_size_exceeded",
			"current_total_mb", v.currentTotalSize/1024/1024,
			"max_total_mb", v.maxTotalSize/1024/1024,
			"file_size_mb", size/1024/1024)
		return fmt.Errorf("security: total size %d exceeds max %d",
			v.currentTotalSize, v.maxTotalSize)
	}

	return nil
}

// Reset resets the total size counter
func (v *Validator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.currentTotalSize = 0
}

// GetCurrentTotalSize returns the current total size
func (v *Validator) GetCurrentTotalSize() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.currentTotalSize
}
