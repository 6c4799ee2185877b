package schema

import (
	"errors"
	"os"
	"path/filepath"
)

// DefaultMaxUploadBytes caps document uploads at 50 MiB, matching the
// largest binary documents the system is expected to carry.
const DefaultMaxUploadBytes = 50 * 1024 * 1024

// DefaultDocExtensions lists document types discovered by directory scan.
var DefaultDocExtensions = []string{".docx", ".xlsx", ".pptx", ".pdf", ".vsdx"}

// ServiceConfig defines defaults and limits for the core service.
type ServiceConfig struct {
	RepoRoot       string
	StateDir       string
	MaxUploadBytes int64
	DocExtensions  []string
	// AutoUnlockOnUpload releases the caller's lock after a successful upload.
	AutoUnlockOnUpload bool
	// DocsDir is where new documents are created when no existing file matches.
	DocsDir string
}

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	if cfg.RepoRoot == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ServiceConfig{}, err
		}
		cfg.RepoRoot = filepath.Join(home, ".gitdocs", "repos")
	}
	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ServiceConfig{}, err
		}
		cfg.StateDir = filepath.Join(home, ".gitdocs", "state")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if len(cfg.DocExtensions) == 0 {
		cfg.DocExtensions = append([]string(nil), DefaultDocExtensions...)
	}
	for _, ext := range cfg.DocExtensions {
		if ext == "" || ext[0] != '.' {
			return ServiceConfig{}, errors.New("document extensions must start with a dot")
		}
	}
	if cfg.DocsDir == "" {
		cfg.DocsDir = "docs"
	}
	return cfg, nil
}
