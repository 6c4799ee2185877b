// Package repo manages per-principal working copies under a fixed root.
package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"pkt.systems/pslog"

	"github.com/mkrav/gitdocs/internal/gitcmd"
	"github.com/mkrav/gitdocs/schema"
)

// Manager handles working-copy discovery, cloning and removal. Each
// principal gets exactly one clone at root/<chat-id>.
type Manager struct {
	root string
	run  gitcmd.Runner
	log  pslog.Logger
}

// NewManager ensures the root exists and returns a Manager.
func NewManager(root string, run gitcmd.Runner) (*Manager, error) {
	return NewManagerWithLogger(root, run, nil)
}

// NewManagerWithLogger ensures the root exists and returns a Manager with
// logging.
func NewManagerWithLogger(root string, run gitcmd.Runner, logger pslog.Logger) (*Manager, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("repo root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("repo_root", root)
	}
	return &Manager{root: root, run: run, log: logger}, nil
}

// Root returns the working-copy root.
func (m *Manager) Root() string {
	return m.root
}

// Path returns the working-copy path for a principal without checking
// whether it exists.
func (m *Manager) Path(id schema.ChatID) string {
	return filepath.Join(m.root, sanitize(string(id)))
}

// Resolve verifies the principal's working copy exists and is a git
// checkout.
func (m *Manager) Resolve(id schema.ChatID) (string, error) {
	path := m.Path(id)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", schema.ErrWorkingCopyMissing
		}
		return "", err
	}
	if !info.IsDir() || !hasGitDir(path) {
		return "", schema.ErrWorkingCopyMissing
	}
	return path, nil
}

// Clone creates the principal's working copy from remoteURL. sshCommand,
// when non-empty, is written into the clone's config so key-based
// fetches work from the first operation on. An existing working copy is
// an error; use Recreate to replace one.
func (m *Manager) Clone(ctx context.Context, id schema.ChatID, remoteURL, sshCommand string) (string, error) {
	path := m.Path(id)
	if _, err := os.Stat(path); err == nil {
		return "", errors.New("working copy already exists: " + path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	args := []string{"clone"}
	if sshCommand != "" {
		args = append(args, "--config", "core.sshCommand="+sshCommand)
	}
	args = append(args, remoteURL, path)
	if out, err := m.run.Run(ctx, m.root, args...); err != nil {
		_ = os.RemoveAll(path)
		if m.log != nil {
			m.log.Warn("clone failed", "chat_id", id, "err", err)
		}
		return "", &schema.TransportError{Op: "clone", Detail: gitcmd.Truncate(out, 300)}
	}
	if m.log != nil {
		m.log.Info("clone ok", "chat_id", id, "path", path)
	}
	return path, nil
}

// Remove deletes the principal's working copy. Missing copies are not an
// error.
func (m *Manager) Remove(id schema.ChatID) error {
	path := m.Path(id)
	if err := os.RemoveAll(path); err != nil {
		if m.log != nil {
			m.log.Warn("remove failed", "chat_id", id, "err", err)
		}
		return err
	}
	if m.log != nil {
		m.log.Info("working copy removed", "chat_id", id, "path", path)
	}
	return nil
}

// Recreate replaces the principal's working copy with a fresh clone.
// Local state that was never pushed is discarded.
func (m *Manager) Recreate(ctx context.Context, id schema.ChatID, remoteURL, sshCommand string) (string, error) {
	if err := m.Remove(id); err != nil {
		return "", err
	}
	return m.Clone(ctx, id, remoteURL, sshCommand)
}

func hasGitDir(path string) bool {
	info, err := os.Stat(filepath.Join(path, ".git"))
	if err != nil {
		return false
	}
	return info.IsDir()
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
