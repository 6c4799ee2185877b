// Package locks coordinates lock state against the remote LFS lock
// service. The remote is the only authority: no result is cached between
// calls, so edits made outside this system are always observed.
package locks

import (
	"context"
	"fmt"
	"path"

	"github.com/mkrav/gitdocs/internal/gitcmd"
	"github.com/mkrav/gitdocs/internal/identity"
	"github.com/mkrav/gitdocs/internal/logx"
	"github.com/mkrav/gitdocs/schema"
)

// RestFallback lists lock records for a working copy through a hosting
// platform API. Used when the git-lfs CLI cannot list locks.
type RestFallback func(ctx context.Context, repoDir string) ([]schema.LockRecord, error)

// Coordinator issues lock operations for one repository working copy.
type Coordinator struct {
	run      gitcmd.Runner
	fallback RestFallback
}

// New constructs a Coordinator using the provided git runner.
func New(run gitcmd.Runner) *Coordinator {
	return &Coordinator{run: run}
}

// NewWithFallback constructs a Coordinator that consults fallback for lock
// listings when the git-lfs CLI fails.
func NewWithFallback(run gitcmd.Runner, fallback RestFallback) *Coordinator {
	return &Coordinator{run: run, fallback: fallback}
}

// QueryLock returns the current lock on relPath, or nil when unlocked.
// Every call is a fresh remote query.
func (c *Coordinator) QueryLock(ctx context.Context, repoDir, relPath string) (*schema.LockRecord, error) {
	records, err := c.ListLocks(ctx, repoDir)
	if err != nil {
		return nil, err
	}
	return matchLock(records, relPath), nil
}

// ListLocks returns all current locks in the repository. When the git-lfs
// CLI fails and a REST fallback is configured, the fallback's answer wins.
func (c *Coordinator) ListLocks(ctx context.Context, repoDir string) ([]schema.LockRecord, error) {
	out, err := c.run.Run(ctx, repoDir, "lfs", "locks")
	if err != nil {
		if c.fallback != nil {
			records, ferr := c.fallback(ctx, repoDir)
			if ferr == nil {
				logx.Ctx(ctx).Debug("lock list served by rest fallback", "repo", repoDir)
				return records, nil
			}
			logx.Ctx(ctx).Warn("lock list rest fallback failed", "err", ferr)
		}
		return nil, &schema.TransportError{Op: "list locks", Detail: gitcmd.Truncate(out, 300)}
	}
	return parseList(out), nil
}

// Acquire creates a lock on relPath for the principal. It fails with
// LockConflict when the path is already locked by a different principal.
func (c *Coordinator) Acquire(ctx context.Context, repoDir string, principal schema.Principal, relPath string) error {
	log := logx.WithPrincipal(ctx, principal.ChatID).With("path", relPath)
	current, err := c.QueryLock(ctx, repoDir, relPath)
	if err != nil {
		return err
	}
	if current != nil && !identity.Resolve(principal, current.Owner).IsOwner {
		log.Info("lock acquire refused", "owner", current.Owner)
		return &schema.LockConflictError{Path: relPath, Owner: current.Owner}
	}
	out, err := c.run.Run(ctx, repoDir, "lfs", "lock", normalizePath(relPath))
	if err != nil {
		switch gitcmd.Classify(out) {
		case gitcmd.SigAlreadyLocked:
			// Lost the race between query and create; report whoever
			// the remote says holds it now.
			owner := "unknown"
			if rec, qerr := c.QueryLock(ctx, repoDir, relPath); qerr == nil && rec != nil {
				owner = rec.Owner
			}
			log.Info("lock acquire conflict", "owner", owner)
			return &schema.LockConflictError{Path: relPath, Owner: owner}
		default:
			log.Warn("lock acquire failed", "err", err)
			return &schema.TransportError{Op: "create lock", Detail: gitcmd.Truncate(out, 300)}
		}
	}
	log.Info("lock acquired")
	return nil
}

// Release removes the lock on relPath. The principal must own the lock or
// be an admin. A rejection for uncommitted changes triggers exactly one
// auto-commit-then-retry cycle before the failure is surfaced.
func (c *Coordinator) Release(ctx context.Context, repoDir string, principal schema.Principal, relPath string) error {
	log := logx.WithPrincipal(ctx, principal.ChatID).With("path", relPath)
	current, err := c.QueryLock(ctx, repoDir, relPath)
	if err != nil {
		return err
	}
	if current == nil {
		return schema.ErrLockNotHeld
	}
	if !identity.Resolve(principal, current.Owner).CanUnlock {
		log.Info("lock release refused", "owner", current.Owner)
		return fmt.Errorf("%w (owner %s)", schema.ErrNotLockOwner, current.Owner)
	}

	out, err := c.unlock(ctx, repoDir, current, relPath, false)
	if err == nil {
		log.Info("lock released")
		return nil
	}
	switch gitcmd.Classify(out) {
	case gitcmd.SigUncommitted:
		// The pointer file has local modifications; commit them once
		// and retry, mirroring the remote's own recovery advice.
		if _, aerr := c.run.Run(ctx, repoDir, "add", normalizePath(relPath)); aerr == nil {
			_, _ = c.run.Run(ctx, repoDir, "commit", "-m", "Commit pending changes before unlock of "+path.Base(relPath))
			out2, err2 := c.unlock(ctx, repoDir, current, relPath, false)
			if err2 == nil {
				log.Info("lock released after auto-commit")
				return nil
			}
			out = out2
		}
		log.Warn("lock release blocked", "output", gitcmd.Truncate(out, 200))
		return &schema.SyncBlockedError{Diagnostic: "unlock blocked by uncommitted changes: " + gitcmd.Truncate(out, 300)}
	case gitcmd.SigAuthFailed:
		log.Warn("lock release auth failure", "err", err)
		return &schema.TransportError{Op: "unlock", Detail: gitcmd.Truncate(out, 300)}
	default:
		log.Warn("lock release failed", "err", err)
		return &schema.TransportError{Op: "unlock", Detail: gitcmd.Truncate(out, 300)}
	}
}

// ForceRelease removes the lock regardless of ownership. Admin-only.
func (c *Coordinator) ForceRelease(ctx context.Context, repoDir string, principal schema.Principal, relPath string) error {
	if !principal.IsAdmin {
		return schema.ErrAdminOnly
	}
	log := logx.WithPrincipal(ctx, principal.ChatID).With("path", relPath)
	current, err := c.QueryLock(ctx, repoDir, relPath)
	if err != nil {
		return err
	}
	// A stale listing must not block an admin: force unlock by path even
	// when the query saw no lock, and let the remote decide.
	if current == nil {
		current = &schema.LockRecord{Path: normalizePath(relPath)}
	}
	out, err := c.unlock(ctx, repoDir, current, relPath, true)
	if err != nil {
		log.Warn("lock force release failed", "err", err)
		return &schema.TransportError{Op: "force unlock", Detail: gitcmd.Truncate(out, 300)}
	}
	owner := current.Owner
	if owner == "" {
		owner = "unknown"
	}
	log.Info("lock force released", "owner", owner)
	return nil
}

// unlock prefers the lock id when the remote reported one; unlocking by
// id survives path-representation drift between lock and unlock.
func (c *Coordinator) unlock(ctx context.Context, repoDir string, rec *schema.LockRecord, relPath string, force bool) (string, error) {
	args := []string{"lfs", "unlock"}
	if force {
		args = append(args, "--force")
	}
	if rec.ID != "" {
		args = append(args, "--id", rec.ID)
	} else {
		args = append(args, path.Base(normalizePath(relPath)))
	}
	return c.run.Run(ctx, repoDir, args...)
}
