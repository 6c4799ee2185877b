// Package upload implements the end-to-end document replace operation:
// lock check, integrity gate, history sync, commit and push.
package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mkrav/gitdocs/internal/gitcmd"
	"github.com/mkrav/gitdocs/internal/histsync"
	"github.com/mkrav/gitdocs/internal/identity"
	"github.com/mkrav/gitdocs/internal/locks"
	"github.com/mkrav/gitdocs/internal/logx"
	"github.com/mkrav/gitdocs/schema"
)

// Pipeline performs document replacement in one working copy at a time.
// Concurrency across principals is delegated to the remote lock service;
// the local working copy is never mutex-protected.
type Pipeline struct {
	run      gitcmd.Runner
	locks    *locks.Coordinator
	sync     *histsync.Engine
	maxBytes int64
	// relockAfterPush re-acquires an owner-held lock once the push went
	// through. When false the document is left unlocked after upload.
	relockAfterPush bool
}

// NewPipeline constructs a Pipeline. maxBytes caps the accepted document
// size.
func NewPipeline(run gitcmd.Runner, coord *locks.Coordinator, sync *histsync.Engine, maxBytes int64, relockAfterPush bool) *Pipeline {
	return &Pipeline{run: run, locks: coord, sync: sync, maxBytes: maxBytes, relockAfterPush: relockAfterPush}
}

// Replace overwrites doc with content and publishes the change. The
// description is mandatory and becomes part of the commit message. When
// the new content equals the old, Replace reports a no-op success without
// committing.
func (p *Pipeline) Replace(ctx context.Context, repoDir string, principal schema.Principal, doc schema.Document, content io.Reader, description string) (schema.UploadResult, error) {
	log := logx.Ctx(ctx).With("repo_path", repoDir, "doc", doc.RelPath)

	if strings.TrimSpace(description) == "" {
		return schema.UploadResult{}, schema.ErrEmptyDescription
	}

	rec, err := p.locks.QueryLock(ctx, repoDir, doc.RelPath)
	if err != nil {
		return schema.UploadResult{}, err
	}
	ownsLock := false
	if rec != nil {
		id := identity.Resolve(principal, rec.Owner)
		if !id.IsOwner {
			return schema.UploadResult{}, &schema.LockConflictError{Path: doc.RelPath, Owner: rec.Owner}
		}
		ownsLock = true
	}

	absPath := filepath.Join(repoDir, filepath.FromSlash(doc.RelPath))
	result := schema.UploadResult{}
	// Hash failures on the old content never abort the pipeline.
	if oldHash, oldSize, err := hashFile(absPath); err == nil {
		result.OldHash = oldHash
		result.OldSize = oldSize
	}

	newHash, newSize, err := p.writeContent(absPath, content)
	if err != nil {
		return schema.UploadResult{}, err
	}
	result.NewHash = newHash
	result.NewSize = newSize
	if newSize == 0 || newSize > p.maxBytes {
		p.discardWrite(ctx, repoDir, doc.RelPath, absPath)
		reason := "document is empty"
		if newSize > p.maxBytes {
			reason = fmt.Sprintf("document exceeds the %d byte limit", p.maxBytes)
		}
		return schema.UploadResult{}, &schema.IntegrityError{Reason: reason, Size: newSize}
	}

	// Sync before committing; stale local history turns the later push
	// into a non-fast-forward rejection.
	syncRes := p.sync.RebasePull(ctx, repoDir, doc.RelPath)
	if !syncRes.Success {
		return schema.UploadResult{}, &schema.SyncBlockedError{Diagnostic: syncRes.Diagnostic}
	}
	if syncRes.StashKept {
		result.Warning = syncRes.Diagnostic
	}

	if out, err := p.run.Run(ctx, repoDir, "add", doc.RelPath); err != nil {
		return schema.UploadResult{}, &schema.TransportError{Op: "stage", Detail: gitcmd.Truncate(out, 200)}
	}
	staged, err := p.run.Run(ctx, repoDir, "status", "--porcelain", "--", doc.RelPath)
	if err != nil {
		return schema.UploadResult{}, &schema.TransportError{Op: "status", Detail: gitcmd.Truncate(staged, 200)}
	}
	if strings.TrimSpace(staged) == "" {
		log.Info("replace is a no-op, content unchanged")
		result.Committed = false
		result.OldHash = result.NewHash
		return result, nil
	}

	message := commitMessage(description, principal)
	if out, err := p.run.Run(ctx, repoDir, "commit", "-m", message); err != nil {
		if gitcmd.Classify(out) == gitcmd.SigNothingToCommit {
			result.Committed = false
			result.OldHash = result.NewHash
			return result, nil
		}
		return schema.UploadResult{}, &schema.TransportError{Op: "commit", Detail: gitcmd.Truncate(out, 300)}
	}
	result.Committed = true

	released := false
	if ownsLock {
		// Release before pushing so lock verification on the remote does
		// not reject the push.
		if err := p.locks.Release(ctx, repoDir, principal, doc.RelPath); err != nil {
			log.Warn("pre-push unlock failed, pushing with lock held", "err", err)
		} else {
			released = true
		}
	}

	if err := p.push(ctx, repoDir); err != nil {
		return schema.UploadResult{}, err
	}

	if released && p.relockAfterPush {
		if err := p.locks.Acquire(ctx, repoDir, principal, doc.RelPath); err != nil {
			// The content update already succeeded; surface as a warning.
			log.Warn("lock re-acquire failed after push", "err", err)
			result.Warning = joinWarnings(result.Warning,
				"document updated, but the lock could not be re-acquired: "+err.Error())
		}
	}

	if head, err := p.run.Run(ctx, repoDir, "rev-parse", "HEAD"); err == nil {
		result.CommitID = strings.TrimSpace(head)
	}
	log.Info("replace committed", "commit", result.CommitID, "bytes", result.NewSize)
	return result, nil
}

// writeContent streams content into path, returning its sha256 and size.
// Reads are capped just above the limit so an oversized upload cannot
// exhaust disk space unbounded.
func (p *Pipeline) writeContent(absPath string, content io.Reader) (string, int64, error) {
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", 0, err
	}
	f, err := os.Create(absPath)
	if err != nil {
		return "", 0, err
	}
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), io.LimitReader(content, p.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(absPath)
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// discardWrite removes a rejected upload and restores the previous
// committed content when there is one.
func (p *Pipeline) discardWrite(ctx context.Context, repoDir, relPath, absPath string) {
	_ = os.Remove(absPath)
	if out, err := p.run.Run(ctx, repoDir, "checkout", "--", relPath); err != nil {
		logx.Ctx(ctx).Debug("restore after rejected upload failed",
			"doc", relPath, "output", gitcmd.Truncate(out, 200))
	}
}

func (p *Pipeline) push(ctx context.Context, repoDir string) error {
	if out, err := p.run.Run(ctx, repoDir, "push", "origin", "HEAD"); err != nil {
		switch gitcmd.Classify(out) {
		case gitcmd.SigNonFastForward:
			return &schema.PushRejectedError{Detail: gitcmd.Truncate(out, 300)}
		default:
			return &schema.TransportError{Op: "push", Detail: gitcmd.Truncate(out, 300)}
		}
	}
	if out, err := p.run.Run(ctx, repoDir, "lfs", "push", "origin", "HEAD"); err != nil {
		return &schema.TransportError{Op: "lfs push", Detail: gitcmd.Truncate(out, 300)}
	}
	return nil
}

func joinWarnings(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + "; " + b
}

func commitMessage(description string, principal schema.Principal) string {
	who := principal.DisplayName
	if who == "" {
		who = string(principal.ChatID)
	}
	if principal.VCSUsername != "" {
		who += " (" + string(principal.VCSUsername) + ")"
	}
	return fmt.Sprintf("%s\n\nUpdated by %s at %s",
		strings.TrimSpace(description), who, time.Now().UTC().Format("2006-01-02 15:04:05"))
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
