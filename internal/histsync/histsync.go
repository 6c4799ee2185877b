// Package histsync reconciles a local working copy with remote history
// through an ordered fallback ladder. Every step preserves user data: an
// unresolved conflict always leaves a recoverable artifact behind (a stash
// entry or an aborted rebase), never a forced resolution.
package histsync

import (
	"context"
	"strings"

	"github.com/mkrav/gitdocs/internal/gitcmd"
	"github.com/mkrav/gitdocs/internal/logx"
	"github.com/mkrav/gitdocs/schema"
)

const stashMarker = "gitdocs-autostash"

// Engine runs the rebase-pull ladder against one working copy.
type Engine struct {
	run gitcmd.Runner
}

// New constructs an Engine using the provided git runner.
func New(run gitcmd.Runner) *Engine {
	return &Engine{run: run}
}

// RebasePull brings repoDir up to date with its remote. pathHint, when
// non-empty, names a file whose pending modification may be auto-committed
// to clear the way for the rebase (step 2 of the ladder). Each ladder step
// runs at most once.
func (e *Engine) RebasePull(ctx context.Context, repoDir, pathHint string) schema.SyncResult {
	log := logx.Ctx(ctx).With("dir", repoDir)

	// Step 1: combined fetch+rebase with automatic stash.
	out, err := e.run.Run(ctx, repoDir, "pull", "--rebase", "--autostash")
	if err == nil {
		log.Debug("rebase pull ok", "step", 1)
		return schema.SyncResult{Success: true}
	}
	if gitcmd.Classify(out) != gitcmd.SigRebaseBlocked {
		log.Warn("rebase pull failed", "step", 1, "err", err)
		return schema.SyncResult{Diagnostic: gitcmd.Truncate(out, 300)}
	}

	statusBefore := e.porcelain(ctx, repoDir)
	log.Info("rebase pull blocked by local changes", "status", statusBefore)

	// Step 2: commit just the hinted path and retry a plain rebase pull.
	if pathHint != "" {
		if _, aerr := e.run.Run(ctx, repoDir, "add", pathHint); aerr == nil {
			_, cerr := e.run.Run(ctx, repoDir, "commit", "-m", "Prepare "+pathHint+" for rebase pull")
			if cerr == nil {
				if _, perr := e.run.Run(ctx, repoDir, "pull", "--rebase"); perr == nil {
					log.Debug("rebase pull ok", "step", 2)
					return schema.SyncResult{Success: true}
				}
			}
		}
	}

	// Step 3: explicit stash (untracked included), rebase, pop.
	out, err = e.run.Run(ctx, repoDir, "stash", "push", "-u", "-m", stashMarker)
	if err != nil {
		return e.failure(ctx, repoDir, out, statusBefore)
	}
	// `stash push` exits 0 without creating an entry when the tree is
	// already clean (step 2 may have committed the only change); popping
	// then would grab an unrelated pre-existing stash.
	stashed := !strings.Contains(out, "No local changes to save")
	if out, err = e.run.Run(ctx, repoDir, "pull", "--rebase"); err != nil {
		// The stash survives; the diagnostics below point at it.
		return e.failure(ctx, repoDir, out, statusBefore)
	}
	if !stashed {
		log.Debug("rebase pull ok", "step", 3)
		return schema.SyncResult{Success: true}
	}
	if popOut, popErr := e.run.Run(ctx, repoDir, "stash", "pop"); popErr != nil {
		// Pop conflicted. git keeps the stash entry on failure, so the
		// user's changes are recoverable; report instead of resolving.
		log.Warn("stash pop conflicted, stash kept", "output", gitcmd.Truncate(popOut, 200))
		return schema.SyncResult{
			Success:    true,
			StashKept:  true,
			Diagnostic: "synced, but restoring local changes conflicted; stash kept: " + gitcmd.Truncate(popOut, 300),
		}
	}
	log.Debug("rebase pull ok", "step", 3)
	return schema.SyncResult{Success: true}
}

func (e *Engine) porcelain(ctx context.Context, repoDir string) string {
	out, err := e.run.Run(ctx, repoDir, "status", "--porcelain")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// failure assembles the step-4 diagnostic: trimmed remote error plus
// working-tree status before and after, and the stash list.
func (e *Engine) failure(ctx context.Context, repoDir, out, statusBefore string) schema.SyncResult {
	statusAfter := e.porcelain(ctx, repoDir)
	stashList := ""
	if listOut, err := e.run.Run(ctx, repoDir, "stash", "list"); err == nil {
		stashList = strings.TrimSpace(listOut)
	}
	var b strings.Builder
	b.WriteString(gitcmd.Truncate(out, 800))
	b.WriteString("\n-- status before --\n")
	b.WriteString(statusBefore)
	b.WriteString("\n-- status after --\n")
	b.WriteString(statusAfter)
	b.WriteString("\n-- stash list --\n")
	b.WriteString(stashList)
	diag := b.String()
	logx.Ctx(ctx).Warn("rebase pull ladder exhausted", "dir", repoDir, "diagnostic", gitcmd.Truncate(diag, 200))
	return schema.SyncResult{Diagnostic: diag}
}
