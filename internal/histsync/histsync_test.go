package histsync

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

type fakeRunner struct {
	scripts map[string][]fakeResponse
	calls   []string
}

type fakeResponse struct {
	out string
	err error
}

func (f *fakeRunner) script(prefix string, out string, err error) {
	if f.scripts == nil {
		f.scripts = map[string][]fakeResponse{}
	}
	f.scripts[prefix] = append(f.scripts[prefix], fakeResponse{out: out, err: err})
}

func (f *fakeRunner) Run(_ context.Context, _ string, args ...string) (string, error) {
	call := strings.Join(args, " ")
	f.calls = append(f.calls, call)
	best := ""
	for prefix := range f.scripts {
		if strings.HasPrefix(call, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return "", nil
	}
	queue := f.scripts[best]
	resp := queue[0]
	if len(queue) > 1 {
		f.scripts[best] = queue[1:]
	}
	return resp.out, resp.err
}

func (f *fakeRunner) called(prefix string) bool {
	for _, call := range f.calls {
		if strings.HasPrefix(call, prefix) {
			return true
		}
	}
	return false
}

const blocked = "error: cannot pull with rebase: You have unstaged changes.\nPlease commit or stash them."

func TestRebasePullFirstStepSucceeds(t *testing.T) {
	run := &fakeRunner{}
	run.script("pull --rebase --autostash", "Already up to date.", nil)
	engine := New(run)

	res := engine.RebasePull(context.Background(), "/repo", "")
	if !res.Success || res.StashKept {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(run.calls) != 1 {
		t.Fatalf("expected a single call, got %v", run.calls)
	}
}

func TestRebasePullUnrecognizedFailureStopsLadder(t *testing.T) {
	run := &fakeRunner{}
	run.script("pull --rebase --autostash", "fatal: unable to access 'https://gitlab.com/g/p.git'", errors.New("exit status 128"))
	engine := New(run)

	res := engine.RebasePull(context.Background(), "/repo", "docs/spec.docx")
	if res.Success {
		t.Fatalf("expected failure, got %+v", res)
	}
	if run.called("stash") || run.called("add") {
		t.Fatalf("ladder must not continue on unrecognized failure: %v", run.calls)
	}
}

func TestRebasePullAutoCommitHint(t *testing.T) {
	run := &fakeRunner{}
	run.script("pull --rebase --autostash", blocked, errors.New("exit status 1"))
	run.script("add docs/spec.docx", "", nil)
	run.script("commit", "", nil)
	run.script("pull --rebase", "Successfully rebased and updated refs/heads/main.", nil)
	engine := New(run)

	res := engine.RebasePull(context.Background(), "/repo", "docs/spec.docx")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if !run.called("add docs/spec.docx") {
		t.Fatalf("expected hinted path staged, got %v", run.calls)
	}
	if run.called("stash push") {
		t.Fatalf("step 3 must not run when step 2 succeeds: %v", run.calls)
	}
}

func TestRebasePullStashLadder(t *testing.T) {
	run := &fakeRunner{}
	run.script("pull --rebase --autostash", blocked, errors.New("exit status 1"))
	run.script("stash push -u -m gitdocs-autostash", "Saved working directory", nil)
	run.script("pull --rebase", "Successfully rebased.", nil)
	run.script("stash pop", "Dropped refs/stash@{0}", nil)
	engine := New(run)

	res := engine.RebasePull(context.Background(), "/repo", "")
	if !res.Success || res.StashKept {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !run.called("stash push -u") || !run.called("stash pop") {
		t.Fatalf("expected stash cycle, got %v", run.calls)
	}
}

// A clean stash push (step 2 committed the only change) must not pop,
// or a pre-existing user stash would be popped instead.
func TestRebasePullSkipsPopWhenNothingStashed(t *testing.T) {
	run := &fakeRunner{}
	run.script("pull --rebase --autostash", blocked, errors.New("exit status 1"))
	run.script("add docs/spec.docx", "", nil)
	run.script("commit", "", nil)
	run.script("pull --rebase", "fatal: unable to access", errors.New("exit status 128"))
	run.script("stash push -u -m gitdocs-autostash", "No local changes to save", nil)
	run.script("pull --rebase", "Successfully rebased.", nil)
	engine := New(run)

	res := engine.RebasePull(context.Background(), "/repo", "docs/spec.docx")
	if !res.Success || res.StashKept {
		t.Fatalf("unexpected result: %+v", res)
	}
	if run.called("stash pop") {
		t.Fatalf("must not pop when nothing was stashed: %v", run.calls)
	}
}

func TestRebasePullPopConflictKeepsStash(t *testing.T) {
	run := &fakeRunner{}
	run.script("pull --rebase --autostash", blocked, errors.New("exit status 1"))
	run.script("stash push -u -m gitdocs-autostash", "Saved working directory", nil)
	run.script("pull --rebase", "Successfully rebased.", nil)
	run.script("stash pop", "CONFLICT (content): Merge conflict in docs/spec.docx", errors.New("exit status 1"))
	engine := New(run)

	res := engine.RebasePull(context.Background(), "/repo", "")
	if !res.Success {
		t.Fatalf("pop conflict still syncs history: %+v", res)
	}
	if !res.StashKept {
		t.Fatalf("expected StashKept, got %+v", res)
	}
	if res.Diagnostic == "" || !strings.Contains(res.Diagnostic, "stash kept") {
		t.Fatalf("expected stash diagnostic, got %q", res.Diagnostic)
	}
	if run.called("stash drop") {
		t.Fatalf("must never drop a conflicted stash: %v", run.calls)
	}
}

func TestRebasePullLadderExhaustedDiagnostics(t *testing.T) {
	run := &fakeRunner{}
	run.script("pull --rebase --autostash", blocked, errors.New("exit status 1"))
	run.script("status --porcelain", " M docs/spec.docx\n?? notes.txt\n", nil)
	run.script("stash push -u -m gitdocs-autostash", "Saved working directory", nil)
	run.script("pull --rebase", "fatal: refusing to merge unrelated histories", errors.New("exit status 128"))
	run.script("stash list", "stash@{0}: On main: gitdocs-autostash\n", nil)
	engine := New(run)

	res := engine.RebasePull(context.Background(), "/repo", "")
	if res.Success {
		t.Fatalf("expected failure, got %+v", res)
	}
	for _, want := range []string{"unrelated histories", "-- status before --", "-- status after --", "-- stash list --", "gitdocs-autostash"} {
		if !strings.Contains(res.Diagnostic, want) {
			t.Fatalf("diagnostic missing %q:\n%s", want, res.Diagnostic)
		}
	}
}

// TestRebasePullRealRepo exercises step 1 against real git: a clone that
// is behind its origin and carries an untracked file syncs cleanly and
// keeps the untracked file.
func TestRebasePullRealRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	root := t.TempDir()
	origin := filepath.Join(root, "origin.git")
	seed := filepath.Join(root, "seed")
	clone := filepath.Join(root, "clone")

	mustGit(t, root, "init", "--bare", origin)
	mustGit(t, root, "clone", origin, seed)
	configureGitUser(t, seed)
	writeFile(t, filepath.Join(seed, "spec.docx"), "v1")
	mustGit(t, seed, "add", "-A")
	mustGit(t, seed, "commit", "-m", "v1")
	mustGit(t, seed, "push", "origin", "HEAD")

	mustGit(t, root, "clone", origin, clone)
	configureGitUser(t, clone)

	// Diverge the remote.
	writeFile(t, filepath.Join(seed, "spec.docx"), "v2")
	mustGit(t, seed, "commit", "-am", "v2")
	mustGit(t, seed, "push", "origin", "HEAD")

	// Local untracked file must survive the sync.
	writeFile(t, filepath.Join(clone, "notes.txt"), "keep me")

	engine := New(gitRunner{})
	res := engine.RebasePull(context.Background(), clone, "")
	if !res.Success {
		t.Fatalf("RebasePull: %+v", res)
	}
	data, err := os.ReadFile(filepath.Join(clone, "spec.docx"))
	if err != nil || string(data) != "v2" {
		t.Fatalf("expected synced content v2, got %q err=%v", data, err)
	}
	if _, err := os.Stat(filepath.Join(clone, "notes.txt")); err != nil {
		t.Fatalf("untracked file lost: %v", err)
	}
}

type gitRunner struct{}

func (gitRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func mustGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func configureGitUser(t *testing.T, dir string) {
	t.Helper()
	mustGit(t, dir, "config", "user.email", "test@example.com")
	mustGit(t, dir, "config", "user.name", "tester")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
