package locks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mkrav/gitdocs/schema"
)

// fakeRunner replays scripted responses per command prefix, consuming
// queued responses in order and repeating the last one when exhausted.
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

var (
	alice = schema.Principal{ChatID: "100", VCSUsername: "alice"}
	bob   = schema.Principal{ChatID: "200", VCSUsername: "bob"}
	admin = schema.Principal{ChatID: "1", VCSUsername: "root", IsAdmin: true}
)

func TestQueryLockIdempotent(t *testing.T) {
	run := &fakeRunner{}
	run.script("lfs locks", "docs/spec.docx alice ID:6\n", nil)
	c := New(run)

	for i := 0; i < 2; i++ {
		rec, err := c.QueryLock(context.Background(), "/repo", "docs/spec.docx")
		if err != nil {
			t.Fatalf("QueryLock: %v", err)
		}
		if rec == nil || rec.Owner != "alice" || rec.ID != "6" {
			t.Fatalf("attempt %d: unexpected record %+v", i, rec)
		}
	}
}

func TestQueryLockTransportError(t *testing.T) {
	run := &fakeRunner{}
	run.script("lfs locks", "ssh: connect to host gitlab.com port 22: Connection refused", errors.New("exit status 2"))
	c := New(run)

	_, err := c.QueryLock(context.Background(), "/repo", "docs/spec.docx")
	var terr *schema.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestAcquireConflictWithOtherOwner(t *testing.T) {
	run := &fakeRunner{}
	run.script("lfs locks", "docs/spec.docx alice ID:6\n", nil)
	c := New(run)

	err := c.Acquire(context.Background(), "/repo", bob, "docs/spec.docx")
	var conflict *schema.LockConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected LockConflictError, got %v", err)
	}
	if conflict.Owner != "alice" {
		t.Fatalf("owner = %q, want alice", conflict.Owner)
	}
	if run.called("lfs lock ") {
		t.Fatalf("must not attempt create lock on conflict")
	}
}

func TestAcquireSuccess(t *testing.T) {
	run := &fakeRunner{}
	run.script("lfs locks", "", nil)
	run.script("lfs lock docs/spec.docx", "Locked docs/spec.docx", nil)
	c := New(run)

	if err := c.Acquire(context.Background(), "/repo", alice, "docs/spec.docx"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !run.called("lfs lock docs/spec.docx") {
		t.Fatalf("expected create lock call, got %v", run.calls)
	}
}

func TestAcquireLostRaceReportsNewOwner(t *testing.T) {
	run := &fakeRunner{}
	// First query: unlocked. Create fails already-locked. Second query
	// reveals who won.
	run.script("lfs locks", "", nil)
	run.script("lfs locks", "docs/spec.docx bob ID:9\n", nil)
	run.script("lfs lock", "Lock failed: docs/spec.docx already locked", errors.New("exit status 2"))
	c := New(run)

	err := c.Acquire(context.Background(), "/repo", alice, "docs/spec.docx")
	var conflict *schema.LockConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected LockConflictError, got %v", err)
	}
	if conflict.Owner != "bob" {
		t.Fatalf("owner = %q, want bob", conflict.Owner)
	}
}

func TestAcquireTransportFailure(t *testing.T) {
	run := &fakeRunner{}
	run.script("lfs locks", "", nil)
	run.script("lfs lock", "Permission denied (publickey).", errors.New("exit status 255"))
	c := New(run)

	err := c.Acquire(context.Background(), "/repo", alice, "docs/spec.docx")
	var terr *schema.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestReleaseNotLocked(t *testing.T) {
	run := &fakeRunner{}
	run.script("lfs locks", "", nil)
	c := New(run)

	err := c.Release(context.Background(), "/repo", alice, "docs/spec.docx")
	if !errors.Is(err, schema.ErrLockNotHeld) {
		t.Fatalf("expected ErrLockNotHeld, got %v", err)
	}
}

func TestReleaseRefusedForNonOwner(t *testing.T) {
	run := &fakeRunner{}
	run.script("lfs locks", "docs/spec.docx alice ID:6\n", nil)
	c := New(run)

	err := c.Release(context.Background(), "/repo", bob, "docs/spec.docx")
	if !errors.Is(err, schema.ErrNotLockOwner) {
		t.Fatalf("expected ErrNotLockOwner, got %v", err)
	}
	if run.called("lfs unlock") {
		t.Fatalf("must not unlock for non-owner")
	}
}

func TestReleaseByOwnerUsesLockID(t *testing.T) {
	run := &fakeRunner{}
	run.script("lfs locks", "docs/spec.docx alice ID:6\n", nil)
	run.script("lfs unlock --id 6", "Unlocked docs/spec.docx", nil)
	c := New(run)

	if err := c.Release(context.Background(), "/repo", alice, "docs/spec.docx"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !run.called("lfs unlock --id 6") {
		t.Fatalf("expected unlock by id, got %v", run.calls)
	}
}

func TestReleaseByAdminSkipsOwnership(t *testing.T) {
	run := &fakeRunner{}
	run.script("lfs locks", "docs/spec.docx alice ID:6\n", nil)
	run.script("lfs unlock", "Unlocked docs/spec.docx", nil)
	c := New(run)

	if err := c.Release(context.Background(), "/repo", admin, "docs/spec.docx"); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestReleaseAutoCommitRetry(t *testing.T) {
	run := &fakeRunner{}
	run.script("lfs locks", "docs/spec.docx alice ID:6\n", nil)
	run.script("lfs unlock --id 6", "Cannot unlock file with uncommitted changes", errors.New("exit status 2"))
	run.script("lfs unlock --id 6", "Unlocked docs/spec.docx", nil)
	run.script("add", "", nil)
	run.script("commit", "", nil)
	c := New(run)

	if err := c.Release(context.Background(), "/repo", alice, "docs/spec.docx"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !run.called("add docs/spec.docx") {
		t.Fatalf("expected auto-commit staging, got %v", run.calls)
	}
}

func TestReleaseAutoCommitRetryOnceThenSyncBlocked(t *testing.T) {
	run := &fakeRunner{}
	run.script("lfs locks", "docs/spec.docx alice ID:6\n", nil)
	run.script("lfs unlock --id 6", "Cannot unlock file with uncommitted changes", errors.New("exit status 2"))
	run.script("add", "", nil)
	run.script("commit", "", nil)
	c := New(run)

	err := c.Release(context.Background(), "/repo", alice, "docs/spec.docx")
	var blocked *schema.SyncBlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected SyncBlockedError, got %v", err)
	}
	unlocks := 0
	for _, call := range run.calls {
		if strings.HasPrefix(call, "lfs unlock") {
			unlocks++
		}
	}
	if unlocks != 2 {
		t.Fatalf("expected exactly one retry (2 unlock calls), got %d", unlocks)
	}
}

func TestForceReleaseRequiresAdmin(t *testing.T) {
	run := &fakeRunner{}
	c := New(run)

	err := c.ForceRelease(context.Background(), "/repo", alice, "docs/spec.docx")
	if !errors.Is(err, schema.ErrAdminOnly) {
		t.Fatalf("expected ErrAdminOnly, got %v", err)
	}
	if len(run.calls) != 0 {
		t.Fatalf("no remote call expected, got %v", run.calls)
	}
}

func TestForceReleaseByAdmin(t *testing.T) {
	run := &fakeRunner{}
	run.script("lfs locks", "docs/spec.docx alice ID:6\n", nil)
	run.script("lfs unlock --force --id 6", "Unlocked docs/spec.docx", nil)
	c := New(run)

	if err := c.ForceRelease(context.Background(), "/repo", admin, "docs/spec.docx"); err != nil {
		t.Fatalf("ForceRelease: %v", err)
	}
	if !run.called("lfs unlock --force --id 6") {
		t.Fatalf("expected forced unlock by id, got %v", run.calls)
	}
}

// A stale empty listing must not stop an admin; the forced unlock goes to
// the remote by basename and the remote has the final word.
func TestForceReleaseIssuesUnlockDespiteEmptyListing(t *testing.T) {
	run := &fakeRunner{}
	run.script("lfs locks", "", nil)
	run.script("lfs unlock --force spec.docx", "Unlocked spec.docx", nil)
	c := New(run)

	if err := c.ForceRelease(context.Background(), "/repo", admin, "docs/spec.docx"); err != nil {
		t.Fatalf("ForceRelease: %v", err)
	}
	if !run.called("lfs unlock --force spec.docx") {
		t.Fatalf("expected forced unlock by basename, got %v", run.calls)
	}
}

func TestListLocksEmpty(t *testing.T) {
	run := &fakeRunner{}
	run.script("lfs locks", "\n", nil)
	c := New(run)

	records, err := c.ListLocks(context.Background(), "/repo")
	if err != nil {
		t.Fatalf("ListLocks: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %+v", records)
	}
}

func TestListLocksUsesRestFallback(t *testing.T) {
	run := &fakeRunner{}
	run.script("lfs locks", "Unexpected error: 500", errors.New("exit status 2"))
	fallback := func(_ context.Context, repoDir string) ([]schema.LockRecord, error) {
		if repoDir != "/repo" {
			t.Fatalf("fallback repo dir = %q", repoDir)
		}
		return []schema.LockRecord{{Path: "docs/spec.docx", Owner: "alice", ID: "6"}}, nil
	}
	c := NewWithFallback(run, fallback)

	records, err := c.ListLocks(context.Background(), "/repo")
	if err != nil {
		t.Fatalf("ListLocks: %v", err)
	}
	if len(records) != 1 || records[0].Owner != "alice" {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestListLocksFallbackFailureSurfacesCLIError(t *testing.T) {
	run := &fakeRunner{}
	run.script("lfs locks", "Unexpected error: 500", errors.New("exit status 2"))
	fallback := func(context.Context, string) ([]schema.LockRecord, error) {
		return nil, errors.New("api unreachable")
	}
	c := NewWithFallback(run, fallback)

	_, err := c.ListLocks(context.Background(), "/repo")
	var terr *schema.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if !strings.Contains(terr.Detail, "500") {
		t.Fatalf("expected CLI output in detail, got %q", terr.Detail)
	}
}

func ExampleCoordinator_QueryLock() {
	run := &fakeRunner{}
	run.script("lfs locks", "docs/spec.docx alice ID:6\n", nil)
	c := New(run)
	rec, _ := c.QueryLock(context.Background(), "/repo", "spec.docx")
	fmt.Println(rec.Owner)
	// Output: alice
}
