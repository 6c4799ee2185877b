package gitcmd

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		output string
		want   Signature
	}{
		{"empty", "", SigNone},
		{"success output", "Locked docs/spec.docx", SigNone},
		{"rebase unstaged", "error: cannot pull with rebase: You have unstaged changes.", SigRebaseBlocked},
		{"rebase commit or stash", "Please commit or stash them.", SigRebaseBlocked},
		{"overwrite warning", "Your local changes to the following files would be overwritten by merge", SigRebaseBlocked},
		{"already locked", "Lock failed: docs/spec.docx already locked by alice", SigAlreadyLocked},
		{"uncommitted unlock", "Cannot unlock file with uncommitted changes", SigUncommitted},
		{"ssh denied", "git@gitlab.example.com: Permission denied (publickey).", SigAuthFailed},
		{"https auth", "fatal: Authentication failed for 'https://gitlab.com/g/p.git'", SigAuthFailed},
		{"ssh 255", "exit status 255", SigAuthFailed},
		{"non fast forward", "! [rejected] main -> main (non-fast-forward)", SigNonFastForward},
		{"fetch first", "Updates were rejected because the remote contains work you do not have", SigNonFastForward},
		{"nothing to commit", "nothing to commit, working tree clean", SigNothingToCommit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.output); got != tc.want {
				t.Fatalf("Classify(%q) = %d, want %d", tc.output, got, tc.want)
			}
		})
	}
}

func TestClassifyAuthBeatsLockWording(t *testing.T) {
	// LFS over broken SSH reports both, auth must win so the user is told
	// to fix credentials instead of chasing a phantom lock.
	out := "Lock failed: Permission denied (publickey). already locked?"
	if got := Classify(out); got != SigAuthFailed {
		t.Fatalf("Classify = %d, want SigAuthFailed", got)
	}
}
