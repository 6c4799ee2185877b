package gitcmd

import "strings"

// Signature is a recognized failure class in git / git-lfs output.
type Signature int

const (
	// SigNone means the output matched no known failure class.
	SigNone Signature = iota
	// SigRebaseBlocked means local changes block a rebase pull.
	SigRebaseBlocked
	// SigAlreadyLocked means the LFS lock already exists.
	SigAlreadyLocked
	// SigUncommitted means uncommitted changes block an LFS unlock.
	SigUncommitted
	// SigAuthFailed means the remote rejected our credentials or SSH key.
	SigAuthFailed
	// SigNonFastForward means the remote refused a push as non-fast-forward.
	SigNonFastForward
	// SigNothingToCommit means a commit found no staged changes.
	SigNothingToCommit
)

// classifiers are checked in order; first match wins. Auth failures are
// checked before the generic classes because LFS surfaces SSH failures
// with otherwise ambiguous wording.
var classifiers = []struct {
	sig     Signature
	needles []string
}{
	{SigAuthFailed, []string{
		"permission denied",
		"authentication failed",
		"could not read username",
		"could not read password",
		"exit status 255",
		"host key verification failed",
	}},
	{SigAlreadyLocked, []string{
		"already locked",
		"lock exists",
	}},
	{SigUncommitted, []string{
		"uncommitted changes",
		"cannot unlock file with uncommitted",
	}},
	{SigRebaseBlocked, []string{
		"unstaged",
		"please commit or stash",
		"cannot pull with rebase",
		"your local changes to the following files would be overwritten",
	}},
	{SigNonFastForward, []string{
		"non-fast-forward",
		"fetch first",
		"updates were rejected",
	}},
	{SigNothingToCommit, []string{
		"nothing to commit",
		"working tree clean",
		"no changes added to commit",
	}},
}

// Classify maps combined process output to a failure signature.
func Classify(output string) Signature {
	lower := strings.ToLower(output)
	for _, c := range classifiers {
		for _, needle := range c.needles {
			if strings.Contains(lower, needle) {
				return c.sig
			}
		}
	}
	return SigNone
}
