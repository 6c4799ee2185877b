// Package gitcmd runs git and git-lfs as blocking child processes and
// decodes their failure output into a closed set of signatures, so callers
// never parse stderr themselves.
package gitcmd

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf8"

	"pkt.systems/pslog"
)

// Runner executes git commands in a working directory. Implementations
// return combined output regardless of exit status.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// CLI runs the system git binary. Env entries are appended to the child
// process environment (used to pin GIT_SSH_COMMAND to a principal's key).
type CLI struct {
	Env []string
}

// Run executes a git command in the provided directory.
func (c CLI) Run(ctx context.Context, dir string, args ...string) (string, error) {
	log := pslog.Ctx(ctx).With("dir", dir, "args", strings.Join(args, " "))
	log.Debug("git run start")
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		preview := Truncate(string(output), 200)
		log.Warn("git run failed", "err", err, "output", preview)
		return string(output), fmt.Errorf("git %s failed: %w (%s)", strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	log.Debug("git run ok", "output_len", len(output))
	return string(output), nil
}

// Truncate trims output to at most n bytes for diagnostics, cutting on a
// rune boundary so localized git output stays valid UTF-8.
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
