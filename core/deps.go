package core

import (
	"pkt.systems/pslog"

	"github.com/mkrav/gitdocs/internal/gitcmd"
)

// ServiceDeps captures optional dependencies for the core service.
type ServiceDeps struct {
	// Runner overrides the git runner, mainly for tests.
	Runner gitcmd.Runner
	Logger pslog.Logger
	// GitLabAPIToken enables the REST fallback for lock listings on GitLab
	// remotes whose git-lfs lock output is unavailable.
	GitLabAPIToken string
}
