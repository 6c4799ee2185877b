// Package protocol classifies remote hosting platforms and configures a
// working copy's authentication and large-file transport for them.
package protocol

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mkrav/gitdocs/internal/gitcmd"
	"github.com/mkrav/gitdocs/internal/logx"
	"github.com/mkrav/gitdocs/internal/sshkeys"
	"github.com/mkrav/gitdocs/schema"
)

// Classify maps a remote URL to a hosting platform family. Self-hosted
// GitLab instances are recognized by common naming patterns since their
// hostnames are arbitrary.
func Classify(remoteURL string) schema.Flavor {
	url := strings.ToLower(strings.TrimSpace(remoteURL))
	if url == "" {
		return schema.FlavorUnknown
	}
	if strings.Contains(url, "github.com") {
		return schema.FlavorGitHub
	}
	if strings.Contains(url, "gitlab.com") {
		return schema.FlavorGitLab
	}
	if strings.Contains(url, ".gitlab.") ||
		strings.Contains(url, "gitlab-") ||
		strings.HasSuffix(url, "/gitlab") ||
		(strings.Contains(url, "gitlab") && !strings.Contains(url, "github")) {
		return schema.FlavorGitLab
	}
	return schema.FlavorUnknown
}

// SSHFromHTTPS rewrites an https remote into scp-like SSH form
// (git@host:group/project.git). Web-UI path segments such as /-/tree/main
// are stripped. Non-https input is returned unchanged.
func SSHFromHTTPS(httpsURL string) string {
	host, project, ok := SplitRemote(httpsURL)
	if !ok || !strings.HasPrefix(strings.ToLower(httpsURL), "https://") {
		return httpsURL
	}
	return "git@" + host + ":" + project + ".git"
}

// SplitRemote extracts host and project path from an https, scp-like or
// ssh:// remote. The project path carries no leading slash and no .git
// suffix.
func SplitRemote(remote string) (host, project string, ok bool) {
	remote = strings.TrimSpace(remote)
	var rest string
	switch {
	case strings.HasPrefix(remote, "https://"):
		rest = strings.TrimPrefix(remote, "https://")
		host, rest, ok = cutHost(rest, "/")
	case strings.HasPrefix(remote, "http://"):
		rest = strings.TrimPrefix(remote, "http://")
		host, rest, ok = cutHost(rest, "/")
	case strings.HasPrefix(remote, "ssh://"):
		rest = strings.TrimPrefix(remote, "ssh://")
		rest = strings.TrimPrefix(rest, "git@")
		host, rest, ok = cutHost(rest, "/")
	case strings.HasPrefix(remote, "git@"):
		rest = strings.TrimPrefix(remote, "git@")
		host, rest, ok = cutHost(rest, ":")
	default:
		return "", "", false
	}
	if !ok {
		return "", "", false
	}
	if i := strings.Index(rest, "/-/"); i >= 0 {
		rest = rest[:i]
	}
	rest = strings.Trim(rest, "/")
	rest = strings.TrimSuffix(rest, ".git")
	if host == "" || rest == "" {
		return "", "", false
	}
	return host, rest, true
}

func cutHost(s, sep string) (host, rest string, ok bool) {
	i := strings.Index(s, sep)
	if i <= 0 {
		return "", "", false
	}
	return s[:i], s[i+len(sep):], true
}

// SSHCommand returns the ssh invocation that pins git to one private key.
// Host key checking is disabled because working copies are created
// unattended; there is no terminal to answer the prompt on.
func SSHCommand(keyPath string) string {
	return "ssh -i " + keyPath + " -o StrictHostKeyChecking=no -o IdentitiesOnly=yes"
}

// Configurator wires authentication and LFS transport into a working copy.
type Configurator struct {
	run     gitcmd.Runner
	keys    *sshkeys.Store
	credDir string
	exts    []string
}

// New constructs a Configurator. credDir holds per-principal credential
// store files for HTTPS remotes; docExts are the document extensions kept
// lockable in .gitattributes.
func New(run gitcmd.Runner, keys *sshkeys.Store, credDir string, docExts []string) *Configurator {
	return &Configurator{run: run, keys: keys, credDir: credDir, exts: docExts}
}

// Configure sets up auth and large-file transport for the binding's working
// copy. token is the platform access token (PAT or GitLab private token);
// it is ignored for SSH remotes. The returned CredentialRef records what
// was configured so the binding can be persisted with it.
//
// The LFS endpoint is always derived from the remote URL read back from
// the working copy, never from binding.RemoteURL, since the two drift
// (setup may have rewritten https to SSH form).
func (c *Configurator) Configure(ctx context.Context, binding schema.RepositoryBinding, token string) (schema.CredentialRef, error) {
	log := logx.Ctx(ctx).With("repo_path", binding.LocalPath)

	flavor := Classify(binding.RemoteURL)
	if flavor == schema.FlavorUnknown {
		return schema.CredentialRef{}, &schema.ConfigurationError{
			Reason: fmt.Sprintf("unsupported hosting platform for remote %q", binding.RemoteURL),
		}
	}

	if out, err := c.run.Run(ctx, binding.LocalPath, "lfs", "install", "--local"); err != nil {
		return schema.CredentialRef{}, &schema.ConfigurationError{
			Reason: "git lfs install failed: " + gitcmd.Truncate(out, 200),
		}
	}

	c.ensureLockable(ctx, binding)

	actual := c.actualRemote(ctx, binding)

	if err := c.configureCommitter(ctx, binding, actual); err != nil {
		return schema.CredentialRef{}, err
	}

	var ref schema.CredentialRef
	var err error
	switch flavor {
	case schema.FlavorGitHub:
		ref, err = c.configureGitHub(ctx, binding, token)
	case schema.FlavorGitLab:
		if strings.HasPrefix(actual, "git@") || strings.HasPrefix(actual, "ssh://") {
			ref, err = c.configureGitLabSSH(ctx, binding, actual)
		} else {
			ref, err = c.configureGitLabHTTPS(ctx, binding, actual, token)
		}
	}
	if err != nil {
		return schema.CredentialRef{}, err
	}
	log.Info("protocol configured", "flavor", flavor, "credential", ref.Kind)
	return ref, nil
}

// ensureLockable keeps each document extension LFS-tracked and lockable in
// the working copy's .gitattributes. Missing lines are appended and
// committed so every clone of the repository agrees on what is lockable.
// Failures are logged and setup continues.
func (c *Configurator) ensureLockable(ctx context.Context, binding schema.RepositoryBinding) {
	if len(c.exts) == 0 {
		return
	}
	log := logx.Ctx(ctx).With("repo_path", binding.LocalPath)
	path := filepath.Join(binding.LocalPath, ".gitattributes")
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		log.Warn("gitattributes read failed", "err", err)
		return
	}
	var missing []string
	for _, ext := range c.exts {
		pattern := "*" + ext
		if !hasLockableLine(string(existing), pattern) {
			missing = append(missing, pattern+" filter=lfs diff=lfs merge=lfs -text lockable")
		}
	}
	if len(missing) == 0 {
		return
	}
	content := string(existing)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += strings.Join(missing, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		log.Warn("gitattributes write failed", "err", err)
		return
	}
	if out, err := c.run.Run(ctx, binding.LocalPath, "add", ".gitattributes"); err != nil {
		log.Warn("gitattributes stage failed", "err", err, "output", gitcmd.Truncate(out, 200))
		return
	}
	if out, err := c.run.Run(ctx, binding.LocalPath, "commit", "-m", "Mark documents lockable in LFS"); err != nil {
		log.Warn("gitattributes commit failed", "err", err, "output", gitcmd.Truncate(out, 200))
		return
	}
	log.Debug("gitattributes updated", "patterns", len(missing))
}

func hasLockableLine(content, pattern string) bool {
	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == pattern && strings.Contains(line, "lockable") {
			return true
		}
	}
	return false
}

// actualRemote reads the configured origin URL from the working copy,
// falling back to the stored URL when the read fails.
func (c *Configurator) actualRemote(ctx context.Context, binding schema.RepositoryBinding) string {
	out, err := c.run.Run(ctx, binding.LocalPath, "remote", "get-url", "origin")
	if err != nil {
		logx.Ctx(ctx).Warn("remote read-back failed, using stored URL",
			"repo_path", binding.LocalPath, "err", err)
		return binding.RemoteURL
	}
	return strings.TrimSpace(out)
}

func (c *Configurator) configureCommitter(ctx context.Context, binding schema.RepositoryBinding, actual string) error {
	name := string(binding.VCSUsername)
	if name == "" {
		name = string(binding.PrincipalID)
	}
	host, _, ok := SplitRemote(actual)
	if !ok {
		host = "invalid"
	}
	email := name + "@users.noreply." + host
	if out, err := c.run.Run(ctx, binding.LocalPath, "config", "user.name", name); err != nil {
		return &schema.ConfigurationError{Reason: "set user.name failed: " + gitcmd.Truncate(out, 200)}
	}
	if out, err := c.run.Run(ctx, binding.LocalPath, "config", "user.email", email); err != nil {
		return &schema.ConfigurationError{Reason: "set user.email failed: " + gitcmd.Truncate(out, 200)}
	}
	return nil
}

func (c *Configurator) configureGitHub(ctx context.Context, binding schema.RepositoryBinding, token string) (schema.CredentialRef, error) {
	line := fmt.Sprintf("https://%s:%s@github.com\n", binding.VCSUsername, token)
	path, err := c.writeCredentialFile(binding.PrincipalID, line)
	if err != nil {
		// Setup continues; git will prompt on the next network operation.
		logx.Ctx(ctx).Warn("credential persist failed, continuing degraded",
			"chat_id", binding.PrincipalID, "err", err)
		return schema.CredentialRef{Kind: "prompt"}, nil
	}
	if out, cfgErr := c.run.Run(ctx, binding.LocalPath, "config", "credential.helper", "store --file="+path); cfgErr != nil {
		return schema.CredentialRef{}, &schema.ConfigurationError{
			Reason: "set credential.helper failed: " + gitcmd.Truncate(out, 200),
		}
	}
	return schema.CredentialRef{Kind: "token", Path: path}, nil
}

func (c *Configurator) configureGitLabSSH(ctx context.Context, binding schema.RepositoryBinding, actual string) (schema.CredentialRef, error) {
	if _, err := c.keys.EnsureKey(binding.PrincipalID); err != nil {
		return schema.CredentialRef{}, &schema.ConfigurationError{
			Reason: "ssh key generation failed, retry setup: " + err.Error(),
		}
	}
	keyPath := c.keys.PrivateKeyPath(binding.PrincipalID)
	if out, err := c.run.Run(ctx, binding.LocalPath, "config", "core.sshCommand", SSHCommand(keyPath)); err != nil {
		return schema.CredentialRef{}, &schema.ConfigurationError{
			Reason: "set core.sshCommand failed: " + gitcmd.Truncate(out, 200),
		}
	}
	host, project, ok := SplitRemote(actual)
	if !ok {
		return schema.CredentialRef{}, &schema.ConfigurationError{
			Reason: fmt.Sprintf("cannot derive LFS endpoint from remote %q", actual),
		}
	}
	// SSH transport for LFS too, so one registered key covers both.
	lfsURL := "ssh://git@" + host + "/" + project + ".git"
	if out, err := c.run.Run(ctx, binding.LocalPath, "config", "lfs.url", lfsURL); err != nil {
		return schema.CredentialRef{}, &schema.ConfigurationError{
			Reason: "set lfs.url failed: " + gitcmd.Truncate(out, 200),
		}
	}
	return schema.CredentialRef{Kind: "keypair", Path: keyPath}, nil
}

func (c *Configurator) configureGitLabHTTPS(ctx context.Context, binding schema.RepositoryBinding, actual, token string) (schema.CredentialRef, error) {
	host, project, ok := SplitRemote(actual)
	if !ok {
		return schema.CredentialRef{}, &schema.ConfigurationError{
			Reason: fmt.Sprintf("cannot derive LFS endpoint from remote %q", actual),
		}
	}
	ref := schema.CredentialRef{Kind: "prompt"}
	line := fmt.Sprintf("https://oauth2:%s@%s\n", token, host)
	path, err := c.writeCredentialFile(binding.PrincipalID, line)
	if err != nil {
		logx.Ctx(ctx).Warn("credential persist failed, continuing degraded",
			"chat_id", binding.PrincipalID, "err", err)
	} else {
		if out, cfgErr := c.run.Run(ctx, binding.LocalPath, "config", "credential.helper", "store --file="+path); cfgErr != nil {
			return schema.CredentialRef{}, &schema.ConfigurationError{
				Reason: "set credential.helper failed: " + gitcmd.Truncate(out, 200),
			}
		}
		ref = schema.CredentialRef{Kind: "token", Path: path}
	}
	lfsURL := "https://" + host + "/" + project + ".git"
	if out, err := c.run.Run(ctx, binding.LocalPath, "config", "lfs.url", lfsURL); err != nil {
		return schema.CredentialRef{}, &schema.ConfigurationError{
			Reason: "set lfs.url failed: " + gitcmd.Truncate(out, 200),
		}
	}
	return ref, nil
}

func (c *Configurator) writeCredentialFile(id schema.ChatID, line string) (string, error) {
	if err := os.MkdirAll(c.credDir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(c.credDir, "git-credentials-"+string(id))
	if err := os.WriteFile(path, []byte(line), 0o600); err != nil {
		return "", err
	}
	return path, nil
}
