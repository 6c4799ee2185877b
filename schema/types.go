package schema

// ChatID identifies a user in the chat namespace.
type ChatID string

// VCSUsername identifies a user in the hosting-platform namespace.
type VCSUsername string

// Flavor identifies the remote hosting platform family.
type Flavor string

const (
	// FlavorGitHub covers github.com remotes.
	FlavorGitHub Flavor = "github"
	// FlavorGitLab covers gitlab.com and self-hosted GitLab remotes.
	FlavorGitLab Flavor = "gitlab"
	// FlavorUnknown marks remotes that could not be classified.
	FlavorUnknown Flavor = "unknown"
)

// Principal identifies a human across the chat and VCS namespaces.
// Immutable for the duration of a request.
type Principal struct {
	ChatID      ChatID
	VCSUsername VCSUsername
	DisplayName string
	IsAdmin     bool
}

// CredentialRef names the credential material bound to a repository.
// For HTTPS remotes it is the credential-store file path; for SSH remotes
// it is the private key path.
type CredentialRef struct {
	Kind string // "token" or "keypair"
	Path string
}

// RepositoryBinding ties a principal to a local working copy of a remote
// repository. Replaced wholesale on re-setup or resync.
type RepositoryBinding struct {
	PrincipalID ChatID        `json:"principal_id"`
	LocalPath   string        `json:"local_path"`
	RemoteURL   string        `json:"remote_url"`
	Flavor      Flavor        `json:"flavor"`
	Credential  CredentialRef `json:"credential"`
	// TelegramUsername is kept for lock-owner display lookups.
	TelegramUsername string      `json:"telegram_username,omitempty"`
	VCSUsername      VCSUsername `json:"vcs_username,omitempty"`
}

// Document is a shared binary document discovered in a working copy.
// Derived by directory scan, never persisted.
type Document struct {
	Name    string
	RelPath string
}

// LockRecord is the remote lock service's current answer for a path.
// Never cached locally.
type LockRecord struct {
	Path  string
	Owner string
	ID    string
}

// SyncResult reports the outcome of a history reconciliation attempt.
type SyncResult struct {
	Success bool
	// StashKept is true when local changes were synced but an unresolved
	// stash entry was left behind for manual recovery.
	StashKept  bool
	Diagnostic string
}

// UploadResult reports the outcome of a document replace operation.
type UploadResult struct {
	Committed bool
	CommitID  string
	OldHash   string
	NewHash   string
	OldSize   int64
	NewSize   int64
	// Warning carries non-fatal degradations, such as a failed lock
	// re-acquire after a successful push.
	Warning string
}

// Identity is the result of resolving a lock owner token against a principal.
type Identity struct {
	IsOwner   bool
	CanUnlock bool
}
