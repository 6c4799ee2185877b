package schema

import "io"

// SetupRequest binds a principal to a remote repository.
type SetupRequest struct {
	Principal   Principal
	RemoteURL   string
	VCSUsername VCSUsername
	// Token is the platform access token. Empty for GitLab selects SSH
	// transport, which requires out-of-band public key registration.
	Token string
}

// SetupResponse reports the outcome of setup. When KeyRegistrationRequired
// is set the binding does not exist yet; the caller must register
// PublicKey with the hosting platform and then call ConfirmKeyRegistered.
type SetupResponse struct {
	Binding                 RepositoryBinding
	PublicKey               string
	KeyRegistrationRequired bool
}

// ConfirmKeyRequest completes an SSH setup after the public key was
// registered out of band.
type ConfirmKeyRequest struct {
	Principal   Principal
	RemoteURL   string
	VCSUsername VCSUsername
}

// DocumentsRequest lists the shared documents in the principal's
// repository.
type DocumentsRequest struct {
	Principal Principal
}

// DocumentsResponse carries the discovered documents in path order.
type DocumentsResponse struct {
	Documents []Document
}

// DownloadRequest fetches the current version of one document.
type DownloadRequest struct {
	Principal Principal
	Name      string
}

// DownloadResponse points at the synced on-disk copy for delivery.
type DownloadResponse struct {
	Document Document
	Path     string
}

// ReplaceRequest uploads new content for one document.
type ReplaceRequest struct {
	Principal   Principal
	Name        string
	Content     io.Reader
	Description string
}

// ReplaceResponse carries the pipeline result.
type ReplaceResponse struct {
	Result UploadResult
}

// LockRequest acquires the edit lock on one document.
type LockRequest struct {
	Principal Principal
	Name      string
}

// LockResponse reports the resulting lock.
type LockResponse struct {
	Document Document
}

// UnlockRequest releases the edit lock on one document. Force requires an
// admin principal and releases locks held by others.
type UnlockRequest struct {
	Principal Principal
	Name      string
	Force     bool
}

// UnlockResponse reports the released document.
type UnlockResponse struct {
	Document Document
}

// LocksRequest lists the active locks in the principal's repository.
type LocksRequest struct {
	Principal Principal
}

// LocksResponse carries the remote's current lock table.
type LocksResponse struct {
	Locks []LockRecord
}

// StatusRequest summarizes the principal's repository state.
type StatusRequest struct {
	Principal Principal
}

// StatusResponse is a point-in-time summary for display.
type StatusResponse struct {
	Binding       RepositoryBinding
	Branch        string
	DirtyPaths    int
	DocumentCount int
	Locks         []LockRecord
}

// SyncRequest reconciles the principal's working copy with the remote.
type SyncRequest struct {
	Principal Principal
}

// SyncResponse carries the reconciliation outcome.
type SyncResponse struct {
	Result SyncResult
}

// ResyncRequest discards the principal's working copy and clones fresh.
type ResyncRequest struct {
	Principal Principal
}

// ResyncResponse carries the recreated binding.
type ResyncResponse struct {
	Binding RepositoryBinding
}
