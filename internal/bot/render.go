package bot

import (
	"errors"
	"fmt"

	"github.com/mkrav/gitdocs/schema"
)

// renderError turns service errors into chat-friendly text. Unrecognized
// errors surface as-is.
func renderError(err error) string {
	var lockConflict *schema.LockConflictError
	var configErr *schema.ConfigurationError
	var transport *schema.TransportError
	var syncBlocked *schema.SyncBlockedError
	var integrity *schema.IntegrityError
	var pushRejected *schema.PushRejectedError
	switch {
	case errors.Is(err, schema.ErrNoBinding):
		return "No repository is configured for this chat. Press " + btnSetup + " to begin."
	case errors.Is(err, schema.ErrDocumentNotFound):
		return "I could not find that document. Press " + btnDocuments + " to see what is available."
	case errors.Is(err, schema.ErrInvalidDocumentName):
		return "That document name cannot be used. Check the file name and extension."
	case errors.Is(err, schema.ErrEmptyDescription):
		return "A change description is required before I can upload."
	case errors.Is(err, schema.ErrLockNotHeld):
		return "That document is not locked."
	case errors.Is(err, schema.ErrNotLockOwner):
		return "The lock is held by someone else. Ask them to release it, or ask an admin."
	case errors.Is(err, schema.ErrAdminOnly):
		return "Only an administrator can do that."
	case errors.Is(err, schema.ErrInvalidRemoteURL):
		return "That does not look like a repository URL I can use."
	case errors.Is(err, schema.ErrWorkingCopyMissing):
		return "The local copy of the repository is gone. Press " + btnResync + " to restore it."
	case errors.As(err, &lockConflict):
		return fmt.Sprintf("%s is currently locked by %s. Try again once they release it.",
			lockConflict.Path, lockConflict.Owner)
	case errors.As(err, &configErr):
		return "Setup problem: " + configErr.Reason
	case errors.As(err, &transport):
		return "Could not reach the remote repository: " + transport.Detail
	case errors.As(err, &syncBlocked):
		return "The repository has conflicting changes that need manual attention:\n" + syncBlocked.Diagnostic
	case errors.As(err, &integrity):
		return "The uploaded file was rejected: " + integrity.Reason
	case errors.As(err, &pushRejected):
		return "The remote refused the change. Someone pushed concurrently; try the upload again."
	}
	return "Something went wrong: " + err.Error()
}

// renderUpload summarizes an upload result for the chat.
func renderUpload(name string, result schema.UploadResult) string {
	if !result.Committed {
		return name + " is already up to date; nothing to upload."
	}
	msg := fmt.Sprintf("Uploaded %s (%d bytes, commit %s).", name, result.NewSize, short(result.CommitID))
	if result.Warning != "" {
		msg += "\n⚠️ " + result.Warning
	}
	return msg
}

func short(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}
