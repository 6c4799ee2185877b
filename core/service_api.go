package core

import (
	"context"

	"github.com/mkrav/gitdocs/schema"
)

// Service is the transport-agnostic API for collaborative document editing
// over a shared remote repository.
type Service interface {
	Setup(ctx context.Context, req schema.SetupRequest) (schema.SetupResponse, error)
	ConfirmKeyRegistered(ctx context.Context, req schema.ConfirmKeyRequest) (schema.SetupResponse, error)
	Documents(ctx context.Context, req schema.DocumentsRequest) (schema.DocumentsResponse, error)
	Download(ctx context.Context, req schema.DownloadRequest) (schema.DownloadResponse, error)
	Replace(ctx context.Context, req schema.ReplaceRequest) (schema.ReplaceResponse, error)
	Lock(ctx context.Context, req schema.LockRequest) (schema.LockResponse, error)
	Unlock(ctx context.Context, req schema.UnlockRequest) (schema.UnlockResponse, error)
	Locks(ctx context.Context, req schema.LocksRequest) (schema.LocksResponse, error)
	Status(ctx context.Context, req schema.StatusRequest) (schema.StatusResponse, error)
	SyncRepo(ctx context.Context, req schema.SyncRequest) (schema.SyncResponse, error)
	Resync(ctx context.Context, req schema.ResyncRequest) (schema.ResyncResponse, error)
}
