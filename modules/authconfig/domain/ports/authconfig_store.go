package ports

import (
	"context"
	"errors"

	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/types"
)

var ErrProjectNotFound = errors.New("project_not_found")

// ConfigStore is the remote configuration store: one auth config object per project,
// read as a whole and updated with write-merge semantics.
type ConfigStore interface {
	Fetch(ctx context.Context, projectRef string) (types.RemoteConfig, error)
	Update(ctx context.Context, projectRef string, payload types.Payload) (types.RemoteConfig, error)
}

// ConfigInvalidator is implemented by config stores that hold copies of remote
// objects. Manual refresh invalidates before refetching.
type ConfigInvalidator interface {
	Invalidate(ctx context.Context, projectRef string) error
}

// AuthConfigRepository backs the stub store server.
type AuthConfigRepository interface {
	GetAuthConfig(ctx context.Context, projectRef string) (types.RemoteConfig, error)
	MergeAuthConfig(ctx context.Context, projectRef string, patch types.RemoteConfig) (types.RemoteConfig, error)
}

// PermissionChecker answers whether the caller may mutate resourceKind under projectRef.
// Errors count as a denial; they never block reads.
type PermissionChecker interface {
	CanMutate(ctx context.Context, projectRef string, resourceKind string) bool
}

type Notifier interface {
	Notify(ctx context.Context, n types.Notification)
}
