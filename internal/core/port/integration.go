package port

import (
	"context"

	"github.com/berfenger/elvia2mqtt/internal/core/domain"
)

// Integration is the set of lifecycle hooks the host drives. Boolean results
// follow the host convention: false means "not ready, try later" for setup
// and "could not unload" for unload.
type Integration interface {
	Setup(ctx context.Context, globalConfig any) bool
	SetupEntry(ctx context.Context, entry domain.ConfigEntry) (bool, error)
	UnloadEntry(ctx context.Context, entry domain.ConfigEntry) (bool, error)
	Forget(entryId string)
}

// PlatformAdapter instantiates and tears down the entities of an entry.
type PlatformAdapter interface {
	ForwardEntrySetups(ctx context.Context, entry domain.ConfigEntry, state *domain.RuntimeState, platforms []domain.Platform) error
	UnloadPlatforms(ctx context.Context, entry domain.ConfigEntry, platforms []domain.Platform) bool
}

type EntryStore interface {
	Load() ([]domain.ConfigEntry, error)
	Save(entry domain.ConfigEntry) error
	Delete(entryId string) error
}
