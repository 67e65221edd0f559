package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/berfenger/elvia2mqtt/internal/core/domain"
	"github.com/berfenger/elvia2mqtt/internal/core/port"
	"github.com/berfenger/elvia2mqtt/pkg/elvia"

	"go.uber.org/zap"
)

// Coordinator sets entries up and down. It owns one RuntimeState per entry
// and hands it by reference to the sensor platform.
type Coordinator struct {
	newClient port.MeterClientFactory
	platform  port.PlatformAdapter
	logger    *zap.Logger

	mu           sync.RWMutex
	globalConfig any
	data         map[string]*domain.RuntimeState
}

func NewCoordinator(newClient port.MeterClientFactory, platform port.PlatformAdapter, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		newClient: newClient,
		platform:  platform,
		logger:    logger.With(zap.String("component", "coordinator")),
		data:      map[string]*domain.RuntimeState{},
	}
}

func (c *Coordinator) Setup(_ context.Context, globalConfig any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.globalConfig = globalConfig
	return true
}

// SetupEntry returns (false, nil) when Elvia timed out, so the host can retry
// later. Every other failure is returned as is.
func (c *Coordinator) SetupEntry(ctx context.Context, entry domain.ConfigEntry) (bool, error) {
	c.mu.Lock()
	state := domain.NewRuntimeState(c.globalConfig)
	state.SetEntryData(entry.Data)
	c.data[entry.EntryId] = state
	c.mu.Unlock()

	result, err := c.newClient(entry.Data.Token).GetMeters(ctx)
	if err != nil {
		if elvia.IsTimeout(err) {
			c.logger.Error("Connection timed out while contacting Elvia. Please try again later.",
				zap.String("entry_id", entry.EntryId), zap.Error(err))
			return false, nil
		}
		return false, err
	}
	if !result.OK() {
		return false, statusError(result.StatusCode)
	}

	c.mu.Lock()
	state.Meters = result
	c.mu.Unlock()

	c.logger.Debug("coordinator: meters fetched",
		zap.String("entry_id", entry.EntryId), zap.Int("metering_points", len(result.MeteringPoints)))

	if err := c.platform.ForwardEntrySetups(ctx, entry, state, domain.Platforms); err != nil {
		return false, fmt.Errorf("forward entry setups: %w", err)
	}
	return true, nil
}

func (c *Coordinator) UnloadEntry(ctx context.Context, entry domain.ConfigEntry) (bool, error) {
	return c.platform.UnloadPlatforms(ctx, entry, domain.Platforms), nil
}

// Forget drops the runtime state of an unloaded entry.
func (c *Coordinator) Forget(entryId string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, entryId)
}

// State returns a copy of the runtime state of an entry.
func (c *Coordinator) State(entryId string) (domain.RuntimeState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.data[entryId]
	if !ok {
		return domain.RuntimeState{}, false
	}
	return *state, true
}

// ensure interface compliance
var _ port.Integration = (*Coordinator)(nil)
