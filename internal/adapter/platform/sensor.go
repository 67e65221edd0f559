package platform

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/berfenger/elvia2mqtt/internal/core/domain"
	"github.com/berfenger/elvia2mqtt/internal/core/events"
	"github.com/berfenger/elvia2mqtt/internal/core/port"
	"github.com/berfenger/elvia2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const defaultRequestTimeout = 5 * time.Second

var ErrStateNotReady = errors.New("runtime state is not ready")

// MQTTSensorPlatform exposes the sensors of an entry as Home Assistant MQTT
// entities. Discovery topics announced per entry are kept so they can be
// cleared on unload.
type MQTTSensorPlatform struct {
	root   *actor.RootContext
	mqtt   *actor.PID
	logger *zap.Logger

	mu     sync.Mutex
	topics map[string][]string
}

// ensure interface compliance
var _ port.PlatformAdapter = (*MQTTSensorPlatform)(nil)

func NewMQTTSensorPlatform(root *actor.RootContext, mqttPID *actor.PID, logger *zap.Logger) *MQTTSensorPlatform {
	return &MQTTSensorPlatform{
		root:   root,
		mqtt:   mqttPID,
		logger: logger.With(zap.String("platform", string(domain.PLATFORM_SENSOR))),
		topics: map[string][]string{},
	}
}

func (p *MQTTSensorPlatform) ForwardEntrySetups(ctx context.Context, entry domain.ConfigEntry, state *domain.RuntimeState, platforms []domain.Platform) error {
	for _, platform := range platforms {
		if platform != domain.PLATFORM_SENSOR {
			return fmt.Errorf("unsupported platform %q", platform)
		}
	}
	if state == nil || !state.Ready() {
		return ErrStateNotReady
	}

	device := events.EntryDevice(entry)
	sensors := events.EntrySensors(device, state)

	disc, err := actorutil.Ask[domain.PublishDiscoveryResponse](p.root, p.mqtt, domain.PublishDiscoveryRequest{
		Sensors: sensors,
	}, requestTimeout(ctx))
	p.mu.Lock()
	p.topics[entry.EntryId] = mergeTopics(p.topics[entry.EntryId], disc.Topics)
	p.mu.Unlock()
	if err != nil {
		p.withdraw(entry)
		return fmt.Errorf("publish discovery: %w", err)
	}

	for _, event := range events.RuntimeStateToUpdateEvents(device, state) {
		err := ctx.Err()
		if err == nil {
			_, err = actorutil.Ask[domain.PublishSensorUpdateResponse](p.root, p.mqtt, domain.PublishSensorUpdateRequest{
				Retain: true,
				Event:  event,
			}, requestTimeout(ctx))
		}
		if err != nil {
			p.withdraw(entry)
			return fmt.Errorf("publish %s: %w", event.SensorId(), err)
		}
	}

	p.logger.Info("sensors ready", zap.String("entry_id", entry.EntryId), zap.Int("sensors", len(sensors)))
	return nil
}

func (p *MQTTSensorPlatform) UnloadPlatforms(ctx context.Context, entry domain.ConfigEntry, platforms []domain.Platform) bool {
	return p.removeDiscovery(requestTimeout(ctx), entry)
}

// withdraw clears the entities of a setup that could not complete. The
// caller's context may already be done, so it runs on its own timeout. Topics
// that could not be cleared stay recorded for the next unload.
func (p *MQTTSensorPlatform) withdraw(entry domain.ConfigEntry) {
	if !p.removeDiscovery(defaultRequestTimeout, entry) {
		p.logger.Warn("entities of a failed setup are still announced", zap.String("entry_id", entry.EntryId))
	}
}

func (p *MQTTSensorPlatform) removeDiscovery(timeout time.Duration, entry domain.ConfigEntry) bool {
	p.mu.Lock()
	topics := p.topics[entry.EntryId]
	p.mu.Unlock()

	if len(topics) > 0 {
		_, err := actorutil.Ask[domain.RemoveDiscoveryResponse](p.root, p.mqtt, domain.RemoveDiscoveryRequest{
			Topics: topics,
		}, timeout)
		if err != nil {
			p.logger.Error("could not remove sensors", zap.String("entry_id", entry.EntryId), zap.Error(err))
			return false
		}
	}

	p.mu.Lock()
	delete(p.topics, entry.EntryId)
	p.mu.Unlock()
	return true
}

// Announced returns the discovery topics currently held for an entry.
func (p *MQTTSensorPlatform) Announced(entryId string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics[entryId]...)
}

// mergeTopics keeps every topic once, so repeated setups of an entry do not
// grow its list.
func mergeTopics(held, announced []string) []string {
	out := slices.Clone(held)
	for _, topic := range announced {
		if !slices.Contains(out, topic) {
			out = append(out, topic)
		}
	}
	return out
}

func requestTimeout(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left > 0 {
			return left
		}
	}
	return defaultRequestTimeout
}
