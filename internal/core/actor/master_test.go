package actor

import (
	"testing"
	"time"

	adactor "github.com/berfenger/elvia2mqtt/internal/adapter/actor"
	"github.com/berfenger/elvia2mqtt/internal/adapter/storage"
	"github.com/berfenger/elvia2mqtt/internal/core/domain"
	"github.com/berfenger/elvia2mqtt/internal/core/port"
	"github.com/berfenger/elvia2mqtt/internal/util"
	"github.com/berfenger/elvia2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMasterActor(t *testing.T) {

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()
	context := as.Root

	dummy := adactor.NewTestMQTTActor(&cfg, logger)
	var forwardedTo port.PlatformAdapter

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, func() *adactor.MQTTActor {
			return dummy
		}, func(platform port.PlatformAdapter) port.Integration {
			forwardedTo = platform
			return newStubIntegration()
		}, storage.NewEntryFile(""), logger)
	})
	pid, err := context.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)
	defer context.Stop(pid)

	health, err := actorutil.Ask[domain.ActorHealthResponse](context, pid, domain.ActorHealthRequest{}, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, health.Healthy, "healthy is true")
	assert.Equal(t, domain.ACTOR_ID_MASTER, health.Id)
	assert.NotNil(t, forwardedTo)

	// entry requests reach config_entries
	created, err := actorutil.Ask[domain.CreateEntryResponse](context, pid, domain.CreateEntryRequest{
		Title: domain.ENTRY_TITLE,
		Data:  domain.UserInput{Token: "abc", FeatureFlags: domain.DefaultFeatureFlags()},
	}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.ENTRY_STATE_LOADED, created.Entry.State)

	list, err := actorutil.Ask[domain.ListEntriesResponse](context, pid, domain.ListEntriesRequest{}, time.Second)
	require.NoError(t, err)
	require.Len(t, list.Entries, 1)
	assert.Equal(t, created.Entry.EntryId, list.Entries[0].EntryId)

	// bridge discovery is announced at start
	assert.Eventually(t, func() bool {
		return len(dummy.Recorder().Announced()) == 1
	}, 2*time.Second, 50*time.Millisecond)
}
