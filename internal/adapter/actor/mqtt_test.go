package actor

import (
	"testing"
	"time"

	"github.com/berfenger/elvia2mqtt/internal/config"
	"github.com/berfenger/elvia2mqtt/internal/core/domain"
	"github.com/berfenger/elvia2mqtt/internal/core/events"
	"github.com/berfenger/elvia2mqtt/internal/mqtt"
	"github.com/berfenger/elvia2mqtt/internal/util"
	"github.com/berfenger/elvia2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDummyMQTTActor(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	context := as.Root

	dummy := NewTestMQTTActor(&cfg, logger)
	props := actor.PropsFromProducer(func() actor.Actor { return dummy })
	pid := context.Spawn(props)
	defer context.Stop(pid)

	health, err := actorutil.Ask[domain.ActorHealthResponse](context, pid, domain.ActorHealthRequest{}, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, health.Healthy)
	assert.Equal(t, domain.ACTOR_ID_MQTT, health.Id)

	device := events.BridgeDevice(cfg.MQTT.BaseTopic)
	disc, err := actorutil.Ask[domain.PublishDiscoveryResponse](context, pid, domain.PublishDiscoveryRequest{
		Sensors: events.BridgeSensors(device),
	}, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, disc.Topics, 1)
	assert.Equal(t, "homeassistant/binary_sensor/"+device.Id+"/bridge/config", disc.Topics[0])

	_, err = actorutil.Ask[domain.PublishSensorUpdateResponse](context, pid, domain.PublishSensorUpdateRequest{
		Event: domain.FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "meters"},
			Value:                  2,
		},
	}, 2*time.Second)
	require.NoError(t, err)

	_, err = actorutil.Ask[domain.RemoveDiscoveryResponse](context, pid, domain.RemoveDiscoveryRequest{
		Topics: disc.Topics,
	}, 2*time.Second)
	require.NoError(t, err)

	rec := dummy.Recorder()
	assert.Equal(t, disc.Topics, rec.Announced())
	assert.Equal(t, disc.Topics, rec.Removed())
	assert.Equal(t, "2", rec.Messages()["elvia/sensor/meters/state"])
	assert.Len(t, rec.Events(), 1)
}

func TestDummyMQTTActorDiscoveryDisabled(t *testing.T) {

	cfg := util.LoadTestConfig()
	cfg.MQTT.HADiscoveryEnable = false

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	dummy := NewTestMQTTActor(&cfg, logger)
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return dummy }))

	device := events.BridgeDevice(cfg.MQTT.BaseTopic)
	disc, err := actorutil.Ask[domain.PublishDiscoveryResponse](as.Root, pid, domain.PublishDiscoveryRequest{
		Sensors: events.BridgeSensors(device),
	}, 2*time.Second)
	require.NoError(t, err)
	assert.Empty(t, disc.Topics)
	assert.Empty(t, dummy.Recorder().Announced())
}

func TestEvent2MQTTMessage(t *testing.T) {

	cfg := util.LoadTestConfig()
	logger := zap.NewNop()

	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	dummy := NewTestMQTTActor(&cfg, logger)
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return dummy }))
	// wait for the client to be created
	_, err := actorutil.Ask[domain.ActorHealthResponse](as.Root, pid, domain.ActorHealthRequest{}, 2*time.Second)
	require.NoError(t, err)

	msg := dummy.event2MQTTMessage(domain.BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "flag"},
		Value:                  true,
	})
	require.NotNil(t, msg)
	assert.Equal(t, "elvia/binary_sensor/flag/state", msg.topic)
	assert.Equal(t, "on", msg.message)

	msg = dummy.event2MQTTMessage(domain.TextSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "mp"},
		Value:                  "consumption",
	})
	require.NotNil(t, msg)
	assert.Equal(t, "elvia/sensor/mp/state", msg.topic)
	assert.Equal(t, "consumption", msg.message)

	assert.Nil(t, dummy.event2MQTTMessage("nope"))
}

// disconnectedMQTTActor runs the real receive loop over a client that never
// connected, so every publish fails.
func disconnectedMQTTActor(cfg *config.Config, logger *zap.Logger) *MQTTActor {
	act := NewMQTTActor(cfg, logger)
	act.client = mqtt.CreateMQTTClient(cfg, mqtt.OptsFromConfig(cfg), nil, nil)
	act.behavior.Become(act.DefaultReceive)
	return act
}

func TestDiscoveryPublishFailuresAreReported(t *testing.T) {

	cfg := util.LoadTestConfig()
	logger := zap.NewNop()

	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return disconnectedMQTTActor(&cfg, logger) }))

	device := events.BridgeDevice(cfg.MQTT.BaseTopic)
	disc, err := actorutil.Ask[domain.PublishDiscoveryResponse](as.Root, pid, domain.PublishDiscoveryRequest{
		Sensors: events.BridgeSensors(device),
	}, 3*time.Second)
	assert.ErrorIs(t, err, pahomqtt.ErrNotConnected)
	assert.Len(t, disc.Topics, 1, "topics returned so they can be cleared")

	_, err = actorutil.Ask[domain.RemoveDiscoveryResponse](as.Root, pid, domain.RemoveDiscoveryRequest{
		Topics: []string{"homeassistant/sensor/elvia_1/meter_count/config"},
	}, 3*time.Second)
	assert.ErrorIs(t, err, pahomqtt.ErrNotConnected)

	// the actor is back to its default state
	health, err := actorutil.Ask[domain.ActorHealthResponse](as.Root, pid, domain.ActorHealthRequest{}, time.Second)
	require.NoError(t, err)
	assert.False(t, health.Healthy)
}
