package actor

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/elvia2mqtt/internal/config"
	"github.com/berfenger/elvia2mqtt/internal/core/domain"
	"github.com/berfenger/elvia2mqtt/internal/mqtt"
	"github.com/berfenger/elvia2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type MQTTActor struct {
	config   *config.Config
	behavior actor.Behavior
	stash    *actorutil.Stash
	client   *mqtt.MQTTClient
	logger   *zap.Logger
	// only used by the dummy actor
	recorder *PublishRecorder
}

type MQTTConnected struct {
}

type MQTTConnectionLost struct {
	Error error
}

type publishResult struct {
	ReplyTo *actor.PID
	Error   error
}

// batchPublishResult completes a discovery announcement or removal.
type batchPublishResult struct {
	ReplyTo *actor.PID
	Topics  []string
	Removal bool
	Error   error
}

type rawMessage struct {
	topic   string
	message string
	retain  bool
}

func NewMQTTActor(config *config.Config, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:   config,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		root := ctx.ActorSystem().Root
		self := ctx.Self()

		// create MQTT client
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			root.Send(self, MQTTConnectionLost{Error: err})
		})

		// connect to MQTT server
		state.client.Connect(func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			} else {
				root.Send(self, MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected", zap.Int("stashed", state.stash.Len()))
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: state.client.IsConnected(),
			State:   "idle",
		})
	case domain.PublishMessageRequest:
		state.logger.Debug("mqtt@default PublishMessageRequest", zap.String("topic", msg.Topic))
		state.publishMessage(ctx, msg.Topic, msg.Payload, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.PublishSensorUpdateRequest:
		state.logger.Debug("mqtt@default PublishSensorUpdateRequest", zap.String("type", fmt.Sprintf("%T", msg.Event)))
		state.publishSensorValue(ctx, msg.Event, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.PublishDiscoveryRequest:
		state.logger.Debug("mqtt@default PublishDiscoveryRequest", zap.Int("sensors", len(msg.Sensors)))
		state.publishHomeAssistantDiscovery(ctx, msg.Sensors, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.RemoveDiscoveryRequest:
		state.logger.Debug("mqtt@default RemoveDiscoveryRequest", zap.Int("topics", len(msg.Topics)))
		state.removeHomeAssistantDiscovery(ctx, msg.Topics, actorutil.ForRequest(msg).ReplyTo(ctx))
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MQTTActor) event2MQTTMessage(event any) *rawMessage {
	switch msg := event.(type) {
	case domain.FloatSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: fmt.Sprintf(fmt.Sprintf("%%.%df", msg.Decimals), msg.Value),
		}
	case domain.BinarySensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.BinarySensorStateTopic(msg.Id),
			message: bool2MQTTPayload(msg.Value),
			retain:  true,
		}
	case domain.TextSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: msg.Value,
			retain:  true,
		}
	case domain.BridgeStateUpdateEvent:
		stringMessage := mqtt.MQTT_PAYLOAD_OFFLINE
		if msg.Value {
			stringMessage = mqtt.MQTT_PAYLOAD_ONLINE
		}
		return &rawMessage{
			topic:   state.client.BridgeStateTopic(),
			message: stringMessage,
			retain:  true,
		}
	default:
		return nil
	}
}

func (state *MQTTActor) publishSensorValue(ctx actor.Context, event domain.SensorUpdateEvent, retain bool, replyTo *actor.PID) {
	msg := state.event2MQTTMessage(event)
	if msg == nil {
		if replyTo != nil {
			ctx.Send(replyTo, domain.PublishSensorUpdateResponse{
				ActorResponseMixIn: domain.ErrorResponse(fmt.Errorf("unsupported event %T", event)),
			})
		}
		return
	}
	state.logger.Sugar().Debugf("mqtt@publish: sensor publish %s => %s", msg.topic, msg.message)
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	state.client.Publish(msg.topic, msg.message, 1, msg.retain || retain, func(err error) {
		root.Send(self, publishResult{ReplyTo: replyTo, Error: err})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.EventPublishResultReceive)
}

func (state *MQTTActor) publishMessage(ctx actor.Context, topic, payload string, retain bool, replyTo *actor.PID) {
	state.logger.Sugar().Debugf("mqtt@publish: message publish %s => %s", topic, payload)
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	state.client.Publish(topic, payload, 1, retain, func(err error) {
		root.Send(self, publishResult{ReplyTo: replyTo, Error: err})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.MessagePublishResultReceive)
}

func (state *MQTTActor) MessagePublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.PublishMessageResponse{
				ActorResponseMixIn: domain.ErrorResponse(msg.Error),
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	case MQTTConnectionLost:
		state.logger.Error("mqtt@publishing connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) EventPublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a sensor value", zap.Error(msg.Error))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.PublishSensorUpdateResponse{
				ActorResponseMixIn: domain.ErrorResponse(msg.Error),
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	case MQTTConnectionLost:
		state.logger.Error("mqtt@publishing connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// publishHomeAssistantDiscovery announces sensors and replies with the
// retained config topics it wrote to, once every publish completed. The
// topics are returned on failure too, so the caller can clear them. Nothing is
// published when discovery is disabled.
func (state *MQTTActor) publishHomeAssistantDiscovery(ctx actor.Context, sensors []domain.GenericSensor, replyTo *actor.PID) {
	if !state.config.MQTT.HADiscoveryEnable {
		reply(ctx, replyTo, domain.PublishDiscoveryResponse{})
		return
	}
	topics, payloads, err := discoveryMessages(state.client, sensors)
	if err != nil {
		state.logger.Error("mqtt@default PublishDiscoveryRequest error", zap.Error(err))
		reply(ctx, replyTo, domain.PublishDiscoveryResponse{
			ActorResponseMixIn: domain.ErrorResponse(err),
		})
		return
	}
	state.publishBatch(ctx, batchPublishResult{ReplyTo: replyTo, Topics: topics}, payloads)
}

// removeHomeAssistantDiscovery clears retained discovery configs and replies
// once every publish completed.
func (state *MQTTActor) removeHomeAssistantDiscovery(ctx actor.Context, topics []string, replyTo *actor.PID) {
	payloads := make([][]byte, len(topics))
	for i := range payloads {
		payloads[i] = []byte{}
	}
	state.publishBatch(ctx, batchPublishResult{ReplyTo: replyTo, Topics: topics, Removal: true}, payloads)
}

func (state *MQTTActor) publishBatch(ctx actor.Context, result batchPublishResult, payloads [][]byte) {
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	state.client.PublishAll(result.Topics, payloads, 0, true, func(err error) {
		result.Error = err
		root.Send(self, result)
	}, 1*time.Second)
	state.behavior.BecomeStacked(state.BatchPublishResultReceive)
}

func (state *MQTTActor) BatchPublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case batchPublishResult:
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing discovery batch failed", zap.Bool("removal", msg.Removal), zap.Error(msg.Error))
		}
		if msg.Removal {
			reply(ctx, msg.ReplyTo, domain.RemoveDiscoveryResponse{
				ActorResponseMixIn: domain.ErrorResponse(msg.Error),
			})
		} else {
			reply(ctx, msg.ReplyTo, domain.PublishDiscoveryResponse{
				ActorResponseMixIn: domain.ErrorResponse(msg.Error),
				Topics:             msg.Topics,
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	case *actor.Stopping:
		state.stop()
	case MQTTConnectionLost:
		state.logger.Error("mqtt@publishing connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func reply(ctx actor.Context, replyTo *actor.PID, resp domain.ActorResponse) {
	if replyTo != nil {
		ctx.Send(replyTo, resp)
	}
}

func discoveryMessages(client *mqtt.MQTTClient, sensors []domain.GenericSensor) ([]string, [][]byte, error) {
	topics := make([]string, 0, len(sensors))
	payloads := make([][]byte, 0, len(sensors))
	for i := range sensors {
		msg := mqtt.GenericSensorToHADiscoveryMessage(client, sensors[i])
		payload, err := json.Marshal(msg)
		if err != nil {
			return nil, nil, err
		}
		topics = append(topics, mqtt.HADiscoverySensorTopic(client.DiscoveryPrefix(), sensors[i]))
		payloads = append(payloads, payload)
	}
	return topics, payloads, nil
}

func (state *MQTTActor) stop() {
	if state.client == nil {
		return
	}
	state.logger.Debug("mqtt: disconnect")
	_ = state.client.PublishSync(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, 500*time.Millisecond)
	state.client.Disconnect(500 * time.Millisecond)
	state.client = nil
}

func bool2MQTTPayload(value bool) string {
	if value {
		return mqtt.MQTT_PAYLOAD_ON
	}
	return mqtt.MQTT_PAYLOAD_OFF
}

// PublishRecorder keeps what the dummy actor was asked to publish.
type PublishRecorder struct {
	mu        sync.Mutex
	messages  map[string]string
	events    []domain.SensorUpdateEvent
	announced []string
	removed   []string
}

func (r *PublishRecorder) Messages() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.messages))
	for k, v := range r.messages {
		out[k] = v
	}
	return out
}

func (r *PublishRecorder) Events() []domain.SensorUpdateEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.SensorUpdateEvent(nil), r.events...)
}

func (r *PublishRecorder) Announced() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.announced...)
}

func (r *PublishRecorder) Removed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.removed...)
}

// Dummy actor
func NewTestMQTTActor(config *config.Config, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:   config,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
		recorder: &PublishRecorder{messages: map[string]string{}},
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

func (state *MQTTActor) Recorder() *PublishRecorder {
	return state.recorder
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), nil, nil)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case domain.PublishSensorUpdateRequest:
		state.recorder.mu.Lock()
		state.recorder.events = append(state.recorder.events, msg.Event)
		if raw := state.event2MQTTMessage(msg.Event); raw != nil {
			state.recorder.messages[raw.topic] = raw.message
		}
		state.recorder.mu.Unlock()
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishSensorUpdateResponse{})
	case domain.PublishMessageRequest:
		state.recorder.mu.Lock()
		state.recorder.messages[msg.Topic] = msg.Payload
		state.recorder.mu.Unlock()
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishMessageResponse{})
	case domain.PublishDiscoveryRequest:
		var topics []string
		var err error
		if state.config.MQTT.HADiscoveryEnable {
			topics, _, err = discoveryMessages(state.client, msg.Sensors)
		}
		state.recorder.mu.Lock()
		state.recorder.announced = append(state.recorder.announced, topics...)
		state.recorder.mu.Unlock()
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishDiscoveryResponse{
			ActorResponseMixIn: domain.ErrorResponse(err),
			Topics:             topics,
		})
	case domain.RemoveDiscoveryRequest:
		state.recorder.mu.Lock()
		state.recorder.removed = append(state.recorder.removed, msg.Topics...)
		state.recorder.mu.Unlock()
		actorutil.ForRequest(msg).Respond(ctx, domain.RemoveDiscoveryResponse{})
	}
}
