package domain

const (
	ACTOR_ID_MASTER         = "master"
	ACTOR_ID_MQTT           = "mqtt"
	ACTOR_ID_CONFIG_ENTRIES = "config_entries"
)

// MQTT actor

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
	Topics []string
}

// RemoveDiscoveryRequest clears retained discovery configs, which makes
// Home Assistant drop the entities.
type RemoveDiscoveryRequest struct {
	ActorRequestMixIn
	Topics []string
}

type RemoveDiscoveryResponse struct {
	ActorResponseMixIn
}

// Config entries actor

type CreateEntryRequest struct {
	ActorRequestMixIn
	Title string
	Data  UserInput
}

type CreateEntryResponse struct {
	ActorResponseMixIn
	Entry EntryStatus
}

type SetupEntryRequest struct {
	ActorRequestMixIn
	EntryId string
}

type SetupEntryResponse struct {
	ActorResponseMixIn
	Entry EntryStatus
}

type UnloadEntryRequest struct {
	ActorRequestMixIn
	EntryId string
}

type UnloadEntryResponse struct {
	ActorResponseMixIn
	Entry EntryStatus
}

type ReloadEntryRequest struct {
	ActorRequestMixIn
	EntryId string
}

type RemoveEntryRequest struct {
	ActorRequestMixIn
	EntryId string
}

type RemoveEntryResponse struct {
	ActorResponseMixIn
}

type ListEntriesRequest struct {
	ActorRequestMixIn
}

type ListEntriesResponse struct {
	ActorResponseMixIn
	Entries []EntryStatus
}

// Health

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
