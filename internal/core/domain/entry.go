package domain

import "time"

const (
	DOMAIN        = "elvia"
	ENTRY_TITLE   = "elvia"
	ENTRY_VERSION = 1
	STEP_ID_USER  = "user"

	KEY_HASS_CONFIG                = "elvia_hass_config"
	KEY_TOKEN                      = "token"
	KEY_INCLUDE_PRODUCTION_TO_GRID = "include_production_to_grid"
	KEY_COST_PERIOD                = "cost_period"
	KEY_MAX_HOURS                  = "max_hours"
	KEY_METER_READING              = "meter_reading"
	KEY_METER                      = "meter"
)

type Platform string

const (
	PLATFORM_SENSOR Platform = "sensor"
)

// Platforms forwarded for every entry.
var Platforms = []Platform{PLATFORM_SENSOR}

type FeatureFlags struct {
	IncludeProductionToGrid bool `json:"include_production_to_grid" yaml:"include_production_to_grid"`
	CostPeriod              bool `json:"cost_period" yaml:"cost_period"`
	MaxHours                bool `json:"max_hours" yaml:"max_hours"`
	MeterReading            bool `json:"meter_reading" yaml:"meter_reading"`
}

func DefaultFeatureFlags() FeatureFlags {
	return FeatureFlags{
		IncludeProductionToGrid: false,
		CostPeriod:              true,
		MaxHours:                true,
		MeterReading:            false,
	}
}

// UserInput is what the user step collects. It is also the data persisted
// with a config entry.
type UserInput struct {
	Token        string `json:"token" yaml:"token"`
	FeatureFlags `yaml:",inline"`
}

// DefaultUserInput returns the input with every optional field at its
// schema default.
func DefaultUserInput() UserInput {
	return UserInput{FeatureFlags: DefaultFeatureFlags()}
}

type ConfigEntry struct {
	EntryId   string    `json:"entry_id" yaml:"entry_id"`
	Domain    string    `json:"domain" yaml:"domain"`
	Title     string    `json:"title" yaml:"title"`
	Version   int       `json:"version" yaml:"version"`
	Data      UserInput `json:"-" yaml:"data"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

type EntryState string

const (
	ENTRY_STATE_NOT_LOADED    EntryState = "not_loaded"
	ENTRY_STATE_LOADED        EntryState = "loaded"
	ENTRY_STATE_SETUP_RETRY   EntryState = "setup_retry"
	ENTRY_STATE_SETUP_ERROR   EntryState = "setup_error"
	ENTRY_STATE_FAILED_UNLOAD EntryState = "failed_unload"
)

// EntryStatus is an entry together with the host's view of it.
type EntryStatus struct {
	ConfigEntry
	State  EntryState `json:"state"`
	Reason string     `json:"reason,omitempty"`
}
