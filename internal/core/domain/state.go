package domain

import "github.com/berfenger/elvia2mqtt/pkg/elvia"

// RuntimeState is the data one set-up entry shares with its sensor entities.
// It is written only while the entry is being set up.
type RuntimeState struct {
	GlobalConfig            any
	Token                   string
	IncludeProductionToGrid bool
	CostPeriod              bool
	MaxHours                bool
	MeterReading            bool
	Meters                  *elvia.MetersResult

	tokenSet bool
	flagsSet bool
}

func NewRuntimeState(globalConfig any) *RuntimeState {
	return &RuntimeState{GlobalConfig: globalConfig}
}

func (s *RuntimeState) SetEntryData(data UserInput) {
	s.Token = data.Token
	s.IncludeProductionToGrid = data.IncludeProductionToGrid
	s.CostPeriod = data.CostPeriod
	s.MaxHours = data.MaxHours
	s.MeterReading = data.MeterReading
	s.tokenSet = true
	s.flagsSet = true
}

func (s *RuntimeState) FeatureFlags() FeatureFlags {
	return FeatureFlags{
		IncludeProductionToGrid: s.IncludeProductionToGrid,
		CostPeriod:              s.CostPeriod,
		MaxHours:                s.MaxHours,
		MeterReading:            s.MeterReading,
	}
}

// Ready reports whether sensors may be created from this state.
func (s *RuntimeState) Ready() bool {
	return s.tokenSet && s.flagsSet && s.Meters.OK()
}

// Keys lists the populated keys, using the names sensor platforms look up.
func (s *RuntimeState) Keys() []string {
	var keys []string
	if s.GlobalConfig != nil {
		keys = append(keys, KEY_HASS_CONFIG)
	}
	if s.tokenSet {
		keys = append(keys, KEY_TOKEN)
	}
	if s.flagsSet {
		keys = append(keys, KEY_INCLUDE_PRODUCTION_TO_GRID, KEY_COST_PERIOD, KEY_MAX_HOURS, KEY_METER_READING)
	}
	if s.Meters != nil {
		keys = append(keys, KEY_METER)
	}
	return keys
}
