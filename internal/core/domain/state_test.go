package domain

import (
	"testing"

	"github.com/berfenger/elvia2mqtt/pkg/elvia"
	"github.com/stretchr/testify/assert"
)

func TestRuntimeStateReady(t *testing.T) {

	assert := assert.New(t)

	state := NewRuntimeState(nil)
	assert.False(state.Ready())
	assert.Empty(state.Keys())

	input := DefaultUserInput()
	input.Token = "abc"
	state.SetEntryData(input)
	assert.False(state.Ready(), "no meters yet")
	assert.NotContains(state.Keys(), KEY_METER)

	state.Meters = &elvia.MetersResult{StatusCode: 401}
	assert.False(state.Ready(), "rejected snapshot")

	state.Meters = &elvia.MetersResult{StatusCode: 200}
	assert.True(state.Ready())
	assert.Equal(DefaultFeatureFlags(), state.FeatureFlags())
	assert.ElementsMatch([]string{
		KEY_TOKEN, KEY_INCLUDE_PRODUCTION_TO_GRID, KEY_COST_PERIOD, KEY_MAX_HOURS, KEY_METER_READING, KEY_METER,
	}, state.Keys())
}
