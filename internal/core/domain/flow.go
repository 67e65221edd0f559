package domain

import "github.com/berfenger/elvia2mqtt/pkg/elvia"

type FlowResultType string

const (
	FLOW_RESULT_FORM         FlowResultType = "form"
	FLOW_RESULT_CREATE_ENTRY FlowResultType = "create_entry"
)

const ERRORS_BASE = "base"

type FormField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Default  any    `json:"default,omitempty"`
}

// FlowResult is what a flow step hands back to the host: either a form to
// render or an entry to create.
type FlowResult struct {
	Type       FlowResultType       `json:"type"`
	StepId     string               `json:"step_id,omitempty"`
	DataSchema []FormField          `json:"data_schema,omitempty"`
	Errors     map[string]ErrorCode `json:"errors,omitempty"`
	Title      string               `json:"title,omitempty"`
	Data       *UserInput           `json:"-"`
}

type ValidationInfo struct {
	Title  string
	Token  string
	Meters *elvia.MetersResult
}

func UserDataSchema() []FormField {
	defaults := DefaultFeatureFlags()
	return []FormField{
		{Name: KEY_TOKEN, Type: "string", Required: true},
		{Name: KEY_INCLUDE_PRODUCTION_TO_GRID, Type: "boolean", Default: defaults.IncludeProductionToGrid},
		{Name: KEY_COST_PERIOD, Type: "boolean", Default: defaults.CostPeriod},
		{Name: KEY_MAX_HOURS, Type: "boolean", Default: defaults.MaxHours},
		{Name: KEY_METER_READING, Type: "boolean", Default: defaults.MeterReading},
	}
}
