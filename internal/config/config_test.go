package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	return Config{
		MQTT: MQTTConfig{
			BaseTopic:        "Elvia",
			HADiscoveryTopic: "homeassistant",
			Password:         "hunter2",
		},
		Elvia: ElviaConfig{TimeoutMillis: 10000},
		Entries: EntriesConfig{
			SetupTimeoutMillis: 30000,
			RetryInitialMillis: 5000,
			RetryMaxMillis:     300000,
		},
	}
}

func TestValidateNormalizesTopics(t *testing.T) {

	assert := assert.New(t)

	cfg := validConfig()
	assert.NoError(cfg.Validate())
	assert.Equal("elvia", cfg.MQTT.BaseTopic, "base topic lowercased")
}

func TestValidateRejectsBadTopic(t *testing.T) {

	cfg := validConfig()
	cfg.MQTT.BaseTopic = "elvia/meters"
	assert.Error(t, cfg.Validate())
}

func TestValidateBounds(t *testing.T) {

	assert := assert.New(t)

	cfg := validConfig()
	cfg.Elvia.TimeoutMillis = 500
	assert.Error(cfg.Validate(), "timeout too small")

	cfg = validConfig()
	cfg.Entries.RetryMaxMillis = 1000
	assert.Error(cfg.Validate(), "max retry below initial retry")

	cfg = validConfig()
	cfg.Entries.SetupTimeoutMillis = 10000
	assert.Error(cfg.Validate(), "setup timeout must exceed request timeout")
}

func TestRedacted(t *testing.T) {

	cfg := validConfig()
	red := cfg.Redacted()
	assert.Equal(t, "*redacted*", red.MQTT.Password)
	assert.Equal(t, "", red.MQTT.Username)
	assert.Equal(t, "hunter2", cfg.MQTT.Password, "original untouched")
}
