package util

import (
	"github.com/berfenger/elvia2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		MQTT: config.MQTTConfig{
			Host:              "localhost",
			Port:              1883,
			BaseTopic:         "elvia",
			HADiscoveryEnable: true,
			HADiscoveryTopic:  "homeassistant",
		},
		Elvia: config.ElviaConfig{
			Host:          "elvia.example.test",
			BasePath:      "/customer/metervalues/api/v2",
			Scheme:        "https",
			TimeoutMillis: 1000,
		},
		Entries: config.EntriesConfig{
			SetupTimeoutMillis: 2000,
			RetryInitialMillis: 1000,
			RetryMaxMillis:     4000,
		},
		Port: 8080,
	}
}
