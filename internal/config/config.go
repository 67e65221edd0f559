package config

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	MQTT     MQTTConfig    `mapstructure:"mqtt"`
	Elvia    ElviaConfig   `mapstructure:"elvia"`
	Entries  EntriesConfig `mapstructure:"entries"`
	Port     uint          `mapstructure:"port"`
	HttpLog  bool          `mapstructure:"http_log"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

type ElviaConfig struct {
	Host          string
	BasePath      string `mapstructure:"base_path"`
	Scheme        string
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
}

type EntriesConfig struct {
	StorageFile        string `mapstructure:"storage_file"`
	SetupTimeoutMillis uint32 `mapstructure:"setup_timeout_millis"`
	RetryInitialMillis uint32 `mapstructure:"retry_initial_millis"`
	RetryMaxMillis     uint32 `mapstructure:"retry_max_millis"`
}

func (c ElviaConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

func (c EntriesConfig) SetupTimeout() time.Duration {
	return time.Duration(c.SetupTimeoutMillis) * time.Millisecond
}

func (c EntriesConfig) RetryInitial() time.Duration {
	return time.Duration(c.RetryInitialMillis) * time.Millisecond
}

func (c EntriesConfig) RetryMax() time.Duration {
	return time.Duration(c.RetryMaxMillis) * time.Millisecond
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// Validate checks bounds that viper cannot express. Topics are normalized in place.
func (c *Config) Validate() error {
	baseTopic, err := CheckMQTTTopic(c.MQTT.BaseTopic)
	if err != nil {
		return errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	c.MQTT.BaseTopic = baseTopic

	hadBaseTopic, err := CheckMQTTTopic(c.MQTT.HADiscoveryTopic)
	if err != nil {
		return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	c.MQTT.HADiscoveryTopic = hadBaseTopic

	if c.Elvia.TimeoutMillis < 1000 {
		return errors.New("config param elvia.timeout_millis should be >= 1000")
	}
	if c.Entries.RetryInitialMillis < 1000 {
		return errors.New("config param entries.retry_initial_millis should be >= 1000")
	}
	if c.Entries.RetryMaxMillis < c.Entries.RetryInitialMillis {
		return errors.New("config param entries.retry_max_millis must be >= entries.retry_initial_millis")
	}
	if c.Entries.SetupTimeoutMillis <= c.Elvia.TimeoutMillis {
		return errors.New("config param entries.setup_timeout_millis must be > elvia.timeout_millis")
	}
	return nil
}

// Redacted returns a copy that is safe to log.
func (c Config) Redacted() Config {
	if c.MQTT.Username != "" {
		c.MQTT.Username = "*redacted*"
	}
	if c.MQTT.Password != "" {
		c.MQTT.Password = "*redacted*"
	}
	return c
}
