package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel  zapcore.Level
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Database  DatabaseConfig  `mapstructure:"database"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Port      uint            `mapstructure:"port"`
	HttpLog   bool            `mapstructure:"http_log"`
}

type DiscoveryConfig struct {
	BroadcastAddress string `mapstructure:"broadcast_address"`
	BroadcastPort    int    `mapstructure:"broadcast_port"`
	IntervalSeconds  uint32 `mapstructure:"interval_seconds"`
}

type SyncConfig struct {
	IntervalSeconds       uint32 `mapstructure:"interval_seconds"`
	RequestTimeoutSeconds uint32 `mapstructure:"request_timeout_seconds"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type MQTTConfig struct {
	Enable    bool   `mapstructure:"enable"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	BaseTopic string `mapstructure:"base_topic"`
}

type SimulatorConfig struct {
	Enable                bool   `mapstructure:"enable"`
	NumDevices            int    `mapstructure:"num_devices"`
	BasePort              int    `mapstructure:"base_port"`
	UpdateIntervalSeconds uint32 `mapstructure:"update_interval_seconds"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
