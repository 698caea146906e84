package mqtt

import (
	"testing"

	"mcphub/internal/config"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "mcphub",
		},
	}
}

func TestTopics(t *testing.T) {

	assert := assert.New(t)

	cfg := testConfig()
	pub := CreatePublisher(cfg, OptsFromConfig(cfg), zap.NewNop())

	assert.Equal("mcphub/bridge/state", pub.BridgeStateTopic())
	assert.Equal("mcphub/device/abc-123/event", pub.DeviceEventTopic("abc-123"))
	assert.Equal("mcphub/device/abc-123/state", pub.DeviceStateTopic("abc-123"))
}

func TestOptsFromConfig(t *testing.T) {

	assert := assert.New(t)

	cfg := testConfig()
	opts := OptsFromConfig(cfg)

	assert.True(opts.WillEnabled)
	assert.True(opts.WillRetained)
	assert.Equal("mcphub/bridge/state", opts.WillTopic)
	assert.Equal([]byte(MQTT_PAYLOAD_OFFLINE), opts.WillPayload)
	assert.Len(opts.Servers, 1)
	assert.Equal("tcp://localhost:1883", opts.Servers[0].String())
}
