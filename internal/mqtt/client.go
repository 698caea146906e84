package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"mcphub/internal/config"
	"mcphub/internal/events"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"

	defaultPublishTimeout = 5 * time.Second
)

// OptsFromConfig builds paho client options with the hub LWT so brokers
// flip the bridge state to offline when the connection drops.
func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(fmt.Sprintf("mcphub_%d", rand.IntN(1000)))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.MQTT.BaseTopic)
	opts.WillQos = 0

	return opts
}

// CreatePublisher wraps a paho client as an event sink. Publishing is
// best effort: failures are logged, never propagated to the caller.
func CreatePublisher(cfg *config.Config, opts *mqtt.ClientOptions, logger *zap.Logger) *Publisher {
	return &Publisher{
		client: mqtt.NewClient(opts),
		cfg:    cfg.MQTT,
		logger: logger.With(zap.String("component", "mqtt")),
	}
}

type Publisher struct {
	client mqtt.Client
	cfg    config.MQTTConfig
	logger *zap.Logger
}

var _ events.Sink = (*Publisher)(nil)

func (p *Publisher) baseTopic() string {
	return p.cfg.BaseTopic
}

func (p *Publisher) BridgeStateTopic() string {
	return bridgeStateTopic(p.baseTopic())
}

func (p *Publisher) DeviceEventTopic(deviceUUID string) string {
	return fmt.Sprintf("%s/device/%s/event", p.baseTopic(), deviceUUID)
}

func (p *Publisher) DeviceStateTopic(deviceUUID string) string {
	return fmt.Sprintf("%s/device/%s/state", p.baseTopic(), deviceUUID)
}

// PublishDeviceEvent sends the event as JSON on the device event topic.
func (p *Publisher) PublishDeviceEvent(event events.DeviceEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("could not encode device event", zap.Error(err))
		return
	}
	p.publish(p.DeviceEventTopic(event.DeviceUUID), payload, 0, false)
}

// PublishOnlineState sends a retained online/offline payload on the
// device state topic.
func (p *Publisher) PublishOnlineState(deviceUUID string, online bool) {
	payload := MQTT_PAYLOAD_OFFLINE
	if online {
		payload = MQTT_PAYLOAD_ONLINE
	}
	p.publish(p.DeviceStateTopic(deviceUUID), []byte(payload), 0, true)
}

func (p *Publisher) publish(topic string, payload []byte, qos byte, retain bool) {
	token := p.client.Publish(topic, qos, retain, payload)
	go func() {
		if !token.WaitTimeout(defaultPublishTimeout) {
			p.logger.Warn("publish timed out", zap.String("topic", topic))
			return
		}
		if err := token.Error(); err != nil {
			p.logger.Warn("publish failed", zap.String("topic", topic), zap.Error(err))
		}
	}()
}

// Connect establishes the broker session and announces the bridge as
// online on the LWT topic.
func (p *Publisher) Connect(timeout time.Duration) error {
	token := p.client.Connect()
	if !token.WaitTimeout(timeout) {
		return errors.New("MQTT connect timed out")
	}
	if err := token.Error(); err != nil {
		return err
	}
	p.publish(p.BridgeStateTopic(), []byte(MQTT_PAYLOAD_ONLINE), 0, true)
	return nil
}

// Disconnect announces the bridge as offline and closes the session.
func (p *Publisher) Disconnect(timeout time.Duration) {
	if p.client.IsConnected() {
		token := p.client.Publish(p.BridgeStateTopic(), 0, true, []byte(MQTT_PAYLOAD_OFFLINE))
		token.WaitTimeout(timeout)
	}
	p.client.Disconnect(uint(timeout.Milliseconds()))
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}
