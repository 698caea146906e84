// Package events defines the outbound notification contract. The
// discovery engine and the device synchronizer publish through a Sink
// after their storage transactions commit; wiring a sink is optional.
package events

// DeviceEvent mirrors one appended device log entry.
type DeviceEvent struct {
	DeviceUUID string `json:"device_uuid"`
	EventType  string `json:"event_type"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
}

// Sink receives registry-level notifications.
type Sink interface {
	// PublishDeviceEvent forwards an appended device event.
	PublishDeviceEvent(event DeviceEvent)
	// PublishOnlineState forwards an online/offline transition.
	PublishOnlineState(deviceUUID string, online bool)
}
