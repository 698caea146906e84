package mcp

import (
	"encoding/json"
	"time"
)

const (
	// ProtocolVersion is the only MCP envelope version this hub speaks.
	ProtocolVersion = "1.0"

	// DefaultPort is the well-known MCP device port, shared with the
	// discovery broadcast channel.
	DefaultPort = 47808
)

// MessageType enumerates every envelope type of the protocol.
type MessageType string

const (
	TypeDiscovery          MessageType = "discovery"
	TypeDiscoveryResponse  MessageType = "discovery_response"
	TypeDeviceInfo         MessageType = "device_info"
	TypeDeviceInfoResponse MessageType = "device_info_response"
	TypeContexts           MessageType = "contexts"
	TypeContextsResponse   MessageType = "contexts_response"
	TypeRead               MessageType = "read"
	TypeReadResponse       MessageType = "read_response"
	TypeWrite              MessageType = "write"
	TypeWriteResponse      MessageType = "write_response"
)

// Message is the top-level MCP wire object. Everything lives under the
// "mcp" key.
type Message struct {
	MCP Envelope `json:"mcp"`
}

// Envelope carries the type-specific fields of an MCP message. Points is
// kept raw because its shape depends on the message type: a list of point
// ids on a read request, a point id -> value map on write requests and
// read responses, and a point id -> definition map inside context
// replies.
type Envelope struct {
	Version       string          `json:"version"`
	Type          MessageType     `json:"type"`
	Timestamp     int64           `json:"timestamp"`
	Device        *DeviceInfo     `json:"device,omitempty"`
	Contexts      []ContextInfo   `json:"contexts,omitempty"`
	Context       string          `json:"context,omitempty"`
	Points        json.RawMessage `json:"points,omitempty"`
	UpdatedPoints map[string]any  `json:"updated_points,omitempty"`
	Success       *bool           `json:"success,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// DeviceInfo identifies a device in discovery and device_info replies.
type DeviceInfo struct {
	UUID            string `json:"uuid"`
	Name            string `json:"name,omitempty"`
	Model           string `json:"model,omitempty"`
	Manufacturer    string `json:"manufacturer,omitempty"`
	FirmwareVersion string `json:"firmwareVersion,omitempty"`
	ProtocolVersion string `json:"protocolVersion,omitempty"`
	SerialNumber    string `json:"serialNumber,omitempty"`
}

// ContextInfo describes one addressable sub-context of a device. Devices
// may embed their point definitions directly in a contexts reply.
type ContextInfo struct {
	ID          string               `json:"id"`
	Type        string               `json:"type,omitempty"`
	Description string               `json:"description,omitempty"`
	ModelID     *int                 `json:"modelId,omitempty"`
	ModelName   string               `json:"modelName,omitempty"`
	Points      map[string]PointInfo `json:"points,omitempty"`
}

// PointInfo is the wire definition of a single data point. Value stays an
// interface so a JSON null can be told apart from a real zero.
type PointInfo struct {
	Name        string `json:"name,omitempty"`
	Type        string `json:"type,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Access      string `json:"access,omitempty"`
	Description string `json:"description,omitempty"`
	Value       any    `json:"value,omitempty"`
}

// DiscoveryResponse is an accepted discovery_response annotated with the
// datagram's sender.
type DiscoveryResponse struct {
	Message    Message
	SourceIP   string
	SourcePort int
}

func newMessage(t MessageType) Message {
	return Message{
		MCP: Envelope{
			Version:   ProtocolVersion,
			Type:      t,
			Timestamp: time.Now().Unix(),
		},
	}
}

// NewDiscoveryMessage builds the broadcast discovery request.
func NewDiscoveryMessage() Message {
	return newMessage(TypeDiscovery)
}

// NewDeviceInfoRequest builds a device_info request.
func NewDeviceInfoRequest() Message {
	return newMessage(TypeDeviceInfo)
}

// NewContextsRequest builds a contexts request.
func NewContextsRequest() Message {
	return newMessage(TypeContexts)
}

// NewReadRequest builds a read request for one context path. A nil or
// empty pointIDs slice means "read all points".
func NewReadRequest(contextPath string, pointIDs []string) Message {
	msg := newMessage(TypeRead)
	msg.MCP.Context = contextPath
	if len(pointIDs) > 0 {
		raw, _ := json.Marshal(pointIDs)
		msg.MCP.Points = raw
	}
	return msg
}

// NewWriteRequest builds a write request carrying point id -> value pairs
// for one context path.
func NewWriteRequest(contextPath string, values map[string]any) Message {
	msg := newMessage(TypeWrite)
	msg.MCP.Context = contextPath
	raw, _ := json.Marshal(values)
	msg.MCP.Points = raw
	return msg
}

// PointIDs decodes the Points field as a list of point ids (read request
// shape). Returns nil when the field is absent.
func (e Envelope) PointIDs() ([]string, error) {
	if len(e.Points) == 0 {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(e.Points, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// PointValues decodes the Points field as a point id -> value map (write
// request and read response shape). Returns nil when the field is absent.
func (e Envelope) PointValues() (map[string]any, error) {
	if len(e.Points) == 0 {
		return nil, nil
	}
	var values map[string]any
	if err := json.Unmarshal(e.Points, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// AckedPoints extracts the set of points a device acknowledged in a
// write_response. Devices are allowed to reply with either updated_points
// or the plain points field.
func (e Envelope) AckedPoints() map[string]any {
	if len(e.UpdatedPoints) > 0 {
		return e.UpdatedPoints
	}
	values, err := e.PointValues()
	if err != nil {
		return nil
	}
	return values
}

// Succeeded reports whether a response carries an explicit success flag
// set to true.
func (e Envelope) Succeeded() bool {
	return e.Success != nil && *e.Success
}

// ValidDiscoveryResponse checks the fields a discovery_response must
// carry before the engine will touch it: version, the right type, and a
// device with at least uuid and model.
func ValidDiscoveryResponse(msg Message) bool {
	env := msg.MCP
	if env.Version == "" || env.Type != TypeDiscoveryResponse {
		return false
	}
	if env.Device == nil {
		return false
	}
	return env.Device.UUID != "" && env.Device.Model != ""
}

// BoolPtr is a convenience for building response envelopes.
func BoolPtr(b bool) *bool {
	return &b
}
