package storage

import "time"

// Event kinds appended to the device event log.
const (
	EventDiscovery    = "discovery"
	EventStatusChange = "status_change"
	EventWrite        = "write"
	EventError        = "error"
)

// Device is a discovered MCP endpoint. UUID is its stable identity and is
// never reassigned once created.
type Device struct {
	ID              uint `gorm:"primarykey"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	UUID            string `gorm:"uniqueIndex;not null"`
	Name            string
	Model           string
	Manufacturer    string
	FirmwareVersion string
	ProtocolVersion string
	IPAddress       string
	Port            int
	IsOnline        bool
	LastSeen        *time.Time
	Contexts        []Context     `gorm:"constraint:OnDelete:CASCADE"`
	Events          []DeviceEvent `gorm:"constraint:OnDelete:CASCADE"`
}

// Context is one addressable sub-context of a device. ContextID is the
// protocol-level path id, unique per device.
type Context struct {
	ID          uint `gorm:"primarykey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeviceID    uint   `gorm:"uniqueIndex:idx_device_context;not null"`
	ContextID   string `gorm:"uniqueIndex:idx_device_context;not null"`
	ContextType string
	ModelID     *int
	ModelName   string
	Description string
	Points      []DataPoint `gorm:"constraint:OnDelete:CASCADE"`
}

// DataPoint is a single named, typed value within a context. PointID is
// unique per context. Value stays nil until a device reports one.
type DataPoint struct {
	ID          uint `gorm:"primarykey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ContextID   uint   `gorm:"uniqueIndex:idx_context_point;not null"`
	PointID     string `gorm:"uniqueIndex:idx_context_point;not null"`
	Name        string
	DataType    string
	Unit        string
	Access      string
	Description string
	Value       *string
	LastUpdated *time.Time
}

// DeviceEvent is an append-only log entry for a device. Events are never
// mutated or deleted.
type DeviceEvent struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	DeviceID  uint   `gorm:"index;not null"`
	EventType string `gorm:"not null"`
	Message   string
	Details   string
}

// Writable reports whether the point's access mode permits writes.
func (p DataPoint) Writable() bool {
	return p.Access == "W" || p.Access == "RW"
}
