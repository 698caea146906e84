package storage

import "errors"

// ErrNotFound is returned by every Find/Get operation when the record
// does not exist.
var ErrNotFound = errors.New("storage: not found")

// Store is the registry collaborator: it owns the device/context/point
// tables and the device event log. The discovery engine and the device
// synchronizer drive it as a side effect of protocol handling.
//
// Transaction runs fn against a store view whose operations commit or
// roll back as one atomic unit, so a reconciliation batch is never
// partially visible to a concurrent reader.
type Store interface {
	Transaction(fn func(tx Store) error) error

	GetDevice(id uint) (*Device, error)
	FindDeviceByUUID(uuid string) (*Device, error)
	ListDevices() ([]Device, error)
	ListOnlineDevices() ([]Device, error)
	SaveDevice(device *Device) error

	FindContext(deviceID uint, contextID string) (*Context, error)
	ListContexts(deviceID uint) ([]Context, error)
	SaveContext(context *Context) error

	FindPoint(contextID uint, pointID string) (*DataPoint, error)
	ListPoints(contextID uint) ([]DataPoint, error)
	SavePoint(point *DataPoint) error

	AppendEvent(event *DeviceEvent) error
	ListEvents(deviceID uint, limit int) ([]DeviceEvent, error)
}
