package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	store, err := NewStore(NewSQLiteConnector(dsn))
	require.NoError(t, err)
	return store
}

func strPtr(s string) *string {
	return &s
}

func TestDeviceCRUD(t *testing.T) {

	assert := assert.New(t)

	store := testStore(t)

	device := &Device{
		UUID:         "uuid-1",
		Name:         "Inverter 1",
		Model:        "SIM-1000",
		Manufacturer: "SimCo",
		IPAddress:    "192.168.1.10",
		Port:         47808,
		IsOnline:     true,
	}
	assert.NoError(store.SaveDevice(device))
	assert.NotZero(device.ID)

	found, err := store.FindDeviceByUUID("uuid-1")
	assert.NoError(err)
	assert.Equal(device.ID, found.ID)
	assert.Equal("Inverter 1", found.Name)

	got, err := store.GetDevice(device.ID)
	assert.NoError(err)
	assert.Equal("uuid-1", got.UUID)

	_, err = store.GetDevice(9999)
	assert.ErrorIs(err, ErrNotFound)

	_, err = store.FindDeviceByUUID("no-such")
	assert.ErrorIs(err, ErrNotFound)
}

func TestListOnlineDevices(t *testing.T) {

	assert := assert.New(t)

	store := testStore(t)

	assert.NoError(store.SaveDevice(&Device{UUID: "a", IsOnline: true}))
	assert.NoError(store.SaveDevice(&Device{UUID: "b", IsOnline: false}))
	assert.NoError(store.SaveDevice(&Device{UUID: "c", IsOnline: true}))

	all, err := store.ListDevices()
	assert.NoError(err)
	assert.Len(all, 3)

	online, err := store.ListOnlineDevices()
	assert.NoError(err)
	assert.Len(online, 2)
	assert.Equal("a", online[0].UUID)
	assert.Equal("c", online[1].UUID)
}

func TestContextAndPoints(t *testing.T) {

	assert := assert.New(t)

	store := testStore(t)

	device := &Device{UUID: "uuid-1", IsOnline: true}
	assert.NoError(store.SaveDevice(device))

	modelID := 160
	ctx := &Context{
		DeviceID:    device.ID,
		ContextID:   "mppt.1",
		ContextType: "mppt",
		ModelID:     &modelID,
		Description: "Maximum Power Point Tracker 1",
	}
	assert.NoError(store.SaveContext(ctx))

	found, err := store.FindContext(device.ID, "mppt.1")
	assert.NoError(err)
	assert.Equal(ctx.ID, found.ID)
	assert.Equal(160, *found.ModelID)

	_, err = store.FindContext(device.ID, "mppt.99")
	assert.ErrorIs(err, ErrNotFound)

	now := time.Now()
	point := &DataPoint{
		ContextID:   ctx.ID,
		PointID:     "Pdc",
		Name:        "DC Power",
		DataType:    "float",
		Unit:        "W",
		Access:      "R",
		Value:       strPtr("512.3"),
		LastUpdated: &now,
	}
	assert.NoError(store.SavePoint(point))

	got, err := store.FindPoint(ctx.ID, "Pdc")
	assert.NoError(err)
	assert.Equal("512.3", *got.Value)
	assert.False(got.Writable())

	points, err := store.ListPoints(ctx.ID)
	assert.NoError(err)
	assert.Len(points, 1)
}

func TestEventsAppendOnly(t *testing.T) {

	assert := assert.New(t)

	store := testStore(t)

	device := &Device{UUID: "uuid-1"}
	assert.NoError(store.SaveDevice(device))

	for i := 0; i < 5; i++ {
		assert.NoError(store.AppendEvent(&DeviceEvent{
			DeviceID:  device.ID,
			EventType: EventDiscovery,
			Message:   fmt.Sprintf("event %d", i),
		}))
	}

	events, err := store.ListEvents(device.ID, 3)
	assert.NoError(err)
	assert.Len(events, 3)
	// newest first
	assert.Equal("event 4", events[0].Message)

	all, err := store.ListEvents(device.ID, 0)
	assert.NoError(err)
	assert.Len(all, 5)
}

func TestTransactionRollback(t *testing.T) {

	assert := assert.New(t)

	store := testStore(t)

	boom := errors.New("boom")
	err := store.Transaction(func(tx Store) error {
		if err := tx.SaveDevice(&Device{UUID: "uuid-1"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(err, boom)

	_, err = store.FindDeviceByUUID("uuid-1")
	assert.ErrorIs(err, ErrNotFound)
}

func TestTransactionCommit(t *testing.T) {

	assert := assert.New(t)

	store := testStore(t)

	err := store.Transaction(func(tx Store) error {
		device := &Device{UUID: "uuid-1", IsOnline: true}
		if err := tx.SaveDevice(device); err != nil {
			return err
		}
		return tx.SaveContext(&Context{DeviceID: device.ID, ContextID: "device"})
	})
	assert.NoError(err)

	device, err := store.FindDeviceByUUID("uuid-1")
	assert.NoError(err)
	_, err = store.FindContext(device.ID, "device")
	assert.NoError(err)
}

func TestWritableAccessModes(t *testing.T) {

	assert := assert.New(t)

	assert.True(DataPoint{Access: "RW"}.Writable())
	assert.True(DataPoint{Access: "W"}.Writable())
	assert.False(DataPoint{Access: "R"}.Writable())
	assert.False(DataPoint{Access: ""}.Writable())
}
