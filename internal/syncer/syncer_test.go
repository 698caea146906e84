package syncer

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"mcphub/internal/storage"
	"mcphub/pkg/mcp"
	"mcphub/pkg/sunspec"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeTransport counts calls and delegates responses to respond.
type fakeTransport struct {
	sendCalls int
	lastMsg   mcp.Message
	respond   func(msg mcp.Message) (*mcp.Message, error)
}

func (f *fakeTransport) Send(msg mcp.Message, host string, port int, timeout time.Duration) (*mcp.Message, error) {
	f.sendCalls++
	f.lastMsg = msg
	return f.respond(msg)
}

func (f *fakeTransport) BroadcastDiscovery(address string, port int) ([]mcp.DiscoveryResponse, error) {
	return nil, nil
}

func readResponse(values map[string]any) *mcp.Message {
	raw, _ := json.Marshal(values)
	return &mcp.Message{MCP: mcp.Envelope{
		Version: mcp.ProtocolVersion,
		Type:    mcp.TypeReadResponse,
		Points:  raw,
		Success: mcp.BoolPtr(true),
	}}
}

func writeResponse(updated map[string]any) *mcp.Message {
	return &mcp.Message{MCP: mcp.Envelope{
		Version:       mcp.ProtocolVersion,
		Type:          mcp.TypeWriteResponse,
		UpdatedPoints: updated,
		Success:       mcp.BoolPtr(true),
	}}
}

func newTestSyncer(t *testing.T, transport mcp.Transport) (*Synchronizer, storage.Store) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	store, err := storage.NewStore(storage.NewSQLiteConnector(dsn))
	require.NoError(t, err)
	models := sunspec.NewRegistry(zap.NewNop())
	return NewSynchronizer(Config{}, transport, store, models, nil, zap.NewNop()), store
}

// seedDevice stores one online device with a storage context carrying a
// read-only SoC point and writable charge limits.
func seedDevice(t *testing.T, store storage.Store) (*storage.Device, *storage.Context) {
	t.Helper()
	device := &storage.Device{UUID: "uuid-a", IPAddress: "127.0.0.1", Port: 5001, IsOnline: true}
	require.NoError(t, store.SaveDevice(device))

	modelID := 124
	ctx := &storage.Context{DeviceID: device.ID, ContextID: "storage", ContextType: "storage", ModelID: &modelID}
	require.NoError(t, store.SaveContext(ctx))

	for _, p := range []storage.DataPoint{
		{ContextID: ctx.ID, PointID: "ChaState", Name: "State of Charge", DataType: "float", Unit: "%", Access: "R"},
		{ContextID: ctx.ID, PointID: "WChaMax", Name: "Max Charge Rate", DataType: "float", Unit: "W", Access: "RW"},
		{ContextID: ctx.ID, PointID: "WDisChaMax", Name: "Max Discharge Rate", DataType: "float", Unit: "W", Access: "RW"},
	} {
		point := p
		require.NoError(t, store.SavePoint(&point))
	}
	return device, ctx
}

func pointValue(t *testing.T, store storage.Store, ctxID uint, pointID string) *storage.DataPoint {
	t.Helper()
	point, err := store.FindPoint(ctxID, pointID)
	require.NoError(t, err)
	return point
}

func TestRefreshAllMergesValues(t *testing.T) {

	assert := assert.New(t)

	transport := &fakeTransport{respond: func(msg mcp.Message) (*mcp.Message, error) {
		return readResponse(map[string]any{"ChaState": 72.5, "WChaMax": 5000}), nil
	}}
	sync, store := newTestSyncer(t, transport)
	device, ctx := seedDevice(t, store)

	assert.NoError(sync.RefreshAll())
	assert.Equal(1, transport.sendCalls)

	soc := pointValue(t, store, ctx.ID, "ChaState")
	assert.Equal("72.5", *soc.Value)
	assert.NotNil(soc.LastUpdated)

	refreshed, err := store.GetDevice(device.ID)
	assert.NoError(err)
	assert.NotNil(refreshed.LastSeen)

	// a second round with identical values leaves timestamps alone
	firstUpdated := *soc.LastUpdated
	assert.NoError(sync.RefreshAll())
	soc = pointValue(t, store, ctx.ID, "ChaState")
	assert.True(firstUpdated.Equal(*soc.LastUpdated), "unchanged value keeps its timestamp")
}

func TestRefreshSkipsDeviceWithoutContexts(t *testing.T) {

	assert := assert.New(t)

	transport := &fakeTransport{respond: func(msg mcp.Message) (*mcp.Message, error) {
		return readResponse(nil), nil
	}}
	sync, store := newTestSyncer(t, transport)

	device := &storage.Device{UUID: "uuid-bare", IPAddress: "127.0.0.1", Port: 5001, IsOnline: true}
	assert.NoError(store.SaveDevice(device))

	assert.NoError(sync.RefreshAll())

	// nothing was read, so last-seen must not move
	assert.Equal(0, transport.sendCalls)
	refreshed, err := store.GetDevice(device.ID)
	assert.NoError(err)
	assert.Nil(refreshed.LastSeen)
}

func TestRefreshSkipsNullAndUnknownPoints(t *testing.T) {

	assert := assert.New(t)

	transport := &fakeTransport{respond: func(msg mcp.Message) (*mcp.Message, error) {
		return readResponse(map[string]any{"ChaState": nil, "Bogus": 42}), nil
	}}
	sync, store := newTestSyncer(t, transport)
	_, ctx := seedDevice(t, store)

	// seed a known value first
	point := pointValue(t, store, ctx.ID, "ChaState")
	known := "55"
	point.Value = &known
	assert.NoError(store.SavePoint(point))

	assert.NoError(sync.RefreshAll())

	point = pointValue(t, store, ctx.ID, "ChaState")
	assert.Equal("55", *point.Value, "null never overwrites a known value")

	_, err := store.FindPoint(ctx.ID, "Bogus")
	assert.ErrorIs(err, storage.ErrNotFound, "unknown reported points are not created")
}

func TestRefreshRecordsDeviceError(t *testing.T) {

	assert := assert.New(t)

	transport := &fakeTransport{respond: func(msg mcp.Message) (*mcp.Message, error) {
		return nil, mcp.ErrTimeout
	}}
	sync, store := newTestSyncer(t, transport)
	device, _ := seedDevice(t, store)

	assert.NoError(sync.RefreshAll(), "one broken device does not fail the round")

	events, err := store.ListEvents(device.ID, 0)
	assert.NoError(err)
	assert.Len(events, 1)
	assert.Equal(storage.EventError, events[0].EventType)
}

func TestWriteRejectsWithoutNetworkCall(t *testing.T) {

	assert := assert.New(t)

	transport := &fakeTransport{respond: func(msg mcp.Message) (*mcp.Message, error) {
		return writeResponse(nil), nil
	}}
	sync, store := newTestSyncer(t, transport)
	device, _ := seedDevice(t, store)

	// read-only and unknown points resolve to an empty writable set
	err := sync.Write(device.ID, "storage", map[string]any{"ChaState": 10, "Bogus": 1})
	var serr *Error
	assert.ErrorAs(err, &serr)
	assert.Equal(KindValidation, serr.Kind)
	assert.Equal("no valid writable points", serr.Message)
	assert.Zero(transport.sendCalls, "invalid writes never reach the device")
}

func TestWriteValidationErrors(t *testing.T) {

	assert := assert.New(t)

	transport := &fakeTransport{respond: func(msg mcp.Message) (*mcp.Message, error) {
		return writeResponse(nil), nil
	}}
	sync, store := newTestSyncer(t, transport)
	device, _ := seedDevice(t, store)

	var serr *Error

	err := sync.Write(9999, "storage", map[string]any{"WChaMax": 1})
	assert.ErrorAs(err, &serr)
	assert.Equal(KindValidation, serr.Kind)
	assert.Equal("device not found", serr.Message)

	err = sync.Write(device.ID, "nope", map[string]any{"WChaMax": 1})
	assert.ErrorAs(err, &serr)
	assert.Equal(KindValidation, serr.Kind)

	device.IsOnline = false
	assert.NoError(store.SaveDevice(device))
	err = sync.Write(device.ID, "storage", map[string]any{"WChaMax": 1})
	assert.ErrorAs(err, &serr)
	assert.Equal("device is offline", serr.Message)

	assert.Zero(transport.sendCalls)
}

func TestWritePersistsOnlyAckedPoints(t *testing.T) {

	assert := assert.New(t)

	transport := &fakeTransport{respond: func(msg mcp.Message) (*mcp.Message, error) {
		// device only applies one of the two requested points
		return writeResponse(map[string]any{"WChaMax": 4000}), nil
	}}
	sync, store := newTestSyncer(t, transport)
	device, ctx := seedDevice(t, store)

	err := sync.Write(device.ID, "storage", map[string]any{"WChaMax": 5000, "WDisChaMax": 3000})
	assert.NoError(err)
	assert.Equal(1, transport.sendCalls)

	// acked value wins over the requested one
	charge := pointValue(t, store, ctx.ID, "WChaMax")
	assert.Equal("4000", *charge.Value)

	discharge := pointValue(t, store, ctx.ID, "WDisChaMax")
	assert.Nil(discharge.Value, "unacked points stay untouched")

	events, err := store.ListEvents(device.ID, 0)
	assert.NoError(err)
	assert.Len(events, 1)
	assert.Equal(storage.EventWrite, events[0].EventType)
	assert.Contains(events[0].Details, "WChaMax")
	assert.NotContains(events[0].Details, "WDisChaMax")
}

func TestWriteSurfacesDeviceErrorVerbatim(t *testing.T) {

	assert := assert.New(t)

	transport := &fakeTransport{respond: func(msg mcp.Message) (*mcp.Message, error) {
		return &mcp.Message{MCP: mcp.Envelope{
			Version: mcp.ProtocolVersion,
			Type:    mcp.TypeWriteResponse,
			Success: mcp.BoolPtr(false),
			Error:   "value exceeds hardware limit",
		}}, nil
	}}
	sync, store := newTestSyncer(t, transport)
	device, ctx := seedDevice(t, store)

	err := sync.Write(device.ID, "storage", map[string]any{"WChaMax": 90000})
	var serr *Error
	assert.ErrorAs(err, &serr)
	assert.Equal(KindProtocol, serr.Kind)
	assert.Equal("value exceeds hardware limit", serr.Message)

	// local state untouched on failure
	point := pointValue(t, store, ctx.ID, "WChaMax")
	assert.Nil(point.Value)
}

func TestWriteCoercesAgainstModel(t *testing.T) {

	assert := assert.New(t)

	transport := &fakeTransport{respond: func(msg mcp.Message) (*mcp.Message, error) {
		values, err := msg.MCP.PointValues()
		if err != nil {
			return nil, err
		}
		return writeResponse(values), nil
	}}
	sync, store := newTestSyncer(t, transport)
	device, _ := seedDevice(t, store)

	// string value for a float point is coerced before hitting the wire
	assert.NoError(sync.WritePoint(device.ID, "storage", "WChaMax", "4500"))

	sent, err := transport.lastMsg.MCP.PointValues()
	assert.NoError(err)
	assert.Equal(float64(4500), sent["WChaMax"])

	// an uncoercible value resolves to nothing
	err = sync.WritePoint(device.ID, "storage", "WChaMax", "not a number")
	var serr *Error
	assert.ErrorAs(err, &serr)
	assert.Equal(KindValidation, serr.Kind)
}

func TestErrorString(t *testing.T) {

	assert := assert.New(t)

	err := transportError(mcp.ErrTimeout)
	assert.Equal(KindTransport, err.Kind)
	assert.ErrorIs(err, mcp.ErrTimeout)
	assert.Contains(err.Error(), "transport")

	assert.Equal("validation", KindValidation.String())
	assert.Equal("protocol", KindProtocol.String())
	assert.Equal("persistence", KindPersistence.String())
}
