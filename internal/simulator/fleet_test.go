package simulator

import (
	"testing"
	"time"

	"mcphub/pkg/mcp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testFleet(t *testing.T, numDevices int) *Fleet {
	t.Helper()
	return NewFleet(numDevices, 46000, zap.NewNop())
}

func TestFleetShape(t *testing.T) {

	assert := assert.New(t)

	fleet := testFleet(t, 3)
	devices := fleet.Devices()
	assert.Len(devices, 4, "fixed profile plus requested devices")

	sun := devices[0]
	assert.Equal("SUN2000-40KTL-M3", sun.Model)
	assert.Equal("Huawei", sun.Manufacturer)
	assert.Equal(46000, sun.Port)
	assert.NotNil(sun.context("control"))
	assert.NotNil(sun.context("mppt.1"))
	assert.NotNil(sun.context("mppt.8"))

	seen := make(map[string]bool)
	for _, dev := range devices {
		assert.NotEmpty(dev.UUID)
		assert.False(seen[dev.UUID], "uuids are unique")
		seen[dev.UUID] = true
	}
}

func TestFleetDiscovery(t *testing.T) {

	assert := assert.New(t)

	fleet := testFleet(t, 2)

	responses, err := fleet.BroadcastDiscovery("255.255.255.255", mcp.DefaultPort)
	assert.NoError(err)
	assert.Len(responses, 3)
	for _, r := range responses {
		assert.True(mcp.ValidDiscoveryResponse(r.Message))
		assert.Equal("127.0.0.1", r.SourceIP)
		assert.NotZero(r.SourcePort)
	}

	// offline devices answer no broadcast
	first := fleet.Devices()[0]
	fleet.SetOnline(first.UUID, false)
	responses, err = fleet.BroadcastDiscovery("255.255.255.255", mcp.DefaultPort)
	assert.NoError(err)
	assert.Len(responses, 2)

	// and time out on direct requests
	_, err = fleet.Send(mcp.NewContextsRequest(), "127.0.0.1", first.Port, time.Second)
	assert.ErrorIs(err, mcp.ErrTimeout)
}

func TestFleetContexts(t *testing.T) {

	assert := assert.New(t)

	fleet := testFleet(t, 0)
	sun := fleet.Devices()[0]

	resp, err := fleet.Send(mcp.NewContextsRequest(), "127.0.0.1", sun.Port, time.Second)
	assert.NoError(err)
	assert.Equal(mcp.TypeContextsResponse, resp.MCP.Type)
	assert.Len(resp.MCP.Contexts, len(sun.Contexts))

	var control *mcp.ContextInfo
	for i := range resp.MCP.Contexts {
		if resp.MCP.Contexts[i].ID == "control" {
			control = &resp.MCP.Contexts[i]
		}
	}
	require.NotNil(t, control)
	assert.Equal(123, *control.ModelID)
	assert.Equal("RW", control.Points["WMaxLim"].Access)
}

func TestFleetRead(t *testing.T) {

	assert := assert.New(t)

	fleet := testFleet(t, 0)
	sun := fleet.Devices()[0]

	resp, err := fleet.Send(mcp.NewReadRequest("device", nil), "127.0.0.1", sun.Port, time.Second)
	assert.NoError(err)
	assert.True(resp.MCP.Succeeded())

	values, err := resp.MCP.PointValues()
	assert.NoError(err)
	assert.Contains(values, "Temp")
	assert.Contains(values, "Pac")
	assert.Contains(values, "SN")

	// filtered read returns only the requested points
	resp, err = fleet.Send(mcp.NewReadRequest("device", []string{"Temp"}), "127.0.0.1", sun.Port, time.Second)
	assert.NoError(err)
	values, err = resp.MCP.PointValues()
	assert.NoError(err)
	assert.Len(values, 1)
	assert.Contains(values, "Temp")

	// unknown context fails with an explicit error
	resp, err = fleet.Send(mcp.NewReadRequest("mppt.99", nil), "127.0.0.1", sun.Port, time.Second)
	assert.NoError(err)
	assert.False(resp.MCP.Succeeded())
	assert.Contains(resp.MCP.Error, "mppt.99")
}

func TestFleetWrite(t *testing.T) {

	assert := assert.New(t)

	fleet := testFleet(t, 0)
	sun := fleet.Devices()[0]

	resp, err := fleet.Send(mcp.NewWriteRequest("control", map[string]any{"WMaxLim": 80.0}),
		"127.0.0.1", sun.Port, time.Second)
	assert.NoError(err)
	assert.True(resp.MCP.Succeeded())
	assert.Equal(80.0, resp.MCP.UpdatedPoints["WMaxLim"])
	assert.Equal(80.0, sun.context("control").Points["WMaxLim"].Value)
}

func TestFleetWriteAllOrNothing(t *testing.T) {

	assert := assert.New(t)

	fleet := testFleet(t, 0)
	sun := fleet.Devices()[0]
	before := sun.context("control").Points["WMaxLim"].Value

	// one invalid point rejects the whole batch
	resp, err := fleet.Send(mcp.NewWriteRequest("control", map[string]any{
		"WMaxLim": 70.0,
		"Bogus":   1,
	}), "127.0.0.1", sun.Port, time.Second)
	assert.NoError(err)
	assert.False(resp.MCP.Succeeded())
	assert.Equal(before, sun.context("control").Points["WMaxLim"].Value)

	// read-only points reject too
	resp, err = fleet.Send(mcp.NewWriteRequest("device", map[string]any{"Temp": 10.0}),
		"127.0.0.1", sun.Port, time.Second)
	assert.NoError(err)
	assert.False(resp.MCP.Succeeded())
	assert.Contains(resp.MCP.Error, "not writable")
}

func TestUpdateDataDrift(t *testing.T) {

	assert := assert.New(t)

	fleet := testFleet(t, 0)
	sun := fleet.Devices()[0]

	for i := 0; i < 10; i++ {
		fleet.UpdateData()
	}

	// device-level power tracks the phase sum
	var phaseSum float64
	for _, ctx := range sun.Contexts {
		if ctx.Type == "phase" {
			phaseSum += ctx.Points["Pac"].Value.(float64)
		}
	}
	assert.InDelta(phaseSum, sun.context("device").Points["Pac"].Value.(float64), 0.001)

	// drift stays within physical bounds
	for _, ctx := range sun.Contexts {
		if ctx.Type != "mppt" {
			continue
		}
		pdc := ctx.Points["Pdc"].Value.(float64)
		assert.GreaterOrEqual(pdc, 50.0)
		assert.LessOrEqual(pdc, 6000.0)
	}
}
