package mcp

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testTransport() *NetTransport {
	return CreateNetTransport(zap.NewNop())
}

// fakeDevice accepts one connection and lets handle produce the reply
// bytes from the decoded request.
func fakeDevice(t *testing.T, handle func(req Message) []byte) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		header := make([]byte, 4)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		body := make([]byte, binary.BigEndian.Uint32(header))
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}
		var req Message
		if err := json.Unmarshal(body, &req); err != nil {
			return
		}
		if reply := handle(req); reply != nil {
			conn.Write(reply)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func frame(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out[:4], uint32(len(payload)))
	copy(out[4:], payload)
	return out
}

func TestSendRoundTrip(t *testing.T) {

	assert := assert.New(t)

	host, port := fakeDevice(t, func(req Message) []byte {
		assert.Equal(TypeRead, req.MCP.Type)
		assert.Equal("device", req.MCP.Context)

		reply := Message{MCP: Envelope{
			Version: ProtocolVersion,
			Type:    TypeReadResponse,
			Context: req.MCP.Context,
			Points:  json.RawMessage(`{"Temp": 35.5}`),
			Success: BoolPtr(true),
		}}
		payload, _ := json.Marshal(reply)
		return frame(payload)
	})

	resp, err := testTransport().Send(NewReadRequest("device", nil), host, port, 2*time.Second)
	assert.NoError(err)
	assert.Equal(TypeReadResponse, resp.MCP.Type)
	assert.True(resp.MCP.Succeeded())

	values, err := resp.MCP.PointValues()
	assert.NoError(err)
	assert.Equal(35.5, values["Temp"])
}

func TestSendTimeout(t *testing.T) {

	assert := assert.New(t)

	// device reads the request but never answers
	host, port := fakeDevice(t, func(req Message) []byte {
		time.Sleep(time.Second)
		return nil
	})

	_, err := testTransport().Send(NewContextsRequest(), host, port, 100*time.Millisecond)
	assert.ErrorIs(err, ErrTimeout)
}

func TestSendConnectionRefused(t *testing.T) {

	assert := assert.New(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = testTransport().Send(NewContextsRequest(), "127.0.0.1", port, time.Second)
	assert.Error(err)
}

func TestSendEarlyClose(t *testing.T) {

	assert := assert.New(t)

	// device closes after half a frame
	host, port := fakeDevice(t, func(req Message) []byte {
		return frame([]byte(`{"mcp": {`))[:6]
	})

	_, err := testTransport().Send(NewContextsRequest(), host, port, time.Second)
	assert.ErrorIs(err, ErrEarlyClose)
}

func TestSendMalformedResponse(t *testing.T) {

	assert := assert.New(t)

	host, port := fakeDevice(t, func(req Message) []byte {
		return frame([]byte("this is not json"))
	})

	_, err := testTransport().Send(NewContextsRequest(), host, port, time.Second)
	assert.ErrorIs(err, ErrMalformedResponse)
}

func TestBroadcastDiscovery(t *testing.T) {

	assert := assert.New(t)

	// fake device UDP socket: replies with one valid response, one
	// invalid JSON datagram and one response missing the model
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	assert.NoError(err)
	defer pc.Close()
	port := pc.LocalAddr().(*net.UDPAddr).Port

	go func() {
		buf := make([]byte, maxDatagramSize)
		_, src, err := pc.ReadFrom(buf)
		if err != nil {
			return
		}

		valid := Message{MCP: Envelope{
			Version: ProtocolVersion,
			Type:    TypeDiscoveryResponse,
			Device:  &DeviceInfo{UUID: "uuid-1", Model: "SIM-1000"},
		}}
		payload, _ := json.Marshal(valid)
		pc.WriteTo(payload, src)
		pc.WriteTo([]byte("garbage"), src)

		invalid := valid
		invalid.MCP.Device = &DeviceInfo{UUID: "uuid-2"}
		payload, _ = json.Marshal(invalid)
		pc.WriteTo(payload, src)
	}()

	tr := testTransport()
	tr.Window = 300 * time.Millisecond

	responses, err := tr.BroadcastDiscovery("127.0.0.1", port)
	assert.NoError(err)
	assert.Len(responses, 1)
	assert.Equal("uuid-1", responses[0].Message.MCP.Device.UUID)
	assert.Equal("127.0.0.1", responses[0].SourceIP)
	assert.NotZero(responses[0].SourcePort)
}

func TestBroadcastDiscoveryEmptyWindow(t *testing.T) {

	assert := assert.New(t)

	tr := testTransport()
	tr.Window = 150 * time.Millisecond

	start := time.Now()
	responses, err := tr.BroadcastDiscovery("127.0.0.1", 49999)
	assert.NoError(err)
	assert.Empty(responses)
	assert.GreaterOrEqual(time.Since(start), 150*time.Millisecond, "window is fixed, not per-packet")
}
