package mcp

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const (
	// maxDatagramSize bounds a single discovery response datagram.
	maxDatagramSize = 4096

	// DefaultBroadcastWindow is how long discovery responses are
	// collected after the broadcast is sent. The window is fixed from
	// send time and does not reset per packet.
	DefaultBroadcastWindow = 3 * time.Second
)

// Transport is the request/response contract shared by the network codec
// and the in-process device simulator.
type Transport interface {
	// Send performs one framed request/response exchange with a device.
	// A fresh connection is opened and closed per call.
	Send(msg Message, host string, port int, timeout time.Duration) (*Message, error)
	// BroadcastDiscovery sends a single discovery datagram and returns
	// every valid response collected within the window, possibly none.
	BroadcastDiscovery(address string, port int) ([]DiscoveryResponse, error)
}

// NetTransport is the real network codec: length-prefixed JSON over TCP
// for request/response, UDP broadcast for discovery.
type NetTransport struct {
	logger *zap.Logger

	// Window overrides DefaultBroadcastWindow when positive.
	Window time.Duration
}

// CreateNetTransport builds the network codec.
func CreateNetTransport(logger *zap.Logger) *NetTransport {
	return &NetTransport{
		logger: logger.With(zap.String("component", "transport")),
	}
}

// Send opens a TCP connection to host:port, writes the message as a
// 4-byte big-endian length prefix followed by the JSON payload, and reads
// a response framed the same way. Timeout covers connect, write and read.
// Failure categories (timeout, refused, early close, malformed JSON) are
// logged distinctly but all surface as an error the caller treats as "no
// response".
func (t *NetTransport) Send(msg Message, host string, port int, timeout time.Duration) (*Message, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("mcp: encode request: %w", err)
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, t.sendError("connect", addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, t.sendError("deadline", addr, err)
	}

	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(payload)))
	copy(frame[4:], payload)
	if _, err := conn.Write(frame); err != nil {
		return nil, t.sendError("write", addr, err)
	}
	t.logger.Debug("sent MCP message", zap.String("addr", addr), zap.String("type", string(msg.MCP.Type)))

	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, t.sendError("read length", addr, err)
	}
	length := binary.BigEndian.Uint32(header)

	// ReadFull accumulates partial reads until the full body arrives or
	// the peer closes early.
	body := make([]byte, length)
	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, t.sendError("read body", addr, err)
	}

	var response Message
	if err := json.Unmarshal(body, &response); err != nil {
		t.logger.Error("invalid JSON response", zap.String("addr", addr), zap.Error(err))
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, err)
	}
	t.logger.Debug("received MCP response", zap.String("addr", addr), zap.String("type", string(response.MCP.Type)))
	return &response, nil
}

// sendError classifies and logs a transport failure on the stream
// channel.
func (t *NetTransport) sendError(op, addr string, err error) error {
	var nerr net.Error
	switch {
	case errors.As(err, &nerr) && nerr.Timeout():
		t.logger.Error("connection timed out", zap.String("op", op), zap.String("addr", addr))
		return fmt.Errorf("%w: %s %s", ErrTimeout, op, addr)
	case errors.Is(err, syscall.ECONNREFUSED):
		t.logger.Error("connection refused", zap.String("addr", addr))
		return fmt.Errorf("%w: %s", ErrConnectionRefused, addr)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		t.logger.Error("connection closed early", zap.String("op", op), zap.String("addr", addr))
		return fmt.Errorf("%w: %s %s", ErrEarlyClose, op, addr)
	default:
		t.logger.Error("transport failure", zap.String("op", op), zap.String("addr", addr), zap.Error(err))
		return fmt.Errorf("%w: %s %s: %s", ErrTransport, op, addr, err)
	}
}

// BroadcastDiscovery sends one discovery datagram to address:port and
// collects responses for the fixed window. Malformed or invalid datagrams
// are logged and discarded; accepted responses carry the sender's
// address and port.
func (t *NetTransport) BroadcastDiscovery(address string, port int) ([]DiscoveryResponse, error) {
	payload, err := json.Marshal(NewDiscoveryMessage())
	if err != nil {
		return nil, fmt.Errorf("mcp: encode discovery: %w", err)
	}

	conn, err := listenBroadcast()
	if err != nil {
		t.logger.Error("discovery socket failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %s", ErrTransport, err)
	}
	defer conn.Close()

	dst := &net.UDPAddr{IP: net.ParseIP(address), Port: port}
	if dst.IP == nil {
		return nil, fmt.Errorf("%w: invalid broadcast address %q", ErrTransport, address)
	}
	if _, err := conn.WriteTo(payload, dst); err != nil {
		t.logger.Error("discovery broadcast failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %s", ErrTransport, err)
	}
	t.logger.Debug("sent discovery broadcast", zap.String("address", address), zap.Int("port", port))

	window := t.Window
	if window <= 0 {
		window = DefaultBroadcastWindow
	}
	deadline := time.Now().Add(window)

	var responses []DiscoveryResponse
	buf := make([]byte, maxDatagramSize)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			break
		}
		n, src, err := conn.ReadFrom(buf)
		if err != nil {
			var nerr net.Error
			if !(errors.As(err, &nerr) && nerr.Timeout()) {
				t.logger.Warn("discovery receive failed", zap.Error(err))
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(buf[:n], &msg); err != nil {
			t.logger.Warn("discarding invalid discovery JSON", zap.String("from", src.String()))
			continue
		}
		if !ValidDiscoveryResponse(msg) {
			t.logger.Warn("discarding invalid discovery response", zap.String("from", src.String()))
			continue
		}

		host, portStr, err := net.SplitHostPort(src.String())
		if err != nil {
			continue
		}
		srcPort, _ := strconv.Atoi(portStr)
		t.logger.Debug("accepted discovery response", zap.String("from", src.String()),
			zap.String("uuid", msg.MCP.Device.UUID))
		responses = append(responses, DiscoveryResponse{
			Message:    msg,
			SourceIP:   host,
			SourcePort: srcPort,
		})
	}
	return responses, nil
}

// listenBroadcast opens a UDP socket with SO_BROADCAST set so the
// discovery datagram may target a broadcast address.
func listenBroadcast() (net.PacketConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	return lc.ListenPacket(context.Background(), "udp4", ":0")
}
