// Package simulator provides an in-process fleet of DER devices speaking
// the same request/response contract as real hardware, so the hub can be
// exercised and tested without a network.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"mcphub/pkg/mcp"

	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const (
	DefaultBasePort       = mcp.DefaultPort
	DefaultUpdateInterval = 5 * time.Second

	fleetSourceIP = "127.0.0.1"
)

// Fleet is a set of simulated devices implementing mcp.Transport.
type Fleet struct {
	mu        sync.Mutex
	devices   []*Device
	scheduler quartz.Scheduler
	logger    *zap.Logger
}

// NewFleet builds the fixed SUN2000 profile plus numDevices randomly
// shaped inverter/battery/hybrid devices, listening on consecutive ports
// from basePort.
func NewFleet(numDevices int, basePort int, logger *zap.Logger) *Fleet {
	if basePort <= 0 {
		basePort = DefaultBasePort
	}
	f := &Fleet{
		logger: logger.With(zap.String("component", "simulator")),
	}

	f.devices = append(f.devices, newSUN2000(basePort))
	for i := 0; i < numDevices; i++ {
		name := fmt.Sprintf("Simulated-DER-%d", i+1)
		port := basePort + i + 1
		var dev *Device
		switch rand.IntN(3) {
		case 0:
			dev = newInverter(name, port)
		case 1:
			dev = newBattery(name, port)
		default:
			dev = newHybrid(name, port)
		}
		f.devices = append(f.devices, dev)
	}
	for _, dev := range f.devices {
		f.logger.Info("created simulated device", zap.String("uuid", dev.UUID),
			zap.String("model", dev.Model), zap.Int("port", dev.Port))
	}
	return f
}

// Start schedules periodic value drift until ctx is cancelled.
func (f *Fleet) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}
	f.scheduler = quartz.NewStdScheduler()
	f.scheduler.Start(ctx)

	updateJob := job.NewFunctionJob(func(_ context.Context) (int, error) {
		f.UpdateData()
		return 0, nil
	})
	detail := quartz.NewJobDetail(updateJob, quartz.NewJobKey("fleet-update"))
	if err := f.scheduler.ScheduleJob(detail, quartz.NewSimpleTrigger(interval)); err != nil {
		return fmt.Errorf("simulator: schedule update job: %w", err)
	}
	f.logger.Info("simulator started", zap.Int("devices", len(f.devices)),
		zap.Duration("update_interval", interval))
	return nil
}

// Stop halts the drift scheduler.
func (f *Fleet) Stop() {
	if f.scheduler != nil {
		f.scheduler.Stop()
	}
}

// Devices returns a snapshot of the fleet.
func (f *Fleet) Devices() []*Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Device, len(f.devices))
	copy(out, f.devices)
	return out
}

// SetOnline toggles a device's reachability: offline devices answer no
// broadcast and time out on direct requests.
func (f *Fleet) SetOnline(uuid string, online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, dev := range f.devices {
		if dev.UUID == uuid {
			dev.Online = online
			return
		}
	}
}

// BroadcastDiscovery answers with one discovery response per reachable
// device, annotated with its loopback address and port.
func (f *Fleet) BroadcastDiscovery(address string, port int) ([]mcp.DiscoveryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var responses []mcp.DiscoveryResponse
	for _, dev := range f.devices {
		if !dev.Online {
			continue
		}
		responses = append(responses, mcp.DiscoveryResponse{
			Message: mcp.Message{MCP: mcp.Envelope{
				Version:   mcp.ProtocolVersion,
				Type:      mcp.TypeDiscoveryResponse,
				Timestamp: time.Now().Unix(),
				Device:    dev.info(),
			}},
			SourceIP:   fleetSourceIP,
			SourcePort: dev.Port,
		})
	}
	f.logger.Debug("answered discovery broadcast", zap.Int("responses", len(responses)))
	return responses, nil
}

// Send serves one request against the device listening on port.
func (f *Fleet) Send(msg mcp.Message, host string, port int, timeout time.Duration) (*mcp.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	dev := f.deviceByPort(port)
	if dev == nil || !dev.Online {
		return nil, fmt.Errorf("%w: %s:%d", mcp.ErrTimeout, host, port)
	}

	switch msg.MCP.Type {
	case mcp.TypeDeviceInfo:
		return response(mcp.TypeDeviceInfoResponse, func(env *mcp.Envelope) {
			env.Device = dev.info()
		}), nil
	case mcp.TypeContexts:
		return response(mcp.TypeContextsResponse, func(env *mcp.Envelope) {
			env.Contexts = dev.contextInfos()
		}), nil
	case mcp.TypeRead:
		return dev.handleRead(msg), nil
	case mcp.TypeWrite:
		return dev.handleWrite(msg), nil
	}
	return failure(msg.MCP.Type, msg.MCP.Context, fmt.Sprintf("unsupported message type %q", msg.MCP.Type)), nil
}

func (f *Fleet) deviceByPort(port int) *Device {
	for _, dev := range f.devices {
		if dev.Port == port {
			return dev
		}
	}
	return nil
}

func (d *Device) info() *mcp.DeviceInfo {
	return &mcp.DeviceInfo{
		UUID:            d.UUID,
		Name:            d.Name,
		Model:           d.Model,
		Manufacturer:    d.Manufacturer,
		FirmwareVersion: d.FirmwareVersion,
		ProtocolVersion: d.ProtocolVersion,
		SerialNumber:    d.SerialNumber,
	}
}

func (d *Device) contextInfos() []mcp.ContextInfo {
	infos := make([]mcp.ContextInfo, 0, len(d.Contexts))
	for _, ctx := range d.Contexts {
		modelID := ctx.ModelID
		info := mcp.ContextInfo{
			ID:          ctx.ID,
			Type:        ctx.Type,
			Description: ctx.Description,
			ModelID:     &modelID,
			ModelName:   ctx.ModelName,
			Points:      make(map[string]mcp.PointInfo, len(ctx.Points)),
		}
		for id, p := range ctx.Points {
			info.Points[id] = mcp.PointInfo{
				Name:        p.Name,
				Type:        p.Type,
				Unit:        p.Unit,
				Access:      p.Access,
				Description: p.Description,
				Value:       p.Value,
			}
		}
		infos = append(infos, info)
	}
	return infos
}

func (d *Device) handleRead(msg mcp.Message) *mcp.Message {
	ctx := d.context(msg.MCP.Context)
	if ctx == nil {
		return failure(mcp.TypeReadResponse, msg.MCP.Context,
			fmt.Sprintf("context with ID %s not found in device %s", msg.MCP.Context, d.UUID))
	}

	pointIDs, err := msg.MCP.PointIDs()
	if err != nil {
		return failure(mcp.TypeReadResponse, msg.MCP.Context, "invalid point filter")
	}

	values := make(map[string]any)
	if len(pointIDs) > 0 {
		for _, id := range pointIDs {
			if p, ok := ctx.Points[id]; ok {
				values[id] = p.Value
			}
		}
	} else {
		for id, p := range ctx.Points {
			values[id] = p.Value
		}
	}
	raw, _ := json.Marshal(values)

	return response(mcp.TypeReadResponse, func(env *mcp.Envelope) {
		env.Context = msg.MCP.Context
		env.Success = mcp.BoolPtr(true)
		env.Points = raw
	})
}

func (d *Device) handleWrite(msg mcp.Message) *mcp.Message {
	ctx := d.context(msg.MCP.Context)
	if ctx == nil {
		return failure(mcp.TypeWriteResponse, msg.MCP.Context,
			fmt.Sprintf("context with ID %s not found in device %s", msg.MCP.Context, d.UUID))
	}

	values, err := msg.MCP.PointValues()
	if err != nil || len(values) == 0 {
		return failure(mcp.TypeWriteResponse, msg.MCP.Context, "no points to write")
	}

	// validate the whole batch before applying anything
	for id := range values {
		p, ok := ctx.Points[id]
		if !ok {
			return failure(mcp.TypeWriteResponse, msg.MCP.Context,
				fmt.Sprintf("point %s not found in context %s", id, msg.MCP.Context))
		}
		if p.Access != "W" && p.Access != "RW" {
			return failure(mcp.TypeWriteResponse, msg.MCP.Context,
				fmt.Sprintf("point %s is not writable (access: %s)", id, p.Access))
		}
	}

	updated := make(map[string]any, len(values))
	for id, value := range values {
		ctx.Points[id].Value = value
		updated[id] = value
	}

	return response(mcp.TypeWriteResponse, func(env *mcp.Envelope) {
		env.Context = msg.MCP.Context
		env.Success = mcp.BoolPtr(true)
		env.UpdatedPoints = updated
	})
}

func response(t mcp.MessageType, build func(env *mcp.Envelope)) *mcp.Message {
	msg := &mcp.Message{MCP: mcp.Envelope{
		Version:   mcp.ProtocolVersion,
		Type:      t,
		Timestamp: time.Now().Unix(),
	}}
	build(&msg.MCP)
	return msg
}

func failure(t mcp.MessageType, contextPath, errMsg string) *mcp.Message {
	return response(t, func(env *mcp.Envelope) {
		env.Context = contextPath
		env.Success = mcp.BoolPtr(false)
		env.Error = errMsg
	})
}
