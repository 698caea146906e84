// Package discovery drives broadcast discovery rounds and keeps the
// device registry truthful: upserting devices, contexts and points from
// responses and enforcing online/offline liveness.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mcphub/internal/events"
	"mcphub/internal/storage"
	"mcphub/pkg/contextpath"
	"mcphub/pkg/mcp"

	"go.uber.org/zap"
)

const (
	DefaultInterval       = 60 * time.Second
	DefaultRequestTimeout = 5 * time.Second
)

// Config carries the engine's tunables.
type Config struct {
	BroadcastAddress string
	BroadcastPort    int
	Interval         time.Duration
	RequestTimeout   time.Duration
}

// Engine performs discovery rounds on a timed loop.
type Engine struct {
	transport mcp.Transport
	store     storage.Store
	sink      events.Sink
	logger    *zap.Logger
	cfg       Config
}

// NewEngine builds the engine. sink may be nil.
func NewEngine(cfg Config, transport mcp.Transport, store storage.Store, sink events.Sink, logger *zap.Logger) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.BroadcastPort == 0 {
		cfg.BroadcastPort = mcp.DefaultPort
	}
	return &Engine{
		transport: transport,
		store:     store,
		sink:      sink,
		logger:    logger.With(zap.String("component", "discovery")),
		cfg:       cfg,
	}
}

// Run executes discovery rounds until ctx is cancelled. Errors inside a
// round are logged and never abort the loop; cancellation wakes the
// inter-round wait immediately but does not interrupt an in-flight
// round's network operations.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("discovery loop started",
		zap.String("broadcast_address", e.cfg.BroadcastAddress),
		zap.Int("broadcast_port", e.cfg.BroadcastPort),
		zap.Duration("interval", e.cfg.Interval))
	for {
		if err := e.Discover(); err != nil {
			e.logger.Error("discovery round failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			e.logger.Info("discovery loop stopped")
			return
		case <-time.After(e.cfg.Interval):
		}
	}
}

// Discover runs a single reconciliation round: broadcast, upsert every
// accepted response, query each upserted device's contexts, then run the
// authoritative liveness pass. A round that collected zero responses
// marks every known device offline.
func (e *Engine) Discover() error {
	responses, err := e.transport.BroadcastDiscovery(e.cfg.BroadcastAddress, e.cfg.BroadcastPort)
	if err != nil {
		// Broadcast silence is authoritative: the liveness pass still
		// runs on whatever was collected.
		e.logger.Error("discovery broadcast failed", zap.Error(err))
	}
	e.logger.Info("discovery round", zap.Int("responses", len(responses)))

	seen := make(map[string]struct{}, len(responses))
	for _, response := range responses {
		// the device answered, so the liveness pass must not touch it
		// even if its upsert fails below
		seen[response.Message.MCP.Device.UUID] = struct{}{}

		device, err := e.upsertDevice(response)
		if err != nil {
			e.logger.Error("failed to process discovery response", zap.Error(err))
			continue
		}

		if err := e.syncContexts(device); err != nil {
			e.logger.Error("failed to sync device contexts",
				zap.String("uuid", device.UUID), zap.Error(err))
		}
	}

	return e.updateLiveness(seen)
}

// upsertDevice creates or updates the device a discovery response
// describes, inside one transaction together with its events. The uuid
// never changes; last-seen is owned by the synchronizer and is only
// seeded at creation.
func (e *Engine) upsertDevice(response mcp.DiscoveryResponse) (*storage.Device, error) {
	info := response.Message.MCP.Device
	port := response.SourcePort
	if port == 0 {
		port = mcp.DefaultPort
	}
	name := info.Name
	if name == "" {
		name = fmt.Sprintf("Device-%.8s", info.UUID)
	}

	var (
		device     *storage.Device
		created    bool
		cameOnline bool
	)
	err := e.store.Transaction(func(tx storage.Store) error {
		existing, err := tx.FindDeviceByUUID(info.UUID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			now := time.Now().UTC()
			device = &storage.Device{
				UUID:            info.UUID,
				Name:            name,
				Model:           info.Model,
				Manufacturer:    info.Manufacturer,
				FirmwareVersion: info.FirmwareVersion,
				ProtocolVersion: info.ProtocolVersion,
				IPAddress:       response.SourceIP,
				Port:            port,
				IsOnline:        true,
				LastSeen:        &now,
			}
			if err := tx.SaveDevice(device); err != nil {
				return err
			}
			created = true
			return tx.AppendEvent(&storage.DeviceEvent{
				DeviceID:  device.ID,
				EventType: storage.EventDiscovery,
				Message:   "Device discovered",
				Details:   fmt.Sprintf("Model: %s, Manufacturer: %s", info.Model, info.Manufacturer),
			})
		case err != nil:
			return err
		}

		cameOnline = !existing.IsOnline
		existing.Name = name
		existing.Model = info.Model
		existing.Manufacturer = info.Manufacturer
		existing.FirmwareVersion = info.FirmwareVersion
		existing.ProtocolVersion = info.ProtocolVersion
		existing.IPAddress = response.SourceIP
		existing.Port = port
		existing.IsOnline = true
		if err := tx.SaveDevice(existing); err != nil {
			return err
		}
		device = existing
		if cameOnline {
			return tx.AppendEvent(&storage.DeviceEvent{
				DeviceID:  device.ID,
				EventType: storage.EventStatusChange,
				Message:   "Device came online",
				Details:   fmt.Sprintf("IP: %s, Port: %d", response.SourceIP, port),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		e.logger.Info("registered new device", zap.String("uuid", device.UUID), zap.String("model", device.Model))
		e.publishEvent(device.UUID, storage.EventDiscovery, "Device discovered", "")
		e.publishOnline(device.UUID, true)
	} else if cameOnline {
		e.logger.Info("device came online", zap.String("uuid", device.UUID))
		e.publishEvent(device.UUID, storage.EventStatusChange, "Device came online", "")
		e.publishOnline(device.UUID, true)
	}
	return device, nil
}

// syncContexts queries the device for its available contexts and
// reconciles them, one transaction per device.
func (e *Engine) syncContexts(device *storage.Device) error {
	response, err := e.transport.Send(mcp.NewContextsRequest(), device.IPAddress, device.Port, e.cfg.RequestTimeout)
	if err != nil {
		return err
	}
	if len(response.MCP.Contexts) == 0 {
		return nil
	}

	return e.store.Transaction(func(tx storage.Store) error {
		for _, info := range response.MCP.Contexts {
			if info.ID == "" {
				continue
			}
			ctx, err := e.upsertContext(tx, device.ID, info)
			if err != nil {
				return err
			}
			if len(info.Points) > 0 {
				if err := e.reconcilePoints(tx, ctx, info.Points); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// upsertContext creates or updates one context by (device, context-id).
// Descriptive fields are updated unconditionally. A missing type is
// derived from the context path, e.g. "mppt.3" -> "mppt".
func (e *Engine) upsertContext(tx storage.Store, deviceID uint, info mcp.ContextInfo) (*storage.Context, error) {
	contextType := info.Type
	if contextType == "" {
		contextType = contextpath.Type(info.ID)
	}
	description := info.Description
	if description == "" {
		description = fmt.Sprintf("%s context", contextType)
	}

	ctx, err := tx.FindContext(deviceID, info.ID)
	if errors.Is(err, storage.ErrNotFound) {
		ctx = &storage.Context{
			DeviceID:    deviceID,
			ContextID:   info.ID,
			ContextType: contextType,
			ModelID:     info.ModelID,
			ModelName:   info.ModelName,
			Description: description,
		}
		e.logger.Debug("registering new context", zap.Uint("device", deviceID), zap.String("context", info.ID))
		return ctx, tx.SaveContext(ctx)
	}
	if err != nil {
		return nil, err
	}

	ctx.ContextType = contextType
	ctx.ModelID = info.ModelID
	ctx.ModelName = info.ModelName
	ctx.Description = description
	return ctx, tx.SaveContext(ctx)
}

// reconcilePoints upserts point definitions embedded in a contexts
// reply. Metadata is updated unconditionally; a value already known
// locally is never overwritten by an absent incoming value.
func (e *Engine) reconcilePoints(tx storage.Store, ctx *storage.Context, points map[string]mcp.PointInfo) error {
	for pointID, info := range points {
		name := info.Name
		if name == "" {
			name = pointID
		}

		point, err := tx.FindPoint(ctx.ID, pointID)
		if errors.Is(err, storage.ErrNotFound) {
			point = &storage.DataPoint{
				ContextID:   ctx.ID,
				PointID:     pointID,
				Name:        name,
				DataType:    info.Type,
				Unit:        info.Unit,
				Access:      info.Access,
				Description: info.Description,
			}
			if info.Value != nil {
				value := fmt.Sprintf("%v", info.Value)
				now := time.Now().UTC()
				point.Value = &value
				point.LastUpdated = &now
			}
			if err := tx.SavePoint(point); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}

		point.Name = name
		point.DataType = info.Type
		point.Unit = info.Unit
		point.Access = info.Access
		point.Description = info.Description
		if info.Value != nil {
			value := fmt.Sprintf("%v", info.Value)
			now := time.Now().UTC()
			point.Value = &value
			point.LastUpdated = &now
		}
		if err := tx.SavePoint(point); err != nil {
			return err
		}
	}
	return nil
}

// updateLiveness transitions every device that is online but absent from
// this round's discovered set to offline. The pass is authoritative.
func (e *Engine) updateLiveness(seen map[string]struct{}) error {
	var wentOffline []string
	err := e.store.Transaction(func(tx storage.Store) error {
		devices, err := tx.ListDevices()
		if err != nil {
			return err
		}
		for i := range devices {
			device := &devices[i]
			if !device.IsOnline {
				continue
			}
			if _, ok := seen[device.UUID]; ok {
				continue
			}
			device.IsOnline = false
			if err := tx.SaveDevice(device); err != nil {
				return err
			}
			if err := tx.AppendEvent(&storage.DeviceEvent{
				DeviceID:  device.ID,
				EventType: storage.EventStatusChange,
				Message:   "Device went offline",
			}); err != nil {
				return err
			}
			wentOffline = append(wentOffline, device.UUID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, uuid := range wentOffline {
		e.logger.Info("device went offline", zap.String("uuid", uuid))
		e.publishEvent(uuid, storage.EventStatusChange, "Device went offline", "")
		e.publishOnline(uuid, false)
	}
	return nil
}

func (e *Engine) publishEvent(uuid, eventType, message, details string) {
	if e.sink == nil {
		return
	}
	e.sink.PublishDeviceEvent(events.DeviceEvent{
		DeviceUUID: uuid,
		EventType:  eventType,
		Message:    message,
		Details:    details,
	})
}

func (e *Engine) publishOnline(uuid string, online bool) {
	if e.sink == nil {
		return
	}
	e.sink.PublishOnlineState(uuid, online)
}
