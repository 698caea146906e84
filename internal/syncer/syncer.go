// Package syncer keeps point values of online devices fresh through
// periodic reads, and carries the validated write path.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"mcphub/internal/events"
	"mcphub/internal/storage"
	"mcphub/pkg/mcp"
	"mcphub/pkg/sunspec"

	"go.uber.org/zap"
)

const (
	DefaultInterval       = 30 * time.Second
	DefaultRequestTimeout = 5 * time.Second
)

// Config carries the synchronizer's tunables.
type Config struct {
	Interval       time.Duration
	RequestTimeout time.Duration
}

// Synchronizer refreshes online devices on a timed loop and serves
// validated writes.
type Synchronizer struct {
	transport mcp.Transport
	store     storage.Store
	models    *sunspec.Registry
	sink      events.Sink
	logger    *zap.Logger
	cfg       Config
}

// NewSynchronizer builds the synchronizer. sink may be nil.
func NewSynchronizer(cfg Config, transport mcp.Transport, store storage.Store, models *sunspec.Registry, sink events.Sink, logger *zap.Logger) *Synchronizer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Synchronizer{
		transport: transport,
		store:     store,
		models:    models,
		sink:      sink,
		logger:    logger.With(zap.String("component", "syncer")),
		cfg:       cfg,
	}
}

// Run executes refresh rounds until ctx is cancelled, with the same
// cooperative-stop semantics as the discovery loop and independent of
// it.
func (s *Synchronizer) Run(ctx context.Context) {
	s.logger.Info("refresh loop started", zap.Duration("interval", s.cfg.Interval))
	for {
		if err := s.RefreshAll(); err != nil {
			s.logger.Error("refresh round failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("refresh loop stopped")
			return
		case <-time.After(s.cfg.Interval):
		}
	}
}

// RefreshAll refreshes every online device. A failure on one device is
// logged, recorded as an error event, and never blocks the remaining
// devices.
func (s *Synchronizer) RefreshAll() error {
	devices, err := s.store.ListOnlineDevices()
	if err != nil {
		return persistenceError(err)
	}
	if len(devices) == 0 {
		s.logger.Debug("no online devices to refresh")
		return nil
	}

	for i := range devices {
		device := &devices[i]
		if err := s.refreshDevice(device); err != nil {
			s.logger.Error("failed to refresh device",
				zap.String("uuid", device.UUID), zap.Error(err))
			s.recordError(device, "Error refreshing device data", err)
		}
	}
	return nil
}

// refreshDevice refreshes every known context of one device and bumps
// its last-seen timestamp. Context failures are isolated from each
// other; an error is returned when nothing could be refreshed. Last-seen
// only moves when at least one read succeeded, so a device with no
// known contexts stays untouched.
func (s *Synchronizer) refreshDevice(device *storage.Device) error {
	contexts, err := s.store.ListContexts(device.ID)
	if err != nil {
		return persistenceError(err)
	}
	if len(contexts) == 0 {
		s.logger.Debug("device has no contexts to refresh", zap.String("uuid", device.UUID))
		return nil
	}

	var firstErr error
	failed := 0
	for i := range contexts {
		if err := s.refreshContext(device, &contexts[i]); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			s.logger.Warn("failed to refresh context",
				zap.String("uuid", device.UUID),
				zap.String("context", contexts[i].ContextID),
				zap.Error(err))
		}
	}
	if failed == len(contexts) {
		return firstErr
	}

	now := time.Now().UTC()
	device.LastSeen = &now
	if err := s.store.SaveDevice(device); err != nil {
		return persistenceError(err)
	}
	s.logger.Debug("refreshed device", zap.String("uuid", device.UUID),
		zap.Int("contexts", len(contexts)), zap.Int("failed", failed))
	return nil
}

// refreshContext issues a read with no point filter and merges the
// returned values into storage.
func (s *Synchronizer) refreshContext(device *storage.Device, ctx *storage.Context) error {
	response, err := s.transport.Send(mcp.NewReadRequest(ctx.ContextID, nil),
		device.IPAddress, device.Port, s.cfg.RequestTimeout)
	if err != nil {
		return transportError(err)
	}
	if response.MCP.Type != mcp.TypeReadResponse {
		return protocolError(fmt.Sprintf("unexpected response type %q", response.MCP.Type))
	}
	if response.MCP.Success != nil && !*response.MCP.Success {
		return protocolError(deviceError(response.MCP))
	}
	values, err := response.MCP.PointValues()
	if err != nil {
		return protocolError("unreadable points payload")
	}
	if len(values) == 0 {
		return nil
	}
	return s.mergePointValues(ctx, values)
}

// mergePointValues merges read values into the context's points in one
// transaction: string-coerce, touch the timestamp only on change, never
// overwrite with null, ignore unknown point ids.
func (s *Synchronizer) mergePointValues(ctx *storage.Context, values map[string]any) error {
	err := s.store.Transaction(func(tx storage.Store) error {
		for pointID, value := range values {
			if value == nil {
				continue
			}
			point, err := tx.FindPoint(ctx.ID, pointID)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			coerced := fmt.Sprintf("%v", value)
			if point.Value != nil && *point.Value == coerced {
				continue
			}
			now := time.Now().UTC()
			point.Value = &coerced
			point.LastUpdated = &now
			if err := tx.SavePoint(point); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return persistenceError(err)
	}
	return nil
}

// Write resolves the requested points against the context, sends one
// write message for the writable intersection, and persists only the
// points the device acknowledged. Any failure leaves local state
// untouched and is returned typed to the caller.
func (s *Synchronizer) Write(deviceID uint, contextID string, values map[string]any) error {
	device, err := s.store.GetDevice(deviceID)
	if errors.Is(err, storage.ErrNotFound) {
		return validationError("device not found")
	}
	if err != nil {
		return persistenceError(err)
	}
	if !device.IsOnline {
		return validationError("device is offline")
	}

	ctx, err := s.store.FindContext(device.ID, contextID)
	if errors.Is(err, storage.ErrNotFound) {
		return validationError(fmt.Sprintf("context %q not found", contextID))
	}
	if err != nil {
		return persistenceError(err)
	}

	resolved, err := s.resolveWritablePoints(ctx, values)
	if err != nil {
		return err
	}
	if len(resolved) == 0 {
		return validationError("no valid writable points")
	}

	response, err := s.transport.Send(mcp.NewWriteRequest(contextID, resolved),
		device.IPAddress, device.Port, s.cfg.RequestTimeout)
	if err != nil {
		return transportError(err)
	}
	if response.MCP.Type != mcp.TypeWriteResponse {
		return protocolError(fmt.Sprintf("unexpected response type %q", response.MCP.Type))
	}
	if !response.MCP.Succeeded() {
		return protocolError(deviceError(response.MCP))
	}

	// The device may acknowledge a subset; only the echoed points are
	// persisted.
	acked := response.MCP.AckedPoints()
	touched := make([]string, 0, len(acked))
	err = s.store.Transaction(func(tx storage.Store) error {
		for pointID := range acked {
			value, requested := resolved[pointID]
			if !requested {
				continue
			}
			if ackedValue := acked[pointID]; ackedValue != nil {
				value = ackedValue
			}
			point, err := tx.FindPoint(ctx.ID, pointID)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			coerced := fmt.Sprintf("%v", value)
			now := time.Now().UTC()
			point.Value = &coerced
			point.LastUpdated = &now
			if err := tx.SavePoint(point); err != nil {
				return err
			}
			touched = append(touched, pointID)
		}
		sort.Strings(touched)
		return tx.AppendEvent(&storage.DeviceEvent{
			DeviceID:  device.ID,
			EventType: storage.EventWrite,
			Message:   fmt.Sprintf("Wrote values to %s", contextID),
			Details:   fmt.Sprintf("Points: %s", strings.Join(touched, ", ")),
		})
	})
	if err != nil {
		return persistenceError(err)
	}

	s.logger.Info("wrote values to context", zap.String("uuid", device.UUID),
		zap.String("context", contextID), zap.Strings("points", touched))
	if s.sink != nil {
		s.sink.PublishDeviceEvent(events.DeviceEvent{
			DeviceUUID: device.UUID,
			EventType:  storage.EventWrite,
			Message:    fmt.Sprintf("Wrote values to %s", contextID),
			Details:    fmt.Sprintf("Points: %s", strings.Join(touched, ", ")),
		})
	}
	return nil
}

// WritePoint applies the same access-check-then-network-then-persist
// semantics to a single point id/value pair.
func (s *Synchronizer) WritePoint(deviceID uint, contextID, pointID string, value any) error {
	return s.Write(deviceID, contextID, map[string]any{pointID: value})
}

// resolveWritablePoints intersects the requested point set with the
// points that exist in the context and carry write access. Values are
// validated and coerced against the context's declared model when one is
// known.
func (s *Synchronizer) resolveWritablePoints(ctx *storage.Context, values map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(values))
	for pointID, value := range values {
		point, err := s.store.FindPoint(ctx.ID, pointID)
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("ignoring unknown point in write request",
				zap.String("context", ctx.ContextID), zap.String("point", pointID))
			continue
		}
		if err != nil {
			return nil, persistenceError(err)
		}
		if !point.Writable() {
			s.logger.Warn("ignoring non-writable point in write request",
				zap.String("context", ctx.ContextID), zap.String("point", pointID),
				zap.String("access", point.Access))
			continue
		}
		if ctx.ModelID != nil {
			if !s.models.ValidateValue(*ctx.ModelID, pointID, value) {
				s.logger.Warn("ignoring point value failing model validation",
					zap.String("context", ctx.ContextID), zap.String("point", pointID),
					zap.Any("value", value))
				continue
			}
			value = s.models.ParseValue(*ctx.ModelID, pointID, value)
		}
		resolved[pointID] = value
	}
	return resolved, nil
}

func (s *Synchronizer) recordError(device *storage.Device, message string, cause error) {
	event := &storage.DeviceEvent{
		DeviceID:  device.ID,
		EventType: storage.EventError,
		Message:   message,
		Details:   cause.Error(),
	}
	if err := s.store.AppendEvent(event); err != nil {
		s.logger.Error("failed to append error event", zap.Error(err))
		return
	}
	if s.sink != nil {
		s.sink.PublishDeviceEvent(events.DeviceEvent{
			DeviceUUID: device.UUID,
			EventType:  storage.EventError,
			Message:    message,
			Details:    cause.Error(),
		})
	}
}

// deviceError extracts a device's explicit protocol error, with a
// fallback for responses that fail without one.
func deviceError(env mcp.Envelope) string {
	if env.Error != "" {
		return env.Error
	}
	return "unknown device error"
}
