package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"mcphub/internal/storage"
	"mcphub/internal/syncer"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/version", s.VersionHandler)

	api := e.Group("/api")
	api.GET("/devices", s.ListDevicesHandler)
	api.GET("/devices/:id", s.GetDeviceHandler)
	api.GET("/devices/:id/contexts", s.ListContextsHandler)
	api.GET("/devices/:id/contexts/:contextId/points", s.ListPointsHandler)
	api.GET("/devices/:id/events", s.ListEventsHandler)
	api.POST("/devices/:id/contexts/:contextId/write", s.WriteHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	if _, err := s.store.ListDevices(); err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	return c.String(http.StatusOK, "health_check: OK")
}

func (s *Server) VersionHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"version": versioninfo.Short()})
}

type deviceView struct {
	ID              uint       `json:"id"`
	UUID            string     `json:"uuid"`
	Name            string     `json:"name"`
	Model           string     `json:"model"`
	Manufacturer    string     `json:"manufacturer"`
	FirmwareVersion string     `json:"firmware_version"`
	ProtocolVersion string     `json:"protocol_version"`
	IPAddress       string     `json:"ip_address"`
	Port            int        `json:"port"`
	IsOnline        bool       `json:"is_online"`
	LastSeen        *time.Time `json:"last_seen,omitempty"`
}

type contextView struct {
	ID          uint   `json:"id"`
	ContextID   string `json:"context_id"`
	ContextType string `json:"context_type"`
	ModelID     *int   `json:"model_id,omitempty"`
	ModelName   string `json:"model_name,omitempty"`
	Description string `json:"description,omitempty"`
}

type pointView struct {
	PointID     string     `json:"point_id"`
	Name        string     `json:"name"`
	DataType    string     `json:"data_type"`
	Unit        string     `json:"unit,omitempty"`
	Access      string     `json:"access"`
	Description string     `json:"description,omitempty"`
	Value       *string    `json:"value"`
	Display     string     `json:"display"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

type eventView struct {
	ID        uint      `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
}

func toDeviceView(d storage.Device) deviceView {
	return deviceView{
		ID:              d.ID,
		UUID:            d.UUID,
		Name:            d.Name,
		Model:           d.Model,
		Manufacturer:    d.Manufacturer,
		FirmwareVersion: d.FirmwareVersion,
		ProtocolVersion: d.ProtocolVersion,
		IPAddress:       d.IPAddress,
		Port:            d.Port,
		IsOnline:        d.IsOnline,
		LastSeen:        d.LastSeen,
	}
}

func (s *Server) ListDevicesHandler(c echo.Context) error {
	devices, err := s.store.ListDevices()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, toDeviceView(d))
	}
	return c.JSON(http.StatusOK, views)
}

func (s *Server) GetDeviceHandler(c echo.Context) error {
	device, err := s.deviceParam(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toDeviceView(*device))
}

func (s *Server) ListContextsHandler(c echo.Context) error {
	device, err := s.deviceParam(c)
	if err != nil {
		return err
	}
	contexts, err := s.store.ListContexts(device.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	views := make([]contextView, 0, len(contexts))
	for _, ctx := range contexts {
		views = append(views, contextView{
			ID:          ctx.ID,
			ContextID:   ctx.ContextID,
			ContextType: ctx.ContextType,
			ModelID:     ctx.ModelID,
			ModelName:   ctx.ModelName,
			Description: ctx.Description,
		})
	}
	return c.JSON(http.StatusOK, views)
}

func (s *Server) ListPointsHandler(c echo.Context) error {
	device, err := s.deviceParam(c)
	if err != nil {
		return err
	}
	ctx, err := s.store.FindContext(device.ID, c.Param("contextId"))
	if errors.Is(err, storage.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "context not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	points, err := s.store.ListPoints(ctx.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	views := make([]pointView, 0, len(points))
	for _, p := range points {
		views = append(views, pointView{
			PointID:     p.PointID,
			Name:        p.Name,
			DataType:    p.DataType,
			Unit:        p.Unit,
			Access:      p.Access,
			Description: p.Description,
			Value:       p.Value,
			Display:     s.displayValue(ctx, p),
			LastUpdated: p.LastUpdated,
		})
	}
	return c.JSON(http.StatusOK, views)
}

func (s *Server) ListEventsHandler(c echo.Context) error {
	device, err := s.deviceParam(c)
	if err != nil {
		return err
	}
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
	}
	events, err := s.store.ListEvents(device.ID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	views := make([]eventView, 0, len(events))
	for _, ev := range events {
		views = append(views, eventView{
			ID:        ev.ID,
			Timestamp: ev.CreatedAt,
			EventType: ev.EventType,
			Message:   ev.Message,
			Details:   ev.Details,
		})
	}
	return c.JSON(http.StatusOK, views)
}

func (s *Server) WriteHandler(c echo.Context) error {
	device, err := s.deviceParam(c)
	if err != nil {
		return err
	}
	var values map[string]any
	if err := c.Bind(&values); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(values) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "empty request body")
	}
	if err := s.sync.Write(device.ID, c.Param("contextId"), values); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func (s *Server) deviceParam(c echo.Context) (*storage.Device, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid device id")
	}
	device, err := s.store.GetDevice(uint(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "device not found")
	}
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return device, nil
}

func (s *Server) displayValue(ctx *storage.Context, p storage.DataPoint) string {
	if p.Value == nil {
		return s.models.FormatValue(0, p.PointID, nil)
	}
	if ctx.ModelID == nil {
		return *p.Value
	}
	parsed := s.models.ParseValue(*ctx.ModelID, p.PointID, *p.Value)
	return s.models.FormatValue(*ctx.ModelID, p.PointID, parsed)
}

func writeError(err error) error {
	var serr *syncer.Error
	if !errors.As(err, &serr) {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	switch serr.Kind {
	case syncer.KindValidation:
		return echo.NewHTTPError(http.StatusBadRequest, serr.Message)
	case syncer.KindTransport, syncer.KindProtocol:
		return echo.NewHTTPError(http.StatusBadGateway, serr.Message)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, serr.Message)
	}
}
