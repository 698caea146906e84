package server

import (
	"fmt"
	"net/http"
	"time"

	"mcphub/internal/config"
	"mcphub/internal/storage"
	"mcphub/internal/syncer"
	"mcphub/pkg/sunspec"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
)

type Server struct {
	port    uint
	httpLog bool
	store   storage.Store
	sync    *syncer.Synchronizer
	models  *sunspec.Registry
	logger  *zap.Logger
}

func NewServer(cfg config.Config, store storage.Store, sync *syncer.Synchronizer,
	models *sunspec.Registry, logger *zap.Logger) *http.Server {
	NewServer := &Server{
		port:    cfg.Port,
		httpLog: cfg.HttpLog,
		store:   store,
		sync:    sync,
		models:  models,
		logger:  logger.With(zap.String("component", "http")),
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
