package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mcphub/internal/config"
	"mcphub/internal/discovery"
	"mcphub/internal/events"
	"mcphub/internal/mqtt"
	"mcphub/internal/server"
	"mcphub/internal/simulator"
	"mcphub/internal/storage"
	"mcphub/internal/syncer"
	"mcphub/pkg/mcp"
	"mcphub/pkg/sunspec"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, cancel context.CancelFunc, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// stop the discovery and refresh loops
	cancel()

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	// storage
	store, err := storage.NewStore(storeConnector(cfg, logger))
	if err != nil {
		panic(fmt.Sprintf("storage error: %s", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// transport: real network or simulated fleet
	var transport mcp.Transport
	if cfg.Simulator.Enable {
		fleet := simulator.NewFleet(cfg.Simulator.NumDevices, cfg.Simulator.BasePort, logger)
		if err := fleet.Start(ctx, time.Duration(cfg.Simulator.UpdateIntervalSeconds)*time.Second); err != nil {
			panic(fmt.Sprintf("simulator error: %s", err))
		}
		defer fleet.Stop()
		transport = fleet
	} else {
		transport = mcp.CreateNetTransport(logger)
	}

	// event sink
	var sink events.Sink
	if cfg.MQTT.Enable {
		publisher := mqtt.CreatePublisher(cfg, mqtt.OptsFromConfig(cfg), logger)
		if err := publisher.Connect(10 * time.Second); err != nil {
			panic(fmt.Sprintf("MQTT connect error: %s", err))
		}
		defer publisher.Disconnect(2 * time.Second)
		sink = publisher
	}

	models := sunspec.NewRegistry(logger)

	requestTimeout := time.Duration(cfg.Sync.RequestTimeoutSeconds) * time.Second

	engine := discovery.NewEngine(discovery.Config{
		BroadcastAddress: cfg.Discovery.BroadcastAddress,
		BroadcastPort:    cfg.Discovery.BroadcastPort,
		Interval:         time.Duration(cfg.Discovery.IntervalSeconds) * time.Second,
		RequestTimeout:   requestTimeout,
	}, transport, store, sink, logger)

	sync := syncer.NewSynchronizer(syncer.Config{
		Interval:       time.Duration(cfg.Sync.IntervalSeconds) * time.Second,
		RequestTimeout: requestTimeout,
	}, transport, store, models, sink, logger)

	go engine.Run(ctx)
	go sync.Run(ctx)

	apiServer := server.NewServer(*cfg, store, sync, models, logger)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(apiServer, cancel, done)

	err = apiServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")
}

func storeConnector(cfg *config.Config, logger *zap.Logger) storage.ConnectorFunc {
	if cfg.Database.Driver == "postgres" {
		return storage.NewPostgreSQLConnector(cfg.Database.DSN, logger)
	}
	return storage.NewSQLiteConnector(cfg.Database.DSN)
}

func initConfig() (*config.Config, error) {

	// alias PORT => MCPHUB_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("MCPHUB_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("mcphub")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	if cfg.MQTT.Enable {
		baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
		if err != nil {
			return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
		}
		cfg.MQTT.BaseTopic = baseTopic
	}

	// check bounds
	if cfg.Discovery.IntervalSeconds < 5 {
		return nil, errors.New("config param discovery.interval_seconds should be >= 5")
	}
	if cfg.Sync.IntervalSeconds < 1 {
		return nil, errors.New("config param sync.interval_seconds should be >= 1")
	}
	if cfg.Sync.RequestTimeoutSeconds < 1 {
		return nil, errors.New("config param sync.request_timeout_seconds should be >= 1")
	}
	if cfg.Database.Driver != "sqlite" && cfg.Database.Driver != "postgres" {
		return nil, errors.New("config param database.driver should be sqlite or postgres")
	}
	if cfg.Simulator.Enable && cfg.Simulator.NumDevices < 0 {
		return nil, errors.New("config param simulator.num_devices should be >= 0")
	}

	return &cfg, nil
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("discovery.broadcast_address", "255.255.255.255")
	viper.SetDefault("discovery.broadcast_port", mcp.DefaultPort)
	viper.SetDefault("discovery.interval_seconds", 60)
	viper.SetDefault("sync.interval_seconds", 30)
	viper.SetDefault("sync.request_timeout_seconds", 5)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("mqtt.enable", false)
	viper.SetDefault("mqtt.base_topic", "mcphub")
	viper.SetDefault("simulator.enable", false)
	viper.SetDefault("simulator.num_devices", 4)
	viper.SetDefault("simulator.base_port", simulator.DefaultBasePort)
	viper.SetDefault("simulator.update_interval_seconds", 5)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
