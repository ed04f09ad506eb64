package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/dynaflow/dynaflow/internal/api"
	"github.com/dynaflow/dynaflow/internal/config"
	"github.com/dynaflow/dynaflow/internal/hal"
	"github.com/dynaflow/dynaflow/internal/logger"
	"github.com/dynaflow/dynaflow/internal/metrics"
	"github.com/dynaflow/dynaflow/internal/monitor"
	"github.com/dynaflow/dynaflow/internal/storage"
	"github.com/dynaflow/dynaflow/internal/telemetry"
	"github.com/dynaflow/dynaflow/internal/websocket"
	"github.com/dynaflow/dynaflow/pkg/bus"
	"github.com/dynaflow/dynaflow/pkg/motors"
)

var Version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	fmt.Printf("DynaFlow v%s - Dynamixel servo bus gateway\n", Version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		LogDir:     cfg.Logger.Dir,
		MaxSizeMB:  20,
		MaxBackups: 3,
		MaxAgeDays: 7,
		Compress:   true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Serial line and protocol engine.
	port, err := bus.OpenSerial(cfg.Serial.Device, cfg.Serial.BaudRate)
	if err != nil {
		logger.Fatal("failed to open serial port",
			zap.String("device", cfg.Serial.Device), zap.Error(err))
	}
	defer port.Close()

	ctrl := bus.New(port, port, bus.SystemClock{})
	ctrl.SetTimeout(time.Duration(cfg.Bus.TimeoutMS) * time.Millisecond)

	catalog, err := loadCatalog(cfg.Bus)
	if err != nil {
		logger.Fatal("failed to load motor catalog", zap.Error(err))
	}

	servoBus := hal.NewBus(ctrl, port, catalog)
	stats := metrics.NewMetrics()
	servoBus.SetMetrics(stats)
	logger.Info("serial bus ready",
		zap.String("device", cfg.Serial.Device),
		zap.Int("baud", cfg.Serial.BaudRate),
		zap.Int("registers", len(catalog)))

	// Telemetry sinks.
	var store storage.Storage
	if cfg.Storage.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0755); err != nil {
			logger.Warn("failed to create data directory", zap.Error(err))
		} else if sqlite, err := storage.NewSQLiteStorage(cfg.Storage.Path); err != nil {
			logger.Warn("telemetry persistence disabled", zap.Error(err))
		} else {
			store = sqlite
			defer sqlite.Close()
		}
	}

	hub := websocket.NewHub()
	go hub.Run()
	logger.SetBroadcaster(func(level, message string, fields map[string]interface{}) {
		hub.Broadcast(websocket.MessageTypeLog, map[string]interface{}{
			"level":   level,
			"message": message,
			"fields":  fields,
		})
	})

	publisher, err := telemetry.NewPublisher(cfg.MQTT)
	if err != nil {
		logger.Warn("mqtt bridge disabled", zap.Error(err))
	}
	defer publisher.Close()

	// Bus monitor.
	var mon *monitor.Monitor
	if cfg.Monitor.Enabled {
		mon = monitor.New(servoBus, store, hub, publisher, cfg.Bus, cfg.Monitor, cfg.Storage)
		if err := mon.Start(cfg.Monitor.ScanCron); err != nil {
			logger.Fatal("failed to start bus monitor", zap.Error(err))
		}
		defer mon.Stop()
	}

	// Config hot reload: tunables only.
	if *configPath != "" {
		err := config.Watch(*configPath, func(fresh *config.Config) {
			servoBus.SetTimeout(time.Duration(fresh.Bus.TimeoutMS) * time.Millisecond)
			if catalog, err := loadCatalog(fresh.Bus); err != nil {
				logger.Warn("config reload kept previous catalog", zap.Error(err))
			} else {
				servoBus.SetCatalog(catalog)
			}
			logger.Info("configuration reloaded")
		})
		if err != nil {
			logger.Warn("config hot reload disabled", zap.Error(err))
		}
	}

	// HTTP API.
	app := fiber.New(fiber.Config{
		AppName: "DynaFlow v" + Version,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	handler := api.NewHandler(servoBus, store, mon, hub, stats, cfg.Auth)
	handler.SetupRoutes(app)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			logger.Fatal("server exited", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	if err := app.Shutdown(); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}

func loadCatalog(cfg config.BusConfig) (motors.Catalog, error) {
	if cfg.CatalogFile != "" {
		return motors.LoadCatalog(cfg.CatalogFile)
	}
	catalog, ok := motors.Builtin(cfg.Model)
	if !ok {
		return nil, fmt.Errorf("unknown motor model %q", cfg.Model)
	}
	return catalog, nil
}
