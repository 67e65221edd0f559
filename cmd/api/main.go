package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/elvia2mqtt/internal/adapter/actor"
	"github.com/berfenger/elvia2mqtt/internal/adapter/storage"
	"github.com/berfenger/elvia2mqtt/internal/config"
	"github.com/berfenger/elvia2mqtt/internal/core/actor"
	"github.com/berfenger/elvia2mqtt/internal/core/port"
	"github.com/berfenger/elvia2mqtt/internal/core/service"
	"github.com/berfenger/elvia2mqtt/internal/server"
	"github.com/berfenger/elvia2mqtt/internal/util/actorutil"
	"github.com/berfenger/elvia2mqtt/pkg/elvia"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
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

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	newClient := meterClientFactory(cfg)

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, mqttActorProvider(cfg, logger), integrationProvider(newClient, logger),
			storage.NewEntryFile(cfg.Entries.StorageFile), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid, service.NewConfigFlow(newClient, logger))
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => ELVIA_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("ELVIA_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("elvia")
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

	// check topics and bounds
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func meterClientFactory(cfg *config.Config) port.MeterClientFactory {
	opts := elvia.Options{
		Host:     cfg.Elvia.Host,
		BasePath: cfg.Elvia.BasePath,
		Scheme:   cfg.Elvia.Scheme,
		Timeout:  cfg.Elvia.Timeout(),
	}
	return func(token string) port.MeterClient {
		return elvia.NewClient(token, opts)
	}
}

func integrationProvider(newClient port.MeterClientFactory, logger *zap.Logger) actor.IntegrationProvider {
	return func(platform port.PlatformAdapter) port.Integration {
		return service.NewCoordinator(newClient, platform, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func() *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("port", 8080)
	viper.SetDefault("http_log", false)
	viper.SetDefault("mqtt.host", "")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.base_topic", "elvia")
	viper.SetDefault("mqtt.ha_discovery_enable", true)
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("elvia.host", elvia.DefaultHost)
	viper.SetDefault("elvia.base_path", elvia.DefaultBasePath)
	viper.SetDefault("elvia.scheme", elvia.DefaultScheme)
	viper.SetDefault("elvia.timeout_millis", 10000)
	viper.SetDefault("entries.storage_file", "elvia_entries.yaml")
	viper.SetDefault("entries.setup_timeout_millis", 30000)
	viper.SetDefault("entries.retry_initial_millis", 5000)
	viper.SetDefault("entries.retry_max_millis", 300000)
}

func safePrintConfig(cfg config.Config) {
	slog.Info("Using", "config", cfg.Redacted())
}
