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
	"strings"
	"syscall"
	"time"

	adactor "github.com/berfenger/energyhive2mqtt/internal/adapter/actor"
	"github.com/berfenger/energyhive2mqtt/internal/adapter/sink"
	"github.com/berfenger/energyhive2mqtt/internal/config"
	"github.com/berfenger/energyhive2mqtt/internal/core/actor"
	"github.com/berfenger/energyhive2mqtt/internal/core/port"
	"github.com/berfenger/energyhive2mqtt/internal/metrics"
	"github.com/berfenger/energyhive2mqtt/internal/server"
	"github.com/berfenger/energyhive2mqtt/internal/store"
	"github.com/berfenger/energyhive2mqtt/internal/util/actorutil"
	"github.com/berfenger/energyhive2mqtt/pkg/energyhive"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
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
		os.Exit(1)
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	eventStream := &eventstream.EventStream{}

	// metrics
	m := metrics.NewMetrics()
	m.Subscribe(eventStream)
	defer m.Unsubscribe()

	// Energyhive client
	client := energyhive.NewClient(cfg.Energyhive.BaseURL,
		time.Duration(cfg.Energyhive.RequestTimeoutMillis)*time.Millisecond, logger, m.Instrument())

	// persisted meter state
	meterStore, err := stateStore(cfg, logger)
	if err != nil {
		logger.Fatal("could not open state store", zap.Error(err))
	}
	missing, err := store.MissingCredentials(cfg, meterStore)
	if err != nil {
		logger.Fatal("could not read stored credentials", zap.Error(err))
	}
	if len(missing) > 0 {
		logger.Fatal("meters without api key, set energyhive.apikey or meters[].apikey", zap.Strings("meters", missing))
	}

	// external sinks
	sinks, err := sink.SinksFromConfig(cfg, logger)
	if err != nil {
		logger.Fatal("invalid sink config", zap.Error(err))
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, client, meterStore, eventStream, mqttActorProvider(cfg, logger), logger).
			WithSinks(sinks...)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		logger.Fatal("could not spawn master", zap.Error(err))
	}

	server := server.NewServer(*cfg, ctx, pid, client, m.Handler(), logger)
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

	if err := ctx.StopFuture(pid).Wait(); err != nil {
		logger.Warn("master did not stop cleanly", zap.Error(err))
	}
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => ENERGYHIVE_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("ENERGYHIVE_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("energyhive")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
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

	// single meter shortcut for env only setups
	if len(cfg.Meters) == 0 && viper.GetString("device_id") != "" {
		cfg.Meters = []config.MeterConfig{{
			Id:       viper.GetString("meter_id"),
			Name:     viper.GetString("meter_name"),
			DeviceId: viper.GetString("device_id"),
		}}
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
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check meters and bounds
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func stateStore(cfg *config.Config, logger *zap.Logger) (port.StateStore, error) {
	if cfg.State.File == "" {
		logger.Warn("no state.file configured, accumulated energy is lost on restart")
		return store.NewMemoryStore(), nil
	}
	return store.NewFileStore(cfg.State.File, logger)
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	// keys without a default are not visible to Unmarshal through env vars
	viper.SetDefault("energyhive.apikey", "")
	viper.SetDefault("energyhive.base_url", energyhive.DEFAULT_BASE_URL)
	viper.SetDefault("energyhive.request_timeout_millis", 20000)
	viper.SetDefault("energyhive.device_type_marker", energyhive.DEVICE_TYPE_POWER)
	viper.SetDefault("meter_id", "main")
	viper.SetDefault("poller.interval_millis", 60000)
	viper.SetDefault("poller.grace_period_millis", 5000)
	viper.SetDefault("poller.resync_threshold_seconds", 5)
	viper.SetDefault("poller.autostart", true)
	viper.SetDefault("state.file", "./energyhive_state.json")
	viper.SetDefault("availability.cron", "0 0 * * * *")
	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "energyhive")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("influxdb.url", "")
	viper.SetDefault("influxdb.token", "")
	viper.SetDefault("influxdb.org", "")
	viper.SetDefault("influxdb.bucket", "")
	viper.SetDefault("kafka.brokers", []string{})
	viper.SetDefault("kafka.topic", "energyhive.samples")
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Energyhive.ApiKey = "*redacted*"
	cfg.InfluxDB.Token = "*redacted*"
	meters := make([]config.MeterConfig, len(cfg.Meters))
	for i := range cfg.Meters {
		meters[i] = cfg.Meters[i]
		if meters[i].ApiKey != "" {
			meters[i].ApiKey = "*redacted*"
		}
	}
	cfg.Meters = meters
	slog.Info("Using", "config", cfg)
}
