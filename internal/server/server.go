package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/energyhive2mqtt/internal/config"
	"github.com/berfenger/energyhive2mqtt/internal/core/port"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
)

type Server struct {
	port           uint
	httpLog        bool
	deviceMarker   string
	rootContext    *actor.RootContext
	masterActor    *actor.PID
	reader         port.EnergyReader
	metricsHandler http.Handler
	requestTimeout time.Duration
	logger         *zap.Logger
}

// NewServer builds the HTTP API. metricsHandler may be nil.
func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, reader port.EnergyReader,
	metricsHandler http.Handler, logger *zap.Logger) *http.Server {
	NewServer := newServer(cfg, rootContext, masterActor, reader, metricsHandler, logger)

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

func newServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, reader port.EnergyReader,
	metricsHandler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		port:           cfg.Port,
		httpLog:        cfg.HttpLog,
		deviceMarker:   cfg.Energyhive.DeviceTypeMarker,
		rootContext:    rootContext,
		masterActor:    masterActor,
		reader:         reader,
		metricsHandler: metricsHandler,
		requestTimeout: 5 * time.Second,
		logger:         logger.With(zap.String("component", "http")),
	}
}
