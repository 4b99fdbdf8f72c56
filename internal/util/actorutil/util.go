package actorutil

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/berfenger/energyhive2mqtt/internal/core/domain"
	"github.com/berfenger/energyhive2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel:
		slogLevel = slog.LevelError
	case zap.PanicLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {

		// create a new logger
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedMQTTCommandToCommand maps a polling switch command to the matching
// meter request. Unknown switches yield a nil request.
func ParsedMQTTCommandToCommand(cmd mqtt.ParsedMQTTCommand) (domain.ActorRequest, error) {
	suffix := "_" + domain.SWITCH_SUFFIX_POLLING
	if cmd.Command != "switch" || !strings.HasSuffix(cmd.DeviceId, suffix) {
		return nil, nil
	}
	meterId := strings.TrimSuffix(cmd.DeviceId, suffix)
	if meterId == "" {
		return nil, errors.New("empty meter id")
	}
	target := domain.MeterRequestMixIn{MeterId: meterId}
	switch cmd.Payload {
	case mqtt.MQTT_PAYLOAD_ON:
		return domain.MeterStartRequest{MeterRequestMixIn: target}, nil
	case mqtt.MQTT_PAYLOAD_OFF:
		return domain.MeterStopRequest{MeterRequestMixIn: target}, nil
	}
	return nil, fmt.Errorf("invalid polling payload %q", cmd.Payload)
}
