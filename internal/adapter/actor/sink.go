package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/energyhive2mqtt/internal/core/domain"
	"github.com/berfenger/energyhive2mqtt/internal/core/port"
	"github.com/berfenger/energyhive2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// SinkActor forwards every MeterSampleEvent to one external sink. Writes
// happen one at a time so a meter's ticks arrive in order.
type SinkActor struct {
	sink           port.SampleSink
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	writeTimeout   time.Duration
	logger         *zap.Logger
}

func SinkActorName(sink port.SampleSink) string {
	return fmt.Sprintf("%s_%s", domain.ACTOR_ID_SINK, sink.Name())
}

func NewSinkActor(sink port.SampleSink, eventStream *eventstream.EventStream, logger *zap.Logger) *SinkActor {
	return &SinkActor{
		sink:         sink,
		eventStream:  eventStream,
		writeTimeout: 10 * time.Second,
		logger:       actorutil.ActorLogger(SinkActorName(sink), logger),
	}
}

func (state *SinkActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("sink@default started")
		self := ctx.Self()
		root := ctx.ActorSystem().Root
		state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
			if ev, ok := value.(domain.MeterSampleEvent); ok {
				root.Send(self, ev)
			}
		})
	case *actor.Stopping:
		state.unsubscribe()
		if err := state.sink.Close(); err != nil {
			state.logger.Warn("sink@default close failed", zap.Error(err))
		}
	case *actor.Restarting:
		state.unsubscribe()
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      SinkActorName(state.sink),
			Healthy: true,
			State:   "default",
		})
	case domain.MeterSampleEvent:
		state.write(msg)
	default:
		state.logger.Debug("sink@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *SinkActor) write(event domain.MeterSampleEvent) {
	reqCtx, cancel := context.WithTimeout(context.Background(), state.writeTimeout)
	defer cancel()

	start := time.Now()
	err := state.sink.WriteSample(reqCtx, event)
	if err != nil {
		state.logger.Warn("sink@default write failed", zap.String("meter", event.MeterId),
			zap.String("tick", event.TickId), zap.Error(err))
	}
	state.eventStream.Publish(domain.SinkWriteEvent{
		Sink:     state.sink.Name(),
		MeterId:  event.MeterId,
		Duration: time.Since(start),
		Err:      err,
	})
}

func (state *SinkActor) unsubscribe() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
}
