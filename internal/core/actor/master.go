package actor

import (
	"fmt"
	"log"
	"sort"
	"time"

	adactor "github.com/berfenger/energyhive2mqtt/internal/adapter/actor"
	"github.com/berfenger/energyhive2mqtt/internal/config"
	"github.com/berfenger/energyhive2mqtt/internal/core/domain"
	"github.com/berfenger/energyhive2mqtt/internal/core/port"
	. "github.com/berfenger/energyhive2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	reader             port.EnergyReader
	store              port.StateStore
	mqttActor          *actor.PID
	meterActors        map[string]*actor.PID
	sinks              []port.SampleSink
	sinkActors         map[string]*actor.PID
	mqttActorProvider  MQTTActorProvider
	logger             *zap.Logger
}

type healthCheckResult struct {
	expected       map[string]bool
	healthy        map[string]bool
	checksReceived int
	respondTo      *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, reader port.EnergyReader, store port.StateStore,
	eventStream *eventstream.EventStream, mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	if eventStream == nil {
		eventStream = &eventstream.EventStream{}
	}
	act := &MasterOfPuppetsActor{
		config:            config,
		behavior:          actor.NewBehavior(),
		stash:             &Stash{},
		logger:            ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:       eventStream,
		reader:            reader,
		store:             store,
		meterActors:       map[string]*actor.PID{},
		sinkActors:        map[string]*actor.PID{},
		mqttActorProvider: mqttActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

// WithSinks registers the external sinks fed with every meter tick.
func (state *MasterOfPuppetsActor) WithSinks(sinks ...port.SampleSink) *MasterOfPuppetsActor {
	state.sinks = append(state.sinks, sinks...)
	return state
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// sinks subscribe before the first tick is applied
		for _, sink := range state.sinks {
			pid, err := state.startSinkActor(ctx, sink)
			if err != nil {
				panic(err)
			}
			state.sinkActors[adactor.SinkActorName(sink)] = pid
		}

		// start one poller per meter
		for _, meter := range state.config.Meters {
			pid, err := state.startMeterActor(ctx, meter)
			if err != nil {
				panic(err)
			}
			state.meterActors[meter.Id] = pid
		}

		// periodic availability checks
		if state.config.Availability.Cron != "" {
			if _, err := state.startAvailabilityActor(ctx); err != nil {
				panic(err)
			}
		}

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable {
			_, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		state.askHealth(ctx, domain.ACTOR_ID_MQTT, state.mqttActor)
		for id, pid := range state.meterActors {
			state.askHealth(ctx, MeterActorName(id), pid)
		}
		for name, pid := range state.sinkActors {
			state.askHealth(ctx, name, pid)
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.ListMetersRequest:
		ids := make([]string, 0, len(state.meterActors))
		for id := range state.meterActors {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		ForRequest(msg).Respond(ctx, domain.ListMetersResponse{MeterIds: ids})
	case domain.CheckAvailabilityRequest:
		state.logger.Debug("master@default CheckAvailabilityRequest")
		for _, pid := range state.meterActors {
			ctx.Send(pid, domain.CheckAvailabilityRequest{})
		}
		ForRequest(msg).Respond(ctx, domain.CheckAvailabilityResponse{Meters: len(state.meterActors)})
	case domain.MeterRequest:
		state.routeMeterRequest(ctx, msg)
	case adactor.ParsedCommand:
		// redirect parsedCommand to meter
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			cmd, err := ParsedMQTTCommandToCommand(*msg.Command)
			if err != nil {
				state.logger.Warn("master@default invalid command", zap.Error(err))
				return
			}
			if meterCmd, ok := cmd.(domain.MeterRequest); ok {
				pid, found := state.meterActors[meterCmd.TargetMeter()]
				if !found {
					state.logger.Warn("master@default command for unknown meter", zap.String("meter", meterCmd.TargetMeter()))
					return
				}
				ctx.Send(pid, meterCmd)
			}
		}
	case adactor.MQTTReady:
		// retained topics may be empty after a broker restart
		state.logger.Debug("master@default MQTT ready, republishing meter state")
		for _, pid := range state.meterActors {
			ctx.Send(pid, domain.RepublishStateRequest{})
		}
	case *actor.Terminated:
		state.logger.Warn("master@default child terminated", zap.String("who", msg.Who.Id))
	default:
		state.logger.Debug("master@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.SetReceiveTimeout(0)
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			state.currentHealthCheck.healthy[msg.Id] = true
		}
		if state.currentHealthCheck.allReceived() {
			ctx.SetReceiveTimeout(0)
			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) routeMeterRequest(ctx actor.Context, msg domain.MeterRequest) {
	pid, found := state.meterActors[msg.TargetMeter()]
	if !found {
		state.logger.Debug("master@default request for unknown meter", zap.String("meter", msg.TargetMeter()))
		if ctx.Sender() != nil {
			ctx.Respond(unknownMeterResponse(msg))
		}
		return
	}
	ctx.Forward(pid)
}

func (state *MasterOfPuppetsActor) askHealth(ctx actor.Context, id string, pid *actor.PID) {
	state.currentHealthCheck.expected[id] = true
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
		return domain.ActorHealthResponse{
			Id:      id,
			Healthy: false,
		}
	})
}

func (state *MasterOfPuppetsActor) startMeterActor(ctx actor.Context, meter config.MeterConfig) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for meter %s. reason: %v", meter.Id, reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(10, 10*time.Second, decider)

	meterCfg := MeterActorConfigFrom(&state.config, meter)
	meterProps := actor.PropsFromProducer(func() actor.Actor {
		return NewMeterActor(meterCfg, state.reader, state.store, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	pid, err := ctx.SpawnNamed(meterProps, MeterActorName(meter.Id))
	if err != nil {
		return nil, err
	}

	return pid, nil
}

func (state *MasterOfPuppetsActor) startSinkActor(ctx actor.Context, sink port.SampleSink) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	sinkProps := actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewSinkActor(sink, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(sinkProps, adactor.SinkActorName(sink))
}

func (state *MasterOfPuppetsActor) startAvailabilityActor(ctx actor.Context) (*actor.PID, error) {

	self := ctx.Self()
	// fail fast on a bad expression instead of inside the producer
	if _, err := NewAvailabilityActor(state.config.Availability.Cron, self, state.logger); err != nil {
		return nil, err
	}

	supervisor := actor.NewOneForOneStrategy(10, 10*time.Second, actor.DefaultDecider)
	props := actor.PropsFromProducer(func() actor.Actor {
		act, _ := NewAvailabilityActor(state.config.Availability.Cron, self, state.logger)
		return act
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, ACTOR_ID_AVAILABILITY)
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.mqttActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	haDiscPID, err := ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
	if err != nil {
		return nil, err
	}

	return haDiscPID, nil
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func unknownMeterResponse(msg domain.MeterRequest) domain.ActorResponse {
	err := domain.ActorResponseMixIn{ResponseError: &domain.UnknownMeterError{MeterId: msg.TargetMeter()}}
	switch msg.(type) {
	case domain.MeterStartRequest:
		return domain.MeterStartResponse{ActorResponseMixIn: err}
	case domain.MeterStopRequest:
		return domain.MeterStopResponse{ActorResponseMixIn: err}
	case domain.GetMeterStateRequest:
		return domain.GetMeterStateResponse{ActorResponseMixIn: err, MeterId: msg.TargetMeter()}
	case domain.SetCredentialRequest:
		return domain.SetCredentialResponse{ActorResponseMixIn: err}
	}
	return err
}

func (state *healthCheckResult) reset() {
	state.expected = map[string]bool{}
	state.healthy = map[string]bool{}
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived >= len(state.expected)
}

func (state *healthCheckResult) allHealthy() bool {
	for id := range state.expected {
		if !state.healthy[id] {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
