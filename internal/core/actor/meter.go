package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/energyhive2mqtt/internal/config"
	"github.com/berfenger/energyhive2mqtt/internal/core/domain"
	"github.com/berfenger/energyhive2mqtt/internal/core/events"
	"github.com/berfenger/energyhive2mqtt/internal/core/port"
	"github.com/berfenger/energyhive2mqtt/internal/core/service"
	. "github.com/berfenger/energyhive2mqtt/internal/util/actorutil"
	"github.com/berfenger/energyhive2mqtt/pkg/energyhive"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type MeterActorConfig struct {
	Id                     string
	Name                   string
	Credential             domain.DeviceCredential
	Interval               time.Duration
	GracePeriod            time.Duration
	ResyncThresholdSeconds uint32
	RequestTimeout         time.Duration
	Autostart              bool
}

func MeterActorConfigFrom(cfg *config.Config, meter config.MeterConfig) MeterActorConfig {
	return MeterActorConfig{
		Id:   meter.Id,
		Name: meter.Name,
		Credential: domain.DeviceCredential{
			ApiKey:   meter.EffectiveApiKey(cfg.Energyhive.ApiKey),
			DeviceId: meter.DeviceId,
		},
		Interval:               time.Duration(cfg.Poller.IntervalMillis) * time.Millisecond,
		GracePeriod:            time.Duration(cfg.Poller.GracePeriodMillis) * time.Millisecond,
		ResyncThresholdSeconds: cfg.Poller.ResyncThresholdSeconds,
		RequestTimeout:         time.Duration(cfg.Energyhive.RequestTimeoutMillis) * time.Millisecond,
		Autostart:              cfg.Poller.Autostart,
	}
}

func MeterActorName(meterId string) string {
	return fmt.Sprintf("%s_%s", domain.ACTOR_ID_METER, meterId)
}

// MeterActor polls one Energyhive device once per interval and keeps its
// cumulative energy reading.
type MeterActor struct {
	ActorWithStates
	scheduler   *scheduler.TimerScheduler
	stash       *Stash
	cfg         MeterActorConfig
	reader      port.EnergyReader
	store       port.StateStore
	eventStream *eventstream.EventStream

	credential domain.DeviceCredential
	meterState domain.MeterState
	available  bool
	// epoch is bumped on stop so late fetch results are dropped
	epoch       uint64
	inFlight    bool
	cancelGrace scheduler.CancelFunc
	now         func() time.Time

	logger *zap.Logger
}

type meterTick struct {
}

type meterFetch struct {
	epoch  uint64
	tickId string
	tickAt time.Time
	window domain.PollWindow
}

type meterFetchResult struct {
	meterFetch
	sample energyhive.EnergySample
	err    error
}

type meterAvailabilityResult struct {
	deviceId  string
	available bool
	err       error
}

func NewMeterActor(cfg MeterActorConfig, reader port.EnergyReader, store port.StateStore, eventStream *eventstream.EventStream, logger *zap.Logger) *MeterActor {
	act := &MeterActor{
		cfg:         cfg,
		reader:      reader,
		store:       store,
		eventStream: eventStream,
		credential:  cfg.Credential,
		stash:       &Stash{},
		now:         time.Now,
		logger:      ActorLogger(MeterActorName(cfg.Id), logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(MeterStartingState{
		actor: act,
	})
	return act
}

func (state *MeterActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type MeterStartingState struct {
	ActorState
	actor *MeterActor
}

func (state MeterStartingState) Name() string {
	return "starting"
}

func (state MeterStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("meter@starting started")
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
		state.actor.setAvailability(false)
		state.actor.restore()

		if state.actor.cfg.Autostart && state.actor.cfg.Interval > 0 {
			state.actor.Become(NewMeterRunningState(state.actor, state.actor.cfg.Interval).OnEnter(ctx))
		} else {
			state.actor.Become(MeterStoppedState{
				actor: state.actor,
			}.OnEnter(ctx))
		}
		state.actor.setAvailability(state.actor.credential.Valid())
		state.actor.publishState()
		state.actor.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.actor.logger.Debug("meter@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Stopped state

type MeterStoppedState struct {
	ActorState
	actor *MeterActor
}

func (state MeterStoppedState) Name() string {
	return "stopped"
}

func (state MeterStoppedState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.MeterStartRequest:
		interval := state.actor.cfg.Interval
		if msg.IntervalMillis > 0 {
			interval = time.Duration(msg.IntervalMillis) * time.Millisecond
		}
		if interval <= 0 {
			ForRequest(msg).Respond(ctx, domain.MeterStartResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: &energyhive.ConfigurationError{Field: "interval_millis", Message: "interval must be greater than zero"},
				},
			})
			return
		}
		state.actor.logger.Info("meter@stopped: start", zap.Duration("interval", interval))
		state.actor.Become(NewMeterRunningState(state.actor, interval).OnEnter(ctx))
		ForRequest(msg).Respond(ctx, domain.MeterStartResponse{Changed: true})
	case domain.MeterStopRequest:
		state.actor.logger.Debug("meter@stopped: stop ignored")
		ForRequest(msg).Respond(ctx, domain.MeterStopResponse{Changed: false})
	case meterTick, meterFetch, meterFetchResult:
		state.actor.logger.Debug("meter@stopped: discard", zap.String("type", fmt.Sprintf("%T", msg)))
	default:
		state.actor.commonReceive(ctx, state)
	}
}

func (state MeterStoppedState) OnEnter(ctx actor.Context) MeterStoppedState {
	state.actor.eventStream.Publish(events.MeterPollingSwitchUpdateEvent(state.actor.cfg.Id, false))
	return state
}

// Running state

func NewMeterRunningState(fromActor *MeterActor, interval time.Duration) MeterRunningState {
	return MeterRunningState{
		actor:    fromActor,
		interval: interval,
	}
}

type MeterRunningState struct {
	ActorState
	actor      *MeterActor
	interval   time.Duration
	cancelTick scheduler.CancelFunc
}

func (state MeterRunningState) Name() string {
	return "running"
}

func (state MeterRunningState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.MeterStartRequest:
		state.actor.logger.Debug("meter@running: already running")
		ForRequest(msg).Respond(ctx, domain.MeterStartResponse{Changed: false})
	case domain.MeterStopRequest:
		state.actor.logger.Info("meter@running: stop")
		state.Exit(ctx)
		ForRequest(msg).Respond(ctx, domain.MeterStopResponse{Changed: true})
	case meterTick:
		state.onTick(ctx)
	case meterFetch:
		if msg.epoch != state.actor.epoch {
			return
		}
		state.actor.cancelGrace = nil
		state.fetch(ctx, msg)
	case meterFetchResult:
		if msg.epoch != state.actor.epoch {
			state.actor.logger.Debug("meter@running: discard stale result", zap.String("tick", msg.tickId))
			return
		}
		state.actor.inFlight = false
		state.actor.apply(msg)
		state.resyncIfDrifted(ctx, msg.tickAt)
	default:
		state.actor.commonReceive(ctx, state)
	}
}

func (state MeterRunningState) OnEnter(ctx actor.Context) MeterRunningState {
	delay := service.NextAlignedDelay(state.actor.now(), state.interval)
	state.cancelTick = state.actor.scheduler.SendRepeatedly(delay, state.interval, ctx.Self(), meterTick{})
	state.actor.eventStream.Publish(events.MeterPollingSwitchUpdateEvent(state.actor.cfg.Id, true))
	return state
}

func (state MeterRunningState) Exit(ctx actor.Context) {
	if state.cancelTick != nil {
		state.cancelTick()
	}
	if state.actor.cancelGrace != nil {
		state.actor.cancelGrace()
		state.actor.cancelGrace = nil
	}
	state.actor.epoch++
	state.actor.inFlight = false
	state.actor.Become(MeterStoppedState{
		actor: state.actor,
	}.OnEnter(ctx))
}

func (state MeterRunningState) onTick(ctx actor.Context) {
	if state.actor.inFlight {
		state.actor.logger.Warn("meter@running: previous tick still in flight, skipping")
		return
	}
	tickAt := state.actor.now()
	fetch := meterFetch{
		epoch:  state.actor.epoch,
		tickId: uuid.NewString(),
		tickAt: tickAt,
		window: service.ComputePollWindow(tickAt),
	}
	state.actor.inFlight = true
	state.actor.logger.Debug("meter@running: tick", zap.String("tick", fetch.tickId),
		zap.Int64("start", fetch.window.Start), zap.Int64("end", fetch.window.End))
	// give the provider time to aggregate the minute
	state.actor.cancelGrace = state.actor.scheduler.SendOnce(state.actor.cfg.GracePeriod, ctx.Self(), fetch)
}

func (state MeterRunningState) fetch(ctx actor.Context, fetch meterFetch) {
	reader := state.actor.reader
	credential := state.actor.credential
	timeout := state.actor.requestTimeout()

	NewBackgroundTask(ctx, func() (*meterFetchResult, error) {
		reqCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		sample, err := reader.FetchWindowEnergy(reqCtx, credential.ApiKey, credential.DeviceId, fetch.window.Start, fetch.window.End)
		return &meterFetchResult{
			meterFetch: fetch,
			sample:     sample,
			err:        err,
		}, nil
	}).WithTimeout(timeout + time.Second).Recover(func(err error) meterFetchResult {
		return meterFetchResult{
			meterFetch: fetch,
			sample:     energyhive.Unknown(),
			err:        err,
		}
	}).PipeToAsync(ctx.Self())
}

func (state MeterRunningState) resyncIfDrifted(ctx actor.Context, tickAt time.Time) {
	if !service.ShouldResync(tickAt.Unix(), state.actor.cfg.ResyncThresholdSeconds) {
		return
	}
	second := tickAt.Unix() % 60
	state.actor.logger.Info("meter@running: tick drifted, restarting timer", zap.Int64("second", second))
	if state.cancelTick != nil {
		state.cancelTick()
	}
	delay := service.NextAlignedDelay(state.actor.now(), state.interval)
	state.cancelTick = state.actor.scheduler.SendRepeatedly(delay, state.interval, ctx.Self(), meterTick{})
	state.actor.Become(state)
	state.actor.eventStream.Publish(domain.MeterResyncEvent{
		MeterId:      state.actor.cfg.Id,
		SecondOfTick: second,
	})
}

// Messages served in every state but starting

func (state *MeterActor) commonReceive(ctx actor.Context, current ActorState) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug(fmt.Sprintf("meter@%s: ActorHealthRequest", current.Name()))
		ctx.Respond(domain.ActorHealthResponse{
			Id:      MeterActorName(state.cfg.Id),
			Healthy: true,
			State:   current.Name(),
		})
	case domain.GetMeterStateRequest:
		_, running := current.(MeterRunningState)
		ForRequest(msg).Respond(ctx, domain.GetMeterStateResponse{
			MeterId:   state.cfg.Id,
			Name:      state.cfg.Name,
			DeviceId:  state.credential.DeviceId,
			Running:   running,
			Available: state.available,
			State:     state.meterState,
		})
	case domain.SetCredentialRequest:
		err := state.setCredential(msg.Credential)
		ForRequest(msg).Respond(ctx, domain.SetCredentialResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		})
	case domain.SetAvailabilityRequest:
		if msg.Available != state.available {
			state.logger.Info(fmt.Sprintf("meter@%s: availability changed", current.Name()),
				zap.Bool("available", msg.Available), zap.String("reason", msg.Reason))
		}
		state.setAvailability(msg.Available)
	case domain.CheckAvailabilityRequest:
		state.checkAvailability(ctx)
	case domain.RepublishStateRequest:
		_, running := current.(MeterRunningState)
		state.eventStream.Publish(events.MeterPollingSwitchUpdateEvent(state.cfg.Id, running))
		state.eventStream.Publish(events.MeterAvailabilityUpdateEvent(state.cfg.Id, state.available))
		state.publishState()
	case meterAvailabilityResult:
		if msg.deviceId != state.credential.DeviceId {
			// credential was replaced while checking
			return
		}
		if msg.err != nil && !energyhive.IsConfigurationError(msg.err) && !energyhive.IsEmptyResultError(msg.err) {
			state.logger.Warn(fmt.Sprintf("meter@%s: availability check failed", current.Name()), zap.Error(msg.err))
			return
		}
		if msg.available != state.available {
			state.logger.Info(fmt.Sprintf("meter@%s: availability changed", current.Name()), zap.Bool("available", msg.available))
		}
		state.setAvailability(msg.available)
	default:
		state.logger.Debug(fmt.Sprintf("meter@%s: recv", current.Name()), zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Other actor function helpers

func (state *MeterActor) restore() {
	if state.store == nil {
		return
	}
	meterState, found, err := state.store.LoadMeterState(state.cfg.Id)
	if err != nil {
		state.logger.Error("meter@starting: could not load state", zap.Error(err))
	} else if found {
		state.meterState = meterState
		state.logger.Info("meter@starting: state restored", zap.Float64("kwh", meterState.AccumulatedEnergy))
	}
	credential, found, err := state.store.LoadCredential(state.cfg.Id)
	if err != nil {
		state.logger.Error("meter@starting: could not load credential", zap.Error(err))
	} else if found && credential.Valid() {
		state.credential = credential
	}
}

func (state *MeterActor) apply(result meterFetchResult) {
	if result.err != nil {
		state.logger.Warn("meter@running: fetch failed, adding zero", zap.String("tick", result.tickId),
			zap.String("device", state.credential.DeviceId), zap.Int64("start", result.window.Start),
			zap.Int64("end", result.window.End), zap.Error(result.err))
	} else if !result.sample.Known {
		state.logger.Info("meter@running: no reading for window, adding zero", zap.String("tick", result.tickId),
			zap.Int64("start", result.window.Start), zap.Int64("end", result.window.End))
	}

	var contribution float64
	state.meterState, contribution = service.Accumulate(state.meterState, result.window, result.sample, state.now())
	state.logger.Debug("meter@running: accumulated", zap.String("tick", result.tickId),
		zap.Float64("added_kwh", contribution), zap.Float64("total_kwh", state.meterState.AccumulatedEnergy))

	if state.store != nil {
		if err := state.store.SaveMeterState(state.cfg.Id, state.meterState); err != nil {
			state.logger.Error("meter@running: could not persist state", zap.Error(err))
		}
	}
	state.publishState()
	state.eventStream.Publish(domain.MeterSampleEvent{
		TickId:       result.tickId,
		MeterId:      state.cfg.Id,
		DeviceId:     state.credential.DeviceId,
		Window:       result.window,
		Sample:       result.sample,
		Contribution: contribution,
		State:        state.meterState,
		Err:          result.err,
	})
}

func (state *MeterActor) setCredential(credential domain.DeviceCredential) error {
	if credential.ApiKey == "" {
		return &energyhive.ConfigurationError{Field: "apikey", Message: "api key is required"}
	}
	if credential.DeviceId == "" {
		return &energyhive.ConfigurationError{Field: "device_id", Message: "device id is required"}
	}
	if state.store != nil {
		if err := state.store.SaveCredential(state.cfg.Id, credential); err != nil {
			return fmt.Errorf("persist credential: %w", err)
		}
	}
	state.credential = credential
	state.logger.Info("meter: credential replaced", zap.String("device", credential.DeviceId))
	state.setAvailability(true)
	return nil
}

// checkAvailability looks the device up in the provider device list. Only a
// definite answer changes availability, outages keep the current value.
func (state *MeterActor) checkAvailability(ctx actor.Context) {
	reader := state.reader
	credential := state.credential
	timeout := state.requestTimeout()

	NewBackgroundTask(ctx, func() (*meterAvailabilityResult, error) {
		reqCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		result := &meterAvailabilityResult{deviceId: credential.DeviceId}
		devices, err := reader.FetchDeviceList(reqCtx, credential.ApiKey)
		if err != nil {
			result.err = err
			return result, nil
		}
		for i := range devices {
			if string(devices[i].SID) == credential.DeviceId {
				result.available = true
				break
			}
		}
		return result, nil
	}).WithTimeout(timeout + time.Second).Recover(func(err error) meterAvailabilityResult {
		return meterAvailabilityResult{deviceId: credential.DeviceId, err: err}
	}).PipeToAsync(ctx.Self())
}

func (state *MeterActor) setAvailability(available bool) {
	state.available = available
	state.eventStream.Publish(events.MeterAvailabilityUpdateEvent(state.cfg.Id, available))
}

func (state *MeterActor) publishState() {
	for _, ev := range events.MeterStateToUpdateEvents(state.cfg.Id, state.meterState) {
		state.eventStream.Publish(ev)
	}
}

func (state *MeterActor) requestTimeout() time.Duration {
	if state.cfg.RequestTimeout > 0 {
		return state.cfg.RequestTimeout
	}
	return 20 * time.Second
}
