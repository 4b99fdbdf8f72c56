package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/energyhive2mqtt/internal/core/domain"
	"github.com/berfenger/energyhive2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const ACTOR_ID_AVAILABILITY = "availability"

type availabilityFire struct {
	at time.Time
}

// AvailabilityActor asks its parent to validate every meter against the
// provider device list on a cron schedule.
type AvailabilityActor struct {
	trigger   *quartz.CronTrigger
	expr      string
	target    *actor.PID
	scheduler *scheduler.TimerScheduler
	cancel    scheduler.CancelFunc
	now       func() time.Time
	logger    *zap.Logger
}

func NewAvailabilityActor(cronExpr string, target *actor.PID, logger *zap.Logger) (*AvailabilityActor, error) {
	trigger, err := quartz.NewCronTrigger(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid availability cron %q: %w", cronExpr, err)
	}
	return &AvailabilityActor{
		trigger: trigger,
		expr:    cronExpr,
		target:  target,
		now:     time.Now,
		logger:  actorutil.ActorLogger(ACTOR_ID_AVAILABILITY, logger),
	}, nil
}

func (state *AvailabilityActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("availability@default started", zap.String("cron", state.expr))
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		// validate once right away, then follow the schedule
		state.fire(ctx)
		state.scheduleNext(ctx)
	case *actor.Stopping, *actor.Restarting:
		if state.cancel != nil {
			state.cancel()
			state.cancel = nil
		}
	case availabilityFire:
		state.logger.Debug("availability@default fire", zap.Time("at", msg.at))
		state.fire(ctx)
		state.scheduleNext(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      ACTOR_ID_AVAILABILITY,
			Healthy: true,
			State:   "default",
		})
	default:
		state.logger.Debug("availability@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *AvailabilityActor) fire(ctx actor.Context) {
	ctx.Send(state.target, domain.CheckAvailabilityRequest{})
}

func (state *AvailabilityActor) scheduleNext(ctx actor.Context) {
	next, err := NextFireDelay(state.trigger, state.now())
	if err != nil {
		state.logger.Error("availability@default no next fire time", zap.Error(err))
		return
	}
	state.cancel = state.scheduler.SendOnce(next, ctx.Self(), availabilityFire{at: state.now().Add(next)})
}

// NextFireDelay returns how long to wait from now until the next cron fire.
func NextFireDelay(trigger quartz.Trigger, now time.Time) (time.Duration, error) {
	next, err := trigger.NextFireTime(now.UnixNano())
	if err != nil {
		return 0, err
	}
	delay := time.Duration(next - now.UnixNano())
	if delay < 0 {
		delay = 0
	}
	return delay, nil
}
