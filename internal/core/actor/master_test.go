package actor

import (
	"testing"
	"time"

	adactor "github.com/berfenger/energyhive2mqtt/internal/adapter/actor"
	"github.com/berfenger/energyhive2mqtt/internal/config"
	"github.com/berfenger/energyhive2mqtt/internal/core/domain"
	"github.com/berfenger/energyhive2mqtt/internal/mqtt"
	"github.com/berfenger/energyhive2mqtt/internal/store"
	"github.com/berfenger/energyhive2mqtt/internal/util"
	"github.com/berfenger/energyhive2mqtt/pkg/energyhive"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func spawnMaster(t *testing.T, cfg config.Config, reader *energyhive.TestEnergyReader) (*actor.ActorSystem, *actor.PID, *actor.PID) {
	as := actor.NewActorSystem()
	context := as.Root

	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, reader, store.NewMemoryStore(), &eventstream.EventStream{},
			func(es *eventstream.EventStream) *adactor.MQTTActor {
				return adactor.NewTestMQTTActor(&cfg, es, logger)
			}, logger)
	})
	pid, err := context.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)
	t.Cleanup(func() {
		context.Stop(pid)
		as.Shutdown()
	})

	return as, pid, actor.NewPID(as.Address(), domain.ACTOR_ID_MASTER+"/"+domain.ACTOR_ID_MQTT)
}

func TestMasterActor(t *testing.T) {

	cfg := util.LoadTestConfig()
	as, pid, _ := spawnMaster(t, cfg, energyhive.NewTestEnergyReader())
	context := as.Root

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, healthResp.Healthy, "healthy is true")

	res, err = context.RequestFuture(pid, domain.ListMetersRequest{}, time.Second).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"kitchen"}, res.(domain.ListMetersResponse).MeterIds)

	res, err = context.RequestFuture(pid, domain.CheckAvailabilityRequest{}, time.Second).Result()
	require.NoError(t, err)
	assert.Equal(t, 1, res.(domain.CheckAvailabilityResponse).Meters)
}

func TestMasterActorRoutesMeterRequests(t *testing.T) {

	require := require.New(t)

	cfg := util.LoadTestConfig()
	cfg.Meters = append(cfg.Meters, config.MeterConfig{Id: "garage", DeviceId: "4712"})
	reader := energyhive.NewTestEnergyReader()
	as, pid, _ := spawnMaster(t, cfg, reader)
	context := as.Root

	res, err := context.RequestFuture(pid, domain.MeterStartRequest{
		MeterRequestMixIn: domain.MeterRequestMixIn{MeterId: "garage"},
	}, time.Second).Result()
	require.NoError(err)
	require.True(res.(domain.MeterStartResponse).Changed)

	res, err = context.RequestFuture(pid, domain.GetMeterStateRequest{
		MeterRequestMixIn: domain.MeterRequestMixIn{MeterId: "garage"},
	}, time.Second).Result()
	require.NoError(err)
	garage := res.(domain.GetMeterStateResponse)
	require.Equal("garage", garage.MeterId)
	require.Equal("4712", garage.DeviceId)
	require.True(garage.Running)

	res, err = context.RequestFuture(pid, domain.GetMeterStateRequest{
		MeterRequestMixIn: domain.MeterRequestMixIn{MeterId: "kitchen"},
	}, time.Second).Result()
	require.NoError(err)
	require.False(res.(domain.GetMeterStateResponse).Running)

	res, err = context.RequestFuture(pid, domain.MeterStopRequest{
		MeterRequestMixIn: domain.MeterRequestMixIn{MeterId: "cellar"},
	}, time.Second).Result()
	require.NoError(err)
	stop := res.(domain.MeterStopResponse)
	require.True(domain.IsUnknownMeterError(stop.GetResponseError()))
}

func TestMasterActorSwitchCommand(t *testing.T) {

	cfg := util.LoadTestConfig()
	as, pid, mqttPID := spawnMaster(t, cfg, energyhive.NewTestEnergyReader())
	context := as.Root

	// the polling switch is the only MQTT command
	context.Send(pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		DeviceId: "kitchen_polling",
		Command:  "switch",
		Payload:  mqtt.MQTT_PAYLOAD_ON,
	}})

	meterState := func() domain.GetMeterStateResponse {
		res, err := context.RequestFuture(pid, domain.GetMeterStateRequest{
			MeterRequestMixIn: domain.MeterRequestMixIn{MeterId: "kitchen"},
		}, time.Second).Result()
		require.NoError(t, err)
		return res.(domain.GetMeterStateResponse)
	}
	require.Eventually(t, func() bool {
		return meterState().Running
	}, 2*time.Second, 20*time.Millisecond)

	context.Send(pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		DeviceId: "kitchen_polling",
		Command:  "switch",
		Payload:  mqtt.MQTT_PAYLOAD_OFF,
	}})
	require.Eventually(t, func() bool {
		return !meterState().Running
	}, 2*time.Second, 20*time.Millisecond)

	// the switch state reached the broker
	res, err := context.RequestFuture(mqttPID, adactor.TestMQTTPublished{}, time.Second).Result()
	require.NoError(t, err)
	published := res.(adactor.TestMQTTPublishedResponse)
	assert.Equal(t, mqtt.MQTT_PAYLOAD_OFF, published.Messages["energyhive/switch/kitchen_polling/state"])
}

func TestDiscoveryEntities(t *testing.T) {

	cfg := util.LoadTestConfig()
	cfg.Meters = append(cfg.Meters, config.MeterConfig{Id: "garage", DeviceId: "4712"})

	sensors, switches := DiscoveryEntities(&cfg)
	// bridge state plus three sensors per meter
	assert.Len(t, sensors, 7)
	assert.Len(t, switches, 2)

	assert.Equal(t, domain.SENSOR_ID_BRIDGE_STATE, sensors[0].Id)
	assert.Equal(t, "kitchen_energy", sensors[1].Id)
	assert.NotEmpty(t, sensors[1].Device.Manufacturer)
	assert.Empty(t, sensors[2].Device.Manufacturer)
	assert.Equal(t, sensors[1].Device.Id, sensors[2].Device.Id)
	assert.NotEqual(t, sensors[1].Device.Id, sensors[4].Device.Id)
	assert.Equal(t, "garage_polling", switches[1].Id)
}
