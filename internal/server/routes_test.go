package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	adactor "github.com/berfenger/energyhive2mqtt/internal/adapter/actor"
	coreactor "github.com/berfenger/energyhive2mqtt/internal/core/actor"
	"github.com/berfenger/energyhive2mqtt/internal/core/domain"
	"github.com/berfenger/energyhive2mqtt/internal/store"
	"github.com/berfenger/energyhive2mqtt/internal/util"
	"github.com/berfenger/energyhive2mqtt/pkg/energyhive"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testServer(t *testing.T, reader *energyhive.TestEnergyReader) http.Handler {
	cfg := util.LoadTestConfig()
	logger := zap.NewNop()

	as := actor.NewActorSystem()
	props := actor.PropsFromProducer(func() actor.Actor {
		return coreactor.NewMasterOfPuppetsActor(cfg, reader, store.NewMemoryStore(), &eventstream.EventStream{},
			func(es *eventstream.EventStream) *adactor.MQTTActor {
				return adactor.NewTestMQTTActor(&cfg, es, logger)
			}, logger)
	})
	pid, err := as.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)
	t.Cleanup(func() {
		as.Root.Stop(pid)
		as.Shutdown()
	})

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics"))
	})
	return newServer(cfg, as.Root, pid, reader, metrics, logger).RegisterRoutes()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheckHandler(t *testing.T) {
	h := testServer(t, energyhive.NewTestEnergyReader())
	rec := do(t, h, http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "health_check: OK", rec.Body.String())
}

func TestMeterRoutes(t *testing.T) {

	require := require.New(t)

	h := testServer(t, energyhive.NewTestEnergyReader())

	rec := do(t, h, http.MethodGet, "/meters", "")
	require.Equal(http.StatusOK, rec.Code)
	var meters []meterView
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &meters))
	require.Len(meters, 1)
	require.Equal("kitchen", meters[0].Id)
	require.Equal("4711", meters[0].DeviceId)
	require.False(meters[0].Running)

	rec = do(t, h, http.MethodGet, "/meters/cellar", "")
	require.Equal(http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/meters/kitchen/start", "")
	require.Equal(http.StatusOK, rec.Code)
	require.JSONEq(`{"changed":true}`, rec.Body.String())
	rec = do(t, h, http.MethodPost, "/meters/kitchen/start", `{"interval_millis":200}`)
	require.JSONEq(`{"changed":false}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/meters/kitchen", "")
	require.Equal(http.StatusOK, rec.Code)
	require.Contains(rec.Body.String(), `"running":true`)
	require.Contains(rec.Body.String(), `"accumulated_energy_kwh"`)

	rec = do(t, h, http.MethodPost, "/meters/kitchen/stop", "")
	require.JSONEq(`{"changed":true}`, rec.Body.String())

	rec = do(t, h, http.MethodPut, "/meters/kitchen/credential", `{"apikey":"","device_id":"1"}`)
	require.Equal(http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/meters/kitchen/credential", `{"apikey":"new","device_id":"4712"}`)
	require.Equal(http.StatusOK, rec.Code)
	var view meterView
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal("4712", view.DeviceId)
	require.True(view.Available)

	rec = do(t, h, http.MethodPost, "/availability/check", "")
	require.Equal(http.StatusAccepted, rec.Code)
	require.JSONEq(`{"meters":1}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(http.StatusOK, rec.Code)
}

func TestSetCredentialRejected(t *testing.T) {

	require := require.New(t)

	reader := energyhive.NewTestEnergyReader()
	h := testServer(t, reader)

	// device not reported for this key
	rec := do(t, h, http.MethodPut, "/meters/kitchen/credential", `{"apikey":"new","device_id":"9999"}`)
	require.Equal(http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPut, "/meters/cellar/credential", `{"apikey":"new","device_id":"4711"}`)
	require.Equal(http.StatusNotFound, rec.Code)

	// provider refuses the key
	reader.FailDeviceList(&energyhive.TransportError{Endpoint: energyhive.ENDPOINT_SUMMARY, StatusCode: http.StatusUnauthorized})
	rec = do(t, h, http.MethodPut, "/meters/kitchen/credential", `{"apikey":"bad","device_id":"4712"}`)
	require.Equal(http.StatusBadGateway, rec.Code)

	reader.FailDeviceList(&energyhive.EmptyResultError{Endpoint: energyhive.ENDPOINT_SUMMARY})
	rec = do(t, h, http.MethodPut, "/meters/kitchen/credential", `{"apikey":"bad","device_id":"4712"}`)
	require.Equal(http.StatusNotFound, rec.Code)

	// the stored credential is untouched
	rec = do(t, h, http.MethodGet, "/meters/kitchen", "")
	require.Equal(http.StatusOK, rec.Code)
	var view meterView
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal("4711", view.DeviceId)
}

func TestDiscoverHandler(t *testing.T) {

	reader := energyhive.NewTestEnergyReader()
	h := testServer(t, reader)

	rec := do(t, h, http.MethodPost, "/pair/discover", `{"apikey":"secret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var paired []energyhive.PairedDevice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &paired))
	require.Len(t, paired, 1)
	assert.Equal(t, "4711", paired[0].DeviceId)
	assert.Equal(t, "PWER_4711", paired[0].Name)

	rec = do(t, h, http.MethodPost, "/pair/discover", `{"apikey":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/pair/discover", `{"apikey":"secret","marker":"GAS"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusForError(t *testing.T) {
	for err, status := range map[error]int{
		&domain.UnknownMeterError{MeterId: "x"}:          http.StatusNotFound,
		&energyhive.ConfigurationError{Field: "apikey"}:  http.StatusBadRequest,
		energyhive.ErrNoDevices:                          http.StatusNotFound,
		&energyhive.EmptyResultError{}:                   http.StatusNotFound,
		&energyhive.ParseError{Err: errors.New("x")}:     http.StatusBadGateway,
		&energyhive.TransportError{Err: errors.New("x")}: http.StatusBadGateway,
		actor.ErrTimeout:                                 http.StatusGatewayTimeout,
		errors.New("other"):                              http.StatusInternalServerError,
	} {
		assert.Equal(t, status, StatusForError(err), err.Error())
	}
}
