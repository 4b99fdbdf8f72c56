package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/berfenger/energyhive2mqtt/internal/core/domain"
	"github.com/berfenger/energyhive2mqtt/pkg/energyhive"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type meterView struct {
	Id        string `json:"id"`
	Name      string `json:"name,omitempty"`
	DeviceId  string `json:"device_id"`
	Running   bool   `json:"running"`
	Available bool   `json:"available"`
	domain.MeterState
}

type credentialBody struct {
	ApiKey   string `json:"apikey"`
	DeviceId string `json:"device_id"`
}

type startBody struct {
	IntervalMillis uint32 `json:"interval_millis"`
}

type discoverBody struct {
	ApiKey string `json:"apikey"`
	Marker string `json:"marker"`
}

type changedView struct {
	Changed bool `json:"changed"`
}

type errorView struct {
	Error string `json:"error"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)

	e.GET("/meters", s.ListMetersHandler)
	e.GET("/meters/:id", s.GetMeterHandler)
	e.PUT("/meters/:id/credential", s.SetCredentialHandler)
	e.POST("/meters/:id/start", s.StartMeterHandler)
	e.POST("/meters/:id/stop", s.StopMeterHandler)
	e.POST("/availability/check", s.CheckAvailabilityHandler)

	e.POST("/pair/discover", s.DiscoverHandler)

	if s.metricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) ListMetersHandler(c echo.Context) error {
	res, err := s.request(domain.ListMetersRequest{})
	if err != nil {
		return s.errorResponse(c, err)
	}
	list := res.(domain.ListMetersResponse)
	views := make([]meterView, 0, len(list.MeterIds))
	for _, id := range list.MeterIds {
		view, err := s.meterView(id)
		if err != nil {
			return s.errorResponse(c, err)
		}
		views = append(views, view)
	}
	return c.JSON(http.StatusOK, views)
}

func (s *Server) GetMeterHandler(c echo.Context) error {
	view, err := s.meterView(c.Param("id"))
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) SetCredentialHandler(c echo.Context) error {
	var body credentialBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorView{Error: "invalid body"})
	}
	if _, err := s.meterView(c.Param("id")); err != nil {
		return s.errorResponse(c, err)
	}

	// the new key must reach the provider and see the device
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()
	if err := energyhive.VerifyDevice(ctx, s.reader, body.ApiKey, body.DeviceId); err != nil {
		s.logger.Info("http: re-pair rejected", zap.String("meter", c.Param("id")), zap.Error(err))
		return s.errorResponse(c, err)
	}

	_, err := s.request(domain.SetCredentialRequest{
		MeterRequestMixIn: domain.MeterRequestMixIn{MeterId: c.Param("id")},
		Credential: domain.DeviceCredential{
			ApiKey:   body.ApiKey,
			DeviceId: body.DeviceId,
		},
	})
	if err != nil {
		return s.errorResponse(c, err)
	}
	view, err := s.meterView(c.Param("id"))
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) StartMeterHandler(c echo.Context) error {
	var body startBody
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&body); err != nil {
			return c.JSON(http.StatusBadRequest, errorView{Error: "invalid body"})
		}
	}
	res, err := s.request(domain.MeterStartRequest{
		MeterRequestMixIn: domain.MeterRequestMixIn{MeterId: c.Param("id")},
		IntervalMillis:    body.IntervalMillis,
	})
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, changedView{Changed: res.(domain.MeterStartResponse).Changed})
}

func (s *Server) StopMeterHandler(c echo.Context) error {
	res, err := s.request(domain.MeterStopRequest{
		MeterRequestMixIn: domain.MeterRequestMixIn{MeterId: c.Param("id")},
	})
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, changedView{Changed: res.(domain.MeterStopResponse).Changed})
}

func (s *Server) CheckAvailabilityHandler(c echo.Context) error {
	res, err := s.request(domain.CheckAvailabilityRequest{})
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]int{"meters": res.(domain.CheckAvailabilityResponse).Meters})
}

func (s *Server) DiscoverHandler(c echo.Context) error {
	var body discoverBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorView{Error: "invalid body"})
	}
	marker := body.Marker
	if marker == "" {
		marker = s.deviceMarker
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()
	paired, err := energyhive.DiscoverDevices(ctx, s.reader, body.ApiKey, marker)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, paired)
}

func (s *Server) meterView(id string) (meterView, error) {
	res, err := s.request(domain.GetMeterStateRequest{
		MeterRequestMixIn: domain.MeterRequestMixIn{MeterId: id},
	})
	if err != nil {
		return meterView{}, err
	}
	state := res.(domain.GetMeterStateResponse)
	return meterView{
		Id:         state.MeterId,
		Name:       state.Name,
		DeviceId:   state.DeviceId,
		Running:    state.Running,
		Available:  state.Available,
		MeterState: state.State,
	}, nil
}

// request asks the master and unwraps response errors.
func (s *Server) request(msg any) (domain.ActorResponse, error) {
	res, err := s.rootContext.RequestFuture(s.masterActor, msg, s.requestTimeout).Result()
	if err != nil {
		return nil, err
	}
	resp, ok := res.(domain.ActorResponse)
	if !ok {
		return nil, errors.New("unexpected response")
	}
	if resp.HasResponseError() {
		return nil, resp.GetResponseError()
	}
	return resp, nil
}

func (s *Server) errorResponse(c echo.Context, err error) error {
	status := StatusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("http: request failed", zap.String("path", c.Path()), zap.Int("status", status), zap.Error(err))
	}
	return c.JSON(status, errorView{Error: err.Error()})
}

// StatusForError maps domain and provider errors to HTTP status codes.
func StatusForError(err error) int {
	switch {
	case domain.IsUnknownMeterError(err):
		return http.StatusNotFound
	case energyhive.IsConfigurationError(err):
		return http.StatusBadRequest
	case errors.Is(err, energyhive.ErrNoDevices), energyhive.IsEmptyResultError(err):
		return http.StatusNotFound
	case energyhive.IsParseError(err), energyhive.IsTransportError(err):
		return http.StatusBadGateway
	case errors.Is(err, actor.ErrTimeout):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
