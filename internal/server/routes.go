package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	entries "github.com/berfenger/elvia2mqtt/internal/core/actor"
	"github.com/berfenger/elvia2mqtt/internal/core/domain"
	"github.com/berfenger/elvia2mqtt/internal/util/actorutil"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type createdEntry struct {
	domain.FlowResult
	Entry domain.EntryStatus `json:"entry"`
}

type entryList struct {
	Entries []domain.EntryStatus `json:"entries"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)

	api := e.Group("/api")
	api.GET("/flow/user", s.ShowUserStepHandler)
	api.POST("/flow/user", s.SubmitUserStepHandler)
	api.GET("/entries", s.ListEntriesHandler)
	api.POST("/entries/:id/reload", s.ReloadEntryHandler)
	api.DELETE("/entries/:id", s.RemoveEntryHandler)

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

func (s *Server) ShowUserStepHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.flow.StepUser(c.Request().Context(), nil))
}

func (s *Server) SubmitUserStepHandler(c echo.Context) error {
	input := domain.DefaultUserInput()
	if err := c.Bind(&input); err != nil {
		return err
	}
	if input.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.flowTimeout)
	defer cancel()

	result := s.flow.StepUser(ctx, &input)
	if result.Type != domain.FLOW_RESULT_CREATE_ENTRY {
		return c.JSON(http.StatusOK, result)
	}

	resp, err := actorutil.Ask[domain.CreateEntryResponse](s.rootContext, s.masterActor, domain.CreateEntryRequest{
		Title: result.Title,
		Data:  *result.Data,
	}, s.requestTimeout)
	if resp.Entry.EntryId == "" {
		// not even stored
		return echo.NewHTTPError(http.StatusInternalServerError, errorMessage(err))
	}
	return c.JSON(http.StatusCreated, createdEntry{FlowResult: result, Entry: resp.Entry})
}

func (s *Server) ListEntriesHandler(c echo.Context) error {
	resp, err := actorutil.Ask[domain.ListEntriesResponse](s.rootContext, s.masterActor, domain.ListEntriesRequest{}, s.requestTimeout)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, entryList{Entries: resp.Entries})
}

func (s *Server) ReloadEntryHandler(c echo.Context) error {
	resp, err := actorutil.Ask[domain.SetupEntryResponse](s.rootContext, s.masterActor, domain.ReloadEntryRequest{
		EntryId: c.Param("id"),
	}, s.requestTimeout)
	if errors.Is(err, entries.ErrEntryNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if resp.Entry.EntryId == "" {
		return echo.NewHTTPError(http.StatusServiceUnavailable, errorMessage(err))
	}
	// setup failures are part of the entry state
	return c.JSON(http.StatusOK, resp.Entry)
}

func (s *Server) RemoveEntryHandler(c echo.Context) error {
	_, err := actorutil.Ask[domain.RemoveEntryResponse](s.rootContext, s.masterActor, domain.RemoveEntryRequest{
		EntryId: c.Param("id"),
	}, s.requestTimeout)
	switch {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, entries.ErrEntryNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, entries.ErrUnloadFailed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func errorMessage(err error) string {
	if err == nil {
		return "unexpected empty response"
	}
	return err.Error()
}
