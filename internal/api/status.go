package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

func (s *Server) handleStatus(c echo.Context) error {
	records, err := s.deps.Records.GetAll(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Status{
		Version:    Version,
		Dispatcher: s.deps.Dispatcher.Stats(),
		Reprocess:  s.deps.Reprocessor.Registry().Snapshot(),
		Records:    len(records),
	})
}
