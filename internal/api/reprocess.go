package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

func (s *Server) handleReprocessSubject(c echo.Context) error {
	subject := strings.TrimSpace(c.Param("id"))
	force := queryBool(c, "force")
	if err := s.deps.Reprocessor.StartSubject(c.Request().Context(), subject, force); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, ReprocessAccepted{Status: "accepted", Subject: subject, Force: force})
}

func (s *Server) handleReprocessBulk(c echo.Context) error {
	subject := strings.TrimSpace(c.QueryParam("subject"))
	force := queryBool(c, "force")
	if err := s.deps.Reprocessor.StartBulk(c.Request().Context(), subject, force); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, ReprocessAccepted{Status: "accepted", Subject: subject, Force: force})
}

func queryBool(c echo.Context, name string) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(c.QueryParam(name)))
	return err == nil && value
}
