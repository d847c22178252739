package api

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"carescribe/internal/recordexport"
	"carescribe/internal/recordstore"
	"carescribe/internal/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleListRecords(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		records []recordstore.Record
		err     error
	)
	if subject := strings.TrimSpace(c.QueryParam("subject")); subject != "" {
		records, err = s.deps.Records.ListBySubject(ctx, subject)
	} else {
		records, err = s.deps.Records.GetAll(ctx)
	}
	if err != nil {
		return err
	}
	if records == nil {
		records = []recordstore.Record{}
	}
	return c.JSON(http.StatusOK, RecordList{Records: records})
}

func (s *Server) handleGetRecord(c echo.Context) error {
	name := c.Param("name")
	record, transcript, err := s.deps.Records.Get(c.Request().Context(), name)
	if err != nil {
		return err
	}
	if record == nil {
		return services.Wrap(services.ErrNotFound, "records", "get", "record "+name+" not found", nil)
	}
	return c.JSON(http.StatusOK, RecordDetail{Record: *record, Transcript: transcript})
}

func (s *Server) handleExportRecords(c echo.Context) error {
	records, err := s.deps.Records.GetAll(c.Request().Context())
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := recordexport.WriteWorkbook(&buf, records); err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="records.xlsx"`)
	return c.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}
