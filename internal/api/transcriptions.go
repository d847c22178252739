package api

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"carescribe/internal/fileutil"
	"carescribe/internal/logging"
	"carescribe/internal/pipeline"
	"carescribe/internal/recordstore"
	"carescribe/internal/services"
	"carescribe/internal/textextract"
	"carescribe/internal/textutil"
)

const (
	mediaField = "file"
	textField  = "text"
)

// handleCreateTranscription validates a media upload, stores it under the
// upload directory and queues a job for it.
func (s *Server) handleCreateTranscription(c echo.Context) error {
	header, err := c.FormFile(mediaField)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "a media file is required in the \"file\" field")
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !s.cfg.AllowsExtension(ext) {
		return echo.NewHTTPError(http.StatusUnsupportedMediaType,
			fmt.Sprintf("unsupported media type %q; allowed: %s", ext, strings.Join(s.cfg.Pipeline.AllowedExtensions, ", ")))
	}
	maxBytes := s.cfg.MaxUploadBytes()
	if header.Size > maxBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d MB", s.cfg.Pipeline.MaxUploadMB))
	}
	if header.Size == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "uploaded file is empty")
	}

	job := pipeline.NewJob("", textutil.SanitizeFileName(filepath.Base(header.Filename)), subjectFromForm(c))
	dest := filepath.Join(s.cfg.Paths.UploadDir, job.ID+ext)
	written, err := storeUpload(header, dest, maxBytes)
	switch {
	case errors.Is(err, fileutil.ErrTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d MB", s.cfg.Pipeline.MaxUploadMB))
	case err != nil:
		return services.Wrap(services.ErrPersistence, "upload", "store upload", header.Filename, err)
	case written == 0:
		_ = os.Remove(dest)
		return echo.NewHTTPError(http.StatusBadRequest, "uploaded file is empty")
	}
	job.SourcePath = dest
	job.OwnsSource = true

	if err := s.deps.Dispatcher.Submit(job); err != nil {
		_ = os.Remove(dest)
		logging.WarnWithContext(logging.WithContext(c.Request().Context(), s.logger), "job rejected", "job_rejected",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "raise pipeline.queue_size or pipeline.workers"),
			logging.String(logging.FieldImpact, "client must retry the upload"),
		)
		return err
	}
	logging.WithContext(c.Request().Context(), s.logger).Info("job accepted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("file_name", job.FileName),
		logging.Int64("bytes", written),
	)
	return c.JSON(http.StatusAccepted, JobAccepted{JobID: job.ID, Status: "accepted"})
}

// handleCreateTextTranscription accepts a transcript as a form field or a
// .txt, .docx or .html file and stores it synchronously.
func (s *Server) handleCreateTextTranscription(c echo.Context) error {
	text := c.FormValue(textField)
	fileName := strings.TrimSpace(c.FormValue("file_name"))

	if strings.TrimSpace(text) == "" {
		header, err := c.FormFile(mediaField)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "provide transcript text in \"text\" or a file in \"file\"")
		}
		if !textextract.Supported(filepath.Ext(header.Filename)) {
			return echo.NewHTTPError(http.StatusUnsupportedMediaType,
				fmt.Sprintf("unsupported transcript type %q; allowed: .txt, .docx, .html", filepath.Ext(header.Filename)))
		}
		file, err := header.Open()
		if err != nil {
			return fmt.Errorf("open upload: %w", err)
		}
		defer file.Close()
		text, err = textextract.Extract(header.Filename, file, textextract.DefaultMaxBytes)
		if err != nil {
			return err
		}
		if fileName == "" {
			fileName = filepath.Base(header.Filename)
		}
	}

	record, err := s.deps.Text.RunText(c.Request().Context(), pipeline.TextJob{
		FileName: fileName,
		Text:     text,
		Subject:  subjectFromForm(c),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, record)
}

func subjectFromForm(c echo.Context) recordstore.SubjectContext {
	return recordstore.SubjectContext{
		SubjectID:   c.FormValue("subject_id"),
		DisplayName: c.FormValue("display_name"),
		Contact:     c.FormValue("contact"),
		Program:     c.FormValue("program"),
		RequestID:   c.FormValue("request_id"),
		SessionID:   c.FormValue("session_id"),
		SessionDate: c.FormValue("session_date"),
	}.Normalized()
}

func storeUpload(header *multipart.FileHeader, dest string, maxBytes int64) (int64, error) {
	src, err := header.Open()
	if err != nil {
		return 0, err
	}
	defer src.Close()
	return fileutil.WriteStream(dest, src, maxBytes)
}
