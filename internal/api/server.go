package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"carescribe/internal/config"
	"carescribe/internal/logging"
	"carescribe/internal/pipeline"
	"carescribe/internal/recordstore"
	"carescribe/internal/reprocess"
	"carescribe/internal/services"
)

// Version is reported by /health and /api/status.
var Version = "dev"

// Submitter queues media jobs.
type Submitter interface {
	Submit(job pipeline.Job) error
	Stats() pipeline.Stats
}

// TextRunner handles transcripts submitted as text.
type TextRunner interface {
	RunText(ctx context.Context, job pipeline.TextJob) (recordstore.Record, error)
}

// Records reads stored records.
type Records interface {
	GetAll(ctx context.Context) ([]recordstore.Record, error)
	Get(ctx context.Context, name string) (*recordstore.Record, string, error)
	ListBySubject(ctx context.Context, subjectID string) ([]recordstore.Record, error)
}

// Reprocessor starts background reprocess runs.
type Reprocessor interface {
	StartSubject(ctx context.Context, subjectID string, force bool) error
	StartBulk(ctx context.Context, subjectID string, force bool) error
	Registry() *reprocess.Registry
}

// Dependencies are the components the handlers call.
type Dependencies struct {
	Dispatcher  Submitter
	Text        TextRunner
	Records     Records
	Reprocessor Reprocessor
}

// Server is the HTTP front end.
type Server struct {
	cfg    *config.Config
	deps   Dependencies
	logger *slog.Logger
	echo   *echo.Echo

	listener net.Listener
	server   *http.Server
}

// New builds the server and registers its routes.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logging.NewComponentLogger(logger, "api"),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(services.WithRequestID(req.Context(), id)))
		},
	}))
	e.Use(s.requestLogger)

	e.GET("/health", s.handleHealth)
	group := e.Group("/api")
	group.POST("/transcriptions", s.handleCreateTranscription)
	group.POST("/transcriptions/text", s.handleCreateTextTranscription)
	group.GET("/records", s.handleListRecords)
	group.GET("/records/export.xlsx", s.handleExportRecords)
	group.GET("/records/:name", s.handleGetRecord)
	group.POST("/reprocess/subjects/:id", s.handleReprocessSubject)
	group.POST("/reprocess", s.handleReprocessBulk)
	group.GET("/status", s.handleStatus)

	s.echo = e
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on the configured bind address and serves until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.cfg.Paths.APIBind)
	if bind == "" {
		return services.Wrap(services.ErrConfiguration, "api", "listen", "paths.api_bind is empty", nil)
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Minute,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the listening address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits briefly for in-flight ones.
func (s *Server) Shutdown() {
	if s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		req := c.Request()
		logging.WithContext(req.Context(), s.logger).Debug("http request",
			logging.String("method", req.Method),
			logging.String("path", c.Path()),
			logging.Int("status", c.Response().Status),
			logging.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := statusFor(err)
	message := err.Error()
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.Code
		message = fmt.Sprint(httpErr.Message)
	}
	if status >= http.StatusInternalServerError {
		logging.WithContext(c.Request().Context(), s.logger).Error("request failed",
			logging.String("path", c.Path()),
			logging.Error(err),
			logging.ErrorKind(err),
		)
	}
	_ = c.JSON(status, ErrorResponse{Error: message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrQueueFull), errors.Is(err, pipeline.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
