// Package server exposes the daemon's HTTP surface: the job controller
// operations and schedule management.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"reportd/internal/jobs"
	"reportd/internal/schedule"
	logx "reportd/pkg/logx"
)

type Config struct {
	Addr string // default ":8080"
	Mode string // gin mode; default release
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = ":8080"
	}
	if strings.TrimSpace(c.Mode) == "" {
		c.Mode = gin.ReleaseMode
	}
	return c
}

// Reloader rebuilds the scheduler's trigger table after schedule mutations.
type Reloader interface {
	Reload(ctx context.Context) error
}

// ScheduleStore is the slice of the schedule store the API needs.
type ScheduleStore interface {
	Insert(ctx context.Context, sc schedule.Schedule) error
	List(ctx context.Context) ([]schedule.Schedule, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

type Server struct {
	cfg      Config
	log      logx.Logger
	jobs     *jobs.Controller
	store    ScheduleStore
	reloader Reloader

	httpSrv *http.Server
}

func New(cfg Config, ctrl *jobs.Controller, store ScheduleStore, reloader Reloader, log logx.Logger) *Server {
	return &Server{
		cfg:      cfg.withDefaults(),
		log:      log,
		jobs:     ctrl,
		store:    store,
		reloader: reloader,
	}
}

// gin's mode is process-global; set it once, first router wins.
var setMode sync.Once

func (s *Server) router() *gin.Engine {
	setMode.Do(func() { gin.SetMode(s.cfg.Mode) })
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/jobs", s.submitJob)
		api.GET("/jobs", s.jobHistory)
		api.GET("/jobs/:id/status", s.jobStatus)
		api.POST("/jobs/:id/cancel", s.cancelJob)
		api.GET("/jobs/:id/download", s.downloadJob)

		api.POST("/schedules", s.createSchedule)
		api.GET("/schedules", s.listSchedules)
		api.POST("/schedules/:id/toggle", s.toggleSchedule)
	}
	return r
}

// Start runs the HTTP listener until Stop. ListenAndServe errors other than
// a clean shutdown are returned to the caller's error channel.
func (s *Server) Start(errCh chan<- error) {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		s.log.Info("http server listening", logx.String("addr", s.cfg.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)))
	}
}
