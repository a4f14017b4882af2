package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/weatherd/weatherd/internal/config"
	"github.com/weatherd/weatherd/internal/metrics"
	"github.com/weatherd/weatherd/internal/sampler"
	"github.com/weatherd/weatherd/internal/version"
	"github.com/weatherd/weatherd/internal/webui"
)

// OutcomeSource exposes the most recent tick
type OutcomeSource interface {
	LastOutcome() (sampler.TickOutcome, bool)
}

// Server provides the status API and dashboard
type Server struct {
	cfg       *config.Config
	outcomes  OutcomeSource
	metrics   *metrics.Metrics
	logBuffer *webui.LogBuffer
	logger    zerolog.Logger
	engine    *gin.Engine
	startTime time.Time
}

// NewServer creates a new API server with its routes registered
func NewServer(cfg *config.Config, outcomes OutcomeSource, m *metrics.Metrics, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	logger = logger.With().Str("component", "api").Logger()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))
	engine.SetHTMLTemplate(webui.Templates)

	s := &Server{
		cfg:       cfg,
		outcomes:  outcomes,
		metrics:   m,
		logger:    logger,
		engine:    engine,
		startTime: time.Now(),
	}
	s.registerRoutes()
	return s
}

// SetLogBuffer sets the log buffer shown by /api/logs and the dashboard
func (s *Server) SetLogBuffer(lb *webui.LogBuffer) {
	s.logBuffer = lb
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.API.Port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", srv.Addr).Msg("Starting API server with Web UI")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/status", s.handleStatus)
	s.engine.GET("/api/logs", s.handleLogsAPI)
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	s.engine.GET("/", s.handleWebUI)
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// readingView is the JSON form of a reading; absent values are omitted
type readingView struct {
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Pressure    *float64 `json:"pressure,omitempty"`
}

type tickView struct {
	Seq          uint64       `json:"seq"`
	At           time.Time    `json:"at"`
	State        string       `json:"state"`
	Reading      *readingView `json:"reading,omitempty"`
	AlertsSent   int          `json:"alerts_sent"`
	AlertsFailed int          `json:"alerts_failed"`
	Suppressed   bool         `json:"alerts_suppressed"`
	SensorError  string       `json:"sensor_error,omitempty"`
	StorageError string       `json:"storage_error,omitempty"`
}

func newTickView(out sampler.TickOutcome) tickView {
	v := tickView{
		Seq:          out.Seq,
		At:           out.At,
		State:        string(out.State),
		AlertsSent:   out.Alerts.Sent,
		AlertsFailed: out.Alerts.Failed,
		Suppressed:   out.Alerts.Suppressed,
	}
	if r := out.Reading; r != nil {
		v.Reading = &readingView{}
		if r.HasTemperature {
			v.Reading.Temperature = &r.Temperature
		}
		if r.HasHumidity {
			v.Reading.Humidity = &r.Humidity
		}
		if r.HasPressure {
			v.Reading.Pressure = &r.Pressure
		}
	}
	if out.SensorErr != nil {
		v.SensorError = out.SensorErr.Error()
	}
	if out.StorageErr != nil {
		v.StorageError = out.StorageErr.Error()
	}
	return v
}

func (s *Server) handleStatus(c *gin.Context) {
	status := gin.H{
		"version":  version.Get(),
		"time":     time.Now().UTC().Format(time.RFC3339),
		"uptime":   time.Since(s.startTime).Round(time.Second).String(),
		"sensor":   s.cfg.Sensor.Name,
		"driver":   s.cfg.Sensor.Driver,
		"interval": s.cfg.Sampling.Interval.String(),
		"mode":     s.cfg.Alerts.Mode,
		"alerts":   s.cfg.Alerts.IsEnabled(),
		"backends": s.cfg.Storage.Backends,
	}
	if out, ok := s.outcomes.LastOutcome(); ok {
		status["last_tick"] = newTickView(out)
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleLogsAPI(c *gin.Context) {
	limit := 200
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	level := zerolog.TraceLevel
	if v := c.Query("level"); v != "" {
		lvl, err := zerolog.ParseLevel(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid level"})
			return
		}
		level = lvl
	}

	entries := []webui.LogEntry{}
	if s.logBuffer != nil {
		entries = s.logBuffer.Filter(level, c.Query("component"))
		if len(entries) > limit {
			entries = entries[len(entries)-limit:]
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// PageData holds all data for the dashboard template
type PageData struct {
	RefreshSeconds int
	Sensor         string
	Version        string
	Commit         string
	State          string
	Temperature    string
	Humidity       string
	Pressure       string
	Uptime         string
	Seq            uint64
	LastTick       string
	Interval       string
	AlertMode      string
	Backends       string
	LastError      string
	Logs           []webui.LogEntry
}

func (s *Server) handleWebUI(c *gin.Context) {
	info := version.Get()
	data := PageData{
		RefreshSeconds: refreshSeconds(s.cfg.Sampling.Interval),
		Sensor:         s.cfg.Sensor.Name,
		Version:        info.Version,
		Commit:         info.Commit,
		Temperature:    "n/a",
		Humidity:       "n/a",
		Pressure:       "n/a",
		Uptime:         formatDuration(time.Since(s.startTime)),
		Interval:       s.cfg.Sampling.Interval.String(),
		AlertMode:      s.cfg.Alerts.Mode,
		Backends:       strings.Join(s.cfg.Storage.Backends, ", "),
	}
	if !s.cfg.Alerts.IsEnabled() {
		data.AlertMode = "disabled"
	}

	if out, ok := s.outcomes.LastOutcome(); ok {
		data.State = string(out.State)
		data.Seq = out.Seq
		data.LastTick = out.At.Local().Format("15:04:05")
		if r := out.Reading; r != nil {
			if r.HasTemperature {
				data.Temperature = fmt.Sprintf("%.2f °C", r.Temperature)
			}
			if r.HasHumidity {
				data.Humidity = fmt.Sprintf("%.2f %%", r.Humidity)
			}
			if r.HasPressure {
				data.Pressure = fmt.Sprintf("%.2f hPa", r.Pressure)
			}
		}
		switch {
		case out.SensorErr != nil:
			data.LastError = out.SensorErr.Error()
		case out.StorageErr != nil:
			data.LastError = out.StorageErr.Error()
		}
	}

	if s.logBuffer != nil {
		data.Logs = s.logBuffer.GetRecentEntries(100)
	}

	c.HTML(http.StatusOK, "base", data)
}

func refreshSeconds(interval time.Duration) int {
	sec := int(interval / time.Second)
	if sec < 5 {
		return 5
	}
	return sec
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	if d < 24*time.Hour {
		return d.Round(time.Minute).String()
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd %dh", days, hours)
}
