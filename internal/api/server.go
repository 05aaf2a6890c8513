package api

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"vipcollector/internal/collector"
)

//go:embed templates/*.html
var templateFS embed.FS

const keepReports = 50

type Server struct {
	echo      *echo.Echo
	templates *template.Template
	sse       *SSEBroker
	logger    *zap.Logger

	mu      sync.RWMutex
	reports []collector.Report
}

type SSEBroker struct {
	clients map[chan string]bool
	mu      sync.RWMutex
}

func NewSSEBroker() *SSEBroker {
	return &SSEBroker{clients: make(map[chan string]bool)}
}

func (b *SSEBroker) Subscribe() chan string {
	ch := make(chan string, 10)
	b.mu.Lock()
	b.clients[ch] = true
	b.mu.Unlock()
	return ch
}

func (b *SSEBroker) Unsubscribe(ch chan string) {
	b.mu.Lock()
	delete(b.clients, ch)
	close(ch)
	b.mu.Unlock()
}

// Broadcast hands msg to every subscriber that has room for it.
func (b *SSEBroker) Broadcast(msg string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

type ReportView struct {
	Started  string
	Duration string
	Outcome  string
	Fetched  int
	Matched  int
	Reposted int
	Error    string
}

func NewServer(logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	tmpl := template.Must(template.ParseFS(templateFS, "templates/*.html"))

	s := &Server{
		echo:      e,
		templates: tmpl,
		sse:       NewSSEBroker(),
		logger:    logger.With(zap.String("component", "api")),
	}

	s.routes()

	return s
}

func (s *Server) routes() {
	s.echo.GET("/", s.index)
	s.echo.GET("/health", s.health)
	s.echo.GET("/api/passes", s.passes)
	s.echo.GET("/api/events", s.events)
}

func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Record keeps r among the recent reports and pushes it to event subscribers.
func (s *Server) Record(r collector.Report) {
	s.mu.Lock()
	s.reports = append(s.reports, r)
	if len(s.reports) > keepReports {
		s.reports = s.reports[len(s.reports)-keepReports:]
	}
	s.mu.Unlock()

	data, err := json.Marshal(r)
	if err != nil {
		s.logger.Error("encoding report", zap.Error(err))
		return
	}
	s.sse.Broadcast(string(data))
}

// Recent returns the kept reports, newest first.
func (s *Server) Recent() []collector.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]collector.Report, len(s.reports))
	for i, r := range s.reports {
		out[len(s.reports)-1-i] = r
	}
	return out
}

func (s *Server) index(c echo.Context) error {
	recent := s.Recent()
	views := make([]ReportView, len(recent))
	for i, r := range recent {
		views[i] = ReportView{
			Started:  r.StartedAt.Format(time.DateTime),
			Duration: r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
			Outcome:  string(r.Outcome),
			Fetched:  r.Fetched,
			Matched:  r.Matched,
			Reposted: r.Reposted,
			Error:    r.Error,
		}
	}
	return s.render(c, "index.html", map[string]any{"Reports": views})
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) passes(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Recent())
}

func (s *Server) events(c echo.Context) error {
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")

	ch := s.sse.Subscribe()
	defer s.sse.Unsubscribe(ch)

	fmt.Fprintf(c.Response(), ": ping\n\n")
	c.Response().Flush()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case msg := <-ch:
			fmt.Fprintf(c.Response(), "event: pass\ndata: %s\n\n", msg)
			c.Response().Flush()
		}
	}
}

func (s *Server) render(c echo.Context, name string, data any) error {
	c.Response().Header().Set("Content-Type", "text/html")
	err := s.templates.ExecuteTemplate(c.Response(), name, data)
	if err != nil {
		s.logger.Error("render", zap.String("template", name), zap.Error(err))
	}
	return err
}
