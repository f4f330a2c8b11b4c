package echoapi

import (
	"context"
	"net/http"
	"os"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/account"
	"github.com/socportal/jumuiya/core/blog"
	"github.com/socportal/jumuiya/core/engagement"
	"github.com/socportal/jumuiya/core/event"
	"github.com/socportal/jumuiya/core/poll"
	"github.com/socportal/jumuiya/core/resource"
	"github.com/socportal/jumuiya/core/session"
	"github.com/socportal/jumuiya/core/stats"
	"github.com/socportal/jumuiya/services/metrics"
)

type (
	Deps struct {
		AccountSvc    account.Service
		BlogSvc       blog.Service
		EngagementSvc engagement.Service
		PollSvc       poll.Service
		EventSvc      event.Service
		ResourceSvc   resource.Service
		StatsSvc      stats.Service
		Sessions      *session.Issuer
	}

	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		Translator     ut.Translator
		Metrics        *metrics.Metrics
		DisableReqLogs bool
		Deps           *Deps
	}

	Server struct {
		opts     *Options
		app      *echo.Echo
		shutdown chan os.Signal
		errors   chan error
	}
)

func NewServer(opts *Options) *Server {
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	s := &Server{
		opts:     opts,
		app:      echo.New(),
		shutdown: make(chan os.Signal, 1),
		errors:   make(chan error, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Debug = conf.Debug
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.signalShutdown)

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(metricsMiddleware(s.opts.Metrics))
	if !s.opts.DisableReqLogs {
		s.app.Use(requestLogger(s.opts.Logger))
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(sessionMiddleware(s.opts.Deps.Sessions))

	s.app.GET("/", s.home)
	s.app.GET("/metrics", echo.WrapHandler(s.opts.Metrics.Handler()))

	deps := s.opts.Deps
	registerAccountAPI(s.app, deps.AccountSvc, deps.Sessions, s.opts.Metrics, conf, s.opts.Logger)
	registerBlogAPI(s.app, deps.BlogSvc, deps.EngagementSvc, s.opts.Metrics)
	registerPollAPI(s.app, deps.PollSvc, s.opts.Metrics)
	registerEventAPI(s.app, deps.EventSvc, s.opts.Metrics)
	registerResourceAPI(s.app, deps.ResourceSvc)
	registerAdminAPI(s.app, deps.StatsSvc, deps.EngagementSvc)
}

// Start serves until the server is shut down; unexpected failures are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.opts.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() chan os.Signal { return s.shutdown }

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{
		"status": "ok",
		"app":    s.opts.Conf.AppName,
		"build":  s.opts.Conf.Build,
	})
}
