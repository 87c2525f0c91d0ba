package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/meshbed/testbed-manager/internal/client"
	"github.com/meshbed/testbed-manager/internal/config"
	handlers "github.com/meshbed/testbed-manager/internal/handlers/v1alpha1"
	"github.com/meshbed/testbed-manager/internal/service"
	"github.com/meshbed/testbed-manager/internal/tokens"
	"github.com/meshbed/testbed-manager/pkg/metrics"
	"github.com/meshbed/testbed-manager/pkg/middleware"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg      *config.Config
	listener net.Listener
}

// New returns a new instance of the testbed-manager query server.
func New(cfg *config.Config, listener net.Listener) *Server {
	return &Server{
		cfg:      cfg,
		listener: listener,
	}
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	credmgr := client.NewCredmgr(s.cfg.Credmgr.Host)
	manager, err := tokens.NewManager(credmgr, tokens.Config{
		Path:         s.cfg.Tokens.Path,
		IDToken:      s.cfg.Tokens.IDToken,
		RefreshToken: s.cfg.Tokens.RefreshToken,
		ProjectID:    s.cfg.Tokens.ProjectID,
		ProjectName:  s.cfg.Tokens.ProjectName,
		Scope:        s.cfg.Tokens.Scope,
	})
	if err != nil {
		return err
	}

	orchestrator := client.NewOrchestrator(s.cfg.Orchestrator.Host)
	topologyService := service.NewTopologyService(orchestrator, manager)

	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	metricMiddleware.MustRegisterDefault()

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
	)

	handlers.NewServiceHandler(topologyService).RegisterRoutes(router)

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: router}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}
