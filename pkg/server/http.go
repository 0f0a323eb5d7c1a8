package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"aura-payments/pkg/config"
	"aura-payments/pkg/health"
	"aura-payments/pkg/middleware"
	"aura-payments/pkg/ratelimit"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ProvideHTTPServer = fx.Module("http.server",
	fx.Provide(NewEngine, NewHttpServer),
	fx.Invoke(Run),
)

// Routes is implemented by every handler that mounts endpoints.
type Routes interface {
	RegisterRoutes(r gin.IRouter)
}

// AsRoute provides a handler constructor as a public route set.
func AsRoute(f any) any {
	return fx.Annotate(f, fx.As(new(Routes)), fx.ResultTags(`group:"routes"`))
}

// AsAdminRoute provides a handler constructor as a rate limited route set.
func AsAdminRoute(f any) any {
	return fx.Annotate(f, fx.As(new(Routes)), fx.ResultTags(`group:"admin_routes"`))
}

type EngineParams struct {
	fx.In
	Config  *config.Config
	Health  health.HealthService
	Limiter ratelimit.Limiter `optional:"true"`
	Routes  []Routes          `group:"routes"`
	Admin   []Routes          `group:"admin_routes"`
}

func NewEngine(p EngineParams) *gin.Engine {
	if p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(), middleware.Error())

	r.GET("/healthz", p.Health.Liveness)
	r.GET("/readyz", p.Health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	for _, rt := range p.Routes {
		rt.RegisterRoutes(r)
	}

	admin := r.Group("")
	if p.Limiter != nil {
		admin.Use(ratelimit.Middleware(p.Limiter))
	}
	for _, rt := range p.Admin {
		rt.RegisterRoutes(admin)
	}

	return r
}

type Server struct {
	server   *http.Server
	tlsMutex sync.RWMutex
	cert     *tls.Certificate
	certPath string
	keyPath  string
}

type Params struct {
	fx.In
	Config *config.Config
	Engine *gin.Engine
}

func NewHttpServer(p Params) *Server {
	cfg := p.Config
	srv := &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Addr),
			Handler:      otelhttp.NewHandler(p.Engine, cfg.AppName),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		certPath: cfg.TLS.CertPath,
		keyPath:  cfg.TLS.KeyPath,
	}

	if cfg.TLS.Enable {
		srv.reloadCert()

		srv.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			GetCertificate: func(info *tls.ClientHelloInfo) (*tls.Certificate, error) {
				srv.tlsMutex.RLock()
				defer srv.tlsMutex.RUnlock()

				if srv.cert == nil {
					return nil, fmt.Errorf("no TLS cert loaded")
				}

				return srv.cert, nil
			},
		}
	}

	return srv
}

func (s *Server) reloadCert() {
	cert, err := tls.LoadX509KeyPair(s.certPath, s.keyPath)
	if err != nil {
		zap.L().Error("failed to reload TLS cert", zap.Error(err))
		return
	}
	s.tlsMutex.Lock()
	s.cert = &cert
	s.tlsMutex.Unlock()
	zap.L().Info("TLS certificate reloaded")
}

// watchTLSFiles reloads the certificate on file changes until ctx ends.
func (s *Server) watchTLSFiles(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		zap.L().Error("failed to create fsnotify watcher", zap.Error(err))
		return
	}
	defer watcher.Close()

	if err := watcher.Add(s.certPath); err != nil {
		zap.L().Error("failed to watch TLS cert", zap.String("path", s.certPath), zap.Error(err))
	}
	if err := watcher.Add(s.keyPath); err != nil {
		zap.L().Error("failed to watch TLS key", zap.String("path", s.keyPath), zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				s.reloadCert()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			zap.L().Error("watcher error", zap.Error(err))
		}
	}
}

func Run(lc fx.Lifecycle, shutdowner fx.Shutdowner, srv *Server) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	serve := func(listen func() error) {
		defer wg.Done()
		if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("HTTP server exited", zap.Error(err))
			_ = shutdowner.Shutdown(fx.ExitCode(1))
		}
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if srv.server.TLSConfig != nil {
				zap.L().Info("Starting HTTP server with TLS", zap.String("addr", srv.server.Addr))
				wg.Add(2)
				go func() {
					defer wg.Done()
					srv.watchTLSFiles(ctx)
				}()
				go serve(func() error { return srv.server.ListenAndServeTLS("", "") })
			} else {
				zap.L().Info("Starting HTTP server without TLS", zap.String("addr", srv.server.Addr))
				wg.Add(1)
				go serve(srv.server.ListenAndServe)
			}
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			zap.L().Info("Shutting down HTTP server gracefully...")
			cancel()
			err := srv.server.Shutdown(stopCtx)
			wg.Wait()
			return err
		},
	})
}
