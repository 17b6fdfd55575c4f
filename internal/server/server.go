// Package server orchestrates all components: registry, dispatcher, event channel,
// message store, security, HTTP and COMMS transports.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stracadev/straca/internal/config"
	"github.com/stracadev/straca/internal/metrics"
	"github.com/stracadev/straca/pkg/auth"
	"github.com/stracadev/straca/pkg/caw"
	"github.com/stracadev/straca/pkg/commsutil"
	"github.com/stracadev/straca/pkg/db"
	"github.com/stracadev/straca/pkg/dispatcher"
	"github.com/stracadev/straca/pkg/events"
	"github.com/stracadev/straca/pkg/manifest"
	"github.com/stracadev/straca/pkg/registry"
	"github.com/stracadev/straca/pkg/store"
)

const logPrefix = "server:server"

const shutdownTimeout = 10 * time.Second

// SelfServiceName is the service exposing describe and health.
const SelfServiceName = "straca"

// Server is the straca orchestrator.
type Server struct {
	cfg    *config.Config
	origin string

	nc         *comms.Conn
	pool       *pgxpool.Pool
	reg        *registry.Registry
	disp       *dispatcher.Dispatcher
	caw        *caw.Caw
	store      *store.Service
	auth       *auth.Manager
	relay      *events.CommsRelay
	transport  *CommsTransport
	handler    http.Handler
	httpServer *http.Server
	addr       string
}

// Options overrides process-level collaborators; zero values use defaults.
type Options struct {
	// Registerer receives the metrics collectors. Nil uses prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// Gatherer backs /metrics. Nil uses prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// Run loads configuration, starts the server, blocks until a shutdown signal,
// then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)

	slog.Info(fmt.Sprintf("%s - Starting straca", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := New(ctx, cfg, Options{})
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		s.Shutdown(ctx)
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	s.Shutdown(ctx)
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// New wires every component from cfg without accepting traffic. COMMS and the
// database are connected only when their URLs are configured.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Server, error) {
	s := &Server{cfg: cfg, origin: uuid.NewString()}

	registerer := opts.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	m := metrics.New(registerer)
	if err := m.Register(); err != nil {
		return nil, fmt.Errorf("%s - failed to register metrics: %w", logPrefix, err)
	}

	s.reg = registry.NewRegistry(registry.NewRegistryParams{})
	s.disp = dispatcher.NewDispatcher(s.reg)
	s.disp.SetObserver(m)

	// Step 1: COMMS (optional)
	var publisher events.Publisher = &events.NoOpPublisher{}
	if cfg.COMMSURL != "" {
		nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
		}
		s.nc = nc
		publisher = events.NewCommsPublisher(nc, &events.CommsPublisherOpts{
			Subject: cfg.EventSubject,
			Origin:  s.origin,
		})
		s.reg.AddCheck("comms", func(context.Context) error {
			if !nc.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		})
	}

	// Step 2: message store backend
	backend, err := s.openStore(ctx)
	if err != nil {
		s.Shutdown(ctx)
		return nil, err
	}

	// Step 3: services
	s.caw = caw.New(caw.Options{
		PingInterval: cfg.CawPingInterval,
		Publisher:    publisher,
		Observer:     m,
	})
	if err := s.caw.Register(s.reg, ""); err != nil {
		s.Shutdown(ctx)
		return nil, fmt.Errorf("%s - failed to register caw: %w", logPrefix, err)
	}

	storeOpts := store.Options{Store: backend}
	if cfg.StoreEvents {
		storeOpts.Firer = s.caw
	}
	s.store = store.New(storeOpts)
	if err := s.store.Register(s.reg, ""); err != nil {
		s.Shutdown(ctx)
		return nil, fmt.Errorf("%s - failed to register store: %w", logPrefix, err)
	}

	if cfg.AuthEnabled {
		var providers []auth.Provider
		if cfg.AdminHash != "" {
			providers = append(providers, auth.NewStaticProvider(cfg.AdminUser, cfg.AdminHash))
		} else {
			slog.Warn(fmt.Sprintf("%s - AUTH_ENABLED without ADMIN_HASH, no provider can authenticate", logPrefix))
		}
		s.auth = auth.NewManager(auth.ManagerOptions{
			Secret:     cfg.SessionSecret,
			Expiration: cfg.SessionExpiration,
			Providers:  providers,
		})
		if err := s.auth.Register(s.reg); err != nil {
			s.Shutdown(ctx)
			return nil, fmt.Errorf("%s - failed to register security: %w", logPrefix, err)
		}
	}

	if err := s.reg.RegisterSelf(SelfServiceName); err != nil {
		s.Shutdown(ctx)
		return nil, fmt.Errorf("%s - failed to register %s: %w", logPrefix, SelfServiceName, err)
	}

	// Step 4: transports
	if s.nc != nil {
		s.relay = events.NewCommsRelay(s.nc, cfg.EventSubject, s.origin, s.caw)
		s.transport = NewCommsTransport(s.nc, cfg.RPCSubject, s.disp, cfg.RequestTimeout)
	}

	s.handler = NewHTTPHandler(HTTPOptions{
		Dispatcher:     s.disp,
		Registry:       s.reg,
		Manifest:       manifest.Load(cfg.ManifestFile),
		Auth:           s.auth,
		Metrics:        promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		MaxUploadBytes: cfg.MaxUploadBytes,
		HealthTimeout:  cfg.HealthCheckTimeout,
	})

	slog.Info(fmt.Sprintf("%s - Registered services: %v", logPrefix, s.reg.Services()))
	return s, nil
}

func (s *Server) openStore(ctx context.Context) (store.MessageStore, error) {
	if s.cfg.DatabaseURL == "" {
		mem := store.NewMemoryStore()
		s.reg.AddCheck("store", mem.Ping)
		slog.Info(fmt.Sprintf("%s - Using in-memory message store", logPrefix))
		return mem, nil
	}

	pool, err := db.NewPool(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	s.pool = pool

	if s.cfg.RunMigrations {
		migrations, err := db.LoadMigrationFiles(s.cfg.MigrationPath)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migrations); err != nil {
			return nil, fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}

	repo := db.NewRepository(pool)
	s.reg.AddCheck("database", repo.Ping)
	return repo, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Registry returns the operation registry so embedders can add services.
func (s *Server) Registry() *registry.Registry {
	return s.reg
}

// Store returns the message store service.
func (s *Server) Store() *store.Service {
	return s.store
}

// Caw returns the event channel manager.
func (s *Server) Caw() *caw.Caw {
	return s.caw
}

// Addr returns the bound HTTP address once Start has succeeded.
func (s *Server) Addr() string {
	return s.addr
}

// Start begins serving COMMS subjects and HTTP.
func (s *Server) Start(ctx context.Context) error {
	if s.relay != nil {
		if err := s.relay.Start(); err != nil {
			return err
		}
	}
	if s.transport != nil {
		if err := s.transport.Start(ctx); err != nil {
			return err
		}
	}

	if s.nc != nil {
		if err := s.nc.Flush(); err != nil {
			return fmt.Errorf("%s - failed to flush COMMS subscriptions: %w", logPrefix, err)
		}
	}

	addr := s.cfg.ListenAddr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%s - failed to listen on %s: %w", logPrefix, addr, err)
	}
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, ln.Addr()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - straca is ready", logPrefix))
	return nil
}

// Shutdown stops transports, closes push channels so streaming handlers
// return, then drains COMMS and closes the database pool.
func (s *Server) Shutdown(ctx context.Context) {
	if s.transport != nil {
		s.transport.Stop()
	}
	if s.relay != nil {
		s.relay.Stop()
	}
	if s.caw != nil {
		s.caw.Shutdown()
	}
	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
		}
		cancel()
	}
	commsutil.Drain(s.nc)
	if s.pool != nil {
		s.pool.Close()
	}
}
