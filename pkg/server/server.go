package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"

	"github.com/opencomply/comply-server/pkg/assets"
	"github.com/opencomply/comply-server/pkg/framework"
	"github.com/opencomply/comply-server/pkg/jobs"
	"github.com/opencomply/comply-server/pkg/project"
	"github.com/opencomply/comply-server/pkg/tenancy"
	"github.com/opencomply/comply-server/pkg/tracking"
)

// Server wires the stores, the sync queue, and the HTTP routes into a
// single process.
type Server struct {
	router chi.Router
	db     *gorm.DB
	logger *slog.Logger

	frameworks *framework.Store
	projects   *project.Store
	links      *tracking.LinkStore
	aggregator *tracking.Aggregator
	updater    *tracking.Updater
	directory  tracking.UserDirectory

	tokenCipher *assets.TokenCipher
	configs     *assets.ConfigStore
	records     *assets.RecordStore
	history     *assets.HistoryStore
	reconciler  *assets.Reconciler
	newAPI      assets.APIFactory

	jobConfig *jobs.JobConfig
	jobStore  *jobs.JobStore
	queue     *jobs.Queue
	worker    *jobs.Worker

	tenancyMode tenancy.Mode
	corsEnabled bool
	startedAt   time.Time
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCORS enables permissive CORS handling for browser clients.
func WithCORS() ServerOption {
	return func(s *Server) {
		s.corsEnabled = true
	}
}

// WithTenancyMode sets the tenancy mode. Defaults to ModeSingle.
func WithTenancyMode(mode tenancy.Mode) ServerOption {
	return func(s *Server) {
		s.tenancyMode = mode
	}
}

// WithSyncWorker enables the background sync queue with the given
// configuration.
func WithSyncWorker(cfg *jobs.JobConfig) ServerOption {
	return func(s *Server) {
		s.jobConfig = cfg
	}
}

// WithAPIFactory overrides how Assets API clients are built. Tests use this
// to substitute fakes.
func WithAPIFactory(factory assets.APIFactory) ServerOption {
	return func(s *Server) {
		s.newAPI = factory
	}
}

// WithUserDirectory sets the directory used to resolve participant names on
// implementation records. Defaults to NoopDirectory.
func WithUserDirectory(directory tracking.UserDirectory) ServerOption {
	return func(s *Server) {
		s.directory = directory
	}
}

// NewServer creates a server over the given database. The token cipher is
// required because the assets config store cannot operate without it.
func NewServer(db *gorm.DB, cipher *assets.TokenCipher, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		db:          db,
		logger:      logger,
		tokenCipher: cipher,
		directory:   tracking.NoopDirectory{},
		tenancyMode: tenancy.ModeSingle,
		startedAt:   time.Now(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Init builds the stores and migrates the schema.
func (s *Server) Init(ctx context.Context) error {
	s.frameworks = framework.NewStore(s.db)
	s.projects = project.NewStore(s.db)
	s.links = tracking.NewLinkStore(s.db, s.frameworks, s.projects)
	s.aggregator = tracking.NewAggregator(s.db, s.frameworks, s.links)
	s.updater = tracking.NewUpdater(s.db)

	s.configs = assets.NewConfigStore(s.db, s.tokenCipher)
	s.records = assets.NewRecordStore(s.db)
	s.history = assets.NewHistoryStore(s.db)
	writer := assets.NewWriter(s.db, s.projects)
	s.reconciler = assets.NewReconciler(s.db, s.configs, s.records, s.history, writer, s.newAPI, s.logger)

	migrations := []func() error{
		s.frameworks.AutoMigrate,
		s.projects.AutoMigrate,
		s.links.AutoMigrate,
		s.configs.AutoMigrate,
		s.records.AutoMigrate,
		s.history.AutoMigrate,
	}

	if s.jobConfig != nil && s.jobConfig.Enabled {
		s.jobStore = jobs.NewJobStore(s.db)
		migrations = append(migrations, s.jobStore.AutoMigrate)
		s.queue = jobs.NewQueue(s.jobStore, s.configs)
		s.worker = jobs.NewWorker(s.jobStore, s.configs, s.reconciler, s.jobConfig, s.logger)
	}

	for _, migrate := range migrations {
		if err := migrate(); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}

	return nil
}

// Start launches background workers. It returns immediately; the worker
// stops when ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	if s.worker != nil {
		go s.worker.Run(ctx)
	}
}

// MountRoutes creates the HTTP router with all routes mounted.
func (s *Server) MountRoutes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if s.corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"https://*", "http://*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", tenancy.TenantHeader},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(tenancy.NewMiddleware(s.tenancyMode))

		api.Mount("/frameworks", framework.Router(s.frameworks, s.links))
		api.Mount("/projects/{projectId}/frameworks", tracking.ProjectFrameworksRouter(s.links, s.aggregator))
		api.Mount("/implementations", tracking.Router(s.updater, s.directory))

		var trigger assets.SyncTrigger = noQueue{}
		if s.queue != nil {
			trigger = s.queue
		}
		api.Mount("/assets", assets.Router(s.configs, s.history, trigger, s.newAPI))
	})

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readyHandler)

	s.router = r
	return r
}

// Router returns the underlying chi.Router. Nil before MountRoutes.
func (s *Server) Router() chi.Router {
	return s.router
}

// noQueue rejects sync triggers when the job system is disabled.
type noQueue struct{}

func (noQueue) Trigger(ctx context.Context, tenant tenancy.TenantID) (string, bool, error) {
	return "", false, fmt.Errorf("sync worker is disabled")
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	uptime := time.Since(s.startedAt).Round(time.Second).String()
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "alive",
		"uptime": uptime,
	})
}

// readyHandler reports DB connectivity.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	dbStatus := map[string]string{"status": "up"}
	ready := true

	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus["status"] = "down"
		dbStatus["error"] = err.Error()
		ready = false
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus["status"] = "down"
		dbStatus["error"] = err.Error()
		ready = false
	}

	status := "ready"
	code := http.StatusOK
	if !ready {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":     status,
		"components": map[string]any{"database": dbStatus},
	})
}
