package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/mit-27/panora-sync/internal/catalog"
	"github.com/mit-27/panora-sync/internal/config"
	"github.com/mit-27/panora-sync/internal/fieldmapping"
	"github.com/mit-27/panora-sync/internal/handlers"
	"github.com/mit-27/panora-sync/internal/mapping"
	"github.com/mit-27/panora-sync/internal/orchestrator"
	"github.com/mit-27/panora-sync/internal/pipeline"
	"github.com/mit-27/panora-sync/internal/rabbitmq"
	"github.com/mit-27/panora-sync/internal/reconcile"
	"github.com/mit-27/panora-sync/internal/routes"
	"github.com/mit-27/panora-sync/internal/store"
	"github.com/mit-27/panora-sync/internal/webhook"
)

// Service holds all application dependencies
type Service struct {
	Config       *config.Config
	Logger       *zap.Logger
	Store        store.Store
	Queue        webhook.Queue
	RMQ          *rabbitmq.Connection
	Worker       *webhook.Worker
	Dispatcher   *webhook.Dispatcher
	Sweeper      *webhook.Sweeper
	Orchestrator *orchestrator.Orchestrator
	Scheduler    *orchestrator.Scheduler
	Jobs         []catalog.Entry
	App          *fiber.App

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New opens the store and queue and builds every component. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	s := &Service{Config: cfg, Logger: logger, Store: st}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if err := s.openQueue(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	deliverer := webhook.NewDeliverer(cfg.Webhook.HTTPTimeout, cfg.Webhook.MaxResponseBodySize, logger.Named("delivery"))
	s.Worker = webhook.NewWorker(st, s.Queue, deliverer, logger.Named("worker"))
	s.Dispatcher = webhook.NewDispatcher(st, s.Queue, s.Worker, cfg.Webhook.MaxAttempts, logger.Named("dispatcher"))
	s.Sweeper = webhook.NewSweeper(st, s.Queue, cfg.Webhook.SweepInterval, cfg.Webhook.SweepGrace, logger.Named("sweeper"))

	fields := fieldmapping.NewService(st, cfg.Sync.EAVMode, logger.Named("fieldmapping"))
	deps := pipeline.Deps{
		Store:        st,
		Adapters:     catalog.NewAdapterRegistry(nil, logger.Named("adapter")),
		Fields:       fields,
		Reconciler:   reconcile.NewReconciler(st, fields, logger.Named("reconcile")),
		Webhooks:     s.Dispatcher,
		FetchTimeout: cfg.Sync.FetchTimeout,
		Logger:       logger.Named("sync"),
	}
	s.Jobs = catalog.Jobs(catalog.NewMappers(mapping.NewStoreReferences(st, logger.Named("references"))), deps)

	jobs := make([]pipeline.Job, 0, len(s.Jobs))
	schedules := make([]orchestrator.Schedule, 0, len(s.Jobs))
	for _, entry := range s.Jobs {
		jobs = append(jobs, entry.Job)
		schedules = append(schedules, orchestrator.Schedule{
			Vertical: entry.Job.Vertical(),
			Object:   entry.Job.Object(),
			Period:   entry.Period,
		})
	}
	s.Orchestrator = orchestrator.New(orchestrator.Config{
		Tenants:        st,
		Credentials:    orchestrator.NewStoreCredentials(st),
		Jobs:           jobs,
		Providers:      catalog.Providers,
		MaxConcurrency: cfg.Sync.MaxConcurrency,
		Logger:         logger.Named("orchestrator"),
	})
	s.Scheduler = orchestrator.NewScheduler(s.Orchestrator, schedules, cfg.Sync.RunOnStart, logger.Named("scheduler"))

	s.App = s.newApp()
	return s, nil
}

func (s *Service) openQueue(ctx context.Context) error {
	switch s.Config.Queue.Backend {
	case config.QueueBackendMemory:
		s.Logger.Info("Using in-memory delivery queue")
		s.Queue = webhook.NewMemoryQueue(0, s.Logger.Named("queue"))
		return nil
	case config.QueueBackendRabbitMQ:
		s.RMQ = rabbitmq.NewConnection(&s.Config.RabbitMQ, s.Logger.Named("rabbitmq"))
		s.Queue = webhook.NewAMQPQueue(s.RMQ, &s.Config.Webhook, s.Logger.Named("queue"))
		if err := s.RMQ.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported queue backend: %s", s.Config.Queue.Backend)
	}
}

func (s *Service) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Panora Sync",
		ServerHeader: "Fiber",
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	routes.SetupRoutes(app, routes.Handlers{
		Health:   handlers.NewHealthHandler(s.Store, s.Queue),
		Sync:     handlers.NewSyncHandler(s.ctx, s.Orchestrator, &s.wg, s.Logger.Named("trigger")),
		Attempts: handlers.NewAttemptsHandler(s.Store, s.Logger.Named("attempts")),
	})
	return app
}

// Start launches the delivery worker, the sweeper and, when enabled, the sync scheduler
func (s *Service) Start() {
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.Worker.Run(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.Logger.Error("Webhook worker stopped with error", zap.Error(err))
		}
	}()
	go func() {
		defer s.wg.Done()
		s.Sweeper.Run(s.ctx)
	}()

	if s.Config.Sync.Enabled {
		s.Scheduler.Start(s.ctx)
	} else {
		s.Logger.Info("Scheduled sync disabled")
	}
}

// RunPass runs one sync pass synchronously
func (s *Service) RunPass(ctx context.Context, req orchestrator.PassRequest) orchestrator.PassReport {
	return s.Orchestrator.RunPass(ctx, req)
}

// Stop shuts the HTTP server and background loops down, then releases the queue and store
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		if err := s.App.Shutdown(); err != nil {
			s.Logger.Error("Error during server shutdown", zap.Error(err))
		}

		s.cancel()
		s.Scheduler.Wait()
		// worker, sweeper and manual sync passes
		s.wg.Wait()

		if mq, ok := s.Queue.(*webhook.MemoryQueue); ok {
			mq.Close()
		}
		if s.RMQ != nil {
			s.RMQ.Close()
		}
		if err := s.Store.Close(); err != nil {
			s.Logger.Error("Error closing store", zap.Error(err))
		}
		s.Logger.Info("Service stopped")
	})
}
