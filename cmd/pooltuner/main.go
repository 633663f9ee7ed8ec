package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/adaptivesql/pooltuner/api"
	"github.com/adaptivesql/pooltuner/internal/alerting"
	"github.com/adaptivesql/pooltuner/internal/auth"
	"github.com/adaptivesql/pooltuner/internal/events"
	"github.com/adaptivesql/pooltuner/internal/health"
	"github.com/adaptivesql/pooltuner/internal/lifecycle"
	"github.com/adaptivesql/pooltuner/internal/logger"
	"github.com/adaptivesql/pooltuner/internal/metrics"
	"github.com/adaptivesql/pooltuner/internal/pool"
	"github.com/adaptivesql/pooltuner/internal/simulator"
	"github.com/adaptivesql/pooltuner/internal/tasks"
	"github.com/adaptivesql/pooltuner/pkg/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	simulate := flag.Bool("simulate", false, "use the simulated database engine instead of a real one")
	hashPassword := flag.String("hash-password", "", "print a bcrypt hash for the given password and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		fmt.Println(hash)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Setup(cfg.App.LogLevel, cfg.App.Mode)
	logger.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Mode)

	bus := events.NewEventBus(cfg.Events.BufferSize)
	recent := events.NewRecentStore(cfg.Events.RecentLimit, bus.SubscribeAll())
	recent.Start()

	optimizer, err := lifecycle.New(cfg.Lifecycle, events.NewPublisher(bus, "lifecycle"))
	if err != nil {
		return fmt.Errorf("failed to build lifecycle optimizer: %w", err)
	}
	collector := metrics.NewCollector(cfg.Metrics)
	monitor := health.NewMonitor(cfg.Health, events.NewPublisher(bus, "health"), cfg.Database.Addr())

	var factory pool.EngineFactory
	if *simulate {
		logger.Info("Using simulated database engine")
		factory = simulator.NewFactory(simulator.NewSharedConfig(simulator.EngineConfig{}))
	} else {
		factory = pool.NewSQLEngineFactory(cfg.Database.DSN(), cfg.Pool.WarmCacheSize, cfg.Lifecycle.IdleTimeout, cfg.Database.PingTimeout)
	}

	p, err := pool.New(cfg.Pool, factory, events.NewPublisher(bus, "pool"), optimizer, monitor, collector)
	if err != nil {
		return fmt.Errorf("failed to build pool: %w", err)
	}
	optimizer.BindCache(p)
	monitor.BindPool(p)

	logger.Infof("Pool ready: size=%d overflow=%d strategy=%s",
		cfg.Pool.BasePoolSize, cfg.Pool.BaseOverflow, optimizer.Strategy())

	autoscaler := pool.NewAutoscaler(p, cfg.Pool)

	dispatcher := alerting.NewDispatcher(p, optimizer, cfg.Pool.MaxPoolSize/4)
	engine := alerting.NewEngine(cfg.Alerting, events.NewPublisher(bus, "alerting"),
		alerting.Variables(p, monitor, collector), dispatcher)
	for _, rule := range alerting.DefaultRules(cfg.Alerting) {
		if err := engine.AddRule(rule); err != nil {
			return fmt.Errorf("failed to register default alert rule %q: %w", rule.Name, err)
		}
	}
	engine.SetRunning(true)

	runner := tasks.NewRunner()
	runner.Register(tasks.Task{Name: "autoscaler", Interval: cfg.Pool.ScaleTick, Run: autoscaler.Tick})
	runner.Register(tasks.Task{Name: "aging-sweep", Interval: cfg.Lifecycle.AgingSweepTick, Run: optimizer.AgingSweep})
	runner.Register(tasks.Task{Name: "stale-sweep", Interval: cfg.Lifecycle.StaleSweepTick, Run: optimizer.StaleSweep})
	runner.Register(tasks.Task{Name: "utilization-sample", Interval: cfg.Lifecycle.AnalyticsTick, Run: func(ctx context.Context) {
		optimizer.Analytics().ObserveUtilization(p.Utilization())
	}})
	runner.Register(tasks.Task{Name: "health-check", Interval: cfg.Health.CheckTick, Run: monitor.Tick})
	runner.Register(tasks.Task{Name: "metric-aggregation", Interval: cfg.Metrics.AggregationWindow, Run: collector.Aggregate})
	runner.Register(tasks.Task{Name: "predictive-check", Interval: cfg.Health.PredictiveTick, Run: monitor.Predictor().Tick})
	runner.Register(tasks.Task{Name: "certificate-check", Interval: cfg.Health.CertificateCheckTick, Run: monitor.Certificates().Check, Immediate: true})
	runner.Register(tasks.Task{Name: "alert-evaluation", Interval: cfg.Alerting.EvaluationTick, Run: engine.EvaluateTick})
	runner.Register(tasks.Task{Name: "alert-resolve", Interval: cfg.Alerting.ResolveTick, Run: engine.ResolveTick})
	runner.Start()

	if cfg.Exporter.Enabled {
		exporter := metrics.NewExporter(p, monitor, collector)
		exporter.StartServer(cfg.Exporter.Port)
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	var server *api.Server
	if cfg.API.Enabled {
		server = api.NewServer(cfg.API, cfg.WebSocket, cfg.App.Mode, api.Services{
			Pool:         p,
			PoolLimits:   cfg.Pool,
			Lifecycle:    optimizer,
			Workload:     optimizer.Analytics(),
			Health:       monitor,
			Remediations: monitor.Remediator(),
			Metrics:      collector,
			Alerts:       engine,
			Events:       recent,
			EventStream:  bus.SubscribeAll(),
		})
		go func() {
			logger.Infof("API server listening on port %d", cfg.API.Port)
			if err := server.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()
	}

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdownChan:
		logger.Infof("Received signal %v, shutting down", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("API shutdown error: %v", err)
		}
	}
	runner.Stop()
	engine.SetRunning(false)
	if err := p.Close(); err != nil {
		logger.Errorf("Pool close error: %v", err)
	}
	recent.Stop()
	bus.Close()

	logger.Info("Shutdown complete")
	return nil
}
