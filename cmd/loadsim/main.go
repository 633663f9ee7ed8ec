package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/adaptivesql/pooltuner/internal/events"
	"github.com/adaptivesql/pooltuner/internal/health"
	"github.com/adaptivesql/pooltuner/internal/lifecycle"
	"github.com/adaptivesql/pooltuner/internal/logger"
	"github.com/adaptivesql/pooltuner/internal/metrics"
	"github.com/adaptivesql/pooltuner/internal/pool"
	"github.com/adaptivesql/pooltuner/internal/simulator"
	"github.com/adaptivesql/pooltuner/internal/tasks"
	"github.com/adaptivesql/pooltuner/pkg/config"
	"github.com/adaptivesql/pooltuner/pkg/models"
)

// loadsim drives a simulated engine through the full tuning loop: a load
// pattern generates sessions, the autoscaler reacts to utilization and the
// health monitor reacts to injected transport failures.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	patternName := flag.String("pattern", "burst", "load pattern: steady, daily, random, burst, ramp")
	baseRate := flag.Float64("rate", 20, "base requests per second")
	logLevel := flag.String("log-level", "info", "log level")
	failurePhases := flag.Bool("failure-phases", true, "inject transport failure phases")
	flag.Parse()

	logger.Setup(*logLevel, "development")

	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pattern := simulator.ParsePattern(*patternName)
	logger.Infof("Starting load simulation: pattern=%s base_rate=%.1f/s", pattern.Name(), *baseRate)

	bus := events.NewEventBus(cfg.Events.BufferSize)
	go func() {
		for event := range bus.SubscribeAll() {
			logger.Infof("[EVENT] %s: %s (component: %s, severity: %s)",
				event.Type, event.Message, event.Component, event.Severity)
		}
	}()

	optimizer, err := lifecycle.New(cfg.Lifecycle, events.NewPublisher(bus, "lifecycle"))
	if err != nil {
		return fmt.Errorf("failed to build lifecycle optimizer: %w", err)
	}
	collector := metrics.NewCollector(cfg.Metrics)
	monitor := health.NewMonitor(cfg.Health, events.NewPublisher(bus, "health"), "localhost:5432")

	shared := simulator.NewSharedConfig(simulator.EngineConfig{
		BaseLatency:   20 * time.Millisecond,
		LatencyJitter: 15 * time.Millisecond,
		PingLatency:   2 * time.Millisecond,
	})

	p, err := pool.New(cfg.Pool, simulator.NewFactory(shared), events.NewPublisher(bus, "pool"),
		optimizer, monitor, collector)
	if err != nil {
		return fmt.Errorf("failed to build pool: %w", err)
	}
	optimizer.BindCache(p)
	monitor.BindPool(p)

	autoscaler := pool.NewAutoscaler(p, cfg.Pool)

	runner := tasks.NewRunner()
	runner.Register(tasks.Task{Name: "autoscaler", Interval: cfg.Pool.ScaleTick, Run: autoscaler.Tick})
	runner.Register(tasks.Task{Name: "aging-sweep", Interval: cfg.Lifecycle.AgingSweepTick, Run: optimizer.AgingSweep})
	runner.Register(tasks.Task{Name: "stale-sweep", Interval: cfg.Lifecycle.StaleSweepTick, Run: optimizer.StaleSweep})
	runner.Register(tasks.Task{Name: "health-check", Interval: cfg.Health.CheckTick, Run: monitor.Tick})
	runner.Register(tasks.Task{Name: "metric-aggregation", Interval: cfg.Metrics.AggregationWindow, Run: collector.Aggregate})
	runner.Register(tasks.Task{Name: "utilization-sample", Interval: cfg.Metrics.CollectionInterval, Run: func(ctx context.Context) {
		optimizer.Analytics().ObserveUtilization(p.Utilization())
	}})
	runner.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		driveLoad(ctx, p, pattern, *baseRate)
	}()

	if *failurePhases {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runFailurePhases(ctx, shared)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		reportStats(ctx, p, monitor, optimizer)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down load simulation")
	cancel()
	wg.Wait()
	runner.Stop()
	if err := p.Close(); err != nil {
		logger.Errorf("Pool close error: %v", err)
	}
	bus.Close()
	return nil
}

// driveLoad fires sessions at the rate the pattern dictates. Each session
// holds its connection for a short, jittered duration.
func driveLoad(ctx context.Context, p *pool.Pool, pattern simulator.LoadPattern, baseRate float64) {
	contexts := []string{"web", "api", "worker", "reporting"}

	for {
		rate := pattern.Rate(baseRate)
		if rate < 0.1 {
			rate = 0.1
		}
		interval := time.Duration(float64(time.Second) / rate)

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		contextID := contexts[rand.Intn(len(contexts))]
		priority := models.PriorityNormal
		if rand.Float64() < 0.1 {
			priority = models.PriorityHigh
		}

		go func() {
			err := p.Run(ctx, contextID, priority, func(tx pool.Tx) error {
				hold := 10*time.Millisecond + time.Duration(rand.Int63n(int64(80*time.Millisecond)))
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(hold):
				}
				return nil
			})
			if err != nil && ctx.Err() == nil {
				logger.WithContextID(contextID).Debugf("Session failed: %v", err)
			}
		}()
	}
}

// runFailurePhases cycles the injected failure rate so remediation and
// emergency scaling paths get exercised.
func runFailurePhases(ctx context.Context, shared *simulator.SharedConfig) {
	phases := []struct {
		name     string
		rate     float64
		duration time.Duration
	}{
		{"normal", 0.0, 2 * time.Minute},
		{"degraded", 0.12, 90 * time.Second},
		{"critical", 0.35, 45 * time.Second},
		{"recovery", 0.02, 90 * time.Second},
	}

	for {
		for _, phase := range phases {
			logger.Infof("=== Failure phase: %s (rate %.0f%%, %s) ===",
				phase.name, phase.rate*100, phase.duration)
			shared.SetFailureRate(phase.rate)

			select {
			case <-ctx.Done():
				return
			case <-time.After(phase.duration):
			}
		}
	}
}

func reportStats(ctx context.Context, p *pool.Pool, monitor *health.Monitor, optimizer *lifecycle.Optimizer) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := p.Stats()
			logger.Infof(
				"pool size=%d overflow=%d checked_out=%d warmed=%d util=%.2f p95=%s health=%s recycled=%d",
				stats.Size, stats.Overflow, stats.CheckedOut, stats.WarmedConnections,
				stats.Utilization, stats.AcquireP95, monitor.Status(), optimizer.TotalRecycled(),
			)
		}
	}
}
