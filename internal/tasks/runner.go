// Package tasks runs all periodic background work (sweeps, aggregation,
// health checks, alert evaluation) under one cancellation signal so shutdown
// is observable and loops finish their current iteration before exiting.
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/adaptivesql/pooltuner/internal/logger"
)

// Task is one named periodic job. Run is invoked once per tick with a context
// that is cancelled on shutdown.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
	// Immediate runs the task once at startup before the first tick.
	Immediate bool
}

type Runner struct {
	tasks   []Task
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewRunner() *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{ctx: ctx, cancel: cancel}
}

// Register adds a task. Must be called before Start.
func (r *Runner) Register(task Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		logger.Warnf("Task %s registered after runner start, ignoring", task.Name)
		return
	}
	r.tasks = append(r.tasks, task)
}

func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true

	for _, task := range r.tasks {
		r.wg.Add(1)
		go r.loop(task)
	}
	logger.Infof("Task runner started with %d tasks", len(r.tasks))
}

// Stop cancels all tasks and waits for in-flight iterations to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	logger.Info("Task runner stopped")
}

func (r *Runner) loop(task Task) {
	defer r.wg.Done()

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	if task.Immediate {
		task.Run(r.ctx)
	}

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			task.Run(r.ctx)
		}
	}
}
