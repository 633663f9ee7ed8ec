// Package lifecycle tracks per-connection usage metadata, enforces the
// monotonic connection state machine and schedules aging and staleness
// recycling sweeps.
package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adaptivesql/pooltuner/internal/events"
	"github.com/adaptivesql/pooltuner/internal/logger"
	"github.com/adaptivesql/pooltuner/pkg/config"
	"github.com/adaptivesql/pooltuner/pkg/models"
)

// maxTrackedContexts caps the per-connection context affinity list.
const maxTrackedContexts = 8

// WarmCache is the slice of the pool the sweeps act on: listing and evicting
// parked connections.
type WarmCache interface {
	WarmIDs() []string
	DiscardWarm(connID string) bool
}

// Optimizer owns the metadata registry keyed by connection ID. It observes
// every acquisition and release and runs the periodic recycling sweeps.
type Optimizer struct {
	cfg       config.LifecycleConfig
	strategy  ReuseStrategy
	publisher *events.Publisher
	analytics *Analytics

	cacheMu sync.RWMutex
	cache   WarmCache

	mu    sync.RWMutex
	conns map[string]*models.ConnectionMetadata

	totalRecycled atomic.Int64
}

func New(cfg config.LifecycleConfig, publisher *events.Publisher) (*Optimizer, error) {
	strategy, err := NewStrategy(cfg.ReuseStrategy)
	if err != nil {
		return nil, err
	}
	return &Optimizer{
		cfg:       cfg,
		strategy:  strategy,
		publisher: publisher,
		analytics: NewAnalytics(),
		conns:     make(map[string]*models.ConnectionMetadata),
	}, nil
}

// BindCache wires the pool's warm cache. Called once during startup wiring,
// after the pool is constructed with this optimizer as its usage observer.
func (o *Optimizer) BindCache(cache WarmCache) {
	o.cacheMu.Lock()
	o.cache = cache
	o.cacheMu.Unlock()
}

func (o *Optimizer) warmCache() WarmCache {
	o.cacheMu.RLock()
	defer o.cacheMu.RUnlock()
	return o.cache
}

func (o *Optimizer) Analytics() *Analytics {
	return o.analytics
}

func (o *Optimizer) Strategy() string {
	return o.strategy.Name()
}

// ConnectionCreated registers metadata for a freshly established physical
// connection.
func (o *Optimizer) ConnectionCreated(connID string) {
	now := time.Now()
	o.mu.Lock()
	o.conns[connID] = &models.ConnectionMetadata{
		ID:         connID,
		CreatedAt:  now,
		LastUsedAt: now,
		State:      models.StateCreating,
	}
	o.mu.Unlock()
}

// ConnectionAcquired moves the connection to Active and records acquisition
// timing.
func (o *Optimizer) ConnectionAcquired(connID, contextID string, acquireTime time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	meta, ok := o.conns[connID]
	if !ok {
		return
	}

	o.transitionLocked(meta, models.StateActive)
	meta.UsageCount++
	meta.LastUsedAt = time.Now()
	if acquireTime > meta.MaxAcquireTime {
		meta.MaxAcquireTime = acquireTime
	}
	// Running average over usage count.
	n := meta.UsageCount
	meta.AvgAcquireTime = time.Duration((int64(meta.AvgAcquireTime)*(n-1) + int64(acquireTime)) / n)

	if !meta.HasServed(contextID) {
		meta.Contexts = append(meta.Contexts, contextID)
		if len(meta.Contexts) > maxTrackedContexts {
			meta.Contexts = meta.Contexts[1:]
		}
	}
	meta.PerformanceScore = performanceScore(meta)
}

// SessionFinished moves the connection back to Idle and accumulates session
// statistics.
func (o *Optimizer) SessionFinished(connID, contextID string, duration time.Duration, failed bool) {
	o.mu.Lock()
	meta, ok := o.conns[connID]
	if ok {
		o.transitionLocked(meta, models.StateIdle)
		meta.LastUsedAt = time.Now()
		meta.TotalDuration += duration
		if failed {
			meta.ErrorCount++
		}
		meta.PerformanceScore = performanceScore(meta)
	}
	o.mu.Unlock()

	o.analytics.RecordSession(contextID, duration, failed)
}

// ConnectionDisposed finalizes the state machine and drops the registry entry.
func (o *Optimizer) ConnectionDisposed(connID, reason string) {
	o.mu.Lock()
	meta, ok := o.conns[connID]
	if ok {
		meta.RecycleReason = reason
		o.transitionLocked(meta, models.StateDisposing)
		o.transitionLocked(meta, models.StateDisposed)
		delete(o.conns, connID)
	}
	o.mu.Unlock()
}

// ChooseWarm filters candidates through the health predicate and delegates to
// the configured reuse strategy. Returning "" makes the pool create a fresh
// connection instead.
func (o *Optimizer) ChooseWarm(contextID string, candidateIDs []string) string {
	o.mu.RLock()
	healthy := make([]*models.ConnectionMetadata, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		meta, ok := o.conns[id]
		if !ok {
			// Unknown connection: never tracked, treat as serviceable.
			healthy = append(healthy, &models.ConnectionMetadata{ID: id, State: models.StateIdle})
			continue
		}
		if o.serviceableLocked(meta) {
			snapshot := *meta
			healthy = append(healthy, &snapshot)
		}
	}
	o.mu.RUnlock()

	return o.strategy.Choose(contextID, healthy)
}

// serviceableLocked is the reuse health predicate: only Idle or Aging
// connections within their error budget, idle timeout and service life may be
// handed out.
func (o *Optimizer) serviceableLocked(meta *models.ConnectionMetadata) bool {
	if meta.State != models.StateIdle && meta.State != models.StateAging {
		return false
	}
	if o.cfg.ErrorRatioLimit > 0 && meta.ErrorRatio() > o.cfg.ErrorRatioLimit {
		return false
	}
	// Past the idle timeout the connection belongs to RecycleIdle, not to a
	// caller; the sweep may simply not have reached it yet.
	if o.cfg.IdleTimeout > 0 && meta.IdleTime() >= o.cfg.IdleTimeout {
		return false
	}
	return meta.Age() < o.cfg.MaxConnectionAge
}

// AgingSweep marks connections past 80% of their maximum age as Aging and
// recycles any that exceeded it outright.
func (o *Optimizer) AgingSweep(ctx context.Context) {
	agingCutoff := time.Duration(float64(o.cfg.MaxConnectionAge) * 0.8)

	var expired []string
	o.mu.Lock()
	for id, meta := range o.conns {
		age := meta.Age()
		switch {
		case age >= o.cfg.MaxConnectionAge && meta.State != models.StateActive:
			o.transitionLocked(meta, models.StateStale)
			expired = append(expired, id)
		case age >= agingCutoff && meta.State == models.StateIdle:
			o.transitionLocked(meta, models.StateAging)
		}
	}
	o.mu.Unlock()

	for _, id := range expired {
		o.recycle(id, "max_age_exceeded")
	}
}

// StaleSweep recycles connections idle beyond the staleness threshold. Active
// connections are never touched.
func (o *Optimizer) StaleSweep(ctx context.Context) {
	var stale []string
	o.mu.Lock()
	for id, meta := range o.conns {
		if meta.State != models.StateIdle && meta.State != models.StateAging {
			continue
		}
		if meta.IdleTime() >= o.cfg.StaleThreshold {
			o.transitionLocked(meta, models.StateStale)
			stale = append(stale, id)
		}
	}
	o.mu.Unlock()

	for _, id := range stale {
		o.recycle(id, "stale")
	}
}

// RecycleIdle is the remediation entry point: it evicts every warmed
// connection that has been idle past the idle timeout and returns the count.
func (o *Optimizer) RecycleIdle() int {
	cache := o.warmCache()
	if cache == nil {
		return 0
	}

	var victims []string
	o.mu.RLock()
	for _, id := range cache.WarmIDs() {
		meta, ok := o.conns[id]
		if ok && meta.IdleTime() >= o.cfg.IdleTimeout {
			victims = append(victims, id)
		}
	}
	o.mu.RUnlock()

	recycled := 0
	for _, id := range victims {
		if o.recycle(id, "idle_remediation") {
			recycled++
		}
	}
	return recycled
}

// recycle walks a connection through Recycling/Disposing/Disposed, evicting it
// from the warm cache when it is parked there.
func (o *Optimizer) recycle(connID, reason string) bool {
	o.mu.Lock()
	meta, ok := o.conns[connID]
	if !ok {
		o.mu.Unlock()
		return false
	}
	o.transitionLocked(meta, models.StateRecycling)
	meta.RecycleReason = reason
	o.mu.Unlock()

	evicted := false
	if cache := o.warmCache(); cache != nil {
		evicted = cache.DiscardWarm(connID)
	}
	if !evicted {
		// Not parked: it is checked out or already gone. Disposal happens on
		// release via the session-error path or warm-probe failure; leave the
		// Recycling mark so it is never reused.
		logger.WithConnection(connID).Debugf("Recycle deferred, connection not parked (reason: %s)", reason)
		return false
	}

	o.ConnectionDisposed(connID, reason)
	o.totalRecycled.Add(1)
	if o.publisher != nil {
		o.publisher.ConnectionRecycled(connID, reason)
	}
	logger.WithConnection(connID).Infof("Connection recycled: %s", reason)
	return true
}

// transitionLocked applies a state change if the monotonic ordering allows it.
// Illegal transitions are dropped and logged at debug.
func (o *Optimizer) transitionLocked(meta *models.ConnectionMetadata, next models.ConnState) {
	if !meta.State.CanTransitionTo(next) {
		if meta.State != next {
			logger.WithConnection(meta.ID).Debugf(
				"Ignored state transition %s -> %s", meta.State, next,
			)
		}
		return
	}
	meta.State = next
}

// Connections snapshots all tracked metadata for the API.
func (o *Optimizer) Connections() []models.ConnectionMetadata {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]models.ConnectionMetadata, 0, len(o.conns))
	for _, meta := range o.conns {
		out = append(out, *meta)
	}
	return out
}

// TotalRecycled counts connections recycled by the sweeps and remediation.
func (o *Optimizer) TotalRecycled() int64 {
	return o.totalRecycled.Load()
}
