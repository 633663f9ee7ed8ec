// Package pool implements the self-tuning connection pool core: bounded
// acquire/release with warmed-connection reuse, retry with engine recreation
// on transport failures, and single-writer capacity scaling.
package pool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adaptivesql/pooltuner/internal/events"
	"github.com/adaptivesql/pooltuner/internal/logger"
	"github.com/adaptivesql/pooltuner/internal/resilience"
	"github.com/adaptivesql/pooltuner/pkg/config"
	"github.com/adaptivesql/pooltuner/pkg/models"
)

var (
	ErrPoolClosed    = errors.New("pool is closed")
	ErrPoolExhausted = errors.New("pool exhausted: no slot available within acquire timeout")
	ErrScaleInFlight = errors.New("scaling operation already in flight")
	ErrAcquireFailed = errors.New("failed to establish connection")
)

// UsageObserver receives per-connection lifecycle callbacks. Implemented by
// the lifecycle optimizer.
type UsageObserver interface {
	ConnectionCreated(connID string)
	ConnectionAcquired(connID, contextID string, acquireTime time.Duration)
	SessionFinished(connID, contextID string, duration time.Duration, failed bool)
	ConnectionDisposed(connID, reason string)
	// ChooseWarm ranks warmed candidates for contextID and returns the chosen
	// connection ID, or "" when no candidate passes the health predicate.
	ChooseWarm(contextID string, candidateIDs []string) string
}

// AttemptRecorder receives every physical connection attempt outcome.
// Implemented by the health monitor.
type AttemptRecorder interface {
	RecordAttempt(contextID string, success bool, handshake time.Duration, errType models.SSLErrorType)
}

// MetricRecorder receives typed performance readings. Implemented by the
// metrics collector.
type MetricRecorder interface {
	Record(kind models.MetricKind, value float64, contextID string, tags map[string]string)
}

type warmConn struct {
	id      string
	conn    Conn
	addedAt time.Time
}

type Pool struct {
	cfg       config.PoolConfig
	factory   EngineFactory
	breaker   *resilience.CircuitBreaker
	publisher *events.Publisher

	usage    UsageObserver
	attempts AttemptRecorder
	metrics  MetricRecorder

	mu       sync.RWMutex // guards engine, size, overflow, warm, closed
	engine   Engine
	size     int
	overflow int
	warm     []warmConn
	closed   bool

	scaleMu sync.Mutex // single-writer scaling lock
	scaling atomic.Bool

	slots   *slots
	history *scalingRing

	// Acquisition timing ring for percentile reporting.
	timesMu      sync.Mutex
	acquireTimes []time.Duration
	timesHead    int
	timesCount   int

	workload atomic.Value // models.WorkloadPattern

	totalAcquisitions  atomic.Int64
	totalReleases      atomic.Int64
	warmHits           atomic.Int64
	createFailures     atomic.Int64
	exhaustionErrors   atomic.Int64
	engineRebuilds     atomic.Int64
	emergencyRequests  atomic.Int64
	emergencyConsumed  atomic.Int64
	lastScaledAt       atomic.Value // time.Time
	lastScaleReason    atomic.Value // string
}

// New builds the pool and validates the initial engine with a probe.
func New(cfg config.PoolConfig, factory EngineFactory, publisher *events.Publisher,
	usage UsageObserver, attempts AttemptRecorder, metrics MetricRecorder) (*Pool, error) {

	engine, err := factory(cfg.BasePoolSize, cfg.BaseOverflow)
	if err != nil {
		return nil, fmt.Errorf("failed to build initial engine: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := engine.Ping(ctx); err != nil {
		engine.Close()
		return nil, fmt.Errorf("initial engine probe failed: %w", err)
	}

	p := &Pool{
		cfg:       cfg,
		factory:   factory,
		publisher: publisher,
		usage:     usage,
		attempts:  attempts,
		metrics:   metrics,
		engine:    engine,
		size:      cfg.BasePoolSize,
		overflow:  cfg.BaseOverflow,
		slots:     newSlots(cfg.BasePoolSize + cfg.BaseOverflow),
		history:   newScalingRing(cfg.ScalingHistorySize),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:        "engine-connect",
			MaxFailures: 5,
		}),
		acquireTimes: make([]time.Duration, 512),
	}
	p.workload.Store(models.WorkloadLow)

	logger.WithComponent("pool").Infof(
		"Pool initialized: size=%d overflow=%d", cfg.BasePoolSize, cfg.BaseOverflow,
	)
	return p, nil
}

// Acquire checks a connection out of the pool and opens a transaction scoped
// to the returned handle. High priority skips the warmed cache.
func (p *Pool) Acquire(ctx context.Context, contextID string, priority models.Priority) (*Handle, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrPoolClosed
	}

	start := time.Now()

	if err := p.slots.acquire(ctx, p.cfg.AcquireTimeout); err != nil {
		if errors.Is(err, ErrPoolExhausted) {
			p.exhaustionErrors.Add(1)
			p.record(models.MetricErrorRate, 1, contextID, map[string]string{"error": "pool_exhausted"})
		}
		return nil, err
	}

	conn, connID, warmed, err := p.obtainConn(ctx, contextID, priority)
	if err != nil {
		p.slots.release()
		return nil, err
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Close()
		p.slots.release()
		if p.usage != nil && warmed {
			p.usage.ConnectionDisposed(connID, "begin_failed")
		}
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	acquireTime := time.Since(start)
	p.totalAcquisitions.Add(1)
	if warmed {
		p.warmHits.Add(1)
	}
	p.recordAcquireTime(acquireTime)
	p.record(models.MetricLatency, float64(acquireTime.Milliseconds()), contextID, nil)
	p.record(models.MetricUtilization, p.utilization(), "", nil)
	if p.usage != nil {
		p.usage.ConnectionAcquired(connID, contextID, acquireTime)
	}

	return &Handle{
		pool:      p,
		conn:      conn,
		connID:    connID,
		contextID: contextID,
		tx:        tx,
		start:     time.Now(),
	}, nil
}

// obtainConn tries the warmed cache first (unless high priority), then falls
// back to creating a fresh physical connection with retries.
func (p *Pool) obtainConn(ctx context.Context, contextID string, priority models.Priority) (Conn, string, bool, error) {
	if priority != models.PriorityHigh {
		if conn, id, ok := p.takeWarm(ctx, contextID); ok {
			return conn, id, true, nil
		}
	}
	conn, id, err := p.createConn(ctx, contextID)
	return conn, id, false, err
}

func (p *Pool) takeWarm(ctx context.Context, contextID string) (Conn, string, bool) {
	p.mu.Lock()
	if len(p.warm) == 0 {
		p.mu.Unlock()
		return nil, "", false
	}
	ids := make([]string, len(p.warm))
	for i, w := range p.warm {
		ids[i] = w.id
	}

	chosen := ""
	if p.usage != nil {
		chosen = p.usage.ChooseWarm(contextID, ids)
	} else {
		chosen = ids[0]
	}
	if chosen == "" {
		p.mu.Unlock()
		return nil, "", false
	}

	var picked warmConn
	for i, w := range p.warm {
		if w.id == chosen {
			picked = w
			p.warm = append(p.warm[:i], p.warm[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	if picked.conn == nil {
		return nil, "", false
	}

	// Cheap liveness probe; a dead warmed connection is discarded and we fall
	// through to fresh creation.
	probeCtx, cancel := context.WithTimeout(ctx, time.Second)
	err := picked.conn.Ping(probeCtx)
	cancel()
	if err != nil {
		picked.conn.Close()
		if p.usage != nil {
			p.usage.ConnectionDisposed(picked.id, "warm_probe_failed")
		}
		logger.WithConnection(picked.id).Debug("Warmed connection failed probe, discarded")
		return nil, "", false
	}

	return picked.conn, picked.id, true
}

// createConn establishes a fresh physical connection with bounded exponential
// backoff. After the second failure the engine is disposed and recreated to
// force a clean transport state.
func (p *Pool) createConn(ctx context.Context, contextID string) (Conn, string, error) {
	var lastErr error

	for attempt := 1; attempt <= p.cfg.MaxRetryAttempts; attempt++ {
		p.mu.RLock()
		engine := p.engine
		p.mu.RUnlock()

		handshakeStart := time.Now()
		var conn Conn
		err := p.breaker.Execute(func() error {
			var connectErr error
			conn, connectErr = engine.Connect(ctx)
			return connectErr
		})
		handshake := time.Since(handshakeStart)

		if err == nil {
			if p.attempts != nil {
				p.attempts.RecordAttempt(contextID, true, handshake, models.SSLErrorNone)
			}
			connID := models.NewUUID()
			if p.usage != nil {
				p.usage.ConnectionCreated(connID)
			}
			return conn, connID, nil
		}

		lastErr = err
		p.createFailures.Add(1)
		if p.attempts != nil {
			p.attempts.RecordAttempt(contextID, false, handshake, classifyConnError(err))
		}
		logger.WithContextID(contextID).Warnf(
			"Connection attempt %d/%d failed: %v", attempt, p.cfg.MaxRetryAttempts, err,
		)

		if attempt == 2 {
			// Two straight transport failures point at a poisoned engine;
			// rebuild it and request emergency capacity from the autoscaler.
			if refreshErr := p.RefreshEngine("transport_failures"); refreshErr != nil {
				logger.WithComponent("pool").Errorf("Engine refresh failed: %v", refreshErr)
			}
			p.emergencyRequests.Add(1)
		}

		if attempt < p.cfg.MaxRetryAttempts {
			backoff := time.Duration(attempt) * p.cfg.RetryBackoffBase
			jitter := time.Duration(rand.Int63n(int64(p.cfg.RetryBackoffBase) / 2))
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return nil, "", ctx.Err()
			}
		}
	}

	return nil, "", fmt.Errorf("%w after %d attempts: %v", ErrAcquireFailed, p.cfg.MaxRetryAttempts, lastErr)
}

// release returns the physical connection after the handle closed its
// transaction. Healthy connections are parked in the warmed cache when there
// is room.
func (p *Pool) release(h *Handle, failed bool) {
	duration := time.Since(h.start)
	p.totalReleases.Add(1)

	if p.usage != nil {
		p.usage.SessionFinished(h.connID, h.contextID, duration, failed)
	}
	p.record(models.MetricThroughput, 1, h.contextID, nil)

	parked := false
	if !failed {
		p.mu.Lock()
		if !p.closed && len(p.warm) < p.cfg.WarmCacheSize {
			p.warm = append(p.warm, warmConn{id: h.connID, conn: h.conn, addedAt: time.Now()})
			parked = true
		}
		p.mu.Unlock()
	}

	if !parked {
		h.conn.Close()
		if p.usage != nil {
			reason := "released"
			if failed {
				reason = "session_error"
			}
			p.usage.ConnectionDisposed(h.connID, reason)
		}
	}

	p.slots.release()
}

// Scale rebuilds the engine with new bounds. The new engine is probed before
// the old one is disposed so the pool never has a zero-capacity window. A
// scale request arriving while one is in flight is dropped.
func (p *Pool) Scale(targetSize, targetOverflow int, reason string) error {
	if !p.scaleMu.TryLock() {
		logger.WithComponent("pool").Debugf("Scale request dropped, one in flight (reason: %s)", reason)
		return ErrScaleInFlight
	}
	defer p.scaleMu.Unlock()
	p.scaling.Store(true)
	defer p.scaling.Store(false)

	targetSize = clamp(targetSize, p.cfg.BasePoolSize, p.cfg.MaxPoolSize)
	targetOverflow = clamp(targetOverflow, p.cfg.BaseOverflow, p.cfg.MaxOverflow)

	p.mu.RLock()
	oldSize, oldOverflow := p.size, p.overflow
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrPoolClosed
	}
	if targetSize == oldSize && targetOverflow == oldOverflow {
		return nil
	}

	action := models.ActionScaleUp
	if targetSize < oldSize {
		action = models.ActionScaleDown
	}
	if p.publisher != nil {
		p.publisher.ScalingStarted(action, reason)
	}

	event := &models.ScalingEvent{
		ID:            models.NewUUID(),
		Timestamp:     time.Now(),
		Action:        action,
		OldSize:       oldSize,
		NewSize:       targetSize,
		OldOverflow:   oldOverflow,
		NewOverflow:   targetOverflow,
		TriggerReason: reason,
		Workload:      p.Workload(),
		Utilization:   p.utilization(),
	}

	newEngine, err := p.swapEngine(targetSize, targetOverflow, true)
	if err != nil {
		event.Status = models.ScalingEventFailed
		p.history.append(event)
		if p.publisher != nil {
			p.publisher.ScalingFailed(reason, err)
		}
		return err
	}
	_ = newEngine

	p.slots.resize(targetSize + targetOverflow)
	p.lastScaledAt.Store(time.Now())
	p.lastScaleReason.Store(reason)

	event.Status = models.ScalingEventSuccess
	p.history.append(event)
	if p.publisher != nil {
		p.publisher.ScalingComplete(event)
	}

	logger.WithComponent("pool").Infof(
		"Scaled %s: size %d -> %d, overflow %d -> %d (reason: %s)",
		action, oldSize, targetSize, oldOverflow, targetOverflow, reason,
	)
	return nil
}

// RefreshEngine rebuilds the engine with unchanged bounds, keeping the warmed
// cache. Used when the transport looks poisoned but capacity is fine.
func (p *Pool) RefreshEngine(reason string) error {
	p.mu.RLock()
	size, overflow := p.size, p.overflow
	p.mu.RUnlock()

	if _, err := p.swapEngine(size, overflow, false); err != nil {
		return fmt.Errorf("engine refresh (%s): %w", reason, err)
	}
	logger.WithComponent("pool").Infof("Engine refreshed (reason: %s)", reason)
	return nil
}

// DropWarmCache closes and forgets every warmed connection. Used by forced
// reconnect remediation.
func (p *Pool) DropWarmCache() int {
	p.mu.Lock()
	dropped := p.warm
	p.warm = nil
	p.mu.Unlock()

	for _, w := range dropped {
		w.conn.Close()
		if p.usage != nil {
			p.usage.ConnectionDisposed(w.id, "warm_cache_dropped")
		}
	}
	return len(dropped)
}

// DiscardWarm removes one warmed connection by ID, closing it. Called by the
// lifecycle optimizer when a sweep schedules a parked connection for
// recycling.
func (p *Pool) DiscardWarm(connID string) bool {
	p.mu.Lock()
	var found *warmConn
	for i, w := range p.warm {
		if w.id == connID {
			found = &w
			p.warm = append(p.warm[:i], p.warm[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	if found == nil {
		return false
	}
	found.conn.Close()
	return true
}

// WarmIDs lists the IDs of currently parked connections.
func (p *Pool) WarmIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, len(p.warm))
	for i, w := range p.warm {
		ids[i] = w.id
	}
	return ids
}

// swapEngine builds, probes and installs a new engine, then disposes the old
// one. clearWarm also closes the warmed cache (rescales invalidate it).
func (p *Pool) swapEngine(size, overflow int, clearWarm bool) (Engine, error) {
	newEngine, err := p.factory(size, overflow)
	if err != nil {
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	probeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = newEngine.Ping(probeCtx)
	cancel()
	if err != nil {
		newEngine.Close()
		return nil, fmt.Errorf("new engine probe failed: %w", err)
	}

	p.mu.Lock()
	oldEngine := p.engine
	p.engine = newEngine
	p.size = size
	p.overflow = overflow
	var dropped []warmConn
	if clearWarm {
		dropped = p.warm
		p.warm = nil
	}
	p.mu.Unlock()

	for _, w := range dropped {
		w.conn.Close()
		if p.usage != nil {
			p.usage.ConnectionDisposed(w.id, "engine_swap")
		}
	}
	// In-flight connections from the old engine keep working; database/sql
	// finishes them before tearing the handle down.
	oldEngine.Close()
	p.engineRebuilds.Add(1)
	return newEngine, nil
}

func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	warm := p.warm
	p.warm = nil
	engine := p.engine
	p.mu.Unlock()

	for _, w := range warm {
		w.conn.Close()
	}
	return engine.Close()
}

// Stats assembles the operator-facing snapshot.
func (p *Pool) Stats() models.PoolStats {
	p.mu.RLock()
	size, overflow, warmed := p.size, p.overflow, len(p.warm)
	p.mu.RUnlock()

	p50, p95, p99 := p.acquirePercentiles()

	stats := models.PoolStats{
		Size:               size,
		Overflow:           overflow,
		BaseSize:           p.cfg.BasePoolSize,
		MaxSize:            p.cfg.MaxPoolSize,
		CheckedOut:         p.slots.inUse(),
		WarmedConnections:  warmed,
		Workload:           p.Workload(),
		Utilization:        p.utilization(),
		AcquireP50:         p50,
		AcquireP95:         p95,
		AcquireP99:         p99,
		TotalAcquisitions:  p.totalAcquisitions.Load(),
		TotalReleases:      p.totalReleases.Load(),
		WarmHits:           p.warmHits.Load(),
		CreateFailures:     p.createFailures.Load(),
		ExhaustionErrors:   p.exhaustionErrors.Load(),
		EngineRebuilds:     p.engineRebuilds.Load(),
		EmergencyScaleReqs: p.emergencyRequests.Load(),
	}
	if t, ok := p.lastScaledAt.Load().(time.Time); ok {
		stats.LastScaledAt = &t
	}
	if r, ok := p.lastScaleReason.Load().(string); ok {
		stats.LastScaleReason = r
	}
	return stats
}

func (p *Pool) ScalingHistory() []models.ScalingEvent {
	return p.history.snapshot()
}

func (p *Pool) Workload() models.WorkloadPattern {
	return p.workload.Load().(models.WorkloadPattern)
}

func (p *Pool) setWorkload(pattern models.WorkloadPattern) {
	p.workload.Store(pattern)
}

func (p *Pool) utilization() float64 {
	capacity := p.slots.cap()
	if capacity == 0 {
		return 0
	}
	return float64(p.slots.inUse()) / float64(capacity)
}

// Utilization is the checked-out fraction of current capacity.
func (p *Pool) Utilization() float64 {
	return p.utilization()
}

// Size returns the current size and overflow bounds.
func (p *Pool) Size() (size, overflow int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.size, p.overflow
}

// consumeEmergencyRequests returns the number of emergency scale-up requests
// raised since the last call.
func (p *Pool) consumeEmergencyRequests() int64 {
	total := p.emergencyRequests.Load()
	seen := p.emergencyConsumed.Swap(total)
	return total - seen
}

func (p *Pool) record(kind models.MetricKind, value float64, contextID string, tags map[string]string) {
	if p.metrics != nil {
		p.metrics.Record(kind, value, contextID, tags)
	}
}

func (p *Pool) recordAcquireTime(d time.Duration) {
	p.timesMu.Lock()
	p.acquireTimes[p.timesHead] = d
	p.timesHead = (p.timesHead + 1) % len(p.acquireTimes)
	if p.timesCount < len(p.acquireTimes) {
		p.timesCount++
	}
	p.timesMu.Unlock()
}

func (p *Pool) acquirePercentiles() (p50, p95, p99 time.Duration) {
	p.timesMu.Lock()
	samples := make([]time.Duration, p.timesCount)
	copy(samples, p.acquireTimes[:p.timesCount])
	p.timesMu.Unlock()

	if len(samples) == 0 {
		return 0, 0, 0
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return percentile(samples, 0.50), percentile(samples, 0.95), percentile(samples, 0.99)
}

func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// scalingRing is the capped, append-only scaling-event log.
type scalingRing struct {
	mu     sync.Mutex
	events []*models.ScalingEvent
	head   int
	count  int
}

func newScalingRing(capacity int) *scalingRing {
	if capacity <= 0 {
		capacity = 256
	}
	return &scalingRing{events: make([]*models.ScalingEvent, capacity)}
}

func (r *scalingRing) append(event *models.ScalingEvent) {
	r.mu.Lock()
	r.events[r.head] = event
	r.head = (r.head + 1) % len(r.events)
	if r.count < len(r.events) {
		r.count++
	}
	r.mu.Unlock()
}

func (r *scalingRing) snapshot() []models.ScalingEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ScalingEvent, 0, r.count)
	for i := 0; i < r.count; i++ {
		idx := (r.head - r.count + i + len(r.events)) % len(r.events)
		out = append(out, *r.events[idx])
	}
	return out
}
