// Package simulator provides an in-memory engine with configurable latency
// and failure behavior. It backs the load simulator binary and the test
// suites; no database is needed.
package simulator

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adaptivesql/pooltuner/internal/pool"
)

var (
	ErrSimulatedFailure   = errors.New("simulated connection failure")
	ErrSimulatedHandshake = errors.New("simulated tls handshake failure")
	ErrEngineClosed       = errors.New("simulated engine closed")
)

// EngineConfig shapes the simulated endpoint's behavior. All fields may be
// changed at runtime through the setters.
type EngineConfig struct {
	// BaseLatency is the simulated handshake time per connect.
	BaseLatency time.Duration
	// LatencyJitter adds up to this much random extra latency.
	LatencyJitter time.Duration
	// FailureRate is the probability [0,1] that a connect fails.
	FailureRate float64
	// HandshakeFailures makes failures look like TLS handshake errors
	// instead of generic ones.
	HandshakeFailures bool
	// PingLatency is the simulated probe time.
	PingLatency time.Duration
}

// Engine implements the pool engine against nothing at all.
type Engine struct {
	mu     sync.RWMutex
	cfg    EngineConfig
	closed bool

	size     int
	overflow int

	connects atomic.Int64
	failures atomic.Int64
}

func NewEngine(cfg EngineConfig, size, overflow int) *Engine {
	return &Engine{cfg: cfg, size: size, overflow: overflow}
}

// NewFactory returns a pool engine factory producing simulated engines that
// share cfgSource, so behavior changes apply across engine rebuilds.
func NewFactory(cfgSource *SharedConfig) pool.EngineFactory {
	return func(size, overflow int) (pool.Engine, error) {
		engine := NewEngine(cfgSource.Get(), size, overflow)
		cfgSource.attach(engine)
		return engine, nil
	}
}

func (e *Engine) Connect(ctx context.Context) (pool.Conn, error) {
	e.mu.RLock()
	cfg := e.cfg
	closed := e.closed
	e.mu.RUnlock()

	if closed {
		return nil, ErrEngineClosed
	}

	latency := cfg.BaseLatency
	if cfg.LatencyJitter > 0 {
		latency += time.Duration(rand.Int63n(int64(cfg.LatencyJitter)))
	}
	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	e.connects.Add(1)
	if cfg.FailureRate > 0 && rand.Float64() < cfg.FailureRate {
		e.failures.Add(1)
		if cfg.HandshakeFailures {
			return nil, ErrSimulatedHandshake
		}
		return nil, ErrSimulatedFailure
	}

	return &simConn{engine: e}, nil
}

func (e *Engine) Ping(ctx context.Context) error {
	e.mu.RLock()
	cfg := e.cfg
	closed := e.closed
	e.mu.RUnlock()

	if closed {
		return ErrEngineClosed
	}
	if cfg.PingLatency > 0 {
		select {
		case <-time.After(cfg.PingLatency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

func (e *Engine) setConfig(cfg EngineConfig) {
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
}

// Connects reports total connect attempts, Failures the failed subset.
func (e *Engine) Connects() int64 { return e.connects.Load() }
func (e *Engine) Failures() int64 { return e.failures.Load() }

type simConn struct {
	engine *Engine
	closed atomic.Bool
}

func (c *simConn) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return ErrEngineClosed
	}
	return c.engine.Ping(ctx)
}

func (c *simConn) Begin(ctx context.Context) (pool.Tx, error) {
	if c.closed.Load() {
		return nil, ErrEngineClosed
	}
	return &simTx{}, nil
}

func (c *simConn) Close() error {
	c.closed.Store(true)
	return nil
}

type simTx struct {
	done atomic.Bool
}

func (t *simTx) Commit() error {
	if !t.done.CompareAndSwap(false, true) {
		return errors.New("transaction already finished")
	}
	return nil
}

func (t *simTx) Rollback() error {
	if !t.done.CompareAndSwap(false, true) {
		return errors.New("transaction already finished")
	}
	return nil
}

// SharedConfig propagates behavior changes to every engine built from one
// factory, including engines created by rescales and refreshes.
type SharedConfig struct {
	mu      sync.Mutex
	cfg     EngineConfig
	engines []*Engine
}

func NewSharedConfig(cfg EngineConfig) *SharedConfig {
	return &SharedConfig{cfg: cfg}
}

func (s *SharedConfig) Get() EngineConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Set updates behavior on all live engines.
func (s *SharedConfig) Set(cfg EngineConfig) {
	s.mu.Lock()
	s.cfg = cfg
	engines := make([]*Engine, len(s.engines))
	copy(engines, s.engines)
	s.mu.Unlock()

	for _, engine := range engines {
		engine.setConfig(cfg)
	}
}

// SetFailureRate adjusts only the failure probability.
func (s *SharedConfig) SetFailureRate(rate float64) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	cfg.FailureRate = rate
	s.Set(cfg)
}

func (s *SharedConfig) attach(engine *Engine) {
	s.mu.Lock()
	s.engines = append(s.engines, engine)
	if len(s.engines) > 16 {
		s.engines = s.engines[len(s.engines)-16:]
	}
	s.mu.Unlock()
}
