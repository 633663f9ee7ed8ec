package pool_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaptivesql/pooltuner/internal/pool"
	"github.com/adaptivesql/pooltuner/internal/simulator"
	"github.com/adaptivesql/pooltuner/pkg/models"
)

func TestAutoscaler_ScalesUpOnHighUtilization(t *testing.T) {
	cfg := testPoolConfig()
	p, _ := newTestPool(t, cfg, simulator.EngineConfig{})
	a := pool.NewAutoscaler(p, cfg)

	// Saturate the pool so utilization sits at 1.0.
	capacity := cfg.BasePoolSize + cfg.BaseOverflow
	handles := make([]*pool.Handle, 0, capacity)
	for i := 0; i < capacity; i++ {
		h, err := p.Acquire(context.Background(), "web", models.PriorityNormal)
		require.NoError(t, err)
		handles = append(handles, h)
	}

	a.Tick(context.Background())

	size, _ := p.Size()
	assert.Greater(t, size, cfg.BasePoolSize)

	history := p.ScalingHistory()
	require.NotEmpty(t, history)
	assert.Equal(t, models.ActionScaleUp, history[0].Action)

	for _, h := range handles {
		require.NoError(t, h.Finish(nil))
	}
}

func TestAutoscaler_ScaleDownNeedsSustainedLowUtilization(t *testing.T) {
	cfg := testPoolConfig()
	p, _ := newTestPool(t, cfg, simulator.EngineConfig{})
	a := pool.NewAutoscaler(p, cfg)

	require.NoError(t, p.Scale(6, 2, "test_setup"))

	// Idle pool: two low ticks are not enough.
	a.Tick(context.Background())
	a.Tick(context.Background())
	size, _ := p.Size()
	assert.Equal(t, 6, size)

	// The third consecutive low tick shrinks the pool.
	a.Tick(context.Background())
	size, _ = p.Size()
	assert.Less(t, size, 6)
}

func TestAutoscaler_IdleAtBaseDoesNothing(t *testing.T) {
	cfg := testPoolConfig()
	p, _ := newTestPool(t, cfg, simulator.EngineConfig{})
	a := pool.NewAutoscaler(p, cfg)

	for i := 0; i < 5; i++ {
		a.Tick(context.Background())
	}

	size, overflow := p.Size()
	assert.Equal(t, cfg.BasePoolSize, size)
	assert.Equal(t, cfg.BaseOverflow, overflow)
	assert.Empty(t, p.ScalingHistory())
}

func TestAutoscaler_BurstDetection(t *testing.T) {
	cfg := testPoolConfig()
	cfg.ScaleUpThreshold = 0.95 // keep the plain threshold rule out of the way
	p, _ := newTestPool(t, cfg, simulator.EngineConfig{})
	a := pool.NewAutoscaler(p, cfg)

	// Baseline tick at zero utilization.
	a.Tick(context.Background())

	// Jump utilization by well over the burst delta in a single tick.
	handles := make([]*pool.Handle, 0, 2)
	for i := 0; i < 2; i++ {
		h, err := p.Acquire(context.Background(), "web", models.PriorityNormal)
		require.NoError(t, err)
		handles = append(handles, h)
	}

	a.Tick(context.Background())
	assert.Equal(t, models.WorkloadBurst, p.Workload())

	history := p.ScalingHistory()
	require.NotEmpty(t, history)
	assert.Equal(t, "burst_detected", history[0].TriggerReason)

	for _, h := range handles {
		require.NoError(t, h.Finish(nil))
	}
}

func TestAutoscaler_CooldownSuppressesRepeatScaling(t *testing.T) {
	cfg := testPoolConfig()
	cfg.ScaleCooldown = time.Hour
	p, _ := newTestPool(t, cfg, simulator.EngineConfig{})
	a := pool.NewAutoscaler(p, cfg)

	capacity := cfg.BasePoolSize + cfg.BaseOverflow
	handles := make([]*pool.Handle, 0, capacity)
	for i := 0; i < capacity; i++ {
		h, err := p.Acquire(context.Background(), "web", models.PriorityNormal)
		require.NoError(t, err)
		handles = append(handles, h)
	}

	a.Tick(context.Background())
	sizeAfterFirst, _ := p.Size()
	require.Greater(t, sizeAfterFirst, cfg.BasePoolSize)

	// Saturate the grown pool so the threshold rule would fire again.
	for p.Utilization() < cfg.ScaleUpThreshold {
		h, err := p.Acquire(context.Background(), "web", models.PriorityNormal)
		require.NoError(t, err)
		handles = append(handles, h)
	}

	a.Tick(context.Background())
	sizeAfterSecond, _ := p.Size()
	assert.Equal(t, sizeAfterFirst, sizeAfterSecond)
	assert.Len(t, p.ScalingHistory(), 1)

	for _, h := range handles {
		require.NoError(t, h.Finish(nil))
	}
}
