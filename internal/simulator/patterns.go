package simulator

import (
	"math"
	"math/rand"
	"time"
)

// LoadPattern shapes the request rate the load simulator drives at the pool.
type LoadPattern interface {
	// Rate returns the target requests per second at time t.
	Rate(baseRate float64) float64
	Name() string
}

var (
	PatternSteady LoadPattern = &SteadyPattern{}
	PatternDaily  LoadPattern = &DailyPattern{}
	PatternRandom LoadPattern = &RandomPattern{}
)

func ParsePattern(name string) LoadPattern {
	switch name {
	case "daily":
		return PatternDaily
	case "random":
		return PatternRandom
	case "burst":
		return NewBurstPattern(2*time.Minute, 20*time.Second, 5.0)
	case "ramp":
		return &RampPattern{startTime: time.Now(), rampOver: 10 * time.Minute, peakFactor: 4.0}
	default:
		return PatternSteady
	}
}

// SteadyPattern holds the base rate.
type SteadyPattern struct{}

func (*SteadyPattern) Rate(base float64) float64 { return base }
func (*SteadyPattern) Name() string              { return "steady" }

// DailyPattern follows a sine over the wall-clock hour, peaking midday.
type DailyPattern struct{}

func (*DailyPattern) Rate(base float64) float64 {
	hour := float64(time.Now().Hour()) + float64(time.Now().Minute())/60
	factor := 0.5 + 0.5*math.Sin((hour-6)*math.Pi/12)
	return base * (0.3 + 1.4*factor)
}

func (*DailyPattern) Name() string { return "daily" }

// RandomPattern wanders around the base rate.
type RandomPattern struct{}

func (*RandomPattern) Rate(base float64) float64 {
	return base * (0.5 + rand.Float64())
}

func (*RandomPattern) Name() string { return "random" }

// BurstPattern alternates quiet periods with short multiplied spikes.
type BurstPattern struct {
	period     time.Duration
	burstLen   time.Duration
	multiplier float64
	start      time.Time
}

func NewBurstPattern(period, burstLen time.Duration, multiplier float64) *BurstPattern {
	return &BurstPattern{period: period, burstLen: burstLen, multiplier: multiplier, start: time.Now()}
}

func (p *BurstPattern) Rate(base float64) float64 {
	elapsed := time.Since(p.start) % p.period
	if elapsed < p.burstLen {
		return base * p.multiplier
	}
	return base
}

func (p *BurstPattern) Name() string { return "burst" }

// RampPattern climbs linearly to peakFactor over rampOver, then holds.
type RampPattern struct {
	startTime  time.Time
	rampOver   time.Duration
	peakFactor float64
}

func (p *RampPattern) Rate(base float64) float64 {
	progress := float64(time.Since(p.startTime)) / float64(p.rampOver)
	if progress > 1 {
		progress = 1
	}
	return base * (1 + (p.peakFactor-1)*progress)
}

func (p *RampPattern) Name() string { return "ramp" }
