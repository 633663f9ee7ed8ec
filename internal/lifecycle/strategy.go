package lifecycle

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/adaptivesql/pooltuner/pkg/models"
)

// ReuseStrategy picks which warmed connection to hand to a caller. The
// interface is closed: only the strategies constructed by NewStrategy exist,
// selected by config name.
type ReuseStrategy interface {
	Name() string
	// Choose returns the ID of the preferred candidate, or "" to decline.
	// Candidates arrive in warm-cache insertion order, oldest first, already
	// filtered by the health predicate.
	Choose(contextID string, candidates []*models.ConnectionMetadata) string

	isReuseStrategy()
}

// NewStrategy maps a config name to its strategy. Unknown names are rejected
// at config validation, so this only sees the five known values.
func NewStrategy(name string) (ReuseStrategy, error) {
	switch name {
	case "fifo":
		return fifoStrategy{}, nil
	case "lifo":
		return lifoStrategy{}, nil
	case "least_used":
		return leastUsedStrategy{}, nil
	case "round_robin":
		return &roundRobinStrategy{}, nil
	case "best_performance":
		return &bestPerformanceStrategy{recentReuse: make(map[string]time.Time)}, nil
	default:
		return nil, fmt.Errorf("unknown reuse strategy %q", name)
	}
}

type fifoStrategy struct{}

func (fifoStrategy) Name() string     { return "fifo" }
func (fifoStrategy) isReuseStrategy() {}

func (fifoStrategy) Choose(_ string, candidates []*models.ConnectionMetadata) string {
	if len(candidates) == 0 {
		return ""
	}
	return candidates[0].ID
}

type lifoStrategy struct{}

func (lifoStrategy) Name() string     { return "lifo" }
func (lifoStrategy) isReuseStrategy() {}

func (lifoStrategy) Choose(_ string, candidates []*models.ConnectionMetadata) string {
	if len(candidates) == 0 {
		return ""
	}
	return candidates[len(candidates)-1].ID
}

type leastUsedStrategy struct{}

func (leastUsedStrategy) Name() string     { return "least_used" }
func (leastUsedStrategy) isReuseStrategy() {}

func (leastUsedStrategy) Choose(_ string, candidates []*models.ConnectionMetadata) string {
	if len(candidates) == 0 {
		return ""
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.UsageCount < best.UsageCount {
			best = c
		}
	}
	return best.ID
}

type roundRobinStrategy struct {
	mu     sync.Mutex
	cursor int
}

func (*roundRobinStrategy) Name() string     { return "round_robin" }
func (*roundRobinStrategy) isReuseStrategy() {}

func (s *roundRobinStrategy) Choose(_ string, candidates []*models.ConnectionMetadata) string {
	if len(candidates) == 0 {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	chosen := candidates[s.cursor%len(candidates)]
	s.cursor++
	return chosen.ID
}

// bestPerformanceStrategy scores candidates on acquisition latency, error
// ratio, age, usage frequency and context affinity, penalizing connections
// reused within the last 30 seconds so load spreads across the cache.
type bestPerformanceStrategy struct {
	mu          sync.Mutex
	recentReuse map[string]time.Time
}

const recentReuseWindow = 30 * time.Second

func (*bestPerformanceStrategy) Name() string     { return "best_performance" }
func (*bestPerformanceStrategy) isReuseStrategy() {}

func (s *bestPerformanceStrategy) Choose(contextID string, candidates []*models.ConnectionMetadata) string {
	if len(candidates) == 0 {
		return ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type scored struct {
		id    string
		score float64
	}
	scores := make([]scored, 0, len(candidates))
	now := time.Now()
	for _, c := range candidates {
		scores = append(scores, scored{id: c.ID, score: s.score(c, contextID, now)})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	winner := scores[0].id
	s.recentReuse[winner] = now
	if len(s.recentReuse) > 4*len(candidates)+16 {
		for id, t := range s.recentReuse {
			if now.Sub(t) > recentReuseWindow {
				delete(s.recentReuse, id)
			}
		}
	}
	return winner
}

func (s *bestPerformanceStrategy) score(c *models.ConnectionMetadata, contextID string, now time.Time) float64 {
	score := performanceScore(c)

	// Context affinity: prior service for this caller wins ties.
	if c.HasServed(contextID) {
		score += 15
	}

	if t, ok := s.recentReuse[c.ID]; ok && now.Sub(t) < recentReuseWindow {
		score -= 10
	}

	return score
}

// performanceScore rates a connection on its own track record, independent of
// any caller. The optimizer stores it on the metadata after every usage event;
// the best_performance strategy layers caller affinity on top of it.
func performanceScore(c *models.ConnectionMetadata) float64 {
	score := 100.0

	// Slow acquirers lose up to 30 points at 100ms average.
	latencyMs := float64(c.AvgAcquireTime.Milliseconds())
	score -= minFloat(latencyMs*0.3, 30)

	// Error-prone connections lose up to 40 points.
	score -= c.ErrorRatio() * 40

	// Connections past 80% of typical service life are deprioritized.
	if c.State == models.StateAging {
		score -= 20
	}

	// Frequently used connections carry a warm server-side session.
	score += minFloat(float64(c.UsageCount)*0.5, 10)

	return score
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
