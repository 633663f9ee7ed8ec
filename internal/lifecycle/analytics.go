package lifecycle

import (
	"sort"
	"sync"
	"time"

	"github.com/adaptivesql/pooltuner/pkg/models"
)

// Analytics aggregates per-context usage for the advisory workload report.
// It holds running aggregates rather than raw events; memory is bounded by
// the number of distinct caller contexts.
type Analytics struct {
	mu       sync.Mutex
	start    time.Time
	contexts map[string]*contextStats
	hourly   [24]int64

	utilSum   float64
	utilPeak  float64
	utilCount int64
}

type contextStats struct {
	sessions      int64
	totalDuration time.Duration
	errors        int64
	lastSeen      time.Time
	kinds         map[string]int64
}

// sessionKind buckets a session by duration. Point reads and writes finish in
// tens of milliseconds, interactive requests stay under a second, anything
// longer is treated as analytical work.
func sessionKind(duration time.Duration) string {
	switch {
	case duration < 100*time.Millisecond:
		return "transactional"
	case duration < time.Second:
		return "interactive"
	default:
		return "analytical"
	}
}

// dominantKind returns the most frequent kind, ties broken alphabetically.
func dominantKind(kinds map[string]int64) string {
	var best string
	var bestCount int64
	for kind, count := range kinds {
		if count > bestCount || (count == bestCount && kind < best) {
			best, bestCount = kind, count
		}
	}
	return best
}

func NewAnalytics() *Analytics {
	return &Analytics{
		start:    time.Now(),
		contexts: make(map[string]*contextStats),
	}
}

// RecordSession is fed by the optimizer on every session finish.
func (a *Analytics) RecordSession(contextID string, duration time.Duration, failed bool) {
	now := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()

	stats, ok := a.contexts[contextID]
	if !ok {
		stats = &contextStats{kinds: make(map[string]int64)}
		a.contexts[contextID] = stats
	}
	stats.sessions++
	stats.totalDuration += duration
	if failed {
		stats.errors++
	}
	stats.lastSeen = now
	stats.kinds[sessionKind(duration)]++
	a.hourly[now.Hour()]++
}

// ObserveUtilization samples pool utilization; called on the analytics tick.
func (a *Analytics) ObserveUtilization(utilization float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.utilSum += utilization
	a.utilCount++
	if utilization > a.utilPeak {
		a.utilPeak = utilization
	}
}

// Report assembles the workload report since the last reset. The report is
// advisory: nothing in the pool acts on it automatically.
func (a *Analytics) Report() models.WorkloadReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	report := models.WorkloadReport{
		GeneratedAt:      now,
		WindowStart:      a.start,
		WindowEnd:        now,
		PeakUtilization:  a.utilPeak,
		SessionDurations: make(map[string]time.Duration),
	}
	if a.utilCount > 0 {
		report.AvgUtilization = a.utilSum / float64(a.utilCount)
	}
	report.Pattern = models.ClassifyWorkload(report.AvgUtilization)

	for id, stats := range a.contexts {
		usage := models.ContextUsage{
			ContextID:    id,
			Sessions:     stats.sessions,
			ErrorCount:   stats.errors,
			LastSeen:     stats.lastSeen,
			DominantKind: dominantKind(stats.kinds),
		}
		if stats.sessions > 0 {
			usage.AvgSessionDuration = stats.totalDuration / time.Duration(stats.sessions)
		}
		report.Contexts = append(report.Contexts, usage)
		report.SessionDurations[id] = usage.AvgSessionDuration

		if report.DominantQueryKinds == nil {
			report.DominantQueryKinds = make(map[string]int64)
		}
		for kind, count := range stats.kinds {
			report.DominantQueryKinds[kind] += count
		}
	}
	sort.Slice(report.Contexts, func(i, j int) bool {
		return report.Contexts[i].Sessions > report.Contexts[j].Sessions
	})

	report.PeakUsageHours = a.peakHoursLocked()
	return report
}

// peakHoursLocked returns hours carrying at least 150% of the mean session
// volume, busiest first.
func (a *Analytics) peakHoursLocked() []int {
	var total int64
	for _, n := range a.hourly {
		total += n
	}
	if total == 0 {
		return nil
	}
	threshold := float64(total) / 24 * 1.5

	var peaks []int
	for hour, n := range a.hourly {
		if float64(n) >= threshold {
			peaks = append(peaks, hour)
		}
	}
	sort.Slice(peaks, func(i, j int) bool {
		return a.hourly[peaks[i]] > a.hourly[peaks[j]]
	})
	return peaks
}
