package events

import (
	"sync"

	"github.com/adaptivesql/pooltuner/internal/logger"
	"github.com/adaptivesql/pooltuner/pkg/models"
)

// RecentStore drains a subscription and keeps the newest events in a capped
// ring for the operator API. It also logs warning/critical events.
type RecentStore struct {
	events []*models.Event
	head   int
	count  int
	mu     sync.RWMutex

	ch   <-chan *models.Event
	done chan struct{}
	wg   sync.WaitGroup
}

func NewRecentStore(limit int, ch <-chan *models.Event) *RecentStore {
	if limit <= 0 {
		limit = 200
	}
	return &RecentStore{
		events: make([]*models.Event, limit),
		ch:     ch,
		done:   make(chan struct{}),
	}
}

func (s *RecentStore) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *RecentStore) Stop() {
	close(s.done)
	s.wg.Wait()
}

func (s *RecentStore) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.ch:
			if !ok {
				return
			}
			s.record(event)
		}
	}
}

func (s *RecentStore) record(event *models.Event) {
	switch event.Severity {
	case models.SeverityCritical:
		logger.WithComponent(event.Component).Errorf("%s: %s", event.Type, event.Message)
	case models.SeverityWarning:
		logger.WithComponent(event.Component).Warnf("%s: %s", event.Type, event.Message)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[s.head] = event
	s.head = (s.head + 1) % len(s.events)
	if s.count < len(s.events) {
		s.count++
	}
}

// Recent returns up to n events, newest first.
func (s *RecentStore) Recent(n int) []*models.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > s.count {
		n = s.count
	}
	out := make([]*models.Event, 0, n)
	for i := 0; i < n; i++ {
		idx := (s.head - 1 - i + len(s.events)) % len(s.events)
		out = append(out, s.events[idx])
	}
	return out
}
