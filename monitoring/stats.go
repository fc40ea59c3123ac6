package monitoring

import (
	"maps"
	"sort"
	"sync"
)

// Counter names recorded by the merger.
const (
	RecordsRead      = "records_read_total"
	RecordsEmitted   = "records_emitted_total"
	RecordsCombined  = "records_combined_total"
	ReadFailures     = "read_failures_total"
	WriteFailures    = "write_failures_total"
	StreamsExhausted = "streams_exhausted_total"
)

// Stats is a registry of named counters. It is safe for concurrent use so
// that several merges can report into the same registry.
type Stats struct {
	mu       sync.RWMutex
	counters map[string]int64
}

func NewStats() *Stats {
	return &Stats{
		counters: make(map[string]int64),
	}
}

// Add increments the counter name by delta.
func (s *Stats) Add(name string, delta int64) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name] += delta
}

// Counter returns the current value of name.
func (s *Stats) Counter(name string) int64 {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[name]
}

// Snapshot copies every counter.
func (s *Stats) Snapshot() map[string]int64 {
	if s == nil {
		return map[string]int64{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.counters)
}

// Names returns the registered counter names in sorted order.
func (s *Stats) Names() []string {
	snap := s.Snapshot()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
