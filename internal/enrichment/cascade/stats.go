package cascade

import "sync"

// Stats holds the orchestrator's thread-safe running counters (§4.G.5).
type Stats struct {
	mu sync.Mutex

	totalProcessed int
	cacheHits      int
	sourceHits     map[string]int
	errors         int
	asnUpserts     int
}

func newStats() *Stats {
	return &Stats{sourceHits: map[string]int{}}
}

func (s *Stats) incTotal() {
	s.mu.Lock()
	s.totalProcessed++
	s.mu.Unlock()
}

func (s *Stats) incCacheHit() {
	s.mu.Lock()
	s.cacheHits++
	s.mu.Unlock()
}

func (s *Stats) incSourceHit(source string) {
	s.mu.Lock()
	s.sourceHits[source]++
	s.mu.Unlock()
}

func (s *Stats) incError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

func (s *Stats) incASNUpsert() {
	s.mu.Lock()
	s.asnUpserts++
	s.mu.Unlock()
}

// StatsSnapshot is an immutable copy of Stats returned by Orchestrator.Stats.
type StatsSnapshot struct {
	TotalProcessed int
	CacheHits      int
	SourceHits     map[string]int
	Errors         int
	ASNUpserts     int
}

// Snapshot returns a point-in-time copy of the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	hits := make(map[string]int, len(s.sourceHits))
	for k, v := range s.sourceHits {
		hits[k] = v
	}
	return StatsSnapshot{
		TotalProcessed: s.totalProcessed,
		CacheHits:      s.cacheHits,
		SourceHits:     hits,
		Errors:         s.errors,
		ASNUpserts:     s.asnUpserts,
	}
}
