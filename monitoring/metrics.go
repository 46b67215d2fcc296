package monitoring

import (
	"runtime"
	"sync"
	"time"

	"penguinlab/ml"
	"penguinlab/penguins"
)

// Stats counts served predictions. It is safe for concurrent use.
type Stats struct {
	mu        sync.RWMutex
	startTime time.Time
	total     int64
	failures  int64
	byLevel   map[ml.Level]int64
	bySpecies map[penguins.Species]int64
	latency   LatencySummary
}

type LatencySummary struct {
	Count int64         `json:"count"`
	Min   time.Duration `json:"min_ns"`
	Max   time.Duration `json:"max_ns"`
	Mean  time.Duration `json:"mean_ns"`
	sum   time.Duration
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Uptime     time.Duration              `json:"uptime_ns"`
	Total      int64                      `json:"total"`
	Failures   int64                      `json:"failures"`
	ByLevel    map[ml.Level]int64         `json:"by_level"`
	BySpecies  map[penguins.Species]int64 `json:"by_species"`
	Latency    LatencySummary             `json:"latency"`
	Goroutines int                        `json:"goroutines"`
	HeapAlloc  uint64                     `json:"heap_alloc_bytes"`
}

func NewStats() *Stats {
	return &Stats{
		startTime: time.Now(),
		byLevel:   make(map[ml.Level]int64),
		bySpecies: make(map[penguins.Species]int64),
	}
}

func (s *Stats) RecordPrediction(level ml.Level, species penguins.Species, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.byLevel[level]++
	s.bySpecies[species]++

	l := &s.latency
	if l.Count == 0 || elapsed < l.Min {
		l.Min = elapsed
	}
	if elapsed > l.Max {
		l.Max = elapsed
	}
	l.Count++
	l.sum += elapsed
	l.Mean = l.sum / time.Duration(l.Count)
}

func (s *Stats) RecordFailure() {
	s.mu.Lock()
	s.failures++
	s.mu.Unlock()
}

func (s *Stats) Snapshot() Snapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Uptime:     time.Since(s.startTime),
		Total:      s.total,
		Failures:   s.failures,
		ByLevel:    make(map[ml.Level]int64, len(s.byLevel)),
		BySpecies:  make(map[penguins.Species]int64, len(s.bySpecies)),
		Latency:    s.latency,
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  mem.HeapAlloc,
	}
	for k, v := range s.byLevel {
		snap.ByLevel[k] = v
	}
	for k, v := range s.bySpecies {
		snap.BySpecies[k] = v
	}
	return snap
}
