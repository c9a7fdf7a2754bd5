package buffer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics tracks buffer activity. Counters are atomic; size tracking is
// mutex-protected so CurrentSize and MaxSize stay consistent.
type Statistics struct {
	writes int64
	reads  int64
	drops  int64

	mu          sync.RWMutex
	startTime   time.Time
	currentSize int64
	maxSize     int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

// Write records a write.
func (s *Statistics) Write() { atomic.AddInt64(&s.writes, 1) }

// Read records a read.
func (s *Statistics) Read() { atomic.AddInt64(&s.reads, 1) }

// Drop records an item lost to overflow.
func (s *Statistics) Drop() { atomic.AddInt64(&s.drops, 1) }

// UpdateSize records the current size and tracks the high-water mark.
func (s *Statistics) UpdateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

func (s *Statistics) Writes() int64 { return atomic.LoadInt64(&s.writes) }
func (s *Statistics) Reads() int64  { return atomic.LoadInt64(&s.reads) }
func (s *Statistics) Drops() int64  { return atomic.LoadInt64(&s.drops) }

// CurrentSize returns the number of queued items.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// MaxSize returns the high-water mark.
func (s *Statistics) MaxSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

// DropRate returns drops as a fraction of write attempts (0.0 to 1.0).
func (s *Statistics) DropRate() float64 {
	writes := s.Writes()
	if writes == 0 {
		return 0.0
	}
	return float64(s.Drops()) / float64(writes)
}

// Uptime returns how long the buffer has existed.
func (s *Statistics) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// StatsSummary is a point-in-time copy of Statistics.
type StatsSummary struct {
	Writes      int64         `json:"writes"`
	Reads       int64         `json:"reads"`
	Drops       int64         `json:"drops"`
	CurrentSize int64         `json:"current_size"`
	MaxSize     int64         `json:"max_size"`
	DropRate    float64       `json:"drop_rate"`
	Uptime      time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Writes:      s.Writes(),
		Reads:       s.Reads(),
		Drops:       s.Drops(),
		CurrentSize: s.CurrentSize(),
		MaxSize:     s.MaxSize(),
		DropRate:    s.DropRate(),
		Uptime:      s.Uptime(),
	}
}
