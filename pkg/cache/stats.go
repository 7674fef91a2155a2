package cache

import "sync/atomic"

// Statistics counts cache traffic
type Statistics struct {
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	size      atomic.Int64
	peak      atomic.Int64
}

func (s *Statistics) hit()      { s.hits.Add(1) }
func (s *Statistics) miss()     { s.misses.Add(1) }
func (s *Statistics) eviction() { s.evictions.Add(1) }

func (s *Statistics) resize(n int) {
	s.size.Store(int64(n))
	for {
		peak := s.peak.Load()
		if int64(n) <= peak || s.peak.CompareAndSwap(peak, int64(n)) {
			return
		}
	}
}

// Hits returns the number of successful lookups
func (s *Statistics) Hits() int64 { return s.hits.Load() }

// Misses returns the number of failed lookups
func (s *Statistics) Misses() int64 { return s.misses.Load() }

// Evictions returns the number of entries dropped for capacity
func (s *Statistics) Evictions() int64 { return s.evictions.Load() }

// HitRatio returns hits over lookups, or 0 before the first lookup
func (s *Statistics) HitRatio() float64 {
	hits, misses := s.Hits(), s.Misses()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

// Summary is a point-in-time copy of Statistics
type Summary struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Size      int64   `json:"size"`
	PeakSize  int64   `json:"peak_size"`
	HitRatio  float64 `json:"hit_ratio"`
}

// Summary snapshots s
func (s *Statistics) Summary() Summary {
	return Summary{
		Hits:      s.Hits(),
		Misses:    s.Misses(),
		Evictions: s.Evictions(),
		Size:      s.size.Load(),
		PeakSize:  s.peak.Load(),
		HitRatio:  s.HitRatio(),
	}
}
