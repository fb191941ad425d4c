package engine

import (
	"sync"
	"sync/atomic"
	"time"
)

// Progress is a point-in-time view of a task.
type Progress struct {
	Downloaded int64
	Total      int64 // -1 until mirrors are resolved
	Speed      float64
	ETA        time.Duration // -1 when unknown
	Elapsed    time.Duration
	Chunks     []ChunkState
}

func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Downloaded) / float64(p.Total)
}

// progressTracker owns the shared byte counter. Speed is sampled from the
// counter so workers only ever do an atomic add.
type progressTracker struct {
	downloaded atomic.Int64
	total      atomic.Int64

	mu        sync.Mutex
	startTime time.Time
	endTime   time.Time
	lastTime  time.Time
	lastBytes int64
	speed     float64
}

func newProgressTracker() *progressTracker {
	p := &progressTracker{}
	p.total.Store(-1)
	return p
}

func (p *progressTracker) add(n int64) {
	p.downloaded.Add(n)
}

func (p *progressTracker) start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startTime = time.Now()
	p.lastTime = p.startTime
}

func (p *progressTracker) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.startTime.IsZero() && p.endTime.IsZero() {
		p.endTime = time.Now()
	}
}

func (p *progressTracker) elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elapsedLocked()
}

func (p *progressTracker) elapsedLocked() time.Duration {
	if p.startTime.IsZero() {
		return 0
	}
	if !p.endTime.IsZero() {
		return p.endTime.Sub(p.startTime)
	}
	return time.Since(p.startTime)
}

// sample refreshes the speed estimate, at most every 500ms.
func (p *progressTracker) sample() (float64, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	downloaded := p.downloaded.Load()
	if p.endTime.IsZero() && !p.lastTime.IsZero() {
		if diff := now.Sub(p.lastTime).Seconds(); diff >= 0.5 {
			p.speed = float64(downloaded-p.lastBytes) / diff
			p.lastTime = now
			p.lastBytes = downloaded
		}
	} else if !p.endTime.IsZero() {
		p.speed = 0
	}
	return p.speed, p.elapsedLocked()
}

func (p *progressTracker) snapshot() Progress {
	speed, elapsed := p.sample()
	total := p.total.Load()
	downloaded := p.downloaded.Load()
	eta := time.Duration(-1)
	if total >= 0 && speed > 0 {
		eta = time.Duration(float64(total-downloaded) / speed * float64(time.Second))
	}
	return Progress{
		Downloaded: downloaded,
		Total:      total,
		Speed:      speed,
		ETA:        eta,
		Elapsed:    elapsed,
	}
}
