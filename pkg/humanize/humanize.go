// Package humanize draws the randomized delays and coordinate offsets that
// keep simulated input from looking machine-generated.
package humanize

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Jitter bounds applied to every gesture endpoint, in pixels.
const (
	MaxJitterX = 100
	MaxJitterY = 20
)

// Rand is a mutex-guarded random source owned by one device run.
type Rand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRand seeds a source. Seed 0 picks a time-based seed.
func NewRand(seed int64) *Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Rand{rng: rand.New(rand.NewSource(seed))} //#nosec G404 -- input pacing, not crypto
}

// Float64 returns a uniform value in [0,1).
func (r *Rand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// IntRange returns a uniform integer in [lo,hi], both inclusive.
func (r *Rand) IntRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo + r.rng.Intn(hi-lo+1)
}

// Jitter returns a gesture offset with dx in [-MaxJitterX,MaxJitterX] and
// dy in [-MaxJitterY,MaxJitterY].
func (r *Rand) Jitter() (dx, dy int) {
	return r.IntRange(-MaxJitterX, MaxJitterX), r.IntRange(-MaxJitterY, MaxJitterY)
}

// Range is a closed interval a delay is drawn from uniformly.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Seconds builds a Range from fractional seconds.
func Seconds(min, max float64) Range {
	return Range{
		Min: time.Duration(min * float64(time.Second)),
		Max: time.Duration(max * float64(time.Second)),
	}
}

// Draw picks a duration uniformly in [Min,Max].
func (r Range) Draw(src *Rand) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(src.Float64()*float64(r.Max-r.Min))
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep waits for d, returning ctx.Err() if the context ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Pacer inserts human-like pauses between actions.
type Pacer struct {
	rand  *Rand
	sleep SleepFunc
}

// NewPacer creates a pacer. A nil sleep uses Sleep.
func NewPacer(src *Rand, sleep SleepFunc) *Pacer {
	if sleep == nil {
		sleep = Sleep
	}
	return &Pacer{rand: src, sleep: sleep}
}

// Pause sleeps for a duration drawn from r.
func (p *Pacer) Pause(ctx context.Context, r Range) error {
	return p.sleep(ctx, r.Draw(p.rand))
}

// Rand returns the pacer's random source.
func (p *Pacer) Rand() *Rand {
	return p.rand
}
