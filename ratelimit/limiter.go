// Package ratelimit provides sliding-window admission control per user.
package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 16

type window struct {
	mu      sync.Mutex
	entries []time.Time

	// gone marks a window removed from its shard by Sweep; a holder of a
	// stale pointer must re-fetch instead of recording into it.
	gone bool
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*window
}

// Limiter tracks a sliding log of request timestamps per user. Each user's
// window has its own lock; the shard lock is held only for map access, so one
// user's burst never blocks another's admission check.
type Limiter struct {
	max    int
	period time.Duration
	shards [shardCount]shard
}

// New creates a limiter allowing max requests per user within the trailing
// period.
func New(max int, period time.Duration) *Limiter {
	l := &Limiter{max: max, period: period}
	for i := range l.shards {
		l.shards[i].windows = make(map[string]*window)
	}
	return l
}

// Allow reports whether a request from userID at now is admitted, recording
// it if so. Entries older than the period are purged on each call; denied
// requests are not recorded.
func (l *Limiter) Allow(userID string, now time.Time) bool {
	for {
		w := l.windowFor(userID)
		w.mu.Lock()
		if w.gone {
			w.mu.Unlock()
			continue
		}

		cutoff := now.Add(-l.period)
		kept := w.entries[:0]
		for _, ts := range w.entries {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		w.entries = kept

		if len(w.entries) >= l.max {
			w.mu.Unlock()
			return false
		}
		w.entries = append(w.entries, now)
		w.mu.Unlock()
		return true
	}
}

// Sweep drops users whose windows hold no entries newer than the period, so
// the shard maps do not grow with every user_id ever seen. Lock order is
// shard then window; Allow releases the shard lock before taking the
// window's, so the reverse order never happens. Returns the number of users
// dropped.
func (l *Limiter) Sweep(now time.Time) int {
	cutoff := now.Add(-l.period)
	dropped := 0
	for i := range l.shards {
		sh := &l.shards[i]
		sh.mu.Lock()
		for id, w := range sh.windows {
			w.mu.Lock()
			live := false
			for _, ts := range w.entries {
				if ts.After(cutoff) {
					live = true
					break
				}
			}
			if !live {
				w.gone = true
				delete(sh.windows, id)
				dropped++
			}
			w.mu.Unlock()
		}
		sh.mu.Unlock()
	}
	return dropped
}

func (l *Limiter) windowFor(userID string) *window {
	h := fnv.New32a()
	h.Write([]byte(userID))
	sh := &l.shards[h.Sum32()%shardCount]

	sh.mu.Lock()
	defer sh.mu.Unlock()
	w, ok := sh.windows[userID]
	if !ok {
		w = &window{}
		sh.windows[userID] = w
	}
	return w
}
