// Package session provides the bounded, TTL-based registry of live chat
// sessions.
package session

import (
	"errors"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/frateto/gateway/domain"
)

// ErrCapacity is returned when the registry is full and the requested pair is
// new. It is retryable: the sweep frees slots as sessions expire.
var ErrCapacity = errors.New("session registry at capacity")

const shardCount = 16

type shard struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

// Registry is a sharded map of live sessions keyed by (user_id, session_id).
// Request handlers create and touch entries; the background sweep is the only
// deleter. Sharding keeps unrelated users off each other's lock.
type Registry struct {
	max    int
	ttl    time.Duration
	count  atomic.Int64
	shards [shardCount]shard

	nowFn func() time.Time
}

// New creates a registry holding at most max sessions, each expiring after
// ttl of inactivity.
func New(max int, ttl time.Duration) *Registry {
	r := &Registry{max: max, ttl: ttl, nowFn: time.Now}
	for i := range r.shards {
		r.shards[i].sessions = make(map[string]*domain.Session)
	}
	return r
}

func key(userID, sessionID string) string {
	return userID + "\x00" + sessionID
}

func (r *Registry) shardFor(k string) *shard {
	h := fnv.New32a()
	h.Write([]byte(k))
	return &r.shards[h.Sum32()%shardCount]
}

// GetOrCreate returns the live session for the pair, creating it if capacity
// allows. An existing session has its last-active time advanced. Concurrent
// calls for the same pair serialize on the shard lock, so exactly one session
// is ever created per pair; concurrent calls for distinct pairs admit through
// a CAS on the live count and can never overshoot the capacity bound.
func (r *Registry) GetOrCreate(userID, sessionID string) (*domain.Session, error) {
	k := key(userID, sessionID)
	sh := r.shardFor(k)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if s, ok := sh.sessions[k]; ok {
		s.LastActive = r.nowFn()
		return s, nil
	}

	for {
		n := r.count.Load()
		if n >= int64(r.max) {
			return nil, ErrCapacity
		}
		if r.count.CompareAndSwap(n, n+1) {
			break
		}
	}

	now := r.nowFn()
	s := &domain.Session{
		SessionID:  sessionID,
		UserID:     userID,
		CreatedAt:  now,
		LastActive: now,
	}
	sh.sessions[k] = s
	return s, nil
}

// Touch advances the session's last-active time. Returns false if the pair is
// not live (a miss after a racing sweep; the caller re-creates on the next
// request).
func (r *Registry) Touch(userID, sessionID string) bool {
	k := key(userID, sessionID)
	sh := r.shardFor(k)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.sessions[k]
	if !ok {
		return false
	}
	s.LastActive = r.nowFn()
	return true
}

// Sweep removes sessions idle longer than the TTL, then sheds
// oldest-last-active entries while the registry is over capacity. Locks are
// taken one shard at a time so lookups stay responsive during the scan; a
// touch that lands before the shard is visited moves the entry out of the
// expired set. Returns the number of sessions evicted.
func (r *Registry) Sweep(now time.Time) int {
	evicted := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.Lock()
		for k, s := range sh.sessions {
			if now.Sub(s.LastActive) > r.ttl {
				delete(sh.sessions, k)
				r.count.Add(-1)
				evicted++
			}
		}
		sh.mu.Unlock()
	}

	for r.count.Load() > int64(r.max) {
		if !r.evictOldest() {
			break
		}
		evicted++
	}
	return evicted
}

// evictOldest removes the session with the globally oldest last-active time.
func (r *Registry) evictOldest() bool {
	type candidate struct {
		key        string
		shard      *shard
		lastActive time.Time
	}
	var candidates []candidate
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.Lock()
		for k, s := range sh.sessions {
			candidates = append(candidates, candidate{key: k, shard: sh, lastActive: s.LastActive})
		}
		sh.mu.Unlock()
	}
	if len(candidates) == 0 {
		return false
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastActive.Before(candidates[j].lastActive)
	})

	c := candidates[0]
	c.shard.mu.Lock()
	defer c.shard.mu.Unlock()
	if _, ok := c.shard.sessions[c.key]; !ok {
		return false
	}
	delete(c.shard.sessions, c.key)
	r.count.Add(-1)
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return int(r.count.Load())
}
