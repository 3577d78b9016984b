package assistant

import (
	"sync"
	"time"

	"github.com/af-corp/concierge/internal/types"
)

type entry[T any] struct {
	value T
	seen  time.Time
}

// sessions is a per-sender map with idle expiry.
type sessions[T any] struct {
	mu  sync.Mutex
	m   map[string]entry[T]
	now func() time.Time
}

func newSessions[T any](now func() time.Time) *sessions[T] {
	if now == nil {
		now = time.Now
	}
	return &sessions[T]{m: make(map[string]entry[T]), now: now}
}

func (s *sessions[T]) get(sender string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[sender]
	return e.value, ok
}

func (s *sessions[T]) update(sender string, fn func(T) T) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := fn(s.m[sender].value)
	s.m[sender] = entry[T]{value: v, seen: s.now()}
	return v
}

func (s *sessions[T]) delete(sender string) {
	s.mu.Lock()
	delete(s.m, sender)
	s.mu.Unlock()
}

// sweep drops senders idle for longer than ttl and returns how many.
func (s *sessions[T]) sweep(ttl time.Duration) int {
	cutoff := s.now().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.m {
		if e.seen.Before(cutoff) {
			delete(s.m, k)
			n++
		}
	}
	return n
}

// Counters tracks consecutive unknown or low-confidence turns per sender.
type Counters struct {
	s *sessions[int]
}

func NewCounters(now func() time.Time) *Counters {
	return &Counters{s: newSessions[int](now)}
}

// Increment adds one to the sender's streak and returns the new value.
func (c *Counters) Increment(sender string) int {
	return c.s.update(sender, func(n int) int { return n + 1 })
}

func (c *Counters) Reset(sender string) {
	c.s.delete(sender)
}

func (c *Counters) Get(sender string) int {
	n, _ := c.s.get(sender)
	return n
}

func (c *Counters) Sweep(ttl time.Duration) int { return c.s.sweep(ttl) }

type lastIntent struct {
	intent string
	count  int
}

// RepeatTracker detects a sender asking for the same intent turn after turn.
type RepeatTracker struct {
	s *sessions[lastIntent]
}

func NewRepeatTracker(now func() time.Time) *RepeatTracker {
	return &RepeatTracker{s: newSessions[lastIntent](now)}
}

// Observe records intent for sender. Count is 0 the first time, 1 on the
// second consecutive occurrence and so on.
func (r *RepeatTracker) Observe(sender, intent string) types.Repeat {
	v := r.s.update(sender, func(prev lastIntent) lastIntent {
		if prev.intent == intent {
			return lastIntent{intent: intent, count: prev.count + 1}
		}
		return lastIntent{intent: intent}
	})
	return types.Repeat{IsRepeat: v.count > 0, Count: v.count}
}

func (r *RepeatTracker) Sweep(ttl time.Duration) int { return r.s.sweep(ttl) }

// DialogStates holds each sender's position in a booking or workflow.
type DialogStates struct {
	s *sessions[*DialogState]
}

func NewDialogStates(now func() time.Time) *DialogStates {
	return &DialogStates{s: newSessions[*DialogState](now)}
}

func (d *DialogStates) Get(sender string) (*DialogState, bool) {
	st, ok := d.s.get(sender)
	return st, ok && st != nil
}

// Set stores st, or clears the sender when st is nil.
func (d *DialogStates) Set(sender string, st *DialogState) {
	if st == nil {
		d.s.delete(sender)
		return
	}
	d.s.update(sender, func(*DialogState) *DialogState { return st })
}

func (d *DialogStates) Sweep(ttl time.Duration) int { return d.s.sweep(ttl) }
