package eviction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	k8sclock "k8s.io/utils/clock"

	"github.com/stacklok/toolhive-registry-bridge/internal/registry"
)

// Owner is the channel a candidate came from. Evict applies the deferred removal.
type Owner interface {
	Name() string
	Evict(ctx context.Context, rec registry.InstanceRecord) error
}

// SizeFunc reports how many instances the registry currently holds
type SizeFunc func(ctx context.Context) (int, error)

// ErrNoSize is returned by a SizeFunc when the registry cannot report its size
var ErrNoSize = errors.New("registry size unavailable")

// ErrReappeared is returned by an Owner when the candidate is back in its source. The
// candidate is dropped without being counted as evicted or failed.
var ErrReappeared = errors.New("instance reappeared")

// Entry is one eviction candidate
type Entry struct {
	Record registry.InstanceRecord
	// Since is when the instance was first seen missing
	Since time.Time
	Owner Owner
}

// ID returns the candidate's instance identifier
func (e Entry) ID() string {
	return e.Record.ID
}

// RoundResult summarizes one eviction round
type RoundResult struct {
	// Queued is the number of candidates at the start of the round
	Queued int
	// RegistrySize is the registry size the strategy was given
	RegistrySize int
	// Allowed is the strategy's budget for the round
	Allowed int
	// Evicted lists the identifiers removed from the registry
	Evicted []string
	// Failed counts authorized evictions the owner could not apply; they stay queued
	Failed int
	// Err is set when the round could not run at all
	Err error
}

// RoundObserver receives one event per eviction round. Implementations must not block.
type RoundObserver interface {
	EvictionRound(ctx context.Context, result RoundResult)
}

// Queue holds eviction candidates shared by all channels feeding one registry.
// Each operation is a single critical section.
type Queue struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	inflight map[string]struct{}
	strategy Strategy
	size     SizeFunc
	clock    k8sclock.PassiveClock
	observer RoundObserver
}

// Option configures a Queue
type Option func(*Queue)

// WithClock sets the clock used to timestamp candidates
func WithClock(c k8sclock.PassiveClock) Option {
	return func(q *Queue) {
		q.clock = c
	}
}

// WithRoundObserver sets the receiver of eviction-round events
func WithRoundObserver(o RoundObserver) Option {
	return func(q *Queue) {
		q.observer = o
	}
}

// NewQueue creates an empty queue governed by strategy. size is consulted once per round.
func NewQueue(strategy Strategy, size SizeFunc, opts ...Option) *Queue {
	q := &Queue{
		entries:  make(map[string]*Entry),
		inflight: make(map[string]struct{}),
		strategy: strategy,
		size:     size,
		clock:    k8sclock.RealClock{},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Strategy returns the active strategy
func (q *Queue) Strategy() Strategy {
	return q.strategy
}

// MarkCandidate queues rec for eviction on behalf of owner. Marking an identifier that is
// already queued refreshes its record and owner but keeps the original timestamp.
func (q *Queue) MarkCandidate(owner Owner, rec registry.InstanceRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e, ok := q.entries[rec.ID]; ok {
		e.Record = rec
		e.Owner = owner
		return
	}
	q.entries[rec.ID] = &Entry{Record: rec, Since: q.clock.Now(), Owner: owner}
}

// CancelCandidate removes id from the queue and reports whether it was queued
func (q *Queue) CancelCandidate(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, queued := q.entries[id]
	_, evicting := q.inflight[id]
	delete(q.entries, id)
	delete(q.inflight, id)
	return queued || evicting
}

// Len returns the number of queued candidates
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Candidates returns the queued entries oldest first, ties broken by identifier
func (q *Queue) Candidates() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ordered()
}

func (q *Queue) ordered() []Entry {
	out := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if c := a.Since.Compare(b.Since); c != 0 {
			return c
		}
		return strings.Compare(a.ID(), b.ID())
	})
	return out
}

// EvictNow runs one eviction round and returns the identifiers that were removed from the
// registry. Selection happens under the queue lock with a registry size read inside the same
// critical section; the removals themselves run after the lock is released. A candidate
// cancelled after selection is skipped. A candidate whose removal fails goes back into the
// queue unless it was cancelled meanwhile.
func (q *Queue) EvictNow(ctx context.Context) []string {
	selected, result := q.selectRound(ctx)

	for _, e := range selected {
		if !q.stillSelected(e.ID()) {
			slog.Debug("Eviction candidate cancelled during round", "instance", e.ID())
			continue
		}
		err := e.Owner.Evict(ctx, e.Record)
		if errors.Is(err, ErrReappeared) {
			q.done(e.ID())
			slog.Debug("Eviction candidate reappeared during round", "instance", e.ID())
			continue
		}
		if err != nil {
			result.Failed++
			slog.Warn("Eviction failed, candidate stays queued",
				"instance", e.ID(),
				"channel", e.Owner.Name(),
				"error", err)
			q.requeue(e)
			continue
		}
		q.done(e.ID())
		result.Evicted = append(result.Evicted, e.ID())
	}

	if len(selected) > 0 || result.Err != nil {
		slog.Info("Eviction round completed",
			"strategy", q.strategy.Name(),
			"queued", result.Queued,
			"registry_size", result.RegistrySize,
			"allowed", result.Allowed,
			"evicted", len(result.Evicted),
			"failed", result.Failed)
	}
	q.notify(ctx, result)

	return result.Evicted
}

func (q *Queue) selectRound(ctx context.Context) ([]Entry, RoundResult) {
	q.mu.Lock()
	defer q.mu.Unlock()

	result := RoundResult{Queued: len(q.entries)}
	if result.Queued == 0 {
		return nil, result
	}

	size, err := q.size(ctx)
	if err != nil {
		result.Err = fmt.Errorf("failed to read registry size: %w", err)
		slog.Warn("Skipping eviction round", "error", err)
		return nil, result
	}
	result.RegistrySize = size
	result.Allowed = q.strategy.Allowed(result.Queued, size)

	ordered := q.ordered()
	selected := ordered[:min(result.Allowed, len(ordered))]
	for _, e := range selected {
		delete(q.entries, e.ID())
		q.inflight[e.ID()] = struct{}{}
	}
	return selected, result
}

func (q *Queue) stillSelected(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.inflight[id]
	return ok
}

func (q *Queue) done(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, id)
}

// requeue puts back a candidate whose eviction failed. Candidates cancelled while the
// eviction was running are dropped; re-marked ones keep their newer entry.
func (q *Queue) requeue(e Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.inflight[e.ID()]; !ok {
		return
	}
	delete(q.inflight, e.ID())
	if _, ok := q.entries[e.ID()]; ok {
		return
	}
	q.entries[e.ID()] = &e
}

func (q *Queue) notify(ctx context.Context, result RoundResult) {
	if q.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Eviction round observer panicked", "panic", r)
		}
	}()
	q.observer.EvictionRound(ctx, result)
}
