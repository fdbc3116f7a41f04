package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"reelscope/internal/logging"
	"reelscope/internal/submission"
)

// ErrExists is returned when creating a session id that is already tracked.
var ErrExists = errors.New("session already exists")

type indexKey struct {
	updatedAt time.Time
	id        string
}

func compareKeys(a, b indexKey) int {
	if c := a.updatedAt.Compare(b.updatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.id, b.id)
}

// Table holds the last-known state of every live submission and evicts
// entries idle for longer than the TTL. The index orders entries by
// (updatedAt, id) so a sweep only touches expired entries.
type Table struct {
	mu      sync.RWMutex
	states  map[string]submission.State
	index   []indexKey
	ttl     time.Duration
	now     func() time.Time
	onEvict func(id string)
	logger  *slog.Logger
}

// Option customizes a Table.
type Option func(*Table)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Table) {
		if now != nil {
			t.now = now
		}
	}
}

// WithEvictHook registers a callback run (outside the lock) for every
// evicted id.
func WithEvictHook(fn func(id string)) Option {
	return func(t *Table) {
		t.onEvict = fn
	}
}

// WithLogger sets the logger used by the sweeper.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Table) {
		t.logger = logging.NewComponentLogger(logger, "sessions")
	}
}

// NewTable constructs a table that evicts entries idle for ttl.
func NewTable(ttl time.Duration, opts ...Option) *Table {
	t := &Table{
		states: make(map[string]submission.State),
		ttl:    ttl,
		now:    time.Now,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Create stores the initial state for a new submission.
func (t *Table) Create(state submission.State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.states[state.ID]; ok {
		return ErrExists
	}
	state.UpdatedAt = t.now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = state.UpdatedAt
	}
	t.states[state.ID] = state
	t.insertLocked(indexKey{updatedAt: state.UpdatedAt, id: state.ID})
	return nil
}

// Get returns the state for id.
func (t *Table) Get(id string) (submission.State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.states[id]
	return state, ok
}

// Apply folds evt into the state for id and refreshes its idle timer. It
// reports false when id is unknown or the event was stale.
func (t *Table) Apply(id string, evt submission.Event) (submission.State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.states[id]
	if !ok {
		return submission.State{}, false
	}
	old := indexKey{updatedAt: state.UpdatedAt, id: state.ID}
	if !state.Apply(evt) {
		return state, false
	}
	t.touchLocked(old, &state)
	t.states[id] = state
	return state, true
}

// Len returns the number of tracked sessions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.states)
}

// Counts returns the number of sessions per stage.
func (t *Table) Counts() map[submission.Stage]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	counts := make(map[submission.Stage]int)
	for _, state := range t.states {
		counts[state.Stage]++
	}
	return counts
}

// Sweep evicts entries idle for at least the TTL, oldest first, and returns
// their ids.
func (t *Table) Sweep() []string {
	if t.ttl <= 0 {
		return nil
	}
	t.mu.Lock()
	cutoff := t.now().Add(-t.ttl)
	n := 0
	for n < len(t.index) && !t.index[n].updatedAt.After(cutoff) {
		n++
	}
	evicted := make([]string, 0, n)
	for _, key := range t.index[:n] {
		delete(t.states, key.id)
		evicted = append(evicted, key.id)
	}
	t.index = slices.Delete(t.index, 0, n)
	t.mu.Unlock()

	if t.onEvict != nil {
		for _, id := range evicted {
			t.onEvict(id)
		}
	}
	return evicted
}

// Run sweeps every interval until ctx is done.
func (t *Table) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := t.Sweep(); len(evicted) > 0 {
				t.logger.Debug("evicted idle sessions",
					logging.String(logging.FieldEventType, "session_evicted"),
					logging.Int("count", len(evicted)),
					logging.Int("remaining", t.Len()),
				)
			}
		}
	}
}

func (t *Table) touchLocked(old indexKey, state *submission.State) {
	if idx, found := slices.BinarySearchFunc(t.index, old, compareKeys); found {
		t.index = slices.Delete(t.index, idx, idx+1)
	}
	state.UpdatedAt = t.now()
	t.insertLocked(indexKey{updatedAt: state.UpdatedAt, id: state.ID})
}

func (t *Table) insertLocked(key indexKey) {
	idx, _ := slices.BinarySearchFunc(t.index, key, compareKeys)
	t.index = slices.Insert(t.index, idx, key)
}
