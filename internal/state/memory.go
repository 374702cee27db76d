package state

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/danielpatrickdp/moodengine/internal/mood"
)

// MemoryStore keeps everything in process. It backs tests and replays.
type MemoryStore struct {
	mu      sync.RWMutex
	current map[string]mood.EmotionalState
	history map[string][]mood.EmotionalState
	opts    options
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return &MemoryStore{
		current: make(map[string]mood.EmotionalState),
		history: make(map[string][]mood.EmotionalState),
		opts:    o,
	}
}

func (m *MemoryStore) GetCurrent(_ context.Context, userID string) (*mood.EmotionalState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.current[userID]
	if !ok {
		return nil, nil
	}
	out := st.Clone()
	return &out, nil
}

func (m *MemoryStore) Save(_ context.Context, st mood.EmotionalState) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current[st.UserID] = st.Clone()
	m.history[st.UserID] = append(m.history[st.UserID], st.Clone())
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, userID string, p Patch) (mood.EmotionalState, error) {
	return update(ctx, m, userID, p, m.opts.now())
}

func (m *MemoryStore) History(_ context.Context, userID string, days, limit int) ([]mood.EmotionalState, error) {
	return m.snapshots(userID, days, limit, false), nil
}

func (m *MemoryStore) ConflictHistory(_ context.Context, userID string, days int) ([]mood.EmotionalState, error) {
	return m.snapshots(userID, days, 0, true), nil
}

func (m *MemoryStore) snapshots(userID string, days, limit int, conflictOnly bool) []mood.EmotionalState {
	m.mu.RLock()
	saved := m.history[userID]
	snaps := make([]mood.EmotionalState, len(saved))
	for i, s := range saved {
		snaps[len(saved)-1-i] = s.Clone()
	}
	m.mu.RUnlock()

	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].LastUpdated.After(snaps[j].LastUpdated)
	})
	return filterHistory(snaps, cutoff(m.opts.now(), days), limit, conflictOnly)
}

func (m *MemoryStore) Delete(_ context.Context, stateID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	for user, st := range m.current {
		if st.StateID == stateID {
			delete(m.current, user)
			found = true
		}
	}
	for user, snaps := range m.history {
		kept := snaps[:0]
		for _, s := range snaps {
			if s.StateID == stateID {
				found = true
				continue
			}
			kept = append(kept, s)
		}
		if len(kept) == 0 {
			delete(m.history, user)
		} else {
			m.history[user] = kept
		}
	}
	if !found {
		return fmt.Errorf("delete %s: %w", stateID, ErrNotFound)
	}
	return nil
}

func (m *MemoryStore) DeleteUser(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.history[userID])
	if _, ok := m.current[userID]; ok {
		n++
	}
	delete(m.current, userID)
	delete(m.history, userID)
	return n, nil
}

func (m *MemoryStore) ConflictUsers(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for u, st := range m.current {
		if st.ConflictState.Active() {
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
