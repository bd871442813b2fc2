package vesting

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory ScheduleStore. It backs unit tests and the
// daemon's standalone development mode.
type MemoryStore struct {
	mu      sync.RWMutex
	ledgers map[string][]Schedule
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ledgers: make(map[string][]Schedule)}
}

func (m *MemoryStore) Schedules(ctx context.Context, beneficiary string) ([]Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seq := m.ledgers[beneficiary]
	out := make([]Schedule, len(seq))
	copy(out, seq)
	return out, nil
}

func (m *MemoryStore) Append(ctx context.Context, beneficiary string, s Schedule) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledgers[beneficiary] = append(m.ledgers[beneficiary], s)
	return len(m.ledgers[beneficiary]) - 1, nil
}

func (m *MemoryStore) Update(ctx context.Context, beneficiary string, index int, s Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := m.ledgers[beneficiary]
	if index < 0 || index >= len(seq) {
		return fmt.Errorf("schedule index %d out of range for beneficiary %s", index, beneficiary)
	}
	seq[index] = s
	return nil
}

func (m *MemoryStore) DeleteAll(ctx context.Context, beneficiary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ledgers, beneficiary)
	return nil
}

// WithinTx runs fn against a deep copy of the store and swaps the copy in
// only if fn succeeds, so a failed operation leaves no partial state behind.
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(tx ScheduleStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := make(map[string][]Schedule, len(m.ledgers))
	for b, seq := range m.ledgers {
		cp := make([]Schedule, len(seq))
		copy(cp, seq)
		clone[b] = cp
	}

	tx := &MemoryStore{ledgers: clone}
	if err := fn(tx); err != nil {
		return err
	}

	m.ledgers = tx.ledgers
	return nil
}
