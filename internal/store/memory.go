package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pbaille/hot/internal/domain"
)

// Memory is an in-process library. It is safe for concurrent use.
type Memory struct {
	mu    sync.Mutex
	byKey map[string]*domain.LibraryEntry
	order []string // keys in insertion order
	now   func() time.Time
}

// NewMemory creates an empty in-memory library
func NewMemory() *Memory {
	return &Memory{
		byKey: make(map[string]*domain.LibraryEntry),
		now:   time.Now,
	}
}

// ListEntries returns all entries in fetch order
func (m *Memory) ListEntries(ctx context.Context) ([]domain.LibraryEntry, error) {
	return m.SearchEntries(ctx, LibraryQuery{})
}

// SearchEntries returns entries matching q
func (m *Memory) SearchEntries(ctx context.Context, q LibraryQuery) ([]domain.LibraryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	m.mu.Lock()
	entries := make([]domain.LibraryEntry, 0, len(m.order))
	for _, k := range m.order {
		entries = append(entries, *m.byKey[k])
	}
	m.mu.Unlock()

	return filterEntries(entries, q), nil
}

// UpsertEntry inserts or increments the entry for key
func (m *Memory) UpsertEntry(ctx context.Context, key, text string, cat domain.Category) (*domain.LibraryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("upsert entry: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.byKey[key]
	if !ok {
		e = &domain.LibraryEntry{
			ID:        uuid.New().String(),
			Key:       key,
			Text:      text,
			CreatedAt: now,
		}
		m.byKey[key] = e
		m.order = append(m.order, key)
	}
	e.Category = cat
	e.ReuseCount++
	e.UpdatedAt = now

	out := *e
	return &out, nil
}

// GetEntry returns the entry with the given ID
func (m *Memory) GetEntry(ctx context.Context, id string) (*domain.LibraryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.findLocked(id)
	if err != nil {
		return nil, err
	}
	out := *e
	return &out, nil
}

// SetEntryCategory overwrites an entry's category without touching its reuse count
func (m *Memory) SetEntryCategory(ctx context.Context, id string, cat domain.Category) (*domain.LibraryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.findLocked(id)
	if err != nil {
		return nil, err
	}
	e.Category = cat
	e.UpdatedAt = m.now()
	out := *e
	return &out, nil
}

// DeleteEntry removes an entry
func (m *Memory) DeleteEntry(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.findLocked(id)
	if err != nil {
		return err
	}
	delete(m.byKey, e.Key)
	for i, k := range m.order {
		if k == e.Key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) findLocked(id string) (*domain.LibraryEntry, error) {
	for _, k := range m.order {
		if e := m.byKey[k]; e.ID == id {
			return e, nil
		}
	}
	return nil, fmt.Errorf("get entry %s: %w", id, ErrNotFound)
}
