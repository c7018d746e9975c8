package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pbaille/hot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// library is what every backend in this package implements
type library interface {
	ListEntries(ctx context.Context) ([]domain.LibraryEntry, error)
	SearchEntries(ctx context.Context, q LibraryQuery) ([]domain.LibraryEntry, error)
	UpsertEntry(ctx context.Context, key, text string, cat domain.Category) (*domain.LibraryEntry, error)
	GetEntry(ctx context.Context, id string) (*domain.LibraryEntry, error)
	SetEntryCategory(ctx context.Context, id string, cat domain.Category) (*domain.LibraryEntry, error)
	DeleteEntry(ctx context.Context, id string) error
}

// runLibraryContract exercises the behavior shared by all backends.
// tick advances the backend clock so ordering by update time is deterministic.
func runLibraryContract(t *testing.T, newLib func(t *testing.T) (library, func())) {
	ctx := context.Background()

	t.Run("upsert creates then increments", func(t *testing.T) {
		lib, tick := newLib(t)

		e1, err := lib.UpsertEntry(ctx, "firewall update", "Firewall update", domain.CategoryTechnical)
		require.NoError(t, err)
		assert.Equal(t, 1, e1.ReuseCount)
		assert.Equal(t, "Firewall update", e1.Text)
		assert.NotEmpty(t, e1.ID)

		tick()
		e2, err := lib.UpsertEntry(ctx, "firewall update", "firewall UPDATE", domain.CategoryOrganizational)
		require.NoError(t, err)
		assert.Equal(t, e1.ID, e2.ID)
		assert.Equal(t, 2, e2.ReuseCount)
		assert.Equal(t, domain.CategoryOrganizational, e2.Category)
		assert.Equal(t, "Firewall update", e2.Text, "display text keeps the first confirmation")
		assert.True(t, e2.UpdatedAt.After(e1.UpdatedAt))

		entries, err := lib.ListEntries(ctx)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("fetch order is reuse then recency", func(t *testing.T) {
		lib, tick := newLib(t)

		_, err := lib.UpsertEntry(ctx, "a", "a", domain.CategoryHuman)
		require.NoError(t, err)
		tick()
		_, err = lib.UpsertEntry(ctx, "b", "b", domain.CategoryHuman)
		require.NoError(t, err)
		tick()
		_, err = lib.UpsertEntry(ctx, "c", "c", domain.CategoryHuman)
		require.NoError(t, err)
		tick()
		_, err = lib.UpsertEntry(ctx, "a", "a", domain.CategoryHuman)
		require.NoError(t, err)

		entries, err := lib.ListEntries(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, []string{"a", "c", "b"}, []string{entries[0].Text, entries[1].Text, entries[2].Text})
	})

	t.Run("search and filter", func(t *testing.T) {
		lib, tick := newLib(t)
		for _, e := range []struct {
			key string
			cat domain.Category
		}{
			{"backup de dados", domain.CategoryTechnical},
			{"politica de backup", domain.CategoryOrganizational},
			{"curso de lideranca", domain.CategoryHuman},
		} {
			_, err := lib.UpsertEntry(ctx, e.key, e.key, e.cat)
			require.NoError(t, err)
			tick()
		}

		got, err := lib.SearchEntries(ctx, LibraryQuery{Search: "BACKUP"})
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = lib.SearchEntries(ctx, LibraryQuery{Search: "backup", Category: domain.CategoryOrganizational})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "politica de backup", got[0].Text)

		got, err = lib.SearchEntries(ctx, LibraryQuery{Order: OrderText})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "backup de dados", got[0].Text)
		assert.Equal(t, "politica de backup", got[2].Text)

		got, err = lib.SearchEntries(ctx, LibraryQuery{Order: OrderRecent})
		require.NoError(t, err)
		assert.Equal(t, "curso de lideranca", got[0].Text)
	})

	t.Run("search wildcards are literal", func(t *testing.T) {
		lib, _ := newLib(t)
		_, err := lib.UpsertEntry(ctx, "backup diario", "backup diario", domain.CategoryTechnical)
		require.NoError(t, err)
		_, err = lib.UpsertEntry(ctx, "taxa de 100% de_cobertura", "taxa de 100% de_cobertura", domain.CategoryOrganizational)
		require.NoError(t, err)

		for search, want := range map[string]int{
			"%":           1,
			"b_ckup":      0,
			"backup":      1,
			`\`:           0,
			"100% de_cob": 1,
		} {
			got, err := lib.SearchEntries(ctx, LibraryQuery{Search: search})
			require.NoError(t, err)
			assert.Len(t, got, want, "search %q", search)
		}
	})

	t.Run("get, reclassify, delete", func(t *testing.T) {
		lib, _ := newLib(t)
		e, err := lib.UpsertEntry(ctx, "senha forte", "Senha forte", domain.CategoryTechnical)
		require.NoError(t, err)

		got, err := lib.GetEntry(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, "Senha forte", got.Text)

		upd, err := lib.SetEntryCategory(ctx, e.ID, domain.CategoryHuman)
		require.NoError(t, err)
		assert.Equal(t, domain.CategoryHuman, upd.Category)
		assert.Equal(t, 1, upd.ReuseCount)

		require.NoError(t, lib.DeleteEntry(ctx, e.ID))
		_, err = lib.GetEntry(ctx, e.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, lib.DeleteEntry(ctx, e.ID), ErrNotFound)
		_, err = lib.SetEntryCategory(ctx, e.ID, domain.CategoryHuman)
		assert.ErrorIs(t, err, ErrNotFound)

		entries, err := lib.ListEntries(ctx)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("concurrent upserts never lose increments", func(t *testing.T) {
		lib, _ := newLib(t)
		const n = 40

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := lib.UpsertEntry(ctx, "firewall update", "Firewall update", domain.CategoryTechnical)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		entries, err := lib.ListEntries(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, n, entries[0].ReuseCount)
	})
}

// fakeClock returns a clock func and a tick that advances it
func fakeClock() (func() time.Time, func()) {
	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}, func() {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(time.Second)
		}
}

func TestMemory_LibraryContract(t *testing.T) {
	runLibraryContract(t, func(t *testing.T) (library, func()) {
		m := NewMemory()
		clock, tick := fakeClock()
		m.now = clock
		return m, tick
	})
}

func TestMemory_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMemory()
	_, err := m.ListEntries(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = m.UpsertEntry(ctx, "k", "k", domain.CategoryHuman)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseLibraryOrder(t *testing.T) {
	o, ok := ParseLibraryOrder("")
	assert.True(t, ok)
	assert.Equal(t, OrderReuse, o)

	o, ok = ParseLibraryOrder("text")
	assert.True(t, ok)
	assert.Equal(t, OrderText, o)

	_, ok = ParseLibraryOrder("random")
	assert.False(t, ok)
}
