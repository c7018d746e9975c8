package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pbaille/hot/internal/domain"
	"github.com/pbaille/hot/internal/textnorm"
)

// Store handles database operations for items, the library and the activity log
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens the SQLite database at dbPath and applies migrations
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer at a time; upserts rely on it together with the transaction
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return NewWithDB(db), nil
}

// NewWithDB wraps an existing connection without migrating it
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const libraryColumns = "id, key, text, category, reuse_count, created_at, updated_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*domain.LibraryEntry, error) {
	var e domain.LibraryEntry
	var cat string
	if err := row.Scan(&e.ID, &e.Key, &e.Text, &cat, &e.ReuseCount, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Category = domain.Category(cat)
	return &e, nil
}

// ListEntries returns the whole library in fetch order
func (s *Store) ListEntries(ctx context.Context) ([]domain.LibraryEntry, error) {
	return s.SearchEntries(ctx, LibraryQuery{})
}

// SearchEntries returns library entries matching q
func (s *Store) SearchEntries(ctx context.Context, q LibraryQuery) ([]domain.LibraryEntry, error) {
	var where []string
	var args []any

	if search := strings.TrimSpace(q.Search); search != "" {
		where = append(where, `key LIKE ? ESCAPE '\'`)
		args = append(args, "%"+likeEscaper.Replace(textnorm.Key(search))+"%")
	}
	if q.Category != domain.CategoryNone {
		where = append(where, "category = ?")
		args = append(args, string(q.Category))
	}

	query := "SELECT " + libraryColumns + " FROM library"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	switch q.Order {
	case OrderText:
		query += " ORDER BY key ASC"
	case OrderRecent:
		query += " ORDER BY updated_at DESC"
	default:
		query += " ORDER BY reuse_count DESC, updated_at DESC"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LibraryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	return entries, nil
}

// likeEscaper makes LIKE treat the search text literally
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// UpsertEntry inserts key with reuse count 1, or increments the existing
// row and overwrites its category. The INSERT ... ON CONFLICT and the read
// back run in one transaction on the single connection, so concurrent
// confirmations of the same key never lose an increment.
func (s *Store) UpsertEntry(ctx context.Context, key, text string, cat domain.Category) (*domain.LibraryEntry, error) {
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO library (id, key, text, category, reuse_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			category = excluded.category,
			reuse_count = library.reuse_count + 1,
			updated_at = excluded.updated_at
	`, uuid.New().String(), key, text, string(cat), now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert entry: %w", err)
	}

	entry, err := scanEntry(tx.QueryRowContext(ctx, "SELECT "+libraryColumns+" FROM library WHERE key = ?", key))
	if err != nil {
		return nil, fmt.Errorf("read upserted entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert: %w", err)
	}
	return entry, nil
}

// GetEntry retrieves a library entry by ID
func (s *Store) GetEntry(ctx context.Context, id string) (*domain.LibraryEntry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, "SELECT "+libraryColumns+" FROM library WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

// SetEntryCategory reclassifies a library entry without counting a reuse
func (s *Store) SetEntryCategory(ctx context.Context, id string, cat domain.Category) (*domain.LibraryEntry, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE library SET category = ?, updated_at = ? WHERE id = ?",
		string(cat), s.now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update entry: %w", err)
	}
	if err := expectOne(res, "update entry", id); err != nil {
		return nil, err
	}
	return s.GetEntry(ctx, id)
}

// DeleteEntry removes a library entry
func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM library WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return expectOne(res, "delete entry", id)
}

// CreateBatch stores texts as pending items under a new batch
func (s *Store) CreateBatch(ctx context.Context, texts []string, userID string) (*domain.Batch, []domain.Item, error) {
	now := s.now()
	batch := &domain.Batch{
		ID:        uuid.New().String(),
		CreatedBy: userID,
		Count:     len(texts),
		CreatedAt: now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO batches (id, created_by, count, created_at) VALUES (?, ?, ?, ?)",
		batch.ID, nullString(userID), batch.Count, now,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("insert batch: %w", err)
	}

	items := make([]domain.Item, 0, len(texts))
	for _, text := range texts {
		item := domain.Item{
			ID:        uuid.New().String(),
			BatchID:   batch.ID,
			Text:      text,
			Status:    domain.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO items (id, batch_id, text, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
			item.ID, item.BatchID, item.Text, string(item.Status), now, now,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("insert item: %w", err)
		}
		items = append(items, item)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit batch: %w", err)
	}
	return batch, items, nil
}

const itemColumns = "id, batch_id, text, status, confirmed_category, created_at, updated_at"

func scanItem(row scanner) (*domain.Item, error) {
	var it domain.Item
	var status string
	var cat sql.NullString
	if err := row.Scan(&it.ID, &it.BatchID, &it.Text, &status, &cat, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	it.Status = domain.ItemStatus(status)
	it.ConfirmedCategory = domain.Category(cat.String)
	return &it, nil
}

// GetItem retrieves an item by ID
func (s *Store) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	it, err := scanItem(s.db.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM items WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return it, nil
}

// ResolveItemID expands an ID prefix to a full item ID
func (s *Store) ResolveItemID(ctx context.Context, prefix string) (string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM items WHERE id LIKE ? LIMIT 2", prefix+"%")
	if err != nil {
		return "", fmt.Errorf("resolve item: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("scan item id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("resolve item: %w", err)
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("item %s: %w", prefix, ErrNotFound)
	case 1:
		return ids[0], nil
	}
	return "", fmt.Errorf("item prefix %s is ambiguous", prefix)
}

// ListItems returns items with any of the given statuses (all when empty),
// oldest first
func (s *Store) ListItems(ctx context.Context, statuses []domain.ItemStatus, limit, offset int) ([]domain.Item, error) {
	query := "SELECT " + itemColumns + " FROM items"
	var args []any
	if len(statuses) > 0 {
		marks := make([]string, len(statuses))
		for i, st := range statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		query += " WHERE status IN (" + strings.Join(marks, ", ") + ")"
	}
	query += " ORDER BY created_at ASC, rowid ASC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	return items, nil
}

// SetItemStatus moves an item to a non-confirmed status and clears its category
func (s *Store) SetItemStatus(ctx context.Context, id string, status domain.ItemStatus) (*domain.Item, error) {
	if !status.Valid() || status == domain.StatusConfirmed {
		return nil, fmt.Errorf("set item status: invalid status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE items SET status = ?, confirmed_category = NULL, updated_at = ? WHERE id = ?",
		string(status), s.now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("set item status: %w", err)
	}
	if err := expectOne(res, "set item status", id); err != nil {
		return nil, err
	}
	return s.GetItem(ctx, id)
}

// ConfirmItem marks an item confirmed with the given category
func (s *Store) ConfirmItem(ctx context.Context, id string, cat domain.Category) (*domain.Item, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE items SET status = ?, confirmed_category = ?, updated_at = ? WHERE id = ?",
		string(domain.StatusConfirmed), string(cat), s.now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("confirm item: %w", err)
	}
	if err := expectOne(res, "confirm item", id); err != nil {
		return nil, err
	}
	return s.GetItem(ctx, id)
}

// DeleteItem removes an item
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return expectOne(res, "delete item", id)
}

// LogActivity appends to the activity log
func (s *Store) LogActivity(ctx context.Context, action string, details map[string]string, userID string) (*domain.Activity, error) {
	a := &domain.Activity{
		ID:        uuid.New().String(),
		Action:    action,
		Details:   details,
		UserID:    userID,
		CreatedAt: s.now(),
	}

	var raw []byte
	if len(details) > 0 {
		var err error
		if raw, err = json.Marshal(details); err != nil {
			return nil, fmt.Errorf("marshal activity details: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO activity (id, action, details, user_id, created_at) VALUES (?, ?, ?, ?, ?)",
		a.ID, a.Action, nullString(string(raw)), nullString(userID), a.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert activity: %w", err)
	}
	return a, nil
}

// ListActivity returns the most recent activity first
func (s *Store) ListActivity(ctx context.Context, limit int) ([]domain.Activity, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, action, details, user_id, created_at FROM activity ORDER BY created_at DESC, rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []domain.Activity
	for rows.Next() {
		var a domain.Activity
		var details, userID sql.NullString
		if err := rows.Scan(&a.ID, &a.Action, &details, &userID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &a.Details); err != nil {
				return nil, fmt.Errorf("decode activity details: %w", err)
			}
		}
		a.UserID = userID.String
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}

	return out, nil
}

func expectOne(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
