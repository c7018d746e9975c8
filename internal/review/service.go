// Package review drives the human review loop around the suggestion
// engine: batches come in, items are queued with suggestions, reviewers
// confirm, defer or give up on them, and every confirmation feeds the
// library.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pbaille/hot/internal/domain"
	"github.com/pbaille/hot/internal/ingest"
	"github.com/pbaille/hot/internal/store"
	"github.com/pbaille/hot/internal/suggest"
	"go.uber.org/zap"
)

// Activity actions
const (
	ActionBatchCreated       = "batch_created"
	ActionItemClassified     = "item_classified"
	ActionItemAutoClassified = "item_auto_classified"
	ActionItemDeferred       = "item_deferred"
	ActionItemUnclassified   = "item_unclassified"
	ActionItemDeleted        = "item_deleted"
	ActionEntryReclassified  = "entry_reclassified"
	ActionEntryRemoved       = "entry_removed"
)

// ErrEmptyBatch is returned when a submission holds no measures
var ErrEmptyBatch = errors.New("no measures in submission")

// queueStatuses are the statuses still awaiting a decision
var queueStatuses = []domain.ItemStatus{domain.StatusPending, domain.StatusPendingReview}

// ItemStore persists items, batches and the activity log
type ItemStore interface {
	CreateBatch(ctx context.Context, texts []string, userID string) (*domain.Batch, []domain.Item, error)
	GetItem(ctx context.Context, id string) (*domain.Item, error)
	ListItems(ctx context.Context, statuses []domain.ItemStatus, limit, offset int) ([]domain.Item, error)
	SetItemStatus(ctx context.Context, id string, status domain.ItemStatus) (*domain.Item, error)
	ConfirmItem(ctx context.Context, id string, cat domain.Category) (*domain.Item, error)
	DeleteItem(ctx context.Context, id string) error
	LogActivity(ctx context.Context, action string, details map[string]string, userID string) (*domain.Activity, error)
	ListActivity(ctx context.Context, limit int) ([]domain.Activity, error)
	WindowCounter
}

// WindowCounter aggregates items and activity created since a point in time
type WindowCounter interface {
	CountItemsByStatus(ctx context.Context, since time.Time) (map[domain.ItemStatus]int, error)
	CountConfirmedByCategory(ctx context.Context, since time.Time) (map[domain.Category]int, error)
	CountActivityByAction(ctx context.Context, since time.Time) (map[string]int, error)
	DailyItemCounts(ctx context.Context, since time.Time) (map[string]int, error)
	DailyActivityCounts(ctx context.Context, since time.Time, actions ...string) (map[string]int, error)
}

// LibraryAdmin manages library entries directly
type LibraryAdmin interface {
	SearchEntries(ctx context.Context, q store.LibraryQuery) ([]domain.LibraryEntry, error)
	GetEntry(ctx context.Context, id string) (*domain.LibraryEntry, error)
	SetEntryCategory(ctx context.Context, id string, cat domain.Category) (*domain.LibraryEntry, error)
	DeleteEntry(ctx context.Context, id string) error
}

// Service coordinates items, library and engine
type Service struct {
	items         ItemStore
	library       LibraryAdmin
	engine        *suggest.Engine
	autoThreshold float64
	logger        *zap.Logger
	now           func() time.Time
}

// New creates a review service. autoThreshold is the minimum score an
// auto-classifiable suggestion needs for AutoClassify to accept it.
func New(items ItemStore, library LibraryAdmin, engine *suggest.Engine, autoThreshold float64, logger *zap.Logger) (*Service, error) {
	if items == nil || library == nil || engine == nil {
		return nil, fmt.Errorf("review: items, library and engine are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		items:         items,
		library:       library,
		engine:        engine,
		autoThreshold: autoThreshold,
		logger:        logger.With(zap.String("component", "review")),
		now:           time.Now,
	}, nil
}

// SetClock replaces the clock that anchors analytics windows
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Engine exposes the underlying suggestion engine
func (s *Service) Engine() *suggest.Engine {
	return s.engine
}

// Ingest splits raw input into measures and stores them as a pending batch
func (s *Service) Ingest(ctx context.Context, raw, userID string) (*domain.Batch, []domain.Item, error) {
	texts := ingest.SplitMeasures(raw)
	if len(texts) == 0 {
		return nil, nil, ErrEmptyBatch
	}

	batch, items, err := s.items.CreateBatch(ctx, texts, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("ingest: %w", err)
	}

	s.logger.Info("batch created", zap.String("batch_id", batch.ID), zap.Int("count", batch.Count))
	s.record(ctx, ActionBatchCreated, map[string]string{
		"batch_id": batch.ID,
		"count":    fmt.Sprint(batch.Count),
	}, userID)
	return batch, items, nil
}

// Queue returns items awaiting review, oldest first, each with a fresh
// suggestion. A non-positive limit returns the whole queue.
func (s *Service) Queue(ctx context.Context, limit int) ([]domain.ItemWithSuggestion, error) {
	if limit <= 0 {
		limit = -1
	}
	items, err := s.items.ListItems(ctx, queueStatuses, limit, 0)
	if err != nil {
		return nil, fmt.Errorf("queue: %w", err)
	}

	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Text
	}
	suggestions := s.engine.SuggestAll(ctx, texts)

	out := make([]domain.ItemWithSuggestion, len(items))
	for i, it := range items {
		out[i] = domain.ItemWithSuggestion{Item: it, Suggestion: suggestions[i]}
	}
	return out, nil
}

// Items lists items by status, oldest first. A non-positive limit returns
// every matching item.
func (s *Service) Items(ctx context.Context, statuses []domain.ItemStatus, limit, offset int) ([]domain.Item, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.items.ListItems(ctx, statuses, limit, offset)
}

// ConfirmItem records the reviewer's category for an item and teaches the
// library. A library failure is logged and does not undo the item update.
func (s *Service) ConfirmItem(ctx context.Context, id string, cat domain.Category, userID, justification string) (*domain.Item, error) {
	return s.confirm(ctx, id, cat, userID, justification, ActionItemClassified)
}

func (s *Service) confirm(ctx context.Context, id string, cat domain.Category, userID, justification, action string) (*domain.Item, error) {
	if !cat.Valid() {
		return nil, fmt.Errorf("confirm item: category %q: %w", cat, suggest.ErrInvalidInput)
	}

	item, err := s.items.ConfirmItem(ctx, id, cat)
	if err != nil {
		return nil, fmt.Errorf("confirm item: %w", err)
	}

	if _, err := s.engine.Confirm(ctx, item.Text, cat); err != nil {
		s.logger.Warn("library update failed",
			zap.String("item_id", item.ID),
			zap.Error(err),
		)
	}

	details := map[string]string{
		"item_id":  item.ID,
		"text":     item.Text,
		"category": string(cat),
	}
	if justification = strings.TrimSpace(justification); justification != "" {
		details["justification"] = justification
	}
	s.record(ctx, action, details, userID)
	return item, nil
}

// Defer parks an item for a later look
func (s *Service) Defer(ctx context.Context, id, userID string) (*domain.Item, error) {
	return s.setStatus(ctx, id, domain.StatusPendingReview, ActionItemDeferred, userID)
}

// MarkUnclassified takes an item out of the queue without a category
func (s *Service) MarkUnclassified(ctx context.Context, id, userID string) (*domain.Item, error) {
	return s.setStatus(ctx, id, domain.StatusUnclassified, ActionItemUnclassified, userID)
}

func (s *Service) setStatus(ctx context.Context, id string, status domain.ItemStatus, action, userID string) (*domain.Item, error) {
	item, err := s.items.SetItemStatus(ctx, id, status)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", strings.ReplaceAll(action, "_", " "), err)
	}
	s.record(ctx, action, map[string]string{"item_id": item.ID}, userID)
	return item, nil
}

// DeleteItem removes an item
func (s *Service) DeleteItem(ctx context.Context, id, userID string) error {
	if err := s.items.DeleteItem(ctx, id); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	s.record(ctx, ActionItemDeleted, map[string]string{"item_id": id}, userID)
	return nil
}

// AutoClassify confirms every queued item whose suggestion is an exact
// library match scoring at least the configured threshold. It returns the
// number of items confirmed.
func (s *Service) AutoClassify(ctx context.Context, userID string) (int, error) {
	queue, err := s.Queue(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("auto classify: %w", err)
	}

	confirmed := 0
	for _, q := range queue {
		sg := q.Suggestion
		if !sg.AutoClassifiable || !sg.Category.Valid() || sg.Score < s.autoThreshold {
			continue
		}
		if err := ctx.Err(); err != nil {
			return confirmed, fmt.Errorf("auto classify: %w", err)
		}
		if _, err := s.confirm(ctx, q.ID, sg.Category, userID, "auto: "+sg.Reason, ActionItemAutoClassified); err != nil {
			return confirmed, fmt.Errorf("auto classify: %w", err)
		}
		confirmed++
	}

	s.logger.Info("auto classification finished",
		zap.Int("queued", len(queue)),
		zap.Int("confirmed", confirmed),
	)
	return confirmed, nil
}

// Library searches the library
func (s *Service) Library(ctx context.Context, q store.LibraryQuery) ([]domain.LibraryEntry, error) {
	entries, err := s.library.SearchEntries(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search library: %w", err)
	}
	return entries, nil
}

// Reclassify changes an entry's category without counting a reuse
func (s *Service) Reclassify(ctx context.Context, entryID string, cat domain.Category, userID, justification string) (*domain.LibraryEntry, error) {
	if !cat.Valid() {
		return nil, fmt.Errorf("reclassify: category %q: %w", cat, suggest.ErrInvalidInput)
	}

	prev, err := s.library.GetEntry(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("reclassify: %w", err)
	}
	entry, err := s.library.SetEntryCategory(ctx, entryID, cat)
	if err != nil {
		return nil, fmt.Errorf("reclassify: %w", err)
	}

	details := map[string]string{
		"entry_id": entry.ID,
		"text":     entry.Text,
		"from":     string(prev.Category),
		"to":       string(cat),
	}
	if justification = strings.TrimSpace(justification); justification != "" {
		details["justification"] = justification
	}
	s.record(ctx, ActionEntryReclassified, details, userID)
	return entry, nil
}

// RemoveEntry deletes an entry from the library
func (s *Service) RemoveEntry(ctx context.Context, entryID, userID string) error {
	entry, err := s.library.GetEntry(ctx, entryID)
	if err != nil {
		return fmt.Errorf("remove entry: %w", err)
	}
	if err := s.library.DeleteEntry(ctx, entryID); err != nil {
		return fmt.Errorf("remove entry: %w", err)
	}
	s.record(ctx, ActionEntryRemoved, map[string]string{
		"entry_id": entry.ID,
		"text":     entry.Text,
	}, userID)
	return nil
}

// Activity returns the most recent activity first
func (s *Service) Activity(ctx context.Context, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.items.ListActivity(ctx, limit)
}

func (s *Service) record(ctx context.Context, action string, details map[string]string, userID string) {
	if _, err := s.items.LogActivity(ctx, action, details, userID); err != nil {
		s.logger.Warn("activity log failed", zap.String("action", action), zap.Error(err))
	}
}
