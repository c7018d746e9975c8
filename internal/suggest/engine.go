// Package suggest decides which category a measure most likely belongs to
// and feeds confirmed classifications back into the library.
//
// Decision order, first hit wins:
//
//  1. exact match in the library (score 0.95, auto-classifiable)
//  2. partial match on shared words (score 0.85)
//  3. keyword lexicon (score capped at 0.8)
//
// Library failures never reach the caller of Suggest: they are reported as
// a StoreFault internally and the engine falls through to the keywords.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pbaille/hot/internal/classifier"
	"github.com/pbaille/hot/internal/domain"
	"github.com/pbaille/hot/internal/matcher"
	"github.com/pbaille/hot/internal/metrics"
	"github.com/pbaille/hot/internal/textnorm"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Scores for library-backed suggestions
const (
	ExactScore   = 0.95
	PartialScore = 0.85
)

// ReasonManualReview is returned for input that cannot be classified at all
const ReasonManualReview = "needs manual review"

const excerptLen = 40

// ErrInvalidInput is returned by Confirm for blank text or an unknown category
var ErrInvalidInput = errors.New("invalid input")

// Library is the knowledge base the engine reads and writes.
type Library interface {
	// ListEntries returns every entry in fetch order.
	ListEntries(ctx context.Context) ([]domain.LibraryEntry, error)
	// UpsertEntry inserts key with ReuseCount 1, or atomically increments
	// ReuseCount and overwrites Category when key exists.
	UpsertEntry(ctx context.Context, key, text string, cat domain.Category) (*domain.LibraryEntry, error)
}

// StoreFault wraps a library failure (including timeouts) seen during a lookup
type StoreFault struct {
	Op  string
	Err error
}

func (f *StoreFault) Error() string {
	return fmt.Sprintf("library %s: %v", f.Op, f.Err)
}

func (f *StoreFault) Unwrap() error { return f.Err }

// Config tunes the engine
type Config struct {
	// LookupTimeout bounds each library read; zero disables the bound
	LookupTimeout time.Duration
	// Concurrency bounds SuggestAll; values below 1 mean 8
	Concurrency int
}

// Engine produces suggestions. It is safe for concurrent use.
type Engine struct {
	library    Library
	classifier *classifier.Classifier
	config     Config
	logger     *zap.Logger
	now        func() time.Time
}

// New creates an Engine
func New(lib Library, clf *classifier.Classifier, cfg Config, logger *zap.Logger) (*Engine, error) {
	if lib == nil {
		return nil, fmt.Errorf("library cannot be nil")
	}
	if clf == nil {
		return nil, fmt.Errorf("classifier cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 8
	}
	return &Engine{
		library:    lib,
		classifier: clf,
		config:     cfg,
		logger:     logger.With(zap.String("component", "suggest")),
		now:        time.Now,
	}, nil
}

// Suggest returns the best category for text. It always returns a usable
// Suggestion; a CategoryNone result means the text needs a human.
func (e *Engine) Suggest(ctx context.Context, text string) domain.Suggestion {
	start := e.now()
	s := e.suggest(ctx, text)
	metrics.SuggestDuration.Observe(time.Since(start).Seconds())
	metrics.SuggestionsTotal.WithLabelValues(string(s.Source)).Inc()
	return s
}

func (e *Engine) suggest(ctx context.Context, text string) domain.Suggestion {
	if strings.TrimSpace(text) == "" {
		return domain.Suggestion{Reason: ReasonManualReview, Source: domain.SourceNone}
	}

	s, found, err := e.lookup(ctx, text)
	if err != nil {
		var fault *StoreFault
		if errors.As(err, &fault) {
			metrics.StoreFaultsTotal.WithLabelValues(fault.Op).Inc()
		}
		e.logger.Warn("library lookup failed, using keywords", zap.Error(err))
	} else if found {
		return s
	}

	return e.classifier.Classify(text)
}

// lookup consults the library. found is false when neither an exact nor a
// partial match exists; err is a *StoreFault when the library could not be read.
func (e *Engine) lookup(ctx context.Context, text string) (s domain.Suggestion, found bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, found = domain.Suggestion{}, false
			err = &StoreFault{Op: "list", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if e.config.LookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.LookupTimeout)
		defer cancel()
	}

	entries, err := e.listEntries(ctx)
	if err != nil {
		return domain.Suggestion{}, false, &StoreFault{Op: "list", Err: err}
	}

	if m := matcher.FindExact(text, entries); m != nil {
		return ExactSuggestion(m), true, nil
	}
	if m := matcher.FindPartial(text, entries); m != nil {
		return PartialSuggestion(m), true, nil
	}
	return domain.Suggestion{}, false, nil
}

type listResult struct {
	entries []domain.LibraryEntry
	err     error
}

// listEntries reads the library but returns as soon as ctx is done, even
// when the store ignores ctx. The abandoned read finishes in the background.
func (e *Engine) listEntries(ctx context.Context) ([]domain.LibraryEntry, error) {
	done := make(chan listResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- listResult{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		entries, err := e.library.ListEntries(ctx)
		done <- listResult{entries: entries, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil {
			res.err = ctx.Err()
		}
		return res.entries, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ExactSuggestion builds the suggestion for an exact library hit
func ExactSuggestion(m *domain.LibraryEntry) domain.Suggestion {
	return domain.Suggestion{
		Category:         m.Category,
		Reason:           fmt.Sprintf("classified before (%d times)", m.ReuseCount),
		Score:            ExactScore,
		AutoClassifiable: true,
		Source:           domain.SourceExact,
	}
}

// PartialSuggestion builds the suggestion for a shared-words library hit
func PartialSuggestion(m *domain.LibraryEntry) domain.Suggestion {
	return domain.Suggestion{
		Category: m.Category,
		Reason:   fmt.Sprintf("similar to: %q", textnorm.Excerpt(m.Text, excerptLen)),
		Score:    PartialScore,
		Source:   domain.SourcePartial,
	}
}

// SuggestAll computes suggestions for texts concurrently. The result is
// index-aligned with texts.
func (e *Engine) SuggestAll(ctx context.Context, texts []string) []domain.Suggestion {
	out := make([]domain.Suggestion, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Concurrency)
	for i, text := range texts {
		g.Go(func() error {
			out[i] = e.Suggest(gctx, text)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// Confirm records a confirmed classification in the library. Confirming the
// same normalized text again increments its reuse count and overwrites its
// category.
func (e *Engine) Confirm(ctx context.Context, text string, cat domain.Category) (*domain.LibraryEntry, error) {
	key := textnorm.Key(text)
	if key == "" {
		return nil, fmt.Errorf("confirm: empty text: %w", ErrInvalidInput)
	}
	if !cat.Valid() {
		return nil, fmt.Errorf("confirm: category %q: %w", cat, ErrInvalidInput)
	}

	entry, err := e.library.UpsertEntry(ctx, key, strings.TrimSpace(text), cat)
	if err != nil {
		metrics.ConfirmationsTotal.WithLabelValues("error").Inc()
		metrics.StoreFaultsTotal.WithLabelValues("upsert").Inc()
		return nil, fmt.Errorf("confirm: %w", &StoreFault{Op: "upsert", Err: err})
	}

	result := "updated"
	if entry.ReuseCount == 1 {
		result = "created"
	}
	metrics.ConfirmationsTotal.WithLabelValues(result).Inc()

	e.logger.Debug("library entry confirmed",
		zap.String("entry_id", entry.ID),
		zap.String("category", string(entry.Category)),
		zap.Int("reuse_count", entry.ReuseCount),
	)
	return entry, nil
}
