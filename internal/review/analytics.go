package review

import (
	"context"
	"fmt"

	"github.com/pbaille/hot/internal/report"
	"github.com/pbaille/hot/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Analytics summarizes the review work of the window p ending now
func (s *Service) Analytics(ctx context.Context, p report.Period) (*report.Analytics, error) {
	now := s.now()
	data := report.WindowData{Period: p, Since: p.Start(now), Now: now}

	var actions map[string]int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		data.ItemsByStatus, err = s.items.CountItemsByStatus(gctx, data.Since)
		return err
	})
	g.Go(func() (err error) {
		data.Confirmations, err = s.items.CountConfirmedByCategory(gctx, data.Since)
		return err
	})
	g.Go(func() (err error) {
		actions, err = s.items.CountActivityByAction(gctx, data.Since)
		return err
	})
	g.Go(func() (err error) {
		data.Recent, err = s.items.ListActivity(gctx, 10)
		return err
	})
	g.Go(func() (err error) {
		data.Library, err = s.library.SearchEntries(gctx, store.LibraryQuery{})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analytics: %w", err)
	}

	data.AutoConfirmations = actions[ActionItemAutoClassified]
	data.ManualConfirmations = actions[ActionItemClassified]

	a := report.BuildAnalytics(data)
	s.logger.Debug("analytics computed",
		zap.String("period", string(p)),
		zap.Int("items", a.Items.Total),
	)
	return &a, nil
}

// Temporal returns items created and items classified per day over the
// window p ending now
func (s *Service) Temporal(ctx context.Context, p report.Period) (*report.Temporal, error) {
	now := s.now()
	since := p.Start(now)

	var created, classified map[string]int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		created, err = s.items.DailyItemCounts(gctx, since)
		return err
	})
	g.Go(func() (err error) {
		classified, err = s.items.DailyActivityCounts(gctx, since, ActionItemClassified, ActionItemAutoClassified)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("temporal analytics: %w", err)
	}

	t := report.BuildTemporal(p, since, now, created, classified)
	return &t, nil
}
