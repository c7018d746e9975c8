package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pbaille/hot/internal/api"
	"github.com/pbaille/hot/internal/domain"
	"github.com/pbaille/hot/internal/ingest"
	"github.com/pbaille/hot/internal/report"
	"github.com/pbaille/hot/internal/store"
	"github.com/pbaille/hot/internal/textnorm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func printSuggestion(sg domain.Suggestion) {
	if sg.Category.Valid() {
		fmt.Printf("Category: %s (%s)\n", sg.Category, sg.Category.Label())
	} else {
		fmt.Println("Category: -")
	}
	fmt.Printf("Reason:   %s\n", sg.Reason)
	fmt.Printf("Score:    %.2f\n", sg.Score)
	fmt.Printf("Source:   %s\n", sg.Source)
	if sg.AutoClassifiable {
		fmt.Println("(auto-classifiable)")
	}
}

func suggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest [text]",
		Short: "Suggest a category for a measure",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			printSuggestion(a.review.Engine().Suggest(ctx, strings.Join(args, " ")))
			return nil
		},
	}
}

func confirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm [category] [text]",
		Short: "Teach the library a confirmed classification",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := domain.ParseCategory(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			entry, err := a.review.Engine().Confirm(ctx, strings.Join(args[1:], " "), cat)
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s  %s (used %dx)\n", entry.ID[:8], entry.Category, entry.Text, entry.ReuseCount)
			return nil
		},
	}
}

func ingestCmd() *cobra.Command {
	var file, url string

	cmd := &cobra.Command{
		Use:   "ingest [measures...]",
		Short: "Submit a batch of measures for review",
		Long: "Submit measures as arguments, from a file or from a web page.\n" +
			"Text is split on newlines, commas and semicolons.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var raw string
			switch {
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read %s: %w", file, err)
				}
				raw = string(data)
			case url != "":
				text, err := ingest.Fetch(ctx, url)
				if err != nil {
					return err
				}
				raw = text
			default:
				raw = strings.Join(args, "\n")
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			batch, items, err := a.review.Ingest(ctx, raw, userID)
			if err != nil {
				return err
			}
			fmt.Printf("Batch %s: %d measures queued\n", batch.ID[:8], batch.Count)
			for _, it := range items {
				fmt.Printf("  %s  %s\n", it.ID[:8], textnorm.Excerpt(it.Text, 60))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read measures from a file")
	cmd.Flags().StringVar(&url, "url", "", "extract measures from a web page")
	cmd.MarkFlagsMutuallyExclusive("file", "url")
	return cmd
}

func queueCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List measures awaiting review with suggestions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			queue, err := a.review.Queue(ctx, limit)
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				fmt.Println("Queue is empty. Use 'hot ingest' to submit measures.")
				return nil
			}

			for _, q := range queue {
				cat := "-"
				if q.Suggestion.Category.Valid() {
					cat = string(q.Suggestion.Category)
				}
				marker := " "
				if q.Status == domain.StatusPendingReview {
					marker = "?"
				}
				fmt.Printf("%s%s  %s %.2f  %-50s  %s\n",
					marker, q.ID[:8], cat, q.Suggestion.Score,
					textnorm.Excerpt(q.Text, 50), q.Suggestion.Reason)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of items to show (0 for all)")
	return cmd
}

// withItem resolves an item ID prefix and runs fn with the full ID
func withItem(ctx context.Context, prefix string, fn func(a *app, id string) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := a.store.ResolveItemID(ctx, prefix)
	if err != nil {
		return err
	}
	return fn(a, id)
}

func classifyCmd() *cobra.Command {
	var why string

	cmd := &cobra.Command{
		Use:   "classify [item-id] [category]",
		Short: "Confirm the category of a queued measure",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := domain.ParseCategory(args[1])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return withItem(ctx, args[0], func(a *app, id string) error {
				item, err := a.review.ConfirmItem(ctx, id, cat, userID, why)
				if err != nil {
					return err
				}
				fmt.Printf("%s classified as %s: %s\n", item.ID[:8], cat.Label(), item.Text)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&why, "why", "", "justification recorded in the activity log")
	return cmd
}

func deferCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "defer [item-id]",
		Short: "Park a measure for later review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withItem(ctx, args[0], func(a *app, id string) error {
				item, err := a.review.Defer(ctx, id, userID)
				if err != nil {
					return err
				}
				fmt.Printf("%s deferred\n", item.ID[:8])
				return nil
			})
		},
	}
}

func dropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop [item-id]",
		Short: "Mark a measure as unclassifiable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withItem(ctx, args[0], func(a *app, id string) error {
				item, err := a.review.MarkUnclassified(ctx, id, userID)
				if err != nil {
					return err
				}
				fmt.Printf("%s marked unclassified\n", item.ID[:8])
				return nil
			})
		},
	}
}

func autoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auto",
		Short: "Confirm every queued measure that exactly matches the library",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.review.AutoClassify(ctx, userID)
			if err != nil {
				return err
			}
			fmt.Printf("%d measures classified automatically\n", n)
			return nil
		},
	}
}

func libraryQueryFlags(cmd *cobra.Command, search, category, order *string) {
	cmd.Flags().StringVarP(search, "search", "s", "", "only entries containing this text")
	cmd.Flags().StringVarP(category, "category", "c", "", "only entries in this category (H, O, T)")
	cmd.Flags().StringVar(order, "order", "reuse", "sort by reuse, text or recent")
}

func buildLibraryQuery(search, category, order string) (store.LibraryQuery, error) {
	q := store.LibraryQuery{Search: search}
	if category != "" {
		cat, err := domain.ParseCategory(category)
		if err != nil {
			return q, err
		}
		q.Category = cat
	}
	o, ok := store.ParseLibraryOrder(order)
	if !ok {
		return q, fmt.Errorf("invalid order %q (want reuse, text or recent)", order)
	}
	q.Order = o
	return q, nil
}

func libraryCmd() *cobra.Command {
	var search, category, order string

	cmd := &cobra.Command{
		Use:   "library",
		Short: "List the knowledge base",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := buildLibraryQuery(search, category, order)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.review.Library(ctx, q)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("Library is empty. Confirmed classifications land here.")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s  %s  %3dx  %s\n", e.ID[:8], e.Category, e.ReuseCount, textnorm.Excerpt(e.Text, 60))
			}
			return nil
		},
	}
	libraryQueryFlags(cmd, &search, &category, &order)

	cmd.AddCommand(exportCmd())
	cmd.AddCommand(libraryStatsCmd())
	return cmd
}

func exportCmd() *cobra.Command {
	var search, category, order, format, out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the library as CSV or text",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := buildLibraryQuery(search, category, order)
			if err != nil {
				return err
			}
			if format != "csv" && format != "text" {
				return fmt.Errorf("invalid format %q (want csv or text)", format)
			}

			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.review.Library(ctx, q)
			if err != nil {
				return err
			}

			w := os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}

			if format == "text" {
				return report.WriteText(w, entries, time.Now())
			}
			return report.WriteCSV(w, entries)
		},
	}
	libraryQueryFlags(cmd, &search, &category, &order)
	cmd.Flags().StringVar(&format, "format", "csv", "csv or text")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func libraryStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the library",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.review.Library(ctx, store.LibraryQuery{})
			if err != nil {
				return err
			}
			s := report.Summarize(entries)

			fmt.Printf("Entries: %d\n", s.Total)
			for _, cat := range domain.Categories {
				fmt.Printf("  %-15s %d\n", cat.Label(), s.ByCategory[cat])
			}
			fmt.Printf("Reuses:  %d\n", s.TotalReuses)
			if s.MostReused != nil {
				fmt.Printf("Most reused: %s (%dx)\n", textnorm.Excerpt(s.MostReused.Text, 60), s.MostReused.ReuseCount)
			}
			return nil
		},
	}
}

func activityCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			acts, err := a.review.Activity(ctx, limit)
			if err != nil {
				return err
			}
			for _, act := range acts {
				who := act.UserID
				if who == "" {
					who = "-"
				}
				fmt.Printf("%s  %-18s %-10s %s\n",
					act.CreatedAt.Format("2006-01-02 15:04:05"), act.Action, who, formatDetails(act.Details))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records to show")
	return cmd
}

func formatDetails(details map[string]string) string {
	for _, k := range []string{"text", "batch_id", "item_id", "entry_id"} {
		if v, ok := details[k]; ok {
			return textnorm.Excerpt(v, 50)
		}
	}
	return ""
}

func serveCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := &api.Config{Host: a.cfg.Server.Host, Port: a.cfg.Server.Port}
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			server, err := api.New(a.review, a.store, a.logger, cfg)
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})

			err = g.Wait()
			a.logger.Info("server stopped", zap.Error(err))
			return err
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides config)")
	return cmd
}

func statsCmd() *cobra.Command {
	var period string
	var daily bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show review analytics for a period",
		Long:  "Show item totals, confirmations by category, library growth and the auto/manual split over the last day, week, month or year.",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := report.ParsePeriod(period)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if daily {
				t, err := a.review.Temporal(ctx, p)
				if err != nil {
					return err
				}
				return report.WriteTemporal(os.Stdout, *t)
			}

			an, err := a.review.Analytics(ctx, p)
			if err != nil {
				return err
			}
			return report.WriteAnalytics(os.Stdout, *an)
		},
	}
	cmd.Flags().StringVarP(&period, "period", "p", "month", "day, week, month or year")
	cmd.Flags().BoolVar(&daily, "daily", false, "print items created and classified per day")
	return cmd
}
