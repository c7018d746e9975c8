package api

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pbaille/hot/internal/domain"
	"github.com/pbaille/hot/internal/ingest"
	"github.com/pbaille/hot/internal/report"
	"github.com/pbaille/hot/internal/store"
	"go.uber.org/zap"
)

// SuggestRequest is the request body for POST /api/v1/suggest
type SuggestRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSuggest(c echo.Context) error {
	var req SuggestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.JSON(http.StatusOK, s.review.Engine().Suggest(c.Request().Context(), req.Text))
}

// ConfirmRequest is the request body for POST /api/v1/confirm
type ConfirmRequest struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

func (s *Server) handleConfirm(c echo.Context) error {
	var req ConfirmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	cat, err := parseCategory(req.Category)
	if err != nil {
		return err
	}
	entry, err := s.review.Engine().Confirm(c.Request().Context(), req.Text, cat)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

// CreateBatchRequest is the request body for POST /api/v1/batches.
// Text holds measures separated by newlines, commas or semicolons; URL
// points at a page whose text is ingested instead.
type CreateBatchRequest struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

// CreateBatchResponse is the response body for POST /api/v1/batches
type CreateBatchResponse struct {
	Batch *domain.Batch `json:"batch"`
	Items []domain.Item `json:"items"`
}

func (s *Server) handleCreateBatch(c echo.Context) error {
	var req CreateBatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()

	raw := req.Text
	if req.URL != "" {
		if !ingest.IsURL(req.URL) {
			return echo.NewHTTPError(http.StatusBadRequest, "url must start with http://, https:// or www.")
		}
		text, err := s.fetch(ctx, req.URL)
		if err != nil {
			s.logger.Warn("fetch failed", zap.String("url", req.URL), zap.Error(err))
			return echo.NewHTTPError(http.StatusBadGateway, "fetch failed: "+err.Error())
		}
		raw = text
	}

	batch, items, err := s.review.Ingest(ctx, raw, userID(c))
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusCreated, CreateBatchResponse{Batch: batch, Items: items})
}

// ItemsResponse is the response body for GET /api/v1/items. Limit 0 means
// the page holds every matching item.
type ItemsResponse struct {
	Items  []domain.Item `json:"items"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func (s *Server) handleListItems(c echo.Context) error {
	var statuses []domain.ItemStatus
	if raw := c.QueryParam("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st := domain.ItemStatus(strings.TrimSpace(part))
			if !st.Valid() {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid status "+part)
			}
			statuses = append(statuses, st)
		}
	}
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		return err
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return err
	}

	items, err := s.review.Items(c.Request().Context(), statuses, limit, offset)
	if err != nil {
		return s.httpError(err)
	}
	if items == nil {
		items = []domain.Item{}
	}
	return c.JSON(http.StatusOK, ItemsResponse{Items: items, Limit: limit, Offset: offset})
}

func (s *Server) handleQueue(c echo.Context) error {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return err
	}
	queue, err := s.review.Queue(c.Request().Context(), limit)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": queue, "count": len(queue)})
}

// ConfirmItemRequest is the request body for POST /api/v1/items/:id/confirm
type ConfirmItemRequest struct {
	Category      string `json:"category"`
	Justification string `json:"justification,omitempty"`
}

func (s *Server) handleConfirmItem(c echo.Context) error {
	var req ConfirmItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	cat, err := parseCategory(req.Category)
	if err != nil {
		return err
	}
	item, err := s.review.ConfirmItem(c.Request().Context(), c.Param("id"), cat, userID(c), req.Justification)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (s *Server) handleDeferItem(c echo.Context) error {
	item, err := s.review.Defer(c.Request().Context(), c.Param("id"), userID(c))
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (s *Server) handleUnclassifiedItem(c echo.Context) error {
	item, err := s.review.MarkUnclassified(c.Request().Context(), c.Param("id"), userID(c))
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (s *Server) handleDeleteItem(c echo.Context) error {
	if err := s.review.DeleteItem(c.Request().Context(), c.Param("id"), userID(c)); err != nil {
		return s.httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleAutoClassify(c echo.Context) error {
	n, err := s.review.AutoClassify(c.Request().Context(), userID(c))
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"confirmed": n})
}

func (s *Server) libraryQuery(c echo.Context) (store.LibraryQuery, error) {
	q := store.LibraryQuery{Search: c.QueryParam("search")}
	if raw := c.QueryParam("category"); raw != "" {
		cat, err := parseCategory(raw)
		if err != nil {
			return q, err
		}
		q.Category = cat
	}
	order, ok := store.ParseLibraryOrder(c.QueryParam("order"))
	if !ok {
		return q, echo.NewHTTPError(http.StatusBadRequest, "order must be reuse, text or recent")
	}
	q.Order = order
	return q, nil
}

func (s *Server) handleListLibrary(c echo.Context) error {
	q, err := s.libraryQuery(c)
	if err != nil {
		return err
	}
	entries, err := s.review.Library(c.Request().Context(), q)
	if err != nil {
		return s.httpError(err)
	}
	if entries == nil {
		entries = []domain.LibraryEntry{}
	}
	return c.JSON(http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (s *Server) handleLibraryStats(c echo.Context) error {
	entries, err := s.review.Library(c.Request().Context(), store.LibraryQuery{})
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, report.Summarize(entries))
}

func (s *Server) handleExportLibrary(c echo.Context) error {
	q, err := s.libraryQuery(c)
	if err != nil {
		return err
	}
	entries, err := s.review.Library(c.Request().Context(), q)
	if err != nil {
		return s.httpError(err)
	}

	var buf bytes.Buffer
	switch format := c.QueryParam("format"); format {
	case "", "csv":
		if err := report.WriteCSV(&buf, entries); err != nil {
			return s.httpError(err)
		}
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="hot-library.csv"`)
		return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
	case "text":
		if err := report.WriteText(&buf, entries, s.nowFunc()); err != nil {
			return s.httpError(err)
		}
		return c.Blob(http.StatusOK, echo.MIMETextPlainCharsetUTF8, buf.Bytes())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "format must be csv or text")
	}
}

// ReclassifyRequest is the request body for PUT /api/v1/library/:id
type ReclassifyRequest struct {
	Category      string `json:"category"`
	Justification string `json:"justification,omitempty"`
}

func (s *Server) handleReclassifyEntry(c echo.Context) error {
	var req ReclassifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	cat, err := parseCategory(req.Category)
	if err != nil {
		return err
	}
	entry, err := s.review.Reclassify(c.Request().Context(), c.Param("id"), cat, userID(c), req.Justification)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (s *Server) handleDeleteEntry(c echo.Context) error {
	if err := s.review.RemoveEntry(c.Request().Context(), c.Param("id"), userID(c)); err != nil {
		return s.httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleActivity(c echo.Context) error {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		return err
	}
	acts, err := s.review.Activity(c.Request().Context(), limit)
	if err != nil {
		return s.httpError(err)
	}
	if acts == nil {
		acts = []domain.Activity{}
	}
	return c.JSON(http.StatusOK, map[string]any{"activity": acts})
}

func parsePeriod(c echo.Context) (report.Period, error) {
	p, err := report.ParsePeriod(c.QueryParam("period"))
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return p, nil
}

func (s *Server) handleAnalytics(c echo.Context) error {
	p, err := parsePeriod(c)
	if err != nil {
		return err
	}
	a, err := s.review.Analytics(c.Request().Context(), p)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (s *Server) handleTemporal(c echo.Context) error {
	p, err := parsePeriod(c)
	if err != nil {
		return err
	}
	t, err := s.review.Temporal(c.Request().Context(), p)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}
