package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polyview/internal/domain"
	"github.com/shopspring/decimal"
)

// MarketViewService defines the methods that the market handler requires from
// the service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type MarketViewService interface {
	LatestPrice(ctx context.Context, apiKey, slug string) (*decimal.Decimal, error)
	Candles(ctx context.Context, apiKey, slug string, interval domain.Interval) (domain.CandleSeries, error)
	Orderbook(ctx context.Context, apiKey, slug string) domain.OrderbookView
}

// MarketHandler serves the per-market derived views.
type MarketHandler struct {
	views         MarketViewService
	defaultAPIKey string
	logger        *slog.Logger
}

// NewMarketHandler creates a MarketHandler. defaultAPIKey is used when the
// request carries no X-Dome-Api-Key header.
func NewMarketHandler(views MarketViewService, defaultAPIKey string, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		views:         views,
		defaultAPIKey: defaultAPIKey,
		logger:        logger,
	}
}

type priceResponse struct {
	Slug  string           `json:"slug"`
	Price *decimal.Decimal `json:"price"`
}

type candlesResponse struct {
	Slug string `json:"slug"`
	domain.CandleSeries
}

type orderbookResponse struct {
	Slug string `json:"slug"`
	domain.OrderbookView
}

// requestParams pulls the slug and upstream key, writing a 400 when either is
// missing.
func (h *MarketHandler) requestParams(w http.ResponseWriter, r *http.Request) (slug, apiKey string, ok bool) {
	slug = pathParam(r, "slug")
	if slug == "" {
		writeError(w, http.StatusBadRequest, "missing market slug")
		return "", "", false
	}
	apiKey = upstreamKey(r, h.defaultAPIKey)
	if apiKey == "" {
		writeError(w, http.StatusBadRequest, domain.ErrMissingAPIKey.Error())
		return "", "", false
	}
	return slug, apiKey, true
}

// GetPrice returns the latest traded price, or null when the market has not
// traded.
// GET /api/markets/{slug}/price
func (h *MarketHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	slug, apiKey, ok := h.requestParams(w, r)
	if !ok {
		return
	}

	price, err := h.views.LatestPrice(r.Context(), apiKey, slug)
	if err != nil {
		writeUpstreamError(w, h.logger, r, "latest price", err)
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{Slug: slug, Price: price})
}

// GetCandles returns the OHLCV series.
// GET /api/markets/{slug}/candles?interval=1m
func (h *MarketHandler) GetCandles(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("interval")
	if raw == "" {
		raw = string(domain.Interval1m)
	}
	interval, err := domain.ParseInterval(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slug, apiKey, ok := h.requestParams(w, r)
	if !ok {
		return
	}

	series, err := h.views.Candles(r.Context(), apiKey, slug, interval)
	if err != nil {
		writeUpstreamError(w, h.logger, r, "candles", err)
		return
	}
	writeJSON(w, http.StatusOK, candlesResponse{Slug: slug, CandleSeries: series})
}

// GetOrderbook returns the depth-annotated book. It never fails once the
// request is well formed; an unavailable book is an empty view.
// GET /api/markets/{slug}/orderbook
func (h *MarketHandler) GetOrderbook(w http.ResponseWriter, r *http.Request) {
	slug, apiKey, ok := h.requestParams(w, r)
	if !ok {
		return
	}
	view := h.views.Orderbook(r.Context(), apiKey, slug)
	writeJSON(w, http.StatusOK, orderbookResponse{Slug: slug, OrderbookView: view})
}
