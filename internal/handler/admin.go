package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"forgebot/internal/cache"
	"forgebot/internal/repository"
	"forgebot/pkg/response"
)

// statsCacheTTL bounds how stale the admin stats may be. Computing them
// scans every collection, so they are not recomputed per request.
const statsCacheTTL = 30 * time.Second

// AdminHandler exposes operator-only introspection endpoints.
type AdminHandler struct {
	stores repository.Stores
	cache  cache.Cache
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(stores repository.Stores, c cache.Cache) *AdminHandler {
	return &AdminHandler{stores: stores, cache: c}
}

// StatsResponse summarizes the economy's stored state.
type StatsResponse struct {
	Accounts       int       `json:"accounts"`
	TotalCoins     float64   `json:"total_coins"`
	MarketListings int       `json:"market_listings"`
	CrateListings  int       `json:"crate_listings"`
	Clans          int       `json:"clans"`
	Timestamp      time.Time `json:"timestamp"`
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := h.cache.GetOrSet(ctx, "admin:stats", statsCacheTTL, func() ([]byte, error) {
		stats, err := h.computeStats(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(stats)
	})
	if err != nil {
		response.Error(w, err)
		return
	}

	var stats StatsResponse
	if err := json.Unmarshal(payload, &stats); err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, stats)
}

func (h *AdminHandler) computeStats(ctx context.Context) (StatsResponse, error) {
	accounts, err := h.stores.Accounts.All(ctx)
	if err != nil {
		return StatsResponse{}, err
	}
	var totalCoins float64
	for _, acc := range accounts {
		if acc.BalanceFinite() {
			totalCoins += acc.Balance
		}
	}

	market, err := h.stores.Market.All(ctx)
	if err != nil {
		return StatsResponse{}, err
	}
	crates, err := h.stores.Crates.All(ctx)
	if err != nil {
		return StatsResponse{}, err
	}
	clans, err := h.stores.Clans.All(ctx)
	if err != nil {
		return StatsResponse{}, err
	}

	return StatsResponse{
		Accounts:       len(accounts),
		TotalCoins:     totalCoins,
		MarketListings: len(market),
		CrateListings:  len(crates),
		Clans:          len(clans),
		Timestamp:      time.Now().UTC(),
	}, nil
}
