package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forgebot/internal/model"
)

func TestMarketSell_EscrowsItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, "seller")
	env.giveItem(t, acc.ID, "iron_bar", 5)

	res, err := env.svc.MarketSell(ctx, "seller", "iron_bar", 3, 20)
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, int64(2), env.account(t, acc.ID).ItemCount("iron_bar"))
	listings, err := env.stores.Market.All(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, int64(1), listings[0].ID)
	assert.Equal(t, int64(3), listings[0].Quantity)
	assert.Equal(t, 20.0, listings[0].Price)
}

func TestMarketSell_RejectsWithoutStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mustAccount(t, "seller")

	res, err := env.svc.MarketSell(ctx, "seller", "iron_bar", 3, 20)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestMarketSell_ListingCap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, "seller")
	env.giveItem(t, acc.ID, "wood", 100)

	for i := 0; i < env.cfg.MaxListingsPerSeller; i++ {
		res, err := env.svc.MarketSell(ctx, "seller", "wood", 1, 5)
		require.NoError(t, err)
		require.True(t, res.Success)
	}
	res, err := env.svc.MarketSell(ctx, "seller", "wood", 1, 5)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestMarketBuy_MovesCoinsAndGoodsWithTax(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seller := env.mustAccount(t, "seller")
	buyer := env.mustAccount(t, "buyer")
	env.giveItem(t, seller.ID, "iron_bar", 3)

	res, err := env.svc.MarketSell(ctx, "seller", "iron_bar", 3, 20)
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = env.svc.MarketBuy(ctx, "buyer", 1)
	require.NoError(t, err)
	require.True(t, res.Success)

	// 60 leaves the buyer; 54 reaches the seller at the 10% tax.
	assert.InDelta(t, buyer.Balance-60, env.account(t, buyer.ID).Balance, 0.001)
	assert.InDelta(t, seller.Balance+54, env.account(t, seller.ID).Balance, 0.001)
	assert.Equal(t, int64(3), env.account(t, buyer.ID).ItemCount("iron_bar"))

	listings, err := env.stores.Market.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, listings)
}

func TestMarketBuy_TaxHolidayEventOverridesRate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seller := env.mustAccount(t, "seller")
	env.mustAccount(t, "buyer")
	env.giveItem(t, seller.ID, "iron_bar", 1)

	now := env.clock.Now()
	require.NoError(t, env.stores.State.SetEvent(ctx, &model.GlobalEvent{
		ID: model.GlobalEventDocID, Kind: model.EventMarketTax, Name: "Tax Holiday",
		Multiplier: 0, StartedAt: now, EndsAt: now.Add(time.Hour),
	}))

	_, err := env.svc.MarketSell(ctx, "seller", "iron_bar", 1, 50)
	require.NoError(t, err)
	res, err := env.svc.MarketBuy(ctx, "buyer", 1)
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.InDelta(t, seller.Balance+50, env.account(t, seller.ID).Balance, 0.001)
}

func TestMarketBuy_InsufficientFundsRestoresListing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seller := env.mustAccount(t, "seller")
	env.mustAccount(t, "pauper")
	env.giveItem(t, seller.ID, "gold_bar", 1)

	_, err := env.svc.MarketSell(ctx, "seller", "gold_bar", 1, 5000)
	require.NoError(t, err)

	res, err := env.svc.MarketBuy(ctx, "pauper", 1)
	require.NoError(t, err)
	assert.False(t, res.Success)

	// The listing must be back on the board.
	listings, err := env.stores.Market.All(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, int64(1), listings[0].ID)
}

func TestMarketBuy_OwnListingRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, "seller")
	env.giveItem(t, acc.ID, "wood", 1)

	_, err := env.svc.MarketSell(ctx, "seller", "wood", 1, 5)
	require.NoError(t, err)

	res, err := env.svc.MarketBuy(ctx, "seller", 1)
	require.NoError(t, err)
	assert.False(t, res.Success)

	listings, err := env.stores.Market.All(ctx)
	require.NoError(t, err)
	assert.Len(t, listings, 1)
}

func TestMarketBuy_RacingBuyersExactlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seller := env.mustAccount(t, "seller")
	env.giveItem(t, seller.ID, "iron_bar", 1)
	_, err := env.svc.MarketSell(ctx, "seller", "iron_bar", 1, 10)
	require.NoError(t, err)

	const buyers = 8
	results := make([]Result, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		name := string(rune('a' + i))
		env.mustAccount(t, name)
	}
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := string(rune('a' + i))
			res, err := env.svc.MarketBuy(ctx, name, 1)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, res := range results {
		if res.Success {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "the atomic purchase admits exactly one buyer")

	var owned int64
	for i := 0; i < buyers; i++ {
		owned += env.account(t, string(rune('a'+i))).ItemCount("iron_bar")
	}
	assert.Equal(t, int64(1), owned)
}

func TestMarketCancel_ReturnsEscrow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, "seller")
	env.giveItem(t, acc.ID, "wood", 4)

	_, err := env.svc.MarketSell(ctx, "seller", "wood", 4, 5)
	require.NoError(t, err)
	require.Equal(t, int64(0), env.account(t, acc.ID).ItemCount("wood"))

	res, err := env.svc.MarketCancel(ctx, "seller", 1)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, int64(4), env.account(t, acc.ID).ItemCount("wood"))
}

func TestMarketCancel_OnlyOwnListings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seller := env.mustAccount(t, "seller")
	env.mustAccount(t, "other")
	env.giveItem(t, seller.ID, "wood", 1)
	_, err := env.svc.MarketSell(ctx, "seller", "wood", 1, 5)
	require.NoError(t, err)

	res, err := env.svc.MarketCancel(ctx, "other", 1)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestListingIDs_ReuseLowestFreeSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, "seller")
	env.giveItem(t, acc.ID, "wood", 10)

	for i := 0; i < 3; i++ {
		_, err := env.svc.MarketSell(ctx, "seller", "wood", 1, 5)
		require.NoError(t, err)
	}
	// Free the middle id; the next listing takes it back.
	_, err := env.svc.MarketCancel(ctx, "seller", 2)
	require.NoError(t, err)

	res, err := env.svc.MarketSell(ctx, "seller", "wood", 1, 5)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Message, "#2")
}

func TestCrateShopBuy_RollsDrops(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := env.mustAccount(t, "buyer")
	env.giveCoins(t, buyer.ID, 500)

	require.NoError(t, env.stores.Crates.Insert(ctx, model.Listing{
		ID: 1, Seller: model.VendorSeller, Item: "wooden_crate",
		Quantity: 2, Price: 50, ListedAt: env.clock.Now(),
	}))

	res, err := env.svc.CrateShopBuy(ctx, "buyer", 1)
	require.NoError(t, err)
	require.True(t, res.Success)

	after := env.account(t, buyer.ID)
	// The 100-coin purchase left; whatever dropped can only add value.
	assert.GreaterOrEqual(t, after.Balance, buyer.Balance+500-100)

	listings, err := env.stores.Crates.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, listings, "crate listings are destroyed by purchase")
}

func TestCrateShopBuy_GoneListing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mustAccount(t, "buyer")

	res, err := env.svc.CrateShopBuy(ctx, "buyer", 99)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestCrateShopBuyByName_PicksCheapestOffer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := env.mustAccount(t, "buyer")
	env.giveCoins(t, buyer.ID, 500)

	for i, price := range []float64{80, 40, 60} {
		require.NoError(t, env.stores.Crates.Insert(ctx, model.Listing{
			ID: int64(i + 1), Seller: model.VendorSeller, Item: "wooden_crate",
			Quantity: 1, Price: price, ListedAt: env.clock.Now(),
		}))
	}

	// The display name resolves case-insensitively to the crate id.
	res, err := env.svc.CrateShopBuyByName(ctx, "buyer", "Wooden Crate")
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	listings, err := env.stores.Crates.All(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 2)
	for _, l := range listings {
		assert.NotEqual(t, int64(2), l.ID, "the 40-coin listing must be the one bought")
	}
}

func TestCrateShopBuyByName_UnknownOrUnstocked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mustAccount(t, "buyer")

	res, err := env.svc.CrateShopBuyByName(ctx, "buyer", "mystery box")
	require.NoError(t, err)
	assert.False(t, res.Success)

	res, err = env.svc.CrateShopBuyByName(ctx, "buyer", "golden_crate")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Golden Crate")
}
