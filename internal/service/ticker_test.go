package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forgebot/internal/content"
	"forgebot/internal/model"
)

func TestTrimmedMean(t *testing.T) {
	assert.Zero(t, trimmedMean(nil))
	assert.Zero(t, trimmedMean([]float64{10, 20}), "two samples is no signal")
	assert.InDelta(t, 20, trimmedMean([]float64{10, 20, 30}), 0.001)

	// Ten samples drop one from each end: the outliers do not count.
	prices := []float64{1_000_000, 10, 10, 10, 10, 10, 10, 10, 10, 0.01}
	assert.InDelta(t, 10, trimmedMean(prices), 0.001)
}

func vendorEntryFor(t *testing.T, item string) content.VendorEntry {
	t.Helper()
	for _, e := range content.VendorCatalog {
		if e.Item == item {
			return e
		}
	}
	t.Fatalf("item %s is not in the vendor catalog", item)
	return content.VendorEntry{}
}

func TestVendorPrice_TracksPlayerMarket(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, "alice")

	for i := 0; i < 3; i++ {
		env.giveItem(t, acc.ID, "coal", 1)
		res, err := env.svc.MarketSell(ctx, "alice", "coal", 1, 10)
		require.NoError(t, err)
		require.True(t, res.Success, res.Message)
	}

	entry := vendorEntryFor(t, "coal")
	price, err := env.svc.vendorPrice(ctx, entry)
	require.NoError(t, err)
	want := 10 * env.cfg.VendorMarkup
	if want < entry.MinPrice {
		want = entry.MinPrice
	}
	assert.InDelta(t, want, price, 0.001)
}

func TestVendorPrice_FallsBackToCatalogRange(t *testing.T) {
	env := newTestEnv(t)
	entry := vendorEntryFor(t, "coal")

	price, err := env.svc.vendorPrice(context.Background(), entry)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, price, entry.MinPrice)
	assert.LessOrEqual(t, price, entry.MaxPrice)
}

func TestRunVendorRestock_RespectsListingCap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// The restock chance rolls each run, so run plenty of sweeps; the cap
	// must hold regardless.
	for i := 0; i < 40; i++ {
		require.NoError(t, env.svc.RunVendorRestock(ctx))
	}
	listings, err := env.stores.Market.BySeller(ctx, model.VendorSeller)
	require.NoError(t, err)
	assert.Len(t, listings, env.cfg.VendorMaxListings)
}

func TestRunCrateRestock_FillsTheShop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Retire chance is zero in the test config, so sweeps only restock
	// until the shop is full.
	for i := 0; i < 40; i++ {
		require.NoError(t, env.svc.RunCrateRestock(ctx))
	}
	listings, err := env.stores.Crates.All(ctx)
	require.NoError(t, err)
	assert.Len(t, listings, env.cfg.CrateMaxListings)

	offered := map[string]bool{}
	for _, l := range listings {
		assert.True(t, l.IsVendor())
		assert.False(t, offered[l.Item], "each crate type is offered at most once")
		offered[l.Item] = true
	}
}

func TestRunCrateRestock_RetiresListings(t *testing.T) {
	env := newTestEnv(t)
	env.svc.cfg.CrateRetireChance = 1
	env.svc.cfg.CrateRestockChance = 0
	ctx := context.Background()

	require.NoError(t, env.stores.Crates.Insert(ctx, model.Listing{
		ID:       1,
		Seller:   model.VendorSeller,
		Item:     "wooden_crate",
		Quantity: 1,
		Price:    100,
		ListedAt: env.clock.Now(),
	}))

	// The retire roll is capped below certainty, so sweep until it lands.
	for i := 0; i < 50; i++ {
		require.NoError(t, env.svc.RunCrateRestock(ctx))
	}
	listings, err := env.stores.Crates.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, listings)
}

func TestRunEventCycle_StartsAndExpires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// The start roll is capped below certainty; sweep until one begins.
	var e *model.GlobalEvent
	for i := 0; i < 50 && e == nil; i++ {
		require.NoError(t, env.svc.RunEventCycle(ctx))
		var err error
		e, err = env.stores.State.GetEvent(ctx)
		require.NoError(t, err)
	}
	require.NotNil(t, e, "an event should start within 50 sweeps")
	assert.True(t, e.Active(env.clock.Now()))

	// Still running: the cycle leaves it alone.
	require.NoError(t, env.svc.RunEventCycle(ctx))
	again, err := env.stores.State.GetEvent(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, e.Kind, again.Kind)

	env.clock.Advance(e.EndsAt.Sub(env.clock.Now()) + time.Second)
	require.NoError(t, env.svc.RunEventCycle(ctx))
	expired, err := env.stores.State.GetEvent(ctx)
	require.NoError(t, err)
	assert.Nil(t, expired, "the ended event is cleared")
}

func TestRunWarCycle_PaysTopClansAndResets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// First run installs the war period.
	require.NoError(t, env.svc.RunWarCycle(ctx))
	war, err := env.stores.State.GetWar(ctx)
	require.NoError(t, err)
	require.NotNil(t, war)

	first := createClan(t, env, "alice", "Winners")
	second := createClan(t, env, "bob", "Runners")
	require.NoError(t, env.stores.Clans.AddWarPoints(ctx, first, 10))
	require.NoError(t, env.stores.Clans.AddWarPoints(ctx, second, 4))

	env.clock.Advance(env.cfg.WarDuration + time.Second)
	require.NoError(t, env.svc.RunWarCycle(ctx))

	// First place pays 5 gold bars, second pays 2.
	assert.Equal(t, int64(5), env.account(t, "alice").Inventory["gold_bar"])
	assert.Equal(t, int64(2), env.account(t, "bob").Inventory["gold_bar"])

	clans, err := env.stores.Clans.All(ctx)
	require.NoError(t, err)
	for _, c := range clans {
		assert.Zero(t, c.WarPoints, "scores reset for the next period")
	}

	next, err := env.stores.State.GetWar(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.EndsAt.After(env.clock.Now()))
}

func TestRunWarCycle_ZeroScoresPayNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.svc.RunWarCycle(ctx))
	createClan(t, env, "alice", "Idlers")

	env.clock.Advance(env.cfg.WarDuration + time.Second)
	require.NoError(t, env.svc.RunWarCycle(ctx))
	assert.Zero(t, env.account(t, "alice").Inventory["gold_bar"])
}

func TestTicker_StartStop(t *testing.T) {
	var runs atomic.Int64
	tick := NewTicker("test", 5*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	tick.Start()
	time.Sleep(60 * time.Millisecond)
	tick.Stop()
	assert.Greater(t, runs.Load(), int64(0))

	settled := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, runs.Load(), "no sweeps run after Stop")

	tick.Stop() // idempotent
}
