package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"forgebot/internal/cache"
	"forgebot/internal/config"
	"forgebot/internal/model"
	"forgebot/internal/repository"
)

// testClock is a settable time source shared by a test's service.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testGameConfig() config.GameConfig {
	return config.GameConfig{
		StartingBalance: 100,

		WorkCooldown:  30 * time.Minute,
		WorkRewardMin: 10,
		WorkRewardMax: 50,
		MinCooldown:   5 * time.Minute,

		GatherCooldown:  15 * time.Minute,
		GatherBaseSlots: 2,

		DailyCooldown:     22 * time.Hour,
		DailyReward:       100,
		DailyStreakBonus:  10,
		DailyStreakBreak:  48 * time.Hour,
		HourlyCooldown:    time.Hour,
		HourlyReward:      15,
		HourlyStreakBonus: 2,
		HourlyStreakBreak: 2 * time.Hour,

		FlipMinBet:      10,
		FlipMaxBet:      5000,
		SlotsMinBet:     10,
		SlotsBaseMaxBet: 500,
		SlotsCooldown:   5 * time.Minute,

		MarketTaxRate:        0.1,
		MaxListingsPerSeller: 5,

		VendorMarkup:        1.2,
		VendorMaxListings:   3,
		VendorRestockChance: 1,

		CrateMaxListings:   3,
		CrateRetireChance:  0,
		CrateRestockChance: 1,

		EventStartChance: 1,

		ClanCreateCost:   1000,
		ClanMaxMembers:   10,
		ClanJoinCooldown: time.Hour,

		TraitRerollCost: 500,

		VendorInterval:     time.Minute,
		CrateInterval:      time.Minute,
		SmeltSweepInterval: time.Second,
		EventInterval:      time.Minute,
		WarInterval:        time.Minute,
		WarDuration:        168 * time.Hour,

		PaginationTTL:   10 * time.Minute,
		VerificationTTL: 5 * time.Minute,
	}
}

type testEnv struct {
	svc    *Service
	stores repository.Stores
	clock  *testClock
	cfg    config.GameConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	stores := repository.NewMemoryStores(func() float64 { return 0.5 })
	memCache := cache.NewMemoryCache()
	t.Cleanup(func() { memCache.Close() })
	cfg := testGameConfig()
	svc := New(stores, memCache, cfg,
		WithClock(clock.Now),
		WithRandSource(42),
	)
	return &testEnv{svc: svc, stores: stores, clock: clock, cfg: cfg}
}

// mustAccount creates an account and pins its traits so reward math is
// deterministic.
func (e *testEnv) mustAccount(t *testing.T, identity string, traits ...model.Trait) *model.Account {
	t.Helper()
	ctx := context.Background()
	acc, err := e.svc.EnsureAccount(ctx, identity, model.KindGame)
	require.NoError(t, err)
	if traits == nil {
		traits = []model.Trait{}
	}
	require.NoError(t, e.stores.Accounts.SetFields(ctx, acc.ID, repository.AccountUpdate{Traits: &traits}))
	acc, err = e.stores.Accounts.Get(ctx, acc.ID)
	require.NoError(t, err)
	return acc
}

func (e *testEnv) account(t *testing.T, id string) *model.Account {
	t.Helper()
	acc, err := e.stores.Accounts.Get(context.Background(), id)
	require.NoError(t, err)
	return acc
}

func (e *testEnv) giveItem(t *testing.T, id, item string, qty int64) {
	t.Helper()
	require.NoError(t, e.stores.Accounts.IncrementItem(context.Background(), id, item, qty, repository.NoMinimum))
}

func (e *testEnv) giveCoins(t *testing.T, id string, amount float64) {
	t.Helper()
	require.NoError(t, e.stores.Accounts.IncrementBalance(context.Background(), id, amount, repository.NoMinimum))
}
