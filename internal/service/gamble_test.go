package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forgebot/internal/content"
	"forgebot/internal/model"
	"forgebot/internal/repository"
)

func TestFlip_SettlesExactlyPlusOrMinusBet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, "alice")

	res, err := env.svc.Flip(ctx, "alice", "heads", 50)
	require.NoError(t, err)
	require.True(t, res.Success)

	after := env.account(t, acc.ID)
	delta := after.Balance - acc.Balance
	assert.True(t, delta == 50 || delta == -50, "delta was %v", delta)
	assert.GreaterOrEqual(t, after.Balance, 0.0)
}

func TestFlip_ValidatesChoiceAndBounds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mustAccount(t, "alice")

	for _, tc := range []struct {
		choice string
		bet    float64
	}{
		{"sideways", 50},
		{"heads", 5},     // below minimum
		{"heads", 9999},  // above maximum
		{"heads", -20},   // negative
		{"heads", 200},   // more than the balance
	} {
		res, err := env.svc.Flip(ctx, "alice", tc.choice, tc.bet)
		require.NoError(t, err)
		assert.False(t, res.Success, "choice=%s bet=%v", tc.choice, tc.bet)
	}
}

func TestFlip_NeverDrivesBalanceNegative(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, "alice")

	for i := 0; i < 30; i++ {
		_, err := env.svc.Flip(ctx, "alice", "heads", 10)
		require.NoError(t, err)
		require.GreaterOrEqual(t, env.account(t, acc.ID).Balance, 0.0)
	}
}

func TestFlip_GamblerTraitConsolesLosses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, "alice", model.Trait{Name: content.TraitGambler, Level: 3})

	// Flip until a loss lands; the consolation buff must follow it.
	var lost bool
	for i := 0; i < 50 && !lost; i++ {
		before := env.account(t, acc.ID).Balance
		if before < env.cfg.FlipMinBet {
			env.giveCoins(t, acc.ID, 100)
			continue
		}
		_, err := env.svc.Flip(ctx, "alice", "heads", env.cfg.FlipMinBet)
		require.NoError(t, err)
		lost = env.account(t, acc.ID).Balance < before
	}
	require.True(t, lost, "50 flips without a loss")

	live := env.account(t, acc.ID).LiveBuffs(env.clock.Now())
	require.NotEmpty(t, live)
	assert.Equal(t, gamblerBuffID, live[len(live)-1].ItemID)
	for _, e := range live[len(live)-1].Effects {
		assert.Equal(t, model.EffectWorkPercent, e.Kind)
		assert.Greater(t, e.Value, 0.0)
		assert.LessOrEqual(t, e.Value, content.GamblerBuffPerLevel*3)
	}
}

func TestSlots_CooldownGates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, "alice")
	env.giveCoins(t, acc.ID, 1000)

	res, err := env.svc.Slots(ctx, "alice", 20)
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = env.svc.Slots(ctx, "alice", 20)
	require.NoError(t, err)
	assert.False(t, res.Success)

	env.clock.Advance(env.cfg.SlotsCooldown)
	res, err = env.svc.Slots(ctx, "alice", 20)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestSlots_BetCapScalesWithClanLevel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, "alice")
	env.giveCoins(t, acc.ID, 10_000)

	// Unaffiliated: the base cap applies.
	res, err := env.svc.Slots(ctx, "alice", env.cfg.SlotsBaseMaxBet+1)
	require.NoError(t, err)
	assert.False(t, res.Success)

	// A level-3 clan doubles the cap.
	level := 3
	clan := &model.Clan{Code: "AAAAA", Name: "Testers", NameLower: "testers",
		OwnerID: acc.ID, Members: []string{acc.ID}, Level: level, Recruitment: model.RecruitmentClosed}
	require.NoError(t, env.stores.Clans.Create(ctx, clan))
	clanID := clan.Code
	require.NoError(t, env.stores.Accounts.SetFields(ctx, acc.ID, repository.AccountUpdate{ClanID: &clanID}))

	res, err = env.svc.Slots(ctx, "alice", env.cfg.SlotsBaseMaxBet*2)
	require.NoError(t, err)
	assert.True(t, res.Success, res.Message)
}

func TestSlots_SettlementStaysWithinPayoutTable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, "alice")
	env.giveCoins(t, acc.ID, 100_000)

	for i := 0; i < 25; i++ {
		before := env.account(t, acc.ID).Balance
		res, err := env.svc.Slots(ctx, "alice", 100)
		require.NoError(t, err)
		require.True(t, res.Success)
		delta := env.account(t, acc.ID).Balance - before
		assert.Contains(t, []float64{-100, 100, 400}, delta)
		env.clock.Advance(env.cfg.SlotsCooldown)
	}
}
