package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forgebot/internal/model"
)

func TestSmelt_RequiresFurnace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, "alice")
	env.giveItem(t, acc.ID, "iron_ore", 5)
	env.giveItem(t, acc.ID, "coal", 5)

	res, err := env.svc.Smelt(ctx, "alice", "iron_ore", 2)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "furnace")
}

func TestSmelt_ConsumesInputsAtomically(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, "alice")
	env.giveItem(t, acc.ID, "furnace", 1)
	env.giveItem(t, acc.ID, "iron_ore", 5)
	env.giveItem(t, acc.ID, "coal", 3)

	res, err := env.svc.Smelt(ctx, "alice", "iron_ore", 3)
	require.NoError(t, err)
	require.True(t, res.Success)

	after := env.account(t, acc.ID)
	assert.Equal(t, int64(2), after.ItemCount("iron_ore"))
	assert.Equal(t, int64(0), after.ItemCount("coal"))
	require.NotNil(t, after.Smelting)
	assert.Equal(t, "iron_bar", after.Smelting.Result)
	assert.Equal(t, int64(3), after.Smelting.Quantity)
}

func TestSmelt_InsufficientCoalLeavesEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, "alice")
	env.giveItem(t, acc.ID, "furnace", 1)
	env.giveItem(t, acc.ID, "gold_ore", 4)
	env.giveItem(t, acc.ID, "coal", 3) // gold needs 2 coal per unit

	res, err := env.svc.Smelt(ctx, "alice", "gold_ore", 2)
	require.NoError(t, err)
	assert.False(t, res.Success)

	after := env.account(t, acc.ID)
	assert.Equal(t, int64(4), after.ItemCount("gold_ore"), "nothing may be consumed on a failed guard")
	assert.Equal(t, int64(3), after.ItemCount("coal"))
	assert.Nil(t, after.Smelting)
}

func TestSmelt_OneJobAtATime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, "alice")
	env.giveItem(t, acc.ID, "furnace", 1)
	env.giveItem(t, acc.ID, "iron_ore", 10)
	env.giveItem(t, acc.ID, "coal", 10)

	res, err := env.svc.Smelt(ctx, "alice", "iron_ore", 2)
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = env.svc.Smelt(ctx, "alice", "iron_ore", 2)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestSmelt_BlastFurnaceHalvesDuration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, "alice")
	env.giveItem(t, acc.ID, "blast_furnace", 1) // power 2
	env.giveItem(t, acc.ID, "iron_ore", 4)
	env.giveItem(t, acc.ID, "coal", 4)

	res, err := env.svc.Smelt(ctx, "alice", "iron_ore", 4)
	require.NoError(t, err)
	require.True(t, res.Success)

	// 4 units x 2m at power 2 = 4 minutes.
	after := env.account(t, acc.ID)
	require.NotNil(t, after.Smelting)
	assert.Equal(t, env.clock.Now().Add(4*time.Minute), after.Smelting.FinishAt)
}

func TestSweepSmelts_CreditsExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, "alice")
	env.giveItem(t, acc.ID, "furnace", 1)
	env.giveItem(t, acc.ID, "iron_ore", 3)
	env.giveItem(t, acc.ID, "coal", 3)

	res, err := env.svc.Smelt(ctx, "alice", "iron_ore", 3)
	require.NoError(t, err)
	require.True(t, res.Success)

	// Not ready yet: the sweep leaves the job alone.
	require.NoError(t, env.svc.RunSmeltSweep(ctx))
	assert.NotNil(t, env.account(t, acc.ID).Smelting)

	env.clock.Advance(time.Hour)
	require.NoError(t, env.svc.RunSmeltSweep(ctx))
	require.NoError(t, env.svc.RunSmeltSweep(ctx)) // second sweep must be a no-op

	after := env.account(t, acc.ID)
	assert.Nil(t, after.Smelting)
	assert.Equal(t, int64(3), after.ItemCount("iron_bar"))
}

func TestSmelt_MassConservation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, "alice")
	env.giveItem(t, acc.ID, "furnace", 1)
	env.giveItem(t, acc.ID, "iron_ore", 7)
	env.giveItem(t, acc.ID, "coal", 7)

	res, err := env.svc.Smelt(ctx, "alice", "iron_ore", 7)
	require.NoError(t, err)
	require.True(t, res.Success)

	env.clock.Advance(time.Hour)
	require.NoError(t, env.svc.RunSmeltSweep(ctx))

	after := env.account(t, acc.ID)
	// Every consumed ore came back as exactly one bar.
	assert.Equal(t, int64(0), after.ItemCount("iron_ore"))
	assert.Equal(t, int64(7), after.ItemCount("iron_bar"))
}

func TestSmelt_SpeedEventShortensJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, "alice")
	env.giveItem(t, acc.ID, "furnace", 1)
	env.giveItem(t, acc.ID, "iron_ore", 2)
	env.giveItem(t, acc.ID, "coal", 2)

	now := env.clock.Now()
	require.NoError(t, env.stores.State.SetEvent(ctx, &model.GlobalEvent{
		ID: model.GlobalEventDocID, Kind: model.EventSmeltSpeed, Name: "Forge Frenzy",
		Multiplier: 2, StartedAt: now, EndsAt: now.Add(time.Hour),
	}))

	res, err := env.svc.Smelt(ctx, "alice", "iron_ore", 2)
	require.NoError(t, err)
	require.True(t, res.Success)

	// 2 units x 2m, halved by the event = 2 minutes.
	after := env.account(t, acc.ID)
	require.NotNil(t, after.Smelting)
	assert.Equal(t, now.Add(2*time.Minute), after.Smelting.FinishAt)
}
