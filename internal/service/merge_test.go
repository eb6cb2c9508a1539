package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forgebot/internal/model"
	"forgebot/internal/repository"
)

var verifyCodeRx = regexp.MustCompile("`verify ([A-Z0-9]{6})`")

func linkCode(t *testing.T, env *testEnv, discordID, gameName string) string {
	t.Helper()
	res, err := env.svc.Link(context.Background(), discordID, gameName)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	m := verifyCodeRx.FindStringSubmatch(res.Message)
	require.NotNil(t, m, "link message must carry the code")
	return m[1]
}

func TestVerify_MergesBothAccounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.mustAccount(t, "Discord#1234")
	env.giveCoins(t, "discord#1234", 400) // 500 total
	env.giveItem(t, "discord#1234", "iron_ore", 3)

	env.mustAccount(t, "Steve")
	env.giveItem(t, "steve", "iron_ore", 2)
	env.giveItem(t, "steve", "coal", 5)

	code := linkCode(t, env, "Discord#1234", "Steve")
	res, err := env.svc.Verify(ctx, "steve", code)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	merged := env.account(t, "steve")
	assert.InDelta(t, 600, merged.Balance, 0.001, "balances sum")
	assert.Equal(t, int64(5), merged.Inventory["iron_ore"])
	assert.Equal(t, int64(5), merged.Inventory["coal"])
	assert.Equal(t, "discord#1234", merged.DiscordID)

	// The Discord identity now resolves to the surviving document.
	resolved, err := env.stores.Accounts.Get(ctx, "discord#1234")
	require.NoError(t, err)
	assert.Equal(t, "steve", resolved.ID)
}

func TestVerify_CodeIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mustAccount(t, "Discord#1234")
	env.mustAccount(t, "Steve")

	code := linkCode(t, env, "Discord#1234", "Steve")
	res, err := env.svc.Verify(ctx, "steve", code)
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = env.svc.Verify(ctx, "steve", code)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "unknown or expired")
}

func TestVerify_WrongPlayerRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mustAccount(t, "Discord#1234")
	env.mustAccount(t, "Steve")
	env.mustAccount(t, "Alex")

	code := linkCode(t, env, "Discord#1234", "Steve")
	res, err := env.svc.Verify(ctx, "alex", code)
	require.NoError(t, err)
	assert.False(t, res.Success)

	// Steve can still redeem it.
	res, err = env.svc.Verify(ctx, "steve", code)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestVerify_RekeysDiscordOnlyAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.mustAccount(t, "Discord#1234")
	env.giveCoins(t, "discord#1234", 900) // 1000 total
	env.giveItem(t, "discord#1234", "gold_bar", 2)

	code := linkCode(t, env, "Discord#1234", "Steve")
	res, err := env.svc.Verify(ctx, "Steve", code)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	moved := env.account(t, "steve")
	assert.Equal(t, "Steve", moved.Name)
	assert.Equal(t, model.KindGame, moved.Kind)
	assert.InDelta(t, 1000, moved.Balance, 0.001)
	assert.Equal(t, int64(2), moved.Inventory["gold_bar"])

	resolved, err := env.stores.Accounts.Get(ctx, "discord#1234")
	require.NoError(t, err)
	assert.Equal(t, "steve", resolved.ID, "the old id rekeys onto the game name")
}

func TestVerify_FreshAccountWhenNeitherExists(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code := linkCode(t, env, "Discord#1234", "Steve")
	res, err := env.svc.Verify(ctx, "steve", code)
	require.NoError(t, err)
	require.True(t, res.Success)

	acc := env.account(t, "steve")
	assert.InDelta(t, env.cfg.StartingBalance, acc.Balance, 0.001)
	assert.Equal(t, "discord#1234", acc.DiscordID)
}

func TestVerify_RefusesTwoRunningFurnaces(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	discord := env.mustAccount(t, "Discord#1234")
	game := env.mustAccount(t, "Steve")
	for _, id := range []string{discord.ID, game.ID} {
		env.giveItem(t, id, "iron_ore", 1)
		env.giveItem(t, id, "coal", 1)
	}

	job := model.SmeltJob{Result: "iron_bar", Quantity: 1, FinishAt: env.clock.Now().Add(time.Minute)}
	require.NoError(t, env.stores.Accounts.StartSmelt(ctx, discord.ID, "iron_ore", 1, 1, job))
	require.NoError(t, env.stores.Accounts.StartSmelt(ctx, game.ID, "iron_ore", 1, 1, job))

	code := linkCode(t, env, "Discord#1234", "Steve")
	res, err := env.svc.Verify(ctx, "steve", code)
	require.NoError(t, err)
	assert.False(t, res.Success)

	// Both records survive untouched.
	_, err = env.stores.Accounts.Get(ctx, discord.ID)
	assert.NoError(t, err)
	_, err = env.stores.Accounts.Get(ctx, game.ID)
	assert.NoError(t, err)
}

func TestVerify_AlreadyLinkedElsewhere(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.mustAccount(t, "Discord#1234")
	env.mustAccount(t, "Steve")

	code := linkCode(t, env, "Discord#1234", "Steve")
	res, err := env.svc.Verify(ctx, "steve", code)
	require.NoError(t, err)
	require.True(t, res.Success)

	// A second Discord identity cannot claim the same game account.
	env.mustAccount(t, "Discord#9999")
	code = linkCode(t, env, "Discord#9999", "Steve")
	res, err = env.svc.Verify(ctx, "steve", code)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestVerify_ExpiredCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mustAccount(t, "Steve")

	res, err := env.svc.Verify(ctx, "steve", "ZZZZZZ")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "unknown or expired")
}

func TestMerge_KeepsLaterCooldownsAndHigherStreaks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	discord := env.mustAccount(t, "Discord#1234")
	game := env.mustAccount(t, "Steve")

	early := env.clock.Now().Add(-2 * time.Hour)
	late := env.clock.Now().Add(-10 * time.Minute)
	dStreak, gStreak := 7, 3
	require.NoError(t, env.stores.Accounts.SetFields(ctx, discord.ID,
		repository.AccountUpdate{LastWork: &late, DailyStreak: &dStreak}))
	require.NoError(t, env.stores.Accounts.SetFields(ctx, game.ID,
		repository.AccountUpdate{LastWork: &early, DailyStreak: &gStreak}))

	code := linkCode(t, env, "Discord#1234", "Steve")
	res, err := env.svc.Verify(ctx, "steve", code)
	require.NoError(t, err)
	require.True(t, res.Success)

	merged := env.account(t, "steve")
	require.NotNil(t, merged.LastWork)
	assert.True(t, merged.LastWork.Equal(late), "the later cooldown stamp wins")
	assert.Equal(t, 7, merged.DailyStreak)
}
