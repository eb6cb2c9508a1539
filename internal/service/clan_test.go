package service

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forgebot/internal/repository"
)

var clanCodeRx = regexp.MustCompile("`([A-Z0-9]{5})`")

func createClan(t *testing.T, env *testEnv, owner, name string) string {
	t.Helper()
	ctx := context.Background()
	acc := env.mustAccount(t, owner)
	env.giveCoins(t, acc.ID, env.cfg.ClanCreateCost)
	res, err := env.svc.ClanCreate(ctx, owner, name)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	m := clanCodeRx.FindStringSubmatch(res.Message)
	require.NotNil(t, m, "create message must carry the clan code")
	return m[1]
}

func TestClanCreate_ChargesFeeAndEnrollsOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := createClan(t, env, "alice", "Forgers")

	acc := env.account(t, "alice")
	assert.Equal(t, code, acc.ClanID)
	assert.InDelta(t, env.cfg.StartingBalance, acc.Balance, 0.001)

	clan, err := env.stores.Clans.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, clan.OwnerID)
	assert.Equal(t, []string{acc.ID}, clan.Members)
	assert.Equal(t, 1, clan.Level)
}

func TestClanCreate_InsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mustAccount(t, "poor") // 100 coins, fee is 1000

	res, err := env.svc.ClanCreate(ctx, "poor", "Broke")
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestClanCreate_DuplicateNameRefundsFee(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createClan(t, env, "alice", "Forgers")

	bob := env.mustAccount(t, "bob")
	env.giveCoins(t, bob.ID, env.cfg.ClanCreateCost)
	balance := env.account(t, bob.ID).Balance

	res, err := env.svc.ClanCreate(ctx, "bob", "forgers")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.InDelta(t, balance, env.account(t, bob.ID).Balance, 0.001, "the fee must come back")
}

func TestClanJoin_OpenRecruitment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := createClan(t, env, "alice", "Forgers")
	_, err := env.svc.ClanRecruit(ctx, "alice", "open")
	require.NoError(t, err)

	env.mustAccount(t, "bob")
	res, err := env.svc.ClanJoin(ctx, "bob", code)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, code, env.account(t, "bob").ClanID)
}

func TestClanJoin_ClosedFilesApplication(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := createClan(t, env, "alice", "Forgers")

	env.mustAccount(t, "bob")
	res, err := env.svc.ClanJoin(ctx, "bob", code)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Message, "application")
	assert.Empty(t, env.account(t, "bob").ClanID)

	clan, err := env.stores.Clans.Get(ctx, code)
	require.NoError(t, err)
	assert.True(t, clan.HasApplicant("bob"))
}

func TestClanJoin_ByNameWorks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := createClan(t, env, "alice", "Forgers")
	_, err := env.svc.ClanRecruit(ctx, "alice", "open")
	require.NoError(t, err)

	env.mustAccount(t, "bob")
	res, err := env.svc.ClanJoin(ctx, "bob", "forgers")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, code, env.account(t, "bob").ClanID)
}

func TestClanJoin_CapEnforced(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.ClanMaxMembers = 2
	env.svc.cfg.ClanMaxMembers = 2
	ctx := context.Background()
	code := createClan(t, env, "alice", "Forgers")
	_, err := env.svc.ClanRecruit(ctx, "alice", "open")
	require.NoError(t, err)

	env.mustAccount(t, "bob")
	res, err := env.svc.ClanJoin(ctx, "bob", code)
	require.NoError(t, err)
	require.True(t, res.Success)

	env.mustAccount(t, "carol")
	res, err = env.svc.ClanJoin(ctx, "carol", code)
	require.NoError(t, err)
	assert.False(t, res.Success, "third member exceeds the cap of 2")
	assert.Empty(t, env.account(t, "carol").ClanID)
}

func TestClanInviteAcceptFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := createClan(t, env, "alice", "Forgers")
	env.mustAccount(t, "bob")

	res, err := env.svc.ClanInvite(ctx, "alice", "bob")
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = env.svc.ClanAccept(ctx, "bob", code)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, code, env.account(t, "bob").ClanID)

	clan, err := env.stores.Clans.Get(ctx, code)
	require.NoError(t, err)
	assert.False(t, clan.HasInvite("bob"), "the consumed invite is gone")
}

func TestClanLeave_StartsRejoinCooldown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := createClan(t, env, "alice", "Forgers")
	_, err := env.svc.ClanRecruit(ctx, "alice", "open")
	require.NoError(t, err)
	env.mustAccount(t, "bob")
	_, err = env.svc.ClanJoin(ctx, "bob", code)
	require.NoError(t, err)

	res, err := env.svc.ClanLeave(ctx, "bob")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Empty(t, env.account(t, "bob").ClanID)

	// Immediately rejoining is blocked by the cooldown.
	res, err = env.svc.ClanJoin(ctx, "bob", code)
	require.NoError(t, err)
	assert.False(t, res.Success)

	env.clock.Advance(env.cfg.ClanJoinCooldown)
	res, err = env.svc.ClanJoin(ctx, "bob", code)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestClanLeave_OwnerMustDisband(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createClan(t, env, "alice", "Forgers")

	res, err := env.svc.ClanLeave(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestClanKick_OwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := createClan(t, env, "alice", "Forgers")
	_, err := env.svc.ClanRecruit(ctx, "alice", "open")
	require.NoError(t, err)
	env.mustAccount(t, "bob")
	env.mustAccount(t, "carol")
	_, err = env.svc.ClanJoin(ctx, "bob", code)
	require.NoError(t, err)
	_, err = env.svc.ClanJoin(ctx, "carol", code)
	require.NoError(t, err)

	res, err := env.svc.ClanKick(ctx, "bob", "carol")
	require.NoError(t, err)
	assert.False(t, res.Success, "non-owners cannot kick")

	res, err = env.svc.ClanKick(ctx, "alice", "carol")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, env.account(t, "carol").ClanID)
}

func TestClanDonateAndUpgrade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := createClan(t, env, "alice", "Forgers")
	acc := env.account(t, "alice")
	env.giveCoins(t, acc.ID, 1000)

	res, err := env.svc.ClanDonate(ctx, "alice", 600)
	require.NoError(t, err)
	require.True(t, res.Success)

	clan, err := env.stores.Clans.Get(ctx, code)
	require.NoError(t, err)
	assert.InDelta(t, 600, clan.Vault, 0.001)

	// Level 2 costs 500.
	res, err = env.svc.ClanUpgrade(ctx, "alice")
	require.NoError(t, err)
	require.True(t, res.Success)

	clan, err = env.stores.Clans.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, 2, clan.Level)
	assert.InDelta(t, 100, clan.Vault, 0.001)

	// Level 3 costs 1500; the vault holds 100.
	res, err = env.svc.ClanUpgrade(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestClanDonate_OverdraftGuard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createClan(t, env, "alice", "Forgers")

	res, err := env.svc.ClanDonate(ctx, "alice", 99_999)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestClanDisband_ClearsAllMembers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := createClan(t, env, "alice", "Forgers")
	_, err := env.svc.ClanRecruit(ctx, "alice", "open")
	require.NoError(t, err)
	env.mustAccount(t, "bob")
	_, err = env.svc.ClanJoin(ctx, "bob", code)
	require.NoError(t, err)

	res, err := env.svc.ClanDisband(ctx, "alice")
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Empty(t, env.account(t, "alice").ClanID)
	assert.Empty(t, env.account(t, "bob").ClanID)
	_, err = env.stores.Clans.Get(ctx, code)
	assert.Error(t, err)
}

func TestClanWorkEarnsWarPoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := createClan(t, env, "alice", "Forgers")

	_, err := env.svc.Work(ctx, "alice")
	require.NoError(t, err)

	clan, err := env.stores.Clans.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, int64(1), clan.WarPoints)
}

func TestClanPerks_WorkBonusForMembers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := createClan(t, env, "alice", "Forgers")

	// Push the clan to level 5 directly; members get +20% work.
	level := 5
	require.NoError(t, env.stores.Clans.SetFields(ctx, code, repository.ClanUpdate{Level: &level}))

	acc := env.account(t, "alice")
	res, err := env.svc.Work(ctx, "alice")
	require.NoError(t, err)
	require.True(t, res.Success)

	earned := env.account(t, acc.ID).Balance - acc.Balance
	assert.GreaterOrEqual(t, earned, env.cfg.WorkRewardMin*1.2)
	assert.LessOrEqual(t, earned, env.cfg.WorkRewardMax*1.2)
}
