package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"forgebot/internal/content"
	"forgebot/internal/model"
	"forgebot/internal/repository"
)

// Work rolls a base reward, applies the account's modifiers and the active
// event, credits the balance and stamps the cooldown. The read is a
// point-in-time snapshot; the credit itself is a single atomic increment.
func (s *Service) Work(ctx context.Context, identity string) (Result, error) {
	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}
	now := s.now()

	perks, clanCode := s.memberPerks(ctx, acc)
	mods := collectMods(acc, perks, now)
	wait := mods.cooldown(s.cfg.WorkCooldown, s.cfg.MinCooldown)
	if left := s.cooldownLeft(acc.LastWork, wait); left > 0 {
		return fail("You are tired. Work again in %s.", fmtDuration(left)), nil
	}

	eventMult := 1.0
	eventNote := ""
	if e := s.activeEvent(ctx); e != nil && e.Kind == model.EventWorkReward {
		eventMult = e.Multiplier
		eventNote = fmt.Sprintf(" (%s ×%.1f)", e.Name, e.Multiplier)
	}

	base := s.randRange(s.cfg.WorkRewardMin, s.cfg.WorkRewardMax)
	reward := mods.apply(base, eventMult)
	reward = math.Floor(reward*100) / 100
	if !validReward(reward) {
		return Result{}, fmt.Errorf("work reward computed as %v for %s", reward, acc.ID)
	}

	if err := s.stores.Accounts.IncrementBalance(ctx, acc.ID, reward, repository.NoMinimum); err != nil {
		return Result{}, err
	}

	// Momentum: the clan perk sometimes refunds the cooldown entirely.
	momentum := perks.MomentumChance > 0 && s.randFloat() < clampChance(perks.MomentumChance)
	if !momentum {
		if err := s.stores.Accounts.SetFields(ctx, acc.ID, repository.AccountUpdate{LastWork: &now}); err != nil {
			log.Printf("[Service] Warning: failed to stamp work cooldown for %s: %v", acc.ID, err)
		}
	}
	if clanCode != "" {
		if err := s.stores.Clans.AddWarPoints(ctx, clanCode, 1); err != nil {
			log.Printf("[Service] Warning: failed to add war point for %s: %v", clanCode, err)
		}
	}
	s.pruneBuffs(ctx, acc)

	msg := fmt.Sprintf("You worked and earned **%.2f** coins%s.", reward, eventNote)
	if momentum {
		msg += " Your clan's momentum carries you: no cooldown!"
	}
	return ok("%s", msg), nil
}

// Gather rolls each resource type independently up to the distinct-type cap
// and credits every yield with its own unguarded increment. A zero-yield
// attempt still consumes the cooldown.
func (s *Service) Gather(ctx context.Context, identity string) (Result, error) {
	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}
	now := s.now()

	perks, clanCode := s.memberPerks(ctx, acc)
	mods := collectMods(acc, perks, now)
	wait := mods.cooldown(s.cfg.GatherCooldown, s.cfg.MinCooldown)
	if left := s.cooldownLeft(acc.LastGather, wait); left > 0 {
		return fail("The land needs rest. Gather again in %s.", fmtDuration(left)), nil
	}

	slots := s.cfg.GatherBaseSlots + mods.slots
	if slots < 1 {
		slots = 1
	}

	type yield struct {
		item string
		qty  int64
	}
	var yields []yield
	for _, idx := range s.shuffledIndices(len(content.GatherTable)) {
		if len(yields) >= slots {
			break
		}
		res := content.GatherTable[idx]
		if s.randFloat() >= clampChance(res.Chance+mods.luck) {
			continue
		}
		qty := s.randInt(res.Min, res.Max)
		if mods.double > 0 {
			var bonus int64
			for i := int64(0); i < qty; i++ {
				if s.randFloat() < clampChance(mods.double) {
					bonus++
				}
			}
			qty += bonus
		}
		qty += perks.GatherFlat
		if qty > 0 {
			yields = append(yields, yield{item: res.Item, qty: qty})
		}
	}

	for _, y := range yields {
		if err := s.stores.Accounts.IncrementItem(ctx, acc.ID, y.item, y.qty, repository.NoMinimum); err != nil {
			return Result{}, err
		}
	}

	momentum := perks.MomentumChance > 0 && s.randFloat() < clampChance(perks.MomentumChance)
	if !momentum {
		if err := s.stores.Accounts.SetFields(ctx, acc.ID, repository.AccountUpdate{LastGather: &now}); err != nil {
			log.Printf("[Service] Warning: failed to stamp gather cooldown for %s: %v", acc.ID, err)
		}
	}
	if clanCode != "" {
		if err := s.stores.Clans.AddWarPoints(ctx, clanCode, 1); err != nil {
			log.Printf("[Service] Warning: failed to add war point for %s: %v", clanCode, err)
		}
	}

	if len(yields) == 0 {
		return ok("You searched but found nothing this time."), nil
	}
	parts := make([]string, 0, len(yields))
	for _, y := range yields {
		parts = append(parts, fmt.Sprintf("%d× %s", y.qty, content.DisplayName(y.item)))
	}
	msg := "You gathered " + strings.Join(parts, ", ") + "."
	if momentum {
		msg += " Your clan's momentum carries you: no cooldown!"
	}
	return ok("%s", msg), nil
}

// shuffledIndices returns 0..n-1 in random order.
func (s *Service) shuffledIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	s.mu.Lock()
	s.rand.Shuffle(n, func(i, j int) { out[i], out[j] = out[j], out[i] })
	s.mu.Unlock()
	return out
}

// Daily claims the daily reward. The streak survives as long as claims stay
// within the break window and grows the payout linearly.
func (s *Service) Daily(ctx context.Context, identity string) (Result, error) {
	return s.claimPeriodic(ctx, identity, periodicSpec{
		label:       "daily",
		last:        func(a *model.Account) *time.Time { return a.LastDaily },
		streak:      func(a *model.Account) int { return a.DailyStreak },
		cooldown:    s.cfg.DailyCooldown,
		streakBreak: s.cfg.DailyStreakBreak,
		reward:      s.cfg.DailyReward,
		streakBonus: s.cfg.DailyStreakBonus,
		update: func(now time.Time, streak int) repository.AccountUpdate {
			return repository.AccountUpdate{LastDaily: &now, DailyStreak: &streak}
		},
	})
}

// Hourly claims the hourly reward.
func (s *Service) Hourly(ctx context.Context, identity string) (Result, error) {
	return s.claimPeriodic(ctx, identity, periodicSpec{
		label:       "hourly",
		last:        func(a *model.Account) *time.Time { return a.LastHourly },
		streak:      func(a *model.Account) int { return a.HourlyStreak },
		cooldown:    s.cfg.HourlyCooldown,
		streakBreak: s.cfg.HourlyStreakBreak,
		reward:      s.cfg.HourlyReward,
		streakBonus: s.cfg.HourlyStreakBonus,
		update: func(now time.Time, streak int) repository.AccountUpdate {
			return repository.AccountUpdate{LastHourly: &now, HourlyStreak: &streak}
		},
	})
}

type periodicSpec struct {
	label       string
	last        func(*model.Account) *time.Time
	streak      func(*model.Account) int
	cooldown    time.Duration
	streakBreak time.Duration
	reward      float64
	streakBonus float64
	update      func(now time.Time, streak int) repository.AccountUpdate
}

func (s *Service) claimPeriodic(ctx context.Context, identity string, spec periodicSpec) (Result, error) {
	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}
	now := s.now()

	last := spec.last(acc)
	if left := s.cooldownLeft(last, spec.cooldown); left > 0 {
		return fail("Your %s reward is ready in %s.", spec.label, fmtDuration(left)), nil
	}

	streak := 1
	if last != nil && now.Sub(*last) <= spec.streakBreak {
		streak = spec.streak(acc) + 1
	}

	reward := spec.reward + spec.streakBonus*float64(streak-1)
	if !validReward(reward) {
		return Result{}, fmt.Errorf("%s reward computed as %v for %s", spec.label, reward, acc.ID)
	}
	if err := s.stores.Accounts.IncrementBalance(ctx, acc.ID, reward, repository.NoMinimum); err != nil {
		return Result{}, err
	}
	if err := s.stores.Accounts.SetFields(ctx, acc.ID, spec.update(now, streak)); err != nil {
		log.Printf("[Service] Warning: failed to stamp %s claim for %s: %v", spec.label, acc.ID, err)
	}
	return ok("You claimed your %s reward: **%.2f** coins (streak %d).", spec.label, reward, streak), nil
}

// Eat consumes one unit of a food item and applies its timed buff. The
// guarded decrement is the commit point; the buff write follows it.
func (s *Service) Eat(ctx context.Context, identity, itemName string) (Result, error) {
	it, found := content.Lookup(itemName)
	if !found {
		return fail("There is no item called **%s**.", itemName), nil
	}
	if it.Kind != content.KindFood {
		return fail("You cannot eat a %s.", it.Name), nil
	}
	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}

	if err := s.stores.Accounts.IncrementItem(ctx, acc.ID, it.ID, -1, 1); err != nil {
		if errors.Is(err, repository.ErrGuardFailed) {
			return fail("You do not have any %s.", it.Name), nil
		}
		return Result{}, err
	}

	buff := model.Buff{
		ItemID:    it.ID,
		ExpiresAt: s.now().Add(it.BuffDuration),
		Effects:   it.BuffEffects,
	}
	if err := s.appendBuff(ctx, acc, buff); err != nil {
		// The food is gone either way; the buff is the part we retry-refund.
		if rbErr := s.stores.Accounts.IncrementItem(ctx, acc.ID, it.ID, 1, repository.NoMinimum); rbErr != nil {
			return Result{}, fmt.Errorf("buff write failed (%v) and refund failed: %w", err, rbErr)
		}
		return Result{}, err
	}
	return ok("You ate a %s. Buff active for %s.", it.Name, fmtDuration(it.BuffDuration)), nil
}

// Craft consumes a recipe's ingredients with ordered guarded decrements and
// credits the output. A failed decrement refunds everything taken so far.
func (s *Service) Craft(ctx context.Context, identity, itemName string, quantity int64) (Result, error) {
	if quantity <= 0 {
		return fail("Quantity must be at least 1."), nil
	}
	it, found := content.Lookup(itemName)
	if !found {
		return fail("There is no item called **%s**.", itemName), nil
	}
	recipe, craftable := content.Recipes[it.ID]
	if !craftable {
		return fail("%s cannot be crafted.", it.Name), nil
	}
	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}

	// Deterministic debit order so partial failures are easy to reason about.
	debits := make([]itemDebit, 0, len(recipe.Ingredients))
	for _, ing := range recipe.IngredientList() {
		debits = append(debits, itemDebit{item: ing.Item, qty: ing.Quantity * quantity})
	}

	taken := make([]itemDebit, 0, len(debits))
	for _, d := range debits {
		if err := s.stores.Accounts.IncrementItem(ctx, acc.ID, d.item, -d.qty, d.qty); err != nil {
			refundErr := s.refundItems(ctx, acc.ID, taken)
			if errors.Is(err, repository.ErrGuardFailed) {
				if refundErr != nil {
					return Result{}, fmt.Errorf("craft refund failed: %w", refundErr)
				}
				return fail("You need %d× %s to craft that.", d.qty, content.DisplayName(d.item)), nil
			}
			if refundErr != nil {
				return Result{}, fmt.Errorf("craft debit failed (%v) and refund failed: %w", err, refundErr)
			}
			return Result{}, err
		}
		taken = append(taken, d)
	}

	if err := s.stores.Accounts.IncrementItem(ctx, acc.ID, it.ID, quantity, repository.NoMinimum); err != nil {
		if refundErr := s.refundItems(ctx, acc.ID, taken); refundErr != nil {
			return Result{}, fmt.Errorf("craft credit failed (%v) and refund failed: %w", err, refundErr)
		}
		return Result{}, err
	}
	return ok("You crafted %d× %s.", quantity, it.Name), nil
}

// itemDebit is one guarded inventory decrement in a multi-step consumption.
type itemDebit struct {
	item string
	qty  int64
}

func (s *Service) refundItems(ctx context.Context, id string, taken []itemDebit) error {
	var firstErr error
	for _, d := range taken {
		if err := s.stores.Accounts.IncrementItem(ctx, id, d.item, d.qty, repository.NoMinimum); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
