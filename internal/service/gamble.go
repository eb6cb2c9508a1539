package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"forgebot/internal/content"
	"forgebot/internal/model"
	"forgebot/internal/repository"
)

// gamblerBuffID tags the consolation buff a losing Gambler receives.
const gamblerBuffID = "gamblers_resolve"

const gamblerBuffDuration = 30 * time.Minute

var slotSymbols = []string{"🍒", "🍋", "🔔", "💎", "⭐", "7️⃣"}

// Flip wagers on a coin flip. The whole bet settles as one guarded
// increment: +bet on a win, -bet on a loss, both guarded on still holding
// the stake so a racing spend cannot drive the balance negative.
func (s *Service) Flip(ctx context.Context, identity, choice string, bet float64) (Result, error) {
	choice = strings.ToLower(strings.TrimSpace(choice))
	if choice != "heads" && choice != "tails" {
		return fail("Pick heads or tails."), nil
	}
	if err := s.validBet(bet, s.cfg.FlipMinBet, s.cfg.FlipMaxBet); err != nil {
		return fail("%s", err.Error()), nil
	}
	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}

	landed := "tails"
	if s.randFloat() < 0.5 {
		landed = "heads"
	}
	won := landed == choice

	delta := bet
	if !won {
		delta = -bet
	}
	if err := s.stores.Accounts.IncrementBalance(ctx, acc.ID, delta, bet); err != nil {
		if errors.Is(err, repository.ErrGuardFailed) {
			return fail("You no longer have %.2f coins to stake.", bet), nil
		}
		return Result{}, err
	}

	if won {
		return ok("The coin lands on **%s** — you win %.2f coins!", landed, bet), nil
	}
	msg := fmt.Sprintf("The coin lands on **%s** — you lose %.2f coins.", landed, bet)
	if note := s.consoleGambler(ctx, acc, bet); note != "" {
		msg += " " + note
	}
	return ok("%s", msg), nil
}

// Slots spins three reels, cooldown-gated, with the bet cap scaled by the
// clan perk. Three of a kind pays 5×, a pair pays 2×, anything else loses
// the stake. Settlement is one guarded increment of the net amount.
func (s *Service) Slots(ctx context.Context, identity string, bet float64) (Result, error) {
	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}
	now := s.now()
	if left := s.cooldownLeft(acc.LastSlots, s.cfg.SlotsCooldown); left > 0 {
		return fail("The machine is still spinning down. Try again in %s.", fmtDuration(left)), nil
	}

	perks, _ := s.memberPerks(ctx, acc)
	maxBet := s.cfg.SlotsBaseMaxBet * perks.SlotsBetFactor
	if err := s.validBet(bet, s.cfg.SlotsMinBet, maxBet); err != nil {
		return fail("%s", err.Error()), nil
	}

	reels := make([]string, 3)
	for i := range reels {
		reels[i] = slotSymbols[s.randInt(0, int64(len(slotSymbols)-1))]
	}

	var payout float64
	switch {
	case reels[0] == reels[1] && reels[1] == reels[2]:
		payout = bet * 5
	case reels[0] == reels[1] || reels[1] == reels[2] || reels[0] == reels[2]:
		payout = bet * 2
	}
	net := payout - bet
	if !validReward(payout) {
		return Result{}, fmt.Errorf("slots payout computed as %v for %s", payout, acc.ID)
	}

	if err := s.stores.Accounts.IncrementBalance(ctx, acc.ID, net, bet); err != nil {
		if errors.Is(err, repository.ErrGuardFailed) {
			return fail("You no longer have %.2f coins to stake.", bet), nil
		}
		return Result{}, err
	}
	if err := s.stores.Accounts.SetFields(ctx, acc.ID, repository.AccountUpdate{LastSlots: &now}); err != nil {
		return Result{}, err
	}

	row := strings.Join(reels, " | ")
	switch {
	case net > 0:
		return ok("[ %s ] — you win %.2f coins!", row, net), nil
	case net == 0:
		return ok("[ %s ] — you break even.", row), nil
	default:
		msg := fmt.Sprintf("[ %s ] — you lose %.2f coins.", row, bet)
		if note := s.consoleGambler(ctx, acc, bet); note != "" {
			msg += " " + note
		}
		return ok("%s", msg), nil
	}
}

// consoleGambler grants the Gambler trait's consolation work buff after a
// loss, scaled by the fraction of the pre-loss balance wagered. Best
// effort: a failed buff write only logs.
func (s *Service) consoleGambler(ctx context.Context, acc *model.Account, lost float64) string {
	level := acc.TraitLevel(content.TraitGambler)
	if level == 0 || acc.Balance <= 0 {
		return ""
	}
	frac := lost / acc.Balance
	if math.IsNaN(frac) || math.IsInf(frac, 0) || frac <= 0 {
		return ""
	}
	if frac > 1 {
		frac = 1
	}
	bonus := frac * content.GamblerBuffPerLevel * float64(level)
	if !validReward(bonus) || bonus == 0 {
		return ""
	}
	buff := model.Buff{
		ItemID:    gamblerBuffID,
		ExpiresAt: s.now().Add(gamblerBuffDuration),
		Effects:   []model.Effect{{Kind: model.EffectWorkPercent, Value: bonus}},
	}
	if err := s.appendBuff(ctx, acc, buff); err != nil {
		return ""
	}
	return fmt.Sprintf("Your resolve hardens: +%.0f%% work for %s.", bonus*100, fmtDuration(gamblerBuffDuration))
}

func (s *Service) validBet(bet, min, max float64) error {
	if math.IsNaN(bet) || math.IsInf(bet, 0) || bet <= 0 {
		return fmt.Errorf("Bet must be a positive number.")
	}
	if bet < min {
		return fmt.Errorf("Minimum bet is %.0f coins.", min)
	}
	if bet > max {
		return fmt.Errorf("Maximum bet is %.0f coins.", max)
	}
	return nil
}
