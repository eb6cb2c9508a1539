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

const maxNameLength = 32

// EnsureAccount resolves an identity to its account, creating a fresh one
// (starting balance, rolled traits) on first contact. A lost creation race
// falls back to the winner's document.
func (s *Service) EnsureAccount(ctx context.Context, identity string, kind model.AccountKind) (*model.Account, error) {
	id := model.CanonicalID(identity)
	if id == "" {
		return nil, fmt.Errorf("empty identity")
	}

	acc, err := s.stores.Accounts.Get(ctx, id)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	acc = &model.Account{
		ID:        id,
		Name:      strings.TrimSpace(identity),
		Kind:      kind,
		Balance:   s.cfg.StartingBalance,
		Inventory: map[string]int64{},
		Traits:    content.RollTraits(s.randFloat),
		CreatedAt: s.now(),
	}
	if kind == model.KindDiscord {
		acc.DiscordID = id
	}
	if err := s.stores.Accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return s.stores.Accounts.Get(ctx, id)
		}
		return nil, err
	}
	return acc, nil
}

// Rename changes the display name only; the document key never changes.
func (s *Service) Rename(ctx context.Context, identity, newName string) (Result, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" || len(newName) > maxNameLength {
		return fail("Names must be 1-%d characters.", maxNameLength), nil
	}
	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}
	if err := s.stores.Accounts.SetFields(ctx, acc.ID, repository.AccountUpdate{Name: &newName}); err != nil {
		return Result{}, err
	}
	return ok("You are now known as **%s**.", newName), nil
}

// Pay transfers coins between two accounts: guarded debit first, credit
// second, debit refunded if the credit cannot land.
func (s *Service) Pay(ctx context.Context, identity, target string, amount float64) (Result, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return fail("Amount must be a positive number."), nil
	}
	amount = math.Floor(amount*100) / 100

	payer, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}
	payee, err := s.stores.Accounts.Get(ctx, target)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail("No account named **%s**.", target), nil
		}
		return Result{}, err
	}
	if payee.ID == payer.ID {
		return fail("You cannot pay yourself."), nil
	}

	if err := s.stores.Accounts.IncrementBalance(ctx, payer.ID, -amount, amount); err != nil {
		if errors.Is(err, repository.ErrGuardFailed) {
			return fail("You do not have %.2f coins.", amount), nil
		}
		return Result{}, err
	}
	if err := s.stores.Accounts.IncrementBalance(ctx, payee.ID, amount, repository.NoMinimum); err != nil {
		// Credit failed after the debit landed; give the coins back.
		if rbErr := s.stores.Accounts.IncrementBalance(ctx, payer.ID, amount, repository.NoMinimum); rbErr != nil {
			return Result{}, fmt.Errorf("pay credit failed (%v) and refund failed: %w", err, rbErr)
		}
		return Result{}, err
	}
	return ok("Sent %.2f coins to **%s**.", amount, payee.Name), nil
}

// Traits reports the account's trait set.
func (s *Service) Traits(ctx context.Context, identity string) (Result, error) {
	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}
	lines := make([]string, 0, len(acc.Traits))
	for _, t := range acc.Traits {
		lines = append(lines, fmt.Sprintf("%s %s", t.Name, strings.Repeat("★", t.Level)))
	}
	return Result{Success: true, Message: "Your traits:", Lines: lines}, nil
}

// RerollTraits replaces the trait set for a flat fee. The debit guards the
// fee; the trait write is a plain field set afterwards.
func (s *Service) RerollTraits(ctx context.Context, identity string) (Result, error) {
	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}
	cost := s.cfg.TraitRerollCost
	if err := s.stores.Accounts.IncrementBalance(ctx, acc.ID, -cost, cost); err != nil {
		if errors.Is(err, repository.ErrGuardFailed) {
			return fail("Rerolling costs %.0f coins.", cost), nil
		}
		return Result{}, err
	}
	traits := content.RollTraits(s.randFloat)
	if err := s.stores.Accounts.SetFields(ctx, acc.ID, repository.AccountUpdate{Traits: &traits}); err != nil {
		return Result{}, err
	}
	lines := make([]string, 0, len(traits))
	for _, t := range traits {
		lines = append(lines, fmt.Sprintf("%s %s", t.Name, strings.Repeat("★", t.Level)))
	}
	return Result{Success: true, Message: fmt.Sprintf("Rerolled for %.0f coins. New traits:", cost), Lines: lines}, nil
}

// pruneBuffs drops expired buffs and persists the trimmed list when it
// shrank. Best effort; the pruned slice is authoritative either way.
func (s *Service) pruneBuffs(ctx context.Context, acc *model.Account) []model.Buff {
	live := acc.LiveBuffs(s.now())
	if len(live) != len(acc.ActiveBuffs) {
		buffs := live
		if err := s.stores.Accounts.SetFields(ctx, acc.ID, repository.AccountUpdate{Buffs: &buffs}); err == nil {
			acc.ActiveBuffs = live
		}
	}
	return live
}

// appendBuff adds a buff to the account's live set and persists it.
func (s *Service) appendBuff(ctx context.Context, acc *model.Account, b model.Buff) error {
	buffs := append(acc.LiveBuffs(s.now()), b)
	return s.stores.Accounts.SetFields(ctx, acc.ID, repository.AccountUpdate{Buffs: &buffs})
}

// cooldownLeft returns the remaining wait, zero when the action is ready.
func (s *Service) cooldownLeft(last *time.Time, d time.Duration) time.Duration {
	if last == nil {
		return 0
	}
	left := last.Add(d).Sub(s.now())
	if left < 0 {
		return 0
	}
	return left
}

func fmtDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	sec := (d % time.Minute) / time.Second
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, sec)
	default:
		return fmt.Sprintf("%ds", sec)
	}
}
