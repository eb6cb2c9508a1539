package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"forgebot/internal/content"
	"forgebot/internal/model"
	"forgebot/internal/repository"
)

// Smelt starts an ore -> bar job. The ore, the coal and the "no job in
// flight" condition are all checked and consumed by one compound-guarded
// update, so two racing smelts can never double-spend or stack jobs.
func (s *Service) Smelt(ctx context.Context, identity, oreName string, quantity int64) (Result, error) {
	if quantity <= 0 {
		return fail("Quantity must be at least 1."), nil
	}
	ore, found := content.Lookup(oreName)
	if !found {
		return fail("There is no item called **%s**.", oreName), nil
	}
	recipe, smeltable := content.Smeltables[ore.ID]
	if !smeltable {
		return fail("%s cannot be smelted.", ore.Name), nil
	}

	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}

	power := s.smeltPower(acc)
	if power == 0 {
		return fail("You need a furnace to smelt. Craft one first."), nil
	}
	if acc.Smelting != nil {
		left := acc.Smelting.FinishAt.Sub(s.now())
		if left > 0 {
			return fail("Your furnace is busy for another %s.", fmtDuration(left)), nil
		}
		// Finished but not yet swept; the sweep ticker will clear it shortly.
		return fail("Your furnace holds a finished batch. It will be collected shortly."), nil
	}

	coalCost := recipe.CoalPerUnit * quantity
	duration := s.smeltDuration(ctx, recipe, quantity, power)

	job := model.SmeltJob{
		Result:   recipe.Output,
		Quantity: quantity,
		FinishAt: s.now().Add(duration),
	}
	if err := s.stores.Accounts.StartSmelt(ctx, acc.ID, ore.ID, quantity, coalCost, job); err != nil {
		if errors.Is(err, repository.ErrGuardFailed) {
			return fail("Smelting %d× %s needs %d ore and %d coal, with the furnace idle.",
				quantity, ore.Name, quantity, coalCost), nil
		}
		return Result{}, err
	}
	return ok("Smelting %d× %s into %s. Ready in %s.",
		quantity, ore.Name, content.DisplayName(recipe.Output), fmtDuration(duration)), nil
}

// SmeltStatus reports the in-flight job, if any.
func (s *Service) SmeltStatus(ctx context.Context, identity string) (Result, error) {
	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}
	if acc.Smelting == nil {
		return ok("Your furnace is idle."), nil
	}
	left := acc.Smelting.FinishAt.Sub(s.now())
	if left <= 0 {
		return ok("Your batch of %d× %s is done and will be collected shortly.",
			acc.Smelting.Quantity, content.DisplayName(acc.Smelting.Result)), nil
	}
	return ok("Smelting %d× %s — ready in %s.",
		acc.Smelting.Quantity, content.DisplayName(acc.Smelting.Result), fmtDuration(left)), nil
}

// smeltPower sums the processing power of every furnace owned. Multiple
// furnaces stack.
func (s *Service) smeltPower(acc *model.Account) int64 {
	var power int64
	for id, count := range acc.Inventory {
		if count <= 0 {
			continue
		}
		if it, found := content.Items[id]; found && it.SmeltPower > 0 {
			power += int64(it.SmeltPower) * count
		}
	}
	return power
}

// smeltDuration scales the per-unit time by quantity, divides by furnace
// power and honors a smelt_speed event.
func (s *Service) smeltDuration(ctx context.Context, recipe content.Smeltable, quantity, power int64) time.Duration {
	d := time.Duration(quantity) * recipe.TimePerUnit / time.Duration(power)
	if e := s.activeEvent(ctx); e != nil && e.Kind == model.EventSmeltSpeed && e.Multiplier > 1 {
		d = time.Duration(float64(d) / e.Multiplier)
	}
	if d < time.Second {
		d = time.Second
	}
	return d
}

// sweepSmelts collects every finished job: the guarded clear decides the
// single winner, then the bars are credited and the owner notified.
func (s *Service) sweepSmelts(ctx context.Context) error {
	done, err := s.stores.Accounts.FinishedSmelts(ctx, s.now())
	if err != nil {
		return err
	}
	for _, acc := range done {
		job := acc.Smelting
		if job == nil {
			continue
		}
		if err := s.stores.Accounts.ClearSmelt(ctx, acc.ID); err != nil {
			if errors.Is(err, repository.ErrGuardFailed) {
				continue // another sweep got here first
			}
			return fmt.Errorf("failed to clear smelt for %s: %w", acc.ID, err)
		}
		if err := s.stores.Accounts.IncrementItem(ctx, acc.ID, job.Result, job.Quantity, repository.NoMinimum); err != nil {
			return fmt.Errorf("failed to credit smelt output for %s: %w", acc.ID, err)
		}
		_ = s.notify.Notify(ctx, acc.ID, fmt.Sprintf("Your furnace finished: %d× %s.",
			job.Quantity, content.DisplayName(job.Result)))
	}
	return nil
}
