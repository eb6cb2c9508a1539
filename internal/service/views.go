package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"forgebot/internal/content"
	"forgebot/internal/model"
)

// Balance reports the caller's coin balance.
func (s *Service) Balance(ctx context.Context, identity string) (Result, error) {
	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}
	if !acc.BalanceFinite() {
		return Result{}, fmt.Errorf("account %s has non-finite balance", acc.ID)
	}
	return ok("**%s** has %.2f coins.", acc.Name, acc.Balance), nil
}

// Inventory renders owned items as pageable lines.
func (s *Service) Inventory(ctx context.Context, identity string) (Result, error) {
	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}
	items := make([]string, 0, len(acc.Inventory))
	for id := range acc.Inventory {
		items = append(items, id)
	}
	sort.Strings(items)

	lines := make([]string, 0, len(items))
	for _, id := range items {
		if acc.Inventory[id] <= 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("%d× %s", acc.Inventory[id], content.DisplayName(id)))
	}
	if len(lines) == 0 {
		return ok("Your inventory is empty. Try `gather`."), nil
	}
	return s.paginate(ctx, identity, fmt.Sprintf("**%s**'s inventory:", acc.Name), lines)
}

// RecipeList renders every craftable recipe.
func (s *Service) RecipeList(ctx context.Context, identity string) (Result, error) {
	ids := make([]string, 0, len(content.Recipes))
	for id := range content.Recipes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		parts := []string{}
		for _, ing := range content.Recipes[id].IngredientList() {
			parts = append(parts, fmt.Sprintf("%d× %s", ing.Quantity, content.DisplayName(ing.Item)))
		}
		lines = append(lines, fmt.Sprintf("%s — %s", content.DisplayName(id), strings.Join(parts, ", ")))
	}
	return s.paginate(ctx, identity, "Craftable recipes:", lines)
}

// MarketList renders open market listings, optionally filtered by item.
func (s *Service) MarketList(ctx context.Context, identity, itemFilter string) (Result, error) {
	var listings []model.Listing
	var err error
	if strings.TrimSpace(itemFilter) != "" {
		it, found := content.Lookup(itemFilter)
		if !found {
			return fail("There is no item called **%s**.", itemFilter), nil
		}
		listings, err = s.stores.Market.ByItem(ctx, it.ID)
	} else {
		listings, err = s.stores.Market.All(ctx)
	}
	if err != nil {
		return Result{}, err
	}
	if len(listings) == 0 {
		return ok("The market is empty. Be the first: `market sell <item> <qty> <price>`."), nil
	}

	lines := make([]string, 0, len(listings))
	for _, l := range listings {
		seller := l.Seller
		if l.IsVendor() {
			seller = "Vendor"
		}
		lines = append(lines, fmt.Sprintf("#%d %d× %s @ %.2f each (%.2f total) — %s",
			l.ID, l.Quantity, content.DisplayName(l.Item), l.Price, l.Total(), seller))
	}
	return s.paginate(ctx, identity, "Market listings:", lines)
}

// CrateShop renders the crate-shop stock.
func (s *Service) CrateShop(ctx context.Context, identity string) (Result, error) {
	listings, err := s.stores.Crates.All(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(listings) == 0 {
		return ok("The crate shop is restocking. Check back soon."), nil
	}
	lines := make([]string, 0, len(listings))
	for _, l := range listings {
		lines = append(lines, fmt.Sprintf("#%d %d× %s @ %.2f each (%.2f total)",
			l.ID, l.Quantity, content.CrateDisplayName(l.Item), l.Price, l.Total()))
	}
	return s.paginate(ctx, identity, "Crate shop:", lines)
}

// Leaderboard renders the top balances.
func (s *Service) Leaderboard(ctx context.Context, identity string) (Result, error) {
	top, err := s.stores.Accounts.Top(ctx, 30)
	if err != nil {
		return Result{}, err
	}
	if len(top) == 0 {
		return ok("Nobody is on the board yet."), nil
	}
	lines := make([]string, 0, len(top))
	for i, acc := range top {
		lines = append(lines, fmt.Sprintf("%d. **%s** — %.2f coins", i+1, acc.Name, acc.Balance))
	}
	return s.paginate(ctx, identity, "Richest players:", lines)
}

// EventStatus reports the running global event, if any.
func (s *Service) EventStatus(ctx context.Context) (Result, error) {
	e := s.activeEvent(ctx)
	if e == nil {
		return ok("No global event is active."), nil
	}
	left := e.EndsAt.Sub(s.now())
	return ok("**%s** is active (×%.2g) — ends in %s.", e.Name, e.Multiplier, fmtDuration(left)), nil
}

// Profile is the one-screen account summary.
func (s *Service) Profile(ctx context.Context, identity string) (Result, error) {
	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}
	lines := []string{
		fmt.Sprintf("Balance: %.2f coins", acc.Balance),
		fmt.Sprintf("Items: %d kinds", len(acc.Inventory)),
		fmt.Sprintf("Streaks: daily %d, hourly %d", acc.DailyStreak, acc.HourlyStreak),
	}
	if len(acc.Traits) > 0 {
		parts := make([]string, 0, len(acc.Traits))
		for _, t := range acc.Traits {
			parts = append(parts, fmt.Sprintf("%s %d", t.Name, t.Level))
		}
		lines = append(lines, "Traits: "+strings.Join(parts, ", "))
	}
	if live := acc.LiveBuffs(s.now()); len(live) > 0 {
		parts := make([]string, 0, len(live))
		for _, b := range live {
			parts = append(parts, fmt.Sprintf("%s (%s left)", content.DisplayName(b.ItemID), fmtDuration(b.ExpiresAt.Sub(s.now()))))
		}
		lines = append(lines, "Buffs: "+strings.Join(parts, ", "))
	}
	if acc.ClanID != "" {
		lines = append(lines, "Clan: "+acc.ClanID)
	}
	if acc.Smelting != nil {
		lines = append(lines, fmt.Sprintf("Smelting: %d× %s", acc.Smelting.Quantity, content.DisplayName(acc.Smelting.Result)))
	}
	return Result{Success: true, Message: fmt.Sprintf("**%s**", acc.Name), Lines: lines}, nil
}
