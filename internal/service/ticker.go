package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"forgebot/internal/content"
	"forgebot/internal/model"
	"forgebot/internal/repository"
)

// Ticker runs one background sweep on a fixed interval until stopped.
type Ticker struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTicker creates a ticker; it does not start it.
func NewTicker(name string, interval time.Duration, fn func(ctx context.Context) error) *Ticker {
	return &Ticker{
		name:     name,
		interval: interval,
		fn:       fn,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the background loop.
func (t *Ticker) Start() {
	t.wg.Add(1)
	go t.run()
	log.Printf("[Ticker] %s started (interval: %v)", t.name, t.interval)
}

// Stop terminates the loop and waits for an in-flight sweep to finish.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
		t.wg.Wait()
		log.Printf("[Ticker] %s stopped", t.name)
	})
}

func (t *Ticker) run() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), t.interval)
			if err := t.fn(ctx); err != nil {
				log.Printf("[Ticker] %s sweep failed: %v", t.name, err)
			}
			cancel()
		case <-t.stopCh:
			return
		}
	}
}

// Tickers builds the full background-sweep set for the service.
func (s *Service) Tickers() []*Ticker {
	return []*Ticker{
		NewTicker("vendor-restock", s.cfg.VendorInterval, s.RunVendorRestock),
		NewTicker("crate-restock", s.cfg.CrateInterval, s.RunCrateRestock),
		NewTicker("smelt-sweep", s.cfg.SmeltSweepInterval, s.RunSmeltSweep),
		NewTicker("event-cycle", s.cfg.EventInterval, s.RunEventCycle),
		NewTicker("clan-war", s.cfg.WarInterval, s.RunWarCycle),
	}
}

// RunSmeltSweep collects finished smelting jobs.
func (s *Service) RunSmeltSweep(ctx context.Context) error {
	return s.sweepSmelts(ctx)
}

// RunVendorRestock keeps a few vendor listings on the market, priced off
// player activity when there is any.
func (s *Service) RunVendorRestock(ctx context.Context) error {
	if s.randFloat() >= clampChance(s.cfg.VendorRestockChance) {
		return nil
	}
	listings, err := s.stores.Market.BySeller(ctx, model.VendorSeller)
	if err != nil {
		return err
	}
	if len(listings) >= s.cfg.VendorMaxListings {
		return nil
	}

	entry := content.VendorCatalog[s.randInt(0, int64(len(content.VendorCatalog)-1))]
	price, err := s.vendorPrice(ctx, entry)
	if err != nil {
		return err
	}

	listing := model.Listing{
		Seller:   model.VendorSeller,
		Item:     entry.Item,
		Quantity: entry.Quantity,
		Price:    price,
		ListedAt: s.now(),
	}
	if _, err := s.insertWithRetry(ctx, s.stores.Market, listing); err != nil {
		return fmt.Errorf("vendor restock: %w", err)
	}
	return nil
}

// vendorPrice anchors the vendor to the player market: the trimmed mean of
// current player listings for the item, marked up, falling back to the
// catalog range when there is no signal.
func (s *Service) vendorPrice(ctx context.Context, entry content.VendorEntry) (float64, error) {
	listings, err := s.stores.Market.ByItem(ctx, entry.Item)
	if err != nil {
		return 0, err
	}
	prices := make([]float64, 0, len(listings))
	for _, l := range listings {
		if !l.IsVendor() && validReward(l.Price) && l.Price > 0 {
			prices = append(prices, l.Price)
		}
	}
	base := trimmedMean(prices)
	if base <= 0 {
		return math.Floor(s.randRange(entry.MinPrice, entry.MaxPrice)*100) / 100, nil
	}
	price := math.Floor(base*s.cfg.VendorMarkup*100) / 100
	if price < entry.MinPrice {
		price = entry.MinPrice
	}
	return price, nil
}

// trimmedMean averages prices after dropping the top and bottom tenth, so
// one absurd listing cannot drag the vendor with it. Fewer than three
// samples is no signal.
func trimmedMean(prices []float64) float64 {
	if len(prices) < 3 {
		return 0
	}
	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)
	trim := len(sorted) / 10
	sorted = sorted[trim : len(sorted)-trim]
	sum := 0.0
	for _, p := range sorted {
		sum += p
	}
	return sum / float64(len(sorted))
}

// RunCrateRestock rotates the crate shop: sometimes retires a random
// listing, otherwise lists a crate type not currently offered.
func (s *Service) RunCrateRestock(ctx context.Context) error {
	listings, err := s.stores.Crates.All(ctx)
	if err != nil {
		return err
	}

	if len(listings) > 0 && s.randFloat() < clampChance(s.cfg.CrateRetireChance) {
		victim := listings[s.randInt(0, int64(len(listings)-1))]
		if _, err := s.stores.Crates.Purchase(ctx, victim.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("crate retire: %w", err)
		}
		return nil
	}

	if len(listings) >= s.cfg.CrateMaxListings {
		return nil
	}
	if s.randFloat() >= clampChance(s.cfg.CrateRestockChance) {
		return nil
	}

	offered := map[string]bool{}
	for _, l := range listings {
		offered[l.Item] = true
	}
	var candidates []string
	for _, id := range content.CrateIDs() {
		if !offered[id] {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	crateID := candidates[s.randInt(0, int64(len(candidates)-1))]
	crate := content.Crates[crateID]
	listing := model.Listing{
		Seller:   model.VendorSeller,
		Item:     crateID,
		Quantity: s.randInt(1, 3),
		Price:    crate.Price,
		ListedAt: s.now(),
	}
	if _, err := s.insertWithRetry(ctx, s.stores.Crates, listing); err != nil {
		return fmt.Errorf("crate restock: %w", err)
	}
	return nil
}

// RunEventCycle expires the running global event or, when none runs, rolls
// the dice on starting one.
func (s *Service) RunEventCycle(ctx context.Context) error {
	now := s.now()
	e, err := s.stores.State.GetEvent(ctx)
	if err != nil {
		return err
	}
	if e != nil {
		if e.Active(now) {
			return nil
		}
		if err := s.stores.State.ClearEvent(ctx); err != nil {
			return err
		}
		_ = s.notify.Announce(ctx, fmt.Sprintf("**%s** has ended.", e.Name))
		return nil
	}

	if s.randFloat() >= clampChance(s.cfg.EventStartChance) {
		return nil
	}
	spec := content.PickEvent(s.randFloat)
	event := &model.GlobalEvent{
		ID:         model.GlobalEventDocID,
		Kind:       spec.Kind,
		Name:       spec.Name,
		Multiplier: spec.Multiplier,
		StartedAt:  now,
		EndsAt:     now.Add(spec.Duration),
	}
	if err := s.stores.State.SetEvent(ctx, event); err != nil {
		return err
	}
	_ = s.notify.Announce(ctx, fmt.Sprintf("**%s** has begun! Ends in %s.", spec.Name, fmtDuration(spec.Duration)))
	return nil
}

// RunWarCycle installs the first war period, and when one ends, pays the
// top clans, resets every score and starts the next period.
func (s *Service) RunWarCycle(ctx context.Context) error {
	now := s.now()
	war, err := s.stores.State.GetWar(ctx)
	if err != nil {
		return err
	}
	if war == nil {
		return s.stores.State.InitWar(ctx, &model.ClanWar{
			ID:     model.ClanWarDocID,
			EndsAt: now.Add(s.cfg.WarDuration),
		})
	}
	if now.Before(war.EndsAt) {
		return nil
	}

	clans, err := s.stores.Clans.All(ctx)
	if err != nil {
		return err
	}
	sort.Slice(clans, func(i, j int) bool { return clans[i].WarPoints > clans[j].WarPoints })

	for place := 1; place <= 3 && place <= len(clans); place++ {
		clan := clans[place-1]
		if clan.WarPoints <= 0 {
			break
		}
		reward, found := content.WarRewards[place]
		if !found {
			continue
		}
		for _, member := range clan.Members {
			if err := s.stores.Accounts.IncrementItem(ctx, member, reward.Item, reward.Quantity, repository.NoMinimum); err != nil {
				log.Printf("[Service] Warning: war payout to %s failed: %v", member, err)
			}
		}
		_ = s.notify.Announce(ctx, fmt.Sprintf("Clan war: **%s** takes place %d! Every member receives %d× %s.",
			clan.Name, place, reward.Quantity, content.DisplayName(reward.Item)))
	}

	if err := s.stores.Clans.ResetAllWarPoints(ctx); err != nil {
		return err
	}
	return s.stores.State.SetWar(ctx, &model.ClanWar{
		ID:     model.ClanWarDocID,
		EndsAt: now.Add(s.cfg.WarDuration),
	})
}
