package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"

	"forgebot/internal/content"
	"forgebot/internal/model"
	"forgebot/internal/repository"
)

const maxListingPrice = 1_000_000

// MarketSell escrows items into a new listing: guarded inventory debit
// first, then id allocation and insert with one retry on an id race. Any
// insert failure refunds the escrowed items.
func (s *Service) MarketSell(ctx context.Context, identity, itemName string, quantity int64, price float64) (Result, error) {
	it, found := content.Lookup(itemName)
	if !found {
		return fail("There is no item called **%s**.", itemName), nil
	}
	if quantity <= 0 {
		return fail("Quantity must be at least 1."), nil
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 || price > maxListingPrice {
		return fail("Price must be between 0 and %d coins per unit.", maxListingPrice), nil
	}
	price = math.Floor(price*100) / 100

	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}

	mine, err := s.stores.Market.BySeller(ctx, acc.ID)
	if err != nil {
		return Result{}, err
	}
	if len(mine) >= s.cfg.MaxListingsPerSeller {
		return fail("You already have %d open listings.", len(mine)), nil
	}

	if err := s.stores.Accounts.IncrementItem(ctx, acc.ID, it.ID, -quantity, quantity); err != nil {
		if errors.Is(err, repository.ErrGuardFailed) {
			return fail("You do not have %d× %s.", quantity, it.Name), nil
		}
		return Result{}, err
	}

	listing := model.Listing{
		Seller:   acc.ID,
		Item:     it.ID,
		Quantity: quantity,
		Price:    price,
		ListedAt: s.now(),
	}
	id, err := s.insertWithRetry(ctx, s.stores.Market, listing)
	if err != nil {
		if rbErr := s.stores.Accounts.IncrementItem(ctx, acc.ID, it.ID, quantity, repository.NoMinimum); rbErr != nil {
			return Result{}, fmt.Errorf("listing insert failed (%v) and refund failed: %w", err, rbErr)
		}
		return Result{}, err
	}
	return ok("Listed %d× %s at %.2f each (listing #%d).", quantity, it.Name, price, id), nil
}

// insertWithRetry allocates the lowest free id and inserts, retrying once
// when a concurrent insert claims the id first. The unique index is the
// real arbiter; NextID is only a dense-numbering heuristic.
func (s *Service) insertWithRetry(ctx context.Context, store repository.ListingStore, l model.Listing) (int64, error) {
	for attempt := 0; attempt < 2; attempt++ {
		id, err := store.NextID(ctx)
		if err != nil {
			return 0, err
		}
		l.ID = id
		err = store.Insert(ctx, l)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, repository.ErrDuplicateListingID) {
			return 0, err
		}
	}
	return 0, fmt.Errorf("could not allocate a listing id: %w", repository.ErrDuplicateListingID)
}

// MarketBuy purchases a whole listing. The atomic find-and-delete decides
// the winner between racing buyers; everything after it is compensating
// bookkeeping around the buyer's guarded debit.
func (s *Service) MarketBuy(ctx context.Context, identity string, listingID int64) (Result, error) {
	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}
	return s.buyListing(ctx, acc, s.stores.Market, listingID, false)
}

func (s *Service) buyListing(ctx context.Context, buyer *model.Account, store repository.ListingStore, listingID int64, crate bool) (Result, error) {
	listing, err := store.Purchase(ctx, listingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail("Listing #%d is gone — someone beat you to it.", listingID), nil
		}
		return Result{}, err
	}

	restore := func() {
		if err := store.Insert(ctx, *listing); err != nil {
			log.Printf("[Service] ERROR: could not restore listing #%d (%s ×%d): %v",
				listing.ID, listing.Item, listing.Quantity, err)
		}
	}

	if listing.Seller == buyer.ID {
		restore()
		return fail("You cannot buy your own listing."), nil
	}

	total := listing.Total()
	if !validReward(total) || total <= 0 {
		restore()
		return Result{}, fmt.Errorf("listing #%d has invalid total %v", listing.ID, total)
	}

	if err := s.stores.Accounts.IncrementBalance(ctx, buyer.ID, -total, total); err != nil {
		restore()
		if errors.Is(err, repository.ErrGuardFailed) {
			return fail("You need %.2f coins for that.", total), nil
		}
		return Result{}, err
	}

	// Goods to the buyer.
	var goodsNote string
	if crate {
		goodsNote, err = s.awardCrateDrops(ctx, buyer.ID, listing.Item, listing.Quantity)
	} else {
		err = s.stores.Accounts.IncrementItem(ctx, buyer.ID, listing.Item, listing.Quantity, repository.NoMinimum)
	}
	if err != nil {
		// Undo in reverse: coins back, listing back.
		if rbErr := s.stores.Accounts.IncrementBalance(ctx, buyer.ID, total, repository.NoMinimum); rbErr != nil {
			return Result{}, fmt.Errorf("goods credit failed (%v) and coin refund failed: %w", err, rbErr)
		}
		restore()
		return Result{}, err
	}

	// Proceeds to the seller, after tax. Vendor listings burn the coins.
	if !listing.IsVendor() {
		proceeds := total * (1 - s.taxRate(ctx))
		proceeds = math.Floor(proceeds*100) / 100
		if validReward(proceeds) && proceeds > 0 {
			if err := s.stores.Accounts.IncrementBalance(ctx, listing.Seller, proceeds, repository.NoMinimum); err != nil {
				// The trade itself stands; a vanished seller forfeits proceeds.
				log.Printf("[Service] Warning: seller credit of %.2f to %s failed for listing #%d: %v",
					proceeds, listing.Seller, listing.ID, err)
			}
		}
	}

	if crate {
		return ok("You opened %d× %s for %.2f coins. %s",
			listing.Quantity, content.CrateDisplayName(listing.Item), total, goodsNote), nil
	}
	return ok("You bought %d× %s for %.2f coins.",
		listing.Quantity, content.DisplayName(listing.Item), total), nil
}

// MarketCancel returns an escrowed listing to its seller. The seller-scoped
// atomic delete means a buyer and a cancel cannot both win.
func (s *Service) MarketCancel(ctx context.Context, identity string, listingID int64) (Result, error) {
	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}
	listing, err := s.stores.Market.Remove(ctx, listingID, acc.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail("Listing #%d is not yours, or it already sold.", listingID), nil
		}
		return Result{}, err
	}
	if err := s.stores.Accounts.IncrementItem(ctx, acc.ID, listing.Item, listing.Quantity, repository.NoMinimum); err != nil {
		return Result{}, fmt.Errorf("cancel refund of %d× %s failed: %w", listing.Quantity, listing.Item, err)
	}
	return ok("Cancelled listing #%d; %d× %s returned to you.",
		listingID, listing.Quantity, content.DisplayName(listing.Item)), nil
}

// CrateShopBuy opens a crate-shop listing: same purchase path as the
// market, but the goods are rolled drops instead of the listed item.
func (s *Service) CrateShopBuy(ctx context.Context, identity string, listingID int64) (Result, error) {
	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}
	return s.buyListing(ctx, acc, s.stores.Crates, listingID, true)
}

// CrateShopBuyByName buys the cheapest shop listing of a crate named by id or
// display name. The purchase itself still goes through the atomic per-listing
// path, so racing for the last crate of a type stays a fair race.
func (s *Service) CrateShopBuyByName(ctx context.Context, identity, name string) (Result, error) {
	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}
	crate, found := content.LookupCrate(name)
	if !found {
		return fail("No crate called **%s**.", name), nil
	}
	listings, err := s.stores.Crates.ByItem(ctx, crate.ID)
	if err != nil {
		return Result{}, err
	}
	if len(listings) == 0 {
		return fail("No **%s** on offer right now.", crate.Name), nil
	}
	cheapest := listings[0]
	for _, l := range listings[1:] {
		if l.Price < cheapest.Price {
			cheapest = l
		}
	}
	return s.buyListing(ctx, acc, s.stores.Crates, cheapest.ID, true)
}

// awardCrateDrops rolls count drops from a crate table and credits them.
func (s *Service) awardCrateDrops(ctx context.Context, accountID, crateID string, count int64) (string, error) {
	crate, found := content.Crates[crateID]
	if !found {
		return "", fmt.Errorf("unknown crate %q", crateID)
	}
	coins := 0.0
	items := map[string]int64{}
	for i := int64(0); i < count; i++ {
		drop := crate.Roll(s.randFloat)
		switch drop.Kind {
		case content.DropCoins:
			coins += s.randRange(float64(drop.Min), float64(drop.Max))
		case content.DropItem:
			items[drop.Item] += s.randInt(drop.Min, drop.Max)
		}
	}

	var parts []string
	if coins > 0 {
		coins = math.Floor(coins*100) / 100
		if err := s.stores.Accounts.IncrementBalance(ctx, accountID, coins, repository.NoMinimum); err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("%.2f coins", coins))
	}
	for item, qty := range items {
		if qty <= 0 {
			continue
		}
		if err := s.stores.Accounts.IncrementItem(ctx, accountID, item, qty, repository.NoMinimum); err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("%d× %s", qty, content.DisplayName(item)))
	}
	if len(parts) == 0 {
		return "The crates were empty.", nil
	}
	return "Inside: " + strings.Join(parts, ", ") + ".", nil
}
