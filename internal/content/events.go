package content

import (
	"strings"
	"time"

	"forgebot/internal/model"
)

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// EventSpec is one entry of the weighted global-event table.
type EventSpec struct {
	Kind       model.EventKind
	Name       string
	Multiplier float64
	Duration   time.Duration
	Weight     int
}

// EventTable is the weighted pool the event ticker draws from. Multiplier
// semantics depend on the kind: work_reward multiplies coin rewards,
// smelt_speed divides job duration, market_tax replaces the tax rate.
var EventTable = []EventSpec{
	{Kind: model.EventWorkReward, Name: "Gold Rush", Multiplier: 2.0, Duration: time.Hour, Weight: 3},
	{Kind: model.EventSmeltSpeed, Name: "Forge Frenzy", Multiplier: 2.0, Duration: time.Hour, Weight: 2},
	{Kind: model.EventMarketTax, Name: "Tax Holiday", Multiplier: 0.0, Duration: 30 * time.Minute, Weight: 1},
	{Kind: model.EventMarketTax, Name: "Market Crunch", Multiplier: 0.25, Duration: 30 * time.Minute, Weight: 1},
}

// PickEvent draws one spec from the weighted table.
func PickEvent(randFloat func() float64) EventSpec {
	total := 0
	for _, e := range EventTable {
		total += e.Weight
	}
	roll := int(randFloat() * float64(total))
	for _, e := range EventTable {
		roll -= e.Weight
		if roll < 0 {
			return e
		}
	}
	return EventTable[len(EventTable)-1]
}

// VendorEntry is one item the vendor restock ticker may list, with the
// fallback price range used when no player listings provide a signal.
type VendorEntry struct {
	Item     string
	Quantity int64
	MinPrice float64
	MaxPrice float64
}

// VendorCatalog is the fixed pool of vendor-listable items.
var VendorCatalog = []VendorEntry{
	{Item: "wood", Quantity: 5, MinPrice: 2, MaxPrice: 6},
	{Item: "stone", Quantity: 5, MinPrice: 2, MaxPrice: 6},
	{Item: "coal", Quantity: 4, MinPrice: 4, MaxPrice: 10},
	{Item: "iron_bar", Quantity: 2, MinPrice: 15, MaxPrice: 40},
	{Item: "bread", Quantity: 2, MinPrice: 8, MaxPrice: 20},
}
