package content

// DropKind tags one crate drop variant.
type DropKind string

const (
	DropCoins DropKind = "coins"
	DropItem  DropKind = "item"
)

// Drop is one weighted crate outcome.
type Drop struct {
	Kind   DropKind
	Item   string // set for DropItem
	Min    int64
	Max    int64
	Weight int
}

// Crate is one purchasable lootbox type.
type Crate struct {
	ID    string
	Name  string
	Price float64
	Drops []Drop
}

// Crates is the lootbox catalog keyed by crate id.
var Crates = map[string]Crate{
	"wooden_crate": {
		ID: "wooden_crate", Name: "Wooden Crate", Price: 50,
		Drops: []Drop{
			{Kind: DropCoins, Min: 20, Max: 80, Weight: 5},
			{Kind: DropItem, Item: "wood", Min: 2, Max: 6, Weight: 4},
			{Kind: DropItem, Item: "coal", Min: 1, Max: 4, Weight: 3},
			{Kind: DropItem, Item: "bread", Min: 1, Max: 2, Weight: 2},
		},
	},
	"iron_crate": {
		ID: "iron_crate", Name: "Iron Crate", Price: 200,
		Drops: []Drop{
			{Kind: DropCoins, Min: 100, Max: 350, Weight: 5},
			{Kind: DropItem, Item: "iron_bar", Min: 1, Max: 3, Weight: 4},
			{Kind: DropItem, Item: "iron_ore", Min: 2, Max: 5, Weight: 3},
			{Kind: DropItem, Item: "stew", Min: 1, Max: 1, Weight: 1},
		},
	},
	"golden_crate": {
		ID: "golden_crate", Name: "Golden Crate", Price: 750,
		Drops: []Drop{
			{Kind: DropCoins, Min: 400, Max: 1500, Weight: 5},
			{Kind: DropItem, Item: "gold_bar", Min: 1, Max: 2, Weight: 3},
			{Kind: DropItem, Item: "golden_apple", Min: 1, Max: 1, Weight: 2},
			{Kind: DropItem, Item: "magnet", Min: 1, Max: 1, Weight: 1},
		},
	},
}

// Roll draws one drop by weight using the injected float source.
func (c Crate) Roll(randFloat func() float64) Drop {
	total := 0
	for _, d := range c.Drops {
		total += d.Weight
	}
	if total <= 0 {
		return Drop{}
	}
	pick := int(randFloat() * float64(total))
	for _, d := range c.Drops {
		pick -= d.Weight
		if pick < 0 {
			return d
		}
	}
	return c.Drops[len(c.Drops)-1]
}

// CrateDisplayName returns the display name for a crate id, falling back to
// the id itself.
func CrateDisplayName(id string) string {
	if c, ok := Crates[id]; ok {
		return c.Name
	}
	return id
}

// CrateIDs returns the catalog ids in a stable order.
func CrateIDs() []string {
	return []string{"wooden_crate", "iron_crate", "golden_crate"}
}

// LookupCrate resolves a crate id or display name, case-insensitively.
func LookupCrate(name string) (Crate, bool) {
	for _, id := range CrateIDs() {
		c := Crates[id]
		if equalFold(id, name) || equalFold(c.Name, name) {
			return c, true
		}
	}
	return Crate{}, false
}
