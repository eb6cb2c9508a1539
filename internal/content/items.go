package content

import (
	"time"

	"forgebot/internal/model"
)

// ItemKind classifies catalog items.
type ItemKind string

const (
	KindResource ItemKind = "resource"
	KindBar      ItemKind = "bar"
	KindFood     ItemKind = "food"
	KindTool     ItemKind = "tool"
)

// Item is one entry of the static item catalog. Tool fields are zero for
// non-tools; food fields are zero for non-food.
type Item struct {
	ID   string
	Name string
	Kind ItemKind

	// Tool modifiers, applied while the item is owned.
	WorkFlat     float64 // flat coins added to work rewards
	WorkPercent  float64 // fractional bonus on work rewards
	CooldownCut  float64 // fractional reduction of work/gather cooldowns
	GatherSlots  int     // extra distinct resource types per gather
	GatherDouble float64 // per-unit chance to double a gathered resource
	SmeltPower   int     // processing power contributed to smelting jobs

	// Food effect, applied on eat.
	BuffDuration time.Duration
	BuffEffects  []model.Effect
}

// Items is the full item catalog keyed by item id.
var Items = map[string]Item{
	"wood":     {ID: "wood", Name: "Wood", Kind: KindResource},
	"stone":    {ID: "stone", Name: "Stone", Kind: KindResource},
	"wheat":    {ID: "wheat", Name: "Wheat", Kind: KindResource},
	"coal":     {ID: "coal", Name: "Coal", Kind: KindResource},
	"iron_ore": {ID: "iron_ore", Name: "Iron Ore", Kind: KindResource},
	"gold_ore": {ID: "gold_ore", Name: "Gold Ore", Kind: KindResource},

	"iron_bar": {ID: "iron_bar", Name: "Iron Bar", Kind: KindBar},
	"gold_bar": {ID: "gold_bar", Name: "Gold Bar", Kind: KindBar},

	"bread": {
		ID: "bread", Name: "Bread", Kind: KindFood,
		BuffDuration: 30 * time.Minute,
		BuffEffects:  []model.Effect{{Kind: model.EffectWorkPercent, Value: 0.10}},
	},
	"stew": {
		ID: "stew", Name: "Hearty Stew", Kind: KindFood,
		BuffDuration: 30 * time.Minute,
		BuffEffects:  []model.Effect{{Kind: model.EffectCooldownCut, Value: 0.10}},
	},
	"golden_apple": {
		ID: "golden_apple", Name: "Golden Apple", Kind: KindFood,
		BuffDuration: time.Hour,
		BuffEffects: []model.Effect{
			{Kind: model.EffectGatherLuck, Value: 0.15},
			{Kind: model.EffectWorkPercent, Value: 0.05},
		},
	},

	"shovel":        {ID: "shovel", Name: "Reinforced Shovel", Kind: KindTool, WorkPercent: 0.05, CooldownCut: 0.05},
	"drill":         {ID: "drill", Name: "Power Drill", Kind: KindTool, WorkFlat: 10, WorkPercent: 0.10},
	"satchel":       {ID: "satchel", Name: "Gathering Satchel", Kind: KindTool, GatherSlots: 1},
	"magnet":        {ID: "magnet", Name: "Ore Magnet", Kind: KindTool, GatherDouble: 0.25},
	"furnace":       {ID: "furnace", Name: "Furnace", Kind: KindTool, SmeltPower: 1},
	"blast_furnace": {ID: "blast_furnace", Name: "Blast Furnace", Kind: KindTool, SmeltPower: 2},
}

// Lookup resolves an item id or display name, case-insensitively.
func Lookup(name string) (Item, bool) {
	id := model.CanonicalID(name)
	if it, ok := Items[id]; ok {
		return it, true
	}
	for _, it := range Items {
		if model.CanonicalID(it.Name) == id {
			return it, true
		}
	}
	return Item{}, false
}

// DisplayName returns the display name for an item id, falling back to the
// id itself for unknown items (old documents can hold retired items).
func DisplayName(id string) string {
	if it, ok := Items[id]; ok {
		return it.Name
	}
	return id
}

// GatherResource is one rollable resource type.
type GatherResource struct {
	Item   string
	Chance float64 // independent per-attempt roll
	Min    int64
	Max    int64
}

// GatherTable lists every resource a gather attempt may yield, rolled
// independently per type up to the distinct-type cap.
var GatherTable = []GatherResource{
	{Item: "wood", Chance: 0.60, Min: 1, Max: 3},
	{Item: "stone", Chance: 0.50, Min: 1, Max: 3},
	{Item: "wheat", Chance: 0.40, Min: 1, Max: 3},
	{Item: "coal", Chance: 0.45, Min: 1, Max: 2},
	{Item: "iron_ore", Chance: 0.35, Min: 1, Max: 2},
	{Item: "gold_ore", Chance: 0.15, Min: 1, Max: 1},
}

// Smeltable describes one ore -> bar conversion.
type Smeltable struct {
	Input       string
	Output      string
	CoalPerUnit int64
	TimePerUnit time.Duration
}

// Smeltables is keyed by input item id.
var Smeltables = map[string]Smeltable{
	"iron_ore": {Input: "iron_ore", Output: "iron_bar", CoalPerUnit: 1, TimePerUnit: 2 * time.Minute},
	"gold_ore": {Input: "gold_ore", Output: "gold_bar", CoalPerUnit: 2, TimePerUnit: 4 * time.Minute},
}
