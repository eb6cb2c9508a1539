package content

import "sort"

// Recipe is one craftable output and its ingredient costs.
type Recipe struct {
	Output      string
	Ingredients map[string]int64
}

// Ingredient is one recipe entry in list form.
type Ingredient struct {
	Item     string
	Quantity int64
}

// IngredientList returns the ingredients sorted by item id so multi-step
// consumption always debits in the same order.
func (r Recipe) IngredientList() []Ingredient {
	out := make([]Ingredient, 0, len(r.Ingredients))
	for item, qty := range r.Ingredients {
		out = append(out, Ingredient{Item: item, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out
}

// Recipes is keyed by output item id.
var Recipes = map[string]Recipe{
	"bread":         {Output: "bread", Ingredients: map[string]int64{"wheat": 3}},
	"stew":          {Output: "stew", Ingredients: map[string]int64{"wheat": 2, "coal": 1}},
	"shovel":        {Output: "shovel", Ingredients: map[string]int64{"wood": 3, "iron_bar": 2}},
	"drill":         {Output: "drill", Ingredients: map[string]int64{"iron_bar": 5, "gold_bar": 2}},
	"satchel":       {Output: "satchel", Ingredients: map[string]int64{"wood": 4, "stone": 2}},
	"magnet":        {Output: "magnet", Ingredients: map[string]int64{"iron_bar": 3, "gold_bar": 1}},
	"furnace":       {Output: "furnace", Ingredients: map[string]int64{"stone": 8, "coal": 2}},
	"blast_furnace": {Output: "blast_furnace", Ingredients: map[string]int64{"furnace": 1, "iron_bar": 4}},
}
