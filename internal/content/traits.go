package content

import "forgebot/internal/model"

// Trait names referenced by the reward math.
const (
	TraitHaste   = "Haste"   // reduces work/gather cooldown per level
	TraitFortune = "Fortune" // percentage work bonus per level
	TraitTycoon  = "Tycoon"  // flat work bonus per level
	TraitForager = "Forager" // gather roll chance per level
	TraitGambler = "Gambler" // consolation work buff after gambling losses
)

// Per-level trait coefficients.
const (
	HasteCutPerLevel       = 0.05
	FortunePercentPerLevel = 0.05
	TycoonFlatPerLevel     = 2.0
	ForagerLuckPerLevel    = 0.03
	GamblerBuffPerLevel    = 0.10
)

// TraitNames is the rollable pool.
var TraitNames = []string{TraitHaste, TraitFortune, TraitTycoon, TraitForager, TraitGambler}

// TraitCount is the fixed size of an account's trait set.
const TraitCount = 2

// TraitMaxLevel bounds rolled trait levels.
const TraitMaxLevel = 3

// RollTraits draws a fresh trait set with distinct names. The float source
// is injected so callers can share one seeded generator.
func RollTraits(randFloat func() float64) []model.Trait {
	names := append([]string(nil), TraitNames...)
	out := make([]model.Trait, 0, TraitCount)
	for i := 0; i < TraitCount && len(names) > 0; i++ {
		idx := int(randFloat() * float64(len(names)))
		if idx >= len(names) {
			idx = len(names) - 1
		}
		level := 1 + int(randFloat()*float64(TraitMaxLevel))
		if level > TraitMaxLevel {
			level = TraitMaxLevel
		}
		out = append(out, model.Trait{Name: names[idx], Level: level})
		names = append(names[:idx], names[idx+1:]...)
	}
	return out
}
