package content

// ClanMaxLevel bounds vault-funded upgrades.
const ClanMaxLevel = 5

// ClanUpgradeCosts maps target level -> exact vault cost. Level 1 is the
// creation level and has no entry.
var ClanUpgradeCosts = map[int]float64{
	2: 500,
	3: 1500,
	4: 4000,
	5: 10000,
}

// ClanPerks are the passive bonuses a clan level grants all members.
type ClanPerks struct {
	WorkPercent    float64 // percentage work bonus
	CooldownCut    float64 // fractional cooldown reduction
	MomentumChance float64 // chance a work/gather cooldown is not consumed
	GatherFlat     int64   // flat bonus units on each gathered resource
	SlotsBetFactor float64 // multiplier on the base slots bet cap
}

// PerksForLevel returns the perk tier for a clan level. Levels below 1 and
// above the cap clamp to the nearest tier.
func PerksForLevel(level int) ClanPerks {
	if level < 1 {
		level = 1
	}
	if level > ClanMaxLevel {
		level = ClanMaxLevel
	}
	switch level {
	case 1:
		return ClanPerks{SlotsBetFactor: 1}
	case 2:
		return ClanPerks{WorkPercent: 0.05, SlotsBetFactor: 1.5}
	case 3:
		return ClanPerks{WorkPercent: 0.10, CooldownCut: 0.05, GatherFlat: 1, SlotsBetFactor: 2}
	case 4:
		return ClanPerks{WorkPercent: 0.15, CooldownCut: 0.08, MomentumChance: 0.10, GatherFlat: 1, SlotsBetFactor: 3}
	default:
		return ClanPerks{WorkPercent: 0.20, CooldownCut: 0.10, MomentumChance: 0.20, GatherFlat: 2, SlotsBetFactor: 4}
	}
}

// WarReward is the per-member item payout for one final war placement.
type WarReward struct {
	Item     string
	Quantity int64
}

// WarRewards maps final placement (1-based) to the reward every member of
// that clan receives. Only the top three places pay out.
var WarRewards = map[int]WarReward{
	1: {Item: "gold_bar", Quantity: 5},
	2: {Item: "gold_bar", Quantity: 2},
	3: {Item: "iron_bar", Quantity: 3},
}
