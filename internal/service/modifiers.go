package service

import (
	"time"

	"forgebot/internal/content"
	"forgebot/internal/model"
)

type clanPerks = content.ClanPerks

func zeroPerks() clanPerks { return content.PerksForLevel(1) }

func perksOf(level int) clanPerks { return content.PerksForLevel(level) }

// rewardMods aggregates every source that bends a work reward or a
// work/gather cooldown: traits, owned tools, live food buffs, clan perks.
type rewardMods struct {
	flat     float64   // added to the base roll before percentages
	percent  float64   // summed fractional bonus
	cutFacts []float64 // per-source (1 - cut) cooldown factors
	luck     float64   // added to gather roll chances
	slots    int       // extra distinct resource types per gather
	double   float64   // per-unit chance to double a gathered resource
}

// collectMods walks an account's live bonus sources at a point in time.
// A tool contributes once no matter how many copies are held.
func collectMods(acc *model.Account, perks clanPerks, now time.Time) rewardMods {
	m := rewardMods{}

	m.flat += content.TycoonFlatPerLevel * float64(acc.TraitLevel(content.TraitTycoon))
	m.percent += content.FortunePercentPerLevel * float64(acc.TraitLevel(content.TraitFortune))
	m.luck += content.ForagerLuckPerLevel * float64(acc.TraitLevel(content.TraitForager))
	if lvl := acc.TraitLevel(content.TraitHaste); lvl > 0 {
		m.cutFacts = append(m.cutFacts, 1-content.HasteCutPerLevel*float64(lvl))
	}

	for id, count := range acc.Inventory {
		if count <= 0 {
			continue
		}
		it, found := content.Items[id]
		if !found || it.Kind != content.KindTool {
			continue
		}
		m.flat += it.WorkFlat
		m.percent += it.WorkPercent
		m.slots += it.GatherSlots
		if it.GatherDouble > m.double {
			m.double = it.GatherDouble
		}
		if it.CooldownCut > 0 {
			m.cutFacts = append(m.cutFacts, 1-it.CooldownCut)
		}
	}

	for _, b := range acc.LiveBuffs(now) {
		for _, e := range b.Effects {
			switch e.Kind {
			case model.EffectWorkPercent:
				m.percent += e.Value
			case model.EffectCooldownCut:
				m.cutFacts = append(m.cutFacts, 1-e.Value)
			case model.EffectGatherLuck:
				m.luck += e.Value
			}
		}
	}

	m.percent += perks.WorkPercent
	if perks.CooldownCut > 0 {
		m.cutFacts = append(m.cutFacts, 1-perks.CooldownCut)
	}

	return m
}

// cooldown applies every reduction factor multiplicatively and floors the
// result so stacked sources can never trivialize the wait.
func (m rewardMods) cooldown(base, floor time.Duration) time.Duration {
	d := float64(base)
	for _, f := range m.cutFacts {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		d *= f
	}
	out := time.Duration(d)
	if out < floor {
		out = floor
	}
	return out
}

// apply turns a base roll into the final reward. Percentages are summed
// into one factor; negative totals clamp to zero rather than charging the
// player for working.
func (m rewardMods) apply(base, eventMult float64) float64 {
	v := base + m.flat
	pct := m.percent
	if pct < -1 {
		pct = -1
	}
	v *= 1 + pct
	if eventMult > 0 {
		v *= eventMult
	}
	if v < 0 {
		v = 0
	}
	return v
}
