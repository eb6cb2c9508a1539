package model

import (
	"math"
	"strings"
	"time"
)

// AccountKind says which transport first created the account.
type AccountKind string

const (
	KindGame    AccountKind = "game"
	KindDiscord AccountKind = "discord"
)

// Trait is a permanent per-account modifier rolled at creation or reroll.
type Trait struct {
	Name  string `bson:"name" json:"name"`
	Level int    `bson:"level" json:"level"`
}

// EffectKind tags a buff effect payload.
type EffectKind string

const (
	EffectWorkPercent EffectKind = "work_percent" // fractional bonus on work rewards
	EffectCooldownCut EffectKind = "cooldown_cut" // fractional reduction of action cooldowns
	EffectGatherLuck  EffectKind = "gather_luck"  // fractional bonus on gather roll chance
)

// Effect is one typed buff effect.
type Effect struct {
	Kind  EffectKind `bson:"kind" json:"kind"`
	Value float64    `bson:"value" json:"value"`
}

// Buff is a temporary modifier with an expiry timestamp.
type Buff struct {
	ItemID    string    `bson:"item_id" json:"item_id"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	Effects   []Effect  `bson:"effects" json:"effects"`
}

// Expired reports whether the buff is past its expiry at the given instant.
func (b Buff) Expired(now time.Time) bool {
	return now.After(b.ExpiresAt)
}

// SmeltJob is the at-most-one in-flight smelting job on an account.
type SmeltJob struct {
	Result   string    `bson:"result" json:"result"`
	Quantity int64     `bson:"quantity" json:"quantity"`
	FinishAt time.Time `bson:"finish_at" json:"finish_at"`
}

// Account is a player's persistent economic record. The document key is the
// canonical lowercased identity; a linked Discord id resolves to the same
// document.
type Account struct {
	ID        string      `bson:"_id" json:"id"`
	Name      string      `bson:"name" json:"name"`
	Kind      AccountKind `bson:"kind" json:"kind"`
	DiscordID string      `bson:"discord_id,omitempty" json:"discord_id,omitempty"`

	Balance   float64          `bson:"balance" json:"balance"`
	Inventory map[string]int64 `bson:"inventory" json:"inventory"`

	LastWork   *time.Time `bson:"last_work,omitempty" json:"last_work,omitempty"`
	LastGather *time.Time `bson:"last_gather,omitempty" json:"last_gather,omitempty"`
	LastDaily  *time.Time `bson:"last_daily,omitempty" json:"last_daily,omitempty"`
	LastHourly *time.Time `bson:"last_hourly,omitempty" json:"last_hourly,omitempty"`
	LastSlots  *time.Time `bson:"last_slots,omitempty" json:"last_slots,omitempty"`

	DailyStreak  int `bson:"daily_streak" json:"daily_streak"`
	HourlyStreak int `bson:"hourly_streak" json:"hourly_streak"`

	Smelting    *SmeltJob `bson:"smelting,omitempty" json:"smelting,omitempty"`
	ActiveBuffs []Buff    `bson:"active_buffs,omitempty" json:"active_buffs,omitempty"`
	Traits      []Trait   `bson:"traits" json:"traits"`

	ClanID          string     `bson:"clan_id,omitempty" json:"clan_id,omitempty"`
	ClanJoinCooldown *time.Time `bson:"clan_join_cooldown,omitempty" json:"clan_join_cooldown,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// CanonicalID lowercases an identity string into document-key form.
func CanonicalID(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// BalanceFinite reports whether the stored balance is a usable number.
// A non-finite balance is a data-integrity error, never a spendable value.
func (a *Account) BalanceFinite() bool {
	return !math.IsNaN(a.Balance) && !math.IsInf(a.Balance, 0)
}

// ItemCount returns the owned quantity of an item; absence means zero.
func (a *Account) ItemCount(item string) int64 {
	if a.Inventory == nil {
		return 0
	}
	return a.Inventory[item]
}

// LiveBuffs returns the buffs that have not expired at the given instant.
func (a *Account) LiveBuffs(now time.Time) []Buff {
	out := make([]Buff, 0, len(a.ActiveBuffs))
	for _, b := range a.ActiveBuffs {
		if !b.Expired(now) {
			out = append(out, b)
		}
	}
	return out
}

// TraitLevel returns the level of the named trait, zero when absent.
func (a *Account) TraitLevel(name string) int {
	for _, t := range a.Traits {
		if t.Name == name {
			return t.Level
		}
	}
	return 0
}
