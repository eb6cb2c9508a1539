package model

import "time"

// EventKind tags a global event's effect payload.
type EventKind string

const (
	EventWorkReward EventKind = "work_reward" // multiplies work/gather coin rewards
	EventSmeltSpeed EventKind = "smelt_speed" // divides smelting duration
	EventMarketTax  EventKind = "market_tax"  // overrides the market tax rate
)

// GlobalEvent is the process-wide singleton event document. At most one is
// active at a time.
type GlobalEvent struct {
	ID         string    `bson:"_id" json:"-"`
	Kind       EventKind `bson:"kind" json:"kind"`
	Name       string    `bson:"name" json:"name"`
	Multiplier float64   `bson:"multiplier" json:"multiplier"`
	StartedAt  time.Time `bson:"started_at" json:"started_at"`
	EndsAt     time.Time `bson:"ends_at" json:"ends_at"`
}

// Active reports whether the event is still running at the given instant.
func (e *GlobalEvent) Active(now time.Time) bool {
	return e != nil && now.Before(e.EndsAt)
}

// ClanWar is the singleton recurring war-period document.
type ClanWar struct {
	ID     string    `bson:"_id" json:"-"`
	EndsAt time.Time `bson:"ends_at" json:"ends_at"`
}

// Singleton document keys in the state collection.
const (
	GlobalEventDocID = "globalEvent"
	ClanWarDocID     = "clanWar"
)
