package model

import "time"

// Recruitment states for a clan.
const (
	RecruitmentOpen   = "open"
	RecruitmentClosed = "closed"
)

// Clan is a player group with a shared vault. The document key is a 5-char
// code; the name is additionally unique case-insensitively.
type Clan struct {
	Code        string    `bson:"_id" json:"code"`
	Name        string    `bson:"name" json:"name"`
	NameLower   string    `bson:"name_lower" json:"-"`
	OwnerID     string    `bson:"owner_id" json:"owner_id"`
	Members     []string  `bson:"members" json:"members"`
	Level       int       `bson:"level" json:"level"`
	Vault       float64   `bson:"vault" json:"vault"`
	WarPoints   int64     `bson:"war_points" json:"war_points"`
	Recruitment string    `bson:"recruitment" json:"recruitment"`
	Applicants  []string  `bson:"applicants,omitempty" json:"applicants,omitempty"`
	Invites     []string  `bson:"invites,omitempty" json:"invites,omitempty"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

// HasMember reports whether the account id is in the member list.
func (c *Clan) HasMember(id string) bool {
	for _, m := range c.Members {
		if m == id {
			return true
		}
	}
	return false
}

// HasInvite reports whether the account id holds a pending invite.
func (c *Clan) HasInvite(id string) bool {
	for _, m := range c.Invites {
		if m == id {
			return true
		}
	}
	return false
}

// HasApplicant reports whether the account id has applied to join.
func (c *Clan) HasApplicant(id string) bool {
	for _, m := range c.Applicants {
		if m == id {
			return true
		}
	}
	return false
}
