package model

import "time"

// Verification is a short-lived code linking a Discord identity to an
// in-game name. Single-use: it is deleted when redeemed.
type Verification struct {
	Code      string    `json:"code"`
	DiscordID string    `json:"discord_id"`
	GameName  string    `json:"game_name"`
	CreatedAt time.Time `json:"created_at"`
}
