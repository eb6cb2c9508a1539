package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"forgebot/internal/cache"
	"forgebot/internal/content"
	"forgebot/internal/model"
	"forgebot/internal/repository"
)

const (
	verifyKeyPrefix    = "verify:"
	verifyCodeLength   = 6
	verifyCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Link starts account linking from the Discord side: a short-lived
// single-use code the player must repeat from inside the game.
func (s *Service) Link(ctx context.Context, discordIdentity, gameName string) (Result, error) {
	gameName = strings.TrimSpace(gameName)
	if gameName == "" || len(gameName) > maxNameLength {
		return fail("That does not look like an in-game name."), nil
	}
	discordID := model.CanonicalID(discordIdentity)

	v := model.Verification{
		Code:      s.randomVerifyCode(),
		DiscordID: discordID,
		GameName:  gameName,
		CreatedAt: s.now(),
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return Result{}, err
	}
	if err := s.cache.Set(ctx, verifyKeyPrefix+v.Code, payload, s.cfg.VerificationTTL); err != nil {
		return Result{}, err
	}
	return ok("Say `verify %s` in game as **%s** within %s to link your accounts.",
		v.Code, gameName, fmtDuration(s.cfg.VerificationTTL)), nil
}

// Verify redeems a linking code from the game side and merges the two
// records. Deleting the code first makes it single-use even under races.
func (s *Service) Verify(ctx context.Context, gameIdentity, code string) (Result, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	payload, err := s.cache.Get(ctx, verifyKeyPrefix+code)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return fail("That code is unknown or expired."), nil
		}
		return Result{}, err
	}
	var v model.Verification
	if err := json.Unmarshal(payload, &v); err != nil {
		return Result{}, fmt.Errorf("corrupt verification payload: %w", err)
	}
	if model.CanonicalID(gameIdentity) != model.CanonicalID(v.GameName) {
		return fail("That code was issued for **%s**.", v.GameName), nil
	}
	if err := s.cache.Delete(ctx, verifyKeyPrefix+code); err != nil {
		log.Printf("[Service] Warning: failed to burn verification code %s: %v", code, err)
	}
	return s.mergeIdentities(ctx, v.DiscordID, v.GameName)
}

func (s *Service) randomVerifyCode() string {
	b := make([]byte, verifyCodeLength)
	for i := range b {
		b[i] = verifyCodeAlphabet[s.randInt(0, int64(len(verifyCodeAlphabet)-1))]
	}
	return string(b)
}

// mergeIdentities folds the Discord-side record into the game-side one.
// The game name becomes the canonical document; the commit is the single
// all-or-nothing replace-and-delete.
func (s *Service) mergeIdentities(ctx context.Context, discordID, gameName string) (Result, error) {
	gameID := model.CanonicalID(gameName)

	gameAcc, gameErr := s.stores.Accounts.Get(ctx, gameID)
	if gameErr != nil && !errors.Is(gameErr, repository.ErrNotFound) {
		return Result{}, gameErr
	}
	discordAcc, discErr := s.stores.Accounts.Get(ctx, discordID)
	if discErr != nil && !errors.Is(discErr, repository.ErrNotFound) {
		return Result{}, discErr
	}

	switch {
	case gameAcc == nil && discordAcc == nil:
		acc := &model.Account{
			ID:        gameID,
			Name:      strings.TrimSpace(gameName),
			Kind:      model.KindGame,
			DiscordID: discordID,
			Balance:   s.cfg.StartingBalance,
			Inventory: map[string]int64{},
			Traits:    content.RollTraits(s.randFloat),
			CreatedAt: s.now(),
		}
		if err := s.stores.Accounts.Create(ctx, acc); err != nil {
			return Result{}, err
		}
		return ok("Linked! A fresh account **%s** was created for you.", acc.Name), nil

	case discordAcc == nil:
		if gameAcc.DiscordID == discordID {
			return ok("**%s** is already linked to this Discord account.", gameAcc.Name), nil
		}
		if gameAcc.DiscordID != "" {
			return fail("**%s** is already linked to a different Discord account.", gameAcc.Name), nil
		}
		did := discordID
		if err := s.stores.Accounts.SetFields(ctx, gameAcc.ID, repository.AccountUpdate{DiscordID: &did}); err != nil {
			return Result{}, err
		}
		return ok("Linked **%s** to your Discord account.", gameAcc.Name), nil

	case gameAcc == nil:
		// Rekey the Discord-born record under the game name.
		merged := *discordAcc
		merged.ID = gameID
		merged.Name = strings.TrimSpace(gameName)
		merged.Kind = model.KindGame
		merged.DiscordID = discordID
		if err := s.stores.Accounts.CommitMerge(ctx, &merged, discordAcc.ID); err != nil {
			return Result{}, err
		}
		s.repairClanMembership(ctx, discordAcc.ClanID, discordAcc.ID, merged.ID)
		return ok("Linked! Your progress now lives under **%s**.", merged.Name), nil

	default:
		if gameAcc.ID == discordAcc.ID {
			return ok("**%s** is already linked.", gameAcc.Name), nil
		}
		if gameAcc.DiscordID != "" && gameAcc.DiscordID != discordID {
			return fail("**%s** is already linked to a different Discord account.", gameAcc.Name), nil
		}
		if !gameAcc.BalanceFinite() || !discordAcc.BalanceFinite() {
			return Result{}, fmt.Errorf("refusing to merge %s and %s: non-finite balance", gameAcc.ID, discordAcc.ID)
		}
		if gameAcc.Smelting != nil && discordAcc.Smelting != nil {
			return fail("Both accounts have a furnace running. Let one finish first."), nil
		}

		merged := combineAccounts(gameAcc, discordAcc)
		merged.DiscordID = discordID
		if err := s.stores.Accounts.CommitMerge(ctx, merged, discordAcc.ID); err != nil {
			return Result{}, err
		}
		if discordAcc.ClanID != "" && discordAcc.ClanID != merged.ClanID {
			// The absorbed id can no longer sit on a member list.
			if err := s.stores.Clans.RemoveMember(ctx, discordAcc.ClanID, discordAcc.ID); err != nil {
				log.Printf("[Service] Warning: failed to drop absorbed member %s from clan %s: %v",
					discordAcc.ID, discordAcc.ClanID, err)
			}
		}
		s.repairClanMembership(ctx, merged.ClanID, discordAcc.ID, merged.ID)
		return ok("Accounts merged into **%s**: %.2f coins and your combined inventory.",
			merged.Name, merged.Balance), nil
	}
}

// repairClanMembership swaps an absorbed member id for the surviving one on
// the clan's member list. Best effort.
func (s *Service) repairClanMembership(ctx context.Context, clanCode, oldID, newID string) {
	if clanCode == "" {
		return
	}
	clan, err := s.stores.Clans.Get(ctx, clanCode)
	if err != nil || !clan.HasMember(oldID) {
		return
	}
	if err := s.stores.Clans.RemoveMember(ctx, clanCode, oldID); err != nil {
		log.Printf("[Service] Warning: failed to remove merged member %s from clan %s: %v", oldID, clanCode, err)
		return
	}
	if !clan.HasMember(newID) {
		if err := s.stores.Clans.AddMember(ctx, clanCode, newID, s.cfg.ClanMaxMembers); err != nil {
			log.Printf("[Service] Warning: failed to re-add merged member %s to clan %s: %v", newID, clanCode, err)
		}
	}
	if clan.OwnerID == oldID {
		owner := newID
		if err := s.stores.Clans.SetFields(ctx, clanCode, repository.ClanUpdate{OwnerID: &owner}); err != nil {
			log.Printf("[Service] Warning: failed to transfer ownership of %s after merge: %v", clanCode, err)
		}
	}
}

// combineAccounts folds the absorbed record into the surviving one.
// Balances and inventories add; timestamps and streaks keep the stricter
// (later / higher) value; the survivor's traits win.
func combineAccounts(primary, secondary *model.Account) *model.Account {
	merged := *primary
	merged.Balance += secondary.Balance

	inv := make(map[string]int64, len(primary.Inventory)+len(secondary.Inventory))
	for item, qty := range primary.Inventory {
		inv[item] += qty
	}
	for item, qty := range secondary.Inventory {
		inv[item] += qty
	}
	merged.Inventory = inv

	merged.LastWork = laterTime(primary.LastWork, secondary.LastWork)
	merged.LastGather = laterTime(primary.LastGather, secondary.LastGather)
	merged.LastDaily = laterTime(primary.LastDaily, secondary.LastDaily)
	merged.LastHourly = laterTime(primary.LastHourly, secondary.LastHourly)
	merged.LastSlots = laterTime(primary.LastSlots, secondary.LastSlots)
	merged.ClanJoinCooldown = laterTime(primary.ClanJoinCooldown, secondary.ClanJoinCooldown)

	if secondary.DailyStreak > merged.DailyStreak {
		merged.DailyStreak = secondary.DailyStreak
	}
	if secondary.HourlyStreak > merged.HourlyStreak {
		merged.HourlyStreak = secondary.HourlyStreak
	}
	if merged.Smelting == nil {
		merged.Smelting = secondary.Smelting
	}
	merged.ActiveBuffs = append(append([]model.Buff{}, primary.ActiveBuffs...), secondary.ActiveBuffs...)
	if merged.ClanID == "" {
		merged.ClanID = secondary.ClanID
	}
	if primary.CreatedAt.After(secondary.CreatedAt) {
		merged.CreatedAt = secondary.CreatedAt
	}
	return &merged
}

func laterTime(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil || a.After(*b) {
		return a
	}
	return b
}
