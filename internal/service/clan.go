package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	"forgebot/internal/content"
	"forgebot/internal/model"
	"forgebot/internal/repository"
)

const (
	clanCodeLength   = 5
	clanCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	maxClanName      = 24
)

// ClanCreate founds a clan: guarded fee debit, then the unique insert. A
// lost uniqueness race refunds the fee.
func (s *Service) ClanCreate(ctx context.Context, identity, name string) (Result, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxClanName {
		return fail("Clan names must be 1-%d characters.", maxClanName), nil
	}
	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}
	if acc.ClanID != "" {
		return fail("You are already in a clan. Leave it first."), nil
	}

	cost := s.cfg.ClanCreateCost
	if err := s.stores.Accounts.IncrementBalance(ctx, acc.ID, -cost, cost); err != nil {
		if errors.Is(err, repository.ErrGuardFailed) {
			return fail("Founding a clan costs %.0f coins.", cost), nil
		}
		return Result{}, err
	}

	clan := &model.Clan{
		Name:        name,
		OwnerID:     acc.ID,
		Members:     []string{acc.ID},
		Level:       1,
		Recruitment: model.RecruitmentClosed,
		CreatedAt:   s.now(),
	}
	var created bool
	for attempt := 0; attempt < 5; attempt++ {
		clan.Code = s.randomClanCode()
		err = s.stores.Clans.Create(ctx, clan)
		if err == nil {
			created = true
			break
		}
		if !errors.Is(err, repository.ErrConflict) {
			break
		}
		// A name conflict will never resolve by rerolling the code.
		if s.clanNameTaken(ctx, name) {
			err = repository.ErrConflict
			break
		}
	}
	if !created {
		if rbErr := s.stores.Accounts.IncrementBalance(ctx, acc.ID, cost, repository.NoMinimum); rbErr != nil {
			return Result{}, fmt.Errorf("clan create failed (%v) and fee refund failed: %w", err, rbErr)
		}
		if errors.Is(err, repository.ErrConflict) {
			return fail("A clan named **%s** already exists.", name), nil
		}
		return Result{}, err
	}

	clanID := clan.Code
	if err := s.stores.Accounts.SetFields(ctx, acc.ID, repository.AccountUpdate{ClanID: &clanID}); err != nil {
		return Result{}, err
	}
	return ok("Clan **%s** founded! Your clan code is `%s`.", name, clan.Code), nil
}

func (s *Service) randomClanCode() string {
	b := make([]byte, clanCodeLength)
	for i := range b {
		b[i] = clanCodeAlphabet[s.randInt(0, int64(len(clanCodeAlphabet)-1))]
	}
	return string(b)
}

func (s *Service) clanNameTaken(ctx context.Context, name string) bool {
	clans, err := s.stores.Clans.All(ctx)
	if err != nil {
		return false
	}
	lower := strings.ToLower(name)
	for _, c := range clans {
		if c.NameLower == lower {
			return true
		}
	}
	return false
}

// resolveClan accepts a clan code or a clan name.
func (s *Service) resolveClan(ctx context.Context, ref string) (*model.Clan, error) {
	code := strings.ToUpper(strings.TrimSpace(ref))
	c, err := s.stores.Clans.Get(ctx, code)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	clans, err := s.stores.Clans.All(ctx)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(strings.TrimSpace(ref))
	for i := range clans {
		if clans[i].NameLower == lower {
			return &clans[i], nil
		}
	}
	return nil, repository.ErrNotFound
}

// ClanJoin joins an open clan directly, or files an application to a closed
// one. The capped AddMember is the authority on the member limit.
func (s *Service) ClanJoin(ctx context.Context, identity, ref string) (Result, error) {
	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}
	if acc.ClanID != "" {
		return fail("You are already in a clan."), nil
	}
	if acc.ClanJoinCooldown != nil && s.now().Before(*acc.ClanJoinCooldown) {
		return fail("You recently left a clan. You can join another in %s.",
			fmtDuration(acc.ClanJoinCooldown.Sub(s.now()))), nil
	}

	clan, err := s.resolveClan(ctx, ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail("No clan matches **%s**.", ref), nil
		}
		return Result{}, err
	}

	if clan.Recruitment != model.RecruitmentOpen && !clan.HasInvite(acc.ID) {
		if clan.HasApplicant(acc.ID) {
			return fail("You have already applied to **%s**.", clan.Name), nil
		}
		if err := s.stores.Clans.PushList(ctx, clan.Code, repository.ListApplicants, acc.ID); err != nil {
			return Result{}, err
		}
		return ok("**%s** recruits by invitation. Your application was filed.", clan.Name), nil
	}

	return s.admitMember(ctx, acc.ID, clan)
}

// admitMember runs the atomic capped add and stamps the account's
// membership. A failed stamp backs the member out again.
func (s *Service) admitMember(ctx context.Context, accountID string, clan *model.Clan) (Result, error) {
	if err := s.stores.Clans.AddMember(ctx, clan.Code, accountID, s.cfg.ClanMaxMembers); err != nil {
		if errors.Is(err, repository.ErrGuardFailed) {
			return fail("**%s** is full (or you are already in it).", clan.Name), nil
		}
		return Result{}, err
	}
	clanID := clan.Code
	if err := s.stores.Accounts.SetFields(ctx, accountID, repository.AccountUpdate{ClanID: &clanID}); err != nil {
		if rbErr := s.stores.Clans.RemoveMember(ctx, clan.Code, accountID); rbErr != nil {
			return Result{}, fmt.Errorf("membership stamp failed (%v) and rollback failed: %w", err, rbErr)
		}
		return Result{}, err
	}
	return ok("Welcome to **%s**!", clan.Name), nil
}

// ClanInvite lets the owner invite a player by name.
func (s *Service) ClanInvite(ctx context.Context, identity, target string) (Result, error) {
	clan, res, err := s.ownedClan(ctx, identity)
	if clan == nil {
		return res, err
	}
	tacc, err := s.stores.Accounts.Get(ctx, target)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail("No account named **%s**.", target), nil
		}
		return Result{}, err
	}
	if clan.HasMember(tacc.ID) {
		return fail("**%s** is already a member.", tacc.Name), nil
	}
	if clan.HasInvite(tacc.ID) {
		return fail("**%s** is already invited.", tacc.Name), nil
	}
	if err := s.stores.Clans.PushList(ctx, clan.Code, repository.ListInvites, tacc.ID); err != nil {
		return Result{}, err
	}
	_ = s.notify.Notify(ctx, tacc.ID, fmt.Sprintf("You are invited to clan **%s** (`%s`).", clan.Name, clan.Code))
	return ok("Invited **%s** to **%s**.", tacc.Name, clan.Name), nil
}

// ClanAccept consumes a pending invite and joins.
func (s *Service) ClanAccept(ctx context.Context, identity, ref string) (Result, error) {
	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}
	if acc.ClanID != "" {
		return fail("You are already in a clan."), nil
	}
	clan, err := s.resolveClan(ctx, ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail("No clan matches **%s**.", ref), nil
		}
		return Result{}, err
	}
	if !clan.HasInvite(acc.ID) {
		return fail("You have no invite from **%s**.", clan.Name), nil
	}
	res, err := s.admitMember(ctx, acc.ID, clan)
	if err == nil && res.Success {
		if plErr := s.stores.Clans.PullList(ctx, clan.Code, repository.ListInvites, acc.ID); plErr != nil {
			log.Printf("[Service] Warning: failed to clear consumed invite for %s: %v", acc.ID, plErr)
		}
	}
	return res, err
}

// ClanDecline discards a pending invite.
func (s *Service) ClanDecline(ctx context.Context, identity, ref string) (Result, error) {
	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return Result{}, err
	}
	clan, err := s.resolveClan(ctx, ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail("No clan matches **%s**.", ref), nil
		}
		return Result{}, err
	}
	if err := s.stores.Clans.PullList(ctx, clan.Code, repository.ListInvites, acc.ID); err != nil {
		return Result{}, err
	}
	return ok("Declined the invite from **%s**.", clan.Name), nil
}

// ClanApprove lets the owner admit an applicant.
func (s *Service) ClanApprove(ctx context.Context, identity, target string) (Result, error) {
	clan, res, err := s.ownedClan(ctx, identity)
	if clan == nil {
		return res, err
	}
	tacc, err := s.stores.Accounts.Get(ctx, target)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail("No account named **%s**.", target), nil
		}
		return Result{}, err
	}
	if !clan.HasApplicant(tacc.ID) {
		return fail("**%s** has not applied.", tacc.Name), nil
	}
	if tacc.ClanID != "" {
		// Stale application; they joined elsewhere.
		_ = s.stores.Clans.PullList(ctx, clan.Code, repository.ListApplicants, tacc.ID)
		return fail("**%s** already joined another clan.", tacc.Name), nil
	}
	res, err = s.admitMember(ctx, tacc.ID, clan)
	if err == nil && res.Success {
		res = ok("**%s** is now a member of **%s**.", tacc.Name, clan.Name)
	}
	return res, err
}

// ClanReject discards an application.
func (s *Service) ClanReject(ctx context.Context, identity, target string) (Result, error) {
	clan, res, err := s.ownedClan(ctx, identity)
	if clan == nil {
		return res, err
	}
	id := model.CanonicalID(target)
	if err := s.stores.Clans.PullList(ctx, clan.Code, repository.ListApplicants, id); err != nil {
		return Result{}, err
	}
	return ok("Rejected the application from **%s**.", target), nil
}

// ClanLeave removes the caller from their clan and starts the rejoin
// cooldown. Owners must transfer or disband instead.
func (s *Service) ClanLeave(ctx context.Context, identity string) (Result, error) {
	acc, clan, res, err := s.memberClan(ctx, identity)
	if clan == nil {
		return res, err
	}
	if clan.OwnerID == acc.ID {
		return fail("Owners cannot leave. Disband the clan or transfer ownership first."), nil
	}
	if err := s.removeFromClan(ctx, acc.ID, clan.Code); err != nil {
		return Result{}, err
	}
	return ok("You left **%s**.", clan.Name), nil
}

// ClanKick lets the owner remove a member, who also gets the rejoin
// cooldown.
func (s *Service) ClanKick(ctx context.Context, identity, target string) (Result, error) {
	clan, res, err := s.ownedClan(ctx, identity)
	if clan == nil {
		return res, err
	}
	tacc, err := s.stores.Accounts.Get(ctx, target)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail("No account named **%s**.", target), nil
		}
		return Result{}, err
	}
	if tacc.ID == clan.OwnerID {
		return fail("You cannot kick yourself. Disband the clan instead."), nil
	}
	if !clan.HasMember(tacc.ID) {
		return fail("**%s** is not in your clan.", tacc.Name), nil
	}
	if err := s.removeFromClan(ctx, tacc.ID, clan.Code); err != nil {
		return Result{}, err
	}
	_ = s.notify.Notify(ctx, tacc.ID, fmt.Sprintf("You were removed from clan **%s**.", clan.Name))
	return ok("Kicked **%s** from **%s**.", tacc.Name, clan.Name), nil
}

// removeFromClan pulls the member and clears their membership stamp.
func (s *Service) removeFromClan(ctx context.Context, accountID, code string) error {
	if err := s.stores.Clans.RemoveMember(ctx, code, accountID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	empty := ""
	cooldownEnd := s.now().Add(s.cfg.ClanJoinCooldown)
	return s.stores.Accounts.SetFields(ctx, accountID, repository.AccountUpdate{
		ClanID:           &empty,
		ClanJoinCooldown: &cooldownEnd,
	})
}

// ClanTransfer hands ownership to another member.
func (s *Service) ClanTransfer(ctx context.Context, identity, target string) (Result, error) {
	clan, res, err := s.ownedClan(ctx, identity)
	if clan == nil {
		return res, err
	}
	tacc, err := s.stores.Accounts.Get(ctx, target)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail("No account named **%s**.", target), nil
		}
		return Result{}, err
	}
	if !clan.HasMember(tacc.ID) {
		return fail("**%s** is not in your clan.", tacc.Name), nil
	}
	if tacc.ID == clan.OwnerID {
		return fail("You already own this clan."), nil
	}
	owner := tacc.ID
	if err := s.stores.Clans.SetFields(ctx, clan.Code, repository.ClanUpdate{OwnerID: &owner}); err != nil {
		return Result{}, err
	}
	return ok("**%s** now owns **%s**.", tacc.Name, clan.Name), nil
}

// ClanDisband deletes the clan and clears every member's stamp. The clan
// document goes first so no one can join mid-teardown.
func (s *Service) ClanDisband(ctx context.Context, identity string) (Result, error) {
	clan, res, err := s.ownedClan(ctx, identity)
	if clan == nil {
		return res, err
	}
	if err := s.stores.Clans.Delete(ctx, clan.Code); err != nil {
		return Result{}, err
	}
	empty := ""
	for _, member := range clan.Members {
		if err := s.stores.Accounts.SetFields(ctx, member, repository.AccountUpdate{ClanID: &empty}); err != nil {
			log.Printf("[Service] Warning: failed to clear membership for %s after disband: %v", member, err)
		}
	}
	return ok("**%s** has been disbanded.", clan.Name), nil
}

// ClanRecruit toggles open/closed recruitment.
func (s *Service) ClanRecruit(ctx context.Context, identity, mode string) (Result, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode != model.RecruitmentOpen && mode != model.RecruitmentClosed {
		return fail("Recruitment is either open or closed."), nil
	}
	clan, res, err := s.ownedClan(ctx, identity)
	if clan == nil {
		return res, err
	}
	if err := s.stores.Clans.SetFields(ctx, clan.Code, repository.ClanUpdate{Recruitment: &mode}); err != nil {
		return Result{}, err
	}
	return ok("Recruitment for **%s** is now %s.", clan.Name, mode), nil
}

// ClanDonate moves coins from a member into the vault: guarded debit, vault
// credit, debit refunded if the vault write cannot land.
func (s *Service) ClanDonate(ctx context.Context, identity string, amount float64) (Result, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return fail("Amount must be a positive number."), nil
	}
	amount = math.Floor(amount*100) / 100
	acc, clan, res, err := s.memberClan(ctx, identity)
	if clan == nil {
		return res, err
	}
	if err := s.stores.Accounts.IncrementBalance(ctx, acc.ID, -amount, amount); err != nil {
		if errors.Is(err, repository.ErrGuardFailed) {
			return fail("You do not have %.2f coins.", amount), nil
		}
		return Result{}, err
	}
	if err := s.stores.Clans.IncrementVault(ctx, clan.Code, amount, repository.NoMinimum); err != nil {
		if rbErr := s.stores.Accounts.IncrementBalance(ctx, acc.ID, amount, repository.NoMinimum); rbErr != nil {
			return Result{}, fmt.Errorf("vault credit failed (%v) and refund failed: %w", err, rbErr)
		}
		return Result{}, err
	}
	return ok("Donated %.2f coins to **%s**'s vault.", amount, clan.Name), nil
}

// ClanUpgrade spends the vault on the next level. The guarded vault debit
// is the commit point; two racing upgrades cannot both drain it.
func (s *Service) ClanUpgrade(ctx context.Context, identity string) (Result, error) {
	clan, res, err := s.ownedClan(ctx, identity)
	if clan == nil {
		return res, err
	}
	next := clan.Level + 1
	cost, found := content.ClanUpgradeCosts[next]
	if !found {
		return fail("**%s** is already at the maximum level.", clan.Name), nil
	}
	if err := s.stores.Clans.IncrementVault(ctx, clan.Code, -cost, cost); err != nil {
		if errors.Is(err, repository.ErrGuardFailed) {
			return fail("Level %d costs %.0f coins; the vault holds %.2f.", next, cost, clan.Vault), nil
		}
		return Result{}, err
	}
	if err := s.stores.Clans.SetFields(ctx, clan.Code, repository.ClanUpdate{Level: &next}); err != nil {
		return Result{}, err
	}
	return ok("**%s** is now level %d!", clan.Name, next), nil
}

// ClanInfo renders a clan summary, the caller's own when no ref is given.
func (s *Service) ClanInfo(ctx context.Context, identity, ref string) (Result, error) {
	var clan *model.Clan
	var err error
	if strings.TrimSpace(ref) == "" {
		_, c, res, mErr := s.memberClan(ctx, identity)
		if c == nil {
			return res, mErr
		}
		clan = c
	} else {
		clan, err = s.resolveClan(ctx, ref)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fail("No clan matches **%s**.", ref), nil
			}
			return Result{}, err
		}
	}

	lines := []string{
		fmt.Sprintf("Code: `%s`  Level: %d  Members: %d/%d", clan.Code, clan.Level, len(clan.Members), s.cfg.ClanMaxMembers),
		fmt.Sprintf("Vault: %.2f coins  War points: %d", clan.Vault, clan.WarPoints),
		fmt.Sprintf("Recruitment: %s", clan.Recruitment),
	}
	if len(clan.Applicants) > 0 {
		lines = append(lines, fmt.Sprintf("Applicants: %s", strings.Join(clan.Applicants, ", ")))
	}
	return Result{Success: true, Message: fmt.Sprintf("**%s**", clan.Name), Lines: lines}, nil
}

// ClanRanking lists every clan by war points.
func (s *Service) ClanRanking(ctx context.Context) (Result, error) {
	clans, err := s.stores.Clans.All(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(clans) == 0 {
		return ok("No clans exist yet. Found one!"), nil
	}
	sort.Slice(clans, func(i, j int) bool { return clans[i].WarPoints > clans[j].WarPoints })
	lines := make([]string, 0, len(clans))
	for i, c := range clans {
		lines = append(lines, fmt.Sprintf("%d. **%s** (`%s`) — L%d, %d war points, %d members",
			i+1, c.Name, c.Code, c.Level, c.WarPoints, len(c.Members)))
	}
	return Result{Success: true, Message: "Clan ranking:", Lines: lines}, nil
}

// ClanWarStatus reports the current war period and standings.
func (s *Service) ClanWarStatus(ctx context.Context) (Result, error) {
	war, err := s.stores.State.GetWar(ctx)
	if err != nil {
		return Result{}, err
	}
	if war == nil {
		return ok("No clan war is running yet."), nil
	}
	res, err := s.ClanRanking(ctx)
	if err != nil {
		return Result{}, err
	}
	left := war.EndsAt.Sub(s.now())
	if left < 0 {
		left = 0
	}
	res.Message = fmt.Sprintf("Clan war ends in %s. Standings:", fmtDuration(left))
	return res, nil
}

// ownedClan loads the caller's clan and checks ownership. A nil clan in
// the return means the Result/error pair is the answer.
func (s *Service) ownedClan(ctx context.Context, identity string) (*model.Clan, Result, error) {
	acc, clan, res, err := s.memberClan(ctx, identity)
	if clan == nil {
		return nil, res, err
	}
	if clan.OwnerID != acc.ID {
		return nil, fail("Only the clan owner can do that."), nil
	}
	return clan, Result{}, nil
}

// memberClan loads the caller's account and clan.
func (s *Service) memberClan(ctx context.Context, identity string) (*model.Account, *model.Clan, Result, error) {
	acc, err := s.EnsureAccount(ctx, identity, model.KindGame)
	if err != nil {
		return nil, nil, Result{}, err
	}
	if acc.ClanID == "" {
		return acc, nil, fail("You are not in a clan."), nil
	}
	clan, err := s.stores.Clans.Get(ctx, acc.ClanID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Heal a stale stamp from a disbanded clan.
			empty := ""
			_ = s.stores.Accounts.SetFields(ctx, acc.ID, repository.AccountUpdate{ClanID: &empty})
			return acc, nil, fail("Your clan no longer exists."), nil
		}
		return nil, nil, Result{}, err
	}
	return acc, clan, Result{}, nil
}
