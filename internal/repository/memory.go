package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"forgebot/internal/content"
	"forgebot/internal/model"
)

// NewMemoryStores returns a store bundle backed by process memory. It mirrors
// the MongoDB backend's guard semantics exactly, which makes it both the
// no-database development mode and the concurrency test fixture.
func NewMemoryStores(roll func() float64) Stores {
	return Stores{
		Accounts: &memAccountStore{accounts: map[string]*model.Account{}, roll: roll},
		Market:   &memListingStore{listings: map[int64]model.Listing{}},
		Crates:   &memListingStore{listings: map[int64]model.Listing{}},
		Clans:    &memClanStore{clans: map[string]*model.Clan{}},
		State:    &memStateStore{},
	}
}

type memAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
	roll     func() float64
}

func cloneAccount(a *model.Account) *model.Account {
	c := *a
	c.Inventory = make(map[string]int64, len(a.Inventory))
	for k, v := range a.Inventory {
		c.Inventory[k] = v
	}
	c.ActiveBuffs = append([]model.Buff(nil), a.ActiveBuffs...)
	c.Traits = append([]model.Trait(nil), a.Traits...)
	if a.Smelting != nil {
		j := *a.Smelting
		c.Smelting = &j
	}
	return &c
}

func (s *memAccountStore) locate(identity string) *model.Account {
	id := model.CanonicalID(identity)
	if acc, ok := s.accounts[id]; ok {
		return acc
	}
	for _, acc := range s.accounts {
		if acc.DiscordID != "" && acc.DiscordID == identity {
			return acc
		}
	}
	return nil
}

func (s *memAccountStore) Get(ctx context.Context, identity string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.locate(identity)
	if acc == nil {
		return nil, ErrNotFound
	}
	if acc.Inventory == nil {
		acc.Inventory = map[string]int64{}
	}
	if len(acc.Traits) == 0 {
		acc.Traits = content.RollTraits(s.roll)
	}
	return cloneAccount(acc), nil
}

func (s *memAccountStore) Create(ctx context.Context, acc *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := model.CanonicalID(acc.ID)
	if _, ok := s.accounts[id]; ok {
		return ErrConflict
	}
	c := cloneAccount(acc)
	c.ID = id
	if c.Inventory == nil {
		c.Inventory = map[string]int64{}
	}
	s.accounts[id] = c
	return nil
}

func (s *memAccountStore) SetFields(ctx context.Context, id string, u AccountUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[model.CanonicalID(id)]
	if !ok {
		return ErrNotFound
	}
	if u.Name != nil {
		acc.Name = *u.Name
	}
	if u.DiscordID != nil {
		acc.DiscordID = *u.DiscordID
	}
	if u.LastWork != nil {
		t := *u.LastWork
		acc.LastWork = &t
	}
	if u.LastGather != nil {
		t := *u.LastGather
		acc.LastGather = &t
	}
	if u.LastDaily != nil {
		t := *u.LastDaily
		acc.LastDaily = &t
	}
	if u.LastHourly != nil {
		t := *u.LastHourly
		acc.LastHourly = &t
	}
	if u.LastSlots != nil {
		t := *u.LastSlots
		acc.LastSlots = &t
	}
	if u.DailyStreak != nil {
		acc.DailyStreak = *u.DailyStreak
	}
	if u.HourlyStreak != nil {
		acc.HourlyStreak = *u.HourlyStreak
	}
	if u.Buffs != nil {
		acc.ActiveBuffs = append([]model.Buff(nil), (*u.Buffs)...)
	}
	if u.Traits != nil {
		acc.Traits = append([]model.Trait(nil), (*u.Traits)...)
	}
	if u.ClanID != nil {
		acc.ClanID = *u.ClanID
	}
	if u.ClanJoinCooldown != nil {
		t := *u.ClanJoinCooldown
		acc.ClanJoinCooldown = &t
	}
	return nil
}

func (s *memAccountStore) IncrementBalance(ctx context.Context, id string, delta, min float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[model.CanonicalID(id)]
	if !ok {
		return ErrGuardFailed
	}
	// Written as !(>=) so a NaN balance fails the guard, matching $gte.
	if min >= 0 && !(acc.Balance >= min) {
		return ErrGuardFailed
	}
	acc.Balance += delta
	return nil
}

func (s *memAccountStore) IncrementItem(ctx context.Context, id, item string, delta, min int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[model.CanonicalID(id)]
	if !ok {
		return ErrGuardFailed
	}
	have := acc.Inventory[item]
	if min > 0 && have < min {
		return ErrGuardFailed
	}
	if min == 0 && delta < 0 && have < -delta {
		return ErrGuardFailed
	}
	next := have + delta
	if next == 0 {
		delete(acc.Inventory, item)
	} else {
		acc.Inventory[item] = next
	}
	return nil
}

func (s *memAccountStore) StartSmelt(ctx context.Context, id, input string, inputQty, coalCost int64, job model.SmeltJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[model.CanonicalID(id)]
	if !ok {
		return ErrGuardFailed
	}
	if acc.Smelting != nil || acc.Inventory[input] < inputQty || acc.Inventory["coal"] < coalCost {
		return ErrGuardFailed
	}
	acc.Inventory[input] -= inputQty
	acc.Inventory["coal"] -= coalCost
	j := job
	acc.Smelting = &j
	return nil
}

func (s *memAccountStore) ClearSmelt(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[model.CanonicalID(id)]
	if !ok {
		return ErrNotFound
	}
	if acc.Smelting == nil {
		return ErrGuardFailed
	}
	acc.Smelting = nil
	return nil
}

func (s *memAccountStore) FinishedSmelts(ctx context.Context, now time.Time) ([]*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Account
	for _, acc := range s.accounts {
		if acc.Smelting != nil && !acc.Smelting.FinishAt.After(now) {
			out = append(out, cloneAccount(acc))
		}
	}
	return out, nil
}

func (s *memAccountStore) CommitMerge(ctx context.Context, merged *model.Account, absorbedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[merged.ID] = cloneAccount(merged)
	delete(s.accounts, model.CanonicalID(absorbedID))
	return nil
}

func (s *memAccountStore) Top(ctx context.Context, n int) ([]*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		out = append(out, cloneAccount(acc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Balance > out[j].Balance })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *memAccountStore) All(ctx context.Context) ([]*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		out = append(out, cloneAccount(acc))
	}
	return out, nil
}

func (s *memAccountStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cid := model.CanonicalID(id)
	if _, ok := s.accounts[cid]; !ok {
		return ErrNotFound
	}
	delete(s.accounts, cid)
	return nil
}

type memListingStore struct {
	mu       sync.Mutex
	listings map[int64]model.Listing
}

func (s *memListingStore) NextID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.listings))
	for id := range s.listings {
		ids = append(ids, id)
	}
	return lowestFreeID(ids), nil
}

func (s *memListingStore) Insert(ctx context.Context, l model.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[l.ID]; ok {
		return ErrDuplicateListingID
	}
	s.listings[l.ID] = l
	return nil
}

func (s *memListingStore) Purchase(ctx context.Context, id int64) (*model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.listings, id)
	return &l, nil
}

func (s *memListingStore) Remove(ctx context.Context, id int64, seller string) (*model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok || l.Seller != seller {
		return nil, ErrNotFound
	}
	delete(s.listings, id)
	return &l, nil
}

func (s *memListingStore) Get(ctx context.Context, id int64) (*model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (s *memListingStore) filtered(keep func(model.Listing) bool) []model.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Listing
	for _, l := range s.listings {
		if keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memListingStore) All(ctx context.Context) ([]model.Listing, error) {
	return s.filtered(func(model.Listing) bool { return true }), nil
}

func (s *memListingStore) BySeller(ctx context.Context, seller string) ([]model.Listing, error) {
	return s.filtered(func(l model.Listing) bool { return l.Seller == seller }), nil
}

func (s *memListingStore) ByItem(ctx context.Context, item string) ([]model.Listing, error) {
	return s.filtered(func(l model.Listing) bool { return l.Item == item }), nil
}

type memClanStore struct {
	mu    sync.Mutex
	clans map[string]*model.Clan
}

func cloneClan(c *model.Clan) *model.Clan {
	cp := *c
	cp.Members = append([]string(nil), c.Members...)
	cp.Applicants = append([]string(nil), c.Applicants...)
	cp.Invites = append([]string(nil), c.Invites...)
	return &cp
}

func (s *memClanStore) Create(ctx context.Context, c *model.Clan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clans[c.Code]; ok {
		return ErrConflict
	}
	lower := model.CanonicalID(c.Name)
	for _, existing := range s.clans {
		if existing.NameLower == lower {
			return ErrConflict
		}
	}
	cp := cloneClan(c)
	cp.NameLower = lower
	s.clans[c.Code] = cp
	return nil
}

func (s *memClanStore) Get(ctx context.Context, code string) (*model.Clan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clans[code]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneClan(c), nil
}

func (s *memClanStore) All(ctx context.Context) ([]model.Clan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Clan, 0, len(s.clans))
	for _, c := range s.clans {
		out = append(out, *cloneClan(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *memClanStore) SetFields(ctx context.Context, code string, u ClanUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clans[code]
	if !ok {
		return ErrNotFound
	}
	if u.OwnerID != nil {
		c.OwnerID = *u.OwnerID
	}
	if u.Level != nil {
		c.Level = *u.Level
	}
	if u.Recruitment != nil {
		c.Recruitment = *u.Recruitment
	}
	return nil
}

func remove(list []string, member string) []string {
	out := list[:0]
	for _, m := range list {
		if m != member {
			out = append(out, m)
		}
	}
	return out
}

func (s *memClanStore) AddMember(ctx context.Context, code, member string, maxMembers int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clans[code]
	if !ok {
		return ErrGuardFailed
	}
	if c.HasMember(member) || len(c.Members) >= maxMembers {
		return ErrGuardFailed
	}
	c.Members = append(c.Members, member)
	c.Applicants = remove(c.Applicants, member)
	c.Invites = remove(c.Invites, member)
	return nil
}

func (s *memClanStore) RemoveMember(ctx context.Context, code, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clans[code]
	if !ok {
		return ErrNotFound
	}
	c.Members = remove(c.Members, member)
	return nil
}

func (s *memClanStore) PushList(ctx context.Context, code string, list ClanList, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clans[code]
	if !ok {
		return ErrNotFound
	}
	target := &c.Applicants
	if list == ListInvites {
		target = &c.Invites
	}
	for _, m := range *target {
		if m == member {
			return nil
		}
	}
	*target = append(*target, member)
	return nil
}

func (s *memClanStore) PullList(ctx context.Context, code string, list ClanList, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clans[code]
	if !ok {
		return ErrNotFound
	}
	if list == ListInvites {
		c.Invites = remove(c.Invites, member)
	} else {
		c.Applicants = remove(c.Applicants, member)
	}
	return nil
}

func (s *memClanStore) IncrementVault(ctx context.Context, code string, delta, min float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clans[code]
	if !ok {
		return ErrGuardFailed
	}
	// !(>=) keeps a NaN vault from transacting, matching $gte.
	if min >= 0 && !(c.Vault >= min) {
		return ErrGuardFailed
	}
	c.Vault += delta
	return nil
}

func (s *memClanStore) AddWarPoints(ctx context.Context, code string, points int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clans[code]
	if !ok {
		return ErrNotFound
	}
	c.WarPoints += points
	return nil
}

func (s *memClanStore) ResetAllWarPoints(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clans {
		c.WarPoints = 0
	}
	return nil
}

func (s *memClanStore) Delete(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clans[code]; !ok {
		return ErrNotFound
	}
	delete(s.clans, code)
	return nil
}

type memStateStore struct {
	mu    sync.Mutex
	event *model.GlobalEvent
	war   *model.ClanWar
}

func (s *memStateStore) GetEvent(ctx context.Context) (*model.GlobalEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.event == nil {
		return nil, nil
	}
	e := *s.event
	return &e, nil
}

func (s *memStateStore) SetEvent(ctx context.Context, e *model.GlobalEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	cp.ID = model.GlobalEventDocID
	s.event = &cp
	return nil
}

func (s *memStateStore) ClearEvent(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.event = nil
	return nil
}

func (s *memStateStore) GetWar(ctx context.Context) (*model.ClanWar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.war == nil {
		return nil, nil
	}
	w := *s.war
	return &w, nil
}

func (s *memStateStore) InitWar(ctx context.Context, w *model.ClanWar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.war != nil {
		return nil
	}
	cp := *w
	cp.ID = model.ClanWarDocID
	s.war = &cp
	return nil
}

func (s *memStateStore) SetWar(ctx context.Context, w *model.ClanWar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *w
	cp.ID = model.ClanWarDocID
	s.war = &cp
	return nil
}
