package repository

import (
	"context"
	"errors"
	"time"

	"forgebot/internal/model"
)

// Store errors. Services translate these into user-visible outcomes; the
// distinction between a guard failure (a lost race) and a plain user error is
// internal only.
var (
	// ErrNotFound indicates the document does not exist (or was removed by a
	// concurrent operation; for listings that is the normal "too late" case).
	ErrNotFound = errors.New("not found")

	// ErrGuardFailed indicates a guarded mutation's precondition did not hold
	// at apply time. Nothing was mutated.
	ErrGuardFailed = errors.New("guard precondition failed")

	// ErrDuplicateListingID indicates the unique listing-id index rejected an
	// insert. The caller retries once with a freshly allocated id.
	ErrDuplicateListingID = errors.New("duplicate listing id")

	// ErrConflict indicates a uniqueness conflict on create (account name,
	// clan code or clan name).
	ErrConflict = errors.New("already exists")
)

// NoMinimum disables the precondition on a guarded increment. Balances and
// inventory counts are non-negative by invariant, so any negative minimum
// means "no guard".
const NoMinimum = -1

// AccountUpdate is a partial account write. Nil fields are left untouched;
// ClanID set to the empty string clears membership.
type AccountUpdate struct {
	Name             *string
	DiscordID        *string
	LastWork         *time.Time
	LastGather       *time.Time
	LastDaily        *time.Time
	LastHourly       *time.Time
	LastSlots        *time.Time
	DailyStreak      *int
	HourlyStreak     *int
	Buffs            *[]model.Buff
	Traits           *[]model.Trait
	ClanID           *string
	ClanJoinCooldown *time.Time
}

// AccountStore is the player-document store. Reads self-heal legacy
// documents (missing traits, nil inventory) before returning them.
type AccountStore interface {
	// Get resolves an identity case-insensitively against the primary id or
	// the linked Discord id. Returns ErrNotFound when absent.
	Get(ctx context.Context, identity string) (*model.Account, error)

	// Create inserts a new account document. Returns ErrConflict when the
	// identity is already claimed.
	Create(ctx context.Context, acc *model.Account) error

	// SetFields applies a partial update.
	SetFields(ctx context.Context, id string, u AccountUpdate) error

	// IncrementBalance atomically applies delta if the current balance is at
	// least min. Returns ErrGuardFailed when the precondition does not hold.
	// This is the concurrency primitive protecting against overdraft.
	IncrementBalance(ctx context.Context, id string, delta, min float64) error

	// IncrementItem is IncrementBalance for one inventory slot.
	IncrementItem(ctx context.Context, id, item string, delta, min int64) error

	// StartSmelt consumes the input and coal and installs the job in one
	// atomic compound-guarded update: input >= inputQty, coal >= coalCost and
	// no job in flight, or nothing happens (ErrGuardFailed).
	StartSmelt(ctx context.Context, id, input string, inputQty, coalCost int64, job model.SmeltJob) error

	// ClearSmelt removes the in-flight job. Returns ErrGuardFailed when no
	// job is present, so a racing sweep pays out at most once.
	ClearSmelt(ctx context.Context, id string) error

	// FinishedSmelts returns every account whose job finish time has passed.
	FinishedSmelts(ctx context.Context, now time.Time) ([]*model.Account, error)

	// CommitMerge writes the merged primary document and deletes the absorbed
	// one as a single all-or-nothing operation.
	CommitMerge(ctx context.Context, merged *model.Account, absorbedID string) error

	// Top returns the n richest accounts, balance descending.
	Top(ctx context.Context, n int) ([]*model.Account, error)

	// All returns every account. Used by the clan-war payout sweep.
	All(ctx context.Context) ([]*model.Account, error)

	// Delete removes an account document.
	Delete(ctx context.Context, id string) error
}

// ListingStore holds market or crate-shop listings; one instance per
// collection, each with its own dense id space.
type ListingStore interface {
	// NextID returns the smallest positive integer not currently in use.
	// Best effort: a concurrent insert can win the id, in which case Insert
	// reports ErrDuplicateListingID and the caller retries.
	NextID(ctx context.Context) (int64, error)

	// Insert adds a listing. Returns ErrDuplicateListingID when the id is
	// already taken.
	Insert(ctx context.Context, l model.Listing) error

	// Purchase atomically finds and removes a listing by id. ErrNotFound
	// means it was already sold or cancelled.
	Purchase(ctx context.Context, id int64) (*model.Listing, error)

	// Remove atomically deletes a listing only if it belongs to seller.
	Remove(ctx context.Context, id int64, seller string) (*model.Listing, error)

	Get(ctx context.Context, id int64) (*model.Listing, error)
	All(ctx context.Context) ([]model.Listing, error)
	BySeller(ctx context.Context, seller string) ([]model.Listing, error)
	ByItem(ctx context.Context, item string) ([]model.Listing, error)
}

// ClanList selects one of a clan's pending-membership arrays.
type ClanList string

const (
	ListApplicants ClanList = "applicants"
	ListInvites    ClanList = "invites"
)

// ClanUpdate is a partial clan write.
type ClanUpdate struct {
	OwnerID     *string
	Level       *int
	Recruitment *string
}

// ClanStore is the clan-document store.
type ClanStore interface {
	// Create inserts a clan. Returns ErrConflict when the code or the
	// case-insensitive name is taken.
	Create(ctx context.Context, c *model.Clan) error

	Get(ctx context.Context, code string) (*model.Clan, error)
	All(ctx context.Context) ([]model.Clan, error)
	SetFields(ctx context.Context, code string, u ClanUpdate) error

	// AddMember atomically appends a member if absent and under the cap.
	AddMember(ctx context.Context, code, member string, maxMembers int) error
	RemoveMember(ctx context.Context, code, member string) error

	// PushList / PullList mutate the applicants or invites array atomically.
	PushList(ctx context.Context, code string, list ClanList, member string) error
	PullList(ctx context.Context, code string, list ClanList, member string) error

	// IncrementVault applies delta if the vault holds at least min.
	IncrementVault(ctx context.Context, code string, delta, min float64) error

	AddWarPoints(ctx context.Context, code string, points int64) error
	ResetAllWarPoints(ctx context.Context) error

	Delete(ctx context.Context, code string) error
}

// StateStore holds the process-wide singleton documents: the current global
// event and the clan-war period.
type StateStore interface {
	// GetEvent returns the current event document, nil when none is stored.
	GetEvent(ctx context.Context) (*model.GlobalEvent, error)
	SetEvent(ctx context.Context, e *model.GlobalEvent) error
	ClearEvent(ctx context.Context) error

	// GetWar returns the war document, nil when none is stored.
	GetWar(ctx context.Context) (*model.ClanWar, error)

	// InitWar installs the document only if absent. Idempotent, safe to run
	// concurrently with itself.
	InitWar(ctx context.Context, w *model.ClanWar) error
	SetWar(ctx context.Context, w *model.ClanWar) error
}

// Stores bundles everything the service layer needs. Market and Crates are
// separate listing collections with independent id spaces.
type Stores struct {
	Accounts AccountStore
	Market   ListingStore
	Crates   ListingStore
	Clans    ClanStore
	State    StateStore
}
