package service

import (
	"context"
	"fmt"
	"log"
	"math"
	mathrand "math/rand"
	"sync"
	"time"

	"forgebot/internal/cache"
	"forgebot/internal/config"
	"forgebot/internal/model"
	"forgebot/internal/repository"
)

// Result is the structured outcome every transaction operation returns.
// Expected failures (bad input, cooldowns, lost races) come back as
// Success=false with a user-facing message; only integrity and
// infrastructure problems surface as errors.
type Result struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Lines   []string `json:"lines,omitempty"`
}

func fail(format string, args ...interface{}) Result {
	return Result{Success: false, Message: fmt.Sprintf(format, args...)}
}

func ok(format string, args ...interface{}) Result {
	return Result{Success: true, Message: fmt.Sprintf(format, args...)}
}

// Notifier delivers out-of-band messages (smelt completion, event
// announcements) to whatever transport is attached. Delivery is best
// effort everywhere it is used.
type Notifier interface {
	Notify(ctx context.Context, accountID, message string) error
	Announce(ctx context.Context, message string) error
}

// LogNotifier is the default Notifier: it only writes to the process log.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, accountID, message string) error {
	log.Printf("[Notify] %s: %s", accountID, message)
	return nil
}

func (LogNotifier) Announce(ctx context.Context, message string) error {
	log.Printf("[Announce] %s", message)
	return nil
}

// Service implements the economy's transaction operations on top of the
// document stores. All randomness flows through one seeded source behind a
// mutex; the clock is injectable for tests.
type Service struct {
	stores repository.Stores
	cache  cache.Cache
	cfg    config.GameConfig
	notify Notifier

	mu   sync.Mutex
	rand *mathrand.Rand
	now  func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRandSource overrides the random source seed.
func WithRandSource(seed int64) Option {
	return func(s *Service) { s.rand = mathrand.New(mathrand.NewSource(seed)) }
}

// WithNotifier overrides the notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notify = n }
}

// New creates the economy service.
func New(stores repository.Stores, c cache.Cache, cfg config.GameConfig, opts ...Option) *Service {
	s := &Service{
		stores: stores,
		cache:  c,
		cfg:    cfg,
		notify: LogNotifier{},
		rand:   mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// randFloat returns one uniform draw in [0,1).
func (s *Service) randFloat() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Float64()
}

// randRange returns a uniform draw in [lo, hi].
func (s *Service) randRange(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + s.randFloat()*(hi-lo)
}

// randInt returns a uniform integer in [lo, hi].
func (s *Service) randInt(lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	return lo + int64(s.randFloat()*float64(hi-lo+1))
}

// clampChance bounds a probability so pathological trait stacking cannot
// make a roll certain or invalid.
func clampChance(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 0.95 {
		return 0.95
	}
	return p
}

// validReward rejects non-finite or negative computed rewards. Every reward
// computation goes through here before it touches a balance.
func validReward(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// activeEvent returns the current global event, nil when none is running.
// Storage errors degrade to "no event": a down state collection should not
// block every work command.
func (s *Service) activeEvent(ctx context.Context) *model.GlobalEvent {
	e, err := s.stores.State.GetEvent(ctx)
	if err != nil {
		log.Printf("[Service] Warning: failed to read global event: %v", err)
		return nil
	}
	if e == nil || !e.Active(s.now()) {
		return nil
	}
	return e
}

// memberPerks resolves the clan perk tier for an account, the zero tier
// when unaffiliated. The clan document is also returned for callers that
// need the code.
func (s *Service) memberPerks(ctx context.Context, acc *model.Account) (perks clanPerks, clanCode string) {
	if acc.ClanID == "" {
		return zeroPerks(), ""
	}
	c, err := s.stores.Clans.Get(ctx, acc.ClanID)
	if err != nil {
		// Stale membership (disbanded clan) reads as no perks.
		return zeroPerks(), ""
	}
	return perksOf(c.Level), c.Code
}

// taxRate returns the market tax, honoring a market_tax event override.
func (s *Service) taxRate(ctx context.Context) float64 {
	if e := s.activeEvent(ctx); e != nil && e.Kind == model.EventMarketTax {
		if !math.IsNaN(e.Multiplier) && e.Multiplier >= 0 && e.Multiplier < 1 {
			return e.Multiplier
		}
	}
	return s.cfg.MarketTaxRate
}
