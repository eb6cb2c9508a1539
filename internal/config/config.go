package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server ServerConfig
	App    AppConfig
	Store  StoreConfig
	Cache  CacheConfig
	Game   GameConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	APIKey          string        `envconfig:"API_KEY" default:""`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"forgebot"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// StoreConfig selects and configures the document store backend.
type StoreConfig struct {
	Type          string `envconfig:"STORE_TYPE" default:"memory"` // memory or mongodb
	MongoURI      string `envconfig:"MONGODB_URI" default:""`
	MongoDatabase string `envconfig:"MONGODB_DATABASE" default:"forgebot"`
}

// CacheConfig holds pagination/verification cache settings.
type CacheConfig struct {
	Type string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	TTL  time.Duration `envconfig:"CACHE_TTL" default:"10m"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// GameConfig is the read-only economy tuning injected into every service.
// Nothing reads these ad hoc; they travel with the service structs.
type GameConfig struct {
	StartingBalance float64 `envconfig:"GAME_STARTING_BALANCE" default:"100"`

	WorkCooldown  time.Duration `envconfig:"GAME_WORK_COOLDOWN" default:"30m"`
	WorkRewardMin float64       `envconfig:"GAME_WORK_REWARD_MIN" default:"10"`
	WorkRewardMax float64       `envconfig:"GAME_WORK_REWARD_MAX" default:"50"`
	MinCooldown   time.Duration `envconfig:"GAME_MIN_COOLDOWN" default:"5m"`

	GatherCooldown  time.Duration `envconfig:"GAME_GATHER_COOLDOWN" default:"15m"`
	GatherBaseSlots int           `envconfig:"GAME_GATHER_BASE_SLOTS" default:"2"`

	DailyCooldown     time.Duration `envconfig:"GAME_DAILY_COOLDOWN" default:"22h"`
	DailyReward       float64       `envconfig:"GAME_DAILY_REWARD" default:"100"`
	DailyStreakBonus  float64       `envconfig:"GAME_DAILY_STREAK_BONUS" default:"10"`
	DailyStreakBreak  time.Duration `envconfig:"GAME_DAILY_STREAK_BREAK" default:"48h"`
	HourlyCooldown    time.Duration `envconfig:"GAME_HOURLY_COOLDOWN" default:"1h"`
	HourlyReward      float64       `envconfig:"GAME_HOURLY_REWARD" default:"15"`
	HourlyStreakBonus float64       `envconfig:"GAME_HOURLY_STREAK_BONUS" default:"2"`
	HourlyStreakBreak time.Duration `envconfig:"GAME_HOURLY_STREAK_BREAK" default:"2h"`

	FlipMinBet      float64       `envconfig:"GAME_FLIP_MIN_BET" default:"10"`
	FlipMaxBet      float64       `envconfig:"GAME_FLIP_MAX_BET" default:"5000"`
	SlotsMinBet     float64       `envconfig:"GAME_SLOTS_MIN_BET" default:"10"`
	SlotsBaseMaxBet float64       `envconfig:"GAME_SLOTS_BASE_MAX_BET" default:"500"`
	SlotsCooldown   time.Duration `envconfig:"GAME_SLOTS_COOLDOWN" default:"5m"`

	MarketTaxRate        float64 `envconfig:"GAME_MARKET_TAX_RATE" default:"0.1"`
	MaxListingsPerSeller int     `envconfig:"GAME_MAX_LISTINGS_PER_SELLER" default:"5"`

	VendorMarkup        float64 `envconfig:"GAME_VENDOR_MARKUP" default:"1.2"`
	VendorMaxListings   int     `envconfig:"GAME_VENDOR_MAX_LISTINGS" default:"3"`
	VendorRestockChance float64 `envconfig:"GAME_VENDOR_RESTOCK_CHANCE" default:"0.5"`

	CrateMaxListings   int     `envconfig:"GAME_CRATE_MAX_LISTINGS" default:"3"`
	CrateRetireChance  float64 `envconfig:"GAME_CRATE_RETIRE_CHANCE" default:"0.25"`
	CrateRestockChance float64 `envconfig:"GAME_CRATE_RESTOCK_CHANCE" default:"0.6"`

	EventStartChance float64 `envconfig:"GAME_EVENT_START_CHANCE" default:"0.05"`

	ClanCreateCost   float64       `envconfig:"GAME_CLAN_CREATE_COST" default:"1000"`
	ClanMaxMembers   int           `envconfig:"GAME_CLAN_MAX_MEMBERS" default:"10"`
	ClanJoinCooldown time.Duration `envconfig:"GAME_CLAN_JOIN_COOLDOWN" default:"1h"`

	TraitRerollCost float64 `envconfig:"GAME_TRAIT_REROLL_COST" default:"500"`

	VendorInterval     time.Duration `envconfig:"GAME_VENDOR_INTERVAL" default:"5m"`
	CrateInterval      time.Duration `envconfig:"GAME_CRATE_INTERVAL" default:"10m"`
	SmeltSweepInterval time.Duration `envconfig:"GAME_SMELT_SWEEP_INTERVAL" default:"30s"`
	EventInterval      time.Duration `envconfig:"GAME_EVENT_INTERVAL" default:"1m"`
	WarInterval        time.Duration `envconfig:"GAME_WAR_INTERVAL" default:"1m"`
	WarDuration        time.Duration `envconfig:"GAME_WAR_DURATION" default:"168h"`

	PaginationTTL   time.Duration `envconfig:"GAME_PAGINATION_TTL" default:"10m"`
	VerificationTTL time.Duration `envconfig:"GAME_VERIFICATION_TTL" default:"5m"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
