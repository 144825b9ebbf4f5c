// Package config loads the service configuration from YAML and the
// environment and seeds a fresh engine from it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cloudx-io/scionauction/core"
)

// Config is the full service configuration.
type Config struct {
	Accounts    AccountsConfig     `yaml:"accounts"`
	Auction     AuctionConfig      `yaml:"auction"`
	Reroll      RerollConfig       `yaml:"reroll"`
	ClassBands  []ClassBandConfig  `yaml:"class_bands"`
	WeightBands []WeightBandConfig `yaml:"weight_bands"`
	Catalog     []CategoryConfig   `yaml:"catalog"`
	Promotion   PromotionConfig    `yaml:"promotion"`
	Balances    BalancesConfig     `yaml:"balances"`
	Store       StoreConfig        `yaml:"store"`
	HTTP        HTTPConfig         `yaml:"http"`
	Oracle      OracleConfig       `yaml:"oracle"`
	Log         LogConfig          `yaml:"log"`
}

type AccountsConfig struct {
	Operator        string `yaml:"operator"`
	Treasury        string `yaml:"treasury"`
	Escrow          string `yaml:"escrow"`
	PromotionHolder string `yaml:"promotion_holder"`
	Burn            string `yaml:"burn"`
}

type AuctionConfig struct {
	MinimumBid           string        `yaml:"minimum_bid"`
	Duration             time.Duration `yaml:"duration"`
	AutoStart            bool          `yaml:"auto_start"`
	MaxBidsPerCall       int           `yaml:"max_bids_per_call"`
	MaxClaimsPerCall     int           `yaml:"max_claims_per_call"`
	MaxPromotionsPerCall int           `yaml:"max_promotions_per_call"`
	TotalBidsLimit       int           `yaml:"total_bids_limit"` // 0 means unlimited
}

type RerollConfig struct {
	BasePrice      string `yaml:"base_price"`
	MaxWeight      uint64 `yaml:"max_weight"`
	NoDowngrade    bool   `yaml:"no_downgrade"`
	SameWeightOnly bool   `yaml:"same_weight_only"`
	RarityPlus     bool   `yaml:"rarity_plus"`
}

// ClassBandConfig maps bid values in [Bottom, Top] to Tier.
type ClassBandConfig struct {
	Tier   string `yaml:"tier"`
	Bottom string `yaml:"bottom"`
	Top    string `yaml:"top"`
}

// WeightBandConfig bounds the trait weights drawn for Tier.
type WeightBandConfig struct {
	Tier   string `yaml:"tier"`
	Bottom uint64 `yaml:"bottom"`
	Top    uint64 `yaml:"top"`
}

type CategoryConfig struct {
	ID     uint32        `yaml:"id"`
	Assets []AssetConfig `yaml:"assets"`
}

type AssetConfig struct {
	ID     uint64 `yaml:"id"`
	Name   string `yaml:"name"`
	Weight uint64 `yaml:"weight"`
}

type PromotionConfig struct {
	Prices    map[string]string `yaml:"prices"` // tier name to price
	Whitelist []string          `yaml:"whitelist"`
	Mint      []string          `yaml:"mint"` // tiers minted into the promotion holder at startup
}

// BalancesConfig credits the in-memory ledgers at startup, address to amount.
type BalancesConfig struct {
	Funds  map[string]string `yaml:"funds"`
	Reroll map[string]string `yaml:"reroll"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // memory, sqlite or postgres
	DSN    string `yaml:"dsn"`
}

type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// OracleConfig selects the random source. With CID zero and no Addr the engine
// uses the insecure hash source seeded from InsecureSeed.
type OracleConfig struct {
	CID          uint32 `yaml:"cid"`
	Addr         string `yaml:"addr"` // TCP address of a local, unattested oracle
	Port         uint32 `yaml:"port"`
	PublicKey    string `yaml:"public_key"` // pinned base64 key; fetched and attested when empty
	InsecureSeed string `yaml:"insecure_seed"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	engine := core.DefaultConfig()
	return Config{
		Accounts: AccountsConfig{
			Operator:        string(engine.Operator),
			Treasury:        string(engine.Treasury),
			Escrow:          string(engine.Escrow),
			PromotionHolder: string(engine.PromotionHolder),
			Burn:            string(engine.BurnAddress),
		},
		Auction: AuctionConfig{
			MinimumBid:           engine.MinimumBid.String(),
			Duration:             72 * time.Hour,
			MaxBidsPerCall:       engine.MaxBidsPerCall,
			MaxClaimsPerCall:     engine.MaxClaimsPerCall,
			MaxPromotionsPerCall: engine.MaxPromotionsPerCall,
		},
		Reroll: RerollConfig{
			BasePrice: engine.RerollBasePrice.String(),
			MaxWeight: engine.MaxWeight,
		},
		Store: StoreConfig{Driver: "memory"},
		HTTP:  HTTPConfig{Addr: ":8080"},
		Log:   LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEnv applies SCION_* overrides to cfg. envFile, when present, is loaded
// first; variables already set in the process take precedence over it.
func LoadEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var errs []string
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}
	uint32Var := func(key string, dst *uint32) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %q is not a port or context id", key, v))
				return
			}
			*dst = uint32(n)
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %q is not a boolean", key, v))
				return
			}
			*dst = b
		}
	}

	integer("SCION_TOTAL_BIDS_LIMIT", &cfg.Auction.TotalBidsLimit)
	str("SCION_MINIMUM_BID_AMOUNT", &cfg.Auction.MinimumBid)
	if v, ok := os.LookupEnv("SCION_AUCTION_DURATION"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("SCION_AUCTION_DURATION: %q is not a duration", v))
		} else {
			cfg.Auction.Duration = d
		}
	}
	boolean("SCION_REROLL_NO_DOWNGRADE", &cfg.Reroll.NoDowngrade)
	boolean("SCION_REROLL_SAME_WEIGHT", &cfg.Reroll.SameWeightOnly)
	boolean("SCION_REROLL_RARITY_PLUS", &cfg.Reroll.RarityPlus)
	str("SCION_STORE_DRIVER", &cfg.Store.Driver)
	str("SCION_STORE_DSN", &cfg.Store.DSN)
	str("SCION_HTTP_ADDR", &cfg.HTTP.Addr)
	str("SCION_LOG_LEVEL", &cfg.Log.Level)
	uint32Var("SCION_ORACLE_CID", &cfg.Oracle.CID)
	uint32Var("SCION_ORACLE_PORT", &cfg.Oracle.Port)
	str("SCION_ORACLE_ADDR", &cfg.Oracle.Addr)
	str("SCION_ORACLE_PUBLIC_KEY", &cfg.Oracle.PublicKey)

	if len(errs) > 0 {
		return fmt.Errorf("environment overrides invalid: %s", strings.Join(errs, "; "))
	}
	return nil
}

// EngineConfig converts the accounts, auction and reroll sections.
func (c Config) EngineConfig() (core.Config, error) {
	minimumBid, err := core.ParseAmount(c.Auction.MinimumBid)
	if err != nil {
		return core.Config{}, fmt.Errorf("auction.minimum_bid: %w", err)
	}
	basePrice, err := core.ParseAmount(c.Reroll.BasePrice)
	if err != nil {
		return core.Config{}, fmt.Errorf("reroll.base_price: %w", err)
	}
	return core.Config{
		Operator:             core.NormalizeAddress(c.Accounts.Operator),
		Treasury:             core.NormalizeAddress(c.Accounts.Treasury),
		Escrow:               core.NormalizeAddress(c.Accounts.Escrow),
		PromotionHolder:      core.NormalizeAddress(c.Accounts.PromotionHolder),
		BurnAddress:          core.NormalizeAddress(c.Accounts.Burn),
		MinimumBid:           minimumBid,
		MaxBidsPerCall:       c.Auction.MaxBidsPerCall,
		MaxClaimsPerCall:     c.Auction.MaxClaimsPerCall,
		MaxPromotionsPerCall: c.Auction.MaxPromotionsPerCall,
		TotalBidsLimit:       c.Auction.TotalBidsLimit,
		MaxWeight:            c.Reroll.MaxWeight,
		RerollBasePrice:      basePrice,
		Policy: core.RerollPolicy{
			NoDowngrade:    c.Reroll.NoDowngrade,
			SameWeightOnly: c.Reroll.SameWeightOnly,
			RarityPlus:     c.Reroll.RarityPlus,
		},
	}, nil
}
