// Package config holds the typed trading configuration. Credentials and
// runtime mode come from the environment; strategy parameters are defaults
// on the struct so a deployment edits one place. Validate runs before the
// trading loop starts and fails fast on anything unsafe.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// DefaultThresholdKey is the mandatory fallback entry in DipThresholds.
const DefaultThresholdKey = "DEFAULT"

// Config is the full trading system configuration.
type Config struct {
	// Alpaca credentials.
	AlpacaKey    string
	AlpacaSecret string
	Paper        bool

	// Watchlist.
	Symbols []string

	// Dip detection. The effective threshold for a symbol is
	// max(MinAbsoluteDip, DipThresholds[symbol]).
	DipThresholds map[string]float64
	LookbackDays  int

	// Position sizing.
	BasePositionPct float64
	MaxPositionPct  float64
	DipMultiplier   float64
	MinAbsoluteDip  float64

	// Margin settings.
	UseMargin             bool
	MaxMarginPct          float64
	MarginSafetyThreshold float64
	CollateralPositions   []string

	// Trading controls.
	CooldownHours  int
	OrderTimeout   time.Duration
	LimitOffsetPct float64

	// Intraday volatility boost.
	VolatileTickers       []string
	IntradayDropThreshold float64
	IntradayMultiplier    float64

	// Extended hours.
	TradeExtendedHours bool

	// System.
	ScanInterval time.Duration
	LogLevel     string
	MetricsAddr  string
}

// New returns the configuration with strategy defaults and environment
// overrides applied. Call Validate before using it.
func New() *Config {
	return &Config{
		AlpacaKey:    os.Getenv("ALPACA_KEY"),
		AlpacaSecret: os.Getenv("ALPACA_SECRET"),
		Paper:        envBool("ALPACA_PAPER", true),

		Symbols: []string{
			"NVDA", "AVGO", "AMD", "TSM", "MRVL", "TER",
			"MSFT", "META", "ORCL", "NOW", "PLTR",
			"ANET", "DELL",
			"ETN", "PWR", "CEG", "GEV", "NEE", "ABB",
			"EQIX", "DLR", "AMT", "CCI",
			"LMT", "NOC", "RTX", "GD", "HII", "HWM", "AVAV", "KTOS",
			"ISRG", "LLY", "FIGR",
			"VMC", "MLM", "MP",
			"XYL", "AWK", "WTRG",
			"GLD", "URNM",
			"IBIT", "ARKK",
		},

		DipThresholds: map[string]float64{
			DefaultThresholdKey: 0.04,
			"MSFT":              0.03, "LLY": 0.03, "GLD": 0.03,
			"NVDA": 0.05, "AMD": 0.05, "PLTR": 0.06,
			"MRVL": 0.05, "DELL": 0.05, "FIGR": 0.07,
			"IBIT": 0.08, "ARKK": 0.08, "URNM": 0.07,
			"AVAV": 0.06, "KTOS": 0.07, "MP": 0.07,
			"CEG": 0.03, "NEE": 0.03, "AWK": 0.03,
			"WTRG": 0.03, "EQIX": 0.035, "DLR": 0.035,
		},
		LookbackDays: 20,

		BasePositionPct: 0.025,
		MaxPositionPct:  0.15,
		DipMultiplier:   1.75,
		MinAbsoluteDip:  0.05,

		UseMargin:             true,
		MaxMarginPct:          0.20,
		MarginSafetyThreshold: 0.15,
		CollateralPositions:   []string{"BLV", "SGOV", "BIL"},

		CooldownHours:  3,
		OrderTimeout:   15 * time.Minute,
		LimitOffsetPct: 0.005,

		VolatileTickers:       []string{"IBIT", "ARKK", "KTOS", "FIGR", "URNM", "MP"},
		IntradayDropThreshold: 0.06,
		IntradayMultiplier:    1.5,

		TradeExtendedHours: true,

		ScanInterval: 60 * time.Second,
		LogLevel:     envString("LOG_LEVEL", "info"),
		MetricsAddr:  envString("METRICS_ADDR", ":9187"),
	}
}

// DipThreshold resolves the per-symbol dip threshold, falling back to the
// DEFAULT entry.
func (c *Config) DipThreshold(symbol string) float64 {
	if threshold, ok := c.DipThresholds[symbol]; ok {
		return threshold
	}
	return c.DipThresholds[DefaultThresholdKey]
}

// IsVolatile reports whether symbol is eligible for the intraday boost.
func (c *Config) IsVolatile(symbol string) bool {
	return contains(c.VolatileTickers, symbol)
}

// IsCollateral reports whether symbol is reserved as margin collateral and
// must never be auto-traded.
func (c *Config) IsCollateral(symbol string) bool {
	return contains(c.CollateralPositions, symbol)
}

// Validate checks the configuration for unsafe or contradictory values.
func (c *Config) Validate() error {
	if c.AlpacaKey == "" || c.AlpacaSecret == "" {
		return errors.New("ALPACA_KEY and ALPACA_SECRET must be set")
	}

	if _, ok := c.DipThresholds[DefaultThresholdKey]; !ok {
		return fmt.Errorf("DipThresholds must contain a %q entry", DefaultThresholdKey)
	}

	for symbol, threshold := range c.DipThresholds {
		if threshold <= 0 || threshold > 0.5 {
			return fmt.Errorf("dip threshold for %s must be in (0, 0.5], got %v", symbol, threshold)
		}
	}

	if c.MaxPositionPct <= c.BasePositionPct {
		return errors.New("MaxPositionPct must be greater than BasePositionPct")
	}

	if len(c.Symbols) == 0 {
		return errors.New("watchlist must not be empty")
	}

	if c.ScanInterval <= 0 {
		return errors.New("ScanInterval must be positive")
	}

	return nil
}

func contains(list []string, symbol string) bool {
	for _, s := range list {
		if s == symbol {
			return true
		}
	}
	return false
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return strings.EqualFold(v, "true")
}
