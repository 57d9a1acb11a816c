package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// Config carries everything the bot needs, read once at startup.
type Config struct {
	// Telegram
	BotToken    string `env:"BOT_TOKEN,required,notEmpty"`
	BotUsername string `env:"BOT_USERNAME" envDefault:"star_shop_bot"`
	AdminID     int64  `env:"ADMIN_ID,required,notEmpty"`

	// Payments
	Wallet     string  `env:"YOOMONEY_WALLET,required,notEmpty"`
	StarRate   float64 `env:"STAR_RATE" envDefault:"0.05"`
	MinFeeRUB  float64 `env:"MIN_FEE_RUB" envDefault:"2"`
	RefPercent float64 `env:"REF_PERCENT" envDefault:"0.10"`

	// Support
	SupportContact string `env:"SUPPORT_CONTACT" envDefault:"@star_shop_support"`

	// Storage
	DataPath string `env:"DATA_PATH" envDefault:"./user_data.json"`
}

// Load parses the configuration from the environment. Missing required
// settings are an error; the process must refuse to start on one.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// Rate returns the star price rate as a decimal.
func (c *Config) Rate() decimal.Decimal {
	return decimal.NewFromFloat(c.StarRate)
}

// MinFee returns the minimum invoice price as a decimal.
func (c *Config) MinFee() decimal.Decimal {
	return decimal.NewFromFloat(c.MinFeeRUB)
}

// Price is the invoice price for amount stars: amount × rate rounded to
// kopecks, clamped from below by the minimum fee.
func (c *Config) Price(amount int64) decimal.Decimal {
	p := decimal.NewFromInt(amount).Mul(c.Rate()).Round(2)
	if p.LessThan(c.MinFee()) {
		return c.MinFee()
	}
	return p
}

// RefShare returns the referrer accrual share as a decimal.
func (c *Config) RefShare() decimal.Decimal {
	return decimal.NewFromFloat(c.RefPercent)
}
