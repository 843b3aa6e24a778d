package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type Poll struct {
	IntervalMS    int `json:"interval_ms"`
	TaskTimeoutMS int `json:"task_timeout_ms"`
}

type Sina struct {
	Endpoint    string `json:"endpoint"`
	Referer     string `json:"referer"`
	FXKey       string `json:"fx_key"`
	FXRateIndex int    `json:"fx_rate_index"`
}

type OKX struct {
	Endpoint             string  `json:"endpoint"`
	MaxRequestsPerSecond float64 `json:"max_requests_per_sec"`
	Burst                int     `json:"burst"`
}

type CryptoSymbol struct {
	Name string `json:"name"`
	Pair string `json:"pair"`
}

// Metal describes one metal instrument: its international and domestic
// feed keys plus the fixed field offsets of each. Offsets are upstream
// format contracts, configured so a feed swap does not touch code.
type Metal struct {
	IntlKey               string `json:"intl_key"`
	IntlPrevCloseIndex    int    `json:"intl_prev_close_index"`
	IntlAltPrevCloseIndex int    `json:"intl_alt_prev_close_index"` // -1 when the feed has no alternate

	DomesticKey    string `json:"domestic_key"`
	PriceIndex     int    `json:"price_index"`
	PrevCloseIndex int    `json:"prev_close_index"`
	StampIndex     int    `json:"stamp_index"` // -1 unless the feed freezes a timestamp when closed
	ClosedStamp    string `json:"closed_stamp"`

	UnitDivisor    float64 `json:"unit_divisor"` // grams per quoted international unit
	QuoteScale     float64 `json:"quote_scale"`  // 1000 for CNY/kg feeds
	Precision      int     `json:"precision"`
	DefaultPremium float64 `json:"default_premium"`
}

// ozToGram is grams per troy ounce, the international quote unit for
// both tracked metals.
const ozToGram = 31.1034768

type Config struct {
	Server Server         `json:"server"`
	Poll   Poll           `json:"poll"`
	Sina   Sina           `json:"sina"`
	OKX    OKX            `json:"okx"`
	Crypto []CryptoSymbol `json:"crypto"`
	Gold   Metal          `json:"gold"`
	Silver Metal          `json:"silver"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 5},
		Poll:   Poll{IntervalMS: 1000, TaskTimeoutMS: 2000},
		Sina: Sina{
			Endpoint:    "https://hq.sinajs.cn/list=",
			Referer:     "https://finance.sina.com.cn/",
			FXKey:       "fx_susdcny",
			FXRateIndex: 1,
		},
		OKX: OKX{
			Endpoint:             "https://www.okx.com",
			MaxRequestsPerSecond: 8,
			Burst:                10,
		},
		Crypto: []CryptoSymbol{
			{Name: "BTC", Pair: "BTC-USDT"},
			{Name: "ETH", Pair: "ETH-USDT"},
			{Name: "BNB", Pair: "BNB-USDT"},
			{Name: "SOL", Pair: "SOL-USDT"},
			{Name: "HYPE", Pair: "HYPE-USDT"},
		},
		Gold: Metal{
			IntlKey:               "hf_XAU",
			IntlPrevCloseIndex:    1,
			IntlAltPrevCloseIndex: -1,
			DomesticKey:           "SGE_AUTD",
			PriceIndex:            3,
			PrevCloseIndex:        4,
			StampIndex:            -1,
			UnitDivisor:           ozToGram,
			QuoteScale:            1,
			Precision:             2,
			DefaultPremium:        9.5,
		},
		Silver: Metal{
			IntlKey:               "hf_SI",
			IntlPrevCloseIndex:    1,
			IntlAltPrevCloseIndex: 7,
			DomesticKey:           "SGE_AGTD",
			PriceIndex:            3,
			PrevCloseIndex:        4,
			StampIndex:            -1,
			UnitDivisor:           ozToGram,
			QuoteScale:            1000, // AGTD quotes CNY per kilogram
			Precision:             3,
			DefaultPremium:        0.15,
		},
	}
}

// Load reads JSON config from path. If path is empty or the file does not
// exist, it returns defaults. Environment variables override select fields.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Server.RequestTimeoutSec = x
		}
	}
	if v := os.Getenv("POLL_INTERVAL_MS"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Poll.IntervalMS = x
		}
	}
	if v := os.Getenv("TASK_TIMEOUT_MS"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Poll.TaskTimeoutMS = x
		}
	}
	if v := os.Getenv("SINA_ENDPOINT"); v != "" {
		cfg.Sina.Endpoint = v
	}
	if v := os.Getenv("SINA_REFERER"); v != "" {
		cfg.Sina.Referer = v
	}
	if v := os.Getenv("OKX_ENDPOINT"); v != "" {
		cfg.OKX.Endpoint = v
	}
	if v := os.Getenv("OKX_MAX_RPS"); v != "" {
		var x float64
		fmt.Sscanf(v, "%f", &x)
		if x > 0 {
			cfg.OKX.MaxRequestsPerSecond = x
		}
	}
	if v := os.Getenv("OKX_BURST"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.OKX.Burst = x
		}
	}
	if v := os.Getenv("CRYPTO_SYMBOLS"); v != "" {
		if syms := parseSymbolsCSV(v); len(syms) > 0 {
			cfg.Crypto = syms
		}
	}
	if v := os.Getenv("GOLD_PREMIUM"); v != "" {
		var x float64
		fmt.Sscanf(v, "%f", &x)
		cfg.Gold.DefaultPremium = x
	}
	if v := os.Getenv("SILVER_PREMIUM"); v != "" {
		var x float64
		fmt.Sscanf(v, "%f", &x)
		cfg.Silver.DefaultPremium = x
	}
}

// parseSymbolsCSV accepts "BTC,ETH" or "BTC:BTC-USDT,ETH:ETH-USDT"; a
// bare name implies a NAME-USDT spot pair.
func parseSymbolsCSV(s string) []CryptoSymbol {
	parts := strings.Split(s, ",")
	out := make([]CryptoSymbol, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		name, pair, found := strings.Cut(p, ":")
		if !found {
			pair = name + "-USDT"
		}
		out = append(out, CryptoSymbol{Name: name, Pair: pair})
	}
	return out
}
