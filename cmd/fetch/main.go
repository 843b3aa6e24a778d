package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"golddesk/internal/config"
	"golddesk/internal/engine"
	"golddesk/internal/feed/okx"
	"golddesk/internal/feed/sina"
	"golddesk/internal/httpx"
)

func main() {
	var symbolsCSV string
	var timeout int
	var configPath string
	var verbose bool

	flag.StringVar(&symbolsCSV, "symbols", getenv("CRYPTO_SYMBOLS", ""), "crypto symbols CSV, e.g. BTC,ETH or BTC:BTC-USDT")
	flag.IntVar(&timeout, "timeout", getenvInt("REQUEST_TIMEOUT_SEC", 5), "request timeout seconds")
	flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.json (optional)")
	flag.BoolVar(&verbose, "v", false, "debug logging")
	flag.Parse()

	if symbolsCSV != "" {
		os.Setenv("CRYPTO_SYMBOLS", symbolsCSV)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if timeout > 0 {
		cfg.Server.RequestTimeoutSec = timeout
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
	sinaClient := sina.New(sina.Config{
		BaseURL: cfg.Sina.Endpoint,
		Referer: cfg.Sina.Referer,
	}, httpClient, logger)
	okxClient := okx.NewClient(
		okx.WithBaseURL(cfg.OKX.Endpoint),
		okx.WithHTTPClient(httpClient.HTTP),
		okx.WithRateLimit(cfg.OKX.MaxRequestsPerSecond, cfg.OKX.Burst),
		okx.WithLogger(logger),
	)

	eng := engine.New(cfg, sinaClient, okxClient, logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.RequestTimeoutSec)*time.Second)
	defer cancel()

	snap := eng.FetchAll(ctx)
	b, _ := json.MarshalIndent(snap, "", "  ")
	fmt.Println(string(b))
	if snap.Error != "" {
		os.Exit(1)
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x != 0 {
			return x
		}
	}
	return def
}
