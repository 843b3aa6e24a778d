package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"golddesk/internal/config"
	"golddesk/internal/engine"
	"golddesk/internal/feed/okx"
	"golddesk/internal/feed/sina"
	"golddesk/internal/httpx"
	"golddesk/internal/poller"
	"golddesk/internal/snapshot"
	"golddesk/internal/stream"
)

func main() {
	_ = godotenv.Load()
	log := newLogger()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
	sinaClient := sina.New(sina.Config{
		BaseURL: cfg.Sina.Endpoint,
		Referer: cfg.Sina.Referer,
	}, httpClient, log)
	okxClient := okx.NewClient(
		okx.WithBaseURL(cfg.OKX.Endpoint),
		okx.WithHTTPClient(httpClient.HTTP),
		okx.WithRateLimit(cfg.OKX.MaxRequestsPerSecond, cfg.OKX.Burst),
		okx.WithLogger(log),
	)

	eng := engine.New(cfg, sinaClient, okxClient, log)
	hub := stream.NewHub(log)

	// latest holds the most recent snapshot for the pull endpoint; the
	// push path goes through the hub.
	var latest atomic.Pointer[snapshot.Snapshot]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := &poller.Poller{
		Fetcher:  eng,
		Interval: time.Duration(cfg.Poll.IntervalMS) * time.Millisecond,
		Publish: func(s *snapshot.Snapshot) {
			latest.Store(s)
			hub.Broadcast(s)
		},
		Log: log,
	}
	go p.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/api/snapshot", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handleGetSnapshot(w, &latest)
	})
	mux.HandleFunc("/ws", hub.ServeWS)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withJSONHeaders(recoverPanic(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Infof("quote server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	hub.Close()
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.InfoLevel)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if lvl, err := logrus.ParseLevel(v); err == nil {
			log.SetLevel(lvl)
		}
	}
	return log
}

func handleGetSnapshot(w http.ResponseWriter, latest *atomic.Pointer[snapshot.Snapshot]) {
	snap := latest.Load()
	if snap == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"no snapshot yet"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(snap)
}

// withJSONHeaders marks API responses; the websocket route negotiates its
// own protocol and is left alone.
func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

// recoverPanic protects handlers from panics.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
