package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"contentd.org/internal/auth"
	"contentd.org/internal/billing"
	"contentd.org/internal/document"
	"contentd.org/internal/email"
	"contentd.org/internal/httpapi"
	"contentd.org/internal/kv"
	"contentd.org/internal/kv/bolt"
	"contentd.org/internal/kv/memory"
	"contentd.org/internal/kv/pg"
	"contentd.org/internal/obs"
	"contentd.org/internal/owner"
	"contentd.org/internal/schema"
	"contentd.org/internal/space"
	"contentd.org/internal/user"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// openStore picks the backend: Postgres when a DSN is set, bbolt when a
// file path is set, in-memory otherwise (dev only, data dies with the
// process).
func openStore() (kv.Store, io.Closer, func(context.Context) error, error) {
	if dsn := os.Getenv("CONTENTD_PG_DSN"); dsn != "" {
		s, err := pg.Open(dsn)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s, s.DB().PingContext, nil
	}
	if path := os.Getenv("CONTENTD_BOLT_PATH"); path != "" {
		s := bolt.NewStore(path, obs.Logger())
		if err := s.Open(); err != nil {
			return nil, nil, nil, err
		}
		return s, s, nil, nil
	}
	log.Println("CONTENTD_PG_DSN and CONTENTD_BOLT_PATH unset; using in-memory store")
	return memory.New(), nil, nil, nil
}

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	secret := os.Getenv("CONTENTD_AUTH_SECRET")
	if secret == "" {
		log.Fatal("CONTENTD_AUTH_SECRET is required")
	}

	store, closer, ping, err := openStore()
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	var bill billing.Client = billing.Noop{}
	if key := os.Getenv("CONTENTD_STRIPE_KEY"); key != "" {
		bill = billing.NewStripe(key)
	}
	var mail email.Sender = email.Noop{}
	if key := os.Getenv("CONTENTD_SENDGRID_KEY"); key != "" {
		from := email.Recipient{
			Email: env("CONTENTD_MAIL_FROM", "no-reply@contentd.org"),
			Name:  env("CONTENTD_MAIL_FROM_NAME", "contentd"),
		}
		mail = email.NewSendGrid(key, from)
	}

	tokens := auth.NewTokenManager([]byte(secret), auth.DefaultTokenTTL)
	ledger := owner.NewLedger(store)
	users := user.NewRepo(store, tokens, bill, mail, obs.Logger()).
		WithPrice(os.Getenv("CONTENTD_STRIPE_PRICE"))
	spaces := space.NewRepo(store, ledger, bill)
	schemas := schema.NewRepo(store, ledger, bill)
	documents := document.NewRepo(store, ledger, bill)
	resets := auth.NewResets(store)

	api := httpapi.New(httpapi.Config{
		Version:    version,
		Users:      users,
		Spaces:     spaces,
		Schemas:    schemas,
		Documents:  documents,
		Resets:     resets,
		Ready:      httpapi.ReadyProbe{Ping: ping},
		RateBurst:  envInt("CONTENTD_RATE_BURST", 20),
		RatePerSec: envInt("CONTENTD_RATE_PER_SEC", 10),
	})

	srv := &http.Server{
		Addr:              env("CONTENTD_ADDR", ":8080"),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting contentd-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if closer != nil {
		_ = closer.Close()
	}
	log.Println("Stopped")
}
