package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"premortem/internal/evidence"
	"premortem/internal/graveyard"
	"premortem/internal/httpapi"
	"premortem/internal/premortem"
	"premortem/internal/reportstore"
	"premortem/internal/telemetry"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	dbFlag := flag.String("db", "", "path to SQLite database file (overrides DB_PATH env var)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, "premortem-server")
	if err != nil {
		log.Fatalf("telemetry setup: %v", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		_ = shutdownTracing(flushCtx)
	}()

	source := evidence.NewClient(evidence.Config{
		BaseURL:     os.Getenv("PERPLEXITY_BASE_URL"),
		Credentials: credentialPool(),
	})

	var archive premortem.FailureArchive
	var gy *graveyard.Client
	if url := strings.TrimSpace(os.Getenv("GRAVEYARD_URL")); url != "" {
		gy = graveyard.NewClient(graveyard.Config{
			BaseURL: url,
			APIKey:  requiredEnv("GRAVEYARD_KEY"),
		})
		archive = gy
	} else {
		log.Printf("GRAVEYARD_URL not set; historical failure matching disabled")
	}

	dbPath := *dbFlag
	if dbPath == "" {
		dbPath = os.Getenv("DB_PATH")
	}
	var store *reportstore.Store
	if dbPath != "" {
		store, err = reportstore.Open(dbPath)
		if err != nil {
			log.Fatalf("failed to open report store (%s): %v", dbPath, err)
		}
		defer store.Close()
		log.Printf("using report store at %s", dbPath)
	} else {
		log.Printf("DB_PATH not set; report persistence disabled")
	}

	pipeline := premortem.NewPipeline(source, archive)
	handler := httpapi.NewServer(pipeline, store, gy)

	srv := &http.Server{Addr: *addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("premortem server listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

// credentialPool reads PERPLEXITY_API_KEY_1..3 (and the bare
// PERPLEXITY_API_KEY) into the rotation pool, in order.
func credentialPool() []string {
	keys := []string{}
	for _, name := range []string{"PERPLEXITY_API_KEY_1", "PERPLEXITY_API_KEY_2", "PERPLEXITY_API_KEY_3", "PERPLEXITY_API_KEY"} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			keys = append(keys, v)
		}
	}
	return keys
}

func requiredEnv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		log.Fatalf("missing required env var %s", key)
	}
	return v
}
