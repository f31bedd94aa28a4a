package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sbahn-canon/internal/api"
	"sbahn-canon/internal/bus"
	"sbahn-canon/internal/config"
	"sbahn-canon/internal/metrics"
	"sbahn-canon/internal/pipeline"
	"sbahn-canon/internal/query"
	"sbahn-canon/internal/store"
	"sbahn-canon/internal/topology"
)

func main() {
	InitLogging()

	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	catalog, err := config.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		log.Fatalf("catalog error: %v", err)
	}
	log.Printf("catalog lines: %v", catalog.Lines())

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, sqlDB := openStore(ctx, cfg)
	defer st.Close()
	if v, err := st.Version(ctx); err == nil {
		log.Printf("store backend %s at version %d", cfg.Backend, v)
	}

	// Metrics setup; the collector is nil-safe when the server is disabled
	var mcol *metrics.Collector
	var servers []*http.Server
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.NodeThreshold)
		servers = append(servers, mcol.Serve(cfg.MetricsAddr))
	}

	var conn *bus.Conn
	var pub pipeline.Publisher
	if cfg.NATSURL != "" {
		conn, err = bus.Connect(cfg.NATSURL, cfg.LogNATSSubjects, mcol)
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer conn.Close()
		pub = conn.Publisher(cfg.MergedSubject)
	}

	p := pipeline.New(cfg.Location, catalog, st, mcol)
	runner := pipeline.NewRunner(p, pub, cfg.IngestQueue)
	runner.Start(ctx)

	if conn != nil {
		if _, err := conn.Subscribe(ctx, cfg.IngestSubject, runner); err != nil {
			log.Fatalf("nats subscribe error: %v", err)
		}
	}

	svc := query.NewService(st, topology.Options{NodeThreshold: cfg.NodeThreshold})
	servers = append(servers, api.NewServer(svc, runner, mcol).Serve(cfg.APIAddr))

	var done chan struct{}
	if sqlDB != nil {
		done = make(chan struct{})
		go watchDB(ctx, sqlDB, done)
	}

	// Block until context cancelled
	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	for _, srv := range servers {
		_ = srv.Shutdown(shutdownCtx)
	}
	runner.Stop()
	if done != nil {
		<-done
	}
	log.Println("shutdown complete")
}

func InitLogging() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
}

// openStore returns the configured store and, for Postgres, the underlying
// handle so it can be health-checked.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, *sql.DB) {
	if cfg.Backend == config.BackendMemory {
		log.Printf("using in-memory store; records are lost on exit")
		return store.NewMemory(), nil
	}
	dsn := cfg.DatabaseURL
	if cfg.StoreDatabase != "" {
		var err error
		dsn, err = store.WithDBName(dsn, cfg.StoreDatabase)
		if err != nil {
			log.Fatalf("compose DSN: %v", err)
		}
	}
	sqlDB, err := store.Connect(ctx, dsn, time.Minute)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	pg, err := store.NewPostgres(ctx, sqlDB)
	if err != nil {
		log.Fatalf("store init error: %v", err)
	}
	log.Printf("using postgres store %s", store.Redact(dsn))
	return pg, sqlDB
}

// watchDB pings the store database periodically so an outage shows up in the
// log before the next merge fails.
func watchDB(ctx context.Context, sqlDB *sql.DB, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		err := store.Ping(ctx, sqlDB)
		switch {
		case err != nil && healthy:
			log.Printf("db ping failed: %v", err)
			healthy = false
		case err == nil && !healthy:
			log.Printf("db reachable again")
			healthy = true
		}
	}
}
