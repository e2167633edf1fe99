package main

import (
	"context"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/forum-platform/internal/events"
	"github.com/example/forum-platform/internal/handlers"
	"github.com/example/forum-platform/internal/platform/auth"
	"github.com/example/forum-platform/internal/platform/config"
	"github.com/example/forum-platform/internal/platform/db"
	"github.com/example/forum-platform/internal/platform/httpserver"
	"github.com/example/forum-platform/internal/platform/logging"
	"github.com/example/forum-platform/internal/platform/natsconn"
	"github.com/example/forum-platform/internal/platform/run"
	"github.com/example/forum-platform/internal/present"
	"github.com/example/forum-platform/internal/search"
	"github.com/example/forum-platform/internal/store"
)

// contentStore is the full persistence surface the forum needs from one
// backend.
type contentStore interface {
	store.ThreadStore
	store.CommentStore
	store.ReadStateStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	st, ready, closeStore := initStore(log)
	if closeStore != nil {
		defer closeStore()
	}

	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	verifier := auth.JWTVerifier{Secret: []byte(jwtSecret)}

	publisher, err := events.New(strings.TrimSpace(os.Getenv("NATS_URL")), log)
	if err != nil {
		log.Error("nats publisher", zap.Error(err))
		run.Exit(1)
	}

	tracker := &present.Tracker{ReadStates: st, Comments: st}
	presenter := &present.Presenter{Comments: st, Tracker: tracker}
	deps := handlers.Deps{
		Threads:   st,
		Comments:  st,
		Tracker:   tracker,
		Presenter: presenter,
		Lister: &present.Engine{
			Threads:   st,
			Comments:  st,
			Reads:     st,
			Presenter: presenter,
			PerPage:   cfg.Forum.PerPage,
		},
		Events: publisher,
		Log:    log,
	}

	var meili *search.Client
	if cfg.Forum.SearchEnabled {
		meili = search.New(cfg.Forum.SearchURL, cfg.Forum.SearchAPIKey)
		deps.Searcher = &search.ThreadSearcher{Client: meili}
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{ReadyFunc: ready})
	handlers.Mount(r, deps, verifier)

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		// Keep the search index following content events (non-fatal if
		// NATS is unavailable).
		if meili != nil {
			nc, err := natsconn.Connect(natsconn.Options{})
			if err != nil {
				log.Error("nats connect", zap.Error(err))
			} else {
				indexer := &search.Indexer{Threads: st, Meili: meili, Log: log, NATS: nc}
				go func() {
					if err := indexer.Run(ctx); err != nil {
						log.Error("search indexer", zap.Error(err))
					}
				}()
				defer nc.Close()
			}
		}

		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// initStore selects the persistence backend. In production
// (APP_ENV=production) it requires a working Postgres connection and
// terminates the process otherwise.
func initStore(log *zap.Logger) (contentStore, func() error, func()) {
	isProd := strings.EqualFold(strings.TrimSpace(os.Getenv("APP_ENV")), "production")

	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		if isProd {
			log.Error("DATABASE_URL is required in production")
			_ = log.Sync()
			os.Exit(1)
		}
		log.Warn("DATABASE_URL not set, using in-memory content store (development only)")
		return store.NewMemory(), nil, nil
	}

	pool, err := db.Open(context.Background())
	if err != nil {
		if isProd {
			log.Error("postgres is required in production but unavailable", zap.Error(err))
			_ = log.Sync()
			os.Exit(1)
		}
		log.Warn("postgres unavailable, using in-memory content store (development only)", zap.Error(err))
		return store.NewMemory(), nil, nil
	}

	log.Info("using postgres content store")
	ready := func() error { return pool.Ping(context.Background()) }
	return store.NewPostgres(pool), ready, pool.Close
}
