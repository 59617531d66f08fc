package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"eduquest-progress/internal/app"
	"eduquest-progress/internal/clock"
	"eduquest-progress/internal/config"
	"eduquest-progress/internal/connectivity"
	"eduquest-progress/internal/events"
	"eduquest-progress/internal/infra/memory"
	pgstore "eduquest-progress/internal/infra/postgres"
	redisstore "eduquest-progress/internal/infra/redis"
	"eduquest-progress/internal/infra/sqlite"
	"eduquest-progress/internal/progress"
	"eduquest-progress/internal/reconcile"
	"eduquest-progress/internal/store"
	transport "eduquest-progress/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the engine.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the engine and the shell bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	backend, closeBackend, err := openBackend(cfg, redisClient, pool)
	if err != nil {
		return err
	}
	defer closeBackend()

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(bundledQuizzes())
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL, cfg.Redis.Prefix)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	bus := events.NewBus()
	st := store.New(backend, bus)
	prog := progress.NewService(st, bus)
	service := app.NewQuizService(quizRepo, app.Deps{
		Store:    st,
		Progress: prog,
		Clock:    clock.NewReal(),
		Events:   bus,
	})
	defer service.Shutdown(context.Background())

	monitor := connectivity.NewMonitor(true, bus)

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	var syncer transport.Syncer = localOnly{}
	if cfg.Sync.RemoteURL != "" {
		remote := reconcile.NewHTTPRemote(cfg.Sync.RemoteURL, config.TTLDuration(cfg.Sync.Timeout, 15*time.Second))
		reconciler := reconcile.New(st, remote, monitor, bus)
		reconciler.OnSynced(func(ctx context.Context) {
			if _, err := prog.EvaluateAchievements(ctx); err != nil {
				log.Printf("[sync] evaluate achievements: %v", err)
			}
		})
		go reconciler.Run(runCtx, bus)

		scheduler := reconcile.NewScheduler(reconciler, config.TTLDuration(cfg.Sync.Timeout, 15*time.Second))
		if err := scheduler.Start(config.TTLDuration(cfg.Sync.Interval, 5*time.Minute)); err != nil {
			return err
		}
		defer scheduler.Stop()
		syncer = reconciler
	} else {
		log.Printf("[sync] no remote configured; progress stays on this device")
	}

	wsHandler := transport.NewWSHandler(service, prog, st, syncer, monitor, bus)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if st.Degraded() {
			w.Write([]byte("degraded"))
			return
		}
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/summary", transport.SummaryHandler(prog, st, syncer))
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting eduquest engine on :%s (store=%s)", finalPort, cfg.Store.Driver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openBackend picks the durable store backend named by the config.
func openBackend(cfg config.Config, redisClient *redis.Client, pool *pgxpool.Pool) (store.Backend, func(), error) {
	noop := func() {}
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return memory.NewBackend(), noop, nil
	case config.DriverRedis:
		if redisClient == nil {
			return nil, noop, fmt.Errorf("store driver redis needs redis.addr")
		}
		return redisstore.NewBackend(redisClient, cfg.Redis.Prefix), noop, nil
	case config.DriverPostgres:
		if pool == nil {
			return nil, noop, fmt.Errorf("store driver postgres needs postgres.url")
		}
		return pgstore.NewBackend(pool), noop, nil
	case config.DriverSQLite:
		b, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return b, func() { b.Close() }, nil
	}
	return nil, noop, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// localOnly stands in for the reconciler when no remote is configured.
type localOnly struct{}

func (localOnly) SyncAll(context.Context) error { return nil }

func (localOnly) Status() reconcile.StatusView {
	return reconcile.StatusView{Status: reconcile.StatusIdle}
}
