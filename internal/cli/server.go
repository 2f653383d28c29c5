package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cbt-exam-service/internal/app"
	"cbt-exam-service/internal/config"
	"cbt-exam-service/internal/export"
	"cbt-exam-service/internal/infra/memory"
	pgloader "cbt-exam-service/internal/infra/postgres"
	rediscache "cbt-exam-service/internal/infra/redis"
	"cbt-exam-service/internal/infra/spreadsheet"
	"cbt-exam-service/internal/infra/sqlstore"
	transport "cbt-exam-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the exam server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// exportLog is the submission log backing both the exporter and the admin download.
type exportLog interface {
	export.Log
	transport.SubmissionFile
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	store := sqlstore.NewStore(db)

	if err := runSeed(ctx, app.NewSeeder(store, bcrypt.DefaultCost), cfg.Seed.Path); err != nil {
		return err
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

	var loader memory.QuestionLoader = store
	if cfg.Database.Driver == sqlstore.DriverPostgres {
		pool, err := pgxpool.Connect(ctx, cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = pgloader.NewQuestionLoader(pool)
	}

	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	var catalog app.QuestionRepository
	if redisClient != nil {
		cached := rediscache.NewCatalogRepository(redisClient, loader, config.TTLDuration(cfg.Redis.TTL, catalogTTL))
		// A cache filled before this database was seeded would grade against stale keys.
		if err := cached.Invalidate(ctx); err != nil {
			log.Printf("invalidate catalog cache: %v", err)
		}
		catalog = cached
	} else {
		catalog = memory.NewCatalogRepository(loader, catalogTTL)
	}

	var locker export.Locker = export.NewMutexLocker()
	if redisClient != nil {
		locker = rediscache.NewExportLock(redisClient, config.TTLDuration(cfg.Export.LockTTL, 30*time.Second))
	}

	var submissions exportLog = spreadsheet.NewXLSXLog(cfg.Export.Path)
	if cfg.Export.Format == "csv" {
		submissions = spreadsheet.NewCSVLog(cfg.Export.Path)
	}

	feed := app.NewSubmissionFeed()
	service := app.NewExamService(store, catalog, export.NewExporter(submissions, locker)).
		WithFeed(feed).
		WithExportTimeout(config.TTLDuration(cfg.Export.Timeout, 30*time.Second))
	sessions := transport.NewSessionIssuer(cfg.Auth.Secret, config.TTLDuration(cfg.Auth.TokenTTL, 2*time.Hour))
	examHandler := transport.NewExamHandler(service, sessions, submissions).
		WithAdminKey(cfg.Admin.Key).
		WithUsernameAsPassword(cfg.Auth.UsernameAsPassword)
	feedHandler := transport.NewFeedHandler(feed)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	examHandler.Register(mux)
	mux.HandleFunc("GET /admin/feed", examHandler.RequireAdmin(feedHandler.ServeWS))

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting exam service on :%s (store=%s, export=%s)", finalPort, cfg.Database.Driver, cfg.Export.Path)
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
