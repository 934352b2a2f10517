package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"trivia-service/internal/app"
	"trivia-service/internal/config"
	"trivia-service/internal/domain"
	"trivia-service/internal/identity"
	"trivia-service/internal/infra/memory"
	pgstore "trivia-service/internal/infra/postgres"
	redisstore "trivia-service/internal/infra/redis"
	"trivia-service/internal/token"
	transport "trivia-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

type sessionSweeper interface {
	Sweep(idleTTL time.Duration) int
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

	manager, err := token.NewManager(token.Config{
		Secret: []byte(cfg.Token.Secret),
		TTL:    config.TTLDuration(cfg.Token.TTL, 0),
		Leeway: config.TTLDuration(cfg.Token.Leeway, 0),
		Issuer: cfg.Token.Issuer,
	})
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var backing app.QuestionStore
	var identityStore identity.Store
	if pool != nil {
		backing = pgstore.NewQuestionStore(pool)
		identityStore = pgstore.NewIdentityStore(pool)
	} else {
		questions, correct := sampleQuestions()
		backing = memory.NewStaticQuestionStore(questions, correct)
		identityStore = memory.NewIdentityStore()
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	var questions app.QuestionStore
	if redisClient != nil {
		questions = redisstore.NewQuestionStore(redisClient, backing, questionTTL)
	} else {
		questions = memory.NewQuestionCache(backing, questionTTL)
	}

	idleTTL := config.TTLDuration(cfg.Session.IdleTTL, 30*time.Minute)
	var sessions app.SessionRepository
	var sweeper sessionSweeper
	if redisClient != nil {
		store := redisstore.NewSessionStore(redisClient, redisTTL)
		sessions, sweeper = store, store
	} else {
		store := memory.NewSessionStore()
		sessions, sweeper = store, store
	}

	engine := app.NewEngine(manager, sessions, questions, app.NewSelector(questions, nil), app.Config{
		MaxHistory:   cfg.Questions.History,
		IdleTTL:      idleTTL,
		StoreTimeout: config.TTLDuration(cfg.Questions.StoreTimeout, 0),
	})
	identities := identity.NewService(identityStore)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	transport.NewHandler(identities, manager, engine).Register(mux)
	mux.HandleFunc("/ws", transport.NewWSHandler(engine).ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := sweeper.Sweep(idleTTL); n > 0 {
					log.Printf("swept %d idle sessions", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		log.Printf("starting trivia service on :%s", finalPort)
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

// sampleQuestions provides a minimal question bank for running without
// Postgres; point the service at a database for real content.
func sampleQuestions() ([]domain.Question, map[string]int) {
	bank := []domain.Question{
		{ID: "q1", Prompt: "What is 2 + 2?", Choices: []string{"3", "4", "5"}, Active: true},
		{ID: "q2", Prompt: "What is the capital of France?", Choices: []string{"Lyon", "Paris", "Marseille"}, Active: true},
		{ID: "q3", Prompt: "Which planet is known as the Red Planet?", Choices: []string{"Venus", "Jupiter", "Mars"}, Active: true},
	}
	correct := map[string]int{"q1": 1, "q2": 1, "q3": 2}
	return bank, correct
}
