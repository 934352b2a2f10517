package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"trivia-service/internal/app"
	"trivia-service/internal/identity"
	pgstore "trivia-service/internal/infra/postgres"
	pgmigrations "trivia-service/internal/infra/postgres/migrations"
	infraredis "trivia-service/internal/infra/redis"
	"trivia-service/internal/token"
)

func TestPlayThroughEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuestions(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	manager, err := token.NewManager(token.Config{Secret: []byte("integration-secret-0123456789abcdef")})
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	identities := identity.NewService(pgstore.NewIdentityStore(pool))

	questions := infraredis.NewQuestionStore(redisClient, pgstore.NewQuestionStore(pool), 5*time.Minute)
	sessions := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	engine := app.NewEngine(manager, sessions, questions, app.NewSelector(questions, nil), app.Config{})

	subjectID, err := identities.Register(ctx, "alice", "correct horse")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := identities.Verify(ctx, "alice", "correct horse"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	credential, err := manager.Issue(subjectID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	summary, err := engine.StartSession(ctx, credential)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	correct := map[string]int{"q1": 1, "q2": 0}
	score := 0
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		view, err := engine.GetNextQuestion(ctx, credential, summary.SessionID)
		if err != nil {
			t.Fatalf("next question %d: %v", i, err)
		}
		if seen[view.QuestionID] {
			t.Fatalf("question %s repeated back to back", view.QuestionID)
		}
		seen[view.QuestionID] = true

		outcome, err := engine.SubmitAnswer(ctx, credential, summary.SessionID, view.QuestionID, correct[view.QuestionID])
		if err != nil {
			t.Fatalf("submit %s: %v", view.QuestionID, err)
		}
		if !outcome.Correct {
			t.Fatalf("expected correct verdict for %s, got %+v", view.QuestionID, outcome)
		}
		score = outcome.NewScore
	}
	if score != 2 {
		t.Fatalf("expected score 2, got %d", score)
	}

	ack, err := engine.EndSession(ctx, credential, summary.SessionID)
	if err != nil {
		t.Fatalf("end session: %v", err)
	}
	if ack.Score != 2 {
		t.Fatalf("expected final score 2, got %d", ack.Score)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "trivia", "POSTGRES_PASSWORD": "triviapass", "POSTGRES_DB": "triviadb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://trivia:triviapass@%s:%s/triviadb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuestions(t *testing.T, ctx context.Context, dsn string) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	rows := []struct {
		id      string
		prompt  string
		choices string
		correct int
	}{
		{"q1", "What is 2 + 2?", `["3","4"]`, 1},
		{"q2", "What is the capital of France?", `["Paris","Lyon"]`, 0},
	}
	for _, row := range rows {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO questions (id, prompt, choices, active) VALUES (?, ?, ?::jsonb, TRUE) ON CONFLICT (id) DO NOTHING`,
			row.id, row.prompt, row.choices,
		); err != nil {
			t.Fatalf("insert question %s: %v", row.id, err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO answer_keys (question_id, correct_index) VALUES (?, ?) ON CONFLICT (question_id) DO NOTHING`,
			row.id, row.correct,
		); err != nil {
			t.Fatalf("insert answer key %s: %v", row.id, err)
		}
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
