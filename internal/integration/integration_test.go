package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"training-portal/internal/app"
	"training-portal/internal/docstore"
	"training-portal/internal/domain"
	"training-portal/internal/infra/postgres"
	infraredis "training-portal/internal/infra/redis"
)

type staticAccounts []domain.Account

func (a staticAccounts) Accounts(context.Context) ([]domain.Account, error) { return a, nil }

func TestRedisBackedPortal(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	redisURL, cleanup := startRedis(t, ctx)
	defer cleanup()
	client, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer client.Close()

	exercisePortal(t, ctx, infraredis.NewDocumentStore(client))
}

func TestPostgresBackedPortal(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, cleanup := startPostgres(t, ctx)
	defer cleanup()
	if err := postgres.Migrate(ctx, pgURL, zerolog.Nop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// A second run finds nothing to apply.
	if err := postgres.Migrate(ctx, pgURL, zerolog.Nop()); err != nil {
		t.Fatalf("migrate again: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	exercisePortal(t, ctx, postgres.NewDocumentStore(pool))
}

// exercisePortal runs the session lock and completion record flows against a real backend.
func exercisePortal(t *testing.T, ctx context.Context, docs docstore.Store) {
	t.Helper()
	log := zerolog.Nop()
	manager := app.NewSessionManager(staticAccounts{{ID: "acme", Password: "s3cret"}}, docs, app.SessionConfig{}, log)

	first, err := manager.Acquire(ctx, "acme", "s3cret")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	_, err = manager.Acquire(ctx, "acme", "s3cret")
	var conflict *domain.SessionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected session conflict, got %v", err)
	}

	status, err := manager.Heartbeat(ctx, first)
	if err != nil || status != app.HeartbeatRefreshed {
		t.Fatalf("expected refreshed heartbeat, got %s %v", status, err)
	}
	if err := manager.Release(ctx, first); err != nil {
		t.Fatalf("release: %v", err)
	}
	status, err = manager.Heartbeat(ctx, first)
	if err != nil || status != app.HeartbeatMissing {
		t.Fatalf("expected missing after release, got %s %v", status, err)
	}

	second, err := manager.Acquire(ctx, "acme", "s3cret")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if second.SessionID == first.SessionID {
		t.Fatalf("expected a fresh session token")
	}

	ann := docstore.Doc("company", "acme", "learners", "Ann")
	if err := docs.Set(ctx, ann, docstore.Fields{"department": "ops"}); err != nil {
		t.Fatalf("seed learner: %v", err)
	}

	engine := app.NewQuizEngine(nil, docs, log)
	if err := engine.SaveCompletion(ctx, "acme", "Ann", app.RunResult{Score: 3, TotalQuestions: 4, Mode: domain.ModePractice}); err != nil {
		t.Fatalf("save Ann: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := engine.SaveCompletion(ctx, "acme", "Bob", app.RunResult{Score: 50, TotalQuestions: 50, Mode: domain.ModeTest}); err != nil {
		t.Fatalf("save Bob: %v", err)
	}
	if err := engine.SaveCompletion(ctx, "globex", "Cy", app.RunResult{Score: 1, TotalQuestions: 1, Mode: domain.ModePractice}); err != nil {
		t.Fatalf("save other company: %v", err)
	}

	doc, err := docs.Get(ctx, ann)
	if err != nil {
		t.Fatalf("get Ann: %v", err)
	}
	if doc.Data["department"] != "ops" {
		t.Fatalf("merge dropped existing fields: %+v", doc.Data)
	}

	records, err := app.NewDashboard(docs, log).Learners(ctx, "acme")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if len(records) != 2 || records[0].LearnerKey != "Bob" || records[1].LearnerKey != "Ann" {
		t.Fatalf("expected Bob then Ann, got %+v", records)
	}
	if records[0].Tier() != domain.TierPerfect || records[1].Tier() != domain.TierPassing {
		t.Fatalf("unexpected tiers %s %s", records[0].Tier(), records[1].Tier())
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "portal", "POSTGRES_PASSWORD": "portalpass", "POSTGRES_DB": "portal"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
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
	dsn := fmt.Sprintf("postgres://portal:portalpass@%s:%s/portal?sslmode=disable", host, port.Port())
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

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
