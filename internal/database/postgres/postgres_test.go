//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/facecam/internal/activity"
	"github.com/kozaktomas/facecam/internal/config"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := Open(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to open database: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func TestMigrate(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	// A second run finds nothing pending.
	if err := pool.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() second run: %v", err)
	}

	versions, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("MigrationsApplied() error: %v", err)
	}
	if len(versions) != 1 || versions[0] != "001_activity_log.sql" {
		t.Errorf("MigrationsApplied() = %v, want [001_activity_log.sql]", versions)
	}
}

func TestActivityRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewActivityRepository(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	old := activity.Entry{ID: uuid.New(), Timestamp: now.AddDate(0, 0, -40), Event: activity.EventStartup}
	recent := activity.Entry{
		ID:                 uuid.New(),
		Timestamp:          now,
		Event:              activity.EventCollectionStarted,
		IsCollecting:       true,
		CurrentPerson:      "Иван",
		PeopleCount:        2,
		PeopleNames:        []string{"Иван", "Петр"},
		FaceCascadeLoaded:  true,
		RequireEyesForFace: true,
	}

	t.Run("Append", func(t *testing.T) {
		for _, e := range []activity.Entry{old, recent, recent} {
			if err := repo.Append(ctx, e); err != nil {
				t.Fatalf("Append() error: %v", err)
			}
		}

		entries, err := repo.Recent(ctx, 10)
		if err != nil {
			t.Fatalf("Recent() error: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("Recent() returned %d entries, want 2", len(entries))
		}
		got := entries[0]
		if got.ID != recent.ID {
			t.Errorf("Recent()[0].ID = %v, want %v", got.ID, recent.ID)
		}
		if got.CurrentPerson != "Иван" {
			t.Errorf("CurrentPerson = %q, want Иван", got.CurrentPerson)
		}
		if len(got.PeopleNames) != 2 || got.PeopleNames[1] != "Петр" {
			t.Errorf("PeopleNames = %v", got.PeopleNames)
		}
		if !got.Timestamp.Equal(recent.Timestamp) {
			t.Errorf("Timestamp = %v, want %v", got.Timestamp, recent.Timestamp)
		}
	})

	t.Run("Cleanup", func(t *testing.T) {
		removed, err := repo.Cleanup(ctx, activity.Retention(now, 30))
		if err != nil {
			t.Fatalf("Cleanup() error: %v", err)
		}
		if removed != 1 {
			t.Errorf("Cleanup() removed %d, want 1", removed)
		}

		entries, err := repo.Recent(ctx, 10)
		if err != nil {
			t.Fatalf("Recent() error: %v", err)
		}
		if len(entries) != 1 {
			t.Errorf("Recent() returned %d entries after cleanup, want 1", len(entries))
		}
	})
}
