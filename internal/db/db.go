// Package db owns the process's database connections: Postgres for the
// durable stores and an optional Redis for presence.
package db

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

type DB struct {
	Postgres *sql.DB
	Redis    *redis.Client
}

// New connects to Postgres (required) and Redis (optional). A Redis that
// cannot be reached is logged and left nil; callers must tolerate that.
func New(postgresURL, redisURL, redisPassword string) (*DB, error) {
	if postgresURL == "" {
		return nil, fmt.Errorf("postgres URL is required")
	}

	pg, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	pg.SetMaxOpenConns(25)
	pg.SetMaxIdleConns(5)
	pg.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pg.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	log.Println("[DB] PostgreSQL connection established")

	rdb := dialRedis(ctx, redisURL, redisPassword)

	return &DB{
		Postgres: pg,
		Redis:    rdb,
	}, nil
}

// dialRedis supports both "host:port" and "redis://..." URL formats.
func dialRedis(ctx context.Context, redisURL, password string) *redis.Client {
	if redisURL == "" {
		return nil
	}

	opts := &redis.Options{
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		DB:           0,
	}

	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		parsedURL, err := url.Parse(redisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v (continuing without Redis)", err)
			return nil
		}
		opts.Addr = parsedURL.Host
		if parsedURL.User != nil {
			opts.Username = parsedURL.User.Username()
			if pw, ok := parsedURL.User.Password(); ok {
				opts.Password = pw
			}
		}
		if parsedURL.Scheme == "rediss" {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	} else {
		opts.Addr = redisURL
		opts.Password = password
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v (continuing without Redis)", err)
		return nil
	}

	log.Println("[DB] Redis connection established")
	return rdb
}

// Close closes all database connections.
func (db *DB) Close() error {
	var errs []error

	if db.Postgres != nil {
		if err := db.Postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close error: %w", err))
		}
	}

	if db.Redis != nil {
		if err := db.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing databases: %v", errs)
	}

	return nil
}

// RunMigrations executes SQL migration files in order.
func (db *DB) RunMigrations(migrationsPath string) error {
	log.Println("[DB] Running migrations...")

	_, err := db.Postgres.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(migrationsPath, "*.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	sort.Strings(files) // Ensure migrations run in order

	for _, file := range files {
		version := filepath.Base(file)

		var exists bool
		err := db.Postgres.QueryRow(
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}

		if exists {
			continue
		}

		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", version, err)
		}

		tx, err := db.Postgres.Begin()
		if err != nil {
			return fmt.Errorf("failed to start transaction for migration %s: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %s: %w", version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version) VALUES ($1)",
			version,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", version, err)
		}

		log.Printf("[DB] Applied migration: %s", version)
	}

	return nil
}

// Health checks database health. Redis being down is logged, not fatal.
func (db *DB) Health(ctx context.Context) error {
	if err := db.Postgres.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}

	if db.Redis != nil {
		if err := db.Redis.Ping(ctx).Err(); err != nil {
			log.Printf("[WARN] Redis health check failed: %v", err)
		}
	}

	return nil
}
