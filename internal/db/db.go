package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sethvargo/go-retry"

	"github.com/divyanshdhote/server-actions/internal/logger"
)

// DB wraps the pool so services depend on one project type.
type DB struct {
	*sql.DB
}

// Open connects to Postgres, retrying the initial ping while the database
// comes up.
func Open(ctx context.Context, dsn string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}

	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	backoff := retry.WithMaxRetries(10, retry.NewConstant(2*time.Second))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if err := sqlDB.PingContext(pingCtx); err != nil {
			logger.Warn("database ping failed, retrying", map[string]any{
				"attempt": attempt,
				"error":   err.Error(),
			})
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("db: ping after %d attempts: %w", attempt, err)
	}

	return &DB{DB: sqlDB}, nil
}
