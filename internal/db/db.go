// Файл: internal/db/db.go
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/lib/pq" // PostgreSQL driver

	"energybot/internal/ledger"
)

// querier is the part of *sql.DB and *sql.Tx the queries need.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements the ledger operations on top of either the pool or a
// transaction.
type queries struct {
	q querier
}

// Store is the PostgreSQL ledger store.
type Store struct {
	queries
	db  *sql.DB
	log *slog.Logger
}

var _ ledger.Store = (*Store)(nil)

// Open подключается к базе данных и применяет схему.
// Open connects to the database and applies the schema.
func Open(ctx context.Context, databaseURL string, log *slog.Logger) (*Store, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL не установлена")
	}
	parsedURL, err := url.Parse(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DATABASE_URL: %w", err)
	}
	query := parsedURL.Query()
	if query.Get("sslmode") == "" {
		query.Set("sslmode", "disable")
	}
	parsedURL.RawQuery = query.Encode()

	sqlDB, err := sql.Open("postgres", parsedURL.String())
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных: %w", err)
	}

	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(20)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ошибка проверки соединения с базой данных: %w", err)
	}
	log.Info("database connected", "host", parsedURL.Hostname())

	s := &Store{queries: queries{q: sqlDB}, db: sqlDB, log: log.With("component", "db")}
	if err := s.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// Close закрывает соединение с базой данных.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn inside one transaction. Panics roll back and re-panic.
func (s *Store) InTx(ctx context.Context, fn func(tx ledger.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.ErrorContext(ctx, "rollback failed", "error", rbErr)
			}
		}
	}()

	if err = fn(queries{q: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    telegram_id BIGINT NOT NULL UNIQUE,
    username TEXT,
    first_name TEXT,
    last_name TEXT,
    name TEXT,
    birthday DATE,
    sex TEXT,
    email TEXT,
    balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    referred_by BIGINT REFERENCES users(id),
    segment TEXT NOT NULL DEFAULT 'lead',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    CHECK (referred_by IS NULL OR referred_by <> id)
);
CREATE TABLE IF NOT EXISTS payments (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    external_payment_id TEXT NOT NULL UNIQUE,
    amount BIGINT NOT NULL,
    rub_amount BIGINT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    completed_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS referral_bonuses (
    id BIGSERIAL PRIMARY KEY,
    ref_id BIGINT NOT NULL REFERENCES users(id),
    referred_user_id BIGINT NOT NULL REFERENCES users(id),
    bonus_type TEXT NOT NULL,
    amount BIGINT NOT NULL,
    deposit_rub_amount BIGINT NOT NULL DEFAULT 0,
    deposit_token_amount BIGINT NOT NULL DEFAULT 0,
    pay_id BIGINT REFERENCES payments(id),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS user_bonuses (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    bonus_name TEXT NOT NULL,
    amount BIGINT NOT NULL DEFAULT 0,
    deposited BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (user_id, bonus_name)
);
CREATE TABLE IF NOT EXISTS user_sources (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
    source TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS generation_history (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    generated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    model TEXT NOT NULL,
    request TEXT NOT NULL,
    cost BIGINT NOT NULL DEFAULT 0,
    gen_successful BOOLEAN NOT NULL,
    gen_type TEXT NOT NULL
);`

type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "referral_bonuses.pay_ref_unique",
		sql:  `CREATE UNIQUE INDEX IF NOT EXISTS referral_bonuses_pay_ref_key ON referral_bonuses (pay_id, ref_id);`,
	},
	{
		name: "payments.status_idx",
		sql:  `CREATE INDEX IF NOT EXISTS payments_status_idx ON payments (status) WHERE status = 'pending';`,
	},
	{
		name: "generation_history.user_idx",
		sql:  `CREATE INDEX IF NOT EXISTS generation_history_user_idx ON generation_history (user_id, generated_at);`,
	},
}

func (s *Store) migrate(ctx context.Context) error {
	err := s.InTx(ctx, func(tx ledger.Tx) error {
		q := tx.(queries)
		if _, err := q.q.ExecContext(ctx, createTablesSQL); err != nil {
			return fmt.Errorf("ошибка создания таблиц: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
			if strings.Contains(err.Error(), "already exists") {
				s.log.Info("migration skipped", "migration", m.name, "error", err)
				continue
			}
			return fmt.Errorf("ошибка миграции схемы ('%s'): %w", m.name, err)
		}
		s.log.Debug("migration applied", "migration", m.name)
	}
	s.log.Info("database schema is up to date")
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
