package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/stratoserve/catalog-cache/internal/model"
)

// schema is applied at startup. The composite unique index is what enforces
// the one-row-per-(tenant, record number) invariant; the write path relies
// on it to absorb concurrent first-time upserts.
const schema = `
CREATE TABLE IF NOT EXISTS records (
	id            BIGSERIAL PRIMARY KEY,
	tenant_id     BIGINT        NOT NULL,
	record_number BIGINT        NOT NULL,
	name          VARCHAR(255)  NOT NULL,
	price         NUMERIC(18,2) NOT NULL,
	created_at    TIMESTAMPTZ   NOT NULL,
	updated_at    TIMESTAMPTZ   NOT NULL,
	CONSTRAINT records_tenant_record_key UNIQUE (tenant_id, record_number)
)`

// PostgresRecordStore implements RecordStore for PostgreSQL
type PostgresRecordStore struct {
	pool         *pgxpool.Pool
	logger       *zap.Logger
	maxAttempts  int
	baseBackoff  time.Duration
	retryCounter prometheus.Counter
}

// NewPostgresRecordStore creates a new PostgreSQL record store
func NewPostgresRecordStore(
	host string,
	port int,
	database, user, password string,
	maxConns, minConns int,
	maxAttempts int,
	baseBackoff time.Duration,
	retryCounter prometheus.Counter,
	logger *zap.Logger,
) (*PostgresRecordStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
		host, port, database, user, password, maxConns, minConns,
	)

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRecordStore{
		pool:         pool,
		logger:       logger,
		maxAttempts:  maxAttempts,
		baseBackoff:  baseBackoff,
		retryCounter: retryCounter,
	}, nil
}

// EnsureSchema creates the records table if it does not exist
func (s *PostgresRecordStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// GetPool returns the underlying connection pool for shared use
func (s *PostgresRecordStore) GetPool() *pgxpool.Pool {
	return s.pool
}

// GetOne retrieves a single record by its business key. Returns ErrNotFound
// when no row exists.
func (s *PostgresRecordStore) GetOne(ctx context.Context, tenantID, recordNumber int64) (*model.Record, error) {
	var rec *model.Record

	err := s.runReadTx(ctx, func(tx pgx.Tx) error {
		query := `
			SELECT id, tenant_id, record_number, name, price, created_at, updated_at
			FROM records
			WHERE tenant_id = $1 AND record_number = $2
		`

		var r model.Record
		err := tx.QueryRow(ctx, query, tenantID, recordNumber).Scan(
			&r.ID,
			&r.TenantID,
			&r.RecordNumber,
			&r.Name,
			&r.Price,
			&r.CreatedAt,
			&r.UpdatedAt,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get record: %w", err)
		}

		rec = &r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// GetAll retrieves every record for a tenant, ordered by record number
// ascending.
func (s *PostgresRecordStore) GetAll(ctx context.Context, tenantID int64) ([]*model.Record, error) {
	var records []*model.Record

	err := s.runReadTx(ctx, func(tx pgx.Tx) error {
		query := `
			SELECT id, tenant_id, record_number, name, price, created_at, updated_at
			FROM records
			WHERE tenant_id = $1
			ORDER BY record_number ASC
		`

		rows, err := tx.Query(ctx, query, tenantID)
		if err != nil {
			return fmt.Errorf("failed to list records: %w", err)
		}
		defer rows.Close()

		records = make([]*model.Record, 0)
		for rows.Next() {
			var r model.Record
			if err := rows.Scan(
				&r.ID,
				&r.TenantID,
				&r.RecordNumber,
				&r.Name,
				&r.Price,
				&r.CreatedAt,
				&r.UpdatedAt,
			); err != nil {
				return fmt.Errorf("failed to scan record: %w", err)
			}
			records = append(records, &r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// Upsert inserts the record or merges it into the existing row for the same
// (tenant, record number) pair. On a merge, an empty name or negative price
// leaves the stored field unchanged. Conflicting concurrent writes are
// retried with a fresh transaction per attempt.
func (s *PostgresRecordStore) Upsert(ctx context.Context, rec *model.Record) (*model.Record, error) {
	var stored *model.Record

	err := retryWrite(ctx, s.maxAttempts, s.baseBackoff, s.retryCounter, s.logger, "upsert", func(ctx context.Context) error {
		return s.runWriteTx(ctx, func(tx pgx.Tx) error {
			var err error
			stored, err = s.upsertInTx(ctx, tx, rec)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	return stored, nil
}

func (s *PostgresRecordStore) upsertInTx(ctx context.Context, tx pgx.Tx, rec *model.Record) (*model.Record, error) {
	lookup := `
		SELECT id, name, price, created_at
		FROM records
		WHERE tenant_id = $1 AND record_number = $2
		FOR UPDATE
	`

	existing := model.Record{
		TenantID:     rec.TenantID,
		RecordNumber: rec.RecordNumber,
	}
	err := tx.QueryRow(ctx, lookup, rec.TenantID, rec.RecordNumber).Scan(
		&existing.ID,
		&existing.Name,
		&existing.Price,
		&existing.CreatedAt,
	)

	now := time.Now().UTC()

	if errors.Is(err, pgx.ErrNoRows) {
		insert := `
			INSERT INTO records (tenant_id, record_number, name, price, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
			RETURNING id
		`

		created := NewRecord(rec, now)
		if err := tx.QueryRow(ctx, insert, created.TenantID, created.RecordNumber, created.Name, created.Price, now).Scan(&created.ID); err != nil {
			return nil, fmt.Errorf("failed to insert record: %w", err)
		}
		return &created, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up record: %w", err)
	}

	merged := MergeRecord(existing, rec, now)

	update := `
		UPDATE records
		SET name = $2, price = $3, updated_at = $4
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, update, merged.ID, merged.Name, merged.Price, merged.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}

	return &merged, nil
}

// Delete removes the record for the given business key. Returns false when
// no such row exists; that is not an error.
func (s *PostgresRecordStore) Delete(ctx context.Context, tenantID, recordNumber int64) (bool, error) {
	deleted := false

	err := retryWrite(ctx, s.maxAttempts, s.baseBackoff, s.retryCounter, s.logger, "delete", func(ctx context.Context) error {
		return s.runWriteTx(ctx, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `DELETE FROM records WHERE tenant_id = $1 AND record_number = $2`, tenantID, recordNumber)
			if err != nil {
				return fmt.Errorf("failed to delete record: %w", err)
			}
			deleted = tag.RowsAffected() > 0
			return nil
		})
	})
	if err != nil {
		return false, err
	}

	return deleted, nil
}

// runWriteTx runs fn inside a REPEATABLE READ transaction and commits on
// success. The deferred rollback is a no-op after commit, so a failed fn
// never leaves partial state behind.
func (s *PostgresRecordStore) runWriteTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// runReadTx runs fn inside a read-only REPEATABLE READ transaction. Reads
// never retry.
func (s *PostgresRecordStore) runReadTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Ping checks the database connection
func (s *PostgresRecordStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresRecordStore) Close() {
	s.pool.Close()
}
