package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"smidi/billing/internal/domain"
	"smidi/billing/internal/store"
	"smidi/billing/internal/xid"
)

// ErrSchemaMissing is returned when the archive tables have not been created.
var ErrSchemaMissing = errors.New("archive schema missing, run migrate first")

const schema = `
CREATE TABLE IF NOT EXISTS archived_bills (
	id            TEXT PRIMARY KEY,
	bill_number   TEXT,
	employee_id   TEXT NOT NULL DEFAULT '',
	employee_name TEXT NOT NULL DEFAULT '',
	total_amount  NUMERIC(14,2) NOT NULL DEFAULT 0,
	final_amount  NUMERIC(14,2) NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL,
	document      JSONB NOT NULL,
	archived_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS archived_bills_created_at_idx ON archived_bills (created_at DESC);

CREATE TABLE IF NOT EXISTS mirror_runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	pages       INT NOT NULL,
	bills       INT NOT NULL
);
`

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the archive tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) UpsertBills(ctx context.Context, bills []domain.Bill) (int, error) {
	if err := store.ValidateBills(bills); err != nil {
		return 0, err
	}
	if len(bills) == 0 {
		return 0, nil
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = pgTx.Rollback() }()

	stmt, err := pgTx.PrepareContext(ctx, `
		INSERT INTO archived_bills (
			id, bill_number, employee_id, employee_name, total_amount, final_amount, created_at, document, archived_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		ON CONFLICT (id)
		DO UPDATE SET
			bill_number = EXCLUDED.bill_number,
			employee_id = EXCLUDED.employee_id,
			employee_name = EXCLUDED.employee_name,
			total_amount = EXCLUDED.total_amount,
			final_amount = EXCLUDED.final_amount,
			created_at = EXCLUDED.created_at,
			document = EXCLUDED.document,
			archived_at = now()
	`)
	if err != nil {
		return 0, wrapSchemaErr(err)
	}
	defer stmt.Close()

	for _, b := range bills {
		b.CreatedAt = b.CreatedAt.UTC()
		document, err := json.Marshal(b)
		if err != nil {
			return 0, fmt.Errorf("encode bill %s: %w", b.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			b.ID, nullIfEmpty(b.BillNumber), b.EmployeeID, b.EmployeeName,
			b.TotalAmount, b.FinalAmount, b.CreatedAt, document,
		); err != nil {
			return 0, wrapSchemaErr(err)
		}
	}

	if err := pgTx.Commit(); err != nil {
		return 0, err
	}
	return len(bills), nil
}

func (s *Store) ListBills(ctx context.Context, from time.Time, to time.Time) ([]domain.Bill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document
		FROM archived_bills
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id
	`, nullTime(from), nullTime(to))
	if err != nil {
		return nil, wrapSchemaErr(err)
	}
	defer rows.Close()

	bills := make([]domain.Bill, 0, 128)
	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, err
		}
		var b domain.Bill
		if err := json.Unmarshal(document, &b); err != nil {
			return nil, err
		}
		b.CreatedAt = b.CreatedAt.UTC()
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bills, nil
}

func (s *Store) GetBill(ctx context.Context, id string) (*domain.Bill, error) {
	var document []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT document
		FROM archived_bills
		WHERE id = $1
	`, id).Scan(&document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrapSchemaErr(err)
	}

	var b domain.Bill
	if err := json.Unmarshal(document, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archived_bills`).Scan(&count); err != nil {
		return 0, wrapSchemaErr(err)
	}
	return count, nil
}

func (s *Store) RecordMirrorRun(ctx context.Context, run store.MirrorRun) error {
	if run.ID == "" {
		run.ID = xid.New("mirror")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mirror_runs (id, started_at, finished_at, pages, bills)
		VALUES ($1,$2,$3,$4,$5)
	`, run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Pages, run.Bills)
	return wrapSchemaErr(err)
}

func (s *Store) LastMirrorRun(ctx context.Context) (*store.MirrorRun, error) {
	var run store.MirrorRun
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, pages, bills
		FROM mirror_runs
		ORDER BY finished_at DESC
		LIMIT 1
	`).Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Pages, &run.Bills)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrapSchemaErr(err)
	}
	run.StartedAt = run.StartedAt.UTC()
	run.FinishedAt = run.FinishedAt.UTC()
	return &run, nil
}

func wrapSchemaErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
		return fmt.Errorf("%w: %s", ErrSchemaMissing, pgErr.Message)
	}
	return err
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val.UTC()
}
