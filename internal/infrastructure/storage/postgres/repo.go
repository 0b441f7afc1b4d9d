package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"marksync/internal/application/port"
	"marksync/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS positions (
  id TEXT PRIMARY KEY,
  scope TEXT NOT NULL,
  market TEXT NOT NULL,
  symbol TEXT NOT NULL,
  current_price DOUBLE PRECISION,
  exit_price DOUBLE PRECISION,
  exit_date TIMESTAMPTZ,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_open ON positions(scope) WHERE exit_price IS NULL AND exit_date IS NULL;
`)
	return err
}

func (r *Repo) ListOpen(ctx context.Context, scope string) ([]model.Position, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, scope, market, symbol, current_price, exit_price, exit_date, created_at, updated_at
		FROM positions
		WHERE scope=$1 AND exit_price IS NULL AND exit_date IS NULL
		ORDER BY created_at
	`, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var pos model.Position
		var currentPrice, exitPrice sql.NullFloat64
		var exitDate sql.NullTime
		if err := rows.Scan(&pos.ID, &pos.Scope, &pos.Market, &pos.Symbol,
			&currentPrice, &exitPrice, &exitDate, &pos.CreatedAt, &pos.UpdatedAt); err != nil {
			return nil, err
		}
		if currentPrice.Valid {
			pos.CurrentPrice = &currentPrice.Float64
		}
		if exitPrice.Valid {
			pos.ExitPrice = &exitPrice.Float64
		}
		if exitDate.Valid {
			t := exitDate.Time
			pos.ExitDate = &t
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

func (r *Repo) UpdateCurrentPrice(ctx context.Context, id string, price float64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE positions SET current_price=$1, updated_at=$2 WHERE id=$3
	`, price, time.Now().UnixMilli(), id)
	return err
}

var _ port.PositionRepository = (*Repo)(nil)
