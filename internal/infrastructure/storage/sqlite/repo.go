package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"marksync/internal/application/port"
	"marksync/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) GetDB() *sql.DB {
	return r.db
}

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS positions (
  id TEXT PRIMARY KEY,
  scope TEXT NOT NULL,
  market TEXT NOT NULL,
  symbol TEXT NOT NULL,
  current_price REAL,
  exit_price REAL,
  exit_date INTEGER,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_scope ON positions(scope);
CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions(symbol);
CREATE INDEX IF NOT EXISTS idx_positions_open ON positions(scope, exit_price, exit_date);
`)
	return err
}

func (r *Repo) ListOpen(ctx context.Context, scope string) ([]model.Position, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, scope, market, symbol, current_price, exit_price, exit_date, created_at, updated_at
		FROM positions
		WHERE scope=? AND exit_price IS NULL AND exit_date IS NULL
		ORDER BY created_at
	`, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

func (r *Repo) UpdateCurrentPrice(ctx context.Context, id string, price float64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE positions SET current_price=?, updated_at=? WHERE id=?
	`, price, time.Now().UnixMilli(), id)
	return err
}

// Insert exists for tests and local seeding; position creation in
// production belongs to the external CRUD layer.
func (r *Repo) Insert(ctx context.Context, pos *model.Position) error {
	now := time.Now().UnixMilli()
	var exitDate any
	if pos.ExitDate != nil {
		exitDate = pos.ExitDate.UnixMilli()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO positions(id, scope, market, symbol, current_price, exit_price, exit_date, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, pos.ID, pos.Scope, pos.Market, pos.Symbol, pos.CurrentPrice, pos.ExitPrice, exitDate, now, now)
	return err
}

// Get fetches a single position by id, mostly for tests.
func (r *Repo) Get(ctx context.Context, id string) (*model.Position, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, scope, market, symbol, current_price, exit_price, exit_date, created_at, updated_at
		FROM positions WHERE id=?
	`, id)
	pos, err := scanPosition(row)
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (model.Position, error) {
	var pos model.Position
	var currentPrice, exitPrice sql.NullFloat64
	var exitDate sql.NullInt64

	err := row.Scan(&pos.ID, &pos.Scope, &pos.Market, &pos.Symbol,
		&currentPrice, &exitPrice, &exitDate, &pos.CreatedAt, &pos.UpdatedAt)
	if err != nil {
		return model.Position{}, err
	}
	if currentPrice.Valid {
		pos.CurrentPrice = &currentPrice.Float64
	}
	if exitPrice.Valid {
		pos.ExitPrice = &exitPrice.Float64
	}
	if exitDate.Valid {
		t := time.UnixMilli(exitDate.Int64)
		pos.ExitDate = &t
	}
	return pos, nil
}

var _ port.PositionRepository = (*Repo)(nil)
