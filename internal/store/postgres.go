package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/roomscout/collector-cli/internal/db"
	"github.com/roomscout/collector-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_branch":        `SELECT business_id, name, display_name, lat, lng, phone_number, standby_days FROM branches WHERE business_id = $1`,
	"upsert_branch":     `INSERT INTO branches (business_id, name, display_name, lat, lng, phone_number, standby_days, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (business_id) DO UPDATE SET name = $2, display_name = $3, lat = $4, lng = $5, phone_number = $6, standby_days = $7, updated_at = $8`,
	"get_room":          `SELECT business_id, biz_item_id, name, max_capacity, recommend_min, recommend_max, base_capacity, extra_charge, price_per_hour, can_reserve_one_hour, requires_call_on_sameday, image_urls FROM rooms WHERE business_id = $1 AND biz_item_id = $2`,
	"insert_run":        `INSERT INTO runs (id, mode, target, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"update_run_report": `UPDATE runs SET report = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"get_run":           `SELECT id, mode, target, status, report, created_at, updated_at FROM runs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// newPostgresWithPool wires an existing pool, used by tests.
func newPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS branches (
	business_id  TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	lat          DOUBLE PRECISION,
	lng          DOUBLE PRECISION,
	phone_number TEXT NOT NULL DEFAULT '',
	standby_days INTEGER NOT NULL DEFAULT 0,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rooms (
	business_id              TEXT NOT NULL,
	biz_item_id              TEXT NOT NULL,
	name                     TEXT NOT NULL,
	max_capacity             INTEGER NOT NULL DEFAULT 1,
	recommend_min            INTEGER NOT NULL DEFAULT 1,
	recommend_max            INTEGER NOT NULL DEFAULT 1,
	base_capacity            INTEGER,
	extra_charge             INTEGER,
	price_per_hour           INTEGER NOT NULL DEFAULT 0,
	can_reserve_one_hour     BOOLEAN NOT NULL DEFAULT false,
	requires_call_on_sameday BOOLEAN NOT NULL DEFAULT false,
	image_urls               JSONB,
	updated_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (business_id, biz_item_id)
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	mode       TEXT NOT NULL,
	target     TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'pending',
	report     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_rooms_business_id ON rooms(business_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_mode ON runs(mode);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`

// roomColumns is the COPY column order for bulk room upserts.
var roomColumns = []string{
	"business_id", "biz_item_id", "name",
	"max_capacity", "recommend_min", "recommend_max",
	"base_capacity", "extra_charge", "price_per_hour",
	"can_reserve_one_hour", "requires_call_on_sameday",
	"image_urls", "updated_at",
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetBranch(ctx context.Context, businessID string) (*model.BranchRecord, error) {
	var b model.BranchRecord
	err := s.pool.QueryRow(ctx,
		`SELECT business_id, name, display_name, lat, lng, phone_number, standby_days FROM branches WHERE business_id = $1`,
		businessID,
	).Scan(&b.BusinessID, &b.Name, &b.DisplayName, &b.Lat, &b.Lng, &b.PhoneNumber, &b.StandbyDays)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get branch %s", businessID)
	}
	return &b, nil
}

func (s *PostgresStore) UpsertBranch(ctx context.Context, branch model.BranchRecord) error {
	if branch.BusinessID == "" {
		return eris.New("postgres: branch missing business_id")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO branches (business_id, name, display_name, lat, lng, phone_number, standby_days, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (business_id) DO UPDATE SET
		   name = $2, display_name = $3, lat = $4, lng = $5, phone_number = $6, standby_days = $7, updated_at = $8`,
		branch.BusinessID, branch.Name, branch.DisplayName, branch.Lat, branch.Lng,
		branch.PhoneNumber, branch.StandbyDays, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert branch %s", branch.BusinessID)
}

func (s *PostgresStore) GetRoom(ctx context.Context, key model.VenueKey) (*model.RoomRecord, error) {
	var r model.RoomRecord
	var imageJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT business_id, biz_item_id, name, max_capacity, recommend_min, recommend_max,
		        base_capacity, extra_charge, price_per_hour, can_reserve_one_hour,
		        requires_call_on_sameday, image_urls
		 FROM rooms WHERE business_id = $1 AND biz_item_id = $2`,
		key.BusinessID, key.BizItemID,
	).Scan(&r.Key.BusinessID, &r.Key.BizItemID, &r.Name,
		&r.MaxCapacity, &r.RecommendCapacity.Min, &r.RecommendCapacity.Max,
		&r.BaseCapacity, &r.ExtraCharge, &r.PricePerHour,
		&r.CanReserveOneHour, &r.RequiresCallOnSameday, &imageJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get room %s", key)
	}
	if len(imageJSON) > 0 {
		if err := json.Unmarshal(imageJSON, &r.ImageURLs); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal image urls for %s", key)
		}
	}
	return &r, nil
}

func (s *PostgresStore) ListRoomsByBusiness(ctx context.Context, businessID string) ([]model.RoomRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT business_id, biz_item_id, name, max_capacity, recommend_min, recommend_max,
		        base_capacity, extra_charge, price_per_hour, can_reserve_one_hour,
		        requires_call_on_sameday, image_urls
		 FROM rooms WHERE business_id = $1 ORDER BY biz_item_id`,
		businessID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list rooms for %s", businessID)
	}
	defer rows.Close()

	var out []model.RoomRecord
	for rows.Next() {
		var r model.RoomRecord
		var imageJSON []byte
		if err := rows.Scan(&r.Key.BusinessID, &r.Key.BizItemID, &r.Name,
			&r.MaxCapacity, &r.RecommendCapacity.Min, &r.RecommendCapacity.Max,
			&r.BaseCapacity, &r.ExtraCharge, &r.PricePerHour,
			&r.CanReserveOneHour, &r.RequiresCallOnSameday, &imageJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan room")
		}
		if len(imageJSON) > 0 {
			if err := json.Unmarshal(imageJSON, &r.ImageURLs); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal image urls for %s", r.Key)
			}
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list rooms iterate")
}

func (s *PostgresStore) UpsertRooms(ctx context.Context, rooms []model.RoomRecord) (int, error) {
	if len(rooms) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	copyRows := make([][]any, 0, len(rooms))
	for i := range rooms {
		r := &rooms[i]
		if err := r.Validate(); err != nil {
			return 0, eris.Wrap(err, "postgres: upsert rooms")
		}
		imageJSON, err := json.Marshal(r.ImageURLs)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal image urls for %s", r.Key)
		}
		copyRows = append(copyRows, []any{
			r.Key.BusinessID, r.Key.BizItemID, r.Name,
			r.MaxCapacity, r.RecommendCapacity.Min, r.RecommendCapacity.Max,
			r.BaseCapacity, r.ExtraCharge, r.PricePerHour,
			r.CanReserveOneHour, r.RequiresCallOnSameday,
			imageJSON, now,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "rooms",
		Columns:      roomColumns,
		ConflictKeys: []string{"business_id", "biz_item_id"},
	}, copyRows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert rooms")
	}
	return int(n), nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, mode model.RunMode, target string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, mode, target, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, string(mode), target, string(model.RunStatusPending), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Mode:      mode,
		Target:    target,
		Status:    model.RunStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) UpdateRunReport(ctx context.Context, runID string, report *model.RunReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET report = $1, status = $2, updated_at = $3 WHERE id = $4`,
		reportJSON, string(report.Status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run report %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var reportJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, mode, target, status, report, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Mode, &r.Target, &r.Status, &reportJSON, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	if len(reportJSON) > 0 {
		r.Report = &model.RunReport{}
		if err := json.Unmarshal(reportJSON, r.Report); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal report")
		}
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, mode, target, status, report, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Mode != "" {
		query += fmt.Sprintf(` AND mode = $%d`, argIdx)
		args = append(args, string(filter.Mode))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var reportJSON []byte

		if err := rows.Scan(&r.ID, &r.Mode, &r.Target, &r.Status, &reportJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if len(reportJSON) > 0 {
			r.Report = &model.RunReport{}
			if err := json.Unmarshal(reportJSON, r.Report); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal report")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
