package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/roomscout/collector-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS branches (
	business_id  TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	lat          REAL,
	lng          REAL,
	phone_number TEXT NOT NULL DEFAULT '',
	standby_days INTEGER NOT NULL DEFAULT 0,
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
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
	can_reserve_one_hour     INTEGER NOT NULL DEFAULT 0,
	requires_call_on_sameday INTEGER NOT NULL DEFAULT 0,
	image_urls               TEXT,
	updated_at               DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (business_id, biz_item_id)
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	mode       TEXT NOT NULL,
	target     TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'pending',
	report     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_rooms_business_id ON rooms(business_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_mode ON runs(mode);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetBranch(ctx context.Context, businessID string) (*model.BranchRecord, error) {
	var b model.BranchRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT business_id, name, display_name, lat, lng, phone_number, standby_days FROM branches WHERE business_id = ?`,
		businessID,
	).Scan(&b.BusinessID, &b.Name, &b.DisplayName, &b.Lat, &b.Lng, &b.PhoneNumber, &b.StandbyDays)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get branch %s", businessID)
	}
	return &b, nil
}

func (s *SQLiteStore) UpsertBranch(ctx context.Context, branch model.BranchRecord) error {
	if branch.BusinessID == "" {
		return eris.New("sqlite: branch missing business_id")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO branches (business_id, name, display_name, lat, lng, phone_number, standby_days, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (business_id) DO UPDATE SET
		   name = excluded.name, display_name = excluded.display_name,
		   lat = excluded.lat, lng = excluded.lng,
		   phone_number = excluded.phone_number, standby_days = excluded.standby_days,
		   updated_at = excluded.updated_at`,
		branch.BusinessID, branch.Name, branch.DisplayName, branch.Lat, branch.Lng,
		branch.PhoneNumber, branch.StandbyDays, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert branch %s", branch.BusinessID)
}

const sqliteRoomColumns = `business_id, biz_item_id, name, max_capacity, recommend_min, recommend_max,
	base_capacity, extra_charge, price_per_hour, can_reserve_one_hour, requires_call_on_sameday, image_urls`

func (s *SQLiteStore) GetRoom(ctx context.Context, key model.VenueKey) (*model.RoomRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRoomColumns+` FROM rooms WHERE business_id = ? AND biz_item_id = ?`,
		key.BusinessID, key.BizItemID,
	)
	r, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get room %s", key)
	}
	return r, nil
}

func (s *SQLiteStore) ListRoomsByBusiness(ctx context.Context, businessID string) ([]model.RoomRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteRoomColumns+` FROM rooms WHERE business_id = ? ORDER BY biz_item_id`,
		businessID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list rooms for %s", businessID)
	}
	defer rows.Close()

	var out []model.RoomRecord
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan room")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list rooms iterate")
}

func (s *SQLiteStore) UpsertRooms(ctx context.Context, rooms []model.RoomRecord) (int, error) {
	if len(rooms) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert rooms: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rooms (`+sqliteRoomColumns+`, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (business_id, biz_item_id) DO UPDATE SET
		   name = excluded.name,
		   max_capacity = excluded.max_capacity,
		   recommend_min = excluded.recommend_min,
		   recommend_max = excluded.recommend_max,
		   base_capacity = excluded.base_capacity,
		   extra_charge = excluded.extra_charge,
		   price_per_hour = excluded.price_per_hour,
		   can_reserve_one_hour = excluded.can_reserve_one_hour,
		   requires_call_on_sameday = excluded.requires_call_on_sameday,
		   image_urls = excluded.image_urls,
		   updated_at = excluded.updated_at`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert rooms: prepare")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	count := 0
	for i := range rooms {
		r := &rooms[i]
		if err := r.Validate(); err != nil {
			return 0, eris.Wrap(err, "sqlite: upsert rooms")
		}
		imageJSON, err := json.Marshal(r.ImageURLs)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal image urls for %s", r.Key)
		}
		if _, err := stmt.ExecContext(ctx,
			r.Key.BusinessID, r.Key.BizItemID, r.Name,
			r.MaxCapacity, r.RecommendCapacity.Min, r.RecommendCapacity.Max,
			r.BaseCapacity, r.ExtraCharge, r.PricePerHour,
			r.CanReserveOneHour, r.RequiresCallOnSameday,
			string(imageJSON), now,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert room %s", r.Key)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert rooms: commit tx")
	}
	return count, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, mode model.RunMode, target string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, mode, target, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(mode), target, string(model.RunStatusPending), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) UpdateRunReport(ctx context.Context, runID string, report *model.RunReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET report = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(reportJSON), string(report.Status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run report %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, mode, target, status, report, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, mode, target, status, report, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Mode != "" {
		query += ` AND mode = ?`
		args = append(args, string(filter.Mode))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// scanner abstracts sql.Row and sql.Rows for the scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(sc scanner) (*model.RoomRecord, error) {
	var r model.RoomRecord
	var imageJSON sql.NullString

	if err := sc.Scan(&r.Key.BusinessID, &r.Key.BizItemID, &r.Name,
		&r.MaxCapacity, &r.RecommendCapacity.Min, &r.RecommendCapacity.Max,
		&r.BaseCapacity, &r.ExtraCharge, &r.PricePerHour,
		&r.CanReserveOneHour, &r.RequiresCallOnSameday, &imageJSON); err != nil {
		return nil, err
	}
	if imageJSON.Valid && imageJSON.String != "" && imageJSON.String != "null" {
		if err := json.Unmarshal([]byte(imageJSON.String), &r.ImageURLs); err != nil {
			return nil, eris.Wrapf(err, "unmarshal image urls for %s", r.Key)
		}
	}
	return &r, nil
}

func scanRun(sc scanner) (*model.Run, error) {
	var r model.Run
	var mode, status string
	var reportJSON sql.NullString

	if err := sc.Scan(&r.ID, &mode, &r.Target, &status, &reportJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Mode = model.RunMode(mode)
	r.Status = model.RunStatus(status)
	if reportJSON.Valid && reportJSON.String != "" {
		r.Report = &model.RunReport{}
		if err := json.Unmarshal([]byte(reportJSON.String), r.Report); err != nil {
			return nil, eris.Wrap(err, "unmarshal report")
		}
	}
	return &r, nil
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", kind, id)
	}
	return nil
}
