package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/roomscout/collector-cli/internal/config"
	"github.com/roomscout/collector-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Mode   model.RunMode   `json:"mode,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the collection pipeline.
type Store interface {
	// Branches
	GetBranch(ctx context.Context, businessID string) (*model.BranchRecord, error)
	UpsertBranch(ctx context.Context, branch model.BranchRecord) error

	// Rooms
	GetRoom(ctx context.Context, key model.VenueKey) (*model.RoomRecord, error)
	ListRoomsByBusiness(ctx context.Context, businessID string) ([]model.RoomRecord, error)
	UpsertRooms(ctx context.Context, rooms []model.RoomRecord) (int, error)

	// Runs
	CreateRun(ctx context.Context, mode model.RunMode, target string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunReport(ctx context.Context, runID string, report *model.RunReport) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the store named by the config driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, nil)
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
