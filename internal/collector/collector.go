// Package collector runs the end-to-end collection pipeline: discover venues
// per region, fetch their booking detail, extract room attributes, reconcile
// against persisted records, and write the result. Failures are isolated at
// the venue level; a run always ends with a persisted report.
package collector

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roomscout/collector-cli/internal/config"
	"github.com/roomscout/collector-cli/internal/extract"
	"github.com/roomscout/collector-cli/internal/fetch"
	"github.com/roomscout/collector-cli/internal/model"
	"github.com/roomscout/collector-cli/internal/reconcile"
	"github.com/roomscout/collector-cli/internal/resilience"
	"github.com/roomscout/collector-cli/internal/store"
)

// Discoverer finds venue stubs for one region query.
type Discoverer interface {
	Discover(ctx context.Context, region string) ([]model.VenueStub, error)
}

// Fetcher loads the booking detail for one venue.
type Fetcher interface {
	Fetch(ctx context.Context, businessID string) (*fetch.VenueDetail, error)
}

// Extractor turns raw room text into tagged fields. It covers every input
// room; rooms it cannot read come back with default-tagged fields.
type Extractor interface {
	Extract(ctx context.Context, rooms []extract.RawRoom) map[string]model.ExtractedFields
}

// Params selects what one run collects.
type Params struct {
	Mode model.RunMode
	// Target is the region query for region-query mode or the business ID
	// for single-id mode. Unused in nationwide-auto mode.
	Target string
	// Regions is the region list for nationwide-auto mode.
	Regions []string
}

// Collector wires the pipeline stages together.
type Collector struct {
	store      store.Store
	discoverer Discoverer
	fetcher    Fetcher
	extractor  Extractor
	cfg        config.CollectConfig

	mu     sync.Mutex
	report *model.RunReport
	seen   map[string]bool
}

// New builds a Collector. Concurrency bounds below 1 are raised to 1.
func New(st store.Store, d Discoverer, f Fetcher, e Extractor, cfg config.CollectConfig) *Collector {
	if cfg.MaxConcurrentRegions < 1 {
		cfg.MaxConcurrentRegions = 1
	}
	if cfg.MaxConcurrentFetches < 1 {
		cfg.MaxConcurrentFetches = 1
	}
	return &Collector{
		store:      st,
		discoverer: d,
		fetcher:    f,
		extractor:  e,
		cfg:        cfg,
	}
}

// Run executes one collection run to completion or cancellation. The run row
// and its report are persisted even when ctx is cancelled mid-flight; the
// returned Run carries the final report.
func (c *Collector) Run(ctx context.Context, params Params) (*model.Run, error) {
	switch params.Mode {
	case model.ModeSingleID, model.ModeRegionQuery, model.ModeNationwideAuto:
	default:
		return nil, eris.Errorf("collector: unknown run mode %q", params.Mode)
	}

	run, err := c.store.CreateRun(ctx, params.Mode, params.Target)
	if err != nil {
		return nil, eris.Wrap(err, "collector: create run")
	}
	if err := c.store.UpdateRunStatus(ctx, run.ID, model.RunStatusCollecting); err != nil {
		return nil, eris.Wrap(err, "collector: mark collecting")
	}

	c.mu.Lock()
	c.report = model.NewRunReport()
	c.report.Status = model.RunStatusCollecting
	c.report.StartedAt = time.Now().UTC()
	c.seen = make(map[string]bool)
	c.mu.Unlock()

	zap.L().Info("collection run started",
		zap.String("run_id", run.ID),
		zap.String("mode", string(params.Mode)),
		zap.String("target", params.Target))

	switch params.Mode {
	case model.ModeSingleID:
		c.collectVenues(ctx, "", []model.VenueStub{{BusinessID: params.Target}})
	case model.ModeRegionQuery:
		c.collectRegions(ctx, []string{params.Target})
	case model.ModeNationwideAuto:
		c.collectRegions(ctx, params.Regions)
	}

	report := c.finalize(ctx)

	// The report must land even when the run context is gone.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.store.UpdateRunReport(persistCtx, run.ID, report); err != nil {
		return nil, eris.Wrap(err, "collector: persist report")
	}

	zap.L().Info("collection run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(report.Status)),
		zap.Int("venues_persisted", report.VenuesPersisted),
		zap.Int("venues_failed", report.VenuesFailed))

	run.Status = report.Status
	run.Report = report
	return run, nil
}

// collectRegions fans out over regions with the configured bound. A failed
// region records one failure and never disturbs the others.
func (c *Collector) collectRegions(ctx context.Context, regions []string) {
	c.mu.Lock()
	c.report.Regions = len(regions)
	c.mu.Unlock()

	g := &errgroup.Group{}
	g.SetLimit(c.cfg.MaxConcurrentRegions)
	for _, region := range regions {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			stubs, err := c.discoverer.Discover(ctx, region)
			if err != nil {
				zap.L().Warn("region discovery failed",
					zap.String("region", region), zap.Error(err))
				c.recordFailure(model.VenueFailure{
					Region: region,
					Stage:  model.StageDiscover,
					Reason: err.Error(),
				})
				return nil
			}
			c.collectVenues(ctx, region, stubs)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors
}

// collectVenues processes one region's venues with the fetch bound. Venues
// already handled by another region are skipped, counted once.
func (c *Collector) collectVenues(ctx context.Context, region string, stubs []model.VenueStub) {
	g := &errgroup.Group{}
	g.SetLimit(c.cfg.MaxConcurrentFetches)
	for _, stub := range stubs {
		if !c.claim(stub.BusinessID) {
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			c.processVenue(ctx, region, stub)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors
}

// claim marks a business as handled by this run, counting it as discovered.
// It returns false when another region already claimed it.
func (c *Collector) claim(businessID string) bool {
	if businessID == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen[businessID] {
		return false
	}
	c.seen[businessID] = true
	c.report.VenuesDiscovered++
	return true
}

// processVenue runs fetch, extract, reconcile, and persist for one venue.
// Every failure is absorbed into the report; nothing propagates.
func (c *Collector) processVenue(ctx context.Context, region string, stub model.VenueStub) {
	detail, err := c.fetcher.Fetch(ctx, stub.BusinessID)
	if err != nil {
		// A delisted venue is skipped, not failed: the listing is simply gone.
		if resilience.IsNotFound(err) {
			zap.L().Info("venue delisted, skipping",
				zap.String("business_id", stub.BusinessID),
				zap.String("region", region))
			c.mu.Lock()
			c.report.VenuesSkipped++
			c.mu.Unlock()
			return
		}
		c.recordFailure(model.VenueFailure{
			BusinessID: stub.BusinessID,
			Region:     region,
			Stage:      model.StageFetch,
			Reason:     err.Error(),
		})
		return
	}
	c.mu.Lock()
	c.report.VenuesFetched++
	c.mu.Unlock()

	if err := c.persistBranch(ctx, stub, detail.Branch); err != nil {
		c.recordFailure(model.VenueFailure{
			BusinessID: stub.BusinessID,
			Region:     region,
			Stage:      model.StagePersist,
			Reason:     err.Error(),
		})
		return
	}

	raw := make([]extract.RawRoom, 0, len(detail.Rooms))
	for _, room := range detail.Rooms {
		raw = append(raw, extract.RawRoom{
			BizItemID: room.BizItemID,
			Name:      room.Name,
			Desc:      room.Desc,
		})
	}
	fields := c.extractor.Extract(ctx, raw)

	c.mu.Lock()
	for _, f := range fields {
		c.report.RecordExtraction(f)
	}
	c.mu.Unlock()

	changed, err := c.reconcileRooms(ctx, detail, fields)
	if err != nil {
		c.recordFailure(model.VenueFailure{
			BusinessID: stub.BusinessID,
			Region:     region,
			Stage:      model.StageReconcile,
			Reason:     err.Error(),
		})
		return
	}

	// All-or-nothing: the venue's room rows land in one upsert.
	if _, err := c.store.UpsertRooms(ctx, changed); err != nil {
		c.recordFailure(model.VenueFailure{
			BusinessID: stub.BusinessID,
			Region:     region,
			Stage:      model.StagePersist,
			Reason:     err.Error(),
		})
		return
	}

	c.mu.Lock()
	c.report.VenuesPersisted++
	c.mu.Unlock()
}

// persistBranch merges the fresh branch against the persisted row, filling
// coordinates from the discovery stub when the booking detail lacks them.
func (c *Collector) persistBranch(ctx context.Context, stub model.VenueStub, fresh model.BranchRecord) error {
	if fresh.Lat == nil && stub.Lat != nil {
		fresh.Lat = stub.Lat
		fresh.Lng = stub.Lng
	}
	if fresh.DisplayName == "" {
		fresh.DisplayName = stub.DisplayName
	}

	persisted, err := c.store.GetBranch(ctx, fresh.BusinessID)
	if err != nil {
		return err
	}
	merged, changed := reconcile.Branch(persisted, fresh)
	if !changed {
		return nil
	}
	return c.store.UpsertBranch(ctx, merged)
}

// reconcileRooms merges every fetched room against its persisted record and
// returns only the rows that actually change.
func (c *Collector) reconcileRooms(ctx context.Context, detail *fetch.VenueDetail, fields map[string]model.ExtractedFields) ([]model.RoomRecord, error) {
	var changed []model.RoomRecord
	for _, room := range detail.Rooms {
		key := model.VenueKey{BusinessID: detail.Branch.BusinessID, BizItemID: room.BizItemID}
		extracted, ok := fields[room.BizItemID]
		if !ok {
			// The extractor covers every room; a hole here is a bug
			// upstream, not a reason to drop the venue.
			extracted = model.NewDefaultExtractedFields()
			extracted.CleanName = room.Name
		}

		persisted, err := c.store.GetRoom(ctx, key)
		if err != nil {
			return nil, err
		}
		record, dirty := reconcile.Room(persisted, reconcile.RoomInput{
			Key:               key,
			Extracted:         extracted,
			PricePerHour:      room.PricePerHour,
			CanReserveOneHour: room.CanReserveOneHour,
			ImageURLs:         room.ImageURLs,
		})
		if dirty {
			changed = append(changed, record)
		}
	}
	return changed, nil
}

func (c *Collector) recordFailure(f model.VenueFailure) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.RecordFailure(f)
}

// finalize stamps the terminal status: cancelled when the context died,
// failed when nothing was persisted but failures exist, complete otherwise.
func (c *Collector) finalize(ctx context.Context) *model.RunReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.report.FinishedAt = time.Now().UTC()
	switch {
	case ctx.Err() != nil:
		c.report.Status = model.RunStatusCancelled
	case c.report.VenuesPersisted == 0 && (c.report.VenuesFailed > 0 || c.report.RegionsFailed > 0):
		c.report.Status = model.RunStatusFailed
	default:
		c.report.Status = model.RunStatusComplete
	}
	return c.report
}
