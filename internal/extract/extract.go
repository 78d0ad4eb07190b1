// Package extract turns free-text room fragments into typed fields. Two
// strategies exist: a model-backed primary and a deterministic pattern
// fallback. A dispatcher selects between them per room.
package extract

import (
	"context"

	"go.uber.org/zap"

	"github.com/roomscout/collector-cli/internal/model"
)

// RawRoom carries the free-text fragments for one room, as returned by the
// detail fetch stage.
type RawRoom struct {
	BizItemID string
	Name      string
	Desc      string
}

// Extractor produces typed fields for a batch of rooms from one venue.
// Results are keyed by biz item ID; a room may be absent from the result when
// the strategy produced nothing usable for it.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, rooms []RawRoom) (map[string]model.ExtractedFields, error)
}

// Dispatcher runs the primary extractor and falls back to pattern matching
// for any room the primary failed to cover. The pattern path cannot fail, so
// Extract always returns a result for every input room.
type Dispatcher struct {
	primary  Extractor
	fallback *PatternExtractor
}

// NewDispatcher builds a dispatcher. primary may be nil, in which case every
// room goes straight to the pattern path.
func NewDispatcher(primary Extractor) *Dispatcher {
	return &Dispatcher{
		primary:  primary,
		fallback: NewPatternExtractor(),
	}
}

// Extract returns fields for every room in the input. Primary failures are
// logged and absorbed; they select the fallback, never abort the batch.
func (d *Dispatcher) Extract(ctx context.Context, rooms []RawRoom) map[string]model.ExtractedFields {
	if len(rooms) == 0 {
		return map[string]model.ExtractedFields{}
	}

	results := make(map[string]model.ExtractedFields, len(rooms))

	if d.primary != nil {
		primary, err := d.primary.Extract(ctx, rooms)
		if err != nil {
			zap.L().Warn("primary extraction failed, using pattern fallback",
				zap.String("extractor", d.primary.Name()),
				zap.Int("rooms", len(rooms)),
				zap.Error(err))
		} else {
			for id, fields := range primary {
				results[id] = fields
			}
		}
	}

	// Pattern-fallback any room the primary did not cover.
	var missing []RawRoom
	for _, room := range rooms {
		if _, ok := results[room.BizItemID]; !ok {
			missing = append(missing, room)
		}
	}
	if len(missing) > 0 {
		if d.primary != nil && len(missing) < len(rooms) {
			zap.L().Debug("pattern fallback for uncovered rooms", zap.Int("count", len(missing)))
		}
		fromPattern, _ := d.fallback.Extract(ctx, missing)
		for id, fields := range fromPattern {
			results[id] = fields
		}
	}

	return results
}

// clampCapacityInvariant raises max_capacity to cover the recommend range so
// the assembled record always satisfies max >= recommend.max.
func clampCapacityInvariant(e *model.ExtractedFields) {
	if e.MaxCapacity.Value < e.RecommendCapacity.Value.Max {
		e.MaxCapacity = model.Field[int]{
			Value:      e.RecommendCapacity.Value.Max,
			Provenance: e.RecommendCapacity.Provenance,
		}
	}
}

// Plausibility bounds for extracted values. Rehearsal rooms realistically
// hold 1-50 people and surcharge at most 50,000 KRW per person; anything
// outside is treated as an extraction error.
const (
	minPlausibleCapacity = 1
	maxPlausibleCapacity = 50
	maxPlausibleCharge   = 50000
)

func plausibleCapacity(n int) bool {
	return n >= minPlausibleCapacity && n <= maxPlausibleCapacity
}

func plausibleCharge(n int) bool {
	return n >= 0 && n <= maxPlausibleCharge
}
