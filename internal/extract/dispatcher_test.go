package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomscout/collector-cli/internal/model"
	"github.com/roomscout/collector-cli/internal/resilience"
)

// stubExtractor is a canned primary for dispatcher tests.
type stubExtractor struct {
	results map[string]model.ExtractedFields
	err     error
	calls   int
}

func (s *stubExtractor) Name() string { return "stub" }

func (s *stubExtractor) Extract(_ context.Context, _ []RawRoom) (map[string]model.ExtractedFields, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func TestDispatcher_PrimarySuccess(t *testing.T) {
	primary := &stubExtractor{results: map[string]model.ExtractedFields{
		"7001": {CleanName: "블랙룸", MaxCapacity: model.Derived(8)},
	}}
	d := NewDispatcher(primary)

	results := d.Extract(context.Background(), []RawRoom{{BizItemID: "7001", Name: "블랙룸"}})
	require.Len(t, results, 1)
	assert.Equal(t, 8, results["7001"].MaxCapacity.Value)
	assert.Equal(t, 1, primary.calls)
}

func TestDispatcher_PrimaryFailureFallsBack(t *testing.T) {
	primary := &stubExtractor{err: resilience.NewRateLimitedError(errors.New("429"), 0)}
	d := NewDispatcher(primary)

	results := d.Extract(context.Background(), []RawRoom{
		{BizItemID: "7001", Name: "룸A", Desc: "최대 6인"},
	})

	// Fallback covered the room with a real pattern match.
	require.Len(t, results, 1)
	assert.Equal(t, 6, results["7001"].MaxCapacity.Value)
	assert.True(t, results["7001"].MaxCapacity.IsDerived())
}

func TestDispatcher_PartialPrimaryCoverage(t *testing.T) {
	// Primary covered 7001 but dropped 7002; only 7002 goes to the fallback.
	primary := &stubExtractor{results: map[string]model.ExtractedFields{
		"7001": {CleanName: "룸A", MaxCapacity: model.Derived(8)},
	}}
	d := NewDispatcher(primary)

	results := d.Extract(context.Background(), []RawRoom{
		{BizItemID: "7001", Name: "룸A"},
		{BizItemID: "7002", Name: "룸B", Desc: "최대 4인"},
	})

	require.Len(t, results, 2)
	assert.Equal(t, 8, results["7001"].MaxCapacity.Value)
	assert.Equal(t, 4, results["7002"].MaxCapacity.Value)
}

func TestDispatcher_NilPrimaryUsesPatternOnly(t *testing.T) {
	d := NewDispatcher(nil)

	results := d.Extract(context.Background(), []RawRoom{
		{BizItemID: "7001", Name: "[평일] 룸A", Desc: "4~6인"},
	})
	require.Len(t, results, 1)
	assert.Equal(t, "룸A", results["7001"].CleanName)
	assert.Equal(t, model.CapacityRange{Min: 4, Max: 6}, results["7001"].RecommendCapacity.Value)
}

func TestDispatcher_EveryRoomCovered(t *testing.T) {
	// Even with a failing primary and pattern-less text, every input room
	// comes back (with defaults).
	primary := &stubExtractor{err: errors.New("boom")}
	d := NewDispatcher(primary)

	rooms := []RawRoom{
		{BizItemID: "1", Name: "a"},
		{BizItemID: "2", Name: "b"},
		{BizItemID: "3", Name: "c"},
	}
	results := d.Extract(context.Background(), rooms)
	assert.Len(t, results, len(rooms))
	for _, room := range rooms {
		fields, ok := results[room.BizItemID]
		require.True(t, ok)
		assert.Equal(t, model.DefaultMaxCapacity, fields.MaxCapacity.Value)
	}
}

func TestDispatcher_EmptyInput(t *testing.T) {
	d := NewDispatcher(&stubExtractor{})
	results := d.Extract(context.Background(), nil)
	assert.Empty(t, results)
}
