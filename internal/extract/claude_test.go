package extract

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/roomscout/collector-cli/internal/model"
	"github.com/roomscout/collector-cli/pkg/anthropic"
)

func modelResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
	}
}

func newClaudeForTest(client anthropic.Client) *ClaudeExtractor {
	return NewClaudeExtractor(client, NewGate(2), ClaudeConfig{
		Model:          "claude-haiku-4-5-20251001",
		RoomsPerPrompt: 5,
	})
}

func TestClaude_ExtractDerivedFields(t *testing.T) {
	mc := new(anthropic.MockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(modelResponse(
		`{"7001": {"clean_name": "블랙룸", "day_type": "weekday", "max_capacity": 8,
		  "recommend_capacity": {"min": 4, "max": 6}, "base_capacity": null,
		  "extra_charge": 3000, "requires_call_on_sameday": false}}`), nil)

	ex := newClaudeForTest(mc)
	results, err := ex.Extract(context.Background(), []RawRoom{
		{BizItemID: "7001", Name: "[평일] 블랙룸", Desc: "최대 8명, 4~6인 권장, 인당 3000원"},
	})
	require.NoError(t, err)

	fields, ok := results["7001"]
	require.True(t, ok)
	assert.Equal(t, "블랙룸", fields.CleanName)
	assert.Equal(t, "weekday", fields.DayType)
	assert.Equal(t, 8, fields.MaxCapacity.Value)
	assert.True(t, fields.MaxCapacity.IsDerived())
	assert.Equal(t, model.CapacityRange{Min: 4, Max: 6}, fields.RecommendCapacity.Value)
	assert.Nil(t, fields.BaseCapacity.Value)
	assert.False(t, fields.BaseCapacity.IsDerived())
	require.NotNil(t, fields.ExtraCharge.Value)
	assert.Equal(t, 3000, *fields.ExtraCharge.Value)
	assert.True(t, fields.RequiresCallOnSameday.IsDerived())
	assert.False(t, fields.RequiresCallOnSameday.Value)
}

func TestClaude_NullsStayDefault(t *testing.T) {
	mc := new(anthropic.MockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(modelResponse(
		`{"7001": {"clean_name": "룸A", "day_type": null, "max_capacity": null,
		  "recommend_capacity": null, "base_capacity": null, "extra_charge": null,
		  "requires_call_on_sameday": false}}`), nil)

	ex := newClaudeForTest(mc)
	results, err := ex.Extract(context.Background(), []RawRoom{{BizItemID: "7001", Name: "룸A"}})
	require.NoError(t, err)

	fields := results["7001"]
	assert.Equal(t, model.DefaultMaxCapacity, fields.MaxCapacity.Value)
	assert.False(t, fields.MaxCapacity.IsDerived())
	assert.False(t, fields.RecommendCapacity.IsDerived())
}

func TestClaude_StripsMarkdownFence(t *testing.T) {
	mc := new(anthropic.MockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(modelResponse(
		"```json\n{\"7001\": {\"clean_name\": \"룸A\", \"max_capacity\": 6, \"requires_call_on_sameday\": false}}\n```"), nil)

	ex := newClaudeForTest(mc)
	results, err := ex.Extract(context.Background(), []RawRoom{{BizItemID: "7001", Name: "룸A"}})
	require.NoError(t, err)
	assert.Equal(t, 6, results["7001"].MaxCapacity.Value)
}

func TestClaude_ImplausibleValueDropsRoom(t *testing.T) {
	mc := new(anthropic.MockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(modelResponse(
		`{"7001": {"clean_name": "룸A", "max_capacity": 9999, "requires_call_on_sameday": false}}`), nil)

	ex := newClaudeForTest(mc)
	results, err := ex.Extract(context.Background(), []RawRoom{{BizItemID: "7001", Name: "룸A"}})
	require.NoError(t, err)

	// The room is absent so the dispatcher can route it to the fallback.
	_, ok := results["7001"]
	assert.False(t, ok)
}

func TestClaude_UndecodableResponseIsError(t *testing.T) {
	mc := new(anthropic.MockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(modelResponse("I cannot help with that."), nil)

	ex := newClaudeForTest(mc)
	_, err := ex.Extract(context.Background(), []RawRoom{{BizItemID: "7001", Name: "룸A"}})
	assert.Error(t, err)
}

func TestClaude_APIErrorPropagates(t *testing.T) {
	mc := new(anthropic.MockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded"))

	ex := newClaudeForTest(mc)
	_, err := ex.Extract(context.Background(), []RawRoom{{BizItemID: "7001", Name: "룸A"}})
	assert.Error(t, err)
}

func TestClaude_GroupsRoomsPerPrompt(t *testing.T) {
	mc := new(anthropic.MockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(modelResponse(`{}`), nil)

	ex := NewClaudeExtractor(mc, NewGate(2), ClaudeConfig{
		Model:          "claude-haiku-4-5-20251001",
		RoomsPerPrompt: 2,
	})

	rooms := []RawRoom{
		{BizItemID: "1"}, {BizItemID: "2"}, {BizItemID: "3"},
		{BizItemID: "4"}, {BizItemID: "5"},
	}
	_, err := ex.Extract(context.Background(), rooms)
	require.NoError(t, err)

	// 5 rooms at 2 per prompt means 3 calls.
	mc.AssertNumberOfCalls(t, "CreateMessage", 3)
}

// slowModelClient tracks peak in-flight CreateMessage calls to observe the
// gate ceiling.
type slowModelClient struct {
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *slowModelClient) CreateMessage(ctx context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		old := s.peak.Load()
		if cur <= old || s.peak.CompareAndSwap(old, cur) {
			break
		}
	}
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return modelResponse(`{}`), nil
}

func TestClaude_GateBoundsConcurrentModelCalls(t *testing.T) {
	client := &slowModelClient{delay: 20 * time.Millisecond}
	ex := NewClaudeExtractor(client, NewGate(2), ClaudeConfig{
		Model:          "claude-haiku-4-5-20251001",
		RoomsPerPrompt: 1,
	})

	// Six concurrent extractions through a gate of two: never more than two
	// model calls in flight.
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := ex.Extract(context.Background(), []RawRoom{{BizItemID: id, Name: "룸" + id}})
			assert.NoError(t, err)
		}(strconv.Itoa(i))
	}
	wg.Wait()

	assert.LessOrEqual(t, client.peak.Load(), int32(2))
	assert.Zero(t, client.inFlight.Load())
}

func TestClaude_GateCancellation(t *testing.T) {
	gate := NewGate(1)
	require.NoError(t, gate.Acquire(context.Background()))
	defer gate.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mc := new(anthropic.MockClient)
	ex := NewClaudeExtractor(mc, gate, ClaudeConfig{Model: "m"})
	_, err := ex.Extract(ctx, []RawRoom{{BizItemID: "7001", Name: "룸A"}})
	assert.Error(t, err)
	mc.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
}
