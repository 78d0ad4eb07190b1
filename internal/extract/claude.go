package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/roomscout/collector-cli/internal/model"
	"github.com/roomscout/collector-cli/pkg/anthropic"
)

// extractionSystemPrompt is identical across all rooms and venues, so it is
// sent with a cache breakpoint and read from cache after the first request.
const extractionSystemPrompt = `You extract structured fields from Korean rehearsal-room listings.
For each room you receive an ID, a name, and a free-text description.
Respond with ONLY a JSON object keyed by room ID. No prose, no markdown.

Per room, emit:
- "clean_name": the name with tags like [평일], (주말) removed
- "day_type": "weekday" if tagged 평일, "weekend" if tagged 주말/공휴일, else null
- "max_capacity": maximum people (integer), or null if not stated
- "recommend_capacity": {"min": N, "max": M} for ranges like "4~6인"; for a
  single recommended count use min == max; null if not stated
- "base_capacity": base headcount the price covers (e.g. "기본 4인"), or null
- "extra_charge": per-person surcharge in won (e.g. "인당 3000원" -> 3000), or null
- "requires_call_on_sameday": true only if same-day booking requires a phone
  call (당일 plus 전화 or 문의), else false

Example input:
ID: 7001
Name: [평일] 블랙룸
Desc: 최대 8명, 4~6인 권장
---
Example output:
{"7001": {"clean_name": "블랙룸", "day_type": "weekday", "max_capacity": 8, "recommend_capacity": {"min": 4, "max": 6}, "base_capacity": null, "extra_charge": null, "requires_call_on_sameday": false}}

Use null for anything the text does not state. Never guess.`

// claudeRoom mirrors the JSON shape the model is asked to emit per room.
type claudeRoom struct {
	CleanName         string `json:"clean_name"`
	DayType           *string `json:"day_type"`
	MaxCapacity       *int    `json:"max_capacity"`
	RecommendCapacity *struct {
		Min int `json:"min"`
		Max int `json:"max"`
	} `json:"recommend_capacity"`
	BaseCapacity          *int `json:"base_capacity"`
	ExtraCharge           *int `json:"extra_charge"`
	RequiresCallOnSameday bool `json:"requires_call_on_sameday"`
}

// ClaudeExtractor is the model-backed primary strategy. Rooms are grouped
// into one prompt per batch to cut request count; the shared gate bounds
// concurrent model calls process-wide.
type ClaudeExtractor struct {
	client         anthropic.Client
	gate           *Gate
	model          string
	maxTokens      int64
	roomsPerPrompt int
}

// ClaudeConfig configures the model-backed extractor.
type ClaudeConfig struct {
	Model          string
	MaxTokens      int64
	RoomsPerPrompt int
}

// NewClaudeExtractor builds the primary extractor. gate must not be nil.
func NewClaudeExtractor(client anthropic.Client, gate *Gate, cfg ClaudeConfig) *ClaudeExtractor {
	if cfg.RoomsPerPrompt < 1 {
		cfg.RoomsPerPrompt = 5
	}
	if cfg.MaxTokens < 1 {
		cfg.MaxTokens = 2048
	}
	return &ClaudeExtractor{
		client:         client,
		gate:           gate,
		model:          cfg.Model,
		maxTokens:      cfg.MaxTokens,
		roomsPerPrompt: cfg.RoomsPerPrompt,
	}
}

func (c *ClaudeExtractor) Name() string { return "claude" }

// Extract runs one model call per group of rooms. A failed group fails the
// whole call; the dispatcher decides what to do with the rooms it covered.
func (c *ClaudeExtractor) Extract(ctx context.Context, rooms []RawRoom) (map[string]model.ExtractedFields, error) {
	results := make(map[string]model.ExtractedFields, len(rooms))

	for start := 0; start < len(rooms); start += c.roomsPerPrompt {
		end := start + c.roomsPerPrompt
		if end > len(rooms) {
			end = len(rooms)
		}
		group, err := c.extractGroup(ctx, rooms[start:end])
		if err != nil {
			return nil, err
		}
		for id, fields := range group {
			results[id] = fields
		}
	}
	return results, nil
}

func (c *ClaudeExtractor) extractGroup(ctx context.Context, rooms []RawRoom) (map[string]model.ExtractedFields, error) {
	if err := c.gate.Acquire(ctx); err != nil {
		return nil, eris.Wrap(err, "extract: acquire model gate")
	}
	defer c.gate.Release()

	temp := 0.0
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(extractionSystemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: buildRoomsPrompt(rooms)}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: model call")
	}
	resp.Usage.LogCost(c.model, "extract")

	var parsed map[string]claudeRoom
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Text())), &parsed); err != nil {
		return nil, eris.Wrap(err, "extract: decode model response")
	}

	results := make(map[string]model.ExtractedFields, len(rooms))
	for _, room := range rooms {
		raw, ok := parsed[room.BizItemID]
		if !ok {
			continue
		}
		fields, ok := fromClaudeRoom(raw)
		if !ok {
			zap.L().Warn("implausible model extraction, room will use pattern fallback",
				zap.String("biz_item_id", room.BizItemID))
			continue
		}
		results[room.BizItemID] = fields
	}
	return results, nil
}

func buildRoomsPrompt(rooms []RawRoom) string {
	var b strings.Builder
	for _, room := range rooms {
		desc := room.Desc
		if desc == "" {
			desc = "내용 없음"
		}
		fmt.Fprintf(&b, "ID: %s\nName: %s\nDesc: %s\n---\n", room.BizItemID, room.Name, desc)
	}
	return b.String()
}

// fromClaudeRoom validates one model result and converts it into tagged
// fields. Returns ok=false when a stated value is implausible.
func fromClaudeRoom(raw claudeRoom) (model.ExtractedFields, bool) {
	fields := model.NewDefaultExtractedFields()

	if raw.CleanName == "" {
		return fields, false
	}
	fields.CleanName = raw.CleanName

	if raw.DayType != nil {
		if *raw.DayType != "weekday" && *raw.DayType != "weekend" {
			return fields, false
		}
		fields.DayType = *raw.DayType
	}

	if raw.MaxCapacity != nil {
		if !plausibleCapacity(*raw.MaxCapacity) {
			return fields, false
		}
		fields.MaxCapacity = model.Derived(*raw.MaxCapacity)
	}

	if raw.RecommendCapacity != nil {
		lo, hi := raw.RecommendCapacity.Min, raw.RecommendCapacity.Max
		if lo > hi || !plausibleCapacity(lo) || !plausibleCapacity(hi) {
			return fields, false
		}
		fields.RecommendCapacity = model.Derived(model.CapacityRange{Min: lo, Max: hi})
	}

	if raw.BaseCapacity != nil {
		if !plausibleCapacity(*raw.BaseCapacity) {
			return fields, false
		}
		n := *raw.BaseCapacity
		fields.BaseCapacity = model.Derived(&n)
	}

	if raw.ExtraCharge != nil {
		if !plausibleCharge(*raw.ExtraCharge) {
			return fields, false
		}
		n := *raw.ExtraCharge
		fields.ExtraCharge = model.Derived(&n)
	}

	// The model always states the boolean, so it is a derived signal either
	// way, unlike the pattern path where absence of a match means no signal.
	fields.RequiresCallOnSameday = model.Derived(raw.RequiresCallOnSameday)

	clampCapacityInvariant(&fields)
	return fields, true
}

// stripCodeFence removes a surrounding markdown code fence if the model
// wrapped its JSON in one despite instructions.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = text[len("```json"):]
	} else if strings.HasPrefix(text, "```") {
		text = text[len("```"):]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
