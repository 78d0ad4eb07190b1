package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"

	"github.com/roomscout/collector-cli/internal/model"
)

// Korean listing patterns. Descriptions mix full-width and half-width digits
// freely, so all text is width-folded before matching.
var (
	weekdayTagRe = regexp.MustCompile(`\[평일\]|\(평일\)`)
	weekendTagRe = regexp.MustCompile(`\[주말[^\]]*\]|\(주말[^)]*\)|주말/공휴일`)

	// "최대 10인", "max 10명"
	maxCapRe = regexp.MustCompile(`(?i)(?:최대|max)\s*(\d+)`)
	// "10인까지", "10명 수용"
	untilCapRe = regexp.MustCompile(`(\d+)\s*(?:인|명)\s*(?:까지|수용)`)
	// "4~6인", "4-6명"
	rangeCapRe = regexp.MustCompile(`(\d+)\s*[~-]\s*(\d+)\s*(?:인|명)?`)
	// "기본 4인"
	baseCapRe = regexp.MustCompile(`기본\s*(\d+)`)
	// "1인 추가시 3,000원", "인당 3000원". The gap between keyword and amount
	// is bounded and digit-free, so an unrelated price later in the text
	// never matches.
	chargeRe = regexp.MustCompile(`(?:1인|인당)[^0-9원]{0,8}(\d+(?:,\d+)?)\s*원`)
)

// PatternExtractor is the deterministic fallback strategy. It never fails:
// rooms with no matching patterns come back with every field at its policy
// default.
type PatternExtractor struct{}

func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{}
}

func (p *PatternExtractor) Name() string { return "pattern" }

func (p *PatternExtractor) Extract(_ context.Context, rooms []RawRoom) (map[string]model.ExtractedFields, error) {
	results := make(map[string]model.ExtractedFields, len(rooms))
	for _, room := range rooms {
		results[room.BizItemID] = p.extractOne(room)
	}
	return results, nil
}

func (p *PatternExtractor) extractOne(room RawRoom) model.ExtractedFields {
	fields := model.NewDefaultExtractedFields()

	name := width.Narrow.String(room.Name)
	desc := width.Narrow.String(room.Desc)

	fields.CleanName, fields.DayType = splitDayTag(name)

	// Capacity: explicit max keyword first, then "N인까지" style.
	var maxCap int
	if m := maxCapRe.FindStringSubmatch(desc); m != nil {
		maxCap = atoi(m[1])
	} else if m := untilCapRe.FindStringSubmatch(desc); m != nil {
		maxCap = atoi(m[1])
	}

	// "N~M인" gives the recommended range; its upper bound also stands in
	// for max when no explicit max was stated.
	if m := rangeCapRe.FindStringSubmatch(desc); m != nil {
		lo, hi := atoi(m[1]), atoi(m[2])
		if lo > hi {
			lo, hi = hi, lo
		}
		if plausibleCapacity(lo) && plausibleCapacity(hi) {
			fields.RecommendCapacity = model.Derived(model.CapacityRange{Min: lo, Max: hi})
			if maxCap == 0 {
				maxCap = hi
			}
		}
	} else if plausibleCapacity(maxCap) && maxCap > 1 {
		// No explicit range; estimate a comfortable headcount from max.
		rec := maxCap
		if maxCap > 4 {
			rec = maxCap / 2
		}
		fields.RecommendCapacity = model.Derived(model.CapacityRange{Min: rec, Max: rec})
	}

	if plausibleCapacity(maxCap) {
		fields.MaxCapacity = model.Derived(maxCap)
	}

	if m := baseCapRe.FindStringSubmatch(desc); m != nil {
		if n := atoi(m[1]); plausibleCapacity(n) {
			fields.BaseCapacity = model.Derived(&n)
		}
	}

	if m := chargeRe.FindStringSubmatch(desc); m != nil {
		if n := atoi(strings.ReplaceAll(m[1], ",", "")); plausibleCharge(n) {
			fields.ExtraCharge = model.Derived(&n)
		}
	}

	if strings.Contains(desc, "당일") && (strings.Contains(desc, "전화") || strings.Contains(desc, "문의")) {
		fields.RequiresCallOnSameday = model.Derived(true)
	}

	clampCapacityInvariant(&fields)
	return fields
}

// splitDayTag strips a weekday/weekend tag from a room name and reports which
// one it was.
func splitDayTag(name string) (clean, dayType string) {
	switch {
	case weekdayTagRe.MatchString(name):
		return strings.TrimSpace(weekdayTagRe.ReplaceAllString(name, "")), "weekday"
	case weekendTagRe.MatchString(name):
		return strings.TrimSpace(weekendTagRe.ReplaceAllString(name, "")), "weekend"
	default:
		return strings.TrimSpace(name), ""
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
