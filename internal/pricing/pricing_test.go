package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

// 2026-08-24 is a Monday.
func slotTime(day, hour int) time.Time {
	return time.Date(2026, 8, day, hour, 0, 0, 0, time.UTC)
}

func TestTotalPrice_BaseOnly(t *testing.T) {
	total, err := TotalPrice(10000, nil, nil, nil, slotTime(24, 14), slotTime(24, 16), 4)
	require.NoError(t, err)
	assert.Equal(t, 20000, total)
}

func TestTotalPrice_EveningBand(t *testing.T) {
	rules := []Rule{
		{TimeBand: &TimeBand{StartHour: 18, EndHour: 24}, Price: 20000},
	}

	// 17:00-19:00: one base slot, one evening slot.
	total, err := TotalPrice(10000, rules, nil, nil, slotTime(24, 17), slotTime(24, 19), 4)
	require.NoError(t, err)
	assert.Equal(t, 30000, total)
}

func TestTotalPrice_WeekendRule(t *testing.T) {
	rules := []Rule{
		{Days: []int{5, 6}, Price: 15000}, // Sat, Sun in Monday=0 form
	}

	weekday, err := TotalPrice(10000, rules, nil, nil, slotTime(24, 14), slotTime(24, 15), 2)
	require.NoError(t, err)
	assert.Equal(t, 10000, weekday)

	// 2026-08-29 is a Saturday.
	weekend, err := TotalPrice(10000, rules, nil, nil, slotTime(29, 14), slotTime(29, 15), 2)
	require.NoError(t, err)
	assert.Equal(t, 15000, weekend)
}

func TestTotalPrice_FirstMatchWins(t *testing.T) {
	rules := []Rule{
		{TimeBand: &TimeBand{StartHour: 18, EndHour: 24}, Price: 20000},
		{TimeBand: &TimeBand{StartHour: 0, EndHour: 24}, Price: 5000},
	}

	total, err := TotalPrice(10000, rules, nil, nil, slotTime(24, 19), slotTime(24, 20), 2)
	require.NoError(t, err)
	assert.Equal(t, 20000, total)
}

func TestTotalPrice_SeasonRulesSkipped(t *testing.T) {
	rules := []Rule{
		{Season: "Summer", Price: 99000},
	}

	total, err := TotalPrice(10000, rules, nil, nil, slotTime(24, 14), slotTime(24, 15), 2)
	require.NoError(t, err)
	assert.Equal(t, 10000, total)
}

func TestTotalPrice_ExtraCharge(t *testing.T) {
	// 6 people, base 4: 2 exceeded * 1000 won * 2 hours.
	total, err := TotalPrice(10000, nil, intPtr(4), intPtr(1000), slotTime(24, 14), slotTime(24, 16), 6)
	require.NoError(t, err)
	assert.Equal(t, 24000, total)
}

func TestTotalPrice_ExtraChargeNeedsBothFields(t *testing.T) {
	total, err := TotalPrice(10000, nil, intPtr(4), nil, slotTime(24, 14), slotTime(24, 16), 10)
	require.NoError(t, err)
	assert.Equal(t, 20000, total)

	total, err = TotalPrice(10000, nil, nil, intPtr(1000), slotTime(24, 14), slotTime(24, 16), 10)
	require.NoError(t, err)
	assert.Equal(t, 20000, total)
}

func TestTotalPrice_NoExtraUnderCapacity(t *testing.T) {
	total, err := TotalPrice(10000, nil, intPtr(4), intPtr(1000), slotTime(24, 14), slotTime(24, 15), 3)
	require.NoError(t, err)
	assert.Equal(t, 10000, total)
}

func TestTotalPrice_InvalidWindow(t *testing.T) {
	_, err := TotalPrice(10000, nil, nil, nil, slotTime(24, 16), slotTime(24, 16), 2)
	assert.Error(t, err)
}

func TestParseRules(t *testing.T) {
	raw := []byte(`[
		{"price": 10000},
		{"days": [5, 6], "price": 15000},
		{"timeBand": {"startHour": 18, "endHour": 24}, "price": 20000}
	]`)

	rules, err := ParseRules(raw)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, 10000, rules[0].Price)
	assert.Equal(t, []int{5, 6}, rules[1].Days)
	require.NotNil(t, rules[2].TimeBand)
	assert.Equal(t, 18, rules[2].TimeBand.StartHour)
}

func TestParseRules_Invalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"bad_band", `[{"timeBand": {"startHour": 20, "endHour": 18}, "price": 1000}]`},
		{"bad_day", `[{"days": [7], "price": 1000}]`},
		{"negative_price", `[{"price": -5}]`},
		{"not_json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tc.raw))
			assert.Error(t, err)
		})
	}
}

func TestParseRules_Empty(t *testing.T) {
	rules, err := ParseRules(nil)
	require.NoError(t, err)
	assert.Nil(t, rules)
}
