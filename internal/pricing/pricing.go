// Package pricing computes booking charges for a room over a time window.
// A window is split into one-hour slots, each slot is matched against the
// room's price rules (first match wins), and a per-person surcharge is added
// for attendees above the base capacity.
package pricing

import (
	"encoding/json"
	"math"
	"time"

	"github.com/rotisserie/eris"
)

// TimeBand is an hour range, StartHour inclusive to EndHour exclusive.
type TimeBand struct {
	StartHour int `json:"startHour"`
	EndHour   int `json:"endHour"`
}

// Rule is one price rule. Days uses Monday=0 .. Sunday=6, matching the stored
// config format. A rule with no season, days, or time band is a base-price
// rule. Rules are evaluated in order: the first match wins.
type Rule struct {
	Season   string    `json:"season,omitempty"`
	Days     []int     `json:"days,omitempty"`
	TimeBand *TimeBand `json:"timeBand,omitempty"`
	Price    int       `json:"price"`
}

// ParseRules decodes a stored price config and validates each rule.
func ParseRules(raw []byte) ([]Rule, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rules []Rule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, eris.Wrap(err, "pricing: parse rules")
	}
	for i, r := range rules {
		if err := validateRule(r); err != nil {
			return nil, eris.Wrapf(err, "pricing: rule %d", i)
		}
	}
	return rules, nil
}

func validateRule(r Rule) error {
	if r.Price < 0 {
		return eris.Errorf("negative price %d", r.Price)
	}
	for _, d := range r.Days {
		if d < 0 || d > 6 {
			return eris.Errorf("day %d out of range", d)
		}
	}
	if tb := r.TimeBand; tb != nil {
		if tb.StartHour < 0 || tb.EndHour > 24 || tb.EndHour <= tb.StartHour {
			return eris.Errorf("time band [%d,%d) invalid", tb.StartHour, tb.EndHour)
		}
	}
	return nil
}

// TotalPrice computes the charge for one booking: the sum of per-slot unit
// prices plus the extra-person surcharge. BaseCapacity or extraCharge being
// nil disables the surcharge.
func TotalPrice(basePrice int, rules []Rule, baseCapacity, extraCharge *int, start, end time.Time, people int) (int, error) {
	if !start.Before(end) {
		return 0, eris.New("pricing: start must be before end")
	}

	total := 0
	for slot := start; slot.Before(end); slot = slot.Add(time.Hour) {
		total += unitPrice(basePrice, rules, slot)
	}

	total += extraPersonCharge(baseCapacity, extraCharge, people, start, end)
	return total, nil
}

// unitPrice returns the first matching rule's price for a slot, falling back
// to the base price. Season rules are skipped until season data exists.
func unitPrice(basePrice int, rules []Rule, slot time.Time) int {
	day := mondayIndexed(slot.Weekday())
	hour := slot.Hour()

	for _, r := range rules {
		if r.Season != "" {
			continue
		}
		if r.Days != nil && !containsDay(r.Days, day) {
			continue
		}
		if tb := r.TimeBand; tb != nil {
			if hour < tb.StartHour || hour >= tb.EndHour {
				continue
			}
		}
		return r.Price
	}
	return basePrice
}

func extraPersonCharge(baseCapacity, extraCharge *int, people int, start, end time.Time) int {
	if baseCapacity == nil || extraCharge == nil {
		return 0
	}
	exceeded := people - *baseCapacity
	if exceeded <= 0 {
		return 0
	}
	hours := int(math.Ceil(end.Sub(start).Hours()))
	return exceeded * *extraCharge * hours
}

// mondayIndexed converts Go's Sunday=0 weekday to the stored Monday=0 form.
func mondayIndexed(w time.Weekday) int {
	return (int(w) + 6) % 7
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
