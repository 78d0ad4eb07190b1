// Package availability answers "which of these rooms can be booked in this
// window" against the live booking schedule. One slow or broken room never
// fails the whole check: its status degrades to unknown and the rest of the
// results stand.
package availability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roomscout/collector-cli/internal/model"
	"github.com/roomscout/collector-cli/internal/pricing"
	"github.com/roomscout/collector-cli/pkg/naver"
)

// Status is the per-room outcome of an availability check.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
	// StatusUnknown means the schedule lookup failed; the room may or may
	// not be bookable.
	StatusUnknown Status = "unknown"
)

// Request is one availability query over a same-day hour window.
type Request struct {
	Date      string `json:"date"`       // "2026-08-24"
	StartHour string `json:"start_hour"` // "14:00"
	EndHour   string `json:"end_hour"`   // "16:00"
	Capacity  int    `json:"capacity"`
}

// Warning flags a booking policy the caller should surface to the user.
type Warning struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// RoomResult is the outcome for one room.
type RoomResult struct {
	Key            model.VenueKey  `json:"key"`
	Name           string          `json:"name"`
	Status         Status          `json:"status"`
	Slots          map[string]bool `json:"slots,omitempty"`
	Warnings       []Warning       `json:"warnings,omitempty"`
	EstimatedPrice *int            `json:"estimated_price,omitempty"`
}

// BranchStats summarizes bookable rooms per branch, for map display.
type BranchStats struct {
	MinPrice       int `json:"min_price"`
	AvailableCount int `json:"available_count"`
}

// Report is the aggregate answer for one request.
type Report struct {
	Date          string                 `json:"date"`
	HourSlots     []string               `json:"hour_slots"`
	Results       []RoomResult           `json:"results"`
	BranchSummary map[string]BranchStats `json:"branch_summary"`
}

// Service checks room availability through the booking schedule API.
type Service struct {
	client      naver.Client
	maxParallel int
	now         func() time.Time
}

// New wires an availability service over the booking client. maxParallel
// bounds concurrent schedule queries; values below 1 mean 1.
func New(client naver.Client, maxParallel int) *Service {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Service{client: client, maxParallel: maxParallel, now: time.Now}
}

// HourSlots expands an inclusive "HH:MM" window into hourly slot labels.
// A 14:00-16:00 booking occupies the 14, 15, and 16 o'clock slots.
func HourSlots(startHour, endHour string) ([]string, error) {
	start, err := time.Parse("15:04", startHour)
	if err != nil {
		return nil, eris.Wrapf(err, "availability: parse start hour %q", startHour)
	}
	end, err := time.Parse("15:04", endHour)
	if err != nil {
		return nil, eris.Wrapf(err, "availability: parse end hour %q", endHour)
	}
	if start.After(end) {
		return nil, eris.Errorf("availability: start %s after end %s", startHour, endHour)
	}

	var slots []string
	for t := start; !t.After(end); t = t.Add(time.Hour) {
		slots = append(slots, t.Format("15:04"))
	}
	return slots, nil
}

// Check queries the schedule for every candidate room and aggregates the
// results. Rooms smaller than the requested capacity are skipped. A failed
// schedule lookup degrades that room to unknown instead of failing the check.
func (s *Service) Check(ctx context.Context, req Request, rooms []model.RoomRecord) (*Report, error) {
	slots, err := HourSlots(req.StartHour, req.EndHour)
	if err != nil {
		return nil, err
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return nil, eris.Wrapf(err, "availability: parse date %q", req.Date)
	}

	candidates := make([]model.RoomRecord, 0, len(rooms))
	for _, r := range rooms {
		if req.Capacity > 0 && r.MaxCapacity < req.Capacity {
			continue
		}
		candidates = append(candidates, r)
	}

	results := make([]RoomResult, len(candidates))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)
	for i := range candidates {
		g.Go(func() error {
			res := s.checkRoom(gctx, req, slots, &candidates[i])
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		Date:          req.Date,
		HourSlots:     slots,
		BranchSummary: make(map[string]BranchStats),
	}
	for i := range results {
		res := results[i]
		if res.Status == StatusUnavailable {
			continue
		}
		report.Results = append(report.Results, res)
		if res.Status != StatusAvailable {
			continue
		}

		room := candidates[i]
		bid := room.Key.BusinessID
		stats, ok := report.BranchSummary[bid]
		if !ok {
			report.BranchSummary[bid] = BranchStats{MinPrice: room.PricePerHour, AvailableCount: 1}
			continue
		}
		stats.AvailableCount++
		if room.PricePerHour < stats.MinPrice {
			stats.MinPrice = room.PricePerHour
		}
		report.BranchSummary[bid] = stats
	}
	return report, nil
}

func (s *Service) checkRoom(ctx context.Context, req Request, slots []string, room *model.RoomRecord) RoomResult {
	res := RoomResult{Key: room.Key, Name: room.Name}

	schedule, err := s.client.Schedule(ctx, naver.ScheduleParams{
		BusinessID:    room.Key.BusinessID,
		BizItemID:     room.Key.BizItemID,
		StartDateTime: req.Date + "T00:00:00",
		EndDateTime:   req.Date + "T23:59:59",
	})
	if err != nil {
		zap.L().Warn("schedule lookup failed",
			zap.String("business_id", room.Key.BusinessID),
			zap.String("biz_item_id", room.Key.BizItemID),
			zap.Error(err))
		res.Status = StatusUnknown
		res.Warnings = s.policyWarnings(req, slots, room)
		return res
	}

	res.Slots = slotMap(slots, schedule.Hourly)
	res.Status = StatusUnavailable
	if allFree(res.Slots) {
		res.Status = StatusAvailable
	}
	res.Warnings = s.policyWarnings(req, slots, room)

	if res.Status == StatusAvailable {
		if price, err := s.estimatePrice(req, slots, room); err == nil {
			res.EstimatedPrice = &price
		} else {
			zap.L().Warn("price estimate failed",
				zap.String("room", room.Name), zap.Error(err))
		}
	}
	return res
}

// slotMap marks each requested slot free when its booking count is below
// stock. Slots the schedule never mentions stay unavailable.
func slotMap(slots []string, hourly []naver.HourlySlot) map[string]bool {
	out := make(map[string]bool, len(slots))
	for _, s := range slots {
		out[s] = false
	}
	for _, h := range hourly {
		if len(h.UnitStartTime) < 8 {
			continue
		}
		label := h.UnitStartTime[len(h.UnitStartTime)-8:][:5]
		if _, ok := out[label]; ok {
			out[label] = h.UnitBookingCount < h.UnitStock
		}
	}
	return out
}

func allFree(slots map[string]bool) bool {
	for _, free := range slots {
		if !free {
			return false
		}
	}
	return len(slots) > 0
}

func (s *Service) policyWarnings(req Request, slots []string, room *model.RoomRecord) []Warning {
	var warnings []Warning
	if len(slots) == 1 && !room.CanReserveOneHour {
		warnings = append(warnings, Warning{
			Type:    "call_required_1h",
			Message: "1시간 예약은 전화 문의가 필요합니다.",
		})
	}
	if req.Date == s.now().Format("2006-01-02") && room.RequiresCallOnSameday {
		warnings = append(warnings, Warning{
			Type:    "call_required_today",
			Message: "당일 예약은 전화 문의가 필요합니다.",
		})
	}
	return warnings
}

func (s *Service) estimatePrice(req Request, slots []string, room *model.RoomRecord) (int, error) {
	start, err := time.Parse("2006-01-02 15:04", fmt.Sprintf("%s %s", req.Date, slots[0]))
	if err != nil {
		return 0, eris.Wrap(err, "availability: parse window start")
	}
	// The last slot is occupied through its full hour.
	end, err := time.Parse("2006-01-02 15:04", fmt.Sprintf("%s %s", req.Date, slots[len(slots)-1]))
	if err != nil {
		return 0, eris.Wrap(err, "availability: parse window end")
	}
	end = end.Add(time.Hour)

	people := req.Capacity
	if people < 1 {
		people = 1
	}
	return pricing.TotalPrice(room.PricePerHour, nil, room.BaseCapacity, room.ExtraCharge, start, end, people)
}
