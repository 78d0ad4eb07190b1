package model

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// VenueKey identifies one bookable room: a business (branch) plus a biz item
// (room) within it. Both IDs are minted by the booking provider, never by us.
type VenueKey struct {
	BusinessID string `json:"business_id"`
	BizItemID  string `json:"biz_item_id"`
}

func (k VenueKey) String() string {
	return fmt.Sprintf("%s/%s", k.BusinessID, k.BizItemID)
}

// BranchRecord is the persisted branch (location) row. Lat/Lng and contact
// fields stay nil until a discovery or fetch pass supplies them.
type BranchRecord struct {
	BusinessID  string   `json:"business_id"`
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lng         *float64 `json:"lng,omitempty"`
	PhoneNumber string   `json:"phone_number,omitempty"`
	StandbyDays int      `json:"standby_days"`
}

// CapacityRange is an ordered [min, max] recommended-capacity pair.
type CapacityRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// RoomRecord is the persisted room row, keyed by VenueKey. Updates are
// all-or-nothing within one collection pass.
type RoomRecord struct {
	Key                   VenueKey      `json:"key"`
	Name                  string        `json:"name"`
	MaxCapacity           int           `json:"max_capacity"`
	RecommendCapacity     CapacityRange `json:"recommend_capacity"`
	BaseCapacity          *int          `json:"base_capacity,omitempty"`
	ExtraCharge           *int          `json:"extra_charge,omitempty"`
	PricePerHour          int           `json:"price_per_hour"`
	CanReserveOneHour     bool          `json:"can_reserve_one_hour"`
	RequiresCallOnSameday bool          `json:"requires_call_on_sameday"`
	ImageURLs             []string      `json:"image_urls,omitempty"`
}

// Validate checks the record invariants before it is handed to the store.
func (r *RoomRecord) Validate() error {
	if r.Key.BusinessID == "" || r.Key.BizItemID == "" {
		return eris.Errorf("model: room %q missing venue key", r.Name)
	}
	if r.MaxCapacity < 1 {
		return eris.Errorf("model: room %s max_capacity %d < 1", r.Key, r.MaxCapacity)
	}
	if r.RecommendCapacity.Min > r.RecommendCapacity.Max {
		return eris.Errorf("model: room %s recommend range [%d,%d] not ordered",
			r.Key, r.RecommendCapacity.Min, r.RecommendCapacity.Max)
	}
	if r.MaxCapacity < r.RecommendCapacity.Max {
		return eris.Errorf("model: room %s max_capacity %d < recommend max %d",
			r.Key, r.MaxCapacity, r.RecommendCapacity.Max)
	}
	if r.ExtraCharge != nil && *r.ExtraCharge < 0 {
		return eris.Errorf("model: room %s negative extra_charge %d", r.Key, *r.ExtraCharge)
	}
	if r.PricePerHour < 0 {
		return eris.Errorf("model: room %s negative price_per_hour %d", r.Key, r.PricePerHour)
	}
	return nil
}

// VenueStub is one discovery result: enough identity to drive a detail fetch.
type VenueStub struct {
	BusinessID  string   `json:"business_id"`
	DisplayName string   `json:"display_name"`
	Category    string   `json:"category,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lng         *float64 `json:"lng,omitempty"`
}
