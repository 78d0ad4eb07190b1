package naver

import "encoding/json"

// Coordinates is a parsed latitude/longitude pair. The GraphQL API returns
// coordinates as a [longitude, latitude] array.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// UnmarshalJSON accepts either the wire-format [lng, lat] array or an
// already-shaped object.
func (c *Coordinates) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) >= 2 {
			c.Longitude = arr[0]
			c.Latitude = arr[1]
		}
		return nil
	}

	type plain Coordinates
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Coordinates(p)
	return nil
}

// Business is the branch-level payload from the business query. Optional
// fields may be absent on older listings; absence is not an error.
type Business struct {
	ID                  string       `json:"id"`
	BusinessID          string       `json:"businessId"`
	Name                string       `json:"name"`
	BusinessDisplayName string       `json:"businessDisplayName"`
	Coordinates         *Coordinates `json:"coordinates,omitempty"`
	PlaceID             string       `json:"placeId,omitempty"`
	PhoneNumber         string       `json:"phone,omitempty"`
	StandbyDays         int          `json:"standbyDays,omitempty"`
}

// MinMaxPrice carries the listed price band for a biz item.
type MinMaxPrice struct {
	MinPrice       int `json:"minPrice"`
	MaxNormalPrice int `json:"maxNormalPrice"`
}

// Resource is one image attached to a biz item. Order is display order.
type Resource struct {
	ResourceURL string `json:"resourceUrl"`
}

// BizItem is one bookable room under a business.
type BizItem struct {
	BizItemID           string       `json:"bizItemId"`
	Name                string       `json:"name"`
	Desc                string       `json:"desc,omitempty"`
	MinMaxPrice         *MinMaxPrice `json:"minMaxPrice,omitempty"`
	Resources           []Resource   `json:"bizItemResources,omitempty"`
	BookingTimeUnitCode string       `json:"bookingTimeUnitCode,omitempty"`
	MinBookingTime      int          `json:"minBookingTime,omitempty"`
}

// HourlySlot is one hour of a room's schedule.
type HourlySlot struct {
	UnitStartTime    string `json:"unitStartTime"`
	UnitStock        int    `json:"unitStock"`
	UnitBookingCount int    `json:"unitBookingCount"`
}

// ScheduleParams selects the schedule window for one room.
type ScheduleParams struct {
	BusinessID    string
	BizItemID     string
	StartDateTime string
	EndDateTime   string
}

// Schedule is the hourly availability payload for one room.
type Schedule struct {
	Hourly []HourlySlot `json:"hourly"`
}
