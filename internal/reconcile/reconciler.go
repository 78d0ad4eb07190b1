// Package reconcile merges freshly extracted fields against persisted records.
// The policy protects meaningful persisted values from being regressed by
// low-confidence passes: a derived value always wins, a default value only
// lands where nothing meaningful is already stored.
package reconcile

import (
	"slices"

	"github.com/roomscout/collector-cli/internal/model"
)

// RoomInput carries everything one collection pass learned about a room:
// tagged extraction output plus the structured attributes that come straight
// from the booking API and need no confidence policy.
type RoomInput struct {
	Key               model.VenueKey
	Extracted         model.ExtractedFields
	PricePerHour      int
	CanReserveOneHour bool
	ImageURLs         []string
}

// Room produces the record to write for one venue, or changed=false when the
// merge is a no-op against the persisted record. persisted is nil on first
// sighting. Room is idempotent: reconciling its own output changes nothing.
func Room(persisted *model.RoomRecord, in RoomInput) (model.RoomRecord, bool) {
	next := model.RoomRecord{
		Key:               in.Key,
		Name:              in.Extracted.CleanName,
		PricePerHour:      in.PricePerHour,
		CanReserveOneHour: in.CanReserveOneHour,
		ImageURLs:         in.ImageURLs,
	}

	if persisted == nil {
		// First sighting: extracted values land as-is, derived or default.
		next.MaxCapacity = in.Extracted.MaxCapacity.Value
		next.RecommendCapacity = in.Extracted.RecommendCapacity.Value
		next.BaseCapacity = in.Extracted.BaseCapacity.Value
		next.ExtraCharge = in.Extracted.ExtraCharge.Value
		next.RequiresCallOnSameday = in.Extracted.RequiresCallOnSameday.Value
		enforceCapacityRange(&next, in.Extracted.MaxCapacity.IsDerived())
		return next, true
	}

	if next.Name == "" {
		next.Name = persisted.Name
	}

	next.MaxCapacity = mergeField(in.Extracted.MaxCapacity, persisted.MaxCapacity, maxCapacityMeaningful)
	next.RecommendCapacity = mergeField(in.Extracted.RecommendCapacity, persisted.RecommendCapacity, recommendMeaningful)
	next.BaseCapacity = mergeField(in.Extracted.BaseCapacity, persisted.BaseCapacity, intPtrMeaningful)
	next.ExtraCharge = mergeField(in.Extracted.ExtraCharge, persisted.ExtraCharge, intPtrMeaningful)
	next.RequiresCallOnSameday = mergeField(in.Extracted.RequiresCallOnSameday, persisted.RequiresCallOnSameday, boolMeaningful)

	enforceCapacityRange(&next, in.Extracted.MaxCapacity.IsDerived())
	return next, !roomsEqual(&next, persisted)
}

// enforceCapacityRange restores max >= recommend.max when the field-wise merge
// recombined a max and a range from different passes. The side this pass
// actually derived wins: a derived max shrinks the kept range down to it,
// otherwise max rises to cover the range.
func enforceCapacityRange(r *model.RoomRecord, maxDerived bool) {
	if r.MaxCapacity >= r.RecommendCapacity.Max {
		return
	}
	if maxDerived {
		r.RecommendCapacity.Max = r.MaxCapacity
		if r.RecommendCapacity.Min > r.MaxCapacity {
			r.RecommendCapacity.Min = r.MaxCapacity
		}
		return
	}
	r.MaxCapacity = r.RecommendCapacity.Max
}

// mergeField applies the per-field policy: derived wins unconditionally; a
// default only replaces a persisted value that is itself not meaningful.
func mergeField[T any](extracted model.Field[T], persisted T, meaningful func(T) bool) T {
	if extracted.IsDerived() {
		return extracted.Value
	}
	if meaningful(persisted) {
		return persisted
	}
	return extracted.Value
}

// Meaningful means "not the policy default": a value a previous pass actually
// established rather than filled in.
func maxCapacityMeaningful(v int) bool { return v > model.DefaultMaxCapacity }

func recommendMeaningful(v model.CapacityRange) bool {
	return v != model.CapacityRange{Min: model.DefaultRecommendCapacity, Max: model.DefaultRecommendCapacity}
}

func intPtrMeaningful(v *int) bool { return v != nil }

func boolMeaningful(v bool) bool { return v }

func roomsEqual(a, b *model.RoomRecord) bool {
	return a.Key == b.Key &&
		a.Name == b.Name &&
		a.MaxCapacity == b.MaxCapacity &&
		a.RecommendCapacity == b.RecommendCapacity &&
		intPtrEqual(a.BaseCapacity, b.BaseCapacity) &&
		intPtrEqual(a.ExtraCharge, b.ExtraCharge) &&
		a.PricePerHour == b.PricePerHour &&
		a.CanReserveOneHour == b.CanReserveOneHour &&
		a.RequiresCallOnSameday == b.RequiresCallOnSameday &&
		slices.Equal(a.ImageURLs, b.ImageURLs)
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Branch merges freshly observed branch attributes into the persisted branch
// record. Identity fields refresh from the source; coordinates and contact
// fields only fill gaps, since a pass that failed to observe them must not
// erase ones a previous pass established.
func Branch(persisted *model.BranchRecord, fresh model.BranchRecord) (model.BranchRecord, bool) {
	if persisted == nil {
		return fresh, true
	}

	next := *persisted
	if fresh.Name != "" {
		next.Name = fresh.Name
	}
	if fresh.DisplayName != "" {
		next.DisplayName = fresh.DisplayName
	}
	if fresh.Lat != nil && fresh.Lng != nil {
		next.Lat = fresh.Lat
		next.Lng = fresh.Lng
	}
	if fresh.PhoneNumber != "" {
		next.PhoneNumber = fresh.PhoneNumber
	}
	if fresh.StandbyDays > 0 {
		next.StandbyDays = fresh.StandbyDays
	}

	changed := next.Name != persisted.Name ||
		next.DisplayName != persisted.DisplayName ||
		!floatPtrEqual(next.Lat, persisted.Lat) ||
		!floatPtrEqual(next.Lng, persisted.Lng) ||
		next.PhoneNumber != persisted.PhoneNumber ||
		next.StandbyDays != persisted.StandbyDays
	return next, changed
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
