package model

// Provenance marks how an extracted field value was produced. Reconciliation
// keys off this tag, not off the raw value, so changing a default constant
// later cannot silently reclassify old data.
type Provenance string

const (
	// ProvenanceDerived means the value was backed by an actual textual
	// match, either from the model response or a regex pattern.
	ProvenanceDerived Provenance = "derived"
	// ProvenanceDefault means no extraction signal was found and a
	// conservative policy constant was used instead.
	ProvenanceDefault Provenance = "default"
)

// Field carries an extracted value together with its provenance.
type Field[T any] struct {
	Value      T          `json:"value"`
	Provenance Provenance `json:"provenance"`
}

// Derived wraps a value extracted from an actual textual match.
func Derived[T any](v T) Field[T] {
	return Field[T]{Value: v, Provenance: ProvenanceDerived}
}

// DefaultField wraps a policy-default placeholder value.
func DefaultField[T any](v T) Field[T] {
	return Field[T]{Value: v, Provenance: ProvenanceDefault}
}

// IsDerived reports whether the field was backed by a textual match.
func (f Field[T]) IsDerived() bool {
	return f.Provenance == ProvenanceDerived
}

// Default-policy constants for fields with no extraction signal.
const (
	DefaultMaxCapacity       = 1
	DefaultRecommendCapacity = 1
)

// ExtractedFields is the per-room output of one extraction pass. It is
// ephemeral: it feeds reconciliation and is never persisted directly.
type ExtractedFields struct {
	// CleanName is the room name with day-type tags stripped. Empty when
	// extraction produced nothing usable.
	CleanName string `json:"clean_name"`
	// DayType is "weekday", "weekend", or "" when untagged.
	DayType string `json:"day_type,omitempty"`

	MaxCapacity           Field[int]           `json:"max_capacity"`
	RecommendCapacity     Field[CapacityRange] `json:"recommend_capacity"`
	BaseCapacity          Field[*int]          `json:"base_capacity"`
	ExtraCharge           Field[*int]          `json:"extra_charge"`
	RequiresCallOnSameday Field[bool]          `json:"requires_call_on_sameday"`
}

// NewDefaultExtractedFields returns an ExtractedFields with every field set
// to its policy default. Extractors start from this and upgrade individual
// fields to derived as patterns match.
func NewDefaultExtractedFields() ExtractedFields {
	return ExtractedFields{
		MaxCapacity: DefaultField(DefaultMaxCapacity),
		RecommendCapacity: DefaultField(CapacityRange{
			Min: DefaultRecommendCapacity,
			Max: DefaultRecommendCapacity,
		}),
		BaseCapacity:          DefaultField[*int](nil),
		ExtraCharge:           DefaultField[*int](nil),
		RequiresCallOnSameday: DefaultField(false),
	}
}

// FieldNames enumerates the reconciled field keys in report order.
var FieldNames = []string{
	"max_capacity",
	"recommend_capacity",
	"base_capacity",
	"extra_charge",
	"requires_call_on_sameday",
}

// ProvenanceByField returns the provenance tag per field key, used for the
// derived-vs-default aggregation in the run report.
func (e ExtractedFields) ProvenanceByField() map[string]Provenance {
	return map[string]Provenance{
		"max_capacity":             e.MaxCapacity.Provenance,
		"recommend_capacity":       e.RecommendCapacity.Provenance,
		"base_capacity":            e.BaseCapacity.Provenance,
		"extra_charge":             e.ExtraCharge.Provenance,
		"requires_call_on_sameday": e.RequiresCallOnSameday.Provenance,
	}
}
