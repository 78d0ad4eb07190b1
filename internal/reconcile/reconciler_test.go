package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomscout/collector-cli/internal/model"
)

func intp(n int) *int { return &n }

func floatp(f float64) *float64 { return &f }

var testKey = model.VenueKey{BusinessID: "522011", BizItemID: "7001"}

func derivedExtraction() model.ExtractedFields {
	e := model.NewDefaultExtractedFields()
	e.CleanName = "블랙룸"
	e.MaxCapacity = model.Derived(8)
	e.RecommendCapacity = model.Derived(model.CapacityRange{Min: 4, Max: 6})
	e.ExtraCharge = model.Derived(intp(3000))
	e.RequiresCallOnSameday = model.Derived(true)
	return e
}

func TestRoom_FirstSighting_WritesAsIs(t *testing.T) {
	in := RoomInput{
		Key:          testKey,
		Extracted:    derivedExtraction(),
		PricePerHour: 12000,
		ImageURLs:    []string{"https://img/1.jpg"},
	}

	record, changed := Room(nil, in)
	require.True(t, changed)
	assert.Equal(t, testKey, record.Key)
	assert.Equal(t, "블랙룸", record.Name)
	assert.Equal(t, 8, record.MaxCapacity)
	assert.Equal(t, model.CapacityRange{Min: 4, Max: 6}, record.RecommendCapacity)
	assert.Equal(t, 3000, *record.ExtraCharge)
	assert.True(t, record.RequiresCallOnSameday)
	assert.Equal(t, 12000, record.PricePerHour)
	assert.NoError(t, record.Validate())
}

func TestRoom_FirstSighting_DefaultsLand(t *testing.T) {
	e := model.NewDefaultExtractedFields()
	e.CleanName = "룸A"

	record, changed := Room(nil, RoomInput{Key: testKey, Extracted: e})
	require.True(t, changed)
	assert.Equal(t, model.DefaultMaxCapacity, record.MaxCapacity)
	assert.Nil(t, record.BaseCapacity)
	assert.False(t, record.RequiresCallOnSameday)
	assert.NoError(t, record.Validate())
}

func TestRoom_DerivedOverwritesMeaningful(t *testing.T) {
	persisted := &model.RoomRecord{
		Key:               testKey,
		Name:              "블랙룸",
		MaxCapacity:       10,
		RecommendCapacity: model.CapacityRange{Min: 5, Max: 8},
	}

	e := model.NewDefaultExtractedFields()
	e.CleanName = "블랙룸"
	e.MaxCapacity = model.Derived(6)
	e.RecommendCapacity = model.Derived(model.CapacityRange{Min: 2, Max: 4})

	record, changed := Room(persisted, RoomInput{Key: testKey, Extracted: e})
	require.True(t, changed)
	// Fresh signal wins even when it lowers the value.
	assert.Equal(t, 6, record.MaxCapacity)
	assert.Equal(t, model.CapacityRange{Min: 2, Max: 4}, record.RecommendCapacity)
}

func TestRoom_DefaultNeverRegressesMeaningful(t *testing.T) {
	persisted := &model.RoomRecord{
		Key:                   testKey,
		Name:                  "블랙룸",
		MaxCapacity:           10,
		RecommendCapacity:     model.CapacityRange{Min: 4, Max: 6},
		BaseCapacity:          intp(4),
		ExtraCharge:           intp(3000),
		RequiresCallOnSameday: true,
	}

	e := model.NewDefaultExtractedFields()
	e.CleanName = "블랙룸"

	record, changed := Room(persisted, RoomInput{Key: testKey, Extracted: e})
	assert.False(t, changed)
	assert.Equal(t, 10, record.MaxCapacity)
	assert.Equal(t, model.CapacityRange{Min: 4, Max: 6}, record.RecommendCapacity)
	assert.Equal(t, 4, *record.BaseCapacity)
	assert.Equal(t, 3000, *record.ExtraCharge)
	assert.True(t, record.RequiresCallOnSameday)
}

func TestRoom_DefaultOverwritesDefault(t *testing.T) {
	// A persisted record that only ever held defaults can be refreshed by
	// another default pass without information loss.
	persisted := &model.RoomRecord{
		Key:               testKey,
		Name:              "룸A",
		MaxCapacity:       model.DefaultMaxCapacity,
		RecommendCapacity: model.CapacityRange{Min: 1, Max: 1},
	}

	e := model.NewDefaultExtractedFields()
	e.CleanName = "룸A"

	record, changed := Room(persisted, RoomInput{Key: testKey, Extracted: e})
	assert.False(t, changed)
	assert.Equal(t, model.DefaultMaxCapacity, record.MaxCapacity)
}

func TestRoom_FieldsMergeIndependently(t *testing.T) {
	persisted := &model.RoomRecord{
		Key:               testKey,
		Name:              "룸A",
		MaxCapacity:       10,
		RecommendCapacity: model.CapacityRange{Min: 1, Max: 1},
	}

	e := model.NewDefaultExtractedFields()
	e.CleanName = "룸A"
	e.RecommendCapacity = model.Derived(model.CapacityRange{Min: 3, Max: 5})
	// MaxCapacity stays default.

	record, changed := Room(persisted, RoomInput{Key: testKey, Extracted: e})
	require.True(t, changed)
	// Derived recommend lands; default max does not regress persisted 10.
	assert.Equal(t, model.CapacityRange{Min: 3, Max: 5}, record.RecommendCapacity)
	assert.Equal(t, 10, record.MaxCapacity)
}

func TestRoom_DerivedMaxShrinksKeptRecommendRange(t *testing.T) {
	// A fresh derived max below the persisted recommend range must not emit
	// max_capacity < recommend.max: the kept range shrinks to fit.
	persisted := &model.RoomRecord{
		Key:               testKey,
		Name:              "블랙룸",
		MaxCapacity:       10,
		RecommendCapacity: model.CapacityRange{Min: 4, Max: 8},
	}

	e := model.NewDefaultExtractedFields()
	e.CleanName = "블랙룸"
	e.MaxCapacity = model.Derived(5)
	// RecommendCapacity stays default, so the persisted range is kept.

	record, changed := Room(persisted, RoomInput{Key: testKey, Extracted: e})
	require.True(t, changed)
	assert.Equal(t, 5, record.MaxCapacity)
	assert.Equal(t, model.CapacityRange{Min: 4, Max: 5}, record.RecommendCapacity)
	assert.NoError(t, record.Validate())

	// Reconciling the output with the same extraction is a no-op.
	second, changed := Room(&record, RoomInput{Key: testKey, Extracted: e})
	assert.False(t, changed)
	assert.Equal(t, record, second)
}

func TestRoom_DerivedRecommendRaisesKeptMax(t *testing.T) {
	// The mirror case: a fresh derived range above the kept persisted max
	// raises max to cover it.
	persisted := &model.RoomRecord{
		Key:               testKey,
		Name:              "블랙룸",
		MaxCapacity:       4,
		RecommendCapacity: model.CapacityRange{Min: 2, Max: 4},
	}

	e := model.NewDefaultExtractedFields()
	e.CleanName = "블랙룸"
	e.RecommendCapacity = model.Derived(model.CapacityRange{Min: 4, Max: 8})
	// MaxCapacity stays default, so the persisted max is kept.

	record, changed := Room(persisted, RoomInput{Key: testKey, Extracted: e})
	require.True(t, changed)
	assert.Equal(t, 8, record.MaxCapacity)
	assert.Equal(t, model.CapacityRange{Min: 4, Max: 8}, record.RecommendCapacity)
	assert.NoError(t, record.Validate())
}

func TestRoom_DerivedMaxBelowRangeMin(t *testing.T) {
	// A derived max below the whole kept range collapses the range onto it.
	persisted := &model.RoomRecord{
		Key:               testKey,
		Name:              "블랙룸",
		MaxCapacity:       10,
		RecommendCapacity: model.CapacityRange{Min: 6, Max: 8},
	}

	e := model.NewDefaultExtractedFields()
	e.CleanName = "블랙룸"
	e.MaxCapacity = model.Derived(3)

	record, _ := Room(persisted, RoomInput{Key: testKey, Extracted: e})
	assert.Equal(t, 3, record.MaxCapacity)
	assert.Equal(t, model.CapacityRange{Min: 3, Max: 3}, record.RecommendCapacity)
	assert.NoError(t, record.Validate())
}

func TestRoom_Idempotent(t *testing.T) {
	in := RoomInput{
		Key:          testKey,
		Extracted:    derivedExtraction(),
		PricePerHour: 12000,
		ImageURLs:    []string{"https://img/1.jpg"},
	}

	first, changed := Room(nil, in)
	require.True(t, changed)

	second, changed := Room(&first, in)
	assert.False(t, changed)
	assert.Equal(t, first, second)
}

func TestRoom_StructuredFieldsAlwaysRefresh(t *testing.T) {
	persisted := &model.RoomRecord{
		Key:          testKey,
		Name:         "룸A",
		MaxCapacity:  8,
		PricePerHour: 10000,
		ImageURLs:    []string{"https://img/old.jpg"},
	}

	e := model.NewDefaultExtractedFields()
	e.CleanName = "룸A"
	e.MaxCapacity = model.Derived(8)

	record, changed := Room(persisted, RoomInput{
		Key:          testKey,
		Extracted:    e,
		PricePerHour: 12000,
		ImageURLs:    []string{"https://img/new.jpg"},
	})
	require.True(t, changed)
	assert.Equal(t, 12000, record.PricePerHour)
	assert.Equal(t, []string{"https://img/new.jpg"}, record.ImageURLs)
}

func TestRoom_EmptyCleanNameKeepsPersisted(t *testing.T) {
	persisted := &model.RoomRecord{Key: testKey, Name: "블랙룸", MaxCapacity: 8}

	e := model.NewDefaultExtractedFields()

	record, _ := Room(persisted, RoomInput{Key: testKey, Extracted: e})
	assert.Equal(t, "블랙룸", record.Name)
}

func TestBranch_FirstSighting(t *testing.T) {
	fresh := model.BranchRecord{
		BusinessID:  "522011",
		Name:        "drum-studio",
		DisplayName: "드럼 연습실 합정점",
		Lat:         floatp(37.5665),
		Lng:         floatp(126.9784),
	}

	record, changed := Branch(nil, fresh)
	require.True(t, changed)
	assert.Equal(t, fresh, record)
}

func TestBranch_FillsMissingCoordinates(t *testing.T) {
	persisted := &model.BranchRecord{BusinessID: "522011", Name: "drum-studio"}
	fresh := model.BranchRecord{
		BusinessID: "522011",
		Lat:        floatp(37.5665),
		Lng:        floatp(126.9784),
	}

	record, changed := Branch(persisted, fresh)
	require.True(t, changed)
	require.NotNil(t, record.Lat)
	assert.InDelta(t, 37.5665, *record.Lat, 1e-9)
	assert.Equal(t, "drum-studio", record.Name)
}

func TestBranch_AbsentObservationKeepsPersisted(t *testing.T) {
	persisted := &model.BranchRecord{
		BusinessID:  "522011",
		Name:        "drum-studio",
		PhoneNumber: "02-1234-5678",
		Lat:         floatp(37.5665),
		Lng:         floatp(126.9784),
		StandbyDays: 14,
	}
	fresh := model.BranchRecord{BusinessID: "522011"}

	record, changed := Branch(persisted, fresh)
	assert.False(t, changed)
	assert.Equal(t, *persisted, record)
}

func TestBranch_ContactRefreshes(t *testing.T) {
	persisted := &model.BranchRecord{BusinessID: "522011", Name: "old", PhoneNumber: "02-0000-0000"}
	fresh := model.BranchRecord{BusinessID: "522011", Name: "new", PhoneNumber: "02-1234-5678"}

	record, changed := Branch(persisted, fresh)
	require.True(t, changed)
	assert.Equal(t, "new", record.Name)
	assert.Equal(t, "02-1234-5678", record.PhoneNumber)
}
