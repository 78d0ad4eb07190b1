package model

import "time"

// RunMode selects what a collection run targets.
type RunMode string

const (
	// ModeRegionQuery collects venues matching one free-text map query.
	ModeRegionQuery RunMode = "region-query"
	// ModeSingleID collects one business by its booking ID.
	ModeSingleID RunMode = "single-id"
	// ModeNationwideAuto iterates the built-in (or configured) region list.
	ModeNationwideAuto RunMode = "nationwide-auto"
)

// RunStatus is the lifecycle state of a collection run.
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusCollecting RunStatus = "collecting"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCancelled  RunStatus = "cancelled"
)

// Stage names the pipeline step a venue was in when it failed.
type Stage string

const (
	StageDiscover  Stage = "discover"
	StageFetch     Stage = "fetch"
	StageExtract   Stage = "extract"
	StageReconcile Stage = "reconcile"
	StagePersist   Stage = "persist"
)

// Run is one persisted end-to-end execution of the collector.
type Run struct {
	ID        string     `json:"id"`
	Mode      RunMode    `json:"mode"`
	Target    string     `json:"target,omitempty"`
	Status    RunStatus  `json:"status"`
	Report    *RunReport `json:"report,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// VenueFailure records one failed venue (or region) with the stage it died in.
type VenueFailure struct {
	BusinessID string `json:"business_id"`
	BizItemID  string `json:"biz_item_id,omitempty"`
	Region     string `json:"region,omitempty"`
	Stage      Stage  `json:"stage"`
	Reason     string `json:"reason"`
}

// RunReport is the observable contract of a run: aggregate counts callers
// depend on for monitoring. It is only meaningful once every region has
// reached a terminal state.
type RunReport struct {
	Status RunStatus `json:"status"`

	Regions       int `json:"regions"`
	RegionsFailed int `json:"regions_failed"`

	VenuesDiscovered int `json:"venues_discovered"`
	VenuesFetched    int `json:"venues_fetched"`
	// VenuesSkipped counts venues the booking provider no longer lists.
	// Delisting is not a failure.
	VenuesSkipped   int `json:"venues_skipped,omitempty"`
	RoomsExtracted  int `json:"rooms_extracted"`
	VenuesPersisted int `json:"venues_persisted"`
	VenuesFailed    int `json:"venues_failed"`

	// FieldsDerived / FieldsDefaulted count extraction provenance per field
	// key across every extracted room.
	FieldsDerived   map[string]int `json:"fields_derived,omitempty"`
	FieldsDefaulted map[string]int `json:"fields_defaulted,omitempty"`

	// FailuresByStage groups failure counts by pipeline stage.
	FailuresByStage map[Stage]int  `json:"failures_by_stage,omitempty"`
	Failures        []VenueFailure `json:"failures,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewRunReport returns an empty report with its count maps initialized.
func NewRunReport() *RunReport {
	return &RunReport{
		Status:          RunStatusPending,
		FieldsDerived:   make(map[string]int),
		FieldsDefaulted: make(map[string]int),
		FailuresByStage: make(map[Stage]int),
	}
}

// RecordExtraction folds one room's field provenance into the aggregate.
func (r *RunReport) RecordExtraction(e ExtractedFields) {
	r.RoomsExtracted++
	for field, prov := range e.ProvenanceByField() {
		if prov == ProvenanceDerived {
			r.FieldsDerived[field]++
		} else {
			r.FieldsDefaulted[field]++
		}
	}
}

// RecordFailure appends a failure and bumps its stage counter.
func (r *RunReport) RecordFailure(f VenueFailure) {
	r.Failures = append(r.Failures, f)
	r.FailuresByStage[f.Stage]++
	if f.Stage == StageDiscover {
		r.RegionsFailed++
	} else {
		r.VenuesFailed++
	}
}
