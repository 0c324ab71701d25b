package models

// IngestionState is the coarse progress of one ingestion run.
type IngestionState string

const (
	StateIdle      IngestionState = "idle"
	StateParsing   IngestionState = "parsing"
	StateIndexing  IngestionState = "indexing"
	StateCompleted IngestionState = "completed"
	StateFailed    IngestionState = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s IngestionState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// IngestionResult is the outcome of one run. SampleChunkText is empty when
// the batch produced no chunks or the run failed.
type IngestionResult struct {
	Success         bool           `json:"success"`
	State           IngestionState `json:"state"`
	SampleChunkText string         `json:"sample_chunk_text,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	Chunks          int            `json:"chunks"`
	Succeeded       int            `json:"succeeded"`
	Failed          int            `json:"failed"`
}

// HasSample reports whether a sample chunk is available for summarising.
func (r IngestionResult) HasSample() bool {
	return r.SampleChunkText != ""
}

// IngestionStatus is what a poller sees for a background run.
type IngestionStatus struct {
	Handle  string           `json:"handle"`
	Tenant  TenantID         `json:"tenant"`
	Done    bool             `json:"done"`
	State   IngestionState   `json:"state"`
	Result  *IngestionResult `json:"result,omitempty"`
	Summary string           `json:"summary,omitempty"`
}
