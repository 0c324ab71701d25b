package models

// Chunk is an embeddable unit of text extracted from one source document.
// Chunks are not modified after the extractor produces them.
type Chunk struct {
	Text     string `json:"text"`
	Filename string `json:"filename"`
	// SourcePosition is the 0-based index of the chunk inside its document.
	SourcePosition *int `json:"source_position,omitempty"`
}

// Position returns the source position, or -1 when it is unknown.
func (c Chunk) Position() int {
	if c.SourcePosition == nil {
		return -1
	}
	return *c.SourcePosition
}

// IntPtr is a small helper for building chunks with a known position.
func IntPtr(v int) *int {
	return &v
}

// RetrievedChunk is a single similarity search hit. Lower distance means a
// closer match; the metric itself is defined by the index.
type RetrievedChunk struct {
	Text           string  `json:"text"`
	Filename       string  `json:"filename"`
	Distance       float64 `json:"distance"`
	SourcePosition *int    `json:"source_position,omitempty"`
}

// UploadReport summarises one batch write. A report with Failed > 0 is a
// partial failure, which callers log but do not treat as an error.
type UploadReport struct {
	Succeeded     int            `json:"succeeded"`
	Failed        int            `json:"failed"`
	FailedObjects []FailedObject `json:"failed_objects,omitempty"`
}

// FailedObject identifies a chunk the store refused to accept.
type FailedObject struct {
	Index    int    `json:"index"`
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// Merge folds another report into r.
func (r *UploadReport) Merge(other UploadReport) {
	r.Succeeded += other.Succeeded
	r.Failed += other.Failed
	r.FailedObjects = append(r.FailedObjects, other.FailedObjects...)
}

// FailedFilenames lists the filenames of failed objects, for logging.
func (r UploadReport) FailedFilenames() []string {
	names := make([]string, 0, len(r.FailedObjects))
	for _, f := range r.FailedObjects {
		names = append(names, f.Filename)
	}
	return names
}
