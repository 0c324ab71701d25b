package models

type QueryRAGResponse struct {
	Answer     string           `json:"answer"`
	SourceDocs []RetrievedChunk `json:"source_docs,omitempty"`
	SessionID  string           `json:"sessionID"`
}

type BeginIngestionResponse struct {
	Handle string   `json:"handle"`
	Tenant TenantID `json:"tenant"`
}

type UploadResponse struct {
	Tenant TenantID `json:"tenant"`
	Files  []string `json:"files"`
}

type SummaryResponse struct {
	Summary string `json:"summary"`
}

// DocumentsResponse maps each requested filename to its full indexed text.
type DocumentsResponse struct {
	Tenant    TenantID          `json:"tenant"`
	Count     int               `json:"count"`
	Documents map[string]string `json:"documents"`
}

type DeleteDocumentsResponse struct {
	Tenant  TenantID `json:"tenant"`
	Deleted int      `json:"deleted"`
}
