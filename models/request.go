package models

type QueryTextRequest struct {
	Query     string `json:"query" binding:"required"`
	SessionID string `json:"sessionID,omitempty"`
}

type SummaryRequest struct {
	Texts []string `json:"texts" binding:"required,min=1"`
}
