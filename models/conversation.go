package models

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one message of a chat session.
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session is the conversational state of one interactive user. It lives only
// as long as the process and is owned by the surface layer; the query engine
// only ever reads a copy of History.
type Session struct {
	ID      string             `json:"id"`
	Tenant  TenantID           `json:"tenant"`
	History []ConversationTurn `json:"history"`
}

// Answer is the query engine's response together with the context it used.
type Answer struct {
	Text    string           `json:"answer"`
	Sources []RetrievedChunk `json:"source_docs,omitempty"`
}
