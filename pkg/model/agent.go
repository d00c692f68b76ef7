package model

// AgentStatus tells how an agent run ended
type AgentStatus string

const (
	AgentStatusFinal     AgentStatus = "final"
	AgentStatusExhausted AgentStatus = "exhausted"
)

// AgentResult is the outcome of a single agent run. Memories are the hits that
// were injected into the system prompt.
type AgentResult struct {
	Status   AgentStatus  `json:"status"`
	Answer   string       `json:"answer"`
	Steps    int          `json:"steps"`
	Memories []*Hit       `json:"memories"`
	Saved    *MemoryEntry `json:"saved,omitempty"`
}
