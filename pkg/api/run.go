package api

import "time"

// RunStatus is the explicit terminal status of one agent run.
type RunStatus string

const (
	RunStatusCompleted       RunStatus = "completed"
	RunStatusBudgetExhausted RunStatus = "budget_exhausted"
	RunStatusFailed          RunStatus = "failed"
	RunStatusCancelled       RunStatus = "cancelled"
)

// TurnKind tags one entry of a conversation.
type TurnKind string

const (
	TurnInstruction TurnKind = "instruction"
	TurnModel       TurnKind = "model"
	TurnAction      TurnKind = "action"
	TurnObservation TurnKind = "observation"
)

// Turn is one entry of the conversation state owned by the agent loop.
// Role is the chat role the turn is sent to the model with. Model turns
// keep the raw reply for the record and carry no role; the action turn that
// follows carries the normalised assistant message instead.
type Turn struct {
	Kind        TurnKind     `json:"kind"`
	Iteration   int          `json:"iteration"`
	Role        string       `json:"role,omitempty"`
	Content     string       `json:"content"`
	ActionKind  string       `json:"action_kind,omitempty"`
	Observation *Observation `json:"observation,omitempty"`
}

// Run is the persisted record of a finished agent run.
type Run struct {
	ID          string    `json:"id"`
	Task        string    `json:"task"`
	Model       string    `json:"model"`
	SessionID   string    `json:"session_id"`
	Status      RunStatus `json:"status"`
	Answer      string    `json:"answer"`
	Iterations  int       `json:"iterations"`
	Error       string    `json:"error,omitempty"`
	Turns       []Turn    `json:"turns"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at"`
}
