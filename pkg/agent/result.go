package agent

import (
	"time"

	"github.com/rhuss/datasci/pkg/api"
)

// Result is the outcome of one run. Status is always set; Answer holds the
// final answer, or the last thought when the budget ran out.
type Result struct {
	RunID       string
	Task        string
	Model       string
	Status      api.RunStatus
	Answer      string
	Iterations  int
	SessionID   string
	Turns       []api.Turn
	Err         error
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Record converts the result into its persisted form.
func (r *Result) Record() *api.Run {
	run := &api.Run{
		ID:          r.RunID,
		Task:        r.Task,
		Model:       r.Model,
		SessionID:   r.SessionID,
		Status:      r.Status,
		Answer:      r.Answer,
		Iterations:  r.Iterations,
		Turns:       r.Turns,
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt,
	}
	if r.Err != nil {
		run.Error = r.Err.Error()
	}
	return run
}
