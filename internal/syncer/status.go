package syncer

import (
	"time"

	"queuesync/internal/apperr"
	"queuesync/internal/queue"
)

// Status is the outcome of the current or last run
type Status struct {
	RunID       string            `json:"run_id,omitempty"`
	Stage       Stage             `json:"stage"`
	Running     bool              `json:"running"`
	StartedAt   time.Time         `json:"started_at,omitzero"`
	FinishedAt  time.Time         `json:"finished_at,omitzero"`
	FailedStage Stage             `json:"failed_stage,omitempty"`
	Kind        apperr.Kind       `json:"kind,omitempty"`
	Error       string            `json:"error,omitempty"`
	Result      *queue.SyncResult `json:"result,omitempty"`
}

// Status returns a copy of the current status
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.status
	if st.Result != nil {
		res := *st.Result
		st.Result = &res
	}
	return st
}
