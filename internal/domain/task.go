package domain

// Terminal and non-terminal states of an ingestion task.
const (
	TaskProcessing = "PROCESSING"
	TaskCompleted  = "COMPLETED"
	TaskFailed     = "FAILED"
	TaskCancelled  = "CANCELLED"
)

// TaskProgress is the shared progress record for a background ingestion
// task, polled by clients through the store.
type TaskProgress struct {
	TaskID     string `json:"taskId"`
	Percentage int    `json:"percentage"`
	Status     string `json:"statusDescription"`
	State      string `json:"state"`
	Error      string `json:"errorMessage,omitempty"`
}

// Done reports whether the task has reached a terminal state.
func (p *TaskProgress) Done() bool {
	return p.State == TaskCompleted || p.State == TaskFailed || p.State == TaskCancelled
}
