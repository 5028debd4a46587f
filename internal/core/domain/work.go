package domain

import "context"

// WorkStatus represents the lifecycle state of a work item.
type WorkStatus string

const (
	// WorkPending indicates the item is queued.
	WorkPending WorkStatus = "Pending"
	// WorkRunning indicates a worker is executing the item.
	WorkRunning WorkStatus = "Running"
	// WorkCompleted indicates the item produced a score.
	WorkCompleted WorkStatus = "Completed"
	// WorkFailed indicates the item produced an error.
	WorkFailed WorkStatus = "Failed"
)

// WorkItem is a pending utility call submitted to an executor.
type WorkItem struct {
	ID   uint64
	Call UtilityCall
	// Run evaluates the call in-process. Remote executors ship Call instead.
	Run func(ctx context.Context) (float64, error)
}
