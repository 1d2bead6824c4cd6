package queue

import (
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is the default queue name used when no queue is specified
const DefaultQueueName = "default"

// DefaultMaxAttempts is the attempt budget stamped on tasks when the caller sets none.
const DefaultMaxAttempts = 3

// TaskType represents the type of task
type TaskType string

const (
	TaskTypeOneTime  TaskType = "one-time"
	TaskTypePeriodic TaskType = "periodic"
)

// TaskStatus represents the status of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusDead       TaskStatus = "dead"
)

// Priority represents task priority (0-100, higher is more important)
type Priority int8

// Priority constants
const (
	PriorityMin     Priority = 0
	PriorityLow     Priority = 25
	PriorityMedium  Priority = 50
	PriorityHigh    Priority = 75
	PriorityMax     Priority = 100
	PriorityDefault Priority = PriorityMedium
)

// Valid checks if the priority is within valid range
func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// Task represents a task in the queue.
//
// Key is the deduplication key: while a task holding a key is pending or
// processing, no other task with the same key can be created. Attempts counts
// claims and is incremented by the storage on every ClaimTask, so inside a
// handler it equals the 1-based number of the running attempt.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	Key         string     `json:"key,omitempty"`
	Queue       string     `json:"queue"`
	TaskType    TaskType   `json:"task_type"`
	TaskName    string     `json:"task_name"`
	Payload     []byte     `json:"payload,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	Exhausted   bool       `json:"exhausted,omitempty"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID `json:"locked_by,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// budgetSpent reports whether the task has used up its attempt budget
// and should only be escalated, never handled again.
func (t *Task) budgetSpent() bool {
	return t.Exhausted || t.Attempts > t.MaxAttempts
}

// DeadTask is a task that exhausted its attempts and was moved out of the
// active set for manual inspection.
type DeadTask struct {
	ID       uuid.UUID `json:"id"`
	TaskID   uuid.UUID `json:"task_id"`
	Key      string    `json:"key,omitempty"`
	Queue    string    `json:"queue"`
	TaskName string    `json:"task_name"`
	Payload  []byte    `json:"payload,omitempty"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}

// Failure describes how a failed attempt is written back to storage.
// A failed task always returns to pending at RetryAt; Exhausted marks it so
// that the next claim only retries escalation.
type Failure struct {
	Error     string
	RetryAt   time.Time
	Exhausted bool
}

// Stats is a snapshot of a single queue.
type Stats struct {
	Queue      string `json:"queue"`
	Pending    int    `json:"pending"`
	Processing int    `json:"processing"`
	Dead       int    `json:"dead"`
}
