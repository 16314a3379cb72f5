package models

import (
	"time"
)

// Task represents a unit of work flowing through the distributor.
type Task struct {
	ID           string     `json:"task_id"`
	Type         string     `json:"type"`
	Requirements []string   `json:"requirements"`
	Priority     int        `json:"priority"`
	Status       TaskStatus `json:"status"`
	AssignedTo   string     `json:"assigned_to,omitempty"`
	ClientID     string     `json:"client_id,omitempty"`
	Parameters   JSONMap    `json:"parameters,omitempty"`
	Ownership    Ownership  `json:"ownership"`

	SubmittedAt time.Time  `json:"submitted_at"`
	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusAssigned  TaskStatus = "assigned"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// taskTransitions holds the allowed forward transitions. Terminal
// states are absorbing.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:   {TaskStatusAssigned},
	TaskStatusAssigned:  {TaskStatusCompleted, TaskStatusFailed},
	TaskStatusCompleted: {},
	TaskStatusFailed:    {},
}

// CanTransitionTo reports whether moving from the task's current status
// to the target status is a legal lifecycle step.
func (t *Task) CanTransitionTo(target TaskStatus) bool {
	for _, s := range taskTransitions[t.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the task is in a terminal state.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// JSONMap is a convenience alias for JSON-shaped boundary payloads.
type JSONMap map[string]interface{}
