package model

import "time"

// TaskStatus is the progress state of a task.
type TaskStatus string

// Recognized task statuses.
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusDone      TaskStatus = "done"
)

// IsValid returns whether the status is recognized.
func (status TaskStatus) IsValid() bool {
	switch status {
	case TaskStatusPending, TaskStatusCompleted, TaskStatusDone:
		return true
	}
	return false
}

// Task is a unit of work owned by a single user for its whole lifetime.
type Task struct {
	ID          string     `json:"id"` // uuid
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	UserID      string     `json:"userId"`
	Order       int        `json:"order"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// IsOwnedBy reports whether userID owns the task.
func (task *Task) IsOwnedBy(userID string) bool {
	return task.UserID == userID
}

// TaskUpdate holds the fields that may be changed through a general update.
// Owner and order cannot be changed through it.
type TaskUpdate struct {
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	Status      *TaskStatus `json:"status,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (update TaskUpdate) IsEmpty() bool {
	return update.Title == nil && update.Description == nil && update.Status == nil
}

// Validate checks the values present in the update.
func (update TaskUpdate) Validate() error {
	v := NewValidator()
	if update.Title != nil {
		v.CheckCond(*update.Title != "", "title", "must not be empty")
		v.CheckCond(len(*update.Title) <= 255, "title", "must be at most 255 characters")
	}
	if update.Status != nil {
		v.CheckCond(update.Status.IsValid(), "status", "must be one of pending, completed, done")
	}
	return v.Err()
}

// Update creates a new copy of task and updates fields from update.
// If update is empty, no new copy is created, and the original instance
// is returned.
func (task *Task) Update(update TaskUpdate) *Task {
	if update.IsEmpty() {
		return task
	}
	updated := *task
	if update.Title != nil {
		updated.Title = *update.Title
	}
	if update.Description != nil {
		updated.Description = *update.Description
	}
	if update.Status != nil {
		updated.Status = *update.Status
	}
	return &updated
}

// TaskOrder assigns a display position to a task.
type TaskOrder struct {
	TaskID string `json:"taskId"`
	Order  int    `json:"order"`
}
