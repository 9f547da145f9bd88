package models

import "time"

const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
)

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	ProjectID   string     `json:"project_id,omitempty"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	DueDate     string     `json:"due_date,omitempty"`
	CreatedBy   string     `json:"created_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Meta
}

func (t *Task) RecordID() string { return t.ID }

type TaskFilter struct {
	AssignedTo string
	ProjectID  string
	Status     string
}

type CreateTaskRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	ProjectID   string `json:"project_id"`
	AssignedTo  string `json:"assigned_to"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueDate     string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	ProjectID   *string `json:"project_id,omitempty"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	Priority    *string `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	Status      *string `json:"status,omitempty" validate:"omitempty,oneof=pending in_progress completed"`
	DueDate     *string `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}
