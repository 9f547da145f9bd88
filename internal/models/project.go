package models

const (
	ProjectPending    = "pending"
	ProjectInProgress = "in_progress"
	ProjectCompleted  = "completed"
	ProjectOnHold     = "on_hold"
	ProjectCancelled  = "cancelled"
	ProjectDeleted    = "deleted"
)

// ProjectStatuses are the statuses a caller may set explicitly.
var ProjectStatuses = []string{ProjectPending, ProjectInProgress, ProjectCompleted, ProjectOnHold, ProjectCancelled}

type Project struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Type              string   `json:"type"` // installation or manufacturing
	ClientID          string   `json:"client_id"`
	Description       string   `json:"description"`
	Budget            float64  `json:"budget"`
	Progress          int      `json:"progress"`
	Status            string   `json:"status"`
	StartDate         string   `json:"start_date,omitempty"` // YYYY-MM-DD
	EndDate           string   `json:"end_date,omitempty"`
	AssignedEmployees []string `json:"assigned_employees"`
	CreatedBy         string   `json:"created_by"`
	Meta
}

func (p *Project) RecordID() string { return p.ID }

// IsAssigned reports whether userID may see the project as an employee.
func (p *Project) IsAssigned(userID string) bool {
	for _, id := range p.AssignedEmployees {
		if id == userID {
			return true
		}
	}
	return false
}

type CreateProjectRequest struct {
	Name              string   `json:"name" validate:"required"`
	Type              string   `json:"type" validate:"required,oneof=installation manufacturing"`
	ClientID          string   `json:"client_id" validate:"required"`
	Description       string   `json:"description"`
	Budget            float64  `json:"budget" validate:"gte=0"`
	StartDate         string   `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate           string   `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	AssignedEmployees []string `json:"assigned_employees"`
}

type UpdateProjectRequest struct {
	Name        *string  `json:"name,omitempty"`
	Type        *string  `json:"type,omitempty" validate:"omitempty,oneof=installation manufacturing"`
	ClientID    *string  `json:"client_id,omitempty"`
	Description *string  `json:"description,omitempty"`
	Budget      *float64 `json:"budget,omitempty" validate:"omitempty,gte=0"`
	Progress    *int     `json:"progress,omitempty" validate:"omitempty,gte=0,lte=100"`
	Status      *string  `json:"status,omitempty" validate:"omitempty,oneof=pending in_progress completed on_hold cancelled"`
	StartDate   *string  `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate     *string  `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	// Version enables optimistic concurrency when non-zero
	Version int64 `json:"version,omitempty"`
}

type AssignEmployeesRequest struct {
	EmployeeIDs []string `json:"employee_ids" validate:"required,min=1,dive,required"`
}

type ProjectStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type ProjectStatistics struct {
	Total               int     `json:"total"`
	Active              int     `json:"active"`
	Completed           int     `json:"completed"`
	Pending             int     `json:"pending"`
	TotalRevenue        float64 `json:"total_revenue"`
	AverageProjectValue float64 `json:"average_project_value"`
	CompletionRate      float64 `json:"completion_rate"`
}
