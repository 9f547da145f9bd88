package services

import (
	"context"
	"strings"

	"erp-backend/internal/apperr"
	"erp-backend/internal/logging"
	"erp-backend/internal/models"
	"erp-backend/internal/repositories"
	"erp-backend/internal/timeutil"
	"erp-backend/internal/validation"

	"github.com/rs/zerolog"
)

type TaskService struct {
	Repos    *repositories.Repositories
	Notifier Notifier
	now      timeutil.Clock
	log      zerolog.Logger
}

func NewTaskService(repos *repositories.Repositories, n Notifier, clock timeutil.Clock) *TaskService {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &TaskService{Repos: repos, Notifier: notifierOrNop(n), now: clock, log: logging.For("tasks")}
}

func (s *TaskService) checkRefs(ctx context.Context, projectID, assignee string) error {
	if projectID != "" {
		if _, err := s.Repos.Projects.Get(ctx, projectID); err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				return apperr.Validation("Project not found")
			}
			return err
		}
	}
	if assignee != "" {
		u, err := s.Repos.Users.Get(ctx, assignee)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				return apperr.Validation("Assignee not found")
			}
			return err
		}
		if !u.IsActive() {
			return apperr.Validation("Assignee is inactive")
		}
	}
	return nil
}

func (s *TaskService) CreateTask(ctx context.Context, actor models.Actor, req *models.CreateTaskRequest) (*models.Task, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if err := s.checkRefs(ctx, req.ProjectID, req.AssignedTo); err != nil {
		return nil, err
	}

	t := &models.Task{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		ProjectID:   req.ProjectID,
		AssignedTo:  req.AssignedTo,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
		CreatedBy:   actor.ID,
	}
	if err := s.Repos.Tasks.Create(ctx, t); err != nil {
		return nil, err
	}
	s.log.Info().Str("task_id", t.ID).Str("assigned_to", t.AssignedTo).Msg("task created")
	s.Notifier.TaskUpdate(t.AssignedTo, t.ID, "assigned", map[string]interface{}{"title": t.Title})
	return t, nil
}

func canSeeTask(actor models.Actor, t *models.Task) bool {
	return actor.IsStaff() || t.AssignedTo == actor.ID || t.CreatedBy == actor.ID
}

func (s *TaskService) GetTask(ctx context.Context, actor models.Actor, id string) (*models.Task, error) {
	t, err := s.Repos.Tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSeeTask(actor, t) {
		return nil, apperr.Forbidden("Access denied")
	}
	return t, nil
}

// ListTasks applies the filter. Employees only ever see their own tasks.
func (s *TaskService) ListTasks(ctx context.Context, actor models.Actor, f models.TaskFilter) ([]*models.Task, error) {
	if !actor.IsStaff() {
		f.AssignedTo = actor.ID
	}
	return s.Repos.Tasks.List(ctx, f)
}

// UpdateTask applies a partial update. Employees may only move the status
// of tasks assigned to them.
func (s *TaskService) UpdateTask(ctx context.Context, actor models.Actor, id string, req *models.UpdateTaskRequest) (*models.Task, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if !actor.IsStaff() {
		if req.Title != nil || req.Description != nil || req.ProjectID != nil ||
			req.AssignedTo != nil || req.Priority != nil || req.DueDate != nil {
			return nil, apperr.Forbidden("Employees can only update task status")
		}
	}
	var project, assignee string
	if req.ProjectID != nil {
		project = *req.ProjectID
	}
	if req.AssignedTo != nil {
		assignee = *req.AssignedTo
	}
	if err := s.checkRefs(ctx, project, assignee); err != nil {
		return nil, err
	}

	previousAssignee := ""
	t, err := s.Repos.Tasks.Update(ctx, id, 0, func(t *models.Task) error {
		if t.IsDeleted() {
			return apperr.NotFound("task not found")
		}
		if !actor.IsStaff() && t.AssignedTo != actor.ID {
			return apperr.Forbidden("Access denied")
		}
		previousAssignee = t.AssignedTo
		if req.Title != nil {
			t.Title = strings.TrimSpace(*req.Title)
		}
		if req.Description != nil {
			t.Description = *req.Description
		}
		if req.ProjectID != nil {
			t.ProjectID = *req.ProjectID
		}
		if req.AssignedTo != nil {
			t.AssignedTo = *req.AssignedTo
		}
		if req.Priority != nil {
			t.Priority = *req.Priority
		}
		if req.DueDate != nil {
			t.DueDate = *req.DueDate
		}
		if req.Status != nil && *req.Status != t.Status {
			t.Status = *req.Status
			if t.Status == models.TaskCompleted {
				now := s.now()
				t.CompletedAt = &now
			} else {
				t.CompletedAt = nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if t.AssignedTo != previousAssignee {
		s.Notifier.TaskUpdate(t.AssignedTo, t.ID, "assigned", map[string]interface{}{"title": t.Title})
	} else if actor.ID != t.AssignedTo {
		s.Notifier.TaskUpdate(t.AssignedTo, t.ID, "updated", map[string]interface{}{"status": t.Status})
	}
	return t, nil
}

func (s *TaskService) DeleteTask(ctx context.Context, id string) error {
	return s.Repos.Tasks.Delete(ctx, id)
}
