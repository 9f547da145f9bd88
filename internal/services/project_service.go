package services

import (
	"context"
	"math"
	"strings"

	"erp-backend/internal/apperr"
	"erp-backend/internal/logging"
	"erp-backend/internal/models"
	"erp-backend/internal/repositories"
	"erp-backend/internal/store"
	"erp-backend/internal/validation"

	"github.com/rs/zerolog"
)

type ProjectService struct {
	Repos    *repositories.Repositories
	Notifier Notifier
	log      zerolog.Logger
}

func NewProjectService(repos *repositories.Repositories, n Notifier) *ProjectService {
	return &ProjectService{Repos: repos, Notifier: notifierOrNop(n), log: logging.For("projects")}
}

func checkDates(start, end string) error {
	if start != "" && end != "" && end < start {
		return apperr.Validation("End date cannot be before start date")
	}
	return nil
}

// requireEmployees checks that every id is an active user.
func (s *ProjectService) requireEmployees(tx *store.Tx, ids []string) error {
	for _, id := range ids {
		u, err := s.Repos.Users.GetTx(tx, id)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				return apperr.Validation("Employee %s not found", id)
			}
			return err
		}
		if !u.IsActive() {
			return apperr.Validation("Employee %s is inactive", id)
		}
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s *ProjectService) CreateProject(ctx context.Context, actor models.Actor, req *models.CreateProjectRequest) (*models.Project, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if err := checkDates(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}

	p := &models.Project{
		Name:              strings.TrimSpace(req.Name),
		Type:              req.Type,
		ClientID:          req.ClientID,
		Description:       req.Description,
		Budget:            req.Budget,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		AssignedEmployees: dedupe(req.AssignedEmployees),
		CreatedBy:         actor.ID,
	}
	err := s.Repos.Store.Update(ctx, func(tx *store.Tx) error {
		client, err := s.Repos.Clients.GetTx(tx, req.ClientID)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				return apperr.Validation("Client not found")
			}
			return err
		}
		if client.IsDeleted() {
			return apperr.Validation("Client is inactive")
		}
		if err := s.requireEmployees(tx, p.AssignedEmployees); err != nil {
			return err
		}
		return s.Repos.Projects.CreateTx(tx, p)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("project_id", p.ID).Str("type", p.Type).Float64("budget", p.Budget).Msg("project created")
	s.Notifier.ProjectUpdate(p.ID, "created", map[string]interface{}{"name": p.Name, "status": p.Status})
	return p, nil
}

// GetProject returns a project. Employees only see projects they are
// assigned to.
func (s *ProjectService) GetProject(ctx context.Context, actor models.Actor, id string) (*models.Project, error) {
	p, err := s.Repos.Projects.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleEmployee && !p.IsAssigned(actor.ID) {
		return nil, apperr.Forbidden("Access denied")
	}
	return p, nil
}

func (s *ProjectService) ListProjects(ctx context.Context, actor models.Actor, projectType string) ([]*models.Project, error) {
	projects, err := s.Repos.Projects.List(ctx, projectType)
	if err != nil || actor.Role != models.RoleEmployee {
		return projects, err
	}
	visible := projects[:0]
	for _, p := range projects {
		if p.IsAssigned(actor.ID) {
			visible = append(visible, p)
		}
	}
	return visible, nil
}

func (s *ProjectService) MyProjects(ctx context.Context, actor models.Actor) ([]*models.Project, error) {
	return s.Repos.Projects.ListByEmployee(ctx, actor.ID)
}

func (s *ProjectService) UpdateProject(ctx context.Context, id string, req *models.UpdateProjectRequest) (*models.Project, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	var out *models.Project
	err := s.Repos.Store.Update(ctx, func(tx *store.Tx) error {
		if req.ClientID != nil {
			if _, err := s.Repos.Clients.GetTx(tx, *req.ClientID); err != nil {
				if apperr.Is(err, apperr.KindNotFound) {
					return apperr.Validation("Client not found")
				}
				return err
			}
		}
		var err error
		out, err = s.Repos.Projects.UpdateTx(tx, id, req.Version, func(p *models.Project) error {
			if p.IsDeleted() {
				return apperr.NotFound("project not found")
			}
			if req.Name != nil {
				p.Name = strings.TrimSpace(*req.Name)
			}
			if req.Type != nil {
				p.Type = *req.Type
			}
			if req.ClientID != nil {
				p.ClientID = *req.ClientID
			}
			if req.Description != nil {
				p.Description = *req.Description
			}
			if req.Budget != nil {
				p.Budget = *req.Budget
			}
			if req.Progress != nil {
				p.Progress = *req.Progress
			}
			if req.Status != nil {
				applyStatus(p, *req.Status)
			}
			if req.StartDate != nil {
				p.StartDate = *req.StartDate
			}
			if req.EndDate != nil {
				p.EndDate = *req.EndDate
			}
			return checkDates(p.StartDate, p.EndDate)
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Notifier.ProjectUpdate(out.ID, "updated", map[string]interface{}{"status": out.Status, "progress": out.Progress})
	return out, nil
}

func applyStatus(p *models.Project, status string) {
	p.Status = status
	if status == models.ProjectCompleted {
		p.Progress = 100
	}
}

func validProjectStatus(status string) bool {
	for _, st := range models.ProjectStatuses {
		if st == status {
			return true
		}
	}
	return false
}

func (s *ProjectService) UpdateStatus(ctx context.Context, id string, req *models.ProjectStatusRequest) (*models.Project, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if !validProjectStatus(req.Status) {
		return nil, apperr.Validation("Invalid status. Must be one of: %s", strings.Join(models.ProjectStatuses, ", "))
	}

	p, err := s.Repos.Projects.Update(ctx, id, 0, func(p *models.Project) error {
		if p.IsDeleted() {
			return apperr.NotFound("project not found")
		}
		applyStatus(p, req.Status)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("project_id", id).Str("status", p.Status).Msg("project status changed")
	s.Notifier.ProjectUpdate(id, "status_changed", map[string]interface{}{"status": p.Status})
	return p, nil
}

// AssignEmployees adds employees to a project, keeping existing assignments.
func (s *ProjectService) AssignEmployees(ctx context.Context, id string, req *models.AssignEmployeesRequest) (*models.Project, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	ids := dedupe(req.EmployeeIDs)

	var out *models.Project
	err := s.Repos.Store.Update(ctx, func(tx *store.Tx) error {
		if err := s.requireEmployees(tx, ids); err != nil {
			return err
		}
		var err error
		out, err = s.Repos.Projects.UpdateTx(tx, id, 0, func(p *models.Project) error {
			if p.IsDeleted() {
				return apperr.NotFound("project not found")
			}
			p.AssignedEmployees = dedupe(append(p.AssignedEmployees, ids...))
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, emp := range ids {
		s.Notifier.NotifyUser(emp, "Project Assignment", "You have been assigned to project "+out.Name,
			map[string]interface{}{"project_id": out.ID})
	}
	s.Notifier.ProjectUpdate(out.ID, "employees_assigned", map[string]interface{}{"employee_ids": ids})
	return out, nil
}

func (s *ProjectService) DeleteProject(ctx context.Context, id string) error {
	if err := s.Repos.Projects.Delete(ctx, id); err != nil {
		return err
	}
	s.Notifier.ProjectUpdate(id, "deleted", nil)
	return nil
}

func (s *ProjectService) Statistics(ctx context.Context) (*models.ProjectStatistics, error) {
	projects, err := s.Repos.Projects.List(ctx, "")
	if err != nil {
		return nil, err
	}
	stats := &models.ProjectStatistics{}
	for _, p := range projects {
		stats.Total++
		stats.TotalRevenue += p.Budget
		switch p.Status {
		case models.ProjectInProgress:
			stats.Active++
		case models.ProjectCompleted:
			stats.Completed++
		case models.ProjectPending:
			stats.Pending++
		}
	}
	if stats.Total > 0 {
		stats.AverageProjectValue = round2(stats.TotalRevenue / float64(stats.Total))
		stats.CompletionRate = round2(float64(stats.Completed) / float64(stats.Total) * 100)
	}
	return stats, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
