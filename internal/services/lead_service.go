package services

import (
	"context"
	"strings"

	"erp-backend/internal/apperr"
	"erp-backend/internal/logging"
	"erp-backend/internal/models"
	"erp-backend/internal/repositories"
	"erp-backend/internal/store"
	"erp-backend/internal/timeutil"
	"erp-backend/internal/validation"

	"github.com/rs/zerolog"
)

type LeadService struct {
	Repos    *repositories.Repositories
	Notifier Notifier
	now      timeutil.Clock
	log      zerolog.Logger
}

func NewLeadService(repos *repositories.Repositories, n Notifier, clock timeutil.Clock) *LeadService {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &LeadService{Repos: repos, Notifier: notifierOrNop(n), now: clock, log: logging.For("leads")}
}

func (s *LeadService) CreateLead(ctx context.Context, actor models.Actor, req *models.CreateLeadRequest) (*models.Lead, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	l := &models.Lead{
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.TrimSpace(req.Email),
		Phone:        req.Phone,
		Company:      req.Company,
		BusinessType: req.BusinessType,
		Source:       req.Source,
		Priority:     req.Priority,
		AssignedTo:   req.AssignedTo,
		Notes:        req.Notes,
		CreatedBy:    actor.ID,
	}
	if err := s.Repos.Leads.Create(ctx, l); err != nil {
		return nil, err
	}
	s.log.Info().Str("lead_id", l.ID).Str("business_type", l.BusinessType).Msg("lead created")
	s.Notifier.LeadUpdate(l.ID, "created", map[string]interface{}{"name": l.Name})
	return l, nil
}

func (s *LeadService) GetLead(ctx context.Context, id string) (*models.Lead, error) {
	return s.Repos.Leads.Get(ctx, id)
}

func (s *LeadService) ListLeads(ctx context.Context, businessType string) ([]*models.Lead, error) {
	return s.Repos.Leads.List(ctx, businessType)
}

func (s *LeadService) UpdateLead(ctx context.Context, id string, req *models.UpdateLeadRequest) (*models.Lead, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	l, err := s.Repos.Leads.Update(ctx, id, 0, func(l *models.Lead) error {
		if l.IsDeleted() {
			return apperr.NotFound("lead not found")
		}
		if l.Status == models.LeadConverted {
			return apperr.Conflict("Lead already converted")
		}
		if req.Name != nil {
			l.Name = strings.TrimSpace(*req.Name)
		}
		if req.Email != nil {
			l.Email = strings.TrimSpace(*req.Email)
		}
		if req.Phone != nil {
			l.Phone = *req.Phone
		}
		if req.Company != nil {
			l.Company = *req.Company
		}
		if req.BusinessType != nil {
			l.BusinessType = *req.BusinessType
		}
		if req.Source != nil {
			l.Source = *req.Source
		}
		if req.Priority != nil {
			l.Priority = *req.Priority
		}
		if req.Status != nil {
			l.Status = *req.Status
		}
		if req.AssignedTo != nil {
			l.AssignedTo = *req.AssignedTo
		}
		if req.Notes != nil {
			l.Notes = *req.Notes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Notifier.LeadUpdate(l.ID, "updated", map[string]interface{}{"status": l.Status})
	return l, nil
}

func (s *LeadService) DeleteLead(ctx context.Context, id string) error {
	if err := s.Repos.Leads.Delete(ctx, id); err != nil {
		return err
	}
	s.Notifier.LeadUpdate(id, "deleted", nil)
	return nil
}

// ConvertLead turns a lead into a client and a project. The two inserts and
// the lead's status flip commit together or not at all.
func (s *LeadService) ConvertLead(ctx context.Context, actor models.Actor, id string, req *models.ConvertLeadRequest) (*models.LeadConversion, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if err := checkDates(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}

	var out models.LeadConversion
	err := s.Repos.Store.Update(ctx, func(tx *store.Tx) error {
		lead, err := s.Repos.Leads.GetTx(tx, id)
		if err != nil {
			return err
		}
		if lead.IsDeleted() {
			return apperr.NotFound("lead not found")
		}
		if lead.Status == models.LeadConverted {
			return apperr.Conflict("Lead already converted")
		}

		client := &models.Client{
			Name:         firstNonEmpty(req.ClientName, lead.Name),
			Email:        lead.Email,
			Phone:        lead.Phone,
			Company:      firstNonEmpty(req.Company, lead.Company),
			BusinessType: lead.BusinessType,
			Notes:        "Converted from lead " + lead.ID,
			CreatedBy:    actor.ID,
		}
		if client.BusinessType == "" {
			client.BusinessType = models.BusinessInstallation
		}
		if err := s.Repos.Clients.CreateTx(tx, client); err != nil {
			return err
		}

		projectType := req.ProjectType
		if projectType == "" {
			projectType = lead.BusinessType
		}
		if projectType != models.BusinessManufacturing {
			projectType = models.BusinessInstallation
		}
		project := &models.Project{
			Name:        strings.TrimSpace(req.ProjectName),
			Type:        projectType,
			ClientID:    client.ID,
			Description: req.Description,
			Budget:      req.Budget,
			StartDate:   req.StartDate,
			EndDate:     req.EndDate,
			CreatedBy:   actor.ID,
		}
		if lead.AssignedTo != "" {
			project.AssignedEmployees = []string{lead.AssignedTo}
		}
		if err := s.Repos.Projects.CreateTx(tx, project); err != nil {
			return err
		}

		now := s.now()
		lead, err = s.Repos.Leads.UpdateTx(tx, id, 0, func(l *models.Lead) error {
			l.Status = models.LeadConverted
			l.ConvertedClientID = client.ID
			l.ConvertedProjectID = project.ID
			l.ConvertedAt = &now
			return nil
		})
		if err != nil {
			return err
		}

		out = models.LeadConversion{Lead: lead, Client: client, Project: project}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("lead_id", id).Str("client_id", out.Client.ID).Str("project_id", out.Project.ID).Msg("lead converted")
	s.Notifier.LeadUpdate(id, "converted", map[string]interface{}{
		"client_id":  out.Client.ID,
		"project_id": out.Project.ID,
	})
	s.Notifier.ProjectUpdate(out.Project.ID, "created", map[string]interface{}{"name": out.Project.Name})
	return &out, nil
}

// AutoAssign hands unassigned new leads to active employees in turn and
// returns the leads it assigned.
func (s *LeadService) AutoAssign(ctx context.Context) ([]*models.Lead, error) {
	var assigned []*models.Lead
	err := s.Repos.Store.Update(ctx, func(tx *store.Tx) error {
		assigned = assigned[:0]

		employees, err := s.Repos.Users.ListTx(tx, models.RoleEmployee)
		if err != nil || len(employees) == 0 {
			return err
		}
		leads, err := s.Repos.Leads.ListTx(tx, "")
		if err != nil {
			return err
		}

		next := 0
		for _, l := range leads {
			if l.Status != models.LeadNew || l.AssignedTo != "" {
				continue
			}
			emp := employees[next%len(employees)]
			next++
			updated, err := s.Repos.Leads.UpdateTx(tx, l.ID, 0, func(l *models.Lead) error {
				l.AssignedTo = emp.ID
				return nil
			})
			if err != nil {
				return err
			}
			assigned = append(assigned, updated)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, l := range assigned {
		s.Notifier.NotifyUser(l.AssignedTo, "New Lead Assigned", "Lead "+l.Name+" has been assigned to you",
			map[string]interface{}{"lead_id": l.ID})
	}
	if len(assigned) > 0 {
		s.log.Info().Int("count", len(assigned)).Msg("leads auto-assigned")
	}
	return assigned, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
