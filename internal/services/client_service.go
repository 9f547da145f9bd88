package services

import (
	"context"
	"strings"

	"erp-backend/internal/logging"
	"erp-backend/internal/models"
	"erp-backend/internal/repositories"
	"erp-backend/internal/validation"

	"github.com/rs/zerolog"
)

type ClientService struct {
	Repo     *repositories.ClientRepository
	Projects *repositories.ProjectRepository
	log      zerolog.Logger
}

func NewClientService(repo *repositories.ClientRepository, projects *repositories.ProjectRepository) *ClientService {
	return &ClientService{Repo: repo, Projects: projects, log: logging.For("clients")}
}

func (s *ClientService) CreateClient(ctx context.Context, actor models.Actor, req *models.CreateClientRequest) (*models.Client, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	c := &models.Client{
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.TrimSpace(req.Email),
		Phone:        req.Phone,
		Company:      req.Company,
		BusinessType: req.BusinessType,
		Address:      req.Address,
		Notes:        req.Notes,
		CreatedBy:    actor.ID,
	}
	if err := s.Repo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.log.Info().Str("client_id", c.ID).Msg("client created")
	return c, nil
}

func (s *ClientService) GetClient(ctx context.Context, id string) (*models.Client, error) {
	return s.Repo.Get(ctx, id)
}

func (s *ClientService) ListClients(ctx context.Context, businessType string) ([]*models.Client, error) {
	return s.Repo.List(ctx, businessType)
}

func (s *ClientService) UpdateClient(ctx context.Context, id string, req *models.UpdateClientRequest) (*models.Client, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	return s.Repo.Update(ctx, id, 0, func(c *models.Client) error {
		if req.Name != nil {
			c.Name = strings.TrimSpace(*req.Name)
		}
		if req.Email != nil {
			c.Email = strings.TrimSpace(*req.Email)
		}
		if req.Phone != nil {
			c.Phone = *req.Phone
		}
		if req.Company != nil {
			c.Company = *req.Company
		}
		if req.BusinessType != nil {
			c.BusinessType = *req.BusinessType
		}
		if req.Address != nil {
			c.Address = *req.Address
		}
		if req.Notes != nil {
			c.Notes = *req.Notes
		}
		if req.Status != nil {
			c.Status = *req.Status
		}
		return nil
	})
}

func (s *ClientService) DeleteClient(ctx context.Context, id string) error {
	return s.Repo.Delete(ctx, id)
}

// ClientProjects returns the live projects of a client.
func (s *ClientService) ClientProjects(ctx context.Context, id string) ([]*models.Project, error) {
	if _, err := s.Repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.Projects.ListByClient(ctx, id)
}
