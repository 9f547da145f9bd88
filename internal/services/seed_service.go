package services

import (
	"context"

	"erp-backend/internal/auth"
	"erp-backend/internal/logging"
	"erp-backend/internal/models"
	"erp-backend/internal/repositories"

	"github.com/rs/zerolog"
)

// Seeder prepares a fresh store: an admin account always, demo records on
// request.
type Seeder struct {
	Repos         *repositories.Repositories
	AdminEmail    string
	AdminPassword string
	log           zerolog.Logger
}

func NewSeeder(repos *repositories.Repositories, adminEmail, adminPassword string) *Seeder {
	return &Seeder{Repos: repos, AdminEmail: adminEmail, AdminPassword: adminPassword, log: logging.For("seed")}
}

// EnsureAdmin creates the admin account when no active admin exists. With no
// configured password a random one is generated and logged once.
func (s *Seeder) EnsureAdmin(ctx context.Context) (*models.User, error) {
	admins, err := s.Repos.Users.List(ctx, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if len(admins) > 0 {
		return admins[0], nil
	}

	password := s.AdminPassword
	generated := password == ""
	if generated {
		if password, err = auth.GenerateSessionToken(); err != nil {
			return nil, err
		}
		password = password[:16]
	}

	u, err := s.newUser("System Administrator", s.AdminEmail, password, models.RoleAdmin, "Administration")
	if err != nil {
		return nil, err
	}
	if err := s.Repos.Users.Create(ctx, u); err != nil {
		return nil, err
	}

	ev := s.log.Warn().Str("user_id", u.ID).Str("email", u.Email)
	if generated {
		ev = ev.Str("password", password)
	}
	ev.Msg("admin account created")
	return u, nil
}

func (s *Seeder) newUser(name, email, password, role, department string) (*models.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	apiKey, err := auth.GenerateAPIKey()
	if err != nil {
		return nil, err
	}
	return &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Department:   department,
		APIKey:       apiKey,
	}, nil
}

// SeedDemoData adds a manager, an employee and a few clients, projects and
// leads. It does nothing once any client exists.
func (s *Seeder) SeedDemoData(ctx context.Context) error {
	clients, err := s.Repos.Clients.ListAll(ctx)
	if err != nil || len(clients) > 0 {
		return err
	}

	manager, err := s.newUser("John Manager", "manager@erp.local", "Manager@123", models.RoleManager, "Operations")
	if err != nil {
		return err
	}
	if err := s.Repos.Users.Create(ctx, manager); err != nil {
		return err
	}
	employee, err := s.newUser("Sarah Employee", "employee@erp.local", "Employee@123", models.RoleEmployee, "Installation")
	if err != nil {
		return err
	}
	if err := s.Repos.Users.Create(ctx, employee); err != nil {
		return err
	}

	techCorp := &models.Client{
		Name:         "TechCorp Solutions",
		Email:        "contact@techcorp.example",
		Phone:        "+1-555-0123",
		Company:      "TechCorp Solutions Inc.",
		BusinessType: models.BusinessInstallation,
		Address:      "123 Tech Street, Silicon Valley, CA",
	}
	autoPark := &models.Client{
		Name:         "AutoPark Systems",
		Email:        "info@autopark.example",
		Phone:        "+1-555-0456",
		Company:      "AutoPark Systems Ltd.",
		BusinessType: models.BusinessManufacturing,
		Address:      "456 Auto Avenue, Detroit, MI",
	}
	for _, c := range []*models.Client{techCorp, autoPark} {
		if err := s.Repos.Clients.Create(ctx, c); err != nil {
			return err
		}
	}

	projects := []*models.Project{
		{
			Name:              "TechCorp Parking Automation",
			Type:              models.BusinessInstallation,
			ClientID:          techCorp.ID,
			Description:       "Complete parking automation system for TechCorp headquarters",
			Budget:            250000,
			Progress:          65,
			Status:            models.ProjectInProgress,
			StartDate:         "2024-01-15",
			EndDate:           "2024-06-30",
			AssignedEmployees: []string{employee.ID},
			CreatedBy:         manager.ID,
		},
		{
			Name:        "AutoPark Stacker Manufacturing",
			Type:        models.BusinessManufacturing,
			ClientID:    autoPark.ID,
			Description: "Manufacturing of 50 parking stackers for AutoPark",
			Budget:      180000,
			Status:      models.ProjectPending,
			StartDate:   "2024-02-01",
			EndDate:     "2024-08-31",
			CreatedBy:   manager.ID,
		},
	}
	for _, p := range projects {
		if err := s.Repos.Projects.Create(ctx, p); err != nil {
			return err
		}
	}

	leads := []*models.Lead{
		{
			Name:         "Mike Johnson",
			Email:        "mike@megacorp.example",
			Phone:        "+1-555-0789",
			Company:      "MegaCorp Industries",
			BusinessType: models.BusinessBoth,
			Source:       "website",
			Priority:     "high",
			AssignedTo:   manager.ID,
			Notes:        "Interested in both installation and manufacturing services",
		},
		{
			Name:         "Lisa Chen",
			Email:        "lisa@startupco.example",
			Phone:        "+1-555-0321",
			Company:      "StartupCo",
			BusinessType: models.BusinessInstallation,
			Source:       "referral",
			Status:       models.LeadContacted,
			Notes:        "Small startup looking for affordable parking solution",
		},
	}
	for _, l := range leads {
		if err := s.Repos.Leads.Create(ctx, l); err != nil {
			return err
		}
	}

	s.log.Info().Msg("demo data seeded")
	return nil
}
