package services

import (
	"context"
	"strings"

	"erp-backend/internal/apperr"
	"erp-backend/internal/auth"
	"erp-backend/internal/logging"
	"erp-backend/internal/mailer"
	"erp-backend/internal/models"
	"erp-backend/internal/repositories"
	"erp-backend/internal/validation"

	"github.com/rs/zerolog"
)

type UserService struct {
	Repo   *repositories.UserRepository
	Policy auth.PasswordPolicy
	Mailer *mailer.Mailer
	log    zerolog.Logger
}

func NewUserService(repo *repositories.UserRepository, policy auth.PasswordPolicy, m *mailer.Mailer) *UserService {
	return &UserService{
		Repo:   repo,
		Policy: policy,
		Mailer: m,
		log:    logging.For("users"),
	}
}

// checkPassword runs the strength policy and returns a Validation error
// listing every failed rule.
func (s *UserService) checkPassword(password string) error {
	res := s.Policy.Validate(password)
	if !res.Valid {
		return apperr.Validation("Password does not meet requirements").WithDetails(res.Errors...)
	}
	return nil
}

func (s *UserService) CreateUser(ctx context.Context, req *models.CreateUserRequest) (*models.User, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if err := s.checkPassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to hash password")
	}
	apiKey, err := auth.GenerateAPIKey()
	if err != nil {
		return nil, apperr.Internal(err, "Failed to generate API key")
	}

	u := &models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Role:         req.Role,
		Department:   req.Department,
		Phone:        req.Phone,
		APIKey:       apiKey,
	}
	if err := s.Repo.Create(ctx, u); err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", u.ID).Str("role", u.Role).Msg("user created")
	if s.Mailer != nil {
		s.Mailer.SendWelcome(u.Email, u.Name, u.Role)
	}
	return u, nil
}

// GetUser returns a user. Employees may only read their own record.
func (s *UserService) GetUser(ctx context.Context, actor models.Actor, id string) (*models.User, error) {
	if !actor.IsStaff() && actor.ID != id {
		return nil, apperr.Forbidden("Access denied")
	}
	return s.Repo.Get(ctx, id)
}

func (s *UserService) ListUsers(ctx context.Context, role string) ([]*models.User, error) {
	return s.Repo.List(ctx, role)
}

// UpdateUser applies a partial update. Users may edit their own profile
// fields and password; role and status changes need a manager or admin.
func (s *UserService) UpdateUser(ctx context.Context, actor models.Actor, id string, req *models.UpdateUserRequest) (*models.User, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	self := actor.ID == id
	if !self && !actor.IsStaff() {
		return nil, apperr.Forbidden("Access denied")
	}
	if (req.Role != nil || req.Status != nil) && !actor.IsStaff() {
		return nil, apperr.Forbidden("Only managers and admins can change role or status")
	}
	if req.Role != nil && *req.Role == models.RoleAdmin && !actor.IsAdmin() {
		return nil, apperr.Forbidden("Only admins can grant the admin role")
	}

	var hash string
	if req.Password != nil {
		if err := s.checkPassword(*req.Password); err != nil {
			return nil, err
		}
		var err error
		if hash, err = auth.HashPassword(*req.Password); err != nil {
			return nil, apperr.Internal(err, "Failed to hash password")
		}
	}

	return s.Repo.Update(ctx, id, 0, func(u *models.User) error {
		if u.IsDeleted() {
			return apperr.NotFound("user not found")
		}
		if req.Name != nil {
			u.Name = strings.TrimSpace(*req.Name)
		}
		if req.Email != nil {
			u.Email = strings.ToLower(strings.TrimSpace(*req.Email))
		}
		if req.Department != nil {
			u.Department = *req.Department
		}
		if req.Phone != nil {
			u.Phone = *req.Phone
		}
		if req.Role != nil {
			u.Role = *req.Role
		}
		if req.Status != nil {
			u.Status = *req.Status
		}
		if hash != "" {
			u.PasswordHash = hash
		}
		return nil
	})
}

// DeleteUser deactivates a user. Nobody can deactivate themselves.
func (s *UserService) DeleteUser(ctx context.Context, actor models.Actor, id string) error {
	if actor.ID == id {
		return apperr.Validation("Cannot delete your own account")
	}
	if err := s.Repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("user_id", id).Str("by", actor.ID).Msg("user deactivated")
	return nil
}

func (s *UserService) Statistics(ctx context.Context) (*models.UserStatistics, error) {
	users, err := s.Repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.UserStatistics{Departments: make(map[string]int)}
	for _, u := range users {
		stats.TotalUsers++
		if !u.IsActive() {
			stats.InactiveUsers++
			continue
		}
		stats.ActiveUsers++
		switch u.Role {
		case models.RoleAdmin:
			stats.Admins++
		case models.RoleManager:
			stats.Managers++
		case models.RoleEmployee:
			stats.Employees++
		}
		stats.Departments[u.Department]++
	}
	return stats, nil
}
