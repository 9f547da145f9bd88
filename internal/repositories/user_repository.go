package repositories

import (
	"context"
	"strings"

	"erp-backend/internal/apperr"
	"erp-backend/internal/models"
	"erp-backend/internal/store"
	"erp-backend/internal/timeutil"
)

type UserRepository struct {
	store *store.Store
	col   *store.Collection[models.User, *models.User]
	now   timeutil.Clock
}

func NewUserRepository(s *store.Store, clock timeutil.Clock) *UserRepository {
	return &UserRepository{
		store: s,
		col:   store.NewCollection[models.User, *models.User]("users", "user"),
		now:   clock,
	}
}

// Create assigns a role-prefixed id ("employee_004") and stores the user.
// Emails are unique among users that have not been deleted.
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	return r.store.Update(ctx, func(tx *store.Tx) error {
		return r.CreateTx(tx, u)
	})
}

func (r *UserRepository) CreateTx(tx *store.Tx, u *models.User) error {
	if err := r.checkEmailUnique(tx, u); err != nil {
		return err
	}

	if u.Role == "" {
		u.Role = models.RoleEmployee
	}
	if u.Department == "" {
		u.Department = "General"
	}
	if u.Status == "" {
		u.Status = models.StatusActive
	}
	u.Email = strings.TrimSpace(u.Email)

	id, err := r.col.NewID(tx, u.Role)
	if err != nil {
		return err
	}
	u.ID = id
	return r.col.Insert(tx, u, r.now())
}

func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	var u *models.User
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		u, err = r.col.Get(tx, id)
		return err
	})
	return u, err
}

func (r *UserRepository) GetTx(tx *store.Tx, id string) (*models.User, error) {
	return r.col.Get(tx, id)
}

// GetByEmail returns the active user with email, or NotFound.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u *models.User
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		u, err = r.findByEmail(tx, email, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound("user not found")
	}
	return u, nil
}

func (r *UserRepository) findByEmail(tx *store.Tx, email string, activeOnly bool) (*models.User, error) {
	users, err := r.col.List(tx, func(u *models.User) bool {
		if u.IsDeleted() || !eqFold(u.Email, email) {
			return false
		}
		return !activeOnly || u.Status == models.StatusActive
	})
	if err != nil || len(users) == 0 {
		return nil, err
	}
	return users[0], nil
}

// Update applies fn to the stored user. On a conflicting concurrent write
// fn is applied again to the fresh record.
func (r *UserRepository) Update(ctx context.Context, id string, expectedVersion int64, fn func(*models.User) error) (*models.User, error) {
	var out *models.User
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		u, err := r.col.Update(tx, id, expectedVersion, r.now(), func(u *models.User) error {
			if err := fn(u); err != nil {
				return err
			}
			return r.checkEmailUnique(tx, u)
		})
		out = u
		return err
	})
	return out, err
}

// checkEmailUnique fails when another user that has not been deleted holds
// u's email. u.ID is empty for a user not yet stored.
func (r *UserRepository) checkEmailUnique(tx *store.Tx, u *models.User) error {
	if err := tx.Guard("user_email:" + strings.ToLower(strings.TrimSpace(u.Email))); err != nil {
		return err
	}
	other, err := r.findByEmail(tx, u.Email, false)
	if err != nil {
		return err
	}
	if other != nil && other.ID != u.ID {
		return apperr.Conflict("Email already registered")
	}
	return nil
}

// Delete deactivates the user. Users are never physically removed.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return r.store.Update(ctx, func(tx *store.Tx) error {
		now := r.now()
		_, err := r.col.Update(tx, id, 0, now, func(u *models.User) error {
			u.Status = models.StatusInactive
			u.Tombstone(now)
			return nil
		})
		return err
	})
}

// List returns active users, optionally limited to one role.
func (r *UserRepository) List(ctx context.Context, role string) ([]*models.User, error) {
	var out []*models.User
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = r.ListTx(tx, role)
		return err
	})
	return out, err
}

func (r *UserRepository) ListTx(tx *store.Tx, role string) ([]*models.User, error) {
	return r.col.List(tx, func(u *models.User) bool {
		return u.IsActive() && (role == "" || u.Role == role)
	})
}

// ListAll returns every user including deactivated ones.
func (r *UserRepository) ListAll(ctx context.Context) ([]*models.User, error) {
	var out []*models.User
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = r.col.List(tx, nil)
		return err
	})
	return out, err
}

// Count returns the number of users of any status.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	all, err := r.ListAll(ctx)
	return len(all), err
}

// FindByResetToken returns the user holding the given reset digest.
func (r *UserRepository) FindByResetToken(ctx context.Context, digest string) (*models.User, error) {
	var out *models.User
	err := r.store.View(ctx, func(tx *store.Tx) error {
		users, err := r.col.List(tx, func(u *models.User) bool {
			return u.ResetTokenHash != "" && u.ResetTokenHash == digest
		})
		if err != nil {
			return err
		}
		if len(users) == 0 {
			return apperr.Validation("Invalid reset token")
		}
		out = users[0]
		return nil
	})
	return out, err
}
