package repositories

import (
	"context"

	"erp-backend/internal/apperr"
	"erp-backend/internal/models"
	"erp-backend/internal/store"
	"erp-backend/internal/timeutil"
)

type AttendanceRepository struct {
	store *store.Store
	col   *store.Collection[models.Attendance, *models.Attendance]
	users *store.Collection[models.User, *models.User]
	now   timeutil.Clock
}

func NewAttendanceRepository(s *store.Store, clock timeutil.Clock) *AttendanceRepository {
	return &AttendanceRepository{
		store: s,
		col:   store.NewCollection[models.Attendance, *models.Attendance]("attendance", "attendance record"),
		users: store.NewCollection[models.User, *models.User]("users", "user"),
		now:   clock,
	}
}

// Create stores a record. An employee has at most one live record per date.
func (r *AttendanceRepository) Create(ctx context.Context, a *models.Attendance) error {
	return r.store.Update(ctx, func(tx *store.Tx) error {
		if err := tx.Guard("attendance:" + a.EmployeeID + ":" + a.Date); err != nil {
			return err
		}
		existing, err := r.findTx(tx, a.EmployeeID, a.Date)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflict("Attendance already recorded for %s on %s", a.EmployeeID, a.Date)
		}
		if a.Status == "" {
			a.Status = models.AttendancePresent
		}
		id, err := r.col.NewID(tx, "attendance")
		if err != nil {
			return err
		}
		a.ID = id
		return r.col.Insert(tx, a, r.now())
	})
}

func (r *AttendanceRepository) Get(ctx context.Context, id string) (*models.Attendance, error) {
	var a *models.Attendance
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		a, err = r.col.Get(tx, id)
		return err
	})
	return a, err
}

// FindByEmployeeDate returns the live record for employeeID on date, or NotFound.
func (r *AttendanceRepository) FindByEmployeeDate(ctx context.Context, employeeID, date string) (*models.Attendance, error) {
	var out *models.Attendance
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = r.findTx(tx, employeeID, date)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, apperr.NotFound("attendance record not found")
	}
	return out, nil
}

func (r *AttendanceRepository) findTx(tx *store.Tx, employeeID, date string) (*models.Attendance, error) {
	recs, err := r.col.List(tx, func(a *models.Attendance) bool {
		return !a.IsDeleted() && a.EmployeeID == employeeID && a.Date == date
	})
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// UpdateForEmployeeDate applies fn to the employee's record for date inside
// one transaction. It returns NotFound when there is no such record.
func (r *AttendanceRepository) UpdateForEmployeeDate(ctx context.Context, employeeID, date string, fn func(*models.Attendance) error) (*models.Attendance, error) {
	var out *models.Attendance
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		rec, err := r.findTx(tx, employeeID, date)
		if err != nil {
			return err
		}
		if rec == nil {
			return apperr.NotFound("attendance record not found")
		}
		out, err = r.col.Update(tx, rec.ID, 0, r.now(), fn)
		return err
	})
	return out, err
}

func (r *AttendanceRepository) Update(ctx context.Context, id string, fn func(*models.Attendance) error) (*models.Attendance, error) {
	var out *models.Attendance
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		out, err = r.col.Update(tx, id, 0, r.now(), fn)
		return err
	})
	return out, err
}

// Delete tombstones the record.
func (r *AttendanceRepository) Delete(ctx context.Context, id string) error {
	return r.store.Update(ctx, func(tx *store.Tx) error {
		now := r.now()
		_, err := r.col.Update(tx, id, 0, now, func(a *models.Attendance) error {
			a.Tombstone(now)
			return nil
		})
		return err
	})
}

// ByDate returns the live records for date joined with employee name and
// department. A non-empty department keeps only that department's employees.
func (r *AttendanceRepository) ByDate(ctx context.Context, date, department string) ([]models.AttendanceView, error) {
	var out []models.AttendanceView
	err := r.store.View(ctx, func(tx *store.Tx) error {
		recs, err := r.col.List(tx, func(a *models.Attendance) bool {
			return !a.IsDeleted() && a.Date == date
		})
		if err != nil {
			return err
		}
		out = make([]models.AttendanceView, 0, len(recs))
		for _, a := range recs {
			view := models.AttendanceView{Attendance: a}
			if u, err := r.users.Get(tx, a.EmployeeID); err == nil {
				view.EmployeeName = u.Name
				view.Department = u.Department
			} else if !apperr.Is(err, apperr.KindNotFound) {
				return err
			}
			if department != "" && view.Department != department {
				continue
			}
			out = append(out, view)
		}
		return nil
	})
	return out, err
}

// ByEmployee returns the employee's live records with start <= date <= end.
// Empty bounds are open.
func (r *AttendanceRepository) ByEmployee(ctx context.Context, employeeID, start, end string) ([]*models.Attendance, error) {
	var out []*models.Attendance
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = r.col.List(tx, func(a *models.Attendance) bool {
			if a.IsDeleted() || a.EmployeeID != employeeID {
				return false
			}
			// YYYY-MM-DD compares correctly as a string
			if start != "" && a.Date < start {
				return false
			}
			return end == "" || a.Date <= end
		})
		return err
	})
	return out, err
}

func (r *AttendanceRepository) ListAll(ctx context.Context) ([]*models.Attendance, error) {
	var out []*models.Attendance
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = r.col.List(tx, nil)
		return err
	})
	return out, err
}
