package services

import (
	"context"
	"crypto/subtle"

	"erp-backend/internal/apperr"
	"erp-backend/internal/auth"
	"erp-backend/internal/logging"
	"erp-backend/internal/models"
	"erp-backend/internal/repositories"
	"erp-backend/internal/timeutil"
	"erp-backend/internal/validation"

	"github.com/rs/zerolog"
)

const (
	otpDigits       = 5
	defaultLocation = "Office"
)

type AttendanceService struct {
	Repo     *repositories.AttendanceRepository
	OTP      *repositories.OTPRepository
	Users    *repositories.UserRepository
	Notifier Notifier
	now      timeutil.Clock
	log      zerolog.Logger
}

func NewAttendanceService(repos *repositories.Repositories, n Notifier, clock timeutil.Clock) *AttendanceService {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &AttendanceService{
		Repo:     repos.Attendance,
		OTP:      repos.OTP,
		Users:    repos.Users,
		Notifier: notifierOrNop(n),
		now:      clock,
		log:      logging.For("attendance"),
	}
}

func (s *AttendanceService) today() string {
	return timeutil.Date(s.now())
}

// newCode draws a fresh code that differs from previous.
func newCode(previous string) (string, error) {
	for {
		code, err := auth.GenerateNumericCode(otpDigits)
		if err != nil {
			return "", err
		}
		if code != previous {
			return code, nil
		}
	}
}

// GenerateDailyOTP replaces today's code with a new one.
func (s *AttendanceService) GenerateDailyOTP(ctx context.Context) (models.DailyOTP, error) {
	otp, err := s.OTP.Rotate(ctx, s.today(), newCode)
	if err != nil {
		return otp, err
	}
	s.log.Info().Str("date", otp.Date).Msg("daily OTP generated")
	return otp, nil
}

// GetDailyOTP returns today's code, generating it on the first call of a day.
func (s *AttendanceService) GetDailyOTP(ctx context.Context) (models.DailyOTP, error) {
	return s.OTP.Current(ctx, s.today(), newCode)
}

// VerifyOTP compares candidate with today's code in constant time.
func (s *AttendanceService) VerifyOTP(ctx context.Context, candidate string) (bool, error) {
	otp, err := s.GetDailyOTP(ctx)
	if err != nil {
		return false, err
	}
	if len(candidate) != len(otp.Code) {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(otp.Code)) == 1, nil
}

func (s *AttendanceService) requireOTP(ctx context.Context, code string) error {
	ok, err := s.VerifyOTP(ctx, code)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Validation("Invalid OTP")
	}
	return nil
}

func (s *AttendanceService) CheckIn(ctx context.Context, actor models.Actor, req *models.CheckInRequest) (*models.Attendance, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if err := s.requireOTP(ctx, req.OTP); err != nil {
		return nil, err
	}

	now := s.now()
	location := req.Location
	if location == "" {
		location = defaultLocation
	}
	a := &models.Attendance{
		EmployeeID: actor.ID,
		Date:       timeutil.Date(now),
		CheckIn:    now.In(timeutil.Loc).Format(timeutil.TimeLayout),
		OTPUsed:    req.OTP,
		Location:   location,
		Status:     models.AttendancePresent,
	}
	if err := s.Repo.Create(ctx, a); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return nil, apperr.Conflict("Already checked in today")
		}
		return nil, err
	}

	s.log.Info().Str("employee_id", actor.ID).Str("date", a.Date).Msg("checked in")
	s.Notifier.AttendanceUpdate(actor.ID, "checked_in", map[string]interface{}{"date": a.Date, "check_in": a.CheckIn})
	return a, nil
}

func (s *AttendanceService) CheckOut(ctx context.Context, actor models.Actor, req *models.CheckOutRequest) (*models.Attendance, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if err := s.requireOTP(ctx, req.OTP); err != nil {
		return nil, err
	}

	now := s.now()
	a, err := s.Repo.UpdateForEmployeeDate(ctx, actor.ID, timeutil.Date(now), func(a *models.Attendance) error {
		if a.CheckIn == "" {
			return apperr.Validation("No check-in record found for today")
		}
		if a.CheckOut != "" {
			return apperr.Conflict("Already checked out today")
		}
		a.CheckOut = now.In(timeutil.Loc).Format(timeutil.TimeLayout)
		return nil
	})
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Validation("No check-in record found for today")
		}
		return nil, err
	}

	s.log.Info().Str("employee_id", actor.ID).Str("date", a.Date).Msg("checked out")
	s.Notifier.AttendanceUpdate(actor.ID, "checked_out", map[string]interface{}{"date": a.Date, "check_out": a.CheckOut})
	return a, nil
}

// MarkPresent records an employee as present on a date without an OTP. An
// existing record for that date is flipped to present.
func (s *AttendanceService) MarkPresent(ctx context.Context, actor models.Actor, req *models.MarkPresentRequest) (*models.Attendance, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	emp, err := s.Users.Get(ctx, req.EmployeeID)
	if err != nil {
		return nil, err
	}
	if !emp.IsActive() {
		return nil, apperr.Validation("Employee is inactive")
	}

	now := s.now()
	date := req.Date
	if date == "" {
		date = timeutil.Date(now)
	}

	a, err := s.Repo.UpdateForEmployeeDate(ctx, emp.ID, date, func(a *models.Attendance) error {
		a.Status = models.AttendancePresent
		a.MarkedBy = actor.ID
		if req.Notes != "" {
			a.Notes = req.Notes
		}
		return nil
	})
	if apperr.Is(err, apperr.KindNotFound) {
		a = &models.Attendance{
			EmployeeID: emp.ID,
			Date:       date,
			CheckIn:    now.In(timeutil.Loc).Format(timeutil.TimeLayout),
			Location:   defaultLocation,
			Status:     models.AttendancePresent,
			Notes:      req.Notes,
			MarkedBy:   actor.ID,
		}
		err = s.Repo.Create(ctx, a)
	}
	if err != nil {
		return nil, err
	}

	s.Notifier.AttendanceUpdate(emp.ID, "marked_present", map[string]interface{}{"date": date, "marked_by": actor.ID})
	return a, nil
}

// ByDate lists a day's attendance; an empty date means today.
func (s *AttendanceService) ByDate(ctx context.Context, date, department string) ([]models.AttendanceView, error) {
	if date == "" {
		date = s.today()
	} else if _, err := timeutil.ParseDate(date); err != nil {
		return nil, apperr.Validation("Invalid date format, expected YYYY-MM-DD")
	}
	return s.Repo.ByDate(ctx, date, department)
}

// ByEmployee lists one employee's history. Employees may only read their own.
func (s *AttendanceService) ByEmployee(ctx context.Context, actor models.Actor, employeeID, start, end string) ([]*models.Attendance, error) {
	if !actor.IsStaff() && actor.ID != employeeID {
		return nil, apperr.Forbidden("Access denied")
	}
	for _, d := range []string{start, end} {
		if d == "" {
			continue
		}
		if _, err := timeutil.ParseDate(d); err != nil {
			return nil, apperr.Validation("Invalid date format, expected YYYY-MM-DD")
		}
	}
	return s.Repo.ByEmployee(ctx, employeeID, start, end)
}

func (s *AttendanceService) UpdateAttendance(ctx context.Context, id string, req *models.UpdateAttendanceRequest) (*models.Attendance, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	a, err := s.Repo.Update(ctx, id, func(a *models.Attendance) error {
		if a.IsDeleted() {
			return apperr.NotFound("attendance record not found")
		}
		if req.CheckIn != nil {
			a.CheckIn = *req.CheckIn
		}
		if req.CheckOut != nil {
			a.CheckOut = *req.CheckOut
		}
		if req.Location != nil {
			a.Location = *req.Location
		}
		if req.Status != nil {
			a.Status = *req.Status
		}
		if req.Notes != nil {
			a.Notes = *req.Notes
		}
		if a.CheckIn != "" && a.CheckOut != "" && a.CheckOut < a.CheckIn {
			return apperr.Validation("Check-out cannot be before check-in")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Notifier.AttendanceUpdate(a.EmployeeID, "updated", map[string]interface{}{"date": a.Date})
	return a, nil
}

func (s *AttendanceService) DeleteAttendance(ctx context.Context, id string) error {
	return s.Repo.Delete(ctx, id)
}
