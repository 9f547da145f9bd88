package models

const (
	AttendancePresent = "present"
	AttendanceAbsent  = "absent"
)

// Attendance is one employee's record for one day.
type Attendance struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employee_id"`
	Date       string `json:"date"`                // YYYY-MM-DD
	CheckIn    string `json:"check_in,omitempty"`  // HH:MM:SS
	CheckOut   string `json:"check_out,omitempty"` // HH:MM:SS
	OTPUsed    string `json:"otp_used,omitempty"`
	Location   string `json:"location,omitempty"`
	Status     string `json:"status"`
	Notes      string `json:"notes,omitempty"`
	MarkedBy   string `json:"marked_by,omitempty"`
	Meta
}

func (a *Attendance) RecordID() string { return a.ID }

// AttendanceView joins the employee's name and department for listings.
type AttendanceView struct {
	*Attendance
	EmployeeName string `json:"employee_name"`
	Department   string `json:"department"`
}

type CheckInRequest struct {
	OTP      string `json:"otp" validate:"required,len=5,numeric"`
	Location string `json:"location"`
}

type CheckOutRequest struct {
	OTP string `json:"otp" validate:"required,len=5,numeric"`
}

type MarkPresentRequest struct {
	EmployeeID string `json:"employee_id" validate:"required"`
	Date       string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Notes      string `json:"notes"`
}

type UpdateAttendanceRequest struct {
	CheckIn  *string `json:"check_in,omitempty" validate:"omitempty,datetime=15:04:05"`
	CheckOut *string `json:"check_out,omitempty" validate:"omitempty,datetime=15:04:05"`
	Location *string `json:"location,omitempty"`
	Status   *string `json:"status,omitempty" validate:"omitempty,oneof=present absent"`
	Notes    *string `json:"notes,omitempty"`
}

// DailyOTP is the single global check-in code and the day it belongs to.
type DailyOTP struct {
	Code string `json:"code"`
	Date string `json:"date"`
}
