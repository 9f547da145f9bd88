package handlers

import (
	"net/http"

	"erp-backend/internal/models"
	"erp-backend/internal/services"
	"erp-backend/pkg/utils"

	"github.com/gorilla/mux"
)

type AttendanceHandler struct {
	Service *services.AttendanceService
}

func NewAttendanceHandler(s *services.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{Service: s}
}

// ListByDate handles GET /attendance?date=YYYY-MM-DD&department=
func (h *AttendanceHandler) ListByDate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := h.Service.ByDate(r.Context(), q.Get("date"), q.Get("department"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, list("attendance", records, len(records)))
}

func (h *AttendanceHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req models.CheckInRequest
	if err := utils.Decode(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	rec, err := h.Service.CheckIn(r.Context(), actorOf(r), &req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Checked in successfully",
		"attendance": rec,
	})
}

func (h *AttendanceHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	var req models.CheckOutRequest
	if err := utils.Decode(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	rec, err := h.Service.CheckOut(r.Context(), actorOf(r), &req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Checked out successfully",
		"attendance": rec,
	})
}

// MarkPresent records attendance on behalf of an employee.
func (h *AttendanceHandler) MarkPresent(w http.ResponseWriter, r *http.Request) {
	var req models.MarkPresentRequest
	if err := utils.Decode(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	if id := mux.Vars(r)["id"]; id != "" {
		req.EmployeeID = id
	}
	rec, err := h.Service.MarkPresent(r.Context(), actorOf(r), &req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Attendance marked successfully",
		"attendance": rec,
	})
}

// ByEmployee handles GET /attendance/employee/{id}?start=&end=
func (h *AttendanceHandler) ByEmployee(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := h.Service.ByEmployee(r.Context(), actorOf(r), pathID(r), q.Get("start"), q.Get("end"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, list("attendance", records, len(records)))
}

func (h *AttendanceHandler) UpdateAttendance(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateAttendanceRequest
	if err := utils.Decode(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	rec, err := h.Service.UpdateAttendance(r.Context(), pathID(r), &req)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Attendance updated successfully",
		"attendance": rec,
	})
}

func (h *AttendanceHandler) DeleteAttendance(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteAttendance(r.Context(), pathID(r)); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]string{"message": "Attendance deleted successfully"})
}

func (h *AttendanceHandler) GetOTP(w http.ResponseWriter, r *http.Request) {
	otp, err := h.Service.GetDailyOTP(r.Context())
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, otp)
}

func (h *AttendanceHandler) RegenerateOTP(w http.ResponseWriter, r *http.Request) {
	otp, err := h.Service.GenerateDailyOTP(r.Context())
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, otp)
}
