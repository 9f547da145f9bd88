package realtime

import "erp-backend/internal/models"

// Notification types emitted by the domain helpers.
const (
	TypeProjectUpdate    = "project_update"
	TypeAttendanceUpdate = "attendance_update"
	TypeLeadUpdate       = "lead_update"
	TypeSystemAlert      = "system_alert"
	TypeAnalyticsUpdate  = "analytics_update"
	TypeTaskUpdate       = "task_update"
	TypeDirect           = "direct"
)

// ProjectUpdate goes to the project's room and to managers.
func (h *Hub) ProjectUpdate(projectID, action string, data map[string]interface{}) {
	h.SendToRooms([]string{ProjectRoom(projectID), RoleRoom(models.RoleManager)}, Notification{
		Type:    TypeProjectUpdate,
		Title:   "Project Update",
		Message: "Project " + projectID + " " + action,
		Data:    with(data, "project_id", projectID, "action", action),
	})
}

// AttendanceUpdate goes to managers.
func (h *Hub) AttendanceUpdate(employeeID, action string, data map[string]interface{}) {
	h.SendToRooms([]string{RoleRoom(models.RoleManager)}, Notification{
		Type:    TypeAttendanceUpdate,
		Title:   "Attendance Update",
		Message: "Employee " + employeeID + " " + action,
		Data:    with(data, "employee_id", employeeID, "action", action),
	})
}

// LeadUpdate goes to employees and managers.
func (h *Hub) LeadUpdate(leadID, action string, data map[string]interface{}) {
	h.SendToRooms([]string{RoleRoom(models.RoleEmployee), RoleRoom(models.RoleManager)}, Notification{
		Type:    TypeLeadUpdate,
		Title:   "Lead Update",
		Message: "Lead " + leadID + " " + action,
		Data:    with(data, "lead_id", leadID, "action", action),
	})
}

// TaskUpdate goes to the assignee, queued when they are offline.
func (h *Hub) TaskUpdate(assigneeID, taskID, action string, data map[string]interface{}) {
	if assigneeID == "" {
		return
	}
	h.SendToUser(assigneeID, Notification{
		Type:    TypeTaskUpdate,
		Title:   "Task Update",
		Message: "Task " + taskID + " " + action,
		Data:    with(data, "task_id", taskID, "action", action),
	})
}

// SystemAlert goes to admins, and also to managers for warning or worse.
func (h *Hub) SystemAlert(level, message string) {
	rooms := []string{RoleRoom(models.RoleAdmin)}
	switch level {
	case "warning", "error", "critical":
		rooms = append(rooms, RoleRoom(models.RoleManager))
	}
	h.SendToRooms(rooms, Notification{
		Type:    TypeSystemAlert,
		Title:   "System Alert",
		Message: message,
		Level:   level,
	})
}

// AnalyticsUpdate goes to admins and managers.
func (h *Hub) AnalyticsUpdate(data map[string]interface{}) {
	h.SendToRooms([]string{RoleRoom(models.RoleAdmin), RoleRoom(models.RoleManager)}, Notification{
		Type:    TypeAnalyticsUpdate,
		Title:   "Analytics Update",
		Message: "Analytics data refreshed",
		Data:    data,
	})
}

// NotifyUser sends a direct notification to one user.
func (h *Hub) NotifyUser(userID, title, message string, data map[string]interface{}) bool {
	return h.SendToUser(userID, Notification{
		Type:    TypeDirect,
		Title:   title,
		Message: message,
		Data:    data,
	})
}

func with(data map[string]interface{}, kv ...string) map[string]interface{} {
	out := make(map[string]interface{}, len(data)+len(kv)/2)
	for k, v := range data {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = kv[i+1]
	}
	return out
}
