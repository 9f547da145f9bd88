package services

// Notifier receives domain events worth pushing to connected users.
type Notifier interface {
	ProjectUpdate(projectID, action string, data map[string]interface{})
	AttendanceUpdate(employeeID, action string, data map[string]interface{})
	LeadUpdate(leadID, action string, data map[string]interface{})
	TaskUpdate(assigneeID, taskID, action string, data map[string]interface{})
	SystemAlert(level, message string)
	AnalyticsUpdate(data map[string]interface{})
	NotifyUser(userID, title, message string, data map[string]interface{}) bool
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) ProjectUpdate(string, string, map[string]interface{})      {}
func (NopNotifier) AttendanceUpdate(string, string, map[string]interface{})   {}
func (NopNotifier) LeadUpdate(string, string, map[string]interface{})         {}
func (NopNotifier) TaskUpdate(string, string, string, map[string]interface{}) {}
func (NopNotifier) SystemAlert(string, string)                                {}
func (NopNotifier) AnalyticsUpdate(map[string]interface{})                    {}
func (NopNotifier) NotifyUser(string, string, string, map[string]interface{}) bool {
	return false
}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return NopNotifier{}
	}
	return n
}
