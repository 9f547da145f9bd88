package http

import (
	"net/http"

	"erp-backend/internal/handlers"
	"erp-backend/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth          *handlers.AuthHandler
	Users         *handlers.UserHandler
	Clients       *handlers.ClientHandler
	Projects      *handlers.ProjectHandler
	Leads         *handlers.LeadHandler
	Attendance    *handlers.AttendanceHandler
	Tasks         *handlers.TaskHandler
	Analytics     *handlers.AnalyticsHandler
	Files         *handlers.FileHandler
	Notifications *handlers.NotificationHandler
	Admin         *handlers.AdminHandler
	Health        *handlers.HealthHandler
}

func staff(h http.HandlerFunc) http.Handler { return middleware.RequireStaff(h) }
func admin(h http.HandlerFunc) http.Handler { return middleware.RequireAdmin(h) }

func NewRouter(h Handlers, authMiddleware *middleware.AuthMiddleware, limiter *middleware.RateLimiter) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.PanicRecovery)
	r.Use(middleware.NewRequestLogger().Handler)
	r.Use(middleware.MetricsMiddleware)

	// Health and metrics (no auth, no rate limit)
	r.HandleFunc("/health", h.Health.BasicHealth).Methods("GET")
	r.HandleFunc("/health/ready", h.Health.ReadinessHealth).Methods("GET")
	r.HandleFunc("/health/detailed", h.Health.DetailedHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	if limiter != nil {
		api.Use(limiter.Handler)
	}

	// Public API routes - Authentication
	api.HandleFunc("/auth/login", h.Auth.Login).Methods("POST")
	api.HandleFunc("/auth/2fa/verify", h.Auth.Verify2FA).Methods("POST")
	api.HandleFunc("/auth/refresh", h.Auth.Refresh).Methods("POST")
	api.HandleFunc("/auth/password/reset", h.Auth.RequestPasswordReset).Methods("POST")
	api.HandleFunc("/auth/password/reset/confirm", h.Auth.ConfirmPasswordReset).Methods("POST")

	// Websocket upgrades carry the token in the query string
	api.Handle("/ws", authMiddleware.AuthenticateQuery(http.HandlerFunc(h.Notifications.ServeWS))).Methods("GET")

	protected := api.NewRoute().Subrouter()
	protected.Use(authMiddleware.Authenticate)

	// Account
	protected.HandleFunc("/auth/logout", h.Auth.Logout).Methods("POST")
	protected.HandleFunc("/auth/2fa/setup", h.Auth.Setup2FA).Methods("POST")
	protected.HandleFunc("/auth/2fa/enable", h.Auth.Enable2FA).Methods("POST")
	protected.HandleFunc("/auth/2fa/disable", h.Auth.Disable2FA).Methods("POST")
	protected.HandleFunc("/auth/profile", h.Auth.Profile).Methods("GET")
	protected.HandleFunc("/auth/profile", h.Auth.UpdateProfile).Methods("PUT")
	protected.HandleFunc("/auth/password", h.Auth.ChangePassword).Methods("PUT")

	// Users (fixed paths before /{id})
	protected.Handle("/users", staff(h.Users.ListUsers)).Methods("GET")
	protected.Handle("/users", staff(h.Users.CreateUser)).Methods("POST")
	protected.Handle("/users/employees", staff(h.Users.ListEmployees)).Methods("GET")
	protected.Handle("/users/managers", admin(h.Users.ListManagers)).Methods("GET")
	protected.Handle("/users/statistics", staff(h.Users.Statistics)).Methods("GET")
	protected.HandleFunc("/users/{id}", h.Users.GetUser).Methods("GET")
	protected.HandleFunc("/users/{id}", h.Users.UpdateUser).Methods("PUT")
	protected.Handle("/users/{id}", staff(h.Users.DeleteUser)).Methods("DELETE")

	// Clients
	protected.Handle("/clients", staff(h.Clients.ListClients)).Methods("GET")
	protected.Handle("/clients", staff(h.Clients.CreateClient)).Methods("POST")
	protected.Handle("/clients/{id}", staff(h.Clients.GetClient)).Methods("GET")
	protected.Handle("/clients/{id}", staff(h.Clients.UpdateClient)).Methods("PUT")
	protected.Handle("/clients/{id}", staff(h.Clients.DeleteClient)).Methods("DELETE")
	protected.Handle("/clients/{id}/projects", staff(h.Clients.ClientProjects)).Methods("GET")

	// Projects
	protected.HandleFunc("/projects", h.Projects.ListProjects).Methods("GET")
	protected.Handle("/projects", staff(h.Projects.CreateProject)).Methods("POST")
	protected.HandleFunc("/projects/my-projects", h.Projects.MyProjects).Methods("GET")
	protected.Handle("/projects/statistics", staff(h.Projects.Statistics)).Methods("GET")
	protected.HandleFunc("/projects/{id}", h.Projects.GetProject).Methods("GET")
	protected.Handle("/projects/{id}", staff(h.Projects.UpdateProject)).Methods("PUT")
	protected.Handle("/projects/{id}", staff(h.Projects.DeleteProject)).Methods("DELETE")
	protected.Handle("/projects/{id}/assign", staff(h.Projects.AssignEmployees)).Methods("POST")
	protected.HandleFunc("/projects/{id}/status", h.Projects.UpdateStatus).Methods("PUT")

	// Leads
	protected.Handle("/leads", staff(h.Leads.ListLeads)).Methods("GET")
	protected.Handle("/leads", staff(h.Leads.CreateLead)).Methods("POST")
	protected.Handle("/leads/auto-assign", staff(h.Leads.AutoAssign)).Methods("POST")
	protected.Handle("/leads/{id}", staff(h.Leads.GetLead)).Methods("GET")
	protected.Handle("/leads/{id}", staff(h.Leads.UpdateLead)).Methods("PUT")
	protected.Handle("/leads/{id}", staff(h.Leads.DeleteLead)).Methods("DELETE")
	protected.Handle("/leads/{id}/convert", staff(h.Leads.ConvertLead)).Methods("POST")

	// Attendance
	protected.Handle("/attendance", staff(h.Attendance.ListByDate)).Methods("GET")
	protected.HandleFunc("/attendance/check-in", h.Attendance.CheckIn).Methods("POST")
	protected.HandleFunc("/attendance/check-out", h.Attendance.CheckOut).Methods("POST")
	protected.Handle("/attendance/mark", staff(h.Attendance.MarkPresent)).Methods("POST")
	protected.Handle("/attendance/otp", staff(h.Attendance.GetOTP)).Methods("GET")
	protected.Handle("/attendance/otp/regenerate", admin(h.Attendance.RegenerateOTP)).Methods("POST")
	protected.HandleFunc("/attendance/employee/{id}", h.Attendance.ByEmployee).Methods("GET")
	protected.Handle("/attendance/{id}", staff(h.Attendance.UpdateAttendance)).Methods("PUT")
	protected.Handle("/attendance/{id}", staff(h.Attendance.DeleteAttendance)).Methods("DELETE")
	protected.Handle("/attendance/{id}/present", staff(h.Attendance.MarkPresent)).Methods("POST")

	// Tasks
	protected.HandleFunc("/tasks", h.Tasks.ListTasks).Methods("GET")
	protected.Handle("/tasks", staff(h.Tasks.CreateTask)).Methods("POST")
	protected.HandleFunc("/tasks/{id}", h.Tasks.GetTask).Methods("GET")
	protected.HandleFunc("/tasks/{id}", h.Tasks.UpdateTask).Methods("PUT")
	protected.Handle("/tasks/{id}", staff(h.Tasks.DeleteTask)).Methods("DELETE")

	// Analytics (staff only)
	analyticsAPI := protected.PathPrefix("/analytics").Subrouter()
	analyticsAPI.Use(middleware.RequireStaff)
	analyticsAPI.HandleFunc("/comprehensive", h.Analytics.Comprehensive).Methods("GET")
	analyticsAPI.HandleFunc("/overview", h.Analytics.Overview).Methods("GET")
	analyticsAPI.HandleFunc("/financial", h.Analytics.Financial).Methods("GET")
	analyticsAPI.HandleFunc("/operational", h.Analytics.Operational).Methods("GET")
	analyticsAPI.HandleFunc("/performance", h.Analytics.Performance).Methods("GET")
	analyticsAPI.HandleFunc("/trends", h.Analytics.Trends).Methods("GET")
	analyticsAPI.HandleFunc("/predictions", h.Analytics.Predictions).Methods("GET")
	analyticsAPI.HandleFunc("/charts", h.Analytics.Charts).Methods("GET")
	analyticsAPI.HandleFunc("/summary", h.Analytics.Summary).Methods("GET")
	analyticsAPI.HandleFunc("/daily-report", h.Analytics.DailyReport).Methods("GET")
	analyticsAPI.HandleFunc("/reports/{type}", h.Analytics.Report).Methods("GET")
	analyticsAPI.Handle("/cache/clear", admin(h.Analytics.ClearCache)).Methods("POST")

	// Files
	protected.HandleFunc("/files", h.Files.ListFiles).Methods("GET")
	protected.HandleFunc("/files/upload", h.Files.Upload).Methods("POST")
	protected.Handle("/files/statistics", staff(h.Files.Statistics)).Methods("GET")
	protected.Handle("/files/cleanup", admin(h.Files.Cleanup)).Methods("POST")
	protected.HandleFunc("/files/{id}", h.Files.GetFile).Methods("GET")
	protected.HandleFunc("/files/{id}", h.Files.DeleteFile).Methods("DELETE")
	protected.HandleFunc("/files/{id}/download", h.Files.Download).Methods("GET")
	protected.HandleFunc("/files/{id}/category", h.Files.Recategorize).Methods("PUT")
	protected.HandleFunc("/files/{id}/backup", h.Files.Backup).Methods("POST")

	// Notifications
	protected.HandleFunc("/notifications", h.Notifications.Pending).Methods("GET")
	protected.Handle("/notifications/connections", staff(h.Notifications.Connections)).Methods("GET")
	protected.Handle("/notifications/send", staff(h.Notifications.Send)).Methods("POST")
	protected.Handle("/notifications/alert", admin(h.Notifications.SystemAlert)).Methods("POST")

	// Administration (admin only)
	adminAPI := protected.PathPrefix("/admin").Subrouter()
	adminAPI.Use(middleware.RequireAdmin)
	adminAPI.HandleFunc("/export", h.Admin.Export).Methods("GET")
	adminAPI.HandleFunc("/import", h.Admin.Import).Methods("POST")
	adminAPI.HandleFunc("/backup", h.Admin.Backup).Methods("POST")
	adminAPI.HandleFunc("/backup", h.Admin.BackupStatus).Methods("GET")
	adminAPI.HandleFunc("/monitoring", h.Admin.Monitoring).Methods("GET")

	return r
}
