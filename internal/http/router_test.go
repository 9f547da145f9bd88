package http

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"erp-backend/internal/analytics"
	"erp-backend/internal/auth"
	"erp-backend/internal/config"
	"erp-backend/internal/files"
	"erp-backend/internal/handlers"
	"erp-backend/internal/health"
	"erp-backend/internal/mailer"
	"erp-backend/internal/middleware"
	"erp-backend/internal/realtime"
	"erp-backend/internal/repositories"
	"erp-backend/internal/services"
	"erp-backend/internal/store"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminEmail    = "admin@erp.local"
	adminPassword = "Adm1n!Passphrase"
	empPassword   = "Empl0yee!Pass"
)

func init() {
	auth.Cost = bcrypt.MinCost
}

type apiEnv struct {
	t       *testing.T
	handler http.Handler
	hub     *realtime.Hub
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cfg := &config.Config{}
	cfg.JWT.Secret = "router-secret"
	cfg.JWT.Issuer = "erp-test"
	cfg.JWT.AccessTTLMinutes = 60
	cfg.JWT.RefreshTTLHours = 24
	cfg.JWT.TempTTLMinutes = 5
	cfg.JWT.ResetTTLHours = 1
	cfg.TOTP.Issuer = "ERP"
	cfg.TOTP.Period = 30
	cfg.TOTP.Skew = 1
	cfg.Password.MinLength = 8
	cfg.Password.RequireUppercase = true
	cfg.Password.RequireDigit = true

	repos := repositories.New(s, nil)
	_, err = services.NewSeeder(repos, adminEmail, adminPassword).EnsureAdmin(context.Background())
	require.NoError(t, err)

	mail := mailer.New(mailer.NewLogProvider())
	t.Cleanup(mail.Wait)
	hub := realtime.NewHub(time.Hour, nil)
	manager, err := files.NewManager(files.Options{
		Dir:               t.TempDir(),
		MaxBytes:          1 << 20,
		AllowedExtensions: []string{"txt", "pdf"},
	})
	require.NoError(t, err)

	jwtManager := auth.NewJWTManager(cfg)
	authService := services.NewAuthService(cfg, repos.Users, repos.Tokens, jwtManager, auth.NewTOTPManager(cfg), mail, nil)
	leadService := services.NewLeadService(repos, hub, nil)
	engine := analytics.New(repos.Documents, nil, time.Minute, nil)

	checker := health.NewHealthChecker()
	checker.Add("store", true, s)

	router := NewRouter(Handlers{
		Auth:          handlers.NewAuthHandler(authService),
		Users:         handlers.NewUserHandler(services.NewUserService(repos.Users, auth.NewPasswordPolicy(cfg), mail)),
		Clients:       handlers.NewClientHandler(services.NewClientService(repos.Clients, repos.Projects)),
		Projects:      handlers.NewProjectHandler(services.NewProjectService(repos, hub)),
		Leads:         handlers.NewLeadHandler(leadService),
		Attendance:    handlers.NewAttendanceHandler(services.NewAttendanceService(repos, hub, nil)),
		Tasks:         handlers.NewTaskHandler(services.NewTaskService(repos, hub, nil)),
		Analytics:     handlers.NewAnalyticsHandler(engine),
		Files:         handlers.NewFileHandler(services.NewFileService(repos.Files, manager, hub), 4<<20),
		Notifications: handlers.NewNotificationHandler(hub),
		Admin:         handlers.NewAdminHandler(repos.Documents, nil, nil, engine, nil),
		Health:        handlers.NewHealthHandler(checker),
	}, middleware.NewAuthMiddleware(jwtManager, repos.Users, authService), nil)

	return &apiEnv{t: t, handler: router, hub: hub}
}

func (e *apiEnv) request(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *apiEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return e.request(req, token)
}

func (e *apiEnv) login(email, password string) string {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
	token, _ := bodyOf(e.t, rec)["access_token"].(string)
	require.NotEmpty(e.t, token)
	return token
}

// employee creates an employee through the API and logs them in.
func (e *apiEnv) employee(adminToken, email string) (string, string) {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/api/v1/users", adminToken, map[string]string{
		"name": "Erin", "email": email, "password": empPassword, "role": "employee",
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	id := field(bodyOf(e.t, rec), "user", "id")
	return id, e.login(email, empPassword)
}

func bodyOf(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func field(body map[string]interface{}, obj, key string) string {
	m, _ := body[obj].(map[string]interface{})
	s, _ := m[key].(string)
	return s
}

func TestHealthAndMetrics(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", bodyOf(t, rec)["status"])

	rec = env.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginProfileLogout(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": adminEmail, "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := env.login(adminEmail, adminPassword)
	rec = env.do(http.MethodGet, "/api/v1/auth/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", field(bodyOf(t, rec), "user", "role"))

	rec = env.do(http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/auth/profile", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": adminEmail, "password": adminPassword})
	require.Equal(t, http.StatusOK, rec.Code)
	body := bodyOf(t, rec)
	access, _ := body["access_token"].(string)
	refresh, _ := body["refresh_token"].(string)
	require.NotEmpty(t, refresh)

	rec = env.do(http.MethodPost, "/api/v1/auth/logout", access, map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoleGates(t *testing.T) {
	env := newAPIEnv(t)
	admin := env.login(adminEmail, adminPassword)
	_, emp := env.employee(admin, "erin@erp.local")

	rec := env.do(http.MethodGet, "/api/v1/projects", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/clients"},
		{http.MethodGet, "/api/v1/users"},
		{http.MethodGet, "/api/v1/leads"},
		{http.MethodGet, "/api/v1/analytics/overview"},
		{http.MethodGet, "/api/v1/admin/export"},
		{http.MethodPost, "/api/v1/notifications/alert"},
	} {
		rec := env.do(tc.method, tc.path, emp, map[string]string{})
		assert.Equal(t, http.StatusForbidden, rec.Code, "%s %s", tc.method, tc.path)
	}

	rec = env.do(http.MethodGet, "/api/v1/tasks", emp, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientProjectFlow(t *testing.T) {
	env := newAPIEnv(t)
	admin := env.login(adminEmail, adminPassword)
	empID, emp := env.employee(admin, "erin@erp.local")

	rec := env.do(http.MethodPost, "/api/v1/clients", admin, map[string]string{"name": "Acme", "business_type": "installation"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	clientID := field(bodyOf(t, rec), "client", "id")

	rec = env.do(http.MethodPost, "/api/v1/projects", admin, map[string]interface{}{
		"name": "Warehouse racks", "type": "installation", "client_id": clientID, "budget": 125000,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	projectID := field(bodyOf(t, rec), "project", "id")

	rec = env.do(http.MethodGet, "/api/v1/projects/"+projectID, emp, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.do(http.MethodPut, "/api/v1/projects/"+projectID+"/status", emp, map[string]string{"status": "in_progress"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/projects/"+projectID+"/assign", admin, map[string]interface{}{"employee_ids": []string{empID}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPut, "/api/v1/projects/"+projectID+"/status", emp, map[string]string{"status": "in_progress"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "in_progress", field(bodyOf(t, rec), "project", "status"))

	rec = env.do(http.MethodGet, "/api/v1/projects/my-projects", emp, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, bodyOf(t, rec)["total"])

	rec = env.do(http.MethodGet, "/api/v1/clients/"+clientID+"/projects", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, bodyOf(t, rec)["total"])

	rec = env.do(http.MethodPost, "/api/v1/projects", admin, map[string]interface{}{"name": "Bad", "type": "installation"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyticsReportFormats(t *testing.T) {
	env := newAPIEnv(t)
	admin := env.login(adminEmail, adminPassword)

	rec := env.do(http.MethodGet, "/api/v1/analytics/reports/financial?period=q1", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := bodyOf(t, rec)
	assert.Equal(t, "financial", body["report_type"])
	assert.Equal(t, map[string]interface{}{"period": "q1"}, body["filters_applied"])

	rec = env.do(http.MethodGet, "/api/v1/analytics/reports/operational?format=xlsx", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "operational_report_")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec = env.do(http.MethodGet, "/api/v1/analytics/reports/performance?format=pdf", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = env.do(http.MethodGet, "/api/v1/analytics/reports/bogus", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(http.MethodGet, "/api/v1/analytics/reports/financial?format=docx", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/analytics/cache/clear", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func upload(t *testing.T, env *apiEnv, token, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("description", "site notes"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return env.request(req, token)
}

func TestFileUploadDownload(t *testing.T) {
	env := newAPIEnv(t)
	admin := env.login(adminEmail, adminPassword)
	empID, emp := env.employee(admin, "erin@erp.local")

	rec := upload(t, env, emp, "notes.txt", "hello site")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	fileID := field(bodyOf(t, rec), "file", "id")
	require.NotEmpty(t, fileID)

	rec = upload(t, env, emp, "setup.exe", "MZ")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(bodyOf(t, rec)["error"].(string), "File type not allowed"))

	rec = env.do(http.MethodGet, "/api/v1/files/"+fileID+"/download", emp, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello site", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "notes.txt")

	rec = env.do(http.MethodGet, "/api/v1/files", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, bodyOf(t, rec)["total"])

	// The uploader was offline, so the confirmation is queued.
	assert.Len(t, env.hub.Pending(empID), 1)
	rec = env.do(http.MethodGet, "/api/v1/notifications", emp, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, bodyOf(t, rec)["total"])

	rec = env.do(http.MethodDelete, "/api/v1/files/"+fileID, emp, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodGet, "/api/v1/files/"+fileID, emp, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/files/cleanup", emp, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.do(http.MethodPost, "/api/v1/files/cleanup", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminExportImport(t *testing.T) {
	env := newAPIEnv(t)
	admin := env.login(adminEmail, adminPassword)
	env.employee(admin, "erin@erp.local")

	rec := env.do(http.MethodGet, "/api/v1/admin/export", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "erp_export_")
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	var users []map[string]interface{}
	require.NoError(t, json.Unmarshal(doc["users"], &users))
	assert.Len(t, users, 2)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/import", bytes.NewReader(rec.Body.Bytes()))
	rec = env.request(req, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 2, bodyOf(t, rec)["users"])

	rec = env.do(http.MethodPost, "/api/v1/admin/backup", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(http.MethodGet, "/api/v1/admin/backup", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, bodyOf(t, rec)["enabled"])
}
