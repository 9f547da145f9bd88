package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"erp-backend/internal/auth"
	"erp-backend/internal/config"
	"erp-backend/internal/mailer"
	"erp-backend/internal/models"
	"erp-backend/internal/repositories"
	"erp-backend/internal/store"
	"erp-backend/internal/timeutil"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const strongPassword = "Str0ng!Passphrase"

func init() {
	auth.Cost = bcrypt.MinCost
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type event struct {
	Kind   string
	Target string
	Action string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []event
}

func (n *recordingNotifier) add(e event) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
}

func (n *recordingNotifier) Events(kind string) []event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []event
	for _, e := range n.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (n *recordingNotifier) ProjectUpdate(id, action string, _ map[string]interface{}) {
	n.add(event{"project", id, action})
}
func (n *recordingNotifier) AttendanceUpdate(id, action string, _ map[string]interface{}) {
	n.add(event{"attendance", id, action})
}
func (n *recordingNotifier) LeadUpdate(id, action string, _ map[string]interface{}) {
	n.add(event{"lead", id, action})
}
func (n *recordingNotifier) TaskUpdate(assignee, id, action string, _ map[string]interface{}) {
	n.add(event{"task", assignee, action})
}
func (n *recordingNotifier) SystemAlert(level, message string) {
	n.add(event{"alert", level, message})
}
func (n *recordingNotifier) AnalyticsUpdate(map[string]interface{}) {
	n.add(event{"analytics", "", ""})
}
func (n *recordingNotifier) NotifyUser(userID, title, _ string, _ map[string]interface{}) bool {
	n.add(event{"user", userID, title})
	return true
}

type testEnv struct {
	cfg      *config.Config
	clock    *testClock
	repos    *repositories.Repositories
	notifier *recordingNotifier
	mail     *mailer.LogProvider
	mailer   *mailer.Mailer

	users      *UserService
	auth       *AuthService
	clients    *ClientService
	projects   *ProjectService
	leads      *LeadService
	attendance *AttendanceService
	tasks      *TaskService
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.Issuer = "erp-test"
	cfg.JWT.AccessTTLMinutes = 60
	cfg.JWT.RefreshTTLHours = 720
	cfg.JWT.TempTTLMinutes = 5
	cfg.JWT.ResetTTLHours = 24
	cfg.TOTP.Issuer = "Trivanta Edge ERP"
	cfg.TOTP.Period = 30
	cfg.TOTP.Skew = 1
	cfg.Password.MinLength = 8
	cfg.Password.RequireUppercase = true
	cfg.Password.RequireLowercase = true
	cfg.Password.RequireDigit = true
	cfg.Password.RequireSpecial = true
	return cfg
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cfg := testConfig()
	clock := &testClock{t: time.Date(2026, 3, 10, 9, 30, 0, 0, timeutil.Loc)}
	repos := repositories.New(s, clock.Now)
	n := &recordingNotifier{}
	provider := mailer.NewLogProvider()
	m := mailer.New(provider)

	env := &testEnv{
		cfg:      cfg,
		clock:    clock,
		repos:    repos,
		notifier: n,
		mail:     provider,
		mailer:   m,
	}
	env.users = NewUserService(repos.Users, auth.NewPasswordPolicy(cfg), m)
	env.auth = NewAuthService(cfg, repos.Users, repos.Tokens, auth.NewJWTManager(cfg), auth.NewTOTPManager(cfg), m, clock.Now)
	env.clients = NewClientService(repos.Clients, repos.Projects)
	env.projects = NewProjectService(repos, n)
	env.leads = NewLeadService(repos, n, clock.Now)
	env.attendance = NewAttendanceService(repos, n, clock.Now)
	env.tasks = NewTaskService(repos, n, clock.Now)
	t.Cleanup(m.Wait)
	return env
}

func (e *testEnv) createUser(t *testing.T, name, email, role string) *models.User {
	t.Helper()
	u, err := e.users.CreateUser(context.Background(), &models.CreateUserRequest{
		Name:     name,
		Email:    email,
		Password: strongPassword,
		Role:     role,
	})
	require.NoError(t, err)
	return u
}

func (e *testEnv) createClient(t *testing.T, name, businessType string) *models.Client {
	t.Helper()
	c, err := e.clients.CreateClient(context.Background(), models.Actor{ID: "admin_001", Role: models.RoleAdmin},
		&models.CreateClientRequest{Name: name, BusinessType: businessType})
	require.NoError(t, err)
	return c
}

func actorOf(u *models.User) models.Actor {
	return models.Actor{ID: u.ID, Role: u.Role}
}
