package repositories

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"erp-backend/internal/apperr"
	"erp-backend/internal/models"
	"erp-backend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepos(t *testing.T) *Repositories {
	t.Helper()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return New(s, func() time.Time { return now })
}

func TestClientSoftDelete(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	c := &models.Client{Name: "Acme Solar", BusinessType: models.BusinessInstallation}
	require.NoError(t, repos.Clients.Create(ctx, c))
	assert.Equal(t, "client_001", c.ID)
	assert.Equal(t, models.StatusActive, c.Status)

	require.NoError(t, repos.Clients.Delete(ctx, c.ID))

	list, err := repos.Clients.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, list)

	got, err := repos.Clients.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInactive, got.Status)
	assert.NotNil(t, got.DeletedAt)
}

func TestGetMissingIsNotFound(t *testing.T) {
	repos := newTestRepos(t)
	_, err := repos.Projects.Get(context.Background(), "project_999")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestIDsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	var ids []string
	for i := 0; i < 2; i++ {
		p := &models.Project{Name: fmt.Sprintf("P%d", i), Type: models.BusinessInstallation, ClientID: "client_001"}
		require.NoError(t, repos.Projects.Create(ctx, p))
		ids = append(ids, p.ID)
	}
	require.NoError(t, repos.Projects.Delete(ctx, ids[1]))

	p := &models.Project{Name: "P3", Type: models.BusinessManufacturing, ClientID: "client_001"}
	require.NoError(t, repos.Projects.Create(ctx, p))

	assert.Equal(t, []string{"project_001", "project_002"}, ids)
	assert.Equal(t, "project_003", p.ID)

	u := &models.User{Name: "Emp", Email: "emp@example.com", Role: models.RoleEmployee}
	require.NoError(t, repos.Users.Create(ctx, u))
	assert.Equal(t, "employee_001", u.ID)
	assert.Equal(t, "General", u.Department)
}

func TestImportedIDsAreSkipped(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	doc := &models.Document{Tasks: []*models.Task{{ID: "task_001", Title: "imported", Status: models.TaskPending}}}
	require.NoError(t, repos.Documents.Import(ctx, doc))

	task := &models.Task{Title: "new"}
	require.NoError(t, repos.Tasks.Create(ctx, task))
	assert.Equal(t, "task_002", task.ID)

	list, err := repos.Tasks.List(ctx, models.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "task_001", list[0].ID, "imports sort before later inserts")
}

func TestConcurrentDisjointUpdatesKeepBoth(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	p := &models.Project{Name: "Line A", Type: models.BusinessManufacturing, ClientID: "client_001"}
	require.NoError(t, repos.Projects.Create(ctx, p))

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := repos.Projects.Update(ctx, p.ID, 0, func(p *models.Project) error {
			p.Description = "retooled"
			return nil
		})
		errs <- err
	}()
	go func() {
		defer wg.Done()
		_, err := repos.Projects.Update(ctx, p.ID, 0, func(p *models.Project) error {
			p.Budget = 125000
			return nil
		})
		errs <- err
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := repos.Projects.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "retooled", got.Description)
	assert.Equal(t, 125000.0, got.Budget)
	assert.Equal(t, int64(3), got.Version)
}

func TestConcurrentAppendsAreNotLost(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	p := &models.Project{Name: "Roof", Type: models.BusinessInstallation, ClientID: "client_001"}
	require.NoError(t, repos.Projects.Create(ctx, p))

	var wg sync.WaitGroup
	for g := 0; g < 5; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 2; i++ {
				emp := fmt.Sprintf("employee_%d%d", g, i)
				_, err := repos.Projects.Update(ctx, p.ID, 0, func(p *models.Project) error {
					p.AssignedEmployees = append(p.AssignedEmployees, emp)
					return nil
				})
				assert.NoError(t, err)
			}
		}(g)
	}
	wg.Wait()

	got, err := repos.Projects.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, got.AssignedEmployees, 10)
}

func TestStaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	p := &models.Project{Name: "Plant", Type: models.BusinessManufacturing, ClientID: "client_001"}
	require.NoError(t, repos.Projects.Create(ctx, p))
	require.Equal(t, int64(1), p.Version)

	_, err := repos.Projects.Update(ctx, p.ID, 1, func(p *models.Project) error { p.Progress = 10; return nil })
	require.NoError(t, err)

	_, err = repos.Projects.Update(ctx, p.ID, 1, func(p *models.Project) error { p.Progress = 20; return nil })
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	got, err := repos.Projects.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Progress)
}

func TestUserEmailUniqueAndLookup(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	require.NoError(t, repos.Users.Create(ctx, &models.User{Name: "A", Email: "a@example.com", Role: models.RoleManager}))
	err := repos.Users.Create(ctx, &models.User{Name: "B", Email: "A@example.com", Role: models.RoleEmployee})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	u, err := repos.Users.GetByEmail(ctx, "a@EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, "manager_001", u.ID)

	require.NoError(t, repos.Users.Delete(ctx, u.ID))
	_, err = repos.Users.GetByEmail(ctx, "a@example.com")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestAttendanceJoinAndUniqueness(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	emp := &models.User{Name: "Ravi", Email: "ravi@example.com", Role: models.RoleEmployee, Department: "Installation"}
	require.NoError(t, repos.Users.Create(ctx, emp))

	rec := &models.Attendance{EmployeeID: emp.ID, Date: "2026-03-10", CheckIn: "09:01:00"}
	require.NoError(t, repos.Attendance.Create(ctx, rec))
	assert.Equal(t, "attendance_001", rec.ID)
	assert.Equal(t, models.AttendancePresent, rec.Status)

	err := repos.Attendance.Create(ctx, &models.Attendance{EmployeeID: emp.ID, Date: "2026-03-10"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	views, err := repos.Attendance.ByDate(ctx, "2026-03-10", "Installation")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Ravi", views[0].EmployeeName)

	views, err = repos.Attendance.ByDate(ctx, "2026-03-10", "Sales")
	require.NoError(t, err)
	assert.Empty(t, views)

	recs, err := repos.Attendance.ByEmployee(ctx, emp.ID, "2026-03-01", "2026-03-09")
	require.NoError(t, err)
	assert.Empty(t, recs)

	require.NoError(t, repos.Attendance.Delete(ctx, rec.ID))
	_, err = repos.Attendance.FindByEmployeeDate(ctx, emp.ID, "2026-03-10")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDailyOTPCurrent(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	n := 0
	gen := func(prev string) (string, error) {
		n++
		return fmt.Sprintf("%05d", n), nil
	}

	a, err := repos.OTP.Current(ctx, "2026-03-10", gen)
	require.NoError(t, err)
	b, err := repos.OTP.Current(ctx, "2026-03-10", gen)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := repos.OTP.Current(ctx, "2026-03-11", gen)
	require.NoError(t, err)
	assert.NotEqual(t, a.Code, c.Code)
	assert.Equal(t, "2026-03-11", c.Date)
}

func TestDocumentExport(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	require.NoError(t, repos.Users.Create(ctx, &models.User{Name: "E", Email: "e@example.com", Role: models.RoleEmployee}))
	require.NoError(t, repos.Projects.Create(ctx, &models.Project{Name: "I", Type: models.BusinessInstallation, Budget: 50000}))
	require.NoError(t, repos.Projects.Create(ctx, &models.Project{Name: "M", Type: models.BusinessManufacturing, Budget: 20000}))

	doc, err := repos.Documents.Export(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Employees, 1)
	assert.Equal(t, 2, doc.Analytics.TotalProjects)
	assert.Equal(t, 50000.0, doc.Analytics.InstallationRevenue)
	assert.Equal(t, 20000.0, doc.Analytics.ManufacturingRevenue)

	other := newTestRepos(t)
	require.NoError(t, other.Documents.Import(ctx, doc))
	projects, err := other.Projects.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, projects, 2)
}

func TestTokenRevocationAndFailures(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	require.NoError(t, repos.Tokens.Revoke(ctx, "jti-1", time.Hour))
	revoked, err := repos.Tokens.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
	revoked, err = repos.Tokens.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)

	for i := 0; i < 3; i++ {
		ok, err := repos.Tokens.TakeAttempt(ctx, "totp", "admin_001", 3, 15*time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := repos.Tokens.TakeAttempt(ctx, "totp", "admin_001", 3, 15*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repos.Tokens.ResetFailures(ctx, "totp", "admin_001"))
	ok, err = repos.Tokens.TakeAttempt(ctx, "totp", "admin_001", 3, 15*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConcurrentAttemptsStopAtLimit(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repos.Tokens.TakeAttempt(ctx, "totp", "emp_001", 5, 15*time.Minute)
			if err != nil {
				assert.True(t, apperr.Is(err, apperr.KindConflict), err)
				return
			}
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Positive(t, granted)
	assert.LessOrEqual(t, granted, 5)

	ok, err := repos.Tokens.TakeAttempt(ctx, "totp", "emp_001", granted, 15*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "every granted attempt was recorded")
}

func TestConcurrentAttendanceCreateKeepsOnePerDay(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repos.Attendance.Create(ctx, &models.Attendance{EmployeeID: "employee_001", Date: "2026-03-10"})
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.True(t, apperr.Is(err, apperr.KindConflict), err)
	}
	assert.Equal(t, 1, created)

	recs, err := repos.Attendance.ByEmployee(ctx, "employee_001", "", "")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestConcurrentUserCreateKeepsEmailUnique(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- repos.Users.Create(ctx, &models.User{Name: fmt.Sprintf("Dup %d", i), Email: "Dup@erp.local", PasswordHash: "x"})
		}(i)
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
		}
	}
	assert.Equal(t, 1, created)

	all, err := repos.Users.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFileRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	rec := &models.FileRecord{
		ID:               "f1",
		OriginalFilename: "plan.pdf",
		Category:         "documents",
		UploadedBy:       "employee_001",
		Extra:            map[string]string{"description": "site plan"},
	}
	require.NoError(t, repos.Files.Create(ctx, rec))

	got, err := repos.Files.Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "site plan", got.Extra["description"])
	assert.Equal(t, int64(1), got.Version)

	require.NoError(t, repos.Files.Delete(ctx, "f1"))
	list, err := repos.Files.List(ctx, "", "")
	require.NoError(t, err)
	assert.Empty(t, list)
}
