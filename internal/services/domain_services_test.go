package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"erp-backend/internal/apperr"
	"erp-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var adminActor = models.Actor{ID: "admin_001", Role: models.RoleAdmin}

func strPtr(s string) *string { return &s }

func TestUserPermissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	emp := env.createUser(t, "Erin", "erin@erp.local", models.RoleEmployee)
	other := env.createUser(t, "Olly", "olly@erp.local", models.RoleEmployee)
	assert.Equal(t, "employee_001", emp.ID)
	assert.Equal(t, "General", emp.Department)
	assert.NotEmpty(t, emp.APIKey)

	_, err := env.users.UpdateUser(ctx, actorOf(emp), emp.ID, &models.UpdateUserRequest{Role: strPtr(models.RoleAdmin)})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = env.users.UpdateUser(ctx, actorOf(emp), other.ID, &models.UpdateUserRequest{Name: strPtr("x")})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	updated, err := env.users.UpdateUser(ctx, actorOf(emp), emp.ID, &models.UpdateUserRequest{Department: strPtr("Installation")})
	require.NoError(t, err)
	assert.Equal(t, "Installation", updated.Department)

	_, err = env.users.UpdateUser(ctx, actorOf(emp), emp.ID, &models.UpdateUserRequest{Password: strPtr("weak")})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = env.users.GetUser(ctx, actorOf(emp), other.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	err = env.users.DeleteUser(ctx, actorOf(emp), emp.ID)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = env.users.CreateUser(ctx, &models.CreateUserRequest{Name: "Dup", Email: "ERIN@erp.local", Password: strongPassword, Role: models.RoleEmployee})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestWeakPasswordRejectedOnCreate(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.users.CreateUser(context.Background(), &models.CreateUserRequest{
		Name: "Weak", Email: "weak@erp.local", Password: "short", Role: models.RoleEmployee,
	})
	require.Error(t, err)
	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, apperr.KindValidation, e.Kind)
	assert.Contains(t, e.Details, "Password must be at least 8 characters long")
}

func TestUserStatistics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "Ann", "ann@erp.local", models.RoleAdmin)
	env.createUser(t, "Max", "max@erp.local", models.RoleManager)
	e1 := env.createUser(t, "Eve", "eve@erp.local", models.RoleEmployee)
	env.createUser(t, "Eli", "eli@erp.local", models.RoleEmployee)
	require.NoError(t, env.users.DeleteUser(ctx, adminActor, e1.ID))

	stats, err := env.users.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalUsers)
	assert.Equal(t, 3, stats.ActiveUsers)
	assert.Equal(t, 1, stats.InactiveUsers)
	assert.Equal(t, 1, stats.Employees)
	assert.Equal(t, 3, stats.Departments["General"])
}

func TestProjectLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := env.createClient(t, "Acme", models.BusinessInstallation)
	emp := env.createUser(t, "Erin", "erin@erp.local", models.RoleEmployee)
	other := env.createUser(t, "Olly", "olly@erp.local", models.RoleEmployee)

	_, err := env.projects.CreateProject(ctx, adminActor, &models.CreateProjectRequest{
		Name: "Ghost", Type: models.BusinessInstallation, ClientID: "client_999",
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = env.projects.CreateProject(ctx, adminActor, &models.CreateProjectRequest{
		Name: "Negative", Type: models.BusinessInstallation, ClientID: client.ID, Budget: -1,
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	p, err := env.projects.CreateProject(ctx, adminActor, &models.CreateProjectRequest{
		Name: "Solar Roof", Type: models.BusinessInstallation, ClientID: client.ID, Budget: 50000,
		StartDate: "2026-03-01", EndDate: "2026-06-30",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectPending, p.Status)
	assert.Len(t, env.notifier.Events("project"), 1)

	_, err = env.projects.GetProject(ctx, actorOf(emp), p.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	p, err = env.projects.AssignEmployees(ctx, p.ID, &models.AssignEmployeesRequest{EmployeeIDs: []string{emp.ID, emp.ID}})
	require.NoError(t, err)
	assert.Equal(t, []string{emp.ID}, p.AssignedEmployees)
	assert.Len(t, env.notifier.Events("user"), 1)

	_, err = env.projects.GetProject(ctx, actorOf(emp), p.ID)
	assert.NoError(t, err)
	visible, err := env.projects.ListProjects(ctx, actorOf(other), "")
	require.NoError(t, err)
	assert.Empty(t, visible)
	mine, err := env.projects.MyProjects(ctx, actorOf(emp))
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = env.projects.UpdateStatus(ctx, p.ID, &models.ProjectStatusRequest{Status: "finished"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	p, err = env.projects.UpdateStatus(ctx, p.ID, &models.ProjectStatusRequest{Status: models.ProjectCompleted})
	require.NoError(t, err)
	assert.Equal(t, 100, p.Progress)

	_, err = env.projects.UpdateProject(ctx, p.ID, &models.UpdateProjectRequest{EndDate: strPtr("2026-01-01")})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	stale := int64(1)
	_, err = env.projects.UpdateProject(ctx, p.ID, &models.UpdateProjectRequest{Name: strPtr("Renamed"), Version: stale})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	stats, err := env.projects.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 50000.0, stats.TotalRevenue)
	assert.Equal(t, 100.0, stats.CompletionRate)

	require.NoError(t, env.projects.DeleteProject(ctx, p.ID))
	list, err := env.projects.ListProjects(ctx, adminActor, "")
	require.NoError(t, err)
	assert.Empty(t, list)
	got, err := env.projects.GetProject(ctx, adminActor, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectDeleted, got.Status)
}

func TestConcurrentProjectUpdatesKeepBothFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := env.createClient(t, "Acme", models.BusinessInstallation)
	p, err := env.projects.CreateProject(ctx, adminActor, &models.CreateProjectRequest{
		Name: "Plant", Type: models.BusinessManufacturing, ClientID: client.ID, Budget: 1000,
	})
	require.NoError(t, err)

	budget := 2000.0
	progress := 40
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := env.projects.UpdateProject(ctx, p.ID, &models.UpdateProjectRequest{Budget: &budget})
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := env.projects.UpdateProject(ctx, p.ID, &models.UpdateProjectRequest{Progress: &progress})
		assert.NoError(t, err)
	}()
	wg.Wait()

	got, err := env.projects.GetProject(ctx, adminActor, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2000.0, got.Budget)
	assert.Equal(t, 40, got.Progress)
	assert.Equal(t, int64(3), got.Version)
}

func TestLeadConversion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	emp := env.createUser(t, "Erin", "erin@erp.local", models.RoleEmployee)

	lead, err := env.leads.CreateLead(ctx, adminActor, &models.CreateLeadRequest{
		Name: "Mike Johnson", Email: "mike@megacorp.example", Company: "MegaCorp",
		BusinessType: models.BusinessManufacturing, AssignedTo: emp.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.LeadNew, lead.Status)
	assert.Equal(t, "medium", lead.Priority)

	_, err = env.leads.ConvertLead(ctx, adminActor, lead.ID, &models.ConvertLeadRequest{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	conv, err := env.leads.ConvertLead(ctx, adminActor, lead.ID, &models.ConvertLeadRequest{ProjectName: "Stackers", Budget: 75000})
	require.NoError(t, err)
	assert.Equal(t, models.LeadConverted, conv.Lead.Status)
	assert.Equal(t, conv.Client.ID, conv.Lead.ConvertedClientID)
	assert.Equal(t, conv.Project.ID, conv.Lead.ConvertedProjectID)
	assert.Equal(t, "Mike Johnson", conv.Client.Name)
	assert.Equal(t, models.BusinessManufacturing, conv.Project.Type)
	assert.Equal(t, conv.Client.ID, conv.Project.ClientID)
	assert.Equal(t, []string{emp.ID}, conv.Project.AssignedEmployees)

	_, err = env.leads.ConvertLead(ctx, adminActor, lead.ID, &models.ConvertLeadRequest{ProjectName: "Again"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	clients, err := env.repos.Clients.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, clients, 1)
	projects, err := env.repos.Projects.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 1)
}

func TestLeadAutoAssignRoundRobin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	e1 := env.createUser(t, "Erin", "erin@erp.local", models.RoleEmployee)
	e2 := env.createUser(t, "Eli", "eli@erp.local", models.RoleEmployee)

	for _, name := range []string{"A", "B", "C"} {
		_, err := env.leads.CreateLead(ctx, adminActor, &models.CreateLeadRequest{Name: name, BusinessType: models.BusinessBoth})
		require.NoError(t, err)
	}
	_, err := env.leads.CreateLead(ctx, adminActor, &models.CreateLeadRequest{Name: "Taken", BusinessType: models.BusinessBoth, AssignedTo: e2.ID})
	require.NoError(t, err)

	assigned, err := env.leads.AutoAssign(ctx)
	require.NoError(t, err)
	require.Len(t, assigned, 3)
	assert.Equal(t, e1.ID, assigned[0].AssignedTo)
	assert.Equal(t, e2.ID, assigned[1].AssignedTo)
	assert.Equal(t, e1.ID, assigned[2].AssignedTo)

	again, err := env.leads.AutoAssign(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestDailyOTPRotatesPerDay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.attendance.GetDailyOTP(ctx)
	require.NoError(t, err)
	assert.Len(t, first.Code, 5)
	assert.Equal(t, "2026-03-10", first.Date)

	env.clock.Advance(10 * time.Hour)
	same, err := env.attendance.GetDailyOTP(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, same)

	env.clock.Advance(24 * time.Hour)
	next, err := env.attendance.GetDailyOTP(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-11", next.Date)
	assert.NotEqual(t, first.Code, next.Code)

	regenerated, err := env.attendance.GenerateDailyOTP(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, next.Code, regenerated.Code)

	ok, err := env.attendance.VerifyOTP(ctx, regenerated.Code)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = env.attendance.VerifyOTP(ctx, next.Code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckInAndOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	emp := env.createUser(t, "Erin", "erin@erp.local", models.RoleEmployee)
	actor := actorOf(emp)

	otp, err := env.attendance.GetDailyOTP(ctx)
	require.NoError(t, err)
	wrong := "00000"
	if otp.Code == wrong {
		wrong = "11111"
	}

	_, err = env.attendance.CheckOut(ctx, actor, &models.CheckOutRequest{OTP: otp.Code})
	require.Error(t, err)
	assert.Equal(t, "No check-in record found for today", apperr.PublicMessage(err))

	_, err = env.attendance.CheckIn(ctx, actor, &models.CheckInRequest{OTP: wrong})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	rec, err := env.attendance.CheckIn(ctx, actor, &models.CheckInRequest{OTP: otp.Code})
	require.NoError(t, err)
	assert.Equal(t, "09:30:00", rec.CheckIn)
	assert.Equal(t, "Office", rec.Location)
	assert.Equal(t, models.AttendancePresent, rec.Status)

	_, err = env.attendance.CheckIn(ctx, actor, &models.CheckInRequest{OTP: otp.Code})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	env.clock.Advance(8 * time.Hour)
	rec, err = env.attendance.CheckOut(ctx, actor, &models.CheckOutRequest{OTP: otp.Code})
	require.NoError(t, err)
	assert.Equal(t, "17:30:00", rec.CheckOut)

	views, err := env.attendance.ByDate(ctx, "2026-03-10", "")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Erin", views[0].EmployeeName)

	other := env.createUser(t, "Olly", "olly@erp.local", models.RoleEmployee)
	_, err = env.attendance.ByEmployee(ctx, actorOf(other), emp.ID, "", "")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	assert.Len(t, env.notifier.Events("attendance"), 2)
}

func TestMarkPresent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	emp := env.createUser(t, "Erin", "erin@erp.local", models.RoleEmployee)

	rec, err := env.attendance.MarkPresent(ctx, adminActor, &models.MarkPresentRequest{EmployeeID: emp.ID, Date: "2026-03-09"})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-09", rec.Date)
	assert.Equal(t, adminActor.ID, rec.MarkedBy)

	again, err := env.attendance.MarkPresent(ctx, adminActor, &models.MarkPresentRequest{EmployeeID: emp.ID, Date: "2026-03-09"})
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)

	hist, err := env.attendance.ByEmployee(ctx, actorOf(emp), emp.ID, "2026-03-01", "2026-03-31")
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestTaskVisibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	e1 := env.createUser(t, "Erin", "erin@erp.local", models.RoleEmployee)
	e2 := env.createUser(t, "Eli", "eli@erp.local", models.RoleEmployee)

	t1, err := env.tasks.CreateTask(ctx, adminActor, &models.CreateTaskRequest{Title: "Survey site", AssignedTo: e1.ID})
	require.NoError(t, err)
	_, err = env.tasks.CreateTask(ctx, adminActor, &models.CreateTaskRequest{Title: "Order panels", AssignedTo: e2.ID})
	require.NoError(t, err)
	assert.Equal(t, "medium", t1.Priority)
	assert.Equal(t, models.TaskPending, t1.Status)

	_, err = env.tasks.CreateTask(ctx, adminActor, &models.CreateTaskRequest{Title: "Orphan", ProjectID: "project_404"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	mine, err := env.tasks.ListTasks(ctx, actorOf(e1), models.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, t1.ID, mine[0].ID)

	all, err := env.tasks.ListTasks(ctx, adminActor, models.TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = env.tasks.UpdateTask(ctx, actorOf(e1), t1.ID, &models.UpdateTaskRequest{Title: strPtr("x")})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = env.tasks.GetTask(ctx, actorOf(e2), t1.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	done, err := env.tasks.UpdateTask(ctx, actorOf(e1), t1.ID, &models.UpdateTaskRequest{Status: strPtr(models.TaskCompleted)})
	require.NoError(t, err)
	assert.NotNil(t, done.CompletedAt)

	require.NoError(t, env.tasks.DeleteTask(ctx, t1.ID))
	mine, err = env.tasks.ListTasks(ctx, actorOf(e1), models.TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestAutomationAdvancesProjects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := env.createClient(t, "Acme", models.BusinessInstallation)

	create := func(name, start, end string) *models.Project {
		p, err := env.projects.CreateProject(ctx, adminActor, &models.CreateProjectRequest{
			Name: name, Type: models.BusinessInstallation, ClientID: client.ID, StartDate: start, EndDate: end,
		})
		require.NoError(t, err)
		return p
	}
	started := create("Started", "2026-03-01", "2026-12-31")
	finished := create("Finished", "2026-01-01", "2026-03-10")
	future := create("Future", "2026-04-01", "2026-05-01")

	auto := NewAutomationService(env.repos, env.leads, env.notifier, time.Hour, true, env.clock.Now)
	changed, err := auto.AutoUpdateProjectStatus(ctx)
	require.NoError(t, err)
	assert.Len(t, changed, 2)

	get := func(id string) *models.Project {
		p, err := env.repos.Projects.Get(ctx, id)
		require.NoError(t, err)
		return p
	}
	assert.Equal(t, models.ProjectInProgress, get(started.ID).Status)
	assert.Equal(t, models.ProjectCompleted, get(finished.ID).Status)
	assert.Equal(t, 100, get(finished.ID).Progress)
	assert.Equal(t, models.ProjectPending, get(future.ID).Status)

	changed, err = auto.AutoUpdateProjectStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestConcurrentCheckInRecordsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	emp := env.createUser(t, "Erin", "erin@erp.local", models.RoleEmployee)
	otp, err := env.attendance.GetDailyOTP(ctx)
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.attendance.CheckIn(ctx, actorOf(emp), &models.CheckInRequest{OTP: otp.Code})
			if err != nil {
				assert.True(t, apperr.Is(err, apperr.KindConflict), err)
				return
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)

	recs, err := env.attendance.ByEmployee(ctx, actorOf(emp), emp.ID, "", "")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
