package analytics

import (
	"math"
	"sort"
	"time"

	"erp-backend/internal/models"
	"erp-backend/internal/timeutil"
)

const (
	costShare   = 0.7
	profitShare = 0.3

	recentProjectWindow = 10
	recentProjectMonths = 3
	recentLeadWindow    = 20
	topPerformers       = 5
	chartMonths         = 12
)

// dataset is one consistent view of the live records. Every section is
// computed from a dataset so a report never mixes two points in time.
type dataset struct {
	now        time.Time
	today      string
	users      []*models.User
	clients    []*models.Client
	projects   []*models.Project
	leads      []*models.Lead
	attendance []*models.Attendance
}

func newDataset(doc *models.Document, now time.Time) *dataset {
	ds := &dataset{now: now, today: timeutil.Date(now)}
	for _, u := range doc.Users {
		if !u.IsDeleted() {
			ds.users = append(ds.users, u)
		}
	}
	for _, c := range doc.Clients {
		if !c.IsDeleted() {
			ds.clients = append(ds.clients, c)
		}
	}
	for _, p := range doc.Projects {
		if !p.IsDeleted() && p.Status != models.ProjectDeleted {
			ds.projects = append(ds.projects, p)
		}
	}
	for _, l := range doc.Leads {
		if !l.IsDeleted() && l.Status != models.LeadDeleted {
			ds.leads = append(ds.leads, l)
		}
	}
	for _, a := range doc.Attendance {
		if !a.IsDeleted() {
			ds.attendance = append(ds.attendance, a)
		}
	}
	return ds
}

func (ds *dataset) employees() []*models.User {
	var out []*models.User
	for _, u := range ds.users {
		if u.Role == models.RoleEmployee {
			out = append(out, u)
		}
	}
	return out
}

func (ds *dataset) activeEmployees() int {
	n := 0
	for _, u := range ds.employees() {
		if u.IsActive() {
			n++
		}
	}
	return n
}

func (ds *dataset) todayAttendance() []*models.Attendance {
	var out []*models.Attendance
	for _, a := range ds.attendance {
		if a.Date == ds.today {
			out = append(out, a)
		}
	}
	return out
}

func (ds *dataset) totalRevenue() float64 {
	var total float64
	for _, p := range ds.projects {
		total += p.Budget
	}
	return total
}

func (ds *dataset) revenueByType(projectType string) float64 {
	var total float64
	for _, p := range ds.projects {
		if p.Type == projectType {
			total += p.Budget
		}
	}
	return total
}

func (ds *dataset) countProjects(status string) int {
	n := 0
	for _, p := range ds.projects {
		if p.Status == status {
			n++
		}
	}
	return n
}

func (ds *dataset) conversionRate() float64 {
	if len(ds.leads) == 0 {
		return 0
	}
	converted := 0
	for _, l := range ds.leads {
		if l.Status == models.LeadConverted {
			converted++
		}
	}
	return percent(converted, len(ds.leads))
}

func monthOf(t time.Time) string {
	return t.In(timeutil.Loc).Format(timeutil.MonthLayout)
}

func (ds *dataset) monthlyRevenue() map[string]float64 {
	out := make(map[string]float64)
	for _, p := range ds.projects {
		if p.CreatedAt.IsZero() {
			continue
		}
		out[monthOf(p.CreatedAt)] += p.Budget
	}
	return out
}

func overview(ds *dataset) Overview {
	completed := ds.countProjects(models.ProjectCompleted)
	return Overview{
		TotalProjects:         len(ds.projects),
		ActiveProjects:        ds.countProjects(models.ProjectInProgress),
		CompletedProjects:     completed,
		TotalRevenue:          ds.totalRevenue(),
		TotalClients:          len(ds.clients),
		TotalLeads:            len(ds.leads),
		ConversionRate:        ds.conversionRate(),
		ActiveEmployees:       ds.activeEmployees(),
		ProjectCompletionRate: percent(completed, len(ds.projects)),
	}
}

func financial(ds *dataset) Financial {
	total := ds.totalRevenue()
	f := Financial{
		TotalRevenue:         total,
		InstallationRevenue:  ds.revenueByType(models.BusinessInstallation),
		ManufacturingRevenue: ds.revenueByType(models.BusinessManufacturing),
		TotalCost:            total * costShare,
		TotalProfit:          total * profitShare,
		MonthlyRevenue:       ds.monthlyRevenue(),
	}
	if f.TotalCost+f.TotalProfit > 0 {
		f.ProfitMargin = round2(f.TotalProfit / (f.TotalCost + f.TotalProfit) * 100)
	}
	if len(ds.projects) > 0 {
		f.AverageProjectValue = round2(total / float64(len(ds.projects)))
	}
	return f
}

func operational(ds *dataset) Operational {
	var durations []float64
	delayed := 0
	for _, p := range ds.projects {
		start, errStart := timeutil.ParseDate(p.StartDate)
		end, errEnd := timeutil.ParseDate(p.EndDate)
		if errStart == nil && errEnd == nil {
			durations = append(durations, end.Sub(start).Hours()/24)
		}
		if p.Status == models.ProjectInProgress && errEnd == nil && p.EndDate < ds.today {
			delayed++
		}
	}

	return Operational{
		AverageProjectDuration: round2(mean(durations)),
		AttendanceRate:         percent(len(ds.todayAttendance()), len(ds.employees())),
		TotalAttendanceRecords: len(ds.attendance),
		ProjectsOnTime:         ds.countProjects(models.ProjectCompleted),
		ProjectsDelayed:        delayed,
	}
}

func performance(ds *dataset) Performance {
	perf := Performance{
		EmployeePerformance:   make(map[string]EmployeePerformance),
		DepartmentPerformance: make(map[string]DepartmentPerformance),
	}

	ranked := make([]EmployeePerformance, 0)
	for _, u := range ds.employees() {
		ep := EmployeePerformance{EmployeeID: u.ID, Name: u.Name}
		for _, p := range ds.projects {
			if !p.IsAssigned(u.ID) {
				continue
			}
			ep.TotalProjects++
			ep.TotalRevenue += p.Budget
			if p.Status == models.ProjectCompleted {
				ep.CompletedProjects++
			}
		}
		ep.CompletionRate = percent(ep.CompletedProjects, ep.TotalProjects)
		perf.EmployeePerformance[u.ID] = ep
		ranked = append(ranked, ep)

		dept := u.Department
		if dept == "" {
			dept = "General"
		}
		dp := perf.DepartmentPerformance[dept]
		dp.Employees++
		dp.Projects += ep.TotalProjects
		dp.Revenue += ep.TotalRevenue
		perf.DepartmentPerformance[dept] = dp
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].CompletionRate > ranked[j].CompletionRate
	})
	if len(ranked) > topPerformers {
		ranked = ranked[:topPerformers]
	}
	perf.TopPerformers = ranked
	return perf
}

func monthlyTrends(ds *dataset) []MonthlyTrend {
	byMonth := make(map[string]*MonthlyTrend)
	get := func(month string) *MonthlyTrend {
		mt, ok := byMonth[month]
		if !ok {
			mt = &MonthlyTrend{Month: month}
			byMonth[month] = mt
		}
		return mt
	}
	for _, p := range ds.projects {
		if p.CreatedAt.IsZero() {
			continue
		}
		mt := get(monthOf(p.CreatedAt))
		mt.Projects++
		mt.Revenue += p.Budget
	}
	for _, l := range ds.leads {
		if l.CreatedAt.IsZero() {
			continue
		}
		get(monthOf(l.CreatedAt)).Leads++
	}

	out := make([]MonthlyTrend, 0, len(byMonth))
	for _, mt := range byMonth {
		out = append(out, *mt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// growthRate compares the revenue of the last two months with data.
func growthRate(trends []MonthlyTrend) float64 {
	if len(trends) < 2 {
		return 0
	}
	recent := trends[len(trends)-1].Revenue
	previous := trends[len(trends)-2].Revenue
	if previous == 0 {
		return 0
	}
	return round2((recent - previous) / previous * 100)
}

func seasonalPatterns(trends []MonthlyTrend) SeasonalPattern {
	if len(trends) < 12 {
		return SeasonalPattern{Message: "Insufficient data for seasonal analysis"}
	}
	revenues := make([]float64, len(trends))
	for i, t := range trends {
		revenues[i] = t.Revenue
	}
	avg := mean(revenues)
	std := stddev(revenues, avg)
	sp := SeasonalPattern{
		HasPatterns:    std > avg*0.2,
		AverageRevenue: round2(avg),
	}
	if avg > 0 {
		sp.Volatility = round2(std / avg)
	}
	return sp
}

func trends(ds *dataset) Trends {
	mt := monthlyTrends(ds)
	return Trends{
		MonthlyTrends:    mt,
		GrowthRate:       growthRate(mt),
		SeasonalPatterns: seasonalPatterns(mt),
	}
}

func predictions(ds *dataset) Predictions {
	var pred Predictions
	if n := len(ds.projects); n > 0 {
		recent := len(ds.projects)
		if recent > recentProjectWindow {
			recent = recentProjectWindow
		}
		avgMonthly := float64(recent) / recentProjectMonths
		avgValue := ds.totalRevenue() / float64(n)
		pred.ProjectedMonthlyProjects = round2(avgMonthly)
		pred.ProjectedAnnualRevenue = round2(avgMonthly * avgValue * 12)
	}
	pred.LeadConversionForecast = leadForecast(ds)
	pred.ResourceRequirements = resourceForecast(ds)
	return pred
}

func leadForecast(ds *dataset) LeadForecast {
	if len(ds.leads) == 0 {
		return LeadForecast{}
	}
	recent := make([]*models.Lead, len(ds.leads))
	copy(recent, ds.leads)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})
	if len(recent) > recentLeadWindow {
		recent = recent[:recentLeadWindow]
	}
	converted := 0
	for _, l := range recent {
		if l.Status == models.LeadConverted {
			converted++
		}
	}
	confidence := math.Min(95, math.Max(50, float64(len(recent)*5)))
	return LeadForecast{
		ConversionRate: percent(converted, len(recent)),
		Confidence:     confidence,
	}
}

func resourceForecast(ds *dataset) ResourceForecast {
	workload := 0
	for _, p := range ds.projects {
		if p.Status == models.ProjectInProgress {
			workload += len(p.AssignedEmployees)
		}
	}
	utilization := percent(workload, ds.activeEmployees())

	hiring := "Low"
	switch {
	case utilization > 80:
		hiring = "High"
	case utilization > 60:
		hiring = "Medium"
	}
	return ResourceForecast{
		CurrentUtilization: utilization,
		RecommendedHiring:  hiring,
		EstimatedWorkload:  workload,
	}
}

func summary(ds *dataset) Summary {
	s := Summary{
		TotalProjects:        len(ds.projects),
		ActiveEmployees:      ds.activeEmployees(),
		TotalClients:         len(ds.clients),
		TotalLeads:           len(ds.leads),
		ConversionRate:       ds.conversionRate(),
		TotalRevenue:         ds.totalRevenue(),
		InstallationRevenue:  ds.revenueByType(models.BusinessInstallation),
		ManufacturingRevenue: ds.revenueByType(models.BusinessManufacturing),
		TodayAttendance:      len(ds.todayAttendance()),
	}
	for _, p := range ds.projects {
		switch p.Type {
		case models.BusinessInstallation:
			s.InstallationProjects++
		case models.BusinessManufacturing:
			s.ManufacturingProjects++
		}
	}
	for _, l := range ds.leads {
		if l.Status == models.LeadConverted {
			s.ConvertedLeads++
		}
	}
	s.AttendanceRate = percent(s.TodayAttendance, s.ActiveEmployees)
	return s
}

func dailyReport(ds *dataset) DailyReport {
	var r DailyReport
	r.Date = ds.today
	for _, a := range ds.todayAttendance() {
		switch a.Status {
		case models.AttendancePresent:
			r.Attendance.Present++
		case models.AttendanceAbsent:
			r.Attendance.Absent++
		}
	}
	r.Attendance.TotalEmployees = len(ds.employees())
	r.Projects.Active = ds.countProjects(models.ProjectInProgress)
	r.Projects.Total = len(ds.projects)
	for _, l := range ds.leads {
		if l.Status == models.LeadNew {
			r.Leads.New++
		}
	}
	r.Leads.Total = len(ds.leads)
	return r
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return round2(float64(part) / float64(whole) * 100)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the population standard deviation.
func stddev(values []float64, avg float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sq float64
	for _, v := range values {
		sq += (v - avg) * (v - avg)
	}
	return math.Sqrt(sq / float64(len(values)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
