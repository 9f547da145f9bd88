package analytics

import "time"

type Overview struct {
	TotalProjects         int     `json:"total_projects"`
	ActiveProjects        int     `json:"active_projects"`
	CompletedProjects     int     `json:"completed_projects"`
	TotalRevenue          float64 `json:"total_revenue"`
	TotalClients          int     `json:"total_clients"`
	TotalLeads            int     `json:"total_leads"`
	ConversionRate        float64 `json:"conversion_rate"`
	ActiveEmployees       int     `json:"active_employees"`
	ProjectCompletionRate float64 `json:"project_completion_rate"`
}

type Financial struct {
	TotalRevenue         float64            `json:"total_revenue"`
	InstallationRevenue  float64            `json:"installation_revenue"`
	ManufacturingRevenue float64            `json:"manufacturing_revenue"`
	TotalCost            float64            `json:"total_cost"`
	TotalProfit          float64            `json:"total_profit"`
	ProfitMargin         float64            `json:"profit_margin"`
	MonthlyRevenue       map[string]float64 `json:"monthly_revenue"`
	AverageProjectValue  float64            `json:"average_project_value"`
}

type Operational struct {
	AverageProjectDuration float64 `json:"average_project_duration"` // days
	AttendanceRate         float64 `json:"attendance_rate"`
	TotalAttendanceRecords int     `json:"total_attendance_records"`
	ProjectsOnTime         int     `json:"projects_on_time"`
	ProjectsDelayed        int     `json:"projects_delayed"`
}

type EmployeePerformance struct {
	EmployeeID        string  `json:"employee_id"`
	Name              string  `json:"name"`
	TotalProjects     int     `json:"total_projects"`
	CompletedProjects int     `json:"completed_projects"`
	CompletionRate    float64 `json:"completion_rate"`
	TotalRevenue      float64 `json:"total_revenue"`
}

type DepartmentPerformance struct {
	Projects  int     `json:"projects"`
	Revenue   float64 `json:"revenue"`
	Employees int     `json:"employees"`
}

type Performance struct {
	EmployeePerformance   map[string]EmployeePerformance   `json:"employee_performance"`
	DepartmentPerformance map[string]DepartmentPerformance `json:"department_performance"`
	TopPerformers         []EmployeePerformance            `json:"top_performers"`
}

type MonthlyTrend struct {
	Month    string  `json:"month"` // YYYY-MM
	Projects int     `json:"projects"`
	Revenue  float64 `json:"revenue"`
	Leads    int     `json:"leads"`
}

type SeasonalPattern struct {
	HasPatterns    bool    `json:"has_patterns"`
	Message        string  `json:"message,omitempty"`
	AverageRevenue float64 `json:"average_revenue,omitempty"`
	Volatility     float64 `json:"volatility,omitempty"`
}

type Trends struct {
	MonthlyTrends    []MonthlyTrend  `json:"monthly_trends"`
	GrowthRate       float64         `json:"growth_rate"`
	SeasonalPatterns SeasonalPattern `json:"seasonal_patterns"`
}

type LeadForecast struct {
	ConversionRate float64 `json:"conversion_rate"`
	Confidence     float64 `json:"confidence"`
}

type ResourceForecast struct {
	CurrentUtilization float64 `json:"current_utilization"`
	RecommendedHiring  string  `json:"recommended_hiring"`
	EstimatedWorkload  int     `json:"estimated_workload"`
}

type Predictions struct {
	ProjectedAnnualRevenue   float64          `json:"projected_annual_revenue"`
	ProjectedMonthlyProjects float64          `json:"projected_monthly_projects"`
	LeadConversionForecast   LeadForecast     `json:"lead_conversion_forecast"`
	ResourceRequirements     ResourceForecast `json:"resource_requirements"`
}

// Charts maps chart names to PNG data URIs.
type Charts map[string]string

type Comprehensive struct {
	Overview    Overview    `json:"overview"`
	Financial   Financial   `json:"financial"`
	Operational Operational `json:"operational"`
	Performance Performance `json:"performance"`
	Trends      Trends      `json:"trends"`
	Predictions Predictions `json:"predictions"`
	Charts      Charts      `json:"charts"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// Summary holds the dashboard counters.
type Summary struct {
	TotalProjects         int     `json:"total_projects"`
	InstallationProjects  int     `json:"installation_projects"`
	ManufacturingProjects int     `json:"manufacturing_projects"`
	ActiveEmployees       int     `json:"active_employees"`
	TotalClients          int     `json:"total_clients"`
	TotalLeads            int     `json:"total_leads"`
	ConvertedLeads        int     `json:"converted_leads"`
	ConversionRate        float64 `json:"conversion_rate"`
	TotalRevenue          float64 `json:"total_revenue"`
	InstallationRevenue   float64 `json:"installation_revenue"`
	ManufacturingRevenue  float64 `json:"manufacturing_revenue"`
	AttendanceRate        float64 `json:"attendance_rate"`
	TodayAttendance       int     `json:"today_attendance"`
}

type DailyReport struct {
	Date       string `json:"date"`
	Attendance struct {
		Present        int `json:"present"`
		Absent         int `json:"absent"`
		TotalEmployees int `json:"total_employees"`
	} `json:"attendance"`
	Projects struct {
		Active int `json:"active"`
		Total  int `json:"total"`
	} `json:"projects"`
	Leads struct {
		New   int `json:"new"`
		Total int `json:"total"`
	} `json:"leads"`
}

// Report is the envelope returned by CustomReport.
type Report struct {
	ReportType     string            `json:"report_type"`
	GeneratedAt    time.Time         `json:"generated_at"`
	Data           interface{}       `json:"data"`
	FiltersApplied map[string]string `json:"filters_applied"`
}
