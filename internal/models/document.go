package models

// Document is the whole-dataset layout used for export, import, remote
// snapshots and backups.
type Document struct {
	Users        []*User          `json:"users"`
	Clients      []*Client        `json:"clients"`
	Projects     []*Project       `json:"projects"`
	Employees    []UserProfile    `json:"employees"`
	Attendance   []*Attendance    `json:"attendance"`
	Leads        []*Lead          `json:"leads"`
	Tasks        []*Task          `json:"tasks"`
	DailyOTP     string           `json:"daily_otp"`
	DailyOTPDate string           `json:"daily_otp_date"`
	Analytics    DocumentCounters `json:"analytics"`
}

type DocumentCounters struct {
	InstallationRevenue  float64 `json:"installation_revenue"`
	ManufacturingRevenue float64 `json:"manufacturing_revenue"`
	TotalProjects        int     `json:"total_projects"`
	ActiveEmployees      int     `json:"active_employees"`
}
