// Package repositories holds the per-entity data access over the store.
//
// Every repository method opens its own transaction. Methods with a Tx
// suffix run inside a caller's transaction so services can combine several
// entities in one atomic commit.
package repositories

import (
	"strings"

	"erp-backend/internal/store"
	"erp-backend/internal/timeutil"
)

// Repositories bundles every repository over one store.
type Repositories struct {
	Store      *store.Store
	Users      *UserRepository
	Clients    *ClientRepository
	Projects   *ProjectRepository
	Leads      *LeadRepository
	Attendance *AttendanceRepository
	Tasks      *TaskRepository
	OTP        *OTPRepository
	Files      *FileRepository
	Tokens     *TokenRepository
	Documents  *DocumentRepository
}

func New(s *store.Store, clock timeutil.Clock) *Repositories {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	r := &Repositories{
		Store:      s,
		Users:      NewUserRepository(s, clock),
		Clients:    NewClientRepository(s, clock),
		Projects:   NewProjectRepository(s, clock),
		Leads:      NewLeadRepository(s, clock),
		Attendance: NewAttendanceRepository(s, clock),
		Tasks:      NewTaskRepository(s, clock),
		OTP:        NewOTPRepository(s),
		Files:      NewFileRepository(s, clock),
		Tokens:     NewTokenRepository(s, clock),
	}
	r.Documents = NewDocumentRepository(r)
	return r
}

func eqFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
