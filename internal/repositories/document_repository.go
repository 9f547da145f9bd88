package repositories

import (
	"context"
	"time"

	"erp-backend/internal/models"
	"erp-backend/internal/store"
)

// DocumentRepository converts the whole dataset to and from models.Document.
type DocumentRepository struct {
	repos *Repositories
}

func NewDocumentRepository(repos *Repositories) *DocumentRepository {
	return &DocumentRepository{repos: repos}
}

// Export reads every collection in one consistent snapshot.
func (r *DocumentRepository) Export(ctx context.Context) (*models.Document, error) {
	doc := &models.Document{}
	err := r.repos.Store.View(ctx, func(tx *store.Tx) error {
		var err error
		if doc.Users, err = r.repos.Users.col.List(tx, nil); err != nil {
			return err
		}
		if doc.Clients, err = r.repos.Clients.col.List(tx, nil); err != nil {
			return err
		}
		if doc.Projects, err = r.repos.Projects.col.List(tx, nil); err != nil {
			return err
		}
		if doc.Leads, err = r.repos.Leads.col.List(tx, nil); err != nil {
			return err
		}
		if doc.Attendance, err = r.repos.Attendance.col.List(tx, nil); err != nil {
			return err
		}
		if doc.Tasks, err = r.repos.Tasks.col.List(tx, nil); err != nil {
			return err
		}
		var otp models.DailyOTP
		if _, err := tx.GetJSON(dailyOTPKey, &otp); err != nil {
			return err
		}
		doc.DailyOTP = otp.Code
		doc.DailyOTPDate = otp.Date
		return nil
	})
	if err != nil {
		return nil, err
	}

	doc.Employees = []models.UserProfile{}
	for _, u := range doc.Users {
		if u.Role == models.RoleEmployee && u.IsActive() {
			doc.Employees = append(doc.Employees, u.Profile())
			doc.Analytics.ActiveEmployees++
		}
	}
	for _, p := range doc.Projects {
		if p.IsDeleted() || p.Status == models.ProjectDeleted {
			continue
		}
		doc.Analytics.TotalProjects++
		switch p.Type {
		case models.BusinessInstallation:
			doc.Analytics.InstallationRevenue += p.Budget
		case models.BusinessManufacturing:
			doc.Analytics.ManufacturingRevenue += p.Budget
		}
	}
	return doc, nil
}

// Import replaces every collection with the document's contents in a single
// transaction. Derived sections (employees, analytics) are ignored.
func (r *DocumentRepository) Import(ctx context.Context, doc *models.Document) error {
	now := r.repos.Users.now()
	return r.repos.Store.Update(ctx, func(tx *store.Tx) error {
		if err := importInto(tx, r.repos.Users.col, doc.Users, now); err != nil {
			return err
		}
		if err := importInto(tx, r.repos.Clients.col, doc.Clients, now); err != nil {
			return err
		}
		if err := importInto(tx, r.repos.Projects.col, doc.Projects, now); err != nil {
			return err
		}
		if err := importInto(tx, r.repos.Leads.col, doc.Leads, now); err != nil {
			return err
		}
		if err := importInto(tx, r.repos.Attendance.col, doc.Attendance, now); err != nil {
			return err
		}
		if err := importInto(tx, r.repos.Tasks.col, doc.Tasks, now); err != nil {
			return err
		}
		if doc.DailyOTP == "" {
			return tx.Delete(dailyOTPKey)
		}
		return tx.PutJSON(dailyOTPKey, models.DailyOTP{Code: doc.DailyOTP, Date: doc.DailyOTPDate})
	})
}

type importable[T any] interface {
	*T
	store.Record
}

func importInto[T any, P importable[T]](tx *store.Tx, col *store.Collection[T, P], recs []P, now time.Time) error {
	if err := col.Clear(tx); err != nil {
		return err
	}
	for _, rec := range recs {
		if rec == nil || rec.RecordID() == "" {
			continue
		}
		meta := rec.Metadata()
		// Re-sequence in document order so later inserts sort after imports.
		seq, err := tx.Next("order:" + col.Name())
		if err != nil {
			return err
		}
		meta.Seq = seq
		if meta.Version == 0 {
			meta.Version = 1
		}
		if meta.CreatedAt.IsZero() {
			meta.CreatedAt = now
		}
		if err := col.Put(tx, rec); err != nil {
			return err
		}
	}
	return nil
}
