package models

import "time"

// Meta is the bookkeeping every stored record carries.
type Meta struct {
	Seq       uint64     `json:"seq"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

func (m *Meta) Metadata() *Meta { return m }

// IsDeleted reports whether the record carries a tombstone.
func (m *Meta) IsDeleted() bool { return m.DeletedAt != nil }

// Touch stamps updated_at.
func (m *Meta) Touch(now time.Time) {
	m.UpdatedAt = &now
}

// Tombstone marks the record deleted.
func (m *Meta) Tombstone(now time.Time) {
	m.DeletedAt = &now
	m.UpdatedAt = &now
}

const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleEmployee = "employee"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusDeleted  = "deleted"
)

const (
	BusinessInstallation  = "installation"
	BusinessManufacturing = "manufacturing"
	BusinessBoth          = "both"
)
