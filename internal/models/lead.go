package models

import "time"

const (
	LeadNew       = "new"
	LeadContacted = "contacted"
	LeadConverted = "converted"
	LeadDeleted   = "deleted"
)

type Lead struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	Phone              string     `json:"phone"`
	Company            string     `json:"company"`
	BusinessType       string     `json:"business_type"`
	Source             string     `json:"source"`
	Priority           string     `json:"priority,omitempty"`
	Status             string     `json:"status"`
	AssignedTo         string     `json:"assigned_to"` // empty when unassigned
	Notes              string     `json:"notes"`
	CreatedBy          string     `json:"created_by,omitempty"`
	ConvertedClientID  string     `json:"converted_client_id,omitempty"`
	ConvertedProjectID string     `json:"converted_project_id,omitempty"`
	ConvertedAt        *time.Time `json:"converted_at,omitempty"`
	Meta
}

func (l *Lead) RecordID() string { return l.ID }

type CreateLeadRequest struct {
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"omitempty,email"`
	Phone        string `json:"phone"`
	Company      string `json:"company"`
	BusinessType string `json:"business_type" validate:"required,oneof=installation manufacturing both"`
	Source       string `json:"source"`
	Priority     string `json:"priority" validate:"omitempty,oneof=low medium high"`
	AssignedTo   string `json:"assigned_to"`
	Notes        string `json:"notes"`
}

type UpdateLeadRequest struct {
	Name         *string `json:"name,omitempty"`
	Email        *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone        *string `json:"phone,omitempty"`
	Company      *string `json:"company,omitempty"`
	BusinessType *string `json:"business_type,omitempty" validate:"omitempty,oneof=installation manufacturing both"`
	Source       *string `json:"source,omitempty"`
	Priority     *string `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	Status       *string `json:"status,omitempty" validate:"omitempty,oneof=new contacted"`
	AssignedTo   *string `json:"assigned_to,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

// ConvertLeadRequest fills the client and project spawned by a conversion.
// Blank client fields fall back to the lead's own contact data.
type ConvertLeadRequest struct {
	ClientName  string  `json:"client_name"`
	Company     string  `json:"company"`
	ProjectName string  `json:"project_name" validate:"required"`
	ProjectType string  `json:"project_type" validate:"omitempty,oneof=installation manufacturing"`
	Description string  `json:"description"`
	StartDate   string  `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate     string  `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Budget      float64 `json:"budget" validate:"gte=0"`
}

type LeadConversion struct {
	Lead    *Lead    `json:"lead"`
	Client  *Client  `json:"client"`
	Project *Project `json:"project"`
}
