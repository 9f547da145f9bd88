package models

type Client struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Company      string `json:"company"`
	BusinessType string `json:"business_type"` // installation, manufacturing or both
	Address      string `json:"address,omitempty"`
	Notes        string `json:"notes,omitempty"`
	Status       string `json:"status"`
	CreatedBy    string `json:"created_by,omitempty"`
	Meta
}

func (c *Client) RecordID() string { return c.ID }

type CreateClientRequest struct {
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"omitempty,email"`
	Phone        string `json:"phone"`
	Company      string `json:"company"`
	BusinessType string `json:"business_type" validate:"required,oneof=installation manufacturing both"`
	Address      string `json:"address"`
	Notes        string `json:"notes"`
}

type UpdateClientRequest struct {
	Name         *string `json:"name,omitempty"`
	Email        *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone        *string `json:"phone,omitempty"`
	Company      *string `json:"company,omitempty"`
	BusinessType *string `json:"business_type,omitempty" validate:"omitempty,oneof=installation manufacturing both"`
	Address      *string `json:"address,omitempty"`
	Notes        *string `json:"notes,omitempty"`
	Status       *string `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
}
