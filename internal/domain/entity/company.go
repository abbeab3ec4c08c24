package entity

import "time"

// Company is a tenant. Every rule, user and expense belongs to exactly one company.
type Company struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	DefaultCurrency string    `json:"default_currency"` // ISO 4217, e.g. "USD"
	CreatedAt       time.Time `json:"created_at"`
}
