package entity

import "time"

// User roles. Admin manages rules and users, Manager/Finance/Director
// appear as approvers, Employee submits expenses.
const (
	RoleAdmin    = "Admin"
	RoleManager  = "Manager"
	RoleFinance  = "Finance"
	RoleDirector = "Director"
	RoleEmployee = "Employee"
)

// User is a member of a company. ManagerID forms the org hierarchy used
// to resolve "submitter's manager" approval steps.
type User struct {
	ID           string    `json:"id"`
	CompanyID    string    `json:"company_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	ManagerID    *string   `json:"manager_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
