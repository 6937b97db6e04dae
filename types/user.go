package types

import "time"

// Roles a back-office account may hold.
const (
	RoleAdmin          = "admin"
	RoleCatalogManager = "catalog-manager"
)

// Account statuses. A user row is created inactive unless the form says otherwise.
const (
	StatusInactive = 0
	StatusActive   = 1
)

// User represents a back-office account.
// It contains identity, role, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Email is the user's email address and login name. Unique.
	Email string `json:"email" db:"email"`

	// FirstName is the user's first name.
	FirstName string `json:"firstname" db:"firstname"`

	// LastName is the user's last name.
	LastName string `json:"lastname" db:"lastname"`

	// Role indicates the user's authorization level within the
	// back office ("admin" or "catalog-manager").
	Role string `json:"role" db:"role"`

	// Status is 1 for an active account, 0 for an inactive one.
	Status int `json:"status" db:"status"`

	// PasswordHash stores the hashed representation of the user's password.
	// Plaintext passwords exist only while a request is being handled.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ValidRole reports whether role is one of the known back-office roles.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleCatalogManager
}

// ValidStatus reports whether the raw form value is a known account status.
func ValidStatus(status string) bool {
	return status == "0" || status == "1"
}
