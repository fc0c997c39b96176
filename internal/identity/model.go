package identity

import "time"

// Role decides what a user may do.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleManager  Role = "manager"
)

// User represents a registered wallet owner or a manager.
type User struct {
	ID           string
	Email        string
	Role         Role
	PINHash      []byte
	TokenVersion int
	CreatedAt    time.Time
}

// ActorID identifies the user in approval records.
func (u User) ActorID() string { return u.ID }

// CanApprove reports whether the user may resolve held transactions.
func (u User) CanApprove() bool { return u.Role == RoleManager }

// Credentials request structure.
type Credentials struct {
	Email string
	PIN   string
}
