// Package models defines the server-side records: principals and refresh
// token ledger rows.
package models

import "time"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User is a principal known to the credential store.
type User struct {
	ID           string
	UserName     string
	Role         Role
	PasswordHash []byte
	CreatedAt    time.Time
}
