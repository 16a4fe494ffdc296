// Package auth provides operator authentication and JWT sessions.
package auth

import (
	"crypto/subtle"
	"errors"
)

// ErrInvalidCredentials is returned on a failed login.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Role determines what an operator may do. Admins manage devices and
// issue commands; viewers only read the dashboard.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// User is an authenticated operator.
type User struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// IsAdmin reports whether the user may mutate devices and send commands.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

type account struct {
	password string
	role     Role
}

// Accounts is the static operator list, loaded from configuration.
// An account with an empty password is disabled.
type Accounts struct {
	users map[string]account
}

// NewAccounts builds the operator list from the configured passwords.
func NewAccounts(adminPassword, viewerPassword string) *Accounts {
	users := make(map[string]account)
	if adminPassword != "" {
		users["admin"] = account{password: adminPassword, role: RoleAdmin}
	}
	if viewerPassword != "" {
		users["viewer"] = account{password: viewerPassword, role: RoleViewer}
	}
	return &Accounts{users: users}
}

// Authenticate checks credentials and returns the matching user.
func (a *Accounts) Authenticate(username, password string) (*User, error) {
	acct, ok := a.users[username]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(acct.password), []byte(password)) != 1 {
		return nil, ErrInvalidCredentials
	}
	return &User{Username: username, Role: acct.role}, nil
}
