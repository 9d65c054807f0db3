package domain

import (
	"errors"
	"strings"
	"time"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleAdmin Role = "admin"
	RolePSR   Role = "psr"
)

// DefaultRole is assigned when registration does not name a valid role.
const DefaultRole = RolePSR

// ErrUnknownRole is returned by ParseRole for values outside the closed set.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole converts a raw value into a Role.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RolePSR:
		return RolePSR, nil
	default:
		return "", ErrUnknownRole
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePSR:
		return true
	default:
		return false
	}
}

// Account is the credential record of an administrator or field representative.
type Account struct {
	ID           string
	Email        *string
	Phone        *string
	FullName     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasIdentifier reports whether the account carries an email or a phone.
func (a *Account) HasIdentifier() bool {
	return (a.Email != nil && *a.Email != "") || (a.Phone != nil && *a.Phone != "")
}

// EmailValue returns the email or an empty string.
func (a *Account) EmailValue() string {
	if a.Email == nil {
		return ""
	}
	return *a.Email
}

// PhoneValue returns the phone or an empty string.
func (a *Account) PhoneValue() string {
	if a.Phone == nil {
		return ""
	}
	return *a.Phone
}
