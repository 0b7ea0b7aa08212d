// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// User represents a registered account.
//
// The email is the login identifier. PasswordHash holds the bcrypt output and
// is never serialized.
type User struct {
	ID           int64      `json:"id"          db:"id"`
	Email        string     `json:"email"       db:"email"`
	Name         string     `json:"name"        db:"name"`
	PasswordHash string     `json:"-"           db:"password"`
	IsActive     bool       `json:"isActive"    db:"is_active"`
	IsStaff      bool       `json:"isStaff"     db:"is_staff"`
	IsSuperuser  bool       `json:"isSuperuser" db:"is_superuser"`
	LastLogin    *time.Time `json:"lastLogin"   db:"last_login"` // nil until the first token is issued
	CreatedAt    time.Time  `json:"createdAt"   db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt"   db:"updated_at"`
}

// NormalizeEmail trims surrounding whitespace and lower-cases the domain part.
//
// The local part (before the @) is left untouched because mail servers are
// allowed to treat it case-sensitively:
//
//	"Test2@EXAMPLE.com" → "Test2@example.com"
//
// Addresses without an @ are returned trimmed but otherwise unchanged; the
// validator rejects them separately.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}
