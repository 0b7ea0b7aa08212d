package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

var userColumns = []string{
	"id", "email", "name", "password", "is_active", "is_staff", "is_superuser",
	"last_login", "created_at", "updated_at",
}

// CreateUser inserts a user and fills in ID and timestamps.
// A duplicate email returns apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	id, err := db.insertReturningID(ctx, db.sb.Insert("users").
		Columns("email", "name", "password", "is_active", "is_staff", "is_superuser", "created_at", "updated_at").
		Values(user.Email, user.Name, user.PasswordHash, user.IsActive, user.IsStaff, user.IsSuperuser, user.CreatedAt, user.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqldb: inserting user %q: %w", user.Email, err)
	}

	user.ID = id
	return nil
}

// GetUserByID retrieves a user by primary key.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := db.get(ctx, &u, db.sb.Select(userColumns...).From("users").Where(sq.Eq{"id": id}))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqldb: getting user %d: %w", id, err)
	}
	return &u, nil
}

// GetUserByEmail looks a user up by the normalized email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := db.get(ctx, &u, db.sb.Select(userColumns...).From("users").Where(sq.Eq{"email": email}))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqldb: getting user %q: %w", email, err)
	}
	return &u, nil
}

// UpdateUser saves every mutable column of user. Email is not updatable.
func (db *DB) UpdateUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()

	var lastLogin sql.NullTime
	if user.LastLogin != nil {
		lastLogin = sql.NullTime{Time: user.LastLogin.UTC(), Valid: true}
	}

	n, err := db.exec(ctx, db.sb.Update("users").
		Set("name", user.Name).
		Set("password", user.PasswordHash).
		Set("is_active", user.IsActive).
		Set("is_staff", user.IsStaff).
		Set("is_superuser", user.IsSuperuser).
		Set("last_login", lastLogin).
		Set("updated_at", user.UpdatedAt).
		Where(sq.Eq{"id": user.ID}),
	)
	if err != nil {
		return fmt.Errorf("sqldb: updating user %d: %w", user.ID, err)
	}
	if n == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}
