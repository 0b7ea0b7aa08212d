package sqldb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/model"
)

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestUserCreate(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{Email: "cook@example.com", Name: "Cook", PasswordHash: "$2a$hash", IsActive: true}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	if user.ID == 0 {
		t.Error("CreateUser() did not set user.ID")
	}
	if user.CreatedAt.IsZero() {
		t.Error("CreateUser() did not set user.CreatedAt")
	}
}

func TestUserCreate_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	original := createTestUser(t, db, "dup@example.com")

	dup := &model.User{Email: "dup@example.com", Name: "Someone Else", PasswordHash: "other"}
	err := db.CreateUser(context.Background(), dup)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("CreateUser() error = %v, want ErrConflict", err)
	}

	// The first account is untouched.
	got, err := db.GetUserByID(context.Background(), original.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if got.Name != "Test" || got.PasswordHash != "hash" {
		t.Errorf("existing user changed: %+v", got)
	}
}

// =========================================================================
// GET TESTS
// =========================================================================

func TestGetUserByID(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "get@example.com")

	got, err := db.GetUserByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if got.Email != "get@example.com" {
		t.Errorf("Email = %q, want %q", got.Email, "get@example.com")
	}
	if !got.IsActive || got.IsStaff || got.IsSuperuser {
		t.Errorf("flags = active:%v staff:%v super:%v", got.IsActive, got.IsStaff, got.IsSuperuser)
	}
	if got.LastLogin != nil {
		t.Errorf("LastLogin = %v, want nil", got.LastLogin)
	}
}

func TestGetUserByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), 404)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}

func TestGetUserByEmail(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "Someone@example.com")

	got, err := db.GetUserByEmail(context.Background(), "Someone@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("ID = %d, want %d", got.ID, created.ID)
	}

	// Lookup is exact: normalization happens before the repository.
	if _, err := db.GetUserByEmail(context.Background(), "someone@example.com"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByEmail() with different local-part case error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestUpdateUser(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "update@example.com")

	login := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	user.Name = "Renamed"
	user.PasswordHash = "new-hash"
	user.IsStaff = true
	user.LastLogin = &login

	if err := db.UpdateUser(context.Background(), user); err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}

	got, err := db.GetUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if got.Name != "Renamed" || got.PasswordHash != "new-hash" || !got.IsStaff {
		t.Errorf("update not persisted: %+v", got)
	}
	if got.LastLogin == nil || !got.LastLogin.Equal(login) {
		t.Errorf("LastLogin = %v, want %v", got.LastLogin, login)
	}
}

func TestUpdateUser_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.UpdateUser(context.Background(), &model.User{ID: 999, Name: "Ghost"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateUser() error = %v, want ErrNotFound", err)
	}
}
