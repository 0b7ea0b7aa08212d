// Package service contains the business rules of the recipe API.
//
// Handler (HTTP) → Service (validation, ownership, orchestration) → Repository (SQL)
//
// Services take and return model types and plain values, never HTTP types,
// so the CLI calls the same code as the HTTP handlers. Errors meant for the
// client are *apperror.AppError values; everything else is wrapped and
// reported as an internal error.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"
	"unicode/utf8"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/auth"
	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/repository"
)

const (
	MinPasswordLength = 5
	MaxEmailLength    = 255
	MaxNameLength     = 255
)

// AuthService handles registration, token issuance and the caller's profile.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
	now       func() time.Time
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
		now:       time.Now,
	}
}

// ProfileUpdate lists the profile fields a user may change. Nil fields are
// left as they are.
type ProfileUpdate struct {
	Name     *string
	Password *string
}

// Register creates an active, unprivileged account.
//
// The email is normalized first (domain lower-cased), so "Bob@EXAMPLE.com"
// and "Bob@example.com" are the same account. A taken email is reported as a
// field error on "email" and leaves the existing account untouched.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*model.User, error) {
	return s.createUser(ctx, email, password, name, false)
}

// CreateSuperuser creates an account with the staff and superuser flags set.
// Used by the createsuperuser CLI command.
func (s *AuthService) CreateSuperuser(ctx context.Context, email, password, name string) (*model.User, error) {
	return s.createUser(ctx, email, password, name, true)
}

func (s *AuthService) createUser(ctx context.Context, email, password, name string, superuser bool) (*model.User, error) {
	email = model.NormalizeEmail(email)

	fields := fieldErrors{}
	checkEmail(fields, email)
	checkPassword(fields, password)
	name = fields.checkText("name", name, MaxNameLength)
	if err := fields.err(); err != nil {
		return nil, err
	}

	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, apperror.ValidationFailed("email", msgEmailTaken)
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: checking email: %w", err)
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		IsActive:     true,
		IsStaff:      superuser,
		IsSuperuser:  superuser,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		// Lost a race with a concurrent registration.
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.ValidationFailed("email", msgEmailTaken)
		}
		s.logger.Error("failed to create user", slog.String("email", email), slog.String("error", err.Error()))
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.Int64("userID", user.ID),
		slog.Bool("superuser", superuser),
	)
	return user, nil
}

// IssueToken authenticates email + password and returns a bearer token.
//
// Every failure (unknown email, wrong or blank password, inactive account)
// returns the same non-field validation error so the response does not
// reveal which factor was wrong.
func (s *AuthService) IssueToken(ctx context.Context, email, password string) (string, error) {
	badLogin := apperror.ValidationFailed(NonFieldErrors, msgBadLogin)

	if password == "" {
		return "", badLogin
	}

	user, err := s.users.GetUserByEmail(ctx, model.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", badLogin
		}
		return "", fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return "", badLogin
		}
		return "", fmt.Errorf("service/auth: verifying password: %w", err)
	}
	if !user.IsActive {
		return "", badLogin
	}

	now := s.now().UTC()
	user.LastLogin = &now
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return "", fmt.Errorf("service/auth: recording login for user %d: %w", user.ID, err)
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return "", fmt.Errorf("service/auth: generating token for user %d: %w", user.ID, err)
	}

	s.logger.Info("token issued", slog.Int64("userID", user.ID))
	return token, nil
}

// GetProfile returns the caller's own account.
func (s *AuthService) GetProfile(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: fetching user %d: %w", userID, err)
	}
	return user, nil
}

// UpdateProfile changes the caller's name and/or password. A new password
// goes through the same length check and hashing as registration.
func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, upd ProfileUpdate) (*model.User, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	fields := fieldErrors{}
	if upd.Name != nil {
		user.Name = fields.checkText("name", *upd.Name, MaxNameLength)
	}
	if upd.Password != nil {
		checkPassword(fields, *upd.Password)
	}
	if err := fields.err(); err != nil {
		return nil, err
	}

	if upd.Password != nil {
		hash, err := s.passwords.Hash(*upd.Password)
		if err != nil {
			return nil, fmt.Errorf("service/auth: hashing password: %w", err)
		}
		user.PasswordHash = hash
	}

	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: updating user %d: %w", userID, err)
	}

	s.logger.Info("profile updated",
		slog.Int64("userID", userID),
		slog.Bool("passwordChanged", upd.Password != nil),
	)
	return user, nil
}

func checkEmail(fields fieldErrors, email string) {
	switch {
	case email == "":
		fields.add("email", msgBlank)
	case utf8.RuneCountInString(email) > MaxEmailLength:
		fields.add("email", msgMaxLength(MaxEmailLength))
	default:
		if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
			fields.add("email", msgInvalidEmail)
		}
	}
}

func checkPassword(fields fieldErrors, password string) {
	switch {
	case password == "":
		fields.add("password", msgBlank)
	case utf8.RuneCountInString(password) < MinPasswordLength:
		fields.add("password", msgMinLength(MinPasswordLength))
	case len(password) > auth.MaxPasswordBytes:
		fields.add("password", msgMaxLength(auth.MaxPasswordBytes))
	}
}
