package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/auth"
	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/service"
)

// UserHandler serves registration, token issuance and the caller's profile.
//
//   - HandleCreate  → POST /user/create
//   - HandleToken   → POST /user/token
//   - HandleMe      → GET /user/me
//   - HandleUpdate  → PATCH /user/me
type UserHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

func NewUserHandler(auth *service.AuthService, logger *slog.Logger) *UserHandler {
	return &UserHandler{auth: auth, logger: logger}
}

type createUserRequest struct {
	Email    *string `json:"email"    validate:"required"`
	Password *string `json:"password" validate:"required"`
	Name     *string `json:"name"     validate:"required"`
}

type tokenRequest struct {
	Email    *string `json:"email"    validate:"required"`
	Password *string `json:"password" validate:"required"`
}

type updateUserRequest struct {
	Name     *string `json:"name"`
	Password *string `json:"password"`
}

// userResponse is the public view of an account. The password is write-only.
type userResponse struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{Email: u.Email, Name: u.Name}
}

// HandleCreate registers a new account.
//
// HTTP: POST /user/create
// REQUEST BODY: {"email": "a@example.com", "password": "secret", "name": "A"}
// RESPONSE: 201 {"email": "a@example.com", "name": "A"}
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid registration request", slog.String("error", err.Error()))
		writeError(w, h.logger, err)
		return
	}

	user, err := h.auth.Register(r.Context(), *req.Email, *req.Password, *req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// HandleToken exchanges email + password for a bearer token.
//
// HTTP: POST /user/token
// RESPONSE: 200 {"token": "..."}; 400 on any credential problem.
func (h *UserHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	token, err := h.auth.IssueToken(r.Context(), *req.Email, *req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// HandleMe returns the authenticated caller's profile.
//
// HTTP: GET /user/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.auth.GetProfile(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// HandleUpdate partially updates the caller's name and/or password.
//
// HTTP: PATCH /user/me
// REQUEST BODY: {"name": "New"} or {"password": "newsecret"} or both.
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.auth.UpdateProfile(r.Context(), userID, service.ProfileUpdate{
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// callerID returns the authenticated user ID set by auth.RequireAuth.
// A missing ID means the route was mounted without the middleware.
func callerID(r *http.Request) (int64, error) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return 0, apperror.Unauthorized("Authentication credentials were not provided.")
	}
	return id, nil
}
