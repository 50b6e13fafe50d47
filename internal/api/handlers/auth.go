package handlers

import (
	"errors"
	"net/http"

	"github.com/hugh/issueflow/internal/api/dto"
	"github.com/hugh/issueflow/internal/api/response"
	"github.com/hugh/issueflow/internal/api/validation"
	"github.com/hugh/issueflow/internal/apperr"
	"github.com/hugh/issueflow/internal/auth"
)

type AuthHandler struct {
	authService auth.Authenticator
}

func NewAuthHandler(authService auth.Authenticator) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func authError(err error) error {
	switch {
	case errors.Is(err, auth.ErrUserExists):
		return apperr.Conflict("A user with this email already exists")
	case errors.Is(err, auth.ErrInvalidCredentials):
		return apperr.Unauthorized("Invalid email or password")
	case errors.Is(err, auth.ErrInactiveUser):
		return apperr.Forbidden("Account is not active")
	case errors.Is(err, auth.ErrInvalidRefreshToken):
		return apperr.Unauthorized("Invalid or expired refresh token")
	case errors.Is(err, auth.ErrInvalidResetToken):
		return apperr.Validation("Invalid or expired reset token")
	case errors.Is(err, auth.ErrUserNotFound):
		return apperr.NotFound("User not found")
	}
	return apperr.Internal(err)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	resp, err := h.authService.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     validation.CleanName(req.Name),
	})
	if err != nil {
		response.Error(w, r, authError(err))
		return
	}

	response.Created(w, dto.AuthFromService(resp), "Registration successful")
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	resp, err := h.authService.Login(r.Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		response.Error(w, r, authError(err))
		return
	}

	response.OK(w, dto.AuthFromService(resp))
}

func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshTokenRequest
	if !decode(w, r, &req) {
		return
	}

	resp, err := h.authService.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		response.Error(w, r, authError(err))
		return
	}

	response.OK(w, dto.AuthFromService(resp))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req dto.LogoutRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.authService.Logout(r.Context(), user.ID, req.RefreshToken); err != nil {
		response.Error(w, r, authError(err))
		return
	}

	response.Message(w, "Logged out")
}

// RequestPasswordReset answers the same way whether or not the email belongs
// to an account.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req dto.RequestPasswordResetRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.authService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		response.Error(w, r, apperr.Internal(err))
		return
	}

	response.Message(w, "If an account exists for that email, a reset link has been sent")
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.authService.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		response.Error(w, r, authError(err))
		return
	}

	response.Message(w, "Password has been reset")
}

func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	response.OK(w, dto.UserFromModel(user))
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req dto.UpdateProfileRequest
	if !decode(w, r, &req) {
		return
	}

	updated, err := h.authService.UpdateProfile(r.Context(), user.ID, auth.UpdateProfileInput{
		Name:  validation.CleanNamePtr(req.Name),
		Email: req.Email,
	})
	if err != nil {
		response.Error(w, r, authError(err))
		return
	}

	response.OK(w, dto.UserFromModel(updated))
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req dto.ChangePasswordRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.authService.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		response.Error(w, r, authError(err))
		return
	}

	response.Message(w, "Password changed")
}
