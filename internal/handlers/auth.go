package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/inkwell-app/inkwell/internal/auth"
	"github.com/inkwell-app/inkwell/internal/models"
	"github.com/inkwell-app/inkwell/internal/services"
	pkgauth "github.com/inkwell-app/inkwell/pkg/auth"
	pkghttp "github.com/inkwell-app/inkwell/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, identifier, password, ip string) (*services.AuthResponse, error)
	Register(ctx context.Context, input services.RegisterInput, ip string) (*services.RegisterResult, error)
	VerifySignup(ctx context.Context, email, code string) (*services.AuthResponse, error)
	ResendOTP(ctx context.Context, email, purpose, ip string) error
	ForgotPassword(ctx context.Context, email, ip string) error
	VerifyResetOTP(ctx context.Context, email, code string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
	SetPassword(ctx context.Context, userID, newPassword string) error
	VerifyPassword(ctx context.Context, userID, password string) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// LoginRequest accepts either an email address or a username as identifier.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	FirstName string `json:"first_name" validate:"required,min=2,max=50"`
	LastName  string `json:"last_name" validate:"required,min=2,max=50"`
	Username  string `json:"username" validate:"required,username"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	Age       int    `json:"age" validate:"required,gte=13,lte=120"`
}

// VerifySignupRequest represents the request body for signup verification
type VerifySignupRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

// ResendOTPRequest represents the request body for re-sending a code
type ResendOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	Type  string `json:"type" validate:"required,oneof=signup reset"`
}

// ForgotPasswordRequest represents the request body starting a reset
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// VerifyResetOTPRequest represents the request body for reset-code checks
type VerifyResetOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

// ResetPasswordRequest represents the final step of the reset flow
type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	OTP         string `json:"otp" validate:"required,len=6,numeric"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

// ChangePasswordRequest represents an authenticated password rotation
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

// SetPasswordRequest adds a local password to a federated account
type SetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

// VerifyPasswordRequest represents a current-password confirmation
type VerifyPasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

// MessageResponse is the minimal success envelope.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Email   string `json:"email,omitempty"`
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}
	if err := ValidateRequest(req); err != nil {
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			pkghttp.WriteValidationError(w, ve.Message, ve.Fields)
		} else {
			pkghttp.WriteBadRequest(w, err.Error())
		}
		return false
	}
	return true
}

// Login handles user login with an email or username identifier
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	req.Identifier = strings.TrimSpace(req.Identifier)
	ip := pkghttp.ExtractClientIP(r, h.ipConfig)

	resp, err := h.service.Login(r.Context(), req.Identifier, req.Password, ip)
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) writeLoginError(w http.ResponseWriter, err error) {
	var (
		vr     *models.VerificationRequiredError
		locked *models.AccountLockedError
		rl     *models.RateLimitError
	)

	switch {
	case errors.As(err, &vr):
		// 403 carries the email so the client can route straight to the
		// verification step.
		pkghttp.WriteJSON(w, http.StatusForbidden, MessageResponse{
			Success: false,
			Message: "Please verify your email address. A new verification code has been sent.",
			Email:   vr.Email,
		})
	case errors.As(err, &locked):
		pkghttp.WriteTooManyRequests(w, err.Error(), locked.Minutes()*60)
	case errors.As(err, &rl):
		pkghttp.WriteTooManyRequests(w, "Too many attempts. Please try again later.", rl.Seconds())
	case errors.Is(err, models.ErrNoSuchEmail),
		errors.Is(err, models.ErrNoSuchUsername),
		errors.Is(err, models.ErrInvalidCredentials),
		errors.Is(err, models.ErrNoLocalPassword):
		pkghttp.WriteError(w, http.StatusUnauthorized, err.Error())
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// Register handles account creation followed by email verification
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)

	result, err := h.service.Register(r.Context(), services.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		Age:       req.Age,
	}, ip)
	if err != nil {
		h.writeAuthFlowError(w, err)
		return
	}

	message := "Account created. Check your email for a verification code."
	if !result.Delivered {
		message = "Account created, but the verification email could not be sent. Use resend to try again."
	}

	pkghttp.WriteJSON(w, http.StatusCreated, MessageResponse{
		Success: true,
		Message: message,
		Email:   result.Email,
	})
}

// VerifySignup handles signup OTP verification and logs the user in
func (h *AuthHandler) VerifySignup(w http.ResponseWriter, r *http.Request) {
	var req VerifySignupRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.service.VerifySignup(r.Context(), normalizeEmail(req.Email), req.OTP)
	if err != nil {
		h.writeAuthFlowError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// ResendOTP re-sends a signup or reset code
func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req ResendOTPRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)

	if err := h.service.ResendOTP(r.Context(), normalizeEmail(req.Email), req.Type, ip); err != nil {
		h.writeAuthFlowError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "A new code has been sent to your email.",
	})
}

// ForgotPassword starts the password reset flow
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)

	if err := h.service.ForgotPassword(r.Context(), normalizeEmail(req.Email), ip); err != nil {
		h.writeAuthFlowError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "A password reset code has been sent to your email.",
	})
}

// VerifyResetOTP checks a reset code without consuming it
func (h *AuthHandler) VerifyResetOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyResetOTPRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.VerifyResetOTP(r.Context(), normalizeEmail(req.Email), req.OTP); err != nil {
		h.writeAuthFlowError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "Code verified. You can now set a new password.",
	})
}

// ResetPassword completes the password reset flow
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), normalizeEmail(req.Email), req.OTP, req.NewPassword); err != nil {
		h.writeAuthFlowError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "Password has been reset. You can now log in.",
	})
}

// ChangePassword rotates the authenticated user's password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized", false)
		return
	}

	var req ChangePasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		h.writePasswordError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "Password changed.",
	})
}

// SetPassword adds a local password to the authenticated federated account
func (h *AuthHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized", false)
		return
	}

	var req SetPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.SetPassword(r.Context(), claims.UserID, req.NewPassword); err != nil {
		h.writePasswordError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "Password set. You can now log in with it.",
	})
}

// VerifyPassword confirms the authenticated user's current password
func (h *AuthHandler) VerifyPassword(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized", false)
		return
	}

	var req VerifyPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.VerifyPassword(r.Context(), claims.UserID, req.Password); err != nil {
		h.writePasswordError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "Password verified.",
	})
}

// writeAuthFlowError maps unauthenticated-flow errors onto the contract.
func (h *AuthHandler) writeAuthFlowError(w http.ResponseWriter, err error) {
	var rl *models.RateLimitError

	switch {
	case errors.As(err, &rl):
		pkghttp.WriteTooManyRequests(w, "Too many requests. Please try again later.", rl.Seconds())
	case errors.Is(err, models.ErrEmailTakenUnverified):
		pkghttp.WriteConflict(w, "This email is registered but not verified. Log in to receive a new code.")
	case errors.Is(err, models.ErrEmailTaken), errors.Is(err, models.ErrUsernameTaken):
		pkghttp.WriteConflict(w, err.Error())
	case errors.Is(err, models.ErrNoSuchEmail):
		pkghttp.WriteNotFound(w, err.Error())
	case errors.Is(err, models.ErrOTPInvalid),
		errors.Is(err, models.ErrOTPExpired),
		errors.Is(err, models.ErrOTPExhausted),
		errors.Is(err, models.ErrEmailNotVerified),
		errors.Is(err, models.ErrSamePassword),
		errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, err.Error())
	case errors.Is(err, models.ErrEmailDelivery):
		pkghttp.WriteInternalError(w, "Could not send the email. Please try again.")
	case isPasswordPolicyError(err):
		pkghttp.WriteBadRequest(w, err.Error())
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// writePasswordError maps authenticated password-operation errors.
func (h *AuthHandler) writePasswordError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteError(w, http.StatusUnauthorized, "Current password is incorrect")
	case errors.Is(err, models.ErrNoLocalPassword),
		errors.Is(err, models.ErrHasLocalPassword),
		errors.Is(err, models.ErrSamePassword):
		pkghttp.WriteBadRequest(w, err.Error())
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Account not found")
	case isPasswordPolicyError(err):
		pkghttp.WriteBadRequest(w, err.Error())
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

func isPasswordPolicyError(err error) bool {
	var pe *pkgauth.PasswordPolicyError
	return errors.As(err, &pe)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
