package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/docdirectory/internal/config"
	"github.com/geocoder89/docdirectory/internal/domain/user"
	"github.com/geocoder89/docdirectory/internal/http/middlewares"
	"github.com/geocoder89/docdirectory/internal/service"
	"github.com/gin-gonic/gin"
)

type Accounts interface {
	Register(ctx context.Context, in service.RegisterInput) (user.User, error)
	VerifyEmail(ctx context.Context, token string) (bool, error)
	Login(ctx context.Context, email, password string) (service.LoginResult, error)
	Logout(ctx context.Context, token string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
}

type AuthHandler struct {
	accounts   Accounts
	cookieName string
	accessTTL  time.Duration
	secure     bool
}

func NewAuthHandler(accounts Accounts, cfg config.Config) *AuthHandler {
	name := cfg.CookieName
	if name == "" {
		name = "token"
	}
	return &AuthHandler{
		accounts:   accounts,
		cookieName: name,
		accessTTL:  cfg.AccessTTL,
		secure:     cfg.IsProd(),
	}
}

const passwordLengthMessage = "Password must be between 6 and 72 characters."

type RegisterRequest struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	Phone     string `json:"phone"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Password string `json:"password"`
}

type userView struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Name      string `json:"name"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 10*time.Second)
	defer cancel()

	_, err := h.accounts.Register(cctx, service.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, user.ErrDuplicateEmail):
			RespondBadRequest(ctx, "User already exists", nil)
		case errors.Is(err, service.ErrInvalidPassword):
			RespondBadRequest(ctx, passwordLengthMessage, nil)
		case errors.Is(err, service.ErrMailDelivery):
			// the account exists; the user can ask for a new link later
			RespondInternal(ctx, "User registered but verification email could not be sent")
		default:
			RespondInternal(ctx, "Server error")
		}
		return
	}

	RespondMessage(ctx, http.StatusCreated, "User registered successfully. Please check your email to verify your account.", nil)
}

// VerifyEmail reads the token from ?token= for GET links and from the JSON body for POST.
func (h *AuthHandler) VerifyEmail(ctx *gin.Context) {
	token := ctx.Query("token")
	if token == "" && ctx.Request.Method == http.MethodPost {
		var body struct {
			Token string `json:"token"`
		}
		_ = ctx.ShouldBindJSON(&body)
		token = body.Token
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	already, err := h.accounts.VerifyEmail(cctx, token)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrVerifyTokenMissing):
			RespondBadRequest(ctx, "Verification token missing", nil)
		case errors.Is(err, service.ErrVerifyTokenExpired):
			RespondBadRequest(ctx, "Verification token expired", nil)
		case errors.Is(err, service.ErrVerifyTokenInvalid):
			RespondBadRequest(ctx, "Invalid verification token", nil)
		case errors.Is(err, user.ErrNotFound):
			RespondNotFound(ctx, "User not found")
		default:
			RespondInternal(ctx, "Server error")
		}
		return
	}

	if already {
		RespondMessage(ctx, http.StatusOK, "User already verified", nil)
		return
	}
	RespondMessage(ctx, http.StatusOK, "Email verified successfully", nil)
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	res, err := h.accounts.Login(cctx, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			RespondBadRequest(ctx, "Invalid email or password", nil)
		case errors.Is(err, service.ErrEmailNotVerified):
			RespondForbidden(ctx, "email_not_verified", "Please verify your email before logging in")
		default:
			RespondInternal(ctx, "Server error")
		}
		return
	}

	h.setTokenCookie(ctx, res.Token)

	u := res.User
	RespondMessage(ctx, http.StatusOK, "Login successful!", gin.H{
		"token": res.Token,
		"user": userView{
			ID:        u.ID,
			Email:     u.Email,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Name:      u.FullName(),
		},
	})
}

// Logout always clears the cookie; revocation is best effort.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	raw, err := ctx.Cookie(h.cookieName)
	if err != nil || raw == "" {
		raw = strings.TrimSpace(strings.TrimPrefix(ctx.GetHeader("Authorization"), "Bearer "))
	}

	if raw != "" {
		cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		_ = h.accounts.Logout(cctx, raw)
	}

	h.clearTokenCookie(ctx)
	RespondMessage(ctx, http.StatusOK, "Logged out successfully", nil)
}

func (h *AuthHandler) ForgotPassword(ctx *gin.Context) {
	var req ForgotPasswordRequest
	_ = ctx.ShouldBindJSON(&req)

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 10*time.Second)
	defer cancel()

	err := h.accounts.ForgotPassword(cctx, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailRequired):
			RespondBadRequest(ctx, "Email is required.", nil)
		case errors.Is(err, user.ErrNotFound):
			RespondNotFound(ctx, "No user found with that email.")
		default:
			RespondInternal(ctx, "Server error. Please try again later.")
		}
		return
	}

	RespondMessage(ctx, http.StatusOK, "Reset link sent to your email.", nil)
}

func (h *AuthHandler) ResetPassword(ctx *gin.Context) {
	var req ResetPasswordRequest
	_ = ctx.ShouldBindJSON(&req)

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	err := h.accounts.ResetPassword(cctx, ctx.Param("token"), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrResetInputMissing):
			RespondBadRequest(ctx, "Invalid request.", nil)
		case errors.Is(err, service.ErrInvalidPassword):
			RespondBadRequest(ctx, passwordLengthMessage, nil)
		case errors.Is(err, service.ErrInvalidOrExpiredToken):
			RespondBadRequest(ctx, "Invalid or expired token.", nil)
		default:
			RespondInternal(ctx, "Server error. Please try again later.")
		}
		return
	}

	RespondMessage(ctx, http.StatusOK, "Password has been reset successfully.", nil)
}

// Me returns the authenticated caller's id; the frontend uses it to check a session.
func (h *AuthHandler) Me(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthenticated", "Access denied. No token provided.")
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *AuthHandler) setTokenCookie(ctx *gin.Context, token string) {
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(
		h.cookieName,
		token,
		int(h.accessTTL.Seconds()),
		"/",
		"",
		h.secure,
		true, // HttpOnly.
	)
}

func (h *AuthHandler) clearTokenCookie(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(h.cookieName, "", -1, "/", "", h.secure, true)
}
