package httpserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/keygate/internal/service"
)

const (
	msgRegistered      = "User registered successfully. Please check your email for the verification code."
	msgLoggedIn        = "Successfully logged in"
	msgVerified        = "Email verified successfully"
	msgResent          = "Verification code resent"
	msgResendTooSoon   = "Not enough time has passed since the last verification code was sent. Please wait before requesting a new one."
	msgAlreadyVerified = "Email already verified"
	msgKeyChanged      = "API key changed successfully"
	msgPasswordChanged = "Password changed successfully"
)

// Pinger reports storage availability for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler wires the account workflow into gin handlers.
type Handler struct {
	accounts service.AccountService
	db       Pinger
	log      *zap.Logger
}

// NewHandler constructs the HTTP handlers. db may be nil, in which case /healthz always reports ok.
func NewHandler(accounts service.AccountService, db Pinger, log *zap.Logger) *Handler {
	return &Handler{accounts: accounts, db: db, log: log}
}

// bind decodes the JSON body into dst, answering 400 on failure.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Detail: "invalid request body"})
		return false
	}
	return true
}

func ok(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, MessageResponse{Success: true, Message: msg})
}

// Register creates an account bound to an activation token.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) {
		return
	}
	if err := h.accounts.Register(c.Request.Context(), req.Email, req.Password, req.APIKey); err != nil {
		respondError(c, h.log, err, registerErrors)
		return
	}
	ok(c, msgRegistered)
}

// Login checks the password and returns the bound api key.
func (h *Handler) Login(c *gin.Context) {
	var req credentialsRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.log, err, loginErrors)
		return
	}
	c.JSON(http.StatusOK, LoginResponse{
		Success:   true,
		Message:   msgLoggedIn,
		APIKey:    res.APIKey,
		Activated: res.Activated,
	})
}

// VerifyEmail consumes a verification code.
func (h *Handler) VerifyEmail(c *gin.Context) {
	var req verifyRequest
	if !bind(c, &req) {
		return
	}
	if err := h.accounts.VerifyEmail(c.Request.Context(), req.Email, req.Code); err != nil {
		respondError(c, h.log, err, verifyErrors)
		return
	}
	ok(c, msgVerified)
}

// ResendCode issues a fresh verification code. A throttled request is a 200 with success false.
func (h *Handler) ResendCode(c *gin.Context) {
	var req credentialsRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.accounts.ResendCode(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.log, err, resendErrors)
		return
	}
	switch {
	case res.AlreadyVerified:
		c.JSON(http.StatusOK, MessageResponse{Success: false, Message: msgAlreadyVerified})
	case !res.Sent:
		c.JSON(http.StatusOK, MessageResponse{Success: false, Message: msgResendTooSoon})
	default:
		ok(c, msgResent)
	}
}

// ChangeAPIKey rebinds an account to a new api key.
func (h *Handler) ChangeAPIKey(c *gin.Context) {
	var req changeKeyRequest
	if !bind(c, &req) {
		return
	}
	if err := h.accounts.ChangeAPIKey(c.Request.Context(), req.Email, req.NewAPIKey); err != nil {
		respondError(c, h.log, err, changeKeyErrors)
		return
	}
	ok(c, msgKeyChanged)
}

// ChangePassword replaces the password after checking the old one.
func (h *Handler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bind(c, &req) {
		return
	}
	err := h.accounts.ChangePassword(c.Request.Context(), req.Email, req.OldPassword, req.NewPassword)
	if err != nil {
		respondError(c, h.log, err, changePasswordErrors)
		return
	}
	ok(c, msgPasswordChanged)
}

// CheckAPIKey echoes the key admitted by RequireAPIKey.
func (h *Handler) CheckAPIKey(c *gin.Context) {
	key, _ := APIKeyFromCtx(c.Request.Context())
	c.JSON(http.StatusOK, KeyResponse{Success: true, APIKey: key})
}

// Healthz pings storage.
func (h *Handler) Healthz(c *gin.Context) {
	if h.db != nil {
		if err := h.db.Ping(c.Request.Context()); err != nil {
			h.log.Warn("healthz: storage ping failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
