package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/keygate/internal/errs"
)

// ErrorResponse is the failure body of every endpoint.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
}

// errorCase maps a sentinel error to an HTTP status code and response message.
type errorCase struct {
	err     error
	status  int
	message string
}

var (
	caseInvalidToken = errorCase{errs.ErrInvalidOrInactiveToken, http.StatusForbidden, "Invalid or inactive API key"}
	caseBadCreds     = errorCase{errs.ErrInvalidCredentials, http.StatusForbidden, "Invalid email or password"}
)

var (
	registerErrors = []errorCase{
		caseInvalidToken,
		{errs.ErrEmailExists, http.StatusForbidden, "Email already exists"},
		{errs.ErrKeyInUse, http.StatusForbidden, "API key already in use"},
	}
	loginErrors  = []errorCase{caseBadCreds}
	verifyErrors = []errorCase{
		{errs.ErrInvalidEmail, http.StatusForbidden, "Invalid email"},
		{errs.ErrInvalidCode, http.StatusForbidden, "Invalid verification code"},
		{errs.ErrCodeExpired, http.StatusForbidden, "Verification code expired"},
	}
	resendErrors = []errorCase{
		{errs.ErrNotFound, http.StatusNotFound, "Email not found"},
		caseBadCreds,
	}
	changeKeyErrors = []errorCase{
		{errs.ErrNotFound, http.StatusForbidden, "User not found"},
		{errs.ErrKeyInUse, http.StatusForbidden, "New API key already in use"},
	}
	changePasswordErrors = []errorCase{
		{errs.ErrNotFound, http.StatusForbidden, "Invalid email or password"},
		{errs.ErrInvalidOldPassword, http.StatusForbidden, "Invalid old password"},
	}
	authorizeErrors = []errorCase{
		caseInvalidToken,
		{errs.ErrEmailNotVerified, http.StatusForbidden, "Email is not verified"},
	}
)

// respondError resolves err against cases. Errors matching no case are logged
// and answered with a bare 500.
func respondError(c *gin.Context, log *zap.Logger, err error, cases []errorCase) {
	if errors.Is(err, errs.ErrInvalidInput) {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Detail: err.Error()})
		return
	}
	for _, cs := range cases {
		if errors.Is(err, cs.err) {
			c.AbortWithStatusJSON(cs.status, ErrorResponse{Detail: cs.message})
			return
		}
	}
	log.Error("request failed",
		zap.String("route", c.FullPath()),
		zap.String("request_id", RequestIDFromCtx(c.Request.Context())),
		zap.Error(err),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Detail: "internal error"})
}
