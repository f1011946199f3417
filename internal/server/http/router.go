// Package httpserver exposes the account API over HTTP using gin.
package httpserver

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/keygate/internal/limiter"
	"github.com/and161185/keygate/internal/service"
)

// Deps collects everything the router needs.
type Deps struct {
	Accounts   service.AccountService
	Authorizer service.Authorizer
	Limiter    limiter.Limiter // nil disables limiting
	DB         Pinger
	Metrics    *Metrics // nil disables instrumentation and /metrics
	Log        *zap.Logger
}

// NewRouter builds the gin engine with all routes and middleware.
func NewRouter(d Deps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	lim := d.Limiter
	if lim == nil {
		lim = limiter.Nop{}
	}
	h := NewHandler(d.Accounts, d.DB, log)

	r := gin.New()
	r.Use(RequestID(), d.Metrics.Handler(), AccessLog(log), Recover(log), CORS())

	r.GET("/healthz", h.Healthz)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Exposition()))
	}

	acct := r.Group("/", RateLimit(lim, limiter.BucketAccount, ByClientIP, d.Metrics, log))
	acct.POST("/register", h.Register)
	acct.POST("/login", h.Login)
	acct.POST("/verify_email", h.VerifyEmail)
	acct.POST("/resend_verification_code", h.ResendCode)
	acct.POST("/change_apikey", h.ChangeAPIKey)
	acct.POST("/change_password", h.ChangePassword)

	data := r.Group("/",
		RateLimit(lim, limiter.BucketData, ByAPIKey, d.Metrics, log),
		RequireAPIKey(d.Authorizer, log),
	)
	data.GET("/check_apikey", h.CheckAPIKey)

	return r
}
