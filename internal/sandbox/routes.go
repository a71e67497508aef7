package sandbox

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"investdesk/internal/models"
)

const contextAccountKey = "account"

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	r.Use(s.overrideMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "investdesk-sandbox"})
	})

	r.GET("/simple/price", s.simplePrice)
	r.GET("/ws/trader-signals", s.push.serve(streamSignals))
	r.GET("/ws/binance-trades", s.push.serve(streamTrades))

	auth := r.Group("/api/auth")
	{
		auth.POST("/login", s.login)
		auth.POST("/2fa/validate", s.validate2FA)
		auth.POST("/register", s.register)
		auth.POST("/verify-email", s.verifyEmail)
		auth.POST("/resend-verification", s.resendVerification)
		auth.POST("/forgot-password", s.forgotPassword)
		auth.GET("/reset-password/validate", s.validateResetToken)
		auth.POST("/reset-password", s.resetPassword)
		auth.POST("/admin/login-as-user", s.requireAuth(), s.requireAdmin(), s.loginAsUser)
	}

	api := r.Group("/api", s.requireAuth())
	{
		api.GET("/trader-signals/recent", s.recentSignals)

		api.GET("/user/wallet", s.wallet)
		api.GET("/user/profile", s.profile)
		api.PUT("/user/profile", s.updateProfile)
		api.GET("/user/activity", s.activity)
		api.GET("/user/crypto-addresses", s.cryptoAddresses)
		api.GET("/user/all", s.requireAdmin(), s.listUsers)
		api.PUT("/user/:id", s.requireAdmin(), s.updateUser)
		api.DELETE("/user/:id", s.requireAdmin(), s.deleteUser)

		api.POST("/transaction/deposit", s.deposit)
		api.POST("/transaction/withdraw", s.withdraw)
		api.POST("/transaction/admin/deposit", s.requireAdmin(), s.adminCredit)
		api.POST("/transaction/admin/deduct", s.requireAdmin(), s.adminDeduct)
		api.DELETE("/transaction/deposits/clear", s.requireAdmin(), s.clearDeposits)

		api.GET("/demo/account", s.demoAccount)
		api.POST("/demo/trade", s.demoTrade)
		api.POST("/demo/reset", s.demoReset)

		admin := api.Group("/admin", s.requireAdmin())
		admin.GET("/deposits", s.listTransfers("deposit"))
		admin.GET("/withdrawals", s.listTransfers("withdrawal"))
		admin.POST("/:kind/:action/:id", s.reviewTransfer)
		admin.GET("/crypto-addresses", s.cryptoAddresses)
		admin.POST("/crypto-addresses", s.updateCryptoAddresses)
	}

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Str("request_id", c.GetHeader("X-Request-ID")).
			Dur("duration", time.Since(start)).
			Msg("sandbox request")
	}
}

func (s *Server) overrideMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.overridesMu.RLock()
		h, ok := s.overrides[c.Request.Method+" "+c.Request.URL.Path]
		s.overridesMu.RUnlock()
		if ok {
			h(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

// requireAuth resolves the bearer token to an account.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "No token, authorization denied"})
			return
		}

		s.mu.Lock()
		id, ok := s.sessions[token]
		var acct *Account
		if ok {
			acct = s.accounts[id]
		}
		s.mu.Unlock()

		if acct == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Token is not valid"})
			return
		}
		c.Set(contextAccountKey, acct.ID)
		c.Next()
	}
}

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		acct := s.accounts[c.MustGet(contextAccountKey).(models.ID)]
		s.mu.Unlock()
		if acct == nil || !acct.Role.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Admin access required"})
			return
		}
		c.Next()
	}
}

// current returns the caller's account. s.mu must be held.
func (s *Server) current(c *gin.Context) *Account {
	return s.accounts[c.MustGet(contextAccountKey).(models.ID)]
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"message": msg})
}
