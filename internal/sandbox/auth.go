package sandbox

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"investdesk/internal/models"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Email and password are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.byEmail(req.Email)
	if acct == nil || bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
		return
	}
	if !acct.Verified {
		c.JSON(http.StatusForbidden, gin.H{"message": "Please verify your email before logging in", "requiresVerification": true})
		return
	}
	if !acct.Active {
		c.JSON(http.StatusForbidden, gin.H{"message": "Your account is inactive", "accountInactive": true})
		return
	}
	if !acct.Approved {
		c.JSON(http.StatusForbidden, gin.H{"message": "Your account is pending approval", "pendingApproval": true})
		return
	}
	if acct.TOTPSecret != "" {
		c.JSON(http.StatusOK, gin.H{"message": "2FA required"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": s.issue(acct), "user": acct.summary()})
}

func (s *Server) validate2FA(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Email and code are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.byEmail(req.Email)
	if acct == nil || acct.TOTPSecret == "" || !totp.Validate(req.Token, acct.TOTPSecret) {
		badRequest(c, "Invalid 2FA code")
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": s.issue(acct), "user": acct.summary()})
}

// issue creates a session token. s.mu must be held.
func (s *Server) issue(acct *Account) string {
	token := uuid.NewString()
	s.sessions[token] = acct.ID
	return token
}

func (s *Server) register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		badRequest(c, "Email and password are required")
		return
	}

	id, err := s.AddAccount(NewAccount{
		Email:      req.Email,
		Password:   req.Password,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Unverified: true,
	})
	if err != nil {
		badRequest(c, "User already exists")
		return
	}

	s.mu.Lock()
	acct := s.accounts[id]
	acct.Phone = req.Phone
	if req.Country != "" {
		acct.Country = req.Country
	}
	if req.Currency != "" {
		acct.Currency = req.Currency
		acct.Wallet.Currency = req.Currency
	}
	code := acct.VerificationCode
	s.mu.Unlock()

	s.mail(req.Email, "verification code", code)
	c.JSON(http.StatusCreated, gin.H{"message": "Registration successful. Please check your email for the verification code."})
}

func (s *Server) verifyEmail(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Email and code are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.byEmail(req.Email)
	if acct == nil || acct.Verified || acct.VerificationCode == "" || acct.VerificationCode != req.Code {
		badRequest(c, "Invalid verification code")
		return
	}
	acct.Verified = true
	acct.VerificationCode = ""
	c.JSON(http.StatusOK, gin.H{"message": "Email verified successfully"})
}

func (s *Server) resendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Email is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.byEmail(req.Email)
	if acct == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}
	if acct.Verified {
		badRequest(c, "Email already verified")
		return
	}
	acct.VerificationCode = newCode()
	s.mail(req.Email, "verification code", acct.VerificationCode)
	c.JSON(http.StatusOK, gin.H{"message": "Verification code sent"})
}

func (s *Server) forgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Email is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.byEmail(req.Email)
	if acct == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "No account with that email address exists"})
		return
	}
	for tok, id := range s.resets {
		if id == acct.ID {
			delete(s.resets, tok)
		}
	}
	token := uuid.NewString()
	s.resets[token] = acct.ID
	s.mail(req.Email, "reset token", token)
	c.JSON(http.StatusOK, gin.H{"message": "Password reset link sent"})
}

func (s *Server) validateResetToken(c *gin.Context) {
	s.mu.Lock()
	_, ok := s.resets[c.Query("token")]
	s.mu.Unlock()

	if !ok {
		badRequest(c, "Password reset token is invalid or has expired")
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

func (s *Server) resetPassword(c *gin.Context) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Password == "" {
		badRequest(c, "Token and password are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not update password"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.resets[req.Token]
	if !ok {
		badRequest(c, "Password reset token is invalid or has expired")
		return
	}
	delete(s.resets, req.Token)
	s.accounts[id].PasswordHash = hash
	c.JSON(http.StatusOK, gin.H{"message": "Password has been reset"})
}

func (s *Server) loginAsUser(c *gin.Context) {
	var req struct {
		UserID models.ID `json:"userId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		badRequest(c, "userId is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[req.UserID]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": s.issue(acct), "user": acct.summary()})
}

// newCode returns a random 6 digit verification code.
// mail stands in for outgoing email: the sandbox logs what would be sent.
func (s *Server) mail(to, what, value string) {
	s.logger.Info().Str("to", to).Str(strings.ReplaceAll(what, " ", "_"), value).Msg("Sandbox mail")
}

func newCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "000001"
	}
	return fmt.Sprintf("%06d", n.Int64())
}
