package authapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"paylink-server-go/internal/domain/account"
	"paylink-server-go/internal/domain/auth"
	platformerrors "paylink-server-go/internal/platform/errors"
	"paylink-server-go/internal/platform/logging"
	httptransport "paylink-server-go/internal/transport/http"
)

// Service exposes authentication and account endpoints.
type Service struct {
	accounts *account.Service
	auth     *auth.Manager
	logger   *logging.Logger
}

func NewService(
	accounts *account.Service,
	authManager *auth.Manager,
	logger *logging.Logger,
) (*Service, error) {
	if accounts == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "authapi.new", "account service is required")
	}
	if authManager == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "authapi.new", "auth manager is required")
	}
	if logger == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "authapi.new", "logger is required")
	}

	return &Service{
		accounts: accounts,
		auth:     authManager,
		logger:   logger,
	}, nil
}

// Register wires the auth routes. The token-lifecycle endpoints live at
// the root and keep their historical wire shapes; account endpoints go
// behind the secured group.
func (s *Service) Register(ctx context.Context, router *httptransport.Router) error {
	engine := router.Engine

	engine.POST("/authenticate", s.handleAuthenticate)
	engine.POST("/token", s.handleToken)
	engine.POST("/validate-token", s.handleValidateToken)
	engine.POST("/signup", s.handleSignup)
	engine.POST("/logout", s.handleLogout)

	if router.Secured != nil {
		router.Secured.GET("/profile", s.handleProfile)
		router.Secured.PUT("/profile/bank", s.handleBankDetails)
	}

	s.logger.InfoTag("HTTP", "auth routes registered")
	return nil
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type bankDetailsRequest struct {
	AccountNumber string `json:"accountNumber"`
	RoutingNumber string `json:"routingNumber"`
}

// handleAuthenticate exchanges a credential pair for an access/refresh
// token pair. Wrong credentials and unknown users are the same 401.
func (s *Service) handleAuthenticate(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid username or password"})
		return
	}

	pair, err := s.auth.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if !platformerrors.IsKind(err, platformerrors.KindUnauthenticated) {
			s.logger.ErrorTag("HTTP", "authenticate failed: %v", err)
		}
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid username or password"})
		return
	}

	c.JSON(http.StatusOK, pair)
}

// handleToken exchanges a registered refresh token for a fresh access
// token. Every rejection is the same 403.
func (s *Service) handleToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"message": "refresh token rejected"})
		return
	}

	accessToken, err := s.auth.Refresh(c.Request.Context(), req.Token)
	if err != nil {
		if !platformerrors.IsKind(err, platformerrors.KindForbidden) {
			s.logger.ErrorTag("HTTP", "refresh failed: %v", err)
		}
		c.JSON(http.StatusForbidden, gin.H{"message": "refresh token rejected"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"accessToken": accessToken})
}

// handleValidateToken checks the bearer access token and echoes the
// identity it carries. Missing token is 401; invalid or expired is 403.
func (s *Service) handleValidateToken(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "authorization token required"})
		return
	}

	username, err := s.auth.Validate(token)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"message": "invalid or expired token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "token is valid",
		"user":    username,
	})
}

func (s *Service) handleSignup(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "username and password are required", nil)
		return
	}

	err := s.accounts.Signup(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		status := httptransport.StatusForError(err)
		if status >= http.StatusInternalServerError {
			s.logger.ErrorTag("HTTP", "signup failed: %v", err)
			httptransport.RespondError(c, status, "signup failed", nil)
			return
		}
		httptransport.RespondError(c, status, errorMessage(err), nil)
		return
	}

	httptransport.RespondSuccess(c, http.StatusCreated, gin.H{"username": req.Username}, "account created")
}

// handleLogout revokes the refresh token so it can no longer be
// exchanged. Revoking an unknown token still succeeds.
func (s *Service) handleLogout(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		httptransport.RespondError(c, http.StatusBadRequest, "refresh token required", nil)
		return
	}

	if err := s.auth.Revoke(c.Request.Context(), req.Token); err != nil {
		s.logger.ErrorTag("HTTP", "logout failed: %v", err)
		httptransport.RespondError(c, httptransport.StatusForError(err), "logout failed", nil)
		return
	}

	httptransport.RespondSuccess(c, http.StatusOK, nil, "logged out")
}

func (s *Service) handleProfile(c *gin.Context) {
	username := httptransport.Identity(c)

	profile, err := s.accounts.Profile(c.Request.Context(), username)
	if err != nil {
		status := httptransport.StatusForError(err)
		if status >= http.StatusInternalServerError {
			s.logger.ErrorTag("HTTP", "profile lookup failed for %s: %v", username, err)
			httptransport.RespondError(c, status, "failed to load profile", nil)
			return
		}
		httptransport.RespondError(c, status, errorMessage(err), nil)
		return
	}

	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"username":     profile.Username,
		"accountLast4": profile.AccountLast4,
		"routingLast4": profile.RoutingLast4,
		"paymentLink":  "/pay/" + profile.Username,
	}, "")
}

func (s *Service) handleBankDetails(c *gin.Context) {
	username := httptransport.Identity(c)

	var req bankDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "account and routing numbers are required", nil)
		return
	}

	err := s.accounts.SetBankDetails(c.Request.Context(), username, req.AccountNumber, req.RoutingNumber)
	if err != nil {
		status := httptransport.StatusForError(err)
		if status >= http.StatusInternalServerError {
			s.logger.ErrorTag("HTTP", "bank details update failed for %s: %v", username, err)
			httptransport.RespondError(c, status, "failed to update bank details", nil)
			return
		}
		httptransport.RespondError(c, status, errorMessage(err), nil)
		return
	}

	httptransport.RespondSuccess(c, http.StatusOK, nil, "bank details saved")
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return ""
	}
	return header[len(prefix):]
}

func errorMessage(err error) string {
	var typed *platformerrors.Error
	if errors.As(err, &typed) {
		return typed.Message
	}
	return "request failed"
}
