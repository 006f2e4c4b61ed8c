package paymentapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"paylink-server-go/internal/domain/account"
	"paylink-server-go/internal/domain/payment"
	platformerrors "paylink-server-go/internal/platform/errors"
	"paylink-server-go/internal/platform/logging"
	httptransport "paylink-server-go/internal/transport/http"
)

// Service exposes the payment callback, the customer-facing pay link and
// the merchant payment dashboard endpoints.
type Service struct {
	payments *payment.Service
	accounts *account.Service
	logger   *logging.Logger
}

func NewService(
	payments *payment.Service,
	accounts *account.Service,
	logger *logging.Logger,
) (*Service, error) {
	if payments == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "paymentapi.new", "payment service is required")
	}
	if accounts == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "paymentapi.new", "account service is required")
	}
	if logger == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "paymentapi.new", "logger is required")
	}

	return &Service{
		payments: payments,
		accounts: accounts,
		logger:   logger,
	}, nil
}

// Register wires the payment routes. The processor callback and the
// customer pay link are unauthenticated by design; the payment list
// sits behind the secured group.
func (s *Service) Register(ctx context.Context, router *httptransport.Router) error {
	engine := router.Engine

	engine.POST("/payment-success", s.handlePaymentSuccess)
	engine.GET("/pay/:username", s.handleResolvePayLink)
	engine.POST("/pay/:username/charges", s.handleCreateCharge)

	if router.Secured != nil {
		router.Secured.GET("/payments", s.handleListPayments)
	}

	s.logger.InfoTag("HTTP", "payment routes registered")
	return nil
}

type paymentSuccessRequest struct {
	Username string  `json:"username"`
	Amount   float64 `json:"amount"`
	ChargeID string  `json:"chargeId"`
}

type createChargeRequest struct {
	Amount float64 `json:"amount"`
}

// handlePaymentSuccess is the processor callback. Any missing field is a
// 400; a storage failure is a 500 with a generic body, detail stays in
// the server log. Redelivery of an already-recorded charge is a 200.
func (s *Service) handlePaymentSuccess(c *gin.Context) {
	var req paymentSuccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "username, amount and chargeId are required"})
		return
	}

	err := s.payments.Record(c.Request.Context(), req.Username, req.Amount, req.ChargeID)
	if err != nil {
		if platformerrors.IsKind(err, platformerrors.KindBadRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "username, amount and chargeId are required"})
			return
		}
		s.logger.ErrorTag("HTTP", "payment callback failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to record payment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "payment recorded"})
}

// handleResolvePayLink resolves a customer-facing pay link to the
// merchant it belongs to.
func (s *Service) handleResolvePayLink(c *gin.Context) {
	username := c.Param("username")

	if _, err := s.accounts.Profile(c.Request.Context(), username); err != nil {
		status := httptransport.StatusForError(err)
		if status >= http.StatusInternalServerError {
			s.logger.ErrorTag("HTTP", "pay link resolution failed for %s: %v", username, err)
			httptransport.RespondError(c, status, "failed to resolve payment link", nil)
			return
		}
		httptransport.RespondError(c, http.StatusNotFound, "payment link not found", nil)
		return
	}

	httptransport.RespondSuccess(c, http.StatusOK, gin.H{"username": username}, "")
}

// handleCreateCharge creates a hosted processor charge payable to the
// link's merchant. The processor key never reaches the browser.
func (s *Service) handleCreateCharge(c *gin.Context) {
	username := c.Param("username")

	if _, err := s.accounts.Profile(c.Request.Context(), username); err != nil {
		if platformerrors.IsKind(err, platformerrors.KindNotFound) {
			httptransport.RespondError(c, http.StatusNotFound, "payment link not found", nil)
			return
		}
		s.logger.ErrorTag("HTTP", "pay link resolution failed for %s: %v", username, err)
		httptransport.RespondError(c, http.StatusInternalServerError, "failed to resolve payment link", nil)
		return
	}

	var req createChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount <= 0 {
		httptransport.RespondError(c, http.StatusBadRequest, "a positive amount is required", nil)
		return
	}

	charge, err := s.payments.CreateCharge(c.Request.Context(), username, req.Amount)
	if err != nil {
		status := httptransport.StatusForError(err)
		if status >= http.StatusInternalServerError {
			s.logger.ErrorTag("HTTP", "charge creation failed for %s: %v", username, err)
			httptransport.RespondError(c, status, "failed to create charge", nil)
			return
		}
		httptransport.RespondError(c, status, "failed to create charge", nil)
		return
	}

	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"chargeId":  charge.ID,
		"hostedUrl": charge.HostedURL,
	}, "charge created")
}

// handleListPayments returns the authenticated merchant's received
// payments, newest first.
func (s *Service) handleListPayments(c *gin.Context) {
	username := httptransport.Identity(c)

	records, err := s.payments.List(c.Request.Context(), username)
	if err != nil {
		s.logger.ErrorTag("HTTP", "payment list failed for %s: %v", username, err)
		httptransport.RespondError(c, http.StatusInternalServerError, "failed to load payments", nil)
		return
	}

	httptransport.RespondSuccess(c, http.StatusOK, gin.H{"payments": records}, "")
}
