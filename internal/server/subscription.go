package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	gwdomain "github.com/smallbiznis/rebill/internal/gateway/domain"
	subscriptiondomain "github.com/smallbiznis/rebill/internal/subscription/domain"
)

type createSubscriptionRequest struct {
	SubscriberType string `json:"subscriber_type"`
	SubscriberID   string `json:"subscriber_id"`
	PlanID         string `json:"plan_id"`
}

func (s *Server) CreateSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.Create(c.Request.Context(), subscriptiondomain.CreateSubscriptionRequest{
		SubscriberType: strings.TrimSpace(req.SubscriberType),
		SubscriberID:   strings.TrimSpace(req.SubscriberID),
		PlanID:         strings.TrimSpace(req.PlanID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSubscriptionByID(c *gin.Context) {
	resp, err := s.subscriptionSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSubscriptionBySubscriber(c *gin.Context) {
	var query struct {
		SubscriberType string `form:"subscriber_type"`
		SubscriberID   string `form:"subscriber_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if query.SubscriberType == "" || query.SubscriberID == "" {
		AbortWithError(c, newValidationError("subscriber", "invalid_subscriber", "subscriber_type and subscriber_id are required"))
		return
	}

	resp, err := s.subscriptionSvc.GetBySubscriber(c.Request.Context(), query.SubscriberType, query.SubscriberID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteSubscription(c *gin.Context) {
	// soft=true keeps the record for subscribers that archive instead of
	// destroying; the subscription is still reverted to the default plan.
	soft := strings.EqualFold(c.Query("soft"), "true")

	err := s.subscriptionSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id")), soft)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) RenewSubscription(c *gin.Context) {
	resp, err := s.subscriptionSvc.Renew(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type changePlanRequest struct {
	PlanID string `json:"plan_id"`
}

func (s *Server) ChangeSubscriptionPlan(c *gin.Context) {
	var req changePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.ChangePlan(c.Request.Context(), strings.TrimSpace(c.Param("id")), strings.TrimSpace(req.PlanID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	resp, err := s.subscriptionSvc.Cancel(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type chargeBalanceRequest struct {
	Description string `json:"description"`
}

func (s *Server) ChargeSubscriptionBalance(c *gin.Context) {
	var req chargeBalanceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, err := s.subscriptionSvc.ChargeBalance(c.Request.Context(), strings.TrimSpace(c.Param("id")), strings.TrimSpace(req.Description))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreditSubscriptionBalance(c *gin.Context) {
	resp, err := s.subscriptionSvc.CreditBalance(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSubscriptionTransactions(c *gin.Context) {
	limit := 50
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
			return
		}
		limit = parsed
	}

	resp, err := s.subscriptionSvc.ListTransactions(c.Request.Context(), strings.TrimSpace(c.Param("id")), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListAllowedPlans(c *gin.Context) {
	resp, err := s.subscriptionSvc.AllowedPlans(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type cardRequest struct {
	Number   string `json:"number"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
	Holder   string `json:"holder"`
	CVV      string `json:"cvv"`
}

func (r cardRequest) toCard() gwdomain.Card {
	return gwdomain.Card{
		Number:   strings.TrimSpace(r.Number),
		ExpMonth: r.ExpMonth,
		ExpYear:  r.ExpYear,
		Holder:   strings.TrimSpace(r.Holder),
		CVV:      strings.TrimSpace(r.CVV),
	}
}

func (s *Server) StoreSubscriptionCard(c *gin.Context) {
	var req cardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.StoreCard(c.Request.Context(), strings.TrimSpace(c.Param("id")), req.toCard())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(cardStatus(resp), gin.H{"data": resp})
}

func (s *Server) ValidateSubscriptionCard(c *gin.Context) {
	var req cardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.ValidateCard(c.Request.Context(), strings.TrimSpace(c.Param("id")), req.toCard())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(cardStatus(resp), gin.H{"data": resp})
}

func (s *Server) RemoveSubscriptionCard(c *gin.Context) {
	resp, err := s.subscriptionSvc.RemoveCard(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(cardStatus(resp), gin.H{"data": resp})
}

// cardStatus maps a gateway decline onto 402 while keeping the card result
// body, so callers can show the processor message.
func cardStatus(res subscriptiondomain.CardResult) int {
	if res.Accepted {
		return http.StatusOK
	}
	return http.StatusPaymentRequired
}
