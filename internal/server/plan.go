package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	plandomain "github.com/smallbiznis/rebill/internal/plan/domain"
)

type planRequest struct {
	Name           string `json:"name"`
	RateCents      int64  `json:"rate_cents"`
	IntervalMonths int    `json:"interval_months"`
}

func (s *Server) CreatePlan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.planSvc.Create(c.Request.Context(), plandomain.CreatePlanRequest{
		Name:           strings.TrimSpace(req.Name),
		RateCents:      req.RateCents,
		IntervalMonths: req.IntervalMonths,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdatePlan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.planSvc.Update(c.Request.Context(), plandomain.UpdatePlanRequest{
		ID:             strings.TrimSpace(c.Param("id")),
		Name:           strings.TrimSpace(req.Name),
		RateCents:      req.RateCents,
		IntervalMonths: req.IntervalMonths,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPlanByID(c *gin.Context) {
	resp, err := s.planSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPlans(c *gin.Context) {
	resp, err := s.planSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
