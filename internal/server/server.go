// Package server exposes the billing engine over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/rebill/internal/config"
	obsmetrics "github.com/smallbiznis/rebill/internal/observability/metrics"
	plandomain "github.com/smallbiznis/rebill/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/rebill/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogMiddleware(log))
	r.Use(obsmetrics.GinMiddleware(obsmetrics.HTTP()))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, log *zap.Logger) *gin.Engine {
	return NewEngine(cfg, log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	planSvc         plandomain.Service
	subscriptionSvc subscriptiondomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	PlanSvc         plandomain.Service
	SubscriptionSvc subscriptiondomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("server"),
		planSvc:         p.PlanSvc,
		subscriptionSvc: p.SubscriptionSvc,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	// -------- Plans --------
	v1.GET("/plans", s.ListPlans)
	v1.POST("/plans", s.CreatePlan)
	v1.GET("/plans/:id", s.GetPlanByID)
	v1.PUT("/plans/:id", s.UpdatePlan)

	// -------- Subscriptions --------
	v1.GET("/subscriptions", s.GetSubscriptionBySubscriber)
	v1.POST("/subscriptions", s.CreateSubscription)
	v1.GET("/subscriptions/:id", s.GetSubscriptionByID)
	v1.DELETE("/subscriptions/:id", s.DeleteSubscription)

	v1.POST("/subscriptions/:id/renew", s.RenewSubscription)
	v1.POST("/subscriptions/:id/change-plan", s.ChangeSubscriptionPlan)
	v1.POST("/subscriptions/:id/cancel", s.CancelSubscription)
	v1.POST("/subscriptions/:id/charge-balance", s.ChargeSubscriptionBalance)
	v1.POST("/subscriptions/:id/credit-balance", s.CreditSubscriptionBalance)

	v1.GET("/subscriptions/:id/transactions", s.ListSubscriptionTransactions)
	v1.GET("/subscriptions/:id/plans", s.ListAllowedPlans)

	// -------- Payment profile --------
	v1.PUT("/subscriptions/:id/card", s.StoreSubscriptionCard)
	v1.POST("/subscriptions/:id/card/validate", s.ValidateSubscriptionCard)
	v1.DELETE("/subscriptions/:id/card", s.RemoveSubscriptionCard)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/v1/webhooks/payment", s.HandlePaymentWebhook)
}

func requestLogMiddleware(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if last := c.Errors.Last(); last != nil {
			fields = append(fields, zap.Error(last.Err))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("request failed", fields...)
			return
		}
		log.Debug("request", fields...)
	}
}
