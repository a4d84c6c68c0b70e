package handler

import (
	"context"
	"net/http"
	"time"

	"optifish/apps/groupbuy/middleware"
	"optifish/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type RouterConfig struct {
	ServiceName string
	Tokens      *jwt.Manager
	// Health is called by /healthz; nil means always healthy.
	Health func(ctx context.Context) error
}

func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(cfg.ServiceName), middleware.RequestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		if cfg.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Health(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	// 公开接口
	{
		api.GET("/group-buys/active", h.ListActive)
		api.GET("/group-buys/:id/product", h.CampaignProduct)
		api.GET("/group-buys/:id/quote", h.Quote)
		api.GET("/group-buys/:id/countdown", h.Countdown)
		api.GET("/pricing/options", h.PricingOptions)
	}

	// 受保护接口
	authed := api.Group("/")
	authed.Use(middleware.AuthMiddleware(cfg.Tokens))
	{
		authed.POST("/group-buys", h.CreateCampaign)
		authed.POST("/group-buys/:id/join", middleware.RateLimit(middleware.ResJoin), h.JoinCampaign)
		authed.POST("/group-buys/:id/complete", h.CompleteCampaign)
		authed.GET("/group-buys/user/:userId", h.UserCampaigns)
		authed.POST("/group-buy/transaction", h.CreateTransaction)
	}
	return r
}
