package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"bank-txn-monitor/internal/mailbox"
	metricsPkg "bank-txn-monitor/internal/metrics"
	"bank-txn-monitor/internal/poller"
	"bank-txn-monitor/internal/repository"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	repo    *repository.Repository
	poller  *poller.Poller
	auth    mailbox.Authenticator
	metrics *metricsPkg.Metrics
}

// NewHandlers creates new HTTP handlers. auth may be nil when the mailbox
// backend does not use OAuth.
func NewHandlers(repo *repository.Repository, p *poller.Poller, auth mailbox.Authenticator, metrics *metricsPkg.Metrics) *Handlers {
	return &Handlers{
		repo:    repo,
		poller:  p,
		auth:    auth,
		metrics: metrics,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/metrics", gin.WrapH(h.metrics.Handler()))

	api := router.Group("/api")
	{
		api.GET("/health", h.HealthCheck)

		api.GET("/auth-url", h.GetAuthURL)
		api.GET("/auth/callback", h.AuthCallback)

		api.POST("/monitor/start", h.StartMonitor)
		api.POST("/monitor/stop", h.StopMonitor)
		api.GET("/monitor/status", h.GetMonitorStatus)

		api.GET("/transactions", h.GetTransactions)
		api.DELETE("/transactions", h.ClearTransactions)
		api.GET("/transactions/unclaimed", h.GetUnclaimedTransactions)
		api.POST("/transactions/claim", h.ClaimTransaction)
		api.GET("/transactions/latest", h.GetLatestTransaction)
		api.GET("/transactions/stats", h.GetTransactionStats)
	}
}

// HealthCheck reports liveness and datastore connectivity
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Database:  "connected",
		Timestamp: time.Now().UTC(),
	}

	if err := h.repo.Ping(c.Request.Context()); err != nil {
		response.Status = "degraded"
		response.Database = "disconnected"
		logrus.Errorf("Database health check failed: %v", err)
	}

	c.JSON(http.StatusOK, response)
}

func abortWithError(c *gin.Context, status int, kind, message string) {
	c.JSON(status, ErrorResponse{
		Error:   kind,
		Message: message,
		Code:    status,
	})
}
