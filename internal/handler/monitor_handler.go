package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bank-txn-monitor/internal/poller"
)

// StartMonitor starts polling the mailbox
func (h *Handlers) StartMonitor(c *gin.Context) {
	started, err := h.poller.Start()
	if err != nil {
		kind := "monitor_error"
		if errors.Is(err, poller.ErrAuthRequired) {
			kind = "authentication_required"
		}
		abortWithError(c, http.StatusInternalServerError, kind, "Failed to start monitoring: "+err.Error())
		return
	}

	message := "Monitoring started"
	if !started {
		message = "Monitoring already active"
	}

	c.JSON(http.StatusOK, MonitorResponse{
		Message:  message,
		Status:   "active",
		Interval: int64(h.poller.Status().Interval.Seconds()),
	})
}

// StopMonitor stops polling the mailbox
func (h *Handlers) StopMonitor(c *gin.Context) {
	message := "Monitoring stopped"
	if !h.poller.Stop() {
		message = "Monitoring not active"
	}

	c.JSON(http.StatusOK, MonitorResponse{
		Message: message,
		Status:  "inactive",
	})
}

// GetMonitorStatus returns poller state together with store counts
func (h *Handlers) GetMonitorStatus(c *gin.Context) {
	ctx := c.Request.Context()

	total, err := h.repo.Count(ctx)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "database_error", err.Error())
		return
	}
	unclaimed, err := h.repo.CountUnclaimed(ctx)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "database_error", err.Error())
		return
	}

	status := h.poller.Status()
	response := MonitorStatusResponse{
		IsMonitoring:      status.Running,
		TransactionCount:  total,
		UnclaimedCount:    unclaimed,
		SeenMessagesCount: status.SeenCount,
		PollInterval:      int64(status.Interval.Seconds()),
		IsAuthenticated:   status.Authenticated,
	}
	if !status.LastTick.IsZero() {
		last := status.LastTick.UTC()
		response.LastCheck = &last
	}

	c.JSON(http.StatusOK, response)
}
