package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"bank-txn-monitor/internal/model"
	"bank-txn-monitor/internal/repository"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	dateOnly         = "2006-01-02"
)

// GetTransactions returns the most recent transactions
func (h *Handlers) GetTransactions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit < 1 {
		abortWithError(c, http.StatusBadRequest, "validation_error", "limit must be a positive integer")
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	txs, err := h.repo.ListRecent(c.Request.Context(), limit)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "database_error", err.Error())
		return
	}

	c.JSON(http.StatusOK, newTransactionList(txs))
}

// GetUnclaimedTransactions returns every unclaimed transaction
func (h *Handlers) GetUnclaimedTransactions(c *gin.Context) {
	txs, err := h.repo.ListUnclaimed(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "database_error", err.Error())
		return
	}

	c.JSON(http.StatusOK, newTransactionList(txs))
}

func newTransactionList(txs []model.Transaction) TransactionListResponse {
	if txs == nil {
		txs = []model.Transaction{}
	}
	return TransactionListResponse{Transactions: txs, Count: len(txs)}
}

// ClaimTransaction marks a transaction as claimed by its UTR
func (h *Handlers) ClaimTransaction(c *gin.Context) {
	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	utr := strings.TrimSpace(req.UTR)
	if utr == "" {
		abortWithError(c, http.StatusBadRequest, "validation_error", "UTR is required")
		return
	}

	tx, err := h.repo.Claim(c.Request.Context(), utr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFoundOrClaimed) {
			abortWithError(c, http.StatusNotFound, "not_found", "Transaction not found or already claimed")
			return
		}
		abortWithError(c, http.StatusInternalServerError, "database_error", err.Error())
		return
	}

	h.metrics.Claims.Inc()
	logrus.WithField("utr", utr).Info("Transaction claimed")

	c.JSON(http.StatusOK, ClaimResponse{
		Message:     "Transaction claimed successfully",
		Transaction: tx,
	})
}

// GetLatestTransaction returns the most recent transaction or null
func (h *Handlers) GetLatestTransaction(c *gin.Context) {
	tx, err := h.repo.Latest(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "database_error", err.Error())
		return
	}

	c.JSON(http.StatusOK, tx)
}

// GetTransactionStats sums transactions in an optional date window
func (h *Handlers) GetTransactionStats(c *gin.Context) {
	var filter repository.TotalsFilter

	if v := c.Query("startDate"); v != "" {
		start, err := parseDate(v, false)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		filter.Start = start
	}

	if v := c.Query("endDate"); v != "" {
		end, err := parseDate(v, true)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		filter.End = end
	}

	if v := c.Query("claimedOnly"); v != "" {
		claimedOnly, err := strconv.ParseBool(v)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "validation_error", "claimedOnly must be true or false")
			return
		}
		filter.ClaimedOnly = claimedOnly
	}

	totals, err := h.repo.AggregateTotal(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "database_error", err.Error())
		return
	}

	c.JSON(http.StatusOK, totals)
}

// parseDate accepts RFC3339 or YYYY-MM-DD. A bare date used as an upper
// bound covers the whole day.
func parseDate(v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}

	t, err := time.Parse(dateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use RFC3339 or YYYY-MM-DD", v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// ClearTransactions deletes every transaction and resets the seen set
func (h *Handlers) ClearTransactions(c *gin.Context) {
	deleted, err := h.repo.ClearAll(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "database_error", err.Error())
		return
	}

	h.poller.ResetSeen()
	logrus.WithField("deleted", deleted).Warn("All transactions cleared")

	c.JSON(http.StatusOK, ClearResponse{
		Message:      "All transactions cleared",
		DeletedCount: deleted,
	})
}
