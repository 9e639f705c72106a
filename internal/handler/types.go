package handler

import (
	"time"

	"bank-txn-monitor/internal/model"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// AuthURLResponse carries the OAuth consent page URL
type AuthURLResponse struct {
	AuthURL string `json:"authUrl"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

// MonitorResponse is returned by the start and stop endpoints
type MonitorResponse struct {
	Message  string `json:"message"`
	Status   string `json:"status"`
	Interval int64  `json:"interval,omitempty"`
}

// MonitorStatusResponse reports poller state and store counts
type MonitorStatusResponse struct {
	IsMonitoring      bool       `json:"isMonitoring"`
	TransactionCount  int64      `json:"transactionCount"`
	UnclaimedCount    int64      `json:"unclaimedCount"`
	SeenMessagesCount int        `json:"seenMessagesCount"`
	PollInterval      int64      `json:"pollInterval"`
	IsAuthenticated   bool       `json:"isAuthenticated"`
	LastCheck         *time.Time `json:"lastCheck,omitempty"`
}

// TransactionListResponse wraps a list of transactions
type TransactionListResponse struct {
	Transactions []model.Transaction `json:"transactions"`
	Count        int                 `json:"count"`
}

// ClaimRequest is the claim request body
type ClaimRequest struct {
	UTR string `json:"utr"`
}

// ClaimResponse returns the claimed transaction
type ClaimResponse struct {
	Message     string             `json:"message"`
	Transaction *model.Transaction `json:"transaction"`
}

// ClearResponse reports how many transactions were deleted
type ClearResponse struct {
	Message      string `json:"message"`
	DeletedCount int64  `json:"deletedCount"`
}
