package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"bank-txn-monitor/internal/mailbox"
)

// GetAuthURL returns the OAuth consent page URL
func (h *Handlers) GetAuthURL(c *gin.Context) {
	if h.auth == nil {
		abortWithError(c, http.StatusInternalServerError, "auth_error", mailbox.ErrOAuthUnsupported.Error())
		return
	}

	url, err := h.auth.AuthURL()
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "auth_error", err.Error())
		return
	}

	c.JSON(http.StatusOK, AuthURLResponse{AuthURL: url})
}

// AuthCallback completes the OAuth flow with the code from the consent page
func (h *Handlers) AuthCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		abortWithError(c, http.StatusBadRequest, "validation_error", "Authorization code is required")
		return
	}

	if h.auth == nil {
		abortWithError(c, http.StatusInternalServerError, "auth_error", mailbox.ErrOAuthUnsupported.Error())
		return
	}

	if err := h.auth.Exchange(c.Request.Context(), c.Query("state"), code); err != nil {
		if errors.Is(err, mailbox.ErrInvalidState) {
			abortWithError(c, http.StatusBadRequest, "invalid_state", err.Error())
			return
		}
		logrus.Errorf("OAuth code exchange failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, "auth_error", err.Error())
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Authentication successful, monitoring can be started"})
}
