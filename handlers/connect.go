package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	coachRepo "findmycoach/database/repository/coach"
	"findmycoach/services/payment"
	"findmycoach/utils"
)

// ConnectHandler starts coach payout onboarding.
type ConnectHandler struct {
	Onboarder *payment.ConnectOnboarder
	Logger    *zap.Logger
}

func NewConnectHandler(onboarder *payment.ConnectOnboarder, logger *zap.Logger) *ConnectHandler {
	return &ConnectHandler{Onboarder: onboarder, Logger: logger}
}

// StartOnboarding handles POST /api/stripe/connect. Requires the COACH role.
func (h *ConnectHandler) StartOnboarding(c *gin.Context) {
	url, err := h.Onboarder.OnboardingLink(c.Request.Context(), c.GetString("userID"), c.GetString("email"))
	if err != nil {
		if errors.Is(err, coachRepo.ErrNotFound) {
			utils.JSONError(c, http.StatusBadRequest, "coach profile missing", "")
			return
		}
		h.Logger.Error("onboarding link failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse{Message: "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
