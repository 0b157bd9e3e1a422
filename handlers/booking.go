package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	auditRepo "findmycoach/database/repository/audit"
	"findmycoach/services/booking"
	"findmycoach/utils"
)

// BookingHandler exposes the booking ledger over HTTP. Authentication happens
// in middleware; the handlers only translate between JSON and ledger calls.
type BookingHandler struct {
	Ledger booking.BookingLedger
	Audit  auditRepo.AuditRepository
	Logger *zap.Logger
}

func NewBookingHandler(ledger booking.BookingLedger, audit auditRepo.AuditRepository, logger *zap.Logger) *BookingHandler {
	return &BookingHandler{Ledger: ledger, Audit: audit, Logger: logger}
}

type createBookingInput struct {
	CoachID  string `json:"coachId" binding:"required"`
	Start    string `json:"start" binding:"required"`
	End      string `json:"end" binding:"required"`
	Price    string `json:"price" binding:"required"`
	Currency string `json:"currency"`
	GroupID  string `json:"groupId"`
	Notes    string `json:"notes"`
}

// CreateBooking handles POST /api/bookings.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var input createBookingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}
	start, err := time.Parse(time.RFC3339, input.Start)
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", "start must be RFC3339")
		return
	}
	end, err := time.Parse(time.RFC3339, input.End)
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", "end must be RFC3339")
		return
	}
	currency := input.Currency
	if currency == "" {
		currency = "usd"
	}

	result, err := h.Ledger.CreateBooking(c.Request.Context(), booking.CreateBookingRequest{
		PlayerID: c.GetString("userID"),
		CoachID:  input.CoachID,
		GroupID:  input.GroupID,
		Start:    start,
		End:      end,
		Price:    input.Price,
		Currency: currency,
		Notes:    input.Notes,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"bookingId":    result.Booking.ID,
		"status":       result.Booking.Status,
		"clientSecret": result.ClientSecret,
	})
}

// CaptureBooking handles POST /api/bookings/:id/capture.
func (h *BookingHandler) CaptureBooking(c *gin.Context) {
	bk, err := h.Ledger.RequestCapture(c.Request.Context(), c.Param("id"), c.GetString("userID"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, bk)
}

// CancelBooking handles POST /api/bookings/:id/cancel.
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	bk, err := h.Ledger.RequestCancel(c.Request.Context(), c.Param("id"), c.GetString("userID"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, bk)
}

// GetBooking handles GET /api/bookings/:id.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	bk, err := h.Ledger.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	actor := c.GetString("userID")
	if actor != bk.PlayerID && actor != bk.CoachID {
		utils.JSONError(c, http.StatusForbidden, "forbidden", "not a party to this booking")
		return
	}
	c.JSON(http.StatusOK, bk)
}

// ListBookings handles GET /api/bookings.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	bookings, err := h.Ledger.ListBookings(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

// GetBookingAudit handles GET /api/bookings/:id/audit.
func (h *BookingHandler) GetBookingAudit(c *gin.Context) {
	bk, err := h.Ledger.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	actor := c.GetString("userID")
	if actor != bk.PlayerID && actor != bk.CoachID {
		utils.JSONError(c, http.StatusForbidden, "forbidden", "not a party to this booking")
		return
	}
	events, err := h.Audit.ListByEntity(c.Request.Context(), "Booking", bk.ID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// renderError maps ledger error codes onto HTTP statuses.
func (h *BookingHandler) renderError(c *gin.Context, err error) {
	code := booking.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case booking.CodeValidation:
		status = http.StatusBadRequest
	case booking.CodeNotFound:
		status = http.StatusNotFound
	case booking.CodeUnauthorized:
		status = http.StatusForbidden
	case booking.CodeConflict, booking.CodeAlreadyCaptured, booking.CodeAlreadyCanceled, booking.CodeCoachNotPayable:
		status = http.StatusConflict
	case booking.CodeGatewayDeclined:
		status = http.StatusPaymentRequired
	case booking.CodeGatewayUnavailable:
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.Logger.Error("booking operation failed", zap.Error(err))
		c.JSON(status, utils.ErrorResponse{Message: "Internal Server Error"})
		return
	}
	c.JSON(status, utils.ErrorResponse{Message: err.Error(), Code: code})
}
