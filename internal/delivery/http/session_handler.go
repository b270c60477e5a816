package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/voltgate/ev-session-service/internal/domain"
	"github.com/voltgate/ev-session-service/internal/usecase/session"
)

type SessionHandler struct {
	usecase session.SessionUsecase
}

func NewSessionHandler(usecase session.SessionUsecase) *SessionHandler {
	return &SessionHandler{usecase: usecase}
}

// Start handles GET /start: reserves a charging slot with the charger and
// returns the booking plus a one-time session token for the payment step.
func (h *SessionHandler) Start(c *gin.Context) {
	out, err := h.usecase.Start(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrBusy):
			c.JSON(http.StatusTooManyRequests, gin.H{
				"status":  "error",
				"message": "A session request is already in progress - please wait and try again",
			})
		case errors.Is(err, domain.ErrTimeout):
			c.JSON(http.StatusGatewayTimeout, gin.H{
				"status":  "error",
				"message": "No response received from the charger",
			})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "error",
				"message": err.Error(),
			})
		}
		return
	}

	if out.AlreadyAuthorized {
		c.JSON(http.StatusOK, gin.H{
			"status":       "already_authorized",
			"booking_id":   out.BookingID,
			"state":        string(out.Existing.State),
			"payment_id":   out.Existing.PaymentID,
			"amount_cents": out.AmountCents,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"booking_id":    out.BookingID,
		"amount_cents":  out.AmountCents,
		"session_token": out.SessionToken,
	})
}

type submitPaymentRequest struct {
	SourceID      string `form:"source_id" json:"source_id" binding:"required"`
	SessionToken  string `form:"token" json:"token" binding:"required"`
	GivenName     string `form:"given_name" json:"given_name"`
	FamilyName    string `form:"family_name" json:"family_name"`
	PaymentMethod string `form:"payment_method" json:"payment_method"`
}

// SubmitPayment handles POST /submit_payment: authorizes the hold and tells
// the charger to enable.
func (h *SessionHandler) SubmitPayment(c *gin.Context) {
	var req submitPaymentRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "source_id and token are required",
		})
		return
	}

	out, err := h.usecase.SubmitPayment(c.Request.Context(), &session.SubmitPaymentInput{
		SessionToken:  req.SessionToken,
		SourceID:      req.SourceID,
		GivenName:     req.GivenName,
		FamilyName:    req.FamilyName,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		h.respondSubmitError(c, out, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "success",
		"booking_id":   out.BookingID,
		"payment_id":   out.PaymentID,
		"card_id":      out.CardID,
		"amount_cents": out.AmountCents,
	})
}

// respondSubmitError maps failure branches to distinct user-facing answers.
// Post-authorization failures carry the payment reference so the user can
// quote it to support.
func (h *SessionHandler) respondSubmitError(c *gin.Context, out *session.SubmitPaymentOutput, err error) {
	var gatewayErr *domain.GatewayError

	switch {
	case errors.Is(err, domain.ErrTokenNotFound):
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Session not found or already used. Please start again.",
		})
	case errors.As(err, &gatewayErr) && gatewayErr.Kind == domain.GatewayDeclined:
		c.JSON(http.StatusOK, gin.H{
			"status":  "card_error",
			"message": gatewayErr.Message,
		})
	case errors.As(err, &gatewayErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"status":  "error",
			"message": gatewayErr.Message,
		})
	case errors.Is(err, domain.ErrBusy):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"status":  "error",
			"message": "Another charger request is in progress. Payment authorized" + paymentRef(out) + ". Contact support.",
		})
	case errors.Is(err, domain.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"status":  "error",
			"message": "Charger did not respond. Payment authorized" + paymentRef(out) + ". Contact support.",
		})
	case errors.Is(err, domain.ErrChargerRefused):
		c.JSON(http.StatusBadGateway, gin.H{
			"status":  "error",
			"message": "Charger refused the session. Payment authorized" + paymentRef(out) + ".",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Unexpected server error: " + err.Error(),
		})
	}
}

func paymentRef(out *session.SubmitPaymentOutput) string {
	if out == nil || out.PaymentID == "" {
		return ""
	}
	return " (ID: " + out.PaymentID + ")"
}

// GetSession handles GET /session/:token: session status for the portal's
// confirmation page.
func (h *SessionHandler) GetSession(c *gin.Context) {
	row, err := h.usecase.GetByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"status":  "error",
			"message": "Session not found",
		})
		return
	}
	c.JSON(http.StatusOK, sessionJSON(row))
}

func sessionJSON(row *domain.Session) gin.H {
	result := gin.H{
		"idempotency_key":         row.IdempotencyKey,
		"charger_id":              row.ChargerID,
		"booking_id":              row.BookingID,
		"state":                   string(row.State),
		"authorized_amount_cents": row.AuthorizedAmountCents,
		"captured_amount_cents":   row.CapturedAmountCents,
		"payment_id":              row.PaymentID,
		"capture_payment_id":      row.CapturePaymentID,
		"card_brand":              row.Card.Brand,
		"card_last4":              row.Card.Last4,
		"gateway_environment":     row.GatewayEnvironment,
		"last_error":              row.LastError,
		"note":                    row.Note,
		"is_deleted":              row.IsDeleted,
		"created_at":              row.CreatedAt,
		"updated_at":              row.UpdatedAt,
	}
	return result
}
