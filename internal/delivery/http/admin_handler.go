package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/voltgate/ev-session-service/internal/domain"
	"github.com/voltgate/ev-session-service/internal/usecase/admin"
)

type AdminHandler struct {
	usecase admin.AdminUsecase
}

func NewAdminHandler(usecase admin.AdminUsecase) *AdminHandler {
	return &AdminHandler{usecase: usecase}
}

func (h *AdminHandler) ListSessions(c *gin.Context) {
	var query struct {
		State          string `form:"state"`
		IncludeDeleted bool   `form:"include_deleted"`
		Limit          int    `form:"limit,default=100"`
		Offset         int    `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessions, err := h.usecase.ListSessions(c.Request.Context(), domain.SessionFilters{
		State:          domain.SessionState(query.State),
		IncludeDeleted: query.IncludeDeleted,
	}, query.Limit, query.Offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(sessions))
	for _, row := range sessions {
		out = append(out, sessionJSON(row))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out, "count": len(out)})
}

func (h *AdminHandler) GetSession(c *gin.Context) {
	row, err := h.usecase.GetSession(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	audit, err := h.usecase.GetAuditTrail(c.Request.Context(), c.Param("key"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session": sessionJSON(row),
		"audit":   audit,
	})
}

type amountRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

func (h *AdminHandler) Capture(c *gin.Context) {
	var req amountRequest
	_ = c.ShouldBindJSON(&req)

	payment, err := h.usecase.Capture(c.Request.Context(), c.GetString(actorKey), c.Param("key"), req.AmountCents)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":                    true,
		"idempotency_key":       c.Param("key"),
		"captured_amount_cents": payment.AmountCents,
		"capture_payment_id":    payment.ID,
	})
}

func (h *AdminHandler) Void(c *gin.Context) {
	payment, err := h.usecase.Void(c.Request.Context(), c.GetString(actorKey), c.Param("key"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":              true,
		"idempotency_key": c.Param("key"),
		"payment_id":      payment.ID,
	})
}

type refundRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

func (h *AdminHandler) Refund(c *gin.Context) {
	var req refundRequest
	_ = c.ShouldBindJSON(&req)

	refund, err := h.usecase.Refund(c.Request.Context(), c.GetString(actorKey), c.Param("key"), req.AmountCents, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":              true,
		"idempotency_key": c.Param("key"),
		"refund_id":       refund.ID,
		"amount_cents":    refund.AmountCents,
	})
}

func (h *AdminHandler) Reauthorize(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AmountCents <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount_cents must be a positive integer"})
		return
	}

	payment, err := h.usecase.Reauthorize(c.Request.Context(), c.GetString(actorKey), c.Param("key"), req.AmountCents)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":              true,
		"idempotency_key": c.Param("key"),
		"new_payment_id":  payment.ID,
		"amount_cents":    req.AmountCents,
	})
}

type noteRequest struct {
	Note string `json:"note" binding:"required"`
}

func (h *AdminHandler) AddNote(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "note is required"})
		return
	}

	if err := h.usecase.AddNote(c.Request.Context(), c.GetString(actorKey), c.Param("key"), req.Note); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "idempotency_key": c.Param("key")})
}

func (h *AdminHandler) SoftDelete(c *gin.Context) {
	if err := h.usecase.SoftDelete(c.Request.Context(), c.GetString(actorKey), c.Param("key")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "idempotency_key": c.Param("key")})
}

func (h *AdminHandler) respondError(c *gin.Context, err error) {
	var gatewayErr *domain.GatewayError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, domain.ErrWrongState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrMissingReference):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.As(err, &gatewayErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": gatewayErr.Message})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
