package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Domenick1991/eventflow/internal/auth"
	"github.com/Domenick1991/eventflow/internal/domain"
	"github.com/Domenick1991/eventflow/internal/lib/logger/sl"
	"github.com/Domenick1991/eventflow/internal/service/payment"
	"github.com/gin-gonic/gin"
)

const (
	signatureHeader = "Stripe-Signature"
	maxWebhookBody  = 1 << 16
)

type PaymentHandler struct {
	service payment.PaymentUseCase
	log     *slog.Logger
}

type createIntentRequest struct {
	BookingID string `json:"bookingId"`
}

type confirmPaymentRequest struct {
	BookingID       string `json:"bookingId"`
	PaymentIntentID string `json:"paymentIntentId"`
}

func NewPaymentHandler(service payment.PaymentUseCase, log *slog.Logger) *PaymentHandler {
	return &PaymentHandler{service: service, log: log}
}

// Register mounts the payment routes. The webhook is authenticated by its
// signature, not by a session.
func (h *PaymentHandler) Register(router *gin.RouterGroup, session gin.HandlerFunc) {
	router.POST("/create-intent", session, h.createIntent)
	router.POST("/confirm", session, h.confirm)
	router.GET("/status/:bookingId", session, h.status)
	router.POST("/webhook", h.webhook)
}

func (h *PaymentHandler) createIntent(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	var req createIntentRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, h.log, err)
		return
	}
	res, err := h.service.CreateIntent(c.Request.Context(), req.BookingID, actor)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, "", gin.H{
		"clientSecret":    res.ClientSecret,
		"paymentIntentId": res.IntentID,
		"amountCents":     res.AmountCents,
		"currency":        res.Currency,
	})
}

func (h *PaymentHandler) confirm(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	var req confirmPaymentRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, h.log, err)
		return
	}
	res, err := h.service.ConfirmFromClient(c.Request.Context(), req.BookingID, req.PaymentIntentID, actor)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	message := "Payment confirmed successfully"
	if res.AlreadyConfirmed {
		message = "Payment already confirmed"
	}
	success(c, http.StatusOK, message, gin.H{"booking": res.Booking, "alreadyConfirmed": res.AlreadyConfirmed})
}

func (h *PaymentHandler) status(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	snapshot, err := h.service.Status(c.Request.Context(), c.Param("bookingId"), actor)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, "", gin.H{"booking": snapshot})
}

// webhook acknowledges every delivery it could interpret so the provider stops
// retrying; only storage or provider outages ask for a redelivery.
func (h *PaymentHandler) webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		fail(c, http.StatusBadRequest, "unreadable webhook body")
		return
	}

	err = h.service.HandleProviderCallback(c.Request.Context(), payload, c.GetHeader(signatureHeader))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, domain.ErrPaymentVerification):
		h.log.Warn("webhook rejected", sl.Err(err))
		fail(c, http.StatusBadRequest, "Webhook Error: "+err.Error())
	default:
		h.log.Error("webhook processing failed", sl.Err(err))
		fail(c, http.StatusInternalServerError, "webhook processing failed")
	}
}
