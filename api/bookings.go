package api

import (
	"log/slog"
	"net/http"

	"github.com/Domenick1991/eventflow/internal/auth"
	"github.com/Domenick1991/eventflow/internal/service/booking"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service booking.BookingUseCase
	log     *slog.Logger
}

type createBookingRequest struct {
	EventID     string `json:"eventId"`
	EventDate   string `json:"eventDate"`
	SlotTime    string `json:"slotTime"`
	SeatsBooked int    `json:"seatsBooked"`
}

type confirmBookingRequest struct {
	PaymentID string `json:"paymentId"`
}

func NewBookingHandler(service booking.BookingUseCase, log *slog.Logger) *BookingHandler {
	return &BookingHandler{service: service, log: log}
}

func (h *BookingHandler) Register(router *gin.RouterGroup, session, admin gin.HandlerFunc) {
	router.POST("", session, h.create)
	router.GET("/my-bookings", session, h.listMine)
	router.GET("/:id", session, h.get)
	router.PATCH("/:id/cancel", session, h.cancel)
	router.PATCH("/:id/confirm", session, admin, h.confirm)
	router.GET("", session, admin, h.listAll)
}

func (h *BookingHandler) create(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	var req createBookingRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, h.log, err)
		return
	}
	date, err := parseDate(req.EventDate)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	b, err := h.service.CreateBooking(c.Request.Context(), actor, booking.CreateBookingInput{
		EventID:     req.EventID,
		EventDate:   date,
		SlotTime:    req.SlotTime,
		SeatsBooked: req.SeatsBooked,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusCreated, "Booking created successfully", gin.H{"booking": b})
}

func (h *BookingHandler) listMine(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	list, err := h.service.ListUserBookings(c.Request.Context(), actor)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, "", gin.H{"bookings": list, "count": len(list)})
}

func (h *BookingHandler) listAll(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	list, err := h.service.ListAllBookings(c.Request.Context(), actor)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, "", gin.H{"bookings": list, "count": len(list)})
}

func (h *BookingHandler) get(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	b, err := h.service.GetBooking(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, "", gin.H{"booking": b})
}

func (h *BookingHandler) cancel(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	b, err := h.service.CancelBooking(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, "Booking cancelled successfully", gin.H{"booking": b})
}

func (h *BookingHandler) confirm(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	var req confirmBookingRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, h.log, err)
		return
	}
	b, err := h.service.ConfirmBooking(c.Request.Context(), c.Param("id"), req.PaymentID, actor)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, "Booking confirmed successfully", gin.H{"booking": b})
}
