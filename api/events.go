package api

import (
	"log/slog"
	"net/http"

	"github.com/Domenick1991/eventflow/internal/auth"
	"github.com/Domenick1991/eventflow/internal/repository"
	"github.com/Domenick1991/eventflow/internal/service/events"
	"github.com/gin-gonic/gin"
)

type EventHandler struct {
	service events.EventUseCase
	log     *slog.Logger
}

type slotRequest struct {
	Time     string `json:"time"`
	Capacity int    `json:"capacity"`
}

type dateRequest struct {
	Date  string        `json:"date"`
	Slots []slotRequest `json:"slots"`
}

type eventRequest struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Category    string        `json:"category"`
	Location    string        `json:"location"`
	PriceCents  int64         `json:"priceCents"`
	Dates       []dateRequest `json:"dates"`
}

func (r eventRequest) input() (events.EventInput, error) {
	in := events.EventInput{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Location:    r.Location,
		PriceCents:  r.PriceCents,
		Dates:       make([]events.DateInput, 0, len(r.Dates)),
	}
	for _, d := range r.Dates {
		date, err := parseDate(d.Date)
		if err != nil {
			return events.EventInput{}, err
		}
		slots := make([]events.SlotInput, 0, len(d.Slots))
		for _, s := range d.Slots {
			slots = append(slots, events.SlotInput{Time: s.Time, Capacity: s.Capacity})
		}
		in.Dates = append(in.Dates, events.DateInput{Date: date, Slots: slots})
	}
	return in, nil
}

func NewEventHandler(service events.EventUseCase, log *slog.Logger) *EventHandler {
	return &EventHandler{service: service, log: log}
}

func (h *EventHandler) Register(router *gin.RouterGroup, session, admin gin.HandlerFunc) {
	router.GET("", h.list)
	router.GET("/:id", h.get)
	router.GET("/:id/availability", h.availability)
	router.POST("", session, admin, h.create)
	router.PUT("/:id", session, admin, h.update)
	router.DELETE("/:id", session, admin, h.delete)
}

func (h *EventHandler) list(c *gin.Context) {
	list, err := h.service.List(c.Request.Context(), repository.EventFilter{
		Category: c.Query("category"),
		Location: c.Query("location"),
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, "Events fetched successfully", gin.H{"events": list, "count": len(list)})
}

func (h *EventHandler) get(c *gin.Context) {
	event, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, "Event fetched successfully", gin.H{"event": event})
}

func (h *EventHandler) availability(c *gin.Context) {
	date, err := parseDate(c.Query("date"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	res, err := h.service.Availability(c.Request.Context(), c.Param("id"), date, c.Query("slotTime"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, "", gin.H{"available": res.Available, "availableSeats": res.AvailableSeats})
}

func (h *EventHandler) create(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	in, err := h.bind(c)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	event, err := h.service.Create(c.Request.Context(), actor, in)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusCreated, "Event created successfully", gin.H{"event": event})
}

func (h *EventHandler) update(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	in, err := h.bind(c)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	event, err := h.service.Update(c.Request.Context(), c.Param("id"), actor, in)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, "Event updated successfully", gin.H{"event": event})
}

func (h *EventHandler) delete(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), actor); err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, "Event deleted successfully", nil)
}

func (h *EventHandler) bind(c *gin.Context) (events.EventInput, error) {
	var req eventRequest
	if err := bindJSON(c, &req); err != nil {
		return events.EventInput{}, err
	}
	return req.input()
}
