package api

import (
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/Domenick1991/eventflow/internal/auth"
	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Handlers struct {
	Bookings *BookingHandler
	Events   *EventHandler
	Payments *PaymentHandler
}

// NewRouter wires the handlers behind the request logger. When swaggerDir is set
// its openapi.yaml is served at /docs/openapi.yaml and browsable under /swagger/.
func NewRouter(h Handlers, verifier *auth.Verifier, swaggerDir string, log *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if swaggerDir != "" {
		router.StaticFile("/docs/openapi.yaml", filepath.Join(swaggerDir, "openapi.yaml"))
		router.GET("/swagger/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL("/docs/openapi.yaml"))))
	}

	session := verifier.RequireSession()
	admin := auth.RequireAdmin()
	h.Bookings.Register(router.Group("/bookings"), session, admin)
	h.Events.Register(router.Group("/events"), session, admin)
	h.Payments.Register(router.Group("/payment"), session)

	return router
}
