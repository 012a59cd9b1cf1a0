package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Brownie44l1/leaf-doctor/internal/logging"
	"github.com/Brownie44l1/leaf-doctor/internal/shell"
)

// RequestID tags every request with a fresh id, exposed as X-Request-ID
// and carried in the request context for logging.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Header("X-Request-ID", id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Content-Type"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// NewRouter wires every route onto a gin engine.
func NewRouter(h *Handler, sh *shell.Shell, corsOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), RequestID(), cors.New(corsConfig(corsOrigins)))
	r.MaxMultipartMemory = h.maxUpload
	r.SetHTMLTemplate(sh.Template())

	r.GET("/", h.Index)
	r.POST("/", h.Upload)
	r.GET("/health", h.Health)
	r.POST("/predict", h.Predict)
	r.POST("/api/diagnose", h.Diagnose)

	return r
}
