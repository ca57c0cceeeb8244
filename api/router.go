package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Skryldev/appointments/config"
	"github.com/Skryldev/appointments/engine"
	"github.com/Skryldev/appointments/telemetry"
)

// RouterOptions configures NewRouter. Zero fields disable the matching
// middleware.
type RouterOptions struct {
	Logger    *zap.Logger
	Metrics   *telemetry.Metrics
	Health    HealthChecker
	CORS      config.CORSConfig
	RateLimit config.RateLimitConfig
	Version   string
}

// NewRouter wires middleware and routes. Optional pieces (metrics, CORS,
// rate limiting) are skipped when their options are empty.
func NewRouter(svc *engine.Service, opts RouterOptions) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(RequestID())
	r.Use(Recovery(log))
	r.Use(AccessLog(log))
	if opts.Metrics != nil {
		r.Use(Metrics(opts.Metrics))
	}
	if len(opts.CORS.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     opts.CORS.AllowedOrigins,
			AllowMethods:     opts.CORS.AllowedMethods,
			AllowHeaders:     opts.CORS.AllowedHeaders,
			ExposeHeaders:    []string{HeaderRequestID},
			AllowCredentials: true,
			MaxAge:           opts.CORS.MaxAge,
		}))
	}

	h := NewHandler(svc, opts.Health, opts.Version)
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	apiGroup := r.Group("/api")
	if opts.RateLimit.RequestsPerSecond > 0 {
		apiGroup.Use(RateLimit(opts.RateLimit.RequestsPerSecond, opts.RateLimit.Burst))
	}
	apiGroup.GET("/appointments", h.ListAppointments)
	apiGroup.POST("/appointments", h.CreateAppointment)
	apiGroup.GET("/appointments/:id", h.GetAppointment)
	apiGroup.PUT("/appointments/:id/status", h.UpdateStatus)
	apiGroup.DELETE("/appointments/:id", h.DeleteAppointment)
	apiGroup.GET("/stats", h.Stats)

	return r
}
