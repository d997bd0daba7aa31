package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Appointments  AppointmentService
	Consultations ConsultationService
	Billing       BillingService
	ReportQueue   ReportDrainer
	Notifications NotificationDispatcher
	Health        *HealthHandler

	JWTSecret    string
	CronSecret   string
	RateLimitRPS int
	Log          *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	if cfg.RateLimitRPS > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitRPS, time.Second))
	}

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(Authenticate(cfg.JWTSecret))

		r.Post("/appointments", bookAppointmentHandler(cfg.Appointments))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))
		r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Appointments))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Appointments))
		r.Post("/appointments/{id}/status", transitionAppointmentHandler(cfg.Appointments))
		r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Consultations))

		r.Get("/invoices/{id}", getInvoiceHandler(cfg.Billing))
		r.Post("/invoices/{id}/payment", submitPaymentHandler(cfg.Billing))
		r.Post("/invoices/{id}/verify", verifyPaymentHandler(cfg.Billing))
		r.Post("/invoices/{id}/adjust", adjustInvoiceHandler(cfg.Billing))
		r.Post("/invoices/{id}/reissue", reissueInvoiceHandler(cfg.Billing))
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(RequireCronSecret(cfg.CronSecret))

		r.Post("/report-queue/drain", drainReportQueueHandler(cfg.ReportQueue))
		r.Post("/notifications/dispatch", dispatchNotificationsHandler(cfg.Notifications))
	})

	return r
}
