// Package server wires the stores, services, and handlers together and
// builds the HTTP router.
package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jmckenna/carecircle/internal/access"
	"github.com/jmckenna/carecircle/internal/alert"
	"github.com/jmckenna/carecircle/internal/auth"
	"github.com/jmckenna/carecircle/internal/cache"
	"github.com/jmckenna/carecircle/internal/config"
	"github.com/jmckenna/carecircle/internal/export"
	"github.com/jmckenna/carecircle/internal/handler"
	"github.com/jmckenna/carecircle/internal/medication"
	"github.com/jmckenna/carecircle/internal/metrics"
	"github.com/jmckenna/carecircle/internal/middleware"
	"github.com/jmckenna/carecircle/internal/notify"
	"github.com/jmckenna/carecircle/internal/push"
	"github.com/jmckenna/carecircle/internal/shift"
	"github.com/jmckenna/carecircle/internal/store"
	ws "github.com/jmckenna/carecircle/internal/websocket"
)

type Server struct {
	db           *sql.DB
	cfg          *config.Config
	hub          *ws.Hub
	shiftH       *handler.ShiftHandler
	medicationH  *handler.MedicationHandler
	alertH       *handler.AlertHandler
	familyH      *handler.FamilyHandler
	pushH        *handler.PushHandler
	exportH      *handler.ExportHandler
	sessionStore *store.SessionStore
	familyStore  *store.FamilyStore
	rateLimiter  *middleware.RateLimiter
	registry     *prometheus.Registry
	dispatcher   *notify.Dispatcher
	logger       *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	familyStore := store.NewFamilyStore(db)
	recipientStore := store.NewCareRecipientStore(db)
	shiftStore := store.NewShiftStore(db)
	medicationStore := store.NewMedicationStore(db)
	alertStore := store.NewAlertStore(db)
	outboxStore := store.NewOutboxStore(db)
	sessionStore := store.NewSessionStore(db)
	pushStore := store.NewPushStore(db)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	guard := access.NewGuard(recipientStore, familyStore)
	projectionCache := cache.New(cfg.CacheTTL)
	emitter := notify.NewEmitter(outboxStore, collector, logger.With("component", "notify"))

	// Delivery sinks. The websocket leg is always on; web push joins
	// it when VAPID keys are configured.
	sinks := []notify.Sink{notify.NewWebSocketSink(hub)}
	var pushH *handler.PushHandler
	if cfg.PushEnabled() {
		pushSvc := push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)
		sinks = append(sinks, notify.NewPushSink(pushStore, pushSvc, logger.With("component", "push")))
		pushH = handler.NewPushHandler(pushStore, familyStore, pushSvc, logger.With("component", "push_handler"))
	}

	dispatcher := notify.NewDispatcher(outboxStore, sinks, collector, logger.With("component", "dispatcher"))
	dispatcher.SetInterval(cfg.DispatchInterval)

	shiftSvc := shift.NewService(shiftStore, familyStore, guard, projectionCache, emitter, collector, logger.With("component", "shift"))
	medicationSvc := medication.NewService(medicationStore, guard, projectionCache, emitter, collector, logger.With("component", "medication"))
	alertSvc := alert.NewService(alertStore, guard, emitter, logger.With("component", "alert"))

	exporter := export.NewExporter(export.S3Config{
		Endpoint:  cfg.S3Endpoint,
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Prefix:    cfg.ExportPrefix,
	}, guard, shiftStore, medicationStore, alertStore, logger.With("component", "export"))

	return &Server{
		db:           db,
		cfg:          cfg,
		hub:          hub,
		shiftH:       handler.NewShiftHandler(shiftSvc, logger.With("component", "shift_handler")),
		medicationH:  handler.NewMedicationHandler(medicationSvc, logger.With("component", "medication_handler")),
		alertH:       handler.NewAlertHandler(alertSvc, logger.With("component", "alert_handler")),
		familyH:      handler.NewFamilyHandler(familyStore, recipientStore, userStore, guard, logger.With("component", "family_handler")),
		pushH:        pushH,
		exportH:      handler.NewExportHandler(exporter, logger.With("component", "export_handler")),
		sessionStore: sessionStore,
		familyStore:  familyStore,
		rateLimiter:  middleware.NewRateLimiter(),
		registry:     registry,
		dispatcher:   dispatcher,
		logger:       logger,
	}
}

// Dispatcher returns the outbox dispatcher so the entrypoint can manage
// its lifecycle.
func (s *Server) Dispatcher() *notify.Dispatcher {
	return s.dispatcher
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", metrics.Handler(s.registry))

	// Everything else requires a valid session token.
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// limited applies the per-IP mutation rate limit to a handler.
func (s *Server) limited(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, s.cfg.RateLimitPerMinute, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Family and care recipient routes
	mux.HandleFunc("POST /api/families", s.limited(s.familyH.CreateFamily))
	mux.HandleFunc("GET /api/families", s.familyH.MyFamilies)
	mux.HandleFunc("GET /api/families/{id}/members", s.familyH.ListMembers)
	mux.HandleFunc("POST /api/families/{id}/members", s.limited(s.familyH.AddMember))
	mux.HandleFunc("PUT /api/families/{id}/members/{user_id}", s.limited(s.familyH.UpdateMemberRole))
	mux.HandleFunc("POST /api/families/{id}/recipients", s.limited(s.familyH.CreateRecipient))
	mux.HandleFunc("GET /api/families/{id}/recipients", s.familyH.ListRecipients)
	mux.HandleFunc("GET /api/recipients/{id}", s.familyH.GetRecipient)
	mux.HandleFunc("PUT /api/recipients/{id}", s.limited(s.familyH.UpdateRecipient))

	// Shift routes
	mux.HandleFunc("POST /api/recipients/{id}/shifts", s.limited(s.shiftH.Create))
	mux.HandleFunc("GET /api/recipients/{id}/shifts", s.shiftH.Range)
	mux.HandleFunc("GET /api/recipients/{id}/shifts/current", s.shiftH.Current)
	mux.HandleFunc("GET /api/recipients/{id}/shifts/upcoming", s.shiftH.Upcoming)
	mux.HandleFunc("GET /api/recipients/{id}/shifts/day", s.shiftH.Day)
	mux.HandleFunc("GET /api/shifts/{id}", s.shiftH.Get)
	mux.HandleFunc("POST /api/shifts/{id}/confirm", s.limited(s.shiftH.Confirm))
	mux.HandleFunc("POST /api/shifts/{id}/check-in", s.limited(s.shiftH.CheckIn))
	mux.HandleFunc("POST /api/shifts/{id}/check-out", s.limited(s.shiftH.CheckOut))
	mux.HandleFunc("POST /api/shifts/{id}/cancel", s.limited(s.shiftH.Cancel))
	mux.HandleFunc("POST /api/shifts/{id}/no-show", s.limited(s.shiftH.NoShow))
	mux.HandleFunc("GET /api/my/shifts", s.shiftH.MyShifts)

	// Medication routes
	mux.HandleFunc("POST /api/recipients/{id}/medications", s.limited(s.medicationH.Create))
	mux.HandleFunc("GET /api/recipients/{id}/medications", s.medicationH.List)
	mux.HandleFunc("GET /api/recipients/{id}/medications/schedule", s.medicationH.DaySchedule)
	mux.HandleFunc("GET /api/recipients/{id}/medications/low-supply", s.medicationH.LowSupply)
	mux.HandleFunc("GET /api/recipients/{id}/adherence", s.medicationH.Adherence)
	mux.HandleFunc("GET /api/medications/{id}", s.medicationH.Get)
	mux.HandleFunc("PUT /api/medications/{id}", s.limited(s.medicationH.Update))
	mux.HandleFunc("PUT /api/medications/{id}/active", s.limited(s.medicationH.SetActive))
	mux.HandleFunc("POST /api/medications/{id}/logs", s.limited(s.medicationH.LogDose))
	mux.HandleFunc("GET /api/medications/{id}/logs", s.medicationH.Logs)
	mux.HandleFunc("POST /api/medications/{id}/refill", s.limited(s.medicationH.Refill))

	// Emergency alert routes
	mux.HandleFunc("POST /api/recipients/{id}/alerts", s.limited(s.alertH.Raise))
	mux.HandleFunc("GET /api/recipients/{id}/alerts", s.alertH.Active)
	mux.HandleFunc("POST /api/alerts/{id}/resolve", s.limited(s.alertH.Resolve))

	// Care-file export
	mux.HandleFunc("POST /api/recipients/{id}/export", s.limited(s.exportH.Run))

	// Push notification routes
	if s.pushH != nil {
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
		mux.HandleFunc("PUT /api/push/preferences", s.pushH.UpdatePreferences)
	}

	// WebSocket live sync
	membership := func(familyID, userID int64) (bool, error) {
		m, err := s.familyStore.GetMembership(familyID, userID)
		if err != nil {
			return false, err
		}
		return m != nil && m.IsActive, nil
	}
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, func(r *http.Request) int64 {
		return auth.UserID(r.Context())
	}, membership, s.logger.With("component", "websocket")))
}
