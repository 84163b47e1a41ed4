// Пакет server — HTTP-сервер BlockEvidence с graceful shutdown.
// Без TLS: TLS termination выполняется на reverse proxy.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bigkaa/blockevidence/internal/api/handlers"
	"github.com/bigkaa/blockevidence/internal/api/middleware"
	"github.com/bigkaa/blockevidence/internal/api/openapi"
	"github.com/bigkaa/blockevidence/internal/config"
	"github.com/bigkaa/blockevidence/internal/domain/rbac"
)

// Options — зависимости маршрутизатора.
type Options struct {
	// JWTAuth — аутентификация защищённых маршрутов (обязательна).
	JWTAuth *middleware.JWTAuth
	// Validator — проверка запросов по OpenAPI-контракту (nil — отключена).
	Validator *openapi.Validator
	// LoginLimiter — лимит попыток входа на IP (nil — без лимита).
	LoginLimiter *middleware.RateLimiter
	// VerifyLimiter — лимит публичной верификации на IP (nil — без лимита).
	VerifyLimiter *middleware.RateLimiter
	// TrustProxy — брать IP клиента из X-Forwarded-For/X-Real-IP.
	// Включать только за обратным прокси, иначе ключ лимита подделывается.
	TrustProxy bool
}

// Server — HTTP-сервер BlockEvidence.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с маршрутами и middleware.
func New(cfg *config.Config, logger *slog.Logger, h *handlers.APIHandler, opts Options) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(logger, h, opts),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты API.
// Health, metrics и JWKS доступны без аутентификации и вне /api/v1.
func NewRouter(logger *slog.Logger, h *handlers.APIHandler, opts Options) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(chimw.RequestID)
	if opts.TrustProxy {
		router.Use(chimw.RealIP)
	}
	router.Use(chimw.Recoverer)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)
	router.Get("/.well-known/jwks.json", h.JWKS)

	limited := func(r chi.Router, l *middleware.RateLimiter) {
		if l != nil {
			r.Use(l.Middleware())
		}
	}
	validated := func(r chi.Router) {
		if opts.Validator != nil {
			r.Use(opts.Validator.Middleware())
		}
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/openapi.yaml", openapi.Handler())

		// Публичные маршруты
		r.Group(func(r chi.Router) {
			validated(r)
			r.Post("/auth/register", h.Register)
		})
		r.Group(func(r chi.Router) {
			limited(r, opts.LoginLimiter)
			validated(r)
			r.Post("/auth/login", h.Login)
		})
		r.Group(func(r chi.Router) {
			limited(r, opts.VerifyLimiter)
			validated(r)
			r.Get("/verify/{hash}", h.VerifyHash)
		})

		// Защищённые маршруты
		r.Group(func(r chi.Router) {
			r.Use(opts.JWTAuth.Middleware())
			validated(r)

			registerEvidence := middleware.RequirePermission(rbac.PermRegisterEvidence)
			manageBoxes := middleware.RequirePermission(rbac.PermManageCrimeBoxes)

			r.Get("/auth/me", h.Me)
			r.Get("/users", h.ListUsers)

			r.Route("/cases", func(r chi.Router) {
				r.Get("/", h.ListCases)
				r.With(registerEvidence).Post("/", h.CreateCase)

				r.Route("/{id}", func(r chi.Router) {
					r.Use(middleware.UUIDParam("id", "Case not found"))
					r.Get("/", h.GetCase)
					r.With(registerEvidence).Put("/", h.UpdateCase)
					r.With(registerEvidence).Post("/boxes", h.LinkCrimeBox)
				})
			})

			r.Route("/crime-boxes", func(r chi.Router) {
				r.Get("/", h.ListCrimeBoxes)
				r.With(manageBoxes).Post("/", h.CreateCrimeBox)
				r.Post("/join", h.JoinCrimeBox)
			})

			r.Route("/evidence", func(r chi.Router) {
				r.Get("/", h.ListEvidence)
				r.With(registerEvidence).Post("/", h.CreateEvidence)

				r.Route("/{id}", func(r chi.Router) {
					r.Use(middleware.UUIDParam("id", "Evidence not found"))

					r.Get("/", h.GetEvidence)
					r.With(registerEvidence).Post("/files", h.UploadEvidenceFile)
					r.With(middleware.UUIDParam("fileId", "File not found")).
						Get("/files/{fileId}/download", h.DownloadEvidenceFile)
					r.Get("/qr", h.EvidenceQR)
					r.Get("/custody-report", h.CustodyReport)

					r.Get("/comments", h.ListComments)
					r.Post("/comments", h.AddComment)
					r.With(middleware.UUIDParam("commentId", "Comment not found")).
						Delete("/comments/{commentId}", h.DeleteComment)

					r.Get("/lab-results", h.ListLabResults)
					r.Post("/lab-results", h.SubmitLabResult)

					r.Get("/requests", h.ListAccessRequests)
					r.Post("/requests", h.CreateAccessRequest)
					r.With(middleware.UUIDParam("requestId", "Access request not found")).
						Put("/requests/{requestId}", h.ReviewAccessRequest)

					r.Put("/retention", h.SetRetention)
					r.Get("/rbac", h.GetAllowedRoles)
					r.Put("/rbac", h.SetAllowedRoles)
				})
			})

			r.Route("/custody", func(r chi.Router) {
				r.With(middleware.UUIDParam("id", "Evidence not found")).
					Post("/evidence/{id}/transfer", h.RequestTransfer)
				r.Get("/pending", h.ListPendingTransfers)

				r.Route("/events/{eventId}", func(r chi.Router) {
					r.Use(middleware.UUIDParam("eventId", "Transfer not found"))
					r.Put("/accept", h.AcceptTransfer)
					r.Put("/reject", h.RejectTransfer)
				})
			})

			r.Get("/notifications", h.ListNotifications)
			r.Put("/notifications/read-all", h.MarkAllNotificationsRead)
			r.With(middleware.UUIDParam("id", "Notification not found")).
				Put("/notifications/{id}/read", h.MarkNotificationRead)

			r.Get("/activity", h.ListActivity)
			r.Get("/stats", h.GetStats)
		})
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. После этого выполняется graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
		return nil
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
