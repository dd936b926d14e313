package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/tripreport/backend/internal/cache"
	"github.com/tripreport/backend/internal/config"
	"github.com/tripreport/backend/internal/database"
	"github.com/tripreport/backend/internal/handlers"
	"github.com/tripreport/backend/internal/metrics"
	appMiddleware "github.com/tripreport/backend/internal/middleware"
	"github.com/tripreport/backend/internal/ratelimit"
	"github.com/tripreport/backend/internal/services"
	"github.com/tripreport/backend/internal/storage"
)

type routerDeps struct {
	verifier  appMiddleware.Verifier
	limiter   ratelimit.Limiter
	pages     cache.PageCache
	pageTTL   time.Duration
	reports   *handlers.ReportHandler
	profiles  *handlers.ProfileHandler
	bookmarks *handlers.BookmarkHandler
	messages  *handlers.MessageHandler
	webhooks  *handlers.WebhookHandler // nil when no signing secret is configured
	uploadDir string                   // served under /uploads when set
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	client, db, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return err
	}
	defer client.Disconnect(context.Background())

	files, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	if c, ok := files.(io.Closer); ok {
		defer c.Close()
	}

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		return err
	}

	limiter, pages := newLimiterAndCache(ctx, cfg)

	reportSvc := services.NewMongoReportService(db)
	userSvc := services.NewMongoUserService(db)
	messageSvc := services.NewMongoMessageService(db)
	flagSvc := services.NewMongoUserFlagService(db)
	accountSvc := services.NewMongoAccountService(db, files, pages)
	ensureIndexes(ctx, reportSvc, userSvc, messageSvc, flagSvc)

	deps := services.ReportPipelineDeps{
		Reports:   reportSvc,
		Files:     files,
		Pages:     pages,
		Stats:     userSvc,
		Bookmarks: userSvc,
	}
	if cfg.ModerationEnabled {
		detector, err := services.NewVisionDetector(ctx)
		if err != nil {
			return err
		}
		deps.Moderator = services.NewModerationService(detector, flagSvc)
		log.Println("Image moderation enabled")
	}
	pipeline := services.NewReportPipeline(deps)

	var captcha handlers.CaptchaVerifier
	if cfg.RecaptchaSecret != "" {
		captcha = services.NewRecaptchaVerifier(cfg.RecaptchaSecret, cfg.PublicBaseURL)
	}
	var mailer handlers.MessageNotifier
	if cfg.SendGridAPIKey != "" {
		mailer = services.NewSendGridMailer(cfg.SendGridAPIKey, cfg.MailFromEmail, cfg.PublicBaseURL)
	}

	rd := routerDeps{
		verifier:  verifier,
		limiter:   limiter,
		pages:     pages,
		pageTTL:   cfg.PageCacheTTL,
		reports:   handlers.NewReportHandler(reportSvc, pipeline, cfg.MaxUploadSizeMB),
		profiles:  handlers.NewProfileHandler(userSvc, reportSvc, accountSvc, pages),
		bookmarks: handlers.NewBookmarkHandler(userSvc, reportSvc),
		messages:  handlers.NewMessageHandler(messageSvc, userSvc, reportSvc, captcha, mailer),
	}
	if cfg.WebhookSigningSecret != "" {
		wh, err := handlers.NewSvixVerifier(cfg.WebhookSigningSecret)
		if err != nil {
			return err
		}
		rd.webhooks = handlers.NewWebhookHandler(wh, userSvc, accountSvc)
	} else {
		log.Println("Warning: WEBHOOK_SIGNING_SECRET not set, identity webhook disabled")
	}
	if cfg.StorageProvider == config.StorageDisk {
		rd.uploadDir = cfg.UploadDir
	}

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           newRouter(rd),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🚀 Trip Report API server starting on %s", cfg.ServerAddress)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newVerifier(ctx context.Context, cfg *config.Config) (appMiddleware.Verifier, error) {
	if cfg.AuthProvider == config.AuthJWT {
		return appMiddleware.NewJWTVerifier(cfg.JWTSecret), nil
	}
	v, err := appMiddleware.NewFirebaseVerifier(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsJSON)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// newLimiterAndCache uses Redis when REDIS_URL is reachable and
// per-process state otherwise.
func newLimiterAndCache(ctx context.Context, cfg *config.Config) (ratelimit.Limiter, cache.PageCache) {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Printf("Warning: invalid REDIS_URL, using in-memory limiter and cache: %v", err)
		} else {
			rdb := redis.NewClient(opts)
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = rdb.Ping(pingCtx).Err()
			cancel()
			if err == nil {
				log.Println("Connected to Redis")
				return ratelimit.NewRedisLimiter(rdb), cache.NewRedisPageCache(rdb)
			}
			log.Printf("Warning: Redis unreachable, using in-memory limiter and cache: %v", err)
			rdb.Close()
		}
	}

	limiter := ratelimit.NewMemoryLimiter()
	pages := cache.NewMemoryPageCache()
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				limiter.Sweep(10 * time.Minute)
				if n := pages.Sweep(); n > 0 {
					log.Printf("[PageCache] swept %d expired pages", n)
				}
			}
		}
	}()
	return limiter, pages
}

type indexer interface {
	EnsureIndexes(ctx context.Context) error
}

func ensureIndexes(ctx context.Context, svcs ...indexer) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	for _, s := range svcs {
		if err := s.EnsureIndexes(ctx); err != nil {
			log.Printf("Warning: failed to ensure indexes: %v", err)
		}
	}
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Location", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	// Public pages
	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.OptionalAuth(d.verifier))
		r.Use(appMiddleware.RateLimit(d.limiter, ratelimit.Read))
		r.Use(appMiddleware.PageCache(d.pages, d.pageTTL))

		r.Get("/", d.reports.List)
		r.Get("/reports", d.reports.List)
		r.Get("/reports/featured", d.reports.Featured)
		r.Get("/reports/{id}", d.reports.Get)
		r.Get("/users/{id}", d.profiles.GetPublicProfile)
	})

	// Report submissions
	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.RequireAuth(d.verifier))
		r.Use(appMiddleware.RateLimit(d.limiter, ratelimit.Report))

		r.Post("/reports", d.reports.Create)
		r.Put("/reports/{id}", d.reports.Update)
		r.Delete("/reports/{id}", d.reports.Delete)
	})

	// Account, bookmarks and messages
	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.RequireAuth(d.verifier))
		r.Use(appMiddleware.RateLimit(d.limiter, ratelimit.Standard))

		r.Get("/me", d.profiles.GetMe)
		r.Put("/me", d.profiles.UpdateMe)
		r.Delete("/me", d.profiles.DeleteMe)
		r.Get("/me/bookmarks", d.bookmarks.List)
		r.Post("/reports/{id}/bookmark", d.bookmarks.Add)
		r.Delete("/reports/{id}/bookmark", d.bookmarks.Remove)

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", d.messages.Inbox)
			r.Post("/", d.messages.Send)
			r.Post("/{id}/read", d.messages.MarkRead)
			r.Delete("/{id}", d.messages.Delete)
		})
	})

	if d.webhooks != nil {
		r.Post("/webhooks/identity", d.webhooks.Identity)
	}

	// Serve uploaded files
	if d.uploadDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(d.uploadDir))))
	}

	return r
}
