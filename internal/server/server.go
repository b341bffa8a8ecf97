// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"time"

	"vibefeed/internal/config"
	"vibefeed/internal/featureflags"
	"vibefeed/internal/middleware"
	"vibefeed/internal/models"
	"vibefeed/internal/notifications"
	"vibefeed/internal/repository"
	"vibefeed/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	verifier       middleware.IdentityVerifier
	limiter        *middleware.Limiter
	featureFlags   *featureflags.Set

	userRepo    repository.UserRepository
	postRepo    repository.PostRepository
	commentRepo repository.CommentRepository
	chatRepo    repository.ChatRepository

	hub    *notifications.Hub
	trends *service.TrendWorker

	postService       *service.PostService
	engagementService *service.EngagementService
	commentService    *service.CommentService
	chatService       *service.ChatService
}

// Option customises a Server built by NewServerWithDeps.
type Option func(*Server)

// WithChatRepository replaces the SQL chat log, e.g. with the Mongo one.
func WithChatRepository(repo repository.ChatRepository) Option {
	return func(s *Server) { s.chatRepo = repo }
}

// WithIdentityVerifier replaces the JWT verifier.
func WithIdentityVerifier(v middleware.IdentityVerifier) Option {
	return func(s *Server) { s.verifier = v }
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil; realtime events then stay in this process and the
// trending cache is skipped.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if db == nil {
		return nil, errors.New("database is required")
	}

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("vibefeed-api"),
		limiter:        middleware.NewLimiter(redisClient, cfg.Env),
		featureFlags:   featureflags.Parse(cfg.FeatureFlags),
		userRepo:       repository.NewUserRepository(db),
		postRepo:       repository.NewPostRepository(db),
		commentRepo:    repository.NewCommentRepository(db),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.chatRepo == nil {
		s.chatRepo = repository.NewChatRepository(db)
	}
	if s.verifier == nil {
		s.verifier = middleware.NewJWTVerifier(cfg.JWTSecret)
	}

	s.hub = notifications.NewHub(notifications.HubConfig{
		Redis:        redisClient,
		Users:        s.userRepo,
		OfflineGrace: cfg.PresenceOfflineGrace,
	})
	s.trends = service.NewTrendWorker(s.postRepo, redisClient, cfg.TrendRecomputeInterval, cfg.TrendWindow())

	s.postService = service.NewPostService(s.postRepo, redisClient, s.hub, cfg.TrendWindow())
	s.engagementService = service.NewEngagementService(s.postRepo, s.commentRepo, s.hub, s.trends, cfg.ToggleMaxAttempts)
	s.commentService = service.NewCommentService(s.commentRepo, s.postRepo, s.hub, s.trends, cfg.ToggleMaxAttempts)
	s.chatService = service.NewChatService(s.chatRepo, s.hub)

	return s, nil
}

// Hub is the realtime hub; its bus and presence tracker run under the supervisor.
func (s *Server) Hub() *notifications.Hub { return s.hub }

// TrendWorker is the background trend recompute loop.
func (s *Server) TrendWorker() *service.TrendWorker { return s.trends }

// App builds the fiber application on first use.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName: "vibefeed",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", "error", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before anything that can short-circuit so error responses
	// still carry the headers.
	app.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	auth := middleware.AuthRequired(s.verifier)

	// Specific /posts routes before generic /:id
	posts := api.Group("/posts")
	posts.Get("/trending", s.GetTrendingPosts)
	posts.Get("/:id/comments", s.GetComments)
	posts.Get("/:id", s.GetPost)
	posts.Post("/", auth, s.CreatePost)
	posts.Post("/:id/like", auth, s.LikePost)
	posts.Post("/:id/share", auth, s.SharePost)
	posts.Post("/:id/view", s.RecordView)
	posts.Post("/:id/comments", auth, s.CreateComment)
	posts.Post("/:id/comments/recount", auth, s.RecountComments)

	comments := api.Group("/comments", auth)
	comments.Post("/:id/like", s.LikeComment)
	comments.Delete("/:id", s.DeleteComment)

	chats := api.Group("/chats", auth)
	chats.Get("/:chatId/messages", s.GetChatMessages)
	chats.Post("/:chatId/messages",
		s.limiter.Handler(sendMessageResource, sendMessageLimit, sendMessageWindow, middleware.FailOpen),
		s.SendChatMessage)

	users := api.Group("/users", auth)
	users.Get("/online", s.GetOnlineUsers)

	api.Get("/feature-flags", auth, s.GetFeatureFlags)

	api.Get("/ws", s.WebsocketUpgrade(), s.WebsocketHandler())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	// Redis only carries cross-process fan-out and caches; without it this
	// process still serves correctly on its own.
	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	} else if redisStatus != "healthy" {
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"connections": s.hub.Registry().ConnectionCount(),
		"time":        time.Now(),
	})
}

// String names the HTTP service in supervisor logs.
func (s *Server) String() string { return "http server" }

// Serve listens until ctx is cancelled, then closes realtime connections and
// drains in-flight requests.
func (s *Server) Serve(ctx context.Context) error {
	app := s.App()

	errCh := make(chan error, 1)
	go func() {
		middleware.Logger.Info("server starting", "port", s.config.Port)
		errCh <- app.Listen(":" + s.config.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.hub.Shutdown(shutdownCtx); err != nil {
		middleware.Logger.Error("error shutting down realtime hub", "error", err)
	}
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		middleware.Logger.Error("error shutting down HTTP server", "error", err)
	}
	return ctx.Err()
}
