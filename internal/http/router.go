// Package httpapi assembles the Gin engine: the middleware chain, the
// fallbacks, docs and media routes, and the social API handlers built on
// top of the services. Everything it needs arrives through Deps and
// config.Config, so tests can build a full router over an in-memory DB.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-social-backend/docs" // swagger spec registration
	"github.com/tbourn/go-social-backend/internal/config"
	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/http/handlers"
	"github.com/tbourn/go-social-backend/internal/http/middleware"
	"github.com/tbourn/go-social-backend/internal/media"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/services"
)

// conversationRepoShim adapts the repository free functions to the
// services.ConversationRepo interface expected by the MessagingService.
type conversationRepoShim struct{}

// CreateConversation proxies repo.CreateConversation.
func (conversationRepoShim) CreateConversation(ctx context.Context, db *gorm.DB, participants ...string) (*domain.Conversation, error) {
	return repo.CreateConversation(ctx, db, participants...)
}

// FindDirectConversation proxies repo.FindDirectConversation.
func (conversationRepoShim) FindDirectConversation(ctx context.Context, db *gorm.DB, a, b string) (*domain.Conversation, error) {
	return repo.FindDirectConversation(ctx, db, a, b)
}

// GetConversation proxies repo.GetConversation.
func (conversationRepoShim) GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	return repo.GetConversation(ctx, db, id)
}

// ListConversationsForUser proxies repo.ListConversationsForUser.
func (conversationRepoShim) ListConversationsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Conversation, error) {
	return repo.ListConversationsForUser(ctx, db, userID)
}

// IsParticipant proxies repo.IsParticipant.
func (conversationRepoShim) IsParticipant(ctx context.Context, db *gorm.DB, id, userID string) (bool, error) {
	return repo.IsParticipant(ctx, db, id, userID)
}

// Deps are the process-wide collaborators the router hands to services.
type Deps struct {
	DB *gorm.DB

	// Bus carries change events. A fresh bus is created when nil.
	Bus *realtime.Bus

	// Media stores uploads. Nil disables multipart uploads (503 media_disabled).
	Media media.Store
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), identity,
// idempotency and rate limiting, CORS and security headers, health, metrics
// and docs endpoints, and then mounts the versioned public API under
// cfg.API.BasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Identity: resolve X-User-ID before anything keys on the user
//  4. RedactingLogger: structured logs with PII scrubbing
//  5. Recovery: capture panics after logger
//  6. Body size limiter (uploads get their own cap)
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS, security headers and compression
//
// The returned Versions must be closed by the caller on shutdown.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) *realtime.Versions {
	r.HandleMethodNotAllowed = true
	db := deps.DB

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Caller identity
	r.Use(middleware.Identity())

	// 4) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 5) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 6) Body size limits
	r.Use(limitBodyFor(cfg.API.MaxBodyBytes, uploadCap(cfg)))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, userID, resourceID, key string, now time.Time) (bool, error) {
			rec, err := repo.FindIdempotent(ctx, db, repo.IdemKey{UserID: userID, ResourceID: resourceID, Key: key}, now)
			if errors.Is(err, repo.ErrNotFound) {
				return false, nil
			}
			return rec != nil, err
		},
	))

	// 9) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, middleware.KeyByUserOrIP(),
		middleware.WithWriteCost(cfg.RateLimit.WriteCost))
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderUserID, middleware.HeaderIdempotencyKey, "If-None-Match"}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After", "Idempotency-Replayed"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		PrivateForUsers: true,
		EnablePolicy:    true,
	}))

	// Compress JSON responses; promhttp negotiates its own encoding.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/media"})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.API.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if strings.EqualFold(cfg.Media.Backend, "local") && cfg.Media.Dir != "" {
		r.Static("/media", cfg.Media.Dir)
	}

	// Dependency injection: services ← repo/db/bus/media
	bus := deps.Bus
	if bus == nil {
		bus = realtime.NewBus()
	}
	versions := realtime.NewVersions(bus)
	if cfg.Realtime.PollInterval > 0 {
		versions.Watch(cfg.Realtime.PollInterval, storeMarks(db))
	}

	graphSvc := services.NewGraphService(db, bus)
	feedSvc := services.NewFeedService(db, graphSvc)
	if cfg.Feed.ExploreWindow > 0 {
		feedSvc.ExploreWindow = cfg.Feed.ExploreWindow
	}
	storySvc := services.NewStoryService(db, bus, deps.Media)
	if cfg.Stories.TTL > 0 {
		storySvc.TTL = cfg.Stories.TTL
	}

	h := handlers.New(handlers.Services{
		Feed:          feedSvc,
		Graph:         graphSvc,
		Posts:         services.NewPostService(db, bus, deps.Media),
		Engagement:    services.NewEngagementService(db, bus),
		Stories:       storySvc,
		Profiles:      services.NewProfileService(db, bus),
		Notifications: services.NewNotificationService(db, bus),
		Messaging:     services.NewMessagingService(db, conversationRepoShim{}, bus),
	}, handlers.Options{
		DB:             db,
		Versions:       versions,
		IdempotencyTTL: cfg.API.IdempotencyTTL,
		MaxUploadBytes: cfg.Media.MaxUploadBytes,
	})

	// Public API
	h.Register(groupWithPrefix(r, cfg.API.BasePath))
	return versions
}

type markSource struct {
	model  any
	column string
}

// Tables fingerprinted for each ETag domain.
var (
	contentMarks = []markSource{
		{&domain.Post{}, "created_at"},
		{&domain.Like{}, "created_at"},
		{&domain.Comment{}, "created_at"},
		{&domain.Profile{}, "updated_at"},
	}
	storyMarks  = []markSource{{&domain.Story{}, "created_at"}, {&domain.StoryView{}, "viewed_at"}}
	followMarks = []markSource{{&domain.Follow{}, "created_at"}}
	notifyMarks = []markSource{{&domain.Notification{}, "created_at"}}
)

func readMarks(ctx context.Context, db *gorm.DB, srcs []markSource) (string, error) {
	parts := make([]string, 0, len(srcs))
	for _, src := range srcs {
		m, err := repo.TableMark(ctx, db, src.model, src.column)
		if err != nil {
			return "", err
		}
		parts = append(parts, m)
	}
	return strings.Join(parts, "|"), nil
}

// storeMarks reads the fingerprints Versions.Watch compares between ticks.
// Notification marks carry the global unread count so mark-read shows up.
func storeMarks(db *gorm.DB) func(context.Context) (realtime.Marks, error) {
	return func(ctx context.Context) (realtime.Marks, error) {
		var (
			m   realtime.Marks
			err error
		)
		if m.Content, err = readMarks(ctx, db, contentMarks); err != nil {
			return m, err
		}
		if m.Stories, err = readMarks(ctx, db, storyMarks); err != nil {
			return m, err
		}
		if m.Follows, err = readMarks(ctx, db, followMarks); err != nil {
			return m, err
		}
		if m.Notifications, err = readMarks(ctx, db, notifyMarks); err != nil {
			return m, err
		}
		unread, err := repo.CountAllUnread(ctx, db)
		if err != nil {
			return m, err
		}
		m.Notifications += "/" + strconv.FormatInt(unread, 10)
		return m, nil
	}
}

// uploadCap is the body limit for multipart requests: the file limit plus
// room for the other form fields.
func uploadCap(cfg config.Config) int64 {
	if cfg.Media.MaxUploadBytes <= 0 {
		return 0
	}
	return cfg.Media.MaxUploadBytes + cfg.API.MaxBodyBytes
}

// limitBodyFor caps JSON bodies at maxBytes and multipart bodies at
// maxUpload. A non-positive cap disables that limit.
func limitBodyFor(maxBytes, maxUpload int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := maxBytes
		if strings.HasPrefix(c.ContentType(), "multipart/") {
			limit = maxUpload
		}
		if limit > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
