package app

import (
	"context"
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"

	"github.com/divyanshdhote/server-actions/internal/auth/credentials"
	"github.com/divyanshdhote/server-actions/internal/auth/handler"
	"github.com/divyanshdhote/server-actions/internal/auth/provider"
	"github.com/divyanshdhote/server-actions/internal/auth/provider/google"
	"github.com/divyanshdhote/server-actions/internal/auth/provider/keycloak"
	"github.com/divyanshdhote/server-actions/internal/auth/resolver"
	"github.com/divyanshdhote/server-actions/internal/auth/username"
	"github.com/divyanshdhote/server-actions/internal/config"
	"github.com/divyanshdhote/server-actions/internal/logger"
	"github.com/divyanshdhote/server-actions/internal/middleware"
	"github.com/divyanshdhote/server-actions/internal/session"
	"github.com/divyanshdhote/server-actions/internal/users"
	"github.com/divyanshdhote/server-actions/internal/web"
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	router, err := newRouter(ctx, cfg, infra)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	return router, infra.Close, nil
}

func newRouter(ctx context.Context, cfg config.Config, infra *Infra) (*gin.Engine, error) {

	// ----------------------------
	// Dependencies
	// ----------------------------

	directory := users.NewRepository(infra.DB)

	usernames := username.NewResolver(
		directory,
		username.WithMaxAttempts(cfg.UsernameMaxAttempts),
	)
	identityResolver := resolver.NewDBResolver(directory, usernames, cfg.ProvisioningRetries)

	credentialService := credentials.NewService(infra.DB, directory)

	sessions := session.NewManager(
		session.NewRedisStore(infra.Redis.Client),
		session.Policy{
			TTL:         cfg.SessionTTL,
			UpdateAge:   cfg.SessionUpdateAge,
			AbsoluteTTL: cfg.SessionAbsoluteTTL,
		},
	)

	registry, err := setupProviders(ctx, cfg)
	if err != nil {
		return nil, err
	}

	authHandler, err := handler.NewHandler(
		registry,
		sessions,
		credentialService,
		identityResolver,
		directory,
		handler.Options{
			Cookie: session.CookieOptions{
				Secure:   cfg.CookieSecure,
				SameSite: http.SameSiteLaxMode,
			},
			PostLoginRedirect: cfg.PostLoginRedirect,
		},
	)
	if err != nil {
		return nil, err
	}

	templates, err := web.Templates()
	if err != nil {
		return nil, err
	}

	// ----------------------------
	// Router
	// ----------------------------

	router := newEngine(cfg)
	router.SetHTMLTemplate(templates)

	authHandler.RegisterRoutes(router, rateLimiter(cfg, infra.Redis.Client))

	return router, nil
}

// newEngine builds the router with the global middleware, request
// metrics and the health probe. gin only applies Use to routes added
// afterwards, so the metrics middleware goes in before any route.
func newEngine(cfg config.Config) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.GinZapLogger(logger.L()))
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg)))
	ginprometheus.NewPrometheus("gin").Use(router)

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	return router
}

// setupProviders registers every configured OAuth provider. None being
// configured is valid: email/password sign-in still works.
func setupProviders(ctx context.Context, cfg config.Config) (*provider.Registry, error) {
	var list []provider.OAuthProvider

	if cfg.GoogleEnabled() {
		p, err := google.New(
			ctx,
			cfg.GoogleClientID,
			cfg.GoogleClientSecret,
			cfg.GoogleRedirectURL,
		)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	if cfg.KeycloakEnabled() {
		p, err := keycloak.New(
			ctx,
			cfg.KeycloakIssuer,
			cfg.KeycloakClientID,
			cfg.KeycloakRedirectURL,
			cfg.KeycloakPublicBaseURL,
		)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	registry := provider.NewRegistry(list...)
	logger.Info("oauth providers configured", map[string]any{
		"providers": registry.Names(),
	})
	return registry, nil
}

func corsConfig(cfg config.Config) cors.Config {
	c := cors.DefaultConfig()
	c.AllowOrigins = cfg.AllowedOrigins()
	if len(c.AllowOrigins) == 0 {
		c.AllowOrigins = []string{"http://localhost:" + cfg.AppPort}
	}
	c.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	c.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Accept"}
	c.AllowCredentials = true
	c.MaxAge = 12 * time.Hour
	return c
}

// rateLimiter throttles credential endpoints per client IP. Counters live
// in Redis so the limit holds across replicas.
func rateLimiter(cfg config.Config, client *goredis.Client) gin.HandlerFunc {
	if cfg.RateLimitPerMinute == 0 {
		return nil
	}

	store := ratelimit.RedisStore(&ratelimit.RedisOptions{
		RedisClient: client,
		Rate:        time.Minute,
		Limit:       cfg.RateLimitPerMinute,
	})

	return ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
			logger.Warn("rate limit exceeded", map[string]any{
				"ip":         c.ClientIP(),
				"path":       c.Request.URL.Path,
				"reset_time": info.ResetTime,
			})
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests, try again in " + time.Until(info.ResetTime).Round(time.Second).String(),
			})
		},
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})
}
