package router // package router registers the HTTP routes of the API

import (
	"database/sql"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/iliyamo/room-settlement/internal/config"
	"github.com/iliyamo/room-settlement/internal/handler"
	"github.com/iliyamo/room-settlement/internal/middleware"
)

// Handlers groups every handler the router mounts.
type Handlers struct {
	Auth         *handler.AuthHandler
	Rooms        *handler.RoomHandler
	Participants *handler.ParticipantHandler
	Payments     *handler.PaymentHandler
	Profile      *handler.ProfileHandler
	Webhook      *handler.WebhookHandler
	Events       *handler.EventsHandler
}

// Options carries what the middleware needs.  A nil Redis client turns
// the cache off and moves rate limiting in process.
type Options struct {
	JWTSecret string
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	DB        *sql.DB
}

// RegisterRoutes registers unauthenticated health checks.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health)
	if db != nil {
		e.GET("/readyz", handler.Ready(db))
	}
}

// RegisterAuth registers account routes.  Register, login, refresh and
// logout need no access token; /v1/me does.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, protected *echo.Group) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	g.POST("/logout", a.Logout)
	e.POST("/v1/logout", a.Logout)

	protected.GET("/me", a.Me)
}

// RegisterWebhook mounts the provider callback outside JWT auth.  Every
// method is routed so the handler can answer 405 itself.
func RegisterWebhook(e *echo.Echo, w *handler.WebhookHandler, mw ...echo.MiddlewareFunc) {
	e.Any("/v1/webhooks/xumm", w.Handle, mw...)
}

// RegisterRooms mounts rooms, participants, payments and profile routes on
// the protected group.  Room reads go through the room-scoped cache.
func RegisterRooms(g *echo.Group, h Handlers, cache echo.MiddlewareFunc) {
	g.GET("/rooms", h.Rooms.ListMine)
	g.POST("/rooms", h.Rooms.Create)

	r := g.Group("/rooms/:id")
	r.GET("", h.Rooms.Get, cache)
	r.PATCH("", h.Rooms.Update)
	r.DELETE("", h.Rooms.Delete)
	r.POST("/open", h.Rooms.Open)
	r.POST("/close", h.Rooms.Close)
	r.POST("/ready", h.Rooms.Ready)
	r.POST("/settle", h.Rooms.Settle)

	r.POST("/participants", h.Participants.Add)
	r.GET("/participants/:pid", h.Participants.Get, cache)
	r.PATCH("/participants/:pid", h.Participants.Update)
	r.DELETE("/participants/:pid", h.Participants.Remove)
	r.POST("/participants/:pid/payments", h.Payments.Issue)

	g.GET("/participants/:pid/payments/completed", h.Participants.CompletedPayment)
	g.GET("/payments/:id", h.Payments.Status)

	g.GET("/profile", h.Profile.Get)
	g.PATCH("/profile", h.Profile.Rename)
	g.POST("/profile/wallet/sign-request", h.Profile.LinkWallet)

	g.GET("/events", h.Events.Subscribe)
}

// New builds the complete route table.
func New(e *echo.Echo, h Handlers, opt Options) {
	RegisterRoutes(e, opt.DB)

	webhookLimit := opt.RateLimit
	webhookLimit.Capacity = opt.RateLimit.WebhookCapacity
	webhookLimit.KeyStrategy = "ip"
	webhookLimit.Prefix = opt.RateLimit.Prefix + ":webhook"
	RegisterWebhook(e, h.Webhook, middleware.NewTokenBucket(webhookLimit, opt.Redis))

	protected := e.Group("/v1",
		middleware.JWTAuth(opt.JWTSecret),
		middleware.NewTokenBucket(opt.RateLimit, opt.Redis),
	)
	RegisterAuth(e, h.Auth, protected)
	RegisterRooms(protected, h, middleware.NewRoomCache(opt.Cache, opt.Redis, "id"))

	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found", "code": "NOT_FOUND"})
	})
}

// WithCORS wraps the echo instance for browser clients.  No origins means
// any origin, in which case credentials are not allowed.
func WithCORS(h http.Handler, origins []string) http.Handler {
	opts := cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         600,
	}
	if len(origins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	} else {
		opts.AllowCredentials = true
	}
	return cors.New(opts).Handler(h)
}
