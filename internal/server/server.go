// Package server implements the HTTP gateway in front of the domain core.
//
// Security:
//   - Bearer session tokens validated against the identity provider
//   - The permission gate inside the store re-checks every mutation
//   - Request body size limits (default 1 MB)
//   - TLS expected via reverse proxy (not handled here)
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jkaninda/okapi"

	"github.com/meistericham/pcrtrack/internal/config"
	"github.com/meistericham/pcrtrack/internal/observability"
	"github.com/meistericham/pcrtrack/internal/profile"
	"github.com/meistericham/pcrtrack/internal/ratelimit"
	"github.com/meistericham/pcrtrack/internal/session"
	"github.com/meistericham/pcrtrack/internal/store"
)

const defaultMaxRequestSize = 1 << 20 // 1 MB

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// Config configures the HTTP gateway.
type Config struct {
	ListenAddr string
	EnableDocs bool

	// BootstrapEmail is granted super_admin by the ensure-profile endpoint.
	BootstrapEmail string
	// AdminSharedSecret additionally authorizes the admin password reset.
	AdminSharedSecret string

	// APIRatePerMinute throttles authenticated traffic per user. 0 disables.
	APIRatePerMinute int
	// SignInRatePerMinute throttles sign-in attempts per account. 0 disables.
	SignInRatePerMinute int
}

// Gateway is the HTTP gateway.
type Gateway struct {
	config   Config
	store    *store.Store
	provider session.Provider
	resolver *session.Resolver
	syncer   *profile.Synchronizer
	metrics  *observability.MetricsCollector
	logger   *slog.Logger
	server   *http.Server
	okapi    *okapi.Okapi
	group    *okapi.Group

	apiLimiter    *ratelimit.Limiter
	signinLimiter *ratelimit.Limiter

	ready func(ctx context.Context) error
}

// NewGateway creates an HTTP gateway.
func NewGateway(cfg Config, st *store.Store, provider session.Provider, resolver *session.Resolver, syncer *profile.Synchronizer, metrics *observability.MetricsCollector, logger *slog.Logger) *Gateway {
	return &Gateway{
		config:        cfg,
		store:         st,
		provider:      provider,
		resolver:      resolver,
		syncer:        syncer,
		metrics:       metrics,
		logger:        logger,
		okapi:         okapi.New(okapi.WithMaxMultipartMemory(defaultMaxRequestSize)),
		apiLimiter:    ratelimit.New(ratelimit.Config{PerMinute: cfg.APIRatePerMinute}),
		signinLimiter: ratelimit.New(ratelimit.Config{PerMinute: cfg.SignInRatePerMinute}),
	}
}

// FromConfig builds the gateway Config from the application config.
func FromConfig(cfg *config.Config) Config {
	return Config{
		ListenAddr:          cfg.ListenAddr(),
		BootstrapEmail:      cfg.Identity.BootstrapEmail,
		AdminSharedSecret:   cfg.Identity.AdminSharedSecret,
		APIRatePerMinute:    cfg.APIRatePerMinute(),
		SignInRatePerMinute: cfg.SignInRatePerMinute(),
	}
}

// WithReadiness attaches a dependency check for /readyz.
func (g *Gateway) WithReadiness(check func(ctx context.Context) error) *Gateway {
	g.ready = check
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is
// canceled.
func (g *Gateway) Start(ctx context.Context) error {
	if g.metrics != nil {
		g.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(g.metrics, next)
		})
	}

	g.registerRoutes()

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http gateway starting", slog.String("addr", g.config.ListenAddr))
	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(_ context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http gateway stopping")
	return g.okapi.Shutdown(g.server)
}

func (g *Gateway) registerRoutes() {
	// Public auth endpoints.
	g.okapi.Post("/v1/auth/signin", g.handleSignIn,
		okapi.DocSummary("Sign in with email and password"),
		okapi.DocTags("Auth"),
		okapi.DocRequestBody(SignInRequest{}),
		okapi.DocResponse(SignInResponse{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
	)
	g.okapi.Post("/v1/auth/password-reset", g.handlePasswordResetRequest,
		okapi.DocSummary("Request a password reset email"),
		okapi.DocTags("Auth"),
		okapi.DocRequestBody(PasswordResetRequest{}),
		okapi.DocResponse(map[string]string{}),
	)

	// Authenticated /v1 group.
	g.group = g.okapi.Group("/v1", g.authenticate)

	g.group.Post("/auth/signout", g.handleSignOut,
		okapi.DocSummary("Sign out the current session"),
		okapi.DocTags("Auth"),
		okapi.DocResponse(map[string]string{}),
	)
	g.group.Put("/auth/password", g.handlePasswordUpdate,
		okapi.DocSummary("Change the caller's password"),
		okapi.DocTags("Auth"),
		okapi.DocRequestBody(PasswordUpdateRequest{}),
		okapi.DocResponse(map[string]string{}),
	)
	g.group.Get("/me", g.handleMe,
		okapi.DocSummary("Get the caller's profile and role"),
		okapi.DocTags("Auth"),
		okapi.DocResponse(MeResponse{}),
	)

	// Users.
	g.group.Get("/users", g.handleUserList,
		okapi.DocSummary("List user profiles"),
		okapi.DocTags("Users"),
	)
	g.group.Put("/users/{id}", g.handleUserUpdate,
		okapi.DocSummary("Update a user profile"),
		okapi.DocTags("Users"),
		okapi.DocPathParam("id", "string", "User ID"),
		okapi.DocResponse(http.StatusForbidden, ErrorBody{}),
	)
	g.group.Delete("/users/{id}", g.handleUserDelete,
		okapi.DocSummary("Delete a user profile"),
		okapi.DocTags("Users"),
		okapi.DocPathParam("id", "string", "User ID"),
		okapi.DocResponse(http.StatusForbidden, ErrorBody{}),
	)

	// Divisions and units.
	g.group.Get("/divisions", g.handleDivisionList,
		okapi.DocSummary("List divisions"),
		okapi.DocTags("Org"),
	)
	g.group.Post("/divisions", g.handleDivisionCreate,
		okapi.DocSummary("Create a division"),
		okapi.DocTags("Org"),
	)
	g.group.Put("/divisions/{id}", g.handleDivisionRename,
		okapi.DocSummary("Rename a division"),
		okapi.DocTags("Org"),
		okapi.DocPathParam("id", "string", "Division ID"),
	)
	g.group.Delete("/divisions/{id}", g.handleDivisionDelete,
		okapi.DocSummary("Delete a division and its units"),
		okapi.DocTags("Org"),
		okapi.DocPathParam("id", "string", "Division ID"),
	)
	g.group.Get("/units", g.handleUnitList,
		okapi.DocSummary("List units"),
		okapi.DocTags("Org"),
	)
	g.group.Post("/units", g.handleUnitCreate,
		okapi.DocSummary("Create a unit"),
		okapi.DocTags("Org"),
	)
	g.group.Put("/units/{id}", g.handleUnitRename,
		okapi.DocSummary("Rename a unit"),
		okapi.DocTags("Org"),
		okapi.DocPathParam("id", "string", "Unit ID"),
	)
	g.group.Delete("/units/{id}", g.handleUnitDelete,
		okapi.DocSummary("Delete a unit"),
		okapi.DocTags("Org"),
		okapi.DocPathParam("id", "string", "Unit ID"),
	)

	// Projects.
	g.group.Get("/projects", g.handleProjectList,
		okapi.DocSummary("List projects"),
		okapi.DocTags("Projects"),
	)
	g.group.Post("/projects", g.handleProjectCreate,
		okapi.DocSummary("Create a project"),
		okapi.DocTags("Projects"),
	)
	g.group.Put("/projects/{id}", g.handleProjectUpdate,
		okapi.DocSummary("Update a project"),
		okapi.DocTags("Projects"),
		okapi.DocPathParam("id", "string", "Project ID"),
	)
	g.group.Delete("/projects/{id}", g.handleProjectDelete,
		okapi.DocSummary("Delete a project and its entries"),
		okapi.DocTags("Projects"),
		okapi.DocPathParam("id", "string", "Project ID"),
		okapi.DocResponse(http.StatusForbidden, ErrorBody{}),
	)

	// Budget entries.
	g.group.Get("/budget-entries", g.handleEntryList,
		okapi.DocSummary("List budget entries"),
		okapi.DocTags("Budget"),
	)
	g.group.Post("/budget-entries", g.handleEntryCreate,
		okapi.DocSummary("Add a budget entry"),
		okapi.DocTags("Budget"),
	)
	g.group.Put("/budget-entries/{id}", g.handleEntryUpdate,
		okapi.DocSummary("Update a budget entry"),
		okapi.DocTags("Budget"),
		okapi.DocPathParam("id", "string", "Entry ID"),
	)
	g.group.Delete("/budget-entries/{id}", g.handleEntryDelete,
		okapi.DocSummary("Delete a budget entry"),
		okapi.DocTags("Budget"),
		okapi.DocPathParam("id", "string", "Entry ID"),
	)

	// Budget codes.
	g.group.Get("/budget-codes", g.handleCodeList,
		okapi.DocSummary("List budget codes"),
		okapi.DocTags("Budget"),
	)
	g.group.Post("/budget-codes", g.handleCodeCreate,
		okapi.DocSummary("Create a budget code"),
		okapi.DocTags("Budget"),
	)
	g.group.Put("/budget-codes/{id}", g.handleCodeUpdate,
		okapi.DocSummary("Update a budget code"),
		okapi.DocTags("Budget"),
		okapi.DocPathParam("id", "string", "Budget code ID"),
	)
	g.group.Post("/budget-codes/{id}/toggle", g.handleCodeToggle,
		okapi.DocSummary("Flip a budget code between active and inactive"),
		okapi.DocTags("Budget"),
		okapi.DocPathParam("id", "string", "Budget code ID"),
	)
	g.group.Delete("/budget-codes/{id}", g.handleCodeDelete,
		okapi.DocSummary("Delete a budget code"),
		okapi.DocTags("Budget"),
		okapi.DocPathParam("id", "string", "Budget code ID"),
	)

	// Notifications.
	g.group.Get("/notifications", g.handleNotificationList,
		okapi.DocSummary("List the caller's notifications, newest first"),
		okapi.DocTags("Notifications"),
	)
	g.group.Get("/notifications/unread-count", g.handleNotificationUnreadCount,
		okapi.DocSummary("Count the caller's unread notifications"),
		okapi.DocTags("Notifications"),
	)
	g.group.Post("/notifications/{id}/read", g.handleNotificationMarkRead,
		okapi.DocSummary("Mark a notification read"),
		okapi.DocTags("Notifications"),
		okapi.DocPathParam("id", "string", "Notification ID"),
	)
	g.group.Post("/notifications/read-all", g.handleNotificationMarkAllRead,
		okapi.DocSummary("Mark all of the caller's notifications read"),
		okapi.DocTags("Notifications"),
	)
	g.group.Delete("/notifications/{id}", g.handleNotificationDelete,
		okapi.DocSummary("Delete a notification"),
		okapi.DocTags("Notifications"),
		okapi.DocPathParam("id", "string", "Notification ID"),
	)

	// Settings.
	g.group.Get("/settings", g.handleSettingsGet,
		okapi.DocSummary("Get application settings"),
		okapi.DocTags("Settings"),
	)
	g.group.Put("/settings", g.handleSettingsUpdate,
		okapi.DocSummary("Update application settings"),
		okapi.DocTags("Settings"),
	)

	// Admin channel.
	g.group.Post("/admin/invite", g.handleAdminInvite,
		okapi.DocSummary("Invite a new user (super admin only)"),
		okapi.DocTags("Admin"),
		okapi.DocRequestBody(InviteRequest{}),
		okapi.DocResponse(http.StatusForbidden, ErrorBody{}),
	)
	// Ensure-profile exists to create the missing profile row, so it cannot
	// sit behind middleware whose resolver rejects profile-less callers. A
	// valid token is all it requires; the handler parses it itself.
	g.okapi.Post("/v1/admin/ensure-profile", g.handleEnsureProfile,
		okapi.DocSummary("Idempotently create the caller's profile"),
		okapi.DocTags("Admin"),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
	)
	// Reset accepts either a super admin session or the shared secret, so it
	// sits outside the authenticated group.
	g.okapi.Post("/v1/admin/reset-password", g.handleAdminResetPassword,
		okapi.DocSummary("Set a user's password (super admin or shared secret)"),
		okapi.DocTags("Admin"),
		okapi.DocRequestBody(AdminResetRequest{}),
		okapi.DocResponse(http.StatusForbidden, ErrorBody{}),
		okapi.DocResponse(http.StatusGatewayTimeout, ErrorBody{}),
	)

	// Live notification feed.
	g.okapi.HandleStd("GET", "/ws/notifications", http.HandlerFunc(g.handleNotificationFeed))

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)
	if g.metrics != nil {
		g.okapi.HandleStd("GET", "/metrics", promhttp.HandlerFor(g.metrics.Registry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.okapi.WithOpenAPIDocs(okapi.OpenAPI{
			Title:   "pcrtrack",
			Version: "v0.1.0",
		})
	}
}

// authenticate validates the bearer session token, resolves the caller's
// role, and kicks off a best-effort profile sync.
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")

		sess, err := g.provider.ParseSession(c.Context(), token)
		if err != nil {
			return c.AbortUnauthorized("invalid session token")
		}

		if err := g.apiLimiter.Allow(sess.UserID); err != nil {
			if g.metrics != nil {
				g.metrics.RateLimitedTotal.Inc()
			}
			return c.AbortTooManyRequests(err.Error())
		}

		// Profile sync is best-effort and must not block the request.
		go g.syncer.Sync(context.WithoutCancel(c.Context()), sess)

		auth := g.resolver.Resolve(c.Context(), sess)
		if auth.Allowed == nil || !*auth.Allowed {
			return c.AbortUnauthorized("not authorized")
		}

		c.Set("userID", sess.UserID)
		c.Set("userRole", string(auth.Role))
		c.Set("accessToken", token)
		return next(c)
	}
}

func (g *Gateway) actor(c *okapi.Context) store.Actor {
	return store.Actor{
		ID:   c.GetString("userID"),
		Role: roleOf(c),
	}
}

// HealthResponse is the JSON response for the probes.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleLiveness is the Kubernetes liveness probe
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks the storage dependency and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.ready == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}
	if err := g.ready(c.Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, &HealthResponse{Status: "unavailable"})
	}
	return c.OK(&HealthResponse{Status: "ok"})
}
