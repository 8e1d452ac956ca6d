package server

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jkaninda/okapi"

	"github.com/meistericham/pcrtrack/internal/authz"
	"github.com/meistericham/pcrtrack/internal/domain"
	"github.com/meistericham/pcrtrack/internal/session"
	"github.com/meistericham/pcrtrack/internal/store"
)

// --- Auth ---

// SignInRequest is the JSON body for POST /v1/auth/signin.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInResponse is the JSON response after a successful sign-in.
type SignInResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
}

func (g *Gateway) handleSignIn(c *okapi.Context) error {
	var req SignInRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return c.AbortBadRequest("email and password are required")
	}

	// Throttle per account so a guessing run cannot hammer one mailbox.
	account := strings.ToLower(req.Email)
	if err := g.signinLimiter.Allow(account); err != nil {
		if g.metrics != nil {
			g.metrics.RateLimitedTotal.Inc()
		}
		return c.AbortTooManyRequests(err.Error())
	}

	sess, err := g.provider.SignIn(c.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			return c.AbortUnauthorized("invalid email or password")
		}
		g.logger.Error("sign-in failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("sign-in failed")
	}
	g.signinLimiter.Reset(account)

	return c.OK(SignInResponse{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		UserID:       sess.UserID,
		Email:        sess.Email,
	})
}

func (g *Gateway) handleSignOut(c *okapi.Context) error {
	token := c.GetString("accessToken")
	if err := g.provider.SignOut(c.Context(), token); err != nil {
		g.logger.Warn("sign-out failed", slog.String("error", err.Error()))
	}
	return c.OK(okapi.M{"status": "signed out"})
}

// PasswordResetRequest is the JSON body for POST /v1/auth/password-reset.
type PasswordResetRequest struct {
	Email       string `json:"email"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

func (g *Gateway) handlePasswordResetRequest(c *okapi.Context) error {
	var req PasswordResetRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.Email == "" {
		return c.AbortBadRequest("email is required")
	}
	if err := g.provider.RequestPasswordReset(c.Context(), req.Email, req.RedirectURL); err != nil {
		g.logger.Warn("password reset request failed", slog.String("error", err.Error()))
	}
	// Always report success so the endpoint does not reveal which emails
	// have accounts.
	return c.OK(okapi.M{"status": "reset email requested"})
}

// PasswordUpdateRequest is the JSON body for PUT /v1/auth/password.
type PasswordUpdateRequest struct {
	Password string `json:"password"`
}

func (g *Gateway) handlePasswordUpdate(c *okapi.Context) error {
	var req PasswordUpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.Password == "" {
		return c.AbortBadRequest("password is required")
	}
	if err := g.provider.UpdatePassword(c.Context(), c.GetString("accessToken"), req.Password); err != nil {
		g.logger.Error("password update failed",
			slog.String("user_id", c.GetString("userID")),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("password update failed")
	}
	return c.OK(okapi.M{"status": "password updated"})
}

// MeResponse is the JSON response for GET /v1/me.
type MeResponse struct {
	User *domain.User `json:"user,omitempty"`
	Role string       `json:"role"`
}

func (g *Gateway) handleMe(c *okapi.Context) error {
	userID := c.GetString("userID")
	user := g.store.UserByID(userID)
	if user == nil {
		// The profile may have been created by a sync that has not been
		// hydrated yet; fall back to the backend.
		if u, err := g.store.Backend().Users().Get(c.Context(), userID); err == nil {
			user = u
		}
	}
	return c.OK(MeResponse{User: user, Role: c.GetString("userRole")})
}

// --- Users ---

func (g *Gateway) handleUserList(c *okapi.Context) error {
	return c.OK(g.store.Users())
}

func (g *Gateway) handleUserUpdate(c *okapi.Context) error {
	var upd authz.UserUpdate
	if err := c.Bind(&upd); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	user, err := g.store.UpdateUser(c.Context(), g.actor(c), c.Param("id"), upd)
	if err != nil {
		return storeError(c, err)
	}
	return c.OK(user)
}

func (g *Gateway) handleUserDelete(c *okapi.Context) error {
	if err := g.store.DeleteUser(c.Context(), g.actor(c), c.Param("id")); err != nil {
		return storeError(c, err)
	}
	return c.OK(okapi.M{"status": "deleted"})
}

// --- Divisions and units ---

func (g *Gateway) handleDivisionList(c *okapi.Context) error {
	return c.OK(g.store.Divisions())
}

func (g *Gateway) handleDivisionCreate(c *okapi.Context) error {
	var d domain.Division
	if err := c.Bind(&d); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	saved, err := g.store.AddDivision(c.Context(), g.actor(c), d)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(http.StatusCreated, saved)
}

// RenameRequest is the JSON body for division and unit renames.
type RenameRequest struct {
	Name string `json:"name"`
}

func (g *Gateway) handleDivisionRename(c *okapi.Context) error {
	var req RenameRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	saved, err := g.store.RenameDivision(c.Context(), g.actor(c), c.Param("id"), req.Name)
	if err != nil {
		return storeError(c, err)
	}
	return c.OK(saved)
}

func (g *Gateway) handleDivisionDelete(c *okapi.Context) error {
	if err := g.store.DeleteDivision(c.Context(), g.actor(c), c.Param("id")); err != nil {
		return storeError(c, err)
	}
	return c.OK(okapi.M{"status": "deleted"})
}

func (g *Gateway) handleUnitList(c *okapi.Context) error {
	return c.OK(g.store.Units())
}

func (g *Gateway) handleUnitCreate(c *okapi.Context) error {
	var u domain.Unit
	if err := c.Bind(&u); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	saved, err := g.store.AddUnit(c.Context(), g.actor(c), u)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(http.StatusCreated, saved)
}

func (g *Gateway) handleUnitRename(c *okapi.Context) error {
	var req RenameRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	saved, err := g.store.RenameUnit(c.Context(), g.actor(c), c.Param("id"), req.Name)
	if err != nil {
		return storeError(c, err)
	}
	return c.OK(saved)
}

func (g *Gateway) handleUnitDelete(c *okapi.Context) error {
	if err := g.store.DeleteUnit(c.Context(), g.actor(c), c.Param("id")); err != nil {
		return storeError(c, err)
	}
	return c.OK(okapi.M{"status": "deleted"})
}

// --- Projects ---

func (g *Gateway) handleProjectList(c *okapi.Context) error {
	return c.OK(g.store.Projects())
}

func (g *Gateway) handleProjectCreate(c *okapi.Context) error {
	var p domain.Project
	if err := c.Bind(&p); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	saved, err := g.store.AddProject(c.Context(), g.actor(c), p)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(http.StatusCreated, saved)
}

func (g *Gateway) handleProjectUpdate(c *okapi.Context) error {
	var upd store.ProjectUpdate
	if err := c.Bind(&upd); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	saved, err := g.store.UpdateProject(c.Context(), g.actor(c), c.Param("id"), upd)
	if err != nil {
		return storeError(c, err)
	}
	return c.OK(saved)
}

func (g *Gateway) handleProjectDelete(c *okapi.Context) error {
	if err := g.store.DeleteProject(c.Context(), g.actor(c), c.Param("id")); err != nil {
		return storeError(c, err)
	}
	return c.OK(okapi.M{"status": "deleted"})
}

// --- Budget entries ---

func (g *Gateway) handleEntryList(c *okapi.Context) error {
	return c.OK(g.store.BudgetEntries())
}

func (g *Gateway) handleEntryCreate(c *okapi.Context) error {
	var e domain.BudgetEntry
	if err := c.Bind(&e); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	saved, err := g.store.AddBudgetEntry(c.Context(), g.actor(c), e)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(http.StatusCreated, saved)
}

func (g *Gateway) handleEntryUpdate(c *okapi.Context) error {
	var upd store.EntryUpdate
	if err := c.Bind(&upd); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	saved, err := g.store.UpdateBudgetEntry(c.Context(), g.actor(c), c.Param("id"), upd)
	if err != nil {
		return storeError(c, err)
	}
	return c.OK(saved)
}

func (g *Gateway) handleEntryDelete(c *okapi.Context) error {
	if err := g.store.DeleteBudgetEntry(c.Context(), g.actor(c), c.Param("id")); err != nil {
		return storeError(c, err)
	}
	return c.OK(okapi.M{"status": "deleted"})
}

// --- Budget codes ---

func (g *Gateway) handleCodeList(c *okapi.Context) error {
	return c.OK(g.store.BudgetCodes())
}

func (g *Gateway) handleCodeCreate(c *okapi.Context) error {
	var code domain.BudgetCode
	if err := c.Bind(&code); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	saved, err := g.store.AddBudgetCode(c.Context(), g.actor(c), code)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(http.StatusCreated, saved)
}

func (g *Gateway) handleCodeUpdate(c *okapi.Context) error {
	var upd store.CodeUpdate
	if err := c.Bind(&upd); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	saved, err := g.store.UpdateBudgetCode(c.Context(), g.actor(c), c.Param("id"), upd)
	if err != nil {
		return storeError(c, err)
	}
	return c.OK(saved)
}

func (g *Gateway) handleCodeToggle(c *okapi.Context) error {
	saved, err := g.store.ToggleBudgetCode(c.Context(), g.actor(c), c.Param("id"))
	if err != nil {
		return storeError(c, err)
	}
	return c.OK(saved)
}

func (g *Gateway) handleCodeDelete(c *okapi.Context) error {
	if err := g.store.DeleteBudgetCode(c.Context(), g.actor(c), c.Param("id")); err != nil {
		return storeError(c, err)
	}
	return c.OK(okapi.M{"status": "deleted"})
}

// --- Notifications ---

func (g *Gateway) handleNotificationList(c *okapi.Context) error {
	return c.OK(g.store.NotificationsFor(c.GetString("userID")))
}

func (g *Gateway) handleNotificationUnreadCount(c *okapi.Context) error {
	return c.OK(okapi.M{"count": g.store.UnreadCount(c.GetString("userID"))})
}

func (g *Gateway) handleNotificationMarkRead(c *okapi.Context) error {
	if err := g.store.MarkNotificationRead(c.Context(), c.Param("id")); err != nil {
		return storeError(c, err)
	}
	return c.OK(okapi.M{"status": "read"})
}

func (g *Gateway) handleNotificationMarkAllRead(c *okapi.Context) error {
	if err := g.store.MarkAllNotificationsRead(c.Context(), c.GetString("userID")); err != nil {
		return storeError(c, err)
	}
	return c.OK(okapi.M{"status": "read"})
}

func (g *Gateway) handleNotificationDelete(c *okapi.Context) error {
	if err := g.store.DeleteNotification(c.Context(), c.Param("id")); err != nil {
		return storeError(c, err)
	}
	return c.OK(okapi.M{"status": "deleted"})
}

// --- Settings ---

func (g *Gateway) handleSettingsGet(c *okapi.Context) error {
	settings := g.store.Settings()
	return c.OK(&settings)
}

func (g *Gateway) handleSettingsUpdate(c *okapi.Context) error {
	var upd authz.SettingsUpdate
	if err := c.Bind(&upd); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	saved, err := g.store.UpdateSettings(c.Context(), g.actor(c), upd)
	if err != nil {
		return storeError(c, err)
	}
	return c.OK(saved)
}

// --- Admin ---

// InviteRequest is the JSON body for POST /v1/admin/invite.
type InviteRequest struct {
	Email      string      `json:"email"`
	Password   string      `json:"password"`
	Name       string      `json:"name,omitempty"`
	Role       domain.Role `json:"role,omitempty"`
	DivisionID string      `json:"divisionId,omitempty"`
	UnitID     string      `json:"unitId,omitempty"`
}

func (g *Gateway) handleAdminInvite(c *okapi.Context) error {
	if roleOf(c) != domain.RoleSuperAdmin {
		return c.JSON(http.StatusForbidden, okapi.M{"error": "super admin required"})
	}

	var req InviteRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return c.AbortBadRequest("email and password are required")
	}

	userID, err := g.provider.AdminCreateUser(c.Context(), req.Email, req.Password)
	if err != nil {
		g.logger.Error("invite failed",
			slog.String("email", req.Email),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("could not create auth account")
	}

	user, err := g.store.AddUser(c.Context(), g.actor(c), domain.User{
		ID:         userID,
		Email:      req.Email,
		Name:       req.Name,
		Role:       req.Role,
		DivisionID: req.DivisionID,
		UnitID:     req.UnitID,
	})
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(http.StatusCreated, user)
}

// AdminResetRequest is the JSON body for POST /v1/admin/reset-password.
type AdminResetRequest struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
}

// handleAdminResetPassword sets a user's password. The caller must present
// either a super admin session or the shared admin secret header.
func (g *Gateway) handleAdminResetPassword(c *okapi.Context) error {
	if !g.adminAuthorized(c) {
		return c.JSON(http.StatusForbidden, okapi.M{"error": "super admin or admin secret required"})
	}

	var req AdminResetRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.UserID == "" || req.Password == "" {
		return c.AbortBadRequest("userId and password are required")
	}

	if err := g.provider.AdminSetPassword(c.Context(), req.UserID, req.Password); err != nil {
		if errors.Is(err, session.ErrResetTimeout) {
			return c.JSON(http.StatusGatewayTimeout, okapi.M{"error": err.Error()})
		}
		g.logger.Error("admin password reset failed",
			slog.String("user_id", req.UserID),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("password reset failed")
	}
	return c.OK(okapi.M{"status": "password updated"})
}

// adminAuthorized accepts the shared secret header or a super admin session.
func (g *Gateway) adminAuthorized(c *okapi.Context) bool {
	if secret := c.Header("X-Admin-Secret"); secret != "" && g.config.AdminSharedSecret != "" {
		return subtle.ConstantTimeCompare([]byte(secret), []byte(g.config.AdminSharedSecret)) == 1
	}
	authHeader := c.Header("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	sess, err := g.provider.ParseSession(c.Context(), strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		return false
	}
	auth := g.resolver.Resolve(c.Context(), sess)
	return auth.Allowed != nil && *auth.Allowed && auth.Role == domain.RoleSuperAdmin
}

// handleEnsureProfile idempotently creates the caller's profile row. The
// configured bootstrap email is granted super admin. The route sits outside
// the authenticated group, so the handler validates the token itself: any
// valid session may call it, profile row or not.
func (g *Gateway) handleEnsureProfile(c *okapi.Context) error {
	authHeader := c.Header("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return c.AbortUnauthorized("missing or invalid Authorization header")
	}
	sess, err := g.provider.ParseSession(c.Context(), strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		return c.AbortUnauthorized("invalid session token")
	}

	if g.config.BootstrapEmail != "" && strings.EqualFold(sess.Email, g.config.BootstrapEmail) {
		sess.Claims.Role = domain.RoleSuperAdmin
	}

	if err := g.syncer.Ensure(c.Context(), sess); err != nil {
		g.logger.Error("ensure-profile sync failed",
			slog.String("user_id", sess.UserID),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("profile creation failed")
	}

	user, err := g.store.Backend().Users().Get(c.Context(), sess.UserID)
	if err != nil {
		g.logger.Error("ensure-profile lookup failed",
			slog.String("user_id", sess.UserID),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("profile creation failed")
	}
	return c.OK(user)
}

// --- Helpers ---

func roleOf(c *okapi.Context) domain.Role {
	return domain.Role(c.GetString("userRole"))
}

// storeError maps domain errors to appropriate HTTP responses.
func storeError(c *okapi.Context, err error) error {
	switch {
	case errors.Is(err, authz.ErrPermissionDenied):
		return c.JSON(http.StatusForbidden, okapi.M{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		return c.JSON(http.StatusNotFound, okapi.M{"error": err.Error()})
	case errors.Is(err, store.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, okapi.M{"error": err.Error()})
	default:
		return c.AbortInternalServerError("internal error")
	}
}
