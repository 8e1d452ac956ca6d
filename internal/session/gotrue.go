package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meistericham/pcrtrack/internal/domain"
)

// adminResetTimeout bounds the administrative password-reset call. Exceeding
// it surfaces ErrResetTimeout to the caller.
const adminResetTimeout = 10 * time.Second

// HTTPConfig configures the hosted identity-provider client.
type HTTPConfig struct {
	// BaseURL is the auth endpoint root, e.g. https://project.example.com/auth/v1.
	BaseURL string
	// AnonKey authenticates anonymous/public requests.
	AnonKey string
	// ServiceKey authenticates the administrative channel. Never sent on
	// regular client calls.
	ServiceKey string
	// JWTSecret verifies access-token signatures locally.
	JWTSecret string
}

// HTTPProvider is a Provider backed by a GoTrue-compatible identity service.
type HTTPProvider struct {
	cfg    HTTPConfig
	client *http.Client
	logger *slog.Logger
}

// NewHTTPProvider creates an HTTPProvider.
func NewHTTPProvider(cfg HTTPConfig, logger *slog.Logger) *HTTPProvider {
	return &HTTPProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func (p *HTTPProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	var resp tokenResponse
	err := p.do(ctx, http.MethodPost, "/token?grant_type=password", p.cfg.AnonKey, body, &resp)
	if err != nil {
		var httpErr *apiError
		if errors.As(err, &httpErr) && httpErr.Status == http.StatusBadRequest {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("signing in: %w", err)
	}

	claims, err := p.parseClaims(resp.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("parsing token claims: %w", err)
	}
	return &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		UserID:       resp.User.ID,
		Email:        resp.User.Email,
		Claims:       *claims,
	}, nil
}

func (p *HTTPProvider) SignOut(ctx context.Context, accessToken string) error {
	if err := p.do(ctx, http.MethodPost, "/logout", accessToken, nil, nil); err != nil {
		return fmt.Errorf("signing out: %w", err)
	}
	return nil
}

// ParseSession validates the token locally and reconstructs the session from
// its claims. No network round-trip.
func (p *HTTPProvider) ParseSession(_ context.Context, accessToken string) (*Session, error) {
	claims, err := p.parseClaims(accessToken)
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken: accessToken,
		UserID:      claims.UserID,
		Email:       claims.Email,
		Claims:      *claims,
	}, nil
}

func (p *HTTPProvider) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	body := map[string]string{"password": newPassword}
	if err := p.do(ctx, http.MethodPut, "/user", accessToken, body, nil); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return nil
}

func (p *HTTPProvider) RequestPasswordReset(ctx context.Context, email, redirectURL string) error {
	path := "/recover"
	if redirectURL != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectURL)
	}
	body := map[string]string{"email": email}
	if err := p.do(ctx, http.MethodPost, path, p.cfg.AnonKey, body, nil); err != nil {
		return fmt.Errorf("requesting password reset: %w", err)
	}
	return nil
}

func (p *HTTPProvider) AdminCreateUser(ctx context.Context, email, password string) (string, error) {
	body := map[string]any{
		"email":         email,
		"password":      password,
		"email_confirm": true,
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := p.do(ctx, http.MethodPost, "/admin/users", p.cfg.ServiceKey, body, &resp); err != nil {
		return "", fmt.Errorf("creating identity for %q: %w", email, err)
	}
	return resp.ID, nil
}

func (p *HTTPProvider) AdminSetPassword(ctx context.Context, userID, newPassword string) error {
	ctx, cancel := context.WithTimeout(ctx, adminResetTimeout)
	defer cancel()

	body := map[string]string{"password": newPassword}
	err := p.do(ctx, http.MethodPut, "/admin/users/"+userID, p.cfg.ServiceKey, body, nil)
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrResetTimeout
	}
	if err != nil {
		return fmt.Errorf("setting password for %s: %w", userID, err)
	}
	return nil
}

// parseClaims verifies the token signature and extracts the embedded claims.
// Role lives in app_metadata, display name in user_metadata.
func (p *HTTPProvider) parseClaims(accessToken string) (*Claims, error) {
	token, err := jwt.Parse(accessToken, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(p.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	if sub, ok := mc["sub"].(string); ok {
		claims.UserID = sub
	}
	if email, ok := mc["email"].(string); ok {
		claims.Email = email
	}
	if meta, ok := mc["app_metadata"].(map[string]any); ok {
		if role, ok := meta["role"].(string); ok {
			claims.Role = domain.Role(role)
		}
	}
	if claims.Role == "" {
		if role, ok := mc["role"].(string); ok && domain.Role(role).Valid() {
			claims.Role = domain.Role(role)
		}
	}
	if meta, ok := mc["user_metadata"].(map[string]any); ok {
		if name, ok := meta["name"].(string); ok {
			claims.Name = name
		}
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// apiError is a non-2xx response from the identity service.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("identity service returned %d: %s", e.Status, e.Body)
}

func (p *HTTPProvider) do(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", p.cfg.AnonKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// Unwrap url.Error so deadline checks work at the call site.
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return context.DeadlineExceeded
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apiError{Status: resp.StatusCode, Body: string(data)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
