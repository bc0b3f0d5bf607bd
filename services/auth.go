package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
	"github.com/krshsl/mensetsu/backend/models"
	"github.com/krshsl/mensetsu/backend/repository"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	defaultTokenTTL   = 60 * time.Minute
)

// ErrInvalidCredentials is returned by Login for an unknown user or a wrong
// password. The two cases are not distinguished.
var ErrInvalidCredentials = errors.New("invalid user ID or password")

type contextKey string

const userIDContextKey contextKey = "user_id"

type AuthService struct {
	store  repository.Store
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func NewAuthService(store repository.Store, cfg JWTConfig) (*AuthService, error) {
	algorithm := cfg.Algorithm
	if algorithm == "" {
		algorithm = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported jwt algorithm %q: %w", algorithm, models.ErrConfiguration)
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is empty: %w", models.ErrConfiguration)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &AuthService{
		store:  store,
		secret: []byte(cfg.Secret),
		method: method,
		ttl:    ttl,
	}, nil
}

// SanitizeUserID trims id and rejects blank ids and ids containing spaces.
func SanitizeUserID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.IndexFunc(id, unicode.IsSpace) >= 0 {
		return "", fmt.Errorf("invalid user ID: %w", models.ErrValidation)
	}
	return id, nil
}

// Signup registers a user and issues a token for them.
func (s *AuthService) Signup(ctx context.Context, userID, password string) (*TokenResponse, error) {
	userID, err := SanitizeUserID(userID)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters: %w", minPasswordLength, models.ErrValidation)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.store.CreateUser(ctx, userID, string(hashed)); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("User signed up", "user_id", userID)
	return s.issue(userID)
}

// Login checks the password and issues a fresh token.
func (s *AuthService) Login(ctx context.Context, userID, password string) (*TokenResponse, error) {
	userID, err := SanitizeUserID(userID)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	slog.Info("User logged in", "user_id", userID)
	return s.issue(userID)
}

func (s *AuthService) issue(userID string) (*TokenResponse, error) {
	token, err := s.IssueToken(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	return &TokenResponse{AccessToken: token, TokenType: "bearer"}, nil
}

// IssueToken signs a token whose subject is userID.
func (s *AuthService) IssueToken(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
}

// VerifyToken returns the user id carried by a valid token.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{s.method.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", errors.New("invalid token")
	}

	user, err := s.store.GetUser(ctx, claims.Subject)
	if err != nil {
		return "", fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return "", errors.New("user not found")
	}
	return user.UserID, nil
}

// Middleware requires a bearer token and puts the user id in the request
// context.
func (s *AuthService) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		userID, err := s.VerifyToken(r.Context(), token)
		if err != nil {
			slog.Warn("Token rejected", "error", err)
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// WithUserID returns a context carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// UserIDFromContext returns the id set by Middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	return userID, ok && userID != ""
}
