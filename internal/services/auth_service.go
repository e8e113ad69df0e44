package services

import (
	"context"
	"errors"
	"time"

	"pulse-chat/config"
	"pulse-chat/internal/domain/user"
	"pulse-chat/internal/repository"
	pulse_errors "pulse-chat/pkg/errors"
	"pulse-chat/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

// AuthService verifies access tokens minted by the account service. It never
// creates accounts; the user must already exist in the directory.
type AuthService struct {
	userRepo  repository.UserRepository
	jwtSecret []byte
	accessTTL time.Duration
}

func NewAuthService(userRepo repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		jwtSecret: []byte(cfg.JWTSecret),
		accessTTL: time.Duration(cfg.JWTExpiryHours) * time.Hour,
	}
}

type AccessClaims struct {
	UserID   string `json:"sub"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

func (s *AuthService) ParseAccessToken(tokenString string) (AccessClaims, error) {
	if tokenString == "" {
		return AccessClaims{}, pulse_errors.Unauthorized("Authentication token is required")
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, pulse_errors.ErrUnauthorized
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return AccessClaims{}, pulse_errors.Unauthorized("Invalid or expired token")
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return AccessClaims{}, pulse_errors.Unauthorized("Invalid or expired token")
	}

	return *claims, nil
}

// Authenticate verifies the token and resolves the user it names.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (user.User, error) {
	claims, err := s.ParseAccessToken(tokenString)
	if err != nil {
		return user.User{}, err
	}
	u, err := s.userRepo.GetByID(ctx, claims.UserID)
	if errors.Is(err, pulse_errors.ErrNotFound) {
		return user.User{}, pulse_errors.Unauthorized("User not found")
	}
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

// IssueAccessToken mints a token for an existing user. Used by the dev seed
// tooling and tests.
func (s *AuthService) IssueAccessToken(u user.User) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID:   u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

type contextKey string

const userContextKey contextKey = "auth_user"

// WithUserContext stores the authenticated user on ctx. The id is also placed
// under the logger key so request logs carry it.
func WithUserContext(ctx context.Context, u user.User) context.Context {
	ctx = context.WithValue(ctx, userContextKey, u)
	return context.WithValue(ctx, logger.UserIdKey, u.ID)
}

func UserFromContext(ctx context.Context) (user.User, bool) {
	u, ok := ctx.Value(userContextKey).(user.User)
	return u, ok
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	u, ok := UserFromContext(ctx)
	if !ok || u.ID == "" {
		return "", false
	}
	return u.ID, true
}
