package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/ksred/klear-trade/internal/types"
	"github.com/ksred/klear-trade/pkg/response"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already registered")
	ErrInvalidUsername    = errors.New("username must be 3-32 characters of letters, digits, dot, dash or underscore")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrTokenGeneration    = errors.New("failed to generate token")
)

const (
	minPasswordLength = 8
	minUsernameLength = 3
	maxUsernameLength = 32
	tokenTTL          = 24 * time.Hour
)

// User is a registered demo trader.
type User struct {
	gorm.Model   `json:"-"`
	UserID       string `gorm:"uniqueIndex" json:"user_id"`
	Username     string `gorm:"uniqueIndex" json:"username"`
	PasswordHash string `json:"-"`
}

// Credentials represents the username/password pair used to register and log in
type Credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse represents the JWT token response
type TokenResponse struct {
	UserID     string    `json:"user_id"`
	Token      string    `json:"jwt_token"`
	Expiration time.Time `json:"expiration"`
}

// Claims represents the JWT claims structure
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// AccountOpener opens the demo cash account of a new user.
type AccountOpener interface {
	OpenAccount(ctx context.Context, userID string, initialCredit decimal.Decimal) (*types.Account, error)
}

// Service handles registration, login and token issuance
type Service struct {
	db            *gorm.DB
	jwtSecret     []byte
	accounts      AccountOpener
	initialCredit decimal.Decimal
	now           func() time.Time
}

// NewService creates a new authentication service with the given JWT secret
func NewService(gormDB *gorm.DB, jwtSecret string, accounts AccountOpener, initialCredit decimal.Decimal) *Service {
	return &Service{
		db:            gormDB,
		jwtSecret:     []byte(jwtSecret),
		accounts:      accounts,
		initialCredit: initialCredit,
		now:           time.Now,
	}
}

// Register creates a user, opens their cash account with the initial demo
// credit and returns a token for them.
func (s *Service) Register(ctx context.Context, creds Credentials) (*TokenResponse, error) {
	username, err := normalizeUsername(creds.Username)
	if err != nil {
		return nil, err
	}
	if len(creds.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		UserID:       uuid.New().String(),
		Username:     username,
		PasswordHash: string(hash),
	}

	logger := log.With().
		Str("user_id", user.UserID).
		Str("service", "auth").
		Logger()

	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUsernameTaken
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrUsernameTaken
		}
		logger.Error().Err(err).Msg("failed to create user")
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if _, err := s.accounts.OpenAccount(ctx, user.UserID, s.initialCredit); err != nil {
		logger.Error().Err(err).Msg("failed to open account for new user")
		return nil, err
	}

	logger.Info().Msg("user registered")
	return s.GenerateToken(user.UserID)
}

// Login verifies the password and returns a fresh token. The account is
// reopened idempotently in case registration stopped halfway.
func (s *Service) Login(ctx context.Context, creds Credentials) (*TokenResponse, error) {
	username, err := normalizeUsername(creds.Username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	var user User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if _, err := s.accounts.OpenAccount(ctx, user.UserID, s.initialCredit); err != nil {
		return nil, err
	}
	return s.GenerateToken(user.UserID)
}

// GenerateToken issues an HS256 token carrying user_id with a 24-hour expiry
func (s *Service) GenerateToken(userID string) (*TokenResponse, error) {
	now := s.now()
	expiration := now.Add(tokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		UserID: userID,
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}

	return &TokenResponse{
		UserID:     userID,
		Token:      tokenString,
		Expiration: expiration,
	}, nil
}

// ValidateToken validates a JWT token and returns the claims
// Verifies token signature and expiration
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID != "" {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// normalizeUsername lowercases and checks the allowed character set.
func normalizeUsername(raw string) (string, error) {
	username := strings.ToLower(strings.TrimSpace(raw))
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return "", ErrInvalidUsername
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
		default:
			return "", ErrInvalidUsername
		}
	}
	return username, nil
}

// GinHandlers contains HTTP handlers for authentication endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for authentication endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// RegisterHandler handles POST requests to create a user
func (h *GinHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds Credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		token, err := h.service.Register(c.Request.Context(), creds)
		switch {
		case errors.Is(err, ErrInvalidUsername), errors.Is(err, ErrWeakPassword):
			response.BadRequest(c, err.Error())
			return
		case errors.Is(err, ErrUsernameTaken):
			response.Conflict(c, err.Error())
			return
		}
		response.Handle(c, token, err)
	}
}

// LoginHandler handles POST requests to exchange credentials for a token
func (h *GinHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds Credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		token, err := h.service.Login(c.Request.Context(), creds)
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.Handle(c, token, err)
	}
}
