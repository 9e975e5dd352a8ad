package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/scholarship-intake-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-intake-api/pkg/errors"
)

type loginRecorder interface {
	RecordLogin(success bool)
}

// AuthConfig describes the single administrator account and how sessions are signed.
type AuthConfig struct {
	Username     string
	PasswordHash string
	Secret       string
	TTL          time.Duration
	Issuer       string
}

// AuthService authenticates the administrator and issues signed session tokens.
type AuthService struct {
	validator *validator.Validate
	logger    *zap.Logger
	metrics   loginRecorder
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(validate *validator.Validate, logger *zap.Logger, metrics loginRecorder, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	if config.Issuer == "" {
		config.Issuer = "scholarship-intake-api"
	}
	return &AuthService{validator: validate, logger: logger, metrics: metrics, config: config, now: time.Now}
}

// TTL returns the session lifetime.
func (s *AuthService) TTL() time.Duration {
	return s.config.TTL
}

// Login checks the credentials and returns a signed session.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "username and password are required")
	}
	if s.config.PasswordHash == "" {
		s.logger.Warn("admin login attempted without a configured password hash")
		s.recordLogin(false)
		return nil, appErrors.ErrInvalidCredentials
	}

	usernameOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.config.Username)) == 1
	passwordErr := bcrypt.CompareHashAndPassword([]byte(s.config.PasswordHash), []byte(req.Password))
	if !usernameOK || passwordErr != nil {
		s.logger.Info("admin login rejected", zap.String("ip", req.IP))
		s.recordLogin(false)
		return nil, appErrors.ErrInvalidCredentials
	}

	session, err := s.issue(req.Username)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	s.recordLogin(true)
	s.logger.Info("admin logged in", zap.String("ip", req.IP), zap.String("user_agent", req.UserAgent))
	return session, nil
}

// ValidateSession verifies the token signature, issuer and expiry.
func (s *AuthService) ValidateSession(tokenString string) (*models.SessionClaims, error) {
	if tokenString == "" {
		return nil, appErrors.ErrUnauthorized
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithIssuer(s.config.Issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid session")
	}
	claims, ok := token.Claims.(*models.SessionClaims)
	if !ok || !token.Valid || claims.Username != s.config.Username {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid session")
	}
	return claims, nil
}

func (s *AuthService) issue(username string) (*models.Session, error) {
	if s.config.Secret == "" {
		return nil, fmt.Errorf("session secret missing")
	}
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.config.TTL)
	claims := &models.SessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return nil, err
	}
	return &models.Session{Token: signed, Username: username, IssuedAt: issuedAt, ExpiresAt: expiresAt}, nil
}

func (s *AuthService) recordLogin(success bool) {
	if s.metrics != nil {
		s.metrics.RecordLogin(success)
	}
}
