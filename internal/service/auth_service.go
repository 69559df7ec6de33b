package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/aptitest-backend/internal/config"
	"github.com/stemsi/aptitest-backend/internal/repository"
)

// Common auth errors.
var (
	ErrInvalidCode = errors.New("invalid code")
	ErrCodeUsed    = errors.New("code has already been used")
)

// TokenType distinguishes participant vs admin tokens.
type TokenType string

const (
	TokenTypeParticipant TokenType = "participant"
	TokenTypeAdmin       TokenType = "admin"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType  TokenType `json:"token_type"`
	UserCode   string    `json:"user_code"`
	UserName   string    `json:"user_name,omitempty"`
	SurveyType string    `json:"survey_type"`
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	Token    string
	IsAdmin  bool
	UserCode string
}

// AuthService handles one-time code login and JWT issuance.
type AuthService struct {
	cfg   *config.Config
	codes CodeStore
	log   zerolog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, codes CodeStore, log zerolog.Logger) *AuthService {
	return &AuthService{
		cfg:   cfg,
		codes: codes,
		log:   log.With().Str("component", "auth_service").Logger(),
	}
}

// HashCode hashes an admin code with the configured bcrypt cost.
func (s *AuthService) HashCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cfg.BcryptCost)
	return string(hash), err
}

// IsAdminCode reports whether code matches the configured admin code hash.
// Admin login is disabled when no hash is configured.
func (s *AuthService) IsAdminCode(code string) bool {
	if s.cfg.AdminCodeHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(s.cfg.AdminCodeHash), []byte(code)) == nil
}

// Login checks a code and issues a token. The admin code always succeeds;
// any other code must exist and be unused.
func (s *AuthService) Login(ctx context.Context, name, code, surveyType string) (*LoginResult, error) {
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)

	if s.IsAdminCode(code) {
		token, err := s.GenerateToken(TokenTypeAdmin, code, name, surveyType)
		if err != nil {
			return nil, err
		}
		s.log.Info().Str("survey_type", surveyType).Msg("Admin login")
		return &LoginResult{Token: token, IsAdmin: true, UserCode: code}, nil
	}

	found, err := s.codes.GetByValue(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, fmt.Errorf("lookup code: %w", err)
	}
	if found.IsUsed {
		return nil, ErrCodeUsed
	}

	token, err := s.GenerateToken(TokenTypeParticipant, found.CodeValue, name, surveyType)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, UserCode: found.CodeValue}, nil
}

// GenerateToken signs a JWT for the given identity.
func (s *AuthService) GenerateToken(tokenType TokenType, userCode, userName, surveyType string) (string, error) {
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userCode,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		TokenType:  tokenType,
		UserCode:   userCode,
		UserName:   userName,
		SurveyType: surveyType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}
