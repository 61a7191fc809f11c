package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"task-tracker/backend/internal/config"
	"task-tracker/backend/internal/models"
	"task-tracker/backend/internal/repositories"
	"task-tracker/backend/internal/utils"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type AuthService interface {
	Login(ctx context.Context, email, password string) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Revoke(ctx context.Context, refreshToken string) error
	ParseAccessToken(tokenString string) (Caller, error)
}

type AuthServiceImpl struct {
	store repositories.Store
	cfg   config.JWTConfig
	now   func() time.Time
}

func NewAuthService(store repositories.Store, cfg config.JWTConfig) *AuthServiceImpl {
	return &AuthServiceImpl{store: store, cfg: cfg, now: time.Now}
}

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func VerifyPassword(hashedPassword, plainPassword string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(plainPassword))
	return err == nil
}

func (s *AuthServiceImpl) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.store.Users().FindByEmail(ctx, email)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	pair, err := s.issue(ctx, s.store, *user)
	if err != nil {
		return nil, err
	}
	log.Printf("🔑 %s logged in", user.Email)
	return pair, nil
}

// Refresh exchanges a live refresh token for a new pair; the old token is consumed.
func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	jti, email, err := s.parseRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	var pair *TokenPair
	err = s.store.WithinTx(ctx, func(tx repositories.Store) error {
		if _, err := tx.Tokens().FindActive(ctx, jti, email, s.now()); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrInvalidToken
			}
			return err
		}

		user, err := tx.Users().FindByEmail(ctx, email)
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrInvalidToken
		}
		if err != nil {
			return err
		}

		if err := tx.Tokens().DeleteByJTI(ctx, jti); err != nil {
			return fmt.Errorf("failed to delete old token: %w", err)
		}

		pair, err = s.issue(ctx, tx, *user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *AuthServiceImpl) Revoke(ctx context.Context, refreshToken string) error {
	jti, _, err := s.parseRefresh(refreshToken)
	if err != nil {
		return err
	}
	if err := s.store.Tokens().DeleteByJTI(ctx, jti); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return err
	}
	return nil
}

// ParseAccessToken turns a bearer token into the caller it was issued to.
func (s *AuthServiceImpl) ParseAccessToken(tokenString string) (Caller, error) {
	claims, err := utils.ParseJWT(tokenString, s.cfg.Secret)
	if err != nil {
		return Caller{}, ErrInvalidToken
	}
	if tokenType, _ := claims["type"].(string); tokenType != tokenTypeAccess {
		return Caller{}, ErrInvalidToken
	}

	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	if email == "" {
		return Caller{}, ErrInvalidToken
	}
	return Caller{Email: email, Role: models.Role(role)}, nil
}

func (s *AuthServiceImpl) parseRefresh(refreshToken string) (uuid.UUID, string, error) {
	claims, err := utils.ParseJWT(refreshToken, s.cfg.Secret)
	if err != nil {
		return uuid.Nil, "", ErrInvalidToken
	}
	if tokenType, _ := claims["type"].(string); tokenType != tokenTypeRefresh {
		return uuid.Nil, "", ErrInvalidToken
	}

	jtiStr, _ := claims["jti"].(string)
	jti, err := uuid.FromString(jtiStr)
	if err != nil {
		return uuid.Nil, "", ErrInvalidToken
	}

	email, _ := claims["email"].(string)
	if email == "" {
		return uuid.Nil, "", ErrInvalidToken
	}
	return jti, email, nil
}

func (s *AuthServiceImpl) sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.Secret))
}

func (s *AuthServiceImpl) issue(ctx context.Context, store repositories.Store, user models.User) (*TokenPair, error) {
	now := s.now()

	accessToken, err := s.sign(jwt.MapClaims{
		"email": user.Email,
		"role":  string(user.Role),
		"type":  tokenTypeAccess,
		"iat":   now.Unix(),
		"exp":   now.Add(s.cfg.AccessTTL).Unix(),
		"iss":   s.cfg.Issuer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	jti, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("failed to generate jti: %w", err)
	}

	refreshExpiry := now.Add(s.cfg.RefreshTTL)
	refreshToken, err := s.sign(jwt.MapClaims{
		"email": user.Email,
		"type":  tokenTypeRefresh,
		"jti":   jti.String(),
		"iat":   now.Unix(),
		"exp":   refreshExpiry.Unix(),
		"iss":   s.cfg.Issuer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	record := &models.Token{
		ID:        uuid.Must(uuid.NewV4()),
		UserEmail: user.Email,
		JTI:       jti,
		ExpiresAt: refreshExpiry,
	}
	if err := store.Tokens().Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create token record: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.AccessTTL.Seconds()),
	}, nil
}
