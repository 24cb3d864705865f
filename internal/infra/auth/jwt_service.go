package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"marketplace/config"
	domainerrors "marketplace/internal/domain/errors"
	"marketplace/internal/domain/service"
)

// jwtService is a concrete implementation of the TokenService interface using the JWT standard.
type jwtService struct {
	accessSecret  []byte        // Secret key for signing access tokens.
	refreshSecret []byte        // Secret key for signing refresh tokens.
	accessTTL     time.Duration // Time-to-live for access tokens.
	refreshTTL    time.Duration // Time-to-live for refresh tokens.
	now           func() time.Time
}

// NewJWTService is the constructor for jwtService.
// It takes configuration values to create a new token service instance.
func NewJWTService(cfg *config.Config) (service.TokenService, error) {
	if cfg.SecretKey.Access == "" || cfg.SecretKey.Refresh == "" {
		return nil, errors.New("jwt secrets must be provided")
	}
	if cfg.SecretKey.Access == cfg.SecretKey.Refresh {
		return nil, errors.New("jwt access and refresh secrets must differ")
	}

	accessTTL, refreshTTL := time.Hour, 7*24*time.Hour
	if cfg.Auth != nil {
		if cfg.Auth.AccessTokenTTL > 0 {
			accessTTL = cfg.Auth.AccessTokenTTL
		}
		if cfg.Auth.RefreshTokenTTL > 0 {
			refreshTTL = cfg.Auth.RefreshTokenTTL
		}
	}

	return &jwtService{
		accessSecret:  []byte(cfg.SecretKey.Access),
		refreshSecret: []byte(cfg.SecretKey.Refresh),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}, nil
}

// IssueAccess signs an access token carrying only the subject.
func (s *jwtService) IssueAccess(subject int64) (string, time.Duration, error) {
	token, _, err := s.generateToken(subject, s.accessTTL, s.accessSecret, service.TokenTypeAccess)
	if err != nil {
		return "", 0, err
	}

	return token, s.accessTTL, nil
}

// IssueRefresh signs a refresh token with its own secret and a unique jti.
func (s *jwtService) IssueRefresh(subject int64) (string, time.Time, error) {
	return s.generateToken(subject, s.refreshTTL, s.refreshSecret, service.TokenTypeRefresh)
}

// VerifyAccess validates an access token.
func (s *jwtService) VerifyAccess(token string) (*service.Claims, error) {
	return s.verify(token, s.accessSecret, service.TokenTypeAccess)
}

// VerifyRefresh validates a refresh token.
func (s *jwtService) VerifyRefresh(token string) (*service.Claims, error) {
	return s.verify(token, s.refreshSecret, service.TokenTypeRefresh)
}

// HashToken returns the SHA-256 hex digest of a raw token.
func (s *jwtService) HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))

	return hex.EncodeToString(sum[:])
}

// generateToken is a private helper to create a JWT with specific claims.
func (s *jwtService) generateToken(subject int64, ttl time.Duration, secret []byte, tokenType service.TokenType) (string, time.Time, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(ttl)

	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(subject, 10), // Subject (who the token is for)
		"iat":  issuedAt.Unix(),                // Issued At
		"exp":  expiresAt.Unix(),               // Expiration Time
		"type": string(tokenType),              // Type of token (access or refresh)
	}
	if tokenType == service.TokenTypeRefresh {
		claims["jti"] = uuid.NewString()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, domainerrors.ErrInternalError.WrapMessage("failed to sign token")
	}

	return signed, expiresAt, nil
}

func (s *jwtService) verify(tokenString string, secret []byte, want service.TokenType) (*service.Claims, error) {
	parsed, err := jwt.Parse(tokenString,
		func(token *jwt.Token) (any, error) {
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, domainerrors.ErrTokenMalformed.WrapMessage(err.Error())
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, domainerrors.ErrTokenExpired.WrapMessage(err.Error())
		default:
			return nil, domainerrors.ErrTokenInvalid.WrapMessage(err.Error())
		}
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, domainerrors.ErrTokenInvalid.WrapMessage("unexpected claims")
	}

	if tokenType, _ := claims["type"].(string); service.TokenType(tokenType) != want {
		return nil, domainerrors.ErrTokenInvalid.WrapMessage("unexpected token type")
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return nil, domainerrors.ErrTokenInvalid.WrapMessage("missing subject")
	}
	subject, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || subject <= 0 {
		return nil, domainerrors.ErrTokenInvalid.WrapMessage("invalid subject")
	}

	result := &service.Claims{Subject: subject, Type: want}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		result.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		result.IssuedAt = iat.Time
	}
	result.ID, _ = claims["jti"].(string)

	return result, nil
}
