package service

import "time"

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the verified content of a token. Subject is the only identity
// claim; roles and PII are never embedded.
type Claims struct {
	Subject   int64
	Type      TokenType
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenService issues and verifies signed bearer tokens. Access and refresh
// tokens are signed with distinct secrets. Verification failures are
// domain errors: ErrTokenExpired, ErrTokenInvalid or ErrTokenMalformed.
type TokenService interface {
	// IssueAccess signs a short-lived access token for the subject.
	IssueAccess(subject int64) (token string, expiresIn time.Duration, err error)

	// IssueRefresh signs a long-lived refresh token for the subject.
	IssueRefresh(subject int64) (token string, expiresAt time.Time, err error)

	// VerifyAccess validates an access token and returns its claims.
	VerifyAccess(token string) (*Claims, error)

	// VerifyRefresh validates a refresh token and returns its claims.
	VerifyRefresh(token string) (*Claims, error)

	// HashToken returns the SHA-256 hex digest used to persist refresh tokens.
	HashToken(token string) string
}
