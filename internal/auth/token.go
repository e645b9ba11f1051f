package auth

import (
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess   = "access"
	TokenTypeOperator = "operator"
)

// TokenManager handles JWT token generation and validation
type TokenManager struct {
	secret            []byte
	accessTokenExpiry time.Duration
	issuer            string
}

// NewTokenManager creates a new TokenManager signing with HS256
func NewTokenManager(secret string, accessExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:            []byte(secret),
		accessTokenExpiry: accessExpiry,
		issuer:            "bastion",
	}
}

// GenerateAccessToken creates a short-lived access token for a logged-in user
func (tm *TokenManager) GenerateAccessToken(userID, email string, role models.Role) (string, error) {
	return tm.generate(TokenTypeAccess, userID, email, role, tm.accessTokenExpiry)
}

// GenerateOperatorToken creates a token for an operator who is not a stored
// user, such as an on-call engineer unblocking an address
func (tm *TokenManager) GenerateOperatorToken(subject string, role models.Role, ttl time.Duration) (string, error) {
	return tm.generate(TokenTypeOperator, subject, "", role, ttl)
}

func (tm *TokenManager) generate(tokenType, userID, email string, role models.Role, ttl time.Duration) (string, error) {
	if _, err := models.ParseRole(string(role)); err != nil {
		return "", err
	}

	now := time.Now()
	claims := &models.TokenClaims{
		Type:   tokenType,
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    tm.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}

	return tokenString, nil
}

// ValidateToken verifies a token and returns its claims
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithIssuer(tm.issuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	switch claims.Type {
	case TokenTypeAccess, TokenTypeOperator:
	default:
		return nil, fmt.Errorf("invalid token type %q", claims.Type)
	}

	if _, err := models.ParseRole(string(claims.Role)); err != nil {
		return nil, fmt.Errorf("invalid token role: %w", err)
	}

	return claims, nil
}
