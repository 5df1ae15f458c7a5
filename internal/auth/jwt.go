// Package auth выдает и проверяет JWT-токены REST API: владелец работает
// только со своими слотами, администратор - с любыми и с миром.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer - значение iss в выданных токенах
const Issuer = "horsestore"

// MinSecretLen - минимальная длина ключа подписи в байтах
const MinSecretLen = 32

var (
	// ErrInvalidToken - токен не прошел проверку подписи, срока или формата
	ErrInvalidToken = errors.New("invalid token")
	// ErrWeakSecret - ключ подписи короче MinSecretLen
	ErrWeakSecret = errors.New("secret key must be at least 32 bytes")
)

// Claims represents JWT claims
type Claims struct {
	Owner   uuid.UUID `json:"owner"`
	IsAdmin bool      `json:"is_admin"`
	jwt.RegisteredClaims
}

// Authenticator подписывает и проверяет токены HS256
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthenticator создает проверяющего по ключу в Base64
func NewAuthenticator(secretBase64 string, ttl time.Duration) (*Authenticator, error) {
	secret, err := base64.StdEncoding.DecodeString(secretBase64)
	if err != nil {
		return nil, fmt.Errorf("decode jwt secret: %w", err)
	}
	if len(secret) < MinSecretLen {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{secret: secret, ttl: ttl, now: time.Now}, nil
}

// GenerateToken creates a signed token for the owner
func (a *Authenticator) GenerateToken(owner uuid.UUID, isAdmin bool) (string, error) {
	now := a.now()
	claims := &Claims{
		Owner:   owner,
		IsAdmin: isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
			Subject:   owner.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Validate checks token validity and returns its claims
func (a *Authenticator) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithIssuer(Issuer), jwt.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// CanAccess сообщает, может ли носитель токена работать со слотами владельца
func (c *Claims) CanAccess(owner uuid.UUID) bool {
	return c.IsAdmin || c.Owner == owner
}

// GenerateSecureSecret generates a new secure secret key
func GenerateSecureSecret() (string, error) {
	b := make([]byte, MinSecretLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
