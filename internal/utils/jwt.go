// Package utils provides helpers for token creation, password hashing and
// the human-facing codes printed on tickets.
package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/event-gate/internal/usher"
)

// Roles carried in the "role" claim.
const (
	RoleUsher = "usher"
	RoleAdmin = "admin"
)

// ErrWrongRole is returned when a token parses but was issued for another
// role.
var ErrWrongRole = errors.New("token issued for another role")

// AccessToken represents a signed JWT along with its expiry.  The Token
// field contains the JWT string and is sent in the Authorization header.
type AccessToken struct {
	Token string    `json:"token"`
	Exp   time.Time `json:"expires_at"`
}

// UsherClaims carry a gate device's usher session.  The server keeps no
// session state: the tally travels in the token and a fresh token is
// issued after every check-in.
type UsherClaims struct {
	Role          string    `json:"role"`
	Name          string    `json:"name"`
	LoginTime     time.Time `json:"login_time"`
	CheckInsToday int       `json:"check_ins"`
	jwt.RegisteredClaims
}

// Session converts the claims back into an usher session.
func (c *UsherClaims) Session() usher.Session {
	return usher.Session{
		Name:          c.Name,
		ID:            c.Subject,
		LoginTime:     c.LoginTime,
		CheckInsToday: c.CheckInsToday,
	}
}

// NewUsherToken signs an HS256 token for the session.
func NewUsherToken(secret string, s usher.Session, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := UsherClaims{
		Role:          RoleUsher,
		Name:          s.Name,
		LoginTime:     s.LoginTime,
		CheckInsToday: s.CheckInsToday,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	return sign(secret, claims, exp)
}

// ParseUsherToken validates raw and returns its claims.
func ParseUsherToken(secret, raw string) (*UsherClaims, error) {
	var claims UsherClaims
	if err := parse(secret, raw, &claims); err != nil {
		return nil, err
	}
	if claims.Role != RoleUsher {
		return nil, ErrWrongRole
	}
	if !claims.Session().Valid() {
		return nil, errors.New("usher token without name or id")
	}
	return &claims, nil
}

// AdminClaims identify the dashboard admin.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewAdminToken signs an HS256 admin token.
func NewAdminToken(secret string, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := AdminClaims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   RoleAdmin,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	return sign(secret, claims, exp)
}

// ParseAdminToken validates raw and returns its claims.
func ParseAdminToken(secret, raw string) (*AdminClaims, error) {
	var claims AdminClaims
	if err := parse(secret, raw, &claims); err != nil {
		return nil, err
	}
	if claims.Role != RoleAdmin {
		return nil, ErrWrongRole
	}
	return &claims, nil
}

func sign(secret string, claims jwt.Claims, exp time.Time) (AccessToken, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// parse accepts HMAC-signed tokens only.
func parse(secret, raw string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	return err
}
