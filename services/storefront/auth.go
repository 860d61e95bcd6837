package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Claims is the JWT payload for an authenticated user.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Role     string `json:"role"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

var ErrInvalidCredentials = errors.New("invalid credentials")

// Authenticator issues and verifies access tokens against the user store.
type Authenticator struct {
	users    *Repository
	secret   []byte
	tokenTTL time.Duration
}

func NewAuthenticator(users *Repository, secret string, tokenTTL time.Duration) *Authenticator {
	return &Authenticator{users: users, secret: []byte(secret), tokenTTL: tokenTTL}
}

// Login checks the password and mints a signed token for the account.
func (a *Authenticator) Login(ctx context.Context, identifier, password string) (string, User, error) {
	user, hash, err := a.users.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		return "", User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", User{}, ErrInvalidCredentials
	}

	now := time.Now()
	claims := Claims{
		UserID:   user.ID,
		Role:     user.Role,
		FullName: user.FullName,
		Email:    user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", User{}, fmt.Errorf("sign token: %w", err)
	}
	return token, user, nil
}

// Parse validates a token string and returns its claims.
func (a *Authenticator) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

const userContextKey = "auth_user"

// AuthRequired rejects requests without a valid bearer token and stores the
// authenticated user on the gin context.
func (a *Authenticator) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := a.Parse(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(userContextKey, User{
			ID:       claims.UserID,
			Username: claims.Subject,
			Email:    claims.Email,
			FullName: claims.FullName,
			Role:     claims.Role,
			IsActive: true,
		})
		c.Next()
	}
}

// RequireRoles allows only the named roles past. Must run after AuthRequired.
func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		user := currentUser(c)
		if !allowed[user.Role] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) User {
	if v, ok := c.Get(userContextKey); ok {
		if u, ok := v.(User); ok {
			return u
		}
	}
	return User{}
}

// HashPassword is used by the seeding path.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
