package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/badoux/checkmail"
	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-teamchat/internal/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenCookieKey       = "token"
	defaultJwtExpiration = 24 * time.Hour
	recentLoginWindow    = 5 * time.Minute
)

const (
	userIdClaim   = "user-id"
	authTimeClaim = "auth_time"
	expClaim      = "exp"
)

type contextKey string

const (
	userIdKey   contextKey = "user-id"
	authTimeKey contextKey = "auth-time"
)

var (
	errInvalidClaims = errors.New("invalid token claims")
	errInvalidToken  = errors.New("invalid token")
)

func WithUserId(ctx context.Context, userId string) context.Context {
	return context.WithValue(ctx, userIdKey, userId)
}

func UserId(ctx context.Context) (string, bool) {
	userId, ok := ctx.Value(userIdKey).(string)

	return userId, ok && userId != ""
}

func WithAuthTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, authTimeKey, t)
}

// AuthTime returns when the caller last signed in with a credential.
func AuthTime(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(authTimeKey).(time.Time)

	return t, ok && !t.IsZero()
}

func requiresRecentLogin(ctx context.Context) bool {
	t, ok := AuthTime(ctx)
	if !ok {
		return true
	}

	return time.Since(t) > recentLoginWindow
}

func validateEmail(email string) error {
	if err := checkmail.ValidateFormat(email); err != nil {
		return fmt.Errorf("validate email %q: %w", email, err)
	}

	return nil
}

func hashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func verifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}

func createJwtCookie(tokenString string, exp time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookieKey,
		Value:    tokenString,
		Path:     "/",
		Expires:  time.Now().Add(exp),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func (s *TeamChatApp) createJwtForSession(user types.User, exp time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim:   user.Id,
		authTimeClaim: now.Unix(),
		expClaim:      now.Add(exp).Unix(),
	})

	return token.SignedString(s.signingKey)
}

func (s *TeamChatApp) verifyToken(tokenString string) (*jwt.Token, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}

		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return nil, errInvalidToken
	}

	return token, nil
}

// extractUserIdFromToken returns the user id and sign-in time carried by a
// session token.
func (s *TeamChatApp) extractUserIdFromToken(tokenString string) (string, time.Time, error) {
	token, err := s.verifyToken(tokenString)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("verify token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", time.Time{}, errInvalidClaims
	}

	userId, ok := claims[userIdClaim].(string)
	if !ok || userId == "" {
		return "", time.Time{}, fmt.Errorf("invalid user id claim")
	}

	var authTime time.Time
	if v, ok := claims[authTimeClaim].(float64); ok {
		authTime = time.Unix(int64(v), 0)
	}

	return userId, authTime, nil
}

func (s *TeamChatApp) setSessionCookie(w http.ResponseWriter, user types.User) error {
	token, err := s.createJwtForSession(user, defaultJwtExpiration)
	if err != nil {
		return err
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))
	return nil
}
