package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
)

const (
	userIDKey             = "user_id"
	participantIDKey      = "participant_id"
	participantSessionKey = "participant_session_id"
)

// Claims is the token body. User tokens come from the auth provider and carry
// UserID. Participant tokens are issued at join and carry ParticipantID and
// the SessionID it belongs to.
type Claims struct {
	UserID        string `json:"user_id,omitempty"`
	ParticipantID string `json:"participant_id,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	jwt.StandardClaims
}

// Authenticator validates HS256 bearer tokens.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// IssueToken signs a token for userID. Only the CLI uses it; production
// tokens come from the auth provider.
func (a *Authenticator) IssueToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
			Subject:   userID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// IssueParticipantToken signs the credential a player presents for answers,
// holds, leaving, chat and the websocket.
func (a *Authenticator) IssueParticipantToken(participantID, sessionID string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("token signing secret not configured")
	}
	now := time.Now()
	claims := Claims{
		ParticipantID: participantID,
		SessionID:     sessionID,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
			Subject:   participantID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseToken validates the signature and expiry and returns the claims.
func (a *Authenticator) ParseToken(token string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("token signing secret not configured")
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || (claims.UserID == "" && claims.ParticipantID == "") {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// RequireAuth rejects requests without a valid bearer token.
func (a *Authenticator) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, "Silakan masuk terlebih dahulu")
			return
		}
		claims, err := a.bearer(header)
		if err != nil || claims.UserID == "" {
			abortUnauthorized(c, "Sesi login tidak valid atau sudah kedaluwarsa")
			return
		}
		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// RequireParticipant rejects requests without a valid participant token.
func (a *Authenticator) RequireParticipant() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, "Token peserta diperlukan, silakan gabung ke sesi")
			return
		}
		claims, err := a.bearer(header)
		if err != nil || claims.ParticipantID == "" {
			abortUnauthorized(c, "Token peserta tidak valid atau sudah kedaluwarsa")
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuth attaches the user when a valid token is present. A bad token is
// still rejected so clients notice expiry.
func (a *Authenticator) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		claims, err := a.bearer(header)
		if err != nil {
			abortUnauthorized(c, "Sesi login tidak valid atau sudah kedaluwarsa")
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

func setClaims(c *gin.Context, claims *Claims) {
	if claims.UserID != "" {
		c.Set(userIDKey, claims.UserID)
	}
	if claims.ParticipantID != "" {
		c.Set(participantIDKey, claims.ParticipantID)
		c.Set(participantSessionKey, claims.SessionID)
	}
}

func (a *Authenticator) bearer(header string) (*Claims, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, errors.New("authorization header format must be Bearer {token}")
	}
	return a.ParseToken(parts[1])
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// currentParticipant returns the participant and session named by the
// request's participant token, if any.
func currentParticipant(c *gin.Context) (participantID, sessionID string) {
	return c.GetString(participantIDKey), c.GetString(participantSessionKey)
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized", Message: message})
}

func abortForbidden(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Error: "forbidden", Message: message})
}
