package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// Keys set on the gin context by JWTAuth.
	ContextUserID      = "userID"
	ContextDisplayName = "displayName"
)

// JWTAuth validates the bearer token and stores the caller's identity on the
// context. WebSocket handshakes cannot set headers from the browser, so a
// `token` query parameter is accepted as a fallback.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c.Request)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization token",
				"code":  "UNAUTHORIZED",
			})
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token",
				"code":  "UNAUTHORIZED",
			})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token claims",
				"code":  "UNAUTHORIZED",
			})
			return
		}

		userID, ok := claims["user_id"].(string)
		if !ok || userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token claims",
				"code":  "UNAUTHORIZED",
			})
			return
		}

		c.Set(ContextUserID, userID)
		if name, ok := claims["display_name"].(string); ok {
			c.Set(ContextDisplayName, name)
		}
		c.Next()
	}
}

// UserID returns the authenticated user id set by JWTAuth.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// DisplayName returns the authenticated user's display name, falling back to
// the user id when the token carries none.
func DisplayName(c *gin.Context) string {
	if name := c.GetString(ContextDisplayName); name != "" {
		return name
	}
	return c.GetString(ContextUserID)
}

// MintToken issues an HMAC token for the given identity. Used by the demo
// client and by tests.
func MintToken(secret, userID, displayName string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id":      userID,
		"display_name": displayName,
		"iat":          time.Now().Unix(),
		"exp":          time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func extractToken(r *http.Request) string {
	bearerToken := r.Header.Get("Authorization")
	if strings.HasPrefix(bearerToken, "Bearer ") {
		return strings.TrimPrefix(bearerToken, "Bearer ")
	}

	// For WebSocket connections, check query parameter
	return r.URL.Query().Get("token")
}
