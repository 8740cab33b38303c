package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"virtufit-backend/internal/models"
)

const (
	SessionIDKey    = "session_id"
	SessionIDHeader = "X-Session-ID"
	maxSessionIDLen = 128
)

// SessionMiddleware identifies the browser session a request belongs to.
//
// With a JWT secret configured every request must carry a bearer token signed
// with HS256; its "sub" claim becomes the session id. Without one the optional
// X-Session-ID header is used as is.
func SessionMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSecret == "" {
			if sessionID := strings.TrimSpace(c.GetHeader(SessionIDHeader)); sessionID != "" {
				if len(sessionID) > maxSessionIDLen {
					abortUnauthorized(c, "invalid session id", "X-Session-ID is too long")
					return
				}
				c.Set(SessionIDKey, sessionID)
			}
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header", "")
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "invalid authorization header format", "")
			return
		}
		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			abortUnauthorized(c, "empty token", "")
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(jwtSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			var errorMsg string
			switch {
			case strings.Contains(err.Error(), "signature is invalid"):
				errorMsg = "token signature is invalid"
			case strings.Contains(err.Error(), "token is expired"):
				errorMsg = "token has expired"
			case strings.Contains(err.Error(), "token is malformed"):
				errorMsg = "token is malformed"
			default:
				errorMsg = err.Error()
			}
			abortUnauthorized(c, "invalid token", errorMsg)
			return
		}
		if !token.Valid {
			abortUnauthorized(c, "invalid token", "")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			abortUnauthorized(c, "invalid token claims", "")
			return
		}
		sub, ok := claims["sub"].(string)
		if !ok || sub == "" {
			abortUnauthorized(c, "missing session id in token", "")
			return
		}

		c.Set(SessionIDKey, sub)
		c.Next()
	}
}

// SessionID returns the session of the request, or "" for anonymous requests.
func SessionID(c *gin.Context) string {
	return c.GetString(SessionIDKey)
}

func abortUnauthorized(c *gin.Context, errMsg, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: errMsg, Message: message})
}
