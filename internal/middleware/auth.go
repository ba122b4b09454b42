package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/BruksfildServices01/marketplace-exchange/internal/config"
)

const (
	ContextPersonID    = "personID"
	ContextCommunityID = "communityID"
)

// AuthMiddleware trusts HS256 tokens issued by the marketplace: "sub" is the
// person id and the optional "community" claim scopes listing lookups.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error_code": "missing_authorization_header"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error_code": "invalid_authorization_header"})
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenMalformed
			}
			return []byte(cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error_code": "invalid_token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error_code": "invalid_token_claims"})
			return
		}

		personID, ok := claimID(claims["sub"])
		if !ok || personID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error_code": "invalid_token_payload"})
			return
		}
		communityID, _ := claimID(claims["community"])

		c.Set(ContextPersonID, personID)
		c.Set(ContextCommunityID, communityID)

		c.Next()
	}
}

// claimID accepts numeric claims and the string form jwt libraries use for
// "sub".
func claimID(v any) (uint, bool) {
	switch id := v.(type) {
	case float64:
		if id < 0 {
			return 0, false
		}
		return uint(id), true
	case string:
		n, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return 0, false
		}
		return uint(n), true
	}
	return 0, false
}

func PersonID(c *gin.Context) uint {
	return c.GetUint(ContextPersonID)
}

func CommunityID(c *gin.Context) uint {
	return c.GetUint(ContextCommunityID)
}
