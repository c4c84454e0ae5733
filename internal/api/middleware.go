// Package api is the authenticated HTTP surface agents use: the
// inbox, the send path, contacts, quick replies and media lookups.
package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims identifies the agent behind a request.
type AuthClaims struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	jwt.RegisteredClaims
}

// AuthMiddleware rejects requests without a valid bearer token before
// any handler, and any provider call, runs.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" || !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		tokenStr := strings.TrimPrefix(h, "Bearer ")
		token, err := jwt.ParseWithClaims(tokenStr, &AuthClaims{}, func(t *jwt.Token) (interface{}, error) {
			return []byte(jwtSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		claims := token.Claims.(*AuthClaims)
		c.Set("agentID", claims.AgentID)
		c.Set("agentName", claims.AgentName)
		c.Next()
	}
}

// CORSMiddleware allows the dashboard frontend to call the API from
// another origin.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func agentID(c *gin.Context) string {
	v, _ := c.Get("agentID")
	id, _ := v.(string)
	return id
}

func agentName(c *gin.Context) string {
	v, _ := c.Get("agentName")
	name, _ := v.(string)
	return name
}
