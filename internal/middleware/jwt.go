package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"pharmacie_back_end/internal/utils"
)

const claimsKey = "claims"

// TokenParser vérifie un jeton d'accès (signature, expiration, blacklist).
type TokenParser interface {
	ParseAccessToken(ctx context.Context, token string) (*utils.Claims, error)
}

// AuthRequired accepte "Authorization: Bearer <jwt>", ou ?token= pour le websocket
// (les navigateurs ne peuvent pas y poser d'en-tête).
func AuthRequired(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c.GetHeader("Authorization"))
		if token == "" && c.IsWebsocket() {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token manquant"})
			return
		}

		claims, err := parser.ParseAccessToken(c.Request.Context(), token)
		if err != nil {
			log.WithField("path", c.FullPath()).Debugf("❌ JWT refusé: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token invalide"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)
		c.Set("role", claims.Role)
		c.Set(claimsKey, claims)
		c.Next()
	}
}

func bearer(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Claims renvoie les claims posées par AuthRequired (nil hors route protégée).
func Claims(c *gin.Context) *utils.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*utils.Claims)
	return claims
}
