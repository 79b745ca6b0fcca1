package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// AdminAudit journalise chaque écriture admin: qui, quoi, résultat.
func AdminAudit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"audit":    true,
			"user_id":  c.GetString("user_id"),
			"email":    c.GetString("email"),
			"method":   c.Request.Method,
			"route":    c.FullPath(),
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if c.Writer.Status() >= 400 {
			entry.Warn("🛡️ Action admin échouée")
			return
		}
		entry.Info("🛡️ Action admin")
	}
}

// RequestLogger remplace le logger texte de gin par des entrées logrus.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.FullPath() == "/health" {
			return
		}
		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"ip":       c.ClientIP(),
		}).Info("➡️ requête")
	}
}
