package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"pharmacie_back_end/internal/cache"
)

const (
	RegisterMaxAttempts = 3
	RegisterCooldown    = 30 * time.Minute
	APIMaxRequests      = 100
	CartMaxRequests     = 20
	SearchMaxRequests   = 30
)

// Limit autorise max requêtes par fenêtre, par clé. Une clé vide laisse passer.
type Limit struct {
	Prefix  string
	Max     int64
	Window  time.Duration
	Message string
	Key     func(c *gin.Context) string
	// OnlyStatus: ne compter que les réponses de ce statut (0 = toutes, comptées avant le handler).
	OnlyStatus int
}

func RateLimit(store *cache.Store, l Limit) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := l.Key(c)
		if id == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		key := l.Prefix + ":" + id

		count, err := store.Count(ctx, key)
		if err != nil {
			log.Printf("⚠️ Rate limit %s indisponible: %v", key, err)
			c.Next()
			return
		}
		if count >= l.Max {
			retry := store.Cooldown(ctx, key)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       l.Message,
				"retry_after": int(retry.Seconds()),
			})
			return
		}

		if l.OnlyStatus == 0 {
			n, _ := store.Hit(ctx, key, l.Window)
			c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", l.Max))
			c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", max(l.Max-n, 0)))
			c.Next()
			return
		}

		c.Next()
		if c.Writer.Status() == l.OnlyStatus {
			_, _ = store.Hit(ctx, key, l.Window)
		}
	}
}

func byIP(c *gin.Context) string   { return c.ClientIP() }
func byUser(c *gin.Context) string { return c.GetString("user_id") }

// RegisterRateLimit limite les inscriptions réussies par IP.
func RegisterRateLimit(store *cache.Store) gin.HandlerFunc {
	return RateLimit(store, Limit{
		Prefix:     "register_attempts",
		Max:        RegisterMaxAttempts,
		Window:     RegisterCooldown,
		Message:    "Trop d'inscriptions. Réessayez plus tard",
		Key:        byIP,
		OnlyStatus: http.StatusCreated,
	})
}

// APIRateLimit limite le nombre de requêtes par IP (général)
func APIRateLimit(store *cache.Store) gin.HandlerFunc {
	return RateLimit(store, Limit{
		Prefix:  "api_requests",
		Max:     APIMaxRequests,
		Window:  time.Minute,
		Message: "Trop de requêtes. Réessayez dans 1 minute",
		Key:     byIP,
	})
}

// CartRateLimit limite les écritures panier (anti-spam)
func CartRateLimit(store *cache.Store) gin.HandlerFunc {
	return RateLimit(store, Limit{
		Prefix:  "cart_add",
		Max:     CartMaxRequests,
		Window:  time.Minute,
		Message: "Trop d'ajouts au panier. Ralentissez un peu",
		Key:     byUser,
	})
}

// SearchRateLimit limite les recherches (anti-spam)
func SearchRateLimit(store *cache.Store) gin.HandlerFunc {
	return RateLimit(store, Limit{
		Prefix:  "search_requests",
		Max:     SearchMaxRequests,
		Window:  time.Minute,
		Message: "Trop de recherches. Réessayez dans 1 minute",
		Key:     byIP,
	})
}
