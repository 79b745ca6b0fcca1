package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Settings regroupe la configuration typée du serveur.
type Settings struct {
	Port        string
	BaseURL     string
	FrontendURL string
	LogLevel    string
	LogFormat   string

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	SessionSecret   string

	ShippingFreeThreshold float64
	ShippingFee           float64
	Currency              string
	CartTTL               time.Duration

	PrescriptionDelay    time.Duration
	PrescriptionMaxBytes int64

	StorageDriver string

	ProductsBucket      string
	PrescriptionsBucket string
	AvatarsBucket       string

	StripeSecretKey     string
	StripeWebhookSecret string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
}

const (
	DriverScylla = "scylla"
	DriverMemory = "memory"
)

func Load() {
	err := godotenv.Load(".env")
	if err != nil {
		log.Println("⚠️  Aucun fichier .env trouvé — on continue avec les variables d'environnement du système")
	} else {
		log.Println("✅ Fichier .env chargé avec succès")
	}
}

// FromEnv lit les variables d'environnement. Les valeurs invalides retombent
// sur la valeur par défaut.
func FromEnv() Settings {
	s := Settings{
		Port:        getString("PORT", "8080"),
		BaseURL:     getString("BASE_URL", "http://localhost:8080"),
		FrontendURL: getString("FRONTEND_URL", "http://localhost:3000"),
		LogLevel:    getString("LOG_LEVEL", "info"),
		LogFormat:   getString("LOG_FORMAT", "text"),

		JWTSecret:       getString("JWT_SECRET", "super_secret"),
		AccessTokenTTL:  getDuration("ACCESS_TOKEN_TTL", 24*time.Hour),
		RefreshTokenTTL: getDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		SessionSecret:   getString("SESSION_SECRET", ""),

		ShippingFreeThreshold: getFloat("SHIPPING_FREE_THRESHOLD", 500),
		ShippingFee:           getFloat("SHIPPING_FEE", 40),
		Currency:              getString("CURRENCY", "inr"),
		CartTTL:               getDuration("CART_TTL", 30*24*time.Hour),

		PrescriptionDelay:    getDuration("PRESCRIPTION_PROCESSING_DELAY", 3*time.Second),
		PrescriptionMaxBytes: int64(getInt("PRESCRIPTION_MAX_BYTES", 10<<20)),

		StorageDriver: getString("STORAGE_DRIVER", DriverScylla),

		ProductsBucket:      getString("MINIO_BUCKET_PRODUCTS", "products"),
		PrescriptionsBucket: getString("MINIO_BUCKET_PRESCRIPTIONS", "prescriptions"),
		AvatarsBucket:       getString("MINIO_BUCKET_AVATARS", "avatars"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getInt("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		MailFrom:     getString("MAIL_FROM", "noreply@pharmacie.local"),
	}

	if s.StorageDriver != DriverScylla && s.StorageDriver != DriverMemory {
		log.Warnf("⚠️ STORAGE_DRIVER inconnu (%s), utilisation de %s", s.StorageDriver, DriverScylla)
		s.StorageDriver = DriverScylla
	}
	if os.Getenv("JWT_SECRET") == "" {
		log.Warn("⚠️ JWT_SECRET absent, secret de développement utilisé")
	}
	return s
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warnf("⚠️ %s invalide (%q), valeur par défaut %d", key, v, def)
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		log.Warnf("⚠️ %s invalide (%q), valeur par défaut %.2f", key, v, def)
		return def
	}
	return f
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		log.Warnf("⚠️ %s invalide (%q), valeur par défaut %s", key, v, def)
		return def
	}
	return d
}
