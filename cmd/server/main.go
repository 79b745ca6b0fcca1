package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"pharmacie_back_end/internal/cache"
	"pharmacie_back_end/internal/cart"
	"pharmacie_back_end/internal/config"
	"pharmacie_back_end/internal/database"
	"pharmacie_back_end/internal/handlers"
	"pharmacie_back_end/internal/logger"
	"pharmacie_back_end/internal/middleware"
	"pharmacie_back_end/internal/payment"
	"pharmacie_back_end/internal/pricing"
	"pharmacie_back_end/internal/routes"
	"pharmacie_back_end/internal/search"
	"pharmacie_back_end/internal/service"
	"pharmacie_back_end/internal/storage"
	"pharmacie_back_end/internal/store"
	"pharmacie_back_end/internal/store/memory"
	"pharmacie_back_end/internal/store/scylla"
	"pharmacie_back_end/internal/utils"
	"pharmacie_back_end/internal/validation"
)

func main() {
	config.Load()
	settings := config.FromEnv()
	logger.Setup(settings.LogLevel, settings.LogFormat)

	if err := validation.RegisterGin(); err != nil {
		log.Fatalf("❌ Validateurs personnalisés: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]handlers.Check{}

	// --- Redis (obligatoire: panier, sessions, rate limit) ---
	if err := database.ConnectRedis(ctx); err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer database.Redis.Close()
	checks["redis"] = func(ctx context.Context) error { return database.Redis.Ping(ctx).Err() }
	redisCache := cache.New(database.Redis)

	// --- Persistance ---
	var stores *store.Stores
	if settings.StorageDriver == config.DriverMemory {
		log.Println("⚠️ STORAGE_DRIVER=memory : données perdues à l'arrêt")
		stores = memory.New()
	} else {
		if err := database.ConnectScylla(); err != nil {
			log.Fatalf("❌ ScyllaDB: %v", err)
		}
		defer database.CloseScylla()
		stores = scylla.New(
			database.Session(database.KeyspaceCatalog),
			database.Session(database.KeyspaceUsers),
			database.Session(database.KeyspaceOrders),
		)
		checks["scylla"] = func(context.Context) error { return database.PingScylla() }
	}

	// --- Fichiers: la mémoire n'est admise qu'avec STORAGE_DRIVER=memory ---
	if err := database.ConnectMinIO(ctx, settings.ProductsBucket, settings.PrescriptionsBucket, settings.AvatarsBucket); err != nil {
		log.Fatalf("❌ %v", err)
	}
	files, err := selectFiles(settings.StorageDriver, database.MinIO != nil)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	// --- Recherche (optionnelle) ---
	var index search.Index
	if err := database.ConnectElastic(); err != nil {
		log.Warnf("⚠️ %v, recherche en repli sur la base", err)
	}
	if database.Elastic != nil {
		index = search.NewElastic(database.Elastic, search.DefaultIndex)
	}

	// --- Paiement et e-mails ---
	var gateway payment.Gateway
	if settings.StripeSecretKey != "" {
		gateway = payment.NewStripe(settings.StripeSecretKey)
		log.Println("✅ Stripe initialisé")
	} else {
		log.Warn("⚠️ STRIPE_SECRET_KEY absent, paiement par carte désactivé")
	}

	var mailer utils.Mailer = utils.LogMailer{}
	if settings.SMTPHost != "" {
		mailer = utils.NewSMTPMailer(utils.SMTPConfig{
			Host:        settings.SMTPHost,
			Port:        settings.SMTPPort,
			Username:    settings.SMTPUsername,
			Password:    settings.SMTPPassword,
			From:        settings.MailFrom,
			FrontendURL: settings.FrontendURL,
		})
	} else {
		log.Warn("⚠️ SMTP_HOST absent, e-mails seulement journalisés")
	}

	// --- Services ---
	policy := pricing.ShippingPolicy{FreeThreshold: settings.ShippingFreeThreshold, Fee: settings.ShippingFee}

	catalog := service.NewCatalogService(stores, redisCache, index, files, settings.ProductsBucket)
	carts := cart.NewService(database.Redis, stores.Products, policy, settings.CartTTL)
	addresses := service.NewAddressService(stores.Addresses)
	prescriptions := service.NewPrescriptionService(stores.Prescriptions, files, settings.PrescriptionsBucket,
		settings.PrescriptionMaxBytes, settings.PrescriptionDelay)
	orders := service.NewOrderService(service.OrderDeps{
		Orders:        stores.Orders,
		Inventory:     catalog,
		Cart:          carts,
		Addresses:     addresses,
		Prescriptions: prescriptions,
		Gateway:       gateway,
		Mailer:        mailer,
		Invoices:      utils.ChromeInvoiceRenderer{FrontendURL: settings.FrontendURL, Timeout: 30 * time.Second},
		Policy:        policy,
		Currency:      settings.Currency,
	})
	auth := service.NewAuthService(stores.Users, stores.Profiles, redisCache, mailer, service.AuthConfig{
		Secret:     settings.JWTSecret,
		AccessTTL:  settings.AccessTokenTTL,
		RefreshTTL: settings.RefreshTokenTTL,
	})

	go prescriptions.Run(ctx)
	config.InitOAuthProviders(settings)

	// --- HTTP ---
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{settings.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	streams, closeStreams := context.WithCancel(context.Background())
	defer closeStreams()

	routes.RegisterRoutes(r, routes.Services{
		Auth:                auth,
		Catalog:             catalog,
		Cart:                carts,
		Addresses:           addresses,
		Prescriptions:       prescriptions,
		Orders:              orders,
		Donations:           service.NewDonationService(stores.Donations),
		Profiles:            service.NewProfileService(stores.Profiles, files, settings.AvatarsBucket),
		Cache:               redisCache,
		FrontendURL:         settings.FrontendURL,
		StripeWebhookSecret: settings.StripeWebhookSecret,
		HealthChecks:        checks,
		Streams:             streams,
	})

	srv := &http.Server{
		Addr:              ":" + settings.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(closeStreams)

	go func() {
		log.Println("🚀 Serveur pharmacie lancé sur le port", settings.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ Serveur HTTP: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("🛑 Arrêt demandé, fermeture des connexions...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("❌ Arrêt du serveur: %v", err)
	}
	orders.Wait()
	log.Println("👋 Serveur arrêté")
}

// selectFiles refuse de démarrer un déploiement persistant sans MinIO: les
// ordonnances et images seraient perdues au redémarrage.
func selectFiles(driver string, minioReady bool) (storage.Store, error) {
	if minioReady {
		return storage.NewMinIO(database.MinIO), nil
	}
	if driver != config.DriverMemory {
		return nil, fmt.Errorf("MINIO_ENDPOINT requis avec STORAGE_DRIVER=%s", driver)
	}
	log.Warn("⚠️ MinIO non configuré, fichiers gardés en mémoire")
	return storage.NewMemory(), nil
}
