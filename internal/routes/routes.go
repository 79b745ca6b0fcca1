package routes

import (
	"context"

	"github.com/gin-gonic/gin"

	"pharmacie_back_end/internal/cache"
	"pharmacie_back_end/internal/cart"
	"pharmacie_back_end/internal/handlers"
	"pharmacie_back_end/internal/middleware"
	"pharmacie_back_end/internal/service"
)

// Services regroupe ce dont les routes ont besoin.
type Services struct {
	Auth          *service.AuthService
	Catalog       *service.CatalogService
	Cart          *cart.Service
	Addresses     *service.AddressService
	Prescriptions *service.PrescriptionService
	Orders        *service.OrderService
	Donations     *service.DonationService
	Profiles      *service.ProfileService
	Cache         *cache.Store

	FrontendURL         string
	StripeWebhookSecret string
	HealthChecks        map[string]handlers.Check
	// Streams borne la vie des websockets; annulé à l'arrêt du serveur.
	Streams context.Context
}

func RegisterRoutes(r *gin.Engine, s Services) {
	authH := handlers.NewAuthHandler(s.Auth)
	catalogH := handlers.NewCatalogHandler(s.Catalog)
	cartH := handlers.NewCartHandler(s.Cart, s.FrontendURL, s.Streams)
	addressH := handlers.NewAddressHandler(s.Addresses)
	prescriptionH := handlers.NewPrescriptionHandler(s.Prescriptions)
	orderH := handlers.NewOrderHandler(s.Orders)
	donationH := handlers.NewDonationHandler(s.Donations)
	profileH := handlers.NewProfileHandler(s.Profiles)
	paymentH := handlers.NewPaymentHandler(s.Orders, s.StripeWebhookSecret)

	authRequired := middleware.AuthRequired(s.Auth)

	r.GET("/health", handlers.Health(s.HealthChecks))

	api := r.Group("/api")
	api.Use(middleware.APIRateLimit(s.Cache))

	// 🔐 Auth
	auth := api.Group("/auth")
	{
		auth.POST("/register", middleware.RegisterRateLimit(s.Cache), authH.Register)
		auth.POST("/login", authH.Login)
		auth.POST("/refresh", authH.Refresh)
		auth.GET("/oauth/:provider", authH.BeginOAuth)
		auth.GET("/oauth/:provider/callback", authH.OAuthCallback)

		auth.POST("/logout", authRequired, authH.Logout)
		auth.POST("/logout-all", authRequired, authH.LogoutAll)
		auth.GET("/me", authRequired, authH.Me)
	}

	// 🛍️ Catalogue public
	api.GET("/products", catalogH.ListProducts)
	api.GET("/products/search", middleware.SearchRateLimit(s.Cache), catalogH.Search)
	api.GET("/products/:id", catalogH.GetProduct)
	api.GET("/categories", catalogH.ListCategories)
	api.GET("/categories/:slug/products", catalogH.CategoryProducts)
	api.GET("/medicines", catalogH.ListMedicines)

	// 💳 Stripe appelle sans JWT, la signature fait foi
	api.POST("/payments/webhook", paymentH.Webhook)

	user := api.Group("")
	user.Use(authRequired)
	{
		user.GET("/profile", profileH.Get)
		user.PUT("/profile", profileH.Update)
		user.POST("/profile/avatar", profileH.UploadAvatar)

		user.GET("/cart", cartH.Get)
		user.GET("/cart/ws", cartH.WebSocket)
		user.DELETE("/cart", cartH.Clear)
		cartWrites := user.Group("/cart/items", middleware.CartRateLimit(s.Cache))
		cartWrites.POST("", cartH.Add)
		cartWrites.PUT("/:product_id", cartH.Update)
		cartWrites.DELETE("/:product_id", cartH.Remove)

		user.GET("/addresses", addressH.List)
		user.GET("/addresses/default", addressH.Default)
		user.POST("/addresses", addressH.Create)
		user.PUT("/addresses/:id", addressH.Update)
		user.DELETE("/addresses/:id", addressH.Delete)
		user.POST("/addresses/:id/default", addressH.SetDefault)

		user.POST("/prescriptions", prescriptionH.Upload)
		user.GET("/prescriptions", prescriptionH.List)
		user.GET("/prescriptions/:id", prescriptionH.Get)
		user.GET("/prescriptions/:id/file", prescriptionH.File)
		user.DELETE("/prescriptions/:id", prescriptionH.Delete)

		user.POST("/orders/checkout", orderH.Checkout)
		user.GET("/orders", orderH.List)
		user.GET("/orders/:id", orderH.Get)
		user.POST("/orders/:id/cancel", orderH.Cancel)
		user.GET("/orders/:id/invoice", orderH.Invoice)

		user.POST("/donations", donationH.Create)
		user.GET("/donations", donationH.List)
		user.GET("/donations/:id", donationH.Get)
	}

	// 🛡️ Admin
	admin := api.Group("/admin")
	admin.Use(authRequired, middleware.RequireAdmin, middleware.AdminAudit())
	{
		admin.GET("/products", catalogH.AdminListProducts)
		admin.GET("/products/export", catalogH.ExportProducts)
		admin.POST("/products/import", catalogH.ImportProducts)
		admin.POST("/products", catalogH.CreateProduct)
		admin.PUT("/products/:id", catalogH.UpdateProduct)
		admin.DELETE("/products/:id", catalogH.DeleteProduct)
		admin.POST("/products/:id/image", catalogH.UploadImage)

		admin.POST("/categories", catalogH.CreateCategory)
		admin.DELETE("/categories/:id", catalogH.DeleteCategory)
		admin.POST("/medicines", catalogH.CreateMedicine)

		admin.POST("/prescriptions/:id/review", prescriptionH.Review)

		admin.GET("/orders", orderH.ListAll)
		admin.PUT("/orders/:id/status", orderH.UpdateStatus)

		admin.GET("/donations", donationH.ListAll)
		admin.PUT("/donations/:id/status", donationH.UpdateStatus)
	}
}
