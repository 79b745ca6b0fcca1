package config

import (
	"errors"
	"net/http"
	"os"

	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/facebook"
	"github.com/markbates/goth/providers/google"
	log "github.com/sirupsen/logrus"
)

// InitOAuthProviders configure goth avec les providers dont les clés sont présentes.
// Retourne le nombre de providers activés.
func InitOAuthProviders(s Settings) int {
	secret := s.SessionSecret
	if secret == "" {
		log.Warn("⚠️ SESSION_SECRET manquant, OAuth désactivé")
		return 0
	}

	store := sessions.NewCookieStore([]byte(secret))
	store.MaxAge(86400 * 30)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		Secure:   os.Getenv("GIN_MODE") == "release",
		SameSite: http.SameSiteLaxMode,
	}
	gothic.Store = store

	gothic.GetProviderName = func(req *http.Request) (string, error) {
		if provider := req.URL.Query().Get("provider"); provider != "" {
			return provider, nil
		}
		if provider := req.FormValue("provider"); provider != "" {
			return provider, nil
		}
		return "", errors.New("provider not found")
	}

	var providers []goth.Provider

	if id, key := os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("GOOGLE_CLIENT_SECRET"); id != "" && key != "" {
		providers = append(providers, google.New(id, key, s.BaseURL+"/api/auth/oauth/google/callback", "email", "profile"))
		log.Println("✅ Google OAuth activé")
	}
	if id, key := os.Getenv("FACEBOOK_CLIENT_ID"), os.Getenv("FACEBOOK_CLIENT_SECRET"); id != "" && key != "" {
		providers = append(providers, facebook.New(id, key, s.BaseURL+"/api/auth/oauth/facebook/callback", "email"))
		log.Println("✅ Facebook OAuth activé")
	}

	if len(providers) == 0 {
		log.Println("⚠️ Aucun provider OAuth configuré")
		return 0
	}

	goth.UseProviders(providers...)
	log.Printf("✅ %d OAuth provider(s) initialisé(s)", len(providers))
	return len(providers)
}
