package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/markbates/goth/gothic"
	log "github.com/sirupsen/logrus"

	"pharmacie_back_end/internal/middleware"
	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/service"
)

type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var in models.RegisterInput
	if !bindJSON(c, &in) {
		return
	}
	tokens, err := h.auth.Register(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tokens)
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var in models.LoginInput
	if !bindJSON(c, &in) {
		return
	}
	tokens, err := h.auth.Login(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var in models.RefreshInput
	if !bindJSON(c, &in) {
		return
	}
	tokens, err := h.auth.Refresh(c.Request.Context(), in.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

// POST /api/auth/logout (refresh_token optionnel dans le corps)
func (h *AuthHandler) Logout(c *gin.Context) {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.ShouldBindJSON(&in)

	if err := h.auth.Logout(c.Request.Context(), middleware.Claims(c), in.RefreshToken); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Déconnexion réussie"})
}

// POST /api/auth/logout-all
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	if err := h.auth.LogoutAll(c.Request.Context(), middleware.Claims(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Toutes les sessions ont été fermées"})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, profile, err := h.auth.Me(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "profile": profile})
}

// --- OAuth (goth) ---

func withProvider(c *gin.Context) bool {
	provider := c.Param("provider")
	if provider == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "aucun provider spécifié"})
		return false
	}
	q := c.Request.URL.Query()
	q.Set("provider", provider)
	c.Request.URL.RawQuery = q.Encode()
	return true
}

// GET /api/auth/oauth/:provider
func (h *AuthHandler) BeginOAuth(c *gin.Context) {
	if !withProvider(c) {
		return
	}
	gothic.BeginAuthHandler(c.Writer, c.Request)
}

// GET /api/auth/oauth/:provider/callback
func (h *AuthHandler) OAuthCallback(c *gin.Context) {
	if !withProvider(c) {
		return
	}

	user, err := gothic.CompleteUserAuth(c.Writer, c.Request)
	if err != nil {
		log.Warnf("⚠️ OAuth %s échoué: %v", c.Param("provider"), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authentification OAuth échouée"})
		return
	}

	tokens, err := h.auth.OAuthLogin(c.Request.Context(), service.OAuthIdentity{
		Provider:      user.Provider,
		ProviderID:    user.UserID,
		Email:         user.Email,
		Name:          user.Name,
		EmailVerified: emailVerified(user.RawData),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

// emailVerified lit le drapeau renvoyé par le fournisseur (email_verified en
// OpenID Connect, verified_email sur l'API userinfo v2 de Google). Absent: non vérifié.
func emailVerified(raw map[string]interface{}) bool {
	for _, key := range []string{"email_verified", "verified_email"} {
		switch v := raw[key].(type) {
		case bool:
			if v {
				return true
			}
		case string:
			if strings.EqualFold(v, "true") {
				return true
			}
		}
	}
	return false
}
