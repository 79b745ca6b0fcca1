package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"pharmacie_back_end/internal/cache"
	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/store"
	"pharmacie_back_end/internal/utils"
)

const (
	LoginMaxAttempts = 5
	LoginCooldown    = 15 * time.Minute
)

var (
	ErrInvalidCredentials = errors.New("email ou mot de passe incorrect")
	ErrTooManyAttempts    = errors.New("trop de tentatives échouées")
	ErrInvalidToken       = errors.New("token invalide ou expiré")
)

// CooldownError porte le délai restant avant une nouvelle tentative.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%v, réessayez dans %d minutes", ErrTooManyAttempts, int(e.RetryAfter.Minutes())+1)
}

func (e *CooldownError) Unwrap() error { return ErrTooManyAttempts }

type Tokens struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	User         models.User `json:"user"`
}

type AuthService struct {
	users      store.Users
	profiles   store.Profiles
	tokens     *cache.Store
	mailer     utils.Mailer
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	Clock      Clock
}

type AuthConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func NewAuthService(users store.Users, profiles store.Profiles, tokens *cache.Store, mailer utils.Mailer, cfg AuthConfig) *AuthService {
	if mailer == nil {
		mailer = utils.LogMailer{}
	}
	return &AuthService{
		users:      users,
		profiles:   profiles,
		tokens:     tokens,
		mailer:     mailer,
		secret:     cfg.Secret,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Register(ctx context.Context, in models.RegisterInput) (Tokens, error) {
	if len(in.Password) < 8 {
		return Tokens{}, invalidf("mot de passe trop court (8 caractères minimum)")
	}
	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return Tokens{}, err
	}

	u := models.User{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(in.Name),
		Email:     normalizeEmail(in.Email),
		Password:  hash,
		Role:      models.RoleCustomer,
		Provider:  "local",
		CreatedAt: s.Clock.now(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return Tokens{}, conflictf("email déjà utilisé")
		}
		return Tokens{}, err
	}
	s.createProfile(ctx, u)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.mailer.SendWelcome(ctx, u); err != nil {
			log.Printf("❌ Erreur envoi email de bienvenue: %v", err)
		}
	}()

	log.Printf("👤 Nouvel utilisateur %s", u.Email)
	return s.issue(ctx, u)
}

func (s *AuthService) createProfile(ctx context.Context, u models.User) {
	p := models.UserProfile{UserID: u.ID, FullName: u.Name, UpdatedAt: s.Clock.now()}
	if err := s.profiles.Upsert(ctx, p); err != nil {
		log.Printf("⚠️ Création profil %s: %v", u.ID, err)
	}
}

func loginAttemptsKey(email string) string { return "login_attempts:" + email }
func loginCooldownKey(email string) string { return "login_cooldown:" + email }

// Login: après LoginMaxAttempts échecs, l'email est bloqué pendant LoginCooldown.
func (s *AuthService) Login(ctx context.Context, in models.LoginInput) (Tokens, error) {
	email := normalizeEmail(in.Email)

	if wait := s.tokens.Cooldown(ctx, loginCooldownKey(email)); wait > 0 {
		return Tokens{}, &CooldownError{RetryAfter: wait}
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Tokens{}, err
	}
	ok := false
	if err == nil && u.Password != "" {
		ok, _ = utils.VerifyPassword(in.Password, u.Password)
	}
	if !ok {
		return Tokens{}, s.loginFailed(ctx, email)
	}

	s.tokens.Reset(ctx, loginAttemptsKey(email))
	log.Printf("🔓 Connexion %s", email)
	return s.issue(ctx, u)
}

func (s *AuthService) loginFailed(ctx context.Context, email string) error {
	n, err := s.tokens.Hit(ctx, loginAttemptsKey(email), LoginCooldown)
	if err != nil {
		log.Printf("⚠️ Compteur de tentatives %s: %v", email, err)
		return ErrInvalidCredentials
	}
	if n >= LoginMaxAttempts {
		if err := s.tokens.StartCooldown(ctx, loginCooldownKey(email), LoginCooldown); err != nil {
			log.Printf("⚠️ Blocage %s: %v", email, err)
		}
		s.tokens.Reset(ctx, loginAttemptsKey(email))
		log.Printf("🚫 %s bloqué %s après %d échecs", email, LoginCooldown, n)
		return &CooldownError{RetryAfter: LoginCooldown}
	}
	return ErrInvalidCredentials
}

// Refresh consomme le refresh token et en émet un nouveau (rotation).
func (s *AuthService) Refresh(ctx context.Context, raw string) (Tokens, error) {
	rt, err := utils.ParseRefreshToken(raw)
	if err != nil {
		return Tokens{}, ErrInvalidToken
	}
	stored, err := s.tokens.ConsumeRefreshToken(ctx, rt.UserID, rt.TokenID)
	if err != nil {
		if errors.Is(err, cache.ErrTokenNotFound) {
			return Tokens{}, ErrInvalidToken
		}
		return Tokens{}, err
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(rt.Hash())) != 1 {
		return Tokens{}, ErrInvalidToken
	}

	u, err := s.users.Get(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Tokens{}, ErrInvalidToken
		}
		return Tokens{}, err
	}
	return s.issue(ctx, u)
}

// Logout révoque le jeton d'accès courant jusqu'à son expiration, et le refresh token s'il est fourni.
func (s *AuthService) Logout(ctx context.Context, claims *utils.Claims, refreshRaw string) error {
	if claims.ExpiresAt != nil {
		ttl := time.Until(claims.ExpiresAt.Time)
		if err := s.tokens.BlacklistToken(ctx, claims.ID, ttl); err != nil {
			return err
		}
	}
	if refreshRaw == "" {
		return nil
	}
	rt, err := utils.ParseRefreshToken(refreshRaw)
	if err != nil || rt.UserID != claims.UserID {
		return nil
	}
	return s.tokens.DeleteRefreshToken(ctx, rt.UserID, rt.TokenID)
}

// LogoutAll invalide tous les refresh tokens de l'utilisateur.
func (s *AuthService) LogoutAll(ctx context.Context, claims *utils.Claims) error {
	s.tokens.DeleteAllRefreshTokens(ctx, claims.UserID)
	return s.Logout(ctx, claims, "")
}

func (s *AuthService) Me(ctx context.Context, userID string) (models.User, models.UserProfile, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return models.User{}, models.UserProfile{}, err
	}
	p, err := s.profiles.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		p, err = models.UserProfile{UserID: userID}, nil
	}
	return u, p, err
}

// OAuthIdentity est ce que le fournisseur affirme de l'utilisateur.
type OAuthIdentity struct {
	Provider      string
	ProviderID    string
	Email         string
	Name          string
	EmailVerified bool
}

// OAuthLogin retrouve l'utilisateur par fournisseur, puis par email, sinon le crée.
// Un compte existant n'est rattaché que si le fournisseur garantit l'email.
func (s *AuthService) OAuthLogin(ctx context.Context, id OAuthIdentity) (Tokens, error) {
	provider, providerID := id.Provider, id.ProviderID
	if provider == "" || providerID == "" {
		return Tokens{}, invalidf("identité OAuth incomplète")
	}
	u, err := s.users.GetByProvider(ctx, provider, providerID)
	if err == nil {
		return s.issue(ctx, u)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return Tokens{}, err
	}

	email := normalizeEmail(id.Email)
	if email == "" {
		return Tokens{}, invalidf("le fournisseur %s n'a pas communiqué d'email", provider)
	}
	u, err = s.users.GetByEmail(ctx, email)
	if err == nil {
		if !id.EmailVerified {
			log.Printf("🚫 Rattachement %s refusé pour %s: email non vérifié", provider, email)
			return Tokens{}, conflictf("un compte existe déjà pour %s, connectez-vous avec votre mot de passe", email)
		}
		if err := s.users.LinkProvider(ctx, u.ID, provider, providerID); err != nil {
			return Tokens{}, err
		}
		log.Printf("🔗 Compte %s rattaché à %s", email, provider)
		return s.issue(ctx, u)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return Tokens{}, err
	}

	u = models.User{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(id.Name),
		Email:      email,
		Role:       models.RoleCustomer,
		Provider:   provider,
		ProviderID: providerID,
		CreatedAt:  s.Clock.now(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return Tokens{}, conflictf("email déjà utilisé")
		}
		return Tokens{}, err
	}
	s.createProfile(ctx, u)
	log.Printf("👤 Nouvel utilisateur %s via %s", email, provider)
	return s.issue(ctx, u)
}

// ParseAccessToken vérifie le JWT et la blacklist.
func (s *AuthService) ParseAccessToken(ctx context.Context, token string) (*utils.Claims, error) {
	claims, err := utils.ParseJWT(s.secret, token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	revoked, err := s.tokens.IsTokenBlacklisted(ctx, claims.ID)
	if err != nil {
		log.Printf("⚠️ Blacklist indisponible, jeton %s refusé: %v", claims.ID, err)
		return nil, ErrInvalidToken
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *AuthService) issue(ctx context.Context, u models.User) (Tokens, error) {
	access, _, err := utils.GenerateJWT(s.secret, u, s.accessTTL)
	if err != nil {
		return Tokens{}, err
	}
	rt, err := utils.NewRefreshToken(u.ID)
	if err != nil {
		return Tokens{}, err
	}
	if err := s.tokens.StoreRefreshToken(ctx, u.ID, rt.TokenID, rt.Hash(), s.refreshTTL); err != nil {
		return Tokens{}, err
	}
	return Tokens{
		AccessToken:  access,
		RefreshToken: rt.String(),
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
		User:         u,
	}, nil
}
