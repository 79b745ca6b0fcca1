package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"pharmacie_back_end/internal/models"
)

var ErrInvalidRefreshToken = errors.New("refresh token invalide")

// Claims du jeton d'accès. RegisteredClaims.ID porte le jti utilisé par la blacklist.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func GenerateJWT(secret string, user models.User, ttl time.Duration) (string, *Claims, error) {
	now := time.Now()
	claims := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// ParseJWT vérifie signature, algorithme et expiration.
func ParseJWT(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("méthode de signature inattendue: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" || claims.ID == "" {
		return nil, errors.New("token invalide")
	}
	return claims, nil
}

// RefreshToken est opaque pour le client: "<user_id>.<token_id>.<secret>".
// Seul le hash du secret est conservé dans Redis.
type RefreshToken struct {
	UserID  string
	TokenID string
	Secret  string
}

func NewRefreshToken(userID string) (RefreshToken, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{
		UserID:  userID,
		TokenID: uuid.NewString(),
		Secret:  base64.RawURLEncoding.EncodeToString(buf),
	}, nil
}

func (t RefreshToken) String() string {
	return t.UserID + "." + t.TokenID + "." + t.Secret
}

func (t RefreshToken) Hash() string {
	sum := sha256.Sum256([]byte(t.Secret))
	return hex.EncodeToString(sum[:])
}

func ParseRefreshToken(raw string) (RefreshToken, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return RefreshToken{}, ErrInvalidRefreshToken
	}
	if _, err := uuid.Parse(parts[1]); err != nil {
		return RefreshToken{}, ErrInvalidRefreshToken
	}
	return RefreshToken{UserID: parts[0], TokenID: parts[1], Secret: parts[2]}, nil
}
