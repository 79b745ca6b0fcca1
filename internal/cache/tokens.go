package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrTokenNotFound = errors.New("refresh token inconnu ou expiré")

// --- Refresh Tokens (un par appareil) ---

func (s *Store) StoreRefreshToken(ctx context.Context, userID, tokenID, secretHash string, ttl time.Duration) error {
	return s.rdb.Set(ctx, refreshKey(userID, tokenID), secretHash, ttl).Err()
}

// ConsumeRefreshToken lit et supprime le token en une seule commande (GETDEL):
// parmi des rafraîchissements concurrents, un seul obtient le hash.
func (s *Store) ConsumeRefreshToken(ctx context.Context, userID, tokenID string) (string, error) {
	v, err := s.rdb.GetDel(ctx, refreshKey(userID, tokenID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenNotFound
	}
	return v, err
}

func (s *Store) DeleteRefreshToken(ctx context.Context, userID, tokenID string) error {
	return s.rdb.Del(ctx, refreshKey(userID, tokenID)).Err()
}

// DeleteAllRefreshTokens déconnecte tous les appareils d'un utilisateur.
func (s *Store) DeleteAllRefreshTokens(ctx context.Context, userID string) {
	s.DeletePattern(ctx, fmt.Sprintf("refresh:%s:*", userID))
}

// --- Blacklist JWT (révocation avant expiration) ---

func (s *Store) BlacklistToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, "blacklist:"+tokenID, "revoked", ttl).Err()
}

// IsTokenBlacklisted remonte l'erreur Redis: l'appelant refuse le jeton plutôt que de l'accepter à l'aveugle.
func (s *Store) IsTokenBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	exists, err := s.rdb.Exists(ctx, "blacklist:"+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("vérification blacklist: %w", err)
	}
	return exists > 0, nil
}
