package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	ProductCacheTTL  = 10 * time.Minute
	CategoryCacheTTL = time.Hour
)

// Store regroupe les usages Redis hors panier: cache JSON, jetons, limitation.
type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Client() *redis.Client { return s.rdb }

// --- Cache générique ---

// GetJSON remplit dest si la clé existe. Renvoie false sur absence ou erreur.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("⚠️ Lecture cache %s: %v", key, err)
		}
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

func (s *Store) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		log.Printf("⚠️ Écriture cache %s: %v", key, err)
	}
}

// DeletePattern supprime toutes les clés correspondant au motif (SCAN, jamais KEYS).
func (s *Store) DeletePattern(ctx context.Context, pattern string) {
	iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		s.rdb.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		log.Printf("⚠️ Invalidation cache %s: %v", pattern, err)
	}
}

// --- Rate Limiting ---

// Hit incrémente le compteur et pose l'expiration à la première occurrence.
func (s *Store) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := s.rdb.Expire(ctx, key, window).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (s *Store) Count(ctx context.Context, key string) (int64, error) {
	val, err := s.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return val, err
}

func (s *Store) Reset(ctx context.Context, keys ...string) {
	s.rdb.Del(ctx, keys...)
}

// Cooldown renvoie le temps restant d'un verrou temporaire (0 si absent).
func (s *Store) Cooldown(ctx context.Context, key string) time.Duration {
	ttl, err := s.rdb.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		return 0
	}
	return ttl
}

func (s *Store) StartCooldown(ctx context.Context, key string, d time.Duration) error {
	return s.rdb.Set(ctx, key, "1", d).Err()
}

func refreshKey(userID, tokenID string) string {
	return fmt.Sprintf("refresh:%s:%s", userID, tokenID)
}
