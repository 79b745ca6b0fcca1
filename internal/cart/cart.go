// Package cart gère le panier de chaque utilisateur dans Redis.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"pharmacie_back_end/internal/models"
	"pharmacie_back_end/internal/pricing"
	"pharmacie_back_end/internal/store"
)

var (
	ErrInvalidQuantity    = errors.New("quantité invalide")
	ErrItemNotFound       = errors.New("produit absent du panier")
	ErrProductNotFound    = errors.New("produit introuvable")
	ErrUnavailable        = errors.New("produit indisponible")
	ErrInsufficientStock  = errors.New("stock insuffisant")
	ErrCheckoutInProgress = errors.New("une commande est déjà en cours pour ce panier")
)

const (
	// LockTTL borne la durée d'un verrou de commande orphelin (processus tué).
	LockTTL    = 30 * time.Second
	maxRetries = 10
)

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

const (
	EventUpdated = "updated"
	EventCleared = "cleared"
)

// ProductLookup est la seule dépendance catalogue du panier.
type ProductLookup interface {
	Get(ctx context.Context, id gocql.UUID) (models.Product, error)
}

type Service struct {
	rdb      *redis.Client
	products ProductLookup
	policy   pricing.ShippingPolicy
	ttl      time.Duration
}

func NewService(rdb *redis.Client, products ProductLookup, policy pricing.ShippingPolicy, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Service{rdb: rdb, products: products, policy: policy, ttl: ttl}
}

// Key est aussi le nom du canal pub/sub du panier.
func Key(userID string) string {
	return "cart:" + userID
}

func lockKey(userID string) string {
	return "cart_lock:" + userID
}

func (s *Service) Policy() pricing.ShippingPolicy { return s.policy }

// Lock pose un verrou de commande (SET NX) sur le panier. La fonction renvoyée
// ne supprime que son propre verrou, même s'il a expiré et été repris entre-temps.
func (s *Service) Lock(ctx context.Context, userID string) (func(), error) {
	token := uuid.NewString()
	ok, err := s.rdb.SetNX(ctx, lockKey(userID), token, LockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("verrou panier: %w", err)
	}
	if !ok {
		return nil, ErrCheckoutInProgress
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := unlockScript.Run(ctx, s.rdb, []string{lockKey(userID)}, token).Err(); err != nil {
			log.Printf("⚠️ Libération verrou panier %s: %v", userID, err)
		}
	}, nil
}

// Items renvoie les lignes brutes du panier (vide si absent).
func (s *Service) Items(ctx context.Context, userID string) ([]models.CartItem, error) {
	return readItems(ctx, s.rdb, Key(userID))
}

func readItems(ctx context.Context, c redis.Cmdable, key string) ([]models.CartItem, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return []models.CartItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lecture panier: %w", err)
	}
	var items []models.CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("décodage panier: %w", err)
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, userID string) (models.Cart, error) {
	items, err := s.Items(ctx, userID)
	if err != nil {
		return models.Cart{}, err
	}
	return s.view(userID, items), nil
}

func (s *Service) view(userID string, items []models.CartItem) models.Cart {
	c := models.Cart{
		UserID: userID,
		Items:  items,
		Totals: pricing.Calculate(items, s.policy),
	}
	for _, it := range items {
		if it.RequiresPrescription {
			c.RequiresPrescription = true
			break
		}
	}
	return c
}

// Add ajoute qty unités, ou les cumule si le produit est déjà présent.
func (s *Service) Add(ctx context.Context, userID string, productID gocql.UUID, qty int) (models.Cart, error) {
	if qty < 1 {
		return models.Cart{}, ErrInvalidQuantity
	}

	p, err := s.lookup(ctx, productID)
	if err != nil {
		return models.Cart{}, err
	}

	items, err := s.mutate(ctx, userID, func(items []models.CartItem) ([]models.CartItem, error) {
		if idx := indexOf(items, productID); idx >= 0 {
			if items[idx].Quantity+qty > p.Stock {
				return nil, ErrInsufficientStock
			}
			items[idx] = snapshot(p, items[idx].Quantity+qty)
			return items, nil
		}
		if qty > p.Stock {
			return nil, ErrInsufficientStock
		}
		return append(items, snapshot(p, qty)), nil
	})
	if err != nil {
		return models.Cart{}, err
	}
	return s.view(userID, items), nil
}

// Update fixe la quantité; 0 retire la ligne.
func (s *Service) Update(ctx context.Context, userID string, productID gocql.UUID, qty int) (models.Cart, error) {
	if qty < 0 {
		return models.Cart{}, ErrInvalidQuantity
	}
	if qty == 0 {
		return s.Remove(ctx, userID, productID)
	}

	current, err := s.Items(ctx, userID)
	if err != nil {
		return models.Cart{}, err
	}
	if indexOf(current, productID) < 0 {
		return models.Cart{}, ErrItemNotFound
	}
	p, err := s.lookup(ctx, productID)
	if err != nil {
		return models.Cart{}, err
	}
	if qty > p.Stock {
		return models.Cart{}, ErrInsufficientStock
	}

	items, err := s.mutate(ctx, userID, func(items []models.CartItem) ([]models.CartItem, error) {
		idx := indexOf(items, productID)
		if idx < 0 {
			return nil, ErrItemNotFound
		}
		items[idx] = snapshot(p, qty)
		return items, nil
	})
	if err != nil {
		return models.Cart{}, err
	}
	return s.view(userID, items), nil
}

func (s *Service) Remove(ctx context.Context, userID string, productID gocql.UUID) (models.Cart, error) {
	items, err := s.mutate(ctx, userID, func(items []models.CartItem) ([]models.CartItem, error) {
		idx := indexOf(items, productID)
		if idx < 0 {
			return nil, ErrItemNotFound
		}
		return append(items[:idx], items[idx+1:]...), nil
	})
	if err != nil {
		return models.Cart{}, err
	}
	return s.view(userID, items), nil
}

// mutate relit et réécrit le panier sous WATCH: si une autre requête écrit le
// panier entre la lecture et l'écriture, la transaction échoue et fn est rejouée.
func (s *Service) mutate(ctx context.Context, userID string, fn func([]models.CartItem) ([]models.CartItem, error)) ([]models.CartItem, error) {
	key := Key(userID)
	var next []models.CartItem

	txf := func(tx *redis.Tx) error {
		items, err := readItems(ctx, tx, key)
		if err != nil {
			return err
		}
		next, err = fn(items)
		if err != nil {
			return err
		}
		var data []byte
		if len(next) > 0 {
			if data, err = json.Marshal(next); err != nil {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(next) == 0 {
				pipe.Del(ctx, key)
			} else {
				pipe.Set(ctx, key, data, s.ttl)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrItemNotFound) || errors.Is(err, ErrInsufficientStock) {
				return nil, err
			}
			return nil, fmt.Errorf("sauvegarde panier: %w", err)
		}
		if len(next) == 0 {
			s.publish(ctx, userID, EventCleared)
		} else {
			s.publish(ctx, userID, EventUpdated)
		}
		return next, nil
	}
	return nil, fmt.Errorf("panier %s modifié trop souvent, réessayez", userID)
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, Key(userID)).Err(); err != nil {
		return fmt.Errorf("vidage panier: %w", err)
	}
	s.publish(ctx, userID, EventCleared)
	return nil
}

func (s *Service) lookup(ctx context.Context, id gocql.UUID) (models.Product, error) {
	p, err := s.products.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.Product{}, ErrProductNotFound
	}
	if err != nil {
		return models.Product{}, err
	}
	if !p.IsActive {
		return models.Product{}, ErrUnavailable
	}
	return p, nil
}

func (s *Service) publish(ctx context.Context, userID, event string) {
	if err := s.rdb.Publish(ctx, Key(userID), event).Err(); err != nil {
		log.Printf("⚠️ Publication panier %s: %v", userID, err)
	}
}

// Subscribe écoute les évènements du panier (EventUpdated, EventCleared).
func (s *Service) Subscribe(ctx context.Context, userID string) *redis.PubSub {
	return s.rdb.Subscribe(ctx, Key(userID))
}

func snapshot(p models.Product, qty int) models.CartItem {
	item := models.CartItem{
		ProductID:            p.ID,
		Name:                 p.Name,
		Price:                p.Price,
		MRP:                  p.MRP,
		Quantity:             qty,
		RequiresPrescription: p.RequiresPrescription,
	}
	if len(p.ImageURLs) > 0 {
		item.ImageURL = p.ImageURLs[0]
	}
	return item
}

func indexOf(items []models.CartItem, id gocql.UUID) int {
	for i := range items {
		if items[i].ProductID == id {
			return i
		}
	}
	return -1
}
