package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"pharmacie_back_end/internal/cart"
)

const (
	wsPingPeriod = 30 * time.Second
	// wsPongWait doit dépasser wsPingPeriod: chaque pong repousse l'échéance de lecture.
	wsPongWait     = 60 * time.Second
	wsWriteWait    = 10 * time.Second
	wsMaxReadBytes = 512
)

func (h *CartHandler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return h.allowedOrigin == "" || origin == "" || origin == h.allowedOrigin
		},
	}
}

// GET /api/cart/ws : pousse le panier à jour à chaque modification.
func (h *CartHandler) WebSocket(c *gin.Context) {
	userID := c.GetString("user_id")

	up := h.upgrader()
	conn, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ Erreur upgrade WebSocket: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(h.streams)
	defer cancel()

	pubsub := h.carts.Subscribe(ctx, userID)
	defer pubsub.Close()
	events := pubsub.Channel()

	// Lecture uniquement pour détecter la fermeture côté client, ou un client
	// muet qui ne répond plus aux pings.
	conn.SetReadLimit(wsMaxReadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(v any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(v) == nil
	}
	pushCart := func(kind string) bool {
		view, err := h.carts.Get(ctx, userID)
		if err != nil {
			log.WithField("user_id", userID).Warnf("⚠️ Lecture panier pour websocket: %v", err)
			return true
		}
		return send(gin.H{"type": kind, "cart": view})
	}

	if !send(gin.H{"type": "connected", "message": "Synchronisation panier activée"}) || !pushCart("cart_updated") {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			if h.streams.Err() != nil {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "arrêt du serveur")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
			}
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			kind := "cart_updated"
			if msg.Payload == cart.EventCleared {
				kind = "cart_cleared"
			}
			if !pushCart(kind) {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
