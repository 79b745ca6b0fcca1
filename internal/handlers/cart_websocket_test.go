package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsMessage struct {
	Type string `json:"type"`
	Cart struct {
		Items []struct {
			Name     string `json:"name"`
			Quantity int    `json:"quantity"`
		} `json:"items"`
	} `json:"cart"`
}

func TestCartWebSocketPushesUpdates(t *testing.T) {
	a := newApp(t)
	p := a.seedProduct(a.admin(), 30, 10)
	token := a.register("client@example.in")

	srv := httptest.NewServer(a.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/cart/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	read := func() wsMessage {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	assert.Equal(t, "connected", read().Type)
	initial := read()
	assert.Equal(t, "cart_updated", initial.Type)
	assert.Empty(t, initial.Cart.Items)

	w := a.do(http.MethodPost, "/api/cart/items", token, gin.H{"product_id": p.ID.String(), "quantity": 3})
	require.Equal(t, http.StatusOK, w.Code)

	msg := read()
	assert.Equal(t, "cart_updated", msg.Type)
	require.Len(t, msg.Cart.Items, 1)
	assert.Equal(t, 3, msg.Cart.Items[0].Quantity)

	require.Equal(t, http.StatusOK, a.do(http.MethodDelete, "/api/cart", token, nil).Code)
	assert.Equal(t, "cart_cleared", read().Type)
}

func TestCartWebSocketRequiresToken(t *testing.T) {
	a := newApp(t)
	srv := httptest.NewServer(a.router)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/cart/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCartWebSocketClosesOnServerShutdown(t *testing.T) {
	a := newApp(t)
	token := a.register("client@example.in")

	srv := httptest.NewServer(a.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/cart/ws?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	require.NoError(t, conn.ReadJSON(&msg))

	a.closeStreams()
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "fermeture propre attendue: %v", err)
}
