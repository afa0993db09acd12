package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"campus_social/internal/domain"
	"campus_social/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := strconv.ParseInt(r.URL.Query().Get("user"), 10, 64)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewSession(userID, conn, SessionConfig{PingInterval: time.Second, WriteWait: time.Second}, logger.Nop()).Serve(hub)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, hub *Hub, userID int64) *websocket.Conn {
	t.Helper()
	before := hub.SessionCount(userID)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + strconv.FormatInt(userID, 10)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return hub.SessionCount(userID) == before+1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestLocalPublisherPushReachesEverySessionOfUser(t *testing.T) {
	hub := NewHub(logger.Nop())
	srv := newHubServer(t, hub)
	pub := NewLocalPublisher(hub, logger.Nop())

	first := dial(t, srv, hub, 2)
	second := dial(t, srv, hub, 2)
	other := dial(t, srv, hub, 3)

	pub.Push(context.Background(), 2, domain.Envelope{Type: domain.EventNewMessage, Data: map[string]int{"id": 1}})

	assert.Equal(t, domain.EventNewMessage, readEnvelope(t, first)["type"])
	assert.Equal(t, domain.EventNewMessage, readEnvelope(t, second)["type"])

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err, "user 3 must not receive user 2's push")
}

func TestLocalPublisherPushWithoutSessionsIsNoop(t *testing.T) {
	hub := NewHub(logger.Nop())
	pub := NewLocalPublisher(hub, logger.Nop())

	assert.NotPanics(t, func() {
		pub.Push(context.Background(), 42, domain.Envelope{Type: domain.EventNewNotification})
	})
	assert.Zero(t, hub.Deliver(42, []byte(`{}`)))
}

func TestLocalPublisherSwallowsEncodingErrors(t *testing.T) {
	hub := NewHub(logger.Nop())
	pub := NewLocalPublisher(hub, logger.Nop())

	assert.NotPanics(t, func() {
		pub.Push(context.Background(), 1, domain.Envelope{Type: "bad", Data: make(chan int)})
	})
}

func TestBroadcastReachesAllUsers(t *testing.T) {
	hub := NewHub(logger.Nop())
	srv := newHubServer(t, hub)
	pub := NewLocalPublisher(hub, logger.Nop())

	a := dial(t, srv, hub, 1)
	b := dial(t, srv, hub, 2)

	pub.Broadcast(context.Background(), domain.Envelope{Type: domain.EventAnnouncement, Data: "maintenance"})

	assert.Equal(t, "maintenance", readEnvelope(t, a)["data"])
	assert.Equal(t, "maintenance", readEnvelope(t, b)["data"])
}

func TestSessionAnswersPing(t *testing.T) {
	hub := NewHub(logger.Nop())
	srv := newHubServer(t, hub)
	conn := dial(t, srv, hub, 5)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, domain.EventPong, readEnvelope(t, conn)["type"])
}

func TestSessionUnregistersOnClose(t *testing.T) {
	hub := NewHub(logger.Nop())
	srv := newHubServer(t, hub)
	conn := dial(t, srv, hub, 8)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.SessionCount(8) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRedisPublisherRelaysThroughChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hub := NewHub(logger.Nop())
	srv := newHubServer(t, hub)
	pub := NewRedisPublisher(rdb, "test:realtime", hub, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = pub.Run(ctx) }()
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("test:realtime")["test:realtime"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn := dial(t, srv, hub, 4)
	pub.Push(ctx, 4, domain.Envelope{Type: domain.EventNewNotification, Data: map[string]int{"id": 9}})

	env := readEnvelope(t, conn)
	assert.Equal(t, domain.EventNewNotification, env["type"])
	assert.EqualValues(t, 9, env["data"].(map[string]interface{})["id"])
}
