package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// dialClient 建立一条真实 websocket 连接并注册到 hub
func dialClient(t *testing.T, hub *Hub, jobID string) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(&Client{JobID: jobID, Conn: conn})
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Wait for the server-side register to land
	deadline := time.Now().Add(time.Second)
	for !hub.HasSubscribers(jobID) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, hub.HasSubscribers(jobID))
	return conn
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub()

	c1 := &Client{JobID: "job-1"}
	c2 := &Client{JobID: "job-1"}
	hub.Register(c1)
	hub.Register(c2)

	assert.True(t, hub.HasSubscribers("job-1"))
	assert.False(t, hub.HasSubscribers("job-2"))
	assert.Equal(t, 2, hub.ConnectionCount())

	hub.Unregister(c1)
	assert.True(t, hub.HasSubscribers("job-1"))
	assert.Equal(t, 1, hub.ConnectionCount())

	hub.Unregister(c2)
	assert.False(t, hub.HasSubscribers("job-1"))
	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestHub_SendToJob(t *testing.T) {
	hub := NewHub()
	conn := dialClient(t, hub, "job-1")

	require.NoError(t, hub.SendToJob("job-1", &Message{
		Type: "job_progress",
		Data: map[string]string{"step": "analyzing"},
	}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "job_progress", msg.Type)
	assert.Equal(t, "analyzing", msg.Data["step"])
}

func TestHub_SendToJobIsJobScoped(t *testing.T) {
	hub := NewHub()
	conn1 := dialClient(t, hub, "job-1")
	conn2 := dialClient(t, hub, "job-2")

	require.NoError(t, hub.SendToJob("job-1", &Message{Type: "job_progress"}))

	conn1.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn1.ReadMessage()
	require.NoError(t, err)

	// Other job's connection stays silent
	conn2.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = conn2.ReadMessage()
	assert.Error(t, err)
}

func TestHub_SendToJobNoSubscribers(t *testing.T) {
	hub := NewHub()
	assert.NoError(t, hub.SendToJob("nobody", &Message{Type: "job_progress"}))
}
