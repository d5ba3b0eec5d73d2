package compute

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

// computeHandler upgrades the connection and feeds every inbound envelope to
// the reply function.
func computeHandler(t *testing.T, reply func(conn *websocket.Conn, env envelope)) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				return
			}
			reply(conn, env)
		}
	}
}

func respondWith(points [][]float64, indices []int) func(*websocket.Conn, envelope) {
	return func(conn *websocket.Conn, env envelope) {
		data, _ := json.Marshal(Result{Points: points, Indices: indices})
		reply, _ := json.Marshal(envelope{UID: env.UID, Data: data})
		conn.WriteMessage(websocket.TextMessage, reply)
	}
}

func TestComputeRoundTrip(t *testing.T) {
	var gotType string
	var gotGeneration int64
	srv := httptest.NewServer(computeHandler(t, func(conn *websocket.Conn, env envelope) {
		gotType = env.Type
		gotGeneration = env.GenerationID
		respondWith([][]float64{{1, 2}, {3, 4}}, []int{0, 1})(conn, env)
	}))
	defer srv.Close()

	client := Dial(wsURL(srv.URL))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := client.ComputeUMAP(ctx, Request{Column: "embedding", Generation: 3})
	require.NoError(t, err)

	assert.Equal(t, [][]float64{{1, 2}, {3, 4}}, res.Points)
	assert.Equal(t, []int{0, 1}, res.Indices)
	assert.Equal(t, TaskUMAP, gotType)
	assert.EqualValues(t, 3, gotGeneration)
}

func TestComputeDropsUnknownUIDs(t *testing.T) {
	srv := httptest.NewServer(computeHandler(t, func(conn *websocket.Conn, env envelope) {
		stray, _ := json.Marshal(envelope{UID: "nobody-waits-for-this", Data: json.RawMessage(`{"points":[],"indices":[]}`)})
		conn.WriteMessage(websocket.TextMessage, stray)
		respondWith([][]float64{{9, 9}}, []int{2})(conn, env)
	}))
	defer srv.Close()

	client := Dial(wsURL(srv.URL))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := client.ComputePCA(ctx, Request{Column: "embedding"})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, res.Indices)
}

func TestComputeHonorsContext(t *testing.T) {
	srv := httptest.NewServer(computeHandler(t, func(*websocket.Conn, envelope) {}))
	defer srv.Close()

	client := Dial(wsURL(srv.URL))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := client.ComputeUMAP(ctx, Request{Column: "embedding"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNotificationsInvokeCallbacks(t *testing.T) {
	srv := httptest.NewServer(computeHandler(t, func(conn *websocket.Conn, env envelope) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"refresh"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"resetLayout"}`))
		respondWith(nil, nil)(conn, env)
	}))
	defer srv.Close()

	client := Dial(wsURL(srv.URL))
	defer client.Close()

	refreshed := make(chan struct{}, 1)
	reset := make(chan struct{}, 1)
	client.OnRefresh(func() { refreshed <- struct{}{} })
	client.OnResetLayout(func() { reset <- struct{}{} })

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client.Compute(ctx, TaskGeneric, Request{})
	}()

	select {
	case <-refreshed:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh notification never arrived")
	}
	select {
	case <-reset:
	case <-time.After(5 * time.Second):
		t.Fatal("resetLayout notification never arrived")
	}
}

func TestQueueFlushesAfterReconnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	client := Dial("ws://" + addr + "/")
	defer client.Close()

	type outcome struct {
		res Result
		err error
	}
	results := make(chan outcome, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		res, err := client.ComputeUMAP(ctx, Request{Column: "embedding"})
		results <- outcome{res, err}
	}()

	// Let at least one dial attempt fail while the service is down.
	time.Sleep(200 * time.Millisecond)

	relisten, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	srv := &http.Server{Handler: computeHandler(t, respondWith([][]float64{{5, 6}}, []int{4}))}
	go srv.Serve(relisten)
	defer srv.Close()

	got := <-results
	require.NoError(t, got.err)
	assert.Equal(t, []int{4}, got.res.Indices)
}

func TestEnqueueDropsOldestWhenFull(t *testing.T) {
	c := newClient("ws://unused", WithQueueSize(2))

	c.enqueue([]byte("a"))
	c.enqueue([]byte("b"))
	c.enqueue([]byte("c"))

	msg, ok := c.popQueue()
	require.True(t, ok)
	assert.Equal(t, "b", string(msg))
	msg, ok = c.popQueue()
	require.True(t, ok)
	assert.Equal(t, "c", string(msg))
	_, ok = c.popQueue()
	assert.False(t, ok)
}

func TestComputeAfterClose(t *testing.T) {
	client := Dial("ws://127.0.0.1:0/")
	require.NoError(t, client.Close())

	_, err := client.ComputeUMAP(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrClosed)
}
