// Package compute talks to the external dimensionality reduction service
// over a websocket. The connection is managed in the background: requests
// survive disconnects in a bounded queue and responses are matched back to
// their callers by uid.
package compute

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Task types understood by the reduction service.
const (
	TaskUMAP    = "umap"
	TaskPCA     = "pca"
	TaskGeneric = "task"
)

// Notification types pushed by the service without a correlating request.
const (
	notifyRefresh     = "refresh"
	notifyResetLayout = "resetLayout"
)

// DefaultQueueSize bounds the outbound queue while the service is
// unreachable. Overflow drops the oldest message.
const DefaultQueueSize = 256

const reconnectDelay = 500 * time.Millisecond

// ErrClosed is returned by compute calls once the client is closed.
var ErrClosed = errors.New("compute client closed")

// Request describes one reduction task over a column of the current dataset
// generation.
type Request struct {
	Column     string         `json:"column,omitempty"`
	Indices    []int          `json:"indices,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
	Generation int64          `json:"-"`
}

// Result is the reduced point cloud for a request. Points holds one
// coordinate vector per reduced row; Indices names the original rows.
type Result struct {
	Points  [][]float64 `json:"points"`
	Indices []int       `json:"indices"`
}

type envelope struct {
	Type         string          `json:"type,omitempty"`
	UID          string          `json:"uid,omitempty"`
	GenerationID int64           `json:"generation_id,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

type response struct {
	result Result
	err    error
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. The default discards logs.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithQueueSize bounds the outbound queue.
func WithQueueSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *Client) {
		if dialer != nil {
			c.dialer = dialer
		}
	}
}

// Client is a websocket client to the reduction service. It reconnects on a
// fixed delay for as long as it is open, queueing outbound messages in the
// meantime.
type Client struct {
	url       string
	logger    *zap.Logger
	queueSize int
	dialer    *websocket.Dialer

	mu            sync.Mutex
	queue         [][]byte
	resolvers     map[string]chan response
	onRefresh     func()
	onResetLayout func()
	closed        bool

	wake chan struct{}
	done chan struct{}
}

// Dial starts a client for the compute service at url and returns
// immediately. Connecting, reconnecting, and flushing the queue all happen
// on a background manager goroutine.
func Dial(url string, opts ...Option) *Client {
	c := newClient(url, opts...)
	go c.run()
	return c
}

func newClient(url string, opts ...Option) *Client {
	c := &Client{
		url:       url,
		logger:    zap.NewNop(),
		queueSize: DefaultQueueSize,
		dialer:    websocket.DefaultDialer,
		resolvers: make(map[string]chan response),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close stops the manager and drops the connection and any queued messages.
// Pending compute calls return ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)
	return nil
}

// OnRefresh registers a callback for refresh notifications. The callback
// runs on the read loop; long work should move to its own goroutine.
func (c *Client) OnRefresh(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRefresh = f
}

// OnResetLayout registers a callback for resetLayout notifications.
func (c *Client) OnResetLayout(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onResetLayout = f
}

// ComputeUMAP submits a UMAP reduction and blocks until the service answers
// or the context ends. Abandoning the call leaves a late response to be
// discarded.
func (c *Client) ComputeUMAP(ctx context.Context, req Request) (Result, error) {
	return c.Compute(ctx, TaskUMAP, req)
}

// ComputePCA submits a PCA reduction and blocks like ComputeUMAP.
func (c *Client) ComputePCA(ctx context.Context, req Request) (Result, error) {
	return c.Compute(ctx, TaskPCA, req)
}

// Compute submits a task of the given type and waits for its response.
func (c *Client) Compute(ctx context.Context, task string, req Request) (Result, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode compute request: %w", err)
	}
	uid := uuid.NewString()
	payload, err := json.Marshal(envelope{
		Type:         task,
		UID:          uid,
		GenerationID: req.Generation,
		Data:         data,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode compute message: %w", err)
	}

	ch := make(chan response, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result{}, ErrClosed
	}
	c.resolvers[uid] = ch
	c.mu.Unlock()

	c.enqueue(payload)
	c.logger.Debug("submitted compute task",
		zap.String("task", task),
		zap.String("uid", uid))

	select {
	case res := <-ch:
		return res.result, res.err
	case <-ctx.Done():
		c.deregister(uid)
		return Result{}, ctx.Err()
	case <-c.done:
		return Result{}, ErrClosed
	}
}

func (c *Client) deregister(uid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.resolvers, uid)
}

// enqueue appends a message to the outbound queue, dropping the oldest
// message when the queue is full, and wakes the write pump.
func (c *Client) enqueue(msg []byte) {
	dropped := false
	c.mu.Lock()
	if len(c.queue) >= c.queueSize {
		c.queue = c.queue[1:]
		dropped = true
	}
	c.queue = append(c.queue, msg)
	c.mu.Unlock()

	if dropped {
		c.logger.Warn("outbound compute queue full, dropping oldest message",
			zap.Int("capacity", c.queueSize))
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Client) popQueue() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, false
	}
	msg := c.queue[0]
	c.queue = c.queue[1:]
	return msg, true
}

func (c *Client) requeueFront(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append([][]byte{msg}, c.queue...)
}

// run is the manager loop: dial, serve until the connection drops, wait the
// fixed delay, and dial again until the client closes.
func (c *Client) run() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		conn, _, err := c.dialer.Dial(c.url, nil)
		if err != nil {
			c.logger.Debug("compute service dial failed", zap.Error(err))
			if !c.sleep(reconnectDelay) {
				return
			}
			continue
		}
		c.logger.Info("connected to compute service", zap.String("url", c.url))

		c.serve(conn)
		conn.Close()

		if !c.sleep(reconnectDelay) {
			return
		}
	}
}

func (c *Client) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-c.done:
		return false
	}
}

// serve pumps one connection: a read goroutine dispatches inbound messages
// while this goroutine flushes the queue, starting with whatever piled up
// while disconnected.
func (c *Client) serve(conn *websocket.Conn) {
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				c.logger.Debug("compute connection read failed", zap.Error(err))
				return
			}
			c.dispatch(msg)
		}
	}()

	if !c.flush(conn) {
		return
	}
	for {
		select {
		case <-c.done:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-readDone:
			return
		case <-c.wake:
			if !c.flush(conn) {
				return
			}
		}
	}
}

// flush drains the queue in order. A failed write puts the message back at
// the front and reports false so the manager reconnects.
func (c *Client) flush(conn *websocket.Conn) bool {
	for {
		msg, ok := c.popQueue()
		if !ok {
			return true
		}
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.logger.Warn("compute write failed", zap.Error(err))
			c.requeueFront(msg)
			return false
		}
	}
}

// dispatch routes one inbound message: notifications to their callbacks,
// responses to the resolver registered under their uid.
func (c *Client) dispatch(msg []byte) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		c.logger.Warn("discarding malformed compute message", zap.Error(err))
		return
	}

	switch env.Type {
	case notifyRefresh:
		if f := c.refreshCallback(); f != nil {
			f()
		}
		return
	case notifyResetLayout:
		if f := c.resetLayoutCallback(); f != nil {
			f()
		}
		return
	}

	if env.UID == "" {
		c.logger.Debug("discarding compute message without uid", zap.String("type", env.Type))
		return
	}

	c.mu.Lock()
	ch, ok := c.resolvers[env.UID]
	if ok {
		delete(c.resolvers, env.UID)
	}
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("discarding response for unknown task", zap.String("uid", env.UID))
		return
	}

	var res Result
	if err := json.Unmarshal(env.Data, &res); err != nil {
		ch <- response{err: fmt.Errorf("malformed compute response: %w", err)}
		return
	}
	ch <- response{result: res}
}

func (c *Client) refreshCallback() func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onRefresh
}

func (c *Client) resetLayoutCallback() func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onResetLayout
}
