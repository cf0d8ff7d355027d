/**
 * @description
 * WebSocket client for an Ethereum node's new-head feed.
 * Manages the persistent connection, the newHeads subscription, and
 * keep-alive logic.
 *
 * Key features:
 * - Subscribes to `eth_subscribe newHeads` over JSON-RPC.
 * - Handles automatic reconnection with exponential backoff.
 * - Thread-safe writing.
 *
 * @dependencies
 * - github.com/gorilla/websocket
 * - backend/internal/config
 */

package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prophecy-market/backend/internal/config"
	"github.com/prophecy-market/backend/internal/logger"
)

const (
	WriteWait         = 10 * time.Second
	PongWait          = 60 * time.Second
	PingPeriod        = (PongWait * 9) / 10
	MaxConnectRetries = 5
)

type subscribeRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type Client struct {
	url     string
	conn    *websocket.Conn
	mu      sync.Mutex
	done    chan struct{}
	handler *HeadHandler

	// reconnecting prevents multiple simultaneous reconnection attempts
	reconnecting bool
	reconnectMu  sync.Mutex
}

func NewClient(cfg *config.Config, handler *HeadHandler) *Client {
	return &Client{
		url:     cfg.Chain.WSURL,
		handler: handler,
		done:    make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read loop
func (c *Client) Connect(ctx context.Context) error {
	if c.url == "" {
		return fmt.Errorf("no chain websocket endpoint configured")
	}
	return c.connectWithRetry(ctx)
}

func (c *Client) connectWithRetry(ctx context.Context) error {
	var err error
	backoff := 1 * time.Second

	for i := 0; i < MaxConnectRetries; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return fmt.Errorf("client closed")
		default:
		}

		logger.Info("Connecting to chain WS: %s (Attempt %d)", c.url, i+1)
		c.conn, _, err = websocket.DefaultDialer.Dial(c.url, nil)
		if err == nil {
			logger.Info("✅ Connected to chain WS")

			if subErr := c.sendSubscribe(); subErr != nil {
				logger.Error("Failed to send newHeads subscription: %v", subErr)
			}

			go c.readLoop(ctx)
			go c.pingLoop(ctx)
			return nil
		}

		logger.Error("Failed to connect: %v. Retrying in %v...", err, backoff)
		time.Sleep(backoff)
		backoff *= 2
	}

	return fmt.Errorf("failed to connect after %d attempts: %w", MaxConnectRetries, err)
}

func (c *Client) sendSubscribe() error {
	req := subscribeRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_subscribe",
		Params:  []interface{}{"newHeads"},
	}
	return c.writeJSON(req)
}

// writeJSON sends a JSON message to the websocket thread-safely
func (c *Client) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("connection is nil")
	}

	c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
	return c.conn.WriteJSON(v)
}

// Close gracefully closes the connection
func (c *Client) Close() error {
	close(c.done)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()

		// Trigger reconnection if context is not done and client is not closed
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
			c.reconnectMu.Lock()
			if !c.reconnecting {
				c.reconnecting = true
				c.reconnectMu.Unlock()
				logger.Info("Chain WS connection lost, reconnecting...")
				go func() {
					defer func() {
						c.reconnectMu.Lock()
						c.reconnecting = false
						c.reconnectMu.Unlock()
					}()
					if err := c.connectWithRetry(ctx); err != nil {
						logger.Error("Reconnection failed: %v", err)
					}
				}()
			} else {
				c.reconnectMu.Unlock()
			}
		}
	}()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return
	}

	conn.SetReadLimit(1024 * 1024)
	conn.SetReadDeadline(time.Now().Add(PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Error("Chain WS read error: %v", err)
				}
				return
			}

			// Async process to not block reader
			go func(msg []byte) {
				if err := c.handler.HandleMessage(ctx, msg); err != nil {
					logger.Error("Error handling chain message: %v", err)
				}
			}(message)
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.conn == nil {
				c.mu.Unlock()
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}
}
